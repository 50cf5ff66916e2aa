package rangefinder

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// dependenceTol is the residual-to-input norm ratio below which a new
// column is treated as linearly dependent on the basis.
const dependenceTol = 1e-12

// orthogonalizer extends an orthonormal basis by a block of new columns.
//
// Given the current basis q (r×n, nil when empty) and new columns y (r×b),
// it returns qNew (r×b) and coef ((n+b)×b) with
//
//	y = [q qNew] · coef
//
// where the trailing b×b block of coef is upper triangular. Columns flagged
// in dep are zero in qNew and have a zero diagonal in coef.
type orthogonalizer interface {
	extend(q *mat.Dense, y *mat.Dense) (qNew, coef *mat.Dense, dep []bool)
}

type gramSchmidt struct {
	tol     float64
	maxIter int
}

func (g gramSchmidt) extend(q *mat.Dense, y *mat.Dense) (*mat.Dense, *mat.Dense, []bool) {
	r, b := y.Dims()
	n := 0
	if q != nil {
		_, n = q.Dims()
	}
	qNew := mat.NewDense(r, b, nil)
	coef := mat.NewDense(n+b, b, nil)
	dep := make([]bool, b)

	v := make([]float64, r)
	c := make([]float64, n+b)
	proj := make([]float64, n+b)
	for j := range b {
		mat.Col(v, j, y)
		orig := floats.Norm(v, 2)
		clear(c)

		for it := 0; it < max(g.maxIter, 2); it++ {
			g.project(proj[:n+j], q, qNew, j, v)
			floats.Add(c[:n+j], proj[:n+j])
			if it > 0 && floats.Norm(proj[:n+j], 2) <= g.tol*floats.Norm(v, 2) {
				break
			}
		}

		norm := floats.Norm(v, 2)
		for k := range n + j {
			coef.Set(k, j, c[k])
		}
		if orig == 0 || norm <= dependenceTol*orig {
			dep[j] = true
			continue
		}
		coef.Set(n+j, j, norm)
		floats.Scale(1/norm, v)
		qNew.SetCol(j, v)
	}
	return qNew, coef, dep
}

// project computes proj = [q qNew[:, :j]]ᵀ v and subtracts the projection
// from v (one classical Gram-Schmidt pass).
func (g gramSchmidt) project(proj []float64, q, qNew *mat.Dense, j int, v []float64) {
	n := len(proj) - j
	vv := mat.NewVecDense(len(v), v)
	if n > 0 {
		pv := mat.NewVecDense(n, proj[:n])
		pv.MulVec(q.T(), vv)
	}
	for k := range j {
		proj[n+k] = mat.Dot(qNew.ColView(k), vv)
	}
	if n > 0 {
		var corr mat.VecDense
		corr.MulVec(q, mat.NewVecDense(n, proj[:n]))
		vv.SubVec(vv, &corr)
	}
	for k := range j {
		if proj[n+k] != 0 {
			vv.AddScaledVec(vv, -proj[n+k], qNew.ColView(k))
		}
	}
}

type shiftedCholQR struct {
	tol     float64
	maxIter int
}

// extend orthogonalizes y against q with two block Gram-Schmidt passes and
// then applies shifted Cholesky QR to the block, repeating plain Cholesky QR
// until the block is orthonormal within tol. Blocks that are numerically
// rank deficient are handed to Gram-Schmidt, which detects dependent
// columns individually.
func (s shiftedCholQR) extend(q *mat.Dense, y *mat.Dense) (*mat.Dense, *mat.Dense, []bool) {
	r, b := y.Dims()
	n := 0
	if q != nil {
		_, n = q.Dims()
	}
	fallback := func() (*mat.Dense, *mat.Dense, []bool) {
		return gramSchmidt{tol: s.tol, maxIter: s.maxIter}.extend(q, y)
	}

	w := mat.DenseCopyOf(y)
	c := mat.NewDense(max(n, 1), b, nil)
	if n > 0 {
		for range 2 {
			var proj, corr mat.Dense
			proj.Mul(q.T(), w)
			corr.Mul(q, &proj)
			w.Sub(w, &corr)
			c.Add(c, &proj)
		}
	}
	for j := range b {
		orig := mat.Norm(y.ColView(j), 2)
		if orig == 0 || mat.Norm(w.ColView(j), 2) <= dependenceTol*orig {
			return fallback()
		}
	}

	frob := mat.Norm(w, 2)
	shift := 11 * float64(r*b+b*(b+1)) * eps * frob * frob
	rTotal, ok := cholQRStep(w, shift)
	if !ok {
		return fallback()
	}
	for range s.maxIter {
		var gram mat.SymDense
		gram.SymOuterK(1, w.T())
		if orthError(&gram) <= s.tol {
			break
		}
		step, ok := cholQRStep(w, 0)
		if !ok {
			return fallback()
		}
		var next mat.TriDense
		next.MulTri(step, rTotal)
		rTotal = &next
	}

	maxDiag := 0.0
	for j := range b {
		maxDiag = math.Max(maxDiag, math.Abs(rTotal.At(j, j)))
	}
	for j := range b {
		if math.Abs(rTotal.At(j, j)) <= dependenceTol*maxDiag {
			return fallback()
		}
	}

	coef := mat.NewDense(n+b, b, nil)
	for j := range b {
		for k := range n {
			coef.Set(k, j, c.At(k, j))
		}
		for k := 0; k <= j; k++ {
			coef.Set(n+k, j, rTotal.At(k, j))
		}
	}
	return w, coef, make([]bool, b)
}

const eps = 0x1p-52

// cholQRStep replaces w by w·R⁻¹ where RᵀR = wᵀw + shift·I and returns R.
func cholQRStep(w *mat.Dense, shift float64) (*mat.TriDense, bool) {
	_, b := w.Dims()
	var gram mat.SymDense
	gram.SymOuterK(1, w.T())
	if shift > 0 {
		for j := range b {
			gram.SetSym(j, j, gram.At(j, j)+shift)
		}
	}
	var chol mat.Cholesky
	if !chol.Factorize(&gram) {
		return nil, false
	}
	var u, uInv mat.TriDense
	chol.UTo(&u)
	if err := uInv.InverseTri(&u); err != nil {
		return nil, false
	}
	var next mat.Dense
	next.Mul(w, &uInv)
	w.Copy(&next)
	return &u, true
}

// orthError returns ‖G - I‖_F for a Gram matrix G.
func orthError(gram *mat.SymDense) float64 {
	n := gram.SymmetricDim()
	var sum float64
	for i := range n {
		for j := range n {
			d := gram.At(i, j)
			if i == j {
				d--
			}
			sum += d * d
		}
	}
	return math.Sqrt(sum)
}
