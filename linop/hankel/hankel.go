package hankel

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"sync"

	"github.com/cwbudde/algo-era/linop"
	"gonum.org/v1/gonum/mat"
)

// minEmbedding is the smallest circulant length used for an embedding.
const minEmbedding = 8

// Operator is the block Hankel matrix
//
//	H[a, b] = h[a+b],  a < k block rows, b < l block columns
//
// built from p×m blocks h_0..h_{k+l-2}. It is never formed densely: products
// run through a circulant embedding evaluated with FFTs.
//
// Vectors are block-interleaved: source entry (b, j) is stored at b*m+j and
// range entry (a, i) at a*p+i.
type Operator struct {
	k, l, p, m int
	h          Blocks
	circ       *Circulant

	adjOnce sync.Once
	adj     *Operator
	adjErr  error
}

var (
	_ linop.Operator    = (*Operator)(nil)
	_ linop.ProbeSource = (*Operator)(nil)
)

// New builds the Hankel operator whose first block column is c (k blocks)
// and whose last block row is r (l blocks). r[0] and c[k-1] denote the same
// block; the value from c is used.
func New(c, r Blocks) (*Operator, error) {
	if err := c.validate("c"); err != nil {
		return nil, err
	}
	if err := r.validate("r"); err != nil {
		return nil, err
	}
	if c.P != r.P || c.M != r.M {
		return nil, fmt.Errorf("%w: c blocks are %dx%d, r blocks are %dx%d", ErrBlockShape, c.P, c.M, r.P, r.M)
	}
	if c.IsReal() != r.IsReal() {
		return nil, fmt.Errorf("%w: c and r must both be real or both complex", ErrBlockShape)
	}

	n := c.N + r.N - 1
	h := Blocks{N: n, P: c.P, M: c.M}
	s := c.P * c.M
	if c.IsReal() {
		h.Real = make([]float64, n*s)
		copy(h.Real, c.Real)
		copy(h.Real[c.N*s:], r.Real[s:])
	} else {
		h.Complex = make([]complex128, n*s)
		copy(h.Complex, c.Complex)
		copy(h.Complex[c.N*s:], r.Complex[s:])
	}
	return newOperator(h, c.N)
}

// FromSequence builds the Hankel operator with k block rows over all blocks
// of h, so that it has h.N-k+1 block columns.
func FromSequence(h Blocks, k int) (*Operator, error) {
	if err := h.validate("h"); err != nil {
		return nil, err
	}
	if k < 1 || k > h.N {
		return nil, fmt.Errorf("%w: %d block rows for %d blocks", ErrBlockShape, k, h.N)
	}
	return newOperator(h, k)
}

// EmbeddingSize returns the circulant length used for k block rows and l
// block columns: the next power of two holding k+l-1 blocks, after padding
// odd real sequences to even length.
func EmbeddingSize(k, l int, real bool) int {
	n := k + l - 1
	if real && n%2 == 1 {
		n++
	}
	return max(nextPowerOf2(n), minEmbedding)
}

func newOperator(h Blocks, k int) (*Operator, error) {
	l := h.N - k + 1
	n := EmbeddingSize(k, l, h.IsReal())
	s := h.P * h.M

	// Rolling by l-1 blocks aligns the anti-diagonals of H with the
	// cyclic convolution of the reversed input: g_u = h_{(u+l-1) mod n}.
	g := Blocks{N: n, P: h.P, M: h.M}
	if h.IsReal() {
		g.Real = make([]float64, n*s)
	} else {
		g.Complex = make([]complex128, n*s)
	}
	for u := range n {
		t := (u + l - 1) % n
		if t >= h.N {
			continue
		}
		if h.IsReal() {
			copy(g.Real[u*s:(u+1)*s], h.Real[t*s:(t+1)*s])
		} else {
			copy(g.Complex[u*s:(u+1)*s], h.Complex[t*s:(t+1)*s])
		}
	}

	circ, err := NewCirculant(g)
	if err != nil {
		return nil, err
	}
	return &Operator{k: k, l: l, p: h.P, m: h.M, h: h, circ: circ}, nil
}

// Dims returns the range dimension k·p and the source dimension l·m.
func (op *Operator) Dims() (int, int) { return op.k * op.p, op.l * op.m }

// BlockDims returns the block row count, block column count and block size.
func (op *Operator) BlockDims() (k, l, p, m int) { return op.k, op.l, op.p, op.m }

// IsReal reports whether the generator blocks are real.
func (op *Operator) IsReal() bool { return op.h.IsReal() }

// Circulant returns the embedding operator.
func (op *Operator) Circulant() *Circulant { return op.circ }

// Blocks returns the generator sequence h_0..h_{k+l-2}.
func (op *Operator) Blocks() Blocks { return op.h }

// Apply returns H·x for a real l·m×cols matrix x.
func (op *Operator) Apply(x mat.Matrix) (*mat.Dense, error) {
	if !op.IsReal() {
		return nil, ErrNotReal
	}
	if err := linop.CheckApply("hankel apply", x, op.l*op.m); err != nil {
		return nil, err
	}
	_, cols := x.Dims()
	y := mat.NewDense(op.k*op.p, cols, nil)
	op.circ.realProduct(cols,
		func(j, q int, z []float64) {
			for t := range op.l {
				z[t] = x.At((op.l-1-t)*op.m+j, q)
			}
		},
		op.storeReal(y))
	return y, nil
}

func (op *Operator) storeReal(y *mat.Dense) func(i, q int, seq []float64) {
	return func(i, q int, seq []float64) {
		for a := range op.k {
			y.Set(a*op.p+i, q, seq[a])
		}
	}
}

// ApplyComplex returns H·x for a complex l·m×cols matrix x. A real operator
// takes the mixed path with its spectrum extended by conjugate symmetry.
func (op *Operator) ApplyComplex(x mat.CMatrix) (*mat.CDense, error) {
	rows, cols := x.Dims()
	if rows != op.l*op.m {
		return nil, fmt.Errorf("%w: hankel apply: operand has %d rows, want %d", linop.ErrDimension, rows, op.l*op.m)
	}
	y := mat.NewCDense(op.k*op.p, cols, nil)
	err := op.circ.complexProduct(cols,
		func(j, q int, z []complex128) {
			for t := range op.l {
				z[t] = x.At((op.l-1-t)*op.m+j, q)
			}
		},
		func(i, q int, seq []complex128) {
			for a := range op.k {
				y.Set(a*op.p+i, q, seq[a])
			}
		})
	if err != nil {
		return nil, err
	}
	return y, nil
}

// Adjoint returns the Hankel operator Hᴴ built from the conjugate-transposed
// blocks. It is constructed on first use and cached.
func (op *Operator) Adjoint() (*Operator, error) {
	op.adjOnce.Do(func() {
		op.adj, op.adjErr = newOperator(op.h.adjoint(), op.l)
	})
	return op.adj, op.adjErr
}

// ApplyAdjoint returns Hᵀ·y for a real k·p×cols matrix y.
func (op *Operator) ApplyAdjoint(y mat.Matrix) (*mat.Dense, error) {
	adj, err := op.Adjoint()
	if err != nil {
		return nil, err
	}
	return adj.Apply(y)
}

// ApplyAdjointComplex returns Hᴴ·y for a complex k·p×cols matrix y.
func (op *Operator) ApplyAdjointComplex(y mat.CMatrix) (*mat.CDense, error) {
	adj, err := op.Adjoint()
	if err != nil {
		return nil, err
	}
	return adj.ApplyComplex(y)
}

// Sample draws k Gaussian probes and returns H·Ω together with Ω. The probes
// are drawn directly in the embedding's input coordinates, which skips the
// block reversal of Apply. The returned probes are expressed in source
// coordinates, so samples equal Apply(probes).
func (op *Operator) Sample(src rand.Source, k int) (*mat.Dense, *mat.Dense, error) {
	if !op.IsReal() {
		return nil, nil, ErrNotReal
	}
	n := op.l * op.m
	omega := linop.NormalVector(src, n*k)

	y := mat.NewDense(op.k*op.p, k, nil)
	op.circ.realProduct(k,
		func(j, q int, z []float64) {
			for t := range op.l {
				z[t] = omega[(t*op.m+j)*k+q]
			}
		},
		op.storeReal(y))

	probes := mat.NewDense(n, k, nil)
	for b := range op.l {
		for j := range op.m {
			for q := range k {
				probes.Set(b*op.m+j, q, omega[((op.l-1-b)*op.m+j)*k+q])
			}
		}
	}
	return y, probes, nil
}

// FrobeniusNorm returns the Frobenius norm of H; block h_t appears on
// min(t+1, k, l, k+l-1-t) anti-diagonal positions.
func (op *Operator) FrobeniusNorm() float64 {
	s := op.p * op.m
	var sum float64
	for t := range op.h.N {
		w := float64(min(t+1, op.k, op.l, op.k+op.l-1-t))
		var e float64
		for idx := t * s; idx < (t+1)*s; idx++ {
			if op.h.Complex != nil {
				a := cmplx.Abs(op.h.Complex[idx])
				e += a * a
			} else {
				e += op.h.Real[idx] * op.h.Real[idx]
			}
		}
		sum += w * e
	}
	return math.Sqrt(sum)
}

// Dense forms the full Hankel matrix. It is meant for small operators and
// for checking the fast path.
func (op *Operator) Dense() *mat.Dense {
	if !op.IsReal() {
		panic("hankel: Dense on complex operator")
	}
	d := mat.NewDense(op.k*op.p, op.l*op.m, nil)
	for a := range op.k {
		for b := range op.l {
			for i := range op.p {
				for j := range op.m {
					d.Set(a*op.p+i, b*op.m+j, real(op.h.At(a+b, i, j)))
				}
			}
		}
	}
	return d
}

func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	p := 1
	for p < n {
		p *= 2
	}
	return p
}
