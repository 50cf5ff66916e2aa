package era

import (
	"fmt"
	"math/cmplx"

	"github.com/cwbudde/algo-era/measure/ir"
	"gonum.org/v1/gonum/mat"
)

// Realization is a discrete-time state-space model
//
//	x[t+1] = A x[t] + B u[t]
//	y[t]   = C x[t] + D u[t]
//
// together with the Hankel singular values it was truncated from.
type Realization struct {
	A, B, C, D *mat.Dense
	// SingularValues holds every singular value of the projected Hankel
	// operator, largest first. The first Order() belong to the model.
	SingularValues []float64
	SamplingTime   float64
}

// Order returns the state dimension.
func (r *Realization) Order() int {
	n, _ := r.A.Dims()
	return n
}

// Dims returns the state, output and input dimensions.
func (r *Realization) Dims() (n, p, m int) {
	n, m = r.B.Dims()
	p, _ = r.C.Dims()
	return n, p, m
}

// SpectralRadius returns the largest eigenvalue magnitude of A.
func (r *Realization) SpectralRadius() (float64, error) {
	var eig mat.Eigen
	if !eig.Factorize(r.A, mat.EigenNone) {
		return 0, fmt.Errorf("era: eigenvalue decomposition of A failed")
	}
	var rho float64
	for _, v := range eig.Values(nil) {
		rho = max(rho, cmplx.Abs(v))
	}
	return rho, nil
}

// Simulate returns the first t samples of the impulse response of rom:
// D at time 0 and C A^(k-1) B at time k.
func Simulate(rom *Realization, t int) (*ir.Tensor, error) {
	if rom == nil || rom.A == nil || rom.B == nil || rom.C == nil {
		return nil, fmt.Errorf("%w: incomplete realization", ErrConfig)
	}
	if t < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrConfig, t)
	}
	n, p, m := rom.Dims()
	if an, ac := rom.A.Dims(); an != n || ac != n {
		return nil, &ir.ShapeError{Op: "simulate A", Got: []int{an, ac}, Want: []int{n, n}}
	}
	if _, cn := rom.C.Dims(); cn != n {
		return nil, &ir.ShapeError{Op: "simulate C", Got: []int{p, cn}, Want: []int{p, n}}
	}

	y := ir.NewTensor(t, p, m)
	if t == 0 {
		return y, nil
	}
	if rom.D != nil {
		if dp, dm := rom.D.Dims(); dp != p || dm != m {
			return nil, &ir.ShapeError{Op: "simulate D", Got: []int{dp, dm}, Want: []int{p, m}}
		}
		y.Block(0).Copy(rom.D)
	}

	x := mat.DenseCopyOf(rom.B)
	next := mat.NewDense(n, m, nil)
	for k := 1; k < t; k++ {
		y.Block(k).Mul(rom.C, x)
		next.Mul(rom.A, x)
		x, next = next, x
	}
	return y, nil
}

// DegreesOfFreedom counts the parameters of a model with n states, p outputs
// and m inputs, (n+m)(n+p), plus the removed dead-time samples that an
// exported model carries as delay lines.
func DegreesOfFreedom(n, p, m int, removed float64) float64 {
	return float64((n+m)*(n+p)) + removed
}
