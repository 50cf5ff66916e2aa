// Package linop defines the linear-operator contract shared by the structured
// Hankel operator and the randomized range finder.
package linop

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrDimension is returned when an operand does not match an operator.
var ErrDimension = errors.New("linop: dimension mismatch")

// Operator is a real linear map R^n -> R^r applied to column batches.
type Operator interface {
	// Dims returns the range and source dimensions.
	Dims() (r, n int)
	// Apply returns A·x for an n×k matrix x.
	Apply(x mat.Matrix) (*mat.Dense, error)
	// ApplyAdjoint returns Aᵀ·y for an r×k matrix y.
	ApplyAdjoint(y mat.Matrix) (*mat.Dense, error)
}

// ProbeSource draws random range samples A·Ω from an operator.
type ProbeSource interface {
	// Sample returns k range samples together with the Gaussian probes Ω
	// that produced them.
	Sample(src rand.Source, k int) (samples, probes *mat.Dense, err error)
}

// Gaussian is the generic ProbeSource: it draws an n×k standard normal Ω and
// applies the operator to it.
type Gaussian struct {
	Op Operator
}

// Sample implements ProbeSource.
func (g Gaussian) Sample(src rand.Source, k int) (*mat.Dense, *mat.Dense, error) {
	_, n := g.Op.Dims()
	omega := mat.NewDense(n, k, NormalVector(src, n*k))
	y, err := g.Op.Apply(omega)
	if err != nil {
		return nil, nil, err
	}
	return y, omega, nil
}

// ProbesFor returns the operator's own sampler when it provides one and the
// generic Gaussian sampler otherwise.
func ProbesFor(op Operator) ProbeSource {
	if ps, ok := op.(ProbeSource); ok {
		return ps
	}
	return Gaussian{Op: op}
}

// NormalVector draws n standard normal values from src.
func NormalVector(src rand.Source, n int) []float64 {
	dist := distuv.Normal{Mu: 0, Sigma: 1, Src: src}
	v := make([]float64, n)
	for i := range v {
		v[i] = dist.Rand()
	}
	return v
}

// CheckApply validates the operand of Apply or ApplyAdjoint against the
// expected row count.
func CheckApply(op string, x mat.Matrix, rows int) error {
	r, _ := x.Dims()
	if r != rows {
		return fmt.Errorf("%w: %s: operand has %d rows, want %d", ErrDimension, op, r, rows)
	}
	return nil
}

// Dense wraps an explicit matrix as an Operator.
type Dense struct {
	M mat.Matrix
}

// Dims implements Operator.
func (d Dense) Dims() (int, int) { return d.M.Dims() }

// Apply implements Operator.
func (d Dense) Apply(x mat.Matrix) (*mat.Dense, error) {
	_, n := d.M.Dims()
	if err := CheckApply("apply", x, n); err != nil {
		return nil, err
	}
	var y mat.Dense
	y.Mul(d.M, x)
	return &y, nil
}

// ApplyAdjoint implements Operator.
func (d Dense) ApplyAdjoint(y mat.Matrix) (*mat.Dense, error) {
	r, _ := d.M.Dims()
	if err := CheckApply("apply adjoint", y, r); err != nil {
		return nil, err
	}
	var x mat.Dense
	x.Mul(d.M.T(), y)
	return &x, nil
}
