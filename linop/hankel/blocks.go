package hankel

import (
	"errors"
	"fmt"

	"github.com/cwbudde/algo-era/measure/ir"
)

// Errors returned when constructing Hankel operators.
var (
	ErrEmptyData  = errors.New("hankel: empty generator data")
	ErrBlockShape = errors.New("hankel: inconsistent generator blocks")
	ErrNotReal    = errors.New("hankel: operator has complex generators")
)

// Blocks is a sequence of N blocks of size P×M holding either real or
// complex samples. Block t, entry (i, j) is stored at (t*P+i)*M+j.
type Blocks struct {
	N, P, M int
	Real    []float64
	Complex []complex128
}

// RealBlocks wraps real data as n blocks of size p×m.
func RealBlocks(n, p, m int, data []float64) (Blocks, error) {
	if len(data) != n*p*m {
		return Blocks{}, fmt.Errorf("%w: %d values for %d blocks of %dx%d", ErrBlockShape, len(data), n, p, m)
	}
	return Blocks{N: n, P: p, M: m, Real: data}, nil
}

// ComplexBlocks wraps complex data as n blocks of size p×m.
func ComplexBlocks(n, p, m int, data []complex128) (Blocks, error) {
	if len(data) != n*p*m {
		return Blocks{}, fmt.Errorf("%w: %d values for %d blocks of %dx%d", ErrBlockShape, len(data), n, p, m)
	}
	return Blocks{N: n, P: p, M: m, Complex: data}, nil
}

// FromTensor views an impulse-response tensor as real blocks without copying.
func FromTensor(x *ir.Tensor) Blocks {
	return Blocks{N: x.T, P: x.P, M: x.M, Real: x.Data}
}

// IsReal reports whether the blocks hold real samples.
func (b Blocks) IsReal() bool { return b.Complex == nil }

// At returns entry (i, j) of block t.
func (b Blocks) At(t, i, j int) complex128 {
	k := (t*b.P+i)*b.M + j
	if b.Complex != nil {
		return b.Complex[k]
	}
	return complex(b.Real[k], 0)
}

// Slice returns blocks [from, to) sharing storage.
func (b Blocks) Slice(from, to int) Blocks {
	s := b.P * b.M
	out := Blocks{N: to - from, P: b.P, M: b.M}
	if b.Complex != nil {
		out.Complex = b.Complex[from*s : to*s]
	} else {
		out.Real = b.Real[from*s : to*s]
	}
	return out
}

// adjoint returns the conjugate-transposed blocks.
func (b Blocks) adjoint() Blocks {
	out := Blocks{N: b.N, P: b.M, M: b.P}
	if b.Complex != nil {
		out.Complex = make([]complex128, len(b.Complex))
	} else {
		out.Real = make([]float64, len(b.Real))
	}
	for t := range b.N {
		for i := range b.P {
			for j := range b.M {
				src := (t*b.P+i)*b.M + j
				dst := (t*b.M+j)*b.P + i
				if b.Complex != nil {
					v := b.Complex[src]
					out.Complex[dst] = complex(real(v), -imag(v))
				} else {
					out.Real[dst] = b.Real[src]
				}
			}
		}
	}
	return out
}

func (b Blocks) validate(name string) error {
	if b.N <= 0 || b.P <= 0 || b.M <= 0 {
		return fmt.Errorf("%w: %s has %d blocks of %dx%d", ErrEmptyData, name, b.N, b.P, b.M)
	}
	size := b.N * b.P * b.M
	if (b.Real == nil) == (b.Complex == nil) || len(b.Real)+len(b.Complex) != size {
		return fmt.Errorf("%w: %s must hold exactly %d real or complex values", ErrBlockShape, name, size)
	}
	return nil
}
