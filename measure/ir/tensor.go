package ir

import (
	"errors"
	"fmt"
	"math"

	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/mat"
)

// ErrShapeMismatch is the error kind for malformed tensors and position sets.
var ErrShapeMismatch = errors.New("ir: shape mismatch")

// ShapeError describes a malformed input. It unwraps to ErrShapeMismatch.
type ShapeError struct {
	Op   string
	Got  []int
	Want []int
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("ir: %s: shape mismatch: got %v, want %v", e.Op, e.Got, e.Want)
}

func (e *ShapeError) Unwrap() error { return ErrShapeMismatch }

// Tensor is a multi-channel impulse response indexed [time, output, input].
// Samples are stored time-major; each time step holds a row-major p×m block.
type Tensor struct {
	T, P, M int
	Data    []float64
}

// NewTensor returns a zero tensor with T time steps, p outputs and m inputs.
func NewTensor(t, p, m int) *Tensor {
	if t < 0 || p < 0 || m < 0 {
		panic("ir: negative tensor dimension")
	}
	return &Tensor{T: t, P: p, M: m, Data: make([]float64, t*p*m)}
}

// TensorFrom wraps data as a T×p×m tensor without copying.
func TensorFrom(t, p, m int, data []float64) (*Tensor, error) {
	if t < 0 || p < 0 || m < 0 || len(data) != t*p*m {
		return nil, &ShapeError{Op: "tensor", Got: []int{len(data)}, Want: []int{t, p, m}}
	}
	return &Tensor{T: t, P: p, M: m, Data: data}, nil
}

// Dims returns the time length, output count and input count.
func (x *Tensor) Dims() (t, p, m int) { return x.T, x.P, x.M }

// At returns sample t of channel (i, j).
func (x *Tensor) At(t, i, j int) float64 {
	return x.Data[(t*x.P+i)*x.M+j]
}

// Set sets sample t of channel (i, j).
func (x *Tensor) Set(t, i, j int, v float64) {
	x.Data[(t*x.P+i)*x.M+j] = v
}

// Channel copies the time series of channel (i, j) into dst and returns it.
// A nil dst is allocated.
func (x *Tensor) Channel(dst []float64, i, j int) []float64 {
	if dst == nil {
		dst = make([]float64, x.T)
	}
	stride := x.P * x.M
	off := i*x.M + j
	for t := range x.T {
		dst[t] = x.Data[t*stride+off]
	}
	return dst
}

// SetChannel overwrites channel (i, j) with src. len(src) must equal T.
func (x *Tensor) SetChannel(i, j int, src []float64) {
	if len(src) != x.T {
		panic("ir: channel length mismatch")
	}
	stride := x.P * x.M
	off := i*x.M + j
	for t, v := range src {
		x.Data[t*stride+off] = v
	}
}

// Block returns a p×m view of time step t sharing the tensor's storage.
func (x *Tensor) Block(t int) *mat.Dense {
	n := x.P * x.M
	return mat.NewDense(x.P, x.M, x.Data[t*n:(t+1)*n:(t+1)*n])
}

// Slice returns the time steps [from, to) as a tensor sharing storage.
func (x *Tensor) Slice(from, to int) *Tensor {
	n := x.P * x.M
	return &Tensor{T: to - from, P: x.P, M: x.M, Data: x.Data[from*n : to*n]}
}

// Clone returns a deep copy.
func (x *Tensor) Clone() *Tensor {
	c := &Tensor{T: x.T, P: x.P, M: x.M, Data: make([]float64, len(x.Data))}
	copy(c.Data, x.Data)
	return c
}

// Transpose returns the tensor with inputs and outputs swapped.
func (x *Tensor) Transpose() *Tensor {
	y := NewTensor(x.T, x.M, x.P)
	for t := range x.T {
		for i := range x.P {
			for j := range x.M {
				y.Set(t, j, i, x.At(t, i, j))
			}
		}
	}
	return y
}

// Norm returns the Frobenius norm over all samples.
func (x *Tensor) Norm() float64 {
	return math.Sqrt(vecmath.DotProduct(x.Data, x.Data))
}

// DistanceTo returns the Frobenius norm of x - y.
func (x *Tensor) DistanceTo(y *Tensor) (float64, error) {
	if x.T != y.T || x.P != y.P || x.M != y.M {
		return 0, &ShapeError{Op: "distance", Got: []int{y.T, y.P, y.M}, Want: []int{x.T, x.P, x.M}}
	}
	diff := make([]float64, len(x.Data))
	copy(diff, y.Data)
	vecmath.ScaleBlockInPlace(diff, -1)
	vecmath.AddBlockInPlace(diff, x.Data)
	return math.Sqrt(vecmath.DotProduct(diff, diff)), nil
}

// MaxAbs returns the largest absolute sample value.
func (x *Tensor) MaxAbs() float64 {
	if len(x.Data) == 0 {
		return 0
	}
	return vecmath.MaxAbs(x.Data)
}

// Positions is an ordered set of points, one row per channel.
type Positions [][]float64

// Dim returns the common coordinate dimension, or an error if rows differ.
func (ps Positions) Dim() (int, error) {
	if len(ps) == 0 {
		return 0, nil
	}
	d := len(ps[0])
	for i, p := range ps {
		if len(p) != d {
			return 0, &ShapeError{Op: fmt.Sprintf("position %d", i), Got: []int{len(p)}, Want: []int{d}}
		}
	}
	return d, nil
}

// Distance returns the Euclidean distance between two points of equal dimension.
func Distance(a, b []float64) float64 {
	var sum float64
	for k := range a {
		d := a[k] - b[k]
		sum += d * d
	}
	return math.Sqrt(sum)
}
