package deadtime

import (
	"math"

	"github.com/cwbudde/algo-era/measure/ir"
	"gonum.org/v1/gonum/mat"
)

// Shift returns a copy of x with channel (i, j) moved by delays[i,j] samples.
// Fractional delays are floored. A positive delay shifts the channel later
// and zero-fills its start, a negative delay advances it and zero-fills its
// tail, and zero leaves it unchanged. Shifts of at least T samples in either
// direction produce a silent channel.
func Shift(x *ir.Tensor, delays mat.Matrix) (*ir.Tensor, error) {
	r, c := delays.Dims()
	if r != x.P || c != x.M {
		return nil, &ir.ShapeError{Op: "shift", Got: []int{r, c}, Want: []int{x.P, x.M}}
	}

	out := ir.NewTensor(x.T, x.P, x.M)
	src := make([]float64, x.T)
	dst := make([]float64, x.T)
	for i := range x.P {
		for j := range x.M {
			x.Channel(src, i, j)
			shiftChannel(dst, src, int(math.Floor(delays.At(i, j))))
			out.SetChannel(i, j, dst)
		}
	}
	return out, nil
}

// shiftChannel writes src delayed by n samples into dst.
func shiftChannel(dst, src []float64, n int) {
	clear(dst)
	t := len(src)
	switch {
	case n == 0:
		copy(dst, src)
	case n > 0:
		if n < t {
			copy(dst[n:], src[:t-n])
		}
	default:
		if -n < t {
			copy(dst[:t+n], src[-n:])
		}
	}
}
