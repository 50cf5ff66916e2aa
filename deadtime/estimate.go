package deadtime

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-era/measure/ir"
	"gonum.org/v1/gonum/mat"
)

// DefaultSpeedOfSound is the propagation speed in air in m/s.
const DefaultSpeedOfSound = 343.0

// Errors returned by the dead-time functions.
var (
	ErrInvalidParameter = errors.New("deadtime: invalid parameter")
	ErrNegativeDelay    = errors.New("deadtime: negative delay")
	ErrOptimization     = errors.New("deadtime: delay split optimization failed")
)

// Estimate returns the p×m delay matrix in samples between every receiver
// (row) and source (column): distance / speed * sampleRate.
// Delays are truncated to whole samples unless subsample is set.
func Estimate(receivers, sources ir.Positions, speed, sampleRate float64, subsample bool) (*mat.Dense, error) {
	if speed <= 0 || math.IsNaN(speed) {
		return nil, fmt.Errorf("%w: speed %v", ErrInvalidParameter, speed)
	}
	if sampleRate <= 0 || math.IsNaN(sampleRate) {
		return nil, fmt.Errorf("%w: sample rate %v", ErrInvalidParameter, sampleRate)
	}

	rd, err := receivers.Dim()
	if err != nil {
		return nil, fmt.Errorf("deadtime: receivers: %w", err)
	}
	sd, err := sources.Dim()
	if err != nil {
		return nil, fmt.Errorf("deadtime: sources: %w", err)
	}
	if len(receivers) == 0 || len(sources) == 0 || rd != sd {
		return nil, &ir.ShapeError{
			Op:   "estimate delays",
			Got:  []int{len(receivers), rd, len(sources), sd},
			Want: []int{len(receivers), sd, len(sources), sd},
		}
	}

	d := mat.NewDense(len(receivers), len(sources), nil)
	for i, r := range receivers {
		for j, s := range sources {
			v := ir.Distance(r, s) / speed * sampleRate
			if !subsample {
				v = math.Trunc(v)
			}
			d.Set(i, j, v)
		}
	}
	return d, nil
}

// FromOnsets builds a delay matrix from measured channel onsets instead of
// geometry. It is useful when positions are unknown or unreliable.
func FromOnsets(x *ir.Tensor, sampleRate float64) (*mat.Dense, error) {
	if x.P == 0 || x.M == 0 {
		return nil, &ir.ShapeError{Op: "onsets", Got: []int{x.T, x.P, x.M}, Want: []int{x.T, 1, 1}}
	}
	onsets, err := ir.NewAnalyzer(sampleRate).Onsets(x)
	if err != nil {
		return nil, fmt.Errorf("deadtime: %w", err)
	}
	return mat.NewDense(x.P, x.M, onsets), nil
}
