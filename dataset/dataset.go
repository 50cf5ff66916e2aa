package dataset

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/cwbudde/algo-era/measure/ir"
)

// Errors returned by sources.
var (
	ErrNotFound = errors.New("dataset: not found")
	ErrInvalid  = errors.New("dataset: invalid data")
)

// ReducedSuffix marks a scenario whose source grid is thinned by ReduceGrid.
const ReducedSuffix = "_RED"

// Data is one measured setup: the impulse responses of p receivers to m
// sources together with the positions that produced them.
type Data struct {
	Name       string
	IR         *ir.Tensor
	SampleRate float64
	Receivers  ir.Positions
	Sources    ir.Positions
}

// Validate checks that the positions match the tensor's channels.
func (d *Data) Validate() error {
	if d.IR == nil || d.IR.T == 0 {
		return fmt.Errorf("%w: %s: empty impulse response", ErrInvalid, d.Name)
	}
	if d.SampleRate <= 0 {
		return fmt.Errorf("%w: %s: sample rate %g", ErrInvalid, d.Name, d.SampleRate)
	}
	if len(d.Receivers) != d.IR.P || len(d.Sources) != d.IR.M {
		return &ir.ShapeError{
			Op:   d.Name + " positions",
			Got:  []int{len(d.Receivers), len(d.Sources)},
			Want: []int{d.IR.P, d.IR.M},
		}
	}
	for _, ps := range []ir.Positions{d.Receivers, d.Sources} {
		if _, err := ps.Dim(); err != nil {
			return err
		}
	}
	return nil
}

// Source fetches datasets by scenario name.
type Source interface {
	Fetch(name string) (*Data, error)
}

// Memory is a Source over preloaded data. Names ending in ReducedSuffix
// are not resolved; register the reduced data explicitly.
type Memory map[string]*Data

// Fetch returns the named data.
func (m Memory) Fetch(name string) (*Data, error) {
	d, ok := m[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return d, nil
}

// Names returns the registered names in sorted order.
func (m Memory) Names() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// ReduceGrid keeps every second source in both directions of a rows×cols
// source grid stored row-major, a quarter of the sources for even sizes.
func ReduceGrid(d *Data, rows, cols int) (*Data, error) {
	if rows <= 0 || cols <= 0 || rows*cols != d.IR.M || len(d.Sources) != d.IR.M {
		return nil, &ir.ShapeError{
			Op:   "reduce grid",
			Got:  []int{d.IR.M, len(d.Sources)},
			Want: []int{rows * cols, rows * cols},
		}
	}

	var keep []int
	for r := 0; r < rows; r += 2 {
		for c := 0; c < cols; c += 2 {
			keep = append(keep, r*cols+c)
		}
	}

	x := ir.NewTensor(d.IR.T, d.IR.P, len(keep))
	for t := range x.T {
		for i := range x.P {
			for k, j := range keep {
				x.Set(t, i, k, d.IR.At(t, i, j))
			}
		}
	}
	sources := make(ir.Positions, len(keep))
	for k, j := range keep {
		sources[k] = append([]float64(nil), d.Sources[j]...)
	}

	name := d.Name
	if !strings.HasSuffix(name, ReducedSuffix) {
		name += ReducedSuffix
	}
	return &Data{
		Name:       name,
		IR:         x,
		SampleRate: d.SampleRate,
		Receivers:  d.Receivers,
		Sources:    sources,
	}, nil
}

// Grid returns rows×cols points in the plane z = origin[2], row-major,
// spaced dx along x and dy along y.
func Grid(origin [3]float64, rows, cols int, dx, dy float64) ir.Positions {
	out := make(ir.Positions, 0, rows*cols)
	for r := range rows {
		for c := range cols {
			out = append(out, []float64{
				origin[0] + float64(c)*dx,
				origin[1] + float64(r)*dy,
				origin[2],
			})
		}
	}
	return out
}

// Line returns n points starting at origin and spaced by step.
func Line(origin, step [3]float64, n int) ir.Positions {
	out := make(ir.Positions, n)
	for i := range n {
		f := float64(i)
		out[i] = []float64{origin[0] + f*step[0], origin[1] + f*step[1], origin[2] + f*step[2]}
	}
	return out
}
