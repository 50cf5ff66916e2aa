package deadtime

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-era/measure/ir"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// simplexTol bounds the reduced cost at which the simplex iteration stops.
const simplexTol = 1e-10

// SplitDelays decomposes a delay matrix into per-output and per-input parts.
type SplitDelays struct {
	Outputs []float64 // length p
	Inputs  []float64 // length m
	// Objective is the maximal sum of all split delays found by the solver,
	// before truncation and normalization.
	Objective float64
}

// At returns the combined delay Outputs[i] + Inputs[j].
func (s SplitDelays) At(i, j int) float64 {
	return s.Outputs[i] + s.Inputs[j]
}

// Split solves
//
//	maximize   sum(do) + sum(di)
//	subject to do[i] + di[j] <= d[i,j],  do, di >= 0
//
// for a non-negative p×m delay matrix d. Results are truncated to whole
// samples unless subsample is set. The vector along the longer axis (outputs
// if p > m, inputs otherwise) is then shifted so that its minimum is zero and
// the shift is added to the other vector. Pairwise sums are preserved by the
// normalization.
func Split(d mat.Matrix, subsample bool) (SplitDelays, error) {
	p, m := d.Dims()
	if p == 0 || m == 0 {
		return SplitDelays{}, &ir.ShapeError{Op: "split delays", Got: []int{p, m}, Want: []int{1, 1}}
	}
	for i := range p {
		for j := range m {
			if v := d.At(i, j); v < 0 || math.IsNaN(v) {
				return SplitDelays{}, fmt.Errorf("%w: d[%d,%d] = %v", ErrNegativeDelay, i, j, v)
			}
		}
	}

	// The first variable block runs along the longer axis, which keeps each
	// group of constraint rows contiguous.
	outputsFirst := p > m
	na, nb := m, p
	if outputsFirst {
		na, nb = p, m
	}
	at := func(a, b int) float64 {
		if outputsFirst {
			return d.At(a, b)
		}
		return d.At(b, a)
	}

	// Standard form with one slack per constraint:
	// x_a + x_{na+b} + s_{a*nb+b} = d(a,b).
	rows := na * nb
	vars := na + nb
	cols := vars + rows
	A := mat.NewDense(rows, cols, nil)
	b := make([]float64, rows)
	c := make([]float64, cols)
	for k := range vars {
		c[k] = -1
	}
	basis := make([]int, rows)
	for a := range na {
		for bb := range nb {
			row := a*nb + bb
			A.Set(row, a, 1)
			A.Set(row, na+bb, 1)
			A.Set(row, vars+row, 1)
			b[row] = at(a, bb)
			basis[row] = vars + row
		}
	}

	optF, x, err := lp.Simplex(c, A, b, simplexTol, basis)
	if err != nil {
		return SplitDelays{}, fmt.Errorf("%w: %dx%d delays: %w", ErrOptimization, p, m, err)
	}

	first := make([]float64, na)
	second := make([]float64, nb)
	for k := range first {
		first[k] = math.Max(x[k], 0)
	}
	for k := range second {
		second[k] = math.Max(x[na+k], 0)
	}
	if !subsample {
		truncate(first)
		truncate(second)
	}

	shift := floats.Min(first)
	floats.AddConst(-shift, first)
	floats.AddConst(shift, second)

	s := SplitDelays{Objective: -optF}
	if outputsFirst {
		s.Outputs, s.Inputs = first, second
	} else {
		s.Outputs, s.Inputs = second, first
	}
	return s, nil
}

func truncate(v []float64) {
	for k := range v {
		v[k] = math.Trunc(v[k])
	}
}
