package rangefinder

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// updateEstimate recomputes the leave-one-out error estimate and keeps the
// running minimum, so the reported estimate never increases.
//
// The estimate is taken on level 0, where y0 = q·r holds exactly. Power
// iterations only sharpen the basis Find returns, so the level-0 estimate
// is an upper estimate for it. For every sample y0_i it measures how well
// the basis without direction i predicts y0_i:
//
//	loo_i² = ‖y0_i - q qᵀ y0_i‖² + (aᵀw)² / ‖a‖²,  w = qᵀ y0_i,  rᵀa = e_i
//
// The second term restores the component of y0_i along the direction that
// only sample i contributes. The estimate is sqrt(mean_i loo_i²).
func (f *Finder) updateEstimate() {
	lv := f.levels[0]
	r, s := lv.q.Dims()

	// A complete basis reproduces every sample exactly.
	rank := 0
	for _, d := range lv.dep {
		if !d {
			rank++
		}
	}
	if rank == r {
		f.estimate = 0
		return
	}

	var w, resid mat.Dense
	w.Mul(lv.q.T(), f.y0)
	resid.Mul(lv.q, &w)
	resid.Sub(f.y0, &resid)

	a := make([]float64, s)
	wi := make([]float64, s)
	col := make([]float64, r)
	var sum float64
	for i := range s {
		mat.Col(col, i, &resid)
		loo := floats.Dot(col, col)
		if solveLeaveOneOut(a, lv.r, lv.dep, i) {
			mat.Col(wi, i, &w)
			aw := floats.Dot(a, wi)
			loo += aw * aw / floats.Dot(a, a)
		}
		sum += loo
	}
	f.estimate = math.Min(f.estimate, math.Sqrt(sum/float64(s)))
}

// solveLeaveOneOut solves rᵀa = e_i by forward substitution. It returns
// false when a dependent column absorbs the withheld direction, in which
// case removing sample i does not shrink the spanned space.
func solveLeaveOneOut(a []float64, r *mat.Dense, dep []bool, i int) bool {
	clear(a)
	for k := i; k < len(a); k++ {
		num := 0.0
		if k == i {
			num = 1
		}
		for l := i; l < k; l++ {
			num -= r.At(l, k) * a[l]
		}
		if dep[k] {
			if num != 0 {
				return false
			}
			continue
		}
		a[k] = num / r.At(k, k)
	}
	return true
}
