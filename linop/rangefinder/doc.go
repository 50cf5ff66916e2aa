// Package rangefinder implements an adaptive randomized range finder with
// power iterations and a leave-one-out error estimator.
//
// A Finder draws blocks of Gaussian probes through an operator A, pushes
// them through q power iterations (A Aᵀ) and orthogonalizes every level
// incrementally. After each block the leave-one-out estimate is compared to
// the requested relative tolerance. State persists between calls, so a
// sweep over decreasing tolerances only draws the additional probes it
// needs:
//
//	f := rangefinder.New(op, rangefinder.WithSeed(0))
//	for _, tol := range []float64{1e-1, 1e-2, 1e-3} {
//		q, err := f.Find(tol)
//		...
//	}
//
// Running out of samples is reported with a *StagnationError next to a
// usable best-effort basis.
package rangefinder
