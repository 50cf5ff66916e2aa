// Package era identifies discrete-time state-space models from impulse
// responses with a randomized Eigensystem Realization Algorithm.
//
// The Markov parameters h_1, h_2, ... fill a block Hankel operator that is
// never formed densely. A randomized range finder builds an orthonormal
// basis Q of its dominant range; the SVD of the small projection QᵀH gives
// the observability factor O = U Σ^{1/2} and the controllability factor
// Σ^{1/2} Vᵀ, from which
//
//	C = first block row of O
//	B = first block column of Σ^{1/2} Vᵀ
//	A = O_up⁺ O_down (or Σ^{-1/2} Uᵀ S U Σ^{1/2} with stability enforced)
//
// The range finder keeps its samples between calls, so a sweep over
// decreasing tolerances refines one basis instead of starting over.
//
// Identifier runs the whole pipeline for a dataset: dead-time extraction,
// reductor construction and the tolerance sweep with adaptive block sizes,
// handing each model and the metrics history to optional sinks.
//
// # Usage
//
//	id := era.NewIdentifier(deadtime.MethodSplit)
//	res, err := id.Run(data, era.ScheduleFromDB(era.DefaultScheduleDB...))
//	if err != nil {
//		return err
//	}
//	for _, st := range res.Steps {
//		fmt.Println(st.Metrics.Order, st.Metrics.RelativeError)
//	}
package era
