// Package deadtime estimates, splits and removes acoustic propagation delays
// from multi-channel impulse responses.
//
// A source-receiver pair (i, j) contributes a pure delay D[i,j] samples before
// any energy arrives. Removing it before identification lowers the state
// dimension needed to represent the remaining dynamics. Three policies exist:
//
//   - None keeps the data as is.
//   - LeastCommon removes min(D) from every channel.
//   - Split solves a linear program for output delays do and input delays di
//     with do[i]+di[j] <= D[i,j] and removes do[i]+di[j] from channel (i, j).
//     A split dead time can be realized outside the state-space model by
//     per-output and per-input delay lines, so it costs no states.
//
// # Usage
//
//	x, plan, err := deadtime.Extract(ir, receivers, sources, fs, deadtime.Split)
//	if err != nil {
//		return err
//	}
//	fmt.Println("removed samples:", plan.RemovedSamples())
package deadtime
