// Package dataset provides the impulse-response data consumed by the
// identification pipeline.
//
// A Source returns Data by scenario name: the p×m impulse-response tensor,
// its sample rate and the receiver and source positions. Memory serves
// preloaded data; Scenarios renders synthetic rooms with Shoebox. Names
// ending in "_RED" thin a source grid to every second row and column.
//
// # Usage
//
//	d, err := dataset.DefaultScenarios().Fetch("S1_RED")
//	if err != nil {
//		return err
//	}
//	fmt.Println(d.IR.P, d.IR.M) // 4 4
package dataset
