// Package ir holds multi-channel impulse response data and per-channel
// analysis used ahead of system identification.
//
// A Tensor stores samples indexed [time, output, input]; Positions holds the
// receiver or source coordinates paired with the output or input channels.
// The Analyzer derives per-channel onsets (first arrival above a level
// relative to the peak), peaks, energy and Schroeder-based decay times:
//
//   - Onset: first sample within Threshold of the peak amplitude (default -20 dB)
//   - RT60: reverberation time from the T30 slope, falling back to T20
//   - EDT: early decay time (0 to -10 dB)
//
// # Usage
//
//	x := ir.NewTensor(T, p, m)
//	onsets, err := ir.NewAnalyzer(48000).Onsets(x) // row-major p×m
package ir
