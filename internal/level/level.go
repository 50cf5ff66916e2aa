// Package level converts between linear amplitude ratios and decibels.
//
// Tolerances, error curves and reverberation decay use the 20·log10
// amplitude convention. PowerToDB covers energy ratios such as Schroeder
// curves.
package level

import "math"

// FromDB converts dB to a linear amplitude ratio.
func FromDB(db float64) float64 {
	return math.Pow(10, db/20)
}

// ToDB converts a linear amplitude ratio to dB.
// Returns -Inf for zero and NaN for negative values.
func ToDB(ratio float64) float64 {
	if ratio < 0 {
		return math.NaN()
	}
	if ratio == 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(ratio)
}

// DecayPerSample returns the per-sample amplitude factor of an exponential
// decay that loses 60 dB in rt60 seconds at the given sample rate.
func DecayPerSample(rt60, sampleRate float64) float64 {
	return FromDB(-60 / (rt60 * sampleRate))
}

// PowerToDB converts a power or energy ratio to dB (10·log10).
// Returns -Inf for zero and NaN for negative values.
func PowerToDB(ratio float64) float64 {
	if ratio < 0 {
		return math.NaN()
	}
	return ToDB(math.Sqrt(ratio))
}
