package ir

import (
	"errors"
	"math"
	"slices"

	"github.com/cwbudde/algo-era/internal/level"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Errors returned by IR analysis functions.
var (
	ErrEmptyIR           = errors.New("ir: impulse response is empty")
	ErrInvalidSampleRate = errors.New("ir: sample rate must be positive")
	ErrInvalidThreshold  = errors.New("ir: onset threshold must be in (0, 1]")
	ErrNoDecay           = errors.New("ir: insufficient decay for RT calculation")
)

// DefaultOnsetThreshold is the onset level relative to the channel peak (-20 dB).
const DefaultOnsetThreshold = 0.1

// Metrics holds per-channel impulse response analysis results.
type Metrics struct {
	Onset     int     // first sample reaching the onset threshold
	PeakIndex int     // sample index of the absolute maximum
	Energy    float64 // sum of squared samples
	RT60      float64 // reverberation time in seconds (T30, else T20; 0 if undetermined)
	EDT       float64 // early decay time in seconds
}

// Analyzer computes per-channel metrics of multi-channel impulse responses.
type Analyzer struct {
	SampleRate float64
	// Threshold is the onset level relative to the peak amplitude.
	Threshold float64
}

// NewAnalyzer creates an IR analyzer with the given sample rate.
func NewAnalyzer(sampleRate float64) *Analyzer {
	return &Analyzer{SampleRate: sampleRate, Threshold: DefaultOnsetThreshold}
}

func (a *Analyzer) validate() error {
	if a.SampleRate <= 0 {
		return ErrInvalidSampleRate
	}
	if a.Threshold <= 0 || a.Threshold > 1 {
		return ErrInvalidThreshold
	}
	return nil
}

// Analyze computes the metrics of a single channel.
func (a *Analyzer) Analyze(ir []float64) (Metrics, error) {
	if len(ir) == 0 {
		return Metrics{}, ErrEmptyIR
	}
	if err := a.validate(); err != nil {
		return Metrics{}, err
	}
	return a.analyze(ir), nil
}

func (a *Analyzer) analyze(ir []float64) Metrics {
	peakIdx := findPeak(ir)
	m := Metrics{
		Onset:     findImpulseStart(ir, a.Threshold),
		PeakIndex: peakIdx,
	}
	for _, v := range ir {
		m.Energy += v * v
	}

	schroeder := schroederIntegral(ir[peakIdx:])
	m.EDT = a.reverbTime(schroeder, 0, -10)
	if rt := a.reverbTime(schroeder, -5, -35); rt > 0 {
		m.RT60 = rt
	} else {
		m.RT60 = a.reverbTime(schroeder, -5, -25)
	}
	return m
}

// AnalyzeTensor computes the metrics of every channel, indexed [output][input].
func (a *Analyzer) AnalyzeTensor(x *Tensor) ([][]Metrics, error) {
	if x.T == 0 {
		return nil, ErrEmptyIR
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	out := make([][]Metrics, x.P)
	buf := make([]float64, x.T)
	for i := range x.P {
		out[i] = make([]Metrics, x.M)
		for j := range x.M {
			out[i][j] = a.analyze(x.Channel(buf, i, j))
		}
	}
	return out, nil
}

// Onsets returns the onset sample of every channel as a row-major p×m slice.
// Channels without energy report onset 0.
func (a *Analyzer) Onsets(x *Tensor) ([]float64, error) {
	if x.T == 0 {
		return nil, ErrEmptyIR
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	out := make([]float64, x.P*x.M)
	buf := make([]float64, x.T)
	for i := range x.P {
		for j := range x.M {
			out[i*x.M+j] = float64(findImpulseStart(x.Channel(buf, i, j), a.Threshold))
		}
	}
	return out, nil
}

// SchroederIntegral computes the Schroeder backward integration of the
// squared impulse response, returned in dB.
//
// S(t) = 10*log10( ∫_t^∞ h²(τ) dτ / ∫_0^∞ h²(τ) dτ )
func (a *Analyzer) SchroederIntegral(ir []float64) ([]float64, error) {
	if len(ir) == 0 {
		return nil, ErrEmptyIR
	}
	return schroederIntegral(ir), nil
}

// RT60 computes the reverberation time of one channel.
// Uses T30 extrapolation when possible, falls back to T20.
func (a *Analyzer) RT60(ir []float64) (float64, error) {
	if len(ir) == 0 {
		return 0, ErrEmptyIR
	}
	if a.SampleRate <= 0 {
		return 0, ErrInvalidSampleRate
	}

	schroeder := schroederIntegral(ir)
	if rt := a.reverbTime(schroeder, -5, -35); rt > 0 {
		return rt, nil
	}
	if rt := a.reverbTime(schroeder, -5, -25); rt > 0 {
		return rt, nil
	}
	return 0, ErrNoDecay
}

// schroederFloor bounds the Schroeder curve where the remaining energy
// vanishes.
const schroederFloor = -200

func schroederIntegral(ir []float64) []float64 {
	out := make([]float64, len(ir))
	var tail float64
	for i := len(ir) - 1; i >= 0; i-- {
		tail += ir[i] * ir[i]
		out[i] = tail
	}
	total := out[0]
	if total <= 0 {
		return out
	}
	for i, e := range out {
		out[i] = math.Max(level.PowerToDB(e/total), schroederFloor)
	}
	return out
}

// reverbTime fits a line to the Schroeder curve between startDB and endDB
// and extrapolates it to -60 dB. It returns 0 when the curve does not span
// the range or does not decay.
func (a *Analyzer) reverbTime(schroeder []float64, startDB, endDB float64) float64 {
	if a.SampleRate <= 0 {
		return 0
	}
	start := slices.IndexFunc(schroeder, func(v float64) bool { return v <= startDB })
	if start < 0 {
		return 0
	}
	end := slices.IndexFunc(schroeder[start:], func(v float64) bool { return v <= endDB })
	if end < 1 {
		return 0
	}
	ys := schroeder[start : start+end+1]
	xs := make([]float64, len(ys))
	floats.Span(xs, 0, float64(len(ys)-1))

	_, slope := stat.LinearRegression(xs, ys, nil, false)
	if slope >= 0 || math.IsNaN(slope) {
		return 0
	}
	return -60 / (slope * a.SampleRate)
}

// absPeak returns the index and magnitude of the largest absolute sample.
func absPeak(ir []float64) (int, float64) {
	idx, peak := 0, 0.0
	for i, v := range ir {
		if av := math.Abs(v); av > peak {
			idx, peak = i, av
		}
	}
	return idx, peak
}

func findPeak(ir []float64) int {
	idx, _ := absPeak(ir)
	return idx
}

// findImpulseStart returns the first sample reaching thresholdRatio of the
// peak magnitude, or 0 for a silent channel.
func findImpulseStart(ir []float64, thresholdRatio float64) int {
	_, peak := absPeak(ir)
	if peak == 0 {
		return 0
	}
	threshold := peak * thresholdRatio
	return max(slices.IndexFunc(ir, func(v float64) bool { return math.Abs(v) >= threshold }), 0)
}
