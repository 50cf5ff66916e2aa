package deadtime

import (
	"fmt"
	"math"
	"strings"

	"github.com/cwbudde/algo-era/measure/ir"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Method selects a dead-time extraction policy.
type Method int

const (
	// MethodNone leaves the impulse responses untouched.
	MethodNone Method = iota
	// MethodLeastCommon removes the smallest pairwise delay from every channel.
	MethodLeastCommon
	// MethodSplit removes an optimal output+input delay split per channel.
	MethodSplit
)

var methodNames = [...]string{"NONE", "LC", "DTS"}

// String returns the short name used on the command line.
func (m Method) String() string {
	if m < 0 || int(m) >= len(methodNames) {
		return fmt.Sprintf("Method(%d)", int(m))
	}
	return methodNames[m]
}

// ParseMethod parses NONE, LC or DTS (case-insensitive).
func ParseMethod(s string) (Method, error) {
	for k, name := range methodNames {
		if strings.EqualFold(s, name) {
			return Method(k), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown extraction method %q", ErrInvalidParameter, s)
}

// Config controls delay estimation for extraction.
type Config struct {
	SpeedOfSound float64
	// Subsample keeps fractional values from the split solver. The final
	// per-channel shift is always a whole number of samples.
	Subsample bool
	// Onsets estimates delays from measured channel onsets instead of
	// source and receiver geometry.
	Onsets bool
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the settings used by Extract.
func DefaultConfig() Config {
	return Config{
		SpeedOfSound: DefaultSpeedOfSound,
		Subsample:    true,
	}
}

// WithSpeedOfSound sets the propagation speed in m/s.
func WithSpeedOfSound(c float64) Option {
	return func(cfg *Config) {
		if c > 0 {
			cfg.SpeedOfSound = c
		}
	}
}

// WithSubsample toggles fractional split solutions.
func WithSubsample(enabled bool) Option {
	return func(cfg *Config) {
		cfg.Subsample = enabled
	}
}

// WithOnsets estimates delays from the data rather than from positions.
func WithOnsets() Option {
	return func(cfg *Config) {
		cfg.Onsets = true
	}
}

// ApplyOptions applies zero or more options to the default config.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// Extraction is a dead-time removal plan computed once for a measurement
// setup and applied to its impulse responses.
type Extraction struct {
	Method Method
	// Delays holds the estimated whole-sample delay matrix (nil for MethodNone).
	Delays *mat.Dense
	// Removed holds the delay taken out of each channel (nil for MethodNone).
	Removed *mat.Dense
	// Split is set for MethodSplit.
	Split *SplitDelays
}

// Plan estimates delays from geometry and derives the per-channel removal.
func Plan(method Method, receivers, sources ir.Positions, sampleRate float64, opts ...Option) (*Extraction, error) {
	if method == MethodNone {
		return &Extraction{Method: method}, nil
	}
	cfg := ApplyOptions(opts...)
	d, err := Estimate(receivers, sources, cfg.SpeedOfSound, sampleRate, false)
	if err != nil {
		return nil, err
	}
	return planFromDelays(method, d, cfg)
}

// PlanFromDelays derives the per-channel removal from a known delay matrix.
func PlanFromDelays(method Method, d *mat.Dense, opts ...Option) (*Extraction, error) {
	if method == MethodNone {
		return &Extraction{Method: method}, nil
	}
	return planFromDelays(method, d, ApplyOptions(opts...))
}

func planFromDelays(method Method, d *mat.Dense, cfg Config) (*Extraction, error) {
	p, m := d.Dims()
	e := &Extraction{Method: method, Delays: d, Removed: mat.NewDense(p, m, nil)}

	switch method {
	case MethodLeastCommon:
		lc := mat.Min(d)
		if lc < 0 {
			return nil, fmt.Errorf("%w: min delay %v", ErrNegativeDelay, lc)
		}
		lc = math.Floor(lc)
		for i := range p {
			for j := range m {
				e.Removed.Set(i, j, lc)
			}
		}
	case MethodSplit:
		s, err := Split(d, cfg.Subsample)
		if err != nil {
			return nil, err
		}
		e.Split = &s
		for i := range p {
			for j := range m {
				// Snap solver noise so that an exact integer sum is not floored
				// one sample short, and never exceed the pairwise delay.
				v := math.Floor(s.At(i, j) + 1e-9)
				e.Removed.Set(i, j, math.Max(0, math.Min(v, math.Floor(d.At(i, j)))))
			}
		}
	default:
		return nil, fmt.Errorf("%w: method %v", ErrInvalidParameter, method)
	}
	return e, nil
}

// Apply removes the planned dead time from x. MethodNone returns x itself.
func (e *Extraction) Apply(x *ir.Tensor) (*ir.Tensor, error) {
	if e.Method == MethodNone {
		return x, nil
	}
	var neg mat.Dense
	neg.Scale(-1, e.Removed)
	return Shift(x, &neg)
}

// RemovedSamples returns the number of delay samples realized outside the
// state-space model: min(D) per independent path for MethodLeastCommon and
// the sum of all split delays for MethodSplit.
func (e *Extraction) RemovedSamples() float64 {
	switch e.Method {
	case MethodLeastCommon:
		p, m := e.Removed.Dims()
		return e.Removed.At(0, 0) * float64(min(p, m))
	case MethodSplit:
		return floats.Sum(e.Split.Outputs) + floats.Sum(e.Split.Inputs)
	}
	return 0
}

// Extract plans and applies dead-time removal in one step. With WithOnsets
// the delays are measured on x and the positions may be nil.
func Extract(x *ir.Tensor, receivers, sources ir.Positions, sampleRate float64, method Method, opts ...Option) (*ir.Tensor, *Extraction, error) {
	cfg := ApplyOptions(opts...)

	var (
		e   *Extraction
		err error
	)
	switch {
	case method == MethodNone:
		e = &Extraction{Method: method}
	case cfg.Onsets:
		var d *mat.Dense
		if d, err = FromOnsets(x, sampleRate); err != nil {
			return nil, nil, err
		}
		e, err = planFromDelays(method, d, cfg)
	default:
		if len(receivers) != x.P || len(sources) != x.M {
			return nil, nil, &ir.ShapeError{
				Op:   "extract",
				Got:  []int{len(receivers), len(sources)},
				Want: []int{x.P, x.M},
			}
		}
		e, err = Plan(method, receivers, sources, sampleRate, opts...)
	}
	if err != nil {
		return nil, nil, err
	}

	y, err := e.Apply(x)
	if err != nil {
		return nil, nil, err
	}
	return y, e, nil
}
