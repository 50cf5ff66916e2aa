package era

import (
	"fmt"
	"io"
	"log"
	"math"
	"slices"

	"github.com/cwbudde/algo-era/internal/level"
	"github.com/cwbudde/algo-era/linop/rangefinder"
	"gonum.org/v1/gonum/mat"
)

// Config holds reductor settings.
type Config struct {
	// ForceStability pads the Markov parameters with zeros and builds A from
	// the shifted observability basis, which yields a stable A.
	ForceStability bool
	// AllowTranspose realizes the transposed system when there are fewer
	// outputs than inputs.
	AllowTranspose bool
	// Feedthrough is the p×m D matrix. Nil means zero.
	Feedthrough *mat.Dense
	// SamplingTime is stored on every realization.
	SamplingTime float64
	RangeFinder  []rangefinder.Option
	BlockSteps   BlockSteps
	Logger       *log.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the defaults: no stability enforcement, transposed
// formulation allowed and the default block-size steps.
func DefaultConfig() Config {
	return Config{
		AllowTranspose: true,
		SamplingTime:   1,
		BlockSteps:     DefaultBlockSteps(),
	}
}

// WithForceStability toggles stability enforcement.
func WithForceStability(enabled bool) Option {
	return func(cfg *Config) {
		cfg.ForceStability = enabled
	}
}

// WithTranspose toggles the transposed formulation.
func WithTranspose(enabled bool) Option {
	return func(cfg *Config) {
		cfg.AllowTranspose = enabled
	}
}

// WithFeedthrough sets the D matrix.
func WithFeedthrough(d *mat.Dense) Option {
	return func(cfg *Config) {
		cfg.Feedthrough = d
	}
}

// WithSamplingTime sets the sampling time in seconds.
func WithSamplingTime(dt float64) Option {
	return func(cfg *Config) {
		if dt > 0 {
			cfg.SamplingTime = dt
		}
	}
}

// WithRangeFinder appends range finder options.
func WithRangeFinder(opts ...rangefinder.Option) Option {
	return func(cfg *Config) {
		cfg.RangeFinder = append(cfg.RangeFinder, opts...)
	}
}

// WithBlockSteps replaces the adaptive block-size table.
func WithBlockSteps(steps BlockSteps) Option {
	return func(cfg *Config) {
		if len(steps) > 0 {
			cfg.BlockSteps = steps
		}
	}
}

// WithLogger sets the progress logger. It is also handed to the range finder.
func WithLogger(l *log.Logger) Option {
	return func(cfg *Config) {
		cfg.Logger = l
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
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return cfg
}

// BlockStep sets the sampling block size used while the model order is
// below Below.
type BlockStep struct {
	Below     int
	BlockSize int
}

// BlockSteps maps the current model order to the next sampling block size.
// Steps are ordered by Below; orders past the last step use its size.
type BlockSteps []BlockStep

// DefaultBlockSteps returns the empirical table: orders below 50 sample 5
// probes per step, below 100 take 10, below 400 take 50, below 1000 take 100
// and larger orders take 250.
func DefaultBlockSteps() BlockSteps {
	return BlockSteps{
		{Below: 50, BlockSize: 5},
		{Below: 100, BlockSize: 10},
		{Below: 400, BlockSize: 50},
		{Below: 1000, BlockSize: 100},
		{Below: math.MaxInt, BlockSize: 250},
	}
}

// For returns the block size for a model of the given order.
func (s BlockSteps) For(order int) int {
	for _, st := range s {
		if order < st.Below {
			return st.BlockSize
		}
	}
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1].BlockSize
}

// Schedule is a sequence of non-increasing relative error tolerances.
type Schedule []float64

// DefaultScheduleDB lists the default tolerances in dB.
var DefaultScheduleDB = []float64{-1, -3, -6, -9, -12, -15, -18, -21, -24}

// ScheduleFromDB converts tolerances in dB to linear amplitude ratios.
func ScheduleFromDB(db ...float64) Schedule {
	s := make(Schedule, len(db))
	for i, v := range db {
		s[i] = level.FromDB(v)
	}
	return s
}

// DB returns the schedule in dB.
func (s Schedule) DB() []float64 {
	out := make([]float64, len(s))
	for i, v := range s {
		out[i] = level.ToDB(v)
	}
	return out
}

// Validate checks that the schedule is non-empty, positive and
// non-increasing.
func (s Schedule) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty tolerance schedule", ErrConfig)
	}
	for i, v := range s {
		if !(v > 0) {
			return fmt.Errorf("%w: tolerance %d is %g, want > 0", ErrConfig, i, v)
		}
	}
	if !slices.IsSortedFunc(s, func(a, b float64) int {
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		}
		return 0
	}) {
		return fmt.Errorf("%w: tolerances must be non-increasing: %v", ErrConfig, []float64(s))
	}
	return nil
}
