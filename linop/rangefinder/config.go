package rangefinder

import (
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"strings"
)

// QRMethod selects the incremental orthogonalization.
type QRMethod int

const (
	// GramSchmidt orthogonalizes column by column with reorthogonalization.
	GramSchmidt QRMethod = iota
	// ShiftedCholQR orthogonalizes whole blocks with shifted Cholesky QR.
	ShiftedCholQR
)

var qrMethodNames = [...]string{"gram_schmidt", "shifted_chol_qr"}

func (m QRMethod) String() string {
	if m < 0 || int(m) >= len(qrMethodNames) {
		return fmt.Sprintf("QRMethod(%d)", int(m))
	}
	return qrMethodNames[m]
}

// ParseQRMethod parses gram_schmidt or shifted_chol_qr.
func ParseQRMethod(s string) (QRMethod, error) {
	for k, name := range qrMethodNames {
		if strings.EqualFold(s, name) {
			return QRMethod(k), nil
		}
	}
	return 0, fmt.Errorf("rangefinder: unknown QR method %q", s)
}

// Config holds range finder settings.
type Config struct {
	BlockSize       int
	PowerIterations int
	QRMethod        QRMethod
	// OrthTol is the reorthogonalization threshold.
	OrthTol float64
	// MaxIter bounds reorthogonalization passes per column or block.
	MaxIter int
	// MaxSamples bounds the total number of probes. Zero means the smaller
	// operator dimension.
	MaxSamples int
	Seed       uint64
	// Source overrides the generator derived from Seed.
	Source rand.Source
	Logger *log.Logger
}

// Option mutates a Config.
type Option func(*Config)

// DefaultConfig returns the defaults: blocks of 5 probes, two power
// iterations and Gram-Schmidt orthogonalization.
func DefaultConfig() Config {
	return Config{
		BlockSize:       5,
		PowerIterations: 2,
		QRMethod:        GramSchmidt,
		OrthTol:         1e-6,
		MaxIter:         10,
	}
}

// WithBlockSize sets the number of probes drawn per step.
func WithBlockSize(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.BlockSize = n
		}
	}
}

// WithPowerIterations sets the number of power iterations.
func WithPowerIterations(q int) Option {
	return func(cfg *Config) {
		if q >= 0 {
			cfg.PowerIterations = q
		}
	}
}

// WithQRMethod sets the orthogonalization method.
func WithQRMethod(m QRMethod) Option {
	return func(cfg *Config) {
		cfg.QRMethod = m
	}
}

// WithOrthTol sets the reorthogonalization threshold and pass limit.
func WithOrthTol(tol float64, maxIter int) Option {
	return func(cfg *Config) {
		if tol > 0 {
			cfg.OrthTol = tol
		}
		if maxIter > 0 {
			cfg.MaxIter = maxIter
		}
	}
}

// WithMaxSamples bounds the total number of probes.
func WithMaxSamples(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.MaxSamples = n
		}
	}
}

// WithSeed seeds the default random source.
func WithSeed(seed uint64) Option {
	return func(cfg *Config) {
		cfg.Seed = seed
	}
}

// WithSource sets the random source used for probes.
func WithSource(src rand.Source) Option {
	return func(cfg *Config) {
		cfg.Source = src
	}
}

// WithLogger sets the progress logger.
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
	if cfg.Source == nil {
		cfg.Source = rand.NewPCG(cfg.Seed, cfg.Seed)
	}
	if cfg.Logger == nil {
		cfg.Logger = log.New(io.Discard, "", 0)
	}
	return cfg
}
