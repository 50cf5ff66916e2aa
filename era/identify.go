package era

import (
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cwbudde/algo-era/dataset"
	"github.com/cwbudde/algo-era/deadtime"
	"github.com/cwbudde/algo-era/linop/rangefinder"
)

// Metrics are the error signals of one tolerance step.
type Metrics struct {
	Tolerance float64
	Order     int
	Samples   int
	BlockSize int
	// TrueError is ‖h - ĥ‖_F between the reference and the simulated
	// impulse response.
	TrueError float64
	// RelativeError is TrueError divided by the reference norm.
	RelativeError float64
	// EstimatedError is the range finder's estimate relative to the
	// weighted Hankel norm.
	EstimatedError float64
	// KungBound is the last Kung bound relative to the reference norm.
	KungBound        float64
	DegreesOfFreedom float64
	Stagnated        bool
	Elapsed          time.Duration
}

// Step is the outcome of one tolerance.
type Step struct {
	Realization *Realization
	Metrics     Metrics
}

// Dims returns the output and input count of the identified system.
func (r *Reductor) Dims() (p, m int) { return r.p, r.m }

// Evaluate reduces at tol, simulates the realization against the reference
// impulse response and adapts the block size for the next call. Running out
// of samples is logged and flagged in the metrics, not returned.
func (r *Reductor) Evaluate(tol float64) (Step, error) {
	start := time.Now()
	rom, err := r.Reduce(tol)
	stagnated := errors.Is(err, rangefinder.ErrStagnation)
	if err != nil && !stagnated {
		return Step{}, fmt.Errorf("era: tolerance %g: %w", tol, err)
	}
	if stagnated {
		r.logger.Printf("%v", err)
	}

	sim, err := Simulate(rom, r.reference.T)
	if err != nil {
		return Step{}, err
	}
	trueErr, err := r.reference.DistanceTo(sim)
	if err != nil {
		return Step{}, err
	}

	norm := r.reference.Norm()
	met := Metrics{
		Tolerance:        tol,
		Order:            rom.Order(),
		Samples:          r.Samples(),
		BlockSize:        r.BlockSize(),
		TrueError:        trueErr,
		RelativeError:    ratio(trueErr, norm),
		EstimatedError:   r.RelativeEstimatedError(),
		KungBound:        ratio(r.KungBound(), norm),
		DegreesOfFreedom: DegreesOfFreedom(rom.Order(), r.p, r.m, 0),
		Stagnated:        stagnated,
		Elapsed:          time.Since(start),
	}
	r.logger.Printf("order %d, elapsed %.1fs, est. error %.5f, rel. error %.5f",
		met.Order, met.Elapsed.Seconds(), met.EstimatedError, met.RelativeError)

	if bs := r.cfg.BlockSteps.For(met.Order); bs > 0 {
		r.SetBlockSize(bs)
	}
	return Step{Realization: rom, Metrics: met}, nil
}

// ReduceAcrossSchedule evaluates every tolerance of sched in order.
func (r *Reductor) ReduceAcrossSchedule(sched Schedule) ([]Step, error) {
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	steps := make([]Step, 0, len(sched))
	for _, tol := range sched {
		st, err := r.Evaluate(tol)
		if err != nil {
			return steps, err
		}
		steps = append(steps, st)
	}
	return steps, nil
}

func ratio(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// Run describes an identification run to sinks.
type Run struct {
	Name       string
	Method     deadtime.Method
	SampleRate float64
	T, P, M    int
	// Norm is the Frobenius norm of the dead-time compensated data.
	Norm float64
	// Removed is the dead-time sample count carried outside the model.
	Removed float64
}

// ModelSink stores realizations.
type ModelSink interface {
	SaveModel(run Run, rom *Realization, m Metrics) error
}

// MetricsSink stores the metrics history of a run. It is called after every
// step with all metrics so far.
type MetricsSink interface {
	SaveMetrics(run Run, history []Metrics) error
}

// Identifier drives a full identification: dead-time extraction, Hankel
// operator construction and the tolerance sweep.
type Identifier struct {
	Method deadtime.Method
	// DeadTime configures delay estimation.
	DeadTime []deadtime.Option
	// Reductor configures the reductor. Feedthrough and sampling time are
	// taken from the data.
	Reductor []Option
	Models   ModelSink
	Metrics  MetricsSink
	Logger   *log.Logger
}

// NewIdentifier returns an identifier using the given dead-time policy.
func NewIdentifier(method deadtime.Method, opts ...Option) *Identifier {
	return &Identifier{Method: method, Reductor: opts}
}

// Result is the outcome of Identifier.Run.
type Result struct {
	Run        Run
	Extraction *deadtime.Extraction
	Steps      []Step
}

// Run identifies models of d at every tolerance of sched. Sinks are fed
// after each step, so an error leaves earlier results stored.
func (id *Identifier) Run(d *dataset.Data, sched Schedule) (*Result, error) {
	if d == nil || d.IR == nil {
		return nil, fmt.Errorf("%w: no data", ErrConfig)
	}
	if d.IR.T < 2 {
		return nil, fmt.Errorf("%w: impulse response needs at least 2 samples, got %d", ErrConfig, d.IR.T)
	}
	if err := sched.Validate(); err != nil {
		return nil, err
	}
	logger := id.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	x, plan, err := deadtime.Extract(d.IR, d.Receivers, d.Sources, d.SampleRate, id.Method, id.DeadTime...)
	if err != nil {
		return nil, err
	}
	run := Run{
		Name:       d.Name,
		Method:     id.Method,
		SampleRate: d.SampleRate,
		T:          x.T,
		P:          x.P,
		M:          x.M,
		Norm:       x.Norm(),
		Removed:    plan.RemovedSamples(),
	}
	logger.Printf("%s: %d×%d channels, %d samples, dead time %s removed %.0f samples",
		run.Name, run.P, run.M, run.T, run.Method, run.Removed)

	opts := append([]Option{WithLogger(logger)}, id.Reductor...)
	opts = append(opts, WithFeedthrough(x.Block(0)))
	if d.SampleRate > 0 {
		opts = append(opts, WithSamplingTime(1/d.SampleRate))
	}
	red, err := NewReductor(x.Slice(1, x.T), opts...)
	if err != nil {
		return nil, err
	}

	res := &Result{Run: run, Extraction: plan}
	history := make([]Metrics, 0, len(sched))
	for _, tol := range sched {
		st, err := red.Evaluate(tol)
		if err != nil {
			return res, err
		}
		st.Metrics.DegreesOfFreedom += run.Removed
		res.Steps = append(res.Steps, st)
		history = append(history, st.Metrics)

		if id.Models != nil {
			if err := id.Models.SaveModel(run, st.Realization, st.Metrics); err != nil {
				return res, fmt.Errorf("era: saving model: %w", err)
			}
		}
		if id.Metrics != nil {
			if err := id.Metrics.SaveMetrics(run, history); err != nil {
				return res, fmt.Errorf("era: saving metrics: %w", err)
			}
		}
	}
	return res, nil
}
