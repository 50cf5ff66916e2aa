package rangefinder

import (
	"errors"
	"fmt"
	"log"
	"math"
	"math/rand/v2"

	"github.com/cwbudde/algo-era/linop"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ErrStagnation is the error kind returned when the sample budget runs out
// before the tolerance is met.
var ErrStagnation = errors.New("rangefinder: tolerance not reached")

// StagnationError reports a tolerance that could not be met. The basis
// returned alongside it is still usable.
type StagnationError struct {
	Tol      float64
	Estimate float64
	Samples  int
}

func (e *StagnationError) Error() string {
	return fmt.Sprintf("rangefinder: tolerance %g not reached after %d samples (relative estimate %g)",
		e.Tol, e.Samples, e.Estimate)
}

func (e *StagnationError) Unwrap() error { return ErrStagnation }

// normer is implemented by operators that know their Frobenius norm.
type normer interface {
	FrobeniusNorm() float64
}

// level is the basis of one power-iteration level: y_i = q_i · r_i with
// r_i upper triangular. Columns flagged dependent are zero in q.
type level struct {
	q   *mat.Dense
	r   *mat.Dense
	dep []bool
}

// Finder builds an orthonormal basis approximating the range of an operator.
// Its state persists across Find calls, so a sweep over decreasing
// tolerances keeps refining the same basis. A Finder is not safe for
// concurrent use.
type Finder struct {
	op     linop.Operator
	probes linop.ProbeSource
	orth   orthogonalizer
	src    rand.Source
	logger *log.Logger

	blockSize  int
	powerIters int
	maxSamples int

	levels []level
	y0     *mat.Dense // level-0 samples, r×s
	norm   float64

	estimate float64 // running minimum of the absolute estimate
	samples  int
}

// New returns a range finder for op. Probes come from linop.ProbesFor, so
// operators with a structured sampler use it.
func New(op linop.Operator, opts ...Option) *Finder {
	cfg := ApplyOptions(opts...)
	r, n := op.Dims()

	f := &Finder{
		op:         op,
		probes:     linop.ProbesFor(op),
		src:        cfg.Source,
		logger:     cfg.Logger,
		blockSize:  cfg.BlockSize,
		powerIters: cfg.PowerIterations,
		maxSamples: cfg.MaxSamples,
		levels:     make([]level, cfg.PowerIterations+1),
		estimate:   math.Inf(1),
	}
	if f.maxSamples <= 0 {
		f.maxSamples = min(r, n)
	}
	switch cfg.QRMethod {
	case ShiftedCholQR:
		f.orth = shiftedCholQR{tol: cfg.OrthTol, maxIter: cfg.MaxIter}
	default:
		f.orth = gramSchmidt{tol: cfg.OrthTol, maxIter: cfg.MaxIter}
	}
	if nm, ok := op.(normer); ok {
		f.norm = nm.FrobeniusNorm()
	}
	return f
}

// BlockSize returns the number of probes drawn per step.
func (f *Finder) BlockSize() int { return f.blockSize }

// SetBlockSize changes the number of probes drawn per step.
func (f *Finder) SetBlockSize(n int) {
	if n > 0 {
		f.blockSize = n
	}
}

// Samples returns the number of probes drawn so far.
func (f *Finder) Samples() int { return f.samples }

// Norm returns the Frobenius norm used to normalize the estimate. Operators
// without a known norm get the estimate ‖AΩ‖_F/√s from the samples.
func (f *Finder) Norm() float64 { return f.norm }

// EstimateError returns the current absolute leave-one-out estimate.
func (f *Finder) EstimateError() float64 { return f.estimate }

// RelativeError returns EstimateError divided by Norm.
func (f *Finder) RelativeError() float64 {
	if f.norm == 0 {
		if f.samples > 0 {
			return 0
		}
		return math.Inf(1)
	}
	return f.estimate / f.norm
}

// Find draws probes until the relative error estimate is at most tol or the
// sample budget is spent, and returns the basis of the last power-iteration
// level. On budget exhaustion the basis is returned with a
// *StagnationError.
func (f *Finder) Find(tol float64) (*mat.Dense, error) {
	for f.samples == 0 || f.RelativeError() > tol {
		if f.samples >= f.maxSamples {
			return f.Basis(), &StagnationError{Tol: tol, Estimate: f.RelativeError(), Samples: f.samples}
		}
		n := min(f.blockSize, f.maxSamples-f.samples)
		f.logger.Printf("taking %d samples", n)
		if err := f.extend(n); err != nil {
			return nil, err
		}
		f.updateEstimate()
	}
	return f.Basis(), nil
}

// FindRank draws probes until the basis holds at least n independent
// columns or the sample budget is spent. The caller checks the column
// count of the result.
func (f *Finder) FindRank(n int) (*mat.Dense, error) {
	for f.Rank() < n && f.samples < f.maxSamples {
		k := min(max(f.blockSize, n-f.Rank()), f.maxSamples-f.samples)
		f.logger.Printf("taking %d samples", k)
		if err := f.extend(k); err != nil {
			return nil, err
		}
		f.updateEstimate()
	}
	return f.Basis(), nil
}

// Rank returns the number of independent columns in the basis.
func (f *Finder) Rank() int {
	n := 0
	for _, d := range f.levels[f.powerIters].dep {
		if !d {
			n++
		}
	}
	return n
}

// Basis returns the orthonormal basis of the last level without dependent
// columns. It is nil before the first Find.
func (f *Finder) Basis() *mat.Dense {
	lv := f.levels[f.powerIters]
	if lv.q == nil {
		return nil
	}
	keep := make([]int, 0, len(lv.dep))
	for j, d := range lv.dep {
		if !d {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return nil
	}
	r, _ := lv.q.Dims()
	out := mat.NewDense(r, len(keep), nil)
	col := make([]float64, r)
	for k, j := range keep {
		out.SetCol(k, mat.Col(col, j, lv.q))
	}
	return out
}

// extend draws n probes and pushes them through every power-iteration level.
func (f *Finder) extend(n int) error {
	y, _, err := f.probes.Sample(f.src, n)
	if err != nil {
		return fmt.Errorf("rangefinder: sampling: %w", err)
	}
	f.y0 = appendCols(f.y0, y)
	if f.norm == 0 {
		f.norm = mat.Norm(f.y0, 2) / math.Sqrt(float64(f.samples+n))
	}

	for i := range f.levels {
		if i > 0 {
			v, err := f.op.ApplyAdjoint(f.levels[i-1].powerInput(y, f.samples))
			if err != nil {
				return fmt.Errorf("rangefinder: power iteration %d: %w", i, err)
			}
			if y, err = f.op.Apply(v); err != nil {
				return fmt.Errorf("rangefinder: power iteration %d: %w", i, err)
			}
		}
		f.levels[i].push(f.orth, y, f.samples)
	}
	f.samples += n
	return nil
}

// powerInput returns the block fed to the next power iteration: the new
// orthonormal columns of this level, with the normalized raw sample y in
// place of every dependent column. Dependent samples thereby stay dependent
// on the next level instead of vanishing.
func (lv *level) powerInput(y *mat.Dense, s int) *mat.Dense {
	r, b := y.Dims()
	x := mat.DenseCopyOf(lv.q.Slice(0, r, s, s+b))
	col := make([]float64, r)
	for c := range b {
		if !lv.dep[s+c] {
			continue
		}
		mat.Col(col, c, y)
		if norm := floats.Norm(col, 2); norm > 0 {
			floats.Scale(1/norm, col)
		}
		x.SetCol(c, col)
	}
	return x
}

func (lv *level) push(o orthogonalizer, y *mat.Dense, s int) {
	qNew, coef, dep := o.extend(lv.q, y)
	_, b := y.Dims()
	lv.q = appendCols(lv.q, qNew)
	lv.dep = append(lv.dep, dep...)

	grown := mat.NewDense(s+b, s+b, nil)
	if lv.r != nil {
		grown.Slice(0, s, 0, s).(*mat.Dense).Copy(lv.r)
	}
	grown.Slice(0, s+b, s, s+b).(*mat.Dense).Copy(coef)
	lv.r = grown
}

// appendCols returns [a b]; a may be nil.
func appendCols(a, b *mat.Dense) *mat.Dense {
	if a == nil {
		return mat.DenseCopyOf(b)
	}
	r, n := a.Dims()
	_, k := b.Dims()
	out := a.Grow(0, k).(*mat.Dense)
	out.Slice(0, r, n, n+k).(*mat.Dense).Copy(b)
	return out
}
