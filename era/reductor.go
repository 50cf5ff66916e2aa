package era

import (
	"errors"
	"fmt"
	"log"
	"math"

	"github.com/cwbudde/algo-era/linop/hankel"
	"github.com/cwbudde/algo-era/linop/rangefinder"
	"github.com/cwbudde/algo-era/measure/ir"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Errors returned by the reductor.
var (
	ErrConfig          = errors.New("era: invalid configuration")
	ErrInfeasibleOrder = errors.New("era: model order exceeds data support")
)

// OrderError reports a requested order above what the data supports. It
// unwraps to ErrInfeasibleOrder.
type OrderError struct {
	Order int
	Max   int
}

func (e *OrderError) Error() string {
	return fmt.Sprintf("era: order %d exceeds the supported maximum %d", e.Order, e.Max)
}

func (e *OrderError) Unwrap() error { return ErrInfeasibleOrder }

// Reductor identifies state-space models from Markov parameters with a
// randomized ERA. The Hankel operator and the range finder state are built
// once; repeated Reduce calls with non-increasing tolerances refine the same
// basis. A Reductor is not safe for concurrent use.
type Reductor struct {
	cfg    Config
	logger *log.Logger

	p, m      int
	transpose bool
	d         *mat.Dense
	reference *ir.Tensor // feedthrough followed by the Markov parameters

	op       *hankel.Operator
	rrf      *rangefinder.Finder
	maxOrder int

	sv []float64
}

// NewReductor builds the Hankel operator of the Markov parameters h_1, h_2,
// ... stored in markov (markov.Block(0) is h_1). The feedthrough h_0 is
// passed with WithFeedthrough.
func NewReductor(markov *ir.Tensor, opts ...Option) (*Reductor, error) {
	if markov == nil || markov.T == 0 || markov.P == 0 || markov.M == 0 {
		return nil, fmt.Errorf("%w: empty Markov parameters", ErrConfig)
	}
	cfg := ApplyOptions(opts...)
	p, m := markov.P, markov.M

	d := mat.NewDense(p, m, nil)
	if cfg.Feedthrough != nil {
		if r, c := cfg.Feedthrough.Dims(); r != p || c != m {
			return nil, fmt.Errorf("%w: %w", ErrConfig,
				&ir.ShapeError{Op: "feedthrough", Got: []int{r, c}, Want: []int{p, m}})
		}
		d.Copy(cfg.Feedthrough)
	}

	reference := ir.NewTensor(markov.T+1, p, m)
	reference.Block(0).Copy(d)
	copy(reference.Data[p*m:], markov.Data)

	data := markov
	if cfg.ForceStability {
		data = ir.NewTensor(2*markov.T-1, p, m)
		copy(data.Data, markov.Data)
	}
	transpose := cfg.AllowTranspose && p < m
	if transpose {
		cfg.Logger.Printf("using transposed formulation")
		data = data.Transpose()
	}

	op, err := hankel.FromSequence(hankel.FromTensor(data), (data.T+1)/2)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	k, l, hp, hm := op.BlockDims()

	rrfOpts := append([]rangefinder.Option{rangefinder.WithLogger(cfg.Logger)}, cfg.RangeFinder...)
	return &Reductor{
		cfg:       cfg,
		logger:    cfg.Logger,
		p:         p,
		m:         m,
		transpose: transpose,
		d:         d,
		reference: reference,
		op:        op,
		rrf:       rangefinder.New(op, rrfOpts...),
		maxOrder:  min((k-1)*hp, l*hm),
	}, nil
}

// Transposed reports whether the transposed system is realized internally.
func (r *Reductor) Transposed() bool { return r.transpose }

// Operator returns the Hankel operator the basis is computed for.
func (r *Reductor) Operator() *hankel.Operator { return r.op }

// MaxOrder returns the largest order the data supports.
func (r *Reductor) MaxOrder() int { return r.maxOrder }

// Reference returns the impulse response the reductor was built from,
// feedthrough included.
func (r *Reductor) Reference() *ir.Tensor { return r.reference }

// BlockSize returns the current sampling block size.
func (r *Reductor) BlockSize() int { return r.rrf.BlockSize() }

// SetBlockSize changes the sampling block size of later reductions.
func (r *Reductor) SetBlockSize(n int) { r.rrf.SetBlockSize(n) }

// Samples returns the number of probes drawn so far.
func (r *Reductor) Samples() int { return r.rrf.Samples() }

// EstimatedError returns the range finder's absolute error estimate.
func (r *Reductor) EstimatedError() float64 { return r.rrf.EstimateError() }

// WeightedNorm returns the Frobenius norm of the Hankel operator, which
// weights Markov parameter t by the number of anti-diagonal entries it fills.
func (r *Reductor) WeightedNorm() float64 { return r.rrf.Norm() }

// RelativeEstimatedError returns EstimatedError / WeightedNorm.
func (r *Reductor) RelativeEstimatedError() float64 { return r.rrf.RelativeError() }

// Reduce returns a realization from a range basis meeting the relative
// tolerance tol. Its order is the basis size, truncated to the smallest order
// whose discarded singular values stay within tol·WeightedNorm. If the sample
// budget runs out first,
// the best available realization is returned with a
// *rangefinder.StagnationError.
func (r *Reductor) Reduce(tol float64) (*Realization, error) {
	if !(tol > 0) {
		return nil, fmt.Errorf("%w: tolerance %g, want > 0", ErrConfig, tol)
	}
	q, err := r.rrf.Find(tol)
	var stag *rangefinder.StagnationError
	if err != nil && !errors.As(err, &stag) {
		return nil, err
	}
	if q == nil {
		return nil, fmt.Errorf("%w: Markov parameters are zero", ErrConfig)
	}
	_, n := q.Dims()
	if n > r.maxOrder {
		r.logger.Printf("limiting order %d to %d", n, r.maxOrder)
		n = r.maxOrder
	}
	if n == 0 {
		return nil, &OrderError{Order: 1, Max: 0}
	}
	rom, rerr := r.realize(q, n, tol*r.WeightedNorm())
	if rerr != nil {
		return nil, rerr
	}
	if stag != nil {
		return rom, err
	}
	return rom, nil
}

// ReduceOrder returns a realization of exactly the given order.
func (r *Reductor) ReduceOrder(order int) (*Realization, error) {
	if order <= 0 {
		return nil, fmt.Errorf("%w: order %d, want > 0", ErrConfig, order)
	}
	if order > r.maxOrder {
		return nil, &OrderError{Order: order, Max: r.maxOrder}
	}
	q, err := r.rrf.FindRank(order)
	if err != nil {
		return nil, err
	}
	if q == nil {
		return nil, &OrderError{Order: order, Max: 0}
	}
	if _, n := q.Dims(); n < order {
		return nil, &OrderError{Order: order, Max: n}
	}
	rom, err := r.realize(q, order, 0)
	if err != nil {
		return nil, err
	}
	if n := rom.Order(); n < order {
		return nil, &OrderError{Order: order, Max: n}
	}
	return rom, nil
}

// ErrorBounds returns Kung's bounds from the singular values σ_1 ≥ σ_2 ≥ ...
// of the last reduction. Entry k-1 bounds the order-k truncation by
// 2·sqrt(σ_{k+1}² + σ_{k+2}² + ...), for k = 1 up to one less than the
// number of singular values. It is nil before the first reduction.
func (r *Reductor) ErrorBounds() []float64 {
	if len(r.sv) == 0 {
		return nil
	}
	out := make([]float64, len(r.sv)-1)
	tail := 0.0
	for k := len(r.sv) - 1; k >= 1; k-- {
		tail += r.sv[k] * r.sv[k]
		out[k-1] = 2 * math.Sqrt(tail)
	}
	return out
}

// KungBound returns the last entry of ErrorBounds, or zero.
func (r *Reductor) KungBound() float64 {
	b := r.ErrorBounds()
	if len(b) == 0 {
		return 0
	}
	return b[len(b)-1]
}

// realize projects the Hankel operator on q, takes the SVD of QᵀH and
// assembles an order-n realization from the shift structure of the
// observability factor. A positive limit lowers n to the smallest order
// whose singular value tail is at most limit.
func (r *Reductor) realize(q *mat.Dense, n int, limit float64) (*Realization, error) {
	ht, err := r.op.ApplyAdjoint(q)
	if err != nil {
		return nil, fmt.Errorf("era: projecting operator: %w", err)
	}
	// HᵀQ = W Σ Zᵀ, so QᵀH = Z Σ Wᵀ and H ≈ (QZ) Σ Wᵀ.
	var svd mat.SVD
	if !svd.Factorize(ht, mat.SVDThin) {
		return nil, errors.New("era: SVD of the projected operator did not converge")
	}
	sv := svd.Values(nil)
	r.sv = sv
	var w, z mat.Dense
	svd.UTo(&w)
	svd.VTo(&z)

	rows, cols := ht.Dims()
	cut := sv[0] * float64(max(rows, cols)) * 0x1p-52
	rank := 0
	for _, s := range sv {
		if s > cut {
			rank++
		}
	}
	if rank < n {
		r.logger.Printf("limiting order %d to numerical rank %d", n, rank)
		n = rank
	}
	if limit > 0 {
		n = min(n, truncationOrder(sv, limit))
	}
	if n == 0 {
		return nil, &OrderError{Order: 1, Max: 0}
	}

	_, _, p, m := r.op.BlockDims()
	hr, _ := q.Dims()
	sqrtSV := make([]float64, n)
	for i := range n {
		sqrtSV[i] = math.Sqrt(sv[i])
	}

	var u mat.Dense
	u.Mul(q, z.Slice(0, cols, 0, n))
	obs := mat.DenseCopyOf(&u)
	scaleCols(obs, sqrtSV)

	c := mat.DenseCopyOf(obs.Slice(0, p, 0, n))
	b := mat.NewDense(n, m, nil)
	for i := range n {
		for j := range m {
			b.Set(i, j, sqrtSV[i]*w.At(j, i))
		}
	}

	a := mat.NewDense(n, n, nil)
	if r.cfg.ForceStability {
		// A = Σ^{-1/2} Uᵀ S U Σ^{1/2}, where S shifts block rows up by one
		// and fills with zeros.
		a.Mul(u.Slice(0, hr-p, 0, n).T(), u.Slice(p, hr, 0, n))
		for i := range n {
			row := a.RawRowView(i)
			for j := range n {
				row[j] *= sqrtSV[j] / sqrtSV[i]
			}
		}
	} else if err := a.Solve(obs.Slice(0, hr-p, 0, n), obs.Slice(p, hr, 0, n)); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("era: solving for A: %w", err)
		}
		r.logger.Printf("ill-conditioned shift equation: %v", err)
	}

	rom := &Realization{
		A:              a,
		B:              b,
		C:              c,
		D:              mat.DenseCopyOf(r.d),
		SingularValues: append([]float64(nil), sv...),
		SamplingTime:   r.cfg.SamplingTime,
	}
	if r.transpose {
		rom.A = mat.DenseCopyOf(a.T())
		rom.B = mat.DenseCopyOf(c.T())
		rom.C = mat.DenseCopyOf(b.T())
	}
	return rom, nil
}

// truncationOrder returns the smallest k >= 1 with
// sqrt(σ_{k+1}² + σ_{k+2}² + ...) <= limit.
func truncationOrder(sv []float64, limit float64) int {
	k := len(sv)
	tail := 0.0
	for k > 1 {
		tail += sv[k-1] * sv[k-1]
		if math.Sqrt(tail) > limit {
			break
		}
		k--
	}
	return k
}

func scaleCols(a *mat.Dense, s []float64) {
	rows, _ := a.Dims()
	for i := range rows {
		floats.Mul(a.RawRowView(i), s)
	}
}
