package hankel

import (
	"fmt"
	"runtime"
	"sync"

	algofft "github.com/cwbudde/algo-fft"
	"github.com/cwbudde/algo-era/linop"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/mat"
)

// Circulant is a block-circulant operator with p×m generator blocks g_0..g_{n-1}.
// It maps n blocks of length m to n blocks of length p:
//
//	y_u = Σ_t g_{(u-t) mod n} x_t
//
// The generator is kept in the frequency domain, one spectrum per block entry.
// A Circulant is read-only after construction and safe for concurrent use.
type Circulant struct {
	n, p, m int
	real    bool

	// half holds real-input spectra of length n/2+1, indexed i*m+j.
	half [][]complex128
	// full holds complex spectra of length n, indexed i*m+j. For real
	// generators it is derived from half on first use.
	full     [][]complex128
	fullOnce sync.Once
}

// NewCirculant transforms the generator g (g.N blocks) into the frequency
// domain. For complex generators g.N must be a size supported by the
// complex FFT plan; Hankel operators always use powers of two.
func NewCirculant(g Blocks) (*Circulant, error) {
	if err := g.validate("circulant generator"); err != nil {
		return nil, err
	}
	c := &Circulant{n: g.N, p: g.P, m: g.M, real: g.IsReal()}

	if c.real {
		fft := fourier.NewFFT(c.n)
		seq := make([]float64, c.n)
		c.half = make([][]complex128, c.p*c.m)
		for i := range c.p {
			for j := range c.m {
				for u := range c.n {
					seq[u] = g.Real[(u*c.p+i)*c.m+j]
				}
				c.half[i*c.m+j] = fft.Coefficients(nil, seq)
			}
		}
		return c, nil
	}

	plan, err := algofft.NewPlan64(c.n)
	if err != nil {
		return nil, fmt.Errorf("hankel: failed to create FFT plan: %w", err)
	}
	c.full = make([][]complex128, c.p*c.m)
	for i := range c.p {
		for j := range c.m {
			seq := make([]complex128, c.n)
			for u := range c.n {
				seq[u] = g.Complex[(u*c.p+i)*c.m+j]
			}
			if err := plan.Forward(seq, seq); err != nil {
				return nil, fmt.Errorf("hankel: forward FFT failed: %w", err)
			}
			c.full[i*c.m+j] = seq
		}
	}
	return c, nil
}

// Len returns the number of generator blocks.
func (c *Circulant) Len() int { return c.n }

// Dims returns the range and source dimensions n·p and n·m.
func (c *Circulant) Dims() (int, int) { return c.n * c.p, c.n * c.m }

// IsReal reports whether the generator is real.
func (c *Circulant) IsReal() bool { return c.real }

// Apply returns the circulant product for a real n·m×k matrix x.
func (c *Circulant) Apply(x mat.Matrix) (*mat.Dense, error) {
	if !c.real {
		return nil, ErrNotReal
	}
	if err := linop.CheckApply("circulant apply", x, c.n*c.m); err != nil {
		return nil, err
	}
	_, cols := x.Dims()
	y := mat.NewDense(c.n*c.p, cols, nil)
	c.realProduct(cols,
		func(j, q int, z []float64) {
			for t := range c.n {
				z[t] = x.At(t*c.m+j, q)
			}
		},
		func(i, q int, seq []float64) {
			for t := range c.n {
				y.Set(t*c.p+i, q, seq[t])
			}
		})
	return y, nil
}

// ApplyComplex returns the circulant product for a complex n·m×k matrix x.
func (c *Circulant) ApplyComplex(x mat.CMatrix) (*mat.CDense, error) {
	rows, cols := x.Dims()
	if rows != c.n*c.m {
		return nil, fmt.Errorf("%w: circulant apply: operand has %d rows, want %d", linop.ErrDimension, rows, c.n*c.m)
	}
	y := mat.NewCDense(c.n*c.p, cols, nil)
	err := c.complexProduct(cols,
		func(j, q int, z []complex128) {
			for t := range c.n {
				z[t] = x.At(t*c.m+j, q)
			}
		},
		func(i, q int, seq []complex128) {
			for t := range c.n {
				y.Set(t*c.p+i, q, seq[t])
			}
		})
	if err != nil {
		return nil, err
	}
	return y, nil
}

// realProduct evaluates y_iq = Σ_j g_ij ⊛ z_jq for cols columns using the
// half-spectrum transform. Inputs are transformed in parallel across input
// channels, then every output channel is accumulated and inverse transformed
// by its own goroutine, so store never sees the same i concurrently.
func (c *Circulant) realProduct(cols int, load func(j, q int, z []float64), store func(i, q int, y []float64)) {
	spectra := make([][]complex128, c.m*cols)

	var in errgroup.Group
	in.SetLimit(runtime.GOMAXPROCS(0))
	for j := range c.m {
		in.Go(func() error {
			fft := fourier.NewFFT(c.n)
			z := make([]float64, c.n)
			for q := range cols {
				clear(z)
				load(j, q, z)
				spectra[j*cols+q] = fft.Coefficients(nil, z)
			}
			return nil
		})
	}
	_ = in.Wait()

	scale := 1 / float64(c.n)
	var out errgroup.Group
	out.SetLimit(runtime.GOMAXPROCS(0))
	for i := range c.p {
		out.Go(func() error {
			fft := fourier.NewFFT(c.n)
			acc := make([]complex128, c.n/2+1)
			seq := make([]float64, c.n)
			for q := range cols {
				clear(acc)
				for j := range c.m {
					gen := c.half[i*c.m+j]
					for u, v := range spectra[j*cols+q] {
						acc[u] += gen[u] * v
					}
				}
				fft.Sequence(seq, acc)
				for t := range seq {
					seq[t] *= scale
				}
				store(i, q, seq)
			}
			return nil
		})
	}
	_ = out.Wait()
}

// complexProduct is the full-spectrum counterpart of realProduct. Real
// generators are extended to the full spectrum by conjugate symmetry.
func (c *Circulant) complexProduct(cols int, load func(j, q int, z []complex128), store func(i, q int, y []complex128)) error {
	c.fullOnce.Do(c.extendSpectra)

	plan, err := algofft.NewPlan64(c.n)
	if err != nil {
		return fmt.Errorf("hankel: failed to create FFT plan: %w", err)
	}

	spectra := make([]complex128, c.m*c.n)
	acc := make([]complex128, c.n)
	for q := range cols {
		for j := range c.m {
			z := spectra[j*c.n : (j+1)*c.n]
			clear(z)
			load(j, q, z)
			if err := plan.Forward(z, z); err != nil {
				return fmt.Errorf("hankel: forward FFT failed: %w", err)
			}
		}
		for i := range c.p {
			clear(acc)
			for j := range c.m {
				gen := c.full[i*c.m+j]
				z := spectra[j*c.n : (j+1)*c.n]
				for u := range acc {
					acc[u] += gen[u] * z[u]
				}
			}
			if err := plan.Inverse(acc, acc); err != nil {
				return fmt.Errorf("hankel: inverse FFT failed: %w", err)
			}
			store(i, q, acc)
		}
	}
	return nil
}

func (c *Circulant) extendSpectra() {
	if !c.real {
		return
	}
	c.full = make([][]complex128, len(c.half))
	for k, h := range c.half {
		f := make([]complex128, c.n)
		copy(f, h)
		for u := len(h); u < c.n; u++ {
			v := h[c.n-u]
			f[u] = complex(real(v), -imag(v))
		}
		c.full[k] = f
	}
}
