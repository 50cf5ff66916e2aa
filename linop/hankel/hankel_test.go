package hankel

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/cwbudde/algo-era/internal/testutil"
	"github.com/cwbudde/algo-era/linop"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const relTol = 1e-9

var shapes = []struct {
	name       string
	k, l, p, m int
}{
	{"scalar", 5, 5, 1, 1},
	{"tall", 7, 3, 2, 3},
	{"wide", 3, 8, 3, 2},
	{"single_block", 1, 1, 2, 2},
	{"single_row", 1, 6, 2, 1},
	{"odd_length", 4, 5, 1, 3},
}

func randomComplex(seed uint64, n int) []complex128 {
	re := testutil.DeterministicNoise(seed, n)
	im := testutil.DeterministicNoise(seed+1000, n)
	out := make([]complex128, n)
	for i := range out {
		out[i] = complex(re[i], im[i])
	}
	return out
}

// complexHankelProduct evaluates H·x directly from the block definition.
func complexHankelProduct(h Blocks, k, l int, x *mat.CDense) *mat.CDense {
	_, cols := x.Dims()
	y := mat.NewCDense(k*h.P, cols, nil)
	for q := range cols {
		for a := range k {
			for i := range h.P {
				var sum complex128
				for b := range l {
					for j := range h.M {
						sum += h.At(a+b, i, j) * x.At(b*h.M+j, q)
					}
				}
				y.Set(a*h.P+i, q, sum)
			}
		}
	}
	return y
}

func cdenseRelativeError(got, want *mat.CDense) float64 {
	r, c := want.Dims()
	var num, den float64
	for i := range r {
		for j := range c {
			d := cmplx.Abs(got.At(i, j) - want.At(i, j))
			w := cmplx.Abs(want.At(i, j))
			num += d * d
			den += w * w
		}
	}
	return math.Sqrt(num / den)
}

func TestApplyMatchesDense(t *testing.T) {
	for _, tt := range shapes {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.k + tt.l - 1
			data := testutil.DeterministicNoise(11, n*tt.p*tt.m)
			h, err := RealBlocks(n, tt.p, tt.m, data)
			require.NoError(t, err)
			op, err := FromSequence(h, tt.k)
			require.NoError(t, err)

			rows, cols := op.Dims()
			require.Equal(t, tt.k*tt.p, rows)
			require.Equal(t, tt.l*tt.m, cols)

			dense := testutil.HankelMatrix(data, tt.p, tt.m, tt.k, tt.l)
			x := testutil.RandomMatrix(12, cols, 4)
			got, err := op.Apply(x)
			require.NoError(t, err)

			var want mat.Dense
			want.Mul(dense, x)
			testutil.RequireMatrixNear(t, got, &want, relTol)
		})
	}
}

func TestApplyAdjointMatchesDense(t *testing.T) {
	for _, tt := range shapes {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.k + tt.l - 1
			data := testutil.DeterministicNoise(21, n*tt.p*tt.m)
			h, err := RealBlocks(n, tt.p, tt.m, data)
			require.NoError(t, err)
			op, err := FromSequence(h, tt.k)
			require.NoError(t, err)

			dense := testutil.HankelMatrix(data, tt.p, tt.m, tt.k, tt.l)
			y := testutil.RandomMatrix(22, tt.k*tt.p, 3)
			got, err := op.ApplyAdjoint(y)
			require.NoError(t, err)

			var want mat.Dense
			want.Mul(dense.T(), y)
			testutil.RequireMatrixNear(t, got, &want, relTol)
		})
	}
}

func TestApplyComplex(t *testing.T) {
	for _, tt := range shapes {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.k + tt.l - 1
			h, err := ComplexBlocks(n, tt.p, tt.m, randomComplex(31, n*tt.p*tt.m))
			require.NoError(t, err)
			op, err := FromSequence(h, tt.k)
			require.NoError(t, err)
			require.False(t, op.IsReal())

			x := mat.NewCDense(tt.l*tt.m, 2, randomComplex(32, tt.l*tt.m*2))
			got, err := op.ApplyComplex(x)
			require.NoError(t, err)
			want := complexHankelProduct(h, tt.k, tt.l, x)
			if e := cdenseRelativeError(got, want); e > relTol {
				t.Fatalf("relative error %.3g", e)
			}

			_, err = op.Apply(mat.NewDense(tt.l*tt.m, 1, nil))
			if !errors.Is(err, ErrNotReal) {
				t.Errorf("Apply on complex operator = %v, want ErrNotReal", err)
			}
		})
	}
}

func TestApplyMixed(t *testing.T) {
	for _, tt := range shapes {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.k + tt.l - 1
			h, err := RealBlocks(n, tt.p, tt.m, testutil.DeterministicNoise(41, n*tt.p*tt.m))
			require.NoError(t, err)
			op, err := FromSequence(h, tt.k)
			require.NoError(t, err)

			x := mat.NewCDense(tt.l*tt.m, 3, randomComplex(42, tt.l*tt.m*3))
			got, err := op.ApplyComplex(x)
			require.NoError(t, err)
			want := complexHankelProduct(h, tt.k, tt.l, x)
			if e := cdenseRelativeError(got, want); e > relTol {
				t.Fatalf("relative error %.3g", e)
			}
		})
	}
}

func TestApplyAdjointComplex(t *testing.T) {
	const k, l, p, m = 4, 3, 2, 3
	n := k + l - 1
	h, err := ComplexBlocks(n, p, m, randomComplex(51, n*p*m))
	require.NoError(t, err)
	op, err := FromSequence(h, k)
	require.NoError(t, err)

	x := mat.NewCDense(l*m, 1, randomComplex(52, l*m))
	y := mat.NewCDense(k*p, 1, randomComplex(53, k*p))
	hx, err := op.ApplyComplex(x)
	require.NoError(t, err)
	hy, err := op.ApplyAdjointComplex(y)
	require.NoError(t, err)

	// <Hx, y> = <x, Hᴴy>
	var lhs, rhs complex128
	for i := range k * p {
		lhs += hx.At(i, 0) * cmplx.Conj(y.At(i, 0))
	}
	for j := range l * m {
		rhs += x.At(j, 0) * cmplx.Conj(hy.At(j, 0))
	}
	if cmplx.Abs(lhs-rhs) > 1e-9*cmplx.Abs(lhs) {
		t.Fatalf("<Hx,y> = %v, <x,Hᴴy> = %v", lhs, rhs)
	}
}

func TestNewMatchesFromSequence(t *testing.T) {
	const k, l, p, m = 4, 5, 2, 2
	n := k + l - 1
	data := testutil.DeterministicNoise(61, n*p*m)
	h, err := RealBlocks(n, p, m, data)
	require.NoError(t, err)

	a, err := New(h.Slice(0, k), h.Slice(k-1, n))
	require.NoError(t, err)
	b, err := FromSequence(h, k)
	require.NoError(t, err)

	x := testutil.RandomMatrix(62, l*m, 2)
	ya, err := a.Apply(x)
	require.NoError(t, err)
	yb, err := b.Apply(x)
	require.NoError(t, err)
	testutil.RequireMatrixNear(t, ya, yb, 1e-14)
	testutil.RequireMatrixNear(t, a.Dense(), testutil.HankelMatrix(data, p, m, k, l), 0)
}

func TestSampleMatchesApply(t *testing.T) {
	const k, l, p, m = 6, 5, 2, 3
	n := k + l - 1
	h, err := RealBlocks(n, p, m, testutil.DeterministicNoise(71, n*p*m))
	require.NoError(t, err)
	op, err := FromSequence(h, k)
	require.NoError(t, err)

	samples, probes, err := op.Sample(rand.NewPCG(1, 1), 4)
	require.NoError(t, err)
	want, err := op.Apply(probes)
	require.NoError(t, err)
	testutil.RequireMatrixNear(t, samples, want, relTol)

	again, _, err := op.Sample(rand.NewPCG(1, 1), 4)
	require.NoError(t, err)
	testutil.RequireMatrixNear(t, again, samples, 0)

	if _, ok := linop.ProbesFor(op).(*Operator); !ok {
		t.Error("ProbesFor did not select the operator's fast sampler")
	}
}

func TestFrobeniusNorm(t *testing.T) {
	for _, tt := range shapes {
		t.Run(tt.name, func(t *testing.T) {
			n := tt.k + tt.l - 1
			data := testutil.DeterministicNoise(81, n*tt.p*tt.m)
			h, err := RealBlocks(n, tt.p, tt.m, data)
			require.NoError(t, err)
			op, err := FromSequence(h, tt.k)
			require.NoError(t, err)

			want := mat.Norm(testutil.HankelMatrix(data, tt.p, tt.m, tt.k, tt.l), 2)
			if got := op.FrobeniusNorm(); math.Abs(got-want) > 1e-12*want {
				t.Errorf("FrobeniusNorm = %v, want %v", got, want)
			}
		})
	}
}

func TestEmbeddingSize(t *testing.T) {
	tests := []struct {
		k, l int
		real bool
		want int
	}{
		{1, 1, true, 8},
		{5, 5, true, 16},
		{5, 4, true, 8},
		{5, 4, false, 8},
		{9, 8, true, 16},
		{9, 9, true, 32},
		{9, 9, false, 32},
		{100, 101, true, 256},
	}
	for _, tt := range tests {
		if got := EmbeddingSize(tt.k, tt.l, tt.real); got != tt.want {
			t.Errorf("EmbeddingSize(%d, %d, %v) = %d, want %d", tt.k, tt.l, tt.real, got, tt.want)
		}
	}
}

func TestConstructionErrors(t *testing.T) {
	good, err := RealBlocks(3, 2, 2, make([]float64, 12))
	require.NoError(t, err)

	_, err = RealBlocks(3, 2, 2, make([]float64, 11))
	if !errors.Is(err, ErrBlockShape) {
		t.Errorf("RealBlocks(short) = %v, want ErrBlockShape", err)
	}

	_, err = New(Blocks{P: 2, M: 2}, good)
	if !errors.Is(err, ErrEmptyData) {
		t.Errorf("New(empty c) = %v, want ErrEmptyData", err)
	}

	other, err := RealBlocks(2, 2, 3, make([]float64, 12))
	require.NoError(t, err)
	_, err = New(good, other)
	if !errors.Is(err, ErrBlockShape) {
		t.Errorf("New(mismatched blocks) = %v, want ErrBlockShape", err)
	}

	cplx, err := ComplexBlocks(3, 2, 2, make([]complex128, 12))
	require.NoError(t, err)
	_, err = New(good, cplx)
	if !errors.Is(err, ErrBlockShape) {
		t.Errorf("New(real, complex) = %v, want ErrBlockShape", err)
	}

	_, err = FromSequence(good, 4)
	if !errors.Is(err, ErrBlockShape) {
		t.Errorf("FromSequence(k too large) = %v, want ErrBlockShape", err)
	}

	op, err := FromSequence(good, 2)
	require.NoError(t, err)
	_, err = op.Apply(mat.NewDense(3, 1, nil))
	if !errors.Is(err, linop.ErrDimension) {
		t.Errorf("Apply(wrong rows) = %v, want ErrDimension", err)
	}
}

func TestCirculantMatchesDense(t *testing.T) {
	const n, p, m = 8, 2, 3
	data := testutil.DeterministicNoise(91, n*p*m)
	g, err := RealBlocks(n, p, m, data)
	require.NoError(t, err)
	c, err := NewCirculant(g)
	require.NoError(t, err)

	dense := mat.NewDense(n*p, n*m, nil)
	for u := range n {
		for s := range n {
			for i := range p {
				for j := range m {
					dense.Set(u*p+i, s*m+j, g.Real[((((u-s)%n+n)%n*p)+i)*m+j])
				}
			}
		}
	}

	x := testutil.RandomMatrix(92, n*m, 2)
	got, err := c.Apply(x)
	require.NoError(t, err)
	var want mat.Dense
	want.Mul(dense, x)
	testutil.RequireMatrixNear(t, got, &want, relTol)
}
