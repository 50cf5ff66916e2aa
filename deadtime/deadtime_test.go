package deadtime

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/cwbudde/algo-era/measure/ir"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestEstimate(t *testing.T) {
	receivers := ir.Positions{{0, 0, 0}, {1, 0, 0}}
	sources := ir.Positions{{3, 4, 0}, {0, 0, 2.5}}

	tests := []struct {
		name      string
		subsample bool
		want      [][]float64
	}{
		{"integer", false, [][]float64{{10, 5}, {8, 5}}},
		{"subsample", true, [][]float64{{10, 5}, {2 * math.Sqrt(20), 2 * math.Sqrt(7.25)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// speed 2 m/s at 4 Hz doubles every distance.
			d, err := Estimate(receivers, sources, 2, 4, tt.subsample)
			require.NoError(t, err)
			for i, row := range tt.want {
				for j, want := range row {
					if got := d.At(i, j); math.Abs(got-want) > 1e-12 {
						t.Errorf("D[%d,%d] = %v, want %v", i, j, got, want)
					}
				}
			}
		})
	}
}

func TestEstimateErrors(t *testing.T) {
	tests := []struct {
		name      string
		receivers ir.Positions
		sources   ir.Positions
		speed     float64
		want      error
	}{
		{"ragged", ir.Positions{{0, 0, 0}, {0, 0}}, ir.Positions{{1, 1, 1}}, 343, ir.ErrShapeMismatch},
		{"dimension", ir.Positions{{0, 0, 0}}, ir.Positions{{1, 1}}, 343, ir.ErrShapeMismatch},
		{"empty", nil, ir.Positions{{1, 1, 1}}, 343, ir.ErrShapeMismatch},
		{"speed", ir.Positions{{0, 0, 0}}, ir.Positions{{1, 1, 1}}, 0, ErrInvalidParameter},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Estimate(tt.receivers, tt.sources, tt.speed, 48000, false)
			if !errors.Is(err, tt.want) {
				t.Errorf("Estimate = %v, want %v", err, tt.want)
			}
		})
	}
}

// minEdgeCover returns the cheapest set of entries of d that touches every
// row and every column. By LP duality this equals the optimal split sum.
func minEdgeCover(d *mat.Dense) float64 {
	p, m := d.Dims()
	best := math.Inf(1)
	for mask := 1; mask < 1<<(p*m); mask++ {
		rows := make([]bool, p)
		cols := make([]bool, m)
		cost := 0.0
		for k := range p * m {
			if mask&(1<<k) != 0 {
				i, j := k/m, k%m
				rows[i], cols[j] = true, true
				cost += d.At(i, j)
			}
		}
		covered := true
		for _, r := range rows {
			covered = covered && r
		}
		for _, c := range cols {
			covered = covered && c
		}
		if covered && cost < best {
			best = cost
		}
	}
	return best
}

func randomDelays(rng *rand.Rand, p, m int) *mat.Dense {
	d := mat.NewDense(p, m, nil)
	for i := range p {
		for j := range m {
			d.Set(i, j, 1+49*rng.Float64())
		}
	}
	return d
}

func TestSplitOptimal(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	shapes := [][2]int{{1, 1}, {1, 4}, {2, 2}, {2, 3}, {3, 2}, {4, 2}, {3, 3}}
	for _, shape := range shapes {
		for trial := range 3 {
			p, m := shape[0], shape[1]
			d := randomDelays(rng, p, m)

			s, err := Split(d, true)
			require.NoError(t, err, "shape %v trial %d", shape, trial)
			require.Len(t, s.Outputs, p)
			require.Len(t, s.Inputs, m)

			want := minEdgeCover(d)
			if math.Abs(s.Objective-want) > 1e-7*want {
				t.Errorf("%dx%d trial %d: objective = %v, want %v", p, m, trial, s.Objective, want)
			}
			assertFeasible(t, d, s)
		}
	}
}

func assertFeasible(t *testing.T, d *mat.Dense, s SplitDelays) {
	t.Helper()
	p, m := d.Dims()
	for i := range p {
		if s.Outputs[i] < -1e-12 {
			t.Errorf("Outputs[%d] = %v < 0", i, s.Outputs[i])
		}
		for j := range m {
			if s.At(i, j) > d.At(i, j)+1e-9 {
				t.Errorf("do[%d]+di[%d] = %v exceeds %v", i, j, s.At(i, j), d.At(i, j))
			}
		}
	}
	for j := range m {
		if s.Inputs[j] < -1e-12 {
			t.Errorf("Inputs[%d] = %v < 0", j, s.Inputs[j])
		}
	}
}

func TestSplitIntegerAndNormalized(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	for _, shape := range [][2]int{{2, 5}, {5, 2}, {3, 3}} {
		p, m := shape[0], shape[1]
		d := randomDelays(rng, p, m)

		s, err := Split(d, false)
		require.NoError(t, err)
		assertFeasible(t, d, s)

		for _, v := range append(append([]float64{}, s.Outputs...), s.Inputs...) {
			if v != math.Trunc(v) {
				t.Errorf("%dx%d: non-integer split value %v", p, m, v)
			}
		}

		longer := s.Inputs
		if p > m {
			longer = s.Outputs
		}
		minLonger := math.Inf(1)
		for _, v := range longer {
			minLonger = math.Min(minLonger, v)
		}
		if minLonger != 0 {
			t.Errorf("%dx%d: min of normalized vector = %v, want 0", p, m, minLonger)
		}
	}
}

func TestSplitAdditiveDelays(t *testing.T) {
	// A single output sees every input through the same path, so the whole
	// matrix moves into the input delays.
	d := mat.NewDense(1, 3, []float64{4, 7, 9})
	s, err := Split(d, true)
	require.NoError(t, err)
	for j := range 3 {
		if got := s.At(0, j); math.Abs(got-d.At(0, j)) > 1e-9 {
			t.Errorf("split[0,%d] = %v, want %v", j, got, d.At(0, j))
		}
	}
}

func TestSplitErrors(t *testing.T) {
	_, err := Split(mat.NewDense(2, 2, []float64{1, -1, 2, 3}), false)
	if !errors.Is(err, ErrNegativeDelay) {
		t.Errorf("Split(negative) = %v, want ErrNegativeDelay", err)
	}
}

func TestShiftBranches(t *testing.T) {
	src := []float64{1, 2, 3, 4, 5}
	tests := []struct {
		name  string
		delay float64
		want  []float64
	}{
		{"zero", 0, []float64{1, 2, 3, 4, 5}},
		{"one", 1, []float64{0, 1, 2, 3, 4}},
		{"three", 3, []float64{0, 0, 0, 1, 2}},
		{"minus_one", -1, []float64{2, 3, 4, 5, 0}},
		{"minus_two", -2, []float64{3, 4, 5, 0, 0}},
		{"fraction_floors", -0.5, []float64{2, 3, 4, 5, 0}},
		{"beyond_length", 5, []float64{0, 0, 0, 0, 0}},
		{"beyond_length_negative", -7, []float64{0, 0, 0, 0, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x := ir.NewTensor(len(src), 1, 1)
			x.SetChannel(0, 0, src)
			y, err := Shift(x, mat.NewDense(1, 1, []float64{tt.delay}))
			require.NoError(t, err)
			require.Equal(t, tt.want, y.Channel(nil, 0, 0))
			require.Equal(t, src, x.Channel(nil, 0, 0), "input modified")
		})
	}
}

func TestShiftRoundTrip(t *testing.T) {
	const (
		length = 64
		pad    = 16
	)
	rng := rand.New(rand.NewPCG(3, 4))
	x := ir.NewTensor(length+pad, 2, 3)
	for k := range length * 6 {
		x.Data[k] = rng.NormFloat64()
	}
	delays := mat.NewDense(2, 3, []float64{0, 1, 5, 16, 2, 9})

	y, err := Shift(x, delays)
	require.NoError(t, err)
	var neg mat.Dense
	neg.Scale(-1, delays)
	z, err := Shift(y, &neg)
	require.NoError(t, err)

	for t0 := range length {
		for i := range 2 {
			for j := range 3 {
				if z.At(t0, i, j) != x.At(t0, i, j) {
					t.Fatalf("round trip mismatch at (%d,%d,%d)", t0, i, j)
				}
			}
		}
	}
}

func TestShiftShapeMismatch(t *testing.T) {
	_, err := Shift(ir.NewTensor(4, 2, 2), mat.NewDense(2, 3, nil))
	if !errors.Is(err, ir.ErrShapeMismatch) {
		t.Errorf("Shift = %v, want ErrShapeMismatch", err)
	}
}

func TestParseMethod(t *testing.T) {
	for _, m := range []Method{MethodNone, MethodLeastCommon, MethodSplit} {
		got, err := ParseMethod(m.String())
		require.NoError(t, err)
		require.Equal(t, m, got)
	}
	got, err := ParseMethod("dts")
	require.NoError(t, err)
	require.Equal(t, MethodSplit, got)

	if _, err := ParseMethod("xyz"); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("ParseMethod(xyz) = %v, want ErrInvalidParameter", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.True(t, cfg.Subsample)
	require.False(t, cfg.Onsets)
	require.Equal(t, DefaultSpeedOfSound, cfg.SpeedOfSound)

	cfg = ApplyOptions(WithSubsample(false), WithSpeedOfSound(-1), nil)
	require.False(t, cfg.Subsample)
	require.Equal(t, DefaultSpeedOfSound, cfg.SpeedOfSound)
}

// impulses returns a tensor with a unit impulse at d[i,j] in each channel.
func impulses(length int, d *mat.Dense) *ir.Tensor {
	p, m := d.Dims()
	x := ir.NewTensor(length, p, m)
	for i := range p {
		for j := range m {
			x.Set(int(d.At(i, j)), i, j, 1)
		}
	}
	return x
}

func onsetOf(x *ir.Tensor, i, j int) int {
	for t := range x.T {
		if x.At(t, i, j) != 0 {
			return t
		}
	}
	return -1
}

func TestExtractionPolicies(t *testing.T) {
	d := mat.NewDense(2, 3, []float64{12, 20, 31, 17, 9, 25})
	x := impulses(64, d)

	t.Run("none", func(t *testing.T) {
		e, err := PlanFromDelays(MethodNone, d)
		require.NoError(t, err)
		y, err := e.Apply(x)
		require.NoError(t, err)
		if y != x {
			t.Error("MethodNone did not return its input")
		}
		require.Zero(t, e.RemovedSamples())
	})

	t.Run("least_common", func(t *testing.T) {
		e, err := PlanFromDelays(MethodLeastCommon, d)
		require.NoError(t, err)
		y, err := e.Apply(x)
		require.NoError(t, err)
		for i := range 2 {
			for j := range 3 {
				if got, want := onsetOf(y, i, j), int(d.At(i, j))-9; got != want {
					t.Errorf("onset[%d,%d] = %d, want %d", i, j, got, want)
				}
			}
		}
		require.Equal(t, 18.0, e.RemovedSamples())
	})

	t.Run("split", func(t *testing.T) {
		e, err := PlanFromDelays(MethodSplit, d)
		require.NoError(t, err)
		require.NotNil(t, e.Split)
		y, err := e.Apply(x)
		require.NoError(t, err)
		for i := range 2 {
			for j := range 3 {
				removed := e.Removed.At(i, j)
				if removed > d.At(i, j) || e.Split.At(i, j) > d.At(i, j)+1e-9 {
					t.Errorf("removed[%d,%d] = %v exceeds %v", i, j, removed, d.At(i, j))
				}
				if got, want := onsetOf(y, i, j), int(d.At(i, j)-removed); got != want {
					t.Errorf("onset[%d,%d] = %d, want %d", i, j, got, want)
				}
			}
		}
		if e.RemovedSamples() < 9 {
			t.Errorf("RemovedSamples = %v, want at least the least common delay", e.RemovedSamples())
		}
	})
}

func TestExtractFromGeometry(t *testing.T) {
	receivers := ir.Positions{{0, 0, 0}, {1, 0, 0}}
	sources := ir.Positions{{3, 4, 0}, {0, 0, 2.5}}
	d, err := Estimate(receivers, sources, 2, 4, false)
	require.NoError(t, err)
	x := impulses(32, d)

	y, e, err := Extract(x, receivers, sources, 4, MethodLeastCommon, WithSpeedOfSound(2))
	require.NoError(t, err)
	require.Equal(t, 5.0, e.Removed.At(1, 1))
	require.Equal(t, 0, onsetOf(y, 0, 1))
	require.Equal(t, 5, onsetOf(y, 0, 0))

	_, _, err = Extract(x, receivers[:1], sources, 4, MethodSplit)
	if !errors.Is(err, ir.ErrShapeMismatch) {
		t.Errorf("Extract(mismatched positions) = %v, want ErrShapeMismatch", err)
	}
}

func TestExtractFromOnsets(t *testing.T) {
	d := mat.NewDense(2, 2, []float64{6, 11, 8, 4})
	x := impulses(32, d)

	y, e, err := Extract(x, nil, nil, 1000, MethodLeastCommon, WithOnsets())
	require.NoError(t, err)
	require.Equal(t, 4.0, e.Removed.At(0, 0))
	require.Equal(t, 2, onsetOf(y, 0, 0))
	require.Equal(t, 0, onsetOf(y, 1, 1))
}
