package dataset

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-era/measure/ir"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestGridAndLine(t *testing.T) {
	g := Grid([3]float64{1, 2, 3}, 2, 3, 0.5, 0.25)
	want := ir.Positions{
		{1, 2, 3}, {1.5, 2, 3}, {2, 2, 3},
		{1, 2.25, 3}, {1.5, 2.25, 3}, {2, 2.25, 3},
	}
	if diff := cmp.Diff(want, g); diff != "" {
		t.Errorf("Grid mismatch (-want +got):\n%s", diff)
	}

	l := Line([3]float64{0, 0, 1}, [3]float64{1, 0, 0}, 3)
	if diff := cmp.Diff(ir.Positions{{0, 0, 1}, {1, 0, 1}, {2, 0, 1}}, l); diff != "" {
		t.Errorf("Line mismatch (-want +got):\n%s", diff)
	}
}

func TestReduceGrid(t *testing.T) {
	const rows, cols = 4, 3
	x := ir.NewTensor(2, 1, rows*cols)
	for j := range rows * cols {
		x.Set(1, 0, j, float64(j))
	}
	d := &Data{
		Name:       "A1",
		IR:         x,
		SampleRate: 48000,
		Receivers:  ir.Positions{{0, 0, 0}},
		Sources:    Grid([3]float64{}, rows, cols, 1, 1),
	}

	red, err := ReduceGrid(d, rows, cols)
	require.NoError(t, err)
	require.Equal(t, "A1_RED", red.Name)
	require.NoError(t, red.Validate())

	// Rows 0 and 2, columns 0 and 2.
	wantIdx := []int{0, 2, 6, 8}
	require.Equal(t, len(wantIdx), red.IR.M)
	for k, j := range wantIdx {
		require.Equal(t, float64(j), red.IR.At(1, 0, k))
		require.Equal(t, d.Sources[j], red.Sources[k])
	}

	_, err = ReduceGrid(d, 5, 3)
	require.ErrorIs(t, err, ir.ErrShapeMismatch)
}

func TestMemorySource(t *testing.T) {
	d := &Data{Name: "x"}
	src := Memory{"x": d, "a": d}
	got, err := src.Fetch("x")
	require.NoError(t, err)
	require.Same(t, d, got)
	require.Equal(t, []string{"a", "x"}, src.Names())

	_, err = src.Fetch("missing")
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestValidate(t *testing.T) {
	d := &Data{Name: "bad", IR: ir.NewTensor(4, 2, 1), SampleRate: 1000, Receivers: ir.Positions{{0, 0, 0}}, Sources: ir.Positions{{1, 0, 0}}}
	require.ErrorIs(t, d.Validate(), ir.ErrShapeMismatch)

	d.Receivers = append(d.Receivers, []float64{1, 1, 1})
	require.NoError(t, d.Validate())

	d.SampleRate = 0
	require.ErrorIs(t, d.Validate(), ErrInvalid)
}

func TestShoeboxDirectPath(t *testing.T) {
	s := Shoebox{
		Name:         "line",
		SampleRate:   1,
		Length:       64,
		SpeedOfSound: 1,
		Receivers:    ir.Positions{{0, 0, 0}},
		Sources:      ir.Positions{{10, 0, 0}, {25, 0, 0}},
		Direct:       1,
	}
	d, err := s.Generate()
	require.NoError(t, err)
	require.NoError(t, d.Validate())

	for j, want := range []struct {
		delay int
		amp   float64
	}{{10, 0.1}, {25, 0.04}} {
		ch := d.IR.Channel(nil, 0, j)
		for k, v := range ch {
			if k == want.delay {
				require.InDelta(t, want.amp, v, 1e-12)
			} else {
				require.Zero(t, v, "channel %d sample %d", j, k)
			}
		}
	}
}

func TestShoeboxModes(t *testing.T) {
	s := Shoebox{
		Name:         "modes",
		SampleRate:   1000,
		Length:       200,
		SpeedOfSound: 343,
		Receivers:    ir.Positions{{0, 0, 0}, {0.5, 0, 0}},
		Sources:      ir.Positions{{1, 1, 0}},
		Modes:        []Mode{{Frequency: 50, RT60: 0.1}},
		Seed:         4,
	}
	d, err := s.Generate()
	require.NoError(t, err)

	again, err := s.Generate()
	require.NoError(t, err)
	require.Equal(t, d.IR.Data, again.IR.Data, "generation is not reproducible")

	// 60 dB of decay after RT60 = 100 samples.
	ch := d.IR.Channel(nil, 0, 0)
	dist := math.Sqrt2
	onset := int(dist / 343 * 1000)
	require.NotZero(t, ch[onset])
	require.InDelta(t, 1e-3, math.Abs(ch[onset+100]/ch[onset]), 1e-9)
}

func TestShoeboxReverberationTime(t *testing.T) {
	const rt60 = 0.25
	s := Shoebox{
		Name:         "rt",
		SampleRate:   8000,
		Length:       4000,
		SpeedOfSound: 343,
		Receivers:    ir.Positions{{0, 0, 0}},
		Sources:      ir.Positions{{1, 0, 0}},
		Modes:        []Mode{{Frequency: 250, RT60: rt60}},
		Seed:         5,
	}
	d, err := s.Generate()
	require.NoError(t, err)

	got, err := ir.NewAnalyzer(s.SampleRate).RT60(d.IR.Channel(nil, 0, 0))
	require.NoError(t, err)
	require.InEpsilon(t, rt60, got, 0.1)
}

func TestScenarios(t *testing.T) {
	sc := DefaultScenarios()
	full, err := sc.Fetch("S1")
	require.NoError(t, err)
	require.NoError(t, full.Validate())
	require.Equal(t, 16, full.IR.M)

	red, err := sc.Fetch("S1" + ReducedSuffix)
	require.NoError(t, err)
	require.Equal(t, 4, red.IR.M)
	require.Equal(t, full.IR.At(100, 1, 2), red.IR.At(100, 1, 1))

	_, err = sc.Fetch("nope")
	require.ErrorIs(t, err, ErrNotFound)
}
