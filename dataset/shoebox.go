package dataset

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"

	"github.com/cwbudde/algo-era/internal/level"
	"github.com/cwbudde/algo-era/measure/ir"
	"gonum.org/v1/gonum/stat/distuv"
)

// Mode is a damped room resonance.
type Mode struct {
	Frequency float64 // Hz
	RT60      float64 // s
}

// Shoebox synthesizes room impulse responses without reflections: every
// channel (i, j) starts with a direct-path impulse 1/r after the propagation
// delay r/c and continues with the room modes, each weighted by a receiver
// gain and a source gain drawn from a seeded normal distribution. After
// removal of the propagation delay the modal part of the data has rank
// 2·len(Modes).
type Shoebox struct {
	Name         string
	SampleRate   float64
	Length       int
	SpeedOfSound float64
	Receivers    ir.Positions
	Sources      ir.Positions
	// GridRows and GridCols describe Sources as a row-major grid, which
	// allows ReduceGrid. Zero means no grid.
	GridRows, GridCols int
	Modes              []Mode
	// Direct scales the direct-path impulse. Zero disables it.
	Direct float64
	Seed   uint64
}

// Generate renders the impulse responses.
func (s Shoebox) Generate() (*Data, error) {
	if s.SampleRate <= 0 || s.Length <= 0 || s.SpeedOfSound <= 0 {
		return nil, fmt.Errorf("%w: %s: sample rate %g, length %d, speed %g",
			ErrInvalid, s.Name, s.SampleRate, s.Length, s.SpeedOfSound)
	}
	p, m := len(s.Receivers), len(s.Sources)
	if p == 0 || m == 0 {
		return nil, fmt.Errorf("%w: %s: %d receivers, %d sources", ErrInvalid, s.Name, p, m)
	}

	norm := distuv.Normal{Mu: 0, Sigma: 1, Src: rand.NewPCG(s.Seed, s.Seed^0x5eed)}
	nm := len(s.Modes)
	recvGain := make([]float64, p*nm)
	srcGain := make([]float64, m*nm)
	for i := range recvGain {
		recvGain[i] = norm.Rand()
	}
	for i := range srcGain {
		srcGain[i] = norm.Rand()
	}

	radius := make([]float64, nm)
	omega := make([]float64, nm)
	for k, md := range s.Modes {
		if md.RT60 <= 0 {
			return nil, fmt.Errorf("%w: %s: mode %d has RT60 %g", ErrInvalid, s.Name, k, md.RT60)
		}
		radius[k] = level.DecayPerSample(md.RT60, s.SampleRate)
		omega[k] = 2 * math.Pi * md.Frequency / s.SampleRate
	}

	x := ir.NewTensor(s.Length, p, m)
	ch := make([]float64, s.Length)
	for i, rp := range s.Receivers {
		for j, sp := range s.Sources {
			if len(rp) != len(sp) {
				return nil, &ir.ShapeError{Op: "shoebox positions", Got: []int{len(sp)}, Want: []int{len(rp)}}
			}
			dist := ir.Distance(rp, sp)
			delay := int(dist / s.SpeedOfSound * s.SampleRate)
			clear(ch)
			if delay < s.Length {
				if s.Direct != 0 {
					ch[delay] = s.Direct / math.Max(dist, 1e-3)
				}
				for k := range nm {
					g := recvGain[i*nm+k] * srcGain[j*nm+k]
					amp := 1.0
					for t := delay; t < s.Length; t++ {
						ch[t] += g * amp * math.Cos(omega[k]*float64(t-delay))
						amp *= radius[k]
					}
				}
			}
			x.SetChannel(i, j, ch)
		}
	}
	return &Data{
		Name:       s.Name,
		IR:         x,
		SampleRate: s.SampleRate,
		Receivers:  s.Receivers,
		Sources:    s.Sources,
	}, nil
}

// Scenarios is a Source of synthetic setups. A name with ReducedSuffix
// fetches the base scenario and thins its source grid.
type Scenarios map[string]Shoebox

// Fetch generates the named scenario.
func (sc Scenarios) Fetch(name string) (*Data, error) {
	base, reduced := strings.CutSuffix(name, ReducedSuffix)
	s, ok := sc[base]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	d, err := s.Generate()
	if err != nil || !reduced {
		return d, err
	}
	return ReduceGrid(d, s.GridRows, s.GridCols)
}

// DefaultScenarios returns small built-in setups: S1 with a line of four
// receivers and a 4×4 source grid, and S2 with two receivers and a 6×6 grid
// in a more reverberant room.
func DefaultScenarios() Scenarios {
	return Scenarios{
		"S1": {
			Name:         "S1",
			SampleRate:   8000,
			Length:       1024,
			SpeedOfSound: 343,
			Receivers:    Line([3]float64{1, 0.5, 1.2}, [3]float64{0.1, 0, 0}, 4),
			Sources:      Grid([3]float64{0.5, 2, 1.5}, 4, 4, 0.25, 0.25),
			GridRows:     4,
			GridCols:     4,
			Modes:        []Mode{{Frequency: 110, RT60: 0.4}, {Frequency: 240, RT60: 0.3}, {Frequency: 610, RT60: 0.2}},
			Direct:       0.5,
			Seed:         1,
		},
		"S2": {
			Name:         "S2",
			SampleRate:   8000,
			Length:       2048,
			SpeedOfSound: 343,
			Receivers:    Line([3]float64{2, 1, 1.5}, [3]float64{0.2, 0, 0}, 2),
			Sources:      Grid([3]float64{0.4, 3, 1.2}, 6, 6, 0.2, 0.2),
			GridRows:     6,
			GridCols:     6,
			Modes: []Mode{
				{Frequency: 80, RT60: 0.9},
				{Frequency: 175, RT60: 0.7},
				{Frequency: 320, RT60: 0.6},
				{Frequency: 505, RT60: 0.5},
			},
			Direct: 0.5,
			Seed:   2,
		},
	}
}
