package export

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/cwbudde/algo-era/era"
	"gonum.org/v1/gonum/mat"
)

// ErrDecode is returned for model files that do not describe a valid
// realization.
var ErrDecode = errors.New("export: malformed model")

// Model is the serialized form of a realization. Matrices are stored row by
// row.
type Model struct {
	Name           string      `json:"name"`
	Method         string      `json:"method"`
	Order          int         `json:"order"`
	Outputs        int         `json:"outputs"`
	Inputs         int         `json:"inputs"`
	SamplingTime   float64     `json:"sampling_time"`
	A              [][]float64 `json:"A"`
	B              [][]float64 `json:"B"`
	C              [][]float64 `json:"C"`
	D              [][]float64 `json:"D,omitempty"`
	SingularValues []float64   `json:"hsv"`
	Metrics        era.Metrics `json:"metrics"`
}

// NewModel captures rom and the metrics of the step that produced it.
func NewModel(run era.Run, rom *era.Realization, m era.Metrics) Model {
	n, p, in := rom.Dims()
	return Model{
		Name:           run.Name,
		Method:         run.Method.String(),
		Order:          n,
		Outputs:        p,
		Inputs:         in,
		SamplingTime:   rom.SamplingTime,
		A:              rows(rom.A),
		B:              rows(rom.B),
		C:              rows(rom.C),
		D:              rows(rom.D),
		SingularValues: rom.SingularValues,
		Metrics:        m,
	}
}

// Realization rebuilds the state-space matrices.
func (md Model) Realization() (*era.Realization, error) {
	a, err := dense("A", md.A, md.Order, md.Order)
	if err != nil {
		return nil, err
	}
	b, err := dense("B", md.B, md.Order, md.Inputs)
	if err != nil {
		return nil, err
	}
	c, err := dense("C", md.C, md.Outputs, md.Order)
	if err != nil {
		return nil, err
	}
	rom := &era.Realization{A: a, B: b, C: c, SingularValues: md.SingularValues, SamplingTime: md.SamplingTime}
	if md.D != nil {
		if rom.D, err = dense("D", md.D, md.Outputs, md.Inputs); err != nil {
			return nil, err
		}
	}
	return rom, nil
}

// WriteModel encodes md as indented JSON.
func WriteModel(w io.Writer, md Model) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(md)
}

// ReadModel decodes a model written by WriteModel.
func ReadModel(r io.Reader) (Model, error) {
	var md Model
	if err := json.NewDecoder(r).Decode(&md); err != nil {
		return Model{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return md, nil
}

func rows(a *mat.Dense) [][]float64 {
	if a == nil {
		return nil
	}
	r, c := a.Dims()
	out := make([][]float64, r)
	for i := range r {
		out[i] = make([]float64, c)
		mat.Row(out[i], i, a)
	}
	return out
}

func dense(name string, v [][]float64, r, c int) (*mat.Dense, error) {
	if len(v) != r || r == 0 || c == 0 {
		return nil, fmt.Errorf("%w: %s has %d rows, want %d", ErrDecode, name, len(v), r)
	}
	d := mat.NewDense(r, c, nil)
	for i, row := range v {
		if len(row) != c {
			return nil, fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrDecode, name, i, len(row), c)
		}
		d.SetRow(i, row)
	}
	return d, nil
}
