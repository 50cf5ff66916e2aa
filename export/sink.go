package export

import "github.com/cwbudde/algo-era/era"

// Sink stores both models and metrics.
type Sink interface {
	era.ModelSink
	era.MetricsSink
}

// Tee forwards to every sink in order and stops at the first error.
type Tee []Sink

// SaveModel implements era.ModelSink.
func (t Tee) SaveModel(run era.Run, rom *era.Realization, m era.Metrics) error {
	for _, s := range t {
		if err := s.SaveModel(run, rom, m); err != nil {
			return err
		}
	}
	return nil
}

// SaveMetrics implements era.MetricsSink.
func (t Tee) SaveMetrics(run era.Run, history []era.Metrics) error {
	for _, s := range t {
		if err := s.SaveMetrics(run, history); err != nil {
			return err
		}
	}
	return nil
}
