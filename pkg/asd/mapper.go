package asd

import "fmt"

// FilterConfig parameterizes the per-speaker peaking filter.
//
// The filter only emphasizes a frequency band chosen by speaker id. It does
// not isolate the speaker's voice.
type FilterConfig struct {
	CenterFrequencyHz float64 `json:"center_frequency_hz" yaml:"center_frequency_hz" msgpack:"center_frequency_hz"`
	GainDB            float64 `json:"gain_db" yaml:"gain_db" msgpack:"gain_db"`
	Q                 float64 `json:"q" yaml:"q" msgpack:"q"`
}

// IsZero reports whether c is the zero config (no filter).
func (c FilterConfig) IsZero() bool { return c == FilterConfig{} }

func (c FilterConfig) String() string {
	return fmt.Sprintf("peaking %.0fHz %+.1fdB Q=%.2f", c.CenterFrequencyHz, c.GainDB, c.Q)
}

// Mapper maps a speaker id to a FilterConfig:
//
//	CenterFrequencyHz = BaseHz + StepHz·id
type Mapper struct {
	BaseHz float64 `json:"base_hz" yaml:"base_hz"`
	StepHz float64 `json:"step_hz" yaml:"step_hz"`
	GainDB float64 `json:"gain_db" yaml:"gain_db"`
	Q      float64 `json:"q" yaml:"q"`
}

// DefaultMapper returns the stock mapping: 200 Hz + 200 Hz per id, +10 dB,
// Q of 1.
func DefaultMapper() Mapper {
	return Mapper{BaseHz: 200, StepHz: 200, GainDB: 10, Q: 1}
}

// ConfigFor returns the filter for id. It is pure.
func (m Mapper) ConfigFor(id CandidateID) FilterConfig {
	return FilterConfig{
		CenterFrequencyHz: m.BaseHz + m.StepHz*float64(id),
		GainDB:            m.GainDB,
		Q:                 m.Q,
	}
}
