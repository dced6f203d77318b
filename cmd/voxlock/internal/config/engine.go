package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/audio/meter"
	"github.com/haivivi/voxlock/pkg/audio/pcm"
)

// Weights resolves the fusion weights: explicit weights win over the
// preset, and an empty preset means center-bias.
func (c *Config) Weights() (asd.Weights, error) {
	if w := c.Scoring.Weights; w != nil {
		aw := asd.Weights{Lip: w.Lip, Audio: w.Audio, Bias: w.Bias}
		if err := aw.Validate(); err != nil {
			return asd.Weights{}, err
		}
		return aw, nil
	}
	preset := c.Scoring.Preset
	if preset == "" {
		preset = "center-bias"
	}
	return asd.LookupPreset(preset)
}

// NominalInterval converts nominal_fps to a frame interval; zero means
// the scorer default.
func (c *Config) NominalInterval() time.Duration {
	if c.Scoring.NominalFPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / c.Scoring.NominalFPS)
}

// Mapper returns the filter mapping. Non-positive frequencies and Q and a
// nil gain take the defaults.
func (c *Config) Mapper() asd.Mapper {
	m := asd.DefaultMapper()
	f := c.Filter
	if f.BaseHz > 0 {
		m.BaseHz = f.BaseHz
	}
	if f.StepHz > 0 {
		m.StepHz = f.StepHz
	}
	if f.GainDB != nil {
		m.GainDB = *f.GainDB
	}
	if f.Q > 0 {
		m.Q = f.Q
	}
	return m
}

// Threshold returns the selection threshold, defaulting when unset.
func (c *Config) Threshold() float64 {
	if c.Selection.Threshold > 0 {
		return c.Selection.Threshold
	}
	return asd.DefaultThreshold
}

// SelectorOptions builds the selector options.
func (c *Config) SelectorOptions() []asd.SelectorOption {
	s := c.Selection
	return []asd.SelectorOption{
		asd.WithThreshold(c.Threshold()),
		asd.WithMinMargin(s.MinMargin),
		asd.WithMinDwell(s.MinDwell),
		asd.WithIdleAfter(s.IdleAfter),
	}
}

// EngineConfig builds an engine template. Energy and Effect are left
// for the caller.
func (c *Config) EngineConfig(logger *slog.Logger) (asd.EngineConfig, error) {
	w, err := c.Weights()
	if err != nil {
		return asd.EngineConfig{}, err
	}
	m := c.Mapper()
	return asd.EngineConfig{
		Weights:         w,
		NominalInterval: c.NominalInterval(),
		GraceFrames:     c.Scoring.GraceFrames,
		Selection:       c.SelectorOptions(),
		Mapper:          &m,
		Logger:          logger,
	}, nil
}

// Format returns the PCM format for audio.sample_rate.
func (c *Config) Format() (pcm.Format, error) {
	rate := c.Audio.SampleRate
	if rate == 0 {
		rate = 16000
	}
	return pcm.FormatForRate(rate)
}

// MeterOptions returns the analyser options for audio.*.
func (c *Config) MeterOptions() []meter.AnalyserOption {
	var opts []meter.AnalyserOption
	if c.Audio.FFTSize > 0 {
		opts = append(opts, meter.WithFFTSize(c.Audio.FFTSize))
	}
	if c.Audio.Smoothing > 0 {
		opts = append(opts, meter.WithSmoothing(c.Audio.Smoothing))
	}
	return opts
}

// LogLevel parses log.level. Empty means info.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if strings.TrimSpace(c.Log.Level) == "" {
		return slog.LevelInfo, nil
	}
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(c.Log.Level))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid level %q", c.Log.Level)
	}
	return lvl, nil
}
