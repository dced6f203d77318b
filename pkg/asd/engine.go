package asd

import (
	"log/slog"
	"time"
)

// EnergySource provides the latest microphone level in [0, 1]. Energy must
// not block; it is called once per frame.
type EnergySource interface {
	Energy() float64
}

// EnergyFunc adapts a function to EnergySource.
type EnergyFunc func() float64

// Energy implements EnergySource.
func (f EnergyFunc) Energy() float64 { return f() }

// Effect is the audio stage reconfigured on speaker changes.
type Effect interface {
	Apply(FilterConfig) error
}

// EngineConfig configures an Engine. Zero fields take defaults.
type EngineConfig struct {
	// Weights defaults to PresetCenterBias.
	Weights Weights

	// NominalInterval is used for frames without an interval
	// (default DefaultInterval).
	NominalInterval time.Duration

	// GraceFrames is passed to the Tracker.
	GraceFrames int

	// Selection options, applied in order.
	Selection []SelectorOption

	// Mapper defaults to DefaultMapper().
	Mapper *Mapper

	// Energy is read each frame unless the frame carries its own energy.
	// Nil means silence.
	Energy EnergySource

	// Effect is reconfigured on activation and on switches. Nil is allowed.
	Effect Effect

	Logger *slog.Logger
}

// StepResult is everything one frame produced.
type StepResult struct {
	Seq    uint64
	Energy float64
	Scores FrameScores
	State  State

	// Event is non-nil when the active speaker changed this frame.
	Event *SpeakerChangeEvent

	// Filter is non-nil when the effect was reconfigured this frame. A
	// failed Apply is retried on every following frame until it succeeds
	// or the selection moves on, so Filter may trail Event.
	Filter *FilterConfig

	// Errors collects per-candidate and effect failures. None of them
	// stop the stream.
	Errors []error
}

// Engine runs the score → select → reconfigure sequence for one stream.
type Engine struct {
	tracker  *Tracker
	selector *Selector
	mapper   Mapper
	energy   EnergySource
	effect   Effect
	logger   *slog.Logger

	// pending is the config the effect still has to take.
	pending *FilterConfig
}

// NewEngine creates an Engine. It fails only on invalid weights.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	w := cfg.Weights
	if w == (Weights{}) {
		w = PresetCenterBias
	}
	scorer, err := NewScorer(w, WithNominalInterval(cfg.NominalInterval))
	if err != nil {
		return nil, err
	}
	mapper := DefaultMapper()
	if cfg.Mapper != nil {
		mapper = *cfg.Mapper
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		tracker:  NewTracker(scorer, WithGraceFrames(cfg.GraceFrames)),
		selector: NewSelector(cfg.Selection...),
		mapper:   mapper,
		energy:   cfg.Energy,
		effect:   cfg.Effect,
		logger:   logger,
	}, nil
}

// Selector exposes the engine's selector.
func (e *Engine) Selector() *Selector { return e.selector }

// Weights returns the fusion weights in use.
func (e *Engine) Weights() Weights { return e.tracker.Scorer().Weights() }

// Mapper returns the engine's mapper.
func (e *Engine) Mapper() Mapper { return e.mapper }

// State returns the current selection.
func (e *Engine) State() State { return e.selector.State() }

// Step processes one frame.
func (e *Engine) Step(frame Frame) StepResult {
	energy := 0.0
	switch {
	case frame.Energy != nil:
		energy = *frame.Energy
	case e.energy != nil:
		energy = e.energy.Energy()
	}
	energy = ClampUnit(energy)

	scores := e.tracker.Observe(frame, energy)
	res := StepResult{
		Seq:    frame.Seq,
		Energy: energy,
		Scores: scores,
		Errors: scores.Errors,
	}
	for _, err := range scores.Errors {
		e.logger.Debug("candidate skipped", "seq", frame.Seq, "err", err)
	}

	ev := e.selector.Update(scores.Scores())
	res.State = e.selector.State()
	if ev != nil {
		res.Event = ev
		e.logger.Info("speaker changed", "seq", frame.Seq, "kind", ev.Kind, "id", ev.ID, "score", ev.Score)
		if ev.Kind == EventReleased {
			e.pending = nil
		} else {
			cfg := e.mapper.ConfigFor(ev.ID)
			e.pending = &cfg
		}
	}
	if e.pending != nil {
		res.Filter = e.applyPending(frame.Seq, &res)
	}
	return res
}

func (e *Engine) applyPending(seq uint64, res *StepResult) *FilterConfig {
	cfg := *e.pending
	if e.effect != nil {
		if err := e.effect.Apply(cfg); err != nil {
			e.logger.Warn("apply filter failed", "seq", seq, "filter", cfg, "err", err)
			res.Errors = append(res.Errors, err)
			return nil
		}
	}
	e.pending = nil
	return &cfg
}

// Reset forgets history and returns to Idle. The effect is left as is.
func (e *Engine) Reset() {
	e.tracker.Reset()
	e.selector.Reset()
	e.pending = nil
}
