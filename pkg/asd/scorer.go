package asd

import (
	"math"
	"time"
)

// CandidateID identifies a face by its index in the landmark feed.
type CandidateID int

// DefaultInterval is the nominal frame interval used when a frame carries no
// usable interval of its own (60 frames per second).
const DefaultInterval = time.Second / 60

// Candidate is the scorer's view of one face: its current landmarks and,
// when the face was seen before, the aperture it had then.
type Candidate struct {
	ID        CandidateID
	Landmarks Landmarks

	// PrevAperture is the mouth aperture from the previous sighting.
	// Only meaningful when HasPrev is true.
	PrevAperture float64
	HasPrev      bool
}

// Activity is the scored breakdown of one candidate in one frame.
type Activity struct {
	ID             CandidateID `json:"id" yaml:"id" msgpack:"id"`
	Aperture       float64     `json:"aperture" yaml:"aperture" msgpack:"aperture"`
	LipVelocity    float64     `json:"lip_velocity" yaml:"lip_velocity" msgpack:"lip_velocity"`
	Energy         float64     `json:"energy" yaml:"energy" msgpack:"energy"`
	PositionalBias float64     `json:"positional_bias" yaml:"positional_bias" msgpack:"positional_bias"`
	Score          float64     `json:"score" yaml:"score" msgpack:"score"`
}

// Scorer fuses lip velocity, audio energy and positional bias into one
// activity score. It holds no per-candidate state; see Tracker.
type Scorer struct {
	weights  Weights
	interval time.Duration
}

// ScorerOption configures a Scorer.
type ScorerOption func(*Scorer)

// WithNominalInterval sets the interval used when Score is called with a
// non-positive one (default DefaultInterval).
func WithNominalInterval(d time.Duration) ScorerOption {
	return func(s *Scorer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewScorer creates a Scorer. The weights must pass Validate.
func NewScorer(w Weights, opts ...ScorerOption) (*Scorer, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	s := &Scorer{weights: w, interval: DefaultInterval}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Weights returns the scorer's fusion weights.
func (s *Scorer) Weights() Weights { return s.weights }

// NominalInterval returns the fallback frame interval.
func (s *Scorer) NominalInterval() time.Duration { return s.interval }

// Score computes the activity of c given the shared energy sample and the
// time elapsed since c's previous aperture was measured.
//
// It returns a *MissingLandmarkRoleError when c lacks the nose tip or any
// mouth landmark.
func (s *Scorer) Score(c Candidate, energy float64, interval time.Duration) (Activity, error) {
	aperture, err := c.Landmarks.Aperture(c.ID)
	if err != nil {
		return Activity{}, err
	}
	nose, err := c.Landmarks.NoseTip(c.ID)
	if err != nil {
		return Activity{}, err
	}
	if interval <= 0 {
		interval = s.interval
	}

	var velocity float64
	if c.HasPrev {
		velocity = math.Abs(aperture-c.PrevAperture) / interval.Seconds()
	}
	a := Activity{
		ID:             c.ID,
		Aperture:       aperture,
		LipVelocity:    velocity,
		Energy:         ClampUnit(energy),
		PositionalBias: PositionalBias(nose.X),
	}
	a.Score = s.weights.Combine(a.LipVelocity, a.Energy, a.PositionalBias)
	return a, nil
}

// Combine returns the weighted sum of the three signals. Energy and bias are
// clamped to [0, 1] and a negative or NaN velocity counts as zero, so the
// result is never negative for valid weights.
func (w Weights) Combine(lipVelocity, energy, bias float64) float64 {
	if !(lipVelocity > 0) {
		lipVelocity = 0
	}
	return w.Lip*lipVelocity + w.Audio*ClampUnit(energy) + w.Bias*ClampUnit(bias)
}

// PositionalBias scores a horizontal nose position: 1 at the frame center,
// falling linearly to 0 at either edge.
func PositionalBias(noseX float64) float64 {
	return ClampUnit(1 - 2*math.Abs(noseX-0.5))
}

// ClampUnit clamps v to [0, 1]. NaN maps to 0.
func ClampUnit(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
