package asd

import "fmt"

// DefaultThreshold is the score a frame's winner must strictly exceed for
// the frame to count as voiced.
const DefaultThreshold = 0.3

// State is the selector's decision: Idle, or Active with the held id and
// its most recent score.
type State struct {
	Active bool        `json:"active" yaml:"active" msgpack:"active"`
	ID     CandidateID `json:"id" yaml:"id" msgpack:"id"`
	Score  float64     `json:"score" yaml:"score" msgpack:"score"`
}

// Idle is the zero State.
var Idle = State{}

func (s State) String() string {
	if !s.Active {
		return "idle"
	}
	return fmt.Sprintf("active(%d, %.2f)", s.ID, s.Score)
}

// EventKind classifies a SpeakerChangeEvent.
type EventKind int

const (
	// EventActivated is Idle → Active.
	EventActivated EventKind = iota + 1

	// EventSwitched is Active(a) → Active(b) with a != b.
	EventSwitched

	// EventReleased is Active → Idle after sustained silence.
	EventReleased
)

func (k EventKind) String() string {
	switch k {
	case EventActivated:
		return "activated"
	case EventSwitched:
		return "switched"
	case EventReleased:
		return "released"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "activated":
		*k = EventActivated
	case "switched":
		*k = EventSwitched
	case "released":
		*k = EventReleased
	default:
		return fmt.Errorf("asd: unknown event kind %q", b)
	}
	return nil
}

// SpeakerChangeEvent is emitted when the active speaker changes.
//
// For EventActivated and EventSwitched, ID and Score describe the new
// speaker. For EventReleased they describe the speaker being released.
type SpeakerChangeEvent struct {
	Kind     EventKind   `json:"kind" yaml:"kind" msgpack:"kind"`
	ID       CandidateID `json:"id" yaml:"id" msgpack:"id"`
	Score    float64     `json:"score" yaml:"score" msgpack:"score"`
	Previous State       `json:"previous" yaml:"previous" msgpack:"previous"`
}

func (e SpeakerChangeEvent) String() string {
	return fmt.Sprintf("%s id=%d score=%.2f previous=%s", e.Kind, e.ID, e.Score, e.Previous)
}

// Selector turns a stream of per-frame scores into a stable active-speaker
// decision.
//
// # Transitions
//
//   - Idle → Active: the frame's winner (highest score, lowest id on ties)
//     scores strictly above the threshold.
//   - Active(h) → Active(c): c != h wins a voiced frame by at least
//     minMargin over h's score in that frame (0 if h is absent), and has
//     done so for minDwell consecutive frames.
//   - Active → Idle: idleAfter consecutive unvoiced frames. Frames with no
//     candidates are unvoiced. idleAfter == 0 disables the transition and
//     the speaker is held indefinitely.
//
// A frame that keeps the current speaker only refreshes the held score.
type Selector struct {
	threshold float64
	minMargin float64
	minDwell  int
	idleAfter int

	state      State
	challenger CandidateID
	streak     int // consecutive frames the challenger has qualified
	silent     int // consecutive unvoiced frames while active
}

// SelectorOption configures a Selector.
type SelectorOption func(*Selector)

// WithThreshold sets the activation threshold (default 0.3).
func WithThreshold(v float64) SelectorOption {
	return func(s *Selector) {
		if v >= 0 {
			s.threshold = v
		}
	}
}

// WithMinMargin sets how far a challenger must outscore the current speaker
// in the same frame before a switch is considered (default 0).
func WithMinMargin(v float64) SelectorOption {
	return func(s *Selector) {
		if v >= 0 {
			s.minMargin = v
		}
	}
}

// WithMinDwell sets how many consecutive qualifying frames a challenger
// needs to take over (default 1, i.e. switch immediately).
func WithMinDwell(frames int) SelectorOption {
	return func(s *Selector) {
		if frames >= 1 {
			s.minDwell = frames
		}
	}
}

// WithIdleAfter sets how many consecutive unvoiced frames release the
// current speaker (default 0, never).
func WithIdleAfter(frames int) SelectorOption {
	return func(s *Selector) {
		if frames >= 0 {
			s.idleAfter = frames
		}
	}
}

// NewSelector creates an idle Selector.
func NewSelector(opts ...SelectorOption) *Selector {
	s := &Selector{
		threshold: DefaultThreshold,
		minDwell:  1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Threshold returns the activation threshold.
func (s *Selector) Threshold() float64 { return s.threshold }

// State returns the current decision.
func (s *Selector) State() State { return s.state }

// Update feeds one frame of scores and returns the resulting change, or nil
// when the active speaker did not change.
func (s *Selector) Update(scores map[CandidateID]float64) *SpeakerChangeEvent {
	winner, best, ok := argmax(scores)
	if !ok || !(best > s.threshold) {
		s.dropChallenger()
		return s.unvoiced()
	}
	s.silent = 0

	if !s.state.Active {
		prev := s.state
		s.state = State{Active: true, ID: winner, Score: best}
		return &SpeakerChangeEvent{Kind: EventActivated, ID: winner, Score: best, Previous: prev}
	}

	if winner == s.state.ID {
		s.state.Score = best
		s.dropChallenger()
		return nil
	}

	held, present := scores[s.state.ID]
	if present {
		s.state.Score = held
	}
	if best-held < s.minMargin {
		s.dropChallenger()
		return nil
	}

	if s.streak > 0 && s.challenger == winner {
		s.streak++
	} else {
		s.challenger = winner
		s.streak = 1
	}
	if s.streak < s.minDwell {
		return nil
	}

	prev := s.state
	s.state = State{Active: true, ID: winner, Score: best}
	s.dropChallenger()
	return &SpeakerChangeEvent{Kind: EventSwitched, ID: winner, Score: best, Previous: prev}
}

func (s *Selector) unvoiced() *SpeakerChangeEvent {
	if !s.state.Active {
		return nil
	}
	s.silent++
	if s.idleAfter == 0 || s.silent < s.idleAfter {
		return nil
	}
	prev := s.state
	s.state = Idle
	s.silent = 0
	return &SpeakerChangeEvent{Kind: EventReleased, ID: prev.ID, Score: prev.Score, Previous: prev}
}

func (s *Selector) dropChallenger() {
	s.challenger = 0
	s.streak = 0
}

// Reset returns the selector to Idle.
func (s *Selector) Reset() {
	s.state = Idle
	s.silent = 0
	s.dropChallenger()
}

// argmax returns the highest-scoring id, preferring the lowest id on ties.
// NaN scores never win.
func argmax(scores map[CandidateID]float64) (id CandidateID, best float64, ok bool) {
	for cid, v := range scores {
		if v != v {
			continue
		}
		if !ok || v > best || (v == best && cid < id) {
			id, best, ok = cid, v, true
		}
	}
	return id, best, ok
}
