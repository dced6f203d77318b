package asd

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
	"time"
)

// ErrDuplicateCandidate is reported when a frame lists the same id twice.
// The first occurrence is scored; later ones are dropped.
var ErrDuplicateCandidate = errors.New("asd: duplicate candidate id")

// Face is one detected face in a frame.
type Face struct {
	ID        CandidateID `json:"id" yaml:"id" msgpack:"id"`
	Landmarks Landmarks   `json:"landmarks" yaml:"landmarks" msgpack:"landmarks"`
}

// Frame is one video frame worth of input.
type Frame struct {
	// Seq is a caller-assigned sequence number, carried into results.
	Seq uint64

	// Interval is the time since the previous frame. Zero or negative
	// means "unknown" and the scorer's nominal interval is used.
	Interval time.Duration

	// Energy, when non-nil, overrides the live energy source. Recorded
	// sessions carry their own energy.
	Energy *float64

	Faces []Face
}

// FrameScores is the result of scoring one frame.
type FrameScores struct {
	// Activities holds one entry per successfully scored face, sorted by id.
	Activities []Activity

	// Errors holds per-face failures. Failed faces are absent from
	// Activities and therefore from the selection.
	Errors []error
}

// Scores returns the id → score map the Selector consumes.
func (fs FrameScores) Scores() map[CandidateID]float64 {
	m := make(map[CandidateID]float64, len(fs.Activities))
	for _, a := range fs.Activities {
		m[a.ID] = a.Score
	}
	return m
}

// Activity returns the activity of id, if it was scored this frame.
func (fs FrameScores) Activity(id CandidateID) (Activity, bool) {
	for _, a := range fs.Activities {
		if a.ID == id {
			return a, true
		}
	}
	return Activity{}, false
}

type trackState struct {
	aperture float64
	elapsed  time.Duration // time since aperture was measured
	misses   int
}

// Tracker owns the per-candidate history needed for lip velocity. Each
// stream needs its own Tracker.
//
// A candidate's history survives up to graceFrames consecutive frames in
// which it is absent or fails to score; after that the id is forgotten and
// its next sighting counts as a first sighting again.
type Tracker struct {
	scorer      *Scorer
	graceFrames int
	history     map[CandidateID]*trackState
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithGraceFrames sets how many consecutive missed frames a candidate's
// history survives (default 0).
func WithGraceFrames(n int) TrackerOption {
	return func(t *Tracker) {
		if n >= 0 {
			t.graceFrames = n
		}
	}
}

// NewTracker creates a Tracker scoring with s.
func NewTracker(s *Scorer, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		scorer:  s,
		history: make(map[CandidateID]*trackState),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Scorer returns the tracker's scorer.
func (t *Tracker) Scorer() *Scorer { return t.scorer }

// Observe scores every face in frame against the shared energy sample and
// advances the history. A frame without faces yields empty FrameScores.
func (t *Tracker) Observe(frame Frame, energy float64) FrameScores {
	interval := frame.Interval
	if interval <= 0 {
		interval = t.scorer.NominalInterval()
	}

	faces := slices.Clone(frame.Faces)
	slices.SortStableFunc(faces, func(a, b Face) int { return cmp.Compare(a.ID, b.ID) })

	var out FrameScores
	listed := make(map[CandidateID]bool, len(faces))
	seen := make(map[CandidateID]bool, len(faces))
	for _, f := range faces {
		if listed[f.ID] {
			out.Errors = append(out.Errors, fmt.Errorf("%w: %d", ErrDuplicateCandidate, f.ID))
			continue
		}
		listed[f.ID] = true
		c := Candidate{ID: f.ID, Landmarks: f.Landmarks}
		elapsed := interval
		if st, ok := t.history[f.ID]; ok {
			c.PrevAperture = st.aperture
			c.HasPrev = true
			elapsed = st.elapsed + interval
		}
		a, err := t.scorer.Score(c, energy, elapsed)
		if err != nil {
			out.Errors = append(out.Errors, err)
			continue
		}
		seen[f.ID] = true
		t.history[f.ID] = &trackState{aperture: a.Aperture}
		out.Activities = append(out.Activities, a)
	}

	// Age everything not refreshed this frame.
	for id, st := range t.history {
		if seen[id] {
			continue
		}
		st.misses++
		st.elapsed += interval
		if st.misses > t.graceFrames {
			delete(t.history, id)
		}
	}
	return out
}

// Known reports whether id currently has history.
func (t *Tracker) Known(id CandidateID) bool {
	_, ok := t.history[id]
	return ok
}

// Reset forgets all history.
func (t *Tracker) Reset() {
	clear(t.history)
}
