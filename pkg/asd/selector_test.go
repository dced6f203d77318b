package asd

import (
	"math"
	"testing"
)

func TestSelectorActivation(t *testing.T) {
	s := NewSelector()
	score := PresetCenterBias.Combine(0.5, 0.4, 0.8)

	ev := s.Update(map[CandidateID]float64{0: score})
	if ev == nil {
		t.Fatal("expected an event")
	}
	if ev.Kind != EventActivated || ev.ID != 0 || math.Abs(ev.Score-0.54) > eps {
		t.Errorf("event = %v", ev)
	}
	if ev.Previous.Active {
		t.Errorf("previous = %v, want idle", ev.Previous)
	}
	if st := s.State(); !st.Active || st.ID != 0 {
		t.Errorf("state = %v", st)
	}

	// Continuation emits nothing.
	if ev := s.Update(map[CandidateID]float64{0: 0.6}); ev != nil {
		t.Errorf("continuation event = %v", ev)
	}
	if st := s.State(); st.Score != 0.6 {
		t.Errorf("held score = %v, want 0.6", st.Score)
	}
}

func TestSelectorThresholdIsStrict(t *testing.T) {
	s := NewSelector()
	if ev := s.Update(map[CandidateID]float64{0: 0.3}); ev != nil {
		t.Errorf("score equal to threshold activated: %v", ev)
	}
	if ev := s.Update(map[CandidateID]float64{}); ev != nil {
		t.Errorf("empty frame activated: %v", ev)
	}
	if s.State().Active {
		t.Error("expected idle")
	}
}

func TestSelectorSwitchEmitsOneEvent(t *testing.T) {
	s := NewSelector()
	s.Update(map[CandidateID]float64{0: 0.54})

	ev := s.Update(map[CandidateID]float64{0: 0.50, 1: 0.55})
	if ev == nil {
		t.Fatal("expected a switch")
	}
	if ev.Kind != EventSwitched || ev.ID != 1 || ev.Score != 0.55 {
		t.Errorf("event = %v", ev)
	}
	if ev.Previous.ID != 0 || !ev.Previous.Active {
		t.Errorf("previous = %v", ev.Previous)
	}
	if ev := s.Update(map[CandidateID]float64{0: 0.50, 1: 0.55}); ev != nil {
		t.Errorf("second identical frame emitted %v", ev)
	}
}

func TestSelectorTieBreak(t *testing.T) {
	for range 50 {
		s := NewSelector()
		ev := s.Update(map[CandidateID]float64{4: 0.8, 2: 0.8, 3: 0.8, 5: 0.1})
		if ev == nil || ev.ID != 2 {
			t.Fatalf("event = %v, want id 2", ev)
		}
	}

	// A tie with the holder never displaces it when the holder has the lower id.
	s := NewSelector()
	s.Update(map[CandidateID]float64{1: 0.9})
	if ev := s.Update(map[CandidateID]float64{1: 0.7, 3: 0.7}); ev != nil {
		t.Errorf("tie displaced holder: %v", ev)
	}
}

func TestSelectorMinMargin(t *testing.T) {
	s := NewSelector(WithMinMargin(0.1))
	s.Update(map[CandidateID]float64{0: 0.54})

	if ev := s.Update(map[CandidateID]float64{0: 0.50, 1: 0.55}); ev != nil {
		t.Errorf("switched within margin: %v", ev)
	}
	if st := s.State(); st.ID != 0 || st.Score != 0.50 {
		t.Errorf("state = %v", st)
	}
	ev := s.Update(map[CandidateID]float64{0: 0.40, 1: 0.55})
	if ev == nil || ev.ID != 1 {
		t.Fatalf("event = %v, want switch to 1", ev)
	}

	// An absent holder counts as zero.
	if ev := s.Update(map[CandidateID]float64{2: 0.35}); ev == nil || ev.ID != 2 {
		t.Errorf("event = %v, want switch to 2", ev)
	}
}

func TestSelectorMinDwell(t *testing.T) {
	s := NewSelector(WithMinDwell(3))

	// Activation is immediate.
	if ev := s.Update(map[CandidateID]float64{0: 0.5}); ev == nil {
		t.Fatal("expected activation")
	}

	frame := map[CandidateID]float64{0: 0.4, 1: 0.6}
	if ev := s.Update(frame); ev != nil {
		t.Fatalf("switched after 1 frame: %v", ev)
	}
	if ev := s.Update(frame); ev != nil {
		t.Fatalf("switched after 2 frames: %v", ev)
	}
	// An interruption restarts the count.
	s.Update(map[CandidateID]float64{0: 0.7, 1: 0.6})
	s.Update(frame)
	s.Update(frame)
	ev := s.Update(frame)
	if ev == nil || ev.Kind != EventSwitched || ev.ID != 1 {
		t.Fatalf("event = %v, want switch to 1", ev)
	}
}

func TestSelectorChallengerChangeRestartsDwell(t *testing.T) {
	s := NewSelector(WithMinDwell(2))
	s.Update(map[CandidateID]float64{0: 0.5})
	s.Update(map[CandidateID]float64{0: 0.4, 1: 0.6})
	if ev := s.Update(map[CandidateID]float64{0: 0.4, 2: 0.6}); ev != nil {
		t.Fatalf("switched to a new challenger without dwell: %v", ev)
	}
	if ev := s.Update(map[CandidateID]float64{0: 0.4, 2: 0.6}); ev == nil || ev.ID != 2 {
		t.Fatalf("event = %v, want switch to 2", ev)
	}
}

func TestSelectorIdleDecay(t *testing.T) {
	s := NewSelector(WithIdleAfter(3))
	s.Update(map[CandidateID]float64{1: 0.8})

	quiet := map[CandidateID]float64{0: 0.1, 1: 0.2}
	if ev := s.Update(quiet); ev != nil {
		t.Fatalf("released early: %v", ev)
	}
	if ev := s.Update(nil); ev != nil {
		t.Fatalf("released early: %v", ev)
	}
	ev := s.Update(quiet)
	if ev == nil || ev.Kind != EventReleased || ev.ID != 1 {
		t.Fatalf("event = %v, want release of 1", ev)
	}
	if s.State().Active {
		t.Error("expected idle")
	}
	if ev := s.Update(quiet); ev != nil {
		t.Errorf("idle frame emitted %v", ev)
	}
}

func TestSelectorVoicedFrameResetsSilence(t *testing.T) {
	s := NewSelector(WithIdleAfter(2))
	s.Update(map[CandidateID]float64{0: 0.8})
	s.Update(map[CandidateID]float64{0: 0.1})
	s.Update(map[CandidateID]float64{0: 0.8})
	if ev := s.Update(map[CandidateID]float64{0: 0.1}); ev != nil {
		t.Errorf("silence count not reset: %v", ev)
	}
}

func TestSelectorHoldsWithoutIdleDecay(t *testing.T) {
	s := NewSelector()
	s.Update(map[CandidateID]float64{0: 0.8})
	for range 1000 {
		if ev := s.Update(nil); ev != nil {
			t.Fatalf("event without idle decay: %v", ev)
		}
	}
	if st := s.State(); !st.Active || st.ID != 0 {
		t.Errorf("state = %v", st)
	}
}

func TestSelectorReset(t *testing.T) {
	s := NewSelector()
	s.Update(map[CandidateID]float64{0: 0.8})
	s.Reset()
	if s.State() != Idle {
		t.Errorf("state = %v, want idle", s.State())
	}
}

func TestEventKindText(t *testing.T) {
	for _, k := range []EventKind{EventActivated, EventSwitched, EventReleased} {
		b, _ := k.MarshalText()
		var got EventKind
		if err := got.UnmarshalText(b); err != nil || got != k {
			t.Errorf("%v: got %v, %v", k, got, err)
		}
	}
	var k EventKind
	if err := k.UnmarshalText([]byte("vanished")); err == nil {
		t.Error("expected error")
	}
}
