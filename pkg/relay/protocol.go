// Package relay serves active-speaker detection over a websocket.
//
// A browser runs face tracking locally and sends one "frame" message per
// video frame. The server scores the frame with a per-connection engine and
// answers with the per-face scores and, when the active speaker changes, a
// "speaker" and a "filter" message. The browser applies the filter to its
// own audio graph.
//
// Client → server:
//
//	{"type": "frame", "frame": {"seq": 1, "ts_ms": 16.7, "energy": 0.4, "faces": [...]}}
//	{"type": "reset"}
//
// Server → client:
//
//	{"type": "hello", "session": "…", "threshold": 0.3, "weights": {...}}
//	{"type": "scores", "seq": 1, "scores": [{"id": 0, "score": 0.42, "above": true}]}
//	{"type": "speaker", "seq": 1, "speaker": {"kind": "activated", "id": 0, ...}, "status": "…"}
//	{"type": "filter", "seq": 1, "filter": {"center_frequency_hz": 200, ...}}
//	{"type": "error", "seq": 1, "error": "…"}
//
// GET /schema serves the JSON Schema of client messages.
package relay

import (
	"fmt"

	"github.com/haivivi/voxlock/pkg/asd"
	"github.com/haivivi/voxlock/pkg/landmark"
)

// Message types.
const (
	TypeFrame   = "frame"
	TypeReset   = "reset"
	TypeHello   = "hello"
	TypeScores  = "scores"
	TypeSpeaker = "speaker"
	TypeFilter  = "filter"
	TypeError   = "error"
)

// Inbound is a client message.
type Inbound struct {
	Type  string          `json:"type"`
	Frame *landmark.Frame `json:"frame,omitempty"`
}

// FaceScore is the overlay data for one face.
type FaceScore struct {
	ID    int     `json:"id"`
	Score float64 `json:"score"`

	// Above reports whether the score clears the activation threshold.
	Above bool `json:"above"`
}

// Outbound is a server message.
type Outbound struct {
	Type      string                  `json:"type"`
	Session   string                  `json:"session,omitempty"`
	Seq       uint64                  `json:"seq,omitempty"`
	Threshold float64                 `json:"threshold,omitempty"`
	Weights   *asd.Weights            `json:"weights,omitempty"`
	Scores    []FaceScore             `json:"scores,omitempty"`
	Speaker   *asd.SpeakerChangeEvent `json:"speaker,omitempty"`
	Filter    *asd.FilterConfig       `json:"filter,omitempty"`
	Status    string                  `json:"status,omitempty"`
	Error     string                  `json:"error,omitempty"`
}

// StatusLine renders an event the way the UI shows it. Speakers are
// numbered from 1.
func StatusLine(ev asd.SpeakerChangeEvent) string {
	if ev.Kind == asd.EventReleased {
		return fmt.Sprintf("Released Speaker %d", ev.ID+1)
	}
	return fmt.Sprintf("Auto-selected Speaker %d (Score: %.2f)", ev.ID+1, ev.Score)
}

func scoresMessage(res asd.StepResult, threshold float64) Outbound {
	scores := make([]FaceScore, 0, len(res.Scores.Activities))
	for _, a := range res.Scores.Activities {
		scores = append(scores, FaceScore{ID: int(a.ID), Score: a.Score, Above: a.Score > threshold})
	}
	return Outbound{Type: TypeScores, Seq: res.Seq, Scores: scores}
}
