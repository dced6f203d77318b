package landmark

import (
	"errors"
	"fmt"
	"time"

	"github.com/haivivi/voxlock/pkg/asd"
)

// ErrMalformed wraps decoding failures of a single frame.
var ErrMalformed = errors.New("landmark: malformed frame")

// Face is one face on the wire. Exactly one of Landmarks and Mesh is
// expected; Landmarks wins when both are present.
type Face struct {
	ID        int                   `json:"id" msgpack:"id"`
	Landmarks map[string][2]float64 `json:"landmarks,omitempty" msgpack:"landmarks,omitempty"`
	Mesh      [][]float64           `json:"mesh,omitempty" msgpack:"mesh,omitempty"`
}

// Frame is one video frame on the wire.
type Frame struct {
	Seq uint64 `json:"seq" msgpack:"seq"`

	// TimestampMs is the capture time in milliseconds on any monotonic
	// clock, zero included. Used to derive the interval when IntervalMs is
	// absent.
	TimestampMs *float64 `json:"ts_ms,omitempty" msgpack:"ts_ms,omitempty"`
	IntervalMs  float64 `json:"interval_ms,omitempty" msgpack:"interval_ms,omitempty"`

	// Energy is the microphone level recorded with the frame, if any.
	Energy *float64 `json:"energy,omitempty" msgpack:"energy,omitempty"`

	Faces []Face `json:"faces" msgpack:"faces"`
}

// landmarks converts the face to asd form.
func (f Face) landmarks() asd.Landmarks {
	if len(f.Landmarks) == 0 {
		return FromFaceMesh(f.Mesh)
	}
	l := make(asd.Landmarks, len(f.Landmarks))
	for role, xy := range f.Landmarks {
		l[asd.Role(role)] = asd.Point{X: xy[0], Y: xy[1]}
	}
	return l
}

// Validate checks what the scorer cannot: ids must be non-negative.
func (f Frame) Validate() error {
	for _, face := range f.Faces {
		if face.ID < 0 {
			return fmt.Errorf("%w: seq %d: negative face id %d", ErrMalformed, f.Seq, face.ID)
		}
	}
	return nil
}

// Core converts f into an asd.Frame. prevTimestampMs is the last timestamp
// seen on the stream, or nil if there is none.
func (f Frame) Core(prevTimestampMs *float64) asd.Frame {
	out := asd.Frame{
		Seq:    f.Seq,
		Energy: f.Energy,
		Faces:  make([]asd.Face, 0, len(f.Faces)),
	}
	switch {
	case f.IntervalMs > 0:
		out.Interval = msToDuration(f.IntervalMs)
	case prevTimestampMs != nil && f.TimestampMs != nil && *f.TimestampMs > *prevTimestampMs:
		out.Interval = msToDuration(*f.TimestampMs - *prevTimestampMs)
	}
	for _, face := range f.Faces {
		out.Faces = append(out.Faces, asd.Face{ID: asd.CandidateID(face.ID), Landmarks: face.landmarks()})
	}
	return out
}

// FromCore builds a wire frame with named landmarks.
func FromCore(f asd.Frame, timestampMs float64) Frame {
	out := Frame{
		Seq:         f.Seq,
		TimestampMs: &timestampMs,
		Energy:      f.Energy,
		Faces:       make([]Face, 0, len(f.Faces)),
	}
	if f.Interval > 0 {
		out.IntervalMs = float64(f.Interval) / float64(time.Millisecond)
	}
	for _, face := range f.Faces {
		named := make(map[string][2]float64, len(face.Landmarks))
		for role, p := range face.Landmarks {
			named[string(role)] = [2]float64{p.X, p.Y}
		}
		out.Faces = append(out.Faces, Face{ID: int(face.ID), Landmarks: named})
	}
	return out
}

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
