package trace

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/haivivi/voxlock/pkg/asd"
)

// SessionInfo describes one recorded stream.
type SessionInfo struct {
	ID      string      `msgpack:"id" yaml:"id" json:"id"`
	Source  string      `msgpack:"source" yaml:"source" json:"source"`
	Started time.Time   `msgpack:"started" yaml:"started" json:"started"`
	Weights asd.Weights `msgpack:"weights" yaml:"weights" json:"weights"`
}

// Record is one speaker change in a session.
type Record struct {
	Session  string            `msgpack:"session" yaml:"session" json:"session"`
	Seq      uint64            `msgpack:"seq" yaml:"seq" json:"seq"`
	Frame    uint64            `msgpack:"frame" yaml:"frame" json:"frame"`
	At       time.Time         `msgpack:"at" yaml:"at" json:"at"`
	Kind     string            `msgpack:"kind" yaml:"kind" json:"kind"`
	Speaker  int               `msgpack:"speaker" yaml:"speaker" json:"speaker"`
	Score    float64           `msgpack:"score" yaml:"score" json:"score"`
	Previous asd.State         `msgpack:"previous" yaml:"previous" json:"previous"`
	Filter   *asd.FilterConfig `msgpack:"filter,omitempty" yaml:"filter,omitempty" json:"filter,omitempty"`
}

func sessionKey(id string) Key { return Key{"session", id} }

func eventPrefix(id string) Key { return Key{"event", id} }

func eventKey(id string, seq uint64) Key {
	return Key{"event", id, fmt.Sprintf("%020d", seq)}
}

// Recorder appends the events of one session to a Store. It is safe for
// concurrent use.
type Recorder struct {
	store  Store
	info   SessionInfo
	logger *slog.Logger

	mu  sync.Mutex
	seq uint64
	now func() time.Time
}

// NewRecorder stores info and returns a Recorder appending to that session.
// Recording into an existing session continues after its last event.
func NewRecorder(ctx context.Context, store Store, info SessionInfo, logger *slog.Logger) (*Recorder, error) {
	if info.ID == "" {
		return nil, fmt.Errorf("trace: session id is required")
	}
	if info.Started.IsZero() {
		info.Started = time.Now().UTC()
	}
	if logger == nil {
		logger = slog.Default()
	}
	b, err := msgpack.Marshal(&info)
	if err != nil {
		return nil, fmt.Errorf("trace: encode session: %w", err)
	}
	if err := store.Set(ctx, sessionKey(info.ID), b); err != nil {
		return nil, fmt.Errorf("trace: save session %s: %w", info.ID, err)
	}

	r := &Recorder{store: store, info: info, logger: logger.With("session", info.ID), now: time.Now}
	for e, err := range store.List(ctx, eventPrefix(info.ID)) {
		if err != nil {
			return nil, fmt.Errorf("trace: scan session %s: %w", info.ID, err)
		}
		if n, err := strconv.ParseUint(e.Key[len(e.Key)-1], 10, 64); err == nil && n+1 > r.seq {
			r.seq = n + 1
		}
	}
	return r, nil
}

// Session returns the recorder's session info.
func (r *Recorder) Session() SessionInfo { return r.info }

// Record appends ev. filter is the config applied for it, if any.
func (r *Recorder) Record(ctx context.Context, frame uint64, ev asd.SpeakerChangeEvent, filter *asd.FilterConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec := Record{
		Session:  r.info.ID,
		Seq:      r.seq,
		Frame:    frame,
		At:       r.now().UTC(),
		Kind:     ev.Kind.String(),
		Speaker:  int(ev.ID),
		Score:    ev.Score,
		Previous: ev.Previous,
		Filter:   filter,
	}
	b, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("trace: encode record: %w", err)
	}
	if err := r.store.Set(ctx, eventKey(r.info.ID, rec.Seq), b); err != nil {
		return fmt.Errorf("trace: save record %d: %w", rec.Seq, err)
	}
	r.seq++
	r.logger.Debug("recorded", "seq", rec.Seq, "kind", rec.Kind, "speaker", rec.Speaker)
	return nil
}

// Sessions lists recorded sessions, oldest first.
func Sessions(ctx context.Context, store Store) ([]SessionInfo, error) {
	var out []SessionInfo
	for e, err := range store.List(ctx, Key{"session"}) {
		if err != nil {
			return nil, fmt.Errorf("trace: list sessions: %w", err)
		}
		var info SessionInfo
		if err := msgpack.Unmarshal(e.Value, &info); err != nil {
			return nil, fmt.Errorf("trace: decode session %s: %w", e.Key, err)
		}
		out = append(out, info)
	}
	slices.SortStableFunc(out, func(a, b SessionInfo) int { return a.Started.Compare(b.Started) })
	return out, nil
}

// Session returns the info of one session.
func Session(ctx context.Context, store Store, id string) (SessionInfo, error) {
	b, err := store.Get(ctx, sessionKey(id))
	if err != nil {
		return SessionInfo{}, fmt.Errorf("trace: session %s: %w", id, err)
	}
	var info SessionInfo
	if err := msgpack.Unmarshal(b, &info); err != nil {
		return SessionInfo{}, fmt.Errorf("trace: decode session %s: %w", id, err)
	}
	return info, nil
}

// Events returns the records of a session in order.
func Events(ctx context.Context, store Store, id string) ([]Record, error) {
	var out []Record
	for e, err := range store.List(ctx, eventPrefix(id)) {
		if err != nil {
			return nil, fmt.Errorf("trace: list events: %w", err)
		}
		var rec Record
		if err := msgpack.Unmarshal(e.Value, &rec); err != nil {
			return nil, fmt.Errorf("trace: decode %s: %w", e.Key, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// DeleteSession removes a session and its events.
func DeleteSession(ctx context.Context, store Store, id string) error {
	if err := store.DeletePrefix(ctx, eventPrefix(id)); err != nil {
		return fmt.Errorf("trace: delete events of %s: %w", id, err)
	}
	if err := store.DeletePrefix(ctx, sessionKey(id)); err != nil {
		return fmt.Errorf("trace: delete session %s: %w", id, err)
	}
	return nil
}
