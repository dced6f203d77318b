// Package trace records speaker-change events per session and exports them
// as YAML documents.
//
// Events are msgpack-encoded and kept in a Store under hierarchical keys:
//
//	session:<id>            → SessionInfo
//	event:<id>:<seq>        → Record
//
// Sequence numbers are zero-padded so a prefix scan returns events in
// order. Badger backs production stores; Memory serves tests and one-shot
// replays.
package trace

import (
	"context"
	"errors"
	"iter"
	"strings"
)

// ErrNotFound is returned when a key or session does not exist.
var ErrNotFound = errors.New("trace: not found")

// Key is a hierarchical store key. Segments must not contain ':'.
type Key []string

func (k Key) String() string { return strings.Join(k, ":") }

func (k Key) bytes() []byte { return []byte(k.String()) }

// prefix returns the encoded key followed by the separator, so that
// "event:a" does not match "event:ab".
func (k Key) prefix() []byte {
	if len(k) == 0 {
		return nil
	}
	return append(k.bytes(), ':')
}

func parseKey(b []byte) Key { return Key(strings.Split(string(b), ":")) }

// Entry is a key-value pair returned by List.
type Entry struct {
	Key   Key
	Value []byte
}

// Store is the persistence interface the recorder writes through.
type Store interface {
	// Get returns ErrNotFound when key is absent.
	Get(ctx context.Context, key Key) ([]byte, error)
	Set(ctx context.Context, key Key, value []byte) error

	// List yields entries under prefix in lexicographic key order.
	List(ctx context.Context, prefix Key) iter.Seq2[Entry, error]

	// DeletePrefix removes key itself and everything under it.
	DeletePrefix(ctx context.Context, prefix Key) error

	Close() error
}
