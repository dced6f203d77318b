package trace

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"strings"
	"sync"
)

var _ Store = (*Memory)(nil)

// Memory is an in-memory Store. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	v, ok := m.data[key.String()]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(v), nil
}

func (m *Memory) Set(_ context.Context, key Key, value []byte) error {
	m.mu.Lock()
	m.data[key.String()] = bytes.Clone(value)
	m.mu.Unlock()
	return nil
}

func (m *Memory) List(_ context.Context, prefix Key) iter.Seq2[Entry, error] {
	p := string(prefix.prefix())
	m.mu.RLock()
	var keys []string
	for k := range m.data {
		if strings.HasPrefix(k, p) {
			keys = append(keys, k)
		}
	}
	entries := make([]Entry, 0, len(keys))
	slices.Sort(keys)
	for _, k := range keys {
		entries = append(entries, Entry{Key: parseKey([]byte(k)), Value: bytes.Clone(m.data[k])})
	}
	m.mu.RUnlock()

	return func(yield func(Entry, error) bool) {
		for _, e := range entries {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (m *Memory) DeletePrefix(_ context.Context, prefix Key) error {
	exact := prefix.String()
	p := string(prefix.prefix())
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.data {
		if k == exact || strings.HasPrefix(k, p) {
			delete(m.data, k)
		}
	}
	return nil
}

func (m *Memory) Close() error { return nil }
