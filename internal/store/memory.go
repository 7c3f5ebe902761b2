package store

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-process Store. Its contents do not survive a restart.
type Memory struct {
	mu     sync.RWMutex
	data   map[string][]byte
	closed bool
	notifier
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, keys ...string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}

	out := make(map[string]json.RawMessage, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out, nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, items map[string]any) error {
	keys, encoded, err := encode(items)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	changes := make([]Change, 0, len(keys))
	for _, k := range keys {
		changes = append(changes, Change{Key: k, OldValue: m.data[k], NewValue: encoded[k]})
		m.data[k] = encoded[k]
	}
	m.mu.Unlock()

	m.notify(changes)
	return nil
}

// Remove implements Store.
func (m *Memory) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	var changes []Change
	for _, k := range keys {
		if old, ok := m.data[k]; ok {
			changes = append(changes, Change{Key: k, OldValue: old})
			delete(m.data, k)
		}
	}
	m.mu.Unlock()

	m.notify(changes)
	return nil
}

// OnChange implements Store.
func (m *Memory) OnChange(fn ChangeFunc) func() { return m.subscribe(fn) }

// Close implements Store.
func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
