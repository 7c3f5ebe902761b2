// Package store provides the shared key-value store that every surface of the
// coordinator reads and writes.
//
// A single Set call is applied atomically. A read-modify-write spanning Get and
// Set is not: callers that mutate aggregate keys must serialize themselves.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Well-known keys.
const (
	KeyBrowserID        = "browserId"
	KeyFileStorage      = "fileStorage"
	KeyAllSuggestions   = "allSuggestions"
	KeyAllAnswered      = "allAnsweredQuestions"
	KeyActivePanelTabs  = "activePanelTabs"
	KeyUsedCreditsCount = "usedSuggestionCreditsCount"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store: closed")

// Change describes a committed write. OldValue is nil when the key was absent,
// NewValue is nil when the key was removed.
type Change struct {
	Key      string
	OldValue json.RawMessage
	NewValue json.RawMessage
}

// ChangeFunc receives change notifications.
type ChangeFunc func(Change)

// Store is the shared key-value store contract.
type Store interface {
	// Get returns the values of the requested keys. Absent keys are missing from the result.
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	// Set JSON-encodes and writes every item in one atomic step.
	Set(ctx context.Context, items map[string]any) error
	// Remove deletes the given keys; absent keys are ignored.
	Remove(ctx context.Context, keys ...string) error
	// OnChange registers fn for change notifications and returns a function that unregisters it.
	OnChange(fn ChangeFunc) (cancel func())
	// Close releases the store's resources.
	Close() error
}

// Load decodes key into v. It reports found=false, leaving v untouched, when the key is
// absent or holds null or an empty value.
func Load(ctx context.Context, s Store, key string, v any) (bool, error) {
	values, err := s.Get(ctx, key)
	if err != nil {
		return false, err
	}
	raw, ok := values[key]
	if !ok || isEmpty(raw) {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func isEmpty(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// encode marshals items and returns them with their keys in a stable order.
func encode(items map[string]any) ([]string, map[string][]byte, error) {
	keys := make([]string, 0, len(items))
	encoded := make(map[string][]byte, len(items))
	for k, v := range items {
		if k == "" {
			return nil, nil, errors.New("store: empty key")
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, nil, fmt.Errorf("encode %s: %w", k, err)
		}
		keys = append(keys, k)
		encoded[k] = data
	}
	sort.Strings(keys)
	return keys, encoded, nil
}

// notifier fans change notifications out to registered listeners.
type notifier struct {
	mu        sync.RWMutex
	next      int
	listeners map[int]ChangeFunc
}

func (n *notifier) subscribe(fn ChangeFunc) func() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.listeners == nil {
		n.listeners = make(map[int]ChangeFunc)
	}
	id := n.next
	n.next++
	n.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			n.mu.Lock()
			delete(n.listeners, id)
			n.mu.Unlock()
		})
	}
}

func (n *notifier) notify(changes []Change) {
	if len(changes) == 0 {
		return
	}
	n.mu.RLock()
	fns := make([]ChangeFunc, 0, len(n.listeners))
	for _, fn := range n.listeners {
		fns = append(fns, fn)
	}
	n.mu.RUnlock()

	for _, c := range changes {
		for _, fn := range fns {
			fn(c)
		}
	}
}
