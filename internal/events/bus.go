// Package events broadcasts coordinator events to every listening UI surface.
package events

import (
	"sync"
	"time"
)

// Type names a broadcast event.
type Type string

const (
	// CreditUpdateRequired tells surfaces to re-fetch the credit balance.
	CreditUpdateRequired Type = "creditUpdateRequired"
	// GenerationProgress carries the progress of a tab's generation session.
	GenerationProgress Type = "generationProgress"
)

// Event is one broadcast message.
type Event struct {
	Type      Type  `json:"type"`
	TabID     int   `json:"tabId,omitempty"`
	Timestamp int64 `json:"timestamp"`
	Data      any   `json:"data,omitempty"`
}

// DefaultBuffer is the per-subscriber queue length.
const DefaultBuffer = 32

// Bus fans events out to subscribers. Publishing never blocks: a subscriber whose
// queue is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	buffer int
}

// NewBus returns a Bus with the given per-subscriber buffer.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Bus{subs: make(map[int]chan Event), buffer: buffer}
}

// Subscribe returns a channel of events and a function that closes it.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(ch)
			b.mu.Unlock()
		})
	}
}

// Publish delivers e to every subscriber. A zero Timestamp is set to now in milliseconds.
func (b *Bus) Publish(e Event) {
	if e.Timestamp == 0 {
		e.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribers returns the number of active subscribers.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
