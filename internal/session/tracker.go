package session

import (
	"sync"

	"github.com/jonathan/one-click-apply/internal/events"
	"github.com/jonathan/one-click-apply/internal/types"
)

// Tracker holds the in-memory progress of running sessions, one per tab. Progress
// is never persisted.
type Tracker struct {
	mu       sync.RWMutex
	progress map[int]types.GenerationProgress
	bus      *events.Bus
}

// NewTracker returns a Tracker publishing changes on bus, which may be nil.
func NewTracker(bus *events.Bus) *Tracker {
	return &Tracker{progress: make(map[int]types.GenerationProgress), bus: bus}
}

// Get returns the progress of tab, or nil when no session is running.
func (t *Tracker) Get(tabID int) *types.GenerationProgress {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.progress[tabID]
	if !ok {
		return nil
	}
	return &p
}

// set records p and publishes it.
func (t *Tracker) set(p types.GenerationProgress) {
	t.mu.Lock()
	t.progress[p.TabID] = p
	t.mu.Unlock()
	t.publish(p.TabID, &p)
}

// clear drops the progress of tab. Subscribers receive a nil progress so that no
// stale bar stays on screen.
func (t *Tracker) clear(tabID int) {
	t.mu.Lock()
	delete(t.progress, tabID)
	t.mu.Unlock()
	t.publish(tabID, nil)
}

// finish drops the progress of a completed session. The completed stage was
// already published.
func (t *Tracker) finish(tabID int) {
	t.mu.Lock()
	delete(t.progress, tabID)
	t.mu.Unlock()
}

func (t *Tracker) publish(tabID int, p *types.GenerationProgress) {
	if t.bus == nil {
		return
	}
	e := events.Event{Type: events.GenerationProgress, TabID: tabID}
	if p != nil {
		e.Data = *p
	}
	t.bus.Publish(e)
}
