// Package tabs models the host browser: its windows and tabs, the DOM snapshots
// the content shim pushes, and per-tab side-panel state.
package tabs

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jonathan/one-click-apply/internal/extract"
)

// WindowIDNone is reported by the host when no browser window has focus.
const WindowIDNone = -1

var (
	// ErrNoActiveTab is returned when no window has an active tab.
	ErrNoActiveTab = errors.New("no active job page found")
	// ErrUnknownTab is returned for tab ids the host never reported.
	ErrUnknownTab = errors.New("unknown tab")
)

// Tab is a browser tab as reported by the host.
type Tab struct {
	ID       int    `json:"id"`
	WindowID int    `json:"windowId"`
	URL      string `json:"url,omitempty"`
	Title    string `json:"title,omitempty"`
	Active   bool   `json:"active"`
}

// Page is a DOM snapshot of a tab.
type Page struct {
	URL        string          `json:"url"`
	HTML       string          `json:"html"`
	Frames     []extract.Frame `json:"frames,omitempty"`
	CapturedAt time.Time       `json:"capturedAt"`
}

// Registry tracks the tabs and window focus of the host. It is an in-memory cache
// refilled by host events.
type Registry struct {
	mu            sync.RWMutex
	tabs          map[int]Tab
	pages         map[int]Page
	focusedWindow int
	lastFocused   int
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tabs:          make(map[int]Tab),
		pages:         make(map[int]Page),
		focusedWindow: WindowIDNone,
		lastFocused:   WindowIDNone,
	}
}

// Upsert records tab. An active tab deactivates the other tabs of its window.
func (r *Registry) Upsert(tab Tab) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tab.Active {
		for id, other := range r.tabs {
			if other.WindowID == tab.WindowID && other.Active && id != tab.ID {
				other.Active = false
				r.tabs[id] = other
			}
		}
	}
	if prev, ok := r.tabs[tab.ID]; ok && prev.URL != tab.URL {
		delete(r.pages, tab.ID)
	}
	r.tabs[tab.ID] = tab
}

// Remove forgets a tab and its snapshot.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tabs, id)
	delete(r.pages, id)
}

// Tab returns the tab with the given id.
func (r *Registry) Tab(id int) (Tab, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tabs[id]
	return t, ok
}

// All returns every known tab ordered by id.
func (r *Registry) All() []Tab {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Tab, 0, len(r.tabs))
	for _, t := range r.tabs {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FocusWindow records a window focus change. WindowIDNone means the browser lost focus.
func (r *Registry) FocusWindow(windowID int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.focusedWindow = windowID
	if windowID != WindowIDNone {
		r.lastFocused = windowID
	}
}

// ActiveTab returns the active tab of the focused window, falling back to the
// last focused window.
func (r *Registry) ActiveTab() (Tab, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, w := range []int{r.focusedWindow, r.lastFocused} {
		if w == WindowIDNone {
			continue
		}
		for _, t := range r.tabs {
			if t.WindowID == w && t.Active {
				return t, nil
			}
		}
	}
	return Tab{}, ErrNoActiveTab
}

// SetPage stores the DOM snapshot of a known tab.
func (r *Registry) SetPage(id int, page Page) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tab, ok := r.tabs[id]
	if !ok {
		return ErrUnknownTab
	}
	if page.CapturedAt.IsZero() {
		page.CapturedAt = time.Now()
	}
	if page.URL != "" && page.URL != tab.URL {
		tab.URL = page.URL
		r.tabs[id] = tab
	}
	r.pages[id] = page
	return nil
}

// Page returns the latest snapshot of a tab.
func (r *Registry) Page(id int) (Page, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pages[id]
	return p, ok
}
