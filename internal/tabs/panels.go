package tabs

import (
	"context"
	"sync"
)

// PanelState is the side-panel state of one tab.
type PanelState string

const (
	PanelDisabled PanelState = "disabled"
	PanelEnabled  PanelState = "enabled"
)

// PanelHost applies side-panel changes in the browser.
type PanelHost interface {
	SetPanelEnabled(ctx context.Context, tabID int, enabled bool) error
	OpenPanel(ctx context.Context, tabID int) error
}

// Panels is the in-process PanelHost. The host shim reads it back to mirror panel
// state into the browser.
type Panels struct {
	mu     sync.RWMutex
	states map[int]PanelState
	open   map[int]bool
}

// NewPanels returns a PanelHost with every panel disabled.
func NewPanels() *Panels {
	return &Panels{states: make(map[int]PanelState), open: make(map[int]bool)}
}

// SetPanelEnabled implements PanelHost.
func (p *Panels) SetPanelEnabled(_ context.Context, tabID int, enabled bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if enabled {
		p.states[tabID] = PanelEnabled
		return nil
	}
	p.states[tabID] = PanelDisabled
	delete(p.open, tabID)
	return nil
}

// OpenPanel implements PanelHost.
func (p *Panels) OpenPanel(_ context.Context, tabID int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.open[tabID] = true
	return nil
}

// State returns the panel state of a tab; unknown tabs are disabled.
func (p *Panels) State(tabID int) PanelState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if s, ok := p.states[tabID]; ok {
		return s
	}
	return PanelDisabled
}

// IsOpen reports whether the panel of a tab was opened.
func (p *Panels) IsOpen(tabID int) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.open[tabID]
}

// Forget drops all state of a closed tab.
func (p *Panels) Forget(tabID int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.states, tabID)
	delete(p.open, tabID)
}
