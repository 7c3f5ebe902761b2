// Package coordinator is the long-lived background process: it reacts to host tab
// events, owns side-panel enablement and answers messages from UI surfaces.
//
// In-memory state is a cache. It is rebuilt from the store on install and startup.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/one-click-apply/internal/events"
	"github.com/jonathan/one-click-apply/internal/extract"
	"github.com/jonathan/one-click-apply/internal/fetch"
	"github.com/jonathan/one-click-apply/internal/tabdata"
	"github.com/jonathan/one-click-apply/internal/tabs"
)

// EventKind names a host event.
type EventKind string

const (
	EventInstalled     EventKind = "installed"
	EventStartup       EventKind = "startup"
	EventActionClicked EventKind = "actionClicked"
	EventTabCreated    EventKind = "tabCreated"
	EventTabRemoved    EventKind = "tabRemoved"
	EventTabUpdated    EventKind = "tabUpdated"
	EventWindowFocused EventKind = "windowFocused"
)

// Event is a host event. Tab is set for tab events, TabID for removals, WindowID
// for focus changes. Tabs lists every open tab on install and startup.
type Event struct {
	Kind     EventKind  `json:"kind"`
	Tab      *tabs.Tab  `json:"tab,omitempty"`
	TabID    int        `json:"tabId,omitempty"`
	WindowID int        `json:"windowId,omitempty"`
	Tabs     []tabs.Tab `json:"tabs,omitempty"`
}

// ErrInvalidEvent is returned for events missing the data their kind requires.
var ErrInvalidEvent = errors.New("invalid host event")

// PageLoader loads a page that the host did not push a snapshot for.
type PageLoader interface {
	Page(ctx context.Context, url string) (*fetch.Result, error)
}

// restoreConcurrency bounds parallel panel updates on startup.
const restoreConcurrency = 8

// Coordinator serializes everything that must not race between surfaces.
type Coordinator struct {
	registry *tabs.Registry
	panels   tabs.PanelHost
	data     *tabdata.Repository
	loader   PageLoader
	bus      *events.Bus
	log      *zap.Logger

	mu     sync.Mutex
	states map[int]tabs.PanelState
	active mapset.Set[int]

	creditsMu sync.Mutex
	handlers  map[string]handlerFunc

	// lifeMu orders tab removal against writes scoped to that tab.
	lifeMu sync.RWMutex
}

// New returns a Coordinator. loader may be nil, in which case only pushed page
// snapshots can be extracted.
func New(registry *tabs.Registry, panels tabs.PanelHost, data *tabdata.Repository, loader PageLoader, bus *events.Bus, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{
		registry: registry,
		panels:   panels,
		data:     data,
		loader:   loader,
		bus:      bus,
		log:      log,
		states:   make(map[int]tabs.PanelState),
		active:   mapset.NewSet[int](),
	}
	c.handlers = map[string]handlerFunc{
		ActionGetCurrentURL:    c.handleGetCurrentURL,
		ActionGetPageContent:   c.handleGetPageContent,
		ActionIncrementCredits: c.handleIncrementCredits,
		ActionRefreshCredits:   c.handleRefreshCredits,
	}
	return c
}

// HandleEvent applies one host event. Only malformed events return an error;
// failures while applying an event are logged.
func (c *Coordinator) HandleEvent(ctx context.Context, e Event) error {
	switch e.Kind {
	case EventInstalled, EventStartup:
		c.onInstalledOrStartup(ctx, e)
	case EventActionClicked:
		if e.Tab == nil {
			return fmt.Errorf("%w: %s requires a tab", ErrInvalidEvent, e.Kind)
		}
		c.onActionClicked(ctx, *e.Tab)
	case EventTabCreated:
		if e.Tab == nil {
			return fmt.Errorf("%w: %s requires a tab", ErrInvalidEvent, e.Kind)
		}
		c.onTabCreated(ctx, *e.Tab)
	case EventTabRemoved:
		id := e.TabID
		if id == 0 && e.Tab != nil {
			id = e.Tab.ID
		}
		if id == 0 {
			return fmt.Errorf("%w: %s requires a tab id", ErrInvalidEvent, e.Kind)
		}
		c.onTabRemoved(ctx, id)
	case EventTabUpdated:
		if e.Tab == nil {
			return fmt.Errorf("%w: %s requires a tab", ErrInvalidEvent, e.Kind)
		}
		c.registry.Upsert(*e.Tab)
		if e.Tab.Active {
			c.registry.FocusWindow(e.Tab.WindowID)
		}
	case EventWindowFocused:
		c.registry.FocusWindow(e.WindowID)
	default:
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidEvent, e.Kind)
	}
	return nil
}

// onInstalledOrStartup re-derives every tab's panel state from the persisted
// active-panel mapping. Recorded tabs that are no longer open are evicted.
func (c *Coordinator) onInstalledOrStartup(ctx context.Context, e Event) {
	for _, t := range e.Tabs {
		c.registry.Upsert(t)
	}

	persisted, err := c.data.ActivePanels(ctx)
	if err != nil {
		c.log.Error("failed to load active panels, disabling all", zap.Error(err))
		persisted = map[int]bool{}
	}

	open := c.registry.All()
	c.mu.Lock()
	c.active.Clear()
	next := make(map[int]tabs.PanelState, len(open))
	for _, t := range open {
		state := transition(c.states[t.ID], e.Kind)
		if persisted[t.ID] {
			state = transition(state, EventActionClicked)
			c.active.Add(t.ID)
		}
		next[t.ID] = state
	}
	c.states = next
	c.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(restoreConcurrency)
	for id, state := range next {
		g.Go(func() error {
			if err := c.panels.SetPanelEnabled(gctx, id, state == tabs.PanelEnabled); err != nil {
				return fmt.Errorf("tab %d: %w", id, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.log.Error("failed to restore panel state", zap.Error(err))
	}

	// Tabs closed while the process was down never produced a removal event.
	if e.Tabs == nil {
		return
	}
	for id := range persisted {
		if _, ok := next[id]; ok {
			continue
		}
		if err := c.data.EvictTab(ctx, id); err != nil {
			c.log.Warn("failed to evict stale tab", zap.Int("tab_id", id), zap.Error(err))
		}
	}
	c.log.Info("panel state restored", zap.String("event", string(e.Kind)), zap.Int("tabs", len(next)), zap.Int("enabled", c.active.Cardinality()))
}

// onActionClicked enables and opens the panel before anything else, then records the choice.
func (c *Coordinator) onActionClicked(ctx context.Context, tab tabs.Tab) {
	c.registry.Upsert(tab)

	if err := c.panels.SetPanelEnabled(ctx, tab.ID, true); err != nil {
		c.log.Error("failed to enable panel", zap.Int("tab_id", tab.ID), zap.Error(err))
		return
	}
	if err := c.panels.OpenPanel(ctx, tab.ID); err != nil {
		c.log.Error("failed to open panel", zap.Int("tab_id", tab.ID), zap.Error(err))
	}

	c.mu.Lock()
	c.states[tab.ID] = transition(c.states[tab.ID], EventActionClicked)
	c.active.Add(tab.ID)
	c.mu.Unlock()

	if err := c.data.SetPanelActive(ctx, tab.ID, true); err != nil {
		c.log.Error("failed to persist active panel", zap.Int("tab_id", tab.ID), zap.Error(err))
	}
}

// onTabCreated disables the panel of a new tab; panels are never inherited.
func (c *Coordinator) onTabCreated(ctx context.Context, tab tabs.Tab) {
	c.registry.Upsert(tab)

	c.mu.Lock()
	c.states[tab.ID] = transition(c.states[tab.ID], EventTabCreated)
	c.active.Remove(tab.ID)
	c.mu.Unlock()

	if err := c.panels.SetPanelEnabled(ctx, tab.ID, false); err != nil {
		c.log.Error("failed to disable panel", zap.Int("tab_id", tab.ID), zap.Error(err))
	}
}

// onTabRemoved evicts the tab's stored data. Failure is logged; the data is tab-scoped
// and cannot affect other tabs.
func (c *Coordinator) onTabRemoved(ctx context.Context, tabID int) {
	c.lifeMu.Lock()
	if err := c.data.EvictTab(ctx, tabID); err != nil {
		c.log.Warn("failed to evict closed tab", zap.Int("tab_id", tabID), zap.Error(err))
	}
	c.registry.Remove(tabID)
	c.lifeMu.Unlock()

	c.mu.Lock()
	delete(c.states, tabID)
	c.active.Remove(tabID)
	c.mu.Unlock()

	if f, ok := c.panels.(interface{ Forget(int) }); ok {
		f.Forget(tabID)
	}
}

// PanelState returns the cached panel state of a tab.
func (c *Coordinator) PanelState(tabID int) tabs.PanelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return transition(c.states[tabID], "")
}

// ActivePanelTabs returns the tabs whose panel is enabled, from the cache.
func (c *Coordinator) ActivePanelTabs() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active.ToSlice()
}

// Tab returns a tab known to the host.
func (c *Coordinator) Tab(tabID int) (tabs.Tab, error) {
	t, ok := c.registry.Tab(tabID)
	if !ok {
		return tabs.Tab{}, tabs.ErrUnknownTab
	}
	return t, nil
}

// WhileOpen runs fn only if tabID is still open, and keeps the tab from being
// removed until fn returns. It returns tabs.ErrUnknownTab for a closed tab, so
// work finished after the close event never reaches the store.
func (c *Coordinator) WhileOpen(ctx context.Context, tabID int, fn func(context.Context) error) error {
	c.lifeMu.RLock()
	defer c.lifeMu.RUnlock()
	if _, ok := c.registry.Tab(tabID); !ok {
		return fmt.Errorf("tab %d: %w", tabID, tabs.ErrUnknownTab)
	}
	return fn(ctx)
}

// Tabs returns every open tab ordered by id.
func (c *Coordinator) Tabs() []tabs.Tab { return c.registry.All() }

// SetPage records a DOM snapshot pushed by the content shim.
func (c *Coordinator) SetPage(tabID int, page tabs.Page) error {
	return c.registry.SetPage(tabID, page)
}

// CurrentURL is the answer to getCurrentUrl.
type CurrentURL struct {
	URL      string `json:"url"`
	TabID    int    `json:"tabId"`
	WindowID int    `json:"windowId"`
}

// CurrentURL resolves the active tab across windows.
func (c *Coordinator) CurrentURL(_ context.Context) (CurrentURL, error) {
	t, err := c.registry.ActiveTab()
	if err != nil {
		return CurrentURL{}, err
	}
	return CurrentURL{URL: t.URL, TabID: t.ID, WindowID: t.WindowID}, nil
}

// PageContent extracts the text of a tab, the active one when tabID is zero. A
// pushed snapshot is preferred; otherwise the page is loaded by URL.
func (c *Coordinator) PageContent(ctx context.Context, tabID int) (extract.Result, error) {
	var (
		tab tabs.Tab
		err error
	)
	if tabID == 0 {
		tab, err = c.registry.ActiveTab()
	} else {
		tab, err = c.Tab(tabID)
	}
	if err != nil {
		return extract.Result{}, err
	}

	if page, ok := c.registry.Page(tab.ID); ok {
		return extract.PageContent(page.URL, page.HTML, page.Frames...), nil
	}
	if c.loader == nil || tab.URL == "" {
		return extract.Result{}, fmt.Errorf("no content available for tab %d", tab.ID)
	}
	page, err := c.loader.Page(ctx, tab.URL)
	if err != nil {
		return extract.Result{}, err
	}
	return extract.PageContent(tab.URL, page.HTML), nil
}

// IncrementCredits adds one to the local consumed-credit counter. Calls are
// serialized, so concurrent increments are never lost.
func (c *Coordinator) IncrementCredits(ctx context.Context) (int, error) {
	c.creditsMu.Lock()
	defer c.creditsMu.Unlock()
	return c.data.IncrementUsedCredits(ctx)
}

// RefreshCredits tells every surface to re-fetch its credit balance.
func (c *Coordinator) RefreshCredits() {
	c.bus.Publish(events.Event{Type: events.CreditUpdateRequired})
}
