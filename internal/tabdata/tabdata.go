// Package tabdata keeps the tab-scoped mappings of the store: generation results,
// answered questions and side-panel enablement, plus the local credit counter.
package tabdata

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/jonathan/one-click-apply/internal/store"
	"github.com/jonathan/one-click-apply/internal/types"
)

// Repository reads and writes tab-keyed aggregates. Every read-modify-write made
// through one Repository is serialized; writers in other processes are not.
type Repository struct {
	store store.Store
	mu    sync.Mutex
}

// New returns a Repository over s.
func New(s store.Store) *Repository {
	return &Repository{store: s}
}

// Result returns the latest generation result of tab.
func (r *Repository) Result(ctx context.Context, tab int) (types.GenerationResult, bool, error) {
	all, err := loadMap[types.GenerationResult](ctx, r.store, store.KeyAllSuggestions)
	if err != nil {
		return types.GenerationResult{}, false, err
	}
	res, ok := all[tab]
	return res, ok, nil
}

// SaveResult replaces the generation result of tab.
func (r *Repository) SaveResult(ctx context.Context, tab int, res types.GenerationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := loadMap[types.GenerationResult](ctx, r.store, store.KeyAllSuggestions)
	if err != nil {
		return err
	}
	all[tab] = res
	return r.store.Set(ctx, map[string]any{store.KeyAllSuggestions: all})
}

// Questions returns the answered questions of tab, newest first.
func (r *Repository) Questions(ctx context.Context, tab int) ([]types.AnsweredQuestion, error) {
	all, err := loadMap[[]types.AnsweredQuestion](ctx, r.store, store.KeyAllAnswered)
	if err != nil {
		return nil, err
	}
	return all[tab], nil
}

// PrependQuestion puts q at the head of tab's list.
func (r *Repository) PrependQuestion(ctx context.Context, tab int, q types.AnsweredQuestion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := loadMap[[]types.AnsweredQuestion](ctx, r.store, store.KeyAllAnswered)
	if err != nil {
		return err
	}
	all[tab] = append([]types.AnsweredQuestion{q}, all[tab]...)
	return r.store.Set(ctx, map[string]any{store.KeyAllAnswered: all})
}

// DeleteQuestion removes the question with the given id from tab's list. It reports
// whether a question was removed; an unknown id leaves the store untouched.
func (r *Repository) DeleteQuestion(ctx context.Context, tab int, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	all, err := loadMap[[]types.AnsweredQuestion](ctx, r.store, store.KeyAllAnswered)
	if err != nil {
		return false, err
	}

	list := all[tab]
	kept := make([]types.AnsweredQuestion, 0, len(list))
	for _, q := range list {
		if q.ID != id {
			kept = append(kept, q)
		}
	}
	if len(kept) == len(list) {
		return false, nil
	}
	all[tab] = kept
	return true, r.store.Set(ctx, map[string]any{store.KeyAllAnswered: all})
}

// ActivePanels returns the tabs whose side panel the user enabled.
func (r *Repository) ActivePanels(ctx context.Context) (map[int]bool, error) {
	return loadMap[bool](ctx, r.store, store.KeyActivePanelTabs)
}

// SetPanelActive records the panel state of tab. Disabled tabs are dropped from the mapping.
func (r *Repository) SetPanelActive(ctx context.Context, tab int, active bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	panels, err := loadMap[bool](ctx, r.store, store.KeyActivePanelTabs)
	if err != nil {
		return err
	}
	if active {
		panels[tab] = true
	} else {
		if _, ok := panels[tab]; !ok {
			return nil
		}
		delete(panels, tab)
	}
	return r.store.Set(ctx, map[string]any{store.KeyActivePanelTabs: panels})
}

// EvictTab removes tab from every tab-keyed mapping with a single read and a single write.
func (r *Repository) EvictTab(ctx context.Context, tab int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := []string{store.KeyAllSuggestions, store.KeyAllAnswered, store.KeyActivePanelTabs}
	values, err := r.store.Get(ctx, keys...)
	if err != nil {
		return fmt.Errorf("load tab data: %w", err)
	}

	updates := make(map[string]any, len(keys))
	for _, key := range keys {
		raw, ok := values[key]
		if !ok {
			continue
		}
		var entries map[int]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		if _, ok := entries[tab]; !ok {
			continue
		}
		delete(entries, tab)
		updates[key] = entries
	}
	if len(updates) == 0 {
		return nil
	}
	return r.store.Set(ctx, updates)
}

// UsedCredits returns the local consumed-credit counter.
func (r *Repository) UsedCredits(ctx context.Context) (int, error) {
	var used int
	if _, err := store.Load(ctx, r.store, store.KeyUsedCreditsCount, &used); err != nil {
		return 0, err
	}
	return used, nil
}

// IncrementUsedCredits adds one to the local counter and returns the new value.
func (r *Repository) IncrementUsedCredits(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	used, err := r.UsedCredits(ctx)
	if err != nil {
		return 0, err
	}
	used++
	if err := r.store.Set(ctx, map[string]any{store.KeyUsedCreditsCount: used}); err != nil {
		return 0, err
	}
	return used, nil
}

func loadMap[V any](ctx context.Context, s store.Store, key string) (map[int]V, error) {
	m := make(map[int]V)
	if _, err := store.Load(ctx, s, key, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = make(map[int]V)
	}
	return m, nil
}
