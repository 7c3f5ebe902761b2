// Package identity manages the browser identity that stands in for a user account.
package identity

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/jonathan/one-click-apply/internal/store"
)

// Provider resolves the browser identity, creating it on first use.
type Provider struct {
	store store.Store
	mu    sync.Mutex
	// newID is replaceable in tests.
	newID func() string
}

// NewProvider returns a Provider over s.
func NewProvider(s store.Store) *Provider {
	return &Provider{store: s, newID: uuid.NewString}
}

// Get returns the stored identity, or "" when none has been created yet.
func (p *Provider) Get(ctx context.Context) (string, error) {
	var id string
	if _, err := store.Load(ctx, p.store, store.KeyBrowserID, &id); err != nil {
		return "", fmt.Errorf("load browser id: %w", err)
	}
	return id, nil
}

// GetOrCreate returns the stored identity, generating and persisting one if absent.
// Once set the identity never changes.
func (p *Provider) GetOrCreate(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.Get(ctx)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = p.newID()
	if err := p.store.Set(ctx, map[string]any{store.KeyBrowserID: id}); err != nil {
		return "", fmt.Errorf("save browser id: %w", err)
	}
	return id, nil
}
