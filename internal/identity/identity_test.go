package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/one-click-apply/internal/store"
)

func TestGetOrCreate_StableAcrossReads(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(store.NewMemory())

	first, err := p.GetOrCreate(ctx)
	require.NoError(t, err)
	_, err = uuid.Parse(first)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		again, err := p.GetOrCreate(ctx)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	stored, err := p.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, first, stored)
}

func TestGetOrCreate_KeepsExistingValue(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Set(ctx, map[string]any{store.KeyBrowserID: "preexisting"}))

	p := NewProvider(s)
	p.newID = func() string {
		t.Fatal("must not generate a new id")
		return ""
	}

	id, err := p.GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "preexisting", id)
}

func TestGetOrCreate_EmptyValueIsAbsent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	require.NoError(t, s.Set(ctx, map[string]any{store.KeyBrowserID: nil}))

	p := NewProvider(s)
	p.newID = func() string { return "generated" }

	id, err := p.GetOrCreate(ctx)
	require.NoError(t, err)
	assert.Equal(t, "generated", id)
}

func TestGetOrCreate_ConcurrentCallersShareOneID(t *testing.T) {
	ctx := context.Background()
	p := NewProvider(store.NewMemory())

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[string]struct{}{}
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := p.GetOrCreate(ctx)
			assert.NoError(t, err)
			mu.Lock()
			ids[id] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, ids, 1)
}
