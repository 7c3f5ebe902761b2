package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runContract exercises the behaviour every backend must share.
func runContract(t *testing.T, open func(t *testing.T) Store) {
	t.Run("absent keys are omitted", func(t *testing.T) {
		s := open(t)
		values, err := s.Get(context.Background(), "missing")
		require.NoError(t, err)
		assert.Empty(t, values)
	})

	t.Run("set then get", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, map[string]any{
			KeyBrowserID:        "abc",
			KeyUsedCreditsCount: 3,
		}))

		values, err := s.Get(ctx, KeyBrowserID, KeyUsedCreditsCount, "other")
		require.NoError(t, err)
		assert.Len(t, values, 2)
		assert.JSONEq(t, `"abc"`, string(values[KeyBrowserID]))
		assert.JSONEq(t, `3`, string(values[KeyUsedCreditsCount]))
	})

	t.Run("overwrite notifies with old value", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		var (
			mu      sync.Mutex
			changes []Change
		)
		cancel := s.OnChange(func(c Change) {
			mu.Lock()
			changes = append(changes, c)
			mu.Unlock()
		})
		defer cancel()

		require.NoError(t, s.Set(ctx, map[string]any{KeyUsedCreditsCount: 1}))
		require.NoError(t, s.Set(ctx, map[string]any{KeyUsedCreditsCount: 2}))

		mu.Lock()
		defer mu.Unlock()
		require.Len(t, changes, 2)
		assert.Nil(t, changes[0].OldValue)
		assert.JSONEq(t, `1`, string(changes[1].OldValue))
		assert.JSONEq(t, `2`, string(changes[1].NewValue))
	})

	t.Run("remove", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, map[string]any{KeyBrowserID: "abc"}))

		var removed []Change
		cancel := s.OnChange(func(c Change) { removed = append(removed, c) })
		require.NoError(t, s.Remove(ctx, KeyBrowserID, "never-set"))
		cancel()

		values, err := s.Get(ctx, KeyBrowserID)
		require.NoError(t, err)
		assert.Empty(t, values)
		require.Len(t, removed, 1)
		assert.Equal(t, KeyBrowserID, removed[0].Key)
		assert.Nil(t, removed[0].NewValue)
	})

	t.Run("cancelled listener is not called", func(t *testing.T) {
		s := open(t)
		calls := 0
		cancel := s.OnChange(func(Change) { calls++ })
		cancel()
		cancel()
		require.NoError(t, s.Set(context.Background(), map[string]any{KeyBrowserID: "x"}))
		assert.Zero(t, calls)
	})

	t.Run("load treats null and empty as absent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, map[string]any{KeyAllSuggestions: nil}))

		var m map[int]json.RawMessage
		found, err := Load(ctx, s, KeyAllSuggestions, &m)
		require.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, m)

		found, err = Load(ctx, s, KeyFileStorage, &m)
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("load decodes tab keyed maps", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		require.NoError(t, s.Set(ctx, map[string]any{KeyActivePanelTabs: map[int]bool{42: true}}))

		var panels map[int]bool
		found, err := Load(ctx, s, KeyActivePanelTabs, &panels)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, map[int]bool{42: true}, panels)
	})

	t.Run("empty key rejected without writing", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		err := s.Set(ctx, map[string]any{"": 1, KeyBrowserID: "abc"})
		require.Error(t, err)

		values, err := s.Get(ctx, KeyBrowserID)
		require.NoError(t, err)
		assert.Empty(t, values)
	})
}

func TestMemory_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		s := NewMemory()
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLite_Contract(t *testing.T) {
	runContract(t, func(t *testing.T) Store {
		s, err := OpenSQLite(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	path := t.TempDir() + "/nested/store.db"
	ctx := context.Background()

	s, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, map[string]any{KeyBrowserID: "stable"}))
	require.NoError(t, s.Close())

	s, err = OpenSQLite(path)
	require.NoError(t, err)
	defer func() { _ = s.Close() }()

	var id string
	found, err := Load(ctx, s, KeyBrowserID, &id)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "stable", id)
}

func TestMemory_ClosedStore(t *testing.T) {
	s := NewMemory()
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), KeyBrowserID)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, s.Set(context.Background(), map[string]any{KeyBrowserID: "x"}), ErrClosed)
}

func TestOpen_Drivers(t *testing.T) {
	s, err := Open(context.Background(), Options{Driver: DriverMemory})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(context.Background(), Options{Driver: DriverSQLite, Path: ":memory:"})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	_ = s.Close()

	_, err = Open(context.Background(), Options{Driver: "redis"})
	assert.ErrorContains(t, err, "unknown driver")
}
