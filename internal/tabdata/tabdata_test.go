package tabdata

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/one-click-apply/internal/store"
	"github.com/jonathan/one-click-apply/internal/types"
)

// countingStore records how often the repository touches the backend.
type countingStore struct {
	store.Store
	mu   sync.Mutex
	gets int
	sets int
}

func (c *countingStore) Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.Store.Get(ctx, keys...)
}

func (c *countingStore) Set(ctx context.Context, items map[string]any) error {
	c.mu.Lock()
	c.sets++
	c.mu.Unlock()
	return c.Store.Set(ctx, items)
}

func sampleResult(title string) types.GenerationResult {
	return types.GenerationResult{
		JobTitleName: title,
		CompanyName:  "Acme",
		CoverLetter:  "Dear Acme",
		ResumeSuggestions: []types.ResumeSuggestion{
			{Where: "Summary", Suggestion: "Mention Go", Reason: "Required skill"},
		},
	}
}

func TestSaveResult_OverwritesOnlyThatTab(t *testing.T) {
	ctx := context.Background()
	repo := New(store.NewMemory())

	require.NoError(t, repo.SaveResult(ctx, 1, sampleResult("first")))
	require.NoError(t, repo.SaveResult(ctx, 2, sampleResult("other tab")))
	require.NoError(t, repo.SaveResult(ctx, 1, sampleResult("second")))

	res, ok, err := repo.Result(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", res.JobTitleName)

	res, ok, err = repo.Result(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "other tab", res.JobTitleName)

	_, ok, err = repo.Result(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuestions_PrependAndDelete(t *testing.T) {
	ctx := context.Background()
	repo := New(store.NewMemory())

	require.NoError(t, repo.PrependQuestion(ctx, 7, types.AnsweredQuestion{ID: "a", Question: "Why us?"}))
	require.NoError(t, repo.PrependQuestion(ctx, 7, types.AnsweredQuestion{ID: "b", Question: "Salary?"}))

	list, err := repo.Questions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "b", list[0].ID, "newest first")

	removed, err := repo.DeleteQuestion(ctx, 7, "a")
	require.NoError(t, err)
	assert.True(t, removed)

	list, err = repo.Questions(ctx, 7)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
}

func TestDeleteQuestion_UnknownIDIsNoop(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: store.NewMemory()}
	repo := New(cs)

	require.NoError(t, repo.PrependQuestion(ctx, 7, types.AnsweredQuestion{ID: "a"}))
	setsBefore := cs.sets

	removed, err := repo.DeleteQuestion(ctx, 7, "missing")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, setsBefore, cs.sets)

	list, err := repo.Questions(ctx, 7)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	removed, err = repo.DeleteQuestion(ctx, 99, "a")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestEvictTab_RemovesEveryMapping(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: store.NewMemory()}
	repo := New(cs)

	for _, tab := range []int{42, 43} {
		require.NoError(t, repo.SaveResult(ctx, tab, sampleResult("job")))
		require.NoError(t, repo.PrependQuestion(ctx, tab, types.AnsweredQuestion{ID: "q"}))
		require.NoError(t, repo.SetPanelActive(ctx, tab, true))
	}

	cs.gets, cs.sets = 0, 0
	require.NoError(t, repo.EvictTab(ctx, 42))
	assert.Equal(t, 1, cs.gets)
	assert.Equal(t, 1, cs.sets)

	_, ok, err := repo.Result(ctx, 42)
	require.NoError(t, err)
	assert.False(t, ok)
	questions, err := repo.Questions(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, questions)
	panels, err := repo.ActivePanels(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[int]bool{43: true}, panels)

	_, ok, err = repo.Result(ctx, 43)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestEvictTab_UnknownTab(t *testing.T) {
	ctx := context.Background()
	cs := &countingStore{Store: store.NewMemory()}
	repo := New(cs)

	require.NoError(t, repo.EvictTab(ctx, 5))
	assert.Zero(t, cs.sets)
}

func TestSetPanelActive_DisableDropsEntry(t *testing.T) {
	ctx := context.Background()
	repo := New(store.NewMemory())

	require.NoError(t, repo.SetPanelActive(ctx, 1, true))
	require.NoError(t, repo.SetPanelActive(ctx, 1, false))
	require.NoError(t, repo.SetPanelActive(ctx, 2, false))

	panels, err := repo.ActivePanels(ctx)
	require.NoError(t, err)
	assert.Empty(t, panels)
}

func TestIncrementUsedCredits_Concurrent(t *testing.T) {
	ctx := context.Background()
	repo := New(store.NewMemory())
	require.NoError(t, repo.store.Set(ctx, map[string]any{store.KeyUsedCreditsCount: 5}))

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.IncrementUsedCredits(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	used, err := repo.UsedCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5+n, used)
}

func TestConcurrentTabsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	repo := New(store.NewMemory())

	var wg sync.WaitGroup
	for tab := 1; tab <= 20; tab++ {
		wg.Add(1)
		go func(tab int) {
			defer wg.Done()
			assert.NoError(t, repo.SaveResult(ctx, tab, sampleResult("job")))
		}(tab)
	}
	wg.Wait()

	for tab := 1; tab <= 20; tab++ {
		_, ok, err := repo.Result(ctx, tab)
		require.NoError(t, err)
		assert.True(t, ok, "tab %d", tab)
	}
}
