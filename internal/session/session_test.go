package session

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/one-click-apply/internal/backend"
	"github.com/jonathan/one-click-apply/internal/backend/backendtest"
	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/credits"
	"github.com/jonathan/one-click-apply/internal/events"
	"github.com/jonathan/one-click-apply/internal/files"
	"github.com/jonathan/one-click-apply/internal/identity"
	"github.com/jonathan/one-click-apply/internal/store"
	"github.com/jonathan/one-click-apply/internal/tabdata"
	"github.com/jonathan/one-click-apply/internal/tabs"
	"github.com/jonathan/one-click-apply/internal/types"
)

const (
	tabID  = 7
	jobURL = "https://boards.greenhouse.io/acme/jobs/1"
)

type fixture struct {
	fake     *backendtest.Fake
	registry *tabs.Registry
	data     *tabdata.Repository
	files    *files.Manager
	identity *identity.Provider
	bus      *events.Bus
	tracker  *Tracker
	credits  *credits.Service
	client   *backend.Client
	coord    *coordinator.Coordinator
}

func newFixture(t *testing.T, mode credits.Mode, withResume bool) *fixture {
	t.Helper()
	ctx := context.Background()

	f := &fixture{fake: backendtest.New(t), registry: tabs.NewRegistry(), bus: events.NewBus(64)}
	st := store.NewMemory()
	f.data = tabdata.New(st)
	f.files = files.NewManager(st)
	f.identity = identity.NewProvider(st)
	f.tracker = NewTracker(f.bus)
	f.client = backend.New(f.fake.URL())
	f.credits = credits.NewService(credits.Config{Mode: mode, LocalAllowance: 5}, f.client, f.data, f.identity, f.bus)
	f.coord = coordinator.New(f.registry, tabs.NewPanels(), f.data, nil, f.bus, nil)

	f.registry.Upsert(tabs.Tab{ID: tabID, WindowID: 1, URL: jobURL, Active: true})
	f.registry.FocusWindow(1)

	if withResume {
		_, err := f.files.Upload(ctx, files.Upload{
			Name:     "resume.pdf",
			Category: types.CategoryResume,
			FileType: "application/pdf",
			Content:  []byte("%PDF-1.4\nJane Doe, Go engineer"),
		})
		require.NoError(t, err)
	}
	return f
}

func (f *fixture) runner(cfg Config) *Runner {
	return f.runnerWith(cfg, f.client)
}

func (f *fixture) runnerWith(cfg Config, b Backend) *Runner {
	return NewRunner(cfg, Deps{
		Backend:  b,
		Host:     f.coord,
		Credits:  f.credits,
		Files:    f.files,
		Identity: f.identity,
		Results:  f.data,
		Tracker:  f.tracker,
	})
}

// stages runs r and returns the percentages reported along the way.
func stages(t *testing.T, r *Runner, opts Options) ([]int, types.GenerationResult, error) {
	t.Helper()
	var got []int
	opts.OnProgress = func(p types.GenerationProgress) {
		assert.Equal(t, tabID, p.TabID)
		got = append(got, p.StagePercentage)
	}
	res, err := r.Run(context.Background(), tabID, opts)
	return got, res, err
}

func TestRun_URLSource(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeRemote, true)

	got, res, err := stages(t, f.runner(Config{JobSource: SourceURL}), Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 70, 100}, got)

	assert.Equal(t, "Backend Engineer", res.JobTitleName)
	assert.Equal(t, "Acme", res.CompanyName)
	assert.Equal(t, "Dear Acme, ...", res.CoverLetter)
	assert.Equal(t, "Remote", res.Location)
	require.Len(t, res.ResumeSuggestions, 1)
	assert.Equal(t, "Skills", res.ResumeSuggestions[0].Where)
	assert.Equal(t, "Backend Engineer", res.ExtractedJobPostingDetails.JobTitle)
	assert.Nil(t, res.FullResume)

	stored, ok, err := f.data.Result(ctx, tabID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, res, stored)

	bodies := f.fake.Bodies("/api/v1/generation/job-posting/evaluate")
	require.Len(t, bodies, 1)
	assert.Equal(t, jobURL, bodies[0]["website_url"])
	assert.NotContains(t, bodies[0], "raw_job_html_content")

	browserID, err := f.identity.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, browserID, bodies[0]["browser_id"])
	assert.Equal(t, backendtest.DefaultCredits-1, f.fake.Credits(browserID))

	assert.Nil(t, f.tracker.Get(tabID))
}

func TestRun_FullResumeStage(t *testing.T) {
	f := newFixture(t, credits.ModeRemote, true)

	got, res, err := stages(t, f.runner(Config{FullResume: true}), Options{})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 40, 70, 100}, got)
	require.NotNil(t, res.FullResume)
	assert.Equal(t, "Jane Doe", res.FullResume.ApplicantName)
}

func TestRun_ManualContentWins(t *testing.T) {
	f := newFixture(t, credits.ModeRemote, true)

	_, _, err := stages(t, f.runner(Config{JobSource: SourceContent}), Options{JobPostingContent: "  Senior Go role at Acme  "})
	require.NoError(t, err)

	bodies := f.fake.Bodies("/api/v1/generation/job-posting/evaluate")
	require.Len(t, bodies, 1)
	assert.Equal(t, "Senior Go role at Acme", bodies[0]["raw_job_html_content"])
	assert.NotContains(t, bodies[0], "website_url")
}

func TestRun_ContentSource(t *testing.T) {
	f := newFixture(t, credits.ModeRemote, true)
	require.NoError(t, f.registry.SetPage(tabID, tabs.Page{
		URL:  jobURL,
		HTML: "<html><body><h1>Backend Engineer</h1><p>Build Go services.</p></body></html>",
	}))

	_, _, err := stages(t, f.runner(Config{JobSource: SourceContent}), Options{})
	require.NoError(t, err)

	bodies := f.fake.Bodies("/api/v1/generation/job-posting/evaluate")
	require.Len(t, bodies, 1)
	assert.Contains(t, bodies[0]["raw_job_html_content"], "Build Go services.")
}

func TestRun_ContentSourceWithoutContent(t *testing.T) {
	f := newFixture(t, credits.ModeRemote, true)

	_, _, err := stages(t, f.runner(Config{JobSource: SourceContent}), Options{})
	require.Error(t, err)
	assert.Nil(t, f.tracker.Get(tabID))
	assert.NotContains(t, f.fake.Calls(), "/api/v1/generation/job-posting/evaluate")
}

func TestRun_SupportingDocsSent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeRemote, true)
	_, err := f.files.Upload(ctx, files.Upload{
		Name:     "portfolio.txt",
		Category: types.CategorySupporting,
		FileType: "text/plain",
		Content:  []byte("projects"),
	})
	require.NoError(t, err)

	_, _, err = stages(t, f.runner(Config{}), Options{})
	require.NoError(t, err)

	bodies := f.fake.Bodies("/api/v1/generation/resume/suggestions-generate")
	require.Len(t, bodies, 1)
	docs, ok := bodies[0]["supporting_docs"].([]any)
	require.True(t, ok)
	assert.Len(t, docs, 1)
	resume, ok := bodies[0]["resume_doc"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "resume.pdf", resume["name"])
}

func TestRun_NoResume(t *testing.T) {
	f := newFixture(t, credits.ModeRemote, false)

	got, _, err := stages(t, f.runner(Config{}), Options{})
	require.ErrorIs(t, err, ErrNoResume)
	assert.Empty(t, got)
	assert.Empty(t, f.fake.Calls())
}

func TestRun_InsufficientCredits(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeRemote, true)
	browserID, err := f.identity.GetOrCreate(ctx)
	require.NoError(t, err)
	f.fake.SetCredits(browserID, 0)

	got, _, err := stages(t, f.runner(Config{}), Options{})
	require.ErrorIs(t, err, credits.ErrInsufficientCredits)
	assert.Empty(t, got)
	assert.Equal(t, []string{"/api/v1/users/get-or-create"}, f.fake.Calls())
}

func TestRun_NotJobPosting(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeRemote, true)
	f.fake.RejectPosting()

	_, _, err := stages(t, f.runner(Config{}), Options{})
	require.ErrorIs(t, err, backend.ErrNotJobPosting)

	_, ok, err := f.data.Result(ctx, tabID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, f.tracker.Get(tabID))
}

func TestRun_FailureAtEachStage(t *testing.T) {
	paths := []string{
		"/api/v1/generation/job-posting/evaluate",
		"/api/v1/generation/resume/suggestions-generate",
		"/api/v1/generation/resume/generate",
		"/api/v1/generation/cover-letter/generate",
	}
	previous := types.GenerationResult{JobTitleName: "Earlier role", CompanyName: "Initech"}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t, credits.ModeRemote, true)
			require.NoError(t, f.data.SaveResult(ctx, tabID, previous))
			f.fake.Fail(path, http.StatusInternalServerError, "model unavailable")

			sub, cancel := f.bus.Subscribe()
			defer cancel()

			_, _, err := stages(t, f.runner(Config{FullResume: true}), Options{})
			require.Error(t, err)
			assert.True(t, backend.IsAPIError(err))
			assert.EqualError(t, err, "model unavailable")

			stored, ok, err := f.data.Result(ctx, tabID)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, previous, stored)
			assert.Nil(t, f.tracker.Get(tabID))

			last := lastProgress(t, sub)
			assert.Nil(t, last.Data)
		})
	}
}

func TestRun_OverwritesPreviousResult(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeRemote, true)
	require.NoError(t, f.data.SaveResult(ctx, tabID, types.GenerationResult{JobTitleName: "Earlier role"}))

	_, _, err := stages(t, f.runner(Config{}), Options{})
	require.NoError(t, err)

	stored, ok, err := f.data.Result(ctx, tabID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Backend Engineer", stored.JobTitleName)
}

func TestRun_LocalCreditsConsumed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeLocal, true)

	_, _, err := stages(t, f.runner(Config{}), Options{})
	require.NoError(t, err)

	used, err := f.data.UsedCredits(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
	assert.NotContains(t, f.fake.Calls(), "/api/v1/users/get-or-create")
}

func TestRun_PublishesProgressAndCreditUpdate(t *testing.T) {
	f := newFixture(t, credits.ModeRemote, true)
	sub, cancel := f.bus.Subscribe()
	defer cancel()

	_, _, err := stages(t, f.runner(Config{}), Options{})
	require.NoError(t, err)

	var (
		percentages []int
		creditEvent bool
	)
	for len(sub) > 0 {
		e := <-sub
		switch e.Type {
		case events.GenerationProgress:
			p, ok := e.Data.(types.GenerationProgress)
			require.True(t, ok)
			percentages = append(percentages, p.StagePercentage)
		case events.CreditUpdateRequired:
			creditEvent = true
		}
	}
	assert.Equal(t, []int{0, 10, 70, 100}, percentages)
	assert.True(t, creditEvent)
}

func TestRun_ActiveTabWhenZero(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeRemote, true)

	_, err := f.runner(Config{}).Run(ctx, 0, Options{})
	require.NoError(t, err)

	_, ok, err := f.data.Result(ctx, tabID)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRun_UnknownTab(t *testing.T) {
	f := newFixture(t, credits.ModeRemote, true)

	_, err := f.runner(Config{}).Run(context.Background(), 99, Options{})
	require.ErrorIs(t, err, tabs.ErrUnknownTab)
	assert.Empty(t, f.fake.Calls())
}

// blockingBackend holds evaluation until released.
type blockingBackend struct {
	Backend
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingBackend) EvaluateJobPosting(ctx context.Context, req backend.EvaluationRequest) (types.ExtractedJobPostingDetails, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.Backend.EvaluateJobPosting(ctx, req)
}

func TestRun_OneSessionPerTab(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeRemote, true)
	b := &blockingBackend{Backend: f.client, started: make(chan struct{}), release: make(chan struct{})}
	r := f.runnerWith(Config{}, b)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, tabID, Options{})
		done <- err
	}()

	select {
	case <-b.started:
	case <-time.After(5 * time.Second):
		t.Fatal("first session never reached the backend")
	}

	require.NotNil(t, r.Tracker().Get(tabID))
	_, err := r.Run(ctx, tabID, Options{})
	require.ErrorIs(t, err, ErrAlreadyRunning)

	close(b.release)
	require.NoError(t, <-done)
}

func lastProgress(t *testing.T, sub <-chan events.Event) events.Event {
	t.Helper()
	var last events.Event
	found := false
	for len(sub) > 0 {
		e := <-sub
		if e.Type == events.GenerationProgress {
			last = e
			found = true
		}
	}
	require.True(t, found, "no progress event published")
	return last
}

func TestRun_TabClosedMidSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, credits.ModeRemote, true)
	b := &blockingBackend{Backend: f.client, started: make(chan struct{}), release: make(chan struct{})}
	r := f.runnerWith(Config{}, b)

	done := make(chan error, 1)
	go func() {
		_, err := r.Run(ctx, tabID, Options{})
		done <- err
	}()

	select {
	case <-b.started:
	case <-time.After(5 * time.Second):
		t.Fatal("session never reached the backend")
	}

	require.NoError(t, f.coord.HandleEvent(ctx, coordinator.Event{Kind: coordinator.EventTabRemoved, TabID: tabID}))
	close(b.release)

	err := <-done
	require.ErrorIs(t, err, tabs.ErrUnknownTab)

	_, found, err := f.data.Result(ctx, tabID)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, r.Tracker().Get(tabID))
}
