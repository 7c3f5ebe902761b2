// Package session runs generation sessions: the linear sequence of backend calls
// that turns a job posting and the applicant's documents into tailored materials
// for one tab.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/jonathan/one-click-apply/internal/backend"
	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/credits"
	"github.com/jonathan/one-click-apply/internal/extract"
	"github.com/jonathan/one-click-apply/internal/tabs"
	"github.com/jonathan/one-click-apply/internal/types"
)

var (
	// ErrNoResume is returned when no resume was uploaded.
	ErrNoResume = errors.New("please upload your resume first")
	// ErrAlreadyRunning is returned when the tab already has a session in flight.
	ErrAlreadyRunning = errors.New("a generation is already running for this tab")
	// ErrNoPageContent is returned when the page yields no text to evaluate.
	ErrNoPageContent = errors.New("no job posting content found on this page")
)

// JobSource selects where the job posting text comes from when no manual text is given.
type JobSource string

const (
	// SourceURL sends the tab's URL and lets the backend fetch the page.
	SourceURL JobSource = "url"
	// SourceContent sends the text extracted from the tab.
	SourceContent JobSource = "content"
)

// Progress messages shown before each stage's call.
const (
	msgAnalyzing   = "Analyzing job posting content..."
	msgSuggestions = "Generating tailored resume suggestions..."
	msgFullResume  = "Generating full tailored resume..."
	msgCoverLetter = "Generating tailored cover letter..."
	msgCompleted   = "Generation process complete!"
)

// Config configures a Runner.
type Config struct {
	JobSource JobSource
	// FullResume enables the full structured resume stage.
	FullResume bool
}

// ProgressCallback is called on every stage transition.
type ProgressCallback func(types.GenerationProgress)

// Options configures one session.
type Options struct {
	// JobPostingContent is text pasted by the user. When non-blank it is the only source used.
	JobPostingContent string
	OnProgress        ProgressCallback
}

// Backend is the part of the backend client used by a session.
type Backend interface {
	EvaluateJobPosting(ctx context.Context, req backend.EvaluationRequest) (types.ExtractedJobPostingDetails, error)
	GenerateResumeSuggestions(ctx context.Context, req backend.GenerationRequest) ([]types.ResumeSuggestion, error)
	GenerateFullResume(ctx context.Context, req backend.GenerationRequest) (types.FullResume, error)
	GenerateCoverLetter(ctx context.Context, req backend.GenerationRequest) (types.CoverLetter, error)
}

// Host is the coordinator as seen by a session.
type Host interface {
	Tab(tabID int) (tabs.Tab, error)
	CurrentURL(ctx context.Context) (coordinator.CurrentURL, error)
	PageContent(ctx context.Context, tabID int) (extract.Result, error)
	IncrementCredits(ctx context.Context) (int, error)
	WhileOpen(ctx context.Context, tabID int, fn func(context.Context) error) error
}

// Credits checks and refreshes the balance.
type Credits interface {
	Mode() credits.Mode
	Require(ctx context.Context) (credits.Balance, error)
	Refresh(ctx context.Context) (credits.Balance, error)
}

// Files loads the uploaded documents.
type Files interface {
	Load(ctx context.Context) (types.FilesStorageState, error)
}

// Identity resolves the browser identity.
type Identity interface {
	GetOrCreate(ctx context.Context) (string, error)
}

// Results persists a tab's result.
type Results interface {
	SaveResult(ctx context.Context, tab int, res types.GenerationResult) error
}

// Runner executes sessions.
type Runner struct {
	cfg      Config
	backend  Backend
	host     Host
	credits  Credits
	files    Files
	identity Identity
	results  Results
	tracker  *Tracker
	log      *zap.Logger

	mu      sync.Mutex
	running map[int]bool
}

// Deps groups the collaborators of a Runner.
type Deps struct {
	Backend  Backend
	Host     Host
	Credits  Credits
	Files    Files
	Identity Identity
	Results  Results
	Tracker  *Tracker
	Log      *zap.Logger
}

// NewRunner returns a Runner.
func NewRunner(cfg Config, d Deps) *Runner {
	if cfg.JobSource == "" {
		cfg.JobSource = SourceURL
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Tracker == nil {
		d.Tracker = NewTracker(nil)
	}
	return &Runner{
		cfg:      cfg,
		backend:  d.Backend,
		host:     d.Host,
		credits:  d.Credits,
		files:    d.Files,
		identity: d.Identity,
		results:  d.Results,
		tracker:  d.Tracker,
		log:      d.Log,
		running:  make(map[int]bool),
	}
}

// Tracker returns the progress tracker of the runner.
func (r *Runner) Tracker() *Tracker { return r.tracker }

// Run generates materials for tabID; zero means the active tab. Preconditions are
// checked before any backend call. A failed session writes nothing and clears its
// progress.
func (r *Runner) Run(ctx context.Context, tabID int, opts Options) (types.GenerationResult, error) {
	tab, err := r.resolveTab(ctx, tabID)
	if err != nil {
		return types.GenerationResult{}, err
	}

	r.mu.Lock()
	if r.running[tab.ID] {
		r.mu.Unlock()
		return types.GenerationResult{}, ErrAlreadyRunning
	}
	r.running[tab.ID] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.running, tab.ID)
		r.mu.Unlock()
	}()

	log := r.log.With(zap.Int("tab_id", tab.ID))

	res, err := r.run(ctx, tab, opts, log)
	if err != nil {
		r.tracker.clear(tab.ID)
		log.Warn("generation failed", zap.Error(err))
		return types.GenerationResult{}, err
	}
	r.tracker.finish(tab.ID)

	r.refreshCredits(ctx, log)
	log.Info("generation completed", zap.String("job_title", res.JobTitleName), zap.String("company", res.CompanyName))
	return res, nil
}

func (r *Runner) resolveTab(ctx context.Context, tabID int) (tabs.Tab, error) {
	if tabID != 0 {
		return r.host.Tab(tabID)
	}
	cur, err := r.host.CurrentURL(ctx)
	if err != nil {
		return tabs.Tab{}, err
	}
	return r.host.Tab(cur.TabID)
}

func (r *Runner) run(ctx context.Context, tab tabs.Tab, opts Options, log *zap.Logger) (types.GenerationResult, error) {
	browserID, err := r.identity.GetOrCreate(ctx)
	if err != nil {
		return types.GenerationResult{}, err
	}
	files, err := r.files.Load(ctx)
	if err != nil {
		return types.GenerationResult{}, err
	}
	if files.Resume == nil {
		return types.GenerationResult{}, ErrNoResume
	}
	if _, err := r.credits.Require(ctx); err != nil {
		return types.GenerationResult{}, err
	}

	r.progress(tab.ID, types.StageAnalyzingJobPosting, msgAnalyzing, opts)
	evalReq, err := r.jobSource(ctx, tab, opts)
	if err != nil {
		return types.GenerationResult{}, err
	}
	evalReq.BrowserID = browserID
	details, err := r.backend.EvaluateJobPosting(ctx, evalReq)
	if err != nil {
		return types.GenerationResult{}, err
	}
	log.Debug("job posting evaluated", zap.String("job_title", details.JobTitle))

	req := backend.GenerationRequest{
		ExtractedJobPostingDetails: details,
		ResumeDoc:                  files.Resume.AsUploadedDocument(),
		BrowserID:                  browserID,
	}
	for _, doc := range files.SupportingDocs {
		req.SupportingDocs = append(req.SupportingDocs, doc.AsUploadedDocument())
	}

	r.progress(tab.ID, types.StageGeneratingResumeSuggestions, msgSuggestions, opts)
	suggestions, err := r.backend.GenerateResumeSuggestions(ctx, req)
	if err != nil {
		return types.GenerationResult{}, err
	}

	var fullResume *types.FullResume
	if r.cfg.FullResume {
		r.progress(tab.ID, types.StageGeneratingFullResume, msgFullResume, opts)
		fr, err := r.backend.GenerateFullResume(ctx, req)
		if err != nil {
			return types.GenerationResult{}, err
		}
		fullResume = &fr
	}

	r.progress(tab.ID, types.StageCreatingCoverLetter, msgCoverLetter, opts)
	letter, err := r.backend.GenerateCoverLetter(ctx, req)
	if err != nil {
		return types.GenerationResult{}, err
	}

	res := types.GenerationResult{
		JobTitleName:               letter.JobTitleName,
		CompanyName:                letter.CompanyName,
		ApplicantName:              letter.ApplicantName,
		CoverLetter:                letter.CoverLetter,
		Location:                   letter.Location,
		ResumeSuggestions:          suggestions,
		ExtractedJobPostingDetails: details,
		FullResume:                 fullResume,
	}
	err = r.host.WhileOpen(ctx, tab.ID, func(ctx context.Context) error {
		if err := r.results.SaveResult(ctx, tab.ID, res); err != nil {
			return fmt.Errorf("failed to save suggestions: %w", err)
		}
		return nil
	})
	if err != nil {
		return types.GenerationResult{}, err
	}

	r.progress(tab.ID, types.StageCompleted, msgCompleted, opts)
	return res, nil
}

// jobSource builds the evaluation request from exactly one source.
func (r *Runner) jobSource(ctx context.Context, tab tabs.Tab, opts Options) (backend.EvaluationRequest, error) {
	if manual := strings.TrimSpace(opts.JobPostingContent); manual != "" {
		return backend.EvaluationRequest{RawJobHTMLContent: manual}, nil
	}

	switch r.cfg.JobSource {
	case SourceContent:
		page, err := r.host.PageContent(ctx, tab.ID)
		if err != nil {
			return backend.EvaluationRequest{}, err
		}
		if strings.TrimSpace(page.PageContent) == "" {
			return backend.EvaluationRequest{}, ErrNoPageContent
		}
		return backend.EvaluationRequest{RawJobHTMLContent: page.PageContent}, nil
	default:
		if tab.URL == "" {
			return backend.EvaluationRequest{}, tabs.ErrNoActiveTab
		}
		return backend.EvaluationRequest{WebsiteURL: tab.URL}, nil
	}
}

// refreshCredits updates the balance after a successful session. The result is
// already saved, so failures are only logged.
func (r *Runner) refreshCredits(ctx context.Context, log *zap.Logger) {
	if r.credits.Mode() == credits.ModeLocal {
		if _, err := r.host.IncrementCredits(ctx); err != nil {
			log.Error("failed to consume local credit", zap.Error(err))
		}
	}
	if _, err := r.credits.Refresh(ctx); err != nil {
		log.Warn("failed to refresh credits", zap.Error(err))
	}
}

func (r *Runner) progress(tabID int, stage types.GenerationStage, message string, opts Options) {
	p := types.NewGenerationProgress(tabID, stage, message)
	r.tracker.set(p)
	if opts.OnProgress != nil {
		opts.OnProgress(p)
	}
}
