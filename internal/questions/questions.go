// Package questions answers free-form application questions against the job
// posting and documents of a tab's last generation.
package questions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jonathan/one-click-apply/internal/backend"
	"github.com/jonathan/one-click-apply/internal/types"
)

var (
	// ErrEmptyQuestion is returned for a blank question.
	ErrEmptyQuestion = errors.New("please enter a question")
	// ErrNoGeneration is returned when the tab has no generation to draw context from.
	ErrNoGeneration = errors.New("generate suggestions for this job before asking questions")
	// ErrNoResume is returned when no resume was uploaded.
	ErrNoResume = errors.New("please upload your resume first")
)

// Backend answers one question.
type Backend interface {
	AnswerQuestion(ctx context.Context, req backend.QuestionRequest) (backend.QuestionAnswer, error)
}

// Repository is the per-tab storage used by the service.
type Repository interface {
	Result(ctx context.Context, tab int) (types.GenerationResult, bool, error)
	Questions(ctx context.Context, tab int) ([]types.AnsweredQuestion, error)
	PrependQuestion(ctx context.Context, tab int, q types.AnsweredQuestion) error
	DeleteQuestion(ctx context.Context, tab int, id string) (bool, error)
}

// Files loads the uploaded documents.
type Files interface {
	Load(ctx context.Context) (types.FilesStorageState, error)
}

// Identity resolves the browser identity.
type Identity interface {
	GetOrCreate(ctx context.Context) (string, error)
}

// TabGuard runs a write only while the tab is open.
type TabGuard interface {
	WhileOpen(ctx context.Context, tabID int, fn func(context.Context) error) error
}

// Option configures a Service.
type Option func(*Service)

// WithTabGuard discards answers for tabs closed while the backend was working.
func WithTabGuard(g TabGuard) Option {
	return func(s *Service) { s.guard = g }
}

// Service answers and stores application questions.
type Service struct {
	backend  Backend
	repo     Repository
	files    Files
	identity Identity
	guard    TabGuard
	log      *zap.Logger
	now      func() time.Time
	newID    func() string
}

// NewService returns a Service.
func NewService(b Backend, repo Repository, files Files, identity Identity, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		backend:  b,
		repo:     repo,
		files:    files,
		identity: identity,
		log:      log,
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the answered questions of tab, newest first.
func (s *Service) List(ctx context.Context, tab int) ([]types.AnsweredQuestion, error) {
	return s.repo.Questions(ctx, tab)
}

// Answer asks the backend and prepends the answer to the tab's history.
func (s *Service) Answer(ctx context.Context, tab int, question, additionalRequirements string) (types.AnsweredQuestion, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return types.AnsweredQuestion{}, ErrEmptyQuestion
	}
	additionalRequirements = strings.TrimSpace(additionalRequirements)

	result, ok, err := s.repo.Result(ctx, tab)
	if err != nil {
		return types.AnsweredQuestion{}, err
	}
	if !ok {
		return types.AnsweredQuestion{}, ErrNoGeneration
	}
	docs, err := s.files.Load(ctx)
	if err != nil {
		return types.AnsweredQuestion{}, err
	}
	if docs.Resume == nil {
		return types.AnsweredQuestion{}, ErrNoResume
	}
	browserID, err := s.identity.GetOrCreate(ctx)
	if err != nil {
		return types.AnsweredQuestion{}, err
	}

	req := backend.QuestionRequest{
		GenerationRequest: backend.GenerationRequest{
			ExtractedJobPostingDetails: result.ExtractedJobPostingDetails,
			ResumeDoc:                  docs.Resume.AsUploadedDocument(),
			BrowserID:                  browserID,
		},
		Question:               question,
		AdditionalRequirements: additionalRequirements,
	}
	for _, doc := range docs.SupportingDocs {
		req.SupportingDocs = append(req.SupportingDocs, doc.AsUploadedDocument())
	}

	ans, err := s.backend.AnswerQuestion(ctx, req)
	if err != nil {
		return types.AnsweredQuestion{}, err
	}

	q := types.AnsweredQuestion{
		ID:                     s.newID(),
		Question:               question,
		AdditionalRequirements: additionalRequirements,
		Answer:                 ans.Answer,
		CreatedAt:              s.now().UTC().Format(time.RFC3339),
	}
	persist := func(ctx context.Context) error { return s.repo.PrependQuestion(ctx, tab, q) }
	if s.guard != nil {
		err = s.guard.WhileOpen(ctx, tab, persist)
	} else {
		err = persist(ctx)
	}
	if err != nil {
		return types.AnsweredQuestion{}, err
	}
	s.log.Info("question answered", zap.Int("tab_id", tab), zap.String("question_id", q.ID))
	return q, nil
}

// Delete removes one answered question from tab. Unknown ids are ignored.
func (s *Service) Delete(ctx context.Context, tab int, id string) error {
	removed, err := s.repo.DeleteQuestion(ctx, tab, id)
	if err != nil {
		return err
	}
	if !removed {
		s.log.Debug("question already gone", zap.Int("tab_id", tab), zap.String("question_id", id))
	}
	return nil
}
