// Package backend is the JSON-over-HTTP client of the remote generation backend.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/one-click-apply/internal/schemas"
	"github.com/jonathan/one-click-apply/internal/types"
)

// DefaultTimeout bounds one backend call. Generation endpoints run language models
// and are slow.
const DefaultTimeout = 2 * time.Minute

// Endpoint paths.
const (
	pathUser           = "/api/v1/users/get-or-create"
	pathCheckout       = "/api/v1/payments/create-session"
	pathEvaluate       = "/api/v1/generation/job-posting/evaluate"
	pathSuggestions    = "/api/v1/generation/resume/suggestions-generate"
	pathFullResume     = "/api/v1/generation/resume/generate"
	pathCoverLetter    = "/api/v1/generation/cover-letter/generate"
	pathQuestionAnswer = "/api/v1/generation/application-question/answer"
)

// EvaluationRequest asks the backend to extract job details. Exactly one of
// RawJobHTMLContent and WebsiteURL is set.
type EvaluationRequest struct {
	RawJobHTMLContent string `json:"raw_job_html_content,omitempty"`
	WebsiteURL        string `json:"website_url,omitempty"`
	BrowserID         string `json:"browser_id"`
}

// EvaluationResponse is the job posting evaluation.
type EvaluationResponse struct {
	IsJobPosting               bool                              `json:"is_job_posting"`
	ExtractedJobPostingDetails *types.ExtractedJobPostingDetails `json:"extracted_job_posting_details"`
}

// GenerationRequest is shared by the resume, full resume and cover letter endpoints.
type GenerationRequest struct {
	ExtractedJobPostingDetails types.ExtractedJobPostingDetails `json:"extracted_job_posting_details"`
	ResumeDoc                  types.UploadedDocument           `json:"resume_doc"`
	SupportingDocs             []types.UploadedDocument         `json:"supporting_docs,omitempty"`
	BrowserID                  string                           `json:"browser_id"`
}

// QuestionRequest asks for the answer to one application question.
type QuestionRequest struct {
	GenerationRequest
	Question               string `json:"question"`
	AdditionalRequirements string `json:"additional_requirements,omitempty"`
}

// QuestionAnswer is the answer endpoint's response.
type QuestionAnswer struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Client calls the generation backend.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a Client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		log:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserCredits returns the credit balance of browserID, creating the user if needed.
func (c *Client) UserCredits(ctx context.Context, browserID string) (int, error) {
	var resp struct {
		Credits int `json:"credits"`
	}
	path := pathUser + "?browser_id=" + url.QueryEscape(browserID)
	if err := c.do(ctx, http.MethodGet, path, nil, schemas.Credits, &resp); err != nil {
		return 0, err
	}
	return resp.Credits, nil
}

// CreateCheckoutSession starts a payment for a credit package and returns the checkout URL.
func (c *Client) CreateCheckoutSession(ctx context.Context, browserID, pkg string) (string, error) {
	req := map[string]string{"browser_id": browserID, "package": pkg}
	var resp struct {
		URL string `json:"url"`
	}
	if err := c.do(ctx, http.MethodPost, pathCheckout, req, schemas.CheckoutSession, &resp); err != nil {
		return "", err
	}
	return resp.URL, nil
}

// EvaluateJobPosting extracts structured details from a posting. It returns
// ErrNotJobPosting when the backend rejects the page.
func (c *Client) EvaluateJobPosting(ctx context.Context, req EvaluationRequest) (types.ExtractedJobPostingDetails, error) {
	var resp EvaluationResponse
	if err := c.do(ctx, http.MethodPost, pathEvaluate, req, schemas.JobPostingEvaluation, &resp); err != nil {
		return types.ExtractedJobPostingDetails{}, err
	}
	if !resp.IsJobPosting || resp.ExtractedJobPostingDetails == nil {
		return types.ExtractedJobPostingDetails{}, ErrNotJobPosting
	}
	return *resp.ExtractedJobPostingDetails, nil
}

// GenerateResumeSuggestions returns targeted resume edits.
func (c *Client) GenerateResumeSuggestions(ctx context.Context, req GenerationRequest) ([]types.ResumeSuggestion, error) {
	var resp struct {
		ResumeSuggestions []types.ResumeSuggestion `json:"resume_suggestions"`
	}
	if err := c.do(ctx, http.MethodPost, pathSuggestions, req, schemas.ResumeSuggestions, &resp); err != nil {
		return nil, err
	}
	return resp.ResumeSuggestions, nil
}

// GenerateFullResume returns a complete tailored resume.
func (c *Client) GenerateFullResume(ctx context.Context, req GenerationRequest) (types.FullResume, error) {
	var resp types.FullResume
	err := c.do(ctx, http.MethodPost, pathFullResume, req, schemas.FullResume, &resp)
	return resp, err
}

// GenerateCoverLetter returns a tailored cover letter.
func (c *Client) GenerateCoverLetter(ctx context.Context, req GenerationRequest) (types.CoverLetter, error) {
	var resp types.CoverLetter
	err := c.do(ctx, http.MethodPost, pathCoverLetter, req, schemas.CoverLetter, &resp)
	return resp, err
}

// AnswerQuestion answers one application question.
func (c *Client) AnswerQuestion(ctx context.Context, req QuestionRequest) (QuestionAnswer, error) {
	var resp QuestionAnswer
	err := c.do(ctx, http.MethodPost, pathQuestionAnswer, req, schemas.QuestionAnswer, &resp)
	return resp, err
}

// do sends one request. Non-2xx responses become *APIError; successful bodies are
// validated against schema before being decoded into out.
func (c *Client) do(ctx context.Context, method, path string, body any, schema schemas.Name, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend request %s failed: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read backend response: %w", err)
	}

	c.log.Debug("backend call",
		zap.String("method", method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("dur", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, data)
	}
	if err := schemas.Validate(schema, data); err != nil {
		return fmt.Errorf("backend %s: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode backend response: %w", err)
	}
	return nil
}
