// Package client is the HTTP client of the local daemon API, used by the CLI.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/credits"
	"github.com/jonathan/one-click-apply/internal/tabs"
	"github.com/jonathan/one-click-apply/internal/types"
)

// Error is a non-2xx response of the daemon.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// Client talks to a running daemon.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for the daemon at baseURL.
func New(baseURL string, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// Health checks that the daemon is up.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil)
}

// Tabs lists the open tabs.
func (c *Client) Tabs(ctx context.Context) ([]tabs.Tab, error) {
	var out []tabs.Tab
	err := c.do(ctx, http.MethodGet, "/tabs", nil, &out)
	return out, err
}

// Send dispatches a coordinator message.
func (c *Client) Send(ctx context.Context, msg coordinator.Message) (coordinator.Response, error) {
	var out coordinator.Response
	err := c.do(ctx, http.MethodPost, "/messages", msg, &out)
	return out, err
}

// HostEvent forwards a host event.
func (c *Client) HostEvent(ctx context.Context, e coordinator.Event) error {
	return c.do(ctx, http.MethodPost, "/host/events", e, nil)
}

// Generate runs a generation session for tab; zero means the active tab.
func (c *Client) Generate(ctx context.Context, tab int, jobPostingContent string) (types.GenerationResult, error) {
	var out types.GenerationResult
	body := map[string]string{}
	if jobPostingContent != "" {
		body["jobPostingContent"] = jobPostingContent
	}
	err := c.do(ctx, http.MethodPost, tabPath(tab, "generate"), body, &out)
	return out, err
}

// Result returns the last result of tab, or nil when there is none.
func (c *Client) Result(ctx context.Context, tab int) (*types.GenerationResult, error) {
	var out *types.GenerationResult
	err := c.do(ctx, http.MethodGet, tabPath(tab, "result"), nil, &out)
	return out, err
}

// Progress returns the running session's progress of tab, or nil.
func (c *Client) Progress(ctx context.Context, tab int) (*types.GenerationProgress, error) {
	var out *types.GenerationProgress
	err := c.do(ctx, http.MethodGet, tabPath(tab, "progress"), nil, &out)
	return out, err
}

// Questions lists the answered questions of tab.
func (c *Client) Questions(ctx context.Context, tab int) ([]types.AnsweredQuestion, error) {
	var out []types.AnsweredQuestion
	err := c.do(ctx, http.MethodGet, tabPath(tab, "questions"), nil, &out)
	return out, err
}

// Ask answers a question for tab.
func (c *Client) Ask(ctx context.Context, tab int, question, additionalRequirements string) (types.AnsweredQuestion, error) {
	var out types.AnsweredQuestion
	body := map[string]string{"question": question, "additionalRequirements": additionalRequirements}
	err := c.do(ctx, http.MethodPost, tabPath(tab, "questions"), body, &out)
	return out, err
}

// DeleteQuestion removes an answered question.
func (c *Client) DeleteQuestion(ctx context.Context, tab int, id string) error {
	return c.do(ctx, http.MethodDelete, tabPath(tab, "questions/"+id), nil, nil)
}

// Files returns the stored files.
func (c *Client) Files(ctx context.Context) (types.FilesStorageState, error) {
	var out types.FilesStorageState
	err := c.do(ctx, http.MethodGet, "/files", nil, &out)
	return out, err
}

// UploadFile uploads the file at path. The MIME type is detected from content.
func (c *Client) UploadFile(ctx context.Context, category types.FileCategory, path string) (types.StoredFile, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return types.StoredFile{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if err := mw.WriteField("category", string(category)); err != nil {
		return types.StoredFile{}, err
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", mimetype.Detect(content).String())
	part, err := mw.CreatePart(h)
	if err != nil {
		return types.StoredFile{}, err
	}
	if _, err := part.Write(content); err != nil {
		return types.StoredFile{}, err
	}
	if err := mw.Close(); err != nil {
		return types.StoredFile{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/files", &buf)
	if err != nil {
		return types.StoredFile{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out types.StoredFile
	err = c.send(req, &out)
	return out, err
}

// DeleteFile removes a stored file.
func (c *Client) DeleteFile(ctx context.Context, category types.FileCategory, id string) error {
	return c.do(ctx, http.MethodDelete, "/files/"+string(category)+"/"+id, nil, nil)
}

// Credits returns the credit balance.
func (c *Client) Credits(ctx context.Context) (credits.Balance, error) {
	var out credits.Balance
	err := c.do(ctx, http.MethodGet, "/credits", nil, &out)
	return out, err
}

// Checkout returns the payment URL for a credit package.
func (c *Client) Checkout(ctx context.Context, pkg string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	err := c.do(ctx, http.MethodPost, "/credits/checkout", map[string]string{"package": pkg}, &out)
	return out.URL, err
}

// Identity returns the browser identity.
func (c *Client) Identity(ctx context.Context) (string, error) {
	var out struct {
		BrowserID string `json:"browserId"`
	}
	err := c.do(ctx, http.MethodGet, "/identity", nil, &out)
	return out.BrowserID, err
}

func tabPath(tab int, rest string) string {
	return "/tabs/" + strconv.Itoa(tab) + "/" + rest
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
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
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.send(req, out)
}

// send executes req. 204 leaves out untouched.
func (c *Client) send(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("daemon request %s failed: %w", req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		data, _ := io.ReadAll(resp.Body)
		if err := json.Unmarshal(data, &payload); err != nil || payload.Error == "" {
			payload.Error = http.StatusText(resp.StatusCode)
		}
		return &Error{Status: resp.StatusCode, Message: payload.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode daemon response: %w", err)
	}
	return nil
}
