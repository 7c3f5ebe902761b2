// Package fetch loads job pages for tabs whose DOM was not pushed by the host.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/one-click-apply/internal/extract"
)

// DefaultTimeout is the default HTTP request timeout.
const DefaultTimeout = 30 * time.Second

// DefaultUserAgent is sent with every page request.
const DefaultUserAgent = "Mozilla/5.0 (compatible; OneClickApply/1.0)"

// maxBodySize bounds how much of a page is read.
const maxBodySize = 10 << 20

// Result holds a fetched page.
type Result struct {
	URL         string
	HTML        string
	ContentType string
	StatusCode  int
	// Rendered is set when HTML came from the headless browser.
	Rendered bool
}

// Error represents an error during page loading.
type Error struct {
	URL     string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("fetch error for %s: %s: %v", e.URL, e.Message, e.Cause)
	}
	return fmt.Sprintf("fetch error for %s: %s", e.URL, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Options configures page loading.
type Options struct {
	Timeout   time.Duration
	UserAgent string
	Headers   map[string]string
	// UseBrowser enables the headless browser fallback for thin pages.
	UseBrowser     bool
	BrowserTimeout time.Duration
}

// DefaultOptions returns sensible defaults for fetching.
func DefaultOptions() *Options {
	return &Options{
		Timeout:        DefaultTimeout,
		UserAgent:      DefaultUserAgent,
		BrowserTimeout: DefaultTimeout,
	}
}

// URL retrieves the HTML of urlStr. A non-200 response returns both the result and an error.
func URL(ctx context.Context, urlStr string, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, &Error{URL: urlStr, Message: "invalid URL", Cause: err}
	}

	client := &http.Client{Timeout: opts.Timeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("User-Agent", opts.UserAgent)
	for key, value := range opts.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "HTTP request failed", Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &Error{URL: urlStr, Message: "failed to read response body", Cause: err}
	}

	result := &Result{
		URL:         urlStr,
		HTML:        string(bodyBytes),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
	}
	if resp.StatusCode != http.StatusOK {
		return result, &Error{URL: urlStr, Message: fmt.Sprintf("HTTP status %d", resp.StatusCode)}
	}
	return result, nil
}

// Loader fetches pages over HTTP and re-renders thin ones in a headless browser.
type Loader struct {
	opts   *Options
	render Renderer
	log    *zap.Logger
}

// NewLoader returns a Loader. A nil render uses the chromedp renderer.
func NewLoader(opts *Options, render Renderer, log *zap.Logger) *Loader {
	if opts == nil {
		opts = DefaultOptions()
	}
	if render == nil {
		render = ChromeRenderer{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{opts: opts, render: render, log: log}
}

// Page loads urlStr. When the browser fallback is enabled and the fetched text is
// shorter than MinContentLength, the rendered DOM replaces the fetched HTML.
func (l *Loader) Page(ctx context.Context, urlStr string) (*Result, error) {
	result, err := URL(ctx, urlStr, l.opts)
	if err != nil {
		return result, err
	}
	if !l.opts.UseBrowser {
		return result, nil
	}

	text, err := extract.Text(urlStr, result.HTML)
	if err == nil && !ShouldUseBrowser(text) {
		return result, nil
	}

	l.log.Info("page text too short, rendering in browser",
		zap.String("url", urlStr), zap.Int("text_len", len(text)))
	html, err := l.render.Render(ctx, urlStr, l.opts.BrowserTimeout)
	if err != nil {
		l.log.Warn("browser rendering failed, using fetched HTML", zap.String("url", urlStr), zap.Error(err))
		return result, nil
	}
	result.HTML = html
	result.Rendered = true
	return result, nil
}
