package fetch

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/chromedp/chromedp"
)

// MinContentLength is the shortest extracted text, in characters, accepted from a
// plain HTTP fetch. Shorter pages are treated as client-rendered.
const MinContentLength = 500

// defaultSettle is how long a rendered page is given to populate after load.
const defaultSettle = 2 * time.Second

// ShouldUseBrowser reports whether extractedText is too thin to be a job posting.
func ShouldUseBrowser(extractedText string) bool {
	return utf8.RuneCountInString(strings.TrimSpace(extractedText)) < MinContentLength
}

// Renderer returns the DOM of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string, timeout time.Duration) (string, error)
}

// ChromeRenderer renders pages in a headless Chrome or Chromium found on the host.
type ChromeRenderer struct {
	// ExecPath overrides browser discovery.
	ExecPath string
	// UserAgent is sent by the browser when set.
	UserAgent string
	// Settle is the wait after the body is ready; zero means defaultSettle.
	Settle time.Duration
}

func (r ChromeRenderer) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if r.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(r.ExecPath))
	}
	if r.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(r.UserAgent))
	}
	return opts
}

// Render implements Renderer. Each call starts and stops its own browser.
func (r ChromeRenderer) Render(ctx context.Context, url string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	settle := r.Settle
	if settle <= 0 {
		settle = defaultSettle
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	allocCtx, closeAlloc := chromedp.NewExecAllocator(ctx, r.allocatorOptions()...)
	defer closeAlloc()
	tabCtx, closeTab := chromedp.NewContext(allocCtx)
	defer closeTab()

	var html string
	if err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	); err != nil {
		return "", &Error{URL: url, Message: "browser rendering failed", Cause: err}
	}
	if html == "" {
		return "", &Error{URL: url, Message: "browser returned an empty document"}
	}
	return html, nil
}
