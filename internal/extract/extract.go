// Package extract turns a page's HTML into the plain text sent to the generation
// backend. Noise removal is best effort; the length cap is not.
package extract

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// MaxContentLength is the maximum number of characters returned for one page.
const MaxContentLength = 300000

// TruncationMarker is appended to content cut at MaxContentLength.
const TruncationMarker = "\n\n[Content truncated due to length limitations]"

const frameSeparator = "\n\n"

// ErrEmptyDocument is reported when the main document has no usable body.
var ErrEmptyDocument = errors.New("page has no content")

// noiseSelector lists elements that never carry posting text.
var noiseSelector = strings.Join([]string{
	"script", "style", "noscript", "object", "embed", "svg", "canvas", "meta", "link",
	"nav", "footer", "template",
	".ad", ".ads", ".advertisement", "[id^='google_ads']", ".cookie-banner", ".cookie-consent", ".gdpr-notice",
	".social-share", ".share-buttons",
}, ", ")

// Frame is the document of a sub-frame captured by the host. Err is set when the
// frame could not be read, typically because of cross-origin restrictions.
type Frame struct {
	URL  string `json:"url,omitempty"`
	HTML string `json:"html,omitempty"`
	Err  string `json:"error,omitempty"`
}

// Result answers a getPageContent request.
type Result struct {
	Success     bool   `json:"success"`
	PageContent string `json:"pageContent,omitempty"`
	URL         string `json:"url,omitempty"`
	Error       string `json:"error,omitempty"`
}

// PageContent extracts the visible text of a page and its frames. Frames that
// cannot be read or hold no text are skipped; only an unusable main document
// fails the extraction.
func PageContent(url, html string, frames ...Frame) Result {
	main, inline, err := parse(url, html)
	if err != nil {
		return Result{Success: false, Error: fmt.Sprintf("Error extracting page content: %v", err), URL: url}
	}

	var b strings.Builder
	b.WriteString(main)
	for _, f := range append(inline, frames...) {
		if f.Err != "" || strings.TrimSpace(f.HTML) == "" {
			continue
		}
		text, _, err := parse(f.URL, f.HTML)
		if err != nil || text == "" {
			continue
		}
		b.WriteString(frameSeparator)
		b.WriteString(text)
	}

	return Result{Success: true, PageContent: Truncate(b.String()), URL: url}
}

// Text returns the cleaned visible text of an HTML document.
func Text(url, html string) (string, error) {
	text, _, err := parse(url, html)
	return text, err
}

// Truncate cuts s to MaxContentLength characters and appends TruncationMarker when it was longer.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxContentLength {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxContentLength {
			return s[:i] + TruncationMarker
		}
		n++
	}
	return s
}

// parse strips noise from html and returns its text together with the inline
// srcdoc frames it contains.
func parse(url, html string) (string, []Frame, error) {
	if strings.TrimSpace(html) == "" {
		return "", nil, ErrEmptyDocument
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var inline []Frame
	doc.Find("iframe").Each(func(_ int, s *goquery.Selection) {
		if srcdoc, ok := s.Attr("srcdoc"); ok {
			inline = append(inline, Frame{URL: url, HTML: srcdoc})
		}
	})
	doc.Find("iframe").Remove()

	doc.Find(noiseSelector).Remove()
	if noise := platformNoise(url); noise != "" {
		doc.Find(noise).Remove()
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return "", nil, ErrEmptyDocument
	}
	return cleanWhitespace(body.Text()), inline, nil
}

// cleanWhitespace collapses runs of spaces and drops blank lines.
func cleanWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}
