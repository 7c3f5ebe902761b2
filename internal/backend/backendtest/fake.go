// Package backendtest provides an in-process fake of the generation backend.
package backendtest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// DefaultCredits is the balance of a browser id seen for the first time.
const DefaultCredits = 3

// Canned responses.
var (
	Details = map[string]any{
		"job_title":                "Backend Engineer",
		"company_name":             "Acme",
		"job_description":          "Build and run Go services.",
		"responsibilities":         []string{"Own the API"},
		"requirements":             []string{"Go", "PostgreSQL"},
		"location":                 "Remote",
		"other_additional_details": "",
	}
	Suggestions = []map[string]string{
		{"where": "Skills", "suggestion": "List Go first", "reason": "Primary requirement"},
	}
	FullResume = map[string]any{
		"applicant_name":   "Jane Doe",
		"contact_info":     "jane@example.com",
		"summary":          "Go engineer",
		"skills":           []string{"Go"},
		"sections":         []map[string]string{{"title": "Experience", "content": "Acme Corp"}},
		"full_resume_text": "Jane Doe\nGo engineer",
	}
	CoverLetter = map[string]string{
		"job_title_name": "Backend Engineer",
		"company_name":   "Acme",
		"applicant_name": "Jane Doe",
		"cover_letter":   "Dear Acme, ...",
		"location":       "Remote",
	}
)

// Fake serves the backend endpoints. The cover letter endpoint consumes one credit,
// as the real backend does at the end of a generation.
type Fake struct {
	Server *httptest.Server

	mu            sync.Mutex
	credits       map[string]int
	notJobPosting bool
	failures      map[string]failure
	calls         []string
	bodies        map[string][]map[string]any
}

type failure struct {
	status int
	body   string
}

// New starts a Fake that is closed when the test ends.
func New(t *testing.T) *Fake {
	t.Helper()
	f := &Fake{
		credits:  make(map[string]int),
		failures: make(map[string]failure),
		bodies:   make(map[string][]map[string]any),
	}
	f.Server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake.
func (f *Fake) URL() string { return f.Server.URL }

// SetCredits sets the balance of browserID.
func (f *Fake) SetCredits(browserID string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credits[browserID] = n
}

// Credits returns the balance of browserID.
func (f *Fake) Credits(browserID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance(browserID)
}

// RejectPosting makes the evaluation endpoint report that the page is not a posting.
func (f *Fake) RejectPosting() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notJobPosting = true
}

// Fail makes path answer with status and a {"detail": detail} body.
func (f *Fake) Fail(path string, status int, detail string) {
	body, _ := json.Marshal(map[string]string{"detail": detail})
	f.FailRaw(path, status, string(body))
}

// FailRaw makes path answer with status and body.
func (f *Fake) FailRaw(path string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[path] = failure{status: status, body: body}
}

// Calls returns the paths requested so far, in order.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Bodies returns the decoded request bodies received on path.
func (f *Fake) Bodies(path string) []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.bodies[path]...)
}

func (f *Fake) balance(browserID string) int {
	n, ok := f.credits[browserID]
	if !ok {
		n = DefaultCredits
		f.credits[browserID] = n
	}
	return n
}

func (f *Fake) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, r.URL.Path)
	var body map[string]any
	if r.Body != nil {
		data, _ := io.ReadAll(r.Body)
		if len(data) > 0 {
			_ = json.Unmarshal(data, &body)
			f.bodies[r.URL.Path] = append(f.bodies[r.URL.Path], body)
		}
	}

	if fail, ok := f.failures[r.URL.Path]; ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(fail.status)
		_, _ = io.WriteString(w, fail.body)
		return
	}

	browserID, _ := body["browser_id"].(string)

	switch r.URL.Path {
	case "/api/v1/users/get-or-create":
		reply(w, map[string]int{"credits": f.balance(r.URL.Query().Get("browser_id"))})
	case "/api/v1/payments/create-session":
		pkg, _ := body["package"].(string)
		reply(w, map[string]string{"url": "https://checkout.example/session/" + pkg})
	case "/api/v1/generation/job-posting/evaluate":
		if f.notJobPosting {
			reply(w, map[string]any{"is_job_posting": false, "extracted_job_posting_details": nil})
			return
		}
		reply(w, map[string]any{"is_job_posting": true, "extracted_job_posting_details": Details})
	case "/api/v1/generation/resume/suggestions-generate":
		reply(w, map[string]any{"resume_suggestions": Suggestions})
	case "/api/v1/generation/resume/generate":
		reply(w, FullResume)
	case "/api/v1/generation/cover-letter/generate":
		if n := f.balance(browserID); n > 0 {
			f.credits[browserID] = n - 1
		}
		reply(w, CoverLetter)
	case "/api/v1/generation/application-question/answer":
		q, _ := body["question"].(string)
		reply(w, map[string]string{"question": q, "answer": "Answer to: " + q})
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail": "Not Found"}`)
	}
}

func reply(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
