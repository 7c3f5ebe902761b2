package ratelimit

import (
	"strings"
	"time"

	"github.com/jonathan/one-click-apply/internal/config"
)

// Rule limits one route. Path segments written as "*" match any single segment.
type Rule struct {
	Method string
	Path   string
	Limit  int
	Window time.Duration
	Burst  int
}

func (r Rule) matches(method, path string) bool {
	if r.Method != method {
		return false
	}
	want := strings.Split(strings.Trim(r.Path, "/"), "/")
	got := strings.Split(strings.Trim(path, "/"), "/")
	if len(want) != len(got) {
		return false
	}
	for i := range want {
		if want[i] != "*" && want[i] != got[i] {
			return false
		}
	}
	return true
}

// unlimited marks routes that are never limited.
var unlimited = []Rule{
	{Method: "GET", Path: "/health"},
	{Method: "GET", Path: "/events"},
}

// match returns the rule for a request, nil when the default applies. A rule
// with a zero limit means the route is unlimited.
func match(method, path string, rules []Rule) *Rule {
	for i := range unlimited {
		if unlimited[i].matches(method, path) {
			return &unlimited[i]
		}
	}
	for i := range rules {
		if rules[i].matches(method, path) {
			return &rules[i]
		}
	}
	return nil
}

// GenerationRules limits the routes that spend backend credits.
func GenerationRules(limit int, window time.Duration) []Rule {
	burst := max(limit/10, 1)
	return []Rule{
		{Method: "POST", Path: "/tabs/*/generate", Limit: limit, Window: window, Burst: burst},
		{Method: "POST", Path: "/tabs/*/generate/stream", Limit: limit, Window: window, Burst: burst},
		{Method: "POST", Path: "/tabs/*/questions", Limit: limit, Window: window, Burst: burst},
		{Method: "POST", Path: "/credits/checkout", Limit: limit, Window: window, Burst: burst},
	}
}

// FromConfig builds the limiter configuration.
func FromConfig(c config.RateLimitConfig) *Config {
	whitelist := make(map[string]bool, len(c.Whitelist))
	for _, ip := range c.Whitelist {
		whitelist[ip] = true
	}
	return &Config{
		Enabled:         c.Enabled,
		DefaultLimit:    c.DefaultLimit,
		DefaultWindow:   c.DefaultWindow.Duration,
		CleanupInterval: 5 * time.Minute,
		Whitelist:       whitelist,
		Rules:           GenerationRules(c.GenerateLimit, c.GenerateWindow.Duration),
	}
}
