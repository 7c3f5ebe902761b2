package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

// DefaultAllowedOrigins admits extension pages and nothing else.
var DefaultAllowedOrigins = []string{"chrome-extension://*"}

// OriginPolicy is an origin allow-list. An entry ending in "*" matches by prefix.
type OriginPolicy struct {
	exact    mapset.Set[string]
	prefixes []string
}

// NewOriginPolicy builds a policy from allowed; an empty list uses DefaultAllowedOrigins.
func NewOriginPolicy(allowed []string) *OriginPolicy {
	if len(allowed) == 0 {
		allowed = DefaultAllowedOrigins
	}
	p := &OriginPolicy{exact: mapset.NewThreadUnsafeSet[string]()}
	for _, o := range allowed {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		switch {
		case o == "":
		case strings.HasSuffix(o, "*"):
			p.prefixes = append(p.prefixes, strings.TrimSuffix(o, "*"))
		default:
			p.exact.Add(o)
		}
	}
	return p
}

// Allows reports whether origin is on the list.
func (p *OriginPolicy) Allows(origin string) bool {
	if p.exact.Contains(origin) {
		return true
	}
	for _, prefix := range p.prefixes {
		if strings.HasPrefix(origin, prefix) && len(origin) > len(prefix) {
			return true
		}
	}
	return false
}

// CORS echoes allowed origins and refuses requests from any other origin with 403.
// Requests without an Origin header, such as the CLI's, pass through untouched.
func CORS(p *OriginPolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !p.Allows(origin) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "origin not allowed"})
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
