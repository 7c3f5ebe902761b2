// Package config loads the daemon configuration from a JSON or TOML file,
// applies environment overrides and validates the result.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// DefaultBackendURL is the production generation backend.
const DefaultBackendURL = "https://one-click-apply-server.onrender.com"

// Config is the full daemon configuration.
type Config struct {
	Listen     string           `json:"listen" toml:"listen" validate:"required,hostname_port"`
	BackendURL string           `json:"backend_url" toml:"backend_url" validate:"required,http_url"`
	Log        LogConfig        `json:"log" toml:"log"`
	Store      StoreConfig      `json:"store" toml:"store"`
	Credits    CreditsConfig    `json:"credits" toml:"credits"`
	Generation GenerationConfig `json:"generation" toml:"generation"`
	Fetch      FetchConfig      `json:"fetch" toml:"fetch"`
	External   ExternalConfig   `json:"external" toml:"external"`
	RateLimit  RateLimitConfig  `json:"rate_limit" toml:"rate_limit"`
	// AllowedOrigins are the browser origins admitted by CORS. An entry ending in
	// "*" matches by prefix.
	AllowedOrigins []string `json:"allowed_origins" toml:"allowed_origins" validate:"dive,required"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level       string `json:"level" toml:"level" validate:"oneof=debug info warn error"`
	Development bool   `json:"development" toml:"development"`
}

// StoreConfig selects the shared key-value store backend.
type StoreConfig struct {
	Driver string `json:"driver" toml:"driver" validate:"oneof=memory sqlite postgres"`
	Path   string `json:"path,omitempty" toml:"path" validate:"required_if=Driver sqlite"`
	DSN    string `json:"dsn,omitempty" toml:"dsn" validate:"required_if=Driver postgres"`
}

// CreditsConfig selects where the credit balance comes from.
type CreditsConfig struct {
	Mode           string `json:"mode" toml:"mode" validate:"oneof=remote local"`
	LocalAllowance int    `json:"local_allowance" toml:"local_allowance" validate:"min=0"`
}

// GenerationConfig tunes generation sessions.
type GenerationConfig struct {
	JobSource  string `json:"job_source" toml:"job_source" validate:"oneof=url content"`
	FullResume bool   `json:"full_resume" toml:"full_resume"`
}

// FetchConfig tunes page loading for tabs without a pushed snapshot.
type FetchConfig struct {
	Timeout        Duration `json:"timeout" toml:"timeout"`
	UserAgent      string   `json:"user_agent,omitempty" toml:"user_agent"`
	UseBrowser     bool     `json:"use_browser" toml:"use_browser"`
	BrowserTimeout Duration `json:"browser_timeout" toml:"browser_timeout"`
}

// RateLimitConfig configures the per-client token buckets of the HTTP API.
type RateLimitConfig struct {
	Enabled        bool     `json:"enabled" toml:"enabled"`
	DefaultLimit   int      `json:"default_limit" toml:"default_limit" validate:"min=0"`
	DefaultWindow  Duration `json:"default_window" toml:"default_window"`
	GenerateLimit  int      `json:"generate_limit" toml:"generate_limit" validate:"min=0"`
	GenerateWindow Duration `json:"generate_window" toml:"generate_window"`
	Whitelist      []string `json:"whitelist,omitempty" toml:"whitelist"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

// UnmarshalText parses a duration string.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText formats the duration.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:     "127.0.0.1:8765",
		BackendURL: DefaultBackendURL,
		Log:        LogConfig{Level: "info"},
		Store:      StoreConfig{Driver: "sqlite", Path: "oneclick.db"},
		Credits:    CreditsConfig{Mode: "remote", LocalAllowance: 3},
		Generation: GenerationConfig{JobSource: "url"},
		Fetch: FetchConfig{
			Timeout:        Duration{30 * time.Second},
			BrowserTimeout: Duration{60 * time.Second},
		},
		External: ExternalConfig{TokenTTL: Duration{24 * time.Hour}},
		RateLimit: RateLimitConfig{
			Enabled:        true,
			DefaultLimit:   600,
			DefaultWindow:  Duration{time.Minute},
			GenerateLimit:  30,
			GenerateWindow: Duration{time.Hour},
		},
		AllowedOrigins: []string{"chrome-extension://*"},
	}
}

// Load reads path over the defaults. JSON and TOML are chosen by extension.
// An empty path returns the defaults. Environment overrides are not applied.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return &cfg, nil
	}

	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		if _, err := toml.Decode(string(data), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config TOML: %w", err)
		}
	case ".json", "":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", ext)
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks field constraints and returns one message per failed field.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return c.External.normalize()
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("config error: %s", strings.Join(msgs, "; "))
}
