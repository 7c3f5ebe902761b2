package config

import (
	"fmt"
	"time"
)

// ExternalConfig configures authentication of messages from other extensions and
// web pages. An empty secret accepts unauthenticated external messages.
type ExternalConfig struct {
	JWTSecret string   `json:"jwt_secret,omitempty" toml:"jwt_secret"`
	TokenTTL  Duration `json:"token_ttl" toml:"token_ttl"`
}

// Enabled reports whether external messages must carry a token.
func (c ExternalConfig) Enabled() bool { return c.JWTSecret != "" }

func (c ExternalConfig) normalize() error {
	if !c.Enabled() {
		return nil
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("config error: external jwt_secret must be at least 16 characters")
	}
	if c.TokenTTL.Duration < time.Minute {
		return fmt.Errorf("config error: external token_ttl must be at least 1m, got: %s", c.TokenTTL.Duration)
	}
	return nil
}
