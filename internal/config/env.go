package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnv overrides fields from ONECLICK_* variables, plus the rate limit
// variables shared with other services.
func (c *Config) ApplyEnv() {
	c.Listen = envString("ONECLICK_LISTEN", c.Listen)
	c.BackendURL = envString("ONECLICK_BACKEND_URL", c.BackendURL)

	c.Log.Level = envString("ONECLICK_LOG_LEVEL", c.Log.Level)
	c.Log.Development = envBool("ONECLICK_LOG_DEVELOPMENT", c.Log.Development)

	c.Store.Driver = envString("ONECLICK_STORE_DRIVER", c.Store.Driver)
	c.Store.Path = envString("ONECLICK_STORE_PATH", c.Store.Path)
	c.Store.DSN = envString("DATABASE_URL", c.Store.DSN)

	c.Credits.Mode = envString("ONECLICK_CREDITS_MODE", c.Credits.Mode)
	c.Credits.LocalAllowance = envInt("ONECLICK_LOCAL_CREDITS", c.Credits.LocalAllowance)

	c.Generation.JobSource = envString("ONECLICK_JOB_SOURCE", c.Generation.JobSource)
	c.Generation.FullResume = envBool("ONECLICK_FULL_RESUME", c.Generation.FullResume)

	c.Fetch.UseBrowser = envBool("ONECLICK_USE_BROWSER", c.Fetch.UseBrowser)
	c.Fetch.Timeout.Duration = envDuration("ONECLICK_FETCH_TIMEOUT", c.Fetch.Timeout.Duration)

	c.External.JWTSecret = envString("EXTERNAL_JWT_SECRET", c.External.JWTSecret)
	c.External.TokenTTL.Duration = envDuration("EXTERNAL_TOKEN_TTL", c.External.TokenTTL.Duration)

	c.RateLimit.Enabled = envBool("RATE_LIMIT_ENABLED", c.RateLimit.Enabled)
	c.RateLimit.DefaultLimit = envInt("RATE_LIMIT_DEFAULT_LIMIT", c.RateLimit.DefaultLimit)
	c.RateLimit.DefaultWindow.Duration = envDuration("RATE_LIMIT_DEFAULT_WINDOW", c.RateLimit.DefaultWindow.Duration)
	if list := os.Getenv("ONECLICK_ALLOWED_ORIGINS"); list != "" {
		c.AllowedOrigins = splitList(list)
	}
	if list := os.Getenv("RATE_LIMIT_WHITELIST"); list != "" {
		c.RateLimit.Whitelist = splitList(list)
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return v
	}
	return fallback
}

func splitList(list string) []string {
	var out []string
	for _, item := range strings.Split(list, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
