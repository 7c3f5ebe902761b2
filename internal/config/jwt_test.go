package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternalConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ExternalConfig
		wantErr string
	}{
		{name: "disabled", cfg: ExternalConfig{}},
		{name: "valid", cfg: ExternalConfig{JWTSecret: strings.Repeat("s", 32), TokenTTL: Duration{time.Hour}}},
		{name: "short secret", cfg: ExternalConfig{JWTSecret: "short", TokenTTL: Duration{time.Hour}}, wantErr: "at least 16 characters"},
		{name: "short ttl", cfg: ExternalConfig{JWTSecret: strings.Repeat("s", 32), TokenTTL: Duration{time.Second}}, wantErr: "token_ttl"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.normalize()
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestExternalConfig_ValidatedWithConfig(t *testing.T) {
	t.Setenv("EXTERNAL_JWT_SECRET", "tiny")

	cfg := Default()
	cfg.ApplyEnv()
	assert.True(t, cfg.External.Enabled())
	require.Error(t, cfg.Validate())
}
