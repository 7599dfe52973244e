package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/fordpass/internal/api/fordpass"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("FORDPASS_USERNAME", "driver@example.com")
	t.Setenv("FORDPASS_PASSWORD", "secret")
	t.Setenv("FORDPASS_VIN", "1FTFW1E50MFA00001")
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "4000", cfg.ServerPort)
	assert.False(t, cfg.Debug)
	assert.Equal(t, string(fordpass.RegionNorthAmerica), cfg.Region)
	assert.True(t, cfg.SaveToken)
	assert.Equal(t, TokenBackendFile, cfg.TokenBackend)
	assert.Equal(t, fordpass.DefaultTokenFile, cfg.TokenFile)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 5*time.Second, cfg.CommandPollInterval)
	assert.Equal(t, 0, cfg.CommandMaxPolls)
	assert.Equal(t, time.Duration(0), cfg.StatusCacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("FORDPASS_REGION", "UK&Europe")
	t.Setenv("SAVE_TOKEN", "false")
	t.Setenv("COMMAND_POLL_INTERVAL", "2s")
	t.Setenv("COMMAND_MAX_POLLS", "10")
	t.Setenv("STATUS_CACHE_TTL", "1m")
	t.Setenv("TOKEN_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/fordpass")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "UK&Europe", cfg.Region)
	assert.False(t, cfg.SaveToken)
	assert.Equal(t, 2*time.Second, cfg.CommandPollInterval)
	assert.Equal(t, 10, cfg.CommandMaxPolls)
	assert.Equal(t, time.Minute, cfg.StatusCacheTTL)
	assert.Equal(t, TokenBackendPostgres, cfg.TokenBackend)

	creds := cfg.Credentials()
	assert.Equal(t, fordpass.RegionUKEurope, creds.Region)
	assert.Equal(t, "1FTFW1E50MFA00001", creds.VIN)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing username", env: map[string]string{"FORDPASS_USERNAME": ""}},
		{name: "short vin", env: map[string]string{"FORDPASS_VIN": "ABC123"}},
		{name: "unknown region", env: map[string]string{"FORDPASS_REGION": "Mars"}},
		{name: "unknown backend", env: map[string]string{"TOKEN_BACKEND": "redis"}},
		{name: "postgres without url", env: map[string]string{"TOKEN_BACKEND": "postgres", "DATABASE_URL": ""}},
		{name: "negative max polls", env: map[string]string{"COMMAND_MAX_POLLS": "-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load()
			assert.Error(t, err)
		})
	}
}
