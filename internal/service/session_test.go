package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/langchou/fordpass/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ServerPort:          "4000",
		Username:            "driver@example.com",
		Password:            "secret",
		VIN:                 "1FTFW1E50MFA00001",
		Region:              "North America & Canada",
		SaveToken:           true,
		TokenBackend:        config.TokenBackendFile,
		TokenFile:           filepath.Join(t.TempDir(), "token.txt"),
		HTTPTimeout:         time.Second,
		CommandPollInterval: time.Second,
	}
}

func TestOpenSession_FileBackend(t *testing.T) {
	cfg := testConfig(t)

	session, cleanup, err := OpenSession(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, cfg.VIN, session.VIN())
	assert.True(t, session.Persistent())
}

func TestOpenSession_NoPersistence(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveToken = false

	session, cleanup, err := OpenSession(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	assert.False(t, session.Persistent())
}

func TestOpenSession_ClearTokenWithoutPersistence(t *testing.T) {
	cfg := testConfig(t)
	cfg.SaveToken = false
	require.NoError(t, os.WriteFile(cfg.TokenFile, []byte(`{"access_token":"stale"}`), 0600))

	session, cleanup, err := OpenSession(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer cleanup()

	require.NoError(t, session.ClearToken(context.Background()))
	assert.NoFileExists(t, cfg.TokenFile)
}

func TestOpenSession_UnknownRegion(t *testing.T) {
	cfg := testConfig(t)
	cfg.Region = "Mars"

	_, cleanup, err := OpenSession(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	cleanup()
}
