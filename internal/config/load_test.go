package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setRequiredEnv populates the secrets that have no usable defaults.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DRIVEFLOW_DATABASE_URL", "postgres://localhost:5432/driveflow")
	t.Setenv("DRIVEFLOW_AI_GEMINI_API_KEY", "test-api-key")
	t.Setenv("DRIVEFLOW_STORAGE_ENDPOINT", "localhost:9000")
	t.Setenv("DRIVEFLOW_STORAGE_ACCESS_KEY", "minioadmin")
	t.Setenv("DRIVEFLOW_STORAGE_SECRET_KEY", "minioadmin")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, 3, cfg.Pipeline.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.Pipeline.RetryDelay)
	assert.Equal(t, 600*time.Second, cfg.Pipeline.TaskDeadline)
	assert.Equal(t, time.Hour, cfg.Pipeline.ReaperPeriod)
	assert.Equal(t, time.Hour, cfg.Pipeline.StalenessThreshold)
	assert.Equal(t, 15, cfg.Quota.PerMinute)
	assert.Equal(t, 1500, cfg.Quota.PerDay)
	assert.Equal(t, "ollama", cfg.Quota.FallbackProvider)
	assert.Equal(t, "Asia/Bangkok", cfg.Quota.Timezone)
	assert.Equal(t, 300, cfg.Storage.ThumbnailSize)
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DRIVEFLOW_SERVER_PORT", "9999")
	t.Setenv("DRIVEFLOW_SERVER_LOG_LEVEL", "debug")
	t.Setenv("DRIVEFLOW_PIPELINE_RETRY_DELAY", "30s")
	t.Setenv("DRIVEFLOW_QUOTA_PER_MINUTE", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Server.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.RetryDelay)
	assert.Equal(t, 5, cfg.Quota.PerMinute)
}

func TestLoadMissingSecrets(t *testing.T) {
	// Only partial credentials set.
	t.Setenv("DRIVEFLOW_DATABASE_URL", "postgres://localhost:5432/driveflow")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestLoadRejectsBadLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DRIVEFLOW_SERVER_LOG_LEVEL", "verbose")

	_, err := Load()
	assert.Error(t, err)
}
