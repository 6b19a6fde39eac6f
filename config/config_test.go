package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/parking")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "3001", cfg.Server.Port)
	assert.Equal(t, 30*time.Minute, cfg.Lifecycle.GracePeriod)
	assert.Equal(t, 15*time.Minute, cfg.Lifecycle.PresenceWindow)
	assert.Equal(t, 15*time.Second, cfg.Lifecycle.SweepInterval)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.Equal(t, []time.Duration{5 * time.Minute, 15 * time.Minute, 30 * time.Minute}, cfg.Retry.Backoff)
	assert.Equal(t, 24*time.Hour, cfg.Retention.Window)
	assert.Equal(t, 10*time.Second, cfg.Dispatch.Timeout)
	assert.False(t, cfg.IsProduction())
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/parking")
	t.Setenv("ENV", "production")
	t.Setenv("PORT", "8080")
	t.Setenv("RETRY_MAX_RETRIES", "5")
	t.Setenv("LIFECYCLE_GRACE_PERIOD", "10m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Retry.MaxRetries)
	assert.Equal(t, 10*time.Minute, cfg.Lifecycle.GracePeriod)
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}
