package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadSyncConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := LoadSyncConfig()
		assert.Equal(t, 5*time.Second, cfg.PollInterval)
		assert.Equal(t, 30*time.Second, cfg.KeepAliveInterval)
		assert.Equal(t, time.Second, cfg.Debounce)
		assert.Equal(t, 3, cfg.FailureThreshold)
		assert.Equal(t, 30*time.Second, cfg.Cooldown)
		assert.Equal(t, 30*time.Second, cfg.AlertDismiss)
		assert.True(t, cfg.SweepEnabled)
		assert.Equal(t, 12*time.Hour, cfg.SelectionTTL)
		assert.Equal(t, 30, cfg.DefaultMaxOccupancy)
	})

	t.Run("overrides", func(t *testing.T) {
		t.Setenv("SYNC_POLL_INTERVAL", "2s")
		t.Setenv("SYNC_SWEEP_ENABLED", "off")
		t.Setenv("SYNC_FAILURE_THRESHOLD", "5")
		cfg := LoadSyncConfig()
		assert.Equal(t, 2*time.Second, cfg.PollInterval)
		assert.False(t, cfg.SweepEnabled)
		assert.Equal(t, 5, cfg.FailureThreshold)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		t.Setenv("SYNC_DEBOUNCE", "soon")
		t.Setenv("SYNC_COOLDOWN", "-1s")
		t.Setenv("DEFAULT_MAX_OCCUPANCY", "0")
		cfg := LoadSyncConfig()
		assert.Equal(t, time.Second, cfg.Debounce)
		assert.Equal(t, 30*time.Second, cfg.Cooldown)
		assert.Equal(t, 30, cfg.DefaultMaxOccupancy)
	})
}

func TestLoadRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "10")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	cfg := LoadRateLimitConfig()
	assert.Equal(t, 10, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL, "ttl is at least five refill intervals")
	assert.Equal(t, "device_route", cfg.KeyStrategy)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	cfg := LoadCacheConfig()
	assert.True(t, cfg.Methods["GET"])
	assert.True(t, cfg.Methods["HEAD"])
	assert.False(t, cfg.Methods["POST"])
	assert.Equal(t, 2*time.Second, cfg.TTL)
}

func TestLoad_MemoryDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("APP_PORT", "9090")
	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Empty(t, cfg.DBHost)
}

func TestLoadLogConfig(t *testing.T) {
	assert.Equal(t, "json", LoadLogConfig("production").Format)
	assert.Equal(t, "console", LoadLogConfig("dev").Format)
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("CHILDCARE_TEST_KEY=from-file\n"), 0o600))
	t.Setenv("CHILDCARE_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("CHILDCARE_TEST_KEY"))

	LoadDotEnv(path, filepath.Join(t.TempDir(), "missing.env"))
	assert.Equal(t, "from-file", os.Getenv("CHILDCARE_TEST_KEY"))
}
