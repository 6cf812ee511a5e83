package config

import (
	"time"

	"github.com/iliyamo/childcare-checkin/internal/model"
)

// SyncConfig holds the timing of device runtimes and the store defaults.
type SyncConfig struct {
	PollInterval        time.Duration
	KeepAliveInterval   time.Duration
	Debounce            time.Duration
	FailureThreshold    int
	Cooldown            time.Duration
	AlertDismiss        time.Duration
	SweepEnabled        bool
	SelectionTTL        time.Duration
	DefaultMaxOccupancy int
}

// LoadSyncConfig reads the SYNC_* variables.  Non-positive values fall
// back to the defaults.
func LoadSyncConfig() SyncConfig {
	cfg := SyncConfig{
		PollInterval:        envDur("SYNC_POLL_INTERVAL", 5*time.Second),
		KeepAliveInterval:   envDur("SYNC_KEEPALIVE_INTERVAL", 30*time.Second),
		Debounce:            envDur("SYNC_DEBOUNCE", time.Second),
		FailureThreshold:    envInt("SYNC_FAILURE_THRESHOLD", 3),
		Cooldown:            envDur("SYNC_COOLDOWN", 30*time.Second),
		AlertDismiss:        envDur("SYNC_ALERT_DISMISS", 30*time.Second),
		SweepEnabled:        envBool("SYNC_SWEEP_ENABLED", true),
		SelectionTTL:        envDur("SYNC_SELECTION_TTL", 12*time.Hour),
		DefaultMaxOccupancy: envInt("DEFAULT_MAX_OCCUPANCY", model.DefaultMaxOccupancy),
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.KeepAliveInterval <= 0 {
		cfg.KeepAliveInterval = 30 * time.Second
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = time.Second
	}
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.AlertDismiss <= 0 {
		cfg.AlertDismiss = 30 * time.Second
	}
	if cfg.DefaultMaxOccupancy < 1 {
		cfg.DefaultMaxOccupancy = model.DefaultMaxOccupancy
	}
	return cfg
}

// LogConfig selects the logger output.
type LogConfig struct {
	Level  string
	Format string
	Output string
}

// LoadLogConfig reads LOG_LEVEL, LOG_FORMAT and LOG_OUTPUT.  The format
// defaults to json in production and console elsewhere.
func LoadLogConfig(env string) LogConfig {
	format := "console"
	if env == "production" {
		format = "json"
	}
	return LogConfig{
		Level:  envStr("LOG_LEVEL", "info"),
		Format: envStr("LOG_FORMAT", format),
		Output: envStr("LOG_OUTPUT", "stdout"),
	}
}
