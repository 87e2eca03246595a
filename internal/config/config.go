// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - Defaults live in New(ctx); Load layers a YAML file and env vars on top.
//   - Durations are expressed in whole units (seconds/minutes) so they can be
//     set from flat env vars.
package config

import (
	"context"
	"runtime"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`
	// DatabaseURL selects the Postgres store; empty means in-memory.
	DatabaseURL string `koanf:"database_url"`
	// AutoMigrate applies embedded schema migrations on start.
	AutoMigrate bool `koanf:"auto_migrate"`
	// CORSOrigins is a comma-separated allow list; empty disables CORS.
	CORSOrigins string `koanf:"cors_origins"`
	// RequestTimeoutSec bounds a single HTTP request.
	RequestTimeoutSec int `koanf:"request_timeout_sec"`
	// ShutdownTimeoutSec bounds graceful shutdown.
	ShutdownTimeoutSec int `koanf:"shutdown_timeout_sec"`

	// GroupSize is the target micro-group size k.
	GroupSize int `koanf:"group_size"`
	// MaxLeftoverAbsorb is how many leftovers may be folded into existing groups.
	MaxLeftoverAbsorb int `koanf:"max_leftover_absorb"`
	// MaxCandidates caps a single assembly request.
	MaxCandidates int `koanf:"max_candidates"`

	// Compatibility weights.
	InterestWeight float64 `koanf:"interest_weight"`
	EnergyWeight   float64 `koanf:"energy_weight"`
	LocationWeight float64 `koanf:"location_weight"`

	// FreezeHoursBefore is used when an event does not carry its own value.
	FreezeHoursBefore int `koanf:"freeze_hours_before"`
	// GuardHonorsOverride lets the admin override lock also open the guard.
	GuardHonorsOverride bool `koanf:"guard_honors_override"`
	// AutoFreezeIntervalSec runs the automatic freeze sweep; 0 disables it.
	AutoFreezeIntervalSec int `koanf:"auto_freeze_interval_sec"`
	// AutoFreezeLookaheadHours bounds which upcoming events the sweep inspects.
	AutoFreezeLookaheadHours int `koanf:"auto_freeze_lookahead_hours"`

	// StaleGroupTimeoutSec is the age after which a forming group is stale.
	StaleGroupTimeoutSec int `koanf:"stale_group_timeout_sec"`
	// ReconcileIntervalSec runs the stale-group sweep; 0 disables it.
	ReconcileIntervalSec int `koanf:"reconcile_interval_sec"`

	// Check-in window around event start, in minutes.
	CheckInWindowBeforeMin int `koanf:"checkin_window_before_min"`
	CheckInWindowAfterMin  int `koanf:"checkin_window_after_min"`
	// CheckInTokenSecret keys the QR checksum. Empty generates a per-process key.
	CheckInTokenSecret string `koanf:"checkin_token_secret"`
	// CheckInTokenValidityMin is how long after event start a token stays valid.
	CheckInTokenValidityMin int `koanf:"checkin_token_validity_min"`

	// StreakQueueSize bounds the in-memory streak job queue.
	StreakQueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of streak workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize sets the size of the streak idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config populated with defaults. Context is accepted first to
// satisfy the project-wide convention and is currently unused.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                 "info",
		LogFormat:                "text",
		Addr:                     ":9080",
		AutoMigrate:              true,
		RequestTimeoutSec:        15,
		ShutdownTimeoutSec:       10,
		GroupSize:                4,
		MaxLeftoverAbsorb:        2,
		MaxCandidates:            1_000,
		InterestWeight:           0.5,
		EnergyWeight:             0.3,
		LocationWeight:           0.2,
		FreezeHoursBefore:        2,
		GuardHonorsOverride:      true,
		AutoFreezeIntervalSec:    60,
		AutoFreezeLookaheadHours: 48,
		StaleGroupTimeoutSec:     300,
		ReconcileIntervalSec:     120,
		CheckInWindowBeforeMin:   30,
		CheckInWindowAfterMin:    60,
		CheckInTokenValidityMin:  60,
		StreakQueueSize:          10_000,
		WorkerCount:              runtime.NumCPU(),
		DedupeSize:               50_000,
	}
}

// StaleGroupTimeout returns the stale threshold as a duration.
func (c *Config) StaleGroupTimeout() time.Duration {
	return time.Duration(c.StaleGroupTimeoutSec) * time.Second
}

// ReconcileInterval returns the reconciler period; zero disables the loop.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalSec) * time.Second
}

// AutoFreezeInterval returns the auto-freeze period; zero disables the loop.
func (c *Config) AutoFreezeInterval() time.Duration {
	return time.Duration(c.AutoFreezeIntervalSec) * time.Second
}

// AutoFreezeLookahead returns how far ahead the auto-freeze sweep looks.
func (c *Config) AutoFreezeLookahead() time.Duration {
	return time.Duration(c.AutoFreezeLookaheadHours) * time.Hour
}

// CheckInWindow returns the accepted offsets before and after event start.
func (c *Config) CheckInWindow() (before, after time.Duration) {
	return time.Duration(c.CheckInWindowBeforeMin) * time.Minute,
		time.Duration(c.CheckInWindowAfterMin) * time.Minute
}

// CheckInTokenValidity returns how long after start a check-in token is accepted.
func (c *Config) CheckInTokenValidity() time.Duration {
	return time.Duration(c.CheckInTokenValidityMin) * time.Minute
}

// RequestTimeout returns the per-request deadline.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSec) * time.Second
}

// ShutdownTimeout returns the graceful shutdown deadline.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// AllowedOrigins splits CORSOrigins, dropping blanks and trailing slashes.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, p := range strings.Split(c.CORSOrigins, ",") {
		if o := strings.TrimRight(strings.TrimSpace(p), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
