package config

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Environment variable names understood by Load.
const (
	EnvPrefix     = "HUDDLE_"
	EnvConfigFile = "HUDDLE_CONFIG"
)

// Load builds a Config by layering defaults, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New(ctx))
//  2. file (YAML) if HUDDLE_CONFIG is set
//  3. env (prefix HUDDLE_)
func Load(ctx context.Context) (*Config, error) {
	base := New(ctx)
	k := koanf.New(".")

	if path := os.Getenv(EnvConfigFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// HUDDLE_GROUP_SIZE -> group_size (flat keys, underscores preserved).
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the service cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Addr == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.GroupSize < 2:
		return fmt.Errorf("%w: group_size must be at least 2", ErrInvalidConfig)
	case c.MaxLeftoverAbsorb < 0:
		return fmt.Errorf("%w: max_leftover_absorb must not be negative", ErrInvalidConfig)
	case c.InterestWeight < 0 || c.EnergyWeight < 0 || c.LocationWeight < 0:
		return fmt.Errorf("%w: compatibility weights must not be negative", ErrInvalidConfig)
	case c.InterestWeight+c.EnergyWeight+c.LocationWeight <= 0:
		return fmt.Errorf("%w: compatibility weights must not all be zero", ErrInvalidConfig)
	case c.FreezeHoursBefore < 0:
		return fmt.Errorf("%w: freeze_hours_before must not be negative", ErrInvalidConfig)
	case c.StaleGroupTimeoutSec <= 0:
		return fmt.Errorf("%w: stale_group_timeout_sec must be positive", ErrInvalidConfig)
	case c.CheckInWindowBeforeMin < 0 || c.CheckInWindowAfterMin < 0:
		return fmt.Errorf("%w: check-in window must not be negative", ErrInvalidConfig)
	case c.RequestTimeoutSec <= 0 || c.ShutdownTimeoutSec <= 0:
		return fmt.Errorf("%w: timeouts must be positive", ErrInvalidConfig)
	}
	return nil
}
