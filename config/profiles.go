package config

import (
	"fmt"
	"time"
)

// LoadProfile returns the configuration for a named deployment profile with
// environment variables applied on top.
func LoadProfile(name string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.Profile = name

	switch Environment(name) {
	case EnvDevelopment:
		cfg.Environment = EnvDevelopment
	case EnvTesting:
		cfg.Environment = EnvTesting
		cfg.Logging.Level = "debug"
		cfg.Engine.SweepInterval = 5 * time.Second
	case EnvStaging:
		cfg.Environment = EnvStaging
		cfg.Metrics.Enabled = true
	case EnvProduction:
		cfg.Environment = EnvProduction
		cfg.Logging.Level = "warn"
		cfg.Engine.Dispatch = "async"
		cfg.Metrics.Enabled = true
		cfg.Security.EnableRateLimit = true
	default:
		return nil, fmt.Errorf("unknown profile: %s", name)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
