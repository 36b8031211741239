// Package ratelimit implements progressive per-user rate limiting for auth
// attempts. Escalation distinguishes an attacker hammering an account from a
// tired user fumbling a ceremony: violations cluster, decay with inactivity,
// and one clean success fully exonerates.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config tunes the progressive limiter.
type Config struct {
	Window              time.Duration `env:"KEYWARDEN_AUTH_RATE_LIMIT_WINDOW"               envDefault:"60s"`
	MaxAttempts         int           `env:"KEYWARDEN_AUTH_RATE_LIMIT_MAX"                  envDefault:"10"`
	WarningThreshold    float64       `env:"KEYWARDEN_AUTH_RATE_LIMIT_WARNING_THRESHOLD"    envDefault:"0.7"`
	CautionThreshold    float64       `env:"KEYWARDEN_AUTH_RATE_LIMIT_CAUTION_THRESHOLD"    envDefault:"0.9"`
	ViolationEscalation time.Duration `env:"KEYWARDEN_AUTH_RATE_LIMIT_VIOLATION_ESCALATION" envDefault:"5m"`
	HistoryKeep         int           `env:"KEYWARDEN_AUTH_RATE_LIMIT_HISTORY_KEEP"         envDefault:"100"`
}

// LoadConfigFromEnv reads limiter configuration.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse rate limit env: %w", err)
	}
	if cfg.Window <= 0 {
		return Config{}, fmt.Errorf("rate limit window must be positive")
	}
	if cfg.MaxAttempts <= 0 {
		return Config{}, fmt.Errorf("rate limit max attempts must be positive")
	}
	if cfg.WarningThreshold <= 0 || cfg.WarningThreshold >= 1 {
		return Config{}, fmt.Errorf("warning threshold must be in (0,1)")
	}
	if cfg.CautionThreshold <= 0 || cfg.CautionThreshold >= 1 {
		return Config{}, fmt.Errorf("caution threshold must be in (0,1)")
	}
	if cfg.ViolationEscalation <= 0 {
		return Config{}, fmt.Errorf("violation escalation must be positive")
	}
	if cfg.HistoryKeep <= 0 {
		return Config{}, fmt.Errorf("history keep must be positive")
	}
	return cfg, nil
}
