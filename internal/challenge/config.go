package challenge

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config controls challenge token issuance.
type Config struct {
	// Secrets is a JSON array of signing secrets ordered newest first, e.g.
	// [{"secret":"current","rotatedAt":1702977904000},{"secret":"previous","rotatedAt":1702890000000}].
	Secrets string `env:"KEYWARDEN_CHALLENGE_SECRETS"`
	// Secret is the single-secret fallback when Secrets is unset.
	Secret string        `env:"KEYWARDEN_CHALLENGE_SECRET"`
	TTL    time.Duration `env:"KEYWARDEN_CHALLENGE_TTL" envDefault:"2m"`
}

// LoadConfigFromEnv reads challenge configuration.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse challenge env: %w", err)
	}
	if cfg.TTL <= 0 {
		return Config{}, fmt.Errorf("challenge ttl must be positive")
	}
	return cfg, nil
}

type secretEntry struct {
	Secret    string `json:"secret"`
	RotatedAt int64  `json:"rotatedAt"`
}

// Ring builds the secret ring described by the config. The JSON list wins
// over the single-secret fallback so rotation can be introduced without
// removing the old variable.
func (c Config) Ring() (*Ring, error) {
	if raw := strings.TrimSpace(c.Secrets); raw != "" {
		var entries []secretEntry
		if err := json.Unmarshal([]byte(raw), &entries); err != nil {
			return nil, fmt.Errorf("parse KEYWARDEN_CHALLENGE_SECRETS: %w", err)
		}
		secrets := make([]Secret, 0, len(entries))
		for _, entry := range entries {
			if entry.Secret == "" {
				continue
			}
			secrets = append(secrets, Secret{
				Value:     []byte(entry.Secret),
				RotatedAt: time.UnixMilli(entry.RotatedAt).UTC(),
			})
		}
		if len(secrets) > 0 {
			return NewRing(secrets...)
		}
	}

	single := strings.TrimSpace(c.Secret)
	if single == "" {
		return nil, fmt.Errorf("KEYWARDEN_CHALLENGE_SECRET or KEYWARDEN_CHALLENGE_SECRETS is required")
	}
	return NewRing(Secret{Value: []byte(single), RotatedAt: time.Now().UTC()})
}
