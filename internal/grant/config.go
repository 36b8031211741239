package grant

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/louisbranch/keywarden/internal/platform/errors"
)

// rawConfig holds raw env values before post-parse validation.
type rawConfig struct {
	Issuer     string        `env:"KEYWARDEN_GRANT_ISSUER"`
	Audience   string        `env:"KEYWARDEN_GRANT_AUDIENCE"`
	PrivateKey string        `env:"KEYWARDEN_GRANT_PRIVATE_KEY"`
	TTL        time.Duration `env:"KEYWARDEN_GRANT_TTL"         envDefault:"5m"`
}

// Config defines how session grants are signed.
type Config struct {
	Issuer     string
	Audience   string
	PrivateKey string // base64-encoded Ed25519 private key
	TTL        time.Duration
}

// LoadConfigFromEnv reads grant signing configuration from the environment.
func LoadConfigFromEnv() (Config, error) {
	var raw rawConfig
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse grant env: %w", err)
	}
	cfg := Config{
		Issuer:     strings.TrimSpace(raw.Issuer),
		Audience:   strings.TrimSpace(raw.Audience),
		PrivateKey: strings.TrimSpace(raw.PrivateKey),
		TTL:        raw.TTL,
	}
	if cfg.Issuer == "" {
		return Config{}, fmt.Errorf("KEYWARDEN_GRANT_ISSUER is required")
	}
	if cfg.Audience == "" {
		return Config{}, fmt.Errorf("KEYWARDEN_GRANT_AUDIENCE is required")
	}
	if cfg.PrivateKey == "" {
		return Config{}, fmt.Errorf("KEYWARDEN_GRANT_PRIVATE_KEY is required")
	}
	if cfg.TTL <= 0 {
		return Config{}, fmt.Errorf("grant ttl must be positive")
	}
	if _, err := cfg.privateKey(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) privateKey() (ed25519.PrivateKey, error) {
	keyBytes, err := decodeBase64(c.PrivateKey)
	if err != nil {
		return nil, errors.Wrap(errors.CodeGrantInvalid, "decode grant private key", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return nil, errors.WithMetadata(errors.CodeGrantInvalid, "grant private key has wrong size", map[string]string{
			"expected_bytes": fmt.Sprintf("%d", ed25519.PrivateKeySize),
		})
	}
	return ed25519.PrivateKey(keyBytes), nil
}

func decodeBase64(value string) ([]byte, error) {
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
