package verifier

import (
	"github.com/louisbranch/keywarden/internal/platform/config"
)

// Config carries the relying party identity used to bind ceremonies to an
// origin. RP ID and origins have no safe defaults and must be set.
type Config struct {
	RPDisplayName string   `env:"KEYWARDEN_RP_DISPLAY_NAME" envDefault:"Keywarden"`
	RPID          string   `env:"KEYWARDEN_RP_ID,notEmpty"`
	RPOrigins     []string `env:"KEYWARDEN_RP_ORIGINS,notEmpty" envSeparator:","`
}

// LoadConfigFromEnv reads relying party settings from the environment.
func LoadConfigFromEnv() (Config, error) {
	var cfg Config
	if err := config.ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
