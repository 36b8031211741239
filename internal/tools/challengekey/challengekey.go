// Package challengekey generates challenge signing secrets.
package challengekey

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"time"
)

// Config holds configuration for secret generation.
type Config struct {
	Bytes int
	// Ring emits a single-entry rotation list instead of the plain secret
	// variable, ready to prepend to an existing list.
	Ring bool
}

// ParseConfig parses flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	cfg := Config{Bytes: 32}
	fs.IntVar(&cfg.Bytes, "bytes", cfg.Bytes, "number of random bytes (default: 32)")
	fs.BoolVar(&cfg.Ring, "ring", cfg.Ring, "emit a rotation list entry instead of the single-secret variable")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type ringEntry struct {
	Secret    string `json:"secret"`
	RotatedAt int64  `json:"rotatedAt"`
}

// Run generates the secret and writes it to out.
func Run(cfg Config, out io.Writer, reader io.Reader, now func() time.Time) error {
	if cfg.Bytes <= 0 {
		return errors.New("bytes must be greater than zero")
	}
	if out == nil {
		return errors.New("output is required")
	}
	if reader == nil {
		reader = rand.Reader
	}
	if now == nil {
		now = time.Now
	}

	buf := make([]byte, cfg.Bytes)
	if _, err := io.ReadFull(reader, buf); err != nil {
		return fmt.Errorf("generate random bytes: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	if cfg.Ring {
		entry, err := json.Marshal([]ringEntry{{Secret: secret, RotatedAt: now().UnixMilli()}})
		if err != nil {
			return fmt.Errorf("encode ring entry: %w", err)
		}
		_, err = fmt.Fprintf(out, "KEYWARDEN_CHALLENGE_SECRETS=%s\n", entry)
		return err
	}
	_, err := fmt.Fprintf(out, "KEYWARDEN_CHALLENGE_SECRET=%s\n", secret)
	return err
}
