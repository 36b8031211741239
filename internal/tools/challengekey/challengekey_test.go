package challengekey

import (
	"bytes"
	"flag"
	"strings"
	"testing"
	"time"
)

func TestParseConfigDefaults(t *testing.T) {
	fs := flag.NewFlagSet("challengekey", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Bytes != 32 {
		t.Fatalf("expected default bytes 32, got %d", cfg.Bytes)
	}
	if cfg.Ring {
		t.Fatal("expected ring disabled by default")
	}
}

func TestParseConfigOverride(t *testing.T) {
	fs := flag.NewFlagSet("challengekey", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, []string{"-bytes", "16", "-ring"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Bytes != 16 || !cfg.Ring {
		t.Fatalf("unexpected config %+v", cfg)
	}
}

func TestRunRejectsInvalidBytes(t *testing.T) {
	if err := Run(Config{Bytes: 0}, &bytes.Buffer{}, bytes.NewReader(nil), nil); err == nil {
		t.Fatal("expected error for non-positive bytes")
	}
}

func TestRunNilOutput(t *testing.T) {
	if err := Run(Config{Bytes: 4}, nil, nil, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

func TestRunWritesSingleSecret(t *testing.T) {
	buf := &bytes.Buffer{}
	reader := bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04})
	if err := Run(Config{Bytes: 4}, buf, reader, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if got := strings.TrimSpace(buf.String()); got != "KEYWARDEN_CHALLENGE_SECRET=AQIDBA" {
		t.Fatalf("expected env output, got %q", got)
	}
}

func TestRunWritesRingEntry(t *testing.T) {
	buf := &bytes.Buffer{}
	reader := bytes.NewReader([]byte{0x01, 0x02, 0x03, 0x04})
	now := func() time.Time { return time.UnixMilli(1702977904000) }
	if err := Run(Config{Bytes: 4, Ring: true}, buf, reader, now); err != nil {
		t.Fatalf("run: %v", err)
	}
	want := `KEYWARDEN_CHALLENGE_SECRETS=[{"secret":"AQIDBA","rotatedAt":1702977904000}]`
	if got := strings.TrimSpace(buf.String()); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestRunDefaultReader(t *testing.T) {
	buf := &bytes.Buffer{}
	if err := Run(Config{Bytes: 4}, buf, nil, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "KEYWARDEN_CHALLENGE_SECRET=") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}
