package grantkey

import (
	"bytes"
	"crypto/ed25519"
	"encoding/base64"
	"strings"
	"testing"
)

func TestRunNilOutput(t *testing.T) {
	if err := Run(nil, nil); err == nil {
		t.Fatal("expected error for nil output")
	}
}

func TestRunWritesKeypair(t *testing.T) {
	buf := &bytes.Buffer{}
	seed := bytes.NewReader(bytes.Repeat([]byte{0x42}, ed25519.SeedSize))
	if err := Run(buf, seed); err != nil {
		t.Fatalf("run: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	priv := strings.TrimPrefix(lines[0], "export KEYWARDEN_GRANT_PRIVATE_KEY=")
	pub := strings.TrimPrefix(lines[1], "export KEYWARDEN_GRANT_PUBLIC_KEY=")
	if priv == lines[0] || pub == lines[1] {
		t.Fatalf("unexpected output %q", buf.String())
	}

	privBytes, err := base64.RawStdEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	pubBytes, err := base64.RawStdEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(privBytes) != ed25519.PrivateKeySize || len(pubBytes) != ed25519.PublicKeySize {
		t.Fatalf("key sizes %d/%d", len(privBytes), len(pubBytes))
	}

	// The emitted pair must actually verify.
	msg := []byte("probe")
	sig := ed25519.Sign(ed25519.PrivateKey(privBytes), msg)
	if !ed25519.Verify(ed25519.PublicKey(pubBytes), msg, sig) {
		t.Fatal("keypair does not verify")
	}
}
