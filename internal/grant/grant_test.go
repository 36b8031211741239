package grant

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/louisbranch/keywarden/internal/platform/errors"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return Config{
		Issuer:     "keywarden",
		Audience:   "example.com",
		PrivateKey: base64.StdEncoding.EncodeToString(priv),
		TTL:        5 * time.Minute,
	}
}

func testSigner(t *testing.T) *Signer {
	t.Helper()
	signer, err := NewSigner(testConfig(t))
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	return signer
}

func TestIssueAndValidate(t *testing.T) {
	signer := testSigner(t)

	token, err := signer.Issue("user-1", "cred-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := signer.Validate(token)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if claims.UserID != "user-1" {
		t.Errorf("userID = %q, want user-1", claims.UserID)
	}
	if claims.CredentialID != "cred-1" {
		t.Errorf("credentialID = %q, want cred-1", claims.CredentialID)
	}
	if claims.GrantID == "" {
		t.Error("grantID is empty")
	}
	if !claims.ExpiresAt.After(claims.IssuedAt) {
		t.Errorf("exp %v not after iat %v", claims.ExpiresAt, claims.IssuedAt)
	}
}

func TestIssueRequiresUserID(t *testing.T) {
	signer := testSigner(t)

	_, err := signer.Issue("  ", "cred-1")
	if !errors.IsCode(err, errors.CodeGrantInvalid) {
		t.Fatalf("err = %v, want CodeGrantInvalid", err)
	}
}

func TestValidateRejectsExpired(t *testing.T) {
	signer := testSigner(t)

	issued := time.Now()
	signer.WithClock(func() time.Time { return issued })
	token, err := signer.Issue("user-1", "cred-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	signer.WithClock(func() time.Time { return issued.Add(5*time.Minute + time.Second) })
	_, err = signer.Validate(token)
	if !errors.IsCode(err, errors.CodeGrantExpired) {
		t.Fatalf("err = %v, want CodeGrantExpired", err)
	}
}

func TestValidateRejectsForeignSigner(t *testing.T) {
	signer := testSigner(t)
	other := testSigner(t)

	token, err := other.Issue("user-1", "cred-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = signer.Validate(token)
	if !errors.IsCode(err, errors.CodeGrantInvalid) {
		t.Fatalf("err = %v, want CodeGrantInvalid", err)
	}
}

func TestValidateRejectsIssuerMismatch(t *testing.T) {
	cfg := testConfig(t)
	signer, err := NewSigner(cfg)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	cfg.Issuer = "someone-else"
	verifier, err := NewSigner(cfg)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	token, err := signer.Issue("user-1", "cred-1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	// Same key, different expected issuer.
	if _, err := verifier.Validate(token); !errors.IsCode(err, errors.CodeGrantInvalid) {
		t.Fatalf("err = %v, want CodeGrantInvalid", err)
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	signer := testSigner(t)

	for _, token := range []string{"", "   ", "not.a.jwt", "a.b"} {
		_, err := signer.Validate(token)
		if !errors.IsCode(err, errors.CodeGrantInvalid) {
			t.Errorf("token %q: err = %v, want CodeGrantInvalid", token, err)
		}
	}
}

func TestNewSignerRejectsBadKey(t *testing.T) {
	cfg := testConfig(t)
	cfg.PrivateKey = base64.StdEncoding.EncodeToString([]byte("too short"))
	if _, err := NewSigner(cfg); !errors.IsCode(err, errors.CodeGrantInvalid) {
		t.Fatalf("err = %v, want CodeGrantInvalid", err)
	}

	cfg.PrivateKey = "%%% not base64 %%%"
	if _, err := NewSigner(cfg); !errors.IsCode(err, errors.CodeGrantInvalid) {
		t.Fatalf("err = %v, want CodeGrantInvalid", err)
	}
}
