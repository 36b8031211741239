package challenge

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	apperrors "github.com/louisbranch/keywarden/internal/platform/errors"
)

func testRing(t *testing.T, values ...string) *Ring {
	t.Helper()
	secrets := make([]Secret, 0, len(values))
	for _, value := range values {
		secrets = append(secrets, Secret{Value: []byte(value), RotatedAt: time.Now()})
	}
	ring, err := NewRing(secrets...)
	if err != nil {
		t.Fatalf("new ring: %v", err)
	}
	return ring
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	codec := NewCodec(testRing(t, "secret-1"))

	issued, err := codec.Issue("user-1", 2*time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if issued.Challenge == "" || issued.Token == "" {
		t.Fatalf("issued = %+v", issued)
	}
	if _, err := base64.RawURLEncoding.DecodeString(issued.Challenge); err != nil {
		t.Fatalf("challenge is not base64url: %v", err)
	}
	if err := codec.Verify("user-1", issued.Challenge, issued.Token); err != nil {
		t.Fatalf("verify: %v", err)
	}
}

func TestVerifyMalformedToken(t *testing.T) {
	codec := NewCodec(testRing(t, "secret-1"))

	for _, token := range []string{"", "one-part", "a.b.c", "!!!.sig"} {
		err := codec.Verify("user-1", "challenge", token)
		if apperrors.GetCode(err) != apperrors.CodeChallengeTokenMalformed {
			t.Fatalf("token %q: expected malformed, got %v", token, err)
		}
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	codec := NewCodec(testRing(t, "secret-1"))
	issued, err := codec.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	parts := strings.Split(issued.Token, ".")
	sig, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatalf("decode signature: %v", err)
	}
	for i := range sig {
		flipped := append([]byte(nil), sig...)
		flipped[i] ^= 0x01
		token := parts[0] + "." + base64.RawURLEncoding.EncodeToString(flipped)
		err := codec.Verify("user-1", issued.Challenge, token)
		if apperrors.GetCode(err) != apperrors.CodeChallengeSignatureInvalid {
			t.Fatalf("byte %d: expected invalid signature, got %v", i, err)
		}
	}
}

func TestVerifyUserMismatch(t *testing.T) {
	codec := NewCodec(testRing(t, "secret-1"))
	issued, err := codec.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	err = codec.Verify("user-2", issued.Challenge, issued.Token)
	if apperrors.GetCode(err) != apperrors.CodeChallengeUserMismatch {
		t.Fatalf("expected user mismatch, got %v", err)
	}
}

func TestVerifyChallengeMismatch(t *testing.T) {
	codec := NewCodec(testRing(t, "secret-1"))
	issued, err := codec.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	err = codec.Verify("user-1", "different-challenge", issued.Token)
	if apperrors.GetCode(err) != apperrors.CodeChallengeMismatch {
		t.Fatalf("expected challenge mismatch, got %v", err)
	}
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	codec := NewCodec(testRing(t, "secret-1")).WithClock(func() time.Time { return now })

	issued, err := codec.Issue("user-1", time.Millisecond)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	now = now.Add(2 * time.Millisecond)
	err = codec.Verify("user-1", issued.Challenge, issued.Token)
	if apperrors.GetCode(err) != apperrors.CodeChallengeExpired {
		t.Fatalf("expected expired, got %v", err)
	}
}

func TestRotationGracePeriod(t *testing.T) {
	oldRing := testRing(t, "secret-1")
	issued, err := NewCodec(oldRing).Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Rotation keeps the old secret: the in-flight token still verifies.
	rotated, err := oldRing.Rotate(Secret{Value: []byte("secret-2"), RotatedAt: time.Now()}, 2)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if err := NewCodec(rotated).Verify("user-1", issued.Challenge, issued.Token); err != nil {
		t.Fatalf("verify after rotation: %v", err)
	}

	// Evicting the old secret invalidates the token.
	evicted, err := rotated.Rotate(Secret{Value: []byte("secret-3"), RotatedAt: time.Now()}, 1)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	err = NewCodec(evicted).Verify("user-1", issued.Challenge, issued.Token)
	if apperrors.GetCode(err) != apperrors.CodeChallengeSignatureInvalid {
		t.Fatalf("expected invalid signature after eviction, got %v", err)
	}
}

func TestIssueValidation(t *testing.T) {
	codec := NewCodec(testRing(t, "secret-1"))
	if _, err := codec.Issue("", time.Minute); err == nil {
		t.Fatal("expected error for empty user id")
	}
	if _, err := codec.Issue("user-1", 0); err == nil {
		t.Fatal("expected error for non-positive ttl")
	}
}

func TestConfigRingParsesRotatingSecrets(t *testing.T) {
	cfg := Config{Secrets: `[{"secret":"current","rotatedAt":1702977904000},{"secret":"previous","rotatedAt":1702890000000}]`}
	ring, err := cfg.Ring()
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	if got := string(ring.Current().Value); got != "current" {
		t.Fatalf("current secret = %q", got)
	}
	if len(ring.All()) != 2 {
		t.Fatalf("ring size = %d, want 2", len(ring.All()))
	}
}

func TestConfigRingFallsBackToSingleSecret(t *testing.T) {
	cfg := Config{Secret: "only-one"}
	ring, err := cfg.Ring()
	if err != nil {
		t.Fatalf("ring: %v", err)
	}
	if got := string(ring.Current().Value); got != "only-one" {
		t.Fatalf("current secret = %q", got)
	}
}

func TestConfigRingRequiresSecret(t *testing.T) {
	if _, err := (Config{}).Ring(); err == nil {
		t.Fatal("expected error for missing secrets")
	}
	if _, err := (Config{Secrets: "not json"}).Ring(); err == nil {
		t.Fatal("expected error for invalid json")
	}
}
