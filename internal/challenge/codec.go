package challenge

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/keywarden/internal/platform/errors"
)

const challengeBytes = 32

// Codec signs and verifies stateless challenge tokens against a secret ring.
// It has no mutable state and is safe for unlimited concurrent use.
type Codec struct {
	ring  *Ring
	clock func() time.Time
}

// NewCodec creates a codec over the given ring.
func NewCodec(ring *Ring) *Codec {
	return &Codec{ring: ring, clock: time.Now}
}

// WithClock returns a codec using the given clock. Intended for tests.
func (c *Codec) WithClock(clock func() time.Time) *Codec {
	return &Codec{ring: c.ring, clock: clock}
}

// Issued is a freshly minted challenge and its signed token.
type Issued struct {
	Challenge string
	Token     string
	ExpiresAt time.Time
}

type tokenPayload struct {
	U string `json:"u"`
	C string `json:"c"`
	E int64  `json:"e"`
}

// Issue creates a random challenge bound to userID, valid for ttl.
// Nothing is stored server-side; the token is the state.
func (c *Codec) Issue(userID string, ttl time.Duration) (Issued, error) {
	if strings.TrimSpace(userID) == "" {
		return Issued{}, fmt.Errorf("user id is required")
	}
	if ttl <= 0 {
		return Issued{}, fmt.Errorf("ttl must be positive")
	}

	buf := make([]byte, challengeBytes)
	if _, err := rand.Read(buf); err != nil {
		return Issued{}, fmt.Errorf("generate challenge: %w", err)
	}
	challenge := base64.RawURLEncoding.EncodeToString(buf)
	expiresAt := c.clock().Add(ttl)

	payload, err := json.Marshal(tokenPayload{U: userID, C: challenge, E: expiresAt.UnixMilli()})
	if err != nil {
		return Issued{}, fmt.Errorf("encode challenge payload: %w", err)
	}
	signature := sign(c.ring.Current().Value, payload)
	token := base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(signature)

	return Issued{Challenge: challenge, Token: token, ExpiresAt: expiresAt}, nil
}

// Verify checks a token's signature, user binding, challenge binding, and
// expiry, in that order. Every secret in the ring is tried with a
// constant-time comparison so in-flight tokens survive secret rotation.
//
// Verify proves validity only; one-time-use semantics belong to the caller.
func (c *Codec) Verify(userID, challenge, token string) error {
	parts := strings.Split(token, ".")
	if len(parts) != 2 {
		return errors.New(errors.CodeChallengeTokenMalformed, "malformed challenge token")
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return errors.New(errors.CodeChallengeTokenMalformed, "malformed challenge token")
	}
	signature, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return errors.New(errors.CodeChallengeSignatureInvalid, "invalid challenge signature")
	}

	valid := false
	for _, secret := range c.ring.All() {
		if hmac.Equal(signature, sign(secret.Value, payload)) {
			valid = true
			break
		}
	}
	if !valid {
		return errors.New(errors.CodeChallengeSignatureInvalid, "invalid challenge signature")
	}

	var parsed tokenPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return errors.New(errors.CodeChallengeTokenMalformed, "malformed challenge payload")
	}

	if parsed.U != userID {
		return errors.New(errors.CodeChallengeUserMismatch, "challenge user mismatch")
	}
	if parsed.C != challenge {
		return errors.New(errors.CodeChallengeMismatch, "challenge mismatch")
	}
	if c.clock().UnixMilli() > parsed.E {
		return errors.New(errors.CodeChallengeExpired, "challenge expired")
	}
	return nil
}

func sign(secret, payload []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
