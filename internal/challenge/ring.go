// Package challenge issues and verifies stateless WebAuthn challenge tokens.
//
// A token is self-contained: base64url(JSON payload) + "." + base64url(HMAC).
// The payload binds the challenge to a user and an expiry, so no server-side
// challenge table is needed; the signing secret is the only state.
package challenge

import (
	"time"

	"github.com/louisbranch/keywarden/internal/platform/errors"
)

// Secret is a single HMAC signing secret with its rotation timestamp.
type Secret struct {
	Value     []byte
	RotatedAt time.Time
}

// Ring holds the active signing secret plus retired secrets, newest first.
// Position zero signs new tokens; every position is tried when verifying so
// tokens issued under a just-rotated secret stay valid until eviction.
//
// The ring is read-only on request paths. Rotation is an administrative
// event that produces a new ring.
type Ring struct {
	secrets []Secret
}

// NewRing builds a ring from secrets ordered newest first.
func NewRing(secrets ...Secret) (*Ring, error) {
	if len(secrets) == 0 {
		return nil, errors.New(errors.CodeUnknown, "at least one signing secret is required")
	}
	for _, secret := range secrets {
		if len(secret.Value) == 0 {
			return nil, errors.New(errors.CodeUnknown, "signing secret must not be empty")
		}
	}
	copied := make([]Secret, len(secrets))
	copy(copied, secrets)
	return &Ring{secrets: copied}, nil
}

// Current returns the secret that signs new tokens.
func (r *Ring) Current() Secret {
	return r.secrets[0]
}

// All returns every secret in the ring, newest first.
func (r *Ring) All() []Secret {
	out := make([]Secret, len(r.secrets))
	copy(out, r.secrets)
	return out
}

// Rotate returns a new ring with next at position zero, keeping at most
// keep secrets total. A keep of one evicts all retired secrets immediately.
func (r *Ring) Rotate(next Secret, keep int) (*Ring, error) {
	if keep < 1 {
		keep = 1
	}
	secrets := append([]Secret{next}, r.secrets...)
	if len(secrets) > keep {
		secrets = secrets[:keep]
	}
	return NewRing(secrets...)
}
