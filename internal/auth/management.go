package auth

import (
	"context"

	"github.com/louisbranch/keywarden/internal/credential"
	"github.com/louisbranch/keywarden/internal/ratelimit"
)

// Passkey management passes through to the credential store; the service is
// the single entry point so transports never touch storage directly.

// ListPasskeys returns the user's passkeys, oldest first.
func (s *Service) ListPasskeys(ctx context.Context, userID string) ([]credential.Record, error) {
	return s.credentials.List(ctx, userID)
}

// RenamePasskey sets a user-assigned name on a passkey.
func (s *Service) RenamePasskey(ctx context.Context, userID, credentialID, name string) error {
	return s.credentials.Rename(ctx, userID, credentialID, name)
}

// SetPasskeyStatus transitions a passkey between lifecycle states.
func (s *Service) SetPasskeyStatus(ctx context.Context, userID, credentialID string, status credential.Status) error {
	return s.credentials.SetStatus(ctx, userID, credentialID, status)
}

// DeletePasskey removes a passkey. hasAlternateAuth attests the user can
// still sign in some other way; without it the last active passkey is kept.
func (s *Service) DeletePasskey(ctx context.Context, userID, credentialID string, hasAlternateAuth bool) error {
	return s.credentials.Delete(ctx, userID, credentialID, hasAlternateAuth)
}

// AuthHistory returns the user's recent attempts, newest first.
func (s *Service) AuthHistory(ctx context.Context, userID string, limit int) ([]ratelimit.Attempt, error) {
	return s.limiter.History(ctx, userID, limit)
}

// ResetRateLimit clears the user's limiter state. Support tooling only.
func (s *Service) ResetRateLimit(ctx context.Context, userID string) error {
	return s.limiter.Reset(ctx, userID)
}
