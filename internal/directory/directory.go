// Package directory defines the user directory contract the auth core
// persists through. The directory is the sole durable owner of rate-limit
// state and passkey records; core components hold them only for the duration
// of a read-modify-write.
package directory

import (
	"context"
	"maps"

	"github.com/louisbranch/keywarden/internal/platform/errors"
)

// Reserved preference keys. These constitute the on-disk schema and must
// stay stable across releases.
const (
	// KeyAuthAttempts holds the serialized rate-limit state.
	KeyAuthAttempts = "auth_attempt"
	// KeyPasskeys holds the serialized passkey record map.
	KeyPasskeys = "passkey_metadata"
	// KeyEmailVerified holds "true" when the user verified their email.
	KeyEmailVerified = "email_verified"
)

// ErrNotFound indicates the user has no directory entry.
var ErrNotFound = errors.New(errors.CodeNotFound, "user not found")

// ErrVersionConflict indicates a conditional write lost to a concurrent update.
var ErrVersionConflict = errors.New(errors.CodeVersionConflict, "prefs changed concurrently")

// Prefs is a snapshot of a user's preference map together with the storage
// version it was read at.
type Prefs struct {
	Values  map[string]string
	Version int64
}

// Store persists per-user preference maps with optimistic concurrency.
//
// SetPrefs succeeds only when the stored version still equals
// expectedVersion; an expectedVersion of zero creates the entry. Whole maps
// are written back on every update, never individual fields.
type Store interface {
	GetPrefs(ctx context.Context, userID string) (Prefs, error)
	SetPrefs(ctx context.Context, userID string, values map[string]string, expectedVersion int64) error
}

// updateRetries bounds optimistic retry attempts. Contention is a single
// user's browser tabs, so a small budget with no backoff suffices.
const updateRetries = 3

// Load reads a user's prefs, treating an absent user as an empty map at
// version zero so first writes create the entry.
func Load(ctx context.Context, store Store, userID string) (Prefs, error) {
	prefs, err := store.GetPrefs(ctx, userID)
	if err != nil {
		if errors.IsCode(err, errors.CodeNotFound) {
			return Prefs{Values: map[string]string{}}, nil
		}
		return Prefs{}, err
	}
	if prefs.Values == nil {
		prefs.Values = map[string]string{}
	}
	return prefs, nil
}

// Update runs a read-modify-write over a user's prefs, retrying the whole
// cycle when a concurrent writer wins the version race.
func Update(ctx context.Context, store Store, userID string, mutate func(values map[string]string) error) error {
	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		prefs, err := Load(ctx, store, userID)
		if err != nil {
			return err
		}
		values := maps.Clone(prefs.Values)
		if err := mutate(values); err != nil {
			return err
		}
		err = store.SetPrefs(ctx, userID, values, prefs.Version)
		if err == nil {
			return nil
		}
		if !errors.IsCode(err, errors.CodeVersionConflict) {
			return err
		}
		lastErr = err
	}
	return lastErr
}
