package ratelimit

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/louisbranch/keywarden/internal/directory"
	"github.com/louisbranch/keywarden/internal/platform/errors"
)

// Limiter persists rate-limit state through the user directory and applies
// the pure policy on top of it.
type Limiter struct {
	store directory.Store
	cfg   Config
	clock func() time.Time
}

// New creates a limiter over the given directory store.
func New(store directory.Store, cfg Config) *Limiter {
	return &Limiter{store: store, cfg: cfg, clock: time.Now}
}

// WithClock returns a limiter using the given clock. Intended for tests.
func (l *Limiter) WithClock(clock func() time.Time) *Limiter {
	return &Limiter{store: l.store, cfg: l.cfg, clock: clock}
}

// Check evaluates the policy read-only. It never writes, so callers may
// probe speculatively before starting a ceremony.
func (l *Limiter) Check(ctx context.Context, userID, method string) (Decision, error) {
	if strings.TrimSpace(userID) == "" {
		return Decision{}, errors.New(errors.CodeUnknown, "user id is required")
	}
	prefs, err := directory.Load(ctx, l.store, userID)
	if err != nil {
		return Decision{}, err
	}
	state := parseState(prefs.Values, l.clock())
	return Evaluate(l.cfg, state, l.clock()), nil
}

// Record appends one attempt outcome and writes the full state back.
// Persistence failures propagate; whether an unrecorded attempt is fatal is
// the caller's decision, not the limiter's.
func (l *Limiter) Record(ctx context.Context, userID, method string, success bool) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New(errors.CodeUnknown, "user id is required")
	}
	return directory.Update(ctx, l.store, userID, func(values map[string]string) error {
		state := parseState(values, l.clock())
		next := Apply(l.cfg, state, method, success, l.clock())
		encoded, err := json.Marshal(next)
		if err != nil {
			return errors.Wrap(errors.CodePersistence, "encode rate limit state", err)
		}
		values[directory.KeyAuthAttempts] = string(encoded)
		return nil
	})
}

// History returns the most recent attempts, newest last. Admin surface.
func (l *Limiter) History(ctx context.Context, userID string, limit int) ([]Attempt, error) {
	prefs, err := directory.Load(ctx, l.store, userID)
	if err != nil {
		return nil, err
	}
	attempts := parseState(prefs.Values, l.clock()).Attempts
	if limit > 0 && len(attempts) > limit {
		attempts = attempts[len(attempts)-limit:]
	}
	return attempts, nil
}

// Reset clears a user's rate-limit state. Admin surface, e.g. after manual
// review or email verification.
func (l *Limiter) Reset(ctx context.Context, userID string) error {
	return directory.Update(ctx, l.store, userID, func(values map[string]string) error {
		clean := State{
			WindowStart:   l.clock().UnixMilli(),
			Status:        StatusNormal,
			EmailVerified: values[directory.KeyEmailVerified] == "true",
		}
		encoded, err := json.Marshal(clean)
		if err != nil {
			return errors.Wrap(errors.CodePersistence, "encode rate limit state", err)
		}
		values[directory.KeyAuthAttempts] = string(encoded)
		return nil
	})
}

// parseState decodes stored state, falling back to a fresh one on absence
// or corruption. Email verification is an external fact read from prefs on
// every parse, never trusted from the stored blob alone.
func parseState(values map[string]string, now time.Time) State {
	emailVerified := values[directory.KeyEmailVerified] == "true"

	raw, ok := values[directory.KeyAuthAttempts]
	if !ok || raw == "" {
		return State{WindowStart: now.UnixMilli(), Status: StatusNormal, EmailVerified: emailVerified}
	}
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{WindowStart: now.UnixMilli(), Status: StatusNormal, EmailVerified: emailVerified}
	}
	state.EmailVerified = emailVerified
	return state
}
