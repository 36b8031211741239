package ratelimit

import (
	"fmt"
	"math"
	"time"
)

// Status is a progressive rate-limit state.
type Status string

const (
	StatusNormal  Status = "normal"
	StatusWarning Status = "warning"
	StatusCaution Status = "caution"
	StatusLimited Status = "limited"
)

// Attempt is one recorded auth attempt.
type Attempt struct {
	Timestamp int64  `json:"timestamp"`
	Method    string `json:"method"`
	Success   bool   `json:"success"`
}

// State is the persisted per-user rate-limit state.
//
// Status is always recomputed from the other fields, never mutated on its
// own, so stored status can lag but cannot drift.
type State struct {
	Attempts          []Attempt `json:"attempts"`
	WindowStart       int64     `json:"windowStart"`
	Violations        int       `json:"violations"`
	LastViolationTime *int64    `json:"lastViolationTime"`
	Status            Status    `json:"status"`
	EmailVerified     bool      `json:"emailVerified"`
}

// Decision is the outcome of evaluating the policy against a state.
type Decision struct {
	Allowed           bool
	Status            Status
	AttemptsRemaining int
	AttemptsTotal     int
	Message           string
	NextWindowSeconds int
}

// Evaluate computes the current decision without mutating state. It is a
// pure function of (config, state, now) and safe to call speculatively.
func Evaluate(cfg Config, state State, now time.Time) Decision {
	nowMs := now.UnixMilli()

	// Expired windows reset the count entirely: a burst exactly at the
	// boundary restarts, it does not slide.
	attempts := state.Attempts
	windowStart := state.WindowStart
	if windowStart == 0 || nowMs-windowStart > cfg.Window.Milliseconds() {
		attempts = nil
		windowStart = nowMs
	}

	attemptsInWindow := len(attempts)
	attemptsRemaining := cfg.MaxAttempts - attemptsInWindow
	if attemptsRemaining < 0 {
		attemptsRemaining = 0
	}
	nextWindowSeconds := int(math.Ceil(float64(windowStart+cfg.Window.Milliseconds()-nowMs) / 1000))

	status := deriveStatus(cfg, attemptsInWindow, state.Violations, state.LastViolationTime, nowMs)

	if status == StatusLimited {
		return Decision{
			Allowed:           false,
			Status:            StatusLimited,
			AttemptsRemaining: 0,
			AttemptsTotal:     cfg.MaxAttempts,
			Message:           limitedMessage(state.EmailVerified, nextWindowSeconds),
			NextWindowSeconds: nextWindowSeconds,
		}
	}

	if attemptsInWindow >= cfg.MaxAttempts {
		return Decision{
			Allowed:           false,
			Status:            StatusCaution,
			AttemptsRemaining: 0,
			AttemptsTotal:     cfg.MaxAttempts,
			Message:           atLimitMessage(state.EmailVerified, nextWindowSeconds),
			NextWindowSeconds: nextWindowSeconds,
		}
	}

	message := ""
	switch {
	case status == StatusCaution && attemptsRemaining > 0:
		message = fmt.Sprintf("Warning: %d %s remaining before temporary lockout.", attemptsRemaining, plural(attemptsRemaining, "attempt", "attempts"))
	case status == StatusWarning && attemptsRemaining <= 2:
		message = fmt.Sprintf("You have %d %s left in the next %d seconds.", attemptsRemaining, plural(attemptsRemaining, "attempt", "attempts"), int(math.Ceil(cfg.Window.Seconds())))
	}

	return Decision{
		Allowed:           true,
		Status:            status,
		AttemptsRemaining: attemptsRemaining,
		AttemptsTotal:     cfg.MaxAttempts,
		Message:           message,
		NextWindowSeconds: nextWindowSeconds,
	}
}

// Apply returns the state after recording one attempt. Pure like Evaluate;
// persistence belongs to the Limiter.
func Apply(cfg Config, state State, method string, success bool, now time.Time) State {
	nowMs := now.UnixMilli()

	attempts := state.Attempts
	windowStart := state.WindowStart
	violations := state.Violations
	lastViolation := state.LastViolationTime

	if windowStart == 0 || nowMs-windowStart > cfg.Window.Milliseconds() {
		attempts = nil
		windowStart = nowMs
		violations = 0
	}

	attempts = append(attempts, Attempt{Timestamp: nowMs, Method: method, Success: success})
	if len(attempts) > cfg.HistoryKeep {
		attempts = attempts[len(attempts)-cfg.HistoryKeep:]
	}

	if success {
		// One clean success fully exonerates.
		violations = 0
		lastViolation = nil
	} else {
		if lastViolation != nil && nowMs-*lastViolation > cfg.ViolationEscalation.Milliseconds() {
			// Stale cluster: this failure starts a fresh one.
			violations = 1
		} else {
			violations++
		}
		ts := nowMs
		lastViolation = &ts
	}

	return State{
		Attempts:          attempts,
		WindowStart:       windowStart,
		Violations:        violations,
		LastViolationTime: lastViolation,
		Status:            deriveStatus(cfg, len(attempts), violations, lastViolation, nowMs),
		EmailVerified:     state.EmailVerified,
	}
}

// deriveStatus computes status from violations first, then attempt volume.
func deriveStatus(cfg Config, attemptCount, violations int, lastViolation *int64, nowMs int64) Status {
	// Stale violations self-heal: escalation cannot outlive inactivity.
	if lastViolation != nil && nowMs-*lastViolation > cfg.ViolationEscalation.Milliseconds() {
		return StatusNormal
	}

	switch {
	case violations >= 3:
		return StatusLimited
	case violations >= 2:
		return StatusCaution
	case violations >= 1:
		return StatusWarning
	}

	cautionAt := int(math.Floor(float64(cfg.MaxAttempts) * cfg.CautionThreshold))
	warningAt := int(math.Floor(float64(cfg.MaxAttempts) * cfg.WarningThreshold))
	switch {
	case attemptCount >= cautionAt:
		return StatusCaution
	case attemptCount >= warningAt:
		return StatusWarning
	}
	return StatusNormal
}

// limitedMessage tells verified users a concrete wait; unverified users are
// asked to verify instead, trading an indefinite restriction for a
// user-controlled unlock.
func limitedMessage(emailVerified bool, nextWindowSeconds int) string {
	if emailVerified {
		return fmt.Sprintf("Too many failed attempts. Please wait %ds before trying again.", nextWindowSeconds)
	}
	return "Too many failed attempts. Please verify your email to unlock access."
}

func atLimitMessage(emailVerified bool, nextWindowSeconds int) string {
	if emailVerified {
		return fmt.Sprintf("Rate limit reached. You have %ds to wait before your next attempt.", nextWindowSeconds)
	}
	return "Rate limit reached. Please verify your email to unlock."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
