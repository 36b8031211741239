// Package auth orchestrates passkey ceremonies end to end: rate limit
// checks, challenge issuance and verification, WebAuthn validation,
// credential bookkeeping, and session grant minting.
package auth

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/keywarden/internal/challenge"
	"github.com/louisbranch/keywarden/internal/credential"
	"github.com/louisbranch/keywarden/internal/platform/errors"
	"github.com/louisbranch/keywarden/internal/ratelimit"
	"github.com/louisbranch/keywarden/internal/verifier"
)

// MethodPasskey labels every ceremony outcome recorded against the rate
// limiter. Registration and authentication share one budget.
const MethodPasskey = "passkey"

// CeremonyVerifier validates raw WebAuthn responses. Satisfied by
// verifier.Verifier; narrowed to an interface so tests inject outcomes.
type CeremonyVerifier interface {
	VerifyRegistration(ctx context.Context, req verifier.Registration) (verifier.RegistrationResult, error)
	VerifyAuthentication(ctx context.Context, req verifier.Authentication) (verifier.AuthenticationResult, error)
}

// GrantIssuer mints session grants after successful assertions.
type GrantIssuer interface {
	Issue(userID, credentialID string) (string, error)
}

// Service wires the ceremony pipeline together. All fields are required
// except grants; without a signer the finish operations return an empty
// grant.
type Service struct {
	codec        *challenge.Codec
	challengeTTL time.Duration
	limiter      *ratelimit.Limiter
	credentials  *credential.Store
	verifier     CeremonyVerifier
	grants       GrantIssuer
	tracer       trace.Tracer
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithGrantIssuer enables session grant minting.
func WithGrantIssuer(grants GrantIssuer) Option {
	return func(s *Service) { s.grants = grants }
}

// NewService builds the orchestrator.
func NewService(codec *challenge.Codec, challengeTTL time.Duration, limiter *ratelimit.Limiter, credentials *credential.Store, ceremonies CeremonyVerifier, opts ...Option) *Service {
	s := &Service{
		codec:        codec,
		challengeTTL: challengeTTL,
		limiter:      limiter,
		credentials:  credentials,
		verifier:     ceremonies,
		tracer:       otel.Tracer("keywarden/auth"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ceremony is an issued challenge plus everything the client needs to
// complete it.
type Ceremony struct {
	Challenge string
	Token     string
	ExpiresAt time.Time
	// AllowedCredentialIDs lists the user's active credentials for
	// assertion ceremonies. Empty for registrations.
	AllowedCredentialIDs []string
	// RateStatus carries the advisory limiter state so clients can warn
	// users before they hit the limit.
	RateStatus ratelimit.Decision
}

// FinishRegistrationRequest completes an attestation ceremony. Origin and
// RPID come from the request host; the caller derives them.
type FinishRegistrationRequest struct {
	UserID      string
	DisplayName string
	Challenge   string
	Token       string
	Name        string
	Origin      string
	RPID        string
	Response    []byte
}

// FinishAuthenticationRequest completes an assertion ceremony.
type FinishAuthenticationRequest struct {
	UserID    string
	Challenge string
	Token     string
	Origin    string
	RPID      string
	Response  []byte
}

// AuthResult is a completed ceremony: the credential involved and, when a
// grant signer is configured, a session grant for the user.
type AuthResult struct {
	Record credential.Record
	Grant  string
}

// BeginRegistration opens an attestation ceremony for the user.
func (s *Service) BeginRegistration(ctx context.Context, userID string) (Ceremony, error) {
	ctx, span := s.tracer.Start(ctx, "auth.BeginRegistration")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return Ceremony{}, errors.New(errors.CodeRegistrationFailed, "user id is required")
	}
	decision, err := s.checkRate(ctx, userID)
	if err != nil {
		return Ceremony{}, err
	}

	issued, err := s.codec.Issue(userID, s.challengeTTL)
	if err != nil {
		return Ceremony{}, errors.Wrap(errors.CodeRegistrationFailed, "issue registration challenge", err)
	}
	return Ceremony{
		Challenge:  issued.Challenge,
		Token:      issued.Token,
		ExpiresAt:  issued.ExpiresAt,
		RateStatus: decision,
	}, nil
}

// FinishRegistration validates the attestation response, stores the new
// credential, and mints a session grant so fresh registrations sign in
// without a second ceremony. Nothing is written when any step fails; the
// outcome is recorded against the rate limiter either way.
func (s *Service) FinishRegistration(ctx context.Context, req FinishRegistrationRequest) (AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.FinishRegistration")
	defer span.End()

	if err := s.codec.Verify(req.UserID, req.Challenge, req.Token); err != nil {
		s.recordAttempt(ctx, req.UserID, false)
		return AuthResult{}, err
	}

	result, err := s.verifier.VerifyRegistration(ctx, verifier.Registration{
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		Challenge:   req.Challenge,
		Origin:      req.Origin,
		RPID:        req.RPID,
		Response:    req.Response,
	})
	if err != nil {
		s.recordAttempt(ctx, req.UserID, false)
		return AuthResult{}, err
	}

	rec, err := s.credentials.Add(ctx, req.UserID, credential.Record{
		ID:         result.CredentialID,
		PublicKey:  result.PublicKey,
		Counter:    result.Counter,
		Name:       req.Name,
		Transports: result.Transports,
	})
	if err != nil {
		s.recordAttempt(ctx, req.UserID, false)
		return AuthResult{}, err
	}

	s.recordAttempt(ctx, req.UserID, true)

	var grantToken string
	if s.grants != nil {
		grantToken, err = s.grants.Issue(req.UserID, rec.ID)
		if err != nil {
			return AuthResult{}, err
		}
	}
	return AuthResult{Record: rec, Grant: grantToken}, nil
}

// BeginAuthentication opens an assertion ceremony. Users without active
// credentials get a distinct signal so callers can route them to
// registration instead of a doomed ceremony.
func (s *Service) BeginAuthentication(ctx context.Context, userID string) (Ceremony, error) {
	ctx, span := s.tracer.Start(ctx, "auth.BeginAuthentication")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return Ceremony{}, errors.New(errors.CodeVerificationFailed, "user id is required")
	}
	decision, err := s.checkRate(ctx, userID)
	if err != nil {
		return Ceremony{}, err
	}

	records, err := s.credentials.List(ctx, userID)
	if err != nil {
		return Ceremony{}, err
	}
	allowed := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Status == credential.StatusActive {
			allowed = append(allowed, rec.ID)
		}
	}
	if len(allowed) == 0 {
		return Ceremony{}, errors.New(errors.CodeNoCredentials, "no active passkeys registered")
	}

	issued, err := s.codec.Issue(userID, s.challengeTTL)
	if err != nil {
		return Ceremony{}, errors.Wrap(errors.CodeVerificationFailed, "issue authentication challenge", err)
	}
	return Ceremony{
		Challenge:            issued.Challenge,
		Token:                issued.Token,
		ExpiresAt:            issued.ExpiresAt,
		AllowedCredentialIDs: allowed,
		RateStatus:           decision,
	}, nil
}

// FinishAuthentication validates the assertion response, advances the
// credential's counter, and mints a session grant. A counter regression
// marks the credential compromised before the failure is returned.
func (s *Service) FinishAuthentication(ctx context.Context, req FinishAuthenticationRequest) (AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "auth.FinishAuthentication")
	defer span.End()

	if err := s.codec.Verify(req.UserID, req.Challenge, req.Token); err != nil {
		s.recordAttempt(ctx, req.UserID, false)
		return AuthResult{}, err
	}

	records, err := s.credentials.List(ctx, req.UserID)
	if err != nil {
		return AuthResult{}, err
	}

	result, err := s.verifier.VerifyAuthentication(ctx, verifier.Authentication{
		UserID:     req.UserID,
		Challenge:  req.Challenge,
		Origin:     req.Origin,
		RPID:       req.RPID,
		Candidates: records,
		Response:   req.Response,
	})
	if err != nil {
		s.recordAttempt(ctx, req.UserID, false)
		return AuthResult{}, err
	}

	rec, found := findRecord(records, result.CredentialID)
	if !found {
		s.recordAttempt(ctx, req.UserID, false)
		return AuthResult{}, errors.WithMetadata(errors.CodeCredentialUnknown, "credential not registered", map[string]string{
			"credential_id": result.CredentialID,
		})
	}
	if rec.Status != credential.StatusActive {
		// Disabled and compromised read the same to the caller.
		s.recordAttempt(ctx, req.UserID, false)
		return AuthResult{}, errors.New(errors.CodeCredentialNotActive, "credential is not active")
	}

	if err := s.credentials.UpdateCounter(ctx, req.UserID, rec.ID, result.Counter); err != nil {
		if errors.IsCode(err, errors.CodeCredentialCounterRegression) {
			// A regressed counter means a second authenticator holds the
			// same key material. Quarantine the credential.
			if markErr := s.credentials.SetStatus(ctx, req.UserID, rec.ID, credential.StatusCompromised); markErr != nil {
				log.Printf("auth: mark credential compromised: %v", markErr)
			}
		}
		s.recordAttempt(ctx, req.UserID, false)
		return AuthResult{}, err
	}

	if err := s.credentials.MarkUsed(ctx, req.UserID, rec.ID); err != nil {
		log.Printf("auth: record credential use: %v", err)
	}
	s.recordAttempt(ctx, req.UserID, true)

	var grantToken string
	if s.grants != nil {
		grantToken, err = s.grants.Issue(req.UserID, rec.ID)
		if err != nil {
			return AuthResult{}, err
		}
	}

	updated, err := s.credentials.Get(ctx, req.UserID, rec.ID)
	if err != nil {
		updated = rec
	}
	return AuthResult{Record: updated, Grant: grantToken}, nil
}

// checkRate maps a disallowed limiter decision to a rate limit error the
// transport layer can surface with retry guidance.
func (s *Service) checkRate(ctx context.Context, userID string) (ratelimit.Decision, error) {
	decision, err := s.limiter.Check(ctx, userID, MethodPasskey)
	if err != nil {
		return ratelimit.Decision{}, err
	}
	if !decision.Allowed {
		return ratelimit.Decision{}, errors.WithMetadata(errors.CodeRateLimited, decision.Message, map[string]string{
			"status":              string(decision.Status),
			"retry_after_seconds": strconv.Itoa(decision.NextWindowSeconds),
		})
	}
	return decision, nil
}

// recordAttempt persists the outcome for future limiter decisions. A
// persistence failure here must not mask the ceremony result, so it is
// logged and dropped. An unrecorded failure under-counts toward the limit,
// so that direction logs louder.
func (s *Service) recordAttempt(ctx context.Context, userID string, success bool) {
	if err := s.limiter.Record(ctx, userID, MethodPasskey, success); err != nil {
		if success {
			log.Printf("auth: record passkey success: %v", err)
			return
		}
		log.Printf("auth: ERROR: failed passkey attempt not recorded, limiter is under-counting: %v", err)
	}
}

func findRecord(records []credential.Record, credentialID string) (credential.Record, bool) {
	for _, rec := range records {
		if rec.ID == credentialID {
			return rec, true
		}
	}
	return credential.Record{}, false
}
