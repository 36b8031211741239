// Package verifier wraps the go-webauthn library behind a narrow ceremony
// interface. Callers hand it a challenge and a raw browser response and get
// back normalized results; library error details never leak to clients.
package verifier

import (
	"context"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/louisbranch/keywarden/internal/credential"
	"github.com/louisbranch/keywarden/internal/platform/errors"
)

// Registration asks for validation of an attestation response.
type Registration struct {
	UserID      string
	DisplayName string
	Challenge   string
	// Origin and RPID bind the ceremony to the requesting site. Empty
	// values fall back to the configured defaults.
	Origin   string
	RPID     string
	Response []byte
}

// Authentication asks for validation of an assertion response against the
// user's stored records.
type Authentication struct {
	UserID     string
	Challenge  string
	Origin     string
	RPID       string
	Candidates []credential.Record
	Response   []byte
}

// RegistrationResult is the normalized outcome of a successful attestation.
type RegistrationResult struct {
	CredentialID string // base64url
	PublicKey    string // base64url
	Counter      uint32
	Transports   []string
}

// AuthenticationResult is the normalized outcome of a successful assertion.
// CloneWarning is set when the authenticator reported a counter at or below
// the stored one; the caller decides how to react.
type AuthenticationResult struct {
	CredentialID string // base64url
	Counter      uint32
	CloneWarning bool
}

// Verifier validates WebAuthn ceremony responses. The relying party identity
// comes from the request, with configured defaults for single-origin
// deployments.
type Verifier struct {
	cfg Config
}

// New builds a verifier with the given defaults.
func New(cfg Config) *Verifier {
	return &Verifier{cfg: cfg}
}

// relyingParty resolves the per-request RP identity and builds the library
// handle. Construction is cheap; a handle per ceremony keeps the verifier
// stateless across origins.
func (v *Verifier) relyingParty(rpID, origin string, failure errors.Code) (*webauthn.WebAuthn, error) {
	if rpID == "" {
		rpID = v.cfg.RPID
	}
	origins := v.cfg.RPOrigins
	if origin != "" {
		origins = []string{origin}
	}
	web, err := webauthn.New(&webauthn.Config{
		RPDisplayName: v.cfg.RPDisplayName,
		RPID:          rpID,
		RPOrigins:     origins,
	})
	if err != nil {
		return nil, errors.Wrap(failure, "configure relying party", err)
	}
	return web, nil
}

// VerifyRegistration validates an attestation response against the issued
// challenge and extracts the new credential.
func (v *Verifier) VerifyRegistration(ctx context.Context, req Registration) (RegistrationResult, error) {
	web, err := v.relyingParty(req.RPID, req.Origin, errors.CodeRegistrationFailed)
	if err != nil {
		return RegistrationResult{}, err
	}
	parsed, err := protocol.ParseCredentialCreationResponseBytes(req.Response)
	if err != nil {
		return RegistrationResult{}, errors.Wrap(errors.CodeRegistrationFailed, "parse registration response", err)
	}

	user := &ceremonyUser{id: req.UserID, displayName: req.DisplayName}
	session := webauthn.SessionData{
		Challenge: req.Challenge,
		UserID:    user.WebAuthnID(),
	}
	cred, err := web.CreateCredential(user, session, parsed)
	if err != nil {
		return RegistrationResult{}, errors.Wrap(errors.CodeRegistrationFailed, "validate registration response", err)
	}

	transports := make([]string, 0, len(cred.Transport))
	for _, transport := range cred.Transport {
		transports = append(transports, string(transport))
	}
	return RegistrationResult{
		CredentialID: encodeCredentialID(cred.ID),
		PublicKey:    encodeCredentialID(cred.PublicKey),
		Counter:      cred.Authenticator.SignCount,
		Transports:   transports,
	}, nil
}

// VerifyAuthentication validates an assertion response against the issued
// challenge and the user's active credentials.
func (v *Verifier) VerifyAuthentication(ctx context.Context, req Authentication) (AuthenticationResult, error) {
	web, err := v.relyingParty(req.RPID, req.Origin, errors.CodeVerificationFailed)
	if err != nil {
		return AuthenticationResult{}, err
	}
	parsed, err := protocol.ParseCredentialRequestResponseBytes(req.Response)
	if err != nil {
		return AuthenticationResult{}, errors.Wrap(errors.CodeVerificationFailed, "parse authentication response", err)
	}

	creds, err := toLibraryCredentials(req.Candidates)
	if err != nil {
		return AuthenticationResult{}, err
	}
	user := &ceremonyUser{id: req.UserID, credentials: creds}
	session := webauthn.SessionData{
		Challenge: req.Challenge,
		UserID:    user.WebAuthnID(),
	}
	cred, err := web.ValidateLogin(user, session, parsed)
	if err != nil {
		return AuthenticationResult{}, errors.Wrap(errors.CodeVerificationFailed, "validate authentication response", err)
	}

	return AuthenticationResult{
		CredentialID: encodeCredentialID(cred.ID),
		Counter:      cred.Authenticator.SignCount,
		CloneWarning: cred.Authenticator.CloneWarning,
	}, nil
}
