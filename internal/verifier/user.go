package verifier

import (
	"encoding/base64"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/louisbranch/keywarden/internal/credential"
	"github.com/louisbranch/keywarden/internal/platform/errors"
)

// ceremonyUser satisfies webauthn.User for a single ceremony. The library
// only consumes the ID and the credential list during validation.
type ceremonyUser struct {
	id          string
	displayName string
	credentials []webauthn.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte { return []byte(u.id) }

func (u *ceremonyUser) WebAuthnName() string { return u.id }

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.displayName != "" {
		return u.displayName
	}
	return u.id
}

func (u *ceremonyUser) WebAuthnIcon() string { return "" }

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	return u.credentials
}

// toLibraryCredentials decodes stored records into the library's credential
// shape. Every record participates regardless of status: the library must be
// able to resolve an assertion from a disabled credential so the caller can
// report its status instead of a generic validation failure.
func toLibraryCredentials(records []credential.Record) ([]webauthn.Credential, error) {
	out := make([]webauthn.Credential, 0, len(records))
	for _, rec := range records {
		id, err := base64.RawURLEncoding.DecodeString(rec.ID)
		if err != nil {
			return nil, errors.Wrap(errors.CodePersistence, "decode credential id", err)
		}
		publicKey, err := base64.RawURLEncoding.DecodeString(rec.PublicKey)
		if err != nil {
			return nil, errors.Wrap(errors.CodePersistence, "decode credential public key", err)
		}
		transports := make([]protocol.AuthenticatorTransport, 0, len(rec.Transports))
		for _, transport := range rec.Transports {
			transports = append(transports, protocol.AuthenticatorTransport(transport))
		}
		out = append(out, webauthn.Credential{
			ID:        id,
			PublicKey: publicKey,
			Transport: transports,
			Authenticator: webauthn.Authenticator{
				SignCount: rec.Counter,
			},
		})
	}
	return out, nil
}

func encodeCredentialID(id []byte) string {
	return base64.RawURLEncoding.EncodeToString(id)
}
