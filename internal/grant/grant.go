// Package grant mints and validates the short-lived EdDSA session grants
// handed out after a successful authentication ceremony. A grant proves to
// downstream services that a passkey assertion happened; it carries which
// credential signed in so sessions can be revoked per authenticator.
package grant

import (
	"crypto/ed25519"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/keywarden/internal/platform/errors"
	"github.com/louisbranch/keywarden/internal/platform/id"
)

// Claims captures the validated contents of a session grant.
type Claims struct {
	UserID       string
	CredentialID string
	GrantID      string
	IssuedAt     time.Time
	ExpiresAt    time.Time
}

// sessionClaims is the internal claims type used for JWT parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	CredentialID string `json:"credential_id"`
}

// Signer issues and validates session grants with a single Ed25519 key.
type Signer struct {
	issuer   string
	audience string
	key      ed25519.PrivateKey
	public   ed25519.PublicKey
	ttl      time.Duration
	clock    func() time.Time
}

// NewSigner builds a signer from validated configuration.
func NewSigner(cfg Config) (*Signer, error) {
	key, err := cfg.privateKey()
	if err != nil {
		return nil, err
	}
	return &Signer{
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		key:      key,
		public:   key.Public().(ed25519.PublicKey),
		ttl:      cfg.TTL,
		clock:    time.Now,
	}, nil
}

// WithClock overrides the time source. Test hook.
func (s *Signer) WithClock(clock func() time.Time) *Signer {
	s.clock = clock
	return s
}

// Issue mints a grant for the user who just completed an assertion with the
// given credential.
func (s *Signer) Issue(userID, credentialID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New(errors.CodeGrantInvalid, "user id is required")
	}
	grantID, err := id.NewID()
	if err != nil {
		return "", errors.Wrap(errors.CodeGrantInvalid, "generate grant id", err)
	}

	now := s.clock().UTC()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Audience:  jwt.ClaimStrings{s.audience},
			Subject:   userID,
			ID:        grantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		CredentialID: credentialID,
	})
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", errors.Wrap(errors.CodeGrantInvalid, "sign session grant", err)
	}
	return signed, nil
}

// Validate verifies a grant's signature and claims. Expiry is checked
// against the signer's clock rather than the library's so tests control
// time directly.
func (s *Signer) Validate(grant string) (Claims, error) {
	grant = strings.TrimSpace(grant)
	if grant == "" {
		return Claims{}, errors.New(errors.CodeGrantInvalid, "session grant is required")
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(grant, &parsed, func(token *jwt.Token) (any, error) {
		return s.public, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, errors.Wrap(errors.CodeGrantInvalid, "parse session grant", err)
	}

	if parsed.Issuer == "" || parsed.Issuer != s.issuer {
		return Claims{}, errors.WithMetadata(errors.CodeGrantInvalid, "session grant issuer mismatch", map[string]string{"field": "issuer"})
	}
	if !audienceContains(parsed.Audience, s.audience) {
		return Claims{}, errors.WithMetadata(errors.CodeGrantInvalid, "session grant audience mismatch", map[string]string{"field": "audience"})
	}
	if parsed.ID == "" {
		return Claims{}, errors.New(errors.CodeGrantInvalid, "session grant jti is required")
	}
	if parsed.Subject == "" {
		return Claims{}, errors.New(errors.CodeGrantInvalid, "session grant subject is required")
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, errors.New(errors.CodeGrantInvalid, "session grant exp is required")
	}

	now := s.clock().UTC()
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(now) {
		return Claims{}, errors.New(errors.CodeGrantExpired, "session grant is expired")
	}

	claims := Claims{
		UserID:       parsed.Subject,
		CredentialID: parsed.CredentialID,
		GrantID:      parsed.ID,
		ExpiresAt:    exp,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

func audienceContains(audience jwt.ClaimStrings, want string) bool {
	for _, entry := range audience {
		if entry == want {
			return true
		}
	}
	return false
}
