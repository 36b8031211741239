// Package credential manages a user's registered passkey records.
//
// Records live in the user directory under a single JSON map keyed by
// credential ID, replacing the delimiter-joined string encoding the storage
// layer once used; structured serialization removes escaping bugs outright.
package credential

import (
	"time"

	"github.com/louisbranch/keywarden/internal/platform/errors"
)

// Status is the lifecycle state of a passkey record.
type Status string

const (
	// StatusActive credentials may authenticate.
	StatusActive Status = "active"
	// StatusDisabled is a reversible soft-delete; the credential is never
	// offered for ceremonies and never accepted in assertions.
	StatusDisabled Status = "disabled"
	// StatusCompromised is terminal. Only delete removes the record.
	StatusCompromised Status = "compromised"
)

// MaxNameLength bounds user-assigned passkey names.
const MaxNameLength = 50

// Record is one registered authenticator.
type Record struct {
	ID         string   `json:"id"`        // credential ID, base64url
	PublicKey  string   `json:"publicKey"` // base64url
	Counter    uint32   `json:"counter"`
	Name       string   `json:"name"`
	CreatedAt  int64    `json:"createdAt"` // millis
	LastUsedAt *int64   `json:"lastUsedAt"`
	Status     Status   `json:"status"`
	Transports []string `json:"transports,omitempty"`
}

// DefaultName names a passkey after its creation date.
func DefaultName(createdAt time.Time) string {
	return "Passkey " + createdAt.UTC().Format("2006-01-02")
}

// transitions is the explicit status state machine. Compromised has no
// outgoing edges.
var transitions = map[Status]map[Status]bool{
	StatusActive: {
		StatusDisabled:    true,
		StatusCompromised: true,
	},
	StatusDisabled: {
		StatusActive:      true,
		StatusCompromised: true,
	},
	StatusCompromised: {},
}

// CanTransition reports whether from -> to is an allowed status change.
func CanTransition(from, to Status) bool {
	allowed, ok := transitions[from]
	if !ok {
		return false
	}
	return allowed[to]
}

// ValidStatus reports whether the value is a known status.
func ValidStatus(status Status) bool {
	_, ok := transitions[status]
	return ok
}

func invalidTransition(from, to Status) error {
	return errors.WithMetadata(errors.CodeCredentialInvalidTransition, "invalid credential status transition", map[string]string{
		"from": string(from),
		"to":   string(to),
	})
}
