// Package errors provides structured error handling for the auth core.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Challenge protocol errors
	CodeChallengeTokenMalformed   Code = "CHALLENGE_TOKEN_MALFORMED"
	CodeChallengeSignatureInvalid Code = "CHALLENGE_SIGNATURE_INVALID"
	CodeChallengeUserMismatch     Code = "CHALLENGE_USER_MISMATCH"
	CodeChallengeMismatch         Code = "CHALLENGE_MISMATCH"
	CodeChallengeExpired          Code = "CHALLENGE_EXPIRED"

	// Rate limit errors
	CodeRateLimited Code = "RATE_LIMITED"

	// Credential store errors
	CodeCredentialDuplicate         Code = "CREDENTIAL_DUPLICATE"
	CodeCredentialNameInvalid       Code = "CREDENTIAL_NAME_INVALID"
	CodeCredentialLastActive        Code = "CREDENTIAL_LAST_ACTIVE"
	CodeCredentialCounterRegression Code = "CREDENTIAL_COUNTER_REGRESSION"
	CodeCredentialInvalidTransition Code = "CREDENTIAL_INVALID_TRANSITION"

	// Ceremony errors
	CodeNoCredentials       Code = "NO_CREDENTIALS"
	CodeCredentialUnknown   Code = "CREDENTIAL_UNKNOWN"
	CodeCredentialNotActive Code = "CREDENTIAL_NOT_ACTIVE"
	CodeVerificationFailed  Code = "VERIFICATION_FAILED"
	CodeRegistrationFailed  Code = "REGISTRATION_FAILED"

	// Session grant errors
	CodeGrantInvalid Code = "GRANT_INVALID"
	CodeGrantExpired Code = "GRANT_EXPIRED"

	// Storage errors
	CodeNotFound        Code = "NOT_FOUND"
	CodePersistence     Code = "PERSISTENCE"
	CodeVersionConflict Code = "VERSION_CONFLICT"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeChallengeTokenMalformed,
		CodeCredentialNameInvalid:
		return codes.InvalidArgument

	// Unauthenticated - the token or ceremony did not prove identity
	case CodeChallengeSignatureInvalid,
		CodeChallengeUserMismatch,
		CodeChallengeMismatch,
		CodeChallengeExpired,
		CodeVerificationFailed,
		CodeRegistrationFailed,
		CodeGrantInvalid,
		CodeGrantExpired:
		return codes.Unauthenticated

	// FailedPrecondition - state doesn't allow the operation
	case CodeCredentialLastActive,
		CodeCredentialCounterRegression,
		CodeCredentialInvalidTransition,
		CodeCredentialNotActive,
		CodeNoCredentials:
		return codes.FailedPrecondition

	case CodeCredentialDuplicate:
		return codes.AlreadyExists

	case CodeNotFound,
		CodeCredentialUnknown:
		return codes.NotFound

	case CodeRateLimited:
		return codes.ResourceExhausted

	// Unavailable - collaborator failures
	case CodePersistence:
		return codes.Unavailable

	// Aborted - optimistic concurrency lost after retries
	case CodeVersionConflict:
		return codes.Aborted

	default:
		return codes.Internal
	}
}
