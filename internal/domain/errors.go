package domain

import "fmt"

// The error values below form the fixed failure taxonomy of the core.
// Every value carries a stable code so the presentation layer can map
// each category to a distinct outcome instead of a bare generic
// failure. All types are comparable, so errors.Is works on the
// sentinel values even through pkg/errors wrapping.

// AuthError is a terminal authentication failure.
type AuthError struct {
	Code string
}

func (e AuthError) Error() string {
	return "authentication failed: " + e.Code
}

var (
	ErrCredentialMissing   = AuthError{Code: "credential_missing"}
	ErrMalformedCredential = AuthError{Code: "malformed_credential"}
	ErrCredentialExpired   = AuthError{Code: "credential_expired"}
	ErrCredentialInvalid   = AuthError{Code: "credential_invalid"}
	ErrPrincipalNotFound   = AuthError{Code: "principal_not_found"}
	ErrInvalidLogin        = AuthError{Code: "invalid_login"}
)

// PermissionError is a terminal authorization failure. Forbidden means
// the role gate rejected the caller; RelationForbidden means the role
// was acceptable but the caller's relationship to the entity was not.
type PermissionError struct {
	Code string
}

func (e PermissionError) Error() string {
	return "permission denied: " + e.Code
}

var (
	ErrForbidden         = PermissionError{Code: "forbidden"}
	ErrRelationForbidden = PermissionError{Code: "relation_forbidden"}
)

// ValidationError marks malformed input, reported before any mutation
// is attempted.
type ValidationError struct {
	Code string
}

func (e ValidationError) Error() string {
	return "validation failed: " + e.Code
}

var (
	ErrMissingFields      = ValidationError{Code: "missing_fields"}
	ErrInvalidLocation    = ValidationError{Code: "invalid_location"}
	ErrInvalidRating      = ValidationError{Code: "invalid_rating"}
	ErrEmptyComment       = ValidationError{Code: "empty_comment"}
	ErrWorkerRoleRequired = ValidationError{Code: "worker_role_required"}
)

// ConflictError marks a well-formed request that the current state
// disallows.
type ConflictError struct {
	Code string
}

func (e ConflictError) Error() string {
	return "conflict: " + e.Code
}

var (
	ErrInvalidTransition = ConflictError{Code: "invalid_transition"}
	ErrEmailTaken        = ConflictError{Code: "email_taken"}
)

// NotFoundError represents a missing resource.
type NotFoundError struct {
	Resource string
}

func (e NotFoundError) Error() string {
	if e.Resource == "" {
		return "not found"
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// Is enables errors.Is matching on NotFoundError regardless of the
// resource name.
func (e NotFoundError) Is(target error) bool {
	_, ok := target.(NotFoundError)
	if ok {
		return true
	}
	_, ok = target.(*NotFoundError)
	return ok
}

// ErrNotFound is the sentinel error for missing resources.
var ErrNotFound = NotFoundError{}

// StorageError wraps a failure of the persistence collaborator. It is
// surfaced to callers as a generic internal failure; the cause is kept
// for logs only.
type StorageError struct {
	Err error
}

func (e StorageError) Error() string {
	return fmt.Sprintf("storage failure: %v", e.Err)
}

func (e StorageError) Unwrap() error {
	return e.Err
}

func (e StorageError) Is(target error) bool {
	_, ok := target.(StorageError)
	return ok
}

// ErrStorage is the sentinel for persistence failures.
var ErrStorage = StorageError{}
