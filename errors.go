package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSession covers tokens that fail signature or claim
	// validation, or carry no session identifier.
	ErrInvalidSession = errors.New("invalid session")
	// ErrSessionExpiredOrRevoked is returned when no session record exists,
	// whether it aged out or was explicitly revoked.
	ErrSessionExpiredOrRevoked = errors.New("session expired or revoked")
	// ErrSessionMismatch is returned when the stored record belongs to a
	// different user than the token subject.
	ErrSessionMismatch = errors.New("session does not match token subject")
	// ErrSessionTimedOut is the absolute lifetime ceiling, enforced from
	// the token's issue time regardless of sliding renewal.
	ErrSessionTimedOut = errors.New("session timed out")
	// ErrAccountDisabled is returned for users flagged inactive. The
	// stored session is revoked as a side effect.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrUserNotFound is returned when re-validation finds no user row.
	ErrUserNotFound = errors.New("user not found")
	// ErrSessionStoreUnavailable is the fail-closed outcome of a store
	// outage when bypass is not configured.
	ErrSessionStoreUnavailable = errors.New("session store unavailable")

	// ErrInvalidCredentials is returned by Login for a bad username or
	// password, without distinguishing which.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPermissionDenied is the base denial. Authorize wraps it in a
	// PermissionDeniedError carrying resource and action details.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrAdminRoleRequired gates high-risk override submission.
	ErrAdminRoleRequired = errors.New("administrative role required")
	// ErrApprovalNotFound is returned for an unknown approval id.
	ErrApprovalNotFound = errors.New("approval request not found")
	// ErrApprovalConflict is returned to the loser when two reviewers race
	// on the same pending approval, and for any approval already in a
	// terminal state.
	ErrApprovalConflict = errors.New("approval request is no longer pending")
	// ErrSelfApprovalForbidden enforces the two-person rule: the requester
	// can never review their own submission.
	ErrSelfApprovalForbidden = errors.New("requester cannot review their own approval")
	// ErrNotAuthorizedToReview is returned when the reviewer lacks the
	// administrative role.
	ErrNotAuthorizedToReview = errors.New("not authorized to review approvals")

	// ErrEngineClosed is returned by operations on an engine after Close.
	ErrEngineClosed = errors.New("engine closed")
)

// PermissionDeniedError carries the denial details Authorize exposes for
// client diagnostics. It names the guarded capability, never the rule that
// produced the denial.
type PermissionDeniedError struct {
	Resource string
	Action   string
	Scope    string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s/%s", e.Resource, e.Action)
}

// Unwrap ties the typed denial to ErrPermissionDenied so callers can match
// with errors.Is without inspecting details.
func (e *PermissionDeniedError) Unwrap() error {
	return ErrPermissionDenied
}

// AuthFailure reports whether err belongs to the session validation
// taxonomy. Middleware uses it to collapse every validation failure into a
// uniform unauthenticated response while logging the specific cause.
func AuthFailure(err error) bool {
	for _, target := range []error{
		ErrInvalidSession,
		ErrSessionExpiredOrRevoked,
		ErrSessionMismatch,
		ErrSessionTimedOut,
		ErrAccountDisabled,
		ErrUserNotFound,
		ErrSessionStoreUnavailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
