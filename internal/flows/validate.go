package flows

import (
	"context"
	"errors"
	"time"

	"github.com/lumapos/authcore/jwt"
	"github.com/lumapos/authcore/session"
)

// ValidateFailureKind classifies validation failures for root-level mapping
// onto the public error taxonomy.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureInvalidToken
	ValidateFailureExpired
	ValidateFailureMismatch
	ValidateFailureTimedOut
	ValidateFailureDisabled
	ValidateFailureUserNotFound
	ValidateFailureStoreUnavailable
	ValidateFailureInternal
)

// UserRecord is the canonical user row as the flow needs it. A nil record
// from FindUser means the user no longer exists.
type UserRecord struct {
	ID              int64
	Username        string
	DisplayName     string
	RoleID          int64
	Role            string
	RoleDisplayName string
	BranchID        *int64
	IsUse           bool
	IsActive        bool
}

// ValidateSessionStore is the slice of the session store the validate flow
// touches.
type ValidateSessionStore interface {
	GetRefresh(ctx context.Context, sessionID string, ttl time.Duration) (*session.Session, error)
	Update(ctx context.Context, sess *session.Session) error
	Delete(ctx context.Context, sessionID string) error
}

// ValidateDeps captures everything session validation depends on. Store is
// nil when no distributed store is deployed; the flow then reconstructs the
// identity from the system of record on every call.
type ValidateDeps struct {
	ParseToken func(string) (*jwt.Claims, error)
	Now        func() time.Time

	// SessionTTL is the sliding expiration renewed on every store read.
	SessionTTL time.Duration
	// SessionTimeout is the absolute ceiling on token age measured from
	// iat. Sliding renewal never extends past it.
	SessionTimeout time.Duration
	// RevalidateAfter is the interval after which cached role/status
	// fields must be re-checked against the system of record.
	RevalidateAfter time.Duration

	// AllowStoreBypass permits falling back to the system of record when
	// the configured store is unreachable. Leaving it false keeps the
	// fail-closed default: an outage denies every session check.
	AllowStoreBypass bool

	Store    ValidateSessionStore
	FindUser func(ctx context.Context, userID int64) (*UserRecord, error)

	LocalGet func(sessionID string) (*session.Session, bool)
	LocalSet func(sessionID string, sess *session.Session)
}

// ValidateResult carries either the validated claims/session pair or a
// classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.Claims
	Session *session.Session

	// FromLocalCache reports that the snapshot was served without a
	// store round trip.
	FromLocalCache bool
	// Revalidated reports that the system of record was consulted and
	// the session record rewritten.
	Revalidated bool
	// StoreBypassed reports that the store was unreachable and the
	// configured bypass rebuilt the identity from the system of record.
	StoreBypassed bool
}

// RunValidate turns a bearer token into an identity snapshot or a typed
// failure. The failure classification is internal; callers collapse it to a
// uniform unauthenticated response at the boundary.
func RunValidate(ctx context.Context, tokenStr string, deps ValidateDeps) ValidateResult {
	claims, err := deps.ParseToken(tokenStr)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureInvalidToken, Err: err}
	}
	if claims.SID == "" {
		return ValidateResult{Failure: ValidateFailureInvalidToken, Err: errors.New("token carries no session id")}
	}

	now := deps.Now()

	// Absolute lifetime ceiling, independent of sliding renewal.
	if deps.SessionTimeout > 0 && claims.IssuedAt != nil {
		if now.Sub(claims.IssuedAt.Time) > deps.SessionTimeout {
			return ValidateResult{Failure: ValidateFailureTimedOut, Claims: claims}
		}
	}

	if deps.LocalGet != nil {
		if sess, ok := deps.LocalGet(claims.SID); ok {
			if sess.UserID != claims.UID {
				return ValidateResult{Failure: ValidateFailureMismatch, Claims: claims}
			}
			if !sess.IsUse {
				return ValidateResult{Failure: ValidateFailureDisabled, Claims: claims}
			}
			return ValidateResult{Claims: claims, Session: sess, FromLocalCache: true}
		}
	}

	if deps.Store == nil {
		return validateAgainstRecord(ctx, claims, now, deps, false)
	}

	sess, err := deps.Store.GetRefresh(ctx, claims.SID, deps.SessionTTL)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrNotFound):
			return ValidateResult{Failure: ValidateFailureExpired, Claims: claims, Err: err}
		case errors.Is(err, session.ErrStoreUnavailable):
			if deps.AllowStoreBypass {
				return validateAgainstRecord(ctx, claims, now, deps, true)
			}
			return ValidateResult{Failure: ValidateFailureStoreUnavailable, Claims: claims, Err: err}
		default:
			return ValidateResult{Failure: ValidateFailureInternal, Claims: claims, Err: err}
		}
	}

	if sess.UserID != claims.UID {
		return ValidateResult{Failure: ValidateFailureMismatch, Claims: claims}
	}

	revalidated := false
	if sess.RevalidationDue(now, deps.RevalidateAfter) {
		user, err := deps.FindUser(ctx, claims.UID)
		if err != nil {
			return ValidateResult{Failure: ValidateFailureInternal, Claims: claims, Err: err}
		}
		if user == nil {
			return ValidateResult{Failure: ValidateFailureUserNotFound, Claims: claims}
		}
		if !user.IsUse {
			// Fail-closed revocation: the stored session dies with the
			// account.
			_ = deps.Store.Delete(ctx, claims.SID)
			return ValidateResult{Failure: ValidateFailureDisabled, Claims: claims}
		}

		applyUser(sess, user)
		sess.LastValidatedAt = now.Unix()
		if err := deps.Store.Update(ctx, sess); err != nil {
			return ValidateResult{Failure: ValidateFailureInternal, Claims: claims, Err: err}
		}
		revalidated = true
	} else if !sess.IsUse {
		return ValidateResult{Failure: ValidateFailureDisabled, Claims: claims}
	}

	if deps.LocalSet != nil {
		deps.LocalSet(claims.SID, sess)
	}

	return ValidateResult{Claims: claims, Session: sess, Revalidated: revalidated}
}

// validateAgainstRecord rebuilds the identity snapshot straight from the
// system of record. Used when no store is configured, or when the store is
// down and bypass is explicitly allowed.
func validateAgainstRecord(ctx context.Context, claims *jwt.Claims, now time.Time, deps ValidateDeps, bypassed bool) ValidateResult {
	user, err := deps.FindUser(ctx, claims.UID)
	if err != nil {
		return ValidateResult{Failure: ValidateFailureInternal, Claims: claims, Err: err}
	}
	if user == nil {
		return ValidateResult{Failure: ValidateFailureUserNotFound, Claims: claims}
	}
	if !user.IsUse {
		return ValidateResult{Failure: ValidateFailureDisabled, Claims: claims}
	}

	sess := &session.Session{SessionID: claims.SID}
	applyUser(sess, user)
	if claims.IssuedAt != nil {
		sess.CreatedAt = claims.IssuedAt.Unix()
	}
	sess.LastValidatedAt = now.Unix()

	if deps.LocalSet != nil {
		deps.LocalSet(claims.SID, sess)
	}

	return ValidateResult{Claims: claims, Session: sess, Revalidated: true, StoreBypassed: bypassed}
}

func applyUser(sess *session.Session, user *UserRecord) {
	sess.UserID = user.ID
	sess.Username = user.Username
	sess.DisplayName = user.DisplayName
	sess.RoleID = user.RoleID
	sess.Role = user.Role
	sess.RoleDisplayName = user.RoleDisplayName
	sess.BranchID = user.BranchID
	sess.IsUse = user.IsUse
	sess.IsActive = user.IsActive
}
