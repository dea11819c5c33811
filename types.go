package authcore

import (
	"context"
	"io"
	"time"

	internalaudit "github.com/lumapos/authcore/internal/audit"
	"github.com/lumapos/authcore/internal/flows"
	internalmetrics "github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/permission"
)

// Identity is the authenticated snapshot produced by a successful session
// validation. It lives for one request; nothing persists it.
type Identity struct {
	ID              int64
	Username        string
	DisplayName     string
	RoleID          int64
	Role            string
	RoleDisplayName string
	BranchID        *int64
	IsUse           bool
	IsActive        bool
	SessionID       string
}

// UserRecord is the canonical user row the engine reads from the system of
// record. A nil record means the user does not exist.
type UserRecord = flows.UserRecord

// UserProvider is the system-of-record interface for user rows. Lookups
// return (nil, nil) for a missing user; errors are reserved for transport
// and query failures.
type UserProvider interface {
	FindUserByID(ctx context.Context, userID int64) (*UserRecord, error)
	// FindUserByUsername additionally returns the stored password hash for
	// credential verification.
	FindUserByUsername(ctx context.Context, username string) (*UserRecord, string, error)
	// UpdatePasswordHash rewrites the stored hash, used when login detects
	// a hash produced under outdated cost parameters.
	UpdatePasswordHash(ctx context.Context, userID int64, hash string) error
}

// RuleStore is the system-of-record interface for permission rules and
// per-user overrides.
type RuleStore interface {
	// FindEffectiveRule returns the user override and the role rule for
	// one (resource, action) pair. Either may be nil when no row exists.
	FindEffectiveRule(ctx context.Context, userID, roleID int64, resourceKey, actionKey string) (override, role *permission.Rule, err error)
	FindRoleRules(ctx context.Context, roleID int64) ([]permission.Rule, error)
	FindUserOverrides(ctx context.Context, userID int64) ([]permission.Rule, error)
	// ReplaceUserOverrides deletes and reinserts the full override set of
	// one user in a single transaction. Partial replacement is never
	// visible.
	ReplaceUserOverrides(ctx context.Context, userID int64, rules []permission.Rule) error
}

// ApprovalStatus is the lifecycle state of an override approval request.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// ApprovalRequest is one persisted override approval. Pending is the only
// mutable state; approved and rejected are terminal.
type ApprovalRequest struct {
	ID           int64
	TargetUserID int64
	RequestedBy  int64
	ReviewedBy   *int64
	Status       ApprovalStatus
	Reason       string
	ReviewReason string
	RiskFlags    []permission.RiskFlag
	Permissions  []permission.Entry
	CreatedAt    time.Time
	ReviewedAt   *time.Time
}

// ApprovalTransition is the input to ApprovalStore.TransitionApproval. When
// ApplyOverrides is non-nil the store replaces the target user's overrides
// inside the same transaction as the status change.
type ApprovalTransition struct {
	ID             int64
	Status         ApprovalStatus
	ReviewerID     int64
	ReviewReason   string
	TargetUserID   int64
	ApplyOverrides []permission.Rule
}

// ApprovalStore persists override approval requests. TransitionApproval
// must condition the status change on the row still being pending, so a
// race between two reviewers yields exactly one winner; it reports false
// when the row was no longer pending.
type ApprovalStore interface {
	CreateApproval(ctx context.Context, req *ApprovalRequest) (int64, error)
	GetApproval(ctx context.Context, id int64) (*ApprovalRequest, error)
	PendingApprovals(ctx context.Context) ([]ApprovalRequest, error)
	TransitionApproval(ctx context.Context, t ApprovalTransition) (bool, error)
}

// OverrideUpdate is one submitted bulk change to a user's permission
// overrides.
type OverrideUpdate struct {
	TargetUserID int64
	Permissions  []permission.Entry
	Reason       string
}

// OverrideResult reports the outcome of SubmitOverrideUpdate: either the
// change was applied, or a pending approval was created.
type OverrideResult struct {
	Updated          bool
	ApprovalRequired bool
	ApprovalID       int64
	RiskFlags        []permission.RiskFlag
}

// ReviewInput carries one reviewer decision on a pending approval.
type ReviewInput struct {
	ApprovalID   int64
	Decision     ApprovalStatus
	ReviewReason string
}

// ReviewResult reports the settled state after a review.
type ReviewResult struct {
	ApprovalID int64
	Status     ApprovalStatus
	// Applied is true when the stored payload was written to the target
	// user's overrides, which happens only on approval.
	Applied bool
}

// LoginResult is returned by Engine.Login.
type LoginResult struct {
	Token    string
	Identity Identity
}

// AuditEvent is the structured audit record the engine emits for every
// permission mutation and review.
type AuditEvent = internalaudit.Event

// AuditSink receives audit events from the engine's dispatcher. Sink
// failures are observed operationally but never propagate to callers.
type AuditSink = internalaudit.Sink

// NoOpSink discards all audit events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink buffers audit events on a channel for external consumption.
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON-encoded audit event per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a ChannelSink with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a JSONWriterSink writing to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies one engine counter.
type MetricID = internalmetrics.MetricID

const (
	MetricValidateSuccess        = internalmetrics.MetricValidateSuccess
	MetricValidateFailure        = internalmetrics.MetricValidateFailure
	MetricSessionLocalHit        = internalmetrics.MetricSessionLocalHit
	MetricSessionRevalidated     = internalmetrics.MetricSessionRevalidated
	MetricSessionStoreDown       = internalmetrics.MetricSessionStoreDown
	MetricDecisionLocalHit       = internalmetrics.MetricDecisionLocalHit
	MetricDecisionDistributedHit = internalmetrics.MetricDecisionDistributedHit
	MetricDecisionOriginFetch    = internalmetrics.MetricDecisionOriginFetch
	MetricDecisionInvalidation   = internalmetrics.MetricDecisionInvalidation
	MetricAuthorizeAllowed       = internalmetrics.MetricAuthorizeAllowed
	MetricAuthorizeDenied        = internalmetrics.MetricAuthorizeDenied
	MetricOverridesApplied       = internalmetrics.MetricOverridesApplied
	MetricApprovalCreated        = internalmetrics.MetricApprovalCreated
	MetricApprovalApproved       = internalmetrics.MetricApprovalApproved
	MetricApprovalRejected       = internalmetrics.MetricApprovalRejected
	MetricApprovalConflict       = internalmetrics.MetricApprovalConflict
)

// MetricsSnapshot is a point-in-time copy of every engine counter.
type MetricsSnapshot = internalmetrics.Snapshot
