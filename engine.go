package authcore

import (
	"context"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	internalaudit "github.com/lumapos/authcore/internal/audit"
	"github.com/lumapos/authcore/internal/cache"
	internalmetrics "github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/jwt"
	"github.com/lumapos/authcore/password"
	"github.com/lumapos/authcore/session"
)

// Engine is the authorization core. It validates bearer sessions, resolves
// effective permissions through the decision cache, and runs the override
// approval workflow. Construct one through the Builder; an Engine is safe
// for concurrent use and immutable after construction.
type Engine struct {
	config Config
	logger zerolog.Logger

	tokens *jwt.Manager
	hasher *password.Hasher

	// sessions is nil in the no-store deployment; validation then goes to
	// the system of record on every call.
	sessions     *session.Store
	sessionCache *expirable.LRU[string, *session.Session]
	decisions    *cache.DecisionCache

	userProvider  UserProvider
	ruleStore     RuleStore
	approvalStore ApprovalStore

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics

	// nowFn is time.Now in production; tests reassign it to drive
	// re-validation and timeout windows.
	nowFn func() time.Time

	closed atomic.Bool
}

func (e *Engine) now() time.Time {
	return e.nowFn()
}

// Close drains the audit dispatcher and marks the engine unusable. Safe to
// call more than once.
func (e *Engine) Close() {
	if e == nil || e.closed.Swap(true) {
		return
	}
	e.audit.Close()
}

func (e *Engine) checkOpen() error {
	if e.closed.Load() {
		return ErrEngineClosed
	}
	return nil
}

// AuditDropped reports how many audit events were shed under backpressure.
func (e *Engine) AuditDropped() uint64 {
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Metrics exposes the live counter set, for exporters.
func (e *Engine) Metrics() *internalmetrics.Metrics {
	return e.metrics
}

// Health reports session store reachability and round-trip latency. With
// no store configured it returns a zero latency and no error.
func (e *Engine) Health(ctx context.Context) (time.Duration, error) {
	if err := e.checkOpen(); err != nil {
		return 0, err
	}
	if e.sessions == nil {
		return 0, nil
	}
	latency, err := e.sessions.Ping(ctx)
	if err != nil {
		return latency, ErrSessionStoreUnavailable
	}
	return latency, nil
}

// isAdmin reports whether the role name matches the configured
// administrative role.
func (e *Engine) isAdmin(role string) bool {
	return role == e.config.Approval.AdminRole
}

func identityFromSession(sess *session.Session) Identity {
	return Identity{
		ID:              sess.UserID,
		Username:        sess.Username,
		DisplayName:     sess.DisplayName,
		RoleID:          sess.RoleID,
		Role:            sess.Role,
		RoleDisplayName: sess.RoleDisplayName,
		BranchID:        sess.BranchID,
		IsUse:           sess.IsUse,
		IsActive:        sess.IsActive,
		SessionID:       sess.SessionID,
	}
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (e *Engine) emitAudit(ctx context.Context, event AuditEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = e.now()
	}
	e.audit.Emit(ctx, event)
}
