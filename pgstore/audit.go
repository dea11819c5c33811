package pgstore

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/lumapos/authcore"
)

// AuditSink persists audit events into permission_audits. Failures are
// logged and swallowed; auditing never fails the operation that emitted
// the event.
type AuditSink struct {
	store  *Store
	logger zerolog.Logger
}

// NewAuditSink creates a sink writing through the store's pool.
func NewAuditSink(store *Store, logger zerolog.Logger) *AuditSink {
	return &AuditSink{store: store, logger: logger}
}

// Emit inserts one audit row.
func (a *AuditSink) Emit(ctx context.Context, event authcore.AuditEvent) {
	_, err := a.store.pool.Exec(ctx, `
		INSERT INTO permission_audits
			(actor_id, target_type, target_id, action, success, error, reason,
			 payload_before, payload_after, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		event.ActorID, event.TargetType, event.TargetID, event.Action,
		event.Success, event.Error, event.Reason,
		rawOrNil(event.Before), rawOrNil(event.After), event.Timestamp)
	if err != nil {
		a.logger.Warn().Err(err).Str("action", event.Action).Msg("audit insert failed")
	}
}

func rawOrNil(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
