package authcore

import (
	"context"
	"encoding/json"

	internalmetrics "github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/permission"
)

// SubmitOverrideUpdate applies or stages a bulk change to one user's
// permission overrides. Low-risk changes replace the override set
// immediately and invalidate the user's cached decisions. High-risk
// changes, meaning any delete grant or any all-scope grant, require the
// administrative role to submit and are persisted as a pending approval
// for a second person to review; nothing is applied yet.
func (e *Engine) SubmitOverrideUpdate(ctx context.Context, actor Identity, update OverrideUpdate) (OverrideResult, error) {
	if err := e.checkOpen(); err != nil {
		return OverrideResult{}, err
	}

	flags := permission.ClassifyRisk(update.Permissions)
	if len(flags) > 0 {
		return e.stageOverrideUpdate(ctx, actor, update, flags)
	}

	before, err := e.ruleStore.FindUserOverrides(ctx, update.TargetUserID)
	if err != nil {
		return OverrideResult{}, err
	}

	rules := permission.ExpandEntries(update.Permissions)
	if err := e.ruleStore.ReplaceUserOverrides(ctx, update.TargetUserID, rules); err != nil {
		return OverrideResult{}, err
	}

	e.InvalidateUserDecisions(ctx, update.TargetUserID)
	e.metrics.Inc(internalmetrics.MetricOverridesApplied)

	e.emitAudit(ctx, AuditEvent{
		ActorID:    actor.ID,
		TargetType: "user_permissions",
		TargetID:   formatID(update.TargetUserID),
		Action:     "overrides_replaced",
		Success:    true,
		Reason:     update.Reason,
		Before:     marshalAudit(before),
		After:      marshalAudit(update.Permissions),
	})

	return OverrideResult{Updated: true}, nil
}

func (e *Engine) stageOverrideUpdate(ctx context.Context, actor Identity, update OverrideUpdate, flags []permission.RiskFlag) (OverrideResult, error) {
	if !e.isAdmin(actor.Role) {
		return OverrideResult{}, ErrAdminRoleRequired
	}

	req := &ApprovalRequest{
		TargetUserID: update.TargetUserID,
		RequestedBy:  actor.ID,
		Status:       ApprovalPending,
		Reason:       update.Reason,
		RiskFlags:    flags,
		Permissions:  update.Permissions,
		CreatedAt:    e.now(),
	}
	id, err := e.approvalStore.CreateApproval(ctx, req)
	if err != nil {
		return OverrideResult{}, err
	}

	e.metrics.Inc(internalmetrics.MetricApprovalCreated)
	e.emitAudit(ctx, AuditEvent{
		ActorID:    actor.ID,
		TargetType: "permission_override_approval",
		TargetID:   formatID(id),
		Action:     "approval_requested",
		Success:    true,
		Reason:     update.Reason,
		After:      marshalAudit(update.Permissions),
	})

	return OverrideResult{
		ApprovalRequired: true,
		ApprovalID:       id,
		RiskFlags:        flags,
	}, nil
}

func marshalAudit(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
