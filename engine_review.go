package authcore

import (
	"context"
	"fmt"

	internalmetrics "github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/permission"
)

// ReviewApproval settles one pending override approval. The reviewer must
// hold the administrative role and must differ from the requester. The
// status transition is conditioned on the row still being pending inside
// one store transaction, so of two racing reviewers exactly one wins and
// the other receives ErrApprovalConflict. Approval applies the stored
// payload in the same transaction; rejection discards it.
func (e *Engine) ReviewApproval(ctx context.Context, actor Identity, input ReviewInput) (ReviewResult, error) {
	if err := e.checkOpen(); err != nil {
		return ReviewResult{}, err
	}
	if !e.isAdmin(actor.Role) {
		return ReviewResult{}, ErrNotAuthorizedToReview
	}
	if input.Decision != ApprovalApproved && input.Decision != ApprovalRejected {
		return ReviewResult{}, fmt.Errorf("invalid review decision %q", input.Decision)
	}

	req, err := e.approvalStore.GetApproval(ctx, input.ApprovalID)
	if err != nil {
		return ReviewResult{}, err
	}
	if req == nil {
		return ReviewResult{}, ErrApprovalNotFound
	}
	if req.RequestedBy == actor.ID {
		return ReviewResult{}, ErrSelfApprovalForbidden
	}
	if req.Status != ApprovalPending {
		return ReviewResult{}, ErrApprovalConflict
	}

	transition := ApprovalTransition{
		ID:           input.ApprovalID,
		Status:       input.Decision,
		ReviewerID:   actor.ID,
		ReviewReason: input.ReviewReason,
		TargetUserID: req.TargetUserID,
	}
	if input.Decision == ApprovalApproved {
		transition.ApplyOverrides = permission.ExpandEntries(req.Permissions)
	}

	won, err := e.approvalStore.TransitionApproval(ctx, transition)
	if err != nil {
		return ReviewResult{}, err
	}
	if !won {
		e.metrics.Inc(internalmetrics.MetricApprovalConflict)
		return ReviewResult{}, ErrApprovalConflict
	}

	applied := input.Decision == ApprovalApproved
	if applied {
		e.InvalidateUserDecisions(ctx, req.TargetUserID)
		e.metrics.Inc(internalmetrics.MetricApprovalApproved)
	} else {
		e.metrics.Inc(internalmetrics.MetricApprovalRejected)
	}

	e.emitAudit(ctx, AuditEvent{
		ActorID:    actor.ID,
		TargetType: "permission_override_approval",
		TargetID:   formatID(input.ApprovalID),
		Action:     "approval_" + string(input.Decision),
		Success:    true,
		Reason:     input.ReviewReason,
		After:      marshalAudit(req.Permissions),
	})

	return ReviewResult{
		ApprovalID: input.ApprovalID,
		Status:     input.Decision,
		Applied:    applied,
	}, nil
}

// PendingApprovals lists every approval awaiting review. Restricted to the
// administrative role.
func (e *Engine) PendingApprovals(ctx context.Context, actor Identity) ([]ApprovalRequest, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if !e.isAdmin(actor.Role) {
		return nil, ErrNotAuthorizedToReview
	}
	return e.approvalStore.PendingApprovals(ctx)
}

// GetApproval fetches one approval by id. Restricted to the administrative
// role.
func (e *Engine) GetApproval(ctx context.Context, actor Identity, id int64) (*ApprovalRequest, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}
	if !e.isAdmin(actor.Role) {
		return nil, ErrNotAuthorizedToReview
	}
	req, err := e.approvalStore.GetApproval(ctx, id)
	if err != nil {
		return nil, err
	}
	if req == nil {
		return nil, ErrApprovalNotFound
	}
	return req, nil
}
