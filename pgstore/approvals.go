package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lumapos/authcore"
	"github.com/lumapos/authcore/permission"
)

// CreateApproval persists a pending approval request and returns its id.
func (s *Store) CreateApproval(ctx context.Context, req *authcore.ApprovalRequest) (int64, error) {
	payload, err := json.Marshal(req.Permissions)
	if err != nil {
		return 0, fmt.Errorf("encode payload: %w", err)
	}

	flags := make([]string, 0, len(req.RiskFlags))
	for _, f := range req.RiskFlags {
		flags = append(flags, string(f))
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO permission_override_approvals
			(target_user_id, requested_by, status, reason, risk_flags, payload)
		VALUES ($1, $2, 'pending', $3, $4, $5)
		RETURNING id`,
		req.TargetUserID, req.RequestedBy, req.Reason, flags, payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create approval: %w", err)
	}
	return id, nil
}

const approvalSelect = `
SELECT id, target_user_id, requested_by, reviewed_by, status, reason,
       review_reason, risk_flags, payload, created_at, reviewed_at
FROM permission_override_approvals
`

// GetApproval fetches one approval by id, or nil when absent.
func (s *Store) GetApproval(ctx context.Context, id int64) (*authcore.ApprovalRequest, error) {
	req, err := scanApproval(s.pool.QueryRow(ctx, approvalSelect+`WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// PendingApprovals lists approvals still awaiting review, oldest first.
func (s *Store) PendingApprovals(ctx context.Context) ([]authcore.ApprovalRequest, error) {
	rows, err := s.pool.Query(ctx, approvalSelect+`WHERE status = 'pending' ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query pending approvals: %w", err)
	}
	defer rows.Close()

	var out []authcore.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *req)
	}
	return out, rows.Err()
}

func scanApproval(row pgx.Row) (*authcore.ApprovalRequest, error) {
	var (
		req     authcore.ApprovalRequest
		flags   []string
		payload []byte
	)
	err := row.Scan(
		&req.ID, &req.TargetUserID, &req.RequestedBy, &req.ReviewedBy,
		&req.Status, &req.Reason, &req.ReviewReason, &flags, &payload,
		&req.CreatedAt, &req.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}

	for _, f := range flags {
		req.RiskFlags = append(req.RiskFlags, permission.RiskFlag(f))
	}
	if err := json.Unmarshal(payload, &req.Permissions); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return &req, nil
}

// TransitionApproval settles a pending approval. The status update is
// conditioned on status = 'pending', so of two concurrent reviewers
// exactly one sees a row change; the loser gets false. When
// ApplyOverrides is non-nil the target user's overrides are replaced in
// the same transaction, so a settled approval and its applied payload are
// never observed apart.
func (s *Store) TransitionApproval(ctx context.Context, t authcore.ApprovalTransition) (bool, error) {
	transitioned := false
	err := s.runInTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE permission_override_approvals
			SET status = $2, reviewed_by = $3, review_reason = $4, reviewed_at = now()
			WHERE id = $1 AND status = 'pending'`,
			t.ID, string(t.Status), t.ReviewerID, t.ReviewReason)
		if err != nil {
			return fmt.Errorf("transition approval: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		transitioned = true

		if t.ApplyOverrides != nil {
			return replaceOverrides(ctx, tx, t.TargetUserID, t.ApplyOverrides)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return transitioned, nil
}
