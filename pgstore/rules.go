package pgstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/lumapos/authcore/permission"
)

// FindEffectiveRule returns the user override and the role rule for one
// (resource, action) pair. Either side is nil when no row exists; the
// caller merges them.
func (s *Store) FindEffectiveRule(ctx context.Context, userID, roleID int64, resourceKey, actionKey string) (override, role *permission.Rule, err error) {
	override, err = s.findRule(ctx, `
		SELECT res.resource_key, act.action_key, up.effect, up.scope
		FROM user_permissions up
		JOIN resources res ON res.id = up.resource_id
		JOIN actions act ON act.id = up.action_id
		WHERE up.user_id = $1 AND res.resource_key = $2 AND act.action_key = $3`,
		userID, resourceKey, actionKey)
	if err != nil {
		return nil, nil, err
	}

	role, err = s.findRule(ctx, `
		SELECT res.resource_key, act.action_key, rp.effect, rp.scope
		FROM role_permissions rp
		JOIN resources res ON res.id = rp.resource_id
		JOIN actions act ON act.id = rp.action_id
		WHERE rp.role_id = $1 AND res.resource_key = $2 AND act.action_key = $3`,
		roleID, resourceKey, actionKey)
	if err != nil {
		return nil, nil, err
	}
	return override, role, nil
}

func (s *Store) findRule(ctx context.Context, query string, args ...any) (*permission.Rule, error) {
	var rule permission.Rule
	err := s.pool.QueryRow(ctx, query, args...).Scan(
		&rule.ResourceKey, &rule.ActionKey, &rule.Effect, &rule.Scope)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find rule: %w", err)
	}
	return &rule, nil
}

// FindRoleRules returns every permission rule of a role.
func (s *Store) FindRoleRules(ctx context.Context, roleID int64) ([]permission.Rule, error) {
	return s.queryRules(ctx, `
		SELECT res.resource_key, act.action_key, rp.effect, rp.scope
		FROM role_permissions rp
		JOIN resources res ON res.id = rp.resource_id
		JOIN actions act ON act.id = rp.action_id
		WHERE rp.role_id = $1
		ORDER BY res.resource_key, act.action_key`, roleID)
}

// FindUserOverrides returns every override row of a user.
func (s *Store) FindUserOverrides(ctx context.Context, userID int64) ([]permission.Rule, error) {
	return s.queryRules(ctx, `
		SELECT res.resource_key, act.action_key, up.effect, up.scope
		FROM user_permissions up
		JOIN resources res ON res.id = up.resource_id
		JOIN actions act ON act.id = up.action_id
		WHERE up.user_id = $1
		ORDER BY res.resource_key, act.action_key`, userID)
}

func (s *Store) queryRules(ctx context.Context, query string, args ...any) ([]permission.Rule, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query rules: %w", err)
	}
	defer rows.Close()

	var rules []permission.Rule
	for rows.Next() {
		var rule permission.Rule
		if err := rows.Scan(&rule.ResourceKey, &rule.ActionKey, &rule.Effect, &rule.Scope); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// ReplaceUserOverrides swaps the full override set of one user inside a
// single transaction.
func (s *Store) ReplaceUserOverrides(ctx context.Context, userID int64, rules []permission.Rule) error {
	return s.runInTx(ctx, func(tx pgx.Tx) error {
		return replaceOverrides(ctx, tx, userID, rules)
	})
}

// replaceOverrides is the delete-then-insert shared by the direct path and
// the approval transition. Unknown resource or action keys fail the whole
// transaction.
func replaceOverrides(ctx context.Context, q DBTX, userID int64, rules []permission.Rule) error {
	if _, err := q.Exec(ctx, `DELETE FROM user_permissions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("clear overrides: %w", err)
	}

	for _, rule := range rules {
		tag, err := q.Exec(ctx, `
			INSERT INTO user_permissions (user_id, resource_id, action_id, effect, scope)
			SELECT $1, res.id, act.id, $4, $5
			FROM resources res, actions act
			WHERE res.resource_key = $2 AND act.action_key = $3`,
			userID, rule.ResourceKey, rule.ActionKey, string(rule.Effect), string(rule.Scope))
		if err != nil {
			return fmt.Errorf("insert override %s/%s: %w", rule.ResourceKey, rule.ActionKey, err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("insert override %s/%s: %w", rule.ResourceKey, rule.ActionKey, ErrNotFound)
		}
	}
	return nil
}
