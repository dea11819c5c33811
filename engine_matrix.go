package authcore

import (
	"context"

	"github.com/lumapos/authcore/permission"
)

// RoleMatrix builds the effective-permission matrix of a role: one row per
// resource with the five action toggles and the ranked data scope. Used by
// read-only administration views, never for the gating decision itself.
func (e *Engine) RoleMatrix(ctx context.Context, roleID int64) ([]permission.ResourceGrant, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	rules, err := e.ruleStore.FindRoleRules(ctx, roleID)
	if err != nil {
		return nil, err
	}
	return permission.BuildMatrix(rules, nil), nil
}

// UserMatrix builds the effective-permission matrix of one user: role rules
// shadowed per action by the user's overrides.
func (e *Engine) UserMatrix(ctx context.Context, userID, roleID int64) ([]permission.ResourceGrant, error) {
	if err := e.checkOpen(); err != nil {
		return nil, err
	}

	rules, err := e.ruleStore.FindRoleRules(ctx, roleID)
	if err != nil {
		return nil, err
	}
	overrides, err := e.ruleStore.FindUserOverrides(ctx, userID)
	if err != nil {
		return nil, err
	}
	return permission.BuildMatrix(rules, overrides), nil
}
