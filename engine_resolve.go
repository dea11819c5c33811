package authcore

import (
	"context"

	"github.com/lumapos/authcore/internal/cache"
	internalmetrics "github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/permission"
)

// Resolve computes the effective decision for one (user, resource, action)
// triple, preferring the user override and falling back to the role rule.
// No matching rule yields the null decision, which every caller treats as
// deny. The lookup is served through the decision cache; a store failure
// propagates as an error and must also be treated as deny.
func (e *Engine) Resolve(ctx context.Context, userID, roleID int64, resourceKey, actionKey string) (permission.Decision, error) {
	if err := e.checkOpen(); err != nil {
		return permission.Decision{}, err
	}

	key := cache.Key{
		UserID:      userID,
		RoleID:      roleID,
		ResourceKey: resourceKey,
		ActionKey:   actionKey,
	}

	decision, _, err := e.decisions.Resolve(ctx, key, func(ctx context.Context) (permission.Decision, error) {
		override, role, err := e.ruleStore.FindEffectiveRule(ctx, userID, roleID, resourceKey, actionKey)
		if err != nil {
			return permission.Decision{}, err
		}
		return permission.Merge(override, role), nil
	})
	return decision, err
}

// Authorize gates one action for an authenticated identity. It returns the
// granted data scope on allow, or a PermissionDeniedError naming the
// resource and action on deny. The error never reveals which rule produced
// the outcome.
func (e *Engine) Authorize(ctx context.Context, identity Identity, resourceKey, actionKey string) (permission.Scope, error) {
	decision, err := e.Resolve(ctx, identity.ID, identity.RoleID, resourceKey, actionKey)
	if err != nil {
		return permission.ScopeNone, err
	}

	if !decision.Allowed() {
		e.metrics.Inc(internalmetrics.MetricAuthorizeDenied)
		e.logger.Debug().
			Int64("user_id", identity.ID).
			Str("resource", resourceKey).
			Str("action", actionKey).
			Msg("authorization denied")
		return permission.ScopeNone, &PermissionDeniedError{
			Resource: resourceKey,
			Action:   actionKey,
			Scope:    string(permission.ScopeNone),
		}
	}

	e.metrics.Inc(internalmetrics.MetricAuthorizeAllowed)
	return decision.Scope, nil
}

// InvalidateUserDecisions drops every cached decision of one user, locally
// at once and distributed asynchronously. The next Resolve for that user
// re-fetches from the system of record.
func (e *Engine) InvalidateUserDecisions(ctx context.Context, userID int64) {
	e.decisions.InvalidateUser(ctx, userID)
}

// InvalidateAllDecisions clears the whole decision cache, typically after
// a bulk role rule change.
func (e *Engine) InvalidateAllDecisions(ctx context.Context) {
	e.decisions.InvalidateAll(ctx)
}
