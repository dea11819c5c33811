package authcore

import (
	"context"
	"errors"
	"testing"

	"github.com/lumapos/authcore/permission"
)

func TestResolveRoleRule(t *testing.T) {
	env := newTestEnv(t, nil)

	decision, err := env.engine.Resolve(context.Background(), 2, 2, "orders.page", permission.ActionView)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !decision.Allowed() || decision.Scope != permission.ScopeBranch {
		t.Fatalf("decision = %+v", decision)
	}
}

func TestResolveOverrideShadowsRole(t *testing.T) {
	env := newTestEnv(t, nil)

	env.rules.mu.Lock()
	env.rules.overrides[2] = []permission.Rule{
		{ResourceKey: "orders.page", ActionKey: permission.ActionView, Effect: permission.EffectDeny, Scope: permission.ScopeNone},
	}
	env.rules.mu.Unlock()

	decision, err := env.engine.Resolve(context.Background(), 2, 2, "orders.page", permission.ActionView)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Allowed() {
		t.Fatalf("override deny must win, got %+v", decision)
	}
}

func TestResolveNoRuleIsDeny(t *testing.T) {
	env := newTestEnv(t, nil)

	decision, err := env.engine.Resolve(context.Background(), 2, 2, "payroll.page", permission.ActionView)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if decision.Effect != permission.EffectNone || decision.Allowed() {
		t.Fatalf("decision = %+v, want null decision", decision)
	}
}

func TestResolveCachesDecision(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := env.engine.Resolve(ctx, 2, 2, "orders.page", permission.ActionView); err != nil {
			t.Fatalf("resolve %d: %v", i, err)
		}
	}
	if got := env.rules.fetchCount(); got != 1 {
		t.Fatalf("authoritative fetches = %d, want 1", got)
	}
}

func TestInvalidateUserDecisionsForcesRefetch(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	decision, err := env.engine.Resolve(ctx, 2, 2, "orders.page", permission.ActionView)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !decision.Allowed() {
		t.Fatalf("decision = %+v", decision)
	}

	env.rules.mu.Lock()
	env.rules.overrides[2] = []permission.Rule{
		{ResourceKey: "orders.page", ActionKey: permission.ActionView, Effect: permission.EffectDeny, Scope: permission.ScopeNone},
	}
	env.rules.mu.Unlock()

	// Still served from cache until invalidated.
	decision, err = env.engine.Resolve(ctx, 2, 2, "orders.page", permission.ActionView)
	if err != nil {
		t.Fatalf("resolve cached: %v", err)
	}
	if !decision.Allowed() {
		t.Fatalf("expected stale cached allow, got %+v", decision)
	}

	env.engine.InvalidateUserDecisions(ctx, 2)

	decision, err = env.engine.Resolve(ctx, 2, 2, "orders.page", permission.ActionView)
	if err != nil {
		t.Fatalf("resolve after invalidation: %v", err)
	}
	if decision.Allowed() {
		t.Fatalf("expected refetched deny, got %+v", decision)
	}
}

func TestAuthorizeAllowReturnsScope(t *testing.T) {
	env := newTestEnv(t, nil)

	scope, err := env.engine.Authorize(context.Background(), employeeIdentity(), "orders.page", permission.ActionView)
	if err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if scope != permission.ScopeBranch {
		t.Fatalf("scope = %q, want branch", scope)
	}
	if got := env.counter(t, MetricAuthorizeAllowed); got != 1 {
		t.Fatalf("authorize_allowed = %d, want 1", got)
	}
}

func TestAuthorizeDenyCarriesDetails(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.engine.Authorize(context.Background(), employeeIdentity(), "orders.page", permission.ActionDelete)
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v, want ErrPermissionDenied", err)
	}

	var denied *PermissionDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err %T is not a PermissionDeniedError", err)
	}
	if denied.Resource != "orders.page" || denied.Action != permission.ActionDelete || denied.Scope != "none" {
		t.Fatalf("denial = %+v", denied)
	}
	if got := env.counter(t, MetricAuthorizeDenied); got != 1 {
		t.Fatalf("authorize_denied = %d, want 1", got)
	}
}

func TestAuthorizeStoreFailureIsDeny(t *testing.T) {
	env := newTestEnv(t, nil)

	storeErr := errors.New("rule store offline")
	env.rules.mu.Lock()
	env.rules.failWith = storeErr
	env.rules.mu.Unlock()

	_, err := env.engine.Authorize(context.Background(), employeeIdentity(), "orders.page", permission.ActionView)
	if !errors.Is(err, storeErr) {
		t.Fatalf("err = %v, want wrapped store error", err)
	}

	// The failure is not cached: a recovered store serves the next check.
	env.rules.mu.Lock()
	env.rules.failWith = nil
	env.rules.mu.Unlock()

	scope, err := env.engine.Authorize(context.Background(), employeeIdentity(), "orders.page", permission.ActionView)
	if err != nil {
		t.Fatalf("authorize after recovery: %v", err)
	}
	if scope != permission.ScopeBranch {
		t.Fatalf("scope = %q, want branch", scope)
	}
}
