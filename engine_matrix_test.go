package authcore

import (
	"context"
	"testing"

	"github.com/lumapos/authcore/permission"
)

func TestRoleMatrix(t *testing.T) {
	env := newTestEnv(t, nil)

	grants, err := env.engine.RoleMatrix(context.Background(), 2)
	if err != nil {
		t.Fatalf("role matrix: %v", err)
	}
	if len(grants) != 1 {
		t.Fatalf("grants = %+v, want one resource", grants)
	}

	g := grants[0]
	if g.ResourceKey != "orders.page" || !g.CanAccess || !g.CanView || g.CanDelete {
		t.Fatalf("grant = %+v", g)
	}
	if g.DataScope != permission.ScopeBranch {
		t.Fatalf("scope = %q, want branch", g.DataScope)
	}
}

func TestUserMatrixMergesOverrides(t *testing.T) {
	env := newTestEnv(t, nil)

	env.rules.mu.Lock()
	env.rules.overrides[2] = []permission.Rule{
		{ResourceKey: "orders.page", ActionKey: permission.ActionView, Effect: permission.EffectDeny, Scope: permission.ScopeNone},
		{ResourceKey: "reports.page", ActionKey: permission.ActionView, Effect: permission.EffectAllow, Scope: permission.ScopeOwn},
	}
	env.rules.mu.Unlock()

	grants, err := env.engine.UserMatrix(context.Background(), 2, 2)
	if err != nil {
		t.Fatalf("user matrix: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("grants = %+v, want two resources", grants)
	}

	// Sorted by resource key: orders.page then reports.page.
	orders, reports := grants[0], grants[1]
	if orders.CanView || !orders.CanAccess {
		t.Fatalf("orders grant = %+v, view must be overridden off", orders)
	}
	if orders.DataScope != permission.ScopeNone {
		t.Fatalf("orders scope = %q, view-disabled resources report none", orders.DataScope)
	}
	if !reports.CanView || reports.DataScope != permission.ScopeOwn {
		t.Fatalf("reports grant = %+v", reports)
	}
}

func TestUserMatrixWithoutOverridesMatchesRoleMatrix(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()

	roleGrants, err := env.engine.RoleMatrix(ctx, 2)
	if err != nil {
		t.Fatalf("role matrix: %v", err)
	}
	userGrants, err := env.engine.UserMatrix(ctx, 2, 2)
	if err != nil {
		t.Fatalf("user matrix: %v", err)
	}

	if len(roleGrants) != len(userGrants) {
		t.Fatalf("role %+v vs user %+v", roleGrants, userGrants)
	}
	for i := range roleGrants {
		if roleGrants[i] != userGrants[i] {
			t.Fatalf("grant %d differs: %+v vs %+v", i, roleGrants[i], userGrants[i])
		}
	}
}
