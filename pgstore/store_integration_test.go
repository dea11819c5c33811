package pgstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/lumapos/authcore"
	"github.com/lumapos/authcore/permission"
)

// setupTestStore starts a PostgreSQL container, applies migrations, and
// seeds the catalog rows the tests share.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("skipping integration test: TEST_INTEGRATION not set")
	}

	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"docker.io/postgres:17-alpine",
		postgres.WithDatabase("authcore_test"),
		postgres.WithUsername("authcore"),
		postgres.WithPassword("test-password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	migrateURL := fmt.Sprintf("pgx5://authcore:test-password@%s:%s/authcore_test?sslmode=disable",
		host, port.Port())
	if err := Migrate(migrateURL); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	dsn := fmt.Sprintf("postgres://authcore:test-password@%s:%s/authcore_test?sslmode=disable",
		host, port.Port())
	store, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(store.Close)

	seed := []string{
		`INSERT INTO roles (name, display_name) VALUES ('admin', 'Administrator'), ('employee', 'Employee')`,
		`INSERT INTO users (username, password_hash, display_name, role_id, branch_id)
		 VALUES ('alice', 'x', 'Alice', 1, 1), ('bob', 'x', 'Bob', 2, 1), ('carol', 'x', 'Carol', 1, NULL)`,
		`INSERT INTO resources (resource_key) VALUES ('orders.page'), ('users.page')`,
		`INSERT INTO actions (action_key) VALUES ('access'), ('view'), ('create'), ('update'), ('delete')`,
		`INSERT INTO role_permissions (role_id, resource_id, action_id, effect, scope)
		 SELECT 2, res.id, act.id, 'allow', 'branch'
		 FROM resources res, actions act
		 WHERE res.resource_key = 'orders.page' AND act.action_key IN ('access', 'view')`,
	}
	for _, q := range seed {
		if _, err := store.pool.Exec(ctx, q); err != nil {
			t.Fatalf("seed %q: %v", q, err)
		}
	}

	return store
}

func TestFindUser(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	user, err := store.FindUserByID(ctx, 2)
	if err != nil {
		t.Fatalf("FindUserByID: %v", err)
	}
	if user == nil || user.Username != "bob" || user.Role != "employee" {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.BranchID == nil || *user.BranchID != 1 {
		t.Fatalf("branch = %v, want 1", user.BranchID)
	}

	missing, err := store.FindUserByID(ctx, 999)
	if err != nil {
		t.Fatalf("FindUserByID(999): %v", err)
	}
	if missing != nil {
		t.Fatalf("missing user = %+v, want nil", missing)
	}

	byName, hash, err := store.FindUserByUsername(ctx, "carol")
	if err != nil {
		t.Fatalf("FindUserByUsername: %v", err)
	}
	if byName == nil || byName.BranchID != nil || hash != "x" {
		t.Fatalf("unexpected carol: %+v hash=%q", byName, hash)
	}
}

func TestEffectiveRuleAndOverrides(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	override, role, err := store.FindEffectiveRule(ctx, 2, 2, "orders.page", "view")
	if err != nil {
		t.Fatalf("FindEffectiveRule: %v", err)
	}
	if override != nil {
		t.Fatalf("override = %+v, want nil", override)
	}
	if role == nil || role.Effect != permission.EffectAllow || role.Scope != permission.ScopeBranch {
		t.Fatalf("role rule = %+v", role)
	}

	// No delete rule exists at all.
	override, role, err = store.FindEffectiveRule(ctx, 2, 2, "orders.page", "delete")
	if err != nil {
		t.Fatalf("FindEffectiveRule(delete): %v", err)
	}
	if override != nil || role != nil {
		t.Fatalf("expected no rules, got override=%+v role=%+v", override, role)
	}

	err = store.ReplaceUserOverrides(ctx, 2, []permission.Rule{
		{ResourceKey: "orders.page", ActionKey: "view", Effect: permission.EffectDeny, Scope: permission.ScopeNone},
	})
	if err != nil {
		t.Fatalf("ReplaceUserOverrides: %v", err)
	}

	override, _, err = store.FindEffectiveRule(ctx, 2, 2, "orders.page", "view")
	if err != nil {
		t.Fatalf("FindEffectiveRule after override: %v", err)
	}
	if override == nil || override.Effect != permission.EffectDeny {
		t.Fatalf("override = %+v", override)
	}

	// Replacement fully swaps the set.
	if err := store.ReplaceUserOverrides(ctx, 2, nil); err != nil {
		t.Fatalf("ReplaceUserOverrides(empty): %v", err)
	}
	rules, err := store.FindUserOverrides(ctx, 2)
	if err != nil {
		t.Fatalf("FindUserOverrides: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("overrides after clear = %+v", rules)
	}
}

func TestReplaceUserOverridesUnknownResourceRollsBack(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	err := store.ReplaceUserOverrides(ctx, 2, []permission.Rule{
		{ResourceKey: "orders.page", ActionKey: "view", Effect: permission.EffectAllow, Scope: permission.ScopeBranch},
		{ResourceKey: "nonexistent.page", ActionKey: "view", Effect: permission.EffectAllow, Scope: permission.ScopeBranch},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}

	// The first row must not have been committed.
	rules, err := store.FindUserOverrides(ctx, 2)
	if err != nil {
		t.Fatalf("FindUserOverrides: %v", err)
	}
	if len(rules) != 0 {
		t.Fatalf("partial replacement visible: %+v", rules)
	}
}

func TestApprovalLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	entries := []permission.Entry{{
		ResourceKey: "orders.page",
		CanAccess:   true,
		CanView:     true,
		CanDelete:   true,
		DataScope:   permission.ScopeBranch,
	}}

	id, err := store.CreateApproval(ctx, &authcore.ApprovalRequest{
		TargetUserID: 2,
		RequestedBy:  1,
		Status:       authcore.ApprovalPending,
		Reason:       "grant order deletion",
		RiskFlags:    []permission.RiskFlag{permission.RiskDeleteGrant},
		Permissions:  entries,
	})
	if err != nil {
		t.Fatalf("CreateApproval: %v", err)
	}

	req, err := store.GetApproval(ctx, id)
	if err != nil {
		t.Fatalf("GetApproval: %v", err)
	}
	if req == nil || req.Status != authcore.ApprovalPending || req.RequestedBy != 1 {
		t.Fatalf("approval = %+v", req)
	}
	if len(req.Permissions) != 1 || !req.Permissions[0].CanDelete {
		t.Fatalf("payload round trip lost data: %+v", req.Permissions)
	}

	pending, err := store.PendingApprovals(ctx)
	if err != nil {
		t.Fatalf("PendingApprovals: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != id {
		t.Fatalf("pending = %+v", pending)
	}

	won, err := store.TransitionApproval(ctx, authcore.ApprovalTransition{
		ID:             id,
		Status:         authcore.ApprovalApproved,
		ReviewerID:     3,
		ReviewReason:   "looks right",
		TargetUserID:   2,
		ApplyOverrides: permission.ExpandEntries(entries),
	})
	if err != nil {
		t.Fatalf("TransitionApproval: %v", err)
	}
	if !won {
		t.Fatal("first transition lost")
	}

	// The payload must be applied with the transition.
	overrides, err := store.FindUserOverrides(ctx, 2)
	if err != nil {
		t.Fatalf("FindUserOverrides: %v", err)
	}
	if len(overrides) != len(permission.Actions) {
		t.Fatalf("applied overrides = %d rows, want %d", len(overrides), len(permission.Actions))
	}

	// A second transition on the settled row must lose.
	won, err = store.TransitionApproval(ctx, authcore.ApprovalTransition{
		ID: id, Status: authcore.ApprovalRejected, ReviewerID: 3, TargetUserID: 2,
	})
	if err != nil {
		t.Fatalf("second TransitionApproval: %v", err)
	}
	if won {
		t.Fatal("settled approval transitioned again")
	}
}

func TestConcurrentReviewersOneWinner(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	id, err := store.CreateApproval(ctx, &authcore.ApprovalRequest{
		TargetUserID: 2,
		RequestedBy:  1,
		Status:       authcore.ApprovalPending,
		RiskFlags:    []permission.RiskFlag{permission.RiskAllScope},
		Permissions: []permission.Entry{{
			ResourceKey: "orders.page", CanView: true, DataScope: permission.ScopeAll,
		}},
	})
	if err != nil {
		t.Fatalf("CreateApproval: %v", err)
	}

	var wg sync.WaitGroup
	wins := make([]bool, 2)
	decisions := []authcore.ApprovalStatus{authcore.ApprovalApproved, authcore.ApprovalRejected}
	for i := range decisions {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			won, err := store.TransitionApproval(ctx, authcore.ApprovalTransition{
				ID: id, Status: decisions[i], ReviewerID: int64(3), TargetUserID: 2,
			})
			if err != nil {
				t.Errorf("reviewer %d: %v", i, err)
				return
			}
			wins[i] = won
		}(i)
	}
	wg.Wait()

	if wins[0] == wins[1] {
		t.Fatalf("wins = %v, want exactly one winner", wins)
	}
}
