package authcore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/lumapos/authcore/password"
	"github.com/lumapos/authcore/permission"
)

const testPassword = "correct horse battery"

// memUsers is a mutable in-memory UserProvider.
type memUsers struct {
	mu      sync.Mutex
	records map[int64]*UserRecord
	hashes  map[string]string
}

func (p *memUsers) FindUserByID(_ context.Context, id int64) (*UserRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.records[id]
	if !ok {
		return nil, nil
	}
	copied := *u
	return &copied, nil
}

func (p *memUsers) FindUserByUsername(_ context.Context, username string) (*UserRecord, string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.records {
		if u.Username == username {
			copied := *u
			return &copied, p.hashes[username], nil
		}
	}
	return nil, "", nil
}

func (p *memUsers) UpdatePasswordHash(_ context.Context, id int64, hash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.records[id]; ok {
		p.hashes[u.Username] = hash
	}
	return nil
}

func (p *memUsers) disable(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.records[id]; ok {
		u.IsUse = false
	}
}

func (p *memUsers) remove(id int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.records, id)
}

// memRules is a mutable in-memory RuleStore counting authoritative fetches.
type memRules struct {
	mu        sync.Mutex
	roleRules map[int64][]permission.Rule
	overrides map[int64][]permission.Rule
	fetches   int
	failWith  error
}

func (s *memRules) FindEffectiveRule(_ context.Context, userID, roleID int64, resourceKey, actionKey string) (*permission.Rule, *permission.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches++
	if s.failWith != nil {
		return nil, nil, s.failWith
	}
	return pickRule(s.overrides[userID], resourceKey, actionKey),
		pickRule(s.roleRules[roleID], resourceKey, actionKey), nil
}

func (s *memRules) FindRoleRules(_ context.Context, roleID int64) ([]permission.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]permission.Rule(nil), s.roleRules[roleID]...), nil
}

func (s *memRules) FindUserOverrides(_ context.Context, userID int64) ([]permission.Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]permission.Rule(nil), s.overrides[userID]...), nil
}

func (s *memRules) ReplaceUserOverrides(_ context.Context, userID int64, rules []permission.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[userID] = append([]permission.Rule(nil), rules...)
	return nil
}

func (s *memRules) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func pickRule(rules []permission.Rule, resourceKey, actionKey string) *permission.Rule {
	for i := range rules {
		if rules[i].ResourceKey == resourceKey && rules[i].ActionKey == actionKey {
			copied := rules[i]
			return &copied
		}
	}
	return nil
}

// memApprovals settles transitions under a mutex with the same
// pending-conditional semantics the SQL store gives.
type memApprovals struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*ApprovalRequest
	rules  *memRules
}

func newMemApprovals(rules *memRules) *memApprovals {
	return &memApprovals{nextID: 1, rows: make(map[int64]*ApprovalRequest), rules: rules}
}

func (s *memApprovals) CreateApproval(_ context.Context, req *ApprovalRequest) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	copied := *req
	copied.ID = id
	s.rows[id] = &copied
	return id, nil
}

func (s *memApprovals) GetApproval(_ context.Context, id int64) (*ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, nil
	}
	copied := *row
	return &copied, nil
}

func (s *memApprovals) PendingApprovals(_ context.Context) ([]ApprovalRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ApprovalRequest
	for _, row := range s.rows {
		if row.Status == ApprovalPending {
			out = append(out, *row)
		}
	}
	return out, nil
}

func (s *memApprovals) TransitionApproval(_ context.Context, t ApprovalTransition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[t.ID]
	if !ok || row.Status != ApprovalPending {
		return false, nil
	}
	now := time.Now()
	row.Status = t.Status
	row.ReviewedBy = &t.ReviewerID
	row.ReviewReason = t.ReviewReason
	row.ReviewedAt = &now
	if t.ApplyOverrides != nil {
		s.rules.overrides[t.TargetUserID] = append([]permission.Rule(nil), t.ApplyOverrides...)
	}
	return true, nil
}

type testEnv struct {
	engine    *Engine
	mr        *miniredis.Miniredis
	users     *memUsers
	rules     *memRules
	approvals *memApprovals
}

// newTestEnv builds an engine on miniredis with two seeded users: admin
// alice (id 1, no branch) and employee bob (id 2, branch 4). The employee
// role allows orders.page access and view at branch scope. The session
// snapshot cache is off unless the mutate hook re-enables it, so store
// behavior stays observable.
func newTestEnv(t *testing.T, mutate func(*Config)) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := DefaultConfig()
	cfg.JWT.PrivateKey = []byte("test-secret-test-secret-32-bytes")
	cfg.SessionCache.Enabled = false
	cfg.Audit.Enabled = false
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Password.RehashOnLogin = false
	if mutate != nil {
		mutate(&cfg)
	}

	branch := int64(4)
	users := &memUsers{
		records: map[int64]*UserRecord{
			1: {ID: 1, Username: "alice", DisplayName: "Alice", RoleID: 1, Role: "admin", RoleDisplayName: "Administrator", IsUse: true, IsActive: true},
			2: {ID: 2, Username: "bob", DisplayName: "Bob", RoleID: 2, Role: "employee", RoleDisplayName: "Employee", BranchID: &branch, IsUse: true, IsActive: true},
		},
		hashes: map[string]string{"alice": testHash(t), "bob": testHash(t)},
	}
	rules := &memRules{
		roleRules: map[int64][]permission.Rule{
			2: {
				{ResourceKey: "orders.page", ActionKey: permission.ActionAccess, Effect: permission.EffectAllow, Scope: permission.ScopeBranch},
				{ResourceKey: "orders.page", ActionKey: permission.ActionView, Effect: permission.EffectAllow, Scope: permission.ScopeBranch},
			},
		},
		overrides: map[int64][]permission.Rule{},
	}
	approvals := newMemApprovals(rules)

	engine, err := New().
		WithConfig(cfg).
		WithRedis(client).
		WithUserProvider(users).
		WithRuleStore(rules).
		WithApprovalStore(approvals).
		Build()
	if err != nil {
		t.Fatalf("build engine: %v", err)
	}
	t.Cleanup(engine.Close)

	return &testEnv{engine: engine, mr: mr, users: users, rules: rules, approvals: approvals}
}

var (
	testHashOnce sync.Once
	testHashVal  string
)

// testHash memoizes one argon2 hash of testPassword; deriving it per test
// would dominate the suite's runtime.
func testHash(t *testing.T) string {
	t.Helper()
	testHashOnce.Do(func() {
		cfg := DefaultConfig()
		cfg.Password.Memory = 8 * 1024
		cfg.Password.Time = 1
		cfg.Password.Parallelism = 1
		hasher, err := password.NewHasher(cfg.passwordConfig())
		if err != nil {
			t.Fatalf("hasher: %v", err)
		}
		testHashVal, err = hasher.Hash(testPassword)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
	})
	return testHashVal
}

func (env *testEnv) login(t *testing.T, username string) LoginResult {
	t.Helper()
	res, err := env.engine.Login(context.Background(), username, testPassword)
	if err != nil {
		t.Fatalf("login %s: %v", username, err)
	}
	return res
}

// advanceClock shifts the engine's notion of now. Token parsing still uses
// the wall clock, so the shift must stay inside the JWT TTL.
func (env *testEnv) advanceClock(d time.Duration) {
	base := time.Now()
	env.engine.nowFn = func() time.Time { return base.Add(d) }
}

func (env *testEnv) counter(t *testing.T, id MetricID) uint64 {
	t.Helper()
	return env.engine.MetricsSnapshot().Counters[id]
}

func adminIdentity() Identity {
	return Identity{ID: 1, Username: "alice", RoleID: 1, Role: "admin"}
}

func employeeIdentity() Identity {
	branch := int64(4)
	return Identity{ID: 2, Username: "bob", RoleID: 2, Role: "employee", BranchID: &branch}
}
