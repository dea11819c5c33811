package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/permission"
)

func newTestCache(t *testing.T, distributed bool) (*DecisionCache, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	c := New(Config{
		LocalTTL:        time.Minute,
		LocalMaxEntries: 128,
		UseDistributed:  distributed,
		DistributedTTL:  time.Minute,
		KeyPrefix:       "test:",
		WriteTimeout:    time.Second,
	}, client, zerolog.Nop(), metrics.New(metrics.Config{Enabled: true}))

	return c, mr
}

func allowBranch(ctx context.Context) (permission.Decision, error) {
	return permission.Decision{Effect: permission.EffectAllow, Scope: permission.ScopeBranch}, nil
}

func waitForKeyCount(t *testing.T, mr *miniredis.Miniredis, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(mr.Keys()) == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("redis key count = %d, want %d", len(mr.Keys()), want)
}

func TestResolveMissThenLocalHit(t *testing.T) {
	c, mr := newTestCache(t, true)
	ctx := context.Background()
	key := Key{UserID: 7, RoleID: 2, ResourceKey: "orders", ActionKey: "view"}

	calls := 0
	fetch := func(ctx context.Context) (permission.Decision, error) {
		calls++
		return allowBranch(ctx)
	}

	decision, source, err := c.Resolve(ctx, key, fetch)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if source != SourceOrigin {
		t.Fatalf("first resolve source = %v, want origin", source)
	}
	if !decision.Allowed() || decision.Scope != permission.ScopeBranch {
		t.Fatalf("unexpected decision: %+v", decision)
	}

	decision, source, err = c.Resolve(ctx, key, fetch)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if source != SourceLocal {
		t.Fatalf("second resolve source = %v, want local", source)
	}
	if calls != 1 {
		t.Fatalf("fetcher calls = %d, want 1", calls)
	}
	if !decision.Allowed() {
		t.Fatalf("cached decision lost the allow: %+v", decision)
	}

	waitForKeyCount(t, mr, 1)
}

func TestResolveDistributedHitPopulatesLocal(t *testing.T) {
	c, mr := newTestCache(t, true)
	ctx := context.Background()
	key := Key{UserID: 7, RoleID: 2, ResourceKey: "orders", ActionKey: "view"}

	if _, _, err := c.Resolve(ctx, key, allowBranch); err != nil {
		t.Fatalf("seed resolve: %v", err)
	}
	waitForKeyCount(t, mr, 1)

	// A fresh cache sharing the same Redis must not hit origin.
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	peer := New(Config{UseDistributed: true, KeyPrefix: "test:"}, client, zerolog.Nop(), nil)

	fetch := func(context.Context) (permission.Decision, error) {
		t.Fatal("fetcher reached despite distributed entry")
		return permission.Decision{}, nil
	}
	decision, source, err := peer.Resolve(ctx, key, fetch)
	if err != nil {
		t.Fatalf("peer resolve: %v", err)
	}
	if source != SourceDistributed {
		t.Fatalf("peer source = %v, want distributed", source)
	}
	if !decision.Allowed() || decision.Scope != permission.ScopeBranch {
		t.Fatalf("peer decision: %+v", decision)
	}
	if peer.LocalLen() != 1 {
		t.Fatalf("peer local entries = %d, want 1", peer.LocalLen())
	}
}

func TestResolveFetcherErrorNotCached(t *testing.T) {
	c, _ := newTestCache(t, false)
	ctx := context.Background()
	key := Key{UserID: 1, RoleID: 1, ResourceKey: "orders", ActionKey: "delete"}

	boom := errors.New("rule store down")
	_, source, err := c.Resolve(ctx, key, func(context.Context) (permission.Decision, error) {
		return permission.Decision{}, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if source != SourceNone {
		t.Fatalf("source = %v, want none", source)
	}
	if c.LocalLen() != 0 {
		t.Fatalf("error result was cached")
	}
}

func TestResolveRedisDownFallsBackToOrigin(t *testing.T) {
	c, mr := newTestCache(t, true)
	mr.Close()

	decision, source, err := c.Resolve(context.Background(),
		Key{UserID: 1, RoleID: 1, ResourceKey: "orders", ActionKey: "view"}, allowBranch)
	if err != nil {
		t.Fatalf("resolve with redis down: %v", err)
	}
	if source != SourceOrigin {
		t.Fatalf("source = %v, want origin", source)
	}
	if !decision.Allowed() {
		t.Fatalf("decision: %+v", decision)
	}
}

func TestInvalidateUserIsTargeted(t *testing.T) {
	c, mr := newTestCache(t, true)
	ctx := context.Background()

	keys := []Key{
		{UserID: 7, RoleID: 2, ResourceKey: "orders", ActionKey: "view"},
		{UserID: 7, RoleID: 2, ResourceKey: "orders", ActionKey: "delete"},
		{UserID: 9, RoleID: 2, ResourceKey: "orders", ActionKey: "view"},
	}
	for _, k := range keys {
		if _, _, err := c.Resolve(ctx, k, allowBranch); err != nil {
			t.Fatalf("seed %v: %v", k, err)
		}
	}
	waitForKeyCount(t, mr, 3)

	c.InvalidateUser(ctx, 7)

	if c.LocalLen() != 1 {
		t.Fatalf("local entries after invalidate = %d, want 1", c.LocalLen())
	}
	waitForKeyCount(t, mr, 1)

	// The survivor belongs to the untouched user.
	if _, ok := c.local.Get(keys[2].String()); !ok {
		t.Fatal("unrelated user entry was evicted")
	}
}

func TestInvalidateAll(t *testing.T) {
	c, mr := newTestCache(t, true)
	ctx := context.Background()

	for _, k := range []Key{
		{UserID: 7, RoleID: 2, ResourceKey: "orders", ActionKey: "view"},
		{UserID: 9, RoleID: 3, ResourceKey: "tills", ActionKey: "update"},
	} {
		if _, _, err := c.Resolve(ctx, k, allowBranch); err != nil {
			t.Fatalf("seed %v: %v", k, err)
		}
	}
	waitForKeyCount(t, mr, 2)

	c.InvalidateAll(ctx)

	if c.LocalLen() != 0 {
		t.Fatalf("local entries after purge = %d", c.LocalLen())
	}
	waitForKeyCount(t, mr, 0)
}

func TestResolveWithoutRedisStaysLocal(t *testing.T) {
	c := New(Config{}, nil, zerolog.Nop(), nil)
	ctx := context.Background()
	key := Key{UserID: 3, RoleID: 1, ResourceKey: "orders", ActionKey: "view"}

	if _, source, err := c.Resolve(ctx, key, allowBranch); err != nil || source != SourceOrigin {
		t.Fatalf("first resolve: source=%v err=%v", source, err)
	}
	if _, source, err := c.Resolve(ctx, key, allowBranch); err != nil || source != SourceLocal {
		t.Fatalf("second resolve: source=%v err=%v", source, err)
	}
}
