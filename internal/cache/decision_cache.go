package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/permission"
)

// Source reports which tier served a resolved decision.
type Source int

const (
	// SourceNone means resolution failed before any tier answered.
	SourceNone Source = iota
	// SourceLocal is the in-process tier.
	SourceLocal
	// SourceDistributed is the shared Redis tier.
	SourceDistributed
	// SourceOrigin is the authoritative rule fetch.
	SourceOrigin
)

func (s Source) String() string {
	switch s {
	case SourceLocal:
		return "local"
	case SourceDistributed:
		return "distributed"
	case SourceOrigin:
		return "origin"
	default:
		return "none"
	}
}

// Key identifies one cached decision.
type Key struct {
	UserID      int64
	RoleID      int64
	ResourceKey string
	ActionKey   string
}

func (k Key) String() string {
	return fmt.Sprintf("%d:%d:%s:%s", k.UserID, k.RoleID, k.ResourceKey, k.ActionKey)
}

func userPrefix(userID int64) string {
	return fmt.Sprintf("%d:", userID)
}

// Fetcher performs the authoritative lookup on a cache miss.
type Fetcher func(ctx context.Context) (permission.Decision, error)

// Config controls both cache tiers.
type Config struct {
	LocalTTL        time.Duration
	LocalMaxEntries int
	// UseDistributed gates reads of the Redis tier on the resolve hot
	// path. Writes and invalidations always reach Redis when a client is
	// configured, so a cluster of processes with mixed settings still
	// converges.
	UseDistributed bool
	DistributedTTL time.Duration
	KeyPrefix      string
	WriteTimeout   time.Duration
}

// DecisionCache is the two-tier permission decision cache. Entries are
// advisory; the system of record stays authoritative and every failure path
// falls back to the fetcher, never to an implicit allow.
type DecisionCache struct {
	cfg     Config
	local   *expirable.LRU[string, permission.Decision]
	redis   redis.UniversalClient
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// New creates a decision cache. client may be nil when no distributed tier
// is deployed.
func New(cfg Config, client redis.UniversalClient, logger zerolog.Logger, m *metrics.Metrics) *DecisionCache {
	if cfg.LocalMaxEntries <= 0 {
		cfg.LocalMaxEntries = 8192
	}
	if cfg.LocalTTL <= 0 {
		cfg.LocalTTL = 5 * time.Minute
	}
	if cfg.DistributedTTL <= 0 {
		cfg.DistributedTTL = cfg.LocalTTL
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 2 * time.Second
	}

	return &DecisionCache{
		cfg:     cfg,
		local:   expirable.NewLRU[string, permission.Decision](cfg.LocalMaxEntries, nil, cfg.LocalTTL),
		redis:   client,
		logger:  logger,
		metrics: m,
	}
}

func (c *DecisionCache) redisKey(k string) string {
	return c.cfg.KeyPrefix + "decision:" + k
}

// Resolve returns the cached decision for key, or runs fetcher and
// populates both tiers. The distributed write is fire-and-forget; a failed
// distributed read degrades to the fetcher. A fetcher error is returned
// as-is and nothing is cached.
func (c *DecisionCache) Resolve(ctx context.Context, key Key, fetcher Fetcher) (permission.Decision, Source, error) {
	id := key.String()

	if decision, ok := c.local.Get(id); ok {
		c.metrics.Inc(metrics.MetricDecisionLocalHit)
		return decision, SourceLocal, nil
	}

	if c.redis != nil && c.cfg.UseDistributed {
		data, err := c.redis.Get(ctx, c.redisKey(id)).Bytes()
		switch {
		case err == nil:
			var decision permission.Decision
			if unmarshalErr := json.Unmarshal(data, &decision); unmarshalErr == nil {
				c.local.Add(id, decision)
				c.metrics.Inc(metrics.MetricDecisionDistributedHit)
				return decision, SourceDistributed, nil
			}
			// corrupt entry: fall through to the authoritative fetch
		case errors.Is(err, redis.Nil):
			// plain miss
		default:
			c.logger.Warn().Err(err).Str("key", id).Msg("distributed decision read failed, falling back to origin")
		}
	}

	decision, err := fetcher(ctx)
	if err != nil {
		return permission.Decision{}, SourceNone, err
	}
	c.metrics.Inc(metrics.MetricDecisionOriginFetch)

	c.local.Add(id, decision)
	if c.redis != nil {
		c.writeThrough(id, decision)
	}

	return decision, SourceOrigin, nil
}

// writeThrough populates the distributed tier without blocking or failing
// the request.
func (c *DecisionCache) writeThrough(id string, decision permission.Decision) {
	data, err := json.Marshal(decision)
	if err != nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), c.cfg.WriteTimeout)
		defer cancel()

		if err := c.redis.Set(ctx, c.redisKey(id), data, c.cfg.DistributedTTL).Err(); err != nil {
			c.logger.Warn().Err(err).Str("key", id).Msg("distributed decision write failed")
		}
	}()
}

// InvalidateUser drops every cached decision of one user from the local
// tier and asynchronously sweeps the matching distributed keys. Safe to
// call concurrently with in-flight reads; a read that started before the
// call may return one stale decision, bounded by the cache TTL.
func (c *DecisionCache) InvalidateUser(ctx context.Context, userID int64) {
	c.metrics.Inc(metrics.MetricDecisionInvalidation)

	prefix := userPrefix(userID)
	for _, id := range c.local.Keys() {
		if strings.HasPrefix(id, prefix) {
			c.local.Remove(id)
		}
	}

	if c.redis != nil {
		pattern := c.redisKey(prefix) + "*"
		go c.scanDelete(pattern)
	}
}

// InvalidateAll clears the local tier and sweeps the whole distributed
// decision namespace.
func (c *DecisionCache) InvalidateAll(ctx context.Context) {
	c.metrics.Inc(metrics.MetricDecisionInvalidation)

	c.local.Purge()
	if c.redis != nil {
		pattern := c.cfg.KeyPrefix + "decision:*"
		go c.scanDelete(pattern)
	}
}

func (c *DecisionCache) scanDelete(pattern string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*c.cfg.WriteTimeout)
	defer cancel()

	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, pattern, 500).Result()
		if err != nil {
			c.logger.Warn().Err(err).Str("pattern", pattern).Msg("distributed decision sweep failed")
			return
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn().Err(err).Str("pattern", pattern).Msg("distributed decision delete failed")
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

// LocalLen reports the number of live local entries. Intended for tests and
// introspection.
func (c *DecisionCache) LocalLen() int {
	return c.local.Len()
}
