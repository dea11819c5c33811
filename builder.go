package authcore

import (
	"errors"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	internalaudit "github.com/lumapos/authcore/internal/audit"
	"github.com/lumapos/authcore/internal/cache"
	internalmetrics "github.com/lumapos/authcore/internal/metrics"
	"github.com/lumapos/authcore/jwt"
	"github.com/lumapos/authcore/password"
	"github.com/lumapos/authcore/session"
)

// Builder assembles an Engine from its dependencies. A builder is used
// once; Build fails on reuse.
type Builder struct {
	config Config
	redis  redis.UniversalClient
	logger zerolog.Logger

	userProvider  UserProvider
	ruleStore     RuleStore
	approvalStore ApprovalStore
	auditSink     AuditSink

	built bool
}

// New creates a Builder with the default configuration and a disabled
// logger.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
		logger: zerolog.Nop(),
	}
}

// WithConfig replaces the configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the Redis client backing the session store and the
// distributed decision cache tier. Omitting it selects the no-store
// deployment: every session check goes to the system of record and the
// decision cache stays process-local.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithLogger supplies the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithUserProvider supplies the system-of-record user lookup. Required.
func (b *Builder) WithUserProvider(p UserProvider) *Builder {
	b.userProvider = p
	return b
}

// WithRuleStore supplies the permission rule storage. Required.
func (b *Builder) WithRuleStore(s RuleStore) *Builder {
	b.ruleStore = s
	return b
}

// WithApprovalStore supplies the approval request storage. Required.
func (b *Builder) WithApprovalStore(s ApprovalStore) *Builder {
	b.approvalStore = s
	return b
}

// WithAuditSink supplies the audit destination. Omitting it discards audit
// events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// Build validates the configuration, constructs every component, and
// returns the ready Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if b.userProvider == nil {
		return nil, errors.New("user provider required")
	}
	if b.ruleStore == nil {
		return nil, errors.New("rule store required")
	}
	if b.approvalStore == nil {
		return nil, errors.New("approval store required")
	}

	cfg := b.config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tokens, err := jwt.NewManager(cfg.jwtConfig())
	if err != nil {
		return nil, err
	}
	hasher, err := password.NewHasher(cfg.passwordConfig())
	if err != nil {
		return nil, err
	}

	metrics := internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled})

	engine := &Engine{
		config:        cfg,
		logger:        b.logger,
		tokens:        tokens,
		hasher:        hasher,
		userProvider:  b.userProvider,
		ruleStore:     b.ruleStore,
		approvalStore: b.approvalStore,
		metrics:       metrics,
		nowFn:         time.Now,
	}

	if b.redis != nil {
		engine.sessions = session.NewStore(b.redis, cfg.Session.KeyPrefix)
	}
	if cfg.SessionCache.Enabled {
		engine.sessionCache = expirable.NewLRU[string, *session.Session](
			cfg.SessionCache.MaxEntries, nil, cfg.SessionCache.TTL)
	}

	engine.decisions = cache.New(cache.Config{
		LocalTTL:        cfg.DecisionCache.LocalTTL,
		LocalMaxEntries: cfg.DecisionCache.LocalMaxEntries,
		UseDistributed:  cfg.DecisionCache.UseDistributed,
		DistributedTTL:  cfg.DecisionCache.DistributedTTL,
		KeyPrefix:       cfg.Session.KeyPrefix,
		WriteTimeout:    cfg.DecisionCache.WriteTimeout,
	}, b.redis, b.logger, metrics)

	engine.audit = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	b.built = true
	return engine, nil
}
