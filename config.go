package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/lumapos/authcore/jwt"
	"github.com/lumapos/authcore/password"
)

// Config is the full engine configuration. Build one with DefaultConfig,
// adjust fields or load overrides with LoadConfig, then hand it to the
// Builder. Treat it as immutable after NewEngine.
type Config struct {
	JWT           JWTConfig           `koanf:"jwt"`
	Session       SessionConfig       `koanf:"session"`
	SessionCache  SessionCacheConfig  `koanf:"session_cache"`
	DecisionCache DecisionCacheConfig `koanf:"decision_cache"`
	Approval      ApprovalConfig      `koanf:"approval"`
	Password      PasswordConfig      `koanf:"password"`
	Audit         AuditConfig         `koanf:"audit"`
	Metrics       MetricsConfig       `koanf:"metrics"`
}

// JWTConfig controls token issuance and verification. Key material is
// supplied programmatically, never through file or environment loading.
type JWTConfig struct {
	TTL           time.Duration `koanf:"ttl"`
	SigningMethod string        `koanf:"signing_method"`
	Issuer        string        `koanf:"issuer"`
	Leeway        time.Duration `koanf:"leeway"`
	PrivateKey    []byte        `koanf:"-"`
	PublicKey     []byte        `koanf:"-"`
}

// SessionConfig controls the distributed session store and lifetime policy.
type SessionConfig struct {
	// KeyPrefix namespaces every Redis key, typically per environment.
	KeyPrefix string `koanf:"key_prefix"`
	// TTL is the sliding expiration renewed on every successful read.
	TTL time.Duration `koanf:"ttl"`
	// Timeout is the absolute ceiling on session age measured from token
	// issuance. Sliding renewal never extends past it.
	Timeout time.Duration `koanf:"timeout"`
	// RevalidateAfter is how long cached role/status fields are trusted
	// before the user row is re-checked.
	RevalidateAfter time.Duration `koanf:"revalidate_after"`
	// AllowStoreBypass permits validation against the system of record
	// while the store is unreachable. Off by default: an outage then
	// denies every session check rather than bypassing revocation.
	AllowStoreBypass bool `koanf:"allow_store_bypass"`
}

// SessionCacheConfig bounds the per-process session snapshot cache.
type SessionCacheConfig struct {
	Enabled    bool          `koanf:"enabled"`
	TTL        time.Duration `koanf:"ttl"`
	MaxEntries int           `koanf:"max_entries"`
}

// DecisionCacheConfig controls both decision cache tiers.
type DecisionCacheConfig struct {
	LocalTTL        time.Duration `koanf:"local_ttl"`
	LocalMaxEntries int           `koanf:"local_max_entries"`
	// UseDistributed consults the shared Redis tier on the read path.
	// Default off: the authoritative lookup is usually cheaper than a
	// network round trip, so reads prefer local-or-origin. Writes still
	// populate the distributed tier for processes configured to read it.
	UseDistributed bool          `koanf:"use_distributed"`
	DistributedTTL time.Duration `koanf:"distributed_ttl"`
	WriteTimeout   time.Duration `koanf:"write_timeout"`
}

// ApprovalConfig names the role allowed to submit and review high-risk
// override changes.
type ApprovalConfig struct {
	AdminRole string `koanf:"admin_role"`
}

// PasswordConfig carries argon2id cost parameters.
type PasswordConfig struct {
	Memory        uint32 `koanf:"memory"`
	Time          uint32 `koanf:"time"`
	Parallelism   uint8  `koanf:"parallelism"`
	SaltLength    uint32 `koanf:"salt_length"`
	KeyLength     uint32 `koanf:"key_length"`
	RehashOnLogin bool   `koanf:"rehash_on_login"`
}

// AuditConfig controls the buffered audit dispatcher.
type AuditConfig struct {
	Enabled    bool `koanf:"enabled"`
	BufferSize int  `koanf:"buffer_size"`
	// DropIfFull sheds events under backpressure instead of blocking the
	// emitting request. Dropped events are counted.
	DropIfFull bool `koanf:"drop_if_full"`
}

// MetricsConfig toggles the in-process counters.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
}

// DefaultConfig returns the baseline configuration. HS256 signing and key
// material must still be supplied by the caller.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			TTL:           24 * time.Hour,
			SigningMethod: "hs256",
			Issuer:        "authcore",
			Leeway:        30 * time.Second,
		},
		Session: SessionConfig{
			KeyPrefix:       "authcore:",
			TTL:             30 * time.Minute,
			Timeout:         12 * time.Hour,
			RevalidateAfter: 5 * time.Minute,
		},
		SessionCache: SessionCacheConfig{
			Enabled:    true,
			TTL:        60 * time.Second,
			MaxEntries: 4096,
		},
		DecisionCache: DecisionCacheConfig{
			LocalTTL:        5 * time.Minute,
			LocalMaxEntries: 8192,
			DistributedTTL:  5 * time.Minute,
			WriteTimeout:    2 * time.Second,
		},
		Approval: ApprovalConfig{
			AdminRole: "admin",
		},
		Password: PasswordConfig{
			Memory:        64 * 1024,
			Time:          3,
			Parallelism:   2,
			SaltLength:    16,
			KeyLength:     32,
			RehashOnLogin: true,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

const envPrefix = "AUTHCORE_"

// LoadConfig layers configuration sources over the defaults: an optional
// YAML file, then AUTHCORE_* environment variables. Precedence is
// env > file > defaults. Pass an empty path to skip the file layer.
func LoadConfig(path string) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// AUTHCORE_SESSION_REVALIDATE_AFTER maps to session.revalidate_after.
	// Sections whose names themselves contain an underscore are matched
	// before the generic first-underscore split, so
	// AUTHCORE_DECISION_CACHE_LOCAL_TTL maps to decision_cache.local_ttl.
	envProvider := env.Provider(envPrefix, ".", func(key string) string {
		key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
		for _, section := range []string{"session_cache", "decision_cache"} {
			if strings.HasPrefix(key, section+"_") {
				return section + "." + key[len(section)+1:]
			}
		}
		return strings.Replace(key, "_", ".", 1)
	})
	if err := k.Load(envProvider, nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks internal consistency. Key material checks live in the
// jwt package; the Builder surfaces those at construction.
func (c *Config) Validate() error {
	if c.JWT.TTL <= 0 {
		return errors.New("jwt ttl must be > 0")
	}
	switch jwt.SigningMethod(c.JWT.SigningMethod) {
	case jwt.MethodHS256, jwt.MethodEd25519:
	default:
		return fmt.Errorf("unsupported signing method %q", c.JWT.SigningMethod)
	}
	if c.Session.TTL <= 0 {
		return errors.New("session ttl must be > 0")
	}
	if c.Session.Timeout > 0 && c.Session.Timeout < c.Session.TTL {
		return errors.New("session timeout must be >= session ttl")
	}
	if c.Session.RevalidateAfter < 0 {
		return errors.New("session revalidate_after must be >= 0")
	}
	if c.SessionCache.Enabled {
		if c.SessionCache.TTL <= 0 {
			return errors.New("session_cache ttl must be > 0 when enabled")
		}
		if c.SessionCache.MaxEntries <= 0 {
			return errors.New("session_cache max_entries must be > 0 when enabled")
		}
	}
	if c.DecisionCache.LocalTTL <= 0 {
		return errors.New("decision_cache local_ttl must be > 0")
	}
	if c.DecisionCache.LocalMaxEntries <= 0 {
		return errors.New("decision_cache local_max_entries must be > 0")
	}
	if c.DecisionCache.UseDistributed && c.DecisionCache.DistributedTTL <= 0 {
		return errors.New("decision_cache distributed_ttl must be > 0 when use_distributed is set")
	}
	if c.Approval.AdminRole == "" {
		return errors.New("approval admin_role must not be empty")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("audit buffer_size must be > 0 when enabled")
	}
	return nil
}

func (c *Config) jwtConfig() jwt.Config {
	return jwt.Config{
		TTL:           c.JWT.TTL,
		SigningMethod: jwt.SigningMethod(c.JWT.SigningMethod),
		PrivateKey:    c.JWT.PrivateKey,
		PublicKey:     c.JWT.PublicKey,
		Issuer:        c.JWT.Issuer,
		Leeway:        c.JWT.Leeway,
	}
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}
