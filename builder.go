package gatekeep

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/remindlabs/gatekeep/internal/audit"
	"github.com/remindlabs/gatekeep/internal/counter"
	"github.com/remindlabs/gatekeep/internal/lockout"
	"github.com/remindlabs/gatekeep/session"
)

// Builder assembles a [Gate]. Construction is allocation-only until Build,
// which performs the single connectivity probe that decides the backend.
type Builder struct {
	config Config
	redis  redis.UniversalClient

	auditSink    AuditSink
	sessionStore session.Store
	now          func() time.Time

	built bool
}

// New creates a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cfg
	return b
}

// WithRedis supplies the shared backend for counters, lockouts, and
// sessions. Without it the Gate runs on process-local stores.
func (b *Builder) WithRedis(client redis.UniversalClient) *Builder {
	b.redis = client
	return b
}

// WithAuditSink supplies the consumer for security events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithSessionStore overrides the session backend chosen at Build time.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithClock overrides the time source. Intended for tests.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.now = now
	return b
}

// Build validates the configuration, probes the Redis backend once, and
// returns a ready Gate. A failed probe is not an error: the Gate falls back
// permanently to local stores and records the downgrade.
func (b *Builder) Build() (*Gate, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	if err := b.config.Validate(); err != nil {
		return nil, err
	}
	b.built = true

	cfg := b.config
	now := b.now
	if now == nil {
		now = time.Now
	}

	g := &Gate{
		config:  cfg,
		metrics: NewMetrics(cfg.Metrics),
		now:     now,
	}
	g.dispatcher = internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, b.auditSink)

	remote := false
	if b.redis != nil {
		timeout := cfg.Security.RemoteTimeout
		if timeout <= 0 {
			timeout = 500 * time.Millisecond
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := b.redis.Ping(ctx).Err()
		cancel()
		if err == nil {
			remote = true
		} else {
			g.emit(context.Background(), AuditEvent{
				EventType: AuditBackendDegraded,
				Metadata: map[string]string{
					"reason": "redis unreachable at startup, using in-memory stores",
					"error":  err.Error(),
				},
			})
		}
	}
	g.remote = remote

	if remote {
		g.counters = counter.NewRedisStore(b.redis, cfg.RateLimit.RedisPrefix, now)
		g.lockouts = lockout.NewRedisStore(b.redis, cfg.Lockout.RedisPrefix, lockoutConfig(cfg.Lockout), now)
	} else {
		g.counters = counter.NewMemoryStore(now)
		g.lockouts = lockout.NewMemoryStore(lockoutConfig(cfg.Lockout), now)
	}

	sessionStore := b.sessionStore
	if sessionStore == nil {
		if remote {
			sessionStore = session.NewRedisStore(b.redis, "sess:")
		} else {
			sessionStore = session.NewMemoryStore(now)
		}
	}
	sessionCfg := cfg.Session
	if cfg.Security.ProductionMode {
		sessionCfg.Secure = true
	}
	g.sessions = session.NewManager(sessionStore, sessionCfg, now)

	g.limiters = make(map[string]*Limiter, 5)
	for name, lc := range cfg.RateLimit.byName() {
		g.limiters[name] = &Limiter{
			name:    name,
			config:  lc,
			backend: g.counters,
			gate:    g,
		}
	}

	return g, nil
}

func lockoutConfig(c LockoutConfig) lockout.Config {
	return lockout.Config{
		MaxAttempts:  c.MaxAttempts,
		Window:       c.Window,
		BaseDuration: c.BaseDuration,
		MaxDuration:  c.MaxDuration,
		CountTTL:     c.CountTTL,
		Progressive:  c.Progressive,
	}
}
