package gatekeep

import (
	"errors"
	"fmt"
	"time"

	"github.com/remindlabs/gatekeep/session"
)

// Named limiter instances. Each guards one request class with its own
// threshold and window.
const (
	LimiterLogin         = "login"
	LimiterPasswordReset = "password_reset"
	LimiterAPI           = "api"
	LimiterChat          = "chat"
	LimiterUpload        = "upload"
)

// Config defines the admission layer's tuning knobs. Configure during
// initialization and treat as immutable afterwards.
type Config struct {
	RateLimit RateLimitConfig
	Lockout   LockoutConfig
	Session   session.Config
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

// LimiterConfig tunes a single named limiter.
type LimiterConfig struct {
	// MaxRequests is the admission budget per sliding window.
	MaxRequests int
	// Window is the trailing window length.
	Window time.Duration
	// Message is the client-facing 429 body text.
	Message string
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig holds the five named limiter instances and the Redis key
// namespace they share.
type RateLimitConfig struct {
	Login         LimiterConfig
	PasswordReset LimiterConfig
	API           LimiterConfig
	Chat          LimiterConfig
	Upload        LimiterConfig
	RedisPrefix   string
}

func (c RateLimitConfig) byName() map[string]LimiterConfig {
	return map[string]LimiterConfig{
		LimiterLogin:         c.Login,
		LimiterPasswordReset: c.PasswordReset,
		LimiterAPI:           c.API,
		LimiterChat:          c.Chat,
		LimiterUpload:        c.Upload,
	}
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig tunes the brute-force guard.
type LockoutConfig struct {
	Enabled bool
	// MaxAttempts is the failure count that triggers a lockout.
	MaxAttempts int
	// Window is the rolling window failures accumulate in.
	Window time.Duration
	// BaseDuration is the first lockout duration.
	BaseDuration time.Duration
	// MaxDuration caps progressive growth.
	MaxDuration time.Duration
	// CountTTL is how long the repeat-offender counter survives without a
	// new episode.
	CountTTL time.Duration
	// Progressive doubles the duration per prior episode.
	Progressive bool
	RedisPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls the in-process metrics system.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds cross-cutting policy.
type SecurityConfig struct {
	// ProductionMode enables Secure cookies and HSTS.
	ProductionMode bool
	// RemoteTimeout bounds each Redis round-trip during evaluation so a
	// degraded backend cannot stall admission.
	RemoteTimeout time.Duration
}

// DefaultConfig returns the Remind production thresholds.
func DefaultConfig() Config {
	return Config{
		RateLimit: RateLimitConfig{
			Login:         LimiterConfig{MaxRequests: 5, Window: 5 * time.Minute, Message: "Too many login attempts"},
			PasswordReset: LimiterConfig{MaxRequests: 3, Window: time.Hour, Message: "Too many password reset requests"},
			API:           LimiterConfig{MaxRequests: 100, Window: time.Hour, Message: "Too many requests"},
			Chat:          LimiterConfig{MaxRequests: 30, Window: time.Minute, Message: "Too many messages, slow down"},
			Upload:        LimiterConfig{MaxRequests: 20, Window: time.Hour, Message: "Too many uploads"},
			RedisPrefix:   "rl:",
		},
		Lockout: LockoutConfig{
			Enabled:      true,
			MaxAttempts:  5,
			Window:       time.Hour,
			BaseDuration: 15 * time.Minute,
			MaxDuration:  time.Hour,
			CountTTL:     7 * 24 * time.Hour,
			Progressive:  true,
			RedisPrefix:  "bf:",
		},
		Session: session.DefaultConfig(),
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
		Security: SecurityConfig{
			RemoteTimeout: 500 * time.Millisecond,
		},
	}
}

// Validate rejects configurations that cannot enforce anything sensible.
func (c Config) Validate() error {
	for name, lc := range c.RateLimit.byName() {
		if lc.MaxRequests <= 0 {
			return fmt.Errorf("limiter %q: MaxRequests must be positive", name)
		}
		if lc.Window <= 0 {
			return fmt.Errorf("limiter %q: Window must be positive", name)
		}
	}

	if c.Lockout.Enabled {
		if c.Lockout.MaxAttempts <= 0 {
			return errors.New("lockout: MaxAttempts must be positive")
		}
		if c.Lockout.Window <= 0 {
			return errors.New("lockout: Window must be positive")
		}
		if c.Lockout.BaseDuration <= 0 {
			return errors.New("lockout: BaseDuration must be positive")
		}
		if c.Lockout.Progressive && c.Lockout.MaxDuration < c.Lockout.BaseDuration {
			return errors.New("lockout: MaxDuration must not be below BaseDuration")
		}
	}

	if c.Session.AbsoluteLifetime < 0 || c.Session.MaxInactive < 0 {
		return errors.New("session: lifetimes must not be negative")
	}
	if c.Security.RemoteTimeout < 0 {
		return errors.New("security: RemoteTimeout must not be negative")
	}
	return nil
}
