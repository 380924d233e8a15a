package gatekeep

import (
	"context"
	"time"

	internalaudit "github.com/remindlabs/gatekeep/internal/audit"
	"github.com/remindlabs/gatekeep/internal/counter"
	"github.com/remindlabs/gatekeep/internal/lockout"
	"github.com/remindlabs/gatekeep/session"
)

// Gate is the admission-control engine: the five rate limiters, the
// brute-force guard, and the session-integrity manager behind one handle.
// All methods are safe for concurrent use after [Builder.Build].
type Gate struct {
	config     Config
	counters   counter.Backend
	lockouts   lockout.Store
	sessions   *session.Manager
	limiters   map[string]*Limiter
	dispatcher *internalaudit.Dispatcher
	metrics    *Metrics
	now        func() time.Time
	remote     bool
}

// Limiter returns the named limiter instance (see the Limiter* constants).
func (g *Gate) Limiter(name string) (*Limiter, error) {
	l, ok := g.limiters[name]
	if !ok {
		return nil, ErrUnknownLimiter
	}
	return l, nil
}

// MustLimiter is Limiter for the compile-time constant names; it panics on
// an unknown name.
func (g *Gate) MustLimiter(name string) *Limiter {
	l, err := g.Limiter(name)
	if err != nil {
		panic("gatekeep: unknown limiter " + name)
	}
	return l
}

// Sessions returns the session-integrity manager.
func (g *Gate) Sessions() *session.Manager {
	return g.sessions
}

// Config returns the Gate's effective configuration.
func (g *Gate) Config() Config {
	return g.config
}

// RemoteBacked reports whether the Gate runs against the shared Redis
// backend. The choice is permanent for the Gate's lifetime.
func (g *Gate) RemoteBacked() bool {
	return g.remote
}

// Metrics returns the in-process metrics instance.
func (g *Gate) Metrics() *Metrics {
	return g.metrics
}

// MetricsSnapshot deep-copies the current metrics.
func (g *Gate) MetricsSnapshot() MetricsSnapshot {
	return g.metrics.Snapshot()
}

// AuditDropped reports audit events dropped under dispatcher backpressure.
func (g *Gate) AuditDropped() uint64 {
	return g.dispatcher.Dropped()
}

// Emit forwards a security event to the audit dispatcher. Exposed so the
// middleware package and applications can record events through the same
// pipeline; the timestamp is stamped here when absent.
func (g *Gate) Emit(ctx context.Context, event AuditEvent) {
	g.emit(ctx, event)
}

// Close drains the audit dispatcher. The Gate must not be used afterwards.
func (g *Gate) Close() {
	g.dispatcher.Close()
}

func (g *Gate) emit(ctx context.Context, event AuditEvent) {
	if g.dispatcher == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = g.now()
	}
	g.dispatcher.Emit(ctx, event)
}

// remoteCtx bounds a backend round-trip with the configured deadline.
func (g *Gate) remoteCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if !g.remote || g.config.Security.RemoteTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, g.config.Security.RemoteTimeout)
}
