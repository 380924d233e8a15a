package gatekeep

import (
	"context"
	"time"

	"github.com/remindlabs/gatekeep/internal/counter"
)

// Limiter admits or rejects requests for one named request class under a
// sliding window. Obtain instances from [Gate.Limiter].
type Limiter struct {
	name    string
	config  LimiterConfig
	backend counter.Backend
	gate    *Gate
}

// Name returns the limiter's instance name.
func (l *Limiter) Name() string { return l.name }

// Max returns the admission budget per window.
func (l *Limiter) Max() int { return l.config.MaxRequests }

// Window returns the trailing window length.
func (l *Limiter) Window() time.Duration { return l.config.Window }

// Message returns the client-facing rejection text.
func (l *Limiter) Message() string { return l.config.Message }

// Evaluate atomically prunes, counts, and — when under budget — admits one
// event for identifier, returning the state a response should advertise.
//
// Backend failures never reject: evaluation fails open, the downgrade is
// audited, and the returned state reads as a fresh window. Availability wins
// over strict enforcement for this defense.
func (l *Limiter) Evaluate(ctx context.Context, identifier string) RateLimitState {
	g := l.gate
	now := g.now()
	start := now

	rctx, cancel := g.remoteCtx(ctx)
	res, err := l.backend.Evaluate(rctx, l.name+":"+identifier, l.config.MaxRequests, l.config.Window)
	cancel()

	g.metrics.Observe(MetricEvaluateLatency, time.Since(start))

	if err != nil {
		g.metrics.Inc(MetricRateLimitFailOpen)
		g.emit(ctx, AuditEvent{
			EventType: AuditBackendDegraded,
			Metadata: map[string]string{
				"limiter":    l.name,
				"identifier": identifier,
				"error":      err.Error(),
			},
		})
		return RateLimitState{
			Allowed:   true,
			Limit:     l.config.MaxRequests,
			Remaining: l.config.MaxRequests - 1,
			ResetAt:   now.Add(l.config.Window),
		}
	}

	resetAt := now.Add(l.config.Window)
	if !res.Oldest.IsZero() {
		resetAt = res.Oldest.Add(l.config.Window)
	}

	if !res.Allowed {
		g.metrics.Inc(MetricRateLimitRejected)
		g.emit(ctx, AuditEvent{
			EventType: AuditRateLimit,
			Metadata: map[string]string{
				"limiter":    l.name,
				"identifier": identifier,
			},
		})
		return RateLimitState{
			Allowed: false,
			Limit:   l.config.MaxRequests,
			ResetAt: resetAt,
		}
	}

	g.metrics.Inc(MetricRateLimitAllowed)
	return RateLimitState{
		Allowed:   true,
		Limit:     l.config.MaxRequests,
		Remaining: l.config.MaxRequests - res.Count,
		ResetAt:   resetAt,
	}
}

// Allow is the error-form of [Evaluate] for callers that do not need the
// response headers: nil when admitted, [ErrRateLimited] otherwise.
func (l *Limiter) Allow(ctx context.Context, identifier string) error {
	if state := l.Evaluate(ctx, identifier); !state.Allowed {
		return ErrRateLimited
	}
	return nil
}

// Reset clears the window for identifier. Intended for admin tooling and
// tests.
func (l *Limiter) Reset(ctx context.Context, identifier string) error {
	return l.gate.counters.Reset(ctx, l.name+":"+identifier)
}
