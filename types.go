package gatekeep

import (
	"io"
	"time"

	internalaudit "github.com/remindlabs/gatekeep/internal/audit"
)

// RateLimitState is the transient outcome of one limiter evaluation. It is
// never persisted; every call recomputes it from the window contents.
type RateLimitState struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfter returns the client wait until ResetAt, rounded up and never
// below one second.
func (s RateLimitState) RetryAfter(now time.Time) time.Duration {
	wait := s.ResetAt.Sub(now)
	if wait <= 0 {
		return time.Second
	}
	if rounded := wait.Truncate(time.Second); rounded < wait {
		wait = rounded + time.Second
	}
	return wait
}

// LockStatus reports whether an identifier is under brute-force lockout.
type LockStatus struct {
	Locked    bool
	Remaining time.Duration
}

// WaitMinutes is the human-facing wait time, rounded up to whole minutes.
func (s LockStatus) WaitMinutes() int {
	return int(s.Remaining/time.Minute) + 1
}

// AttemptResult is the outcome of recording one authentication attempt.
type AttemptResult struct {
	// LockedNow is true when this attempt tripped the lockout threshold.
	LockedNow bool
	// RemainingBeforeLock is the number of failures left before lockout.
	RemainingBeforeLock int
}

// IdentifierKind selects the brute-force tracking granularity. Login flows
// record attempts under all three so rotating a single dimension cannot
// bypass lockout.
type IdentifierKind string

const (
	// IdentifierEmail tracks by normalized, hashed email.
	IdentifierEmail IdentifierKind = "email"
	// IdentifierIP tracks by client address.
	IdentifierIP IdentifierKind = "ip"
	// IdentifierCombined tracks by hashed email+IP pair.
	IdentifierCombined IdentifierKind = "combined"
)

// Audit event types emitted by the Gate and middleware.
const (
	AuditRateLimit          = internalaudit.EventRateLimit
	AuditBruteForce         = internalaudit.EventBruteForce
	AuditCSRFFailure        = internalaudit.EventCSRFFailure
	AuditSuspiciousUA       = internalaudit.EventSuspiciousUA
	AuditFixationAttempt    = internalaudit.EventFixationAttempt
	AuditSessionCreated     = internalaudit.EventSessionCreated
	AuditSessionInvalidated = internalaudit.EventSessionInvalidated
	AuditBackendDegraded    = internalaudit.EventBackendDegraded
)

// AuditEvent is a structured security event record.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the Gate's dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
