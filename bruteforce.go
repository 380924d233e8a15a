package gatekeep

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// lockoutID derives the store key for one tracking granularity. Emails are
// normalized and hashed so the lockout table never holds raw addresses.
func lockoutID(kind IdentifierKind, value, ip string) string {
	switch kind {
	case IdentifierEmail:
		if value != "" {
			return "email:" + hashIdentifier(strings.ToLower(value), 16)
		}
	case IdentifierCombined:
		if value != "" {
			return "combined:" + hashIdentifier(strings.ToLower(value), 16) + ":" + hashIdentifier(ip, 8)
		}
	}
	return "ip:" + ip
}

func hashIdentifier(value string, hexLen int) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])[:hexLen]
}

// IsLocked reports whether the identifier is under an active lockout.
// Backend errors never block a legitimate login: the check fails open and
// the degradation is audited.
func (g *Gate) IsLocked(ctx context.Context, kind IdentifierKind, value, ip string) LockStatus {
	if !g.config.Lockout.Enabled {
		return LockStatus{}
	}

	rctx, cancel := g.remoteCtx(ctx)
	st, err := g.lockouts.Status(rctx, lockoutID(kind, value, ip))
	cancel()
	if err != nil {
		g.metrics.Inc(MetricLockoutFailOpen)
		g.emit(ctx, AuditEvent{
			EventType: AuditBackendDegraded,
			IP:        ip,
			Metadata:  map[string]string{"check": "lockout", "error": err.Error()},
		})
		return LockStatus{}
	}

	if st.Locked {
		g.metrics.Inc(MetricLockoutRejected)
	}
	return LockStatus{Locked: st.Locked, Remaining: st.Remaining}
}

// CheckLoginLocked checks all three tracking granularities for a login
// attempt and returns the first active lockout. Rotating a single dimension
// (new address, new account) cannot bypass the other two.
func (g *Gate) CheckLoginLocked(ctx context.Context, email, ip string) LockStatus {
	for _, kind := range []IdentifierKind{IdentifierEmail, IdentifierIP, IdentifierCombined} {
		if st := g.IsLocked(ctx, kind, email, ip); st.Locked {
			return st
		}
	}
	return LockStatus{}
}

// AllowLogin is the error-form of [Gate.CheckLoginLocked]: nil when no
// lockout is active for any granularity, [ErrAccountLocked] otherwise.
func (g *Gate) AllowLogin(ctx context.Context, email, ip string) error {
	if st := g.CheckLoginLocked(ctx, email, ip); st.Locked {
		return ErrAccountLocked
	}
	return nil
}

// RecordAttempt records the outcome of one credential check for a single
// granularity. Success clears the failure window immediately; the episode
// counter deliberately survives so repeat offenders keep their doubled
// durations. Failures accumulate and may trip a lockout.
func (g *Gate) RecordAttempt(ctx context.Context, kind IdentifierKind, value, ip string, success bool) AttemptResult {
	if !g.config.Lockout.Enabled {
		return AttemptResult{RemainingBeforeLock: g.config.Lockout.MaxAttempts}
	}

	id := lockoutID(kind, value, ip)

	if success {
		rctx, cancel := g.remoteCtx(ctx)
		err := g.lockouts.ClearAttempts(rctx, id)
		cancel()
		if err != nil {
			g.emit(ctx, AuditEvent{
				EventType: AuditBackendDegraded,
				IP:        ip,
				Metadata:  map[string]string{"check": "lockout_clear", "error": err.Error()},
			})
		}
		return AttemptResult{RemainingBeforeLock: g.config.Lockout.MaxAttempts}
	}

	rctx, cancel := g.remoteCtx(ctx)
	att, err := g.lockouts.RecordFailure(rctx, id)
	cancel()
	if err != nil {
		g.metrics.Inc(MetricLockoutFailOpen)
		g.emit(ctx, AuditEvent{
			EventType: AuditBackendDegraded,
			IP:        ip,
			Metadata:  map[string]string{"check": "lockout_record", "error": err.Error()},
		})
		return AttemptResult{RemainingBeforeLock: g.config.Lockout.MaxAttempts}
	}

	if att.LockedNow {
		g.metrics.Inc(MetricLockoutTriggered)
		g.emit(ctx, AuditEvent{
			EventType: AuditBruteForce,
			IP:        ip,
			Metadata:  map[string]string{"identifier_type": string(kind)},
		})
	}
	return AttemptResult{LockedNow: att.LockedNow, RemainingBeforeLock: att.Remaining}
}

// RecordLoginAttempt applies one login outcome across the granularities:
// email and IP always, the combined pair only on failure so a success from a
// shared address does not erase evidence against a different account.
func (g *Gate) RecordLoginAttempt(ctx context.Context, email, ip string, success bool) {
	g.RecordAttempt(ctx, IdentifierEmail, email, ip, success)
	g.RecordAttempt(ctx, IdentifierIP, "", ip, success)
	if !success {
		g.RecordAttempt(ctx, IdentifierCombined, email, ip, success)
	}
}
