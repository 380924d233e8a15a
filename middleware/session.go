package middleware

import (
	"net/http"
	"time"

	gatekeep "github.com/remindlabs/gatekeep"
	"github.com/remindlabs/gatekeep/httpjson"
	"github.com/remindlabs/gatekeep/session"
)

// SessionOptions tunes [SecureSession].
type SessionOptions struct {
	// MaxInactive overrides the configured inactivity timeout for routes
	// that warrant a shorter one. Zero keeps the default.
	MaxInactive time.Duration
	// UserAgents enables the advisory unusual-client check.
	UserAgents *UserAgentPolicy
}

// SecureSession requires an authenticated, live session. Requests without
// one get 401; sessions past the inactivity timeout are destroyed and get
// 401 with code session_expired. Live sessions are touched, checked for
// fingerprint drift (advisory), attached to the context, and their CSRF
// token is echoed on the response.
func SecureSession(gate *gatekeep.Gate, opts ...SessionOptions) func(http.Handler) http.Handler {
	var opt SessionOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	sessions := gate.Sessions()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec, ok := SessionFromContext(r.Context())
			if !ok {
				loaded, err := sessions.Load(r.Context(), r)
				if err != nil {
					httpjson.Error(w, r, http.StatusUnauthorized, "Authentication required", httpjson.CodeUnauthorized)
					return
				}
				rec = loaded
				r = r.WithContext(withSession(r.Context(), rec))
			}

			if !rec.Authenticated() {
				httpjson.Error(w, r, http.StatusUnauthorized, "Authentication required", httpjson.CodeUnauthorized)
				return
			}

			if sessions.TimedOut(rec, opt.MaxInactive) {
				gate.Metrics().Inc(gatekeep.MetricSessionExpired)
				gate.Emit(r.Context(), gatekeep.AuditEvent{
					EventType: gatekeep.AuditSessionInvalidated,
					UserID:    rec.UserID,
					SessionID: rec.ID,
					IP:        ClientIP(r),
					Metadata:  map[string]string{"reason": "inactivity"},
				})
				_ = sessions.Invalidate(r.Context(), w, rec)
				httpjson.Error(w, r, http.StatusUnauthorized, "Session expired, please log in again", httpjson.CodeSessionExpired)
				return
			}

			advisories(gate, opt.UserAgents, rec, r)

			_ = sessions.Touch(r.Context(), rec)
			sessions.EchoCSRF(w, rec)
			next.ServeHTTP(w, r)
		})
	}
}

// advisories records the soft signals: fingerprint drift and unusual
// User-Agent strings. Neither blocks the request.
func advisories(gate *gatekeep.Gate, ua *UserAgentPolicy, rec *session.Record, r *http.Request) {
	if !gate.Sessions().VerifyFingerprint(rec, r) {
		gate.Metrics().Inc(gatekeep.MetricFingerprintMismatch)
		gate.Emit(r.Context(), gatekeep.AuditEvent{
			EventType: gatekeep.AuditFixationAttempt,
			UserID:    rec.UserID,
			SessionID: rec.ID,
			IP:        ClientIP(r),
			Metadata:  map[string]string{"reason": "fingerprint_mismatch"},
		})
	}

	if ua != nil && !ua.Recognized(r) {
		gate.Metrics().Inc(gatekeep.MetricSuspiciousUA)
		gate.Emit(r.Context(), gatekeep.AuditEvent{
			EventType: gatekeep.AuditSuspiciousUA,
			UserID:    rec.UserID,
			SessionID: rec.ID,
			IP:        ClientIP(r),
			Metadata: map[string]string{
				"path":       r.URL.Path,
				"method":     r.Method,
				"user_agent": r.Header.Get("User-Agent"),
			},
		})
	}
}
