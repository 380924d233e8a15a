package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	gatekeep "github.com/remindlabs/gatekeep"
	"github.com/remindlabs/gatekeep/httpjson"
)

const csrfBodyLimit = 1 << 20 // cap the body read when digging for a JSON token

type csrfExemptContextKey struct{}

// Exempt marks the request as excluded from CSRF validation. Wrap the
// specific handler, inside any [CSRFProtect] in the chain.
func Exempt(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), csrfExemptContextKey{}, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func exempt(r *http.Request) bool {
	v, _ := r.Context().Value(csrfExemptContextKey{}).(bool)
	return v
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

// RequireCSRF validates the double-submit token on every state-changing
// request through this route. Safe methods and [Exempt]-marked requests pass
// untouched; everything else needs a token matching the session's. Missing
// session or token fails closed with 403.
func RequireCSRF(gate *gatekeep.Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) || exempt(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !validateCSRF(gate, r) {
				rejectCSRF(gate, w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CSRFProtect is the application-wide hook: it loads the request's session,
// issues a token on first contact, echoes the token on every response, and
// validates state-changing requests from authenticated sessions. Anonymous
// writes pass through so login and registration forms keep working; guard
// those routes with [RequireCSRF] where needed.
func CSRFProtect(gate *gatekeep.Gate) func(http.Handler) http.Handler {
	sessions := gate.Sessions()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec, err := sessions.Load(r.Context(), r)
			if err != nil {
				rec, err = sessions.Begin(r.Context(), w, r)
				if err != nil {
					next.ServeHTTP(w, r)
					return
				}
				gate.Metrics().Inc(gatekeep.MetricSessionCreated)
				gate.Emit(r.Context(), gatekeep.AuditEvent{
					EventType: gatekeep.AuditSessionCreated,
					SessionID: rec.ID,
					IP:        ClientIP(r),
				})
			}
			r = r.WithContext(withSession(r.Context(), rec))

			if !safeMethod(r.Method) && !exempt(r) && rec.Authenticated() {
				if !validateCSRF(gate, r) {
					rejectCSRF(gate, w, r)
					return
				}
			}

			sessions.EchoCSRF(w, rec)
			next.ServeHTTP(w, r)
		})
	}
}

func validateCSRF(gate *gatekeep.Gate, r *http.Request) bool {
	rec, ok := SessionFromContext(r.Context())
	if !ok {
		loaded, err := gate.Sessions().Load(r.Context(), r)
		if err != nil {
			return false
		}
		rec = loaded
	}
	return gate.Sessions().ValidateCSRFToken(rec, tokenFromRequest(r))
}

func rejectCSRF(gate *gatekeep.Gate, w http.ResponseWriter, r *http.Request) {
	gate.Metrics().Inc(gatekeep.MetricCSRFFailure)

	var sessionID string
	if rec, ok := SessionFromContext(r.Context()); ok {
		sessionID = rec.ID
	}
	gate.Emit(r.Context(), gatekeep.AuditEvent{
		EventType: gatekeep.AuditCSRFFailure,
		SessionID: sessionID,
		IP:        ClientIP(r),
		Metadata:  map[string]string{"path": r.URL.Path, "method": r.Method},
	})

	httpjson.Error(w, r, http.StatusForbidden, "CSRF token validation failed", httpjson.CodeCSRFValidationFailed)
}

// tokenFromRequest pulls the submitted token: X-CSRF-Token header first,
// then the csrf_token form field, then a csrf_token key in a JSON body. The
// body is restored after reading so handlers can still consume it.
func tokenFromRequest(r *http.Request) string {
	if token := r.Header.Get("X-CSRF-Token"); token != "" {
		return token
	}

	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "application/x-www-form-urlencoded") ||
		strings.HasPrefix(ct, "multipart/form-data"):
		if err := r.ParseForm(); err == nil {
			if token := r.PostFormValue("csrf_token"); token != "" {
				return token
			}
		}
	case strings.HasPrefix(ct, "application/json"):
		if r.Body == nil {
			return ""
		}
		body, err := io.ReadAll(io.LimitReader(r.Body, csrfBodyLimit))
		r.Body = io.NopCloser(bytes.NewReader(body))
		if err != nil {
			return ""
		}
		var payload struct {
			Token    string `json:"csrf_token"`
			AltToken string `json:"_csrf_token"`
		}
		if json.Unmarshal(body, &payload) == nil {
			if payload.Token != "" {
				return payload.Token
			}
			return payload.AltToken
		}
	}
	return ""
}
