// Package httpjson writes the wire envelope used by every JSON endpoint of
// the admission layer. Success and failure share one shape so clients can
// branch on a single boolean:
//
//	{"ok": true,  "data": {...}, "request_id": "..."}
//	{"ok": false, "error": {"message": "...", "code": "...", ...}, "request_id": "..."}
//
// Failure envelopes may carry extra fields inside the error object (see
// [ErrorWith]), e.g. the remaining request budget on a rate-limit rejection.
package httpjson

import (
	"encoding/json"
	"net/http"
)

// Stable machine-readable error codes carried in the envelope.
const (
	CodeRateLimitExceeded    = "rate_limit_exceeded"
	CodeAccountLocked        = "account_locked"
	CodeCSRFValidationFailed = "csrf_validation_failed"
	CodeSessionExpired       = "session_expired"
	CodeUnauthorized         = "unauthorized"
	CodeBadRequest           = "bad_request"
	CodeInternal             = "internal_error"
)

type envelope struct {
	OK        bool        `json:"ok"`
	Data      interface{} `json:"data,omitempty"`
	Error     *errBody    `json:"error,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

type errBody struct {
	Message string
	Code    string
	Extra   map[string]interface{}
}

// MarshalJSON flattens Extra into the error object alongside message and
// code. Message and code win on key collision.
func (e *errBody) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(e.Extra)+2)
	for k, v := range e.Extra {
		out[k] = v
	}
	out["message"] = e.Message
	if e.Code != "" {
		out["code"] = e.Code
	}
	return json.Marshal(out)
}

// OK writes a success envelope with the given payload.
func OK(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	write(w, status, envelope{
		OK:        true,
		Data:      data,
		RequestID: requestID(r),
	})
}

// Error writes a failure envelope. Message is client-facing; code is the
// stable machine-readable discriminator.
func Error(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	ErrorWith(w, r, status, message, code, nil)
}

// ErrorWith writes a failure envelope with extra fields merged into the
// error object, for rejections that carry structured hints (remaining
// budget, lockout wait).
func ErrorWith(w http.ResponseWriter, r *http.Request, status int, message, code string, extra map[string]interface{}) {
	write(w, status, envelope{
		OK: false,
		Error: &errBody{
			Message: message,
			Code:    code,
			Extra:   extra,
		},
		RequestID: requestID(r),
	})
}

func write(w http.ResponseWriter, status int, env envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(env)
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	return r.Header.Get("X-Request-ID")
}
