package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gatekeep "github.com/remindlabs/gatekeep"
)

func TestSecureSession_RequiresAuthentication(t *testing.T) {
	gate := newGate(t)
	handler := SecureSession(gate)(okHandler())

	// No cookie at all.
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/profile", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("no cookie: status = %d, want 401", rr.Code)
	}

	// Anonymous session: cookie present but no user bound.
	anonRR := httptest.NewRecorder()
	anonReq := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := gate.Sessions().Begin(context.Background(), anonRR, anonReq); err != nil {
		t.Fatalf("Begin: %v", err)
	}

	rr = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	for _, c := range anonRR.Result().Cookies() {
		r.AddCookie(c)
	}
	handler.ServeHTTP(rr, r)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous session: status = %d, want 401", rr.Code)
	}
}

func TestSecureSession_AdmitsAndEchoesCSRF(t *testing.T) {
	gate := newGate(t)
	seen := false
	handler := SecureSession(gate)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec, ok := SessionFromContext(r.Context())
		if !ok || rec.UserID != "u_5" {
			t.Fatal("session missing from handler context")
		}
		seen = true
	}))
	cookie, _ := beginAuthenticated(t, gate, "u_5")

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.AddCookie(cookie)
	handler.ServeHTTP(rr, r)

	if rr.Code != http.StatusOK || !seen {
		t.Fatalf("status = %d, handler ran = %v", rr.Code, seen)
	}
	if rr.Header().Get("X-CSRF-Token") == "" {
		t.Fatal("token not echoed for the SPA")
	}
}

func TestSecureSession_InactivityTimeout(t *testing.T) {
	gate := newGate(t)
	handler := SecureSession(gate, SessionOptions{MaxInactive: time.Millisecond})(okHandler())
	cookie, rec := beginAuthenticated(t, gate, "u_5")

	// Backdate activity past the route's timeout.
	rec.LastActivity = rec.LastActivity.Add(-time.Minute)
	if err := gate.Sessions().Save(context.Background(), rec); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.AddCookie(cookie)
	handler.ServeHTTP(rr, r)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	_, code := decodeError(t, rr)
	if code != "session_expired" {
		t.Fatalf("code = %q", code)
	}
	if gate.Metrics().Value(gatekeep.MetricSessionExpired) == 0 {
		t.Fatal("expiry not counted")
	}

	// The record is gone: retrying with the same cookie stays 401.
	rr = httptest.NewRecorder()
	r = httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.AddCookie(cookie)
	handler.ServeHTTP(rr, r)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("replayed cookie: status = %d, want 401", rr.Code)
	}
}

func TestSecureSession_FingerprintDriftIsAdvisory(t *testing.T) {
	gate := newGate(t)
	handler := SecureSession(gate)(okHandler())
	cookie, _ := beginAuthenticated(t, gate, "u_5")

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.AddCookie(cookie)
	r.Header.Set("User-Agent", "Mozilla/5.0 entirely different browser Chrome/99.0 Safari")
	handler.ServeHTTP(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("drift must not block: status = %d", rr.Code)
	}
	if gate.Metrics().Value(gatekeep.MetricFingerprintMismatch) == 0 {
		t.Fatal("drift not counted")
	}
}

func TestSecureSession_UnusualUserAgentIsAdvisory(t *testing.T) {
	gate := newGate(t)
	handler := SecureSession(gate, SessionOptions{UserAgents: DefaultUserAgentPolicy()})(okHandler())
	cookie, _ := beginAuthenticated(t, gate, "u_5")

	rr := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/profile", nil)
	r.AddCookie(cookie)
	r.Header.Set("User-Agent", "python-requests/2.31")
	handler.ServeHTTP(rr, r)

	if rr.Code != http.StatusOK {
		t.Fatalf("scripted client must not be blocked here: status = %d", rr.Code)
	}
	if gate.Metrics().Value(gatekeep.MetricSuspiciousUA) == 0 {
		t.Fatal("unusual client not counted")
	}
}

func TestUserAgentPolicy_Recognition(t *testing.T) {
	policy := DefaultUserAgentPolicy()

	cases := []struct {
		ua   string
		path string
		want bool
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36", "/chat", true},
		{"Mozilla/5.0 (X11; Linux x86_64; rv:123.0) Gecko/20100101 Firefox/123.0", "/chat", true},
		{"curl/8.5.0", "/chat", false},
		{"", "/chat", false},
		{"curl/8.5.0", "/health", true}, // operational probes bypass
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, tc.path, nil)
		if tc.ua != "" {
			r.Header.Set("User-Agent", tc.ua)
		}
		if got := policy.Recognized(r); got != tc.want {
			t.Errorf("Recognized(%q, %q) = %v, want %v", tc.ua, tc.path, got, tc.want)
		}
	}
}
