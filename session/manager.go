package session

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"time"
)

const (
	// DefaultCookieName matches the Remind session cookie.
	DefaultCookieName = "remind_session"
	// DefaultCSRFCookieName is the readable echo cookie for SPAs.
	DefaultCSRFCookieName = "csrf_token"

	sessionIDBytes = 32 // 256-bit identifiers
	csrfTokenBytes = 32
)

// Config holds session lifecycle and cookie policy.
type Config struct {
	CookieName     string
	CSRFCookieName string
	// Secure marks cookies HTTPS-only; enabled in production mode.
	Secure   bool
	SameSite http.SameSite
	// AbsoluteLifetime bounds a session regardless of activity.
	AbsoluteLifetime time.Duration
	// MaxInactive is the inactivity timeout enforced by TimedOut.
	MaxInactive time.Duration
}

// DefaultConfig returns the Remind production defaults.
func DefaultConfig() Config {
	return Config{
		CookieName:       DefaultCookieName,
		CSRFCookieName:   DefaultCSRFCookieName,
		SameSite:         http.SameSiteLaxMode,
		AbsoluteLifetime: 7 * 24 * time.Hour,
		MaxInactive:      time.Hour,
	}
}

// Manager implements the session-integrity operations over a [Store].
type Manager struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// NewManager creates a Manager. now overrides the clock; pass nil for
// time.Now.
func NewManager(store Store, cfg Config, now func() time.Time) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.CSRFCookieName == "" {
		cfg.CSRFCookieName = DefaultCSRFCookieName
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, cfg: cfg, now: now}
}

// Config returns the manager's effective configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Load resolves the request's session cookie to a stored record. Returns
// [ErrNotFound] when the cookie is absent, unknown, or past its absolute
// lifetime.
func (m *Manager) Load(ctx context.Context, r *http.Request) (*Record, error) {
	cookie, err := r.Cookie(m.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNotFound
	}

	rec, err := m.store.Get(ctx, cookie.Value)
	if err != nil {
		return nil, err
	}
	if m.expired(rec) {
		_ = m.store.Delete(ctx, rec.ID)
		return nil, ErrNotFound
	}
	return rec, nil
}

// Begin creates a fresh anonymous session bound to the request's client
// characteristics and sets the session cookie.
func (m *Manager) Begin(ctx context.Context, w http.ResponseWriter, r *http.Request) (*Record, error) {
	now := m.now()
	rec := &Record{
		ID:           newSessionID(),
		CreatedAt:    now,
		LastActivity: now,
		Fingerprint:  Fingerprint(r),
		CSRFToken:    newCSRFToken(),
	}
	if err := m.save(ctx, rec); err != nil {
		return nil, err
	}
	m.writeCookie(w, rec.ID)
	return rec, nil
}

// Regenerate rotates the session identifier in place: application values and
// the user id are preserved, bookkeeping (timestamps, fingerprint) resets,
// the old record is destroyed, and the cookie is rewritten. Call on every
// privilege-level change.
func (m *Manager) Regenerate(ctx context.Context, w http.ResponseWriter, r *http.Request, rec *Record) (*Record, error) {
	now := m.now()
	fresh := &Record{
		ID:           newSessionID(),
		UserID:       rec.UserID,
		CreatedAt:    now,
		LastActivity: now,
		Fingerprint:  Fingerprint(r),
		CSRFToken:    rec.CSRFToken,
		Values:       rec.Values,
	}
	if fresh.CSRFToken == "" {
		fresh.CSRFToken = newCSRFToken()
	}

	if err := m.save(ctx, fresh); err != nil {
		return nil, err
	}
	if rec.ID != "" {
		_ = m.store.Delete(ctx, rec.ID)
	}
	m.writeCookie(w, fresh.ID)
	return fresh, nil
}

// Invalidate destroys the record and expires the cookie.
func (m *Manager) Invalidate(ctx context.Context, w http.ResponseWriter, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return nil
	}
	err := m.store.Delete(ctx, rec.ID)
	m.clearCookie(w)
	return err
}

// Touch updates the activity timestamp and persists the record.
func (m *Manager) Touch(ctx context.Context, rec *Record) error {
	rec.LastActivity = m.now()
	return m.save(ctx, rec)
}

// Save persists the record with its remaining absolute lifetime as TTL.
func (m *Manager) Save(ctx context.Context, rec *Record) error {
	return m.save(ctx, rec)
}

// TimedOut reports whether the record sat inactive past maxInactive. Zero
// maxInactive falls back to the configured default.
func (m *Manager) TimedOut(rec *Record, maxInactive time.Duration) bool {
	if maxInactive <= 0 {
		maxInactive = m.cfg.MaxInactive
	}
	// A record without an activity stamp has no age to measure; Begin and
	// Touch always stamp it, so this only covers hand-built records.
	if rec.LastActivity.IsZero() {
		return false
	}
	return m.now().Sub(rec.LastActivity) >= maxInactive
}

// CSRFToken returns the session's server-held token, issuing one on first
// use. Issuance is idempotent for the life of the session.
func (m *Manager) CSRFToken(ctx context.Context, rec *Record) (string, error) {
	if rec.CSRFToken != "" {
		return rec.CSRFToken, nil
	}
	rec.CSRFToken = newCSRFToken()
	if err := m.save(ctx, rec); err != nil {
		return "", err
	}
	return rec.CSRFToken, nil
}

// ValidateCSRFToken compares candidate against the session's stored token in
// constant time. Any missing or mismatched value fails closed.
func (m *Manager) ValidateCSRFToken(rec *Record, candidate string) bool {
	if rec == nil || rec.CSRFToken == "" || candidate == "" {
		return false
	}
	return hmac.Equal([]byte(rec.CSRFToken), []byte(candidate))
}

// VerifyFingerprint recomputes the request fingerprint and compares it to the
// one captured at regeneration time. A mismatch is an advisory signal, not a
// gate — legitimate header drift (browser updates) would otherwise lock
// users out.
func (m *Manager) VerifyFingerprint(rec *Record, r *http.Request) bool {
	if rec.Fingerprint == "" {
		return true
	}
	return hmac.Equal([]byte(rec.Fingerprint), []byte(Fingerprint(r)))
}

// Fingerprint derives a coarse client digest from the User-Agent and
// Accept-Language headers: the first 16 hex chars of their SHA-256.
func Fingerprint(r *http.Request) string {
	sum := sha256.Sum256([]byte(r.Header.Get("User-Agent") + "|" + r.Header.Get("Accept-Language")))
	return hex.EncodeToString(sum[:])[:16]
}

func (m *Manager) expired(rec *Record) bool {
	if m.cfg.AbsoluteLifetime <= 0 || rec.CreatedAt.IsZero() {
		return false
	}
	return m.now().Sub(rec.CreatedAt) >= m.cfg.AbsoluteLifetime
}

func (m *Manager) save(ctx context.Context, rec *Record) error {
	ttl := m.cfg.AbsoluteLifetime
	if ttl > 0 {
		ttl -= m.now().Sub(rec.CreatedAt)
	}
	return m.store.Save(ctx, rec, ttl)
}

func (m *Manager) writeCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSite,
	})
}

func (m *Manager) clearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSite,
	})
}

// EchoCSRF attaches the session's token to the response: an X-CSRF-Token
// header plus a deliberately non-HttpOnly cookie so browser code can read it
// back into request headers.
func (m *Manager) EchoCSRF(w http.ResponseWriter, rec *Record) {
	if rec == nil || rec.CSRFToken == "" {
		return
	}
	if w.Header().Get("X-CSRF-Token") != "" {
		return
	}
	w.Header().Set("X-CSRF-Token", rec.CSRFToken)
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CSRFCookieName,
		Value:    rec.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSite,
	})
}

func newSessionID() string {
	buf := make([]byte, sessionIDBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("session: crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(buf)
}

func newCSRFToken() string {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic("session: crypto/rand failed: " + err.Error())
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
