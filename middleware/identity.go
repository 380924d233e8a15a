package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/remindlabs/gatekeep/session"
)

type sessionContextKey struct{}

// SessionFromContext returns the session record attached by [SecureSession]
// or [CSRFProtect].
func SessionFromContext(ctx context.Context) (*session.Record, bool) {
	rec, ok := ctx.Value(sessionContextKey{}).(*session.Record)
	return rec, ok
}

func withSession(ctx context.Context, rec *session.Record) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, rec)
}

// JWTKeyFunc resolves the verification key for bearer tokens presented to
// [Identifier]. Leave nil to disable bearer-token identity resolution.
type JWTKeyFunc = jwt.Keyfunc

// Identifier derives the rate-limit identity for a request. Authenticated
// callers are tracked per user so one account cannot consume another's
// budget behind a shared NAT:
//
//  1. session record on the context with a user id -> "user_<id>"
//  2. valid JWT bearer token                       -> "user_<sub>"
//  3. otherwise                                    -> "ip_<addr>"
func Identifier(r *http.Request, keyFunc JWTKeyFunc) string {
	if rec, ok := SessionFromContext(r.Context()); ok && rec.Authenticated() {
		return "user_" + rec.UserID
	}

	if keyFunc != nil {
		if sub, ok := bearerSubject(r.Header.Get("Authorization"), keyFunc); ok {
			return "user_" + sub
		}
	}

	return "ip_" + ClientIP(r)
}

func bearerSubject(header string, keyFunc JWTKeyFunc) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(header, bearer) {
		return "", false
	}
	raw := header[len(bearer):]
	if raw == "" {
		return "", false
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, keyFunc,
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512", "RS256", "ES256", "EdDSA"}))
	if err != nil || !token.Valid {
		return "", false
	}

	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return "", false
	}
	return sub, true
}

// ClientIP extracts the client address, preferring the first hop of
// X-Forwarded-For, then X-Real-IP, then the connection's remote address.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if real := strings.TrimSpace(r.Header.Get("X-Real-IP")); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
