package middleware

import (
	"net/http"
	"strings"
)

const permissionsPolicy = "accelerometer=(), autoplay=(self), camera=(), " +
	"display-capture=(), encrypted-media=(), fullscreen=(self), geolocation=(), " +
	"gyroscope=(), magnetometer=(), microphone=(), midi=(), payment=(), " +
	"picture-in-picture=(), publickey-credentials-get=(), screen-wake-lock=(), " +
	"sync-xhr=(), usb=(), web-share=(), xr-spatial-tracking=()"

func cspHeader(production bool) string {
	directives := []string{
		"default-src 'self'",
		"script-src 'self' 'unsafe-inline'",
		"style-src 'self' 'unsafe-inline'",
		"img-src 'self' data: https: blob:",
		"connect-src 'self' https: wss: ws:",
		"object-src 'none'",
		"base-uri 'self'",
		"form-action 'self'",
		"frame-ancestors 'none'",
	}
	if production {
		directives = append(directives, "upgrade-insecure-requests", "block-all-mixed-content")
	}
	return strings.Join(directives, "; ")
}

// SecurityHeaders applies the hardening header set to every response. In
// production mode the CSP tightens and HSTS is added; auth failures and JSON
// responses additionally get no-store cache directives.
func SecurityHeaders(production bool) func(http.Handler) http.Handler {
	csp := cspHeader(production)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", csp)
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Permissions-Policy", permissionsPolicy)
			h.Set("Cross-Origin-Opener-Policy", "same-origin")
			h.Set("Cross-Origin-Resource-Policy", "same-origin")
			if production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}

			next.ServeHTTP(&cacheControlWriter{ResponseWriter: w}, r)
		})
	}
}

// cacheControlWriter injects no-store directives just before the first write
// when the response turns out to be JSON or an auth failure.
type cacheControlWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *cacheControlWriter) WriteHeader(status int) {
	if !w.wrote {
		w.wrote = true
		ct := strings.ToLower(w.Header().Get("Content-Type"))
		if status == http.StatusUnauthorized || status == http.StatusForbidden ||
			strings.Contains(ct, "application/json") {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			w.Header().Set("Pragma", "no-cache")
		}
	}
	w.ResponseWriter.WriteHeader(status)
}

func (w *cacheControlWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}
