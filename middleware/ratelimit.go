package middleware

import (
	"net/http"
	"strconv"
	"time"

	gatekeep "github.com/remindlabs/gatekeep"
	"github.com/remindlabs/gatekeep/httpjson"
)

// RateLimitOptions tunes the [RateLimit] decorator.
type RateLimitOptions struct {
	// KeyFunc overrides identifier derivation. Defaults to [Identifier]
	// with no bearer-token resolution.
	KeyFunc func(r *http.Request) string
	// JWTKeyFunc enables bearer-token identity resolution in the default
	// KeyFunc.
	JWTKeyFunc JWTKeyFunc
}

// RateLimit guards a route with the named limiter. Admitted requests carry
// X-RateLimit-Limit, X-RateLimit-Remaining, and X-RateLimit-Reset; rejected
// requests get 429 with Retry-After and the limiter's configured message.
func RateLimit(gate *gatekeep.Gate, limiterName string, opts ...RateLimitOptions) func(http.Handler) http.Handler {
	var opt RateLimitOptions
	if len(opts) > 0 {
		opt = opts[0]
	}
	keyFunc := opt.KeyFunc
	if keyFunc == nil {
		keyFunc = func(r *http.Request) string {
			return Identifier(r, opt.JWTKeyFunc)
		}
	}

	limiter := gate.MustLimiter(limiterName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			state := limiter.Evaluate(r.Context(), keyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(state.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(state.Remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(state.ResetAt.Unix(), 10))

			if !state.Allowed {
				retry := state.RetryAfter(time.Now())
				h.Set("Retry-After", strconv.Itoa(int(retry/time.Second)))
				httpjson.ErrorWith(w, r, http.StatusTooManyRequests, limiter.Message(), httpjson.CodeRateLimitExceeded, map[string]interface{}{
					"remaining_requests": state.Remaining,
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
