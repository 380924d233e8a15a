// Package middleware provides net/http decorators that apply the admission
// layer to a route: rate limiting, CSRF validation, session verification,
// security headers, and request identification.
//
// # Architecture boundaries
//
// Decorators translate Gate decisions into HTTP responses; they hold no
// policy of their own. Thresholds, windows, and lockout math live in the
// gatekeep package. Rejections use the JSON envelope from package httpjson.
//
// Decorators compose in the usual wrap order. A typical protected route:
//
//	handler = middleware.RequestID(
//	    middleware.SecurityHeaders(production)(
//	        middleware.RateLimit(gate, gatekeep.LimiterAPI)(
//	            middleware.SecureSession(gate)(
//	                middleware.RequireCSRF(gate)(apiHandler)))))
//
// # What this package must NOT do
//
//   - Mutate limiter or lockout state outside the Gate's own operations.
//   - Block a request on an advisory signal (fingerprint drift, unusual
//     User-Agent); advisories are audited and counted only.
//   - Leak internal error detail to clients; rejections carry only the
//     envelope message and stable code.
package middleware
