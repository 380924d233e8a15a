// Package gatekeep is the request-admission and session-integrity layer of the
// Remind chat service: sliding-window rate limiting, progressive brute-force
// lockout, and CSRF/session-fixation defenses composed into one admission
// gate that every mutating request passes through.
//
// The package is designed for concurrent server workloads: Gate methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// gatekeep is the public surface. It exposes [Gate], [Builder], [Config], and
// value types (RateLimitState, LockStatus, MetricsSnapshot, etc.). Internal
// coordination — counter backends, lockout stores, audit dispatch — lives
// under internal/ and is never exported. HTTP adapters live in
// [github.com/remindlabs/gatekeep/middleware]; server-side sessions in
// [github.com/remindlabs/gatekeep/session].
//
// # Backend selection
//
// Each Gate runs against either a process-local in-memory backend or a shared
// Redis backend. The choice is made once, at Build time: when a Redis client
// is supplied and reachable it is used for counters, lockouts, and sessions;
// when it is absent or the initial ping fails the Gate falls back permanently
// to local stores and records the downgrade as an audit event. Transient
// Redis failures after Build never block a request — evaluation fails open
// and is counted (see [MetricRateLimitFailOpen]).
//
// # What this package must NOT do
//
//   - Expose Redis clients, internal stores, or Lua scripts in its public API.
//   - Perform I/O outside of Gate methods (construction via Builder is
//     allocation-only until Build).
//   - Make routing decisions — handlers opt in through the middleware package.
package gatekeep
