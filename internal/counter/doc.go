// Package counter provides the atomic sliding-window counter backends that
// rate limiting is built on.
//
// # Window semantics
//
// Each key holds the timestamps of admitted events inside the trailing
// window. Evaluation prunes expired entries, counts the remainder, and — only
// when under the limit — records the current event. The prune/count/record
// sequence is atomic per key: a mutex in [MemoryStore], a single Lua script
// in [RedisStore]. Concurrent callers for one key can never jointly admit
// more than the limit into the same window.
//
// # Architecture boundaries
//
// This package owns storage and atomicity only. Limit/remaining/reset header
// derivation and fail-open policy live in the root gatekeep package.
//
// # What this package must NOT do
//
//   - Decide what happens on rejection or on backend failure.
//   - Be imported outside the gatekeep module.
package counter
