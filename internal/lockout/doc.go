// Package lockout implements the progressive brute-force lockout stores.
//
// # State machine
//
// Each identifier is UNLOCKED or LOCKED. Failures accumulate in a rolling
// attempt window; reaching the threshold locks the identifier, clears the
// window, and bumps a per-identifier lockout counter. Lockout duration is
// min(base << counter, max). The counter is never decremented; it ages out
// after a fixed TTL so repeat offenders are remembered across episodes.
// LOCKED expires lazily — no timers, Status just compares against now.
//
// # What this package must NOT do
//
//   - Derive identifiers from requests (the root package hashes emails/IPs).
//   - Decide fail-open policy on backend errors.
package lockout
