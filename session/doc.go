// Package session provides server-side session records and the integrity
// operations built on them: fixation-resistant regeneration, CSRF token
// issuance and constant-time validation, client fingerprinting, and
// inactivity/absolute timeout bookkeeping.
//
// # Model
//
// The browser holds only an opaque 256-bit identifier in an HttpOnly cookie.
// The record itself — user id, timestamps, fingerprint, the server-held CSRF
// secret, and arbitrary application key/values — lives in a [Store]: Redis in
// multi-process deployments, in-memory otherwise.
//
// # Fixation defense
//
// [Manager.Regenerate] rotates the identifier on every privilege change.
// Application values and the user id survive the rotation; creation and
// activity timestamps reset and the fingerprint is recomputed, so an
// attacker who fixed a pre-auth identifier holds a dead session.
//
// # What this package must NOT do
//
//   - Enforce admission policy (the middleware package converts integrity
//     failures into HTTP responses).
//   - Treat fingerprint mismatches as fatal — they are advisory telemetry.
package session
