// Package audit implements async event dispatching for security-relevant
// admission decisions.
//
// # Components
//
//   - [Sink] — interface for event consumers (channel, JSON writer, no-op).
//   - [Dispatcher] — buffered async relay with drop-if-full / block-if-full
//     semantics.
//   - [Event] — structured record with timestamp, type, user, session, IP,
//     request id, metadata.
//
// # Architecture boundaries
//
// This package owns event buffering and sink delivery. It does NOT decide
// which events to emit — the Gate and the middleware package do.
//
// # What this package must NOT do
//
//   - Filter or suppress events based on admission policy.
//   - Import gatekeep or any sibling internal package.
//   - Perform network I/O beyond what a caller-supplied Sink does.
package audit
