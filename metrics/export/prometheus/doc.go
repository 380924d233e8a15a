// Package prometheus renders gatekeep metrics in Prometheus text exposition
// format.
//
// [NewExporter] accepts a [gatekeep.Gate] and exposes an [http.Handler] that
// serves all gatekeep counters and the evaluation-latency histogram. Counter
// names are prefixed gatekeep_*_total; the histogram is
// gatekeep_evaluate_latency_seconds.
//
// # What this package must NOT do
//
//   - Register metrics in a global Prometheus registry — callers mount the
//     Handler.
//   - Mutate Gate state.
package prometheus
