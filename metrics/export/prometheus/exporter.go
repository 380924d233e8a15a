package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	gatekeep "github.com/remindlabs/gatekeep"
)

type metricsSource interface {
	MetricsSnapshot() gatekeep.MetricsSnapshot
	AuditDropped() uint64
}

type counterDef struct {
	id   gatekeep.MetricID
	name string
	help string
}

type histogramDef struct {
	id   gatekeep.MetricID
	name string
	help string
}

var counterDefs = []counterDef{
	{id: gatekeep.MetricRateLimitAllowed, name: "gatekeep_rate_limit_allowed_total", help: "Admitted limiter evaluations."},
	{id: gatekeep.MetricRateLimitRejected, name: "gatekeep_rate_limit_rejected_total", help: "Limiter evaluations rejected over budget."},
	{id: gatekeep.MetricRateLimitFailOpen, name: "gatekeep_rate_limit_fail_open_total", help: "Evaluations admitted because the backend was unavailable."},
	{id: gatekeep.MetricLockoutRejected, name: "gatekeep_lockout_rejected_total", help: "Requests refused while a lockout was active."},
	{id: gatekeep.MetricLockoutTriggered, name: "gatekeep_lockout_triggered_total", help: "New lockout episodes."},
	{id: gatekeep.MetricLockoutFailOpen, name: "gatekeep_lockout_fail_open_total", help: "Lockout checks passed because the backend was unavailable."},
	{id: gatekeep.MetricCSRFFailure, name: "gatekeep_csrf_failure_total", help: "Rejected CSRF validations."},
	{id: gatekeep.MetricSessionCreated, name: "gatekeep_session_created_total", help: "Created sessions."},
	{id: gatekeep.MetricSessionRegenerated, name: "gatekeep_session_regenerated_total", help: "Session identifier rotations."},
	{id: gatekeep.MetricSessionInvalidated, name: "gatekeep_session_invalidated_total", help: "Invalidated sessions."},
	{id: gatekeep.MetricSessionExpired, name: "gatekeep_session_expired_total", help: "Sessions rejected for inactivity or age."},
	{id: gatekeep.MetricFingerprintMismatch, name: "gatekeep_fingerprint_mismatch_total", help: "Advisory fingerprint mismatches."},
	{id: gatekeep.MetricSuspiciousUA, name: "gatekeep_suspicious_ua_total", help: "Advisory unusual User-Agent flags."},
}

var histogramDefs = []histogramDef{
	{id: gatekeep.MetricEvaluateLatency, name: "gatekeep_evaluate_latency_seconds", help: "Limiter evaluation latency histogram."},
}

var histogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// Exporter renders gatekeep metrics in Prometheus text exposition format.
type Exporter struct {
	source metricsSource
}

// NewExporter creates an Exporter that reads from the given [gatekeep.Gate].
func NewExporter(gate *gatekeep.Gate) *Exporter {
	return &Exporter{source: gate}
}

// NewExporterFromSource creates an Exporter from a custom metrics source.
func NewExporterFromSource(source metricsSource) *Exporter {
	return &Exporter{source: source}
}

// Handler returns an http.Handler that serves the metrics page.
func (e *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(e.Render()))
	})
}

// Render produces the current metrics page.
func (e *Exporter) Render() string {
	if e == nil || e.source == nil {
		return ""
	}

	snapshot := e.source.MetricsSnapshot()
	dropped := e.source.AuditDropped()

	var b strings.Builder
	b.Grow(4096)

	for _, def := range counterDefs {
		writeCounter(&b, def.name, def.help, snapshot.Counters[def.id])
	}

	for _, def := range histogramDefs {
		buckets, ok := snapshot.Histograms[def.id]
		if !ok {
			continue
		}
		writeHistogram(&b, def.name, def.help, cumulative(buckets))
	}

	writeCounter(&b, "gatekeep_audit_dropped_total", "Dropped audit events due to dispatcher backpressure.", dropped)

	return b.String()
}

func cumulative(raw []uint64) []uint64 {
	out := make([]uint64, len(histogramBounds))
	var running uint64
	for i := range out {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}

func writeCounter(b *strings.Builder, name, help string, value uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" counter\n")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(strconv.FormatUint(value, 10))
	b.WriteByte('\n')
}

func writeHistogram(b *strings.Builder, name, help string, cumulative []uint64) {
	b.WriteString("# HELP ")
	b.WriteString(name)
	b.WriteByte(' ')
	b.WriteString(escapeHelp(help))
	b.WriteByte('\n')
	b.WriteString("# TYPE ")
	b.WriteString(name)
	b.WriteString(" histogram\n")

	for i, le := range histogramBounds {
		b.WriteString(name)
		b.WriteString("_bucket{le=\"")
		b.WriteString(le)
		b.WriteString("\"} ")
		b.WriteString(strconv.FormatUint(cumulative[i], 10))
		b.WriteByte('\n')
	}

	count := cumulative[len(cumulative)-1]
	b.WriteString(name)
	b.WriteString("_count ")
	b.WriteString(strconv.FormatUint(count, 10))
	b.WriteByte('\n')

	// Sum is not tracked in core snapshots; keep a stable field for scrapers.
	b.WriteString(name)
	b.WriteString("_sum 0\n")
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, "\\", "\\\\")
	help = strings.ReplaceAll(help, "\n", "\\n")
	return help
}
