package gatekeep

import (
	"sync/atomic"
	"time"
)

// MetricID identifies a counter or histogram slot in the in-process metrics
// system.
type MetricID uint16

const (
	// MetricRateLimitAllowed counts admitted limiter evaluations.
	MetricRateLimitAllowed MetricID = iota
	// MetricRateLimitRejected counts 429-producing evaluations.
	MetricRateLimitRejected
	// MetricRateLimitFailOpen counts evaluations allowed because the remote
	// backend failed.
	MetricRateLimitFailOpen
	// MetricLockoutRejected counts requests refused while a lockout was
	// active.
	MetricLockoutRejected
	// MetricLockoutTriggered counts new lockout episodes.
	MetricLockoutTriggered
	// MetricLockoutFailOpen counts lockout checks allowed because the remote
	// backend failed.
	MetricLockoutFailOpen
	// MetricCSRFFailure counts rejected CSRF validations.
	MetricCSRFFailure
	// MetricSessionCreated counts new sessions.
	MetricSessionCreated
	// MetricSessionRegenerated counts fixation-defeating identifier
	// rotations.
	MetricSessionRegenerated
	// MetricSessionInvalidated counts explicit session destructions.
	MetricSessionInvalidated
	// MetricSessionExpired counts sessions rejected for inactivity or age.
	MetricSessionExpired
	// MetricFingerprintMismatch counts advisory fingerprint mismatches.
	MetricFingerprintMismatch
	// MetricSuspiciousUA counts advisory user-agent flags.
	MetricSuspiciousUA
	// MetricEvaluateLatency is the limiter evaluation latency histogram.
	MetricEvaluateLatency

	metricIDCount
)

const (
	histBucketCount = 8
	cacheLineSize   = 64
)

type metricHistogram struct {
	buckets [histBucketCount]uint64
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

// Metrics holds cache-line-padded atomic counters and an optional latency
// histogram. All operations are allocation-free and safe for concurrent use;
// a nil receiver is a no-op.
type Metrics struct {
	enabled       bool
	enableLatency bool
	counters      [metricIDCount]paddedCounter
	histograms    [metricIDCount]metricHistogram
}

// MetricsSnapshot is a point-in-time deep copy of all metrics.
type MetricsSnapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false all
// operations are no-ops.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return &Metrics{
		enabled:       cfg.Enabled,
		enableLatency: cfg.Enabled && cfg.EnableLatencyHistograms,
	}
}

// Enabled reports whether the instance records anything.
func (m *Metrics) Enabled() bool {
	return m != nil && m.enabled
}

// Inc increments the counter for id.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id >= metricIDCount {
		return
	}
	atomic.AddUint64(&m.counters[id].value, 1)
}

// Observe records a latency sample for the evaluation histogram.
func (m *Metrics) Observe(id MetricID, d time.Duration) {
	if m == nil || !m.enableLatency || id != MetricEvaluateLatency {
		return
	}
	atomic.AddUint64(&m.histograms[id].buckets[bucketIndex(d)], 1)
}

// Value returns the current counter value for id.
func (m *Metrics) Value(id MetricID) uint64 {
	if m == nil || id >= metricIDCount {
		return 0
	}
	return atomic.LoadUint64(&m.counters[id].value)
}

// Snapshot deep-copies all counters and histogram buckets.
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil || !m.enabled {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := MetricsSnapshot{
		Counters:   make(map[MetricID]uint64, int(metricIDCount)),
		Histograms: make(map[MetricID][]uint64, 1),
	}

	for id := MetricID(0); id < metricIDCount; id++ {
		s.Counters[id] = atomic.LoadUint64(&m.counters[id].value)
	}

	if m.enableLatency {
		buckets := make([]uint64, histBucketCount)
		for i := 0; i < histBucketCount; i++ {
			buckets[i] = atomic.LoadUint64(&m.histograms[MetricEvaluateLatency].buckets[i])
		}
		s.Histograms[MetricEvaluateLatency] = buckets
	}

	return s
}

func bucketIndex(d time.Duration) int {
	ms := d.Milliseconds()

	switch {
	case ms <= 5:
		return 0
	case ms <= 10:
		return 1
	case ms <= 25:
		return 2
	case ms <= 50:
		return 3
	case ms <= 100:
		return 4
	case ms <= 250:
		return 5
	case ms <= 500:
		return 6
	default:
		return 7
	}
}
