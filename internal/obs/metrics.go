package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics mirrors the teacher's middleware.Metrics shape (CounterVec and
// HistogramVec fields, a Register method, and a Collectors method for test
// introspection) but relabeled from HTTP request metrics to DWN operation
// metrics.
type Metrics struct {
	OperationsTotal    *prometheus.CounterVec
	OperationDuration  *prometheus.HistogramVec
	OperationDataBytes *prometheus.HistogramVec

	GrantsIssuedTotal   prometheus.Counter
	GrantsRevokedTotal  prometheus.Counter
	GrantChecksTotal    *prometheus.CounterVec
	EventStreamSubs     prometheus.Gauge
	EventStreamDropped  *prometheus.CounterVec
	EventStreamQueueLen prometheus.Histogram
}

// NewMetrics constructs all collectors unregistered, matching the
// teacher's NewMetrics/Register split so callers choose which registry
// (production vs. test) to attach to.
func NewMetrics() *Metrics {
	return &Metrics{
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dwn",
			Name:      "operations_total",
			Help:      "Total DWN operations processed, by interface, method, and status code.",
		}, []string{"interface", "method", "status"}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dwn",
			Name:      "operation_duration_seconds",
			Help:      "DWN operation pipeline latency, by interface and method.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"interface", "method"}),
		OperationDataBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dwn",
			Name:      "operation_data_bytes",
			Help:      "Size of data associated with a RecordsWrite, inline or streamed.",
			Buckets:   prometheus.ExponentialBuckets(256, 4, 10),
		}, []string{"interface", "method"}),
		GrantsIssuedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dwn",
			Name:      "grants_issued_total",
			Help:      "Total PermissionsGrant messages accepted.",
		}),
		GrantsRevokedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dwn",
			Name:      "grants_revoked_total",
			Help:      "Total PermissionsRevoke messages accepted.",
		}),
		GrantChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dwn",
			Name:      "grant_checks_total",
			Help:      "Grant authorization checks, labeled by outcome (allowed, denied, expired, revoked).",
		}, []string{"outcome"}),
		EventStreamSubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "dwn",
			Name:      "event_stream_subscriptions",
			Help:      "Currently open RecordsSubscribe subscriptions across all tenants.",
		}),
		EventStreamDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dwn",
			Name:      "event_stream_dropped_total",
			Help:      "Notifications dropped because a subscriber's queue was full.",
		}, []string{"tenant"}),
		EventStreamQueueLen: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dwn",
			Name:      "event_stream_queue_length",
			Help:      "Observed subscriber queue depth at publish time.",
			Buckets:   prometheus.LinearBuckets(0, 16, 8),
		}),
	}
}

// Register attaches every collector to reg, returning the first
// registration error, exactly as the teacher's Metrics.Register does.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// Collectors lists every collector Metrics owns, for Register and for
// tests that want to exercise them against a private registry.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.OperationsTotal,
		m.OperationDuration,
		m.OperationDataBytes,
		m.GrantsIssuedTotal,
		m.GrantsRevokedTotal,
		m.GrantChecksTotal,
		m.EventStreamSubs,
		m.EventStreamDropped,
		m.EventStreamQueueLen,
	}
}

// IncOperation records one completed operation and its status bucket.
func (m *Metrics) IncOperation(iface, method string, statusCode int) {
	m.OperationsTotal.WithLabelValues(iface, method, statusClass(statusCode)).Inc()
}

// ObserveOperationDuration records one operation's pipeline latency in
// seconds, the unit prometheus.Histogram buckets expect.
func (m *Metrics) ObserveOperationDuration(iface, method string, seconds float64) {
	m.OperationDuration.WithLabelValues(iface, method).Observe(seconds)
}

// ObserveDataBytes records the size of data carried by a write operation.
func (m *Metrics) ObserveDataBytes(iface, method string, size int64) {
	m.OperationDataBytes.WithLabelValues(iface, method).Observe(float64(size))
}

// IncGrantCheck records one AUTHORIZE-stage grant evaluation outcome.
func (m *Metrics) IncGrantCheck(outcome string) {
	m.GrantChecksTotal.WithLabelValues(outcome).Inc()
}

// statusClass buckets an HTTP-shaped status code into the label cardinality
// Prometheus best practice calls for ("2xx", "4xx", ...) rather than one
// series per exact code.
func statusClass(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "other"
	}
}
