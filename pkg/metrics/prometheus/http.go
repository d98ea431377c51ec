package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittohttp/pkg/metrics"
)

// httpMetrics is the Prometheus implementation of metrics.HTTPMetrics.
type httpMetrics struct {
	requestsTotal       *prometheus.CounterVec
	requestDuration     prometheus.Histogram
	requestsInFlight    prometheus.Gauge
	bytesSent           *prometheus.CounterVec
	queueDepth          prometheus.Gauge
	activeConnections   prometheus.Gauge
	connectionsAccepted prometheus.Counter
	connectionsClosed   *prometheus.CounterVec
	connectionsRejected *prometheus.CounterVec
}

// NewHTTPMetrics creates a Prometheus-backed HTTPMetrics on the global
// registry.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not
// called).
func NewHTTPMetrics() metrics.HTTPMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopHTTPMetrics()
	}
	return NewHTTPMetricsWith(metrics.GetRegistry())
}

// NewHTTPMetricsWith registers the HTTP metrics on reg. Registering twice on
// the same registry panics.
func NewHTTPMetricsWith(reg prometheus.Registerer) metrics.HTTPMetrics {
	factory := promauto.With(reg)

	return &httpMetrics{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittohttp_requests_total",
				Help: "Total number of HTTP requests by status code",
			},
			[]string{"status"},
		),
		requestDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittohttp_request_duration_seconds",
				Help: "Time from request enqueue to connection close",
				Buckets: []float64{
					0.001, // 1ms
					0.005, // 5ms
					0.025, // 25ms
					0.1,   // 100ms
					0.5,   // 500ms
					2.5,   // 2.5s
					10,    // 10s
					60,    // 1m
				},
			},
		),
		requestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittohttp_requests_in_flight",
				Help: "Current number of requests being served by workers",
			},
		),
		bytesSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittohttp_bytes_sent_total",
				Help: "Total bytes sent to clients",
			},
			[]string{"kind"}, // header, body or error
		),
		queueDepth: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittohttp_queue_depth",
				Help: "Requests waiting for a worker",
			},
		),
		activeConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dittohttp_active_connections",
				Help: "Current number of connections in the engine table",
			},
		),
		connectionsAccepted: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dittohttp_connections_accepted_total",
				Help: "Total number of connections accepted",
			},
		),
		connectionsClosed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittohttp_connections_closed_total",
				Help: "Total number of connections closed by reason",
			},
			[]string{"reason"},
		),
		connectionsRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittohttp_connections_rejected_total",
				Help: "Total number of connections shed right after accept",
			},
			[]string{"reason"},
		),
	}
}

func (m *httpMetrics) RecordRequest(status int, duration time.Duration) {
	m.requestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	m.requestDuration.Observe(duration.Seconds())
}

func (m *httpMetrics) RecordRequestStart() {
	m.requestsInFlight.Inc()
}

func (m *httpMetrics) RecordRequestEnd() {
	m.requestsInFlight.Dec()
}

func (m *httpMetrics) RecordBytesSent(kind string, bytes int64) {
	m.bytesSent.WithLabelValues(kind).Add(float64(bytes))
}

func (m *httpMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}

func (m *httpMetrics) SetActiveConnections(count int) {
	m.activeConnections.Set(float64(count))
}

func (m *httpMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *httpMetrics) RecordConnectionClosed(reason string) {
	m.connectionsClosed.WithLabelValues(reason).Inc()
}

func (m *httpMetrics) RecordConnectionRejected(reason string) {
	m.connectionsRejected.WithLabelValues(reason).Inc()
}
