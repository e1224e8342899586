// Package prometheus provides the Prometheus implementations of the
// interfaces in pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/fsbroker/pkg/metrics"
)

// brokerMetrics is the Prometheus implementation of metrics.BrokerMetrics.
type brokerMetrics struct {
	requestsTotal          *prometheus.CounterVec
	requestDuration        *prometheus.HistogramVec
	requestsInFlight       *prometheus.GaugeVec
	requestsRejected       *prometheus.CounterVec
	bytesTransferred       *prometheus.CounterVec
	openFiles              prometheus.Gauge
	activeConnections      prometheus.Gauge
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsForceClosed prometheus.Counter
}

// NewBrokerMetrics creates a Prometheus-backed BrokerMetrics.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry
// not called). Must be called at most once per registry.
func NewBrokerMetrics() metrics.BrokerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopBrokerMetrics()
	}

	reg := metrics.GetRegistry()

	return &brokerMetrics{
		requestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsbroker_requests_total",
				Help: "Total number of broker requests by operation and response code",
			},
			[]string{"operation", "code"},
		),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "fsbroker_request_duration_milliseconds",
				Help: "Time from frame receipt to response, in milliseconds",
				Buckets: []float64{
					0.5,   // 500us
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"operation"},
		),
		requestsInFlight: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "fsbroker_requests_in_flight",
				Help: "Current number of requests queued or running on the worker pool",
			},
			[]string{"operation"},
		),
		requestsRejected: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsbroker_requests_rejected_total",
				Help: "Requests answered by the adapter without reaching the broker",
			},
			[]string{"operation", "reason"},
		),
		bytesTransferred: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "fsbroker_bytes_transferred_total",
				Help: "Total frame bytes read from and written to clients",
			},
			[]string{"direction"},
		),
		openFiles: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fsbroker_open_files",
				Help: "Current number of open file descriptors",
			},
		),
		activeConnections: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "fsbroker_active_connections",
				Help: "Current number of client connections",
			},
		),
		connectionsAccepted: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fsbroker_connections_accepted_total",
				Help: "Total number of client connections accepted",
			},
		),
		connectionsClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fsbroker_connections_closed_total",
				Help: "Total number of client connections closed",
			},
		),
		connectionsForceClosed: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "fsbroker_connections_force_closed_total",
				Help: "Total number of connections force-closed after the shutdown timeout",
			},
		),
	}
}

func (m *brokerMetrics) RecordRequest(operation string, code string, duration time.Duration) {
	m.requestsTotal.WithLabelValues(operation, code).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(float64(duration) / float64(time.Millisecond))
}

func (m *brokerMetrics) RecordRequestStart(operation string) {
	m.requestsInFlight.WithLabelValues(operation).Inc()
}

func (m *brokerMetrics) RecordRequestEnd(operation string) {
	m.requestsInFlight.WithLabelValues(operation).Dec()
}

func (m *brokerMetrics) RecordRejected(operation string, reason string) {
	m.requestsRejected.WithLabelValues(operation, reason).Inc()
}

func (m *brokerMetrics) RecordBytesTransferred(direction string, bytes uint64) {
	m.bytesTransferred.WithLabelValues(direction).Add(float64(bytes))
}

func (m *brokerMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *brokerMetrics) SetOpenFiles(count int) {
	m.openFiles.Set(float64(count))
}

func (m *brokerMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *brokerMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *brokerMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}
