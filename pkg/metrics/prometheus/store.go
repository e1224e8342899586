package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/fsbroker/pkg/metrics"
)

// storeMetrics is the Prometheus implementation of metrics.StoreMetrics.
// Every series carries the backend name as a constant label.
type storeMetrics struct {
	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	bytesTotal        *prometheus.CounterVec
}

// NewStoreMetrics creates a Prometheus-backed StoreMetrics for backend
// ("memory", "fs", "badger", "s3").
//
// Returns a no-op implementation if metrics are not enabled.
func NewStoreMetrics(backend string) metrics.StoreMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopStoreMetrics()
	}

	reg := metrics.GetRegistry()
	labels := prometheus.Labels{"backend": backend}

	return &storeMetrics{
		operationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "fsbroker_store_operations_total",
				Help:        "Total number of storage backend calls by operation and status",
				ConstLabels: labels,
			},
			[]string{"operation", "status"},
		),
		operationDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:        "fsbroker_store_operation_duration_seconds",
				Help:        "Duration of storage backend calls in seconds",
				ConstLabels: labels,
				Buckets: []float64{
					0.0001, // 100us
					0.001,  // 1ms
					0.01,   // 10ms
					0.1,    // 100ms
					1.0,    // 1s
					10.0,   // 10s
				},
			},
			[]string{"operation"},
		),
		bytesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name:        "fsbroker_store_bytes_total",
				Help:        "Total payload bytes read from or appended to the backend",
				ConstLabels: labels,
			},
			[]string{"operation"},
		),
	}
}

func (m *storeMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.operationsTotal.WithLabelValues(operation, status).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *storeMetrics) RecordBytes(operation string, bytes int) {
	m.bytesTotal.WithLabelValues(operation).Add(float64(bytes))
}
