package config

import (
	"github.com/marmos91/fsbroker/pkg/metrics"
	promMetrics "github.com/marmos91/fsbroker/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// BrokerMetrics is the collector for the fsbroker adapter (never nil, uses noop if disabled)
	BrokerMetrics metrics.BrokerMetrics

	// StoreMetrics is the collector for the storage backend (never nil, uses noop if disabled)
	StoreMetrics metrics.StoreMetrics
}

// InitializeMetrics creates all metrics components based on configuration.
//
// If metrics are enabled it initializes the global Prometheus registry,
// creates the HTTP server and Prometheus-backed collectors. Otherwise it
// returns a nil server and no-op collectors.
//
// Must be called at most once per process when metrics are enabled.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			BrokerMetrics: metrics.NewNoopBrokerMetrics(),
			StoreMetrics:  metrics.NewNoopStoreMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:        server,
		BrokerMetrics: promMetrics.NewBrokerMetrics(),
		StoreMetrics:  promMetrics.NewStoreMetrics(cfg.Store.Type),
	}
}
