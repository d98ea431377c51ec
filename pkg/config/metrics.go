package config

import (
	"github.com/marmos91/dittohttp/pkg/metrics"
	promMetrics "github.com/marmos91/dittohttp/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server exposes /metrics and /healthz (nil if disabled)
	Server *metrics.Server

	// HTTPMetrics is the collector for the HTTP adapter (never nil, no-op if disabled)
	HTTPMetrics metrics.HTTPMetrics
}

// InitializeMetrics creates the metrics components described by cfg.
//
// If metrics are enabled the global Prometheus registry is initialized and
// Prometheus-backed collectors are returned; otherwise the server is nil and
// the collectors are no-ops.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			HTTPMetrics: metrics.NewNoopHTTPMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Address: cfg.Metrics.Address,
		Port:    cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:      server,
		HTTPMetrics: promMetrics.NewHTTPMetrics(),
	}
}
