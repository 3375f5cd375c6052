// Package metrics provides Prometheus metrics collection for ingestgate.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds all Prometheus metrics for ingestgate.
type Collector struct {
	// Request metrics
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	// Decision metrics
	DecisionsTotal *prometheus.CounterVec
	RateLimitHits  *prometheus.CounterVec
	BlockedPaths   *prometheus.CounterVec

	// Counter table metrics
	LimiterEntries prometheus.Gauge

	// Upstream metrics
	UpstreamDuration *prometheus.HistogramVec
	UpstreamErrors   *prometheus.CounterVec

	// Config metrics
	ConfigReloads      prometheus.Counter
	ConfigReloadErrors prometheus.Counter
	ConfigLastReload   prometheus.Gauge
}

// New creates a new metrics collector registered on the default registry.
func New() *Collector {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates a new metrics collector with a custom registry.
// Useful for testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingestgate",
				Name:      "requests_total",
				Help:      "Total number of requests processed",
			},
			[]string{"method", "namespace", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ingestgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "namespace", "status"},
		),
		RequestsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ingestgate",
				Name:      "requests_in_flight",
				Help:      "Number of requests currently being processed",
			},
		),

		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingestgate",
				Name:      "decisions_total",
				Help:      "Total admission decisions by tag",
			},
			[]string{"tag", "namespace"},
		),
		RateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingestgate",
				Name:      "rate_limit_hits_total",
				Help:      "Total number of rate limit rejections",
			},
			[]string{"namespace"},
		),
		BlockedPaths: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingestgate",
				Name:      "blocked_paths_total",
				Help:      "Total ingest requests blocked by the allow-list",
			},
			[]string{"namespace"},
		),

		LimiterEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ingestgate",
				Name:      "limiter_entries",
				Help:      "Live entries in the in-memory counter table",
			},
		),

		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ingestgate",
				Name:      "upstream_duration_seconds",
				Help:      "Upstream request duration in seconds",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
			},
			[]string{"upstream", "status"},
		),
		UpstreamErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ingestgate",
				Name:      "upstream_errors_total",
				Help:      "Total number of upstream errors",
			},
			[]string{"upstream"},
		),

		ConfigReloads: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ingestgate",
				Name:      "config_reloads_total",
				Help:      "Total number of successful config reloads",
			},
		),
		ConfigReloadErrors: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ingestgate",
				Name:      "config_reload_errors_total",
				Help:      "Total number of config reload errors",
			},
		),
		ConfigLastReload: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "ingestgate",
				Name:      "config_last_reload_timestamp",
				Help:      "Unix timestamp of last successful config reload",
			},
		),
	}
}
