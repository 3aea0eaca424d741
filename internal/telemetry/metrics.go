package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the Prometheus instruments for the refresh pipeline and the
// caches. One instance per process, owned by the engine manager and exposed
// on /metrics.
type Metrics struct {
	registry *prometheus.Registry

	FetchesTotal    *prometheus.CounterVec // labels: endpoint, result
	CacheHits       *prometheus.CounterVec // label: cache
	CacheMisses     *prometheus.CounterVec // label: cache
	RefreshCycles   *prometheus.CounterVec // label: result
	RefreshDuration prometheus.Histogram
	ItemsSkipped    *prometheus.CounterVec // label: reason
	TrackedItems    prometheus.Gauge
}

// NewMetrics creates and registers all instruments on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		FetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flipscan_fetches_total",
				Help: "Upstream fetches by endpoint and result",
			},
			[]string{"endpoint", "result"},
		),

		CacheHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flipscan_cache_hits_total",
				Help: "Cache hits by cache name",
			},
			[]string{"cache"},
		),

		CacheMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flipscan_cache_misses_total",
				Help: "Cache misses by cache name",
			},
			[]string{"cache"},
		),

		RefreshCycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flipscan_refresh_cycles_total",
				Help: "Refresh orchestrator cycles by result",
			},
			[]string{"result"},
		),

		RefreshDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "flipscan_refresh_duration_seconds",
				Help:    "Duration of one full refresh cycle",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),

		ItemsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flipscan_items_skipped_total",
				Help: "Items skipped during refresh by reason",
			},
			[]string{"reason"},
		),

		TrackedItems: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "flipscan_tracked_items",
				Help: "Number of currently cached recommenders",
			},
		),
	}

	m.registry.MustRegister(
		m.FetchesTotal,
		m.CacheHits,
		m.CacheMisses,
		m.RefreshCycles,
		m.RefreshDuration,
		m.ItemsSkipped,
		m.TrackedItems,
	)

	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Gather exposes the underlying registry for tests.
func (m *Metrics) Gather() prometheus.Gatherer {
	return m.registry
}
