package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the overlay service.
type Metrics struct {
	// Upstream API metrics.
	UpstreamRequests *prometheus.CounterVec   // labels: source={nws,usgs,fema,bia,nhd}, outcome={success,error}
	UpstreamDuration *prometheus.HistogramVec // labels: source
	QueryCache       *prometheus.CounterVec   // labels: result={hit,miss}

	// Overlay lifecycle metrics.
	RefreshTicks    *prometheus.CounterVec // labels: overlay, outcome={applied,stale,failed}
	ViewportReloads *prometheus.CounterVec // labels: overlay, outcome={issued,skipped}
	LoadErrors      *prometheus.CounterVec // labels: overlay
	OverlayFeatures *prometheus.GaugeVec   // labels: overlay

	ActiveMaps         prometheus.Gauge
	SessionsExpired    prometheus.Counter
	SnapshotsPublished prometheus.Counter
}

// NewMetrics creates and registers all overlay metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.UpstreamRequests,
		m.UpstreamDuration,
		m.QueryCache,
		m.RefreshTicks,
		m.ViewportReloads,
		m.LoadErrors,
		m.OverlayFeatures,
		m.ActiveMaps,
		m.SessionsExpired,
		m.SnapshotsPublished,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		UpstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlays",
			Name:      "upstream_requests_total",
			Help:      "Upstream API requests by source and outcome.",
		}, []string{"source", "outcome"}),
		UpstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "overlays",
			Name:      "upstream_request_duration_seconds",
			Help:      "Upstream API request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"source"}),
		QueryCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlays",
			Name:      "query_cache_total",
			Help:      "ArcGIS query cache lookups by result.",
		}, []string{"result"}),
		RefreshTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlays",
			Name:      "refresh_ticks_total",
			Help:      "Refresh ticks by overlay and outcome.",
		}, []string{"overlay", "outcome"}),
		ViewportReloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlays",
			Name:      "viewport_reloads_total",
			Help:      "View-settled reload decisions by overlay and outcome.",
		}, []string{"overlay", "outcome"}),
		LoadErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "overlays",
			Name:      "load_errors_total",
			Help:      "Failed initial or interactive overlay loads.",
		}, []string{"overlay"}),
		OverlayFeatures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "overlays",
			Name:      "overlay_features",
			Help:      "Features currently displayed per overlay, last write wins across sessions.",
		}, []string{"overlay"}),
		ActiveMaps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "overlays",
			Name:      "active_maps",
			Help:      "Open map sessions.",
		}),
		SessionsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlays",
			Name:      "sessions_expired_total",
			Help:      "Map sessions closed after going idle.",
		}),
		SnapshotsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "overlays",
			Name:      "snapshots_published_total",
			Help:      "Overlay snapshots written to the snapshot topic.",
		}),
	}
}
