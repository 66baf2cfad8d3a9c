package server

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// dashboard.
type Metrics struct {
	RequestsTotal  *prometheus.CounterVec   // labels: route, status
	RenderDuration *prometheus.HistogramVec // labels: chart
	RenderErrors   *prometheus.CounterVec   // labels: chart

	DatasetRows   prometheus.Gauge
	DatasetStates prometheus.Gauge
}

// NewMetrics creates and registers all dashboard metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flucast",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route pattern and status code.",
		}, []string{"route", "status"}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "flucast",
			Name:      "chart_render_duration_seconds",
			Help:      "Chart rendering duration by chart kind.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"chart"}),
		RenderErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "flucast",
			Name:      "chart_render_errors_total",
			Help:      "Failed chart renders by chart kind.",
		}, []string{"chart"}),
		DatasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flucast",
			Name:      "dataset_rows",
			Help:      "State-week rows in the loaded feature table.",
		}),
		DatasetStates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "flucast",
			Name:      "dataset_states",
			Help:      "States present in the loaded feature table.",
		}),
	}

	prometheus.MustRegister(
		m.RequestsTotal,
		m.RenderDuration,
		m.RenderErrors,
		m.DatasetRows,
		m.DatasetStates,
	)

	return m
}

// NewMetricsForTesting creates Metrics with a fresh registry to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RequestsTotal:  prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flucast", Name: "http_requests_total"}, []string{"route", "status"}),
		RenderDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: "flucast", Name: "chart_render_duration_seconds"}, []string{"chart"}),
		RenderErrors:   prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: "flucast", Name: "chart_render_errors_total"}, []string{"chart"}),
		DatasetRows:    prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "flucast", Name: "dataset_rows"}),
		DatasetStates:  prometheus.NewGauge(prometheus.GaugeOpts{Namespace: "flucast", Name: "dataset_states"}),
	}
}
