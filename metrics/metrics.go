// Package metrics provides Prometheus metrics for the HTTP surface and the cycle engine.
//
// HTTP:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//   - rate_limiter_buckets_total: Gauge of tracked client buckets
//
// Engine:
//   - cycle_administrations_logged_total: Counter with site label
//   - cycle_open_cycles: Gauge, 0 or 1
//   - cycle_residual_mg: Gauge with substance label, refreshed with the dashboard
//   - cycle_dashboard_refresh_duration_seconds: Histogram
//   - cycle_persistence_saves_total: Counter with result label
//
// All metrics are registered with the Prometheus default registry during package initialization.
package metrics

import (
	"github.com/giygas/cycletracker/aggregation"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen in last ~5 minutes)",
		},
	)

	AdministrationsLogged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cycle_administrations_logged_total",
			Help: "Administrations logged into the open cycle",
		},
		[]string{"site"},
	)

	OpenCycles = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "cycle_open_cycles",
			Help: "Number of open cycles (0 or 1)",
		},
	)

	ResidualLevels = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cycle_residual_mg",
			Help: "Residual amount per substance in the open cycle at the last dashboard refresh",
		},
		[]string{"substance"},
	)

	DashboardRefreshDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cycle_dashboard_refresh_duration_seconds",
			Help:    "Time spent rebuilding the dashboard",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		},
	)

	PersistenceSaves = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cycle_persistence_saves_total",
			Help: "Save attempts by result",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(RateLimiterBucketsTotal)
	prometheus.MustRegister(AdministrationsLogged)
	prometheus.MustRegister(OpenCycles)
	prometheus.MustRegister(ResidualLevels)
	prometheus.MustRegister(DashboardRefreshDuration)
	prometheus.MustRegister(PersistenceSaves)
}

// SetResidualLevels replaces the residual gauges with levels. Substances that
// dropped out since the last call are removed.
func SetResidualLevels(levels []aggregation.SubstanceAmount) {
	ResidualLevels.Reset()
	for _, l := range levels {
		name := l.Name
		if name == "" {
			name = l.SubstanceID.String()
		}
		ResidualLevels.WithLabelValues(name).Set(l.AmountMg)
	}
}

// RecordSave counts a persistence attempt
func RecordSave(err error) {
	if err != nil {
		PersistenceSaves.WithLabelValues("failure").Inc()
		return
	}
	PersistenceSaves.WithLabelValues("success").Inc()
}
