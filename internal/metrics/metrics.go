// Package metrics provides Prometheus metrics for presyowatcher.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// FetchTotal counts individual candidate fetch attempts.
	FetchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presyo",
			Name:      "fetch_total",
			Help:      "Total number of report fetch attempts by result",
		},
		[]string{"result"},
	)

	// AcquireTotal counts per-day acquisition outcomes.
	AcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presyo",
			Name:      "acquire_total",
			Help:      "Total number of daily report acquisitions by outcome",
		},
		[]string{"outcome"},
	)

	// ObservationsPerDocument observes how many prices each report yields.
	ObservationsPerDocument = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "presyo",
			Name:      "observations_per_document",
			Help:      "Distribution of prices recovered per report",
			Buckets:   []float64{0, 10, 25, 50, 100, 150, 200, 300, 500},
		},
	)

	// IntegrationRuns counts integration runs by status.
	IntegrationRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presyo",
			Name:      "integration_runs_total",
			Help:      "Total number of integration runs by status",
		},
		[]string{"status"},
	)

	// IntegrationDuration measures integration run duration.
	IntegrationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "presyo",
			Name:      "integration_duration_seconds",
			Help:      "Duration of integration runs in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	// AlertsTotal counts dispatched price movement alerts.
	AlertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "presyo",
			Name:      "alerts_total",
			Help:      "Total number of price movement alerts by status",
		},
		[]string{"status"},
	)
)

// RecordFetch records one candidate fetch attempt.
func RecordFetch(result string) {
	FetchTotal.WithLabelValues(result).Inc()
}

// RecordAcquire records one day's acquisition outcome and, for parsed
// reports, the number of prices recovered.
func RecordAcquire(outcome string, observations int) {
	AcquireTotal.WithLabelValues(outcome).Inc()
	if outcome == "parsed" {
		ObservationsPerDocument.Observe(float64(observations))
	}
}

// RecordIntegration records a finished integration run.
func RecordIntegration(status string, seconds float64) {
	IntegrationRuns.WithLabelValues(status).Inc()
	IntegrationDuration.Observe(seconds)
}

// RecordAlert records an alert dispatch.
func RecordAlert(status string) {
	AlertsTotal.WithLabelValues(status).Inc()
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
