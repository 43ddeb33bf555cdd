// Package telemetry exposes Prometheus metrics for the API and the solver.
package telemetry

import (
	"net/http"

	"github.com/fentz26/ordo/internal/solver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// APIRequestsTotal counts HTTP requests by method, route and status.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordo_api_requests_total",
		Help: "Total HTTP requests handled by the API.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration observes HTTP request latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ordo_api_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})

	// APIActiveConnections is the number of in-flight requests.
	APIActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordo_api_active_connections",
		Help: "In-flight HTTP requests.",
	})

	SolverTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordo_solver_ticks_total",
		Help: "Optimizer iterations evaluated.",
	})

	SolverAcceptedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ordo_solver_accepted_total",
		Help: "Optimizer candidates accepted.",
	})

	SolverExpectedValue = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ordo_solver_expected_value",
		Help: "Expected value of the current assignment.",
	})

	// CommitResultsTotal counts committed goals by result (success, failure).
	CommitResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ordo_commit_results_total",
		Help: "Goal schedules recorded by commit, by result.",
	}, []string{"result"})
)

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observe is a solver.Observer that feeds the solver metrics.
func Observe(snap solver.Snapshot) {
	SolverTicksTotal.Inc()
	if snap.LastAccepted {
		SolverAcceptedTotal.Inc()
	}
	SolverExpectedValue.Set(snap.Value)
}

// RecordCommit counts the outcome of a commit.
func RecordCommit(report solver.CommitReport) {
	CommitResultsTotal.WithLabelValues("success").Add(float64(len(report.Committed)))
	CommitResultsTotal.WithLabelValues("failure").Add(float64(len(report.Failed)))
}
