// Package metrics holds the Prometheus instruments of the DSAR service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides observability for the request lifecycle and expiry runs.
// All methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Request status transitions by target status and trigger
	RequestTransitions *prometheus.CounterVec

	// Failed deliveries to privacy officers
	DPONotificationFailures prometheus.Counter

	// Expired scopes handled by strategy and outcome
	ExpiredScopes *prometheus.CounterVec

	// Duration of a full expiry run by strategy
	ExpiryRunDuration *prometheus.HistogramVec

	// Queue jobs by type and outcome
	Jobs *prometheus.CounterVec
}

// New creates a Metrics instance registered with reg.
// Pass prometheus.DefaultRegisterer in binaries and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RequestTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dsar_request_transitions_total",
			Help: "Data request status transitions by target status and trigger",
		}, []string{"status", "trigger"}),

		DPONotificationFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dsar_dpo_notification_failures_total",
			Help: "Notifications to privacy officers that could not be delivered",
		}),

		ExpiredScopes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dsar_expired_scopes_total",
			Help: "Expired scopes handled by strategy and outcome",
		}, []string{"strategy", "outcome"}), // outcome: "deleted", "failed"

		ExpiryRunDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dsar_expiry_run_duration_seconds",
			Help:    "Duration of expired scope deletion runs by strategy",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"strategy"}),

		Jobs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dsar_jobs_total",
			Help: "Queue jobs handled by type and outcome",
		}, []string{"job_type", "outcome"}),
	}
}

// IncrementTransition records a request reaching status.
func (m *Metrics) IncrementTransition(status, trigger string) {
	if m != nil {
		m.RequestTransitions.WithLabelValues(status, trigger).Inc()
	}
}

// IncrementDPONotificationFailure records one failed delivery to an officer.
func (m *Metrics) IncrementDPONotificationFailure() {
	if m != nil {
		m.DPONotificationFailures.Inc()
	}
}

// IncrementExpiredScope records the outcome of purging one scope.
func (m *Metrics) IncrementExpiredScope(strategy, outcome string) {
	if m != nil {
		m.ExpiredScopes.WithLabelValues(strategy, outcome).Inc()
	}
}

// ObserveExpiryRun records the duration of a deletion run.
func (m *Metrics) ObserveExpiryRun(strategy string, d time.Duration) {
	if m != nil {
		m.ExpiryRunDuration.WithLabelValues(strategy).Observe(d.Seconds())
	}
}

// IncrementJob records a handled queue job.
func (m *Metrics) IncrementJob(jobType, outcome string) {
	if m != nil {
		m.Jobs.WithLabelValues(jobType, outcome).Inc()
	}
}

// Handler returns the scrape endpoint for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
