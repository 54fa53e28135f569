package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for the verification flow.
type Metrics struct {
	Initializations *prometheus.CounterVec
	Mutations       *prometheus.CounterVec
	Rollbacks       *prometheus.CounterVec
	Submissions     prometheus.Counter
	ReviewDecisions *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
	ActiveSessions  prometheus.Gauge
	EventsPublished *prometheus.CounterVec
}

// New registers the verification metrics on the default registry.
func New() *Metrics {
	return newMetrics(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry registers on reg; tests use a fresh registry per case.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(promauto.With(reg))
}

func newMetrics(f promauto.Factory) *Metrics {
	return &Metrics{
		Initializations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobirides_verification_initializations_total",
			Help: "Verification initializations by outcome (loaded, created, failed)",
		}, []string{"outcome"}),
		Mutations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobirides_verification_mutations_total",
			Help: "Controller mutations by action and outcome",
		}, []string{"action", "outcome"}),
		Rollbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobirides_verification_rollbacks_total",
			Help: "Optimistic local changes rolled back after a persistence failure",
		}, []string{"action"}),
		Submissions: f.NewCounter(prometheus.CounterOpts{
			Name: "mobirides_verification_submissions_total",
			Help: "Verifications submitted for review",
		}),
		ReviewDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobirides_verification_review_decisions_total",
			Help: "Back-office review decisions by decision",
		}, []string{"decision"}),
		StoreDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mobirides_verification_store_duration_seconds",
			Help:    "Latency of verification store calls",
			Buckets: latencyBuckets,
		}, []string{"operation"}),
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "mobirides_verification_active_sessions",
			Help: "Verification controllers currently held by the session registry",
		}),
		EventsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mobirides_verification_status_events_total",
			Help: "Status change events by outcome (published, failed)",
		}, []string{"outcome"}),
	}
}

func (m *Metrics) IncInitialization(outcome string) {
	m.Initializations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncMutation(action, outcome string) {
	m.Mutations.WithLabelValues(action, outcome).Inc()
}

func (m *Metrics) IncRollback(action string) {
	m.Rollbacks.WithLabelValues(action).Inc()
}

func (m *Metrics) IncSubmission() {
	m.Submissions.Inc()
}

func (m *Metrics) IncReviewDecision(decision string) {
	m.ReviewDecisions.WithLabelValues(decision).Inc()
}

// ObserveStore records a store call. Call with time.Now() at the start.
func (m *Metrics) ObserveStore(operation string, start time.Time) {
	m.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetActiveSessions(n int) {
	m.ActiveSessions.Set(float64(n))
}

func (m *Metrics) IncEventPublished(outcome string) {
	m.EventsPublished.WithLabelValues(outcome).Inc()
}
