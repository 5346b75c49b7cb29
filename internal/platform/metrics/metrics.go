package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine collectors shared by every core component.
// Labels carry the component ("versionchain", "documents", ...) and operation.
// All methods are safe on a nil receiver.
type Metrics struct {
	OperationDuration    *prometheus.HistogramVec
	ConflictRetries      *prometheus.CounterVec
	ConstraintViolations *prometheus.CounterVec
	VersionsWritten      *prometheus.CounterVec
	Transitions          *prometheus.CounterVec
	SnapshotsCaptured    prometheus.Counter
	IncompleteProfiles   prometheus.Counter
	Verifications        *prometheus.CounterVec
	OutboxPublished      prometheus.Counter
	OutboxFailures       prometheus.Counter
}

// New creates the engine collectors on reg. Pass prometheus.DefaultRegisterer
// in production and a fresh registry in tests.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OperationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lendus_operation_duration_seconds",
			Help:    "Duration of core engine operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"component", "operation"}),
		ConflictRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lendus_conflict_retries_total",
			Help: "Units of work retried after a concurrent modification",
		}, []string{"component"}),
		ConstraintViolations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lendus_constraint_violations_total",
			Help: "Unique-current or unique-active constraint rejections",
		}, []string{"component"}),
		VersionsWritten: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lendus_versions_written_total",
			Help: "New current versions written per component",
		}, []string{"component"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lendus_application_transitions_total",
			Help: "Application status transitions by target status",
		}, []string{"to"}),
		SnapshotsCaptured: f.NewCounter(prometheus.CounterOpts{
			Name: "lendus_snapshots_captured_total",
			Help: "Application snapshots captured at submission",
		}),
		IncompleteProfiles: f.NewCounter(prometheus.CounterOpts{
			Name: "lendus_incomplete_profiles_total",
			Help: "Submissions refused because required profile slots were missing",
		}),
		Verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lendus_verifications_total",
			Help: "Verification outcomes recorded by method and status",
		}, []string{"method", "status"}),
		OutboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "lendus_outbox_published_total",
			Help: "Outbox entries delivered to the event sink",
		}),
		OutboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "lendus_outbox_failures_total",
			Help: "Outbox delivery attempts that failed",
		}),
	}
}

// ObserveOperation records the duration of an operation started at start.
func (m *Metrics) ObserveOperation(component, operation string, start time.Time) {
	if m == nil {
		return
	}
	m.OperationDuration.WithLabelValues(component, operation).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementConflictRetry(component string) {
	if m == nil {
		return
	}
	m.ConflictRetries.WithLabelValues(component).Inc()
}

func (m *Metrics) IncrementConstraintViolation(component string) {
	if m == nil {
		return
	}
	m.ConstraintViolations.WithLabelValues(component).Inc()
}

func (m *Metrics) IncrementVersionsWritten(component string) {
	if m == nil {
		return
	}
	m.VersionsWritten.WithLabelValues(component).Inc()
}

func (m *Metrics) IncrementTransition(to string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to).Inc()
}

func (m *Metrics) IncrementSnapshotCaptured() {
	if m == nil {
		return
	}
	m.SnapshotsCaptured.Inc()
}

func (m *Metrics) IncrementIncompleteProfile() {
	if m == nil {
		return
	}
	m.IncompleteProfiles.Inc()
}

func (m *Metrics) IncrementVerification(method, status string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(method, status).Inc()
}

func (m *Metrics) IncrementOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.OutboxPublished.Add(float64(n))
}

func (m *Metrics) IncrementOutboxFailure() {
	if m == nil {
		return
	}
	m.OutboxFailures.Inc()
}
