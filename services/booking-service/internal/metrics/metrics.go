package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for booking attempts.
const (
	OutcomeCreated      = "created"
	OutcomeReplayed     = "replayed"
	OutcomeConflict     = "conflict"
	OutcomeRejected     = "rejected"
	OutcomeClosed       = "closed"
	OutcomeInvalid      = "invalid"
	OutcomeError        = "error"
	OperationBook       = "book"
	OperationReschedule = "reschedule"
)

// BookingMetrics exposes counters/histograms for the booking engine.
type BookingMetrics struct {
	bookingsTotal    *prometheus.CounterVec
	gridBuildSeconds prometheus.Histogram
	outboxPublished  prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "studiobook",
			Subsystem: "booking",
			Name:      "attempts_total",
			Help:      "Booking and reschedule attempts by outcome",
		}, []string{"operation", "outcome"}),
		gridBuildSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "studiobook",
			Subsystem: "booking",
			Name:      "grid_build_seconds",
			Help:      "Time spent computing a weekly slot grid",
			Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
		}),
		outboxPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "studiobook",
			Subsystem: "outbox",
			Name:      "published_total",
			Help:      "Outbox events delivered to Kafka",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.gridBuildSeconds, m.outboxPublished)
	return m
}

func (m *BookingMetrics) ObserveAttempt(operation, outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *BookingMetrics) ObserveGridBuild(seconds float64) {
	if m == nil {
		return
	}
	m.gridBuildSeconds.Observe(seconds)
}

func (m *BookingMetrics) ObserveOutboxPublished(n int) {
	if m == nil {
		return
	}
	m.outboxPublished.Add(float64(n))
}
