package metrics

import "github.com/prometheus/client_golang/prometheus"

// LifecycleMetrics counts reservation and waitlist transitions.
type LifecycleMetrics struct {
	reservations *prometheus.CounterVec
	payments     *prometheus.CounterVec
	promotions   *prometheus.CounterVec
}

func NewLifecycleMetrics(reg prometheus.Registerer) *LifecycleMetrics {
	if reg == nil {
		return &LifecycleMetrics{}
	}
	reservations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reservation_transitions_total",
		Help:      "Reservation state transitions by target status.",
	}, []string{"status"})
	payments := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payment_transitions_total",
		Help:      "Payment state transitions by target status.",
	}, []string{"status"})
	promotions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "waitlist_promotions_total",
		Help:      "Outcomes of waitlist promotion after a slot was freed.",
	}, []string{"outcome"})
	reg.MustRegister(reservations, payments, promotions)
	return &LifecycleMetrics{
		reservations: reservations,
		payments:     payments,
		promotions:   promotions,
	}
}

func (m *LifecycleMetrics) Reservation(status string) {
	if m == nil || m.reservations == nil {
		return
	}
	m.reservations.WithLabelValues(normalizeLabel(status)).Inc()
}

func (m *LifecycleMetrics) Payment(status string) {
	if m == nil || m.payments == nil {
		return
	}
	m.payments.WithLabelValues(normalizeLabel(status)).Inc()
}

// Promotion outcomes: none, notified, converted, convert_failed, error.
func (m *LifecycleMetrics) Promotion(outcome string) {
	if m == nil || m.promotions == nil {
		return
	}
	m.promotions.WithLabelValues(normalizeLabel(outcome)).Inc()
}
