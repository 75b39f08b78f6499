package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PaymentMetrics records webhook and reconciliation outcomes.
type PaymentMetrics struct {
	webhookEvents   *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	reconcileTime   *prometheus.HistogramVec
}

// NewPaymentMetrics registers the payment metrics on the provided registerer.
func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Verified Stripe webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "reconciliations_total",
		Help: "Intent reconciliations by result.",
	}, []string{"result"})
	reconcileTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "reconcile_duration_seconds",
		Help:    "Duration of intent reconciliations in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
	reg.MustRegister(webhookEvents, reconciliations, reconcileTime)
	return &PaymentMetrics{
		webhookEvents:   webhookEvents,
		reconciliations: reconciliations,
		reconcileTime:   reconcileTime,
	}
}

// ObserveWebhook counts a webhook delivery outcome.
func (m *PaymentMetrics) ObserveWebhook(eventType, outcome string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveReconciliation counts a reconciliation result.
func (m *PaymentMetrics) ObserveReconciliation(result string) {
	if m == nil || m.reconciliations == nil {
		return
	}
	m.reconciliations.WithLabelValues(normalizeLabel(result)).Inc()
}

// ObserveReconcileDuration records how long a reconciliation took.
func (m *PaymentMetrics) ObserveReconcileDuration(operation string, duration time.Duration) {
	if m == nil || m.reconcileTime == nil {
		return
	}
	m.reconcileTime.WithLabelValues(normalizeLabel(operation)).Observe(duration.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
