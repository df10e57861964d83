package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Finalize outcomes.
const (
	OutcomeTransitioned = "transitioned"
	OutcomeNoop         = "noop"
	OutcomeError        = "error"
)

// FinalizeMetrics instruments the order finalization engine.
type FinalizeMetrics struct {
	total           *prometheus.CounterVec
	duration        prometheus.Histogram
	receiptFailures prometheus.Counter
}

// NewFinalizeMetrics registers the finalization collectors.
func NewFinalizeMetrics(reg prometheus.Registerer) *FinalizeMetrics {
	if reg == nil {
		return &FinalizeMetrics{}
	}
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "finalize_total",
		Help:      "Order finalization calls by outcome.",
	}, []string{"outcome"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "finalize_duration_seconds",
		Help:      "Duration of order finalization transactions.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	})
	receiptFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "receipt_render_failures_total",
		Help:      "Receipts that failed to render during finalization.",
	})
	reg.MustRegister(total, duration, receiptFailures)
	return &FinalizeMetrics{total: total, duration: duration, receiptFailures: receiptFailures}
}

// Observe records one finalize call.
func (m *FinalizeMetrics) Observe(outcome string, elapsed time.Duration) {
	if m == nil || m.total == nil {
		return
	}
	m.total.WithLabelValues(normalizeLabel(outcome)).Inc()
	m.duration.Observe(elapsed.Seconds())
}

// IncReceiptFailure counts a best-effort receipt render failure.
func (m *FinalizeMetrics) IncReceiptFailure() {
	if m == nil || m.receiptFailures == nil {
		return
	}
	m.receiptFailures.Inc()
}

// WebhookMetrics counts inbound payment notifications.
type WebhookMetrics struct {
	events *prometheus.CounterVec
}

// NewWebhookMetrics registers stripe_webhook_events_total.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stripe_webhook_events_total",
		Help:      "Stripe webhook deliveries by event type and outcome.",
	}, []string{"type", "outcome"})
	reg.MustRegister(events)
	return &WebhookMetrics{events: events}
}

// Inc records a webhook delivery.
func (m *WebhookMetrics) Inc(eventType, outcome string) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
}
