package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics counts payment attempts by method and outcome.
type PaymentMetrics struct {
	outcomes *prometheus.CounterVec
	refunds  *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	if reg == nil {
		return &PaymentMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_outcomes_total",
		Help: "Payment attempts partitioned by method and resulting status.",
	}, []string{"method", "outcome"})
	refunds := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payment_refunds_total",
		Help: "Refund attempts partitioned by method and result.",
	}, []string{"method", "outcome"})
	reg.MustRegister(outcomes, refunds)
	return &PaymentMetrics{outcomes: outcomes, refunds: refunds}
}

// IncOutcome records one payment attempt.
func (p *PaymentMetrics) IncOutcome(method, outcome string) {
	if p == nil || p.outcomes == nil {
		return
	}
	p.outcomes.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}

// IncRefund records one refund attempt.
func (p *PaymentMetrics) IncRefund(method, outcome string) {
	if p == nil || p.refunds == nil {
		return
	}
	p.refunds.WithLabelValues(normalizeLabel(method), normalizeLabel(outcome)).Inc()
}
