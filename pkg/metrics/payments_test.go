package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsCountsOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewPaymentMetrics(reg)
	metrics.IncOutcome("CARD", "COMPLETED")
	metrics.IncOutcome("CARD", "COMPLETED")
	metrics.IncRefund("CARD", "REFUNDED")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "payment_outcomes_total", "outcome", "COMPLETED"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 completed payments, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "payment_refunds_total", "method", "CARD"); err != nil {
		t.Fatalf("fetch refunds: %v", err)
	} else if got != 1 {
		t.Fatalf("expected 1 refund, got %f", got)
	}
}

func TestPaymentMetricsNilSafe(t *testing.T) {
	var metrics *PaymentMetrics
	metrics.IncOutcome("CASH", "COMPLETED")
	NewPaymentMetrics(nil).IncRefund("CARD", "FAILED")
}
