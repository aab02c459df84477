package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPaymentMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPaymentMetrics(reg)

	m.ObserveCheckout("mercadopago", "created")
	m.ObserveWebhook("webpay", "approved")
	m.ObserveWebhookLatency("webpay", 0.02)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 3 {
		t.Fatalf("expected 3 metric families, got %d", len(families))
	}
}

func TestOfferMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOfferMetrics(reg)

	m.AddGaps("clinic-1", 2)
	m.AddCreated("clinic-1", 5)
	m.AddExpired("clinic-1", 1)
	m.AddConverted("clinic-1", 1)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) != 4 {
		t.Fatalf("expected 4 metric families, got %d", len(families))
	}
}

func TestNilReceiversAreSafe(t *testing.T) {
	var pm *PaymentMetrics
	var om *OfferMetrics
	pm.ObserveCheckout("x", "y")
	pm.ObserveWebhook("x", "y")
	pm.ObserveWebhookLatency("x", 1)
	om.AddGaps("x", 1)
	om.AddCreated("x", 1)
	om.AddExpired("x", 1)
	om.AddConverted("x", 1)
}
