package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics exposes counters/histograms for the payment flows.
type PaymentMetrics struct {
	checkoutTotal  *prometheus.CounterVec
	webhookTotal   *prometheus.CounterVec
	webhookLatency *prometheus.HistogramVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	m := &PaymentMetrics{
		checkoutTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenue",
			Subsystem: "payments",
			Name:      "checkout_total",
			Help:      "Checkout sessions created, by provider and result",
		}, []string{"provider", "result"}),
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenue",
			Subsystem: "payments",
			Name:      "webhook_total",
			Help:      "Provider webhook deliveries, by provider and outcome",
		}, []string{"provider", "outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "revenue",
			Subsystem: "payments",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.checkoutTotal, m.webhookTotal, m.webhookLatency)
	return m
}

func (m *PaymentMetrics) ObserveCheckout(provider, result string) {
	if m == nil {
		return
	}
	m.checkoutTotal.WithLabelValues(provider, result).Inc()
}

func (m *PaymentMetrics) ObserveWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *PaymentMetrics) ObserveWebhookLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(provider).Observe(seconds)
}

// OfferMetrics tracks the revenue-recovery loop.
type OfferMetrics struct {
	gapsDetected    *prometheus.CounterVec
	offersCreated   *prometheus.CounterVec
	offersExpired   *prometheus.CounterVec
	offersConverted *prometheus.CounterVec
}

func NewOfferMetrics(reg prometheus.Registerer) *OfferMetrics {
	m := &OfferMetrics{
		gapsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenue",
			Subsystem: "offers",
			Name:      "gaps_detected_total",
			Help:      "Calendar gaps found by the detector",
		}, []string{"clinic_id"}),
		offersCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenue",
			Subsystem: "offers",
			Name:      "created_total",
			Help:      "Flash offers dispatched",
		}, []string{"clinic_id"}),
		offersExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenue",
			Subsystem: "offers",
			Name:      "expired_total",
			Help:      "Flash offers cancelled by the expiry sweep",
		}, []string{"clinic_id"}),
		offersConverted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "revenue",
			Subsystem: "offers",
			Name:      "converted_total",
			Help:      "Flash offers that converted to paid bookings",
		}, []string{"clinic_id"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.gapsDetected, m.offersCreated, m.offersExpired, m.offersConverted)
	return m
}

func (m *OfferMetrics) AddGaps(clinicID string, n int) {
	if m == nil {
		return
	}
	m.gapsDetected.WithLabelValues(clinicID).Add(float64(n))
}

func (m *OfferMetrics) AddCreated(clinicID string, n int) {
	if m == nil {
		return
	}
	m.offersCreated.WithLabelValues(clinicID).Add(float64(n))
}

func (m *OfferMetrics) AddExpired(clinicID string, n int) {
	if m == nil {
		return
	}
	m.offersExpired.WithLabelValues(clinicID).Add(float64(n))
}

func (m *OfferMetrics) AddConverted(clinicID string, n int) {
	if m == nil {
		return
	}
	m.offersConverted.WithLabelValues(clinicID).Add(float64(n))
}
