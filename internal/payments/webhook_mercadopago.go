package payments

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/clinvia/revenue-engine/internal/clinics"
	"github.com/clinvia/revenue-engine/internal/observability/metrics"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

// paymentConfirmer is the verified-callback entry into the gating enforcer.
type paymentConfirmer interface {
	ConfirmPayment(ctx context.Context, clinicID string, id uuid.UUID, transactionID, method, actor string) error
}

// gatewayResolver selects the adapter for a clinic.
type gatewayResolver interface {
	ForClinic(ctx context.Context, clinicID, provider, environment string) (Gateway, error)
}

type clinicSource interface {
	Get(ctx context.Context, clinicID string) (*clinics.Clinic, error)
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, provider, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, provider, eventID string) (bool, error)
}

// MercadoPagoWebhookHandler processes asynchronous {topic, resource id}
// notifications. The payload is never trusted: the resource is re-fetched
// through the adapter's Verify before any state changes.
type MercadoPagoWebhookHandler struct {
	selector  gatewayResolver
	clinics   clinicSource
	enforcer  paymentConfirmer
	processed processedTracker
	metrics   *metrics.PaymentMetrics
	logger    *logging.Logger
}

// NewMercadoPagoWebhookHandler creates the webhook handler.
func NewMercadoPagoWebhookHandler(selector gatewayResolver, clinicStore clinicSource, enforcer paymentConfirmer, processed processedTracker, pm *metrics.PaymentMetrics, logger *logging.Logger) *MercadoPagoWebhookHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &MercadoPagoWebhookHandler{
		selector:  selector,
		clinics:   clinicStore,
		enforcer:  enforcer,
		processed: processed,
		metrics:   pm,
		logger:    logger,
	}
}

type mpWebhookBody struct {
	Type string `json:"type"`
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// Handle expects the clinic id as a path value. Notifications arrive either
// as ?topic=payment&id=... query params or as a JSON body.
func (h *MercadoPagoWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinicID := r.PathValue("clinicID")
	if clinicID == "" {
		http.Error(w, "missing clinic", http.StatusBadRequest)
		return
	}

	topic := r.URL.Query().Get("topic")
	resourceID := r.URL.Query().Get("id")
	if resourceID == "" {
		payload, err := io.ReadAll(r.Body)
		if err == nil && len(payload) > 0 {
			var body mpWebhookBody
			if jsonErr := json.Unmarshal(payload, &body); jsonErr == nil {
				topic = body.Type
				resourceID = body.Data.ID
			}
		}
	}

	if topic != "payment" && topic != "" {
		// Merchant orders and other topics are acknowledged and ignored.
		w.WriteHeader(http.StatusOK)
		return
	}
	if resourceID == "" {
		http.Error(w, "missing resource id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if seen, err := h.processed.AlreadyProcessed(ctx, string(ProviderMercadoPago), resourceID); err != nil {
		h.logger.Error("processed lookup failed", "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if seen {
		w.WriteHeader(http.StatusOK)
		return
	}

	clinic, err := h.clinics.Get(ctx, clinicID)
	if err != nil {
		h.metrics.ObserveWebhook(string(ProviderMercadoPago), "unknown_clinic")
		http.Error(w, "unknown clinic", http.StatusNotFound)
		return
	}

	gw, err := h.selector.ForClinic(ctx, clinic.ID, clinic.Provider, clinic.Environment)
	if err != nil {
		h.logger.Error("gateway resolution failed", "clinic_id", clinicID, "error", err)
		h.metrics.ObserveWebhook(string(ProviderMercadoPago), "gateway_error")
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	result, err := gw.Verify(ctx, resourceID)
	if err != nil {
		h.logger.Error("payment verification failed", "resource_id", resourceID, "error", err)
		h.metrics.ObserveWebhook(string(ProviderMercadoPago), "verify_error")
		// 500 so the provider redelivers; we never retry internally.
		http.Error(w, "verification failed", http.StatusInternalServerError)
		return
	}

	if result.Status != StatusApproved {
		h.logger.Info("payment not approved", "resource_id", resourceID, "status", string(result.Status))
		h.metrics.ObserveWebhook(string(ProviderMercadoPago), string(result.Status))
		// Only terminal outcomes are recorded. A pending payment must stay
		// unprocessed so the redelivery after it settles can still confirm.
		if result.Status == StatusRejected {
			_, _ = h.processed.MarkProcessed(ctx, string(ProviderMercadoPago), resourceID)
		}
		w.WriteHeader(http.StatusOK)
		return
	}

	appointmentID, err := uuid.Parse(result.ExternalReference)
	if err != nil {
		h.logger.Error("payment has no usable reference", "resource_id", resourceID)
		h.metrics.ObserveWebhook(string(ProviderMercadoPago), "bad_reference")
		http.Error(w, "bad reference", http.StatusBadRequest)
		return
	}

	if err := h.enforcer.ConfirmPayment(ctx, clinicID, appointmentID, resourceID, string(ProviderMercadoPago), "webhook:mercadopago"); err != nil {
		h.logger.Error("payment confirmation failed", "appointment_id", appointmentID, "error", err)
		h.metrics.ObserveWebhook(string(ProviderMercadoPago), "confirm_error")
		http.Error(w, "confirmation failed", http.StatusInternalServerError)
		return
	}

	_, _ = h.processed.MarkProcessed(ctx, string(ProviderMercadoPago), resourceID)
	h.metrics.ObserveWebhook(string(ProviderMercadoPago), "approved")
	h.metrics.ObserveWebhookLatency(string(ProviderMercadoPago), time.Since(start).Seconds())
	w.WriteHeader(http.StatusOK)
}
