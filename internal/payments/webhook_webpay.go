package payments

import (
	"context"
	"net/http"
	"time"

	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/observability/metrics"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

// transactionLookup finds the appointment a checkout session was opened for.
type transactionLookup interface {
	GetByTransactionID(ctx context.Context, clinicID, transactionID string) (*appointments.Appointment, error)
}

// committer is the session-commit step of the Webpay protocol. The mock
// gateway does not implement it; the handler falls back to Verify.
type committer interface {
	Commit(ctx context.Context, token string) (*VerifyResult, error)
}

// WebpayReturnHandler completes the Webpay flow when the patient comes back
// with a token_ws. Commit is the verification: its result decides whether
// the appointment is confirmed.
type WebpayReturnHandler struct {
	selector   gatewayResolver
	clinics    clinicSource
	lookup     transactionLookup
	enforcer   paymentConfirmer
	processed  processedTracker
	metrics    *metrics.PaymentMetrics
	successURL string
	failureURL string
	logger     *logging.Logger
}

// NewWebpayReturnHandler creates the return handler.
func NewWebpayReturnHandler(selector gatewayResolver, clinicStore clinicSource, lookup transactionLookup, enforcer paymentConfirmer, processed processedTracker, pm *metrics.PaymentMetrics, successURL, failureURL string, logger *logging.Logger) *WebpayReturnHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &WebpayReturnHandler{
		selector:   selector,
		clinics:    clinicStore,
		lookup:     lookup,
		enforcer:   enforcer,
		processed:  processed,
		metrics:    pm,
		successURL: successURL,
		failureURL: failureURL,
		logger:     logger,
	}
}

// Handle expects the clinic id as a path value and token_ws in the query or
// form body, as Webpay posts it.
func (h *WebpayReturnHandler) Handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	clinicID := r.PathValue("clinicID")
	if clinicID == "" {
		http.Error(w, "missing clinic", http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("token_ws")
	if token == "" {
		if err := r.ParseForm(); err == nil {
			token = r.PostFormValue("token_ws")
		}
	}
	if token == "" {
		// An aborted flow posts TBK_TOKEN instead; treat as failure.
		http.Redirect(w, r, h.failureURL, http.StatusFound)
		return
	}

	ctx := r.Context()
	if seen, err := h.processed.AlreadyProcessed(ctx, string(ProviderWebpay), token); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	} else if seen {
		http.Redirect(w, r, h.successURL, http.StatusFound)
		return
	}

	clinic, err := h.clinics.Get(ctx, clinicID)
	if err != nil {
		http.Error(w, "unknown clinic", http.StatusNotFound)
		return
	}

	gw, err := h.selector.ForClinic(ctx, clinic.ID, clinic.Provider, clinic.Environment)
	if err != nil {
		h.logger.Error("gateway resolution failed", "clinic_id", clinicID, "error", err)
		h.metrics.ObserveWebhook(string(ProviderWebpay), "gateway_error")
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	var result *VerifyResult
	if c, ok := gw.(committer); ok {
		result, err = c.Commit(ctx, token)
	} else {
		result, err = gw.Verify(ctx, token)
	}
	if err != nil {
		h.logger.Error("webpay commit failed", "token", token, "error", err)
		h.metrics.ObserveWebhook(string(ProviderWebpay), "commit_error")
		http.Redirect(w, r, h.failureURL, http.StatusFound)
		return
	}

	if result.Status != StatusApproved {
		h.logger.Info("webpay transaction not authorized", "token", token, "status", string(result.Status))
		h.metrics.ObserveWebhook(string(ProviderWebpay), string(result.Status))
		_, _ = h.processed.MarkProcessed(ctx, string(ProviderWebpay), token)
		http.Redirect(w, r, h.failureURL, http.StatusFound)
		return
	}

	appt, err := h.lookup.GetByTransactionID(ctx, clinicID, token)
	if err != nil {
		h.logger.Error("no appointment for token", "token", token, "error", err)
		h.metrics.ObserveWebhook(string(ProviderWebpay), "orphan_token")
		http.Redirect(w, r, h.failureURL, http.StatusFound)
		return
	}

	if err := h.enforcer.ConfirmPayment(ctx, clinicID, appt.ID, token, string(ProviderWebpay), "webhook:webpay"); err != nil {
		h.logger.Error("payment confirmation failed", "appointment_id", appt.ID, "error", err)
		h.metrics.ObserveWebhook(string(ProviderWebpay), "confirm_error")
		http.Redirect(w, r, h.failureURL, http.StatusFound)
		return
	}

	_, _ = h.processed.MarkProcessed(ctx, string(ProviderWebpay), token)
	h.metrics.ObserveWebhook(string(ProviderWebpay), "approved")
	h.metrics.ObserveWebhookLatency(string(ProviderWebpay), time.Since(start).Seconds())
	http.Redirect(w, r, h.successURL, http.StatusFound)
}
