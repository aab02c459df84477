package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinvia/revenue-engine/internal/apperrors"
	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/observability/metrics"
	"github.com/clinvia/revenue-engine/internal/patients"
	"github.com/clinvia/revenue-engine/internal/tenancy"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

type appointmentSource interface {
	Get(ctx context.Context, clinicID string, id uuid.UUID) (*appointments.Appointment, error)
	SetPaymentTransaction(ctx context.Context, clinicID string, id uuid.UUID, transactionID string) error
}

type patientSource interface {
	Get(ctx context.Context, clinicID, patientID string) (*patients.Patient, error)
}

// CheckoutHandler opens a hosted checkout for an unpaid appointment. The
// response carries the redirect URL; confirmation only ever happens through
// the verified webhook paths.
type CheckoutHandler struct {
	selector     gatewayResolver
	clinics      clinicSource
	appointments appointmentSource
	patients     patientSource
	metrics      *metrics.PaymentMetrics
	logger       *logging.Logger
}

// NewCheckoutHandler creates the checkout handler.
func NewCheckoutHandler(selector gatewayResolver, clinicStore clinicSource, apptStore appointmentSource, patientStore patientSource, pm *metrics.PaymentMetrics, logger *logging.Logger) *CheckoutHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &CheckoutHandler{
		selector:     selector,
		clinics:      clinicStore,
		appointments: apptStore,
		patients:     patientStore,
		metrics:      pm,
		logger:       logger,
	}
}

type checkoutResponseBody struct {
	CheckoutURL   string `json:"checkout_url"`
	TransactionID string `json:"transaction_id"`
	AmountCents   int64  `json:"amount_cents"`
	Provider      string `json:"provider"`
}

// Handle serves POST /appointments/{id}/checkout within a tenant context.
func (h *CheckoutHandler) Handle(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenancy.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	apptID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	appt, err := h.appointments.Get(ctx, tc.ClinicID, apptID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			http.Error(w, "appointment not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if appt.PaymentStatus == appointments.PaymentFullPaid {
		http.Error(w, "appointment already paid", http.StatusConflict)
		return
	}
	if appt.Status == appointments.StatusCancelled {
		http.Error(w, "appointment cancelled", http.StatusGone)
		return
	}

	patient, err := h.patients.Get(ctx, tc.ClinicID, appt.PatientID)
	if err != nil {
		http.Error(w, "patient not found", http.StatusNotFound)
		return
	}

	clinic, err := h.clinics.Get(ctx, tc.ClinicID)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	gw, err := h.selector.ForClinic(ctx, clinic.ID, clinic.Provider, clinic.Environment)
	if err != nil {
		if errors.Is(err, apperrors.ErrCredentialResolution) {
			// Fail closed: no shared-default credentials.
			h.metrics.ObserveCheckout(clinic.Provider, "credentials_unavailable")
			http.Error(w, "payments unavailable for this clinic", http.StatusServiceUnavailable)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	resp, err := gw.CreateCheckout(ctx, CheckoutParams{
		AppointmentID: appt.ID,
		ClinicID:      clinic.ID,
		PatientName:   patient.Name,
		PatientEmail:  patient.Email,
		Description:   appt.ServiceName,
		AmountCents:   appt.FinalPriceCents,
	})
	if err != nil {
		h.logger.Error("checkout creation failed",
			"appointment_id", appt.ID, "provider", clinic.Provider, "error", err)
		h.metrics.ObserveCheckout(clinic.Provider, "error")
		http.Error(w, "checkout failed", http.StatusBadGateway)
		return
	}

	if err := h.appointments.SetPaymentTransaction(ctx, tc.ClinicID, appt.ID, resp.TransactionID); err != nil {
		h.logger.Error("transaction id persist failed", "appointment_id", appt.ID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	h.metrics.ObserveCheckout(clinic.Provider, "created")
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(checkoutResponseBody{
		CheckoutURL:   resp.URL,
		TransactionID: resp.TransactionID,
		AmountCents:   appt.FinalPriceCents,
		Provider:      clinic.Provider,
	})
}
