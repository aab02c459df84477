package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/clinvia/revenue-engine/internal/apperrors"
	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/tenancy"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

type statusEnforcer interface {
	Transition(ctx context.Context, clinicID string, id uuid.UUID, target appointments.Status, actor string) error
}

// StatusHandler applies payment-gated status transitions. A gating denial is
// a 402 carrying the outstanding amount so the client can send the patient
// to checkout.
type StatusHandler struct {
	enforcer statusEnforcer
	logger   *logging.Logger
}

// NewStatusHandler creates the handler.
func NewStatusHandler(enforcer statusEnforcer, logger *logging.Logger) *StatusHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusHandler{enforcer: enforcer, logger: logger}
}

type statusRequest struct {
	Status string `json:"status"`
}

var validTargets = map[appointments.Status]bool{
	appointments.StatusProposed:  true,
	appointments.StatusBooked:    true,
	appointments.StatusArrived:   true,
	appointments.StatusFulfilled: true,
	appointments.StatusCancelled: true,
}

// Handle serves PATCH /appointments/{id}/status.
func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenancy.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		http.Error(w, "invalid appointment id", http.StatusBadRequest)
		return
	}

	var body statusRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	target := appointments.Status(body.Status)
	if !validTargets[target] {
		http.Error(w, "invalid status", http.StatusBadRequest)
		return
	}

	err = h.enforcer.Transition(r.Context(), tc.ClinicID, id, target, "user:"+tc.UserID)
	if err != nil {
		var pr *apperrors.PaymentRequiredError
		switch {
		case errors.As(err, &pr):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error":                 "payment required",
				"required_amount_cents": pr.RequiredAmountCents,
			})
		case errors.Is(err, apperrors.ErrNotFound):
			http.Error(w, "appointment not found", http.StatusNotFound)
		default:
			h.logger.Error("transition failed", "appointment_id", id, "error", err)
			http.Error(w, "server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": body.Status})
}
