package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/clinvia/revenue-engine/internal/flashoffers"
	"github.com/clinvia/revenue-engine/internal/tenancy"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

type offerDispatcher interface {
	Dispatch(ctx context.Context, clinicID string) (flashoffers.Report, error)
}

// DispatchHandler triggers a flash-offer dispatch on demand. The sweeper
// runs the same operation on a timer; this endpoint exists for admins who
// do not want to wait for the next tick.
type DispatchHandler struct {
	dispatcher offerDispatcher
	logger     *logging.Logger
}

// NewDispatchHandler creates the handler.
func NewDispatchHandler(dispatcher offerDispatcher, logger *logging.Logger) *DispatchHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &DispatchHandler{dispatcher: dispatcher, logger: logger}
}

// Handle serves POST /flash-offers/dispatch.
func (h *DispatchHandler) Handle(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenancy.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	report, err := h.dispatcher.Dispatch(r.Context(), tc.ClinicID)
	if err != nil {
		h.logger.Error("dispatch failed", "clinic_id", tc.ClinicID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{
		"gaps":    report.Gaps,
		"created": report.Created,
		"sent":    report.Sent,
		"errors":  report.Errors,
	})
}
