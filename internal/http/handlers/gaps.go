// Package handlers holds the authenticated JSON API surface. Every handler
// reads its clinic from the tenant context; nothing here accepts a clinic id
// from the request body.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/clinvia/revenue-engine/internal/gaps"
	"github.com/clinvia/revenue-engine/internal/tenancy"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

type gapDetector interface {
	Detect(ctx context.Context, clinicID string, horizonHours int) ([]gaps.Gap, error)
}

// GapsHandler lists the bookable free windows in the clinic's near-term
// calendar.
type GapsHandler struct {
	detector       gapDetector
	defaultHorizon int
	logger         *logging.Logger
}

// NewGapsHandler creates the handler.
func NewGapsHandler(detector gapDetector, defaultHorizonHours int, logger *logging.Logger) *GapsHandler {
	if defaultHorizonHours <= 0 {
		defaultHorizonHours = 24
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &GapsHandler{detector: detector, defaultHorizon: defaultHorizonHours, logger: logger}
}

type gapBody struct {
	Date               string    `json:"date"`
	StartAt            time.Time `json:"start_at"`
	EndAt              time.Time `json:"end_at"`
	DurationMinutes    int       `json:"duration_minutes"`
	NormalPriceCents   int64     `json:"normal_price_cents"`
	DiscountPct        int       `json:"discount_pct"`
	DiscountPriceCents int64     `json:"discount_price_cents"`
	ExpiresAt          time.Time `json:"expires_at"`
}

// Handle serves GET /gaps?horizon_hours=24.
func (h *GapsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	tc, ok := tenancy.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	horizon := h.defaultHorizon
	if raw := r.URL.Query().Get("horizon_hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "invalid horizon_hours", http.StatusBadRequest)
			return
		}
		horizon = parsed
	}

	found, err := h.detector.Detect(r.Context(), tc.ClinicID, horizon)
	if err != nil {
		h.logger.Error("gap detection failed", "clinic_id", tc.ClinicID, "error", err)
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}

	out := make([]gapBody, 0, len(found))
	for _, g := range found {
		out = append(out, gapBody{
			Date:               g.Date.Format("2006-01-02"),
			StartAt:            g.StartAt,
			EndAt:              g.EndAt,
			DurationMinutes:    int(g.Duration.Minutes()),
			NormalPriceCents:   g.NormalPriceCents,
			DiscountPct:        g.DiscountPct,
			DiscountPriceCents: g.DiscountPriceCents,
			ExpiresAt:          g.ExpiresAt,
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"gaps": out})
}
