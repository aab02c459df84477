package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinvia/revenue-engine/internal/apperrors"
	"github.com/clinvia/revenue-engine/internal/appointments"
	"github.com/clinvia/revenue-engine/internal/flashoffers"
	"github.com/clinvia/revenue-engine/internal/gaps"
	"github.com/clinvia/revenue-engine/internal/tenancy"
)

type stubDetector struct {
	gaps    []gaps.Gap
	horizon int
}

func (s *stubDetector) Detect(ctx context.Context, clinicID string, horizonHours int) ([]gaps.Gap, error) {
	s.horizon = horizonHours
	return s.gaps, nil
}

type stubEnforcer struct {
	err    error
	target appointments.Status
	actor  string
}

func (s *stubEnforcer) Transition(ctx context.Context, clinicID string, id uuid.UUID, target appointments.Status, actor string) error {
	s.target = target
	s.actor = actor
	return s.err
}

type stubOfferDispatcher struct{ report flashoffers.Report }

func (s *stubOfferDispatcher) Dispatch(ctx context.Context, clinicID string) (flashoffers.Report, error) {
	return s.report, nil
}

func withTenant(req *http.Request) *http.Request {
	return req.WithContext(tenancy.WithContext(req.Context(), tenancy.Context{
		ClinicID: "clinic-1", UserID: "u1", Role: tenancy.RoleAdmin,
	}))
}

func TestGapsHandlerReturnsGaps(t *testing.T) {
	start := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	detector := &stubDetector{gaps: []gaps.Gap{{
		ClinicID:           "clinic-1",
		Date:               time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		StartAt:            start,
		EndAt:              start.Add(4 * time.Hour),
		Duration:           4 * time.Hour,
		NormalPriceCents:   40000,
		DiscountPct:        20,
		DiscountPriceCents: 32000,
		ExpiresAt:          start.Add(12 * time.Hour),
	}}}
	h := NewGapsHandler(detector, 24, nil)

	req := withTenant(httptest.NewRequest(http.MethodGet, "/gaps", nil))
	rr := httptest.NewRecorder()
	h.Handle(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 24, detector.horizon)

	var body struct {
		Gaps []gapBody `json:"gaps"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body.Gaps, 1)
	assert.Equal(t, "2026-03-10", body.Gaps[0].Date)
	assert.Equal(t, 240, body.Gaps[0].DurationMinutes)
	assert.Equal(t, int64(32000), body.Gaps[0].DiscountPriceCents)
}

func TestGapsHandlerCustomHorizon(t *testing.T) {
	detector := &stubDetector{}
	h := NewGapsHandler(detector, 24, nil)

	req := withTenant(httptest.NewRequest(http.MethodGet, "/gaps?horizon_hours=48", nil))
	rr := httptest.NewRecorder()
	h.Handle(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, 48, detector.horizon)
}

func TestGapsHandlerRejectsBadHorizon(t *testing.T) {
	h := NewGapsHandler(&stubDetector{}, 24, nil)

	req := withTenant(httptest.NewRequest(http.MethodGet, "/gaps?horizon_hours=minus", nil))
	rr := httptest.NewRecorder()
	h.Handle(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestGapsHandlerRequiresTenant(t *testing.T) {
	h := NewGapsHandler(&stubDetector{}, 24, nil)

	rr := httptest.NewRecorder()
	h.Handle(rr, httptest.NewRequest(http.MethodGet, "/gaps", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func statusRequestFor(t *testing.T, id uuid.UUID, status string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodPatch, "/appointments/"+id.String()+"/status",
		strings.NewReader(`{"status":"`+status+`"}`))
	req.SetPathValue("id", id.String())
	return withTenant(req)
}

func TestStatusHandlerPaymentRequired(t *testing.T) {
	id := uuid.New()
	enforcer := &stubEnforcer{err: &apperrors.PaymentRequiredError{
		AppointmentID:       id.String(),
		RequiredAmountCents: 36000,
	}}
	h := NewStatusHandler(enforcer, nil)

	rr := httptest.NewRecorder()
	h.Handle(rr, statusRequestFor(t, id, "booked"))

	require.Equal(t, http.StatusPaymentRequired, rr.Code)
	var body map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, float64(36000), body["required_amount_cents"])
}

func TestStatusHandlerSuccess(t *testing.T) {
	enforcer := &stubEnforcer{}
	h := NewStatusHandler(enforcer, nil)

	rr := httptest.NewRecorder()
	h.Handle(rr, statusRequestFor(t, uuid.New(), "arrived"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, appointments.StatusArrived, enforcer.target)
	assert.Equal(t, "user:u1", enforcer.actor)
}

func TestStatusHandlerNotFound(t *testing.T) {
	h := NewStatusHandler(&stubEnforcer{err: apperrors.ErrNotFound}, nil)

	rr := httptest.NewRecorder()
	h.Handle(rr, statusRequestFor(t, uuid.New(), "booked"))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStatusHandlerRejectsUnknownStatus(t *testing.T) {
	h := NewStatusHandler(&stubEnforcer{}, nil)

	rr := httptest.NewRecorder()
	h.Handle(rr, statusRequestFor(t, uuid.New(), "teleported"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestDispatchHandlerReturnsReport(t *testing.T) {
	h := NewDispatchHandler(&stubOfferDispatcher{report: flashoffers.Report{
		Gaps: 2, Created: 5, Sent: 5,
	}}, nil)

	req := withTenant(httptest.NewRequest(http.MethodPost, "/flash-offers/dispatch", nil))
	rr := httptest.NewRecorder()
	h.Handle(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]int
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, 5, body["created"])
	assert.Equal(t, 2, body["gaps"])
}
