package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinvia/revenue-engine/internal/apperrors"
)

func TestMercadoPagoCreateCheckout(t *testing.T) {
	apptID := uuid.New()
	var captured mpPreferenceRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/checkout/preferences", r.URL.Path)
		require.Equal(t, "Bearer APP_USR-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(mpPreferenceResponse{
			ID:        "pref-1",
			InitPoint: "https://www.mercadopago.com/checkout?pref_id=pref-1",
		})
	}))
	defer server.Close()

	gw := NewMercadoPagoGateway("APP_USR-token", "https://app.example/return", "https://app.example/webhooks/mercadopago/clinic-1", nil).
		WithBaseURL(server.URL)

	resp, err := gw.CreateCheckout(context.Background(), CheckoutParams{
		AppointmentID: apptID,
		ClinicID:      "clinic-1",
		PatientName:   "Ana",
		PatientEmail:  "ana@example.com",
		Description:   "cleaning",
		AmountCents:   36000,
	})
	require.NoError(t, err)
	assert.Equal(t, "pref-1", resp.TransactionID)
	assert.Contains(t, resp.URL, "pref_id=pref-1")

	// Binary outcome flow with per-outcome return URLs.
	assert.True(t, captured.BinaryMode)
	assert.Equal(t, "approved", captured.AutoReturn)
	assert.Equal(t, "https://app.example/return/success", captured.BackURLs.Success)
	assert.Equal(t, "https://app.example/return/failure", captured.BackURLs.Failure)
	assert.Equal(t, "https://app.example/return/pending", captured.BackURLs.Pending)
	assert.Equal(t, apptID.String(), captured.ExternalReference)
	require.Len(t, captured.Items, 1)
	assert.InDelta(t, 360.0, captured.Items[0].UnitPrice, 0.001)
}

func TestMercadoPagoVerifyMapsStatuses(t *testing.T) {
	tests := []struct {
		provider string
		want     VerifyStatus
	}{
		{"approved", StatusApproved},
		{"pending", StatusPending},
		{"in_process", StatusPending},
		{"rejected", StatusRejected},
		{"cancelled", StatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/v1/payments/777", r.URL.Path)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"id":                 777,
					"status":             tt.provider,
					"transaction_amount": 360.0,
					"external_reference": "ref-1",
				})
			}))
			defer server.Close()

			gw := NewMercadoPagoGateway("tok", "https://r", "", nil).WithBaseURL(server.URL)
			result, err := gw.Verify(context.Background(), "777")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, int64(36000), result.AmountCents)
			assert.Equal(t, "ref-1", result.ExternalReference)
		})
	}
}

func TestMercadoPagoErrorSurfacesAsGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer server.Close()

	gw := NewMercadoPagoGateway("bad", "https://r", "", nil).WithBaseURL(server.URL)
	_, err := gw.CreateCheckout(context.Background(), CheckoutParams{AppointmentID: uuid.New()})
	require.Error(t, err)
	assert.True(t, apperrors.IsGateway(err))
}

func TestMercadoPagoRefund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/payments/777/refunds", r.URL.Path)
		var body map[string]float64
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.InDelta(t, 100.0, body["amount"], 0.001)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 9, "status": "approved"})
	}))
	defer server.Close()

	gw := NewMercadoPagoGateway("tok", "https://r", "", nil).WithBaseURL(server.URL)
	amount := int64(10000)
	result, err := gw.Refund(context.Background(), "777", &amount)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "9", result.RefundID)
}
