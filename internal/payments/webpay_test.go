package payments

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clinvia/revenue-engine/internal/apperrors"
)

func TestWebpayCreateCheckout(t *testing.T) {
	apptID := uuid.New()
	var captured webpayCreateRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, webpayAPIPath, r.URL.Path)
		require.Equal(t, "597055555532", r.Header.Get("Tbk-Api-Key-Id"))
		require.Equal(t, "secret-key", r.Header.Get("Tbk-Api-Key-Secret"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_ = json.NewEncoder(w).Encode(webpayCreateResponse{
			Token: "tok-123",
			URL:   "https://webpay.example/init",
		})
	}))
	defer server.Close()

	gw := NewWebpayGateway("597055555532", "secret-key", EnvSandbox, "https://app.example/webhooks/webpay/clinic-1/return", nil).
		WithBaseURL(server.URL)

	resp, err := gw.CreateCheckout(context.Background(), CheckoutParams{
		AppointmentID: apptID,
		ClinicID:      "clinic-1",
		AmountCents:   36000,
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-123", resp.TransactionID)
	assert.Equal(t, "https://webpay.example/init?token_ws=tok-123", resp.URL)

	assert.Equal(t, int64(36000), captured.Amount)
	assert.Equal(t, "clinic-1", captured.SessionID)
	assert.LessOrEqual(t, len(captured.BuyOrder), 26)
	assert.NotContains(t, captured.BuyOrder, "-")
	assert.True(t, strings.HasPrefix(strings.ReplaceAll(apptID.String(), "-", ""), captured.BuyOrder))
}

func TestWebpayCommitMapsStatuses(t *testing.T) {
	tests := []struct {
		provider string
		want     VerifyStatus
	}{
		{"AUTHORIZED", StatusApproved},
		{"INITIALIZED", StatusPending},
		{"FAILED", StatusRejected},
		{"NULLIFIED", StatusRejected},
	}
	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, http.MethodPut, r.Method)
				require.Equal(t, webpayAPIPath+"/tok-123", r.URL.Path)
				_ = json.NewEncoder(w).Encode(webpayTransactionResponse{
					Status:   tt.provider,
					Amount:   36000,
					BuyOrder: "abc",
				})
			}))
			defer server.Close()

			gw := NewWebpayGateway("cc", "key", EnvSandbox, "https://r", nil).WithBaseURL(server.URL)
			result, err := gw.Commit(context.Background(), "tok-123")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Status)
			assert.Equal(t, int64(36000), result.AmountCents)
		})
	}
}

func TestWebpayVerifyUsesGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		_ = json.NewEncoder(w).Encode(webpayTransactionResponse{Status: "AUTHORIZED", Amount: 100})
	}))
	defer server.Close()

	gw := NewWebpayGateway("cc", "key", EnvProduction, "https://r", nil).WithBaseURL(server.URL)
	result, err := gw.Verify(context.Background(), "tok-9")
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, result.Status)
}

func TestWebpayRefund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, webpayAPIPath+"/tok-9/refunds", r.URL.Path)
		_ = json.NewEncoder(w).Encode(webpayRefundResponse{Type: "REVERSED"})
	}))
	defer server.Close()

	gw := NewWebpayGateway("cc", "key", EnvSandbox, "https://r", nil).WithBaseURL(server.URL)
	result, err := gw.Refund(context.Background(), "tok-9", nil)
	require.NoError(t, err)
	assert.True(t, result.Success)
}

func TestWebpayServerErrorIsGatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer server.Close()

	gw := NewWebpayGateway("cc", "key", EnvSandbox, "https://r", nil).WithBaseURL(server.URL)
	_, err := gw.Commit(context.Background(), "tok-9")
	assert.True(t, apperrors.IsGateway(err))
}

func TestWebpayEnvironmentHosts(t *testing.T) {
	sandbox := NewWebpayGateway("cc", "key", EnvSandbox, "https://r", nil)
	assert.Contains(t, sandbox.baseURL, "webpay3gint")

	prod := NewWebpayGateway("cc", "key", EnvProduction, "https://r", nil)
	assert.Contains(t, prod.baseURL, "webpay3g.transbank.cl")
	assert.NotContains(t, prod.baseURL, "gint")
}
