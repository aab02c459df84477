package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/clinvia/revenue-engine/internal/apperrors"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

var webpayTracer = otel.Tracer("revenue.internal.payments.webpay")

const webpayAPIPath = "/rswebpaytransaction/api/webpay/v1.2/transactions"

// WebpayGateway drives the session-based transaction protocol: create a
// transaction, redirect with its token, commit on return, query status,
// refund. It is constructed per request from the tenant's commerce code and
// API key so credentials never outlive the call.
type WebpayGateway struct {
	commerceCode string
	apiKey       string
	baseURL      string
	returnURL    string
	httpClient   *http.Client
	logger       *logging.Logger
}

// NewWebpayGateway creates an adapter for one clinic and environment.
func NewWebpayGateway(commerceCode, apiKey string, env Environment, returnURL string, logger *logging.Logger) *WebpayGateway {
	if logger == nil {
		logger = logging.Default()
	}
	baseURL := "https://webpay3g.transbank.cl"
	if env == EnvSandbox {
		baseURL = "https://webpay3gint.transbank.cl"
	}
	return &WebpayGateway{
		commerceCode: commerceCode,
		apiKey:       apiKey,
		baseURL:      baseURL,
		returnURL:    returnURL,
		httpClient:   &http.Client{Timeout: defaultGatewayTimeout},
		logger:       logger,
	}
}

// WithBaseURL overrides the API host (for testing).
func (g *WebpayGateway) WithBaseURL(baseURL string) *WebpayGateway {
	if baseURL != "" {
		g.baseURL = strings.TrimRight(baseURL, "/")
	}
	return g
}

// WithTimeout overrides the HTTP client timeout.
func (g *WebpayGateway) WithTimeout(d time.Duration) *WebpayGateway {
	if d > 0 {
		g.httpClient.Timeout = d
	}
	return g
}

type webpayCreateRequest struct {
	BuyOrder  string `json:"buy_order"`
	SessionID string `json:"session_id"`
	Amount    int64  `json:"amount"`
	ReturnURL string `json:"return_url"`
}

type webpayCreateResponse struct {
	Token string `json:"token"`
	URL   string `json:"url"`
}

// CreateCheckout opens a Webpay transaction session. The returned transaction
// id is the session token the patient carries back on return.
func (g *WebpayGateway) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	ctx, span := webpayTracer.Start(ctx, "webpay.create_transaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("revenue.clinic_id", params.ClinicID),
		attribute.String("revenue.appointment_id", params.AppointmentID.String()),
		attribute.Int64("revenue.amount_cents", params.AmountCents),
	)

	body := webpayCreateRequest{
		BuyOrder:  buyOrderFor(params.AppointmentID.String()),
		SessionID: params.ClinicID,
		Amount:    params.AmountCents,
		ReturnURL: g.returnURL,
	}

	var resp webpayCreateResponse
	if err := g.call(ctx, http.MethodPost, webpayAPIPath, body, &resp); err != nil {
		return nil, err
	}
	if resp.Token == "" || resp.URL == "" {
		return nil, &apperrors.GatewayError{Provider: string(ProviderWebpay), Op: "create",
			Err: fmt.Errorf("response missing token or url")}
	}
	return &CheckoutResponse{
		URL:           resp.URL + "?token_ws=" + resp.Token,
		TransactionID: resp.Token,
	}, nil
}

type webpayTransactionResponse struct {
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	BuyOrder string `json:"buy_order"`
}

// Commit finalizes the transaction after the patient returns with the token.
func (g *WebpayGateway) Commit(ctx context.Context, token string) (*VerifyResult, error) {
	ctx, span := webpayTracer.Start(ctx, "webpay.commit_transaction")
	defer span.End()

	var resp webpayTransactionResponse
	if err := g.call(ctx, http.MethodPut, webpayAPIPath+"/"+token, nil, &resp); err != nil {
		return nil, err
	}
	return mapWebpayStatus(&resp), nil
}

// Verify queries the current transaction status without committing.
func (g *WebpayGateway) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	ctx, span := webpayTracer.Start(ctx, "webpay.transaction_status")
	defer span.End()

	var resp webpayTransactionResponse
	if err := g.call(ctx, http.MethodGet, webpayAPIPath+"/"+transactionID, nil, &resp); err != nil {
		return nil, err
	}
	return mapWebpayStatus(&resp), nil
}

type webpayRefundResponse struct {
	Type   string `json:"type"`
	Status string `json:"status"` // reversed or nullified on success
}

// Refund reverses or nullifies a committed transaction.
func (g *WebpayGateway) Refund(ctx context.Context, transactionID string, amountCents *int64) (*RefundResult, error) {
	ctx, span := webpayTracer.Start(ctx, "webpay.refund_transaction")
	defer span.End()

	amount := int64(0)
	if amountCents != nil {
		amount = *amountCents
	}
	body := map[string]int64{"amount": amount}

	var resp webpayRefundResponse
	if err := g.call(ctx, http.MethodPost, webpayAPIPath+"/"+transactionID+"/refunds", body, &resp); err != nil {
		return nil, err
	}
	success := resp.Type == "REVERSED" || resp.Status == "NULLIFIED" || resp.Status == "REVERSED"
	return &RefundResult{Success: success, RefundID: transactionID}, nil
}

func mapWebpayStatus(resp *webpayTransactionResponse) *VerifyResult {
	result := &VerifyResult{
		AmountCents:       resp.Amount,
		ExternalReference: resp.BuyOrder,
	}
	switch resp.Status {
	case "AUTHORIZED":
		result.Status = StatusApproved
	case "INITIALIZED":
		result.Status = StatusPending
	default: // FAILED, REVERSED, NULLIFIED
		result.Status = StatusRejected
	}
	return result
}

// buyOrderFor compacts an appointment id into Webpay's 26-character limit.
func buyOrderFor(appointmentID string) string {
	compact := strings.ReplaceAll(appointmentID, "-", "")
	if len(compact) > 26 {
		return compact[:26]
	}
	return compact
}

func (g *WebpayGateway) call(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("payments: marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("payments: build request: %w", err)
	}
	req.Header.Set("Tbk-Api-Key-Id", g.commerceCode)
	req.Header.Set("Tbk-Api-Key-Secret", g.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &apperrors.GatewayError{Provider: string(ProviderWebpay), Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperrors.GatewayError{Provider: string(ProviderWebpay), Op: method + " " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Error("webpay call failed",
			"path", path, "status", resp.StatusCode, "body", truncate(string(raw), 500))
		return &apperrors.GatewayError{Provider: string(ProviderWebpay), Op: method + " " + path,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &apperrors.GatewayError{Provider: string(ProviderWebpay), Op: method + " " + path,
				Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}
