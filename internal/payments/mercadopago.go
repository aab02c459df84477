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

var mpTracer = otel.Tracer("revenue.internal.payments.mercadopago")

// MercadoPagoGateway creates checkout preferences with per-outcome return
// URLs. binary_mode forces an approved/rejected outcome in the hosted flow;
// verification happens out-of-band through the webhook's resource id.
type MercadoPagoGateway struct {
	accessToken string
	baseURL     string
	returnBase  string // per-outcome return paths are derived from this
	notifyURL   string
	httpClient  *http.Client
	logger      *logging.Logger
}

// NewMercadoPagoGateway creates an adapter bound to one clinic's access token.
func NewMercadoPagoGateway(accessToken, returnBase, notifyURL string, logger *logging.Logger) *MercadoPagoGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &MercadoPagoGateway{
		accessToken: accessToken,
		baseURL:     "https://api.mercadopago.com",
		returnBase:  strings.TrimRight(returnBase, "/"),
		notifyURL:   notifyURL,
		httpClient:  &http.Client{Timeout: defaultGatewayTimeout},
		logger:      logger,
	}
}

// WithBaseURL overrides the API host (for testing).
func (g *MercadoPagoGateway) WithBaseURL(baseURL string) *MercadoPagoGateway {
	if baseURL != "" {
		g.baseURL = strings.TrimRight(baseURL, "/")
	}
	return g
}

// WithTimeout overrides the HTTP client timeout.
func (g *MercadoPagoGateway) WithTimeout(d time.Duration) *MercadoPagoGateway {
	if d > 0 {
		g.httpClient.Timeout = d
	}
	return g
}

type mpPreferenceRequest struct {
	Items             []mpItem   `json:"items"`
	Payer             mpPayer    `json:"payer"`
	BackURLs          mpBackURLs `json:"back_urls"`
	AutoReturn        string     `json:"auto_return"`
	BinaryMode        bool       `json:"binary_mode"`
	ExternalReference string     `json:"external_reference"`
	NotificationURL   string     `json:"notification_url,omitempty"`
}

type mpItem struct {
	Title     string  `json:"title"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

type mpPayer struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type mpBackURLs struct {
	Success string `json:"success"`
	Failure string `json:"failure"`
	Pending string `json:"pending"`
}

type mpPreferenceResponse struct {
	ID        string `json:"id"`
	InitPoint string `json:"init_point"`
}

// CreateCheckout builds a checkout preference for the appointment.
func (g *MercadoPagoGateway) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	ctx, span := mpTracer.Start(ctx, "mercadopago.create_preference")
	defer span.End()
	span.SetAttributes(
		attribute.String("revenue.clinic_id", params.ClinicID),
		attribute.String("revenue.appointment_id", params.AppointmentID.String()),
		attribute.Int64("revenue.amount_cents", params.AmountCents),
	)

	body := mpPreferenceRequest{
		Items: []mpItem{{
			Title:     params.Description,
			Quantity:  1,
			UnitPrice: float64(params.AmountCents) / 100,
		}},
		Payer: mpPayer{Name: params.PatientName, Email: params.PatientEmail},
		BackURLs: mpBackURLs{
			Success: g.returnBase + "/success",
			Failure: g.returnBase + "/failure",
			Pending: g.returnBase + "/pending",
		},
		AutoReturn:        "approved",
		BinaryMode:        true,
		ExternalReference: params.AppointmentID.String(),
		NotificationURL:   g.notifyURL,
	}

	var resp mpPreferenceResponse
	if err := g.call(ctx, http.MethodPost, "/checkout/preferences", body, &resp); err != nil {
		return nil, err
	}
	if resp.InitPoint == "" {
		return nil, &apperrors.GatewayError{Provider: string(ProviderMercadoPago), Op: "create_preference",
			Err: fmt.Errorf("response missing init_point")}
	}
	return &CheckoutResponse{URL: resp.InitPoint, TransactionID: resp.ID}, nil
}

type mpPaymentResponse struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	TransactionAmount float64     `json:"transaction_amount"`
	ExternalReference string      `json:"external_reference"`
}

// Verify fetches the payment resource named by a webhook's resource id.
func (g *MercadoPagoGateway) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	ctx, span := mpTracer.Start(ctx, "mercadopago.get_payment")
	defer span.End()
	span.SetAttributes(attribute.String("mercadopago.payment_id", transactionID))

	var resp mpPaymentResponse
	if err := g.call(ctx, http.MethodGet, "/v1/payments/"+transactionID, nil, &resp); err != nil {
		return nil, err
	}

	result := &VerifyResult{
		AmountCents:       int64(resp.TransactionAmount * 100),
		ExternalReference: resp.ExternalReference,
	}
	switch resp.Status {
	case "approved":
		result.Status = StatusApproved
	case "pending", "in_process", "authorized":
		result.Status = StatusPending
	default:
		result.Status = StatusRejected
	}
	return result, nil
}

type mpRefundResponse struct {
	ID     json.Number `json:"id"`
	Status string      `json:"status"`
}

// Refund refunds a payment, partially when amountCents is set.
func (g *MercadoPagoGateway) Refund(ctx context.Context, transactionID string, amountCents *int64) (*RefundResult, error) {
	ctx, span := mpTracer.Start(ctx, "mercadopago.refund")
	defer span.End()

	var body any
	if amountCents != nil {
		body = map[string]float64{"amount": float64(*amountCents) / 100}
	}

	var resp mpRefundResponse
	if err := g.call(ctx, http.MethodPost, "/v1/payments/"+transactionID+"/refunds", body, &resp); err != nil {
		return nil, err
	}
	return &RefundResult{
		Success:  resp.Status == "approved" || resp.Status == "refunded",
		RefundID: resp.ID.String(),
	}, nil
}

func (g *MercadoPagoGateway) call(ctx context.Context, method, path string, body, out any) error {
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
	req.Header.Set("Authorization", "Bearer "+g.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return &apperrors.GatewayError{Provider: string(ProviderMercadoPago), Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apperrors.GatewayError{Provider: string(ProviderMercadoPago), Op: method + " " + path, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		g.logger.Error("mercadopago call failed",
			"path", path, "status", resp.StatusCode, "body", truncate(string(raw), 500))
		return &apperrors.GatewayError{Provider: string(ProviderMercadoPago), Op: method + " " + path,
			Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return &apperrors.GatewayError{Provider: string(ProviderMercadoPago), Op: method + " " + path,
				Err: fmt.Errorf("decode response: %w", err)}
		}
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
