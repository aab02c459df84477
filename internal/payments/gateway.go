// Package payments adapts external payment gateways behind one capability
// interface. Two real providers (MercadoPago preference flow, Webpay session
// flow) plus a deterministic mock used only under explicit configuration.
package payments

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Provider names a gateway implementation.
type Provider string

const (
	ProviderMercadoPago Provider = "mercadopago"
	ProviderWebpay      Provider = "webpay"
	ProviderMock        Provider = "mock"
)

// Environment selects the provider host.
type Environment string

const (
	EnvSandbox    Environment = "sandbox"
	EnvProduction Environment = "production"
)

// VerifyStatus is the normalized payment outcome.
type VerifyStatus string

const (
	StatusApproved VerifyStatus = "approved"
	StatusPending  VerifyStatus = "pending"
	StatusRejected VerifyStatus = "rejected"
)

// CheckoutParams describes the payment to collect.
type CheckoutParams struct {
	AppointmentID uuid.UUID
	ClinicID      string
	PatientName   string
	PatientEmail  string
	Description   string
	AmountCents   int64
}

// CheckoutResponse is the hosted checkout created at the provider.
type CheckoutResponse struct {
	URL           string
	TransactionID string
}

// VerifyResult is the provider's answer for one transaction.
type VerifyResult struct {
	Status            VerifyStatus
	AmountCents       int64
	ExternalReference string // appointment id echoed back by the provider
}

// RefundResult reports a refund attempt.
type RefundResult struct {
	Success  bool
	RefundID string
}

// Gateway is the capability interface every adapter implements. Calls are
// bounded network I/O; failures surface as typed errors and are never
// retried here — redelivery belongs to the provider's webhook mechanism.
type Gateway interface {
	CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error)
	Verify(ctx context.Context, transactionID string) (*VerifyResult, error)
	Refund(ctx context.Context, transactionID string, amountCents *int64) (*RefundResult, error)
}

const defaultGatewayTimeout = 5 * time.Second
