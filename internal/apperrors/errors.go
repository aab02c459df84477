// Package apperrors defines the error taxonomy shared across the revenue engine.
// Handlers map these to HTTP responses; domain packages wrap them with context.
package apperrors

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication is returned for a missing or invalid bearer token.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization is returned when the user has no active clinic association.
	ErrAuthorization = errors.New("not authorized for this clinic")

	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCredentialResolution is returned when tenant payment credentials
	// cannot be resolved or decrypted. The engine fails closed: no fallback
	// to shared defaults.
	ErrCredentialResolution = errors.New("payment credentials unavailable")
)

// PaymentRequiredError is a non-fatal gating denial. It carries the
// outstanding amount so callers can redirect to checkout.
type PaymentRequiredError struct {
	AppointmentID       string
	RequiredAmountCents int64
}

func (e *PaymentRequiredError) Error() string {
	return fmt.Sprintf("payment required for appointment %s: %d cents outstanding", e.AppointmentID, e.RequiredAmountCents)
}

// GatewayError wraps a failure from an external payment provider. The engine
// never retries internally; redelivery belongs to the provider's webhooks.
type GatewayError struct {
	Provider string
	Op       string
	Err      error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("gateway %s: %s: %v", e.Provider, e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsPaymentRequired reports whether err is a gating denial.
func IsPaymentRequired(err error) bool {
	var pre *PaymentRequiredError
	return errors.As(err, &pre)
}

// IsGateway reports whether err originated at a payment provider.
func IsGateway(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
