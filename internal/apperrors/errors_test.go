package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPaymentRequiredError(t *testing.T) {
	err := &PaymentRequiredError{AppointmentID: "appt-1", RequiredAmountCents: 45000}
	assert.Contains(t, err.Error(), "appt-1")
	assert.Contains(t, err.Error(), "45000")
	assert.True(t, IsPaymentRequired(err))
	assert.True(t, IsPaymentRequired(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsPaymentRequired(errors.New("other")))
}

func TestGatewayErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &GatewayError{Provider: "webpay", Op: "commit", Err: cause}
	assert.True(t, IsGateway(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "webpay")
	assert.False(t, IsGateway(cause))
}
