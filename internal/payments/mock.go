package payments

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinvia/revenue-engine/pkg/logging"
)

const mockTransactionPrefix = "mock_"

// OutcomeStrategy picks simulated payment outcomes. The default is weighted
// randomness; tests inject a fixed strategy to force each branch.
type OutcomeStrategy interface {
	CheckoutOutcome() VerifyStatus
	VerifyOutcome() VerifyStatus
}

// WeightedOutcomes draws checkout outcomes at 80% approved, 15% pending,
// 5% rejected, and verify outcomes at 90% approved.
type WeightedOutcomes struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewWeightedOutcomes creates the default strategy. A zero seed seeds from
// the clock.
func NewWeightedOutcomes(seed int64) *WeightedOutcomes {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &WeightedOutcomes{rng: rand.New(rand.NewSource(seed))}
}

func (w *WeightedOutcomes) CheckoutOutcome() VerifyStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch n := w.rng.Intn(100); {
	case n < 80:
		return StatusApproved
	case n < 95:
		return StatusPending
	default:
		return StatusRejected
	}
}

func (w *WeightedOutcomes) VerifyOutcome() VerifyStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.rng.Intn(100) < 90 {
		return StatusApproved
	}
	return StatusRejected
}

// FixedOutcomes always returns the configured statuses.
type FixedOutcomes struct {
	Checkout VerifyStatus
	Verify   VerifyStatus
}

func (f FixedOutcomes) CheckoutOutcome() VerifyStatus { return f.Checkout }
func (f FixedOutcomes) VerifyOutcome() VerifyStatus   { return f.Verify }

// MockGateway simulates a provider without any network I/O. It is selected
// only when mock mode is explicitly enabled in configuration.
type MockGateway struct {
	publicBaseURL string
	delay         time.Duration
	strategy      OutcomeStrategy
	logger        *logging.Logger
}

// NewMockGateway creates the mock adapter.
func NewMockGateway(publicBaseURL string, delay time.Duration, strategy OutcomeStrategy, logger *logging.Logger) *MockGateway {
	if strategy == nil {
		strategy = NewWeightedOutcomes(0)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &MockGateway{
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		delay:         delay,
		strategy:      strategy,
		logger:        logger,
	}
}

// CreateCheckout resolves after a simulated delay to one weighted outcome.
func (g *MockGateway) CreateCheckout(ctx context.Context, params CheckoutParams) (*CheckoutResponse, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	outcome := g.strategy.CheckoutOutcome()
	txnID := mockTransactionPrefix + uuid.NewString()
	g.logger.Info("mock checkout created",
		"appointment_id", params.AppointmentID, "outcome", string(outcome), "transaction_id", txnID)

	return &CheckoutResponse{
		URL:           fmt.Sprintf("%s/payments/mock/%s?outcome=%s", g.publicBaseURL, txnID, outcome),
		TransactionID: txnID,
	}, nil
}

// Verify rejects anything that is not a mock transaction id; mock ids resolve
// through the strategy.
func (g *MockGateway) Verify(ctx context.Context, transactionID string) (*VerifyResult, error) {
	_ = ctx
	if !strings.HasPrefix(transactionID, mockTransactionPrefix) {
		return &VerifyResult{Status: StatusRejected}, nil
	}
	return &VerifyResult{Status: g.strategy.VerifyOutcome()}, nil
}

// Refund always succeeds for mock transactions.
func (g *MockGateway) Refund(ctx context.Context, transactionID string, amountCents *int64) (*RefundResult, error) {
	_ = ctx
	if !strings.HasPrefix(transactionID, mockTransactionPrefix) {
		return &RefundResult{Success: false}, nil
	}
	return &RefundResult{Success: true, RefundID: "mockref_" + uuid.NewString()}, nil
}
