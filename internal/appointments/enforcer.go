package appointments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/clinvia/revenue-engine/internal/apperrors"
	"github.com/clinvia/revenue-engine/internal/audit"
	"github.com/clinvia/revenue-engine/pkg/logging"
)

// Enforcer guards appointment status transitions against the prepayment
// invariant and performs the confirmation path invoked from verified
// gateway callbacks.
type Enforcer struct {
	store  *Store
	audit  *audit.Sink
	logger *logging.Logger
}

// NewEnforcer creates the gating enforcer.
func NewEnforcer(store *Store, auditSink *audit.Sink, logger *logging.Logger) *Enforcer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Enforcer{store: store, audit: auditSink, logger: logger}
}

// CheckGate is a read-only predicate: it never mutates state. An unpaid
// appointment is denied for every requested target, and the decision carries
// the outstanding amount. The actual transition happens in Transition as a
// single conditional write, so this check is advisory only.
func (e *Enforcer) CheckGate(ctx context.Context, clinicID string, id uuid.UUID, target Status) (GateDecision, error) {
	a, err := e.store.Get(ctx, clinicID, id)
	if err != nil {
		return GateDecision{}, err
	}
	if a.PaymentStatus != PaymentFullPaid {
		return GateDecision{
			Allowed:             false,
			Reason:              "payment required",
			RequiredAmountCents: a.FinalPriceCents,
		}, nil
	}
	if a.Status == StatusCancelled {
		return GateDecision{Allowed: false, Reason: "appointment cancelled"}, nil
	}
	return GateDecision{Allowed: true}, nil
}

// Transition applies the status change as one conditional write. A zero-row
// result is disambiguated after the fact: missing row, cancelled row, or a
// gating denial carrying the outstanding amount.
func (e *Enforcer) Transition(ctx context.Context, clinicID string, id uuid.UUID, target Status, actor string) error {
	moved, err := e.store.TransitionStatus(ctx, clinicID, id, target)
	if err != nil {
		e.recordAudit(ctx, clinicID, "transition_"+string(target), id, actor, audit.OutcomeFailure, err.Error())
		return err
	}
	if moved {
		e.recordAudit(ctx, clinicID, "transition_"+string(target), id, actor, audit.OutcomeSuccess, "")
		return nil
	}

	a, err := e.store.Get(ctx, clinicID, id)
	if err != nil {
		e.recordAudit(ctx, clinicID, "transition_"+string(target), id, actor, audit.OutcomeFailure, "row missing")
		return err
	}
	if PaidGated(target) && a.PaymentStatus != PaymentFullPaid {
		e.recordAudit(ctx, clinicID, "transition_"+string(target), id, actor, audit.OutcomeDenied, "payment required")
		return &apperrors.PaymentRequiredError{
			AppointmentID:       id.String(),
			RequiredAmountCents: a.FinalPriceCents,
		}
	}
	e.recordAudit(ctx, clinicID, "transition_"+string(target), id, actor, audit.OutcomeDenied, "appointment cancelled")
	return fmt.Errorf("appointments: %s is cancelled: %w", id, apperrors.ErrNotFound)
}

// ConfirmPayment is callable only from a verified gateway callback path. It
// sets payment and status in one conditional write; losing the race to a
// duplicate delivery is not an error. After a flash-offer confirmation the
// remaining proposals for the same physical window are cancelled.
func (e *Enforcer) ConfirmPayment(ctx context.Context, clinicID string, id uuid.UUID, transactionID, method, actor string) error {
	confirmed, err := e.store.ConfirmPayment(ctx, clinicID, id, transactionID, method)
	if err != nil {
		e.recordAudit(ctx, clinicID, "confirm_payment", id, actor, audit.OutcomeFailure, err.Error())
		return err
	}
	if !confirmed {
		a, getErr := e.store.Get(ctx, clinicID, id)
		if getErr != nil {
			e.recordAudit(ctx, clinicID, "confirm_payment", id, actor, audit.OutcomeFailure, "row missing")
			return getErr
		}
		if a.PaymentStatus == PaymentFullPaid {
			// Duplicate webhook delivery; the first one won.
			e.logger.Info("payment already confirmed", "appointment_id", id, "transaction_id", transactionID)
			e.recordAudit(ctx, clinicID, "confirm_payment", id, actor, audit.OutcomeSuccess, "duplicate delivery")
			return nil
		}
		e.recordAudit(ctx, clinicID, "confirm_payment", id, actor, audit.OutcomeDenied, "appointment cancelled before payment")
		return fmt.Errorf("appointments: %s was cancelled before payment completed: %w", id, apperrors.ErrNotFound)
	}

	e.recordAudit(ctx, clinicID, "confirm_payment", id, actor, audit.OutcomeSuccess, "txn "+transactionID)

	a, err := e.store.Get(ctx, clinicID, id)
	if err != nil {
		return nil
	}
	if a.IsFlashOffer {
		cancelled, err := e.store.CancelSiblingProposals(ctx, clinicID, id, a.StartAt, a.EndAt)
		if err != nil {
			e.logger.Error("sibling proposal cleanup failed", "appointment_id", id, "error", err)
			return nil
		}
		if cancelled > 0 {
			e.logger.Info("cancelled losing proposals for window",
				"appointment_id", id, "count", cancelled)
		}
	}
	return nil
}

func (e *Enforcer) recordAudit(ctx context.Context, clinicID, action string, id uuid.UUID, actor string, outcome audit.Outcome, detail string) {
	if e.audit == nil {
		return
	}
	e.audit.Record(ctx, audit.Entry{
		ClinicID:   clinicID,
		Action:     action,
		EntityType: "appointment",
		EntityID:   id.String(),
		Actor:      actor,
		Outcome:    outcome,
		Detail:     detail,
	})
}
