package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinvia/revenue-engine/internal/apperrors"
)

// DB abstracts the pgx query interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists appointments. Every mutation that depends on payment state
// is a single conditional UPDATE; the affected-row count is the race detector.
type Store struct {
	db DB
}

// NewStore creates an appointments store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const apptColumns = `id, clinic_id, patient_id, service_name, start_at, end_at, status, payment_status,
	final_price_cents, is_flash_offer, discount_pct, flash_offer_expires_at,
	payment_method, payment_transaction_id, confirmed, confirmed_at, cancel_reason, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status, paymentStatus string
	err := row.Scan(&a.ID, &a.ClinicID, &a.PatientID, &a.ServiceName, &a.StartAt, &a.EndAt,
		&status, &paymentStatus, &a.FinalPriceCents, &a.IsFlashOffer, &a.DiscountPct,
		&a.FlashExpiresAt, &a.PaymentMethod, &a.PaymentTransactionID,
		&a.Confirmed, &a.ConfirmedAt, &a.CancelReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	a.PaymentStatus = PaymentStatus(paymentStatus)
	return &a, nil
}

// Get loads one appointment scoped to the clinic.
func (s *Store) Get(ctx context.Context, clinicID string, id uuid.UUID) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND id = $2`, clinicID, id)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("appointments: %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("appointments: get: %w", err)
	}
	return a, nil
}

// Create inserts a new appointment. Flash offers arrive here as proposed
// rows with the discount and expiry already set.
func (s *Store) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	if a.Status == "" {
		a.Status = StatusProposed
	}
	if a.PaymentStatus == "" {
		a.PaymentStatus = PaymentPending
	}
	if a.IsFlashOffer {
		if a.FlashExpiresAt == nil || !a.FlashExpiresAt.After(now) {
			return fmt.Errorf("appointments: flash offer expiry must be in the future")
		}
	}

	_, err := s.db.Exec(ctx, `
		INSERT INTO appointments (id, clinic_id, patient_id, service_name, start_at, end_at, status, payment_status,
			final_price_cents, is_flash_offer, discount_pct, flash_offer_expires_at,
			payment_method, payment_transaction_id, confirmed, confirmed_at, cancel_reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		a.ID, a.ClinicID, a.PatientID, a.ServiceName, a.StartAt, a.EndAt,
		string(a.Status), string(a.PaymentStatus), a.FinalPriceCents, a.IsFlashOffer,
		a.DiscountPct, a.FlashExpiresAt, a.PaymentMethod, a.PaymentTransactionID,
		a.Confirmed, a.ConfirmedAt, a.CancelReason, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointments: create: %w", err)
	}
	return nil
}

// ListConfirmedBetween returns paid, non-cancelled appointments overlapping
// [from, to), ordered by start time. This is the calendar the gap detector
// walks; unpaid proposals do not hold slots.
func (s *Store) ListConfirmedBetween(ctx context.Context, clinicID string, from, to time.Time) ([]Appointment, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE clinic_id = $1
		  AND status IN ('booked', 'arrived', 'fulfilled')
		  AND start_at < $3 AND end_at > $2
		ORDER BY start_at ASC`, clinicID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list between: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetByTransactionID finds the appointment a pending gateway transaction was
// opened for. Used by the Webpay return path, which only carries the token.
func (s *Store) GetByTransactionID(ctx context.Context, clinicID, transactionID string) (*Appointment, error) {
	row := s.db.QueryRow(ctx, `
		SELECT `+apptColumns+`
		FROM appointments
		WHERE clinic_id = $1 AND payment_transaction_id = $2`, clinicID, transactionID)
	a, err := scanAppointment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("appointments: transaction %s: %w", transactionID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("appointments: get by transaction: %w", err)
	}
	return a, nil
}

// SetPaymentTransaction records the provider transaction id on a still
// pending appointment when checkout is created.
func (s *Store) SetPaymentTransaction(ctx context.Context, clinicID string, id uuid.UUID, transactionID string) error {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET payment_transaction_id = $3, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2 AND payment_status = 'pending'`,
		clinicID, id, transactionID)
	if err != nil {
		return fmt.Errorf("appointments: set transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("appointments: no pending appointment %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

// TransitionStatus performs the gated status change as one conditional write.
// For paid-gated targets the payment check is part of the WHERE clause, so a
// concurrent confirmation or expiry can never slip through between check and
// act. Returns true when the row transitioned.
func (s *Store) TransitionStatus(ctx context.Context, clinicID string, id uuid.UUID, target Status) (bool, error) {
	var tag pgconn.CommandTag
	var err error
	if PaidGated(target) {
		tag, err = s.db.Exec(ctx, `
			UPDATE appointments
			SET status = $3, updated_at = NOW()
			WHERE clinic_id = $1 AND id = $2
			  AND payment_status = 'full_paid'
			  AND status <> 'cancelled'`, clinicID, id, string(target))
	} else {
		tag, err = s.db.Exec(ctx, `
			UPDATE appointments
			SET status = $3, updated_at = NOW()
			WHERE clinic_id = $1 AND id = $2
			  AND status <> 'cancelled'`, clinicID, id, string(target))
	}
	if err != nil {
		return false, fmt.Errorf("appointments: transition to %s: %w", target, err)
	}
	return tag.RowsAffected() > 0, nil
}

// ConfirmPayment marks the appointment fully paid and booked in one write.
// The pending guard makes duplicate webhook deliveries and sweep races
// first-writer-wins: zero rows means someone else got there.
func (s *Store) ConfirmPayment(ctx context.Context, clinicID string, id uuid.UUID, transactionID, method string) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET payment_status = 'full_paid',
		    status = 'booked',
		    confirmed = TRUE,
		    confirmed_at = NOW(),
		    payment_method = $3,
		    payment_transaction_id = $4,
		    updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2
		  AND payment_status = 'pending'
		  AND status <> 'cancelled'`, clinicID, id, method, transactionID)
	if err != nil {
		return false, fmt.Errorf("appointments: confirm payment: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CancelSiblingProposals cancels every still-pending flash proposal that
// targets the same physical window, after one of them has been paid.
func (s *Store) CancelSiblingProposals(ctx context.Context, clinicID string, winner uuid.UUID, startAt, endAt time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancel_reason = $5, updated_at = NOW()
		WHERE clinic_id = $1 AND id <> $2
		  AND is_flash_offer = TRUE
		  AND payment_status = 'pending'
		  AND status = 'proposed'
		  AND start_at = $3 AND end_at = $4`,
		clinicID, winner, startAt, endAt, CancelReasonSlotTaken)
	if err != nil {
		return 0, fmt.Errorf("appointments: cancel siblings: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ExpireFlashOffers cancels exactly the expired, still-pending flash offers.
// Paid or already-cancelled rows match nothing in the WHERE clause.
func (s *Store) ExpireFlashOffers(ctx context.Context, clinicID string, now time.Time) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE appointments
		SET status = 'cancelled', cancel_reason = $3, updated_at = NOW()
		WHERE clinic_id = $1
		  AND is_flash_offer = TRUE
		  AND payment_status = 'pending'
		  AND status <> 'cancelled'
		  AND flash_offer_expires_at < $2`,
		clinicID, now, CancelReasonOfferExpired)
	if err != nil {
		return 0, fmt.Errorf("appointments: expire flash offers: %w", err)
	}
	return tag.RowsAffected(), nil
}
