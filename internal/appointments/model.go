// Package appointments owns the appointment state machine. The one rule the
// engine exists to enforce: no appointment is confirmed without full
// prepayment.
package appointments

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusBooked    Status = "booked"
	StatusArrived   Status = "arrived"
	StatusFulfilled Status = "fulfilled"
	StatusCancelled Status = "cancelled"
)

// PaymentStatus tracks prepayment.
type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentFullPaid PaymentStatus = "full_paid"
)

// PaidGated reports whether the target status requires full prepayment.
func PaidGated(target Status) bool {
	switch target {
	case StatusBooked, StatusArrived, StatusFulfilled:
		return true
	default:
		return false
	}
}

// Cancellation reasons recorded on status = cancelled.
const (
	CancelReasonOfferExpired = "flash_offer_expired"
	CancelReasonSlotTaken    = "slot_taken"
)

// Appointment is a calendar entry. Flash offers are ordinary appointments
// flagged is_flash_offer with a discount and an expiry.
type Appointment struct {
	ID                   uuid.UUID
	ClinicID             string
	PatientID            string
	ServiceName          string
	StartAt              time.Time
	EndAt                time.Time
	Status               Status
	PaymentStatus        PaymentStatus
	FinalPriceCents      int64
	IsFlashOffer         bool
	DiscountPct          int
	FlashExpiresAt       *time.Time
	PaymentMethod        string
	PaymentTransactionID string
	Confirmed            bool
	ConfirmedAt          *time.Time
	CancelReason         string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// GateDecision is the read-only answer from CheckGate. When Allowed is false,
// RequiredAmountCents carries the outstanding balance so the caller can
// redirect to checkout.
type GateDecision struct {
	Allowed             bool
	Reason              string
	RequiredAmountCents int64
}
