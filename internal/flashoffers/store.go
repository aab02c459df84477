package flashoffers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the subset of pgx the store needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists pursuit campaigns.
type Store struct {
	db DB
}

// NewStore creates a campaign store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// CreateCampaign inserts the campaign unless one already exists for the
// appointment. The unique constraint on appointment_id makes re-running a
// dispatch idempotent; the returned bool reports whether a row was written.
func (s *Store) CreateCampaign(ctx context.Context, c *Campaign) (bool, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	now := time.Now().UTC()
	c.CreatedAt = now
	c.UpdatedAt = now

	tag, err := s.db.Exec(ctx, `
		INSERT INTO pursuit_campaigns (id, clinic_id, patient_id, appointment_id, campaign_type, channel,
			message, sent, sent_at, converted, converted_at, conversion_value_cents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (appointment_id) DO NOTHING`,
		c.ID, c.ClinicID, c.PatientID, c.AppointmentID, c.CampaignType, c.Channel,
		c.Message, c.Sent, c.SentAt, c.Converted, c.ConvertedAt, c.ConversionValueCents,
		c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return false, fmt.Errorf("flashoffers: create campaign: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkSent records that the rendered message was handed to the delivery
// channel.
func (s *Store) MarkSent(ctx context.Context, clinicID string, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `
		UPDATE pursuit_campaigns
		SET sent = TRUE, sent_at = now(), updated_at = now()
		WHERE clinic_id = $1 AND id = $2`,
		clinicID, id)
	if err != nil {
		return fmt.Errorf("flashoffers: mark sent: %w", err)
	}
	return nil
}

// ConvertibleOffer is a paid flash offer whose campaign has not yet been
// marked converted.
type ConvertibleOffer struct {
	CampaignID      uuid.UUID
	PatientID       string
	AppointmentID   uuid.UUID
	FinalPriceCents int64
}

// ListConvertible returns paid, unconverted flash offers. Payment can only
// land while an offer is still claimable, so no expiry predicate is needed
// here; a late sweep must not strand a paid conversion.
func (s *Store) ListConvertible(ctx context.Context, clinicID string) ([]ConvertibleOffer, error) {
	rows, err := s.db.Query(ctx, `
		SELECT c.id, c.patient_id, c.appointment_id, a.final_price_cents
		FROM pursuit_campaigns c
		JOIN appointments a ON a.id = c.appointment_id AND a.clinic_id = c.clinic_id
		WHERE c.clinic_id = $1
		  AND c.converted = FALSE
		  AND a.is_flash_offer = TRUE
		  AND a.payment_status = 'full_paid'
		ORDER BY c.created_at`,
		clinicID)
	if err != nil {
		return nil, fmt.Errorf("flashoffers: list convertible: %w", err)
	}
	defer rows.Close()

	var out []ConvertibleOffer
	for rows.Next() {
		var o ConvertibleOffer
		if err := rows.Scan(&o.CampaignID, &o.PatientID, &o.AppointmentID, &o.FinalPriceCents); err != nil {
			return nil, fmt.Errorf("flashoffers: scan convertible: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flashoffers: iterate convertible: %w", err)
	}
	return out, nil
}

// MarkConverted records the conversion value. The converted = FALSE guard
// keeps a converted campaign immutable if two sweeps race.
func (s *Store) MarkConverted(ctx context.Context, clinicID string, id uuid.UUID, valueCents int64) (bool, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE pursuit_campaigns
		SET converted = TRUE, converted_at = now(), conversion_value_cents = $3, updated_at = now()
		WHERE clinic_id = $1 AND id = $2 AND converted = FALSE`,
		clinicID, id, valueCents)
	if err != nil {
		return false, fmt.Errorf("flashoffers: mark converted: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
