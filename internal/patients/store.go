package patients

import (
	"context"
	"errors"
	"fmt"

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

// Store provides patient lookups for offer targeting.
type Store struct {
	db DB
}

// NewStore creates a patients store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const patientColumns = `id, clinic_id, name, email, phone, profile, active, in_renewal, abandonment, scarcity, created_at, updated_at`

// Get loads one patient scoped to the clinic.
func (s *Store) Get(ctx context.Context, clinicID, patientID string) (*Patient, error) {
	var p Patient
	err := s.db.QueryRow(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE clinic_id = $1 AND id = $2`, clinicID, patientID).
		Scan(&p.ID, &p.ClinicID, &p.Name, &p.Email, &p.Phone, &p.Profile,
			&p.Active, &p.InRenewal, &p.Abandonment, &p.Scarcity, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("patients: %s: %w", patientID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("patients: get: %w", err)
	}
	return &p, nil
}

// ListPriceSensitive returns active price-sensitive patients who are not
// mid-renewal, bounded by limit. These are the eligible flash-offer leads.
func (s *Store) ListPriceSensitive(ctx context.Context, clinicID string, limit int) ([]Patient, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+patientColumns+`
		FROM patients
		WHERE clinic_id = $1
		  AND profile = $2
		  AND active = TRUE
		  AND in_renewal = FALSE
		ORDER BY updated_at DESC
		LIMIT $3`, clinicID, string(ProfilePriceSensitive), limit)
	if err != nil {
		return nil, fmt.Errorf("patients: list price sensitive: %w", err)
	}
	defer rows.Close()

	var out []Patient
	for rows.Next() {
		var p Patient
		if err := rows.Scan(&p.ID, &p.ClinicID, &p.Name, &p.Email, &p.Phone, &p.Profile,
			&p.Active, &p.InRenewal, &p.Abandonment, &p.Scarcity, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("patients: scan: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetRecoveryFlags marks the patient as having a pending recovery offer.
func (s *Store) SetRecoveryFlags(ctx context.Context, clinicID, patientID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE patients SET abandonment = TRUE, scarcity = TRUE, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2`, clinicID, patientID)
	if err != nil {
		return fmt.Errorf("patients: set recovery flags: %w", err)
	}
	return nil
}

// ClearRecoveryFlags resets the abandonment and scarcity flags after a
// converted offer.
func (s *Store) ClearRecoveryFlags(ctx context.Context, clinicID, patientID string) error {
	_, err := s.db.Exec(ctx, `
		UPDATE patients SET abandonment = FALSE, scarcity = FALSE, updated_at = NOW()
		WHERE clinic_id = $1 AND id = $2`, clinicID, patientID)
	if err != nil {
		return fmt.Errorf("patients: clear recovery flags: %w", err)
	}
	return nil
}
