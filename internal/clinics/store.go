package clinics

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

// Store reads clinic rows.
type Store struct {
	db DB
}

// NewStore creates a clinics store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

const clinicColumns = `id, name, active, open_time, close_time, timezone, base_price_cents, provider, environment, created_at, updated_at`

// Get loads a clinic by id.
func (s *Store) Get(ctx context.Context, clinicID string) (*Clinic, error) {
	var c Clinic
	err := s.db.QueryRow(ctx, `
		SELECT `+clinicColumns+`
		FROM clinics
		WHERE id = $1`, clinicID).
		Scan(&c.ID, &c.Name, &c.Active, &c.OpenTime, &c.CloseTime, &c.Timezone,
			&c.BasePriceCents, &c.Provider, &c.Environment, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("clinics: %s: %w", clinicID, apperrors.ErrNotFound)
		}
		return nil, fmt.Errorf("clinics: get: %w", err)
	}
	return &c, nil
}

// ListActive returns every active clinic, for the periodic sweeps.
func (s *Store) ListActive(ctx context.Context) ([]Clinic, error) {
	rows, err := s.db.Query(ctx, `
		SELECT `+clinicColumns+`
		FROM clinics
		WHERE active = TRUE
		ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("clinics: list active: %w", err)
	}
	defer rows.Close()

	var out []Clinic
	for rows.Next() {
		var c Clinic
		if err := rows.Scan(&c.ID, &c.Name, &c.Active, &c.OpenTime, &c.CloseTime, &c.Timezone,
			&c.BasePriceCents, &c.Provider, &c.Environment, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("clinics: scan: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
