package tenancy

import (
	"context"
	"errors"
	"fmt"
	"time"

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

// Membership is the active association between a user and a clinic.
type Membership struct {
	UserID   string
	ClinicID string
	Role     Role
	Active   bool
}

// CredentialRow is the stored, still-encrypted secret material for one
// (clinic, provider, environment) triple. The relation is strictly
// one-to-one: lookups return a single row or ErrCredentialResolution.
type CredentialRow struct {
	ClinicID    string
	Provider    string
	Environment string
	Ciphertext  []byte
	Nonce       []byte
	UpdatedAt   time.Time
}

// Store reads clinic memberships and payment credentials.
type Store struct {
	db DB
}

// NewStore creates a tenancy store.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// ActiveMembership returns the active clinic association for a user.
// A missing or inactive row is an authorization failure, not a generic error.
func (s *Store) ActiveMembership(ctx context.Context, userID string) (*Membership, error) {
	var m Membership
	err := s.db.QueryRow(ctx, `
		SELECT user_id, clinic_id, role, active
		FROM clinic_users
		WHERE user_id = $1 AND active = TRUE`, userID).
		Scan(&m.UserID, &m.ClinicID, &m.Role, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tenancy: user %s: %w", userID, apperrors.ErrAuthorization)
		}
		return nil, fmt.Errorf("tenancy: membership lookup: %w", err)
	}
	return &m, nil
}

// CredentialRow loads the encrypted credentials for the exact triple.
// Queries always filter by clinic_id so one tenant can never read another's row.
func (s *Store) CredentialRow(ctx context.Context, clinicID, provider, environment string) (*CredentialRow, error) {
	var row CredentialRow
	err := s.db.QueryRow(ctx, `
		SELECT clinic_id, provider, environment, ciphertext, nonce, updated_at
		FROM payment_credentials
		WHERE clinic_id = $1 AND provider = $2 AND environment = $3`,
		clinicID, provider, environment).
		Scan(&row.ClinicID, &row.Provider, &row.Environment, &row.Ciphertext, &row.Nonce, &row.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tenancy: no credentials for clinic %s provider %s env %s: %w",
				clinicID, provider, environment, apperrors.ErrCredentialResolution)
		}
		return nil, fmt.Errorf("tenancy: credential lookup: %w", err)
	}
	return &row, nil
}
