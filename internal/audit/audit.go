// Package audit appends a record for every mutating operation, successful or
// not, so failures stay traceable without automatic retries.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/clinvia/revenue-engine/pkg/logging"
)

// Outcome of the audited operation.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeDenied  Outcome = "denied"
)

// Entry is one append-only audit record.
type Entry struct {
	ID         uuid.UUID
	ClinicID   string
	Action     string
	EntityType string
	EntityID   string
	Actor      string
	Outcome    Outcome
	Detail     string
	CreatedAt  time.Time
}

// DB abstracts the pgx exec interface for testing.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Sink writes audit entries.
type Sink struct {
	db     DB
	logger *logging.Logger
}

// NewSink creates an audit sink.
func NewSink(db DB, logger *logging.Logger) *Sink {
	if logger == nil {
		logger = logging.Default()
	}
	return &Sink{db: db, logger: logger}
}

// Record appends one entry. An audit write failure is logged but never fails
// the audited operation.
func (s *Sink) Record(ctx context.Context, e Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO audit_log (id, clinic_id, action, entity_type, entity_id, actor, outcome, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		e.ID, e.ClinicID, e.Action, e.EntityType, e.EntityID, e.Actor, string(e.Outcome), e.Detail, e.CreatedAt)
	if err != nil {
		s.logger.Error("audit write failed",
			"action", e.Action, "entity_type", e.EntityType, "entity_id", e.EntityID, "error", err)
	}
}

// ListByEntity returns the audit trail for one entity, newest first.
func (s *Sink) ListByEntity(ctx context.Context, clinicID, entityType, entityID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(ctx, `
		SELECT id, clinic_id, action, entity_type, entity_id, actor, outcome, detail, created_at
		FROM audit_log
		WHERE clinic_id = $1 AND entity_type = $2 AND entity_id = $3
		ORDER BY created_at DESC
		LIMIT $4`, clinicID, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var outcome string
		if err := rows.Scan(&e.ID, &e.ClinicID, &e.Action, &e.EntityType, &e.EntityID,
			&e.Actor, &outcome, &e.Detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Outcome = Outcome(outcome)
		out = append(out, e)
	}
	return out, rows.Err()
}
