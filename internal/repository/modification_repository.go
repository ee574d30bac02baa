package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bankportal/idcore/internal/database"
	"github.com/bankportal/idcore/internal/model"
)

// Decision is a reviewer's verdict on a pending modification request
type Decision struct {
	RequestID  string
	Status     model.ModificationStatus
	ReviewerID string
	Notes      *string
	DecidedAt  time.Time
}

// ModificationRepository handles modification request persistence
type ModificationRepository struct {
	db *database.Postgres
}

// NewModificationRepository creates a new ModificationRepository
func NewModificationRepository(db *database.Postgres) *ModificationRepository {
	return &ModificationRepository{db: db}
}

// Create inserts a pending modification request
func (r *ModificationRepository) Create(ctx context.Context, m *model.ModificationRequest) error {
	query := `
		INSERT INTO modification_requests (id, identity_id, field, old_value, new_value,
		    justification, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.IdentityID, m.Field, m.OldValue, m.NewValue,
		m.Justification, m.Status, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create modification request: %w", err)
	}
	return nil
}

// GetByID retrieves a modification request
func (r *ModificationRepository) GetByID(ctx context.Context, id string) (*model.ModificationRequest, error) {
	query := `
		SELECT id, identity_id, field, old_value, new_value, justification, status,
		       reviewer_id, reviewer_notes, decided_at, created_at
		FROM modification_requests
		WHERE id = $1
	`
	var m model.ModificationRequest
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&m.ID,
		&m.IdentityID,
		&m.Field,
		&m.OldValue,
		&m.NewValue,
		&m.Justification,
		&m.Status,
		&m.ReviewerID,
		&m.ReviewerNotes,
		&m.DecidedAt,
		&m.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get modification request: %w", err)
	}
	return &m, nil
}

// Decide moves a pending request to its terminal status and, on approval,
// writes the new value into the single profile column named by the request.
// Both happen in one transaction. A request that is no longer pending yields
// ErrStateChanged; an unknown id yields ErrNotFound.
func (r *ModificationRepository) Decide(ctx context.Context, d Decision) (*model.ModificationRequest, error) {
	var decided model.ModificationRequest

	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		casQuery := `
			UPDATE modification_requests
			SET status = $1, reviewer_id = $2, reviewer_notes = $3, decided_at = $4
			WHERE id = $5 AND status = 'pending'
			RETURNING id, identity_id, field, old_value, new_value, justification, status,
			          reviewer_id, reviewer_notes, decided_at, created_at
		`
		err := tx.QueryRowContext(ctx, casQuery, d.Status, d.ReviewerID, d.Notes, d.DecidedAt, d.RequestID).Scan(
			&decided.ID,
			&decided.IdentityID,
			&decided.Field,
			&decided.OldValue,
			&decided.NewValue,
			&decided.Justification,
			&decided.Status,
			&decided.ReviewerID,
			&decided.ReviewerNotes,
			&decided.DecidedAt,
			&decided.CreatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM modification_requests WHERE id = $1)`, d.RequestID,
			).Scan(&exists); err != nil {
				return fmt.Errorf("failed to check modification request: %w", err)
			}
			if exists {
				return ErrStateChanged
			}
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to decide modification request: %w", err)
		}

		if decided.Status != model.ModificationApproved {
			return nil
		}

		field, ok := model.ParseEditableField(string(decided.Field))
		if !ok {
			return fmt.Errorf("modification request %s targets unknown field %q", decided.ID, decided.Field)
		}

		// Column comes from the closed EditableField table, never from input.
		applyQuery := `UPDATE profiles SET ` + field.Column() + ` = $1, updated_at = $2 WHERE identity_id = $3`
		result, err := tx.ExecContext(ctx, applyQuery, decided.NewValue, d.DecidedAt, decided.IdentityID)
		if err != nil {
			return fmt.Errorf("failed to apply modification: %w", err)
		}
		if n, _ := result.RowsAffected(); n != 1 {
			return fmt.Errorf("failed to apply modification: profile for %s not found", decided.IdentityID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &decided, nil
}
