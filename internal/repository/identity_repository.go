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

const identityColumns = `
	id, email, national_id, phone, password_hash, role, verified, status,
	mfa_enabled, totp_secret, last_login_at, created_at, updated_at`

// IdentityRepository handles identity persistence
type IdentityRepository struct {
	db *database.Postgres
}

// NewIdentityRepository creates a new IdentityRepository
func NewIdentityRepository(db *database.Postgres) *IdentityRepository {
	return &IdentityRepository{db: db}
}

// Create inserts a new identity
func (r *IdentityRepository) Create(ctx context.Context, identity *model.Identity) error {
	query := `
		INSERT INTO identities (id, email, national_id, phone, password_hash, role,
		    verified, status, mfa_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.ExecContext(ctx, query,
		identity.ID,
		identity.Email,
		identity.NationalID,
		identity.Phone,
		identity.PasswordHash,
		identity.Role,
		identity.Verified,
		identity.Status,
		identity.MFAEnabled,
		identity.CreatedAt,
		identity.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create identity: %w", err)
	}
	return nil
}

// GetByID retrieves an identity by ID (excludes soft-deleted)
func (r *IdentityRepository) GetByID(ctx context.Context, id string) (*model.Identity, error) {
	query := `SELECT` + identityColumns + `
		FROM identities
		WHERE id = $1 AND deleted_at IS NULL
	`
	return r.scanIdentity(r.db.QueryRowContext(ctx, query, id))
}

// GetByEmail retrieves an identity by case-insensitive email
func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*model.Identity, error) {
	query := `SELECT` + identityColumns + `
		FROM identities
		WHERE lower(email) = lower($1) AND deleted_at IS NULL
	`
	return r.scanIdentity(r.db.QueryRowContext(ctx, query, email))
}

// GetByNationalID retrieves an identity by national id number
func (r *IdentityRepository) GetByNationalID(ctx context.Context, nationalID string) (*model.Identity, error) {
	query := `SELECT` + identityColumns + `
		FROM identities
		WHERE national_id = $1 AND deleted_at IS NULL
	`
	return r.scanIdentity(r.db.QueryRowContext(ctx, query, nationalID))
}

// UpdatePasswordHash replaces the identity's password hash
func (r *IdentityRepository) UpdatePasswordHash(ctx context.Context, id string, hash string) error {
	query := `UPDATE identities SET password_hash = $1, updated_at = $2 WHERE id = $3 AND deleted_at IS NULL`
	return r.execOne(ctx, "update password", query, hash, time.Now().UTC(), id)
}

// UpdateLastLogin stamps a successful authentication
func (r *IdentityRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE identities SET last_login_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	return r.execOne(ctx, "update last login", query, at, id)
}

// EnableTOTP stores a confirmed TOTP secret and turns MFA on
func (r *IdentityRepository) EnableTOTP(ctx context.Context, id string, secret string) error {
	query := `
		UPDATE identities
		SET totp_secret = $1, mfa_enabled = true, updated_at = $2
		WHERE id = $3 AND deleted_at IS NULL
	`
	return r.execOne(ctx, "enable totp", query, secret, time.Now().UTC(), id)
}

// MarkVerified sets the verified flag
func (r *IdentityRepository) MarkVerified(ctx context.Context, id string) error {
	query := `UPDATE identities SET verified = true, updated_at = $1 WHERE id = $2 AND deleted_at IS NULL`
	return r.execOne(ctx, "mark identity verified", query, time.Now().UTC(), id)
}

func (r *IdentityRepository) execOne(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// scanIdentity scans a single identity row
func (r *IdentityRepository) scanIdentity(row *sql.Row) (*model.Identity, error) {
	var identity model.Identity
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.NationalID,
		&identity.Phone,
		&identity.PasswordHash,
		&identity.Role,
		&identity.Verified,
		&identity.Status,
		&identity.MFAEnabled,
		&identity.TOTPSecret,
		&identity.LastLoginAt,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan identity: %w", err)
	}
	return &identity, nil
}
