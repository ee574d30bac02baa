package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bankportal/idcore/internal/database"
	"github.com/bankportal/idcore/internal/model"
)

// ProfileRepository handles KYC profile persistence
type ProfileRepository struct {
	db *database.Postgres
}

// NewProfileRepository creates a new ProfileRepository
func NewProfileRepository(db *database.Postgres) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// Create inserts a profile for an identity
func (r *ProfileRepository) Create(ctx context.Context, p *model.Profile) error {
	query := `
		INSERT INTO profiles (identity_id, full_name, national_id, date_of_birth, email,
		    phone, address, city, postal_code, occupation, employer, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		p.IdentityID, p.FullName, p.NationalID, p.DateOfBirth, p.Email,
		p.Phone, p.Address, p.City, p.PostalCode, p.Occupation, p.Employer, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}
	return nil
}

// GetByIdentityID retrieves the profile owned by an identity
func (r *ProfileRepository) GetByIdentityID(ctx context.Context, identityID string) (*model.Profile, error) {
	query := `
		SELECT identity_id, full_name, national_id, date_of_birth, email, phone,
		       address, city, postal_code, occupation, employer, updated_at
		FROM profiles
		WHERE identity_id = $1
	`
	var p model.Profile
	err := r.db.QueryRowContext(ctx, query, identityID).Scan(
		&p.IdentityID,
		&p.FullName,
		&p.NationalID,
		&p.DateOfBirth,
		&p.Email,
		&p.Phone,
		&p.Address,
		&p.City,
		&p.PostalCode,
		&p.Occupation,
		&p.Employer,
		&p.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &p, nil
}
