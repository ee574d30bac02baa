package model

import (
	"time"
)

// Role is the authorization role carried by an identity and its tokens
type Role string

const (
	RoleClient Role = "client"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleClient || r == RoleAdmin
}

// IdentityStatus represents the status of an identity
type IdentityStatus string

const (
	IdentityStatusActive    IdentityStatus = "active"
	IdentityStatusSuspended IdentityStatus = "suspended"
)

// Identity represents a portal login identity
type Identity struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	NationalID   *string        `json:"nationalId,omitempty"`
	Phone        *string        `json:"phone,omitempty"`
	PasswordHash string         `json:"-"` // never expose password hash
	Role         Role           `json:"role"`
	Verified     bool           `json:"verified"`
	Status       IdentityStatus `json:"status"`
	MFAEnabled   bool           `json:"mfaEnabled"`
	TOTPSecret   *string        `json:"-"`
	LastLoginAt  *time.Time     `json:"lastLoginAt,omitempty"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
	DeletedAt    *time.Time     `json:"-"`
}

// IsActive checks if the identity may authenticate
func (i *Identity) IsActive() bool {
	return i.Status == IdentityStatusActive
}

// IsAdmin checks if the identity holds the reviewer role
func (i *Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// HasTOTP reports whether a confirmed TOTP secret is enrolled
func (i *Identity) HasTOTP() bool {
	return i.TOTPSecret != nil && *i.TOTPSecret != ""
}

// Identifiers returns every string an identity can log in with
func (i *Identity) Identifiers() []string {
	ids := []string{i.Email}
	if i.NationalID != nil && *i.NationalID != "" {
		ids = append(ids, *i.NationalID)
	}
	return ids
}
