package model

import (
	"time"
)

// ModificationStatus is the lifecycle state of a modification request
type ModificationStatus string

const (
	ModificationPending  ModificationStatus = "pending"
	ModificationApproved ModificationStatus = "approved"
	ModificationRejected ModificationStatus = "rejected"
)

// Decided reports whether s is a terminal status
func (s ModificationStatus) Decided() bool {
	return s == ModificationApproved || s == ModificationRejected
}

// ModificationRequest is a proposed single-field KYC edit awaiting review
type ModificationRequest struct {
	ID            string             `json:"id"`
	IdentityID    string             `json:"identityId"`
	Field         EditableField      `json:"field"`
	OldValue      string             `json:"oldValue"`
	NewValue      string             `json:"newValue"`
	Justification string             `json:"reason"`
	Status        ModificationStatus `json:"status"`
	ReviewerID    *string            `json:"reviewerId,omitempty"`
	ReviewerNotes *string            `json:"reviewerNotes,omitempty"`
	DecidedAt     *time.Time         `json:"decidedAt,omitempty"`
	CreatedAt     time.Time          `json:"createdAt"`
}
