package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/metrics"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/repository"
	"github.com/oklog/ulid/v2"
)

// Principal is the authenticated caller of an operation
type Principal struct {
	IdentityID string
	Role       model.Role
}

// IsAdmin reports whether the caller may review modification requests
func (p Principal) IsAdmin() bool {
	return p.Role == model.RoleAdmin
}

// ModificationService queues single-field KYC edits for independent review
type ModificationService struct {
	profiles  ProfileStore
	requests  ModificationStore
	editable  map[model.EditableField]bool
	maxValue  int
	maxReason int
	needsWhy  bool
	audit     *Auditor
	log       *logger.Logger
	now       func() time.Time
}

// NewModificationService creates a new ModificationService. Configured field
// names must all be known editable fields.
func NewModificationService(profiles ProfileStore, requests ModificationStore, audit *Auditor, cfg config.KYCConfig, log *logger.Logger) (*ModificationService, error) {
	editable := make(map[model.EditableField]bool, len(cfg.EditableFields))
	for _, name := range cfg.EditableFields {
		f, ok := model.ParseEditableField(strings.TrimSpace(name))
		if !ok {
			return nil, fmt.Errorf("kyc.editable_fields: %q is not an editable profile field", name)
		}
		editable[f] = true
	}

	return &ModificationService{
		profiles:  profiles,
		requests:  requests,
		editable:  editable,
		maxValue:  cfg.MaxValueLength,
		maxReason: cfg.MaxReasonLength,
		needsWhy:  cfg.RequireJustifying,
		audit:     audit,
		log:       log.WithComponent("modification_service"),
		now:       time.Now,
	}, nil
}

// Submit records a pending change of one profile field. Nothing is written
// to the profile until a reviewer approves.
func (s *ModificationService) Submit(ctx context.Context, identityID, fieldName, newValue, justification string) (*model.ModificationRequest, error) {
	field, ok := model.ParseEditableField(fieldName)
	if !ok || !s.editable[field] {
		return nil, ErrInvalidField
	}

	newValue = strings.TrimSpace(newValue)
	justification = strings.TrimSpace(justification)
	if err := s.validateValue(field, newValue); err != nil {
		return nil, err
	}
	if s.needsWhy && justification == "" {
		return nil, fmt.Errorf("%w: a reason is required", ErrInvalidInput)
	}
	if s.maxReason > 0 && utf8.RuneCountInString(justification) > s.maxReason {
		return nil, fmt.Errorf("%w: reason is too long", ErrInvalidInput)
	}

	profile, err := s.profiles.GetByIdentityID(ctx, identityID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	current := field.Get(profile)
	if current == newValue {
		return nil, ErrNoOpChange
	}

	req := &model.ModificationRequest{
		ID:            ulid.Make().String(),
		IdentityID:    identityID,
		Field:         field,
		OldValue:      current,
		NewValue:      newValue,
		Justification: justification,
		Status:        model.ModificationPending,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.requests.Create(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to store modification request: %w", err)
	}

	s.audit.Record(ctx, identityID, model.AuditActionModificationSubmit, "modification_request", req.ID, map[string]interface{}{
		"field": string(field),
	})
	return req, nil
}

func (s *ModificationService) validateValue(field model.EditableField, value string) error {
	if value == "" {
		return fmt.Errorf("%w: new value is required", ErrInvalidInput)
	}
	if s.maxValue > 0 && utf8.RuneCountInString(value) > s.maxValue {
		return fmt.Errorf("%w: new value is too long", ErrInvalidInput)
	}

	switch field {
	case model.FieldEmail:
		if auth.ClassifyIdentifier(strings.ToLower(value)) != auth.IdentifierEmail {
			return fmt.Errorf("%w: not a valid email address", ErrInvalidInput)
		}
	case model.FieldPhone:
		for _, r := range value {
			if !strings.ContainsRune("+0123456789 -()", r) {
				return fmt.Errorf("%w: not a valid phone number", ErrInvalidInput)
			}
		}
	}
	return nil
}

// Decide approves or rejects a pending request. Approval writes the new
// value into exactly the requested profile field in the same transaction
// that closes the request.
func (s *ModificationService) Decide(ctx context.Context, requestID string, reviewer Principal, outcome model.ModificationStatus, notes string) (*model.ModificationRequest, error) {
	if !reviewer.IsAdmin() {
		return nil, ErrUnauthorized
	}
	if !outcome.Decided() {
		return nil, fmt.Errorf("%w: status must be approved or rejected", ErrInvalidInput)
	}

	existing, err := s.requests.GetByID(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get modification request: %w", err)
	}
	if existing.IdentityID == reviewer.IdentityID {
		return nil, ErrUnauthorized
	}
	if existing.Status.Decided() {
		return nil, ErrRequestAlreadyDecided
	}

	decided, err := s.requests.Decide(ctx, repository.Decision{
		RequestID:  requestID,
		Status:     outcome,
		ReviewerID: reviewer.IdentityID,
		Notes:      optional(strings.TrimSpace(notes)),
		DecidedAt:  s.now().UTC(),
	})
	switch {
	case errors.Is(err, repository.ErrStateChanged):
		return nil, ErrRequestAlreadyDecided
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("failed to decide modification request: %w", err)
	}

	metrics.ModificationDecisions.WithLabelValues(string(outcome)).Inc()
	action := model.AuditActionModificationReject
	if outcome == model.ModificationApproved {
		action = model.AuditActionModificationApprove
	}
	s.audit.Record(ctx, reviewer.IdentityID, action, "modification_request", decided.ID, map[string]interface{}{
		"owner": decided.IdentityID,
		"field": string(decided.Field),
	})
	s.log.Info().
		Str("request_id", decided.ID).
		Str("reviewer_id", reviewer.IdentityID).
		Str("status", string(outcome)).
		Msg("modification request decided")
	return decided, nil
}

// Get returns one request to its owner or to an admin
func (s *ModificationService) Get(ctx context.Context, requestID string, caller Principal) (*model.ModificationRequest, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get modification request: %w", err)
	}
	if req.IdentityID != caller.IdentityID && !caller.IsAdmin() {
		return nil, ErrUnauthorized
	}
	return req, nil
}
