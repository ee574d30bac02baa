package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/repository"
)

// fakeKYC holds profiles and modification requests in memory. Decide applies
// approvals to the profile under the same lock, like the SQL transaction.
type fakeKYC struct {
	mu       sync.Mutex
	profiles map[string]*model.Profile
	requests map[string]*model.ModificationRequest
	writes   int
}

func newFakeKYC() *fakeKYC {
	return &fakeKYC{
		profiles: make(map[string]*model.Profile),
		requests: make(map[string]*model.ModificationRequest),
	}
}

func (f *fakeKYC) GetByIdentityID(_ context.Context, identityID string) (*model.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[identityID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeKYC) Create(_ context.Context, m *model.ModificationRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.requests[m.ID] = &cp
	return nil
}

func (f *fakeKYC) GetByID(_ context.Context, id string) (*model.ModificationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.requests[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (f *fakeKYC) Decide(_ context.Context, d repository.Decision) (*model.ModificationRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.requests[d.RequestID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if m.Status != model.ModificationPending {
		return nil, repository.ErrStateChanged
	}
	at := d.DecidedAt
	reviewer := d.ReviewerID
	m.Status = d.Status
	m.ReviewerID = &reviewer
	m.ReviewerNotes = d.Notes
	m.DecidedAt = &at

	if d.Status == model.ModificationApproved {
		p := f.profiles[m.IdentityID]
		setProfileField(p, m.Field, m.NewValue)
		f.writes++
	}
	cp := *m
	return &cp, nil
}

// setProfileField mirrors the single-column write of the SQL repository
func setProfileField(p *model.Profile, f model.EditableField, v string) {
	switch f {
	case model.FieldEmail:
		p.Email = v
	case model.FieldPhone:
		p.Phone = v
	case model.FieldAddress:
		p.Address = v
	case model.FieldCity:
		p.City = v
	case model.FieldPostalCode:
		p.PostalCode = v
	case model.FieldOccupation:
		p.Occupation = v
	case model.FieldEmployer:
		p.Employer = v
	}
}

func (f *fakeKYC) profile(identityID string) model.Profile {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.profiles[identityID]
}

func newModificationFixture(t *testing.T, cfg config.KYCConfig) (*ModificationService, *fakeKYC, *fakeAudit) {
	t.Helper()
	kyc := newFakeKYC()
	kyc.profiles["U1"] = &model.Profile{
		IdentityID: "U1",
		FullName:   "Ana Lima",
		NationalID: "12345678901",
		Email:      "u1@example.com",
		Address:    "1 Old Road",
		City:       "Old City",
	}
	if cfg.EditableFields == nil {
		cfg.EditableFields = []string{"email", "phone", "address", "city", "postal_code", "occupation", "employer"}
	}
	audit := &fakeAudit{}
	svc, err := NewModificationService(kyc, kyc, NewAuditor(audit, logger.Nop()), cfg, logger.Nop())
	if err != nil {
		t.Fatalf("NewModificationService: %v", err)
	}
	return svc, kyc, audit
}

var (
	owner  = Principal{IdentityID: "U1", Role: model.RoleClient}
	admin1 = Principal{IdentityID: "admin1", Role: model.RoleAdmin}
)

func TestModificationApproveAppliesValue(t *testing.T) {
	svc, kyc, audit := newModificationFixture(t, config.KYCConfig{})
	ctx := context.Background()

	req, err := svc.Submit(ctx, "U1", "address", "New City", "moved")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if req.Status != model.ModificationPending || req.OldValue != "1 Old Road" {
		t.Fatalf("unexpected request %+v", req)
	}
	if got := kyc.profile("U1").Address; got != "1 Old Road" {
		t.Fatalf("profile changed before review: %q", got)
	}

	decided, err := svc.Decide(ctx, req.ID, admin1, model.ModificationApproved, "")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.Status != model.ModificationApproved || decided.DecidedAt == nil {
		t.Fatalf("unexpected decision %+v", decided)
	}

	p := kyc.profile("U1")
	if p.Address != "New City" {
		t.Fatalf("address = %q, want New City", p.Address)
	}
	if p.City != "Old City" || p.FullName != "Ana Lima" || p.Email != "u1@example.com" {
		t.Fatalf("other fields must be untouched: %+v", p)
	}

	if _, err := svc.Decide(ctx, req.ID, admin1, model.ModificationRejected, ""); !errors.Is(err, ErrRequestAlreadyDecided) {
		t.Fatalf("expected ErrRequestAlreadyDecided, got %v", err)
	}
	if !audit.has(model.AuditActionModificationApprove) {
		t.Fatalf("approval was not audited")
	}
}

func TestModificationRejectLeavesProfile(t *testing.T) {
	svc, kyc, _ := newModificationFixture(t, config.KYCConfig{})
	ctx := context.Background()

	req, err := svc.Submit(ctx, "U1", "city", "Elsewhere", "moved")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	decided, err := svc.Decide(ctx, req.ID, admin1, model.ModificationRejected, "  proof missing ")
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if decided.ReviewerNotes == nil || *decided.ReviewerNotes != "proof missing" {
		t.Fatalf("notes not recorded: %+v", decided.ReviewerNotes)
	}
	if kyc.writes != 0 || kyc.profile("U1").City != "Old City" {
		t.Fatalf("a rejection must not write the profile")
	}
}

func TestModificationNoOpChange(t *testing.T) {
	svc, kyc, _ := newModificationFixture(t, config.KYCConfig{})

	if _, err := svc.Submit(context.Background(), "U1", "city", " Old City ", "same"); !errors.Is(err, ErrNoOpChange) {
		t.Fatalf("expected ErrNoOpChange, got %v", err)
	}
	if len(kyc.requests) != 0 {
		t.Fatalf("a no-op request must not be stored")
	}
}

func TestModificationRejectsFieldsOutsideAllowList(t *testing.T) {
	svc, _, _ := newModificationFixture(t, config.KYCConfig{EditableFields: []string{"address", "city"}})
	ctx := context.Background()

	for _, field := range []string{"national_id", "full_name", "date_of_birth", "phone", "", "ADDRESS"} {
		if _, err := svc.Submit(ctx, "U1", field, "x", "why"); !errors.Is(err, ErrInvalidField) {
			t.Fatalf("field %q: expected ErrInvalidField, got %v", field, err)
		}
	}
}

func TestModificationValidatesValues(t *testing.T) {
	svc, _, _ := newModificationFixture(t, config.KYCConfig{MaxValueLength: 10, RequireJustifying: true})
	ctx := context.Background()

	cases := []struct {
		field, value, reason string
	}{
		{"address", "", "moved"},
		{"address", "a very long street name", "moved"},
		{"email", "not-an-email", "typo"},
		{"phone", "call me", "new number"},
		{"city", "Elsewhere", ""},
	}
	for _, c := range cases {
		if _, err := svc.Submit(ctx, "U1", c.field, c.value, c.reason); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s=%q reason=%q: expected ErrInvalidInput, got %v", c.field, c.value, c.reason, err)
		}
	}
}

func TestModificationReviewRules(t *testing.T) {
	svc, kyc, _ := newModificationFixture(t, config.KYCConfig{})
	ctx := context.Background()
	kyc.profiles["admin1"] = &model.Profile{IdentityID: "admin1", City: "Capital"}

	req, err := svc.Submit(ctx, "U1", "city", "Elsewhere", "moved")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Decide(ctx, req.ID, owner, model.ModificationApproved, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("a client must not decide, got %v", err)
	}
	if _, err := svc.Decide(ctx, req.ID, admin1, model.ModificationPending, ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("pending is not a decision, got %v", err)
	}
	if _, err := svc.Decide(ctx, "missing", admin1, model.ModificationApproved, ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	own, err := svc.Submit(ctx, "admin1", "city", "Harbour", "moved")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Decide(ctx, own.ID, admin1, model.ModificationApproved, ""); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("an admin must not review their own request, got %v", err)
	}
}

func TestModificationConcurrentDecisions(t *testing.T) {
	svc, kyc, _ := newModificationFixture(t, config.KYCConfig{})
	ctx := context.Background()

	req, err := svc.Submit(ctx, "U1", "address", "2 New Road", "moved")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	reviewers := []Principal{admin1, {IdentityID: "admin2", Role: model.RoleAdmin}}
	errs := make([]error, len(reviewers))
	var wg sync.WaitGroup
	for i, r := range reviewers {
		wg.Add(1)
		go func(i int, r Principal) {
			defer wg.Done()
			_, errs[i] = svc.Decide(ctx, req.ID, r, model.ModificationApproved, "")
		}(i, r)
	}
	wg.Wait()

	var ok, decided int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrRequestAlreadyDecided):
			decided++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	if ok != 1 || decided != 1 || kyc.writes != 1 {
		t.Fatalf("want one decision and one profile write, got ok=%d decided=%d writes=%d", ok, decided, kyc.writes)
	}
}

func TestModificationGetVisibility(t *testing.T) {
	svc, _, _ := newModificationFixture(t, config.KYCConfig{})
	ctx := context.Background()

	req, err := svc.Submit(ctx, "U1", "city", "Elsewhere", "moved")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := svc.Get(ctx, req.ID, owner); err != nil {
		t.Fatalf("owner lookup: %v", err)
	}
	if _, err := svc.Get(ctx, req.ID, admin1); err != nil {
		t.Fatalf("admin lookup: %v", err)
	}
	if _, err := svc.Get(ctx, req.ID, Principal{IdentityID: "U2", Role: model.RoleClient}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized for a stranger, got %v", err)
	}
}

func TestNewModificationServiceRejectsUnknownField(t *testing.T) {
	_, err := NewModificationService(newFakeKYC(), newFakeKYC(), nil, config.KYCConfig{
		EditableFields: []string{"address", "national_id"},
	}, logger.Nop())
	if err == nil {
		t.Fatalf("expected an error for a non-editable configured field")
	}
}
