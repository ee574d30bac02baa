package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bankportal/idcore/internal/model"
)

func TestForgotPasswordUniformResponse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addIdentity(t, "U1", "u1@example.com")

	if err := h.reset.Request(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("Request for unknown identifier: %v", err)
	}
	if h.notifier.count() != 0 {
		t.Fatalf("no code may be sent for an unknown identifier")
	}
	if n := h.audit.count(model.AuditActionPasswordResetRequest); n != 1 {
		t.Fatalf("unknown identifiers must be audited like known ones, got %d entries", n)
	}

	if err := h.reset.Request(ctx, "u1@example.com"); err != nil {
		t.Fatalf("Request for known identifier: %v", err)
	}
	sent := h.notifier.last(t)
	if sent.Channel != model.ChannelEmail || sent.Destination != "u1@example.com" || sent.Purpose != model.PurposePasswordReset {
		t.Fatalf("unexpected notification %+v", sent)
	}
	if n := h.audit.count(model.AuditActionPasswordResetRequest); n != 2 {
		t.Fatalf("expected one audit entry per request, got %d", n)
	}

	// Codes for the unknown identifier never verify
	if _, err := h.reset.VerifyCode(ctx, "ghost@example.com", sent.Code); err == nil {
		t.Fatalf("a code for another identifier must not verify")
	}
}

func TestForgotPasswordRoutesNationalIDToPhone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addIdentity(t, "U1", "u1@example.com", withNationalID("12345678901"), withPhone("+5511999990000"))
	h.addIdentity(t, "U2", "u2@example.com", withNationalID("10987654321"))

	if err := h.reset.Request(ctx, "12345678901"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if sent := h.notifier.last(t); sent.Channel != model.ChannelSMS || sent.Destination != "+5511999990000" {
		t.Fatalf("expected SMS to the registered phone, got %+v", sent)
	}

	if err := h.reset.Request(ctx, "10987654321"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if sent := h.notifier.last(t); sent.Channel != model.ChannelEmail || sent.Destination != "u2@example.com" {
		t.Fatalf("expected email fallback without a phone, got %+v", sent)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addIdentity(t, "U1", "u1@example.com")

	// Lock the identifier first; a completed reset clears the lock
	for i := 0; i < 3; i++ {
		h.auth.Login(ctx, LoginRequest{Identifier: "u1@example.com", Secret: "wrong-Secret-1"})
	}
	pair, err := h.sessions.Issue(ctx, h.identities.get("U1"))
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := h.reset.Request(ctx, "U1@Example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	code := h.notifier.last(t).Code

	proof, err := h.reset.VerifyCode(ctx, "u1@example.com", code)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}
	if _, err := h.reset.VerifyCode(ctx, "u1@example.com", code); !errors.Is(err, ErrChallengeAlreadyConsumed) {
		t.Fatalf("expected ErrChallengeAlreadyConsumed, got %v", err)
	}

	// A weak secret leaves the proof usable
	if err := h.reset.Complete(ctx, proof, "password"); !errors.Is(err, ErrWeakSecret) {
		t.Fatalf("expected ErrWeakSecret, got %v", err)
	}
	if err := h.reset.Complete(ctx, proof, "Br4nd-New-Secret"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := h.reset.Complete(ctx, proof, "An0ther-New-Secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken on proof reuse, got %v", err)
	}

	if _, err := h.auth.Refresh(ctx, pair.RefreshToken); err == nil {
		t.Fatalf("existing sessions must be revoked by a reset")
	}
	res, err := h.auth.Login(ctx, LoginRequest{Identifier: "u1@example.com", Secret: "Br4nd-New-Secret"})
	if err != nil || res.Tokens == nil {
		t.Fatalf("login with the new secret: %+v, %v", res, err)
	}
}

func TestPasswordResetInvalidatesAfterMismatches(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addIdentity(t, "U1", "u1@example.com")

	if err := h.reset.Request(ctx, "u1@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	code := h.notifier.last(t).Code
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	want := []error{ErrChallengeMismatch, ErrChallengeMismatch, ErrChallengeInvalidated}
	for i, w := range want {
		if _, err := h.reset.VerifyCode(ctx, "u1@example.com", wrong); !errors.Is(err, w) {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, w, err)
		}
	}
	if _, err := h.reset.VerifyCode(ctx, "u1@example.com", code); !errors.Is(err, ErrChallengeInvalidated) {
		t.Fatalf("the correct code must not revive the challenge, got %v", err)
	}
}

func TestPasswordResetRejectsForeignProof(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	identity := h.addIdentity(t, "U1", "u1@example.com")

	pair, err := h.sessions.Issue(ctx, identity)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := h.reset.Complete(ctx, pair.AccessToken, "Br4nd-New-Secret"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("an access token is not a reset proof, got %v", err)
	}
}

func TestPasswordResetKeepsProofWhenStoreFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.addIdentity(t, "U1", "u1@example.com")

	if err := h.reset.Request(ctx, "u1@example.com"); err != nil {
		t.Fatalf("Request: %v", err)
	}
	proof, err := h.reset.VerifyCode(ctx, "u1@example.com", h.notifier.last(t).Code)
	if err != nil {
		t.Fatalf("VerifyCode: %v", err)
	}

	outage := errors.New("connection reset")
	h.identities.failUpdates(outage)
	if err := h.reset.Complete(ctx, proof, "N3w-Secret-Value"); !errors.Is(err, outage) {
		t.Fatalf("expected the storage error, got %v", err)
	}

	h.identities.failUpdates(nil)
	if err := h.reset.Complete(ctx, proof, "N3w-Secret-Value"); err != nil {
		t.Fatalf("the proof must survive a failed update: %v", err)
	}
	if err := h.reset.Complete(ctx, proof, "N3w-Secret-Value"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("a used proof must be rejected, got %v", err)
	}
}
