package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bankportal/idcore/internal/model"
)

func TestChallengeSingleUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	id, err := h.challenges.Issue(ctx, IssueRequest{
		Subject:     "U1",
		Purpose:     model.PurposeMFA,
		Channel:     model.ChannelEmail,
		Destination: "u1@example.com",
	})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	code := h.notifier.last(t).Code
	if len(code) != 6 {
		t.Fatalf("expected a 6 digit code, got %q", code)
	}

	if err := h.challenges.Verify(ctx, id, model.PurposeMFA, code); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := h.challenges.Verify(ctx, id, model.PurposeMFA, code); !errors.Is(err, ErrChallengeAlreadyConsumed) {
		t.Fatalf("expected ErrChallengeAlreadyConsumed, got %v", err)
	}
}

func TestChallengeExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.challenges.Issue(ctx, IssueRequest{
		Subject:     "U1",
		Purpose:     model.PurposeEmailVerify,
		Channel:     model.ChannelEmail,
		Destination: "u1@example.com",
	}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	code := h.notifier.last(t).Code

	h.clock.Advance(10*time.Minute + time.Second)
	if err := h.challenges.VerifyLatest(ctx, "U1", model.PurposeEmailVerify, code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("expected ErrChallengeExpired, got %v", err)
	}
}

func TestChallengeScopedByPurpose(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.challenges.Issue(ctx, IssueRequest{
		Subject:     "U1",
		Purpose:     model.PurposeEmailVerify,
		Channel:     model.ChannelEmail,
		Destination: "u1@example.com",
	}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	code := h.notifier.last(t).Code

	if err := h.challenges.VerifyLatest(ctx, "U1", model.PurposeMFA, code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("a code for another purpose must not verify, got %v", err)
	}
	if err := h.challenges.VerifyLatest(ctx, "U2", model.PurposeEmailVerify, code); !errors.Is(err, ErrChallengeExpired) {
		t.Fatalf("a code for another subject must not verify, got %v", err)
	}
}

func TestChallengeNewIssueSupersedesOld(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	req := IssueRequest{Subject: "U1", Purpose: model.PurposeMFA, Channel: model.ChannelEmail, Destination: "u1@example.com"}

	if _, err := h.challenges.Issue(ctx, req); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	first := h.notifier.last(t).Code
	if _, err := h.challenges.Issue(ctx, req); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	second := h.notifier.last(t).Code

	if first != second {
		if err := h.challenges.VerifyLatest(ctx, "U1", model.PurposeMFA, first); !errors.Is(err, ErrChallengeMismatch) {
			t.Fatalf("the superseded code must not verify, got %v", err)
		}
	}
	if err := h.challenges.VerifyLatest(ctx, "U1", model.PurposeMFA, second); err != nil {
		t.Fatalf("latest code rejected: %v", err)
	}
}

func TestChallengeWithoutDestinationSendsNothing(t *testing.T) {
	h := newHarness(t)

	if _, err := h.challenges.Issue(context.Background(), IssueRequest{
		Subject: "ghost@example.com",
		Purpose: model.PurposePasswordReset,
		Channel: model.ChannelEmail,
	}); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if h.notifier.count() != 0 {
		t.Fatalf("nothing may be queued without a destination")
	}
}
