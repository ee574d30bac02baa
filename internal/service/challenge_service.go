package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/metrics"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/notify"
	"github.com/bankportal/idcore/internal/repository"
	"github.com/oklog/ulid/v2"
)

// IssueRequest describes a challenge to create
type IssueRequest struct {
	Subject     string
	Purpose     model.ChallengePurpose
	Channel     model.Channel
	Destination string // empty means nothing is sent
}

// ChallengeManager issues and verifies one-time codes
type ChallengeManager struct {
	store    ChallengeStore
	notifier Notifier
	cfg      config.ChallengeConfig
	log      *logger.Logger
	now      func() time.Time
}

// NewChallengeManager creates a new ChallengeManager
func NewChallengeManager(store ChallengeStore, notifier Notifier, cfg config.ChallengeConfig, log *logger.Logger) *ChallengeManager {
	return &ChallengeManager{
		store:    store,
		notifier: notifier,
		cfg:      cfg,
		log:      log.WithComponent("challenge_manager"),
		now:      time.Now,
	}
}

// Issue creates a challenge and hands its code to the notifier
func (m *ChallengeManager) Issue(ctx context.Context, req IssueRequest) (string, error) {
	code, err := auth.GenerateNumericCode(m.cfg.CodeLength)
	if err != nil {
		return "", err
	}

	now := m.now()
	channel := req.Channel
	if req.Destination == "" {
		channel = model.ChannelNone
	}
	c := &model.Challenge{
		ID:        ulid.Make().String(),
		Subject:   req.Subject,
		Purpose:   req.Purpose,
		CodeHash:  auth.HashToken(code),
		Channel:   channel,
		CreatedAt: now,
		ExpiresAt: now.Add(m.cfg.TTL),
	}
	if err := m.store.Save(ctx, c); err != nil {
		return "", fmt.Errorf("failed to save challenge: %w", err)
	}

	if channel != model.ChannelNone {
		err := m.notifier.Enqueue(notify.CodeNotification{
			Channel:     channel,
			Destination: req.Destination,
			Purpose:     req.Purpose,
			Code:        code,
			TTL:         m.cfg.TTL,
		})
		if err != nil {
			m.log.Warn().Err(err).Str("challenge_id", c.ID).Msg("challenge code not queued for delivery")
		}
	}

	m.log.Debug().
		Str("challenge_id", c.ID).
		Str("purpose", string(req.Purpose)).
		Str("channel", string(channel)).
		Msg("challenge issued")
	return c.ID, nil
}

// Verify checks code against a specific challenge
func (m *ChallengeManager) Verify(ctx context.Context, challengeID string, purpose model.ChallengePurpose, code string) error {
	outcome, err := m.store.Check(ctx, challengeID, purpose, auth.HashToken(code), m.now(), m.cfg.MaxMismatches)
	if err != nil {
		return fmt.Errorf("failed to verify challenge: %w", err)
	}
	metrics.ChallengeVerifications.WithLabelValues(string(purpose), string(outcome)).Inc()

	switch outcome {
	case model.ChallengeOK:
		return nil
	case model.ChallengeMismatch:
		return ErrChallengeMismatch
	case model.ChallengeConsumed:
		return ErrChallengeAlreadyConsumed
	case model.ChallengeInvalidated:
		return ErrChallengeInvalidated
	default:
		return ErrChallengeExpired
	}
}

// VerifyLatest checks code against the newest challenge for subject and purpose
func (m *ChallengeManager) VerifyLatest(ctx context.Context, subject string, purpose model.ChallengePurpose, code string) error {
	id, err := m.store.LatestID(ctx, purpose, subject)
	if errors.Is(err, repository.ErrNotFound) {
		metrics.ChallengeVerifications.WithLabelValues(string(purpose), string(model.ChallengeMissing)).Inc()
		return ErrChallengeExpired
	}
	if err != nil {
		return fmt.Errorf("failed to find challenge: %w", err)
	}
	return m.Verify(ctx, id, purpose, code)
}
