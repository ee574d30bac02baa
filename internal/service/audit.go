package service

import (
	"context"
	"strings"
	"time"

	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/google/uuid"
)

type clientInfoKey struct{}

// ClientInfo identifies the caller of an operation for audit purposes
type ClientInfo struct {
	IPAddress string
	UserAgent string
}

// WithClientInfo attaches caller details to ctx
func WithClientInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, clientInfoKey{}, ClientInfo{IPAddress: ip, UserAgent: userAgent})
}

func clientInfoFrom(ctx context.Context) ClientInfo {
	info, _ := ctx.Value(clientInfoKey{}).(ClientInfo)
	return info
}

// Auditor writes audit entries best-effort; failures are logged only
type Auditor struct {
	store AuditStore
	log   *logger.Logger
}

// NewAuditor creates a new Auditor. A nil store only mirrors to the log.
func NewAuditor(store AuditStore, log *logger.Logger) *Auditor {
	return &Auditor{store: store, log: log.WithComponent("audit")}
}

// Record writes one entry
func (a *Auditor) Record(ctx context.Context, identityID, action, resourceType, resourceID string, metadata map[string]interface{}) {
	if a == nil {
		return
	}
	a.log.AuditLog(identityID, action, resourceType, resourceID, metadata)
	if a.store == nil {
		return
	}

	info := clientInfoFrom(ctx)
	entry := &model.AuditLog{
		ID:           generateID("aud"),
		Action:       action,
		ResourceType: optional(resourceType),
		ResourceID:   optional(resourceID),
		IdentityID:   optional(identityID),
		IPAddress:    optional(info.IPAddress),
		UserAgent:    optional(info.UserAgent),
		Metadata:     metadata,
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.store.Create(ctx, entry); err != nil {
		a.log.Error().Err(err).Str("action", action).Msg("failed to create audit log")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func generateID(prefix string) string {
	clean := strings.ReplaceAll(uuid.New().String(), "-", "")
	if prefix == "" {
		return clean
	}
	return prefix + "_" + clean[:26]
}
