package model

import "time"

// AuditLog represents an audit log entry
type AuditLog struct {
	ID           string                 `json:"id"`
	IdentityID   *string                `json:"identityId,omitempty"`
	Action       string                 `json:"action"`
	ResourceType *string                `json:"resourceType,omitempty"`
	ResourceID   *string                `json:"resourceId,omitempty"`
	IPAddress    *string                `json:"ipAddress,omitempty"`
	UserAgent    *string                `json:"userAgent,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt    time.Time              `json:"createdAt"`
}

// Audit action constants
const (
	AuditActionLogin                = "identity.login"
	AuditActionLoginFailed          = "identity.login_failed"
	AuditActionLoginLocked          = "identity.login_locked"
	AuditActionLogout               = "identity.logout"
	AuditActionPasswordChange       = "identity.password_change"
	AuditActionPasswordResetRequest = "identity.password_reset_request"
	AuditActionPasswordReset        = "identity.password_reset"
	AuditActionTokenRefresh         = "token.refresh"
	AuditActionTokenReuse           = "token.reuse_detected"
	AuditActionEmailVerified        = "identity.email_verified"
	AuditActionMFAVerified          = "mfa.verified"
	AuditActionMFATOTPSetup         = "mfa.totp_setup"
	AuditActionMFATOTPEnabled       = "mfa.totp_enabled"
	AuditActionModificationSubmit   = "kyc.modification_submitted"
	AuditActionModificationApprove  = "kyc.modification_approved"
	AuditActionModificationReject   = "kyc.modification_rejected"
	AuditActionSessionRevokedAll    = "session.revoked_all"
)
