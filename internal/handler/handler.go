package handler

import (
	"context"

	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/model"
	"github.com/bankportal/idcore/internal/service"
)

// Authenticator is the login surface of service.AuthService
type Authenticator interface {
	Login(ctx context.Context, req service.LoginRequest) (*service.LoginResult, error)
	CompleteMFA(ctx context.Context, mfaToken string, method model.MFAMethodType, code string) (*model.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*model.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
}

// PasswordChanger changes the secret of an authenticated identity
type PasswordChanger interface {
	ChangePassword(ctx context.Context, identityID, current, next string) error
}

// SecondFactor covers code delivery and TOTP enrollment
type SecondFactor interface {
	SendCode(ctx context.Context, mfaToken string, method model.MFAMethodType) error
	SetupTOTP(ctx context.Context, identityID string) (*model.MFASetupResponse, error)
	ConfirmTOTP(ctx context.Context, identityID, code string) error
}

// ResetFlow is the three-step forgotten-password flow
type ResetFlow interface {
	Request(ctx context.Context, identifier string) error
	VerifyCode(ctx context.Context, identifier, code string) (string, error)
	Complete(ctx context.Context, proofToken, newSecret string) error
}

// ModificationWorkflow submits and decides KYC modification requests
type ModificationWorkflow interface {
	Submit(ctx context.Context, identityID, fieldName, newValue, justification string) (*model.ModificationRequest, error)
	Decide(ctx context.Context, requestID string, reviewer service.Principal, outcome model.ModificationStatus, notes string) (*model.ModificationRequest, error)
	Get(ctx context.Context, requestID string, caller service.Principal) (*model.ModificationRequest, error)
}

// EmailVerifier proves ownership of the address on file
type EmailVerifier interface {
	SendCode(ctx context.Context, identityID string) error
	Confirm(ctx context.Context, identityID, code string) error
}

// HealthChecker is implemented by database.Postgres and database.Redis
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Services bundles the dependencies of the HTTP handlers
type Services struct {
	Auth          Authenticator
	Passwords     PasswordChanger
	MFA           SecondFactor
	Reset         ResetFlow
	Modifications ModificationWorkflow
	EmailVerify   EmailVerifier
}

// Handler holds all HTTP handlers
type Handler struct {
	log     *logger.Logger
	checks  map[string]HealthChecker
	version string

	authSvc     Authenticator
	passwordSvc PasswordChanger
	mfaSvc      SecondFactor
	resetSvc    ResetFlow
	kycSvc      ModificationWorkflow
	verifySvc   EmailVerifier
}

// New creates a new Handler instance. checks maps a dependency name
// ("postgres", "redis") to its health probe.
func New(log *logger.Logger, version string, checks map[string]HealthChecker, svc Services) *Handler {
	return &Handler{
		log:         log.WithComponent("handler"),
		checks:      checks,
		version:     version,
		authSvc:     svc.Auth,
		passwordSvc: svc.Passwords,
		mfaSvc:      svc.MFA,
		resetSvc:    svc.Reset,
		kycSvc:      svc.Modifications,
		verifySvc:   svc.EmailVerify,
	}
}
