package router

import (
	"net/http"
	"time"

	"github.com/bankportal/idcore/internal/handler"
	"github.com/bankportal/idcore/internal/metrics"
	"github.com/bankportal/idcore/internal/middleware"
	"github.com/bankportal/idcore/internal/model"
)

// New creates and configures the HTTP router
func New(h *handler.Handler, mw *middleware.Middleware, verifier middleware.AccessVerifier) http.Handler {
	mux := http.NewServeMux()

	// Health and metrics (no auth required)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ready", h.Ready)
	mux.Handle("GET /metrics", metrics.Handler())

	// Public authentication routes (rate limited per IP). The login guard
	// limits per identifier; this limit caps spraying across identifiers.
	loginRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "login",
		Limit:  20,
		Window: 15 * time.Minute,
		KeyFn:  middleware.IPKey,
	})
	refreshRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "refresh",
		Limit:  30,
		Window: 1 * time.Minute,
		KeyFn:  middleware.IPKey,
	})
	resetRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "reset",
		Limit:  5,
		Window: 1 * time.Hour,
		KeyFn:  middleware.IPKey,
	})
	mfaRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "mfa",
		Limit:  10,
		Window: 5 * time.Minute,
		KeyFn:  middleware.IPKey,
	})

	mux.Handle("POST /auth/login", loginRateLimit(http.HandlerFunc(h.Login)))
	mux.Handle("POST /auth/refresh", refreshRateLimit(http.HandlerFunc(h.Refresh)))
	mux.HandleFunc("POST /auth/logout", h.Logout)

	mux.Handle("POST /auth/mfa/send", mfaRateLimit(http.HandlerFunc(h.MFASend)))
	mux.Handle("POST /auth/mfa/verify", mfaRateLimit(http.HandlerFunc(h.MFAVerify)))

	mux.Handle("POST /auth/forgot-password", resetRateLimit(http.HandlerFunc(h.ForgotPassword)))
	mux.Handle("POST /auth/verify-reset-token", resetRateLimit(http.HandlerFunc(h.VerifyResetToken)))
	mux.Handle("POST /auth/reset-password", resetRateLimit(http.HandlerFunc(h.ResetPassword)))

	// Protected routes (require auth)
	authMw := mw.Auth(verifier)
	identityRateLimit := mw.RateLimit(middleware.RateLimitConfig{
		Name:   "identity",
		Limit:  30,
		Window: 1 * time.Minute,
		KeyFn:  middleware.IdentityKey,
	})
	protected := func(fn http.HandlerFunc) http.Handler {
		return authMw(identityRateLimit(fn))
	}

	mux.Handle("POST /auth/change-password", protected(h.ChangePassword))
	mux.Handle("POST /auth/mfa/totp/setup", protected(h.TOTPSetup))
	mux.Handle("POST /auth/mfa/totp/confirm", protected(h.TOTPConfirm))
	mux.Handle("POST /auth/email/verify/send", protected(h.SendEmailVerification))
	mux.Handle("POST /auth/email/verify/confirm", protected(h.ConfirmEmailVerification))

	mux.Handle("POST /kyc/modification-request", protected(h.SubmitModification))
	mux.Handle("GET /kyc/modification-request/{id}", protected(h.GetModification))

	// Reviewer routes
	adminOnly := mw.RequireRole(model.RoleAdmin)
	mux.Handle("PUT /admin/kyc-modifications/{id}", authMw(adminOnly(http.HandlerFunc(h.DecideModification))))

	// Apply middleware stack
	var handler http.Handler = mux

	// Metrics (wraps the mux directly so r.Pattern is filled in)
	handler = mw.Instrument(handler)

	// Request logging
	handler = mw.Logger(handler)

	// Request ID
	handler = mw.RequestID(handler)

	// Client address for logging, audit and rate limits
	handler = mw.RealIP(handler)

	// Panic recovery (outermost)
	handler = mw.Recover(handler)

	return handler
}
