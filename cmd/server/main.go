package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bankportal/idcore/internal/auth"
	"github.com/bankportal/idcore/internal/config"
	"github.com/bankportal/idcore/internal/database"
	"github.com/bankportal/idcore/internal/email"
	"github.com/bankportal/idcore/internal/handler"
	"github.com/bankportal/idcore/internal/logger"
	"github.com/bankportal/idcore/internal/metrics"
	"github.com/bankportal/idcore/internal/middleware"
	"github.com/bankportal/idcore/internal/notify"
	"github.com/bankportal/idcore/internal/repository"
	"github.com/bankportal/idcore/internal/router"
	"github.com/bankportal/idcore/internal/service"
	"github.com/prometheus/client_golang/prometheus"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", version).Msg("starting idcore server")

	metrics.Register(prometheus.DefaultRegisterer)

	// Connect to PostgreSQL
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("connected to PostgreSQL")

	// Connect to Redis
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("connected to Redis")

	// Initialize repositories and keyed stores
	identityRepo := repository.NewIdentityRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	modificationRepo := repository.NewModificationRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	sessionStore := repository.NewSessionStore(rdb)
	attemptStore := repository.NewAttemptStore(rdb)
	challengeStore := repository.NewChallengeStore(rdb)
	markerStore := repository.NewMarkerStore(rdb)

	// Crypto primitives
	hasher, err := auth.NewHasher(auth.NewParams(
		cfg.Security.Password.Argon2Memory,
		cfg.Security.Password.Argon2Iterations,
		cfg.Security.Password.Argon2Parallelism,
	))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize password hasher")
	}

	tokenSvc, err := auth.NewTokenService(cfg.Security.Tokens)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize token service")
	}
	log.Info().Str("algorithm", cfg.Security.Tokens.SigningAlgorithm).Msg("token service initialized")

	// Notification channels
	mailer, err := newMailer(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize email sender")
	}

	var sms notify.SMSPublisher
	if cfg.Notify.SMS.Enabled {
		publisher, err := notify.DialAMQP(cfg.Notify.SMS)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to SMS broker")
		}
		defer publisher.Close()
		sms = publisher
		log.Info().Str("queue", cfg.Notify.SMS.Queue).Msg("SMS publisher connected")
	}

	dispatcher := notify.NewDispatcher(cfg.Notify, cfg.Email.AppName, mailer, sms, log)
	dispatcher.Start()

	// Initialize services
	auditor := service.NewAuditor(auditRepo, log)
	sessionSvc := service.NewSessionService(sessionStore, identityRepo, tokenSvc, auditor, cfg.Security.Tokens, log)
	credentialSvc := service.NewCredentialService(identityRepo, hasher, sessionSvc, auditor, cfg.Security.Password, log)
	captcha := service.NewCaptchaVerifier(cfg.Security.Captcha, markerStore, log)
	if captcha == nil {
		log.Warn().Msg("no captcha secret configured, CAPTCHA gate disabled")
	}
	guard := service.NewLoginGuard(attemptStore, captcha, cfg.Security.Lockout, log)
	challenges := service.NewChallengeManager(challengeStore, dispatcher, cfg.Security.Challenge, log)
	mfaSvc := service.NewMFAService(identityRepo, tokenSvc, challenges, markerStore, auditor, cfg, log)
	authSvc := service.NewAuthService(credentialSvc, guard, sessionSvc, mfaSvc, identityRepo, auditor, log)
	resetSvc := service.NewPasswordResetService(credentialSvc, identityRepo, challenges, guard, tokenSvc, markerStore, auditor, cfg.Security.Tokens.ResetProofTTL, log)
	verifySvc := service.NewEmailVerificationService(identityRepo, identityRepo, challenges, auditor, log)
	kycSvc, err := service.NewModificationService(profileRepo, modificationRepo, auditor, cfg.KYC, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize modification service")
	}

	// Initialize handlers
	h := handler.New(log, version, map[string]handler.HealthChecker{
		"postgres": db,
		"redis":    rdb,
	}, handler.Services{
		Auth:          authSvc,
		Passwords:     credentialSvc,
		MFA:           mfaSvc,
		Reset:         resetSvc,
		Modifications: kycSvc,
		EmailVerify:   verifySvc,
	})

	// Initialize middleware
	mw, err := middleware.New(rdb, log, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize middleware")
	}

	// Set up router
	r := router.New(h, mw, sessionSvc)

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	// Drain queued codes after the server stops accepting requests
	if err := dispatcher.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("notification queue not drained")
	}

	log.Info().Msg("server stopped")
}

// newMailer picks the email transport configured under email.provider
func newMailer(cfg *config.Config, log *logger.Logger) (email.Sender, error) {
	switch cfg.Email.Provider {
	case "gmail":
		// The oauth2 client keeps this context for token refreshes
		sender, err := email.NewGmailSender(context.Background(), cfg.Email.Gmail)
		if err != nil {
			return nil, err
		}
		log.Info().Str("sender", cfg.Email.Gmail.SenderAddress).Msg("gmail sender initialized")
		return sender, nil
	case "", "log":
		log.Warn().Msg("email provider is 'log'; codes are not delivered")
		return email.NewLogSender(log), nil
	default:
		return nil, fmt.Errorf("unknown email provider %q", cfg.Email.Provider)
	}
}
