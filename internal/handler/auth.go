package handler

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/bankportal/idcore/internal/middleware"
	"github.com/bankportal/idcore/internal/service"
)

// JSON helper functions

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    code,
			"message": message,
		},
	})
}

func readJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}
	defer r.Body.Close()

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// writeServiceError maps a service error onto the HTTP error envelope.
// Anything unrecognised is logged and answered with 500.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, op string) {
	var locked *service.LockedError
	switch {
	case errors.As(err, &locked):
		retry := math.Ceil(locked.RetryAfter(time.Now()).Seconds())
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Max(retry, 1))))
		writeError(w, http.StatusLocked, "account_locked", "Too many failed attempts. Try again later.")
	case errors.Is(err, service.ErrAccountLocked):
		writeError(w, http.StatusLocked, "account_locked", "Too many failed attempts. Try again later.")
	case errors.Is(err, service.ErrCaptchaRequired):
		writeError(w, http.StatusPreconditionRequired, "captcha_required", "A CAPTCHA response is required.")
	case errors.Is(err, service.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, "invalid_credentials", "The identifier or secret is incorrect.")
	case errors.Is(err, service.ErrAccountSuspended):
		writeError(w, http.StatusForbidden, "account_suspended", "This account is suspended.")
	case errors.Is(err, service.ErrChallengeExpired):
		writeError(w, http.StatusUnauthorized, "challenge_expired", "The code has expired. Request a new one.")
	case errors.Is(err, service.ErrChallengeMismatch):
		writeError(w, http.StatusUnauthorized, "challenge_mismatch", "The code is incorrect.")
	case errors.Is(err, service.ErrChallengeAlreadyConsumed):
		writeError(w, http.StatusUnauthorized, "challenge_consumed", "The code has already been used.")
	case errors.Is(err, service.ErrChallengeInvalidated):
		writeError(w, http.StatusUnauthorized, "challenge_invalidated", "Too many incorrect codes. Request a new one.")
	case errors.Is(err, service.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, "token_expired", "The token has expired.")
	case errors.Is(err, service.ErrTokenReuseDetected):
		writeError(w, http.StatusUnauthorized, "token_reuse_detected", "The refresh token was already used. Sign in again.")
	case errors.Is(err, service.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", "The token is invalid.")
	case errors.Is(err, service.ErrWeakSecret):
		writeError(w, http.StatusBadRequest, "weak_secret", err.Error())
	case errors.Is(err, service.ErrInvalidField):
		writeError(w, http.StatusBadRequest, "invalid_field", "This field cannot be modified.")
	case errors.Is(err, service.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, service.ErrNoOpChange):
		writeError(w, http.StatusUnprocessableEntity, "no_op_change", "The new value equals the current value.")
	case errors.Is(err, service.ErrRequestAlreadyDecided):
		writeError(w, http.StatusConflict, "request_already_decided", "The request has already been decided.")
	case errors.Is(err, service.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "forbidden", "You are not allowed to perform this action.")
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", "Resource not found.")
	default:
		log := h.log.WithRequestID(middleware.GetRequestID(r.Context()))
		if p, ok := middleware.PrincipalFrom(r.Context()); ok {
			log = log.WithIdentityID(p.IdentityID)
		}
		log.Error().Err(err).Msg(op + " failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred.")
	}
}

// withClientInfo stamps the caller's IP and user agent for audit entries
func withClientInfo(r *http.Request) *http.Request {
	ctx := service.WithClientInfo(r.Context(), middleware.ClientIP(r), r.UserAgent())
	return r.WithContext(ctx)
}

// --- Login Handler ---

type loginRequest struct {
	Identifier   string `json:"identifier"`
	Secret       string `json:"secret"`
	CaptchaToken string `json:"captchaToken,omitempty"`
}

// Login handles identifier + secret authentication
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Identifier == "" || req.Secret == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Identifier and secret are required")
		return
	}

	r = withClientInfo(r)
	resp, err := h.authSvc.Login(r.Context(), service.LoginRequest{
		Identifier:   req.Identifier,
		Secret:       req.Secret,
		CaptchaToken: req.CaptchaToken,
	})
	if err != nil {
		h.writeServiceError(w, r, err, "login")
		return
	}

	if resp.MFAChallenge != nil {
		writeJSON(w, http.StatusOK, resp.MFAChallenge)
		return
	}
	writeJSON(w, http.StatusOK, resp.Tokens)
}

// --- Token Handlers ---

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh rotates a refresh token into a new pair
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "A refresh token is required")
		return
	}

	r = withClientInfo(r)
	pair, err := h.authSvc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		h.writeServiceError(w, r, err, "token refresh")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// Logout revokes the refresh chain. It answers 204 even for unknown or
// already revoked tokens.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := readJSON(r, &req); err != nil || req.RefreshToken == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "A refresh token is required")
		return
	}

	r = withClientInfo(r)
	if err := h.authSvc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.log.Warn().Err(err).Msg("logout could not revoke chain")
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Password Change Handler ---

type changePasswordRequest struct {
	CurrentSecret string `json:"currentSecret"`
	NewSecret     string `json:"newSecret"`
}

// ChangePassword replaces the caller's secret after checking the current one
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req changePasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.CurrentSecret == "" || req.NewSecret == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Current and new secret are required")
		return
	}

	r = withClientInfo(r)
	if err := h.passwordSvc.ChangePassword(r.Context(), principal.IdentityID, req.CurrentSecret, req.NewSecret); err != nil {
		h.writeServiceError(w, r, err, "password change")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}
