package handler

import (
	"net/http"

	"github.com/bankportal/idcore/internal/middleware"
	"github.com/bankportal/idcore/internal/model"
)

type mfaSendRequest struct {
	MFAToken string              `json:"mfaToken"`
	Method   model.MFAMethodType `json:"method"`
}

// MFASend delivers a login code. The answer is 202 whatever happens so the
// endpoint cannot be used to probe tokens or contact details.
func (h *Handler) MFASend(w http.ResponseWriter, r *http.Request) {
	var req mfaSendRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}

	if req.Method == "" {
		req.Method = model.MFAMethodEmail
	}
	if err := h.mfaSvc.SendCode(r.Context(), req.MFAToken, req.Method); err != nil {
		h.log.Info().Err(err).Str("method", string(req.Method)).Msg("mfa code not sent")
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

type mfaVerifyRequest struct {
	MFAToken string              `json:"mfaToken"`
	Code     string              `json:"code"`
	Method   model.MFAMethodType `json:"method,omitempty"`
}

// MFAVerify completes an MFA login and issues the token pair
func (h *Handler) MFAVerify(w http.ResponseWriter, r *http.Request) {
	var req mfaVerifyRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.MFAToken == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "MFA token and code are required")
		return
	}

	r = withClientInfo(r)
	pair, err := h.authSvc.CompleteMFA(r.Context(), req.MFAToken, req.Method, req.Code)
	if err != nil {
		h.writeServiceError(w, r, err, "mfa verification")
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// TOTPSetup starts TOTP enrollment for the caller
func (h *Handler) TOTPSetup(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	r = withClientInfo(r)
	resp, err := h.mfaSvc.SetupTOTP(r.Context(), principal.IdentityID)
	if err != nil {
		h.writeServiceError(w, r, err, "totp setup")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type codeRequest struct {
	Code string `json:"code"`
}

// TOTPConfirm enables TOTP once the caller proves the authenticator works
func (h *Handler) TOTPConfirm(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req codeRequest
	if err := readJSON(r, &req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "A code is required")
		return
	}

	r = withClientInfo(r)
	if err := h.mfaSvc.ConfirmTOTP(r.Context(), principal.IdentityID, req.Code); err != nil {
		h.writeServiceError(w, r, err, "totp confirm")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "totp_enabled"})
}
