package handler

import (
	"net/http"
)

type forgotPasswordRequest struct {
	Identifier string `json:"identifier"`
}

// ForgotPassword starts a reset. Known and unknown identifiers get the same
// 202 answer; failures are only logged.
func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req forgotPasswordRequest
	if err := readJSON(r, &req); err != nil || req.Identifier == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "An identifier is required")
		return
	}

	r = withClientInfo(r)
	if err := h.resetSvc.Request(r.Context(), req.Identifier); err != nil {
		h.log.Error().Err(err).Msg("password reset request failed")
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"status": "If the account exists, a code has been sent.",
	})
}

type verifyResetRequest struct {
	Identifier string `json:"identifier"`
	Code       string `json:"code"`
}

// VerifyResetToken exchanges a reset code for a short-lived proof token
func (h *Handler) VerifyResetToken(w http.ResponseWriter, r *http.Request) {
	var req verifyResetRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.Identifier == "" || req.Code == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Identifier and code are required")
		return
	}

	r = withClientInfo(r)
	proof, err := h.resetSvc.VerifyCode(r.Context(), req.Identifier, req.Code)
	if err != nil {
		h.writeServiceError(w, r, err, "reset code verification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"proofToken": proof})
}

type resetPasswordRequest struct {
	ProofToken string `json:"proofToken"`
	NewSecret  string `json:"newSecret"`
}

// ResetPassword sets a new secret using a proof token
func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.ProofToken == "" || req.NewSecret == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "Proof token and new secret are required")
		return
	}

	r = withClientInfo(r)
	if err := h.resetSvc.Complete(r.Context(), req.ProofToken, req.NewSecret); err != nil {
		h.writeServiceError(w, r, err, "password reset")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}
