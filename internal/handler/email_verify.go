package handler

import (
	"net/http"

	"github.com/bankportal/idcore/internal/middleware"
)

// SendEmailVerification mails a verification code to the caller's address
func (h *Handler) SendEmailVerification(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	if err := h.verifySvc.SendCode(r.Context(), principal.IdentityID); err != nil {
		h.writeServiceError(w, r, err, "email verification send")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sent"})
}

// ConfirmEmailVerification marks the caller's email verified
func (h *Handler) ConfirmEmailVerification(w http.ResponseWriter, r *http.Request) {
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
	if err := h.verifySvc.Confirm(r.Context(), principal.IdentityID, req.Code); err != nil {
		h.writeServiceError(w, r, err, "email verification confirm")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}
