package handler

import (
	"net/http"

	"github.com/bankportal/idcore/internal/middleware"
	"github.com/bankportal/idcore/internal/model"
)

type modificationRequestBody struct {
	Field    string `json:"field"`
	NewValue string `json:"newValue"`
	Reason   string `json:"reason"`
}

// SubmitModification files a pending KYC change for the caller
func (h *Handler) SubmitModification(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req modificationRequestBody
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if req.Field == "" {
		writeError(w, http.StatusBadRequest, "validation_error", "A field is required")
		return
	}

	r = withClientInfo(r)
	mod, err := h.kycSvc.Submit(r.Context(), principal.IdentityID, req.Field, req.NewValue, req.Reason)
	if err != nil {
		h.writeServiceError(w, r, err, "modification submit")
		return
	}
	writeJSON(w, http.StatusCreated, mod)
}

// GetModification returns one request to its owner or an admin
func (h *Handler) GetModification(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	mod, err := h.kycSvc.Get(r.Context(), r.PathValue("id"), principal)
	if err != nil {
		h.writeServiceError(w, r, err, "modification lookup")
		return
	}
	writeJSON(w, http.StatusOK, mod)
}

type decisionRequest struct {
	Status model.ModificationStatus `json:"status"`
	Notes  string                   `json:"notes,omitempty"`
}

// DecideModification approves or rejects a pending request
func (h *Handler) DecideModification(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.PrincipalFrom(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	var req decisionRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "validation_error", "Invalid request body")
		return
	}
	if !req.Status.Decided() {
		writeError(w, http.StatusBadRequest, "validation_error", "Status must be approved or rejected")
		return
	}

	r = withClientInfo(r)
	mod, err := h.kycSvc.Decide(r.Context(), r.PathValue("id"), principal, req.Status, req.Notes)
	if err != nil {
		h.writeServiceError(w, r, err, "modification decision")
		return
	}
	writeJSON(w, http.StatusOK, mod)
}
