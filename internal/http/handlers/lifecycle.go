package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/http/dto"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
)

// Status maneja GET /v1/authorizations/{id}.
func (h *Handlers) Status(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	auth, err := h.svc.Status(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusToDTO(auth))
}

// Revoke maneja POST /v1/authorizations/{id}/revoke.
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.svc.Revoke(r.Context(), id); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authorizationId": id,
		"status":          string(repository.StatusRevoked),
	})
}

// Approve maneja POST /v1/authorizations/{id}/approve: levanta una
// autorización flagged. Solo admin.
func (h *Handlers) Approve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	res, err := h.svc.Approve(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	t := res.ExpiresAt
	writeJSON(w, http.StatusOK, dto.AuthorizeResponse{
		Approved:        true,
		AuthorizationID: res.AuthorizationID,
		Token:           res.Token,
		ExpiresAt:       &t,
	})
}

func statusToDTO(a *repository.Authorization) dto.StatusResponse {
	resp := dto.StatusResponse{
		AuthorizationID:  a.ID,
		AgentID:          a.AgentID,
		Status:           string(a.Status),
		AmountCents:      a.AmountCents,
		FinalAmountCents: a.FinalAmountCents,
		Category:         a.Category,
		Merchant:         a.Merchant,
		Intent:           a.Intent,
		CreatedAt:        a.CreatedAt,
		ExpiresAt:        a.ExpiresAt,
	}
	if a.Status == repository.StatusConfirmed {
		t := a.UpdatedAt
		resp.ConfirmedAt = &t
	}
	return resp
}
