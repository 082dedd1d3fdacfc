package handlers

import (
	"net/http"

	"github.com/dropDatabas3/controltower/internal/http/dto"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
)

// Validate maneja POST /v1/validate: un comercio consulta si una
// autorización es genuina y cobrable antes de cumplir la compra. Siempre
// 200; el veredicto va en el body, con chargeToken si es válida.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if req.AuthorizationID == "" || req.MerchantID == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("authorizationId and merchantId are required"))
		return
	}

	v, err := h.svc.ValidatePurchase(r.Context(), req.AuthorizationID, req.MerchantID, req.FinalAmountCents)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	resp := dto.ValidateResponse{
		Valid:           v.Valid,
		Reason:          v.Reason,
		AuthorizationID: v.AuthorizationID,
	}
	if v.Valid {
		resp.AgentID = v.AgentID
		resp.MaxAmountCents = v.MaxAmountCents
		resp.ChargeToken = v.ChargeToken
		t := v.ExpiresAt
		resp.ExpiresAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}

// ValidateToken maneja POST /v1/validate/token: un comercio presenta un
// scoped token directamente. Siempre 200; el veredicto va en el body.
func (h *Handlers) ValidateToken(w http.ResponseWriter, r *http.Request) {
	var req dto.ValidateTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if req.Token == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("token is required"))
		return
	}

	v, err := h.svc.ValidateToken(r.Context(), req.Token, req.Merchant)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	resp := dto.ValidateTokenResponse{
		Valid:  v.Valid,
		Reason: v.Reason,
	}
	if v.Valid {
		resp.AgentID = v.AgentID
		resp.AuthorizationID = v.AuthorizationID
		resp.MaxAmountCents = v.MaxAmountCents
		resp.Category = v.Category
		resp.Merchant = v.Merchant
		resp.Intent = v.Intent
		t := v.ExpiresAt
		resp.ExpiresAt = &t
	}
	writeJSON(w, http.StatusOK, resp)
}
