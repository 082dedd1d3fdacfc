package handlers

import (
	"errors"
	"net/http"

	"github.com/dropDatabas3/controltower/internal/authz"
	"github.com/dropDatabas3/controltower/internal/http/dto"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
	"github.com/dropDatabas3/controltower/internal/http/middlewares"
	"github.com/dropDatabas3/controltower/internal/policy"
)

// Authorize maneja POST /v1/authorize: la decisión de gasto.
// Los denials son no-2xx (402, velocity 429, falla interna 500) y por eso
// no entran al cache de idempotencia: un deny siempre se reevalúa. Un
// needs-approval es 202: crea la autorización flagged y el replay debe
// devolver la misma, no crear otra.
func (h *Handlers) Authorize(w http.ResponseWriter, r *http.Request) {
	cred := middlewares.GetCredential(r.Context())
	if cred == "" {
		httperrors.WriteError(w, httperrors.ErrUnauthorized)
		return
	}

	var req dto.AuthorizeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if req.AmountCents <= 0 {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("amount must be a positive integer of cents"))
		return
	}

	res, err := h.svc.Authorize(r.Context(), cred, authz.AuthorizeRequest{
		AmountCents: req.AmountCents,
		Category:    req.Category,
		Merchant:    req.Merchant,
		Intent:      req.Intent,
	})
	if err != nil {
		if errors.Is(err, authz.ErrInvalidCredential) {
			httperrors.WriteError(w, httperrors.ErrUnauthorized.WithDetail("unknown credential"))
			return
		}
		httperrors.WriteError(w, err)
		return
	}

	resp := dto.AuthorizeResponse{
		Approved:             res.Approved,
		NeedsApproval:        res.NeedsApproval,
		AuthorizationID:      res.AuthorizationID,
		Token:                res.Token,
		Reason:               res.Reason,
		Detail:               res.Detail,
		RemainingDailyBudget: res.RemainingDaily,
		LatencyMs:            res.LatencyMs,
	}
	if !res.ExpiresAt.IsZero() {
		t := res.ExpiresAt
		resp.ExpiresAt = &t
	}
	writeJSON(w, authorizeStatus(res), resp)
}

func authorizeStatus(res *authz.AuthorizeResult) int {
	switch {
	case res.Approved:
		return http.StatusOK
	case res.NeedsApproval:
		return http.StatusAccepted
	case res.Reason == authz.ReasonServiceError:
		return http.StatusInternalServerError
	case res.Reason == policy.ReasonVelocityLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusPaymentRequired
	}
}
