package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/dropDatabas3/controltower/internal/directory"
	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/http/dto"
	"github.com/dropDatabas3/controltower/internal/http/httperrors"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
)

// CreateAgent maneja POST /v1/admin/agents: provisiona el agente y genera
// su credencial. La credencial en claro se devuelve una sola vez; lo único
// que se guarda es su sha256.
func (h *Handlers) CreateAgent(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateAgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if req.TenantID == "" || req.Name == "" {
		httperrors.WriteError(w, httperrors.ErrBadRequest.WithDetail("tenantId and name are required"))
		return
	}

	tenant, err := h.store.GetTenant(r.Context(), req.TenantID)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	cred := directory.NewCredential(req.Live)
	defs := h.cfg.AgentDefaults

	agent := &repository.Agent{
		ID:               uuid.NewString(),
		TenantID:         tenant.ID,
		Name:             req.Name,
		CredentialHash:   directory.HashCredential(cred),
		DailyLimit:       orDefault64(req.DailyLimit, defs.DailyLimit),
		TransactionLimit: orDefault64(req.TransactionLimit, defs.TransactionLimit),
		CategoryLimits:   req.CategoryLimits,
		VelocityLimit:    orDefaultInt(req.VelocityLimit, defs.VelocityLimit),
		PaymentMethod:    req.PaymentMethod,
		Approval: repository.ApprovalSettings{
			AutoApproveUnder:    defs.AutoApproveUnder,
			RequireApprovalOver: defs.RequireApprovalOver,
		},
	}
	if req.Approval != nil {
		agent.Approval = repository.ApprovalSettings{
			RequireApprovalOver: orDefault64(req.Approval.RequireApprovalOver, defs.RequireApprovalOver),
			AutoApproveUnder:    orDefault64(req.Approval.AutoApproveUnder, defs.AutoApproveUnder),
			AlwaysApprove:       req.Approval.AlwaysApprove,
			NeverApprove:        req.Approval.NeverApprove,
		}
	}

	if err := h.store.CreateAgent(r.Context(), agent); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	// Población eager del directorio: la credencial funciona en la próxima
	// decisión, sin esperar un rebuild.
	h.svc.Directory().Put(*agent, *tenant)

	logger.From(r.Context()).Info("agent provisioned",
		logger.AgentID(agent.ID), logger.TenantID(tenant.ID))

	resp := agentToDTO(agent)
	resp.Credential = cred
	writeJSON(w, http.StatusCreated, resp)
}

// GetAgent maneja GET /v1/admin/agents/{id}.
func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.store.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agentToDTO(agent))
}

// UpdateAgent maneja PATCH /v1/admin/agents/{id}: actualiza límites y
// política de aprobación. Campos en cero no se tocan.
func (h *Handlers) UpdateAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := h.store.GetAgent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}

	var req dto.CreateAgentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	if req.Name != "" {
		agent.Name = req.Name
	}
	if req.DailyLimit > 0 {
		agent.DailyLimit = req.DailyLimit
	}
	if req.TransactionLimit > 0 {
		agent.TransactionLimit = req.TransactionLimit
	}
	if req.CategoryLimits != nil {
		agent.CategoryLimits = req.CategoryLimits
	}
	if req.VelocityLimit > 0 {
		agent.VelocityLimit = req.VelocityLimit
	}
	if req.PaymentMethod != "" {
		agent.PaymentMethod = req.PaymentMethod
	}
	if req.Approval != nil {
		if req.Approval.RequireApprovalOver > 0 {
			agent.Approval.RequireApprovalOver = req.Approval.RequireApprovalOver
		}
		if req.Approval.AutoApproveUnder > 0 {
			agent.Approval.AutoApproveUnder = req.Approval.AutoApproveUnder
		}
		if req.Approval.AlwaysApprove != nil {
			agent.Approval.AlwaysApprove = req.Approval.AlwaysApprove
		}
		if req.Approval.NeverApprove != nil {
			agent.Approval.NeverApprove = req.Approval.NeverApprove
		}
	}

	if err := h.store.UpdateAgent(r.Context(), agent); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	if tenant, terr := h.store.GetTenant(r.Context(), agent.TenantID); terr == nil {
		h.svc.Directory().Put(*agent, *tenant)
	}
	writeJSON(w, http.StatusOK, agentToDTO(agent))
}

// RevokeAgent maneja DELETE /v1/admin/agents/{id}: borrado lógico y
// expulsión inmediata del directorio.
func (h *Handlers) RevokeAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	agent, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		httperrors.WriteError(w, err)
		return
	}
	if err := h.store.RevokeAgent(r.Context(), id); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	h.svc.Directory().Evict(agent.CredentialHash)

	logger.From(r.Context()).Warn("agent revoked", logger.AgentID(id))
	w.WriteHeader(http.StatusNoContent)
}

// EmergencyStop maneja POST /v1/admin/agents/{id}/emergency-stop.
func (h *Handlers) EmergencyStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req dto.EmergencyStopRequest
	if err := decodeJSON(w, r, &req); err != nil {
		httperrors.WriteError(w, err)
		return
	}

	if err := h.svc.SetEmergencyStop(r.Context(), id, req.Active); err != nil {
		httperrors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agentId":       id,
		"emergencyStop": req.Active,
	})
}

func agentToDTO(a *repository.Agent) dto.AgentResponse {
	resp := dto.AgentResponse{
		ID:               a.ID,
		TenantID:         a.TenantID,
		Name:             a.Name,
		DailyLimit:       a.DailyLimit,
		TransactionLimit: a.TransactionLimit,
		CategoryLimits:   a.CategoryLimits,
		VelocityLimit:    a.VelocityLimit,
		EmergencyStop:    a.EmergencyStop,
		PaymentMethod:    a.PaymentMethod,
		LastUsed:         a.LastUsed,
		UsageCount:       a.UsageCount,
		CreatedAt:        a.CreatedAt,
	}
	resp.Approval = &dto.ApprovalSettings{
		RequireApprovalOver: a.Approval.RequireApprovalOver,
		AutoApproveUnder:    a.Approval.AutoApproveUnder,
		AlwaysApprove:       a.Approval.AlwaysApprove,
		NeverApprove:        a.Approval.NeverApprove,
	}
	return resp
}

func orDefault64(v, def int64) int64 {
	if v > 0 {
		return v
	}
	return def
}

func orDefaultInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
