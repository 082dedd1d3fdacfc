package authz

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
	"github.com/dropDatabas3/controltower/internal/token"
)

// Status retorna la autorización, materializando la expiración perezosa si
// corresponde.
func (s *Service) Status(ctx context.Context, id string) (*repository.Authorization, error) {
	auth, err := s.store.GetAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.Status == repository.StatusAuthorized && auth.Expired(s.now()) {
		if err := s.store.TransitionStatus(ctx, id, repository.StatusAuthorized, repository.StatusExpired, 0, ""); err == nil {
			auth.Status = repository.StatusExpired
		}
	}
	return auth, nil
}

// Revoke cancela una autorización viva (authorized o flagged) y revoca su
// token. Revocar algo ya terminal falla con ErrInvalidStatus.
func (s *Service) Revoke(ctx context.Context, id string) error {
	auth, err := s.store.GetAuthorization(ctx, id)
	if err != nil {
		return err
	}

	switch auth.Status {
	case repository.StatusAuthorized, repository.StatusFlagged:
	default:
		return repository.ErrInvalidStatus
	}

	if err := s.store.TransitionStatus(ctx, id, auth.Status, repository.StatusRevoked, 0, ""); err != nil {
		return err
	}
	if auth.TokenID != "" {
		if _, err := s.store.RevokeToken(ctx, auth.TokenID); err != nil {
			logger.From(ctx).Error("token revocation failed",
				logger.TokenID(auth.TokenID), logger.Err(err))
		}
	}

	logger.From(ctx).Info("authorization revoked",
		logger.AuthorizationID(id), logger.AgentID(auth.AgentID))
	return nil
}

// Approve levanta una autorización flagged: emite el token recién acá y la
// pasa a authorized con el TTL corriendo desde la aprobación.
func (s *Service) Approve(ctx context.Context, id string) (*AuthorizeResult, error) {
	auth, err := s.store.GetAuthorization(ctx, id)
	if err != nil {
		return nil, err
	}
	if auth.Status != repository.StatusFlagged {
		return nil, repository.ErrInvalidStatus
	}

	agent, err := s.store.GetAgent(ctx, auth.AgentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	issued, err := s.issuer.Issue(auth.AgentID, agent.CredentialHash, token.Scope{
		MaxAmountCents:  auth.AmountCents,
		Category:        auth.Category,
		Merchant:        auth.Merchant,
		Intent:          auth.Intent,
		AuthorizationID: auth.ID,
	})
	if err != nil {
		return nil, err
	}

	if err := s.store.TransitionStatus(ctx, id, repository.StatusFlagged, repository.StatusAuthorized, 0, ""); err != nil {
		return nil, err
	}

	// El TTL corre desde la aprobación, no desde el request original.
	auth.Status = repository.StatusAuthorized
	auth.TokenID = issued.Record.JTI
	auth.ExpiresAt = now.Add(s.cfg.AuthorizationTTL())
	auth.UpdatedAt = now
	if err := s.store.PutAuthorization(ctx, auth); err != nil {
		return nil, err
	}
	if err := s.store.InsertToken(ctx, &issued.Record); err != nil && !repository.IsConflict(err) {
		return nil, err
	}

	logger.From(ctx).Info("authorization approved manually",
		logger.AuthorizationID(id), logger.AgentID(auth.AgentID))

	return &AuthorizeResult{
		Approved:        true,
		AuthorizationID: auth.ID,
		Token:           issued.Token,
		ExpiresAt:       auth.ExpiresAt,
	}, nil
}

// SpendingSummary es el agregado de gasto de un agente para dashboards.
type SpendingSummary struct {
	AgentID          string
	SpentToday       int64
	DailyLimit       int64
	RemainingDaily   int64
	MonthByCategory  map[string]int64
	TxnsLastHour     int
	RecentPurchases  []repository.LedgerEntry
	EmergencyStopped bool
}

// Spending arma el resumen de gasto de un agente; las compras recientes
// cubren los últimos 7 días.
func (s *Service) Spending(ctx context.Context, agentID string) (*SpendingSummary, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	snap, err := s.store.SpendSnapshotFor(ctx, agentID, now)
	if err != nil {
		return nil, err
	}
	recent, err := s.store.LedgerByAgent(ctx, agentID, now.Add(-7*24*time.Hour))
	if err != nil {
		return nil, err
	}

	remaining := agent.DailyLimit - snap.SpentToday
	if remaining < 0 {
		remaining = 0
	}
	return &SpendingSummary{
		AgentID:          agentID,
		SpentToday:       snap.SpentToday,
		DailyLimit:       agent.DailyLimit,
		RemainingDaily:   remaining,
		MonthByCategory:  snap.SpentMonthByCategory,
		TxnsLastHour:     snap.TxnsLastHour,
		RecentPurchases:  recent,
		EmergencyStopped: agent.EmergencyStop,
	}, nil
}

// SetEmergencyStop prende/apaga el kill-switch de un agente y refresca el
// directorio para que el cambio pegue en la próxima decisión.
func (s *Service) SetEmergencyStop(ctx context.Context, agentID string, active bool) error {
	if err := s.store.SetEmergencyStop(ctx, agentID, active); err != nil {
		return err
	}

	agent, tenant, err := s.refreshDirectoryEntry(ctx, agentID)
	if err != nil {
		return err
	}

	logger.From(ctx).Warn("emergency stop toggled",
		logger.AgentID(agentID),
		logger.TenantID(tenant.ID),
		logger.Bool("active", agent.EmergencyStop))
	return nil
}

func (s *Service) refreshDirectoryEntry(ctx context.Context, agentID string) (*repository.Agent, *repository.Tenant, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		return nil, nil, err
	}
	tenant, err := s.store.GetTenant(ctx, agent.TenantID)
	if err != nil {
		return nil, nil, err
	}
	s.dir.Put(*agent, *tenant)
	return agent, tenant, nil
}
