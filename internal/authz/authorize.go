package authz

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/controltower/internal/directory"
	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/metrics"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
	"github.com/dropDatabas3/controltower/internal/policy"
	"github.com/dropDatabas3/controltower/internal/token"
)

// AuthorizeRequest es la compra propuesta por un agente.
type AuthorizeRequest struct {
	AmountCents int64
	Category    string
	Merchant    string
	Intent      string
}

// AuthorizeResult es la decisión. Approved=false con NeedsApproval=true
// significa que la autorización quedó flagged esperando aprobación manual.
type AuthorizeResult struct {
	Approved      bool
	NeedsApproval bool

	AuthorizationID string
	Token           string
	ExpiresAt       time.Time

	Reason         string
	Detail         string
	RemainingDaily int64

	LatencyMs int64
}

// Authorize decide una compra propuesta. Camino caliente: una lectura del
// directorio, evaluación en memoria, emisión del token; la persistencia va
// a la cola. Cualquier error interno deniega (fail-closed).
func (s *Service) Authorize(ctx context.Context, credential string, req AuthorizeRequest) (*AuthorizeResult, error) {
	start := s.now()

	agent, tenant, err := s.dir.Lookup(ctx, credential)
	if err != nil {
		if err == directory.ErrNotFound {
			return nil, ErrInvalidCredential
		}
		logger.From(ctx).Error("directory lookup failed", logger.Err(err))
		return s.denyServiceError(start), nil
	}

	snap, err := s.store.SpendSnapshotFor(ctx, agent.ID, start)
	if err != nil {
		logger.From(ctx).Error("spend snapshot failed",
			logger.AgentID(agent.ID), logger.Err(err))
		return s.denyServiceError(start), nil
	}

	// Los topes del plan del tenant actúan como techo sobre los límites
	// del agente.
	clamped := *agent
	if tenant.TransactionCap > 0 && (clamped.TransactionLimit == 0 || tenant.TransactionCap < clamped.TransactionLimit) {
		clamped.TransactionLimit = tenant.TransactionCap
	}
	if tenant.DailyCap > 0 && (clamped.DailyLimit == 0 || tenant.DailyCap < clamped.DailyLimit) {
		clamped.DailyLimit = tenant.DailyCap
	}

	// Tenants nuevos tienen un tope adicional de autorizaciones por día.
	// El tope es del tenant entero: se cuenta sobre todos sus agentes.
	if tenant.RiskLevel == repository.RiskNew && tenant.VelocityCap > 0 {
		issued, err := s.store.CountAuthorizationsToday(ctx, tenant.ID)
		if err != nil {
			logger.From(ctx).Error("tenant authorization count failed",
				logger.TenantID(tenant.ID), logger.Err(err))
			return s.denyServiceError(start), nil
		}
		if issued >= tenant.VelocityCap {
			return s.deny(ctx, agent, start, policy.Decision{
				Outcome: policy.Deny,
				Reason:  policy.ReasonVelocityLimit,
				Detail:  "tenant daily authorization cap reached",
			}), nil
		}
	}

	decision := policy.Evaluate(&clamped, snap, policy.Request{
		AmountCents: req.AmountCents,
		Category:    req.Category,
	})

	switch decision.Outcome {
	case policy.Deny:
		return s.deny(ctx, agent, start, decision), nil
	case policy.NeedsApproval:
		return s.flag(ctx, agent, tenant, start, req, decision)
	}

	auth := &repository.Authorization{
		ID:          uuid.NewString(),
		AgentID:     agent.ID,
		TenantID:    tenant.ID,
		AmountCents: req.AmountCents,
		Category:    req.Category,
		Merchant:    req.Merchant,
		Intent:      req.Intent,
		Status:      repository.StatusAuthorized,
		CreatedAt:   start,
		ExpiresAt:   start.Add(s.cfg.AuthorizationTTL()),
		UpdatedAt:   start,
	}

	issued, err := s.issuer.Issue(agent.ID, agent.CredentialHash, token.Scope{
		MaxAmountCents:  req.AmountCents,
		Category:        req.Category,
		Merchant:        req.Merchant,
		Intent:          req.Intent,
		AuthorizationID: auth.ID,
	})
	if err != nil {
		logger.From(ctx).Error("token issue failed",
			logger.AgentID(agent.ID), logger.Err(err))
		return s.denyServiceError(start), nil
	}
	auth.TokenID = issued.Record.JTI

	// Persistencia fuera del camino de decisión. Ambos jobs son
	// idempotentes y la cola reintenta.
	authCopy := *auth
	rec := issued.Record
	s.enqueue("persist-authorization", func(ctx context.Context) error {
		return s.store.PutAuthorization(ctx, &authCopy)
	})
	s.enqueue("persist-token", func(ctx context.Context) error {
		err := s.store.InsertToken(ctx, &rec)
		if repository.IsConflict(err) {
			return nil
		}
		return err
	})

	latency := s.observe(start, policy.Allow, "")
	logger.From(ctx).Info("authorization approved",
		logger.AgentID(agent.ID),
		logger.AuthorizationID(auth.ID),
		logger.AmountCents(req.AmountCents),
		logger.Category(req.Category),
		logger.Merchant(req.Merchant),
		logger.DurationMs(latency))

	return &AuthorizeResult{
		Approved:        true,
		AuthorizationID: auth.ID,
		Token:           issued.Token,
		ExpiresAt:       auth.ExpiresAt,
		RemainingDaily:  decision.RemainingDaily,
		LatencyMs:       latency,
	}, nil
}

func (s *Service) deny(ctx context.Context, agent *repository.Agent, start time.Time, d policy.Decision) *AuthorizeResult {
	latency := s.observe(start, policy.Deny, d.Reason)
	logger.From(ctx).Info("authorization denied",
		logger.AgentID(agent.ID),
		logger.Reason(d.Reason),
		logger.DurationMs(latency))
	return &AuthorizeResult{
		Approved:       false,
		Reason:         d.Reason,
		Detail:         d.Detail,
		RemainingDaily: d.RemainingDaily,
		LatencyMs:      latency,
	}
}

func (s *Service) denyServiceError(start time.Time) *AuthorizeResult {
	latency := s.observe(start, policy.Deny, ReasonServiceError)
	return &AuthorizeResult{
		Approved:  false,
		Reason:    ReasonServiceError,
		Detail:    "authorization could not be completed, transaction denied",
		LatencyMs: latency,
	}
}

// flag crea la autorización en estado flagged, sin token: el token se emite
// recién al aprobar.
func (s *Service) flag(ctx context.Context, agent *repository.Agent, tenant *repository.Tenant, start time.Time, req AuthorizeRequest, d policy.Decision) (*AuthorizeResult, error) {
	auth := &repository.Authorization{
		ID:          uuid.NewString(),
		AgentID:     agent.ID,
		TenantID:    tenant.ID,
		AmountCents: req.AmountCents,
		Category:    req.Category,
		Merchant:    req.Merchant,
		Intent:      req.Intent,
		Status:      repository.StatusFlagged,
		CreatedAt:   start,
		ExpiresAt:   start.Add(s.cfg.AuthorizationTTL()),
		UpdatedAt:   start,
	}

	authCopy := *auth
	agentName := agent.Name
	s.enqueue("persist-authorization", func(ctx context.Context) error {
		return s.store.PutAuthorization(ctx, &authCopy)
	})
	if s.notifier.Enabled() {
		notifyCopy := *auth
		s.enqueue("notify-approval", func(ctx context.Context) error {
			return s.notifier.ApprovalRequested(&notifyCopy, agentName)
		})
	}

	latency := s.observe(start, policy.NeedsApproval, d.Reason)
	logger.From(ctx).Info("authorization flagged for approval",
		logger.AgentID(agent.ID),
		logger.AuthorizationID(auth.ID),
		logger.AmountCents(req.AmountCents),
		logger.DurationMs(latency))

	return &AuthorizeResult{
		Approved:        false,
		NeedsApproval:   true,
		AuthorizationID: auth.ID,
		ExpiresAt:       auth.ExpiresAt,
		Reason:          d.Reason,
		Detail:          d.Detail,
		LatencyMs:       latency,
	}, nil
}

func (s *Service) observe(start time.Time, outcome policy.Outcome, reason string) int64 {
	elapsed := s.now().Sub(start)
	metrics.AuthorizeLatency.Observe(float64(elapsed.Milliseconds()))
	metrics.Decisions.WithLabelValues(string(outcome), reason).Inc()
	return elapsed.Milliseconds()
}
