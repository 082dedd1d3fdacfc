package authz

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/metrics"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
	"github.com/dropDatabas3/controltower/internal/policy"
)

// Códigos de error de confirmación. El cliente decide con el código, no con
// el mensaje.
const (
	CodeNotFound             = "not_found"
	CodeExpired              = "expired"
	CodeInvalidStatus        = "invalid_status"
	CodeAmountExceeds        = "amount_exceeds_authorization"
	CodeNoPaymentMethod      = "no_payment_method"
	CodeLimitExceededOnClose = "limit_exceeded_at_confirmation"
)

// ConfirmError es un rechazo de confirmación con código estable.
type ConfirmError struct {
	Code    string
	Message string
}

func (e *ConfirmError) Error() string { return e.Code + ": " + e.Message }

func confirmErr(code, msg string) *ConfirmError {
	metrics.ConfirmOutcomes.WithLabelValues(code).Inc()
	return &ConfirmError{Code: code, Message: msg}
}

// Confirmation es el resultado de una confirmación exitosa.
type Confirmation struct {
	AuthorizationID  string
	ChargeID         string
	FinalAmountCents int64
	FeeCents         int64
	ConfirmedAt      time.Time
	Replayed         bool
}

// Confirm liquida una autorización con el monto final real. Tolerancia del
// 5% sobre el monto autorizado, en aritmética entera. Exactamente una
// confirmación gana; la transición de estado es compare-and-set.
func (s *Service) Confirm(ctx context.Context, authorizationID string, finalAmountCents int64) (*Confirmation, error) {
	now := s.now()

	auth, err := s.store.GetAuthorization(ctx, authorizationID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, confirmErr(CodeNotFound, "authorization not found")
		}
		return nil, err
	}

	switch auth.Status {
	case repository.StatusAuthorized:
		// sigue el flujo
	case repository.StatusConfirmed:
		// Replay de una confirmación ya liquidada: idempotente.
		return &Confirmation{
			AuthorizationID:  auth.ID,
			ChargeID:         auth.ChargeID,
			FinalAmountCents: auth.FinalAmountCents,
			ConfirmedAt:      auth.UpdatedAt,
			Replayed:         true,
		}, nil
	default:
		return nil, confirmErr(CodeInvalidStatus, "authorization is "+string(auth.Status))
	}

	if auth.Expired(now) {
		// Expiración perezosa: el primer acceso posterior al vencimiento
		// materializa el estado.
		if err := s.store.TransitionStatus(ctx, auth.ID, repository.StatusAuthorized, repository.StatusExpired, 0, ""); err != nil && !repository.IsInvalidStatus(err) {
			logger.From(ctx).Error("lazy expire failed",
				logger.AuthorizationID(auth.ID), logger.Err(err))
		}
		return nil, confirmErr(CodeExpired, "authorization expired")
	}

	// Tolerancia: final > autorizado*1.05 falla. Entero puro: final*100
	// contra autorizado*105.
	if finalAmountCents*100 > auth.AmountCents*105 {
		return nil, confirmErr(CodeAmountExceeds, "final amount exceeds authorized amount plus tolerance")
	}

	agent, err := s.store.GetAgent(ctx, auth.AgentID)
	if err != nil {
		return nil, err
	}
	if agent.PaymentMethod == "" {
		return nil, confirmErr(CodeNoPaymentMethod, "agent has no payment method configured")
	}

	// Re-chequeo opcional de límites al confirmar (apagado por defecto: el
	// contrato es que la autorización reservó el gasto).
	if s.cfg.Authorization.RecheckLimitsOnConfirm {
		snap, err := s.store.SpendSnapshotFor(ctx, agent.ID, now)
		if err != nil {
			return nil, err
		}
		d := policy.Evaluate(agent, snap, policy.Request{AmountCents: finalAmountCents, Category: auth.Category})
		if d.Outcome == policy.Deny {
			return nil, confirmErr(CodeLimitExceededOnClose, "limits exceeded at confirmation: "+d.Reason)
		}
	}

	tenant, err := s.store.GetTenant(ctx, auth.TenantID)
	if err != nil {
		return nil, err
	}
	fee := tenant.OverageFeeCents

	// El ejecutor es idempotente por authorizationID: si dos confirmaciones
	// corren a la vez, ambas obtienen el mismo cargo y solo una gana el CAS.
	charge, err := s.executor.Execute(ctx, auth.ID, agent.PaymentMethod, finalAmountCents, fee)
	if err != nil {
		logger.From(ctx).Error("charge execution failed",
			logger.AuthorizationID(auth.ID), logger.Err(err))
		return nil, err
	}

	if err := s.store.TransitionStatus(ctx, auth.ID, repository.StatusAuthorized, repository.StatusConfirmed, finalAmountCents, charge.ID); err != nil {
		if repository.IsInvalidStatus(err) {
			// Perdimos la carrera: devolver lo que quedó asentado.
			settled, gerr := s.store.GetAuthorization(ctx, auth.ID)
			if gerr == nil && settled.Status == repository.StatusConfirmed {
				return &Confirmation{
					AuthorizationID:  settled.ID,
					ChargeID:         settled.ChargeID,
					FinalAmountCents: settled.FinalAmountCents,
					ConfirmedAt:      settled.UpdatedAt,
					Replayed:         true,
				}, nil
			}
			return nil, confirmErr(CodeInvalidStatus, "authorization state changed concurrently")
		}
		return nil, err
	}

	// Asiento contable y contador diario. ErrConflict = ya asentado por un
	// reintento previo, se ignora.
	entry := &repository.LedgerEntry{
		ID:              uuid.NewString(),
		AgentID:         agent.ID,
		TenantID:        tenant.ID,
		AuthorizationID: auth.ID,
		AmountCents:     finalAmountCents,
		FeeCents:        fee,
		Category:        auth.Category,
		Merchant:        auth.Merchant,
		ChargeID:        charge.ID,
		CreatedAt:       now,
	}
	if err := s.store.AppendLedger(ctx, entry); err != nil && !repository.IsConflict(err) {
		logger.From(ctx).Error("ledger append failed",
			logger.AuthorizationID(auth.ID), logger.Err(err))
	}
	if err := s.store.AddSpentToday(ctx, agent.ID, s.day(now), finalAmountCents); err != nil {
		logger.From(ctx).Error("daily counter update failed",
			logger.AgentID(agent.ID), logger.Err(err))
	}

	// El token de la autorización ya no sirve para nada: se revoca.
	if auth.TokenID != "" {
		jti := auth.TokenID
		s.enqueue("revoke-spent-token", func(ctx context.Context) error {
			_, err := s.store.RevokeToken(ctx, jti)
			return err
		})
	}

	metrics.ConfirmOutcomes.WithLabelValues("confirmed").Inc()
	logger.From(ctx).Info("authorization confirmed",
		logger.AgentID(agent.ID),
		logger.AuthorizationID(auth.ID),
		logger.AmountCents(finalAmountCents),
		logger.String("charge_id", charge.ID))

	return &Confirmation{
		AuthorizationID:  auth.ID,
		ChargeID:         charge.ID,
		FinalAmountCents: finalAmountCents,
		FeeCents:         fee,
		ConfirmedAt:      now,
	}, nil
}
