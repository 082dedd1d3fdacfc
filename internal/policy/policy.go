// Package policy contiene el evaluador de política de gasto.
//
// evaluate es una función pura: recibe la configuración del agente y un
// snapshot de gasto reciente, y decide allow/deny/needs_approval sin tocar
// almacenamiento. Toda la aritmética es en centavos enteros; los empates en
// un límite (==) pasan.
package policy

import (
	"fmt"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

// Outcome es el resultado de una evaluación.
type Outcome string

const (
	Allow         Outcome = "allow"
	Deny          Outcome = "deny"
	NeedsApproval Outcome = "needs_approval"
)

// Razones de denegación, en orden de evaluación.
const (
	ReasonEmergencyStop    = "emergency_stop"
	ReasonTransactionLimit = "transaction_limit"
	ReasonDailyLimit       = "daily_limit"
	ReasonCategoryLimit    = "category_limit"
	ReasonVelocityLimit    = "velocity_limit"
)

// Decision es el veredicto del evaluador.
type Decision struct {
	Outcome Outcome
	Reason  string
	Detail  string

	// RemainingDaily: presupuesto diario restante en centavos (solo se
	// reporta en denials por daily_limit y en allows).
	RemainingDaily int64
}

// Request es la compra propuesta.
type Request struct {
	AmountCents int64
	Category    string
}

// Evaluate aplica las reglas en orden, con corte en la primera que falla:
//
//  1. emergency stop
//  2. límite por transacción
//  3. límite diario
//  4. límite mensual por categoría
//  5. límite de velocidad (txns por hora móvil)
//  6. política de aprobación
func Evaluate(agent *repository.Agent, snap *repository.SpendSnapshot, req Request) Decision {
	if agent.EmergencyStop {
		return Decision{
			Outcome: Deny,
			Reason:  ReasonEmergencyStop,
			Detail:  "emergency stop active: all purchases disabled",
		}
	}

	if req.AmountCents > agent.TransactionLimit {
		return Decision{
			Outcome: Deny,
			Reason:  ReasonTransactionLimit,
			Detail: fmt.Sprintf("transaction too large: %d > limit %d",
				req.AmountCents, agent.TransactionLimit),
		}
	}

	spentToday := snap.SpentToday
	if spentToday+req.AmountCents > agent.DailyLimit {
		remaining := agent.DailyLimit - spentToday
		if remaining < 0 {
			remaining = 0
		}
		return Decision{
			Outcome: Deny,
			Reason:  ReasonDailyLimit,
			Detail: fmt.Sprintf("daily limit exceeded: spent %d of %d today",
				spentToday, agent.DailyLimit),
			RemainingDaily: remaining,
		}
	}

	if limit, ok := agent.CategoryLimits[req.Category]; ok && limit > 0 {
		spentMonth := snap.SpentMonthByCategory[req.Category]
		if spentMonth+req.AmountCents > limit {
			return Decision{
				Outcome: Deny,
				Reason:  ReasonCategoryLimit,
				Detail: fmt.Sprintf("monthly %s limit exceeded: spent %d of %d",
					req.Category, spentMonth, limit),
			}
		}
	}

	if agent.VelocityLimit > 0 && snap.TxnsLastHour >= agent.VelocityLimit {
		return Decision{
			Outcome: Deny,
			Reason:  ReasonVelocityLimit,
			Detail: fmt.Sprintf("too many transactions: %d >= %d per hour",
				snap.TxnsLastHour, agent.VelocityLimit),
		}
	}

	remaining := agent.DailyLimit - spentToday - req.AmountCents

	if requiresApproval(req.AmountCents, req.Category, agent.Approval) {
		return Decision{
			Outcome: NeedsApproval,
			Reason:  "approval_required",
			Detail: fmt.Sprintf("purchase requires approval (over %d)",
				agent.Approval.RequireApprovalOver),
			RemainingDaily: remaining,
		}
	}

	return Decision{Outcome: Allow, RemainingDaily: remaining}
}

// requiresApproval aplica la política de aprobación del agente:
// monto chico pasa siempre, luego listas de categorías, luego el umbral alto.
func requiresApproval(amountCents int64, category string, s repository.ApprovalSettings) bool {
	if amountCents <= s.AutoApproveUnder {
		return false
	}
	for _, c := range s.AlwaysApprove {
		if c == category {
			return false
		}
	}
	for _, c := range s.NeverApprove {
		if c == category {
			return true
		}
	}
	return amountCents > s.RequireApprovalOver
}
