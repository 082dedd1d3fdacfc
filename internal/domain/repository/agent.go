package repository

import (
	"context"
	"time"
)

// ApprovalSettings define la política de aprobación manual de un agente.
// Montos en centavos. Se valida al escribir, no al leer.
type ApprovalSettings struct {
	// RequireApprovalOver: montos mayores requieren aprobación manual.
	RequireApprovalOver int64
	// AutoApproveUnder: montos menores o iguales se aprueban siempre.
	AutoApproveUnder int64
	// AlwaysApprove: categorías que nunca requieren aprobación.
	AlwaysApprove []string
	// NeverApprove: categorías que siempre requieren aprobación.
	NeverApprove []string
}

// Agent es un actor credencializado que pertenece a exactamente un tenant.
type Agent struct {
	ID       string
	TenantID string
	Name     string

	// CredentialHash es el sha256 hex de la credencial (ak_live_... / ak_test_...).
	// La credencial en claro nunca se persiste.
	CredentialHash string

	// Límites de gasto, en centavos.
	DailyLimit       int64
	TransactionLimit int64
	CategoryLimits   map[string]int64 // categoría → tope mensual

	// VelocityLimit: máximo de transacciones por hora móvil.
	VelocityLimit int

	// EmergencyStop deshabilita toda autorización del agente.
	EmergencyStop bool

	Approval ApprovalSettings

	// PaymentMethod es el identificador del método de pago en el ejecutor
	// externo. Vacío = sin método de pago (confirm falla con no_payment_method).
	PaymentMethod string

	// SpentToday es el contador corriente de gasto diario en centavos.
	// SpentDay marca el día (UTC, YYYY-MM-DD) al que corresponde; el store
	// lo resetea en el rollover de día.
	SpentToday int64
	SpentDay   string

	// Contadores de uso, actualizados fuera del camino de decisión.
	LastUsed   *time.Time
	UsageCount int64

	// Revoked marca el borrado lógico.
	Revoked bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// AgentRepository define operaciones sobre agentes.
type AgentRepository interface {
	// CreateAgent crea un agente. Retorna ErrConflict si el credential hash
	// ya está en uso.
	CreateAgent(ctx context.Context, a *Agent) error

	// GetAgent busca un agente por ID.
	GetAgent(ctx context.Context, id string) (*Agent, error)

	// AgentByCredentialHash busca un agente activo por el hash de su
	// credencial, junto con su tenant. Es la consulta del camino caliente:
	// una sola lectura que trae agente + tenant.
	AgentByCredentialHash(ctx context.Context, hash string) (*Agent, *Tenant, error)

	// ListAgents retorna todos los agentes activos. Usado para reconstruir
	// el cache del directorio completo.
	ListAgents(ctx context.Context) ([]Agent, error)

	// UpdateAgent actualiza la configuración de un agente.
	UpdateAgent(ctx context.Context, a *Agent) error

	// TouchAgentUsage actualiza lastUsed/usageCount. Best-effort, se invoca
	// desde la cola en background, nunca desde el camino de decisión.
	TouchAgentUsage(ctx context.Context, id string, at time.Time) error

	// AddSpentToday suma centavos al contador diario del agente, reseteando
	// si day no coincide con el día registrado. Idempotente por ledger entry
	// a nivel de llamador.
	AddSpentToday(ctx context.Context, id string, day string, amountCents int64) error

	// SetEmergencyStop activa/desactiva el kill-switch del agente.
	SetEmergencyStop(ctx context.Context, id string, active bool) error

	// RevokeAgent marca el borrado lógico del agente.
	RevokeAgent(ctx context.Context, id string) error
}
