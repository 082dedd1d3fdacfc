package repository

import (
	"context"
	"time"
)

// RiskLevel clasifica el riesgo de un tenant según verificación y antigüedad.
type RiskLevel string

const (
	RiskNew      RiskLevel = "new"
	RiskVerified RiskLevel = "verified"
	RiskHigh     RiskLevel = "high_risk"
)

// Tenant representa una organización dueña de agentes.
// Nunca se borra físicamente; la desactivación es lógica.
type Tenant struct {
	ID        string
	Name      string
	Plan      string // plan id: sandbox | starter | builder | enterprise
	RiskLevel RiskLevel
	Verified  bool

	// Límites derivados del plan, en centavos. Se resuelven al crear el
	// tenant y se re-resuelven en eventos de verificación/upgrade.
	TransactionCap int64
	DailyCap       int64

	// APIQuota es la cuota de llamadas a la API por ventana de rate limit.
	APIQuota int

	// VelocityCap limita autorizaciones por día para tenants risk_level=new.
	VelocityCap int

	// OverageFeeCents es el fee de plataforma por transacción confirmada.
	OverageFeeCents int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// TenantRepository define operaciones sobre tenants.
type TenantRepository interface {
	// CreateTenant crea un tenant nuevo. Retorna ErrConflict si el ID ya existe.
	CreateTenant(ctx context.Context, t *Tenant) error

	// GetTenant busca un tenant por ID. Retorna ErrNotFound si no existe.
	GetTenant(ctx context.Context, id string) (*Tenant, error)

	// UpdateTenant actualiza un tenant existente (verificación, cambio de plan,
	// re-evaluación de riesgo).
	UpdateTenant(ctx context.Context, t *Tenant) error
}
