package dto

import "time"

// CreateTenantRequest da de alta una organización.
type CreateTenantRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Plan     string `json:"plan,omitempty"`
	Verified bool   `json:"verified,omitempty"`
}

// TenantResponse es la vista administrativa de un tenant.
type TenantResponse struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Plan            string    `json:"plan"`
	RiskLevel       string    `json:"riskLevel"`
	Verified        bool      `json:"verified"`
	TransactionCap  int64     `json:"transactionCap"`
	DailyCap        int64     `json:"dailyCap"`
	APIQuota        int       `json:"apiQuota"`
	VelocityCap     int       `json:"velocityCap"`
	OverageFeeCents int64     `json:"overageFee"`
	CreatedAt       time.Time `json:"createdAt"`
}

// CreateAgentRequest provisiona un agente con su credencial. Montos en
// centavos; los campos en cero toman los defaults de la config.
type CreateAgentRequest struct {
	TenantID         string            `json:"tenantId"`
	Name             string            `json:"name"`
	Live             bool              `json:"live,omitempty"`
	DailyLimit       int64             `json:"dailyLimit,omitempty"`
	TransactionLimit int64             `json:"transactionLimit,omitempty"`
	CategoryLimits   map[string]int64  `json:"categoryLimits,omitempty"`
	VelocityLimit    int               `json:"velocityLimit,omitempty"`
	PaymentMethod    string            `json:"paymentMethod,omitempty"`
	Approval         *ApprovalSettings `json:"approval,omitempty"`
}

// ApprovalSettings es la política de aprobación manual.
type ApprovalSettings struct {
	RequireApprovalOver int64    `json:"requireApprovalOver,omitempty"`
	AutoApproveUnder    int64    `json:"autoApproveUnder,omitempty"`
	AlwaysApprove       []string `json:"alwaysApprove,omitempty"`
	NeverApprove        []string `json:"neverApprove,omitempty"`
}

// AgentResponse es la vista administrativa de un agente. Credential solo
// viene poblado en la respuesta de creación: es la única vez que existe en
// claro.
type AgentResponse struct {
	ID               string            `json:"id"`
	TenantID         string            `json:"tenantId"`
	Name             string            `json:"name"`
	Credential       string            `json:"credential,omitempty"`
	DailyLimit       int64             `json:"dailyLimit"`
	TransactionLimit int64             `json:"transactionLimit"`
	CategoryLimits   map[string]int64  `json:"categoryLimits,omitempty"`
	VelocityLimit    int               `json:"velocityLimit"`
	EmergencyStop    bool              `json:"emergencyStop"`
	Approval         *ApprovalSettings `json:"approval,omitempty"`
	PaymentMethod    string            `json:"paymentMethod,omitempty"`
	LastUsed         *time.Time        `json:"lastUsed,omitempty"`
	UsageCount       int64             `json:"usageCount"`
	CreatedAt        time.Time         `json:"createdAt"`
}

// EmergencyStopRequest prende o apaga el kill-switch de un agente.
type EmergencyStopRequest struct {
	Active bool `json:"active"`
}

// SpendingResponse es el resumen de gasto de un agente.
type SpendingResponse struct {
	AgentID          string           `json:"agentId"`
	SpentToday       int64            `json:"spentToday"`
	DailyLimit       int64            `json:"dailyLimit"`
	RemainingDaily   int64            `json:"remainingDaily"`
	MonthByCategory  map[string]int64 `json:"monthByCategory,omitempty"`
	TxnsLastHour     int              `json:"transactionsLastHour"`
	EmergencyStopped bool             `json:"emergencyStopped"`
	RecentPurchases  []PurchaseEntry  `json:"recentPurchases"`
}

// PurchaseEntry es una compra asentada en el libro.
type PurchaseEntry struct {
	AuthorizationID string    `json:"authorizationId"`
	AmountCents     int64     `json:"amount"`
	FeeCents        int64     `json:"platformFee,omitempty"`
	Category        string    `json:"category,omitempty"`
	Merchant        string    `json:"merchant,omitempty"`
	ChargeID        string    `json:"chargeId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}
