package repository

// Store agrega todos los repositorios que el control plane necesita.
// memory y pg implementan la interfaz completa.
type Store interface {
	TenantRepository
	AgentRepository
	AuthorizationRepository
	LedgerRepository
	TokenRepository
	IdempotencyRepository
	WebhookLogRepository

	// Close libera recursos del backend (pool de conexiones, etc).
	Close() error
}
