// Package memory implementa el Store completo en memoria. Es el backend
// autoritativo de los tests y el modo de arranque sin base de datos.
package memory

import (
	"sync"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
)

// Store guarda todo bajo un solo mutex. El volumen esperado en memoria es
// chico; la simplicidad gana a la granularidad de locking.
type Store struct {
	mu sync.RWMutex

	tenants map[string]repository.Tenant
	agents  map[string]repository.Agent
	byCred  map[string]string // credential hash → agent id

	auths  map[string]repository.Authorization
	ledger []repository.LedgerEntry
	byAuth map[string]struct{} // authorization ids ya asentados en el ledger

	tokens map[string]repository.TokenRecord

	idem     map[string]repository.IdempotencyRecord
	webhooks map[string]repository.WebhookSeen
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		tenants:  make(map[string]repository.Tenant),
		agents:   make(map[string]repository.Agent),
		byCred:   make(map[string]string),
		auths:    make(map[string]repository.Authorization),
		byAuth:   make(map[string]struct{}),
		tokens:   make(map[string]repository.TokenRecord),
		idem:     make(map[string]repository.IdempotencyRecord),
		webhooks: make(map[string]repository.WebhookSeen),
	}
}

// Close no tiene recursos que liberar en el backend de memoria.
func (s *Store) Close() error { return nil }

func cloneAgent(a repository.Agent) repository.Agent {
	out := a
	if a.CategoryLimits != nil {
		out.CategoryLimits = make(map[string]int64, len(a.CategoryLimits))
		for k, v := range a.CategoryLimits {
			out.CategoryLimits[k] = v
		}
	}
	if a.LastUsed != nil {
		t := *a.LastUsed
		out.LastUsed = &t
	}
	out.Approval.AlwaysApprove = append([]string(nil), a.Approval.AlwaysApprove...)
	out.Approval.NeverApprove = append([]string(nil), a.Approval.NeverApprove...)
	return out
}
