// Package directory resuelve credencial → (agente, tenant) en O(1).
//
// El cache se puebla eagerly al crear credenciales y se reconstruye completo
// ante un miss (evento excepcional, logueado). Las lecturas nunca bloquean
// sobre una escritura; la reconstrucción es la única operación que toma el
// lock exclusivo, y singleflight colapsa rebuilds concurrentes en uno.
package directory

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"

	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/metrics"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
	"golang.org/x/sync/singleflight"
)

// ErrNotFound: la credencial no existe (ni siquiera tras rebuild). No se
// reintenta.
var ErrNotFound = errors.New("directory: credential not found")

type entry struct {
	agent  repository.Agent
	tenant repository.Tenant
}

// Directory es el índice credencial→identidad del control plane.
// Una sola instancia por servicio; sin estado a nivel de módulo.
type Directory struct {
	store repository.Store

	mu     sync.RWMutex
	byHash map[string]entry

	sf singleflight.Group

	// onUse se invoca en cada lookup exitoso, fuera del camino de decisión
	// (el worker lo encola). Puede ser nil.
	onUse func(agentID string, at time.Time)
}

// New crea el directorio y hace la carga inicial del cache.
func New(ctx context.Context, store repository.Store, onUse func(agentID string, at time.Time)) (*Directory, error) {
	d := &Directory{
		store:  store,
		byHash: make(map[string]entry),
		onUse:  onUse,
	}
	if err := d.Rebuild(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// HashCredential calcula el sha256 hex de una credencial. Es la clave del
// cache y lo único que se persiste de la credencial.
func HashCredential(credential string) string {
	sum := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(sum[:])
}

// NewCredential genera una credencial de agente (ak_live_/ak_test_ + hex).
func NewCredential(live bool) string {
	var b [24]byte
	_, _ = rand.Read(b[:])
	prefix := "ak_test_"
	if live {
		prefix = "ak_live_"
	}
	return prefix + hex.EncodeToString(b[:])
}

// Lookup resuelve una credencial. Hit: O(1) sin tocar el store. Miss:
// rebuild completo y segundo intento; un miss tras rebuild es NotFound duro.
func (d *Directory) Lookup(ctx context.Context, credential string) (*repository.Agent, *repository.Tenant, error) {
	hash := HashCredential(credential)

	if e, ok := d.get(hash); ok {
		metrics.DirectoryCacheHits.Inc()
		d.touch(e.agent.ID)
		return cloneEntry(e)
	}

	metrics.DirectoryCacheMisses.Inc()
	logger.From(ctx).Warn("directory cache miss, rebuilding",
		logger.Component("directory"))

	// singleflight: un miss storm dispara una sola reconstrucción.
	if _, err, _ := d.sf.Do("rebuild", func() (any, error) {
		return nil, d.Rebuild(ctx)
	}); err != nil {
		return nil, nil, err
	}

	if e, ok := d.get(hash); ok {
		d.touch(e.agent.ID)
		return cloneEntry(e)
	}
	return nil, nil, ErrNotFound
}

func (d *Directory) get(hash string) (entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.byHash[hash]
	if !ok || e.agent.Revoked {
		return entry{}, false
	}
	return e, true
}

func (d *Directory) touch(agentID string) {
	if d.onUse != nil {
		d.onUse(agentID, time.Now().UTC())
	}
}

// Rebuild repobla el cache completo desde el store. Es la única operación
// con lock exclusivo, acotado al swap del mapa.
func (d *Directory) Rebuild(ctx context.Context) error {
	agents, err := d.store.ListAgents(ctx)
	if err != nil {
		return err
	}

	tenants := make(map[string]*repository.Tenant)
	fresh := make(map[string]entry, len(agents))
	for _, a := range agents {
		if a.Revoked || a.CredentialHash == "" {
			continue
		}
		t, ok := tenants[a.TenantID]
		if !ok {
			t, err = d.store.GetTenant(ctx, a.TenantID)
			if err != nil {
				if repository.IsNotFound(err) {
					continue // agente huérfano, no entra al cache
				}
				return err
			}
			tenants[a.TenantID] = t
		}
		fresh[a.CredentialHash] = entry{agent: a, tenant: *t}
	}

	d.mu.Lock()
	d.byHash = fresh
	d.mu.Unlock()

	logger.L().Info("directory cache rebuilt",
		logger.Component("directory"), logger.Count(len(fresh)))
	return nil
}

// Put inserta/actualiza una entrada (población eager al crear credenciales
// o al actualizar configuración de un agente).
func (d *Directory) Put(agent repository.Agent, tenant repository.Tenant) {
	d.mu.Lock()
	d.byHash[agent.CredentialHash] = entry{agent: agent, tenant: tenant}
	d.mu.Unlock()
}

// Evict elimina la entrada de una credencial (revocación).
func (d *Directory) Evict(credentialHash string) {
	d.mu.Lock()
	delete(d.byHash, credentialHash)
	d.mu.Unlock()
}

// Size retorna la cantidad de credenciales cacheadas.
func (d *Directory) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byHash)
}

func cloneEntry(e entry) (*repository.Agent, *repository.Tenant, error) {
	a := e.agent
	if e.agent.CategoryLimits != nil {
		a.CategoryLimits = make(map[string]int64, len(e.agent.CategoryLimits))
		for k, v := range e.agent.CategoryLimits {
			a.CategoryLimits[k] = v
		}
	}
	t := e.tenant
	return &a, &t, nil
}
