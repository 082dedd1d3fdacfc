// Package authz es el servicio de autorización de gasto: recibe una compra
// propuesta, decide en milisegundos y emite el scoped token. Las escrituras
// salen del camino de decisión hacia la cola del worker.
package authz

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/controltower/internal/config"
	"github.com/dropDatabas3/controltower/internal/directory"
	"github.com/dropDatabas3/controltower/internal/domain/repository"
	"github.com/dropDatabas3/controltower/internal/notify"
	"github.com/dropDatabas3/controltower/internal/payments"
	"github.com/dropDatabas3/controltower/internal/token"
	"github.com/dropDatabas3/controltower/internal/worker"
)

// Razones de denegación fuera del evaluador de política.
const (
	// ReasonServiceError: cualquier falla interna deniega. Fail-closed:
	// nunca se aprueba gasto porque un componente no respondió.
	ReasonServiceError = "authorization_service_error"

	// ReasonInvalidCredential: la credencial no resuelve a un agente activo.
	ReasonInvalidCredential = "invalid_credential"
)

// ErrInvalidCredential lo retorna Authorize cuando la credencial no existe.
var ErrInvalidCredential = errors.New("authz: invalid credential")

// Service orquesta directorio, política, tokens y pagos.
type Service struct {
	cfg       *config.Config
	store     repository.Store
	dir       *directory.Directory
	issuer    *token.Issuer
	validator *token.Validator
	executor  payments.Executor
	pool      *worker.Pool
	notifier  *notify.Notifier

	now func() time.Time
}

func New(cfg *config.Config, store repository.Store, dir *directory.Directory, issuer *token.Issuer, validator *token.Validator, executor payments.Executor, pool *worker.Pool, notifier *notify.Notifier) *Service {
	return &Service{
		cfg:       cfg,
		store:     store,
		dir:       dir,
		issuer:    issuer,
		validator: validator,
		executor:  executor,
		pool:      pool,
		notifier:  notifier,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Directory expone el directorio para handlers administrativos que lo
// invalidan tras cambios de configuración.
func (s *Service) Directory() *directory.Directory { return s.dir }

func (s *Service) day(t time.Time) string { return t.UTC().Format("2006-01-02") }

// enqueue encola un job con contexto propio; el request no espera por él.
func (s *Service) enqueue(name string, fn func(ctx context.Context) error) {
	s.pool.Enqueue(worker.Job{Name: name, Run: fn})
}
