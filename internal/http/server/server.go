// Package server arma el router y el ciclo de vida del servidor HTTP.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dropDatabas3/controltower/internal/config"
	"github.com/dropDatabas3/controltower/internal/directory"
	"github.com/dropDatabas3/controltower/internal/http/handlers"
	mw "github.com/dropDatabas3/controltower/internal/http/middlewares"
	"github.com/dropDatabas3/controltower/internal/idempotency"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
	"github.com/dropDatabas3/controltower/internal/rate"
)

// Deps son las dependencias del router.
type Deps struct {
	Config   *config.Config
	Handlers *handlers.Handlers
	Dir      *directory.Directory
	Limiter  rate.Limiter // nil = sin cuota por tenant
	Guard    *idempotency.Guard
	Registry *prometheus.Registry
}

// Server envuelve http.Server con arranque y apagado ordenado.
type Server struct {
	srv *http.Server
}

// New construye el router completo.
func New(deps Deps) *Server {
	r := chi.NewRouter()

	base := []mw.Middleware{
		mw.WithRecover(),
		mw.WithRequestID(),
		mw.WithLogging(),
	}

	// ======================================================================
	// API de agentes (credencial bearer)
	// ======================================================================
	agentChain := append(append([]mw.Middleware{}, base...),
		mw.WithAgentCredential(),
		mw.WithTenantQuota(deps.Dir, deps.Limiter),
	)

	r.Method(http.MethodPost, "/v1/authorize", mw.ChainFunc(
		deps.Handlers.Authorize,
		append(agentChain, mw.WithIdempotency(deps.Guard))...,
	))
	r.Method(http.MethodGet, "/v1/agents/{id}/spending", mw.ChainFunc(
		deps.Handlers.Spending, agentChain...,
	))

	// ======================================================================
	// Ciclo de vida de autorizaciones
	// ======================================================================
	r.Method(http.MethodPost, "/v1/authorizations/{id}/confirm", mw.ChainFunc(
		deps.Handlers.Confirm,
		append(append([]mw.Middleware{}, base...), mw.WithIdempotency(deps.Guard))...,
	))
	r.Method(http.MethodGet, "/v1/authorizations/{id}", mw.ChainFunc(
		deps.Handlers.Status, base...,
	))
	r.Method(http.MethodPost, "/v1/authorizations/{id}/revoke", mw.ChainFunc(
		deps.Handlers.Revoke, base...,
	))

	// ======================================================================
	// Validación para comercios
	// ======================================================================
	r.Method(http.MethodPost, "/v1/validate", mw.ChainFunc(
		deps.Handlers.Validate, base...,
	))
	r.Method(http.MethodPost, "/v1/validate/token", mw.ChainFunc(
		deps.Handlers.ValidateToken, base...,
	))

	// ======================================================================
	// Webhooks
	// ======================================================================
	r.Method(http.MethodPost, "/v1/webhooks/payments", mw.ChainFunc(
		deps.Handlers.Webhook, base...,
	))

	// ======================================================================
	// Admin (X-Admin-Key contra hash bcrypt)
	// ======================================================================
	adminChain := append(append([]mw.Middleware{}, base...),
		mw.RequireAdminKey(deps.Config.Admin.APIKeyHash),
	)
	r.Route("/v1/admin", func(ar chi.Router) {
		ar.Method(http.MethodPost, "/tenants", mw.ChainFunc(deps.Handlers.CreateTenant, adminChain...))
		ar.Method(http.MethodGet, "/tenants/{id}", mw.ChainFunc(deps.Handlers.GetTenant, adminChain...))
		ar.Method(http.MethodPost, "/tenants/{id}/verify", mw.ChainFunc(deps.Handlers.VerifyTenant, adminChain...))

		ar.Method(http.MethodPost, "/agents", mw.ChainFunc(deps.Handlers.CreateAgent, adminChain...))
		ar.Method(http.MethodGet, "/agents/{id}", mw.ChainFunc(deps.Handlers.GetAgent, adminChain...))
		ar.Method(http.MethodPatch, "/agents/{id}", mw.ChainFunc(deps.Handlers.UpdateAgent, adminChain...))
		ar.Method(http.MethodDelete, "/agents/{id}", mw.ChainFunc(deps.Handlers.RevokeAgent, adminChain...))
		ar.Method(http.MethodPost, "/agents/{id}/emergency-stop", mw.ChainFunc(deps.Handlers.EmergencyStop, adminChain...))

		ar.Method(http.MethodPost, "/authorizations/{id}/approve", mw.ChainFunc(deps.Handlers.Approve, adminChain...))
	})

	// ======================================================================
	// Infra
	// ======================================================================
	r.Method(http.MethodGet, "/readyz", mw.ChainFunc(
		deps.Handlers.Readyz,
		mw.WithRecover(), mw.WithRequestID(), // sin logging: muy frecuente
	))
	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	return &Server{
		srv: &http.Server{
			Addr:              deps.Config.Server.Addr,
			Handler:           r,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
	}
}

// Handler expone el router armado (tests de integración).
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start bloquea sirviendo hasta que el listener cierre.
func (s *Server) Start() error {
	logger.L().Info("http server listening", logger.String("addr", s.srv.Addr))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown apaga el servidor drenando conexiones en curso.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
