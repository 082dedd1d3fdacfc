package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Authorization-path Prometheus metrics. Standalone package to avoid import
// cycles between the authz service and the HTTP layer.

var (
	AuthorizeLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "authorize_latency_ms",
		Help:    "Latencia de /v1/authorize en milisegundos (target <400ms)",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})

	Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "authorize_decisions_total",
		Help: "Decisiones de autorización por resultado y razón",
	}, []string{"outcome", "reason"})

	IdempotentReplays = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "idempotent_replays_total",
		Help: "Respuestas servidas desde el idempotency guard",
	})

	DirectoryCacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_cache_hits_total",
		Help: "Hits del cache de credenciales del directorio",
	})

	DirectoryCacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "directory_cache_misses_total",
		Help: "Misses del cache de credenciales (dispara rebuild completo)",
	})

	WorkerQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "worker_queue_depth",
		Help: "Jobs pendientes en la cola de persistencia en background",
	})

	ConfirmOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "confirm_outcomes_total",
		Help: "Resultados de confirmación por código",
	}, []string{"code"})
)

// Register registers the authorization metrics on the given registry
// (or the default registry if nil).
func Register(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	collectors := []prometheus.Collector{
		AuthorizeLatency,
		Decisions,
		IdempotentReplays,
		DirectoryCacheHits,
		DirectoryCacheMisses,
		WorkerQueueDepth,
		ConfirmOutcomes,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return err
			}
		}
	}
	return nil
}
