package worker

import (
	"context"
	"time"

	"github.com/dropDatabas3/controltower/internal/observability/logger"
)

// SweepFunc ejecuta una pasada de limpieza y retorna cuántos registros borró.
type SweepFunc func(ctx context.Context) (int, error)

// Janitor corre tareas de limpieza en un intervalo fijo: registros de
// idempotencia vencidos, tokens expirados, autorizaciones pendientes viejas.
type Janitor struct {
	interval time.Duration
	sweeps   map[string]SweepFunc
	stop     chan struct{}
	done     chan struct{}
}

func NewJanitor(interval time.Duration) *Janitor {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Janitor{
		interval: interval,
		sweeps:   make(map[string]SweepFunc),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register agrega una tarea de limpieza con nombre. Llamar antes de Start.
func (j *Janitor) Register(name string, fn SweepFunc) {
	j.sweeps[name] = fn
}

// Start lanza el loop. Corre una pasada inmediata al arrancar.
func (j *Janitor) Start() {
	go func() {
		defer close(j.done)
		j.runAll()
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				j.runAll()
			case <-j.stop:
				return
			}
		}
	}()
}

func (j *Janitor) runAll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for name, fn := range j.sweeps {
		n, err := fn(ctx)
		if err != nil {
			logger.L().Error("janitor sweep failed",
				logger.Component("janitor"), logger.Op(name), logger.Err(err))
			continue
		}
		if n > 0 {
			logger.L().Info("janitor sweep",
				logger.Component("janitor"), logger.Op(name), logger.Count(n))
		}
	}
}

// Stop detiene el loop y espera a que termine la pasada en curso.
func (j *Janitor) Stop() {
	close(j.stop)
	<-j.done
}
