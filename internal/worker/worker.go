// Package worker es la cola en memoria que saca las escrituras del camino
// de decisión: registros de autorización, contadores de uso y limpieza
// corren acá, no dentro del request.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/controltower/internal/metrics"
	"github.com/dropDatabas3/controltower/internal/observability/logger"
)

// Job es una unidad de trabajo. Debe ser idempotente: ante fallo se
// reintenta, y un reintento tras un éxito parcial no puede duplicar efectos.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

// Pool procesa jobs con un número fijo de goroutines sobre una cola acotada.
type Pool struct {
	queue      chan Job
	maxRetries int
	wg         sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New crea el pool y arranca los workers.
func New(workers, queueSize, maxRetries int) *Pool {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &Pool{
		queue:      make(chan Job, queueSize),
		maxRetries: maxRetries,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Enqueue encola un job sin bloquear. Si la cola está llena el job se
// descarta y se loguea: el camino de decisión nunca espera por la cola.
func (p *Pool) Enqueue(job Job) bool {
	// El RLock cubre también el send: Close no puede cerrar el canal
	// mientras haya un Enqueue en vuelo.
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}

	select {
	case p.queue <- job:
		metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		logger.L().Error("worker queue full, job dropped",
			logger.Component("worker"), logger.Op(job.Name))
		return false
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for job := range p.queue {
		metrics.WorkerQueueDepth.Set(float64(len(p.queue)))
		p.execute(job)
	}
}

func (p *Pool) execute(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var err error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		if err = job.Run(ctx); err == nil {
			return
		}
	}
	logger.L().Error("worker job failed after retries",
		logger.Component("worker"), logger.Op(job.Name), logger.Err(err))
}

// Close drena la cola y espera a los workers. Idempotente.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()
	p.wg.Wait()
}
