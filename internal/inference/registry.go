package inference

import (
	"sync"

	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

type registryEntry struct {
	worker *Worker
	refs   int
}

// Registry hands out one refcounted Worker per tenant
type Registry struct {
	models    *Models
	threshold float32
	metrics   *metrics.RecognitionMetrics

	mu      sync.Mutex
	workers map[uint]*registryEntry
}

// NewRegistry creates an empty registry whose workers share models
func NewRegistry(models *Models, threshold float32, m *metrics.RecognitionMetrics) *Registry {
	return &Registry{
		models:    models,
		threshold: threshold,
		metrics:   m,
		workers:   make(map[uint]*registryEntry),
	}
}

// Acquire returns the tenant's worker, starting it on first use
func (r *Registry) Acquire(tenantID uint) *Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.workers[tenantID]
	if !ok {
		e = &registryEntry{worker: NewWorker(tenantID, r.models, r.threshold, r.metrics)}
		r.workers[tenantID] = e
		r.metrics.SetActiveWorkers(len(r.workers))
		GetLogger().Info("inference worker started", logger.Uint64("tenant_id", uint64(tenantID)))
	}
	e.refs++
	return e.worker
}

// Release returns a worker obtained from Acquire. The last release stops it.
// Releasing a worker that Reset already replaced is a no-op.
func (r *Registry) Release(w *Worker) {
	if w == nil {
		return
	}

	r.mu.Lock()
	e, ok := r.workers[w.tenantID]
	if !ok || e.worker != w {
		r.mu.Unlock()
		return
	}
	e.refs--
	if e.refs > 0 {
		r.mu.Unlock()
		return
	}
	delete(r.workers, w.tenantID)
	r.metrics.SetActiveWorkers(len(r.workers))
	r.mu.Unlock()

	w.Stop()
	GetLogger().Info("inference worker stopped", logger.Uint64("tenant_id", uint64(w.tenantID)))
}

// Reset stops the tenant's current worker and forgets it, so the next
// Acquire starts a fresh one. Holders of the old worker see ErrWorkerStopped
// on their next Submit.
func (r *Registry) Reset(tenantID uint) {
	r.mu.Lock()
	e, ok := r.workers[tenantID]
	if ok {
		delete(r.workers, tenantID)
		r.metrics.SetActiveWorkers(len(r.workers))
	}
	r.mu.Unlock()

	if ok {
		e.worker.Stop()
		GetLogger().Info("inference worker reset",
			logger.Uint64("tenant_id", uint64(tenantID)),
			logger.Int("holders", e.refs))
	}
}

// Active returns the number of running workers
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.workers)
}

// Close stops every worker
func (r *Registry) Close() {
	r.mu.Lock()
	entries := r.workers
	r.workers = make(map[uint]*registryEntry)
	r.metrics.SetActiveWorkers(0)
	r.mu.Unlock()

	for _, e := range entries {
		e.worker.Stop()
	}
}
