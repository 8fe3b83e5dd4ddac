package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/modelcache"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

// Worker serialises inference for one tenant. Requests queued while a batch
// is running form the next batch and are served in submission order.
type Worker struct {
	tenantID  uint
	models    *Models
	threshold float32
	metrics   *metrics.RecognitionMetrics

	mu      sync.Mutex
	cond    *sync.Cond
	pending []*Request
	stopped bool
	done    chan struct{}
}

// NewWorker starts a worker goroutine for tenantID
func NewWorker(tenantID uint, models *Models, threshold float32, m *metrics.RecognitionMetrics) *Worker {
	if models == nil || models.Detector == nil || models.Embedder == nil {
		panic("inference: NewWorker called without detector and embedder")
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}

	w := &Worker{
		tenantID:  tenantID,
		models:    models,
		threshold: threshold,
		metrics:   m,
		done:      make(chan struct{}),
	}
	w.cond = sync.NewCond(&w.mu)
	go w.loop()
	return w
}

// TenantID returns the tenant this worker serves
func (w *Worker) TenantID() uint { return w.tenantID }

// Submit queues req. On error the caller keeps ownership of req.Frame.
func (w *Worker) Submit(ctx context.Context, req *Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if req == nil || cap(req.Reply) < 1 {
		return errors.Newf("inference request needs a buffered reply channel").
			Component("inference").
			Category(errors.CategoryValidation).
			Build()
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return ErrWorkerStopped
	}
	w.pending = append(w.pending, req)
	w.cond.Signal()
	return nil
}

// Stop fails queued requests with ErrWorkerStopped and waits for the running
// batch to finish. It is safe to call more than once.
func (w *Worker) Stop() {
	w.mu.Lock()
	if !w.stopped {
		w.stopped = true
		for _, req := range w.pending {
			finish(req, Result{Err: ErrWorkerStopped})
		}
		w.pending = nil
		w.cond.Broadcast()
	}
	w.mu.Unlock()

	<-w.done
}

// Stopped reports whether Stop was called
func (w *Worker) Stopped() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stopped
}

func (w *Worker) loop() {
	defer close(w.done)

	for {
		batch := w.waitForBatch()
		if batch == nil {
			return
		}
		w.processBatch(batch)
	}
}

// waitForBatch blocks until work is queued and takes all of it. It returns
// nil once the worker is stopped.
func (w *Worker) waitForBatch() []*Request {
	w.mu.Lock()
	defer w.mu.Unlock()

	for len(w.pending) == 0 && !w.stopped {
		w.cond.Wait()
	}
	if w.stopped {
		return nil
	}
	batch := w.pending
	w.pending = nil
	return batch
}

func (w *Worker) processBatch(batch []*Request) {
	start := time.Now()
	w.metrics.ObserveBatch(len(batch))

	served := 0
	defer func() {
		if r := recover(); r != nil {
			err := errors.New(fmt.Errorf("panic during inference: %v", r)).
				Component("inference").
				Category(errors.CategoryInference).
				Priority(errors.PriorityHigh).
				Context("tenant_id", w.tenantID).
				Context("batch_size", len(batch)).
				Build()
			GetLogger().Error("inference batch panicked",
				logger.Uint64("tenant_id", uint64(w.tenantID)),
				logger.Error(err))
			for _, req := range batch[served:] {
				finish(req, Result{Err: err})
			}
		}
	}()

	for _, req := range batch {
		res := w.process(req)
		served++
		finish(req, res)
	}
	w.metrics.ObserveStage(metrics.StageBatch, time.Since(start))
}

// process runs the full pipeline on one frame
func (w *Worker) process(req *Request) Result {
	t := time.Now()
	dets, err := w.models.Detector.Detect(req.Frame)
	w.metrics.ObserveStage(metrics.StageDetect, time.Since(t))
	if err != nil {
		w.metrics.FrameError(metrics.StageDetect)
		return Result{Err: w.inferenceError(err, metrics.StageDetect)}
	}

	faces := make([]Face, 0, len(dets))
	recognised := 0
	for _, det := range dets {
		t = time.Now()
		emb, err := w.models.Embedder.Embed(req.Frame, det.Box)
		w.metrics.ObserveStage(metrics.StageEmbed, time.Since(t))
		if err != nil {
			w.metrics.FrameError(metrics.StageEmbed)
			return Result{Err: w.inferenceError(err, metrics.StageEmbed)}
		}

		face := match(emb, req.Index, w.threshold)
		face.Box = det.Box
		face.Landmarks = det.Landmarks
		if face.Known {
			recognised++
		}

		if w.models.Emotion != nil {
			t = time.Now()
			emotion, err := w.models.Emotion.Classify(req.Frame, det.Box)
			w.metrics.ObserveStage(metrics.StageEmotion, time.Since(t))
			if err != nil {
				GetLogger().Debug("emotion classification failed",
					logger.Uint64("tenant_id", uint64(w.tenantID)),
					logger.Error(err))
			} else {
				face.Emotion = emotion
			}
		}
		faces = append(faces, face)
	}

	w.metrics.ObserveFaces(recognised, len(faces)-recognised)
	return Result{Faces: faces}
}

func (w *Worker) inferenceError(err error, stage string) error {
	return errors.New(err).
		Component("inference").
		Category(errors.CategoryInference).
		Context("tenant_id", w.tenantID).
		Context("stage", stage).
		Build()
}

// match normalises emb and looks up its nearest enrolled identity
func match(emb []float32, index *modelcache.VectorIndex, threshold float32) Face {
	face := Face{Label: UnknownLabel}
	if index == nil {
		return face
	}
	modelcache.Normalize(emb)
	row, score := index.Search(emb)
	if row < 0 {
		return face
	}
	face.Similarity = score
	if score >= threshold {
		face.Label = index.Label(row)
		face.Known = true
	}
	return face
}

// finish releases the request frame and delivers res
func finish(req *Request, res Result) {
	_ = req.Frame.Close()
	select {
	case req.Reply <- res:
	default:
		// reply already holds a result; Submit guarantees capacity for one
	}
}
