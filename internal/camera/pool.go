// Package camera shares local capture devices between streaming sessions.
// Each camera id has at most one capture goroutine while any session holds it;
// every holder gets its own single-slot buffer with the latest frame.
package camera

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/observability/metrics"
)

// DefaultReadRetryDelay is the pause after a failed frame grab
const DefaultReadRetryDelay = 50 * time.Millisecond

// ErrPoolClosed is returned by Acquire after Close
var ErrPoolClosed = errors.NewStd("camera pool closed")

// Stats is a snapshot of one running camera
type Stats struct {
	ID       int    `json:"id"`
	Refs     int    `json:"refs"`
	Captured uint64 `json:"frames_captured"`
	Dropped  uint64 `json:"frames_dropped"`
}

// Pool is the refcounted registry of running cameras
type Pool struct {
	mu      sync.Mutex
	opener  DeviceOpener
	sources map[int]*source
	closed  bool

	// stopping holds cameras whose last holder left but whose device is still
	// closing; the channel closes once the device is closed
	stopping map[int]chan struct{}

	retryDelay time.Duration
	probeCount int
	listTTL    time.Duration
	listCache  *deviceCache
	metrics    *metrics.CameraMetrics
}

// Option configures a Pool
type Option func(*Pool)

// WithMetrics reports capture activity to m
func WithMetrics(m *metrics.CameraMetrics) Option {
	return func(p *Pool) { p.metrics = m }
}

// WithReadRetryDelay sets the pause after a failed grab
func WithReadRetryDelay(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// WithDeviceProbe sets how many ids ListDevices probes and how long the result is reused
func WithDeviceProbe(count int, ttl time.Duration) Option {
	return func(p *Pool) {
		if count > 0 {
			p.probeCount = count
		}
		if ttl > 0 {
			p.listTTL = ttl
		}
	}
}

// NewPool creates an empty pool using opener for devices
func NewPool(opener DeviceOpener, opts ...Option) *Pool {
	p := &Pool{
		opener:     opener,
		sources:    make(map[int]*source),
		stopping:   make(map[int]chan struct{}),
		retryDelay: DefaultReadRetryDelay,
		probeCount: DefaultProbeCount,
		listTTL:    DefaultListCacheTTL,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.listCache = newDeviceCache(p.listTTL)
	return p
}

// source is one open device and its capture goroutine
type source struct {
	id  int
	dev Device

	refs int // guarded by Pool.mu

	mu      sync.Mutex
	handles map[*Handle]struct{}

	stop   chan struct{}
	done   chan struct{} // capture goroutine exited
	closed chan struct{} // device closed

	captured atomic.Uint64
	dropped  atomic.Uint64
}

// Handle is a session's borrowed view of a camera
type Handle struct {
	src      *source
	mu       sync.Mutex
	slot     *Frame
	dropped  uint64
	released atomic.Bool
}

// ID returns the camera id
func (h *Handle) ID() int { return h.src.id }

// Dropped returns how many frames this handle overwrote before reading
func (h *Handle) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Read returns the newest frame not yet read through this handle. It never
// blocks. The caller owns the frame and must Close it.
func (h *Handle) Read() (*Frame, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := h.slot
	h.slot = nil
	return f, f != nil
}

// put stores f, replacing and closing an unread frame. It reports whether a frame was dropped.
func (h *Handle) put(f *Frame) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := false
	if h.slot != nil {
		h.slot.Close()
		h.dropped++
		dropped = true
	}
	h.slot = f
	return dropped
}

func (h *Handle) drain() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.slot != nil {
		h.slot.Close()
		h.slot = nil
	}
}

// Acquire borrows camera id. The first holder opens the device and starts
// the capture goroutine; an open failure leaves the pool unchanged.
func (p *Pool) Acquire(ctx context.Context, id int) (*Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.awaitStoppedLocked(ctx, id); err != nil {
		return nil, err
	}
	if p.closed {
		return nil, ErrPoolClosed
	}

	src, ok := p.sources[id]
	if !ok {
		start := time.Now()
		dev, err := p.opener.Open(id)
		if err != nil {
			p.metrics.OpenFailed(id)
			return nil, errors.New(err).
				Component("camera").
				Category(errors.CategoryCamera).
				Context("camera_id", id).
				Context("operation", "open").
				Timing("open", time.Since(start)).
				Build()
		}

		src = &source{
			id:      id,
			dev:     dev,
			handles: make(map[*Handle]struct{}),
			stop:    make(chan struct{}),
			done:    make(chan struct{}),
			closed:  make(chan struct{}),
		}
		p.sources[id] = src
		go src.run(p.retryDelay, p.metrics)

		GetLogger().Info("camera started",
			logger.Int("camera_id", id),
			logger.Duration("open_time", time.Since(start)))
		p.metrics.SetActive(len(p.sources))
	}

	h := &Handle{src: src}
	src.refs++
	src.mu.Lock()
	src.handles[h] = struct{}{}
	src.mu.Unlock()

	p.metrics.SetConsumers(id, src.refs)
	return h, nil
}

// awaitStoppedLocked waits, with p.mu released, until a previous device for
// id has closed. It returns with p.mu held.
func (p *Pool) awaitStoppedLocked(ctx context.Context, id int) error {
	for {
		wait, ok := p.stopping[id]
		if !ok {
			return nil
		}
		select {
		case <-wait:
			delete(p.stopping, id)
			continue
		default:
		}

		p.mu.Unlock()
		select {
		case <-wait:
			p.mu.Lock()
		case <-ctx.Done():
			p.mu.Lock()
			return ctx.Err()
		}
	}
}

// Release returns a handle. The last release stops the capture goroutine,
// waits for it and closes the device. Releasing twice is a no-op. The wait
// happens outside the pool lock so a stalled device only blocks its own id.
func (p *Pool) Release(h *Handle) {
	if h == nil || !h.released.CompareAndSwap(false, true) {
		return
	}

	p.mu.Lock()

	src := h.src
	src.mu.Lock()
	delete(src.handles, h)
	src.mu.Unlock()
	h.drain()

	// the pool may have been closed underneath the handle
	if cur, ok := p.sources[src.id]; !ok || cur != src {
		p.mu.Unlock()
		return
	}

	src.refs--
	p.metrics.SetConsumers(src.id, src.refs)
	if src.refs > 0 {
		p.mu.Unlock()
		return
	}

	delete(p.sources, src.id)
	p.stopping[src.id] = src.closed
	p.metrics.SetActive(len(p.sources))
	p.mu.Unlock()

	src.shutdown()

	p.mu.Lock()
	if p.stopping[src.id] == src.closed {
		delete(p.stopping, src.id)
	}
	p.mu.Unlock()

	GetLogger().Info("camera stopped",
		logger.Int("camera_id", src.id),
		logger.Uint64("frames_captured", src.captured.Load()),
		logger.Uint64("frames_dropped", src.dropped.Load()))
}

// Stats returns a snapshot of every running camera ordered by id
func (p *Pool) Stats() []Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Stats, 0, len(p.sources))
	for _, src := range p.sources {
		out = append(out, Stats{
			ID:       src.id,
			Refs:     src.refs,
			Captured: src.captured.Load(),
			Dropped:  src.dropped.Load(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Close stops every camera and waits for devices still closing from earlier
// releases. Outstanding handles stay safe to Read and Release.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	sources := make([]*source, 0, len(p.sources))
	for id, src := range p.sources {
		sources = append(sources, src)
		delete(p.sources, id)
	}
	pending := make([]chan struct{}, 0, len(p.stopping))
	for _, wait := range p.stopping {
		pending = append(pending, wait)
	}
	p.metrics.SetActive(0)
	p.mu.Unlock()

	for _, src := range sources {
		src.shutdown()
		src.mu.Lock()
		for h := range src.handles {
			h.drain()
		}
		src.mu.Unlock()
	}
	for _, wait := range pending {
		<-wait
	}
}

// shutdown stops the loop, waits for it and closes the device
func (s *source) shutdown() {
	defer close(s.closed)
	close(s.stop)
	<-s.done
	if err := s.dev.Close(); err != nil {
		GetLogger().Warn("closing camera device failed",
			logger.Int("camera_id", s.id),
			logger.Error(err))
	}
}

func (s *source) run(retryDelay time.Duration, m *metrics.CameraMetrics) {
	defer close(s.done)

	var seq uint64
	for {
		select {
		case <-s.stop:
			return
		default:
		}

		mat := gocv.NewMat()
		if ok := s.dev.Read(&mat); !ok || mat.Empty() {
			_ = mat.Close()
			m.ReadFailed(s.id)
			select {
			case <-s.stop:
				return
			case <-time.After(retryDelay):
			}
			continue
		}

		seq++
		s.captured.Add(1)
		m.FrameCaptured(s.id)
		s.publish(mat, seq, time.Now(), m)
	}
}

// publish hands each holder its own copy of mat; the last holder takes mat itself
func (s *source) publish(mat gocv.Mat, seq uint64, at time.Time, m *metrics.CameraMetrics) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.handles) == 0 {
		_ = mat.Close()
		return
	}

	remaining := len(s.handles)
	for h := range s.handles {
		remaining--
		frameMat := mat
		if remaining > 0 {
			frameMat = mat.Clone()
		}
		f := &Frame{Mat: frameMat, CameraID: s.id, Seq: seq, CapturedAt: at}
		if h.put(f) {
			s.dropped.Add(1)
			m.FrameDropped(s.id)
		}
	}
}
