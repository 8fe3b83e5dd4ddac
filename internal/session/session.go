package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/omniface/omniface-go/internal/analytics"
	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/inference"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/modelcache"
)

// Mode selects what a session records
type Mode string

const (
	ModeAttendance Mode = "attendance"
	ModeExit       Mode = "exit"
	ModeNormal     Mode = "normal"
)

// ParseMode validates a client supplied mode
func ParseMode(v string) (Mode, error) {
	switch m := Mode(v); m {
	case ModeAttendance, ModeExit, ModeNormal:
		return m, nil
	default:
		return "", errors.Newf("unknown mode %q", v).
			Component("session").
			Category(errors.CategoryValidation).
			Context("mode", v).
			Build()
	}
}

// State is the lifecycle position of a session
type State int

const (
	StateCreated State = iota
	StateReady
	StateStreaming
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateReady:
		return "ready"
	case StateStreaming:
		return "streaming"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Websocket close codes sent when a stream ends abnormally
const (
	CloseBadRequest    = 4400
	CloseInvalidToken  = 4401
	CloseCameraFailure = 4003
	CloseModelMissing  = 4004
	CloseInternal      = 4500
)

// CloseCode maps a Start failure to the code the client receives
func CloseCode(err error) int {
	switch {
	case errors.IsNotFound(err):
		return CloseModelMissing
	case errors.IsCategory(err, errors.CategoryCamera):
		return CloseCameraFailure
	default:
		return CloseInternal
	}
}

// Session is one client's recognition stream
type Session struct {
	ID        string
	TenantID  uint
	CameraID  int
	Mode      Mode
	CreatedAt time.Time

	engine *Engine

	mu     sync.Mutex
	state  State
	handle *camera.Handle
	index  *modelcache.VectorIndex
	worker *inference.Worker

	window    *analytics.Window
	fps       *analytics.FPSMeter
	warnMu    sync.Mutex
	warnLimit map[string]*rate.Limiter // per warning category
	publishes sync.WaitGroup
	log       logger.Logger
}

func newSession(e *Engine, tenantID uint, cameraID int, mode Mode) *Session {
	id := uuid.NewString()
	return &Session{
		ID:        id,
		TenantID:  tenantID,
		CameraID:  cameraID,
		Mode:      mode,
		CreatedAt: e.now(),
		engine:    e,
		window:    analytics.NewWindow(e.cfg.WindowSize),
		warnLimit: make(map[string]*rate.Limiter),
		log: GetLogger().With(
			logger.String("session_id", id),
			logger.Uint64("tenant_id", uint64(tenantID)),
			logger.Int("camera_id", cameraID),
			logger.String("mode", string(mode))),
	}
}

// Warning categories, each rate limited on its own
const (
	warnFrame       = "frame"
	warnPerson      = "person"
	warnDepartment  = "department"
	warnPersonState = "person_state"
	warnCrop        = "crop"
)

// warnEvery is how often one warning category may be logged
const warnEvery = 5 * time.Second

// allowWarn reports whether a warning of the category may be logged now
func (s *Session) allowWarn(category string) bool {
	s.warnMu.Lock()
	defer s.warnMu.Unlock()
	lim, ok := s.warnLimit[category]
	if !ok {
		lim = rate.NewLimiter(rate.Every(warnEvery), 1)
		s.warnLimit[category] = lim
	}
	return lim.Allow()
}

// State returns the current lifecycle state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) stateError(op string, state State) error {
	return errors.Newf("cannot %s a session in state %s", op, state).
		Component("session").
		Category(errors.CategoryState).
		Context("session_id", s.ID).
		Context("state", state.String()).
		Build()
}

// Start acquires the camera, the tenant index and the tenant worker. Any
// failure releases what was already acquired and closes the session; the
// error is terminal and CloseCode maps it for the client.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateCreated {
		state := s.state
		s.mu.Unlock()
		return s.stateError("start", state)
	}
	s.mu.Unlock()

	deps := s.engine.deps
	start := time.Now()

	handle, err := deps.Cameras.Acquire(ctx, s.CameraID)
	if err != nil {
		s.fail("camera", err)
		return err
	}

	index, err := deps.Models.Load(s.TenantID)
	if err != nil {
		deps.Cameras.Release(handle)
		s.fail("model", err)
		return err
	}

	worker := deps.Workers.Acquire(s.TenantID)

	s.mu.Lock()
	if s.state != StateCreated {
		// closed concurrently while acquiring
		s.mu.Unlock()
		deps.Workers.Release(worker)
		deps.Cameras.Release(handle)
		return s.stateError("start", StateClosed)
	}
	s.handle, s.index, s.worker = handle, index, worker
	s.state = StateReady
	s.mu.Unlock()

	// every mode reports who is already registered today
	if deps.Ledger != nil {
		if err := deps.Ledger.Seed(ctx, s.TenantID, s.engine.now()); err != nil {
			s.log.Warn("seeding attendance ledger failed", logger.Error(err))
		}
	}

	s.engine.active.Add(1)
	deps.Metrics.SessionOpened()
	s.log.Info("session started",
		logger.Int("index_rows", index.Len()),
		logger.Duration("start_time", time.Since(start)))
	return nil
}

func (s *Session) fail(stage string, err error) {
	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()
	s.log.Warn("session start failed",
		logger.String("stage", stage),
		logger.Int("close_code", CloseCode(err)),
		logger.Error(err))
}

// Close releases the camera and worker and moves to Closed. It is idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	wasStarted := s.state != StateCreated
	s.state = StateClosed
	handle, worker := s.handle, s.worker
	s.handle, s.worker = nil, nil
	s.mu.Unlock()

	deps := s.engine.deps
	if handle != nil {
		deps.Cameras.Release(handle)
	}
	if worker != nil {
		deps.Workers.Release(worker)
	}
	if s.engine.cfg.EvictOnClose {
		deps.Models.Invalidate(s.TenantID)
	}
	s.publishes.Wait()

	if wasStarted {
		s.engine.active.Add(-1)
		deps.Metrics.SessionClosed()
	}
	s.log.Info("session closed", logger.Duration("lifetime", s.engine.now().Sub(s.CreatedAt)))
}

// refreshWorker swaps a stopped worker for the tenant's current one and
// reloads the index, since a reset worker means the artifacts were reloaded.
func (s *Session) refreshWorker(stale *inference.Worker) error {
	deps := s.engine.deps

	index, err := deps.Models.Load(s.TenantID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return s.stateError("refresh", StateClosed)
	}
	if s.worker != stale {
		s.index = index
		return nil
	}
	deps.Workers.Release(stale)
	s.worker = deps.Workers.Acquire(s.TenantID)
	s.index = index
	s.log.Info("inference worker refreshed")
	return nil
}

func (s *Session) current() (*camera.Handle, *inference.Worker, *modelcache.VectorIndex) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handle, s.worker, s.index
}
