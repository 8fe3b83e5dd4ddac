// Package session drives one recognition stream: it borrows a camera, runs
// every frame through the tenant's inference worker, applies the attendance
// rules and hands annotated frames to a transport sink.
package session

import (
	"sync/atomic"
	"time"

	"github.com/omniface/omniface-go/internal/attendance"
	"github.com/omniface/omniface-go/internal/camera"
	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/datastore"
	"github.com/omniface/omniface-go/internal/inference"
	"github.com/omniface/omniface-go/internal/logger"
	"github.com/omniface/omniface-go/internal/modelcache"
	"github.com/omniface/omniface-go/internal/mqtt"
	"github.com/omniface/omniface-go/internal/observability/metrics"
	"github.com/omniface/omniface-go/internal/vision"
)

const (
	DefaultPollInterval    = 10 * time.Millisecond
	DefaultErrorCloseDelay = 2 * time.Second
)

// Deps are the shared components every session borrows from.
// Store, Directory and Events may be nil.
type Deps struct {
	Cameras   *camera.Pool
	Models    *modelcache.Cache
	Workers   *inference.Registry
	Ledger    *attendance.Ledger
	Store     datastore.Interface
	Directory *datastore.Directory
	Events    *mqtt.Publisher
	Metrics   *metrics.RecognitionMetrics
}

// Config tunes the frame loop and the recording rules
type Config struct {
	PollInterval time.Duration
	JPEGQuality  int
	WindowSize   int
	FPSSamples   int
	EvictOnClose bool
	CapturesRoot string
	Fallback     attendance.Thresholds
	Location     *time.Location
	Gate         vision.QualityGate

	// Now is the clock; nil means time.Now
	Now func() time.Time
}

// ConfigFromSettings maps the stream, analytics, quality and attendance settings
func ConfigFromSettings(s *conf.Settings) Config {
	fallback, err := attendance.ThresholdsFromStrings(s.Attendance.Early, s.Attendance.Late)
	if err != nil {
		GetLogger().Warn("invalid attendance cutoffs, using defaults", logger.Error(err))
		fallback = attendance.DefaultThresholds
	}
	return Config{
		PollInterval: s.Stream.PollInterval,
		JPEGQuality:  s.Stream.JPEGQuality,
		WindowSize:   s.Analytics.WindowSize,
		FPSSamples:   s.Analytics.FPSSamples,
		EvictOnClose: s.Recognition.EvictOnClose,
		CapturesRoot: conf.ResolvePath(s.Captures.Root),
		Fallback:     fallback,
		Location:     s.Location(),
		Gate:         vision.NewQualityGate(s.Quality.MinSize, s.Quality.MinSharpness, s.Quality.MinBrightness),
	}
}

// Engine creates sessions over a shared set of components
type Engine struct {
	deps   Deps
	cfg    Config
	active atomic.Int64
}

// NewEngine fills unset config values with defaults
func NewEngine(deps Deps, cfg Config) *Engine {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = vision.DefaultJPEGQuality
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Fallback == (attendance.Thresholds{}) {
		cfg.Fallback = attendance.DefaultThresholds
	}
	if cfg.Gate == (vision.QualityGate{}) {
		cfg.Gate = vision.NewQualityGate(vision.DefaultMinSize, vision.DefaultMinSharpness, vision.DefaultMinBrightness)
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Engine{deps: deps, cfg: cfg}
}

// NewSession creates a session in the Created state
func (e *Engine) NewSession(tenantID uint, cameraID int, mode Mode) *Session {
	return newSession(e, tenantID, cameraID, mode)
}

// Reload makes the tenant's next sessions and frames use fresh artifacts:
// the index is evicted, the worker replaced and cached lookups dropped.
func (e *Engine) Reload(tenantID uint) {
	e.deps.Models.Invalidate(tenantID)
	e.deps.Workers.Reset(tenantID)
	if e.deps.Directory != nil {
		e.deps.Directory.Flush()
	}
	GetLogger().Info("tenant model reloaded", logger.Uint64("tenant_id", uint64(tenantID)))
}

// ActiveSessions returns the number of started, unclosed sessions
func (e *Engine) ActiveSessions() int {
	return int(e.active.Load())
}

func (e *Engine) now() time.Time {
	return e.cfg.Now().In(e.cfg.Location)
}
