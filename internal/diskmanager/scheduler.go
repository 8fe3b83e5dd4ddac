package diskmanager

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/omniface/omniface-go/internal/conf"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

// DefaultCleanupAt is the daily run time used when none is configured
const DefaultCleanupAt = "03:00"

const cleanupTag = "captures-retention"

// Retention runs AgeBasedCleanup on the captures root once a day
type Retention struct {
	root      string
	days      int
	at        string
	scheduler *gocron.Scheduler
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	last CleanupResult
}

// NewRetention builds the daily job from the captures settings. The run time
// is read in the attendance timezone.
func NewRetention(settings *conf.Settings) (*Retention, error) {
	at := settings.Captures.CleanupAt
	if at == "" {
		at = DefaultCleanupAt
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &Retention{
		root:   conf.ResolvePath(settings.Captures.Root),
		days:   settings.Captures.RetentionDays,
		at:     at,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}

	s := gocron.NewScheduler(settings.Location())
	s.SingletonModeAll()
	if _, err := s.Every(1).Day().At(at).Tag(cleanupTag).Do(r.run); err != nil {
		cancel()
		return nil, errors.New(err).
			Component("diskmanager").
			Category(errors.CategoryConfiguration).
			Context("setting", "captures.cleanup_at").
			Context("value", at).
			Build()
	}
	r.scheduler = s
	return r, nil
}

// Start runs the scheduler in the background. With retention disabled the
// job still fires but deletes nothing.
func (r *Retention) Start() {
	r.scheduler.StartAsync()

	fields := []logger.Field{
		logger.String("root", r.root),
		logger.Int("retention_days", r.days),
		logger.String("at", r.at),
	}
	if _, next := r.scheduler.NextRun(); !next.IsZero() {
		fields = append(fields, logger.Time("next_run", next))
	}
	GetLogger().Info("captures retention scheduled", fields...)
}

// Stop cancels a running cleanup and stops the scheduler
func (r *Retention) Stop() {
	r.cancel()
	r.scheduler.Stop()
}

// RunNow performs one cleanup immediately
func (r *Retention) RunNow(ctx context.Context) (CleanupResult, error) {
	result, err := AgeBasedCleanup(ctx, r.root, r.days, r.now())
	if err != nil {
		return result, err
	}

	r.mu.Lock()
	r.last = result
	r.mu.Unlock()

	if usage, uerr := GetDetailedDiskUsage(r.root); uerr == nil {
		GetLogger().Info("captures volume usage",
			logger.Float64("used_percent", usage.UsedPercent()),
			logger.Uint64("total_bytes", usage.TotalBytes))
	}
	return result, nil
}

// Last returns the result of the most recent successful run
func (r *Retention) Last() CleanupResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

func (r *Retention) run() {
	if _, err := r.RunNow(r.ctx); err != nil {
		GetLogger().Error("captures cleanup failed",
			logger.String("root", r.root),
			logger.Error(err))
	}
}
