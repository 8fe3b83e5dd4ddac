package attendance

import (
	"context"
	"sync"
	"time"

	"github.com/omniface/omniface-go/internal/logger"
)

const dayLayout = "2006-01-02"

// Seeder reports who already checked in on a day. datastore.Interface satisfies it.
type Seeder interface {
	AttendedToday(ctx context.Context, tenantID uint, day time.Time) ([]string, error)
}

// tenantDay is the set of person keys recorded for one tenant on one day
type tenantDay struct {
	day    string
	seen   map[string]struct{}
	seeded bool
}

// Ledger deduplicates attendance per tenant and calendar day. It is shared by
// every session of the process. The day rolls over inline on first use after
// midnight in the location of the time passed in.
type Ledger struct {
	mu      sync.Mutex
	tenants map[uint]*tenantDay
	seeder  Seeder
}

// NewLedger creates an empty ledger. seeder may be nil.
func NewLedger(seeder Seeder) *Ledger {
	return &Ledger{
		tenants: make(map[uint]*tenantDay),
		seeder:  seeder,
	}
}

// current returns the tenant set for now's day, resetting it on day change.
// Caller holds l.mu.
func (l *Ledger) current(tenantID uint, now time.Time) *tenantDay {
	day := now.Format(dayLayout)
	td, ok := l.tenants[tenantID]
	if !ok || td.day != day {
		td = &tenantDay{day: day, seen: make(map[string]struct{})}
		l.tenants[tenantID] = td
	}
	return td
}

// MarkIfFirst records key for today and reports whether it was the first time
func (l *Ledger) MarkIfFirst(tenantID uint, key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	td := l.current(tenantID, now)
	if _, dup := td.seen[key]; dup {
		return false
	}
	td.seen[key] = struct{}{}
	return true
}

// Seen reports whether key was recorded today
func (l *Ledger) Seen(tenantID uint, key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	td, ok := l.tenants[tenantID]
	if !ok || td.day != now.Format(dayLayout) {
		return false
	}
	_, seen := td.seen[key]
	return seen
}

// Seed loads today's existing check-ins for a tenant once per day, so a
// restart during the day does not write duplicates.
func (l *Ledger) Seed(ctx context.Context, tenantID uint, now time.Time) error {
	if l.seeder == nil {
		return nil
	}

	l.mu.Lock()
	seeded := l.current(tenantID, now).seeded
	l.mu.Unlock()
	if seeded {
		return nil
	}

	names, err := l.seeder.AttendedToday(ctx, tenantID, now)
	if err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	td := l.current(tenantID, now)
	for _, n := range names {
		td.seen[n] = struct{}{}
	}
	td.seeded = true

	GetLogger().Debug("attendance ledger seeded",
		logger.Uint64("tenant_id", uint64(tenantID)),
		logger.String("day", td.day),
		logger.Int("count", len(names)))
	return nil
}
