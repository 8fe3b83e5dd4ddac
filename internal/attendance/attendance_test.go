package attendance

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omniface/omniface-go/internal/datastore"
	"github.com/omniface/omniface-go/internal/errors"
)

func at(hour, minute, second int) time.Time {
	return time.Date(2026, 3, 2, hour, minute, second, 0, time.UTC)
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		now  time.Time
		want Status
	}{
		{"before early cutoff", at(8, 0, 0), StatusEarly},
		{"exactly early cutoff", at(8, 10, 0), StatusEarly},
		{"one second past early", at(8, 10, 1), StatusLate},
		{"mid morning", at(10, 0, 0), StatusLate},
		{"exactly late cutoff", at(14, 30, 0), StatusLate},
		{"afternoon", at(15, 0, 0), StatusAbsent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, Classify(tt.now, DefaultThresholds))
		})
	}
}

func TestClassifyUsesWallClockOfLocation(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("UTC-5", -5*3600)
	// 13:00 UTC is 08:00 at UTC-5
	now := time.Date(2026, 3, 2, 13, 0, 0, 0, time.UTC).In(loc)
	assert.Equal(t, StatusEarly, Classify(now, DefaultThresholds))
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	c, err := ParseClock("08:10")
	require.NoError(t, err)
	assert.Equal(t, Clock(8, 10, 0), c)
	assert.Equal(t, "08:10:00", c.String())

	c, err = ParseClock("14:30:15")
	require.NoError(t, err)
	assert.Equal(t, Clock(14, 30, 15), c)

	_, err = ParseClock("2:30pm")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))
}

func TestResolve(t *testing.T) {
	t.Parallel()

	assert.Equal(t, DefaultThresholds, Resolve(nil))
	assert.Equal(t, DefaultThresholds, Resolve(&datastore.Department{}))

	got := Resolve(&datastore.Department{EarlyTime: "07:45"})
	assert.Equal(t, Clock(7, 45, 0), got.Early)
	assert.Equal(t, DefaultThresholds.Late, got.Late, "unset late keeps default")

	got = Resolve(&datastore.Department{EarlyTime: "bogus", LateTime: "12:00"})
	assert.Equal(t, DefaultThresholds.Early, got.Early)
	assert.Equal(t, Clock(12, 0, 0), got.Late)

	fallback := Thresholds{Early: Clock(9, 0, 0), Late: Clock(17, 0, 0)}
	assert.Equal(t, fallback, ResolveWith(nil, fallback))
}

func TestLedgerMarksOncePerDay(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil)
	morning := at(8, 0, 0)

	assert.True(t, l.MarkIfFirst(1, "ana", morning))
	assert.False(t, l.MarkIfFirst(1, "ana", morning.Add(time.Hour)))
	assert.True(t, l.MarkIfFirst(2, "ana", morning), "tenants are independent")
	assert.True(t, l.Seen(1, "ana", morning))
	assert.False(t, l.Seen(1, "luis", morning))

	tomorrow := morning.AddDate(0, 0, 1)
	assert.False(t, l.Seen(1, "ana", tomorrow))
	assert.True(t, l.MarkIfFirst(1, "ana", tomorrow), "day change resets the tenant set")
}

func TestLedgerConcurrentMark(t *testing.T) {
	t.Parallel()

	l := NewLedger(nil)
	now := at(9, 0, 0)
	var firsts atomic.Int32
	var wg sync.WaitGroup

	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if l.MarkIfFirst(1, "ana", now) {
				firsts.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), firsts.Load())
}

type fakeSeeder struct {
	calls atomic.Int32
	names []string
	err   error
}

func (f *fakeSeeder) AttendedToday(_ context.Context, _ uint, _ time.Time) ([]string, error) {
	f.calls.Add(1)
	return f.names, f.err
}

func TestLedgerSeed(t *testing.T) {
	t.Parallel()

	seeder := &fakeSeeder{names: []string{"ana"}}
	l := NewLedger(seeder)
	now := at(10, 0, 0)

	require.NoError(t, l.Seed(context.Background(), 1, now))
	require.NoError(t, l.Seed(context.Background(), 1, now))
	assert.Equal(t, int32(1), seeder.calls.Load(), "seeded once per day")

	assert.False(t, l.MarkIfFirst(1, "ana", now), "warm start prevents a duplicate")
	assert.True(t, l.MarkIfFirst(1, "luis", now))

	require.NoError(t, l.Seed(context.Background(), 1, now.AddDate(0, 0, 1)))
	assert.Equal(t, int32(2), seeder.calls.Load())
}

func TestLedgerSeedError(t *testing.T) {
	t.Parallel()

	seeder := &fakeSeeder{err: fmt.Errorf("db down")}
	l := NewLedger(seeder)
	now := at(10, 0, 0)

	require.Error(t, l.Seed(context.Background(), 1, now))
	assert.True(t, l.MarkIfFirst(1, "ana", now))

	seeder.err = nil
	require.NoError(t, l.Seed(context.Background(), 1, now), "failed seed is retried")
	assert.Equal(t, int32(2), seeder.calls.Load())
}
