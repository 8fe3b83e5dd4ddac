// Package attendance holds the check-in rules: status classification against
// department cutoffs and the per-tenant daily dedup ledger.
package attendance

import (
	"fmt"
	"time"

	"github.com/omniface/omniface-go/internal/datastore"
	"github.com/omniface/omniface-go/internal/errors"
	"github.com/omniface/omniface-go/internal/logger"
)

// Status is the classification of a check-in
type Status string

const (
	StatusEarly  Status = datastore.StatusEarly
	StatusLate   Status = datastore.StatusLate
	StatusAbsent Status = datastore.StatusAbsent
)

// ClockTime is a wall clock reading as seconds since local midnight
type ClockTime int

// Clock builds a ClockTime from its parts
func Clock(hour, minute, second int) ClockTime {
	return ClockTime(hour*3600 + minute*60 + second)
}

// ClockOf reads the wall clock of t in t's own location
func ClockOf(t time.Time) ClockTime {
	return Clock(t.Hour(), t.Minute(), t.Second())
}

// ParseClock accepts HH:MM or HH:MM:SS
func ParseClock(v string) (ClockTime, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if t, err := time.Parse(layout, v); err == nil {
			return ClockOf(t), nil
		}
	}
	return 0, errors.Newf("invalid clock time %q, expected HH:MM or HH:MM:SS", v).
		Component("attendance").
		Category(errors.CategoryValidation).
		Build()
}

func (c ClockTime) String() string {
	s := int(c)
	return fmt.Sprintf("%02d:%02d:%02d", s/3600, (s%3600)/60, s%60)
}

// Thresholds are the inclusive upper bounds of the early and late windows
type Thresholds struct {
	Early ClockTime
	Late  ClockTime
}

// DefaultThresholds applies when a department carries no cutoffs
var DefaultThresholds = Thresholds{
	Early: Clock(8, 10, 0),
	Late:  Clock(14, 30, 0),
}

// Resolve picks the department cutoffs, falling back per value to DefaultThresholds
func Resolve(dept *datastore.Department) Thresholds {
	return ResolveWith(dept, DefaultThresholds)
}

// ResolveWith is Resolve with a configured fallback. Unset or unparsable
// department values use the fallback.
func ResolveWith(dept *datastore.Department, fallback Thresholds) Thresholds {
	th := fallback
	if dept == nil {
		return th
	}
	if dept.EarlyTime != "" {
		if v, err := ParseClock(dept.EarlyTime); err == nil {
			th.Early = v
		} else {
			GetLogger().Warn("ignoring department early time",
				logger.Uint64("department_id", uint64(dept.ID)), logger.Error(err))
		}
	}
	if dept.LateTime != "" {
		if v, err := ParseClock(dept.LateTime); err == nil {
			th.Late = v
		} else {
			GetLogger().Warn("ignoring department late time",
				logger.Uint64("department_id", uint64(dept.ID)), logger.Error(err))
		}
	}
	return th
}

// ThresholdsFromStrings parses configured cutoffs
func ThresholdsFromStrings(early, late string) (Thresholds, error) {
	e, err := ParseClock(early)
	if err != nil {
		return Thresholds{}, err
	}
	l, err := ParseClock(late)
	if err != nil {
		return Thresholds{}, err
	}
	return Thresholds{Early: e, Late: l}, nil
}

// Classify compares the wall clock of now against th at second granularity.
// now must already be in the attendance location.
func Classify(now time.Time, th Thresholds) Status {
	c := ClockOf(now)
	switch {
	case c <= th.Early:
		return StatusEarly
	case c <= th.Late:
		return StatusLate
	default:
		return StatusAbsent
	}
}
