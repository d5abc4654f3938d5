// Package scheduler implements per-DAG recurring-execution schedules
// and the registry that persists them and reports due DAGs.
package scheduler

import (
	"errors"
	"fmt"
	"time"
)

// Errors returned by schedule operations.
var (
	ErrScheduleNotFound    = errors.New("schedule not found")
	ErrDAGIDRequired       = errors.New("dag_id is required")
	ErrInvalidScheduleKind = errors.New("invalid schedule kind")
	ErrIntervalRequired    = errors.New("interval is required")
)

// Kind is the recurrence policy of a schedule.
type Kind string

const (
	KindDaily    Kind = "daily"
	KindHourly   Kind = "hourly"
	KindInterval Kind = "interval"
	KindCustom   Kind = "custom"
)

func (k Kind) valid() bool {
	switch k {
	case KindDaily, KindHourly, KindInterval, KindCustom:
		return true
	default:
		return false
	}
}

// Schedule is the recurring-execution policy for one DAG. It is owned
// and mutated only by the Scheduler.
type Schedule struct {
	DAGID string `json:"dag_id"`
	Kind  Kind   `json:"schedule_type"`
	// IntervalSeconds is meaningful only for the interval and custom kinds.
	IntervalSeconds int        `json:"interval,omitempty"`
	Enabled         bool       `json:"enabled"`
	LastRun         *time.Time `json:"last_run"`
	NextRun         *time.Time `json:"next_run"`
}

// NewSchedule creates a schedule for the given DAG. The kind must be
// one of daily, hourly, interval or custom; the interval and custom
// kinds require a positive interval in seconds. Invalid configurations
// are rejected here, before any registry mutation.
func NewSchedule(dagID string, kind Kind, intervalSeconds int) (*Schedule, error) {
	if dagID == "" {
		return nil, ErrDAGIDRequired
	}
	if !kind.valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScheduleKind, kind)
	}
	if (kind == KindInterval || kind == KindCustom) && intervalSeconds <= 0 {
		return nil, fmt.Errorf("%w for kind %q", ErrIntervalRequired, kind)
	}
	return &Schedule{
		DAGID:           dagID,
		Kind:            kind,
		IntervalSeconds: intervalSeconds,
		Enabled:         true,
	}, nil
}

// CalculateNextRun recomputes NextRun as a pure function of now and the
// schedule kind and returns it.
func (s *Schedule) CalculateNextRun(now time.Time) (time.Time, error) {
	var next time.Time
	switch s.Kind {
	case KindDaily:
		next = now.Add(24 * time.Hour)
	case KindHourly:
		next = now.Add(time.Hour)
	case KindInterval, KindCustom:
		if s.IntervalSeconds <= 0 {
			return time.Time{}, fmt.Errorf("%w for kind %q", ErrIntervalRequired, s.Kind)
		}
		next = now.Add(time.Duration(s.IntervalSeconds) * time.Second)
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidScheduleKind, s.Kind)
	}
	s.NextRun = &next
	return next, nil
}

// ShouldRun reports whether the DAG is due: false when disabled, true
// when never scheduled, otherwise true iff now has reached NextRun.
func (s *Schedule) ShouldRun(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.NextRun == nil {
		return true
	}
	return !now.Before(*s.NextRun)
}

// clone returns a copy of the schedule safe to hand to callers.
func (s *Schedule) clone() *Schedule {
	clone := *s
	if s.LastRun != nil {
		last := *s.LastRun
		clone.LastRun = &last
	}
	if s.NextRun != nil {
		next := *s.NextRun
		clone.NextRun = &next
	}
	return &clone
}
