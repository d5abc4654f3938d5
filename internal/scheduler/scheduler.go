package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/flowrun-dev/flowrun/internal/logger"
)

// Store persists the full set of schedules as one snapshot, rewritten
// wholesale on each mutation.
type Store interface {
	// Save rewrites the snapshot with the given schedules.
	Save(ctx context.Context, schedules []*Schedule) error
	// Load reads the snapshot. A missing snapshot yields no schedules
	// and no error.
	Load(ctx context.Context) ([]*Schedule, error)
}

// Scheduler is the registry of schedules, keyed by dag id (one schedule
// per DAG). Every mutation is followed by a full snapshot rewrite.
type Scheduler struct {
	mu        sync.Mutex
	store     Store
	schedules map[string]*Schedule
	order     []string
}

// New creates a scheduler and loads any previously persisted snapshot.
func New(ctx context.Context, store Store) (*Scheduler, error) {
	sc := &Scheduler{
		store:     store,
		schedules: make(map[string]*Schedule),
	}

	loaded, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load schedules: %w", err)
	}
	for _, schedule := range loaded {
		// A hand-edited snapshot can carry anything; reject bad entries
		// here instead of failing later inside MarkRun.
		if schedule.DAGID == "" {
			return nil, fmt.Errorf("%w in schedule snapshot", ErrDAGIDRequired)
		}
		if !schedule.Kind.valid() {
			return nil, fmt.Errorf("schedule snapshot for %s: %w: %q",
				schedule.DAGID, ErrInvalidScheduleKind, schedule.Kind)
		}
		sc.schedules[schedule.DAGID] = schedule
		sc.order = append(sc.order, schedule.DAGID)
	}
	if len(loaded) > 0 {
		logger.Info(ctx, "Loaded schedules", "count", len(loaded))
	}

	return sc, nil
}

// AddSchedule inserts the schedule, replacing any prior schedule for
// the same DAG, computes its next run and persists the snapshot.
func (sc *Scheduler) AddSchedule(ctx context.Context, schedule *Schedule) error {
	if schedule.DAGID == "" {
		return ErrDAGIDRequired
	}
	if !schedule.Kind.valid() {
		return fmt.Errorf("%w: %q", ErrInvalidScheduleKind, schedule.Kind)
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, err := schedule.CalculateNextRun(now()); err != nil {
		return err
	}
	if _, ok := sc.schedules[schedule.DAGID]; !ok {
		sc.order = append(sc.order, schedule.DAGID)
	}
	sc.schedules[schedule.DAGID] = schedule

	logger.Info(ctx, "Schedule added", "dag", schedule.DAGID, "kind", schedule.Kind)
	return sc.persist(ctx)
}

// RemoveSchedule deletes the schedule for the DAG if present and
// persists the snapshot. Removing an unknown DAG is a no-op.
func (sc *Scheduler) RemoveSchedule(ctx context.Context, dagID string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if _, ok := sc.schedules[dagID]; !ok {
		return nil
	}
	delete(sc.schedules, dagID)
	for i, id := range sc.order {
		if id == dagID {
			sc.order = append(sc.order[:i], sc.order[i+1:]...)
			break
		}
	}

	logger.Info(ctx, "Schedule removed", "dag", dagID)
	return sc.persist(ctx)
}

// EnableSchedule enables the schedule for the DAG and persists.
func (sc *Scheduler) EnableSchedule(ctx context.Context, dagID string) error {
	return sc.setEnabled(ctx, dagID, true)
}

// DisableSchedule disables the schedule for the DAG and persists.
func (sc *Scheduler) DisableSchedule(ctx context.Context, dagID string) error {
	return sc.setEnabled(ctx, dagID, false)
}

func (sc *Scheduler) setEnabled(ctx context.Context, dagID string, enabled bool) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	schedule, ok := sc.schedules[dagID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, dagID)
	}
	schedule.Enabled = enabled

	logger.Info(ctx, "Schedule updated", "dag", dagID, "enabled", enabled)
	return sc.persist(ctx)
}

// GetPendingRuns returns the dag ids whose schedules are currently due,
// in registry insertion order. It is a pure read: callers must call
// MarkRun after dispatching, or the same DAG is reported again on the
// next poll.
func (sc *Scheduler) GetPendingRuns() []string {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	var pending []string
	current := now()
	for _, dagID := range sc.order {
		if sc.schedules[dagID].ShouldRun(current) {
			pending = append(pending, dagID)
		}
	}
	return pending
}

// MarkRun records that the DAG was dispatched now, recomputes its next
// run and persists the snapshot.
func (sc *Scheduler) MarkRun(ctx context.Context, dagID string) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	schedule, ok := sc.schedules[dagID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScheduleNotFound, dagID)
	}
	current := now()
	schedule.LastRun = &current
	if _, err := schedule.CalculateNextRun(current); err != nil {
		return err
	}

	return sc.persist(ctx)
}

// GetSchedule returns a copy of the schedule for the DAG.
func (sc *Scheduler) GetSchedule(dagID string) (*Schedule, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	schedule, ok := sc.schedules[dagID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScheduleNotFound, dagID)
	}
	return schedule.clone(), nil
}

// ListSchedules returns copies of all schedules in insertion order.
func (sc *Scheduler) ListSchedules() []*Schedule {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	schedules := make([]*Schedule, 0, len(sc.order))
	for _, dagID := range sc.order {
		schedules = append(schedules, sc.schedules[dagID].clone())
	}
	return schedules
}

// persist rewrites the snapshot; the caller holds the mutex. A
// persistence failure propagates to the mutating caller.
func (sc *Scheduler) persist(ctx context.Context) error {
	schedules := make([]*Schedule, 0, len(sc.order))
	for _, dagID := range sc.order {
		schedules = append(schedules, sc.schedules[dagID])
	}
	if err := sc.store.Save(ctx, schedules); err != nil {
		return fmt.Errorf("failed to persist schedules: %w", err)
	}
	return nil
}

var (
	// fixedTime is the fixed time used for testing.
	fixedTime     time.Time
	fixedTimeLock sync.RWMutex
)

// setFixedTime sets the fixed time for testing.
func setFixedTime(t time.Time) {
	fixedTimeLock.Lock()
	defer fixedTimeLock.Unlock()
	fixedTime = t
}

// now returns the current time, or the fixed test time if set.
func now() time.Time {
	fixedTimeLock.RLock()
	defer fixedTimeLock.RUnlock()

	if fixedTime.IsZero() {
		return time.Now()
	}
	return fixedTime
}
