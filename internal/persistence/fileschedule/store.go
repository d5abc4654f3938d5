// Package fileschedule persists the full schedule set as one keyed
// JSON snapshot file, rewritten wholesale on each mutation. An advisory
// file lock guards the rewrite against concurrent writers.
package fileschedule

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/gofrs/flock"

	"github.com/flowrun-dev/flowrun/internal/fileutil"
	"github.com/flowrun-dev/flowrun/internal/scheduler"
)

var _ scheduler.Store = (*Store)(nil)

// Store is a file-backed scheduler.Store.
type Store struct {
	path string
	mu   sync.Mutex
	lock *flock.Flock
}

// New creates a store persisting to the given snapshot file path.
func New(path string) *Store {
	return &Store{
		path: path,
		lock: flock.New(path + ".lock"),
	}
}

// Save rewrites the snapshot with the given schedules, keyed by dag id.
func (s *Store) Save(ctx context.Context, schedules []*scheduler.Schedule) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save canceled: %w", err)
	}

	snapshot := make(map[string]*scheduler.Schedule, len(schedules))
	for _, schedule := range schedules {
		snapshot[schedule.DAGID] = schedule
	}
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schedules: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock %s: %w", s.lock.Path(), err)
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	if err := fileutil.WriteFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write schedule snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing snapshot yields no schedules.
func (s *Store) Load(ctx context.Context) ([]*scheduler.Schedule, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("load canceled: %w", err)
	}

	s.mu.Lock()
	data, err := os.ReadFile(s.path) // nolint: gosec
	s.mu.Unlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read schedule snapshot: %w", err)
	}

	var snapshot map[string]*scheduler.Schedule
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule snapshot: %w", err)
	}

	schedules := make([]*scheduler.Schedule, 0, len(snapshot))
	for _, schedule := range snapshot {
		schedules = append(schedules, schedule)
	}
	sort.Slice(schedules, func(i, j int) bool {
		return schedules[i].DAGID < schedules[j].DAGID
	})
	return schedules, nil
}
