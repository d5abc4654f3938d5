// Package filerun persists run records as one JSON file per run id in
// a base directory. A record is overwritten wholesale at terminal state.
package filerun

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/flowrun-dev/flowrun/internal/fileutil"
	"github.com/flowrun-dev/flowrun/internal/models"
)

var _ models.RunStore = (*Store)(nil)

// Store is a file-backed RunStore.
type Store struct {
	baseDir string
	mu      sync.RWMutex
}

// New creates a store rooted at baseDir. The directory is created on
// the first write.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// Save writes the record for run.RunID, replacing any prior record.
func (s *Store) Save(ctx context.Context, run *models.Run) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("save canceled: %w", err)
	}

	path, err := s.recordPath(run.RunID)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal run %s: %w", run.RunID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fileutil.WriteFileAtomic(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write run record: %w", err)
	}
	return nil
}

// Find reads the persisted record for the given run id.
func (s *Store) Find(ctx context.Context, runID string) (*models.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("find canceled: %w", err)
	}

	path, err := s.recordPath(runID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	data, err := os.ReadFile(path) // nolint: gosec
	s.mu.RUnlock()
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", models.ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("failed to read run record %s: %w", runID, err)
	}

	var run models.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run record %s: %w", runID, err)
	}
	return &run, nil
}

// recordPath returns the file path for a run id, rejecting ids that
// would escape the base directory.
func (s *Store) recordPath(runID string) (string, error) {
	if runID == "" || strings.ContainsAny(runID, `/\`) || runID != filepath.Base(runID) {
		return "", fmt.Errorf("%w: %q", models.ErrRunNotFound, runID)
	}
	return filepath.Join(s.baseDir, runID+".json"), nil
}
