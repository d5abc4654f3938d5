// Package models holds the persisted record types and the store
// interfaces that abstract their storage.
package models

import (
	"context"
	"errors"
	"time"
)

// Errors related to run management.
var (
	ErrRunNotFound = errors.New("run not found")
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one execution attempt of a DAG. It is created when the run
// starts, mutated only by the driving loop, persisted once at terminal
// state, and immutable thereafter.
type Run struct {
	RunID          string     `json:"run_id"`
	DAGID          string     `json:"dag_id"`
	Status         RunStatus  `json:"status"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at"`
	TasksCompleted []string   `json:"tasks_completed"`
	TasksFailed    []string   `json:"tasks_failed"`
	TasksSkipped   []string   `json:"tasks_skipped"`
}

// Clone returns a deep copy of the run record.
func (r *Run) Clone() *Run {
	clone := *r
	clone.TasksCompleted = append([]string(nil), r.TasksCompleted...)
	clone.TasksFailed = append([]string(nil), r.TasksFailed...)
	clone.TasksSkipped = append([]string(nil), r.TasksSkipped...)
	if r.FinishedAt != nil {
		finished := *r.FinishedAt
		clone.FinishedAt = &finished
	}
	return &clone
}

// RunStore persists run records, one record per run id, overwritten
// wholesale at terminal state.
type RunStore interface {
	// Save writes the record for run.RunID, replacing any prior record.
	Save(ctx context.Context, run *Run) error
	// Find reads the persisted record for the given run id. It returns
	// ErrRunNotFound if no record exists.
	Find(ctx context.Context, runID string) (*Run, error)
}
