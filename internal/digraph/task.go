// Package digraph implements the task graph model: tasks, dependency
// edges, topological ordering and ready-set computation.
package digraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Status represents the lifecycle state of a task.
type Status int

const (
	StatusPending Status = iota
	StatusRunning
	StatusSuccess
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

var (
	// ErrUpstreamFailed marks a task skipped because a dependency failed
	// or was itself skipped.
	ErrUpstreamFailed = errors.New("upstream failed")

	// ErrTaskNotRunnable is returned when Execute is called on a task
	// that is not in a runnable state.
	ErrTaskNotRunnable = errors.New("task is not in a runnable state")
)

// Executable is the unit of work bound to a task. It receives the task's
// parameter mapping and returns a result or an error.
type Executable func(ctx context.Context, params map[string]any) (any, error)

// Task is one executable unit within a DAG.
type Task struct {
	ID         string
	Executable Executable
	Params     map[string]any
	DependsOn  []string

	mu         sync.Mutex
	status     Status
	result     any
	err        error
	startedAt  time.Time
	finishedAt time.Time
	attempts   int
}

// TaskOption configures a Task at construction.
type TaskOption func(*Task)

// WithParams sets the parameter mapping passed to the executable.
func WithParams(params map[string]any) TaskOption {
	return func(t *Task) { t.Params = params }
}

// WithDependsOn sets the ordered list of dependency task ids.
func WithDependsOn(deps ...string) TaskOption {
	return func(t *Task) { t.DependsOn = deps }
}

// NewTask creates a new task with the given id and executable.
func NewTask(id string, executable Executable, opts ...TaskOption) *Task {
	task := &Task{
		ID:         id,
		Executable: executable,
		status:     StatusPending,
	}
	for _, opt := range opts {
		opt(task)
	}
	if task.Params == nil {
		task.Params = map[string]any{}
	}
	return task
}

// Execute runs the task's executable with its parameter mapping.
// It transitions a pending or failed task to running, increments the
// attempt counter exactly once, and records start and end timestamps on
// every exit path. A failure is both recorded on the task and returned
// to the caller.
func (t *Task) Execute(ctx context.Context) (any, error) {
	t.mu.Lock()
	if t.status != StatusPending && t.status != StatusFailed {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is %s", ErrTaskNotRunnable, t.ID, t.status)
	}
	t.status = StatusRunning
	t.startedAt = time.Now()
	t.attempts++
	executable := t.Executable
	params := t.Params
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.finishedAt = time.Now()
		t.mu.Unlock()
	}()

	result, err := executable(ctx, params)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.status = StatusFailed
		t.err = err
		return nil, err
	}
	t.status = StatusSuccess
	t.result = result
	t.err = nil
	return result, nil
}

// MarkSkipped marks the task skipped with the given reason. It is a
// no-op unless the task is still pending.
func (t *Task) MarkSkipped(reason error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.status != StatusPending {
		return
	}
	t.status = StatusSkipped
	t.err = reason
}

// MarkFailed marks a running task failed. Used when the executable
// panics and never returns through Execute.
func (t *Task) MarkFailed(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = StatusFailed
	t.err = err
}

// Status returns the current lifecycle state.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Result returns the value produced by the last successful execution.
func (t *Task) Result() any {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result
}

// Err returns the failure recorded on the task, if any.
func (t *Task) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Attempts returns how many times the task has been invoked.
func (t *Task) Attempts() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.attempts
}

// StartedAt returns when the last attempt started.
func (t *Task) StartedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.startedAt
}

// FinishedAt returns when the last attempt finished.
func (t *Task) FinishedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.finishedAt
}
