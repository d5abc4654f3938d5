// Package engine implements the workflow engine: the DAG and run
// registries and the run-driving execution loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flowrun-dev/flowrun/internal/digraph"
	"github.com/flowrun-dev/flowrun/internal/logger"
	"github.com/flowrun-dev/flowrun/internal/metrics"
	"github.com/flowrun-dev/flowrun/internal/models"
)

// Errors returned by engine operations.
var (
	ErrDAGNotFound = errors.New("dag not found")
)

// defaultMaxParallel bounds concurrent task dispatch when no option is given.
const defaultMaxParallel = 4

// Engine is the registry of DAGs and runs. It drives one DAG to
// completion under bounded parallelism and persists the terminal run
// record through its RunStore. Registered graphs are never mutated by
// execution: each run drives its own snapshot of the task graph.
type Engine struct {
	mu        sync.RWMutex
	dags      map[string]*digraph.DAG
	snapshots map[string]*digraph.DAG
	runs      map[string]*models.Run
	store     models.RunStore
}

// New creates an engine persisting run records to the given store.
func New(store models.RunStore) *Engine {
	return &Engine{
		dags:      make(map[string]*digraph.DAG),
		snapshots: make(map[string]*digraph.DAG),
		runs:      make(map[string]*models.Run),
		store:     store,
	}
}

// RegisterDAG inserts the DAG into the registry, overwriting any prior
// DAG with the same id. The graph is validated first; a structurally
// invalid DAG is rejected before any state mutation.
func (e *Engine) RegisterDAG(ctx context.Context, dag *digraph.DAG) error {
	if err := dag.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	e.dags[dag.ID] = dag
	e.mu.Unlock()

	logger.Info(ctx, "Registered DAG", "dag", dag.ID, "tasks", dag.Len())
	return nil
}

// GetDAG returns the registered DAG with the given id.
func (e *Engine) GetDAG(dagID string) (*digraph.DAG, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	dag, ok := e.dags[dagID]
	return dag, ok
}

// ListDAGs returns the ids of all registered DAGs, sorted.
func (e *Engine) ListDAGs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.dags))
	for id := range e.dags {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	maxParallel int
}

// WithMaxParallel bounds the number of concurrently running tasks.
func WithMaxParallel(n int) RunOption {
	return func(o *runOptions) {
		if n > 0 {
			o.maxParallel = n
		}
	}
}

// RunDAG executes the DAG with the given id and returns the run id.
// It returns ErrDAGNotFound for an unregistered id. Task failures are
// recorded on the run record and never returned as errors; the returned
// error reports cancellation or a persistence failure.
func (e *Engine) RunDAG(ctx context.Context, dagID string, opts ...RunOption) (string, error) {
	options := &runOptions{maxParallel: defaultMaxParallel}
	for _, opt := range opts {
		opt(options)
	}

	e.mu.RLock()
	dag, ok := e.dags[dagID]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrDAGNotFound, dagID)
	}

	if err := dag.Validate(); err != nil {
		return "", err
	}

	// Each run drives a fresh snapshot: task status, results and attempt
	// counters belong to the run, not the registered graph, so reruns and
	// concurrent runs of the same DAG start from pending state.
	graph := dag.Snapshot()
	graph.TopologicalSort()

	runID := uuid.NewString()
	run := &models.Run{
		RunID:     runID,
		DAGID:     dagID,
		Status:    models.RunStatusRunning,
		StartedAt: time.Now(),
	}

	e.mu.Lock()
	e.runs[runID] = run.Clone()
	e.snapshots[dagID] = graph
	e.mu.Unlock()

	metrics.RunsStarted.Inc()
	logger.Info(ctx, "Run started", "run", runID, "dag", dagID, "maxParallel", options.maxParallel)

	driveErr := e.drive(ctx, graph, run, options.maxParallel)

	finished := time.Now()
	run.FinishedAt = &finished
	if len(run.TasksFailed) > 0 || driveErr != nil {
		run.Status = models.RunStatusFailed
	} else {
		run.Status = models.RunStatusCompleted
	}

	terminal := run.Clone()
	e.mu.Lock()
	e.runs[runID] = terminal
	e.mu.Unlock()

	metrics.RunsFinished.WithLabelValues(string(run.Status)).Inc()
	logger.Info(ctx, "Run finished", "run", runID, "dag", dagID, "status", run.Status,
		"completed", len(run.TasksCompleted), "failed", len(run.TasksFailed), "skipped", len(run.TasksSkipped))

	if err := e.store.Save(ctx, terminal); err != nil {
		return runID, fmt.Errorf("failed to persist run %s: %w", runID, err)
	}
	return runID, driveErr
}

// GetRun reads the persisted record for the given run id. It returns
// models.ErrRunNotFound if no record exists.
func (e *Engine) GetRun(ctx context.Context, runID string) (*models.Run, error) {
	return e.store.Find(ctx, runID)
}

// ListRuns returns the in-memory run set, optionally filtered by exact
// dag id, ordered by start time.
func (e *Engine) ListRuns(dagID string) []*models.Run {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var runs []*models.Run
	for _, run := range e.runs {
		if dagID == "" || run.DAGID == dagID {
			runs = append(runs, run)
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].RunID < runs[j].RunID
		}
		return runs[i].StartedAt.Before(runs[j].StartedAt)
	})
	return runs
}

// DAGStatus is a per-task status summary of a registered DAG.
type DAGStatus struct {
	DAGID      string            `json:"dag_id"`
	TotalTasks int               `json:"total_tasks"`
	Status     string            `json:"status"`
	Tasks      map[string]string `json:"tasks"`
}

// GetDAGStatus returns the status summary for the given DAG. Task
// states come from the most recent run's snapshot; a DAG that was never
// run reports every task pending.
func (e *Engine) GetDAGStatus(dagID string) (*DAGStatus, error) {
	e.mu.RLock()
	dag, ok := e.dags[dagID]
	if snap, ran := e.snapshots[dagID]; ran {
		dag = snap
	}
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDAGNotFound, dagID)
	}

	tasks := make(map[string]string, dag.Len())
	for _, task := range dag.Tasks() {
		tasks[task.ID] = task.Status().String()
	}
	return &DAGStatus{
		DAGID:      dagID,
		TotalTasks: dag.Len(),
		Status:     "registered",
		Tasks:      tasks,
	}, nil
}
