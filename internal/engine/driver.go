package engine

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/flowrun-dev/flowrun/internal/digraph"
	"github.com/flowrun-dev/flowrun/internal/logger"
	"github.com/flowrun-dev/flowrun/internal/metrics"
	"github.com/flowrun-dev/flowrun/internal/models"
)

type taskResult struct {
	task *digraph.Task
	err  error
}

// drive executes the DAG's tasks under bounded parallelism. It is
// event-driven: ready tasks are dispatched up to maxParallel, then the
// driver blocks on the completion channel and re-evaluates readiness
// after every event. A task whose dependency failed or was skipped is
// marked skipped, so the loop terminates on any input. The context is
// checked at each dispatch point; on cancellation the driver stops
// dispatching, waits for in-flight tasks, records their outcomes on the
// run record and returns the context error.
func (e *Engine) drive(ctx context.Context, dag *digraph.DAG, run *models.Run, maxParallel int) error {
	completed := make(map[string]struct{}, dag.Len())
	inflight := make(map[string]struct{}, maxParallel)
	done := make(chan taskResult)
	settled := 0
	total := dag.Len()

	record := func(res taskResult) {
		delete(inflight, res.task.ID)
		settled++

		if res.err != nil {
			run.TasksFailed = append(run.TasksFailed, res.task.ID)
			metrics.TasksExecuted.WithLabelValues("failed").Inc()
			logger.Error(ctx, "Task execution failed", "dag", dag.ID, "task", res.task.ID, "err", res.err)
		} else {
			completed[res.task.ID] = struct{}{}
			run.TasksCompleted = append(run.TasksCompleted, res.task.ID)
			metrics.TasksExecuted.WithLabelValues("success").Inc()
			logger.Info(ctx, "Task execution finished", "dag", dag.ID, "task", res.task.ID)
		}
	}

	for settled < total {
		if err := ctx.Err(); err != nil {
			for len(inflight) > 0 {
				record(<-done)
			}
			return err
		}

		settled += e.propagateSkips(ctx, dag, run)

		for _, task := range dag.GetReadyTasks(completed) {
			if len(inflight) >= maxParallel {
				break
			}
			if _, running := inflight[task.ID]; running {
				continue
			}
			inflight[task.ID] = struct{}{}
			logger.Info(ctx, "Task execution started", "dag", dag.ID, "task", task.ID)
			go e.runTask(ctx, task, done)
		}

		if len(inflight) == 0 {
			if settled >= total {
				break
			}
			// Nothing ready, nothing running, nothing to skip: the
			// graph has a cycle or dangling dependency that Validate
			// should have rejected. Bail out rather than spin.
			logger.Error(ctx, "Run stalled with unsettled tasks", "dag", dag.ID, "settled", settled, "total", total)
			return fmt.Errorf("run stalled: %d of %d tasks settled", settled, total)
		}

		record(<-done)
	}

	return nil
}

// propagateSkips marks every pending task with a failed or skipped
// dependency as skipped, repeating until no further task is affected,
// and returns the number of tasks settled this way.
func (e *Engine) propagateSkips(ctx context.Context, dag *digraph.DAG, run *models.Run) int {
	skipped := 0
	for {
		marked := false
		for _, task := range dag.Tasks() {
			if task.Status() != digraph.StatusPending {
				continue
			}
			if !hasUnrunnableDep(dag, task) {
				continue
			}
			task.MarkSkipped(digraph.ErrUpstreamFailed)
			run.TasksSkipped = append(run.TasksSkipped, task.ID)
			skipped++
			marked = true
			logger.Info(ctx, "Task skipped", "dag", dag.ID, "task", task.ID, "reason", digraph.ErrUpstreamFailed)
		}
		if !marked {
			return skipped
		}
	}
}

func hasUnrunnableDep(dag *digraph.DAG, task *digraph.Task) bool {
	for _, depID := range task.DependsOn {
		dep, ok := dag.Task(depID)
		if !ok {
			continue
		}
		switch dep.Status() {
		case digraph.StatusFailed, digraph.StatusSkipped:
			return true
		}
	}
	return false
}

// runTask executes one task and reports its outcome on done. A panic in
// the executable is recovered and recorded as a task failure.
func (e *Engine) runTask(ctx context.Context, task *digraph.Task, done chan<- taskResult) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			task.MarkFailed(err)
			done <- taskResult{task: task, err: err}
		}
	}()

	_, err := task.Execute(ctx)
	done <- taskResult{task: task, err: err}
}
