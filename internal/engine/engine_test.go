package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/flowrun-dev/flowrun/internal/digraph"
	"github.com/flowrun-dev/flowrun/internal/models"
	"github.com/flowrun-dev/flowrun/internal/persistence/filerun"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	return New(filerun.New(t.TempDir()))
}

func succeed(_ context.Context, _ map[string]any) (any, error) {
	return "ok", nil
}

func fail(_ context.Context, _ map[string]any) (any, error) {
	return nil, errors.New("task failed")
}

func TestRunDAG(t *testing.T) {
	ctx := context.Background()

	t.Run("SingleTask", func(t *testing.T) {
		eng := newTestEngine(t)
		dag := digraph.NewDAG("single")
		dag.AddTask(digraph.NewTask("task_1", succeed))
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		runID, err := eng.RunDAG(ctx, "single")
		require.NoError(t, err)
		require.NotEmpty(t, runID)

		run, err := eng.GetRun(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, models.RunStatusCompleted, run.Status)
		require.Equal(t, []string{"task_1"}, run.TasksCompleted)
		require.Empty(t, run.TasksFailed)
		require.NotNil(t, run.FinishedAt)
	})

	t.Run("ChainRunsInDependencyOrder", func(t *testing.T) {
		eng := newTestEngine(t)
		dag := digraph.NewDAG("chain")
		dag.AddTask(digraph.NewTask("task_1", succeed))
		dag.AddTask(digraph.NewTask("task_2", succeed, digraph.WithDependsOn("task_1")))
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		runID, err := eng.RunDAG(ctx, "chain")
		require.NoError(t, err)

		run, err := eng.GetRun(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, models.RunStatusCompleted, run.Status)
		require.Equal(t, []string{"task_1", "task_2"}, run.TasksCompleted)
	})

	t.Run("FailureMarksRunFailed", func(t *testing.T) {
		eng := newTestEngine(t)
		dag := digraph.NewDAG("failing")
		dag.AddTask(digraph.NewTask("bad", fail))
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		runID, err := eng.RunDAG(ctx, "failing")
		require.NoError(t, err)

		run, err := eng.GetRun(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, models.RunStatusFailed, run.Status)
		require.Equal(t, []string{"bad"}, run.TasksFailed)
	})

	t.Run("FailedDependencySkipsDependents", func(t *testing.T) {
		eng := newTestEngine(t)
		dag := digraph.NewDAG("skip")
		dag.AddTask(digraph.NewTask("bad", fail))
		dag.AddTask(digraph.NewTask("mid", succeed, digraph.WithDependsOn("bad")))
		dag.AddTask(digraph.NewTask("leaf", succeed, digraph.WithDependsOn("mid")))
		dag.AddTask(digraph.NewTask("independent", succeed))
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		type runOutcome struct {
			runID string
			err   error
		}
		finished := make(chan runOutcome, 1)
		go func() {
			runID, err := eng.RunDAG(ctx, "skip")
			finished <- runOutcome{runID, err}
		}()

		var runID string
		select {
		case outcome := <-finished:
			require.NoError(t, outcome.err)
			runID = outcome.runID
		case <-time.After(5 * time.Second):
			t.Fatal("run did not terminate after a dependency failure")
		}

		run, err := eng.GetRun(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, models.RunStatusFailed, run.Status)
		require.Equal(t, []string{"bad"}, run.TasksFailed)
		require.Equal(t, []string{"independent"}, run.TasksCompleted)
		require.ElementsMatch(t, []string{"mid", "leaf"}, run.TasksSkipped)

		status, err := eng.GetDAGStatus("skip")
		require.NoError(t, err)
		require.Equal(t, "skipped", status.Tasks["mid"])
		require.Equal(t, "skipped", status.Tasks["leaf"])
		require.Equal(t, "failed", status.Tasks["bad"])

		// The registered graph is untouched by execution.
		mid, _ := dag.Task("mid")
		require.Equal(t, digraph.StatusPending, mid.Status())
		require.Zero(t, mid.Attempts())
	})

	t.Run("RerunStartsFromPendingState", func(t *testing.T) {
		eng := newTestEngine(t)
		dag := digraph.NewDAG("repeat")
		dag.AddTask(digraph.NewTask("task_1", succeed))
		dag.AddTask(digraph.NewTask("task_2", succeed, digraph.WithDependsOn("task_1")))
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		var runIDs []string
		for i := 0; i < 3; i++ {
			runID, err := eng.RunDAG(ctx, "repeat")
			require.NoError(t, err)
			runIDs = append(runIDs, runID)
		}

		for _, runID := range runIDs {
			run, err := eng.GetRun(ctx, runID)
			require.NoError(t, err)
			require.Equal(t, models.RunStatusCompleted, run.Status)
			require.Equal(t, []string{"task_1", "task_2"}, run.TasksCompleted)
		}
	})

	t.Run("ConcurrentRunsOfSameDAG", func(t *testing.T) {
		eng := newTestEngine(t)
		dag := digraph.NewDAG("shared")
		dag.AddTask(digraph.NewTask("slow", func(_ context.Context, _ map[string]any) (any, error) {
			time.Sleep(20 * time.Millisecond)
			return nil, nil
		}))
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		type runOutcome struct {
			runID string
			err   error
		}
		outcomes := make(chan runOutcome, 2)
		for i := 0; i < 2; i++ {
			go func() {
				runID, err := eng.RunDAG(ctx, "shared")
				outcomes <- runOutcome{runID, err}
			}()
		}

		for i := 0; i < 2; i++ {
			select {
			case outcome := <-outcomes:
				require.NoError(t, outcome.err)
				run, err := eng.GetRun(ctx, outcome.runID)
				require.NoError(t, err)
				require.Equal(t, models.RunStatusCompleted, run.Status)
				require.Equal(t, []string{"slow"}, run.TasksCompleted)
			case <-time.After(5 * time.Second):
				t.Fatal("concurrent run did not terminate")
			}
		}
	})

	t.Run("UnknownDAG", func(t *testing.T) {
		eng := newTestEngine(t)
		_, err := eng.RunDAG(ctx, "missing")
		require.ErrorIs(t, err, ErrDAGNotFound)
	})

	t.Run("PanicInExecutableFailsTask", func(t *testing.T) {
		eng := newTestEngine(t)
		dag := digraph.NewDAG("panicky")
		dag.AddTask(digraph.NewTask("boom", func(_ context.Context, _ map[string]any) (any, error) {
			panic("kaboom")
		}))
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		runID, err := eng.RunDAG(ctx, "panicky")
		require.NoError(t, err)

		run, err := eng.GetRun(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, models.RunStatusFailed, run.Status)
		require.Equal(t, []string{"boom"}, run.TasksFailed)
	})
}

func TestRunDAGParallelism(t *testing.T) {
	ctx := context.Background()

	t.Run("BoundedByMaxParallel", func(t *testing.T) {
		eng := newTestEngine(t)

		var current, peak atomic.Int32
		tracked := func(_ context.Context, _ map[string]any) (any, error) {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			current.Add(-1)
			return nil, nil
		}

		dag := digraph.NewDAG("bounded")
		for _, id := range []string{"a", "b", "c", "d", "e"} {
			dag.AddTask(digraph.NewTask(id, tracked))
		}
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		_, err := eng.RunDAG(ctx, "bounded", WithMaxParallel(2))
		require.NoError(t, err)
		require.LessOrEqual(t, peak.Load(), int32(2))
	})

	t.Run("IndependentTasksRunConcurrently", func(t *testing.T) {
		eng := newTestEngine(t)

		var wg sync.WaitGroup
		wg.Add(2)
		bothStarted := make(chan struct{})
		go func() {
			wg.Wait()
			close(bothStarted)
		}()

		rendezvous := func(_ context.Context, _ map[string]any) (any, error) {
			wg.Done()
			select {
			case <-bothStarted:
				return nil, nil
			case <-time.After(3 * time.Second):
				return nil, errors.New("peer task never started")
			}
		}

		dag := digraph.NewDAG("parallel")
		dag.AddTask(digraph.NewTask("left", rendezvous))
		dag.AddTask(digraph.NewTask("right", rendezvous))
		require.NoError(t, eng.RegisterDAG(ctx, dag))

		runID, err := eng.RunDAG(ctx, "parallel", WithMaxParallel(2))
		require.NoError(t, err)

		run, err := eng.GetRun(ctx, runID)
		require.NoError(t, err)
		require.Equal(t, models.RunStatusCompleted, run.Status)
	})
}

func TestRunDAGCancellation(t *testing.T) {
	eng := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// "quick" cancels the run mid-flight; "lingering" only returns once
	// cancellation has been observed, so it is still in flight when the
	// driver stops dispatching.
	dag := digraph.NewDAG("cancel")
	dag.AddTask(digraph.NewTask("quick", func(_ context.Context, _ map[string]any) (any, error) {
		cancel()
		return nil, nil
	}))
	dag.AddTask(digraph.NewTask("lingering", func(taskCtx context.Context, _ map[string]any) (any, error) {
		select {
		case <-taskCtx.Done():
			return "ok", nil
		case <-time.After(3 * time.Second):
			return nil, errors.New("cancellation never arrived")
		}
	}))
	require.NoError(t, eng.RegisterDAG(context.Background(), dag))

	runID, err := eng.RunDAG(ctx, "cancel", WithMaxParallel(2))
	require.Error(t, err)
	require.NotEmpty(t, runID)

	runs := eng.ListRuns("cancel")
	require.Len(t, runs, 1)
	require.Equal(t, models.RunStatusFailed, runs[0].Status)
	// Outcomes of tasks that finished during the shutdown drain are
	// still on the record.
	require.ElementsMatch(t, []string{"quick", "lingering"}, runs[0].TasksCompleted)
	require.Empty(t, runs[0].TasksFailed)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestListRuns(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	for _, id := range []string{"first", "second"} {
		dag := digraph.NewDAG(id)
		dag.AddTask(digraph.NewTask("only", succeed))
		require.NoError(t, eng.RegisterDAG(ctx, dag))
		_, err := eng.RunDAG(ctx, id)
		require.NoError(t, err)
	}
	_, err := eng.RunDAG(ctx, "first")
	require.NoError(t, err)

	require.Len(t, eng.ListRuns(""), 3)
	require.Len(t, eng.ListRuns("first"), 2)
	require.Len(t, eng.ListRuns("second"), 1)
	require.Empty(t, eng.ListRuns("other"))
}

func TestGetRun(t *testing.T) {
	eng := newTestEngine(t)
	_, err := eng.GetRun(context.Background(), "nope")
	require.ErrorIs(t, err, models.ErrRunNotFound)
}

func TestRegisterDAGRejectsInvalidGraph(t *testing.T) {
	eng := newTestEngine(t)
	dag := digraph.NewDAG("broken")
	dag.AddTask(digraph.NewTask("a", succeed, digraph.WithDependsOn("ghost")))

	err := eng.RegisterDAG(context.Background(), dag)
	var graphErr *digraph.GraphError
	require.ErrorAs(t, err, &graphErr)
}

func TestGetDAGStatus(t *testing.T) {
	ctx := context.Background()
	eng := newTestEngine(t)

	dag := digraph.NewDAG("status")
	dag.AddTask(digraph.NewTask("a", succeed))
	dag.AddTask(digraph.NewTask("b", succeed, digraph.WithDependsOn("a")))
	require.NoError(t, eng.RegisterDAG(ctx, dag))

	status, err := eng.GetDAGStatus("status")
	require.NoError(t, err)
	require.Equal(t, 2, status.TotalTasks)
	require.Equal(t, "registered", status.Status)
	require.Equal(t, "pending", status.Tasks["a"])
	require.Equal(t, "pending", status.Tasks["b"])

	// After a run the summary reflects the latest run's task states.
	_, err = eng.RunDAG(ctx, "status")
	require.NoError(t, err)

	status, err = eng.GetDAGStatus("status")
	require.NoError(t, err)
	require.Equal(t, "success", status.Tasks["a"])
	require.Equal(t, "success", status.Tasks["b"])

	_, err = eng.GetDAGStatus("missing")
	require.ErrorIs(t, err, ErrDAGNotFound)
}
