package scheduler

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/flowrun-dev/flowrun/internal/logger"
)

// DispatchFunc starts one run of the given DAG.
type DispatchFunc func(ctx context.Context, dagID string) error

// Runner polls the scheduler on a fixed tick and dispatches every due
// DAG. Each DAG is marked as run before dispatch so it is not reported
// pending again on the next poll.
type Runner struct {
	scheduler *Scheduler
	dispatch  DispatchFunc
	tick      time.Duration
	stopChan  chan struct{}
}

// NewRunner creates a runner polling at the given tick interval.
func NewRunner(sc *Scheduler, dispatch DispatchFunc, tick time.Duration) *Runner {
	if tick <= 0 {
		tick = time.Minute
	}
	return &Runner{
		scheduler: sc,
		dispatch:  dispatch,
		tick:      tick,
		stopChan:  make(chan struct{}),
	}
}

// Start runs the poll loop until Stop is called or the context is
// canceled.
func (r *Runner) Start(ctx context.Context) {
	logger.Info(ctx, "Schedule runner started", "tick", r.tick)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			r.run(ctx)
			timer.Reset(r.tick)

		case <-r.stopChan:
			return

		case <-ctx.Done():
			return
		}
	}
}

// Stop terminates the poll loop.
func (r *Runner) Stop() {
	close(r.stopChan)
}

func (r *Runner) run(ctx context.Context) {
	for _, dagID := range r.scheduler.GetPendingRuns() {
		if err := r.scheduler.MarkRun(ctx, dagID); err != nil {
			logger.Error(ctx, "Failed to mark schedule as run", "dag", dagID, "err", err)
			continue
		}
		go r.dispatchWithRecovery(ctx, dagID)
	}
}

func (r *Runner) dispatchWithRecovery(ctx context.Context, dagID string) {
	defer func() {
		if rec := recover(); rec != nil {
			const size = 64 << 10
			buf := make([]byte, size)
			buf = buf[:runtime.Stack(buf, false)]
			logger.Error(ctx, "Panic dispatching scheduled run",
				"dag", dagID, "err", fmt.Sprintf("%v", rec), "stack", string(buf))
		}
	}()

	if err := r.dispatch(ctx, dagID); err != nil {
		logger.Error(ctx, "Scheduled run failed", "dag", dagID, "err", err)
	}
}
