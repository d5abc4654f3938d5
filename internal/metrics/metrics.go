// Package metrics exposes process uptime and workflow counters.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

// Uptime returns the time elapsed since process start.
func Uptime() time.Duration {
	return time.Since(startTime)
}

var (
	// RunsStarted counts run_dag invocations that passed validation.
	RunsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowrun_runs_started_total",
		Help: "Number of DAG runs started.",
	})

	// RunsFinished counts terminal runs by final status.
	RunsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_runs_finished_total",
		Help: "Number of DAG runs finished, by terminal status.",
	}, []string{"status"})

	// TasksExecuted counts task attempts by outcome.
	TasksExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "flowrun_tasks_executed_total",
		Help: "Number of task executions, by outcome.",
	}, []string{"status"})

	// TriggersFired counts successful trigger firings.
	TriggersFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "flowrun_triggers_fired_total",
		Help: "Number of triggers fired.",
	})
)

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
