package digraph

import (
	"fmt"
	"sort"
	"strings"
)

// DAG is a named collection of tasks plus their dependency edges.
// Task insertion order is preserved and used as the tie-break order
// among concurrently ready tasks.
type DAG struct {
	ID string

	tasks map[string]*Task
	order []string

	// executionOrder caches the result of the last topological sort.
	executionOrder []string
}

// NewDAG creates an empty DAG with the given id.
func NewDAG(id string) *DAG {
	return &DAG{
		ID:    id,
		tasks: make(map[string]*Task),
	}
}

// AddTask inserts a task, overwriting any prior task with the same id
// while keeping its original position in the insertion order.
func (d *DAG) AddTask(task *Task) {
	if _, ok := d.tasks[task.ID]; !ok {
		d.order = append(d.order, task.ID)
	}
	d.tasks[task.ID] = task
}

// Snapshot returns a copy of the DAG whose tasks share the original's
// executables, params and edges but start from pending state. Each run
// executes against its own snapshot, so a registered graph can be run
// any number of times and concurrent runs do not interfere.
func (d *DAG) Snapshot() *DAG {
	snap := NewDAG(d.ID)
	for _, id := range d.order {
		task := d.tasks[id]
		snap.AddTask(NewTask(task.ID, task.Executable,
			WithParams(task.Params),
			WithDependsOn(task.DependsOn...),
		))
	}
	return snap
}

// Task returns the task with the given id.
func (d *DAG) Task(id string) (*Task, bool) {
	task, ok := d.tasks[id]
	return task, ok
}

// Tasks returns all tasks in insertion order.
func (d *DAG) Tasks() []*Task {
	tasks := make([]*Task, 0, len(d.order))
	for _, id := range d.order {
		tasks = append(tasks, d.tasks[id])
	}
	return tasks
}

// Len returns the number of tasks.
func (d *DAG) Len() int {
	return len(d.tasks)
}

// ExecutionOrder returns the order cached by the last TopologicalSort.
func (d *DAG) ExecutionOrder() []string {
	return d.executionOrder
}

// TopologicalSort computes an execution order using Kahn's algorithm.
// The in-degree of each task counts only dependency ids present in the
// task mapping; the initial queue holds zero-in-degree tasks in
// insertion order and is processed FIFO. If the graph contains a cycle
// the returned order is shorter than the task count; use Validate to
// detect that explicitly.
func (d *DAG) TopologicalSort() []string {
	inDegree := make(map[string]int, len(d.tasks))
	for _, id := range d.order {
		inDegree[id] = 0
	}
	for _, id := range d.order {
		for _, dep := range d.tasks[id].DependsOn {
			if _, ok := d.tasks[dep]; ok {
				inDegree[id]++
			}
		}
	}

	var queue []string
	for _, id := range d.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]string, 0, len(d.tasks))
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		order = append(order, current)

		for _, id := range d.order {
			for _, dep := range d.tasks[id].DependsOn {
				if dep != current {
					continue
				}
				inDegree[id]--
				if inDegree[id] == 0 {
					queue = append(queue, id)
				}
			}
		}
	}

	d.executionOrder = order
	return order
}

// GetReadyTasks returns every pending task whose full dependency list
// is contained in the completed set, in insertion order.
func (d *DAG) GetReadyTasks(completed map[string]struct{}) []*Task {
	var ready []*Task
	for _, id := range d.order {
		task := d.tasks[id]
		if task.Status() != StatusPending {
			continue
		}
		ok := true
		for _, dep := range task.DependsOn {
			if _, done := completed[dep]; !done {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, task)
		}
	}
	return ready
}

// Validate checks that every dependency id references an existing task
// and that the graph is acyclic. It returns a *GraphError naming the
// offending ids, and must pass before any execution is attempted.
func (d *DAG) Validate() error {
	gerr := &GraphError{
		DAGID:    d.ID,
		Dangling: make(map[string][]string),
	}

	for _, id := range d.order {
		for _, dep := range d.tasks[id].DependsOn {
			if _, ok := d.tasks[dep]; !ok {
				gerr.Dangling[id] = append(gerr.Dangling[id], dep)
			}
		}
	}

	// A topological order shorter than the task count means the
	// remainder forms at least one cycle.
	order := d.TopologicalSort()
	if len(order) < len(d.tasks) {
		sorted := make(map[string]struct{}, len(order))
		for _, id := range order {
			sorted[id] = struct{}{}
		}
		for _, id := range d.order {
			if _, ok := sorted[id]; !ok {
				gerr.Cycle = append(gerr.Cycle, id)
			}
		}
	}

	if len(gerr.Dangling) > 0 || len(gerr.Cycle) > 0 {
		return gerr
	}
	return nil
}

// GraphError reports structural problems found by Validate.
type GraphError struct {
	DAGID string
	// Dangling maps a task id to the dependency ids it references that
	// do not exist in the DAG.
	Dangling map[string][]string
	// Cycle lists the task ids that could not be topologically ordered.
	Cycle []string
}

func (e *GraphError) Error() string {
	var parts []string
	if len(e.Dangling) > 0 {
		ids := make([]string, 0, len(e.Dangling))
		for id := range e.Dangling {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			parts = append(parts, fmt.Sprintf("task %q depends on unknown tasks %v", id, e.Dangling[id]))
		}
	}
	if len(e.Cycle) > 0 {
		parts = append(parts, fmt.Sprintf("cycle involving tasks %v", e.Cycle))
	}
	return fmt.Sprintf("invalid graph %q: %s", e.DAGID, strings.Join(parts, "; "))
}
