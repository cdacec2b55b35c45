package orchestrator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotInitialized is returned when a scenario runs before Initialize succeeded.
	ErrNotInitialized = errors.New("runtime not initialized")

	// ErrUnknownScenario is returned for scenario names the builder does not know.
	ErrUnknownScenario = errors.New("unknown scenario")
)

// AdapterInitError reports agents whose Create failed. Any failure aborts the
// scenario before a task runs.
type AdapterInitError struct {
	Failed map[string]error // agent name -> Create error
}

func (e *AdapterInitError) Error() string {
	return "failed to initialize agents: " + strings.Join(e.Agents(), ", ")
}

// Agents returns the failed agent names, sorted.
func (e *AdapterInitError) Agents() []string {
	names := make([]string, 0, len(e.Failed))
	for name := range e.Failed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskExecutionError is recorded on a task whose agent call failed.
type TaskExecutionError struct {
	TaskID   string
	Agent    string
	Attempts int
	Err      error
}

func (e *TaskExecutionError) Error() string {
	if e.Attempts > 1 {
		return fmt.Sprintf("task %q on %s failed after %d attempts: %v", e.TaskID, e.Agent, e.Attempts, e.Err)
	}
	return fmt.Sprintf("task %q on %s failed: %v", e.TaskID, e.Agent, e.Err)
}

func (e *TaskExecutionError) Unwrap() error { return e.Err }

// SchedulingDeadlockError is returned when nothing can run, nothing failed,
// and the graph is still incomplete.
type SchedulingDeadlockError struct {
	GraphID string
	Pending []string
}

func (e *SchedulingDeadlockError) Error() string {
	return fmt.Sprintf("scheduling deadlock in graph %q: pending tasks %s can never become ready",
		e.GraphID, strings.Join(e.Pending, ", "))
}
