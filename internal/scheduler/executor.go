package scheduler

import (
	"context"
	"fmt"
)

// RunFunc performs the work for one task and returns its result payload.
type RunFunc func(ctx context.Context, task *Task) (any, error)

// PanicError wraps a value recovered from a panicking RunFunc.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Executor runs tasks of a graph with per-agent serialization.
type Executor struct {
	graph *Graph
	locks *AgentLockManager
	run   RunFunc
}

// NewExecutor creates a new Executor. A nil lock manager gets a private one.
func NewExecutor(graph *Graph, locks *AgentLockManager, run RunFunc) *Executor {
	if locks == nil {
		locks = NewAgentLockManager()
	}
	return &Executor{
		graph: graph,
		locks: locks,
		run:   run,
	}
}

// ExecuteTask runs a single task and records its outcome in the graph.
// A failing task is not an error: the returned error only reports tasks that
// could not be started (unknown, not pending, or with unmet dependencies).
func (e *Executor) ExecuteTask(ctx context.Context, taskID string) error {
	task, exists := e.graph.Get(taskID)
	if !exists {
		return fmt.Errorf("task %q: %w", taskID, ErrTaskNotFound)
	}

	if task.Status != TaskPending {
		return fmt.Errorf("task %q is not pending (status: %s)", taskID, task.Status)
	}

	for _, depID := range task.Dependencies {
		dep, ok := e.graph.Get(depID)
		if !ok || (dep.Status != TaskCompleted && dep.Status != TaskSkipped) {
			return fmt.Errorf("task %q has unresolved dependency %q", taskID, depID)
		}
	}

	if err := e.graph.MarkInProgress(taskID); err != nil {
		return err
	}

	if err := e.locks.Lock(ctx, task.AgentName); err != nil {
		_ = e.graph.MarkFailed(taskID, fmt.Errorf("context cancelled before execution: %w", err))
		return nil
	}
	defer e.locks.Unlock(task.AgentName)

	result, err := e.safeRun(ctx, task)
	if err != nil {
		_ = e.graph.MarkFailed(taskID, err)
		return nil // Task status is in the graph, not the return value
	}

	_ = e.graph.MarkCompleted(taskID, result)
	return nil
}

func (e *Executor) safeRun(ctx context.Context, task *Task) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &PanicError{Value: r}
		}
	}()
	return e.run(ctx, task)
}
