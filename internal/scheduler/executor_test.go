package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
)

// stubRun returns a RunFunc that answers per task ID.
func stubRun(results map[string]any, errs map[string]error, calls *atomic.Int32) RunFunc {
	return func(ctx context.Context, task *Task) (any, error) {
		if calls != nil {
			calls.Add(1)
		}
		if err, ok := errs[task.ID]; ok {
			return nil, err
		}
		return results[task.ID], nil
	}
}

func TestExecutor_SuccessfulExecution(t *testing.T) {
	g := newTestGraph(t, &Task{ID: "task-1", AgentName: "hotel"})
	exec := NewExecutor(g, nil, stubRun(map[string]any{"task-1": "hotels found"}, nil, nil))

	if err := exec.ExecuteTask(context.Background(), "task-1"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}

	task, _ := g.Get("task-1")
	if task.Status != TaskCompleted {
		t.Errorf("expected completed, got %s", task.Status)
	}
	if task.Result != "hotels found" {
		t.Errorf("expected result %q, got %v", "hotels found", task.Result)
	}
}

func TestExecutor_FailedRun(t *testing.T) {
	g := newTestGraph(t, &Task{ID: "task-1", AgentName: "email"})
	runErr := errors.New("logic app returned 500")
	exec := NewExecutor(g, nil, stubRun(nil, map[string]error{"task-1": runErr}, nil))

	if err := exec.ExecuteTask(context.Background(), "task-1"); err != nil {
		t.Fatalf("run failure should be recorded, not returned: %v", err)
	}

	task, _ := g.Get("task-1")
	if task.Status != TaskFailed || !errors.Is(task.Error, runErr) {
		t.Errorf("task = %s/%v, want failed/%v", task.Status, task.Error, runErr)
	}
}

func TestExecutor_PanicBecomesFailure(t *testing.T) {
	g := newTestGraph(t, &Task{ID: "task-1", AgentName: "hotel"})
	exec := NewExecutor(g, nil, func(ctx context.Context, task *Task) (any, error) {
		panic("nil client")
	})

	if err := exec.ExecuteTask(context.Background(), "task-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	task, _ := g.Get("task-1")
	var pe *PanicError
	if task.Status != TaskFailed || !errors.As(task.Error, &pe) {
		t.Fatalf("task = %s/%v, want failed with PanicError", task.Status, task.Error)
	}
	if !strings.Contains(pe.Error(), "nil client") {
		t.Errorf("panic message = %q", pe.Error())
	}
}

func TestExecutor_Refusals(t *testing.T) {
	var calls atomic.Int32
	g := newTestGraph(t,
		&Task{ID: "A", AgentName: "hotel"},
		&Task{ID: "B", AgentName: "email", Dependencies: []string{"A"}},
	)
	exec := NewExecutor(g, nil, stubRun(nil, nil, &calls))

	if err := exec.ExecuteTask(context.Background(), "missing"); !errors.Is(err, ErrTaskNotFound) {
		t.Errorf("unknown task error = %v, want ErrTaskNotFound", err)
	}
	if err := exec.ExecuteTask(context.Background(), "B"); err == nil {
		t.Error("expected error for unresolved dependency")
	}
	_ = g.MarkInProgress("A")
	if err := exec.ExecuteTask(context.Background(), "A"); err == nil {
		t.Error("expected error for non-pending task")
	}
	if calls.Load() != 0 {
		t.Errorf("run called %d times, want 0", calls.Load())
	}
}

func TestExecutor_CancelledWhileWaitingForAgent(t *testing.T) {
	g := newTestGraph(t, &Task{ID: "A", AgentName: "hotel"})
	locks := NewAgentLockManager()
	if err := locks.Lock(context.Background(), "hotel"); err != nil {
		t.Fatal(err)
	}
	defer locks.Unlock("hotel")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	exec := NewExecutor(g, locks, stubRun(nil, nil, nil))
	if err := exec.ExecuteTask(ctx, "A"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	task, _ := g.Get("A")
	if task.Status != TaskFailed || !strings.Contains(task.Error.Error(), "cancelled") {
		t.Errorf("task = %s/%v, want failed with cancellation", task.Status, task.Error)
	}
}
