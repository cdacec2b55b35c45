package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// drain runs ready tasks wave by wave until nothing is left to start.
func drain(t *testing.T, g *Graph, exec *Executor) [][]string {
	t.Helper()
	var waves [][]string
	for i := 0; i < 10; i++ {
		ready := g.Ready()
		if len(ready) == 0 {
			g.SkipFailedOptional()
			ready = g.ReadyAfterBypass()
		}
		if len(ready) == 0 {
			return waves
		}

		var wg sync.WaitGroup
		wave := make([]string, 0, len(ready))
		for _, task := range ready {
			wave = append(wave, task.ID)
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				if err := exec.ExecuteTask(context.Background(), id); err != nil {
					t.Errorf("ExecuteTask(%s) error = %v", id, err)
				}
			}(task.ID)
		}
		wg.Wait()
		waves = append(waves, wave)
	}
	t.Fatal("graph did not settle")
	return nil
}

// TestIntegration_AllSucceed validates graph -> executor -> completion for the travel shape.
func TestIntegration_AllSucceed(t *testing.T) {
	g := travelShape(t)
	if _, err := g.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	exec := NewExecutor(g, NewAgentLockManager(), func(ctx context.Context, task *Task) (any, error) {
		return task.ID + " done", nil
	})

	waves := drain(t, g, exec)
	if len(waves) != 3 {
		t.Fatalf("expected 3 waves, got %d: %v", len(waves), waves)
	}
	if len(waves[0]) != 3 || waves[1][0] != "fusion" || waves[2][0] != "email" {
		t.Errorf("unexpected waves: %v", waves)
	}
	if !g.IsComplete() || g.HasFailures() {
		t.Errorf("IsComplete=%v HasFailures=%v, want true/false", g.IsComplete(), g.HasFailures())
	}
}

// TestIntegration_OptionalFailureAbsorbed validates that an optional analytic
// failing still lets the required email run.
func TestIntegration_OptionalFailureAbsorbed(t *testing.T) {
	g := travelShape(t)
	exec := NewExecutor(g, nil, func(ctx context.Context, task *Task) (any, error) {
		if task.ID == "genie" {
			return nil, errors.New("genie unavailable")
		}
		return "ok", nil
	})

	drain(t, g, exec)

	if !g.IsComplete() {
		t.Fatalf("graph should be complete, progress %+v", g.Progress())
	}
	for id, want := range map[string]TaskStatus{
		"genie":  TaskSkipped,
		"fusion": TaskSkipped,
		"email":  TaskCompleted,
		"fabric": TaskCompleted,
	} {
		task, _ := g.Get(id)
		if task.Status != want {
			t.Errorf("%s status = %s, want %s", id, task.Status, want)
		}
	}
}

// TestIntegration_RequiredFailureStops validates that a failed required task
// leaves its dependents pending and the graph incomplete.
func TestIntegration_RequiredFailureStops(t *testing.T) {
	g := travelShape(t)
	exec := NewExecutor(g, nil, func(ctx context.Context, task *Task) (any, error) {
		if task.ID == "hotel" {
			return nil, errors.New("search index missing")
		}
		return "ok", nil
	})

	drain(t, g, exec)

	if g.IsComplete() {
		t.Fatal("graph must not complete when a required task failed")
	}
	if got := g.FailedRequired(); len(got) != 1 || got[0] != "hotel" {
		t.Errorf("FailedRequired() = %v, want [hotel]", got)
	}
	email, _ := g.Get("email")
	if email.Status != TaskPending {
		t.Errorf("email status = %s, want pending", email.Status)
	}
}
