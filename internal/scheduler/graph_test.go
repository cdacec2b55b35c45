package scheduler

import (
	"errors"
	"strings"
	"testing"
)

func newTestGraph(t *testing.T, tasks ...*Task) *Graph {
	t.Helper()
	g := NewGraph("g-1", "test", "test graph")
	for _, task := range tasks {
		if err := g.AddTask(task); err != nil {
			t.Fatalf("AddTask(%q) error = %v", task.ID, err)
		}
	}
	return g
}

func ids(tasks []*Task) []string {
	out := make([]string, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, task.ID)
	}
	return out
}

// TestGraphValidate tests graph validation with various structures.
func TestGraphValidate(t *testing.T) {
	tests := []struct {
		name        string
		tasks       []*Task
		criteria    CompletionCriteria
		wantErr     bool
		errContains string
	}{
		{
			name: "valid linear chain",
			tasks: []*Task{
				{ID: "A"},
				{ID: "B", Dependencies: []string{"A"}},
				{ID: "C", Dependencies: []string{"B"}},
			},
		},
		{
			name: "valid parallel tasks",
			tasks: []*Task{
				{ID: "A"},
				{ID: "B"},
				{ID: "C", Dependencies: []string{"A", "B"}},
			},
		},
		{
			name: "direct cycle",
			tasks: []*Task{
				{ID: "A", Dependencies: []string{"B"}},
				{ID: "B", Dependencies: []string{"A"}},
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name: "transitive cycle",
			tasks: []*Task{
				{ID: "A", Dependencies: []string{"B"}},
				{ID: "B", Dependencies: []string{"C"}},
				{ID: "C", Dependencies: []string{"A"}},
			},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name:        "self-loop",
			tasks:       []*Task{{ID: "A", Dependencies: []string{"A"}}},
			wantErr:     true,
			errContains: "cycle",
		},
		{
			name:        "missing dependency",
			tasks:       []*Task{{ID: "A", Dependencies: []string{"nonexistent"}}},
			wantErr:     true,
			errContains: "nonexistent",
		},
		{
			name:        "criteria names unknown task",
			tasks:       []*Task{{ID: "A"}},
			criteria:    CompletionCriteria{Required: []string{"A", "ghost"}},
			wantErr:     true,
			errContains: "ghost",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestGraph(t, tt.tasks...)
			g.SetCompletionCriteria(tt.criteria)
			order, err := g.Validate()

			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("Error message %q doesn't contain %q", err.Error(), tt.errContains)
			}
			if err == nil && len(order) != len(tt.tasks) {
				t.Errorf("Validate() returned %d ids, want %d", len(order), len(tt.tasks))
			}
		})
	}
}

func TestGraphAddTask(t *testing.T) {
	t.Run("duplicate ID rejected", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A"})
		if err := g.AddTask(&Task{ID: "A"}); err == nil {
			t.Fatal("expected error when adding duplicate task ID")
		}
	})

	t.Run("empty ID rejected", func(t *testing.T) {
		g := NewGraph("g", "s", "")
		if err := g.AddTask(&Task{}); err == nil {
			t.Fatal("expected error for empty task ID")
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A", Status: TaskCompleted})
		task, _ := g.Get("A")
		if task.Priority != DefaultPriority {
			t.Errorf("Priority = %d, want %d", task.Priority, DefaultPriority)
		}
		if task.TimeoutSeconds != 300 {
			t.Errorf("TimeoutSeconds = %d, want 300", task.TimeoutSeconds)
		}
		if task.RetryCount != 3 {
			t.Errorf("RetryCount = %d, want 3", task.RetryCount)
		}
		if task.Status != TaskPending {
			t.Errorf("Status = %s, want pending", task.Status)
		}
	})

	t.Run("caller copy is not aliased", func(t *testing.T) {
		in := &Task{ID: "A", Dependencies: []string{}}
		g := newTestGraph(t, in)
		in.Priority = 99
		task, _ := g.Get("A")
		if task.Priority == 99 {
			t.Error("graph task changed through caller's pointer")
		}
	})
}

// TestGraphReady covers readiness: completed dependencies only.
func TestGraphReady(t *testing.T) {
	tests := []struct {
		name  string
		setup func(t *testing.T) *Graph
		want  []string
	}{
		{
			name: "initial ready",
			setup: func(t *testing.T) *Graph {
				return newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B"}, &Task{ID: "C", Dependencies: []string{"A"}})
			},
			want: []string{"A", "B"},
		},
		{
			name: "completion unlocks dependents",
			setup: func(t *testing.T) *Graph {
				g := newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B", Dependencies: []string{"A"}})
				_ = g.MarkCompleted("A", "done")
				return g
			},
			want: []string{"B"},
		},
		{
			name: "partial completion",
			setup: func(t *testing.T) *Graph {
				g := newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B"}, &Task{ID: "C", Dependencies: []string{"A", "B"}})
				_ = g.MarkCompleted("A", "done")
				return g
			},
			want: []string{"B"},
		},
		{
			name: "failure blocks",
			setup: func(t *testing.T) *Graph {
				g := newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B", Dependencies: []string{"A"}})
				_ = g.MarkFailed("A", errors.New("boom"))
				return g
			},
			want: []string{},
		},
		{
			name: "skipped dependency does not make ready",
			setup: func(t *testing.T) *Graph {
				g := newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B", Dependencies: []string{"A"}})
				_ = g.MarkSkipped("A", nil)
				return g
			},
			want: []string{},
		},
		{
			name: "in progress not ready",
			setup: func(t *testing.T) *Graph {
				g := newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B"})
				_ = g.MarkInProgress("A")
				return g
			},
			want: []string{"B"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(tt.setup(t).Ready())
			if strings.Join(got, ",") != strings.Join(tt.want, ",") {
				t.Errorf("Ready() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGraphReadyPriorityOrder(t *testing.T) {
	g := newTestGraph(t,
		&Task{ID: "low", Priority: 1},
		&Task{ID: "high-1", Priority: 3},
		&Task{ID: "mid", Priority: 2},
		&Task{ID: "high-2", Priority: 3},
	)

	got := strings.Join(ids(g.Ready()), ",")
	if got != "high-1,high-2,mid,low" {
		t.Errorf("Ready() order = %s, want high-1,high-2,mid,low", got)
	}
}

// TestGraphReadyExhaustive checks readiness against a brute-force predicate
// over every status assignment of a small diamond.
func TestGraphReadyExhaustive(t *testing.T) {
	statuses := []TaskStatus{TaskPending, TaskInProgress, TaskCompleted, TaskFailed, TaskSkipped}
	deps := map[string][]string{"A": nil, "B": {"A"}, "C": {"A"}, "D": {"B", "C"}}
	order := []string{"A", "B", "C", "D"}

	for i := 0; i < len(statuses)*len(statuses)*len(statuses)*len(statuses); i++ {
		assign := map[string]TaskStatus{}
		n := i
		for _, id := range order {
			assign[id] = statuses[n%len(statuses)]
			n /= len(statuses)
		}

		g := NewGraph("g", "s", "")
		for _, id := range order {
			_ = g.AddTask(&Task{ID: id, Dependencies: deps[id]})
		}
		for _, id := range order {
			g.tasks[id].Status = assign[id]
		}

		want := map[string]bool{}
		for _, id := range order {
			if assign[id] != TaskPending {
				continue
			}
			ok := true
			for _, dep := range deps[id] {
				if assign[dep] != TaskCompleted {
					ok = false
				}
			}
			want[id] = ok
		}

		got := map[string]bool{}
		for _, task := range g.Ready() {
			got[task.ID] = true
		}
		for _, id := range order {
			if got[id] != want[id] {
				t.Fatalf("assignment %v: ready[%s] = %v, want %v", assign, id, got[id], want[id])
			}
		}
	}
}

func TestGraphReadyAfterBypass(t *testing.T) {
	g := newTestGraph(t,
		&Task{ID: "A"},
		&Task{ID: "B"},
		&Task{ID: "C", Dependencies: []string{"A", "B"}},
		&Task{ID: "D", Dependencies: []string{"A"}},
	)
	_ = g.MarkCompleted("A", "ok")
	_ = g.MarkSkipped("B", nil)

	got := ids(g.ReadyAfterBypass())
	if len(got) != 1 || got[0] != "C" {
		t.Errorf("ReadyAfterBypass() = %v, want [C]", got)
	}
}

func TestGraphCompleteAndFailures(t *testing.T) {
	g := newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B"})

	if g.IsComplete() {
		t.Error("fresh graph should not be complete")
	}
	_ = g.MarkCompleted("A", nil)
	_ = g.MarkFailed("B", errors.New("x"))
	if g.IsComplete() {
		t.Error("graph with a failed task should not be complete")
	}
	if !g.HasFailures() {
		t.Error("HasFailures() = false, want true")
	}
}

// TestGraphMarkTransitions tests state transition methods.
func TestGraphMarkTransitions(t *testing.T) {
	t.Run("MarkCompleted stores result", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A"})
		_ = g.MarkInProgress("A")

		if err := g.MarkCompleted("A", "done"); err != nil {
			t.Fatalf("MarkCompleted() error = %v", err)
		}
		task, _ := g.Get("A")
		if task.Status != TaskCompleted || task.Result != "done" {
			t.Errorf("task = %s/%v, want completed/done", task.Status, task.Result)
		}
	})

	t.Run("MarkFailed stores error", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B"})
		testErr := errors.New("task failed")
		_ = g.MarkInProgress("A")

		if err := g.MarkFailed("A", testErr); err != nil {
			t.Fatalf("MarkFailed() error = %v", err)
		}
		task, _ := g.Get("A")
		if task.Status != TaskFailed || task.Error != testErr {
			t.Errorf("task = %s/%v, want failed/%v", task.Status, task.Error, testErr)
		}
	})

	t.Run("unknown task", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A"})
		err := g.MarkInProgress("nonexistent")
		if !errors.Is(err, ErrTaskNotFound) {
			t.Errorf("error = %v, want ErrTaskNotFound", err)
		}
	})

	t.Run("invalid transitions", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A"}, &Task{ID: "B"}, &Task{ID: "C"})
		_ = g.MarkInProgress("A")
		if err := g.MarkSkipped("A", nil); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("in_progress -> skipped error = %v, want ErrInvalidTransition", err)
		}
		_ = g.MarkCompleted("A", nil)
		if err := g.MarkFailed("A", errors.New("late")); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("completed -> failed error = %v, want ErrInvalidTransition", err)
		}
		_ = g.MarkFailed("B", errors.New("x"))
		if err := g.MarkSkipped("B", nil); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("required failed -> skipped error = %v, want ErrInvalidTransition", err)
		}
	})

	t.Run("failed optional can be skipped", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A"})
		g.SetCompletionCriteria(CompletionCriteria{Optional: []string{"A"}})
		_ = g.MarkFailed("A", errors.New("x"))
		if err := g.MarkSkipped("A", nil); err != nil {
			t.Errorf("MarkSkipped() error = %v", err)
		}
	})

	t.Run("complete graph rejects mutation", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A"})
		_ = g.MarkCompleted("A", nil)
		if !g.IsComplete() {
			t.Fatal("graph should be complete")
		}
		if err := g.MarkStatus("A", TaskFailed, nil, errors.New("x")); !errors.Is(err, ErrGraphTerminal) {
			t.Errorf("error = %v, want ErrGraphTerminal", err)
		}
	})

	t.Run("Get returns copy", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "A", Dependencies: nil, Description: "Task A"})
		task, exists := g.Get("A")
		if !exists || task.Description != "Task A" {
			t.Fatalf("Get() = %v, %v", task, exists)
		}
		task.Status = TaskCompleted
		again, _ := g.Get("A")
		if again.Status != TaskPending {
			t.Error("mutating a returned task changed the graph")
		}
		if _, exists := g.Get("nonexistent"); exists {
			t.Error("Get() exists = true for nonexistent task")
		}
	})

	t.Run("Tasks keeps insertion order", func(t *testing.T) {
		g := newTestGraph(t, &Task{ID: "C"}, &Task{ID: "A"}, &Task{ID: "B"})
		if got := strings.Join(ids(g.Tasks()), ","); got != "C,A,B" {
			t.Errorf("Tasks() = %s, want C,A,B", got)
		}
	})
}

// TestGraphDiamond walks a diamond to completion.
func TestGraphDiamond(t *testing.T) {
	// A -> B -> D
	// A -> C -> D
	g := newTestGraph(t,
		&Task{ID: "A"},
		&Task{ID: "B", Dependencies: []string{"A"}},
		&Task{ID: "C", Dependencies: []string{"A"}},
		&Task{ID: "D", Dependencies: []string{"B", "C"}},
	)

	order, err := g.Validate()
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if order[0] != "A" || order[len(order)-1] != "D" {
		t.Errorf("order = %v, want A first and D last", order)
	}

	if got := ids(g.Ready()); len(got) != 1 || got[0] != "A" {
		t.Fatalf("Initially only A should be ready, got %v", got)
	}
	_ = g.MarkCompleted("A", "done")
	if got := ids(g.Ready()); len(got) != 2 {
		t.Fatalf("After A completes, B and C should be ready, got %v", got)
	}
	_ = g.MarkCompleted("B", "done")
	_ = g.MarkCompleted("C", "done")
	if got := ids(g.Ready()); len(got) != 1 || got[0] != "D" {
		t.Fatalf("After B and C complete, D should be ready, got %v", got)
	}
	if deps := g.Dependents("A"); len(deps) != 2 {
		t.Errorf("Dependents(A) = %v, want [B C]", deps)
	}
	_ = g.MarkCompleted("D", "done")
	if !g.IsComplete() {
		t.Error("graph should be complete")
	}
}
