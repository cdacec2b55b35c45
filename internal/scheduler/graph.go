package scheduler

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gammazero/toposort"
)

var (
	// ErrTaskNotFound is returned when a task ID is not part of the graph.
	ErrTaskNotFound = errors.New("task not found")
	// ErrInvalidTransition is returned for a status change the graph does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrGraphTerminal is returned when mutating a graph that already completed.
	ErrGraphTerminal = errors.New("graph is complete")
)

// CompletionCriteria splits the graph's tasks into those that must succeed
// and those whose failure is absorbed.
type CompletionCriteria struct {
	Required []string
	Optional []string
}

// Graph is a directed acyclic graph of tasks compiled for one request.
// Its shape is fixed once built; only task state changes afterwards.
type Graph struct {
	ID          string
	Scenario    string
	Description string

	mu         sync.RWMutex
	order      []string            // Insertion order, used to break priority ties
	tasks      map[string]*Task    // All tasks indexed by ID
	dependents map[string][]string // Maps taskID -> list of tasks that depend on it
	criteria   CompletionCriteria
	optional   map[string]bool
}

// NewGraph creates an empty graph with the given metadata.
func NewGraph(id, scenario, description string) *Graph {
	return &Graph{
		ID:          id,
		Scenario:    scenario,
		Description: description,
		tasks:       make(map[string]*Task),
		dependents:  make(map[string][]string),
		optional:    make(map[string]bool),
	}
}

// AddTask adds a task to the graph. Returns error if task ID already exists.
// Zero-valued policy fields receive their defaults and the status is reset to pending.
func (g *Graph) AddTask(task *Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if task.ID == "" {
		return errors.New("task ID must not be empty")
	}
	if _, exists := g.tasks[task.ID]; exists {
		return fmt.Errorf("task with ID %q already exists", task.ID)
	}

	t := cloneTask(task)
	t.applyDefaults()
	t.Status = TaskPending
	t.Result = nil
	t.Error = nil

	g.tasks[t.ID] = t
	g.order = append(g.order, t.ID)

	for _, depID := range t.Dependencies {
		g.dependents[depID] = append(g.dependents[depID], t.ID)
	}

	return nil
}

// SetCompletionCriteria records which tasks are required and which are optional.
func (g *Graph) SetCompletionCriteria(c CompletionCriteria) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.criteria = CompletionCriteria{
		Required: append([]string(nil), c.Required...),
		Optional: append([]string(nil), c.Optional...),
	}
	g.optional = make(map[string]bool, len(c.Optional))
	for _, id := range c.Optional {
		g.optional[id] = true
	}
}

// CompletionCriteria returns a copy of the graph's completion criteria.
func (g *Graph) CompletionCriteria() CompletionCriteria {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return CompletionCriteria{
		Required: append([]string(nil), g.criteria.Required...),
		Optional: append([]string(nil), g.criteria.Optional...),
	}
}

// IsOptional reports whether the task is listed as optional.
func (g *Graph) IsOptional(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.optional[taskID]
}

// Validate runs topological sort using gammazero/toposort.
// Returns ordered task IDs or error if a cycle is detected.
// Also verifies that every dependency and completion criteria entry names a task in the graph.
func (g *Graph) Validate() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, taskID := range g.order {
		for _, depID := range g.tasks[taskID].Dependencies {
			if _, exists := g.tasks[depID]; !exists {
				return nil, fmt.Errorf("task %q depends on non-existent task %q", taskID, depID)
			}
		}
	}
	for _, id := range append(append([]string(nil), g.criteria.Required...), g.criteria.Optional...) {
		if _, exists := g.tasks[id]; !exists {
			return nil, fmt.Errorf("completion criteria references non-existent task %q", id)
		}
	}

	var edges []toposort.Edge
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if len(task.Dependencies) == 0 {
			// Edge from nil keeps isolated tasks in the result
			edges = append(edges, toposort.Edge{nil, taskID})
			continue
		}
		for _, depID := range task.Dependencies {
			edges = append(edges, toposort.Edge{depID, taskID})
		}
	}

	sorted, err := toposort.Toposort(edges)
	if err != nil {
		return nil, fmt.Errorf("graph %q contains cycle: %w", g.ID, err)
	}

	order := make([]string, 0, len(sorted))
	for _, id := range sorted {
		if id != nil {
			order = append(order, id.(string))
		}
	}

	if len(order) != len(g.tasks) {
		found := make(map[string]bool, len(order))
		for _, id := range order {
			found[id] = true
		}
		var missing []string
		for _, taskID := range g.order {
			if !found[taskID] {
				missing = append(missing, taskID)
			}
		}
		return nil, fmt.Errorf("topological sort lost %d tasks: %s", len(missing), strings.Join(missing, ", "))
	}

	return order, nil
}

// Ready returns every pending task whose dependencies have all completed,
// highest priority first. Ties keep insertion order.
func (g *Graph) Ready() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.collect(func(task *Task) bool {
		return g.depsMatch(task, func(s TaskStatus) bool { return s == TaskCompleted })
	})
}

// ReadyAfterBypass returns pending tasks that are blocked only by skipped
// dependencies: every dependency is completed or skipped and at least one is skipped.
func (g *Graph) ReadyAfterBypass() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.collect(func(task *Task) bool {
		skipped := false
		ok := g.depsMatch(task, func(s TaskStatus) bool {
			if s == TaskSkipped {
				skipped = true
				return true
			}
			return s == TaskCompleted
		})
		return ok && skipped
	})
}

func (g *Graph) collect(match func(*Task) bool) []*Task {
	ready := []*Task{}
	for _, taskID := range g.order {
		task := g.tasks[taskID]
		if task.Status != TaskPending {
			continue
		}
		if match(task) {
			ready = append(ready, cloneTask(task))
		}
	}

	sort.SliceStable(ready, func(i, j int) bool {
		return ready[i].Priority > ready[j].Priority
	})
	return ready
}

func (g *Graph) depsMatch(task *Task, ok func(TaskStatus) bool) bool {
	for _, depID := range task.Dependencies {
		dep, exists := g.tasks[depID]
		if !exists || !ok(dep.Status) {
			return false
		}
	}
	return true
}

// IsComplete reports whether every task is completed or skipped.
func (g *Graph) IsComplete() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isComplete()
}

func (g *Graph) isComplete() bool {
	for _, task := range g.tasks {
		if task.Status != TaskCompleted && task.Status != TaskSkipped {
			return false
		}
	}
	return true
}

// HasFailures reports whether any task is currently failed.
func (g *Graph) HasFailures() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, task := range g.tasks {
		if task.Status == TaskFailed {
			return true
		}
	}
	return false
}

// MarkStatus moves a task to a new status, recording result or error.
//
// Allowed transitions:
//   - pending -> in_progress, completed, failed, skipped
//   - in_progress -> completed, failed
//   - failed -> skipped, for optional tasks only
//
// A complete graph rejects every mutation.
func (g *Graph) MarkStatus(taskID string, status TaskStatus, result any, err error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return fmt.Errorf("task %q: %w", taskID, ErrTaskNotFound)
	}
	if g.isComplete() {
		return fmt.Errorf("task %q: %w", taskID, ErrGraphTerminal)
	}
	if !g.allowed(task, status) {
		return fmt.Errorf("task %q %s -> %s: %w", taskID, task.Status, status, ErrInvalidTransition)
	}

	task.Status = status
	switch status {
	case TaskCompleted:
		task.Result = result
		task.Error = nil
	case TaskFailed:
		task.Error = err
	case TaskSkipped:
		if err != nil {
			task.Error = err
		}
	}
	return nil
}

func (g *Graph) allowed(task *Task, to TaskStatus) bool {
	switch task.Status {
	case TaskPending:
		return to != TaskPending
	case TaskInProgress:
		return to == TaskCompleted || to == TaskFailed
	case TaskFailed:
		return to == TaskSkipped && g.optional[task.ID]
	}
	return false
}

// MarkInProgress sets task status to in_progress.
func (g *Graph) MarkInProgress(taskID string) error {
	return g.MarkStatus(taskID, TaskInProgress, nil, nil)
}

// MarkCompleted sets task status to completed and stores result.
func (g *Graph) MarkCompleted(taskID string, result any) error {
	return g.MarkStatus(taskID, TaskCompleted, result, nil)
}

// MarkFailed sets task status to failed and stores error.
// Dependents of a failed task never become ready.
func (g *Graph) MarkFailed(taskID string, err error) error {
	return g.MarkStatus(taskID, TaskFailed, nil, err)
}

// MarkSkipped sets task status to skipped.
func (g *Graph) MarkSkipped(taskID string, reason error) error {
	return g.MarkStatus(taskID, TaskSkipped, nil, reason)
}

// Get returns task by ID.
func (g *Graph) Get(taskID string) (*Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	task, exists := g.tasks[taskID]
	if !exists {
		return nil, false
	}
	return cloneTask(task), true
}

// Tasks returns all tasks in insertion order.
func (g *Graph) Tasks() []*Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*Task, 0, len(g.order))
	for _, taskID := range g.order {
		tasks = append(tasks, cloneTask(g.tasks[taskID]))
	}
	return tasks
}

// Dependents returns the IDs of tasks that list taskID as a dependency.
func (g *Graph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.dependents[taskID]...)
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tasks)
}
