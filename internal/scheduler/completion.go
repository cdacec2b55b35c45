package scheduler

import "fmt"

// Progress counts tasks by status.
type Progress struct {
	Total      int
	Pending    int
	InProgress int
	Completed  int
	Failed     int
	Skipped    int
}

// Done returns the number of tasks in a terminal status.
func (p Progress) Done() int {
	return p.Completed + p.Failed + p.Skipped
}

// Progress returns the current status counts.
func (g *Graph) Progress() Progress {
	g.mu.RLock()
	defer g.mu.RUnlock()

	p := Progress{Total: len(g.tasks)}
	for _, task := range g.tasks {
		switch task.Status {
		case TaskPending:
			p.Pending++
		case TaskInProgress:
			p.InProgress++
		case TaskCompleted:
			p.Completed++
		case TaskFailed:
			p.Failed++
		case TaskSkipped:
			p.Skipped++
		}
	}
	return p
}

// SkipFailedOptional converts failed optional tasks to skipped, then skips
// pending optional tasks whose producers were failed or skipped, repeating
// until nothing changes. Returns the IDs that were skipped, in insertion order.
//
// Pending required tasks are never touched here; a required task blocked by a
// failed producer stays pending.
func (g *Graph) SkipFailedOptional() []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	var skipped []string
	for changed := true; changed; {
		changed = false
		for _, taskID := range g.order {
			task := g.tasks[taskID]
			if !g.optional[taskID] {
				continue
			}
			switch task.Status {
			case TaskFailed:
				task.Status = TaskSkipped
			case TaskPending:
				producer := g.blockingProducer(task)
				if producer == "" {
					continue
				}
				task.Status = TaskSkipped
				task.Error = fmt.Errorf("dependency %q did not complete", producer)
			default:
				continue
			}
			skipped = append(skipped, taskID)
			changed = true
		}
	}
	return skipped
}

// blockingProducer returns the first dependency that ended failed or skipped.
func (g *Graph) blockingProducer(task *Task) string {
	for _, depID := range task.Dependencies {
		dep, exists := g.tasks[depID]
		if !exists {
			return depID
		}
		if dep.Status == TaskFailed || dep.Status == TaskSkipped {
			return depID
		}
	}
	return ""
}

// FailedRequired returns required tasks currently failed, in criteria order.
func (g *Graph) FailedRequired() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var failed []string
	for _, id := range g.criteria.Required {
		if task, ok := g.tasks[id]; ok && task.Status == TaskFailed {
			failed = append(failed, id)
		}
	}
	return failed
}

// RequiredSatisfied reports whether every required task completed.
func (g *Graph) RequiredSatisfied() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	for _, id := range g.criteria.Required {
		task, ok := g.tasks[id]
		if !ok || task.Status != TaskCompleted {
			return false
		}
	}
	return true
}

// Pending returns the IDs of tasks still pending, in insertion order.
func (g *Graph) Pending() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var pending []string
	for _, taskID := range g.order {
		if g.tasks[taskID].Status == TaskPending {
			pending = append(pending, taskID)
		}
	}
	return pending
}
