package events

import (
	"time"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	Topic() string
	TaskID() string
}

// Topic constants
const (
	TopicTask     = "task"
	TopicScenario = "scenario"
)

// Event type constants
const (
	EventTypeScenarioDetected = "scenario.detected"
	EventTypeGraphBuilt       = "scenario.graph_built"
	EventTypeGraphProgress    = "scenario.progress"
	EventTypeScenarioFinished = "scenario.finished"
	EventTypeTaskStarted      = "task.started"
	EventTypeTaskRetry        = "task.retry"
	EventTypeTaskCompleted    = "task.completed"
	EventTypeTaskFailed       = "task.failed"
	EventTypeTaskSkipped      = "task.skipped"
	EventTypeConflictResolved = "task.conflict_resolved"
)

// ScenarioDetectedEvent is published once the scenario for a query is known.
type ScenarioDetectedEvent struct {
	RunID     string
	Query     string
	Scenario  string
	Requested string // "auto" when detection ran
	Timestamp time.Time
}

func (e ScenarioDetectedEvent) EventType() string { return EventTypeScenarioDetected }
func (e ScenarioDetectedEvent) Topic() string     { return TopicScenario }
func (e ScenarioDetectedEvent) TaskID() string    { return "" }

// TaskInfo is the static description of one graph node.
type TaskInfo struct {
	ID           string
	Agent        string
	Description  string
	Dependencies []string
	Optional     bool
}

// GraphBuiltEvent carries the compiled graph so listeners can lay it out.
type GraphBuiltEvent struct {
	RunID     string
	GraphID   string
	Tasks     []TaskInfo
	Timestamp time.Time
}

func (e GraphBuiltEvent) EventType() string { return EventTypeGraphBuilt }
func (e GraphBuiltEvent) Topic() string     { return TopicScenario }
func (e GraphBuiltEvent) TaskID() string    { return "" }

// TaskStartedEvent is published when a task attempt begins.
type TaskStartedEvent struct {
	ID        string
	Agent     string
	Attempt   int
	Timestamp time.Time
}

func (e TaskStartedEvent) EventType() string { return EventTypeTaskStarted }
func (e TaskStartedEvent) Topic() string     { return TopicTask }
func (e TaskStartedEvent) TaskID() string    { return e.ID }

// TaskRetryEvent is published when a failed attempt will be retried.
type TaskRetryEvent struct {
	ID        string
	Agent     string
	Attempt   int
	Err       error
	Timestamp time.Time
}

func (e TaskRetryEvent) EventType() string { return EventTypeTaskRetry }
func (e TaskRetryEvent) Topic() string     { return TopicTask }
func (e TaskRetryEvent) TaskID() string    { return e.ID }

// TaskCompletedEvent is published when a task completes successfully.
type TaskCompletedEvent struct {
	ID        string
	Result    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) EventType() string { return EventTypeTaskCompleted }
func (e TaskCompletedEvent) Topic() string     { return TopicTask }
func (e TaskCompletedEvent) TaskID() string    { return e.ID }

// TaskFailedEvent is published when a task fails.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) EventType() string { return EventTypeTaskFailed }
func (e TaskFailedEvent) Topic() string     { return TopicTask }
func (e TaskFailedEvent) TaskID() string    { return e.ID }

// TaskSkippedEvent is published when an optional task is set aside.
type TaskSkippedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskSkippedEvent) EventType() string { return EventTypeTaskSkipped }
func (e TaskSkippedEvent) Topic() string     { return TopicTask }
func (e TaskSkippedEvent) TaskID() string    { return e.ID }

// ConflictResolvedEvent is published after a reconciliation task compared
// the two analytics sources.
type ConflictResolvedEvent struct {
	ID               string
	Rule             string
	ConflictCount    int
	DataQualityScore float64
	Timestamp        time.Time
}

func (e ConflictResolvedEvent) EventType() string { return EventTypeConflictResolved }
func (e ConflictResolvedEvent) Topic() string     { return TopicTask }
func (e ConflictResolvedEvent) TaskID() string    { return e.ID }

// GraphProgressEvent is published whenever task counts change.
type GraphProgressEvent struct {
	Total      int
	Completed  int
	InProgress int
	Failed     int
	Skipped    int
	Pending    int
	Timestamp  time.Time
}

func (e GraphProgressEvent) EventType() string { return EventTypeGraphProgress }
func (e GraphProgressEvent) Topic() string     { return TopicScenario }
func (e GraphProgressEvent) TaskID() string    { return "" }

// ScenarioFinishedEvent is the last event of a run.
type ScenarioFinishedEvent struct {
	RunID     string
	Scenario  string
	Success   bool
	Err       string
	Duration  time.Duration
	Timestamp time.Time
}

func (e ScenarioFinishedEvent) EventType() string { return EventTypeScenarioFinished }
func (e ScenarioFinishedEvent) Topic() string     { return TopicScenario }
func (e ScenarioFinishedEvent) TaskID() string    { return "" }
