package scheduler

import "fmt"

// TaskType identifies which kind of agent work a task performs.
type TaskType string

const (
	TaskHotelSearch        TaskType = "hotel_search"
	TaskTaxiAnalysisFabric TaskType = "taxi_analysis_fabric"
	TaskTaxiAnalysisGenie  TaskType = "taxi_analysis_genie"
	TaskEmailSend          TaskType = "email_send"
	TaskDataFusion         TaskType = "data_fusion"
	TaskConflictResolution TaskType = "conflict_resolution"
)

// IsAnalytic reports whether tasks of this type talk to a redundant taxi data
// source. Only analytic tasks are retried.
func (t TaskType) IsAnalytic() bool {
	return t == TaskTaxiAnalysisFabric || t == TaskTaxiAnalysisGenie
}

// IsReconciliation reports whether the task is resolved locally by merging
// two upstream results instead of calling an agent.
func (t TaskType) IsReconciliation() bool {
	return t == TaskDataFusion || t == TaskConflictResolution
}

// TaskStatus represents the current state of a task.
type TaskStatus int

const (
	TaskPending    TaskStatus = iota // Waiting for dependencies
	TaskInProgress                   // Dispatched to an agent
	TaskCompleted                    // Finished successfully
	TaskFailed                       // Finished with error
	TaskSkipped                      // Bypassed, counts as terminal
)

var statusNames = map[TaskStatus]string{
	TaskPending:    "pending",
	TaskInProgress: "in_progress",
	TaskCompleted:  "completed",
	TaskFailed:     "failed",
	TaskSkipped:    "skipped",
}

func (s TaskStatus) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Terminal reports whether the status can no longer change during normal execution.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// Default execution policy applied when a task leaves these fields zero.
const (
	DefaultPriority       = 1
	DefaultTimeoutSeconds = 300
	DefaultRetryCount     = 3
)

// Task is one unit of work assigned to exactly one agent.
type Task struct {
	ID             string            // Unique within a graph
	Type           TaskType          // Kind of work
	AgentName      string            // Key used to look up the executing agent
	Description    string            // Human-readable summary
	InputSchema    map[string]string // Field name -> semantic type (documentation only)
	OutputSchema   map[string]string // Field name -> semantic type (documentation only)
	Dependencies   []string          // Task IDs that must complete first
	Priority       int               // Higher runs first among ready tasks
	TimeoutSeconds int               // Hard cap on a single agent call
	RetryCount     int               // Max attempts for retryable task types, never above the runtime's policy
	Status         TaskStatus
	Result         any   // Populated once completed
	Error          error // Populated once failed
}

// applyDefaults fills zero-valued policy fields.
func (t *Task) applyDefaults() {
	if t.Priority == 0 {
		t.Priority = DefaultPriority
	}
	if t.TimeoutSeconds == 0 {
		t.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if t.RetryCount == 0 {
		t.RetryCount = DefaultRetryCount
	}
}

func cloneTask(task *Task) *Task {
	if task == nil {
		return nil
	}

	cp := *task
	if task.Dependencies != nil {
		cp.Dependencies = append([]string(nil), task.Dependencies...)
	}
	cp.InputSchema = cloneSchema(task.InputSchema)
	cp.OutputSchema = cloneSchema(task.OutputSchema)
	return &cp
}

func cloneSchema(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
