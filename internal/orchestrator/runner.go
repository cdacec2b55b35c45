package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/agent"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/events"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scheduler"
)

// TaskOutcome is the final state of one task in a scenario run.
type TaskOutcome struct {
	TaskID      string        `json:"task_id"`
	Agent       string        `json:"agent"`
	Description string        `json:"description"`
	Status      string        `json:"status"`
	Optional    bool          `json:"optional"`
	Attempts    int           `json:"attempts"`
	Result      any           `json:"result,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// member is a registered agent with the session Create returned.
type member struct {
	agent   agent.Agent
	session agent.Session
}

// runnerConfig configures the wave runner.
type runnerConfig struct {
	RunID            string
	Query            string
	ConcurrencyLimit int // Max concurrent tasks per wave (default 4)
	Rule             conflict.Rule
	Prompts          PromptBuilder
	Team             map[string]member
	Locks            *scheduler.AgentLockManager
	Caller           *caller
	Bus              events.Publisher
	Logger           *zap.Logger
}

// runner executes one graph wave by wave. Tasks within a wave run
// concurrently; the agent lock manager keeps each agent to one call at a time.
type runner struct {
	cfg    runnerConfig
	graph  *scheduler.Graph
	exec   *scheduler.Executor
	logger *zap.Logger

	mu         sync.Mutex
	attempts   map[string]int
	durations  map[string]time.Duration
	reconciled bool
}

func newRunner(cfg runnerConfig, graph *scheduler.Graph) *runner {
	if cfg.ConcurrencyLimit <= 0 {
		cfg.ConcurrencyLimit = 4
	}
	if cfg.Rule == "" {
		cfg.Rule = conflict.DefaultRule
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	r := &runner{
		cfg:       cfg,
		graph:     graph,
		logger:    cfg.Logger.With(zap.String("run_id", cfg.RunID), zap.String("scenario", graph.Scenario)),
		attempts:  make(map[string]int),
		durations: make(map[string]time.Duration),
	}
	r.exec = scheduler.NewExecutor(graph, cfg.Locks, r.runTask)
	return r
}

// Run executes eligible tasks until the graph completes or nothing more can
// run. A failed required task ends the run without error; the caller reads
// the outcome from the graph. Only cancellation and deadlock are errors.
func (r *runner) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.graph.IsComplete() {
			return nil
		}

		ready := r.graph.Ready()
		if len(ready) == 0 {
			r.skipOptional()
			if r.graph.IsComplete() {
				return nil
			}
			ready = r.graph.ReadyAfterBypass()
		}

		if len(ready) == 0 {
			if failed := r.graph.FailedRequired(); len(failed) > 0 {
				r.logger.Warn("required tasks failed, stopping", zap.Strings("failed", failed), zap.Strings("pending", r.graph.Pending()))
				return nil
			}
			return &SchedulingDeadlockError{GraphID: r.graph.ID, Pending: r.graph.Pending()}
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.cfg.ConcurrencyLimit)

		for _, task := range ready {
			t := task
			g.Go(func() error {
				if err := r.exec.ExecuteTask(gctx, t.ID); err != nil {
					r.logger.Error("task not started", zap.String("task_id", t.ID), zap.Error(err))
					return nil
				}
				r.announce(t.ID)
				return nil
			})
		}

		// Task errors live in the graph, so Wait only surfaces cancellation
		_ = g.Wait()
		r.publishProgress()
	}
}

// skipOptional absorbs failures of optional tasks.
func (r *runner) skipOptional() {
	for _, id := range r.graph.SkipFailedOptional() {
		task, _ := r.graph.Get(id)
		reason := "optional task failed"
		if task != nil && task.Error != nil {
			reason = task.Error.Error()
		}
		r.logger.Info("optional task skipped", zap.String("task_id", id), zap.String("reason", reason))
		r.publish(events.TaskSkippedEvent{ID: id, Reason: reason, Timestamp: time.Now()})
	}
	r.publishProgress()
}

// announce publishes the settled state of a task.
func (r *runner) announce(taskID string) {
	task, ok := r.graph.Get(taskID)
	if !ok {
		return
	}
	duration := r.duration(taskID)

	switch task.Status {
	case scheduler.TaskCompleted:
		r.logger.Info("task completed", zap.String("task_id", taskID), zap.String("agent", task.AgentName), zap.Duration("duration", duration))
		r.publish(events.TaskCompletedEvent{ID: taskID, Result: RenderResult(task.Result), Duration: duration, Timestamp: time.Now()})
	case scheduler.TaskFailed:
		r.logger.Warn("task failed", zap.String("task_id", taskID), zap.String("agent", task.AgentName), zap.Error(task.Error))
		r.publish(events.TaskFailedEvent{ID: taskID, Err: task.Error, Duration: duration, Timestamp: time.Now()})
	}
}

// runTask is the scheduler.RunFunc for every task of the graph.
func (r *runner) runTask(ctx context.Context, task *scheduler.Task) (any, error) {
	start := time.Now()
	defer func() { r.setDuration(task.ID, time.Since(start)) }()

	r.setAttempts(task.ID, 1)
	r.publish(events.TaskStartedEvent{ID: task.ID, Agent: task.AgentName, Attempt: 1, Timestamp: start})

	if task.Type.IsReconciliation() {
		return r.reconcile(task)
	}

	m, ok := r.cfg.Team[task.AgentName]
	if !ok {
		return nil, &TaskExecutionError{TaskID: task.ID, Agent: task.AgentName, Attempts: 1,
			Err: fmt.Errorf("no agent registered as %q", task.AgentName)}
	}

	prompt := r.cfg.Prompts.Build(r.graph, task, r.cfg.Query)
	onRetry := func(attempt int, err error) {
		r.setAttempts(task.ID, attempt)
		r.logger.Info("retrying task", zap.String("task_id", task.ID), zap.String("agent", task.AgentName), zap.Int("attempt", attempt))
		r.publish(events.TaskRetryEvent{ID: task.ID, Agent: task.AgentName, Attempt: attempt, Err: err, Timestamp: time.Now()})
	}

	response, attempts, err := r.cfg.Caller.call(ctx, m.agent, m.session.ThreadID, task, prompt, onRetry)
	r.setAttempts(task.ID, attempts)
	if err != nil {
		return nil, &TaskExecutionError{TaskID: task.ID, Agent: task.AgentName, Attempts: attempts, Err: err}
	}
	return response, nil
}

// reconcile feeds the fabric and genie results upstream of task into the
// conflict resolver and returns the report.
func (r *runner) reconcile(task *scheduler.Task) (any, error) {
	var fabric, genie any
	var haveFabric, haveGenie bool
	for _, depID := range task.Dependencies {
		dep, ok := r.graph.Get(depID)
		if !ok || dep.Status != scheduler.TaskCompleted {
			continue
		}
		switch dep.Type {
		case scheduler.TaskTaxiAnalysisFabric:
			fabric, haveFabric = dep.Result, true
		case scheduler.TaskTaxiAnalysisGenie:
			genie, haveGenie = dep.Result, true
		}
	}
	if !haveFabric || !haveGenie {
		return nil, &TaskExecutionError{TaskID: task.ID, Agent: task.AgentName, Attempts: 1,
			Err: errors.New("reconciliation needs completed fabric and genie results")}
	}

	r.mu.Lock()
	r.reconciled = true
	r.mu.Unlock()

	summary := conflict.ResolvePayloads(fabric, genie, r.cfg.Rule)
	if summary.Err != nil {
		r.logger.Warn("conflict resolution failed", zap.String("task_id", task.ID), zap.Error(summary.Err))
		return nil, &TaskExecutionError{TaskID: task.ID, Agent: task.AgentName, Attempts: 1,
			Err: fmt.Errorf("conflict resolution failed: %w", summary.Err)}
	}

	report := *summary.Details
	r.logger.Info(summary.Summary, zap.String("task_id", task.ID), zap.String("rule", string(report.ResolutionRule)),
		zap.Float64("data_quality_score", report.DataQualityScore))
	r.publish(events.ConflictResolvedEvent{
		ID:               task.ID,
		Rule:             string(report.ResolutionRule),
		ConflictCount:    report.ConflictCount,
		DataQualityScore: report.DataQualityScore,
		Timestamp:        time.Now(),
	})
	return report, nil
}

// Outcomes returns the state of every task in graph order.
func (r *runner) Outcomes() []TaskOutcome {
	tasks := r.graph.Tasks()
	outcomes := make([]TaskOutcome, 0, len(tasks))

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tasks {
		o := TaskOutcome{
			TaskID:      t.ID,
			Agent:       t.AgentName,
			Description: t.Description,
			Status:      t.Status.String(),
			Optional:    r.graph.IsOptional(t.ID),
			Attempts:    r.attempts[t.ID],
			Result:      t.Result,
			Duration:    r.durations[t.ID],
		}
		if t.Error != nil {
			o.Error = t.Error.Error()
		}
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// Reconciled reports whether a reconciliation task ran.
func (r *runner) Reconciled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reconciled
}

func (r *runner) setAttempts(taskID string, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[taskID] = n
}

func (r *runner) setDuration(taskID string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.durations[taskID] = d
}

func (r *runner) duration(taskID string) time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.durations[taskID]
}

func (r *runner) publish(ev events.Event) {
	if r.cfg.Bus != nil {
		r.cfg.Bus.Publish(ev)
	}
}

func (r *runner) publishProgress() {
	p := r.graph.Progress()
	r.publish(events.GraphProgressEvent{
		Total:      p.Total,
		Completed:  p.Completed,
		InProgress: p.InProgress,
		Failed:     p.Failed,
		Skipped:    p.Skipped,
		Pending:    p.Pending,
		Timestamp:  time.Now(),
	})
}
