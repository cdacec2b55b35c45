// Package orchestrator runs scenario task graphs against the agent team.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/agent"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/events"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scenario"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scheduler"
)

// Phase is a step of the per-request state machine.
type Phase string

const (
	PhaseReceived           Phase = "received"
	PhaseScenarioDetected   Phase = "scenario_detected"
	PhaseGraphBuilt         Phase = "graph_built"
	PhaseExecuting          Phase = "executing"
	PhaseConflictResolution Phase = "conflict_resolution"
	PhaseCompleted          Phase = "completed"
	PhaseFailed             Phase = "failed"
)

// ScenarioResult is what ExecuteScenario hands back. It is always populated,
// including on failure.
type ScenarioResult struct {
	Success        bool             `json:"success"`
	ScenarioType   scenario.Type    `json:"scenario_type"`
	RunID          string           `json:"run_id"`
	Query          string           `json:"query"`
	GraphID        string           `json:"graph_id,omitempty"`
	Description    string           `json:"description,omitempty"`
	Result         string           `json:"result,omitempty"`
	Error          string           `json:"error,omitempty"`
	Tasks          []TaskOutcome    `json:"tasks,omitempty"`
	ConflictReport *conflict.Report `json:"conflict_report,omitempty"`
	FailedRequired []string         `json:"failed_required,omitempty"`
	Phases         []Phase          `json:"phases"`
	StartedAt      time.Time        `json:"started_at"`
	Duration       time.Duration    `json:"duration"`
}

// Recorder stores finished scenario results.
type Recorder interface {
	RecordRun(ctx context.Context, result ScenarioResult) error
}

// AgentStatus describes one team member.
type AgentStatus struct {
	agent.Info
	Error string `json:"error,omitempty"`
}

// TeamStatus describes the whole team.
type TeamStatus struct {
	Agents             map[string]AgentStatus `json:"agents"`
	OrchestrationReady bool                   `json:"orchestration_ready"`
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(rt *Runtime) {
		if l != nil {
			rt.logger = l
		}
	}
}

// WithRetryPolicy sets polling and retry behavior.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(rt *Runtime) { rt.policy = p.withDefaults() }
}

// WithSleeper replaces the wall clock used for polling and backoff.
func WithSleeper(s Sleeper) Option {
	return func(rt *Runtime) {
		if s != nil {
			rt.sleeper = s
		}
	}
}

// WithEventBus publishes lifecycle events to p.
func WithEventBus(p events.Publisher) Option {
	return func(rt *Runtime) { rt.bus = p }
}

// WithRecorder records every finished scenario.
func WithRecorder(r Recorder) Option {
	return func(rt *Runtime) { rt.recorder = r }
}

// WithConcurrency caps how many tasks of one wave run at once.
func WithConcurrency(n int) Option {
	return func(rt *Runtime) { rt.concurrency = n }
}

// WithConflictRule sets the rule reconciliation tasks use.
func WithConflictRule(rule conflict.Rule) Option {
	return func(rt *Runtime) {
		if rule != "" {
			rt.rule = rule
		}
	}
}

// WithPrompts sets the prompt builder.
func WithPrompts(b PromptBuilder) Option {
	return func(rt *Runtime) { rt.prompts = b }
}

// Runtime owns the agent team and executes scenarios against it. Agents are
// long-lived and shared by every request; each request gets its own graph.
type Runtime struct {
	mu          sync.Mutex
	order       []string
	agents      map[string]agent.Agent
	sessions    map[string]agent.Session
	initErrs    map[string]error
	initialized bool

	locks    *scheduler.AgentLockManager
	breakers *CircuitBreakerRegistry
	policy   RetryPolicy
	sleeper  Sleeper
	bus      events.Publisher
	recorder Recorder
	logger   *zap.Logger

	concurrency int
	rule        conflict.Rule
	prompts     PromptBuilder
}

// NewRuntime creates a runtime with no agents.
func NewRuntime(opts ...Option) *Runtime {
	rt := &Runtime{
		agents:   make(map[string]agent.Agent),
		sessions: make(map[string]agent.Session),
		initErrs: make(map[string]error),
		locks:    scheduler.NewAgentLockManager(),
		policy:   DefaultRetryPolicy(),
		sleeper:  WallClock,
		logger:   zap.NewNop(),
		rule:     conflict.DefaultRule,
	}
	for _, opt := range opts {
		opt(rt)
	}
	rt.breakers = NewCircuitBreakerRegistry(rt.logger)
	return rt
}

// Register adds an agent under its name.
func (rt *Runtime) Register(a agent.Agent) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	name := a.Name()
	if name == "" {
		return errors.New("agent name cannot be empty")
	}
	if _, exists := rt.agents[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	rt.agents[name] = a
	rt.order = append(rt.order, name)
	rt.initialized = false
	return nil
}

// Initialize creates every registered agent. Agents already created are
// skipped. If any agent fails the runtime stays uninitialized and the
// returned error is an *AdapterInitError.
func (rt *Runtime) Initialize(ctx context.Context) error {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	if len(rt.agents) == 0 {
		return errors.New("no agents registered")
	}

	failed := make(map[string]error)
	for _, name := range rt.order {
		if _, ok := rt.sessions[name]; ok {
			continue
		}
		session, err := rt.agents[name].Create(ctx)
		if err != nil {
			rt.logger.Error("agent create failed", zap.String("agent", name), zap.Error(err))
			rt.initErrs[name] = err
			failed[name] = err
			continue
		}
		delete(rt.initErrs, name)
		rt.sessions[name] = session
		rt.logger.Info("agent created", zap.String("agent", name),
			zap.String("agent_id", session.AgentID), zap.String("thread_id", session.ThreadID))
	}

	if len(failed) > 0 {
		rt.initialized = false
		return &AdapterInitError{Failed: failed}
	}
	rt.initialized = true
	return nil
}

// DetectScenarioType classifies a request by keyword scoring.
func (rt *Runtime) DetectScenarioType(text string) scenario.Type {
	return scenario.Detect(text)
}

// ResolveConflicts reconciles two raw payloads. Malformed payloads come back
// as a failure summary.
func (rt *Runtime) ResolveConflicts(fabric, genie any, rule conflict.Rule) conflict.Summary {
	if rule == "" {
		rule = rt.rule
	}
	return conflict.ResolvePayloads(fabric, genie, rule)
}

// ExecuteScenario runs a request end to end. scenarioType may be scenario.Auto
// (or empty) to detect it from the query. The result is always populated;
// failures are reported in it, never returned.
func (rt *Runtime) ExecuteScenario(ctx context.Context, query string, scenarioType scenario.Type) (result ScenarioResult) {
	start := time.Now()
	result = ScenarioResult{
		RunID:        uuid.NewString(),
		Query:        query,
		ScenarioType: scenarioType,
		Phases:       []Phase{PhaseReceived},
		StartedAt:    start,
	}
	logger := rt.logger.With(zap.String("run_id", result.RunID))

	defer func() {
		if p := recover(); p != nil {
			logger.Error("scenario panicked", zap.Any("panic", p))
			result.Success = false
			result.Error = fmt.Sprintf("internal error: %v", p)
		}
		if !result.Success && result.Phases[len(result.Phases)-1] != PhaseFailed {
			result.Phases = append(result.Phases, PhaseFailed)
		}
		result.Duration = time.Since(start)
		rt.finish(ctx, logger, result)
	}()

	rt.mu.Lock()
	ready := rt.initialized
	team := make(map[string]member, len(rt.agents))
	for name, a := range rt.agents {
		team[name] = member{agent: a, session: rt.sessions[name]}
	}
	rt.mu.Unlock()

	if !ready {
		result.Error = ErrNotInitialized.Error()
		return result
	}

	requested := scenarioType
	if requested == "" || requested == scenario.Auto {
		scenarioType = scenario.Detect(query)
	} else if _, err := scenario.ParseType(string(requested)); err != nil {
		result.Error = fmt.Errorf("%w: %q", ErrUnknownScenario, requested).Error()
		return result
	}
	if requested == "" {
		requested = scenario.Auto
	}
	result.ScenarioType = scenarioType
	result.Phases = append(result.Phases, PhaseScenarioDetected)
	logger = logger.With(zap.String("scenario", string(scenarioType)))
	logger.Info("scenario detected", zap.String("requested", string(requested)))
	rt.publish(events.ScenarioDetectedEvent{RunID: result.RunID, Query: query, Scenario: string(scenarioType), Requested: string(requested), Timestamp: time.Now()})

	graph, err := scenario.Build(scenarioType, query)
	if err != nil {
		result.Error = err.Error()
		return result
	}
	result.GraphID = graph.ID
	result.Description = graph.Description
	result.Phases = append(result.Phases, PhaseGraphBuilt)
	rt.publish(graphBuilt(result.RunID, graph))

	r := newRunner(runnerConfig{
		RunID:            result.RunID,
		Query:            query,
		ConcurrencyLimit: rt.concurrency,
		Rule:             rt.rule,
		Prompts:          rt.prompts,
		Team:             team,
		Locks:            rt.locks,
		Caller:           &caller{policy: rt.policy, breakers: rt.breakers, sleeper: rt.sleeper, logger: logger},
		Bus:              rt.bus,
		Logger:           rt.logger,
	}, graph)

	result.Phases = append(result.Phases, PhaseExecuting)
	runErr := r.Run(ctx)

	if r.Reconciled() {
		result.Phases = append(result.Phases, PhaseConflictResolution)
	}
	result.Tasks = r.Outcomes()
	result.ConflictReport = reportFrom(graph)
	result.FailedRequired = graph.FailedRequired()
	result.Result = synthesize(graph)

	switch {
	case runErr != nil:
		result.Error = runErr.Error()
	case len(result.FailedRequired) > 0:
		result.Error = requiredFailures(graph, result.FailedRequired)
	case !graph.RequiredSatisfied():
		result.Error = "required tasks did not complete: " + strings.Join(graph.Pending(), ", ")
	default:
		result.Success = true
		result.Phases = append(result.Phases, PhaseCompleted)
	}
	return result
}

func (rt *Runtime) finish(ctx context.Context, logger *zap.Logger, result ScenarioResult) {
	if result.Success {
		logger.Info("scenario completed", zap.Duration("duration", result.Duration))
	} else {
		logger.Warn("scenario failed", zap.String("error", result.Error), zap.Duration("duration", result.Duration))
	}
	rt.publish(events.ScenarioFinishedEvent{
		RunID:     result.RunID,
		Scenario:  string(result.ScenarioType),
		Success:   result.Success,
		Err:       result.Error,
		Duration:  result.Duration,
		Timestamp: time.Now(),
	})

	if rt.recorder != nil {
		// Recording must not depend on the request context having time left
		if err := rt.recorder.RecordRun(context.WithoutCancel(ctx), result); err != nil {
			logger.Warn("failed to record run", zap.Error(err))
		}
	}
}

// Cleanup tears down every agent. Failures are logged, never returned.
func (rt *Runtime) Cleanup(ctx context.Context) map[string]bool {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	results := make(map[string]bool, len(rt.agents))
	for _, name := range rt.order {
		ok := rt.agents[name].Cleanup(ctx)
		if !ok {
			rt.logger.Warn("agent cleanup failed", zap.String("agent", name))
		}
		results[name] = ok
		delete(rt.sessions, name)
	}
	rt.initialized = false
	return results
}

// TeamStatus reports every agent and whether scenarios can run.
func (rt *Runtime) TeamStatus() TeamStatus {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	status := TeamStatus{
		Agents:             make(map[string]AgentStatus, len(rt.agents)),
		OrchestrationReady: rt.initialized,
	}
	for _, name := range rt.order {
		s := AgentStatus{Info: rt.agents[name].Info()}
		if err, ok := rt.initErrs[name]; ok {
			s.Error = err.Error()
		}
		status.Agents[name] = s
	}
	return status
}

// Agents returns the registered agent names in registration order.
func (rt *Runtime) Agents() []string {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return append([]string(nil), rt.order...)
}

func (rt *Runtime) publish(ev events.Event) {
	if rt.bus != nil {
		rt.bus.Publish(ev)
	}
}

func graphBuilt(runID string, g *scheduler.Graph) events.GraphBuiltEvent {
	tasks := g.Tasks()
	infos := make([]events.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		infos = append(infos, events.TaskInfo{
			ID:           t.ID,
			Agent:        t.AgentName,
			Description:  t.Description,
			Dependencies: t.Dependencies,
			Optional:     g.IsOptional(t.ID),
		})
	}
	return events.GraphBuiltEvent{RunID: runID, GraphID: g.ID, Tasks: infos, Timestamp: time.Now()}
}

// reportFrom returns the report of the first completed reconciliation task.
func reportFrom(g *scheduler.Graph) *conflict.Report {
	for _, t := range g.Tasks() {
		if !t.Type.IsReconciliation() || t.Status != scheduler.TaskCompleted {
			continue
		}
		if report, ok := t.Result.(conflict.Report); ok {
			return &report
		}
	}
	return nil
}

// synthesize joins the results of completed tasks into the final answer.
func synthesize(g *scheduler.Graph) string {
	var sections []string
	for _, t := range g.Tasks() {
		if t.Status != scheduler.TaskCompleted {
			continue
		}
		sections = append(sections, fmt.Sprintf("## %s\n%s", t.Description, RenderResult(t.Result)))
	}
	return strings.Join(sections, "\n\n")
}

func requiredFailures(g *scheduler.Graph, failed []string) string {
	sorted := append([]string(nil), failed...)
	sort.Strings(sorted)
	msgs := make([]string, 0, len(sorted))
	for _, id := range sorted {
		t, _ := g.Get(id)
		if t != nil && t.Error != nil {
			msgs = append(msgs, t.Error.Error())
			continue
		}
		msgs = append(msgs, fmt.Sprintf("task %q failed", id))
	}
	return "required tasks failed: " + strings.Join(msgs, "; ")
}
