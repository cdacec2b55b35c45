package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/agent"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scheduler"
)

// RetryPolicy configures how agent runs are polled and retried.
type RetryPolicy struct {
	MaxAttempts  int           // Attempts for analytic tasks (default 3), capped by Task.RetryCount
	Backoff      time.Duration // Wait between analytic attempts (default 2s)
	PollInterval time.Duration // Wait between polls of a pending run (default 1s)
	MaxPolls     int           // Poll cap when a task declares no timeout (default 300)
}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:  3,
		Backoff:      2 * time.Second,
		PollInterval: time.Second,
		MaxPolls:     300,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	d := DefaultRetryPolicy()
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Backoff <= 0 {
		p.Backoff = d.Backoff
	}
	if p.PollInterval <= 0 {
		p.PollInterval = d.PollInterval
	}
	if p.MaxPolls <= 0 {
		p.MaxPolls = d.MaxPolls
	}
	return p
}

// maxPolls derives the poll budget of one attempt from the task timeout.
func (p RetryPolicy) maxPolls(task *scheduler.Task) int {
	if task.TimeoutSeconds <= 0 {
		return p.MaxPolls
	}
	n := int(time.Duration(task.TimeoutSeconds) * time.Second / p.PollInterval)
	if n < 1 {
		n = 1
	}
	return n
}

// Sleeper waits for a duration or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to Sleeper.
type SleeperFunc func(ctx context.Context, d time.Duration) error

func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error { return f(ctx, d) }

// WallClock sleeps on real timers.
var WallClock Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// sleeperTimer drives backoff waits through a Sleeper.
type sleeperTimer struct {
	sleeper Sleeper
	c       chan time.Time
	cancel  context.CancelFunc
}

func newSleeperTimer(s Sleeper) *sleeperTimer {
	return &sleeperTimer{sleeper: s, c: make(chan time.Time, 1)}
}

func (t *sleeperTimer) Start(d time.Duration) {
	t.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	c := t.c
	go func() {
		if t.sleeper.Sleep(ctx, d) == nil {
			select {
			case c <- time.Now():
			default:
			}
		}
	}()
}

func (t *sleeperTimer) Stop() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
}

func (t *sleeperTimer) C() <-chan time.Time { return t.c }

// CircuitBreakerRegistry manages per-agent circuit breakers.
type CircuitBreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
	logger   *zap.Logger
}

// NewCircuitBreakerRegistry creates a new circuit breaker registry.
func NewCircuitBreakerRegistry(logger *zap.Logger) *CircuitBreakerRegistry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CircuitBreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
		logger:   logger,
	}
}

// Get returns the circuit breaker for the given agent, creating it on first use.
func (r *CircuitBreakerRegistry) Get(agentName string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[agentName]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        agentName,
		MaxRequests: 1,
		Interval:    0, // Don't clear counts automatically
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			r.logger.Warn("circuit breaker state change",
				zap.String("agent", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
		IsSuccessful: func(err error) bool {
			// Caller cancellation is not the agent's fault
			return err == nil || errors.Is(err, context.Canceled)
		},
	})

	r.breakers[agentName] = cb
	return cb
}

// State reports the breaker state of an agent, closed if never used.
func (r *CircuitBreakerRegistry) State(agentName string) gobreaker.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cb, ok := r.breakers[agentName]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// caller runs prompts against agents under a RetryPolicy.
type caller struct {
	policy   RetryPolicy
	breakers *CircuitBreakerRegistry
	sleeper  Sleeper
	logger   *zap.Logger
}

// await calls Run and polls a pending run until it settles or the poll
// budget is spent.
func (c *caller) await(ctx context.Context, ag agent.Agent, threadID, prompt string, maxPolls int) agent.Result {
	res := ag.Run(ctx, threadID, prompt)
	if !res.IsPending() {
		return res
	}

	poller, ok := ag.(agent.Poller)
	if !ok {
		return agent.Failed(agent.FailureUnexpected, res.RunStatus,
			fmt.Errorf("agent %s returned a pending run but cannot be polled", ag.Name()))
	}

	for polls := 0; res.IsPending(); polls++ {
		if polls >= maxPolls {
			return agent.Failed(agent.FailureTransport, res.RunStatus,
				fmt.Errorf("run %s still %s after %d polls", res.RunID, res.RunStatus, polls))
		}
		if err := c.sleeper.Sleep(ctx, c.policy.PollInterval); err != nil {
			return agent.Failed(agent.FailureTransport, res.RunStatus, fmt.Errorf("waiting for run %s: %w", res.RunID, err))
		}
		runID := res.RunID
		res = poller.Poll(ctx, threadID, runID)
		if res.IsPending() && res.RunID == "" {
			res.RunID = runID
		}
	}
	return res
}

// awaited carries the outcome of await across goroutines.
type awaited struct {
	res      agent.Result
	panicked any
}

// bounded runs await but returns as soon as ctx is done, even when the agent
// ignores ctx. A reply that arrives after the deadline is discarded.
func (c *caller) bounded(ctx context.Context, ag agent.Agent, threadID, prompt string, maxPolls int) agent.Result {
	done := make(chan awaited, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- awaited{panicked: p}
			}
		}()
		done <- awaited{res: c.await(ctx, ag, threadID, prompt, maxPolls)}
	}()

	select {
	case a := <-done:
		return a.unwrap()
	case <-ctx.Done():
		select {
		case a := <-done:
			return a.unwrap()
		default:
		}
		c.logger.Warn("agent call abandoned", zap.String("agent", ag.Name()), zap.Error(ctx.Err()))
		return agent.Failed(agent.FailureTransport, "", fmt.Errorf("agent %s: %w", ag.Name(), ctx.Err()))
	}
}

// unwrap re-raises a panic from the agent on the calling goroutine.
func (a awaited) unwrap() agent.Result {
	if a.panicked != nil {
		panic(a.panicked)
	}
	return a.res
}

// attempt performs one bounded call through the agent's circuit breaker.
func (c *caller) attempt(ctx context.Context, ag agent.Agent, threadID string, task *scheduler.Task, prompt string) agent.Result {
	if task.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	out, err := c.breakers.Get(ag.Name()).Execute(func() (interface{}, error) {
		res := c.bounded(ctx, ag, threadID, prompt, c.policy.maxPolls(task))
		if res.Kind == agent.KindUnknown {
			res = agent.Failed(agent.FailureUnexpected, res.RunStatus, fmt.Errorf("agent %s returned an empty result", ag.Name()))
		}
		if res.Kind == agent.KindFailed && res.Retryable() {
			return res, res.Err
		}
		return res, nil
	})

	if res, ok := out.(agent.Result); ok {
		return res
	}
	// Breaker rejected the call before it reached the agent
	return agent.Failed(agent.FailureRejected, "", fmt.Errorf("agent %s unavailable: %w", ag.Name(), err))
}

// maxAttempts caps the attempts of task. Analytic tasks get MaxAttempts,
// lowered to the task's RetryCount when it declares one.
func (p RetryPolicy) maxAttempts(task *scheduler.Task) int {
	if !task.Type.IsAnalytic() {
		return 1
	}
	if task.RetryCount > 0 {
		return min(p.MaxAttempts, task.RetryCount)
	}
	return p.MaxAttempts
}

// call runs the task's prompt with a constant backoff between attempts.
// onRetry is invoked before each new attempt.
func (c *caller) call(ctx context.Context, ag agent.Agent, threadID string, task *scheduler.Task, prompt string, onRetry func(attempt int, err error)) (string, int, error) {
	maxAttempts := c.policy.maxAttempts(task)

	attempts := 0
	operation := func() (string, error) {
		attempts++
		res := c.attempt(ctx, ag, threadID, task, prompt)
		switch {
		case res.OK():
			return res.Response, nil
		case res.Retryable() && ctx.Err() == nil:
			c.logger.Warn("agent attempt failed",
				zap.String("task_id", task.ID), zap.String("agent", ag.Name()),
				zap.Int("attempt", attempts), zap.String("failure", res.Failure.String()), zap.Error(res.Err))
			return "", res.Err
		default:
			return "", backoff.Permanent(res.Err)
		}
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.policy.Backoff), uint64(maxAttempts-1)),
		ctx,
	)
	notify := func(err error, _ time.Duration) {
		if onRetry != nil {
			onRetry(attempts+1, err)
		}
	}

	response, err := backoff.RetryNotifyWithTimerAndData(operation, policy, notify, newSleeperTimer(c.sleeper))
	if err != nil {
		if task.Type.IsAnalytic() && attempts == maxAttempts {
			err = fmt.Errorf("run failed after %d attempts: %w", attempts, err)
		}
		return "", attempts, err
	}
	return response, attempts, nil
}
