package orchestrator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/agent"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scheduler"
)

func newTestCaller(s Sleeper) *caller {
	return &caller{
		policy:   DefaultRetryPolicy(),
		breakers: NewCircuitBreakerRegistry(nil),
		sleeper:  s,
		logger:   zap.NewNop(),
	}
}

func analyticTask() *scheduler.Task {
	return &scheduler.Task{ID: "taxi_fabric_analysis", Type: scheduler.TaskTaxiAnalysisFabric, AgentName: "taxi_fabric", TimeoutSeconds: 300}
}

func hotelTask() *scheduler.Task {
	return &scheduler.Task{ID: "hotel_search", Type: scheduler.TaskHotelSearch, AgentName: "hotel", TimeoutSeconds: 300}
}

func TestCall_AnalyticRetriesThenSucceeds(t *testing.T) {
	sleeper := &instantSleeper{}
	c := newTestCaller(sleeper)
	fabric := newFakeAgent("taxi_fabric", failThen(2, `{"avg_fare": 16.85}`))

	var retries []int
	resp, attempts, err := c.call(context.Background(), fabric, "thread", analyticTask(), "prompt", func(attempt int, err error) {
		retries = append(retries, attempt)
	})

	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if resp != `{"avg_fare": 16.85}` {
		t.Errorf("unexpected response %q", resp)
	}
	if attempts != 3 || fabric.Runs() != 3 {
		t.Errorf("expected 3 attempts, got %d (runs %d)", attempts, fabric.Runs())
	}
	if len(retries) != 2 || retries[0] != 2 || retries[1] != 3 {
		t.Errorf("expected retry notifications for attempts 2 and 3, got %v", retries)
	}
	if n := sleeper.count(2 * time.Second); n != 2 {
		t.Errorf("expected 2 backoff waits of 2s, got %d", n)
	}
}

func TestCall_AnalyticExhaustsAttempts(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	genie := newFakeAgent("taxi_genie", failRun("run run_1 failed: rate_limit_exceeded"))
	task := &scheduler.Task{ID: "genie_data_pull", Type: scheduler.TaskTaxiAnalysisGenie, AgentName: "taxi_genie"}

	_, attempts, err := c.call(context.Background(), genie, "thread", task, "prompt", nil)

	if err == nil {
		t.Fatal("expected failure")
	}
	if attempts != 3 || genie.Runs() != 3 {
		t.Errorf("expected 3 attempts, got %d (runs %d)", attempts, genie.Runs())
	}
	if !strings.Contains(err.Error(), "run failed after 3 attempts") || !strings.Contains(err.Error(), "rate_limit_exceeded") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestCall_SingleAttemptTypes(t *testing.T) {
	tests := []struct {
		name string
		task *scheduler.Task
	}{
		{"hotel", hotelTask()},
		{"email", &scheduler.Task{ID: "email_summary", Type: scheduler.TaskEmailSend, AgentName: "email"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sleeper := &instantSleeper{}
			c := newTestCaller(sleeper)
			a := newFakeAgent(tt.task.AgentName, failRun("boom"))

			_, attempts, err := c.call(context.Background(), a, "thread", tt.task, "prompt", nil)
			if err == nil {
				t.Fatal("expected failure")
			}
			if attempts != 1 || a.Runs() != 1 {
				t.Errorf("expected exactly one attempt, got %d (runs %d)", attempts, a.Runs())
			}
			if strings.Contains(err.Error(), "attempts") {
				t.Errorf("single attempt error should not mention attempts: %v", err)
			}
			if len(sleeper.waits) != 0 {
				t.Errorf("expected no waits, got %v", sleeper.waits)
			}
		})
	}
}

func TestCall_UnexpectedStatusIsNotRetried(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	fabric := newFakeAgent("taxi_fabric", func(int, string) agent.Result {
		return agent.Failed(agent.FailureUnexpected, "expired", errors.New("unexpected run status: expired"))
	})

	_, attempts, err := c.call(context.Background(), fabric, "thread", analyticTask(), "prompt", nil)
	if err == nil || attempts != 1 {
		t.Fatalf("expected one failed attempt, got attempts=%d err=%v", attempts, err)
	}
	if err.Error() != "unexpected run status: expired" {
		t.Errorf("unexpected error text %q", err.Error())
	}
}

func TestCall_CancelledContextStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := newTestCaller(&instantSleeper{})
	fabric := newFakeAgent("taxi_fabric", func(int, string) agent.Result {
		cancel()
		return agent.Failed(agent.FailureTransport, "", context.Canceled)
	})

	_, attempts, err := c.call(ctx, fabric, "thread", analyticTask(), "prompt", nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
}

func TestCall_RetryCountCapsAttempts(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	fabric := newFakeAgent("taxi_fabric", failRun("run failed: server_error"))

	task := analyticTask()
	task.RetryCount = 2

	_, attempts, err := c.call(context.Background(), fabric, "thread", task, "prompt", nil)
	if err == nil {
		t.Fatal("expected failure")
	}
	if attempts != 2 || fabric.Runs() != 2 {
		t.Errorf("expected 2 attempts, got %d (runs %d)", attempts, fabric.Runs())
	}

	// RetryCount never raises the policy cap
	task.RetryCount = 10
	if got := c.policy.maxAttempts(task); got != 3 {
		t.Errorf("expected policy cap of 3, got %d", got)
	}
	if got := c.policy.maxAttempts(hotelTask()); got != 1 {
		t.Errorf("expected 1 attempt for hotel search, got %d", got)
	}
}

func TestAttempt_DeadlineCapsSlowAgent(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	// The fake sleeps without watching ctx
	hotel := newFakeAgent("hotel", reply("late"))
	hotel.delay = 3 * time.Second

	task := hotelTask()
	task.TimeoutSeconds = 1

	start := time.Now()
	resp, attempts, err := c.call(context.Background(), hotel, "thread", task, "prompt", nil)
	elapsed := time.Since(start)

	if err == nil {
		t.Fatalf("expected a deadline failure, got response %q", resp)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected context.DeadlineExceeded, got %v", err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}
	if elapsed >= 2*time.Second {
		t.Errorf("call returned after %s, expected about 1s", elapsed)
	}
}

func TestAttempt_AgentPanicReachesCaller(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	hotel := newFakeAgent("hotel", func(int, string) agent.Result { panic("boom") })

	defer func() {
		if p := recover(); p != "boom" {
			t.Errorf("expected the agent panic, got %v", p)
		}
	}()
	c.attempt(context.Background(), hotel, "thread", hotelTask(), "prompt")
	t.Error("attempt should have panicked")
}

func TestAttempt_EmptyResultFails(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	hotel := newFakeAgent("hotel", func(int, string) agent.Result { return agent.Result{} })

	res := c.attempt(context.Background(), hotel, "thread", hotelTask(), "prompt")
	if res.OK() || res.Failure != agent.FailureUnexpected {
		t.Fatalf("expected an unexpected-status failure, got %+v", res)
	}

	_, _, err := c.call(context.Background(), hotel, "thread", hotelTask(), "prompt", nil)
	if err == nil || !strings.Contains(err.Error(), "empty result") {
		t.Errorf("expected an empty result error, got %v", err)
	}
}

func TestAwait_PollsUntilSettled(t *testing.T) {
	sleeper := &instantSleeper{}
	c := newTestCaller(sleeper)
	a := newFakeAgent("taxi_fabric", func(int, string) agent.Result {
		return agent.Pending("run_1", agent.RunQueued)
	})
	a.poll = func(call int, runID string) agent.Result {
		if runID != "run_1" {
			return agent.Failed(agent.FailureUnexpected, "", errors.New("wrong run id "+runID))
		}
		if call < 3 {
			return agent.Pending("run_1", agent.RunInProgress)
		}
		return agent.Succeeded("settled")
	}

	res := c.await(context.Background(), a, "thread", "prompt", 10)
	if !res.OK() || res.Response != "settled" {
		t.Fatalf("expected settled response, got %+v", res)
	}
	if a.polls != 3 {
		t.Errorf("expected 3 polls, got %d", a.polls)
	}
	if n := sleeper.count(time.Second); n != 3 {
		t.Errorf("expected 3 one-second poll waits, got %d", n)
	}
}

func TestAwait_PollBudgetExhausted(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	a := newFakeAgent("hotel", func(int, string) agent.Result {
		return agent.Pending("run_7", agent.RunInProgress)
	})
	a.poll = func(int, string) agent.Result { return agent.Pending("run_7", agent.RunInProgress) }

	task := hotelTask()
	task.TimeoutSeconds = 3

	res := c.attempt(context.Background(), a, "thread", task, "prompt")
	if res.Kind != agent.KindFailed || res.Failure != agent.FailureTransport {
		t.Fatalf("expected transport failure, got %+v", res)
	}
	if res.ErrorText() != "run run_7 still in_progress after 3 polls" {
		t.Errorf("unexpected error %q", res.ErrorText())
	}
	if a.polls != 3 {
		t.Errorf("expected 3 polls, got %d", a.polls)
	}
}

func TestAwait_PendingWithoutPoller(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	inner := newFakeAgent("hotel", func(int, string) agent.Result {
		return agent.Pending("run_1", agent.RunQueued)
	})

	res := c.await(context.Background(), noPollAgent{inner}, "thread", "prompt", 5)
	if res.Failure != agent.FailureUnexpected || res.Retryable() {
		t.Fatalf("expected non-retryable unexpected failure, got %+v", res)
	}
}

func TestRetryPolicy_MaxPolls(t *testing.T) {
	p := DefaultRetryPolicy()
	tests := []struct {
		timeout int
		want    int
	}{
		{timeout: 300, want: 300},
		{timeout: 5, want: 5},
		{timeout: 0, want: p.MaxPolls},
	}
	for _, tt := range tests {
		task := &scheduler.Task{TimeoutSeconds: tt.timeout}
		if got := p.maxPolls(task); got != tt.want {
			t.Errorf("timeout %d: expected %d polls, got %d", tt.timeout, tt.want, got)
		}
	}

	fast := RetryPolicy{PollInterval: 500 * time.Millisecond}.withDefaults()
	if got := fast.maxPolls(&scheduler.Task{TimeoutSeconds: 2}); got != 4 {
		t.Errorf("expected 4 polls at 500ms, got %d", got)
	}
	if fast.MaxAttempts != 3 || fast.MaxPolls != 300 {
		t.Errorf("defaults not applied: %+v", fast)
	}
}

func TestCircuitBreakerRegistry(t *testing.T) {
	registry := NewCircuitBreakerRegistry(nil)

	if registry.Get("taxi_fabric") != registry.Get("taxi_fabric") {
		t.Error("expected the same breaker for the same agent")
	}
	if registry.Get("taxi_fabric") == registry.Get("taxi_genie") {
		t.Error("expected distinct breakers per agent")
	}

	cb := registry.Get("taxi_fabric")
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("fail") })
	}
	if got := registry.State("taxi_fabric"); got != gobreaker.StateOpen {
		t.Errorf("expected open breaker after 5 failures, got %s", got)
	}
	if got := registry.State("email"); got != gobreaker.StateClosed {
		t.Errorf("expected closed state for unused agent, got %s", got)
	}

	cancelled := registry.Get("taxi_genie")
	for i := 0; i < 10; i++ {
		_, _ = cancelled.Execute(func() (interface{}, error) { return nil, context.Canceled })
	}
	if cancelled.State() != gobreaker.StateClosed {
		t.Error("cancellation should not trip the breaker")
	}
}

func TestAttempt_OpenBreakerRejects(t *testing.T) {
	c := newTestCaller(&instantSleeper{})
	cb := c.breakers.Get("taxi_fabric")
	for i := 0; i < 5; i++ {
		_, _ = cb.Execute(func() (interface{}, error) { return nil, errors.New("fail") })
	}

	fabric := newFakeAgent("taxi_fabric", reply("never"))
	res := c.attempt(context.Background(), fabric, "thread", analyticTask(), "prompt")
	if res.Failure != agent.FailureRejected {
		t.Fatalf("expected rejected failure, got %+v", res)
	}
	if !errors.Is(res.Err, gobreaker.ErrOpenState) {
		t.Errorf("expected ErrOpenState, got %v", res.Err)
	}
	if fabric.Runs() != 0 {
		t.Errorf("agent should not be called while the breaker is open")
	}
}

func TestSleeperTimer(t *testing.T) {
	sleeper := &instantSleeper{}
	timer := newSleeperTimer(sleeper)
	defer timer.Stop()

	timer.Start(2 * time.Second)
	select {
	case <-timer.C():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
	if sleeper.count(2*time.Second) != 1 {
		t.Errorf("expected one 2s wait, got %v", sleeper.waits)
	}
}

func TestWallClockHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := WallClock.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
