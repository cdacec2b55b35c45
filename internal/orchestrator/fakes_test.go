package orchestrator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/agent"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/events"
)

// fakeAgent is a scripted agent. respond is called for each Run with the
// 1-based call number; poll for each Poll.
type fakeAgent struct {
	name      string
	respond   func(call int, prompt string) agent.Result
	poll      func(call int, runID string) agent.Result
	createErr error
	delay     time.Duration
	cleanupOK bool

	mu        sync.Mutex
	prompts   []string
	polls     int
	active    int
	maxActive int
	created   bool
}

func newFakeAgent(name string, respond func(call int, prompt string) agent.Result) *fakeAgent {
	return &fakeAgent{name: name, respond: respond, cleanupOK: true}
}

func (f *fakeAgent) Name() string { return f.name }

func (f *fakeAgent) Create(ctx context.Context) (agent.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return agent.Session{}, f.createErr
	}
	f.created = true
	return agent.Session{AgentID: "agent-" + f.name, ThreadID: "thread-" + f.name}, nil
}

func (f *fakeAgent) Run(ctx context.Context, threadID, prompt string) agent.Result {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	call := len(f.prompts)
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return f.respond(call, prompt)
}

func (f *fakeAgent) Poll(ctx context.Context, threadID, runID string) agent.Result {
	f.mu.Lock()
	f.polls++
	call := f.polls
	f.mu.Unlock()
	if f.poll == nil {
		return agent.Failed(agent.FailureUnexpected, "", errors.New("no poll script"))
	}
	return f.poll(call, runID)
}

func (f *fakeAgent) Cleanup(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = false
	return f.cleanupOK
}

func (f *fakeAgent) Tools() []agent.Tool { return nil }

func (f *fakeAgent) Info() agent.Info {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := agent.Info{Name: f.name, Initialized: f.created}
	if f.created {
		info.AgentID = "agent-" + f.name
		info.ThreadID = "thread-" + f.name
	}
	return info
}

func (f *fakeAgent) Runs() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeAgent) Prompt(i int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.prompts) {
		return ""
	}
	return f.prompts[i]
}

func (f *fakeAgent) MaxActive() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxActive
}

// noPollAgent hides the Poll method of the wrapped agent.
type noPollAgent struct {
	agent.Agent
}

func reply(text string) func(int, string) agent.Result {
	return func(int, string) agent.Result { return agent.Succeeded(text) }
}

func failRun(msg string) func(int, string) agent.Result {
	return func(int, string) agent.Result {
		return agent.Failed(agent.FailureRun, agent.RunFailed, errors.New(msg))
	}
}

// failThen fails the first n calls, then replies with text.
func failThen(n int, text string) func(int, string) agent.Result {
	return func(call int, _ string) agent.Result {
		if call <= n {
			return agent.Failed(agent.FailureRun, agent.RunFailed, errors.New("run failed: server_error"))
		}
		return agent.Succeeded(text)
	}
}

// instantSleeper records waits without sleeping.
type instantSleeper struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *instantSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

func (s *instantSleeper) count(d time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, w := range s.waits {
		if w == d {
			n++
		}
	}
	return n
}

// recordingBus collects published events.
type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(ev events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, ev)
}

func (b *recordingBus) types() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.events))
	for _, ev := range b.events {
		out = append(out, ev.EventType())
	}
	return out
}
