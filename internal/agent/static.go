package agent

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// StaticAgent answers prompts from a fixed table. It backs offline runs.
type StaticAgent struct {
	name     string
	keys     []string
	table    map[string]string
	fallback string

	mu      sync.Mutex
	session Session
	calls   int
}

// NewStatic creates a static agent. Keys of cfg.Responses are matched as
// case-insensitive prompt substrings, longest key first.
func NewStatic(cfg Config) *StaticAgent {
	table := make(map[string]string, len(cfg.Responses))
	keys := make([]string, 0, len(cfg.Responses))
	for k, v := range cfg.Responses {
		lk := strings.ToLower(k)
		table[lk] = v
		keys = append(keys, lk)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	return &StaticAgent{name: cfg.Name, keys: keys, table: table, fallback: cfg.Fallback}
}

func (s *StaticAgent) Name() string { return s.name }

func (s *StaticAgent) Create(ctx context.Context) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.AgentID == "" {
		s.session = Session{AgentID: "static-" + uuid.NewString(), ThreadID: uuid.NewString()}
	}
	return s.session, nil
}

func (s *StaticAgent) Run(ctx context.Context, threadID, prompt string) Result {
	s.mu.Lock()
	s.calls++
	ready := s.session.AgentID != ""
	s.mu.Unlock()

	if !ready {
		return Failed(FailureUninitialized, "", fmt.Errorf("%s: %w", s.name, ErrNotInitialized))
	}
	if err := ctx.Err(); err != nil {
		return Failed(FailureTransport, "", err)
	}

	lower := strings.ToLower(prompt)
	for _, k := range s.keys {
		if strings.Contains(lower, k) {
			return Succeeded(s.table[k])
		}
	}
	if s.fallback != "" {
		return Succeeded(s.fallback)
	}
	return Failed(FailureRun, RunFailed, errors.New("no canned response for prompt"))
}

// Calls reports how many times Run was invoked.
func (s *StaticAgent) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *StaticAgent) Cleanup(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.session.AgentID != ""
	s.session = Session{}
	return ok
}

func (s *StaticAgent) Tools() []Tool { return ProfileFor(s.name).Tools }

func (s *StaticAgent) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := ProfileFor(s.name)
	return Info{
		Name:         p.DisplayName,
		Role:         p.Role,
		Description:  p.Description,
		AgentID:      s.session.AgentID,
		ThreadID:     s.session.ThreadID,
		Initialized:  s.session.AgentID != "",
		Capabilities: p.Capabilities,
	}
}

var offlineReplies = map[string]Config{
	"hotel": {Fallback: "Recommended: Harborview Suites (4.5 stars, free on-site parking, 10 minutes from the airport). " +
		"Alternative: Midtown Garden Inn (4.2 stars, valet parking, walking distance to the convention center)."},
	"taxi_fabric": {Fallback: `{"metrics": {"avg_fare": 16.85, "total_trips": 1200000, "day_trips": 720000, "night_trips": 480000}, "details": {"peak_hour": "8 AM"}}`},
	"taxi_genie":  {Fallback: `{"metrics": {"avg_fare": 18.32, "total_trips": 1100000, "day_trips": 680000, "night_trips": 420000}, "details": {"peak_hour": "9 AM"}}`},
	"email":       {Fallback: "Successfully invoked email. Email queued for delivery."},
}

// OfflineConfig returns a static configuration with sample replies for a
// known team member, for runs without remote services.
func OfflineConfig(name string) Config {
	cfg := offlineReplies[name]
	cfg.Name = name
	cfg.Provider = ProviderStatic
	if cfg.Fallback == "" {
		cfg.Fallback = "No offline data for " + name + "."
	}
	return cfg
}
