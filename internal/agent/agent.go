// Package agent defines the contract the orchestrator uses to talk to the
// external data and action sources, plus the adapters that implement it.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNotInitialized is returned by agents used before Create succeeded.
var ErrNotInitialized = errors.New("agent not initialized")

// Agent defines the interface that all agent adapters must implement.
type Agent interface {
	// Name returns the key tasks use to reach this agent.
	Name() string

	// Create sets up the remote agent and its conversation thread.
	Create(ctx context.Context) (Session, error)

	// Run sends a prompt on the thread. Ordinary failures come back as a
	// failed Result, never as a panic. A pending Result means the caller
	// must Poll until the run settles. Implementations should return once
	// ctx is done; the runtime stops waiting at the deadline either way.
	Run(ctx context.Context, threadID, prompt string) Result

	// Cleanup tears the remote agent down. Best effort.
	Cleanup(ctx context.Context) bool

	// Tools lists the functions the agent can call.
	Tools() []Tool

	// Info describes the agent for status displays.
	Info() Info
}

// Poller is implemented by agents whose runs complete asynchronously.
type Poller interface {
	Poll(ctx context.Context, threadID, runID string) Result
}

// Session identifies the remote agent and thread created by Create.
type Session struct {
	AgentID  string `json:"agent_id"`
	ThreadID string `json:"thread_id"`
}

// Info describes an agent for status displays.
type Info struct {
	Name         string   `json:"name"`
	Role         string   `json:"role"`
	Description  string   `json:"description,omitempty"`
	AgentID      string   `json:"agent_id,omitempty"`
	ThreadID     string   `json:"thread_id,omitempty"`
	Initialized  bool     `json:"initialized"`
	Capabilities []string `json:"capabilities,omitempty"`
}

// Tool describes one function exposed by an agent.
type Tool struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// Provider selects an adapter implementation.
type Provider string

const (
	ProviderOpenAI      Provider = "openai"
	ProviderAzureOpenAI Provider = "azure_openai"
	ProviderLogicApp    Provider = "logicapp"
	ProviderStatic      Provider = "static"
	ProviderCommand     Provider = "command"
)

// Config defines the configuration for one agent.
type Config struct {
	Name         string
	Provider     Provider
	Model        string
	Endpoint     string // Base URL for OpenAI-compatible APIs or the Logic App trigger URL
	APIKey       string
	APIVersion   string // Azure only
	Instructions string
	Recipient    string            // Default email recipient
	Responses    map[string]string // Static responses keyed by prompt substring
	Fallback     string            // Static response when no key matches
	Command      string            // Executable for the command provider
	Args         []string
	Processes    *ProcessManager // Tracks command subprocesses; optional
}

// New creates an agent for cfg. This factory switches on cfg.Provider and
// returns the matching adapter.
func New(cfg Config, logger *zap.Logger) (Agent, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("agent", cfg.Name))

	switch cfg.Provider {
	case ProviderOpenAI, ProviderAzureOpenAI:
		return NewAssistant(cfg, logger)
	case ProviderLogicApp:
		return NewLogicApp(cfg, logger)
	case ProviderStatic:
		return NewStatic(cfg), nil
	case ProviderCommand:
		return NewCommand(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown agent provider %q for %q", cfg.Provider, cfg.Name)
	}
}
