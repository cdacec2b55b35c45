package agent

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PromptPlaceholder in a command argument is replaced by the prompt. When no
// argument carries it the prompt is written to stdin.
const PromptPlaceholder = "{prompt}"

// CommandAgent answers prompts by running a local command once per prompt.
// The command's trimmed stdout is the reply.
type CommandAgent struct {
	name    string
	command string
	args    []string
	procs   *ProcessManager
	logger  *zap.Logger

	mu       sync.Mutex
	session  Session
	path     string
	attached bool
}

// NewCommand creates an adapter for cfg.Command. Subprocesses are tracked
// in cfg.Processes when set.
func NewCommand(cfg Config, logger *zap.Logger) (*CommandAgent, error) {
	if cfg.Command == "" {
		return nil, fmt.Errorf("agent %q: command is required", cfg.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommandAgent{
		name:    cfg.Name,
		command: cfg.Command,
		args:    append([]string(nil), cfg.Args...),
		procs:   cfg.Processes,
		logger:  logger,
	}, nil
}

func (c *CommandAgent) Name() string { return c.name }

// Create resolves the command on PATH and assigns local identifiers.
func (c *CommandAgent) Create(ctx context.Context) (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.attached {
		return c.session, nil
	}
	path, err := exec.LookPath(c.command)
	if err != nil {
		return Session{}, fmt.Errorf("agent %q: command %q not found: %w", c.name, c.command, err)
	}
	c.path = path
	c.session = Session{AgentID: "cmd-" + uuid.NewString(), ThreadID: uuid.NewString()}
	c.attached = true
	return c.session, nil
}

// Run executes the command with prompt. A command that cannot be started is
// a transport failure; a non-zero exit or empty output is a run failure.
func (c *CommandAgent) Run(ctx context.Context, threadID, prompt string) Result {
	c.mu.Lock()
	attached, path := c.attached, c.path
	c.mu.Unlock()
	if !attached {
		return Failed(FailureUninitialized, "", fmt.Errorf("%s: %w", c.name, ErrNotInitialized))
	}

	args, stdin := c.expandArgs(prompt)
	cmd := newCommand(ctx, path, args...)

	stdout, _, err := executeCommand(ctx, cmd, stdin, c.procs)
	if err != nil {
		if isStartError(err) {
			return Failed(FailureTransport, "", fmt.Errorf("%s: %w", c.name, err))
		}
		c.logger.Debug("command failed", zap.String("command", c.command), zap.Error(err))
		return Failed(FailureRun, RunFailed, fmt.Errorf("%s: %w", c.name, err))
	}

	out := strings.TrimSpace(string(stdout))
	if out == "" {
		return Failed(FailureRun, RunFailed, fmt.Errorf("%s: %w", c.name, errors.New("command produced no output")))
	}
	return Succeeded(out)
}

// expandArgs substitutes the prompt into the arguments. The returned stdin
// is empty when the prompt went into an argument.
func (c *CommandAgent) expandArgs(prompt string) ([]string, string) {
	args := make([]string, len(c.args))
	substituted := false
	for i, a := range c.args {
		if strings.Contains(a, PromptPlaceholder) {
			a = strings.ReplaceAll(a, PromptPlaceholder, prompt)
			substituted = true
		}
		args[i] = a
	}
	if substituted {
		return args, ""
	}
	return args, prompt
}

// Cleanup forgets the local session. Running commands are not touched; they
// end with the context passed to Run.
func (c *CommandAgent) Cleanup(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	ok := c.attached
	c.attached = false
	c.session = Session{}
	return ok
}

func (c *CommandAgent) Tools() []Tool { return ProfileFor(c.name).Tools }

func (c *CommandAgent) Info() Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := ProfileFor(c.name)
	return Info{
		Name:         p.DisplayName,
		Role:         p.Role,
		Description:  p.Description,
		AgentID:      c.session.AgentID,
		ThreadID:     c.session.ThreadID,
		Initialized:  c.attached,
		Capabilities: p.Capabilities,
	}
}
