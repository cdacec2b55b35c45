package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// DefaultAzureAPIVersion is the Azure OpenAI API version that serves the Assistants API.
const DefaultAzureAPIVersion = "2024-05-01-preview"

var _ Poller = (*AssistantAgent)(nil)

// AssistantAgent runs prompts through an OpenAI or Azure OpenAI assistant.
// Each Run posts a message on the thread and starts a run; runs that are
// still queued come back pending and settle through Poll.
type AssistantAgent struct {
	name    string
	model   string
	profile Profile
	client  *openai.Client
	logger  *zap.Logger

	mu          sync.Mutex
	assistantID string
	threadID    string
}

type loggingTransport struct {
	base   http.RoundTripper
	logger *zap.Logger
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	fields := []zap.Field{
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Duration("elapsed", time.Since(start)),
	}
	if resp != nil {
		fields = append(fields, zap.Int("status", resp.StatusCode))
	}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	t.logger.Debug("assistant api call", fields...)
	return resp, err
}

// NewAssistant creates an assistant adapter. Nothing is contacted until Create.
func NewAssistant(cfg Config, logger *zap.Logger) (*AssistantAgent, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent %q: model is required", cfg.Name)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var config openai.ClientConfig
	switch cfg.Provider {
	case ProviderAzureOpenAI:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("agent %q: endpoint is required for azure_openai", cfg.Name)
		}
		config = openai.DefaultAzureConfig(cfg.APIKey, cfg.Endpoint)
		config.APIVersion = DefaultAzureAPIVersion
		if cfg.APIVersion != "" {
			config.APIVersion = cfg.APIVersion
		}
	default:
		config = openai.DefaultConfig(cfg.APIKey)
		if cfg.Endpoint != "" {
			config.BaseURL = cfg.Endpoint
		}
	}
	config.HTTPClient = &http.Client{
		Transport: &loggingTransport{base: http.DefaultTransport, logger: logger},
	}

	profile := ProfileFor(cfg.Name)
	if cfg.Instructions != "" {
		profile.Instructions = cfg.Instructions
	}

	return &AssistantAgent{
		name:    cfg.Name,
		model:   cfg.Model,
		profile: profile,
		client:  openai.NewClientWithConfig(config),
		logger:  logger,
	}, nil
}

func (a *AssistantAgent) Name() string { return a.name }

// Create registers the assistant and opens its conversation thread.
// Calling Create again returns the existing session.
func (a *AssistantAgent) Create(ctx context.Context) (Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.assistantID != "" && a.threadID != "" {
		return Session{AgentID: a.assistantID, ThreadID: a.threadID}, nil
	}

	name := a.profile.DisplayName
	desc := a.profile.Description
	instructions := a.profile.Instructions
	asst, err := a.client.CreateAssistant(ctx, openai.AssistantRequest{
		Model:        a.model,
		Name:         &name,
		Description:  &desc,
		Instructions: &instructions,
	})
	if err != nil {
		return Session{}, fmt.Errorf("create assistant %q: %w", a.name, err)
	}

	thread, err := a.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		if _, delErr := a.client.DeleteAssistant(ctx, asst.ID); delErr != nil {
			a.logger.Warn("failed to delete assistant after thread error", zap.Error(delErr))
		}
		return Session{}, fmt.Errorf("create thread for %q: %w", a.name, err)
	}

	a.assistantID = asst.ID
	a.threadID = thread.ID
	a.logger.Info("assistant created", zap.String("assistant_id", asst.ID), zap.String("thread_id", thread.ID))
	return Session{AgentID: asst.ID, ThreadID: thread.ID}, nil
}

// Run posts the prompt and starts a run.
func (a *AssistantAgent) Run(ctx context.Context, threadID, prompt string) Result {
	assistantID := a.currentAssistant()
	if assistantID == "" {
		return Failed(FailureUninitialized, "", fmt.Errorf("%s: %w", a.name, ErrNotInitialized))
	}

	if _, err := a.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: prompt,
	}); err != nil {
		return Failed(FailureTransport, "", fmt.Errorf("post message: %w", err))
	}

	run, err := a.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: assistantID})
	if err != nil {
		return Failed(FailureTransport, "", fmt.Errorf("start run: %w", err))
	}
	return a.settle(ctx, threadID, run)
}

// Poll fetches the run and settles it if it finished.
func (a *AssistantAgent) Poll(ctx context.Context, threadID, runID string) Result {
	run, err := a.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Failed(FailureTransport, "", fmt.Errorf("retrieve run %s: %w", runID, err))
	}
	return a.settle(ctx, threadID, run)
}

func (a *AssistantAgent) settle(ctx context.Context, threadID string, run openai.Run) Result {
	status := RunStatus(run.Status)
	switch run.Status {
	case openai.RunStatusQueued, openai.RunStatusInProgress:
		return Pending(run.ID, status)
	case openai.RunStatusCompleted:
		text, err := a.latestReply(ctx, threadID, run.ID)
		if err != nil {
			return Failed(FailureUnexpected, status, err)
		}
		return Succeeded(text)
	case openai.RunStatusFailed:
		reason := "unknown error"
		if run.LastError != nil {
			reason = fmt.Sprintf("%s: %s", run.LastError.Code, run.LastError.Message)
		}
		return Failed(FailureRun, RunFailed, fmt.Errorf("run %s failed: %s", run.ID, reason))
	default:
		return Failed(FailureUnexpected, status, fmt.Errorf("unexpected run status: %s", run.Status))
	}
}

// latestReply returns the text of the newest assistant message of the run.
func (a *AssistantAgent) latestReply(ctx context.Context, threadID, runID string) (string, error) {
	limit := 20
	order := "desc"
	list, err := a.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}

	for _, msg := range list.Messages {
		if msg.Role != openai.ChatMessageRoleAssistant {
			continue
		}
		var parts []string
		for _, c := range msg.Content {
			if c.Text != nil && c.Text.Value != "" {
				parts = append(parts, c.Text.Value)
			}
		}
		if len(parts) > 0 {
			return strings.Join(parts, "\n"), nil
		}
	}
	return "", errors.New("no valid assistant response found")
}

// Cleanup deletes the assistant and its thread.
func (a *AssistantAgent) Cleanup(ctx context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.assistantID == "" {
		return false
	}

	ok := true
	if a.threadID != "" {
		if _, err := a.client.DeleteThread(ctx, a.threadID); err != nil {
			a.logger.Warn("failed to delete thread", zap.String("thread_id", a.threadID), zap.Error(err))
		}
	}
	if _, err := a.client.DeleteAssistant(ctx, a.assistantID); err != nil {
		a.logger.Warn("failed to delete assistant", zap.String("assistant_id", a.assistantID), zap.Error(err))
		ok = false
	}
	a.assistantID, a.threadID = "", ""
	return ok
}

func (a *AssistantAgent) Tools() []Tool { return a.profile.Tools }

func (a *AssistantAgent) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Info{
		Name:         a.profile.DisplayName,
		Role:         a.profile.Role,
		Description:  a.profile.Description,
		AgentID:      a.assistantID,
		ThreadID:     a.threadID,
		Initialized:  a.assistantID != "",
		Capabilities: a.profile.Capabilities,
	}
}

func (a *AssistantAgent) currentAssistant() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.assistantID
}
