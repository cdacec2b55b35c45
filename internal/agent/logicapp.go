package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultSubject is used when a prompt does not carry one.
const DefaultSubject = "Magentic team update"

// emailPrompt matches prompts of the form
// "Send email to <recipient> with subject '<subject>' and body: <body>".
var emailPrompt = regexp.MustCompile(`(?s)^Send email to (\S*) with subject '(.*?)' and body: (.*)$`)

// Email is the payload posted to the Logic App trigger.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// ParseEmailPrompt extracts the email fields from a prompt. Prompts that do
// not follow the send-email form become the body of a message to fallbackTo.
func ParseEmailPrompt(prompt, fallbackTo string) Email {
	if m := emailPrompt.FindStringSubmatch(strings.TrimSpace(prompt)); m != nil {
		to := m[1]
		if to == "" {
			to = fallbackTo
		}
		subject := m[2]
		if subject == "" {
			subject = DefaultSubject
		}
		return Email{To: to, Subject: subject, Body: m[3]}
	}
	return Email{To: fallbackTo, Subject: DefaultSubject, Body: prompt}
}

// LogicAppAgent delivers email by posting to an Azure Logic Apps HTTP trigger.
type LogicAppAgent struct {
	name      string
	trigger   string
	recipient string
	client    *http.Client
	logger    *zap.Logger

	mu       sync.Mutex
	session  Session
	attached bool
}

// NewLogicApp creates an email adapter for the trigger URL in cfg.Endpoint.
func NewLogicApp(cfg Config, logger *zap.Logger) (*LogicAppAgent, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("agent %q: logic app trigger URL is required", cfg.Name)
	}
	if _, err := url.ParseRequestURI(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("agent %q: invalid trigger URL: %w", cfg.Name, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogicAppAgent{
		name:      cfg.Name,
		trigger:   cfg.Endpoint,
		recipient: cfg.Recipient,
		client:    &http.Client{Timeout: 30 * time.Second},
		logger:    logger,
	}, nil
}

func (l *LogicAppAgent) Name() string { return l.name }

// Create assigns local identifiers. The trigger is stateless, so there is
// no remote setup.
func (l *LogicAppAgent) Create(ctx context.Context) (Session, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.attached {
		l.session = Session{AgentID: "logicapp-" + uuid.NewString(), ThreadID: uuid.NewString()}
		l.attached = true
	}
	return l.session, nil
}

// Run sends the email described by prompt.
func (l *LogicAppAgent) Run(ctx context.Context, threadID, prompt string) Result {
	l.mu.Lock()
	attached := l.attached
	l.mu.Unlock()
	if !attached {
		return Failed(FailureUninitialized, "", fmt.Errorf("%s: %w", l.name, ErrNotInitialized))
	}

	email := ParseEmailPrompt(prompt, l.recipient)
	if email.To == "" {
		return Failed(FailureRejected, "", errors.New("no recipient configured"))
	}

	body, err := json.Marshal(email)
	if err != nil {
		return Failed(FailureRejected, "", fmt.Errorf("marshal email: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.trigger, bytes.NewReader(body))
	if err != nil {
		return Failed(FailureRejected, "", fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return Failed(FailureTransport, "", fmt.Errorf("invoke %s: %w", l.name, err))
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Failed(FailureRejected, "", fmt.Errorf("error invoking %s (%d): %s", l.name, resp.StatusCode, strings.TrimSpace(string(respBody))))
	}

	l.logger.Info("email sent", zap.String("to", email.To), zap.String("subject", email.Subject))
	return Succeeded(fmt.Sprintf("Successfully invoked %s. Email sent to %s with subject '%s'.", l.name, email.To, email.Subject))
}

// Cleanup forgets the local session.
func (l *LogicAppAgent) Cleanup(ctx context.Context) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok := l.attached
	l.attached = false
	l.session = Session{}
	return ok
}

func (l *LogicAppAgent) Tools() []Tool { return ProfileFor(l.name).Tools }

func (l *LogicAppAgent) Info() Info {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := ProfileFor(l.name)
	return Info{
		Name:         p.DisplayName,
		Role:         p.Role,
		Description:  p.Description,
		AgentID:      l.session.AgentID,
		ThreadID:     l.session.ThreadID,
		Initialized:  l.attached,
		Capabilities: p.Capabilities,
	}
}
