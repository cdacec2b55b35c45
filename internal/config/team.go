package config

import (
	"fmt"
	"sort"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/agent"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/orchestrator"
)

// AgentNames returns the configured agent names: the built-in team first in
// TeamOrder, then any others sorted.
func (c *MagenticConfig) AgentNames() []string {
	var names []string
	seen := make(map[string]bool, len(c.Agents))
	for _, name := range TeamOrder {
		if _, ok := c.Agents[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range c.Agents {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

// AgentConfigs converts the team into adapter configurations. API keys are
// read through getenv from each agent's api_key_env.
func (c *MagenticConfig) AgentConfigs(getenv func(string) string) []agent.Config {
	names := c.AgentNames()
	out := make([]agent.Config, 0, len(names))
	for _, name := range names {
		a := c.Agents[name]
		cfg := agent.Config{
			Name:         name,
			Provider:     agent.Provider(a.Provider),
			Model:        a.Model,
			Endpoint:     a.Endpoint,
			APIVersion:   a.APIVersion,
			Instructions: a.Instructions,
			Recipient:    c.Runtime.Recipient,
			Responses:    a.Responses,
			Fallback:     a.Fallback,
			Command:      a.Command,
			Args:         a.Args,
		}
		if a.APIKeyEnv != "" {
			cfg.APIKey = getenv(a.APIKeyEnv)
		}
		if cfg.APIKey == "" && isAssistant(a.Provider) {
			// Either key works against an OpenAI compatible endpoint
			cfg.APIKey = firstNonEmpty(getenv("AZURE_OPENAI_API_KEY"), getenv("OPENAI_API_KEY"))
		}
		if a.Connection != "" {
			instructions := cfg.Instructions
			if instructions == "" {
				instructions = agent.ProfileFor(name).Instructions
			}
			cfg.Instructions = fmt.Sprintf("%s\nUse the data connection %s.", instructions, a.Connection)
		}
		out = append(out, cfg)
	}
	return out
}

// OfflineAgentConfigs returns static configurations with canned replies for
// every configured agent.
func (c *MagenticConfig) OfflineAgentConfigs() []agent.Config {
	names := c.AgentNames()
	out := make([]agent.Config, 0, len(names))
	for _, name := range names {
		cfg := agent.OfflineConfig(name)
		cfg.Recipient = c.Runtime.Recipient
		out = append(out, cfg)
	}
	return out
}

// RetryPolicy returns the polling and retry settings.
func (c *MagenticConfig) RetryPolicy() orchestrator.RetryPolicy {
	return orchestrator.RetryPolicy{
		MaxAttempts:  c.Runtime.MaxAttempts,
		Backoff:      c.Runtime.RetryBackoff,
		PollInterval: c.Runtime.PollInterval,
		MaxPolls:     c.Runtime.MaxPolls,
	}
}

// Prompts returns the prompt builder for the configured location and recipient.
func (c *MagenticConfig) Prompts() orchestrator.PromptBuilder {
	return orchestrator.PromptBuilder{Location: c.Runtime.Location, Recipient: c.Runtime.Recipient}
}

// ConflictRule returns the configured resolution rule.
func (c *MagenticConfig) ConflictRule() (conflict.Rule, error) {
	return conflict.ParseRule(c.Runtime.ConflictRule)
}

// RuntimeOptions bundles the runtime settings as orchestrator options.
func (c *MagenticConfig) RuntimeOptions() ([]orchestrator.Option, error) {
	rule, err := c.ConflictRule()
	if err != nil {
		return nil, err
	}
	return []orchestrator.Option{
		orchestrator.WithRetryPolicy(c.RetryPolicy()),
		orchestrator.WithConcurrency(c.Runtime.Concurrency),
		orchestrator.WithConflictRule(rule),
		orchestrator.WithPrompts(c.Prompts()),
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
