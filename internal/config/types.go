package config

import "time"

// AgentConfig defines one team member and the provider that backs it.
// Agents are keyed by the name tasks use to reach them (hotel, taxi_fabric, ...).
type AgentConfig struct {
	Provider     string            `json:"provider" mapstructure:"provider" validate:"required,oneof=openai azure_openai logicapp static command"`
	Model        string            `json:"model,omitempty" mapstructure:"model"`                                // Model or Azure deployment name
	Endpoint     string            `json:"endpoint,omitempty" mapstructure:"endpoint" validate:"omitempty,url"` // API base URL or Logic App trigger URL
	APIKeyEnv    string            `json:"api_key_env,omitempty" mapstructure:"api_key_env"`                    // Environment variable holding the API key
	APIVersion   string            `json:"api_version,omitempty" mapstructure:"api_version"`
	Connection   string            `json:"connection,omitempty" mapstructure:"connection"` // Data connection the agent is told to use
	Instructions string            `json:"instructions,omitempty" mapstructure:"instructions"`
	Responses    map[string]string `json:"responses,omitempty" mapstructure:"responses"` // Static provider only
	Fallback     string            `json:"fallback,omitempty" mapstructure:"fallback"`   // Static provider only
	Command      string            `json:"command,omitempty" mapstructure:"command" validate:"required_if=Provider command"`
	Args         []string          `json:"args,omitempty" mapstructure:"args"` // Command provider; {prompt} is replaced by the prompt
}

// RuntimeConfig tunes scenario execution.
type RuntimeConfig struct {
	Concurrency  int           `json:"concurrency" mapstructure:"concurrency" validate:"min=1"`
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval" validate:"gt=0"`
	MaxPolls     int           `json:"max_polls" mapstructure:"max_polls" validate:"min=1"`       // Used when a task declares no timeout
	MaxAttempts  int           `json:"max_attempts" mapstructure:"max_attempts" validate:"min=1"` // Analytic tasks only
	RetryBackoff time.Duration `json:"retry_backoff" mapstructure:"retry_backoff" validate:"gt=0"`
	ConflictRule string        `json:"conflict_rule" mapstructure:"conflict_rule" validate:"oneof=newest_priority fabric_priority genie_priority report_difference"`
	Recipient    string        `json:"recipient,omitempty" mapstructure:"recipient" validate:"omitempty,email"`
	Location     string        `json:"location,omitempty" mapstructure:"location"`
}

// HistoryConfig controls the SQLite run history.
type HistoryConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Path    string `json:"path" mapstructure:"path" validate:"required_if=Enabled true"`
}

// MagenticConfig is the top-level configuration.
type MagenticConfig struct {
	Agents  map[string]AgentConfig `json:"agents" mapstructure:"agents" validate:"required,min=1,dive"`
	Runtime RuntimeConfig          `json:"runtime" mapstructure:"runtime"`
	History HistoryConfig          `json:"history" mapstructure:"history"`
}
