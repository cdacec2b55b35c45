package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads and merges configuration from global and project paths.
// Order of precedence (highest to lowest): project config, global config, defaults.
// Missing files are not errors; malformed files return an error. Any file
// format viper understands (json, yaml, toml) is accepted.
func Load(globalPath, projectPath string) (*MagenticConfig, error) {
	// Start with defaults
	cfg := DefaultConfig()

	// Merge global config if exists
	if globalPath != "" {
		if err := mergeConfigFile(cfg, globalPath); err != nil {
			return nil, fmt.Errorf("loading global config: %w", err)
		}
	}

	// Merge project config if exists (highest precedence)
	if projectPath != "" {
		if err := mergeConfigFile(cfg, projectPath); err != nil {
			return nil, fmt.Errorf("loading project config: %w", err)
		}
	}

	return cfg, nil
}

// DefaultPaths returns the conventional config locations.
// Global: ~/.magentic/config.json
// Project: .magentic/config.json (relative to cwd)
func DefaultPaths() (global, project string, err error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(homeDir, ".magentic", "config.json"), filepath.Join(".magentic", "config.json"), nil
}

// LoadDefault loads configuration from the conventional paths, then applies
// .env and environment overrides and validates the result.
func LoadDefault() (*MagenticConfig, error) {
	globalPath, projectPath, err := DefaultPaths()
	if err != nil {
		return nil, err
	}

	cfg, err := Load(globalPath, projectPath)
	if err != nil {
		return nil, err
	}

	if err := LoadDotEnv(".env"); err != nil {
		return nil, err
	}
	ApplyEnv(cfg, os.Getenv)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// mergeConfigFile reads a config file and merges it into the base config.
// Agents are replaced key by key; runtime and history fields only when the
// file sets them.
func mergeConfigFile(base *MagenticConfig, path string) error {
	// Check if file exists
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil // Missing file is not an error
	}

	v := viper.New()
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("json")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	var loaded MagenticConfig
	if err := v.Unmarshal(&loaded); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	// Merge agents
	for key, agent := range loaded.Agents {
		if base.Agents == nil {
			base.Agents = make(map[string]AgentConfig)
		}
		base.Agents[key] = agent
	}

	// Merge runtime
	r := &base.Runtime
	if v.IsSet("runtime.concurrency") {
		r.Concurrency = loaded.Runtime.Concurrency
	}
	if v.IsSet("runtime.poll_interval") {
		r.PollInterval = loaded.Runtime.PollInterval
	}
	if v.IsSet("runtime.max_polls") {
		r.MaxPolls = loaded.Runtime.MaxPolls
	}
	if v.IsSet("runtime.max_attempts") {
		r.MaxAttempts = loaded.Runtime.MaxAttempts
	}
	if v.IsSet("runtime.retry_backoff") {
		r.RetryBackoff = loaded.Runtime.RetryBackoff
	}
	if v.IsSet("runtime.conflict_rule") {
		r.ConflictRule = loaded.Runtime.ConflictRule
	}
	if v.IsSet("runtime.recipient") {
		r.Recipient = loaded.Runtime.Recipient
	}
	if v.IsSet("runtime.location") {
		r.Location = loaded.Runtime.Location
	}

	// Merge history
	if v.IsSet("history.enabled") {
		base.History.Enabled = loaded.History.Enabled
	}
	if v.IsSet("history.path") {
		base.History.Path = loaded.History.Path
	}

	return nil
}

// LoadDotEnv loads variables from a .env file without overriding variables
// already present in the environment. A missing file is not an error.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides configuration from environment variables.
//
//	PROJECT_ENDPOINT                    endpoint of the assistant agents
//	MODEL_DEPLOYMENT_NAME               model of the assistant agents
//	AZURE_SEARCH_ENDPOINT, _INDEX       hotel search connection
//	FOUNDRY_DATABRICKS_CONNECTION_NAME  genie connection
//	LOGIC_APP_TRIGGER_URL               email endpoint
//	RECIPIENT_EMAIL                     default email recipient
func ApplyEnv(cfg *MagenticConfig, getenv func(string) string) {
	endpoint := getenv("PROJECT_ENDPOINT")
	model := getenv("MODEL_DEPLOYMENT_NAME")

	for name, a := range cfg.Agents {
		if isAssistant(a.Provider) {
			if endpoint != "" {
				a.Endpoint = endpoint
			}
			if model != "" {
				a.Model = model
			}
		}

		switch name {
		case AgentHotel:
			searchEndpoint, index := getenv("AZURE_SEARCH_ENDPOINT"), getenv("AZURE_SEARCH_INDEX")
			if index != "" {
				a.Connection = index
				if searchEndpoint != "" {
					a.Connection = index + " at " + searchEndpoint
				}
			}
		case AgentTaxiGenie:
			if conn := getenv("FOUNDRY_DATABRICKS_CONNECTION_NAME"); conn != "" {
				a.Connection = conn
			}
		case AgentEmail:
			if url := getenv("LOGIC_APP_TRIGGER_URL"); url != "" && a.Provider == "logicapp" {
				a.Endpoint = url
			}
		}
		cfg.Agents[name] = a
	}

	if recipient := getenv("RECIPIENT_EMAIL"); recipient != "" {
		cfg.Runtime.Recipient = recipient
	}
}

func isAssistant(provider string) bool {
	return provider == "openai" || provider == "azure_openai"
}

var validate = validator.New()

// Validate checks the configuration against its struct tags.
func Validate(cfg *MagenticConfig) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(validationErrors))
	for _, e := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value: %v)", e.Namespace(), e.Tag(), e.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}
