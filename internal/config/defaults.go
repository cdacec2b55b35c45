package config

import "time"

// Team member names. They match the agent names the scenario graphs use.
const (
	AgentHotel      = "hotel"
	AgentTaxiFabric = "taxi_fabric"
	AgentTaxiGenie  = "taxi_genie"
	AgentEmail      = "email"
)

// DefaultModel is the deployment used when MODEL_DEPLOYMENT_NAME is unset.
const DefaultModel = "gpt-4o"

// TeamOrder is the order agents are registered and created in.
var TeamOrder = []string{AgentHotel, AgentTaxiFabric, AgentTaxiGenie, AgentEmail}

// DefaultConfig returns the default configuration with the built-in team.
func DefaultConfig() *MagenticConfig {
	return &MagenticConfig{
		Agents: map[string]AgentConfig{
			AgentHotel: {
				Provider:  "azure_openai",
				Model:     DefaultModel,
				APIKeyEnv: "AZURE_OPENAI_API_KEY",
			},
			AgentTaxiFabric: {
				Provider:  "azure_openai",
				Model:     DefaultModel,
				APIKeyEnv: "AZURE_OPENAI_API_KEY",
			},
			AgentTaxiGenie: {
				Provider:  "azure_openai",
				Model:     DefaultModel,
				APIKeyEnv: "AZURE_OPENAI_API_KEY",
			},
			AgentEmail: {
				Provider: "logicapp",
			},
		},
		Runtime: RuntimeConfig{
			Concurrency:  4,
			PollInterval: time.Second,
			MaxPolls:     300,
			MaxAttempts:  3,
			RetryBackoff: 2 * time.Second,
			ConflictRule: "newest_priority",
			Location:     "New York City",
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    ".magentic/history.db",
		},
	}
}
