package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/agent"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/config"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/logging"
)

func main() {
	// Create signal-aware context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := newApp()
	go func() {
		<-ctx.Done()
		// Command agents run in their own process groups
		a.procs.KillAll()
	}()

	if err := newRootCommand(a).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// app carries the global flags and the process environment.
type app struct {
	configPath string
	envFile    string
	logLevel   string
	logJSON    bool
	getenv     func(string) string
	procs      *agent.ProcessManager
}

func newApp() *app {
	return &app{envFile: ".env", getenv: os.Getenv, procs: agent.NewProcessManager()}
}

func newRootCommand(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "magentic",
		Short: "Multi-agent travel and taxi analytics orchestrator",
		Long: "Magentic routes a request to a team of agents (hotel search, two taxi analytics\n" +
			"sources and email delivery), runs the scenario graph and reconciles the analytics.",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file to use instead of ~/.magentic and .magentic")
	flags.StringVar(&a.envFile, "env-file", a.envFile, "Dotenv file loaded before environment overrides")
	flags.StringVar(&a.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	flags.BoolVar(&a.logJSON, "log-json", false, "Write logs as JSON")

	rootCmd.AddCommand(newRunCommand(a))
	rootCmd.AddCommand(newDetectCommand())
	rootCmd.AddCommand(newResolveCommand())
	rootCmd.AddCommand(newStatusCommand(a))
	rootCmd.AddCommand(newHistoryCommand(a))
	rootCmd.AddCommand(newConfigCommand(a))
	return rootCmd
}

// configPaths returns the global and project files this invocation reads.
// With --config only that file is used.
func (a *app) configPaths() (global, project string, err error) {
	if a.configPath != "" {
		return "", a.configPath, nil
	}
	return config.DefaultPaths()
}

// loadConfig merges the config files, applies .env and environment
// overrides, and validates the result.
func (a *app) loadConfig() (*config.MagenticConfig, error) {
	global, project, err := a.configPaths()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(global, project)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if a.envFile != "" {
		if err := config.LoadDotEnv(a.envFile); err != nil {
			return nil, err
		}
	}
	config.ApplyEnv(cfg, a.getenv)

	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) logger() (*zap.Logger, error) {
	return logging.New(a.logLevel, a.logJSON)
}
