package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/agent"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/config"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/events"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/orchestrator"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/persistence"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scenario"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/tui"
)

const cleanupTimeout = 30 * time.Second

type runOptions struct {
	scenario  string
	rule      string
	offline   bool
	tui       bool
	json      bool
	noHistory bool
}

func newRunCommand(a *app) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <request>",
		Short: "Run a request through the agent team",
		Long: "Run detects the scenario for the request (unless --scenario is given), builds its\n" +
			"task graph and executes it. The command fails when the scenario fails.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.run(cmd.Context(), cmd.OutOrStdout(), strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.scenario, "scenario", "s", string(scenario.Auto), "Scenario: auto, travel_query, data_consistency or decision_package")
	cmd.Flags().StringVar(&opts.rule, "rule", "", "Conflict rule overriding the configured one")
	cmd.Flags().BoolVar(&opts.offline, "offline", false, "Use static agents with sample data instead of remote services")
	cmd.Flags().BoolVar(&opts.tui, "tui", false, "Show live progress in a terminal UI")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "Do not record this run even if history is enabled")
	return cmd
}

func (a *app) run(ctx context.Context, out io.Writer, query string, opts *runOptions) error {
	scenarioType, err := scenario.ParseType(opts.scenario)
	if err != nil {
		return err
	}

	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if opts.rule != "" {
		cfg.Runtime.ConflictRule = opts.rule
	}

	logger, err := a.logger()
	if err != nil {
		return err
	}
	if opts.tui {
		// The terminal belongs to the UI
		logger = zap.NewNop()
	}
	defer logger.Sync()

	var extra []orchestrator.Option
	var store persistence.Store
	if cfg.History.Enabled && !opts.noHistory {
		s, err := persistence.NewSQLiteStore(ctx, cfg.History.Path)
		if err != nil {
			return fmt.Errorf("failed to open run history: %w", err)
		}
		defer s.Close()
		store = s
		extra = append(extra, orchestrator.WithRecorder(s))
	}

	var bus *events.Bus
	if opts.tui {
		bus = events.NewBus()
		defer bus.Close()
		extra = append(extra, orchestrator.WithEventBus(bus))
	}

	rt, err := a.buildRuntime(cfg, opts.offline, logger, extra...)
	if err != nil {
		return err
	}

	initErr := rt.Initialize(ctx)
	if store != nil {
		trackSessions(ctx, store, rt, logger)
	}
	defer cleanupTeam(rt, store, logger)

	if initErr != nil {
		printTeamStatus(out, rt.TeamStatus())
		return initErr
	}

	var result orchestrator.ScenarioResult
	if opts.tui {
		global, project, err := a.configPaths()
		if err != nil {
			return err
		}
		result, err = runWithUI(ctx, rt, tui.New(bus, cfg, global, project), query, scenarioType)
		if err != nil {
			return err
		}
	} else {
		result = rt.ExecuteScenario(ctx, query, scenarioType)
	}

	if opts.json {
		if err := writeJSON(out, result); err != nil {
			return err
		}
	} else {
		printResult(out, result)
	}

	if !result.Success {
		return fmt.Errorf("scenario failed: %s", result.Error)
	}
	return nil
}

// buildRuntime registers the configured team on a new runtime.
func (a *app) buildRuntime(cfg *config.MagenticConfig, offline bool, logger *zap.Logger, extra ...orchestrator.Option) (*orchestrator.Runtime, error) {
	opts, err := cfg.RuntimeOptions()
	if err != nil {
		return nil, err
	}
	opts = append(opts, orchestrator.WithLogger(logger))
	opts = append(opts, extra...)
	rt := orchestrator.NewRuntime(opts...)

	members := cfg.AgentConfigs(a.getenv)
	if offline {
		members = cfg.OfflineAgentConfigs()
	}
	for _, mc := range members {
		mc.Processes = a.procs
		ag, err := agent.New(mc, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create agent %s: %w", mc.Name, err)
		}
		if err := rt.Register(ag); err != nil {
			return nil, err
		}
	}
	return rt, nil
}

// trackSessions records the remote agents a run created so an interrupted
// process leaves a trace of what needs deleting.
func trackSessions(ctx context.Context, store persistence.Store, rt *orchestrator.Runtime, logger *zap.Logger) {
	for name, s := range rt.TeamStatus().Agents {
		if s.AgentID == "" {
			continue
		}
		err := store.SaveAgentSession(ctx, persistence.AgentSession{Agent: name, AgentID: s.AgentID, ThreadID: s.ThreadID})
		if err != nil {
			logger.Warn("failed to record agent session", zap.String("agent", name), zap.Error(err))
		}
	}
}

func cleanupTeam(rt *orchestrator.Runtime, store persistence.Store, logger *zap.Logger) {
	// Cleanup must run even when the run was interrupted
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()

	for name, ok := range rt.Cleanup(ctx) {
		if !ok || store == nil {
			continue
		}
		if err := store.DeleteAgentSession(ctx, name); err != nil {
			logger.Warn("failed to clear agent session", zap.String("agent", name), zap.Error(err))
		}
	}
}

// runWithUI executes the scenario while the terminal UI renders its events.
// It returns once the scenario has finished and the user has left the UI.
func runWithUI(ctx context.Context, rt *orchestrator.Runtime, model tui.Model, query string, scenarioType scenario.Type) (orchestrator.ScenarioResult, error) {
	p := tea.NewProgram(model, tea.WithAltScreen())

	errChan := make(chan error, 1)
	go func() {
		_, err := p.Run()
		errChan <- err
	}()

	resultChan := make(chan orchestrator.ScenarioResult, 1)
	go func() {
		resultChan <- rt.ExecuteScenario(ctx, query, scenarioType)
	}()

	var result orchestrator.ScenarioResult
	select {
	case result = <-resultChan:
	case err := <-errChan:
		// UI closed early; the scenario keeps running to completion
		result = <-resultChan
		return result, uiError(err)
	}

	select {
	case err := <-errChan:
		return result, uiError(err)
	case <-ctx.Done():
		p.Quit()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		select {
		case err := <-errChan:
			return result, uiError(err)
		case <-shutdownCtx.Done():
			return result, errors.New("terminal UI did not exit")
		}
	}
}

func uiError(err error) error {
	if err == nil || errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return fmt.Errorf("terminal UI failed: %w", err)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}

func printResult(w io.Writer, res orchestrator.ScenarioResult) {
	status := "succeeded"
	if !res.Success {
		status = "failed"
	}
	fmt.Fprintf(w, "Scenario %s (%s) %s in %v\n", res.ScenarioType, res.GraphID, status, res.Duration.Round(time.Millisecond))
	if res.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", res.Error)
	}

	if len(res.Tasks) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TASK\tAGENT\tSTATUS\tATTEMPTS\tDURATION")
		for _, t := range res.Tasks {
			name := t.TaskID
			if t.Optional {
				name += " (optional)"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%v\n", name, t.Agent, t.Status, t.Attempts, t.Duration.Round(time.Millisecond))
		}
		tw.Flush()
	}

	if r := res.ConflictReport; r != nil {
		fmt.Fprintf(w, "\n%s\n", orchestrator.RenderResult(r))
		if r.ResolutionRule == conflict.ReportDifference && r.ConflictCount > 0 {
			fmt.Fprintln(w, "Conflicting fields were left unresolved.")
		}
	}

	if res.Result != "" {
		fmt.Fprintf(w, "\n%s\n", res.Result)
	}
}

func printTeamStatus(w io.Writer, status orchestrator.TeamStatus) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tROLE\tINITIALIZED\tAGENT ID\tERROR")
	for _, name := range sortedAgents(status) {
		s := status.Agents[name]
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\t%s\n", name, s.Role, s.Initialized, s.AgentID, s.Error)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nOrchestration ready: %v\n", status.OrchestrationReady)
}
