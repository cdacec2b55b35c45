package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/payton-chou-ms/foundry-samples-sub000/internal/config"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/conflict"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/orchestrator"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/persistence"
	"github.com/payton-chou-ms/foundry-samples-sub000/internal/scenario"
)

func newDetectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detect <request>",
		Short: "Show which scenario a request maps to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), scenario.Detect(strings.Join(args, " ")))
			return nil
		},
	}
}

func newResolveCommand() *cobra.Command {
	var fabric, genie, rule string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Reconcile two analytics payloads",
		Long: "Resolve compares the Fabric and Genie payloads field by field. Each payload is\n" +
			"a JSON object, or @path to read it from a file.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := conflict.ParseRule(rule)
			if err != nil {
				return err
			}
			fabricRaw, err := readPayload(fabric)
			if err != nil {
				return err
			}
			genieRaw, err := readPayload(genie)
			if err != nil {
				return err
			}

			summary := conflict.ResolvePayloads(fabricRaw, genieRaw, r)
			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, summary); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, summary.Summary)
				if summary.Details != nil {
					fmt.Fprintln(out, orchestrator.RenderResult(summary.Details))
				}
			}
			return summary.Err
		},
	}

	cmd.Flags().StringVar(&fabric, "fabric", "", "Fabric payload (JSON or @file)")
	cmd.Flags().StringVar(&genie, "genie", "", "Genie payload (JSON or @file)")
	cmd.Flags().StringVar(&rule, "rule", string(conflict.DefaultRule), "Resolution rule")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the summary as JSON")
	cmd.MarkFlagRequired("fabric")
	cmd.MarkFlagRequired("genie")
	return cmd
}

func readPayload(v string) (string, error) {
	path, ok := strings.CutPrefix(v, "@")
	if !ok {
		return v, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read payload: %w", err)
	}
	return string(data), nil
}

func newStatusCommand(a *app) *cobra.Command {
	var check, offline bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the agent team and agents awaiting cleanup",
		Long: "Status lists the configured agents. With --check every agent is created and\n" +
			"cleaned up again, which verifies credentials and endpoints.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			logger, err := a.logger()
			if err != nil {
				return err
			}
			defer logger.Sync()

			rt, err := a.buildRuntime(cfg, offline, logger)
			if err != nil {
				return err
			}

			var initErr error
			if check {
				initErr = rt.Initialize(ctx)
			}
			printTeamStatus(out, rt.TeamStatus())
			if check {
				cleanupTeam(rt, nil, logger)
			}

			if cfg.History.Enabled {
				if err := printPendingSessions(ctx, out, cfg); err != nil {
					return err
				}
			}
			return initErr
		},
	}

	cmd.Flags().BoolVar(&check, "check", false, "Create and clean up every agent")
	cmd.Flags().BoolVar(&offline, "offline", false, "Use static agents")
	return cmd
}

func printPendingSessions(ctx context.Context, w io.Writer, cfg *config.MagenticConfig) error {
	store, err := persistence.NewSQLiteStore(ctx, cfg.History.Path)
	if err != nil {
		return fmt.Errorf("failed to open run history: %w", err)
	}
	defer store.Close()

	sessions, err := store.ListAgentSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}

	fmt.Fprintln(w, "\nAgents awaiting cleanup:")
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, s := range sessions {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\n", s.Agent, s.AgentID, s.ThreadID, s.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func sortedAgents(status orchestrator.TeamStatus) []string {
	names := make([]string, 0, len(status.Agents))
	for name := range status.Agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func newHistoryCommand(a *app) *cobra.Command {
	var limit int
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List recorded runs, or show one run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			if !cfg.History.Enabled {
				return errors.New("run history is disabled; set history.enabled in the config")
			}

			store, err := persistence.NewSQLiteStore(ctx, cfg.History.Path)
			if err != nil {
				return fmt.Errorf("failed to open run history: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				rec, err := store.GetRun(ctx, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(out, rec)
				}
				printRun(out, rec)
				return nil
			}

			runs, err := store.ListRuns(ctx, limit)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(out, runs)
			}
			printRuns(out, runs)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}

func runStatus(success bool) string {
	if success {
		return "succeeded"
	}
	return "failed"
}

func printRuns(w io.Writer, runs []persistence.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tSTARTED\tSCENARIO\tSTATUS\tDURATION\tCONFLICTS")
	for _, r := range runs {
		conflicts := "-"
		if r.ConflictCount != nil {
			conflicts = fmt.Sprintf("%d", *r.ConflictCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%v\t%s\n", r.RunID, r.StartedAt.Local().Format(time.DateTime),
			r.Scenario, runStatus(r.Success), r.Duration, conflicts)
	}
	tw.Flush()
}

func printRun(w io.Writer, r *persistence.RunRecord) {
	fmt.Fprintf(w, "Run %s: %s %s\n", r.RunID, r.Scenario, runStatus(r.Success))
	fmt.Fprintf(w, "Query: %s\n", r.Query)
	fmt.Fprintf(w, "Started: %s (%v)\n", r.StartedAt.Local().Format(time.DateTime), r.Duration)
	if len(r.Phases) > 0 {
		fmt.Fprintf(w, "Phases: %s\n", strings.Join(r.Phases, " > "))
	}
	if r.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", r.Error)
	}

	if len(r.Tasks) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TASK\tAGENT\tSTATUS\tATTEMPTS\tERROR")
		for _, t := range r.Tasks {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", t.TaskID, t.Agent, t.Status, t.Attempts, t.Error)
		}
		tw.Flush()
	}

	if r.ConflictReport != nil {
		fmt.Fprintf(w, "\n%s\n", orchestrator.RenderResult(r.ConflictReport))
	}
	if r.Result != "" {
		fmt.Fprintf(w, "\n%s\n", r.Result)
	}
}

func newConfigCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create configuration files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.loadConfig()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), cfg)
		},
	})

	var global, force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			globalPath, projectPath, err := a.configPaths()
			if err != nil {
				return err
			}
			path := projectPath
			if global {
				if globalPath == "" {
					return errors.New("--global cannot be combined with --config")
				}
				path = globalPath
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&global, "global", false, "Write ~/.magentic/config.json instead of the project file")
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	cmd.AddCommand(initCmd)

	return cmd
}
