package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/abdul-hamid-achik/conserve/packages/history"
	"github.com/spf13/cobra"
)

var (
	historyLimitFlag int
	historyJSONFlag  bool
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show stored bench runs",
	Long: `List the bench runs stored with 'conserve bench --history', or show the
cases of one run. A run id may be abbreviated to a unique prefix.

Examples:
  conserve history --history sqlite://bench.db
  conserve history 3f2a --history sqlite://bench.db
  CONSERVE_HISTORY=sqlite://bench.db conserve history --limit 5 --json`,
	Args: cobra.MaximumNArgs(1),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyFlag, "history", "", "Database with stored runs, e.g. sqlite://bench.db (env: CONSERVE_HISTORY)")
	historyCmd.Flags().IntVarP(&historyLimitFlag, "limit", "n", 20, "Number of runs to list, 0 for all")
	historyCmd.Flags().BoolVar(&historyJSONFlag, "json", false, "Print as JSON")
}

func historyCommand(cmd *cobra.Command, args []string) error {
	conn := getEnvString("CONSERVE_HISTORY", cfg.History)
	if cmd.Flags().Changed("history") {
		conn = historyFlag
	}
	if conn == "" {
		return fmt.Errorf("%w: no history database (use --history or CONSERVE_HISTORY)", errUsage)
	}

	ctx := context.Background()
	store, err := history.Open(ctx, conn, history.WithLogger(log))
	if err != nil {
		return withExitCode(ExitConfigError, err)
	}
	defer store.Close()

	w := cmd.OutOrStdout()
	if len(args) == 1 {
		run, err := store.Get(ctx, args[0])
		if errors.Is(err, history.ErrNotFound) {
			return fmt.Errorf("%w: no run with id %q", errUsage, args[0])
		}
		if err != nil {
			return err
		}
		if historyJSONFlag {
			return writeJSON(w, run)
		}
		printRun(w, run)
		return nil
	}

	runs, err := store.List(ctx, historyLimitFlag)
	if err != nil {
		return err
	}
	if historyJSONFlag {
		return writeJSON(w, runs)
	}
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored.")
		return nil
	}

	t := newTable("Bench runs", "id", "started", "problem", "steps", "cases", "best speedup", "passed")
	for _, run := range runs {
		t.addRow(
			shortID(run.ID),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Problem,
			strconv.Itoa(run.Steps),
			strconv.Itoa(len(run.Cases)),
			fmt.Sprintf("%.2f", run.BestSpeedup()),
			yesNo(run.Passed),
		)
	}
	fmt.Fprint(w, t.render(noColorFlag))
	return nil
}

func printRun(w io.Writer, run *history.Run) {
	fmt.Fprintf(w, "Run:        %s\n", run.ID)
	fmt.Fprintf(w, "Started:    %s\n", run.StartedAt.Local().Format("2006-01-02 15:04:05"))
	if run.Version != "" {
		fmt.Fprintf(w, "Version:    %s\n", run.Version)
	}
	fmt.Fprintf(w, "Problem:    %s\n", run.Problem)
	fmt.Fprintf(w, "Steps:      %d\n", run.Steps)
	fmt.Fprintf(w, "Duration:   %.3fs\n", run.Duration)
	fmt.Fprintf(w, "Equivalent: %s (tolerance %g)\n", yesNo(run.Equivalent), run.Tolerance)
	fmt.Fprintf(w, "Scaling:    %s\n", yesNo(run.Scaling))
	fmt.Fprintf(w, "Passed:     %s\n\n", yesNo(run.Passed))

	t := newTable("", "case", "wall", "user", "system", "speedup", "eff", "deviation", "step p99")
	for _, c := range run.Cases {
		t.addRow(
			c.Name,
			fmt.Sprintf("%.3fs", c.Wall),
			fmt.Sprintf("%.3fs", c.User),
			fmt.Sprintf("%.3fs", c.System),
			fmt.Sprintf("%.2f", c.Speedup),
			fmt.Sprintf("%.2f", c.Efficiency),
			strconv.FormatFloat(c.Deviation, 'g', 3, 64),
			fmt.Sprintf("%.1fµs", c.StepP99*1e6),
		)
	}
	fmt.Fprint(w, t.render(noColorFlag))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
