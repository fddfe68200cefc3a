package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abdul-hamid-achik/conserve/packages/bench"
	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/abdul-hamid-achik/conserve/packages/export/metrics"
	"github.com/abdul-hamid-achik/conserve/packages/history"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Compare serial and parallel runs of one problem",
	Long: `Run one problem serially and with every requested worker count, report
wall and CPU time of each case, and check that every parallel result
matches the serial baseline.

Examples:
  conserve bench
  conserve bench --workers 1,2,4,8 --repeat 5 --steps 500
  conserve bench --threshold "speedup>=1.5,p99<5ms"
  conserve bench --json > bench.json
  conserve bench --metrics prometheus --metrics-port 9090
  conserve bench --metrics prometheus --metrics-file bench.prom
  conserve bench --history sqlite://bench.db`,
	Args: cobra.NoArgs,
	RunE: benchCommand,
}

var (
	benchWorkersFlag    string
	benchRepeatFlag     int
	benchWarmupFlag     int
	benchToleranceFlag  float64
	benchThresholdFlag  string
	benchJSONFlag       bool
	benchNoProgressFlag bool
	benchVerboseFlag    bool

	// Metrics flags
	metricsFlag     string
	metricsFileFlag string
	metricsPortFlag int

	historyFlag string
)

func init() {
	addDomainFlags(benchCmd)
	addProblemFlags(benchCmd)

	b := config.DefaultConfig().Bench
	benchCmd.Flags().StringVarP(&benchWorkersFlag, "workers", "w", "", "Comma separated worker counts (default 1,2,4,8) (env: CONSERVE_BENCH_WORKERS)")
	benchCmd.Flags().IntVar(&benchRepeatFlag, "repeat", b.Repeat, "Measured runs per case")
	benchCmd.Flags().IntVar(&benchWarmupFlag, "warmup", b.Warmup, "Unmeasured runs per case")
	benchCmd.Flags().Float64Var(&benchToleranceFlag, "tolerance", b.Tolerance, "Largest deviation from the serial baseline")
	benchCmd.Flags().StringVar(&benchThresholdFlag, "threshold", "", "Pass/fail thresholds (e.g., \"speedup>=1.5,p99<5ms\")")
	benchCmd.Flags().BoolVar(&benchJSONFlag, "json", false, "Print the result as JSON on stdout")
	benchCmd.Flags().BoolVar(&benchNoProgressFlag, "no-progress", false, "Disable the progress bar")
	benchCmd.Flags().BoolVarP(&benchVerboseFlag, "verbose", "v", false, "Print step latency percentiles")

	benchCmd.Flags().StringVar(&metricsFlag, "metrics", "", "Metrics export format: prometheus, json")
	benchCmd.Flags().StringVar(&metricsFileFlag, "metrics-file", "", "Output file for metrics")
	benchCmd.Flags().IntVar(&metricsPortFlag, "metrics-port", 0, "Port for the Prometheus /metrics endpoint")
	benchCmd.Flags().StringVar(&historyFlag, "history", "", "Store the result in a database, e.g. sqlite://bench.db (env: CONSERVE_HISTORY)")
}

// applyBenchFlags overrides the bench, metrics and history settings of c.
func applyBenchFlags(cmd *cobra.Command, c *config.Config) error {
	fs := cmd.Flags()

	workers := getEnvString("CONSERVE_BENCH_WORKERS", "")
	if fs.Changed("workers") {
		workers = benchWorkersFlag
	}
	if workers != "" {
		list, err := bench.ParseWorkers(workers)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		c.Bench.Workers = list
	}

	if fs.Changed("repeat") {
		c.Bench.Repeat = benchRepeatFlag
	}
	if fs.Changed("warmup") {
		c.Bench.Warmup = benchWarmupFlag
	}
	if fs.Changed("tolerance") {
		c.Bench.Tolerance = benchToleranceFlag
	}
	if fs.Changed("threshold") {
		c.Bench.Thresholds = benchThresholdFlag
	}

	if fs.Changed("metrics") {
		c.Metrics.Format = metricsFlag
	}
	if fs.Changed("metrics-file") {
		c.Metrics.File = metricsFileFlag
	}
	if fs.Changed("metrics-port") {
		c.Metrics.Port = metricsPortFlag
	}

	c.History = getEnvString("CONSERVE_HISTORY", c.History)
	if fs.Changed("history") {
		c.History = historyFlag
	}
	return nil
}

func benchCommand(cmd *cobra.Command, args []string) error {
	c, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}
	if err := applyBenchFlags(cmd, c); err != nil {
		return err
	}

	if _, err := bench.ParseThresholds(c.Bench.Thresholds); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	bc := c.BenchConfig()
	if err := bc.Validate(); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	d, err := c.ExperimentDomain()
	if err != nil {
		return err
	}
	spec := c.RunSpec()
	p, initial, err := spec.Build(d)
	if err != nil {
		return err
	}
	p.CheckCFL = c.GetCheckCFL()

	// With --json the human readable report goes to stderr
	var reportWriter io.Writer = cmd.OutOrStdout()
	if benchJSONFlag {
		reportWriter = cmd.ErrOrStderr()
	}
	reporter := bench.NewReporter(
		bench.WithWriter(reportWriter),
		bench.WithNoColor(noColorFlag),
		bench.WithNoProgress(benchNoProgressFlag),
		bench.WithVerbose(benchVerboseFlag || c.GetVerbose()),
	)

	collector, serving, err := newMetricsCollector(cmd, c.Metrics)
	if err != nil {
		return err
	}
	defer func() {
		if collector != nil {
			_ = collector.Close()
		}
	}()

	runnerOpts := []bench.RunnerOption{
		bench.WithReporter(reporter),
		bench.WithLogger(log),
		bench.WithVersion(version),
	}
	if collector != nil {
		runnerOpts = append(runnerOpts, bench.WithCaseHook(collector.RecordCase))
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := bench.NewRunner(bc, runnerOpts...).Run(ctx, p, initial, d.StepCount())
	if err != nil {
		reporter.Error("%v", err)
		return &exitError{code: exitCode(err), err: err, silent: true}
	}

	runID := uuid.NewString()
	if c.History != "" {
		if runID, err = saveHistory(ctx, c.History, result); err != nil {
			reporter.Error("%v", err)
			return withExitCode(ExitConfigError, err)
		}
		reporter.Info("Saved as run %s", runID)
	}

	if collector != nil {
		if err := collector.Flush(result, runID, version); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to export metrics: %v\n", err)
		}
	}
	if serving != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Serving metrics on http://%s/metrics (press Ctrl+C to stop)\n", serving)
		<-ctx.Done()
	}

	if benchJSONFlag {
		jsonReporter := bench.NewReporter(bench.WithWriter(cmd.OutOrStdout()), bench.WithNoProgress(true))
		if err := jsonReporter.JSONSummary(result); err != nil {
			return err
		}
	}

	switch {
	case !result.Equivalent:
		return verificationFailed(errors.New("parallel results differ from the serial baseline"))
	case !result.Passed:
		return verificationFailed(errors.New("thresholds failed"))
	}
	return nil
}

// newMetricsCollector builds the exporters named in m. It returns nil when
// no format is set, and the address of the Prometheus endpoint if one is served.
func newMetricsCollector(cmd *cobra.Command, m config.MetricsConfig) (*metrics.Collector, string, error) {
	if m.Format == "" {
		return nil, "", nil
	}

	var serving string
	var exporters []metrics.Exporter
	for _, format := range strings.Split(m.Format, ",") {
		format = strings.TrimSpace(format)
		switch strings.ToLower(format) {
		case "prometheus":
			var opts []metrics.PrometheusOption
			switch {
			case m.File != "":
				opts = append(opts, metrics.WithPrometheusFile(m.File))
			case m.Port > 0:
				opts = append(opts, metrics.WithPrometheusHTTP(m.Port))
			default:
				opts = append(opts, metrics.WithPrometheusWriter(cmd.ErrOrStderr()))
			}
			promExporter, err := metrics.NewPrometheusExporter(opts...)
			if err != nil {
				return nil, "", err
			}
			serving = promExporter.Addr()
			exporters = append(exporters, promExporter)

		case "json":
			jsonOpts := []metrics.JSONOption{metrics.WithJSONPretty(true)}
			if m.File != "" {
				jsonOpts = append(jsonOpts, metrics.WithJSONFile(m.File))
			} else {
				jsonOpts = append(jsonOpts, metrics.WithJSONWriter(cmd.ErrOrStderr()))
			}
			exporters = append(exporters, metrics.NewJSONExporter(jsonOpts...))

		default:
			return nil, "", fmt.Errorf("%w: unknown metrics format %q (available: prometheus, json)", errUsage, format)
		}
	}

	return metrics.NewCollector(exporters...), serving, nil
}

// saveHistory stores result and returns its run id.
func saveHistory(ctx context.Context, conn string, result *bench.Result) (string, error) {
	store, err := history.Open(ctx, conn, history.WithLogger(log))
	if err != nil {
		return "", err
	}
	defer store.Close()

	run := history.NewRun(result, version)
	if err := store.Save(ctx, run); err != nil {
		return "", err
	}
	log.Info("bench saved", zap.String("id", run.ID), zap.String("database", conn))
	return run.ID, nil
}
