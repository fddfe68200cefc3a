package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/bench"
	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/abdul-hamid-achik/conserve/packages/experiment"
	"github.com/abdul-hamid-achik/conserve/packages/output"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run a matrix of equations, initial waves and schemes",
	Long: `Run every combination of the given equations, initial conditions and
schemes on the same domain. Experiments run concurrently; each one uses
the serial or the parallel runner.

Examples:
  conserve sweep
  conserve sweep --equations advection --schemes upwind,lax-wendroff
  conserve sweep --mode parallel --workers 4 --concurrency 2
  conserve sweep --output-dir frames --frame-every 25
  conserve sweep --output junit --output-file sweep.xml --bail`,
	Args: cobra.NoArgs,
	RunE: sweepCommand,
}

var (
	sweepEquationsFlag   string
	sweepInitialsFlag    string
	sweepSchemesFlag     string
	sweepConcurrencyFlag int
	sweepOutputDirFlag   string
	sweepFrameEveryFlag  int
	sweepBailFlag        bool
)

func init() {
	addDomainFlags(sweepCmd)
	addModeFlags(sweepCmd)

	s := config.DefaultConfig().Sweep
	sweepCmd.Flags().StringVar(&sweepEquationsFlag, "equations", strings.Join(s.Equations, ","), "Comma separated equations")
	sweepCmd.Flags().StringVar(&sweepInitialsFlag, "initials", strings.Join(s.Initials, ","), "Comma separated initial conditions")
	sweepCmd.Flags().StringVar(&sweepSchemesFlag, "schemes", strings.Join(s.Schemes, ","), "Comma separated schemes")
	sweepCmd.Flags().IntVar(&sweepConcurrencyFlag, "concurrency", 0, "Experiments run at once, 0 means all")
	sweepCmd.Flags().StringVar(&sweepOutputDirFlag, "output-dir", "", "Write step,x,u frames of every experiment to this directory")
	sweepCmd.Flags().IntVar(&sweepFrameEveryFlag, "frame-every", 1, "Steps between frames")
	sweepCmd.Flags().BoolVar(&sweepBailFlag, "bail", false, "Stop at the first failing experiment")

	sweepCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Print diagnostics of every experiment")
	sweepCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output format: console, json, junit")
	sweepCmd.Flags().StringVar(&outputFileFlag, "output-file", "", "Write output to file (default: stdout)")
}

func sweepCommand(cmd *cobra.Command, args []string) error {
	c, err := effectiveConfig(cmd)
	if err != nil {
		return err
	}

	fs := cmd.Flags()
	if fs.Changed("equations") {
		c.Sweep.Equations = experiment.ParseNames(sweepEquationsFlag)
	}
	if fs.Changed("initials") {
		c.Sweep.Initials = experiment.ParseNames(sweepInitialsFlag)
	}
	if fs.Changed("schemes") {
		c.Sweep.Schemes = experiment.ParseNames(sweepSchemesFlag)
	}
	if fs.Changed("concurrency") {
		c.Sweep.Concurrency = sweepConcurrencyFlag
	}
	if fs.Changed("output-dir") {
		c.Sweep.OutputDir = sweepOutputDirFlag
	}
	if fs.Changed("frame-every") {
		c.Sweep.FrameEvery = sweepFrameEveryFlag
	}
	if fs.Changed("bail") {
		c.Sweep.Bail = &sweepBailFlag
	}

	specs := c.SweepSpecs()
	if len(specs) == 0 {
		return fmt.Errorf("%w: the sweep matrix is empty", errUsage)
	}
	if c.Sweep.Concurrency < 0 {
		return fmt.Errorf("%w: concurrency must not be negative", errUsage)
	}

	mode, workers, err := resolveMode(c)
	if err != nil {
		return err
	}
	d, err := c.ExperimentDomain()
	if err != nil {
		return err
	}

	w, closeOutput, err := openOutput(cmd, outputFileFlag)
	if err != nil {
		return err
	}
	defer closeOutput()

	format := c.Output.Format
	if outputFlag != "" {
		format = outputFlag
	}
	formatter, err := output.New(format, w, verboseFlag || c.GetVerbose(), noColorFlag)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	formatter.FormatHeader(version)

	sweeper := experiment.NewSweeper(&experiment.Config{
		Domain:      d,
		Mode:        mode,
		Workers:     workers,
		Concurrency: c.Sweep.Concurrency,
		Bail:        c.GetBail(),
		OutputDir:   c.Sweep.OutputDir,
		FrameEvery:  max(c.Sweep.FrameEvery, 1),
	},
		experiment.WithLogger(log),
		experiment.WithOnDone(func(o *experiment.Outcome) {
			log.Info("experiment done",
				zap.String("experiment", o.Name()),
				zap.Duration("elapsed", o.Duration),
				zap.Bool("failed", o.Failed()))
		}),
	)

	ctx, cancel := signalContext()
	defer cancel()

	cpuStart := bench.ReadCPUTime()
	start := time.Now()
	outcomes, runErr := sweeper.Run(ctx, specs)
	wall := time.Since(start)
	cpu := bench.ReadCPUTime().Sub(cpuStart)
	if outcomes == nil && runErr != nil {
		formatter.FormatError(runErr)
		return &exitError{code: exitCode(runErr), err: runErr, silent: true}
	}

	reports := make([]*output.RunReport, len(outcomes))
	for i, o := range outcomes {
		reports[i] = o.Report(mode, workers)
		formatter.FormatRun(reports[i])
	}
	if flushable, ok := formatter.(output.Flushable); ok {
		if err := flushable.Flush(wall); err != nil {
			return fmt.Errorf("error writing output: %w", err)
		}
	}

	// Experiments overlap, so CPU time is only known for the whole sweep.
	summary := w
	if _, ok := formatter.(*output.ConsoleFormatter); !ok {
		summary = cmd.ErrOrStderr()
	}
	fmt.Fprintf(summary, "Sweep: %s\n", output.TimeLine(cpu.User, cpu.System, wall))

	code := ExitSuccess
	for _, o := range outcomes {
		if o.Failed() {
			code = max(code, exitCode(o.Err))
		}
	}
	if code != ExitSuccess {
		_, failed, _ := output.Tally(reports)
		return &exitError{code: code, err: fmt.Errorf("%d experiments failed", failed), silent: true}
	}
	if runErr != nil {
		return &exitError{code: exitCode(runErr), err: runErr, silent: true}
	}
	return nil
}
