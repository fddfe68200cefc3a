package cmd

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/bench"
	"github.com/abdul-hamid-achik/conserve/packages/core/logger"
	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/abdul-hamid-achik/conserve/packages/experiment"
	"github.com/abdul-hamid-achik/conserve/packages/output"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewExampleCommand returns the command of a standalone binary that runs the
// default experiment matrix on the default domain and writes the frames of
// every experiment to --output-dir. With concurrent set the experiments run
// at the same time, otherwise one after another.
func NewExampleCommand(name string, concurrent bool) *cobra.Command {
	var (
		outputDir  string
		frameEvery int
		level      string
	)

	how := "one after another"
	if concurrent {
		how = "concurrently"
	}

	c := &cobra.Command{
		Use:   name,
		Short: "Run every equation, initial wave and scheme " + how,
		Long: fmt.Sprintf(`Run the advection and inviscid Burgers equations from a sine and a square
wave with the upwind, Beam-Warming, Lax-Wendroff and Lax-Friedrichs schemes
on [-3, 3] with dx=0.01, CFL 0.6 and t=3. Experiments run %s.`, how),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := logger.New(level)
			if err != nil {
				return fmt.Errorf("%w: %v", errUsage, err)
			}
			defer func() { _ = l.Sync() }()

			if outputDir != "" {
				if err := os.MkdirAll(outputDir, 0o755); err != nil {
					return err
				}
			}

			concurrency := 1
			if concurrent {
				concurrency = 0
			}

			var mu sync.Mutex
			w := cmd.OutOrStdout()
			sweeper := experiment.NewSweeper(&experiment.Config{
				Domain:      experiment.DefaultDomain(),
				Mode:        runner.Serial,
				Concurrency: concurrency,
				OutputDir:   outputDir,
				FrameEvery:  max(frameEvery, 1),
			},
				experiment.WithLogger(l),
				experiment.WithOnDone(func(o *experiment.Outcome) {
					mu.Lock()
					defer mu.Unlock()
					if o.Failed() {
						fmt.Fprintf(w, "Processing %s: %v\n", o.Name(), o.Err)
						return
					}
					fmt.Fprintf(w, "Processing %s (%.3fs)\n", o.Name(), o.Duration.Seconds())
				}),
			)

			ctx, cancel := signalContext()
			defer cancel()

			cpuBefore := bench.ReadCPUTime()
			start := time.Now()
			outcomes, runErr := sweeper.Run(ctx, experiment.DefaultMatrix())
			wall := time.Since(start)
			cpu := bench.ReadCPUTime().Sub(cpuBefore)
			l.Debug("matrix done", zap.Int("experiments", len(outcomes)), zap.Duration("wall", wall))

			fmt.Fprintf(w, "%s  %s\n", name, output.TimeLine(cpu.User, cpu.System, wall))

			code := ExitSuccess
			failed := 0
			for _, o := range outcomes {
				if o.Failed() {
					failed++
					code = max(code, exitCode(o.Err))
				}
			}
			if code != ExitSuccess {
				return &exitError{code: code, err: fmt.Errorf("%d experiments failed", failed)}
			}
			return runErr
		},
	}

	c.Flags().StringVarP(&outputDir, "output-dir", "o", "outputs", "Directory for the step,x,u frames, empty to skip them")
	c.Flags().IntVar(&frameEvery, "frame-every", 1, "Steps between frames")
	c.Flags().StringVar(&level, "log-level", "warn", "Log level: debug, info, warn, error")
	c.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", errUsage, err)
	})
	return c
}

// ExecuteExample runs c and exits with its exit code.
func ExecuteExample(c *cobra.Command) {
	if err := c.Execute(); err != nil {
		if !isSilent(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(exitCode(err))
	}
}
