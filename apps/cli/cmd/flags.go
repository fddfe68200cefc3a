package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/spf13/cobra"
)

// Domain flags shared by run, bench and sweep
var (
	loFlag       float64
	hiFlag       float64
	dxFlag       float64
	cflFlag      float64
	timeFlag     float64
	stepsFlag    int
	speedFlag    float64
	boundaryFlag string
)

// Problem flags shared by run and bench
var (
	modeFlag     string
	workersFlag  int
	equationFlag string
	initialFlag  string
	schemeFlag   string
	checkCFLFlag bool
)

func addDomainFlags(cmd *cobra.Command) {
	d := config.DefaultConfig().Domain
	cmd.Flags().Float64Var(&loFlag, "lo", d.Lo, "Left edge of the domain")
	cmd.Flags().Float64Var(&hiFlag, "hi", d.Hi, "Right edge of the domain (exclusive)")
	cmd.Flags().Float64Var(&dxFlag, "dx", d.DX, "Cell width")
	cmd.Flags().Float64Var(&cflFlag, "cfl", d.CFL, "Courant number, dt = cfl*dx")
	cmd.Flags().Float64Var(&timeFlag, "time", d.Time, "Final time, steps = floor(time/dt)")
	cmd.Flags().IntVar(&stepsFlag, "steps", 0, "Number of steps (overrides --time)")
	cmd.Flags().Float64Var(&speedFlag, "speed", d.Speed, "Advection velocity")
	cmd.Flags().StringVar(&boundaryFlag, "boundary", d.Boundary, "Boundary: periodic, outflow or fixed:L,R")
}

func addProblemFlags(cmd *cobra.Command) {
	r := config.DefaultConfig().Run
	cmd.Flags().StringVarP(&equationFlag, "equation", "e", r.Equation, "Equation: advection, burgers")
	cmd.Flags().StringVarP(&initialFlag, "initial", "i", r.Initial, "Initial condition: sine, square, ...")
	cmd.Flags().StringVarP(&schemeFlag, "scheme", "s", r.Scheme, "Scheme: upwind, lax-wendroff, lax-friedrichs, beam-warming")
	cmd.Flags().BoolVar(&checkCFLFlag, "check-cfl", true, "Fail steps that violate the CFL condition")
}

func addModeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&modeFlag, "mode", "m", "serial", "Runner: serial or parallel (env: CONSERVE_MODE)")
	cmd.Flags().IntVarP(&workersFlag, "workers", "w", 0, "Parallel workers, 0 means GOMAXPROCS (env: CONSERVE_WORKERS)")
}

// applyDomainFlags overrides the domain section with the flags that were set.
func applyDomainFlags(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("lo") {
		c.Domain.Lo = loFlag
	}
	if fs.Changed("hi") {
		c.Domain.Hi = hiFlag
	}
	if fs.Changed("dx") {
		c.Domain.DX = dxFlag
	}
	if fs.Changed("cfl") {
		c.Domain.CFL = cflFlag
	}
	if fs.Changed("time") {
		c.Domain.Time = timeFlag
	}
	if fs.Changed("steps") {
		c.Domain.Steps = stepsFlag
	}
	if fs.Changed("speed") {
		c.Domain.Speed = speedFlag
	}
	if fs.Changed("boundary") {
		c.Domain.Boundary = boundaryFlag
	}
}

// applyProblemFlags overrides the run section with the flags that were set.
func applyProblemFlags(cmd *cobra.Command, c *config.Config) {
	fs := cmd.Flags()
	if fs.Changed("equation") {
		c.Run.Equation = equationFlag
	}
	if fs.Changed("initial") {
		c.Run.Initial = initialFlag
	}
	if fs.Changed("scheme") {
		c.Run.Scheme = schemeFlag
	}
	if fs.Changed("check-cfl") {
		c.Run.CheckCFL = config.BoolPtr(checkCFLFlag)
	}
}

// applyModeFlags resolves mode and workers: flag, then environment, then config.
func applyModeFlags(cmd *cobra.Command, c *config.Config) error {
	c.Run.Mode = getEnvString("CONSERVE_MODE", c.Run.Mode)
	workers, err := getEnvInt("CONSERVE_WORKERS", c.Run.Workers)
	if err != nil {
		return err
	}
	c.Run.Workers = workers

	fs := cmd.Flags()
	if fs.Changed("mode") {
		c.Run.Mode = modeFlag
	}
	if fs.Changed("workers") {
		c.Run.Workers = workersFlag
	}
	return nil
}

// resolveMode parses the run mode and worker count of c.
func resolveMode(c *config.Config) (runner.Mode, int, error) {
	mode, err := runner.ParseMode(c.Run.Mode)
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", errUsage, err)
	}
	if c.Run.Workers < 0 {
		return "", 0, fmt.Errorf("%w: workers must not be negative, got %d", errUsage, c.Run.Workers)
	}
	workers := c.Run.Workers
	if workers == 0 {
		workers = runner.DefaultWorkers()
	}
	return mode, workers, nil
}

// effectiveConfig returns a copy of the loaded config with the command's
// flags applied.
func effectiveConfig(cmd *cobra.Command) (*config.Config, error) {
	c := *cfg
	c.Bench.Workers = append([]int(nil), cfg.Bench.Workers...)
	c.Sweep.Equations = append([]string(nil), cfg.Sweep.Equations...)
	c.Sweep.Initials = append([]string(nil), cfg.Sweep.Initials...)
	c.Sweep.Schemes = append([]string(nil), cfg.Sweep.Schemes...)

	if cmd.Flags().Lookup("lo") != nil {
		applyDomainFlags(cmd, &c)
	}
	if cmd.Flags().Lookup("equation") != nil {
		applyProblemFlags(cmd, &c)
	}
	if cmd.Flags().Lookup("mode") != nil {
		if err := applyModeFlags(cmd, &c); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\nReceived interrupt, stopping gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// openOutput returns the file named by path, or the command's output when
// path is empty.
func openOutput(cmd *cobra.Command, path string) (io.Writer, func(), error) {
	if path == "" {
		return cmd.OutOrStdout(), func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil
}
