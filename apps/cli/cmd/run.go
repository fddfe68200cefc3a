package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/bench"
	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/abdul-hamid-achik/conserve/packages/experiment"
	"github.com/abdul-hamid-achik/conserve/packages/export/stream"
	"github.com/abdul-hamid-achik/conserve/packages/output"
	"github.com/abdul-hamid-achik/conserve/packages/snapshot"
	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Integrate one problem",
	Long: `Integrate one conservation law problem and print the time it took.

Examples:
  conserve run
  conserve run --equation advection --initial square --scheme upwind
  conserve run --mode parallel --workers 4 --steps 500
  conserve run --state-file final.csv --frames-dir frames --frame-every 10
  conserve run --snapshot burgers-sine --update-snapshots
  conserve run --serve 127.0.0.1:8080
  conserve run --watch --config conserve.yaml`,
	Args: cobra.NoArgs,
	RunE: runCommand,
}

const (
	// WatchDebounceDelay is the debounce delay for config file events
	WatchDebounceDelay = 300 * time.Millisecond
)

var (
	verboseFlag         bool
	outputFlag          string
	outputFileFlag      string
	stateFileFlag       string
	framesDirFlag       string
	frameEveryFlag      int
	snapshotFlag        string
	updateSnapshotsFlag bool
	watchFlag           bool
	serveFlag           string
)

func init() {
	addDomainFlags(runCmd)
	addProblemFlags(runCmd)
	addModeFlags(runCmd)

	// Output flags
	runCmd.Flags().BoolVarP(&verboseFlag, "verbose", "v", false, "Print diagnostics of every run")
	runCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output format: console, json, junit")
	runCmd.Flags().StringVar(&outputFileFlag, "output-file", "", "Write output to file (default: stdout)")
	runCmd.Flags().StringVar(&stateFileFlag, "state-file", "", "Write the final state as x,u CSV")
	runCmd.Flags().StringVar(&framesDirFlag, "frames-dir", "", "Write step,x,u frames to <dir>/<name>.csv")
	runCmd.Flags().IntVar(&frameEveryFlag, "frame-every", 1, "Steps between frames")

	// Snapshot testing flags
	runCmd.Flags().StringVar(&snapshotFlag, "snapshot", "", "Compare the final state with the named snapshot")
	runCmd.Flags().BoolVar(&updateSnapshotsFlag, "update-snapshots", false, "Update snapshot files instead of comparing")

	// Live flags
	runCmd.Flags().BoolVar(&watchFlag, "watch", false, "Re-run when the config file changes")
	runCmd.Flags().StringVar(&serveFlag, "serve", "", "Stream frames over a websocket on this address")
}

// runOutcome is a finished integration and the server streaming it, if any.
type runOutcome struct {
	report *output.RunReport
	server *stream.Server
}

func runCommand(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	w, closeOutput, err := openOutput(cmd, outputFileFlag)
	if err != nil {
		return err
	}
	defer closeOutput()

	out, err := runAndReport(ctx, cmd, w)
	if out.server != nil && !watchFlag {
		fmt.Fprintf(cmd.ErrOrStderr(), "Run finished, still serving %s (press Ctrl+C to stop)\n", out.server.URL())
		<-ctx.Done()
	}
	if out.server != nil {
		_ = out.server.Close()
	}

	if !watchFlag {
		return err
	}
	if err != nil && !isSilent(err) {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
	}
	if cfg.Path == "" {
		return fmt.Errorf("%w: --watch needs a config file", errUsage)
	}
	return watchConfig(ctx, cmd, w)
}

// runAndReport resolves the configuration, runs it and formats the report.
func runAndReport(ctx context.Context, cmd *cobra.Command, w io.Writer) (runOutcome, error) {
	c, err := effectiveConfig(cmd)
	if err != nil {
		return runOutcome{}, err
	}

	format := c.Output.Format
	if outputFlag != "" {
		format = outputFlag
	}
	formatter, err := output.New(format, w, verboseFlag || c.GetVerbose(), noColorFlag)
	if err != nil {
		return runOutcome{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	formatter.FormatHeader(version)

	start := time.Now()
	out, err := runOnce(ctx, cmd, c)
	if err != nil && out.report == nil {
		formatter.FormatError(err)
		return out, &exitError{code: exitCode(err), err: err, silent: true}
	}

	formatter.FormatRun(out.report)
	if flushable, ok := formatter.(output.Flushable); ok {
		if ferr := flushable.Flush(time.Since(start)); ferr != nil {
			return out, fmt.Errorf("error writing output: %w", ferr)
		}
	}

	switch {
	case err != nil:
		return out, &exitError{code: exitCode(err), err: err, silent: true}
	case !out.report.Passed():
		return out, verificationFailed(errors.New("snapshot mismatch"))
	}
	return out, nil
}

// runOnce builds the problem described by c and integrates it. A non-nil
// report is returned whenever the run started.
func runOnce(ctx context.Context, cmd *cobra.Command, c *config.Config) (runOutcome, error) {
	var out runOutcome

	mode, workers, err := resolveMode(c)
	if err != nil {
		return out, err
	}
	d, err := c.ExperimentDomain()
	if err != nil {
		return out, err
	}
	spec := c.RunSpec()
	p, initial, err := spec.Build(d)
	if err != nil {
		return out, err
	}
	p.CheckCFL = c.GetCheckCFL()
	steps := d.StepCount()

	log := log.With(zap.String("run", spec.Name()), zap.String("mode", string(mode)))

	var frames *output.FrameWriter
	var framesPath string
	var frameErr error
	if framesDirFlag != "" {
		if err := os.MkdirAll(framesDirFlag, 0755); err != nil {
			return out, fmt.Errorf("creating frames directory: %w", err)
		}
		framesPath = filepath.Join(framesDirFlag, spec.Name()+".csv")
		f, err := os.Create(framesPath)
		if err != nil {
			return out, fmt.Errorf("creating frame file: %w", err)
		}
		defer f.Close()
		if frames, err = output.NewFrameWriter(f, p.Grid); err != nil {
			return out, fmt.Errorf("writing frame header: %w", err)
		}
	}

	var hub *stream.Hub
	if serveFlag != "" {
		hub = stream.NewHub(spec.Name(), p.Grid, p.DT, stream.WithLogger(log))
		if out.server, err = stream.Listen(serveFlag, hub); err != nil {
			return out, fmt.Errorf("%w: %v", errUsage, err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Streaming frames on %s\n", out.server.URL())
	}

	opts := []runner.Option{runner.WithLogger(log)}
	every := max(frameEveryFlag, 1)
	if hub != nil || frames != nil {
		observeEvery := every
		if hub != nil {
			observeEvery = 1
		}
		opts = append(opts, runner.WithObserver(func(step int, state solver.State) {
			if hub != nil {
				hub.Observe(step, state)
			}
			if frames != nil && frameErr == nil && step%every == 0 {
				frameErr = frames.WriteFrame(step, state)
			}
		}, observeEvery))
	}

	r, err := runner.New(mode, workers, opts...)
	if err != nil {
		return out, err
	}

	log.Info("run started", zap.Stringer("problem", p), zap.Int("steps", steps), zap.Int("workers", r.Workers()))
	cpuStart := bench.ReadCPUTime()
	start := time.Now()
	res, runErr := r.Run(ctx, p, initial, steps)
	wall := time.Since(start)
	cpu := bench.ReadCPUTime().Sub(cpuStart)

	report := &output.RunReport{
		Name:        spec.Name(),
		Problem:     p.String(),
		Mode:        string(mode),
		Workers:     r.Workers(),
		Cells:       p.Grid.Len(),
		Steps:       steps,
		Duration:    wall,
		User:        cpu.User,
		System:      cpu.System,
		CPUMeasured: true,
		Before:      solver.Measure(initial, p.Grid.DX),
		Frames:      framesPath,
		Err:         runErr,
	}
	out.report = report

	var final solver.State
	if res != nil {
		final = res.Final
	}
	if hub != nil {
		hub.Finish(steps, final, runErr)
	}
	if frames != nil {
		if ferr := frames.Flush(); frameErr == nil {
			frameErr = ferr
		}
	}

	if runErr != nil {
		log.Warn("run failed", zap.Error(runErr))
		return out, runErr
	}
	if frameErr != nil {
		report.Err = fmt.Errorf("writing frames: %w", frameErr)
		return out, report.Err
	}

	report.After = solver.Measure(final, p.Grid.DX)
	report.MassDrift = solver.MassDrift(report.Before, report.After)
	report.Exact = experiment.ExactError(spec, d, p, final)
	log.Info("run finished", zap.Duration("wall", wall), zap.Float64("massDrift", report.MassDrift))

	if stateFileFlag != "" {
		if err := writeStateFile(stateFileFlag, p.Grid, final); err != nil {
			report.Err = err
			return out, err
		}
	}

	if snapshotFlag != "" {
		manager := snapshot.NewManager(c.Snapshots.Dir, updateSnapshotsFlag)
		result := manager.Compare(snapshotFlag, p.Grid, final, c.Snapshots.Tolerance)
		report.Snapshot = result.Status()
		log.Debug("snapshot compared",
			zap.String("snapshot", snapshotFlag),
			zap.Bool("passed", result.Passed),
			zap.Float64("maxDiff", result.MaxDiff))
	}

	return out, nil
}

func writeStateFile(path string, grid *solver.Grid, state solver.State) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("cannot create state file: %w", err)
	}
	defer f.Close()

	if err := output.WriteStateCSV(f, grid, state); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}
	return f.Close()
}

// watchConfig re-runs whenever the config file is written.
func watchConfig(ctx context.Context, cmd *cobra.Command, w io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer watcher.Close()

	path, err := filepath.Abs(cfg.Path)
	if err != nil {
		return err
	}
	// Editors replace files on save, so the directory is watched.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", path, err)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching %s for changes... (press Ctrl+C to stop)\n\n", cfg.Path)

	// Debounce: the timer only signals, runs happen on this goroutine.
	rerun := make(chan struct{}, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			name, _ := filepath.Abs(event.Name)
			if name != path || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
				continue
			}
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(WatchDebounceDelay, func() {
				select {
				case rerun <- struct{}{}:
				default:
				}
			})

		case <-rerun:
			fmt.Fprintf(cmd.ErrOrStderr(), "\nConfig changed: %s\nRe-running...\n\n", cfg.Path)
			if err := loadConfig(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
				continue
			}
			out, err := runAndReport(ctx, cmd, w)
			if out.server != nil {
				_ = out.server.Close()
			}
			if err != nil && !isSilent(err) {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "\nWatching for changes... (press Ctrl+C to stop)\n")

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn("watcher error", zap.Error(err))
		}
	}
}
