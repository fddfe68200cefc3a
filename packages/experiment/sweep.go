package experiment

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/abdul-hamid-achik/conserve/packages/output"
	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrSkipped marks experiments that did not start because the sweep bailed.
var ErrSkipped = errors.New("experiment skipped")

// Config configures a sweep.
type Config struct {
	Domain      Domain
	Mode        runner.Mode
	Workers     int
	Concurrency int  // experiments run at once, 0 means one per spec
	Bail        bool // stop at the first failing experiment
	OutputDir   string
	FrameEvery  int
}

// DefaultConfig returns a serial sweep over the default domain.
func DefaultConfig() *Config {
	return &Config{
		Domain:     DefaultDomain(),
		Mode:       runner.Serial,
		FrameEvery: 1,
	}
}

// Outcome is the result of one experiment.
type Outcome struct {
	Spec     Spec
	Problem  *solver.Problem
	Steps    int
	Before   solver.Diagnostics
	After    solver.Diagnostics
	Final    solver.State
	Exact    *output.ExactError
	Frames   string
	Duration time.Duration
	Err      error
}

// Name returns the experiment name.
func (o *Outcome) Name() string {
	return o.Spec.Name()
}

// Failed reports whether the experiment ran and failed.
func (o *Outcome) Failed() bool {
	return o.Err != nil && !errors.Is(o.Err, ErrSkipped)
}

// Report converts o for the output formatters.
func (o *Outcome) Report(mode runner.Mode, workers int) *output.RunReport {
	r := &output.RunReport{
		Name:      o.Name(),
		Mode:      string(mode),
		Workers:   workers,
		Steps:     o.Steps,
		Duration:  o.Duration,
		Before:    o.Before,
		After:     o.After,
		MassDrift: solver.MassDrift(o.Before, o.After),
		Exact:     o.Exact,
		Frames:    o.Frames,
		Skipped:   errors.Is(o.Err, ErrSkipped),
		Err:       o.Err,
	}
	if o.Problem != nil {
		r.Problem = o.Problem.String()
		r.Cells = o.Problem.Grid.Len()
	}
	if mode == runner.Serial {
		r.Workers = 1
	}
	return r
}

// Option configures a Sweeper.
type Option func(*Sweeper)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Sweeper) {
		s.logger = logger
	}
}

// WithOnDone calls fn after each experiment. Calls may be concurrent.
func WithOnDone(fn func(*Outcome)) Option {
	return func(s *Sweeper) {
		s.onDone = fn
	}
}

// Sweeper runs experiments.
type Sweeper struct {
	config *Config
	logger *zap.Logger
	onDone func(*Outcome)
}

// NewSweeper creates a Sweeper.
func NewSweeper(config *Config, opts ...Option) *Sweeper {
	if config == nil {
		config = DefaultConfig()
	}
	s := &Sweeper{config: config, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run runs every spec and returns one outcome per spec in input order.
// Failed experiments are recorded in their outcome. The returned error is
// non-nil only when the sweep bailed or ctx was cancelled.
func (s *Sweeper) Run(ctx context.Context, specs []Spec) ([]*Outcome, error) {
	if err := s.config.Domain.Validate(); err != nil {
		return nil, err
	}
	if s.config.OutputDir != "" {
		if err := os.MkdirAll(s.config.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("creating output directory: %w", err)
		}
	}

	outcomes := make([]*Outcome, len(specs))
	g, gctx := errgroup.WithContext(ctx)
	if s.config.Concurrency > 0 {
		g.SetLimit(s.config.Concurrency)
	}

	for i, spec := range specs {
		if gctx.Err() != nil {
			outcomes[i] = &Outcome{Spec: spec, Err: ErrSkipped}
			continue
		}

		g.Go(func() error {
			if gctx.Err() != nil {
				outcomes[i] = &Outcome{Spec: spec, Err: ErrSkipped}
				return nil
			}

			out := s.RunOne(gctx, spec)
			outcomes[i] = out
			if s.onDone != nil {
				s.onDone(out)
			}

			if out.Err != nil && s.config.Bail {
				return fmt.Errorf("experiment %s: %w", spec.Name(), out.Err)
			}
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return outcomes, err
}

// RunOne runs a single experiment.
func (s *Sweeper) RunOne(ctx context.Context, spec Spec) *Outcome {
	out := &Outcome{Spec: spec, Steps: s.config.Domain.StepCount()}
	log := s.logger.With(zap.String("experiment", spec.Name()))

	p, initial, err := spec.Build(s.config.Domain)
	if err != nil {
		out.Err = err
		return out
	}
	out.Problem = p
	out.Before = solver.Measure(initial, p.Grid.DX)

	opts := []runner.Option{runner.WithLogger(s.logger)}

	var frames *output.FrameWriter
	var frameErr error
	if s.config.OutputDir != "" {
		path := filepath.Join(s.config.OutputDir, spec.Name()+".csv")
		f, err := os.Create(path)
		if err != nil {
			out.Err = fmt.Errorf("creating frame file: %w", err)
			return out
		}
		defer f.Close()

		frames, err = output.NewFrameWriter(f, p.Grid)
		if err != nil {
			out.Err = fmt.Errorf("writing frame header: %w", err)
			return out
		}
		out.Frames = path
		opts = append(opts, runner.WithObserver(func(step int, state solver.State) {
			if frameErr == nil {
				frameErr = frames.WriteFrame(step, state)
			}
		}, max(s.config.FrameEvery, 1)))
	}

	r, err := runner.New(s.mode(), s.config.Workers, opts...)
	if err != nil {
		out.Err = err
		return out
	}

	log.Debug("experiment started", zap.Stringer("problem", p), zap.Int("steps", out.Steps))
	start := time.Now()
	res, err := r.Run(ctx, p, initial, out.Steps)
	out.Duration = time.Since(start)

	if frames != nil {
		if ferr := frames.Flush(); frameErr == nil {
			frameErr = ferr
		}
	}

	if err != nil {
		log.Warn("experiment failed", zap.Error(err))
		out.Err = err
		return out
	}
	if frameErr != nil {
		out.Err = fmt.Errorf("writing frames: %w", frameErr)
	}

	out.Final = res.Final
	out.After = solver.Measure(res.Final, p.Grid.DX)
	out.Exact = ExactError(spec, s.config.Domain, p, res.Final)

	log.Debug("experiment finished", zap.Duration("elapsed", out.Duration))
	return out
}

func (s *Sweeper) mode() runner.Mode {
	if s.config.Mode == "" {
		return runner.Serial
	}
	return s.config.Mode
}

// ExactError compares periodic advection runs with the shifted initial wave.
func ExactError(spec Spec, d Domain, p *solver.Problem, final solver.State) *output.ExactError {
	adv, ok := p.Equation.(solver.Advection)
	if !ok || p.Boundary.Kind != solver.Periodic {
		return nil
	}
	init, err := solver.NewInitial(spec.Initial)
	if err != nil {
		return nil
	}

	t := float64(d.StepCount()) * p.DT
	l1, linf := solver.ErrorNorms(final, solver.AdvectionExact(init, p.Grid, adv.A, t), p.Grid.DX)
	return &output.ExactError{L1: l1, LInf: linf}
}

// ParseNames splits a comma separated list of names.
func ParseNames(s string) []string {
	var names []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, part)
		}
	}
	return names
}
