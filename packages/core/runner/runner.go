package runner

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"go.uber.org/zap"
)

// Mode selects how the steps of a run are scheduled.
type Mode string

const (
	// Serial updates the grid on the calling goroutine.
	Serial Mode = "serial"
	// Parallel partitions the grid across a worker pool.
	Parallel Mode = "parallel"
)

// ParseMode parses a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Serial, "ser", "seq":
		return Serial, nil
	case Parallel, "par":
		return Parallel, nil
	}
	return "", fmt.Errorf("%w: unknown mode %q (available: serial, parallel)", solver.ErrInitialization, s)
}

// Runner integrates a problem for a number of steps.
type Runner interface {
	// Run advances initial by steps time steps. initial is never modified.
	Run(ctx context.Context, p *solver.Problem, initial solver.State, steps int) (*Result, error)
	Mode() Mode
	Workers() int
}

// Result holds the outcome of a run.
type Result struct {
	Mode       Mode
	Workers    int
	Partitions int
	Steps      int
	Final      solver.State
}

// Observer receives the state after step steps. The state is a view into the
// runner's buffer and is only valid during the call.
type Observer func(step int, state solver.State)

// StepHook receives the wall time of each step.
type StepHook func(step int, elapsed time.Duration)

type options struct {
	observer Observer
	every    int
	stepHook StepHook
	logger   *zap.Logger
}

// Option configures a runner.
type Option func(*options)

// WithObserver calls fn with the initial state and then every every steps.
func WithObserver(fn Observer, every int) Option {
	return func(o *options) {
		o.observer = fn
		if every < 1 {
			every = 1
		}
		o.every = every
	}
}

// WithStepHook calls fn after every step with its wall time.
func WithStepHook(fn StepHook) Option {
	return func(o *options) {
		o.stepHook = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{every: 1, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func (o *options) observe(step int, state solver.State) {
	if o.observer != nil && step%o.every == 0 {
		o.observer(step, state)
	}
}

// New returns the runner for mode. workers is ignored in serial mode.
func New(mode Mode, workers int, opts ...Option) (Runner, error) {
	switch mode {
	case Serial:
		return NewSerial(opts...), nil
	case Parallel:
		return NewParallel(workers, opts...), nil
	}
	return nil, fmt.Errorf("%w: unknown mode %q", solver.ErrInitialization, mode)
}

// DefaultWorkers returns the worker count used when none is given.
func DefaultWorkers() int {
	return runtime.GOMAXPROCS(0)
}

type advanceFunc func(step int, src, dst []float64) error

// loop runs the double-buffered time loop shared by both runners.
func loop(ctx context.Context, p *solver.Problem, initial solver.State, steps int, o *options, advance advanceFunc) (solver.State, error) {
	cur := p.Pad(initial)
	next := make([]float64, len(cur))
	o.observe(0, p.Interior(cur))

	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("stopped before step %d: %w", step, err)
		}

		p.FillGhosts(cur)
		start := time.Now()
		if err := advance(step, cur, next); err != nil {
			return nil, err
		}
		if o.stepHook != nil {
			o.stepHook(step, time.Since(start))
		}

		cur, next = next, cur
		o.observe(step+1, p.Interior(cur))
	}

	return p.Interior(cur).Clone(), nil
}

func validate(p *solver.Problem, initial solver.State, steps int) error {
	if p == nil {
		return fmt.Errorf("%w: problem is required", solver.ErrInitialization)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := p.Grid.Check(initial); err != nil {
		return err
	}
	if steps < 0 {
		return fmt.Errorf("%w: steps must not be negative, got %d", solver.ErrInitialization, steps)
	}
	return nil
}
