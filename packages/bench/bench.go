package bench

import (
	"context"
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"go.uber.org/zap"
)

// Runner executes benches
type Runner struct {
	config   *Config
	reporter *Reporter
	logger   *zap.Logger
	version  string
	onCase   func(*CaseSummary, *Metrics)
}

// RunnerOption configures the runner
type RunnerOption func(*Runner)

// WithReporter sets the reporter
func WithReporter(reporter *Reporter) RunnerOption {
	return func(r *Runner) {
		r.reporter = reporter
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithVersion sets the version printed in the header
func WithVersion(version string) RunnerOption {
	return func(r *Runner) {
		r.version = version
	}
}

// WithCaseHook calls fn after every case with its summary and metrics
func WithCaseHook(fn func(*CaseSummary, *Metrics)) RunnerOption {
	return func(r *Runner) {
		r.onCase = fn
	}
}

// NewRunner creates a new bench runner
func NewRunner(config *Config, opts ...RunnerOption) *Runner {
	if config == nil {
		config = DefaultConfig()
	}

	r := &Runner{config: config}
	for _, opt := range opts {
		opt(r)
	}

	if r.reporter == nil {
		r.reporter = NewReporter(WithNoProgress(true))
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}

	return r
}

// Result holds the outcome of a bench
type Result struct {
	Problem    string
	Steps      int
	Tolerance  float64
	Cases      []*CaseSummary
	Thresholds []ThresholdResult

	// Equivalent is true when every parallel case matched the baseline.
	Equivalent bool
	// Scaling is true when parallel wall time does not grow with workers.
	Scaling bool
	// Passed is true when the results are equivalent and every threshold passed.
	Passed bool

	StartedAt time.Time
	Duration  time.Duration
}

// Baseline returns the serial case.
func (r *Result) Baseline() *CaseSummary {
	for _, c := range r.Cases {
		if c.Mode == string(runner.Serial) {
			return c
		}
	}
	return nil
}

// MaxMassDrift returns the largest relative mass drift over all cases.
func (r *Result) MaxMassDrift() float64 {
	worst := 0.0
	for _, c := range r.Cases {
		worst = max(worst, abs(c.MassDrift))
	}
	return worst
}

// Run benches p from initial for steps steps with every case of the plan.
func (r *Runner) Run(ctx context.Context, p *solver.Problem, initial solver.State, steps int) (*Result, error) {
	if err := r.config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := p.Grid.Check(initial); err != nil {
		return nil, err
	}

	plan := NewPlan(r.config)
	r.reporter.Header(r.version, p, steps, plan)

	result := &Result{
		Problem:    p.String(),
		Steps:      steps,
		Tolerance:  r.config.Tolerance,
		Equivalent: true,
		StartedAt:  time.Now(),
	}
	before := solver.Measure(initial, p.Grid.DX)

	var baseline solver.State
	for _, c := range plan.Cases {
		summary, metrics, final, err := r.runCase(ctx, plan, c, p, initial, steps)
		if err != nil {
			r.reporter.ClearProgress()
			return nil, fmt.Errorf("case %s: %w", c.Name(), err)
		}

		if baseline == nil {
			baseline = final
		}
		r.compare(summary, result.Baseline(), baseline, final, before, p.Grid.DX)
		if !summary.Equivalent {
			result.Equivalent = false
		}

		result.Cases = append(result.Cases, summary)
		r.reporter.Case(summary)
		r.logger.Info("case finished",
			zap.String("case", summary.Name),
			zap.Duration("wall", summary.Wall),
			zap.Duration("cpu", summary.CPU()),
			zap.Float64("speedup", summary.Speedup),
			zap.Float64("deviation", summary.Deviation))

		if r.onCase != nil {
			r.onCase(summary, metrics)
		}
	}

	result.Scaling = scaling(result.Cases)
	if r.config.Thresholds.HasThresholds() {
		result.Thresholds = EvaluateThresholds(r.config.Thresholds, result.Cases)
	}

	result.Passed = result.Equivalent
	for _, tr := range result.Thresholds {
		if !tr.Passed {
			result.Passed = false
			break
		}
	}
	result.Duration = time.Since(result.StartedAt)

	r.reporter.Summary(result)
	return result, nil
}

func (r *Runner) runCase(ctx context.Context, plan *Plan, c Case, p *solver.Problem, initial solver.State, steps int) (*CaseSummary, *Metrics, solver.State, error) {
	metrics := NewMetrics()
	opts := []runner.Option{runner.WithLogger(r.logger)}

	warm, err := runner.New(c.Mode, c.Workers, opts...)
	if err != nil {
		return nil, nil, nil, err
	}
	measured, err := runner.New(c.Mode, c.Workers, append(opts, runner.WithStepHook(func(_ int, d time.Duration) {
		metrics.RecordStep(d)
	}))...)
	if err != nil {
		return nil, nil, nil, err
	}

	total := plan.Warmup + plan.Repeat
	for i := 0; i < plan.Warmup; i++ {
		if _, err := warm.Run(ctx, p, initial, steps); err != nil {
			return nil, nil, nil, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
		r.reporter.Progress(c, i+1, total)
	}

	var final solver.State
	for i := 0; i < plan.Repeat; i++ {
		cpu := ReadCPUTime()
		start := time.Now()
		res, err := measured.Run(ctx, p, initial, steps)
		wall := time.Since(start)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("run %d: %w", i+1, err)
		}

		metrics.RecordRun(Sample{Wall: wall, CPU: ReadCPUTime().Sub(cpu)})
		final = res.Final
		r.reporter.Progress(c, plan.Warmup+i+1, total)
	}

	return metrics.Summarize(c), metrics, final, nil
}

// compare fills the baseline dependent fields of s.
func (r *Runner) compare(s, base *CaseSummary, baseline, final solver.State, before solver.Diagnostics, dx float64) {
	s.Deviation = solver.MaxAbsDiff(final, baseline)
	s.Equivalent = s.Deviation <= r.config.Tolerance
	s.MassDrift = solver.MassDrift(before, solver.Measure(final, dx))

	if base == nil {
		base = s
	}
	if s.Wall > 0 {
		s.Speedup = float64(base.Wall) / float64(s.Wall)
	}
	if s.Workers > 0 {
		s.Efficiency = s.Speedup / float64(s.Workers)
	}
}

// scaling reports whether parallel mean wall time is non-increasing in the
// worker count. Cases are in plan order.
func scaling(cases []*CaseSummary) bool {
	var last time.Duration
	seen := false
	for _, c := range cases {
		if c.Mode == string(runner.Serial) {
			continue
		}
		if seen && c.Wall > last {
			return false
		}
		last, seen = c.Wall, true
	}
	return true
}
