package runner

import (
	"context"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"go.uber.org/zap"
)

// SerialRunner updates the whole grid on the calling goroutine.
type SerialRunner struct {
	opts *options
}

// NewSerial creates a serial runner.
func NewSerial(opts ...Option) *SerialRunner {
	return &SerialRunner{opts: newOptions(opts)}
}

func (r *SerialRunner) Mode() Mode   { return Serial }
func (r *SerialRunner) Workers() int { return 1 }

// Run implements Runner.
func (r *SerialRunner) Run(ctx context.Context, p *solver.Problem, initial solver.State, steps int) (*Result, error) {
	if err := validate(p, initial, steps); err != nil {
		return nil, err
	}

	n := p.Grid.Len()
	ws := p.NewWorkspace(n)
	log := r.opts.logger.With(zap.String("mode", string(Serial)))
	log.Debug("run started", zap.Stringer("problem", p), zap.Int("steps", steps))
	start := time.Now()

	final, err := loop(ctx, p, initial, steps, r.opts, func(step int, src, dst []float64) error {
		if err := p.StepRange(src, dst, 0, n, ws); err != nil {
			return solver.WithStep(err, step)
		}
		return nil
	})
	if err != nil {
		log.Debug("run failed", zap.Error(err))
		return nil, err
	}

	log.Debug("run finished", zap.Duration("elapsed", time.Since(start)))
	return &Result{
		Mode:       Serial,
		Workers:    1,
		Partitions: 1,
		Steps:      steps,
		Final:      final,
	}, nil
}
