package runner

import (
	"context"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"go.uber.org/zap"
)

// ParallelRunner splits the grid into contiguous ranges, one per worker, and
// updates them concurrently. Workers meet at a barrier after every step.
type ParallelRunner struct {
	workers int
	opts    *options
}

// NewParallel creates a parallel runner. workers <= 0 uses DefaultWorkers.
func NewParallel(workers int, opts ...Option) *ParallelRunner {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &ParallelRunner{workers: workers, opts: newOptions(opts)}
}

func (r *ParallelRunner) Mode() Mode   { return Parallel }
func (r *ParallelRunner) Workers() int { return r.workers }

// Run implements Runner.
func (r *ParallelRunner) Run(ctx context.Context, p *solver.Problem, initial solver.State, steps int) (*Result, error) {
	if err := validate(p, initial, steps); err != nil {
		return nil, err
	}

	parts := Partition(p.Grid.Len(), r.workers)
	log := r.opts.logger.With(zap.String("mode", string(Parallel)), zap.Int("workers", len(parts)))
	log.Debug("run started", zap.Stringer("problem", p), zap.Int("steps", steps))
	start := time.Now()

	pool := newPool(p, parts)
	defer pool.close()

	final, err := loop(ctx, p, initial, steps, r.opts, func(step int, src, dst []float64) error {
		return pool.step(step, src, dst)
	})
	if err != nil {
		log.Debug("run failed", zap.Error(err))
		return nil, err
	}

	log.Debug("run finished", zap.Duration("elapsed", time.Since(start)))
	return &Result{
		Mode:       Parallel,
		Workers:    r.workers,
		Partitions: len(parts),
		Steps:      steps,
		Final:      final,
	}, nil
}
