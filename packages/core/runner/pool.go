package runner

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
)

// Range is the half-open cell range [Lo, Hi).
type Range struct {
	Lo int
	Hi int
}

// Len returns the number of cells in the range.
func (r Range) Len() int {
	return r.Hi - r.Lo
}

// Partition splits n cells into min(parts, n) contiguous ranges whose sizes
// differ by at most one.
func Partition(n, parts int) []Range {
	if n <= 0 {
		return nil
	}
	if parts < 1 {
		parts = 1
	}
	if parts > n {
		parts = n
	}

	size, extra := n/parts, n%parts
	ranges := make([]Range, parts)
	lo := 0
	for i := range ranges {
		hi := lo + size
		if i < extra {
			hi++
		}
		ranges[i] = Range{Lo: lo, Hi: hi}
		lo = hi
	}
	return ranges
}

// WorkerPanicError reports a panic inside a worker.
type WorkerPanicError struct {
	Worker int
	Step   int
	Value  any
	Stack  []byte
}

func (e *WorkerPanicError) Error() string {
	return fmt.Sprintf("worker %d panicked at step %d: %v", e.Worker, e.Step, e.Value)
}

// Unwrap returns the panic value when it is an error.
func (e *WorkerPanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

type task struct {
	step int
	src  []float64
	dst  []float64
}

type outcome struct {
	worker int
	err    error
}

// pool is a fixed set of goroutines, each bound to one range of the grid.
type pool struct {
	problem *solver.Problem
	parts   []Range
	tasks   []chan task
	results chan outcome
	wg      sync.WaitGroup
}

func newPool(p *solver.Problem, parts []Range) *pool {
	pl := &pool{
		problem: p,
		parts:   parts,
		tasks:   make([]chan task, len(parts)),
		results: make(chan outcome, len(parts)),
	}

	for w, r := range parts {
		ch := make(chan task, 1)
		pl.tasks[w] = ch
		pl.wg.Add(1)
		go pl.work(w, r, ch, p.NewWorkspace(r.Len()))
	}
	return pl
}

func (pl *pool) work(id int, r Range, tasks <-chan task, ws *solver.Workspace) {
	defer pl.wg.Done()
	for t := range tasks {
		pl.results <- outcome{worker: id, err: pl.exec(id, r, t, ws)}
	}
}

func (pl *pool) exec(id int, r Range, t task, ws *solver.Workspace) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &WorkerPanicError{Worker: id, Step: t.step, Value: v, Stack: debug.Stack()}
		}
	}()
	return pl.problem.StepRange(t.src, t.dst, r.Lo, r.Hi, ws)
}

// step hands every worker its range and waits for all of them. Failures of
// individual workers are joined into one error.
func (pl *pool) step(step int, src, dst []float64) error {
	for _, ch := range pl.tasks {
		ch <- task{step: step, src: src, dst: dst}
	}

	var failed []outcome
	for range pl.tasks {
		if out := <-pl.results; out.err != nil {
			failed = append(failed, out)
		}
	}
	if len(failed) == 0 {
		return nil
	}

	sort.Slice(failed, func(i, j int) bool { return failed[i].worker < failed[j].worker })
	errs := make([]error, len(failed))
	for i, out := range failed {
		errs[i] = solver.WithStep(out.err, step)
	}
	return errors.Join(errs...)
}

func (pl *pool) close() {
	for _, ch := range pl.tasks {
		close(ch)
	}
	pl.wg.Wait()
}
