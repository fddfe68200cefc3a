package runner

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newProblem(t *testing.T, eq solver.Equation, scheme solver.Scheme, bc solver.Boundary) *solver.Problem {
	t.Helper()
	grid, err := solver.NewGrid(-1, 1, 0.02)
	require.NoError(t, err)
	p, err := solver.NewProblem(grid, eq, scheme, bc, 0.6*0.02)
	require.NoError(t, err)
	return p
}

func initialFor(p *solver.Problem) solver.State {
	return p.Grid.Sample(func(x float64) float64 {
		v := 0.5 + 0.4*math.Sin(math.Pi*x)
		if x >= 0 && x <= 0.5 {
			v += 0.3
		}
		return v
	})
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input   string
		want    Mode
		wantErr bool
	}{
		{"serial", Serial, false},
		{"Parallel", Parallel, false},
		{" seq ", Serial, false},
		{"par", Parallel, false},
		{"gpu", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseMode(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, solver.ErrInitialization)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	r, err := New(Serial, 8)
	require.NoError(t, err)
	assert.Equal(t, Serial, r.Mode())
	assert.Equal(t, 1, r.Workers())

	r, err = New(Parallel, 3)
	require.NoError(t, err)
	assert.Equal(t, Parallel, r.Mode())
	assert.Equal(t, 3, r.Workers())

	r, err = New(Parallel, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultWorkers(), r.Workers())

	_, err = New("bogus", 1)
	assert.ErrorIs(t, err, solver.ErrInitialization)
}

func TestPartition(t *testing.T) {
	tests := []struct {
		n, parts int
		want     []Range
	}{
		{10, 3, []Range{{0, 4}, {4, 7}, {7, 10}}},
		{8, 4, []Range{{0, 2}, {2, 4}, {4, 6}, {6, 8}}},
		{3, 8, []Range{{0, 1}, {1, 2}, {2, 3}}},
		{5, 0, []Range{{0, 5}}},
		{0, 4, nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Partition(tt.n, tt.parts), "Partition(%d, %d)", tt.n, tt.parts)
	}

	for n := 1; n < 200; n += 7 {
		for parts := 1; parts <= 16; parts++ {
			ranges := Partition(n, parts)
			lo, minLen, maxLen := 0, n, 0
			for _, r := range ranges {
				assert.Equal(t, lo, r.Lo)
				lo = r.Hi
				minLen = min(minLen, r.Len())
				maxLen = max(maxLen, r.Len())
			}
			assert.Equal(t, n, lo)
			assert.LessOrEqual(t, maxLen-minLen, 1)
		}
	}
}

func TestSerialParallelEquivalence(t *testing.T) {
	ctx := context.Background()
	equations := []solver.Equation{solver.Advection{A: 1}, solver.Advection{A: -0.7}, solver.Burgers{}}
	schemes := []solver.Scheme{solver.Upwind{}, solver.LaxWendroff{}, solver.LaxFriedrichs{}, solver.BeamWarming{}}
	boundaries := []solver.Boundary{
		{Kind: solver.Periodic},
		{Kind: solver.Outflow},
		{Kind: solver.Fixed, Left: 0.1, Right: 0.9},
	}

	for _, eq := range equations {
		for _, scheme := range schemes {
			for _, bc := range boundaries {
				p := newProblem(t, eq, scheme, bc)
				initial := initialFor(p)

				for _, steps := range []int{0, 1, 7, 50} {
					want, err := NewSerial().Run(ctx, p, initial, steps)
					require.NoError(t, err)

					for _, workers := range []int{1, 2, 4, 8} {
						got, err := NewParallel(workers).Run(ctx, p, initial, steps)
						require.NoError(t, err)
						require.Equal(t, want.Final, got.Final,
							"%s/%s/%s steps=%d workers=%d", eq.Name(), scheme.Name(), bc, steps, workers)
					}
				}
			}
		}
	}
}

func TestRun_MatchesProblemStep(t *testing.T) {
	p := newProblem(t, solver.Burgers{}, solver.LaxWendroff{}, solver.Boundary{Kind: solver.Periodic})
	state := initialFor(p)

	want := state
	for i := 0; i < 20; i++ {
		var err error
		want, err = p.Step(want)
		require.NoError(t, err)
	}

	got, err := NewParallel(3).Run(context.Background(), p, state, 20)
	require.NoError(t, err)
	assert.Equal(t, want, got.Final)
}

func TestRun_ZeroStepsReturnsCopy(t *testing.T) {
	p := newProblem(t, solver.Advection{A: 1}, solver.Upwind{}, solver.Boundary{Kind: solver.Periodic})
	initial := initialFor(p)

	for _, r := range []Runner{NewSerial(), NewParallel(4)} {
		res, err := r.Run(context.Background(), p, initial, 0)
		require.NoError(t, err)
		assert.Equal(t, initial, res.Final)
		assert.Equal(t, 0, res.Steps)

		res.Final[0] = 42
		assert.NotEqual(t, 42.0, initial[0])
	}
}

func TestRun_DoesNotModifyInitial(t *testing.T) {
	p := newProblem(t, solver.Burgers{}, solver.BeamWarming{}, solver.Boundary{Kind: solver.Outflow})
	initial := initialFor(p)
	before := initial.Clone()

	for _, r := range []Runner{NewSerial(), NewParallel(5)} {
		_, err := r.Run(context.Background(), p, initial, 30)
		require.NoError(t, err)
		assert.Equal(t, before, initial)
	}
}

func TestRun_ConstantStateIsSteady(t *testing.T) {
	for _, scheme := range []solver.Scheme{solver.Upwind{}, solver.LaxWendroff{}, solver.LaxFriedrichs{}, solver.BeamWarming{}} {
		p := newProblem(t, solver.Burgers{}, scheme, solver.Boundary{Kind: solver.Fixed, Left: 0.25, Right: 0.25})
		initial := p.Grid.Sample(func(float64) float64 { return 0.25 })

		res, err := NewParallel(4).Run(context.Background(), p, initial, 40)
		require.NoError(t, err)
		for i, v := range res.Final {
			assert.InDelta(t, 0.25, v, 1e-14, "%s cell %d", scheme.Name(), i)
		}
	}
}

func TestRun_ResultFields(t *testing.T) {
	grid, err := solver.NewGrid(0, 1, 0.25)
	require.NoError(t, err)
	p, err := solver.NewProblem(grid, solver.Advection{A: 1}, solver.Upwind{}, solver.Boundary{Kind: solver.Periodic}, 0.1)
	require.NoError(t, err)

	res, err := NewParallel(16).Run(context.Background(), p, grid.Sample(math.Sin), 3)
	require.NoError(t, err)
	assert.Equal(t, Parallel, res.Mode)
	assert.Equal(t, 16, res.Workers)
	assert.Equal(t, 4, res.Partitions)
	assert.Equal(t, 3, res.Steps)
	assert.Len(t, res.Final, 4)
}

func TestRun_InvalidInput(t *testing.T) {
	p := newProblem(t, solver.Advection{A: 1}, solver.Upwind{}, solver.Boundary{Kind: solver.Periodic})
	ctx := context.Background()

	for _, r := range []Runner{NewSerial(), NewParallel(2)} {
		_, err := r.Run(ctx, p, solver.State{1, 2, 3}, 5)
		assert.ErrorIs(t, err, solver.ErrShapeMismatch)

		_, err = r.Run(ctx, p, initialFor(p), -1)
		assert.ErrorIs(t, err, solver.ErrInitialization)

		_, err = r.Run(ctx, nil, initialFor(p), 1)
		assert.ErrorIs(t, err, solver.ErrInitialization)

		bad := initialFor(p)
		bad[3] = math.NaN()
		_, err = r.Run(ctx, p, bad, 1)
		assert.ErrorIs(t, err, solver.ErrInitialization)
	}
}

func TestRun_Instability(t *testing.T) {
	grid, err := solver.NewGrid(-1, 1, 0.02)
	require.NoError(t, err)
	p, err := solver.NewProblem(grid, solver.Advection{A: 2}, solver.Upwind{}, solver.Boundary{Kind: solver.Periodic}, 0.6*0.02)
	require.NoError(t, err)

	for _, r := range []Runner{NewSerial(), NewParallel(4)} {
		_, err := r.Run(context.Background(), p, initialFor(p), 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, solver.ErrNumericalInstability)
		assert.ErrorIs(t, err, solver.ErrCFL)

		var ie *solver.InstabilityError
		require.ErrorAs(t, err, &ie)
		assert.Equal(t, 0, ie.Step)
	}
}

// panicky panics when it sees the marker value.
type panicky struct {
	solver.Advection
}

const marker = 7.0

func (p panicky) Flux(u float64) float64 {
	if u == marker {
		panic("flux exploded")
	}
	return p.Advection.Flux(u)
}

func TestParallel_WorkerPanicsAreJoined(t *testing.T) {
	grid, err := solver.NewGrid(0, 100, 1)
	require.NoError(t, err)
	p, err := solver.NewProblem(grid, panicky{solver.Advection{A: 1}}, solver.Upwind{}, solver.Boundary{Kind: solver.Periodic}, 0.5)
	require.NoError(t, err)

	initial := make(solver.State, grid.Len())
	initial[5] = marker
	initial[95] = marker

	_, err = NewParallel(4).Run(context.Background(), p, initial, 3)
	require.Error(t, err)

	joined, ok := err.(interface{ Unwrap() []error })
	require.True(t, ok, "expected joined error, got %T", err)
	errs := joined.Unwrap()
	require.Len(t, errs, 2)

	workers := []int{}
	for _, e := range errs {
		var wp *WorkerPanicError
		require.ErrorAs(t, e, &wp)
		assert.Equal(t, 0, wp.Step)
		assert.Equal(t, "flux exploded", wp.Value)
		assert.NotEmpty(t, wp.Stack)
		workers = append(workers, wp.Worker)
	}
	assert.Equal(t, []int{0, 3}, workers)
	assert.Contains(t, err.Error(), "worker 0 panicked at step 0")
}

func TestWorkerPanicError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &WorkerPanicError{Worker: 1, Step: 2, Value: cause}
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, (&WorkerPanicError{Value: "text"}).Unwrap())
}

func TestRun_ContextCancelled(t *testing.T) {
	p := newProblem(t, solver.Advection{A: 1}, solver.Upwind{}, solver.Boundary{Kind: solver.Periodic})

	t.Run("before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		for _, r := range []Runner{NewSerial(), NewParallel(3)} {
			_, err := r.Run(ctx, p, initialFor(p), 10)
			assert.ErrorIs(t, err, context.Canceled)
		}
	})

	t.Run("between steps", func(t *testing.T) {
		for _, mode := range []Mode{Serial, Parallel} {
			ctx, cancel := context.WithCancel(context.Background())
			last := -1
			r, err := New(mode, 3, WithObserver(func(step int, _ solver.State) {
				last = step
				if step == 5 {
					cancel()
				}
			}, 1))
			require.NoError(t, err)

			_, err = r.Run(ctx, p, initialFor(p), 100)
			assert.ErrorIs(t, err, context.Canceled)
			assert.Equal(t, 5, last)
			cancel()
		}
	})
}

func TestRun_ObserverAndStepHook(t *testing.T) {
	p := newProblem(t, solver.Advection{A: 1}, solver.LaxWendroff{}, solver.Boundary{Kind: solver.Periodic})
	initial := initialFor(p)

	var observed []int
	var masses []float64
	hooks := 0
	r := NewParallel(2,
		WithObserver(func(step int, s solver.State) {
			observed = append(observed, step)
			masses = append(masses, solver.Measure(s, p.Grid.DX).Mass)
		}, 10),
		WithStepHook(func(step int, elapsed time.Duration) {
			hooks++
			assert.GreaterOrEqual(t, elapsed, time.Duration(0))
		}),
		WithLogger(zaptest.NewLogger(t)),
	)

	_, err := r.Run(context.Background(), p, initial, 25)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 10, 20}, observed)
	assert.Equal(t, 25, hooks)
	for _, m := range masses[1:] {
		assert.InDelta(t, masses[0], m, 1e-12)
	}
}
