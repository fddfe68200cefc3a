package bench

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newBenchProblem(t *testing.T) (*solver.Problem, solver.State) {
	t.Helper()
	grid, err := solver.NewGrid(-3, 3, 0.05)
	require.NoError(t, err)
	p, err := solver.NewProblem(grid, solver.Advection{A: 1}, solver.LaxWendroff{}, solver.Boundary{Kind: solver.Periodic}, 0.6*0.05)
	require.NoError(t, err)
	return p, grid.Sample(func(x float64) float64 { return math.Sin(math.Pi * x) })
}

func TestRunner_Run(t *testing.T) {
	p, initial := newBenchProblem(t)
	var out bytes.Buffer

	cfg := &Config{
		Workers:   []int{1, 2, 4},
		Repeat:    2,
		Warmup:    1,
		Tolerance: DefaultTolerance,
	}
	cfg.Thresholds, _ = ParseThresholds("deviation<1e-12,drift<1e-9")

	var hooked []string
	r := NewRunner(cfg,
		WithReporter(NewReporter(WithWriter(&out), WithNoColor(true), WithNoProgress(true))),
		WithVersion("test"),
		WithCaseHook(func(s *CaseSummary, m *Metrics) {
			hooked = append(hooked, s.Name)
			assert.Equal(t, int64(2*40), m.Histogram().TotalCount())
		}),
	)

	result, err := r.Run(context.Background(), p, initial, 40)
	require.NoError(t, err)

	assert.Equal(t, []string{"serial", "parallel-1", "parallel-2", "parallel-4"}, hooked)
	require.Len(t, result.Cases, 4)
	assert.True(t, result.Equivalent)
	assert.True(t, result.Passed)
	assert.Equal(t, 40, result.Steps)

	base := result.Baseline()
	require.NotNil(t, base)
	assert.Equal(t, "serial", base.Name)
	assert.InDelta(t, 1.0, base.Speedup, 1e-12)

	for _, c := range result.Cases {
		assert.Equal(t, 2, c.Runs)
		assert.Equal(t, int64(80), c.Steps)
		assert.Greater(t, c.Wall, time.Duration(0))
		assert.Zero(t, c.Deviation, c.Name)
		assert.True(t, c.Equivalent, c.Name)
		assert.Less(t, math.Abs(c.MassDrift), 1e-9, c.Name)
		assert.Greater(t, c.Speedup, 0.0)
	}

	for _, tr := range result.Thresholds {
		assert.True(t, tr.Passed, tr.Name)
	}

	text := out.String()
	assert.Contains(t, text, "conserve bench test")
	assert.Contains(t, text, "BENCH SUMMARY")
	assert.Contains(t, text, "parallel-4")
	assert.Contains(t, text, "user")
	assert.Contains(t, text, "total")
	assert.Contains(t, text, "All cases passed!")
}

func TestRunner_FailingThreshold(t *testing.T) {
	p, initial := newBenchProblem(t)
	cfg := &Config{Workers: []int{2}, Repeat: 1}
	cfg.Thresholds = Thresholds{MaxWall: time.Nanosecond}

	result, err := NewRunner(cfg).Run(context.Background(), p, initial, 5)
	require.NoError(t, err)
	assert.True(t, result.Equivalent)
	assert.False(t, result.Passed)
	require.Len(t, result.Thresholds, 1)
	assert.False(t, result.Thresholds[0].Passed)
}

func TestRunner_InvalidInput(t *testing.T) {
	p, initial := newBenchProblem(t)

	_, err := NewRunner(&Config{Repeat: 0}).Run(context.Background(), p, initial, 5)
	assert.Error(t, err)

	_, err = NewRunner(nil).Run(context.Background(), p, initial[:3], 5)
	assert.ErrorIs(t, err, solver.ErrShapeMismatch)
}

func TestRunner_NumericalFailure(t *testing.T) {
	grid, err := solver.NewGrid(0, 1, 0.1)
	require.NoError(t, err)
	p, err := solver.NewProblem(grid, solver.Advection{A: 3}, solver.Upwind{}, solver.Boundary{Kind: solver.Periodic}, 0.05)
	require.NoError(t, err)

	_, err = NewRunner(&Config{Workers: []int{2}, Repeat: 1}).Run(context.Background(), p, grid.Sample(math.Cos), 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, solver.ErrNumericalInstability)
	assert.Contains(t, err.Error(), "case serial")
}

func TestRunner_Cancelled(t *testing.T) {
	p, initial := newBenchProblem(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(DefaultConfig()).Run(ctx, p, initial, 5)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScaling(t *testing.T) {
	cases := []*CaseSummary{
		{Mode: "serial", Wall: time.Second},
		{Mode: "parallel", Workers: 1, Wall: 3 * time.Second},
		{Mode: "parallel", Workers: 2, Wall: 2 * time.Second},
		{Mode: "parallel", Workers: 4, Wall: 2 * time.Second},
	}
	assert.True(t, scaling(cases))

	cases = append(cases, &CaseSummary{Mode: "parallel", Workers: 8, Wall: 5 * time.Second})
	assert.False(t, scaling(cases))
}

func TestReporter_JSONSummary(t *testing.T) {
	p, initial := newBenchProblem(t)
	result, err := NewRunner(&Config{Workers: []int{2}, Repeat: 1}).Run(context.Background(), p, initial, 3)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, NewReporter(WithWriter(&buf)).JSONSummary(result))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))
	assert.Equal(t, true, doc["equivalent"])
	assert.Equal(t, float64(3), doc["steps"])

	cases := doc["cases"].([]any)
	require.Len(t, cases, 2)
	second := cases[1].(map[string]any)
	assert.Equal(t, "parallel-2", second["name"])
	assert.Equal(t, float64(2), second["workers"])
	assert.Contains(t, second, "step")
}

func TestReporter_CaseLine(t *testing.T) {
	var buf bytes.Buffer
	r := NewReporter(WithWriter(&buf), WithNoColor(true), WithNoProgress(true), WithVerbose(true))

	r.Case(&CaseSummary{
		Name:       "parallel-4",
		Mode:       "parallel",
		Workers:    4,
		Wall:       500 * time.Millisecond,
		User:       1800 * time.Millisecond,
		System:     20 * time.Millisecond,
		CPUPercent: 364,
		Speedup:    3.5,
		Equivalent: true,
		StepP50:    800 * time.Nanosecond,
		StepP99:    3 * time.Millisecond,
	})

	out := buf.String()
	assert.Contains(t, out, "parallel-4")
	assert.Contains(t, out, "1.800s user 0.020s system 364% cpu 0.500s total")
	assert.Contains(t, out, "x3.50")
	assert.Contains(t, out, "p50: 800ns")
	assert.Contains(t, out, "p99: 3ms")
}

func TestReadCPUTime(t *testing.T) {
	before := ReadCPUTime()
	x := 0.0
	for i := 0; i < 2_000_000; i++ {
		x += math.Sqrt(float64(i))
	}
	after := ReadCPUTime()
	assert.Greater(t, x, 0.0)
	assert.GreaterOrEqual(t, after.Total(), before.Total())
	assert.GreaterOrEqual(t, after.Sub(before).User, time.Duration(0))
}
