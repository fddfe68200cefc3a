package bench

import (
	"testing"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Summarize(t *testing.T) {
	m := NewMetrics()
	for i := 1; i <= 100; i++ {
		m.RecordStep(time.Duration(i) * time.Microsecond)
	}
	m.RecordRun(Sample{Wall: 2 * time.Second, CPU: CPUTime{User: 3 * time.Second, System: time.Second}})
	m.RecordRun(Sample{Wall: 4 * time.Second, CPU: CPUTime{User: 5 * time.Second, System: time.Second}})

	s := m.Summarize(Case{Mode: runner.Parallel, Workers: 2})

	assert.Equal(t, "parallel-2", s.Name)
	assert.Equal(t, "parallel", s.Mode)
	assert.Equal(t, 2, s.Workers)
	assert.Equal(t, 2, s.Runs)
	assert.Equal(t, 3*time.Second, s.Wall)
	assert.Equal(t, 2*time.Second, s.MinWall)
	assert.Equal(t, 4*time.Second, s.User)
	assert.Equal(t, time.Second, s.System)
	assert.Equal(t, 5*time.Second, s.CPU())
	assert.InDelta(t, 166.67, s.CPUPercent, 0.01)

	assert.Equal(t, int64(100), s.Steps)
	assert.InDelta(t, float64(50*time.Microsecond), float64(s.StepP50), float64(time.Microsecond))
	assert.InDelta(t, float64(99*time.Microsecond), float64(s.StepP99), float64(time.Microsecond))
	assert.InDelta(t, float64(100*time.Microsecond), float64(s.StepMax), float64(time.Microsecond))
}

func TestMetrics_RecordStepClamps(t *testing.T) {
	m := NewMetrics()
	m.RecordStep(0)
	m.RecordStep(-time.Second)
	m.RecordStep(2 * time.Minute)

	h := m.Histogram()
	assert.Equal(t, int64(3), h.TotalCount())
	assert.Equal(t, int64(1), h.Min())
	assert.LessOrEqual(t, h.Max(), int64(maxStepNanos)+int64(maxStepNanos)/1000)
}

func TestMetrics_EmptySummary(t *testing.T) {
	s := NewMetrics().Summarize(Case{Mode: runner.Serial, Workers: 1})
	assert.Equal(t, 0, s.Runs)
	assert.Zero(t, s.Wall)
	assert.Zero(t, s.CPUPercent)
}

func TestEvaluateThresholds(t *testing.T) {
	cases := []*CaseSummary{
		{Name: "serial", Mode: "serial", Wall: 4 * time.Second, User: 4 * time.Second, StepP99: 2 * time.Millisecond, Speedup: 1, MassDrift: 1e-15},
		{Name: "parallel-2", Mode: "parallel", Wall: 2 * time.Second, User: 4 * time.Second, StepP99: time.Millisecond, Speedup: 2, Deviation: 0},
		{Name: "parallel-4", Mode: "parallel", Wall: 3 * time.Second, User: 6 * time.Second, StepP99: 3 * time.Millisecond, Speedup: 1.33, MassDrift: -2e-12},
	}

	th, err := ParseThresholds("speedup>=1.5,wall<5s,cpu<5s,p99<2500us,deviation<1e-12,drift<1e-9")
	require.NoError(t, err)

	results := EvaluateThresholds(th, cases)
	require.Len(t, results, 6)

	byName := make(map[string]ThresholdResult)
	for _, r := range results {
		byName[r.Name] = r
	}

	assert.True(t, byName["speedup"].Passed)
	assert.Equal(t, "2", byName["speedup"].Actual)
	assert.True(t, byName["wall"].Passed)
	assert.False(t, byName["cpu"].Passed)
	assert.Contains(t, byName["cpu"].Actual, "parallel-4")
	assert.False(t, byName["p99"].Passed)
	assert.True(t, byName["deviation"].Passed)
	assert.True(t, byName["drift"].Passed)
	assert.Equal(t, "2e-12", byName["drift"].Actual)
}

func TestEvaluateThresholds_Bounds(t *testing.T) {
	cases := []*CaseSummary{
		{Name: "serial", Mode: "serial", Wall: 3 * time.Second, Speedup: 1},
		{Name: "parallel-2", Mode: "parallel", Wall: 2 * time.Second, Speedup: 1.5, Deviation: 1e-12},
	}

	th, err := ParseThresholds("speedup>=1.5,wall<3s,deviation<1e-12")
	require.NoError(t, err)

	results := EvaluateThresholds(th, cases)
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Passed, r.Name)
	}
	assert.Equal(t, ">= 1.50", results[0].Expected)
	assert.Equal(t, "<= 3s", results[1].Expected)
	assert.Equal(t, "<= 1e-12", results[2].Expected)
}

func TestEvaluateThresholds_NoCases(t *testing.T) {
	assert.Empty(t, EvaluateThresholds(Thresholds{MaxWall: time.Second}, nil))
}
