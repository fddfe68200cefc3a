package bench

import (
	"testing"

	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/stretchr/testify/assert"
)

func TestNewPlan(t *testing.T) {
	plan := NewPlan(&Config{Workers: []int{4, 1, 4, 2}, Repeat: 2, Warmup: 1})

	assert.Equal(t, []Case{
		{Mode: runner.Serial, Workers: 1},
		{Mode: runner.Parallel, Workers: 1},
		{Mode: runner.Parallel, Workers: 2},
		{Mode: runner.Parallel, Workers: 4},
	}, plan.Cases)
	assert.Equal(t, 12, plan.Runs())
}

func TestNewPlan_SerialOnly(t *testing.T) {
	plan := NewPlan(&Config{Repeat: 3})
	assert.Len(t, plan.Cases, 1)
	assert.Equal(t, "serial", plan.Cases[0].Name())
	assert.Equal(t, 3, plan.Runs())
}

func TestCaseName(t *testing.T) {
	assert.Equal(t, "serial", Case{Mode: runner.Serial, Workers: 1}.Name())
	assert.Equal(t, "parallel-8", Case{Mode: runner.Parallel, Workers: 8}.Name())
}
