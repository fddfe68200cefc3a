package bench

import (
	"fmt"
	"sort"

	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
)

// Case is one runner configuration of a bench.
type Case struct {
	Mode    runner.Mode
	Workers int
}

// Name returns a stable case name such as "serial" or "parallel-4".
func (c Case) Name() string {
	if c.Mode == runner.Serial {
		return string(runner.Serial)
	}
	return fmt.Sprintf("%s-%d", c.Mode, c.Workers)
}

// Plan is the ordered list of cases of a bench: the serial baseline first,
// then parallel cases by ascending worker count.
type Plan struct {
	Cases  []Case
	Warmup int
	Repeat int
}

// NewPlan builds the plan for config.
func NewPlan(config *Config) *Plan {
	workers := append([]int(nil), config.Workers...)
	sort.Ints(workers)

	p := &Plan{
		Cases:  []Case{{Mode: runner.Serial, Workers: 1}},
		Warmup: config.Warmup,
		Repeat: config.Repeat,
	}

	last := 0
	for _, w := range workers {
		if w == last {
			continue
		}
		p.Cases = append(p.Cases, Case{Mode: runner.Parallel, Workers: w})
		last = w
	}

	return p
}

// Runs returns the total number of runs, warmups included.
func (p *Plan) Runs() int {
	return len(p.Cases) * (p.Warmup + p.Repeat)
}
