package experiment

import (
	"fmt"
	"strings"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
)

// Spec names one experiment.
type Spec struct {
	Equation string `json:"equation" yaml:"equation"`
	Initial  string `json:"initial" yaml:"initial"`
	Scheme   string `json:"scheme" yaml:"scheme"`
}

// Name returns "equation-initial-scheme".
func (s Spec) Name() string {
	return strings.Join([]string{s.Equation, s.Initial, s.Scheme}, "-")
}

// Build creates the problem and initial state of s on domain d.
func (s Spec) Build(d Domain) (*solver.Problem, solver.State, error) {
	if err := d.Validate(); err != nil {
		return nil, nil, err
	}

	eq, err := solver.NewEquation(s.Equation, d.Speed)
	if err != nil {
		return nil, nil, err
	}
	init, err := solver.NewInitial(s.Initial)
	if err != nil {
		return nil, nil, err
	}
	scheme, err := solver.NewScheme(s.Scheme)
	if err != nil {
		return nil, nil, err
	}
	grid, err := d.Grid()
	if err != nil {
		return nil, nil, err
	}

	p, err := solver.NewProblem(grid, eq, scheme, d.Boundary, d.DT())
	if err != nil {
		return nil, nil, fmt.Errorf("experiment %s: %w", s.Name(), err)
	}
	return p, grid.Sample(init), nil
}

// Matrix returns every combination of the given names, equations varying
// slowest and schemes fastest.
func Matrix(equations, initials, schemes []string) []Spec {
	specs := make([]Spec, 0, len(equations)*len(initials)*len(schemes))
	for _, eq := range equations {
		for _, ini := range initials {
			for _, sch := range schemes {
				specs = append(specs, Spec{Equation: eq, Initial: ini, Scheme: sch})
			}
		}
	}
	return specs
}

// Default experiment names.
var (
	DefaultEquations = []string{"advection", "burgers"}
	DefaultInitials  = []string{"sine", "square"}
	DefaultSchemes   = []string{"upwind", "beam-warming", "lax-wendroff", "lax-friedrichs"}
)

// DefaultMatrix returns the sixteen default experiments.
func DefaultMatrix() []Spec {
	return Matrix(DefaultEquations, DefaultInitials, DefaultSchemes)
}
