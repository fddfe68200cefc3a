package solver

import (
	"fmt"
	"math"
)

// Problem bundles everything a step needs. It is immutable once built and
// safe to share between goroutines.
type Problem struct {
	Grid     *Grid
	Equation Equation
	Scheme   Scheme
	Boundary Boundary
	DT       float64

	// CheckCFL fails a step when an interface has |v*dt/dx| > 1.
	CheckCFL bool
}

// NewProblem validates its arguments and returns a Problem with CFL checking on.
func NewProblem(grid *Grid, eq Equation, scheme Scheme, bc Boundary, dt float64) (*Problem, error) {
	p := &Problem{
		Grid:     grid,
		Equation: eq,
		Scheme:   scheme,
		Boundary: bc,
		DT:       dt,
		CheckCFL: true,
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the problem is complete and consistent.
func (p *Problem) Validate() error {
	if p.Grid == nil || p.Grid.Len() == 0 {
		return initErrorf("grid is required")
	}
	if p.Equation == nil {
		return initErrorf("equation is required")
	}
	if p.Scheme == nil {
		return initErrorf("scheme is required")
	}
	if p.DT <= 0 || math.IsNaN(p.DT) || math.IsInf(p.DT, 0) {
		return initErrorf("dt must be positive and finite, got %g", p.DT)
	}
	if p.Scheme.Stencil() < 1 {
		return initErrorf("scheme %s has invalid stencil %d", p.Scheme.Name(), p.Scheme.Stencil())
	}
	if p.Boundary.Kind == Periodic && p.Grid.Len() < p.Ghost() {
		return initErrorf("periodic boundary needs at least %d cells, grid has %d", p.Ghost(), p.Grid.Len())
	}
	return nil
}

// Lambda returns dt/dx.
func (p *Problem) Lambda() float64 {
	return p.DT / p.Grid.DX
}

// Ghost returns the number of ghost cells on each side of a padded buffer.
func (p *Problem) Ghost() int {
	return p.Scheme.Stencil()
}

// PaddedLen returns the length of a padded buffer for this problem.
func (p *Problem) PaddedLen() int {
	return p.Grid.Len() + 2*p.Ghost()
}

// Pad copies state into a new padded buffer and fills its ghost cells.
func (p *Problem) Pad(state State) []float64 {
	buf := make([]float64, p.PaddedLen())
	copy(buf[p.Ghost():], state)
	p.FillGhosts(buf)
	return buf
}

// FillGhosts writes the ghost cells of a padded buffer from its interior.
func (p *Problem) FillGhosts(buf []float64) {
	p.Boundary.fill(buf, p.Ghost())
}

// Interior returns the cell values of a padded buffer without copying.
func (p *Problem) Interior(buf []float64) State {
	g := p.Ghost()
	return State(buf[g : g+p.Grid.Len()])
}

func (p *Problem) String() string {
	return fmt.Sprintf("%s/%s on %s, %s, dt=%g", p.Equation.Name(), p.Scheme.Name(), p.Grid, p.Boundary, p.DT)
}
