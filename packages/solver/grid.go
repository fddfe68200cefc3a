package solver

import (
	"fmt"
	"math"
)

// State is the discretized solution at one point in time, one value per cell.
type State []float64

// Clone returns a copy of the state.
func (s State) Clone() State {
	out := make(State, len(s))
	copy(out, s)
	return out
}

// Len returns the number of cells.
func (s State) Len() int {
	return len(s)
}

// Finite returns the index of the first non-finite value, or -1.
func (s State) Finite() int {
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return i
		}
	}
	return -1
}

// MaxAbsDiff returns the largest absolute difference between two states of
// equal length. It returns +Inf when the lengths differ.
func MaxAbsDiff(a, b State) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}
	maxDiff := 0.0
	for i := range a {
		d := math.Abs(a[i] - b[i])
		if d > maxDiff || math.IsNaN(d) {
			maxDiff = d
		}
	}
	return maxDiff
}

// Grid is a uniform one-dimensional grid over the half-open interval [Lo, Hi).
type Grid struct {
	Lo float64
	Hi float64
	DX float64
	X  []float64
}

// gridEpsilon absorbs rounding in (Hi-Lo)/DX so that [-3, 3) with dx=0.01
// gives 600 cells rather than 601.
const gridEpsilon = 1e-9

// NewGrid creates the grid x_i = lo + i*dx for all x_i < hi.
func NewGrid(lo, hi, dx float64) (*Grid, error) {
	for _, v := range []float64{lo, hi, dx} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, initErrorf("grid bounds and spacing must be finite")
		}
	}
	if dx <= 0 {
		return nil, initErrorf("dx must be positive, got %g", dx)
	}
	if hi <= lo {
		return nil, initErrorf("hi (%g) must be greater than lo (%g)", hi, lo)
	}

	n := int(math.Ceil((hi-lo)/dx - gridEpsilon))
	if n < 1 {
		return nil, initErrorf("grid [%g, %g) with dx=%g has no cells", lo, hi, dx)
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = lo + float64(i)*dx
	}

	return &Grid{Lo: lo, Hi: hi, DX: dx, X: x}, nil
}

// Len returns the number of cells.
func (g *Grid) Len() int {
	return len(g.X)
}

// Length returns the width of the periodic domain, n*dx.
func (g *Grid) Length() float64 {
	return float64(len(g.X)) * g.DX
}

// Sample evaluates an initial condition at every cell centre.
func (g *Grid) Sample(init InitialCondition) State {
	s := make(State, len(g.X))
	for i, x := range g.X {
		s[i] = init(x)
	}
	return s
}

// Check verifies that a state can live on this grid.
func (g *Grid) Check(s State) error {
	if len(s) != len(g.X) {
		return fmt.Errorf("%w: %w: got %d values for %d cells", ErrInitialization, ErrShapeMismatch, len(s), len(g.X))
	}
	if i := s.Finite(); i >= 0 {
		return initErrorf("initial value at cell %d (x=%g) is not finite", i, g.X[i])
	}
	return nil
}

func (g *Grid) String() string {
	return fmt.Sprintf("[%g, %g) dx=%g n=%d", g.Lo, g.Hi, g.DX, len(g.X))
}
