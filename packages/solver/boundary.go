package solver

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BoundaryKind selects how ghost cells are filled.
type BoundaryKind int

const (
	// Periodic wraps the domain around.
	Periodic BoundaryKind = iota
	// Outflow copies the nearest edge cell (zero gradient).
	Outflow
	// Fixed holds constant Left and Right values outside the domain.
	Fixed
)

func (k BoundaryKind) String() string {
	switch k {
	case Periodic:
		return "periodic"
	case Outflow:
		return "outflow"
	case Fixed:
		return "fixed"
	}
	return "unknown"
}

// Boundary describes the ghost cells on both ends of the grid.
type Boundary struct {
	Kind  BoundaryKind
	Left  float64
	Right float64
}

func (b Boundary) String() string {
	if b.Kind == Fixed {
		return fmt.Sprintf("fixed:%g,%g", b.Left, b.Right)
	}
	return b.Kind.String()
}

// ParseBoundary parses "periodic", "outflow" or "fixed:L,R".
func ParseBoundary(s string) (Boundary, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "", "periodic":
		return Boundary{Kind: Periodic}, nil
	case "outflow", "transmissive":
		return Boundary{Kind: Outflow}, nil
	}

	if rest, ok := strings.CutPrefix(s, "fixed:"); ok {
		l, r, found := strings.Cut(rest, ",")
		if !found {
			return Boundary{}, initErrorf("fixed boundary needs two values, got %q", s)
		}
		left, err := strconv.ParseFloat(strings.TrimSpace(l), 64)
		if err != nil {
			return Boundary{}, initErrorf("invalid left boundary value %q", l)
		}
		right, err := strconv.ParseFloat(strings.TrimSpace(r), 64)
		if err != nil {
			return Boundary{}, initErrorf("invalid right boundary value %q", r)
		}
		if math.IsNaN(left) || math.IsInf(left, 0) || math.IsNaN(right) || math.IsInf(right, 0) {
			return Boundary{}, initErrorf("fixed boundary values must be finite")
		}
		return Boundary{Kind: Fixed, Left: left, Right: right}, nil
	}

	return Boundary{}, initErrorf("unknown boundary %q (available: periodic, outflow, fixed:L,R)", s)
}

// BoundaryNames lists the accepted boundary forms.
func BoundaryNames() []string {
	return []string{"periodic", "outflow", "fixed:L,R"}
}

// fill writes the g ghost cells on each side of a padded buffer holding
// n = len(buf)-2g interior cells.
func (b Boundary) fill(buf []float64, g int) {
	n := len(buf) - 2*g
	for k := 0; k < g; k++ {
		switch b.Kind {
		case Periodic:
			buf[k] = buf[n+k]
			buf[n+g+k] = buf[g+k]
		case Outflow:
			buf[k] = buf[g]
			buf[n+g+k] = buf[n+g-1]
		case Fixed:
			buf[k] = b.Left
			buf[n+g+k] = b.Right
		}
	}
}
