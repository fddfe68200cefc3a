package solver

import (
	"math"
	"strings"
)

// InitialCondition gives u(x, 0).
type InitialCondition func(x float64) float64

var initials = map[string]InitialCondition{
	"sine": func(x float64) float64 {
		return math.Sin(math.Pi * x)
	},
	"square": func(x float64) float64 {
		if x >= 0 && x <= 1 {
			return 1
		}
		return 0
	},
	"gaussian": func(x float64) float64 {
		return math.Exp(-4 * x * x)
	},
	"step": func(x float64) float64 {
		if x < 0 {
			return 1
		}
		return 0
	},
	"constant": func(float64) float64 {
		return 1
	},
}

// NewInitial returns the initial condition registered under name.
func NewInitial(name string) (InitialCondition, error) {
	if ic, ok := initials[normalizeName(name)]; ok {
		return ic, nil
	}
	return nil, initErrorf("unknown initial condition %q (available: %s)", name, strings.Join(InitialNames(), ", "))
}

// InitialNames lists the registered initial conditions.
func InitialNames() []string {
	return sortedKeys(initials)
}

// AdvectionExact returns the exact solution of periodic linear advection
// with speed a at time t: the initial profile shifted by a*t.
func AdvectionExact(init InitialCondition, grid *Grid, a, t float64) State {
	length := grid.Length()
	s := make(State, grid.Len())
	for i, x := range grid.X {
		xs := math.Mod(x-a*t-grid.Lo, length)
		if xs < 0 {
			xs += length
		}
		s[i] = init(grid.Lo + xs)
	}
	return s
}
