package solver

import (
	"sort"
	"strings"
)

// Equation is the flux function of a scalar conservation law.
type Equation interface {
	Name() string
	// Flux returns f(u).
	Flux(u float64) float64
	// Speed returns f'(u), the characteristic speed.
	Speed(u float64) float64
}

// Advection is the linear advection equation f(u) = a*u.
type Advection struct {
	A float64
}

func (e Advection) Name() string            { return "advection" }
func (e Advection) Flux(u float64) float64  { return e.A * u }
func (e Advection) Speed(_ float64) float64 { return e.A }

// Burgers is the inviscid Burgers equation f(u) = u^2/2.
type Burgers struct{}

func (Burgers) Name() string            { return "burgers" }
func (Burgers) Flux(u float64) float64  { return u * u / 2 }
func (Burgers) Speed(u float64) float64 { return u }

var equationAliases = map[string]string{
	"advection":        "advection",
	"linear-advection": "advection",
	"burgers":          "burgers",
	"inviscid-burgers": "burgers",
	"inviscidburger":   "burgers",
}

// NewEquation returns the equation registered under name. speed is the
// advection velocity and is ignored by nonlinear equations.
func NewEquation(name string, speed float64) (Equation, error) {
	switch equationAliases[normalizeName(name)] {
	case "advection":
		return Advection{A: speed}, nil
	case "burgers":
		return Burgers{}, nil
	}
	return nil, initErrorf("unknown equation %q (available: %s)", name, strings.Join(EquationNames(), ", "))
}

// EquationNames lists the canonical equation names.
func EquationNames() []string {
	return []string{"advection", "burgers"}
}

func normalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, "_", "-")
	name = strings.ReplaceAll(name, " ", "-")
	return name
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
