package solver

import (
	"strings"
)

// Scheme computes numerical fluxes for the conservative update
//
//	u_j' = u_j - lambda*(h_{j+1/2} - h_{j-1/2}),  lambda = dt/dx
type Scheme interface {
	Name() string
	// Stencil is the number of ghost cells needed on each side.
	Stencil() int
	// Flux returns the numerical flux at the interface between cells i and
	// i+1 of u, where f holds the physical flux of every value of u.
	Flux(eq Equation, u, f []float64, i int, lambda float64) float64
}

// WaveSpeed returns the local characteristic speed at the interface between
// cells i and i+1: the Rankine-Hugoniot speed, or f'(u_i) when the jump is zero.
func WaveSpeed(eq Equation, u, f []float64, i int) float64 {
	du := u[i+1] - u[i]
	if du == 0 {
		return eq.Speed(u[i])
	}
	return (f[i+1] - f[i]) / du
}

// Upwind takes the flux from the side the wave comes from.
type Upwind struct{}

func (Upwind) Name() string  { return "upwind" }
func (Upwind) Stencil() int { return 1 }

func (Upwind) Flux(eq Equation, u, f []float64, i int, _ float64) float64 {
	if WaveSpeed(eq, u, f, i) > 0 {
		return f[i]
	}
	return f[i+1]
}

// LaxWendroff is the two-step Richtmyer form of the Lax-Wendroff scheme:
//
//	h_{i+1/2} = f((u_i + u_{i+1})/2 - lambda/2 * (f_{i+1} - f_i))
type LaxWendroff struct{}

func (LaxWendroff) Name() string  { return "lax-wendroff" }
func (LaxWendroff) Stencil() int { return 1 }

func (LaxWendroff) Flux(eq Equation, u, f []float64, i int, lambda float64) float64 {
	return eq.Flux((u[i]+u[i+1])/2 - lambda/2*(f[i+1]-f[i]))
}

// LaxFriedrichs is the first-order centred scheme with numerical diffusion dx^2/(2 dt).
type LaxFriedrichs struct{}

func (LaxFriedrichs) Name() string  { return "lax-friedrichs" }
func (LaxFriedrichs) Stencil() int { return 1 }

func (LaxFriedrichs) Flux(_ Equation, u, f []float64, i int, lambda float64) float64 {
	return (f[i]+f[i+1])/2 - (u[i+1]-u[i])/(2*lambda)
}

// BeamWarming is the second-order one-sided scheme. The side is picked from
// the local wave speed, which makes it usable for nonlinear fluxes.
type BeamWarming struct{}

func (BeamWarming) Name() string  { return "beam-warming" }
func (BeamWarming) Stencil() int { return 2 }

func (BeamWarming) Flux(eq Equation, u, f []float64, i int, lambda float64) float64 {
	v := WaveSpeed(eq, u, f, i)
	nu := v * lambda
	if v >= 0 {
		return f[i] + (1-nu)/2*(f[i]-f[i-1])
	}
	return f[i+1] - (1+nu)/2*(f[i+2]-f[i+1])
}

var schemes = map[string]Scheme{
	"upwind":         Upwind{},
	"lax-wendroff":   LaxWendroff{},
	"laxwendroff":    LaxWendroff{},
	"lax-friedrichs": LaxFriedrichs{},
	"laxfriedrichs":  LaxFriedrichs{},
	"beam-warming":   BeamWarming{},
	"beamwarming":    BeamWarming{},
}

// NewScheme returns the scheme registered under name.
func NewScheme(name string) (Scheme, error) {
	if s, ok := schemes[normalizeName(name)]; ok {
		return s, nil
	}
	return nil, initErrorf("unknown scheme %q (available: %s)", name, strings.Join(SchemeNames(), ", "))
}

// SchemeNames lists the canonical scheme names.
func SchemeNames() []string {
	return []string{"upwind", "lax-wendroff", "lax-friedrichs", "beam-warming"}
}
