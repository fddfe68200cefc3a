// Package experiment runs matrices of equation, initial wave and scheme
// combinations on a shared domain.
package experiment

import (
	"fmt"
	"math"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
)

// Domain defaults.
const (
	DefaultLo   = -3.0
	DefaultHi   = 3.0
	DefaultDX   = 1e-2
	DefaultCFL  = 0.6
	DefaultTime = 3.0
)

// stepSlack absorbs rounding in Time/DT so that 3/0.006 gives 500 steps.
const stepSlack = 1e-9

// Domain is the space and time extent shared by the experiments of a sweep.
type Domain struct {
	Lo       float64
	Hi       float64
	DX       float64
	CFL      float64
	Time     float64
	Steps    int // overrides Time when positive
	Speed    float64
	Boundary solver.Boundary
}

// DefaultDomain returns the domain [-3, 3) with dx 0.01, cfl 0.6 and time 3.
func DefaultDomain() Domain {
	return Domain{
		Lo:    DefaultLo,
		Hi:    DefaultHi,
		DX:    DefaultDX,
		CFL:   DefaultCFL,
		Time:  DefaultTime,
		Speed: 1,
	}
}

// DT returns the time step CFL*DX.
func (d Domain) DT() float64 {
	return d.CFL * d.DX
}

// StepCount returns Steps when set, otherwise floor(Time/DT).
func (d Domain) StepCount() int {
	if d.Steps > 0 {
		return d.Steps
	}
	return int(math.Floor(d.Time/d.DT() + stepSlack))
}

// Validate checks the domain parameters.
func (d Domain) Validate() error {
	if !(d.CFL > 0) || math.IsInf(d.CFL, 0) {
		return fmt.Errorf("%w: cfl must be positive, got %g", solver.ErrInitialization, d.CFL)
	}
	if d.Time < 0 || math.IsNaN(d.Time) || math.IsInf(d.Time, 0) {
		return fmt.Errorf("%w: time must be a non-negative number, got %g", solver.ErrInitialization, d.Time)
	}
	if d.Steps < 0 {
		return fmt.Errorf("%w: steps must not be negative, got %d", solver.ErrInitialization, d.Steps)
	}
	if _, err := solver.NewGrid(d.Lo, d.Hi, d.DX); err != nil {
		return err
	}
	return nil
}

// Grid returns the grid of the domain.
func (d Domain) Grid() (*solver.Grid, error) {
	return solver.NewGrid(d.Lo, d.Hi, d.DX)
}

func (d Domain) String() string {
	return fmt.Sprintf("[%g, %g) dx=%g cfl=%g steps=%d bc=%s", d.Lo, d.Hi, d.DX, d.CFL, d.StepCount(), d.Boundary)
}
