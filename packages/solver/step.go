package solver

import (
	"fmt"
	"math"
)

// cflSlack tolerates rounding when |v*lambda| sits exactly on 1.
const cflSlack = 1e-12

// Workspace is per-goroutine scratch memory for StepRange.
type Workspace struct {
	f []float64
	h []float64
}

// NewWorkspace allocates scratch space for ranges of up to cells cells.
func (p *Problem) NewWorkspace(cells int) *Workspace {
	g := p.Ghost()
	return &Workspace{
		f: make([]float64, cells+2*g),
		h: make([]float64, cells+1),
	}
}

func (ws *Workspace) grow(cells, g int) {
	if len(ws.f) < cells+2*g {
		ws.f = make([]float64, cells+2*g)
	}
	if len(ws.h) < cells+1 {
		ws.h = make([]float64, cells+1)
	}
}

// Step advances state by one time step and returns the new state. state is
// not modified.
func (p *Problem) Step(state State) (State, error) {
	if err := p.Grid.Check(state); err != nil {
		return nil, err
	}
	src := p.Pad(state)
	dst := make([]float64, len(src))
	if err := p.StepRange(src, dst, 0, len(state), p.NewWorkspace(len(state))); err != nil {
		return nil, err
	}
	return p.Interior(dst).Clone(), nil
}

// StepRange advances the interior cells [lo, hi) by one time step. src and
// dst are padded buffers; the ghost cells of src must already be filled.
// Only dst[g+lo : g+hi] and ws are written.
func (p *Problem) StepRange(src, dst []float64, lo, hi int, ws *Workspace) error {
	n := p.Grid.Len()
	g := p.Ghost()
	if len(src) != n+2*g || len(dst) != n+2*g {
		return fmt.Errorf("%w: padded buffers must hold %d values", ErrShapeMismatch, n+2*g)
	}
	if lo < 0 || hi > n || lo > hi {
		return fmt.Errorf("%w: range [%d, %d) outside grid of %d cells", ErrShapeMismatch, lo, hi, n)
	}
	if lo == hi {
		return nil
	}

	cells := hi - lo
	ws.grow(cells, g)

	// Window of src covering cells [lo-g, hi+g); cell j sits at u[j-lo+g].
	u := src[lo : hi+2*g]
	f := ws.f[:len(u)]
	for k, v := range u {
		f[k] = p.Equation.Flux(v)
	}

	lambda := p.Lambda()
	h := ws.h[:cells+1]
	for k := range h {
		i := g - 1 + k
		if p.CheckCFL {
			if c := WaveSpeed(p.Equation, u, f, i) * lambda; math.Abs(c) > 1+cflSlack {
				cell := lo + k - 1
				if cell < 0 {
					cell = 0
				}
				return &InstabilityError{Cell: cell, X: p.Grid.X[cell], Value: c, Err: ErrCFL}
			}
		}
		h[k] = p.Scheme.Flux(p.Equation, u, f, i, lambda)
	}

	for k := 0; k < cells; k++ {
		v := u[g+k] - lambda*(h[k+1]-h[k])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &InstabilityError{Cell: lo + k, X: p.Grid.X[lo+k], Value: v, Err: ErrNonFinite}
		}
		dst[g+lo+k] = v
	}
	return nil
}
