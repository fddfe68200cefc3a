package solver

import (
	"errors"
	"fmt"
)

var (
	// ErrInitialization indicates an invalid grid, parameter or component name.
	ErrInitialization = errors.New("solver: invalid initialization")

	// ErrNumericalInstability indicates a step produced an unusable state.
	ErrNumericalInstability = errors.New("solver: numerical instability")

	// ErrNonFinite indicates a NaN or Inf value was produced.
	ErrNonFinite = errors.New("solver: non-finite value")

	// ErrCFL indicates the CFL condition |v*dt/dx| <= 1 was violated.
	ErrCFL = errors.New("solver: CFL condition violated")

	// ErrShapeMismatch indicates a state whose length does not match the grid.
	ErrShapeMismatch = errors.New("solver: state does not match grid size")
)

func initErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInitialization, fmt.Sprintf(format, args...))
}

// InstabilityError reports where a step went wrong.
type InstabilityError struct {
	Step  int
	Cell  int
	X     float64
	Value float64
	Err   error
}

func (e *InstabilityError) Error() string {
	return fmt.Sprintf("step %d, cell %d (x=%g): %v (value %g)", e.Step, e.Cell, e.X, e.Err, e.Value)
}

func (e *InstabilityError) Unwrap() error {
	return e.Err
}

// Is makes every InstabilityError match ErrNumericalInstability.
func (e *InstabilityError) Is(target error) bool {
	return target == ErrNumericalInstability
}

// WithStep returns err with its step number set when it is an InstabilityError.
func WithStep(err error, step int) error {
	var ie *InstabilityError
	if errors.As(err, &ie) {
		cp := *ie
		cp.Step = step
		return &cp
	}
	return err
}
