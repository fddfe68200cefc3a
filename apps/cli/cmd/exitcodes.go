package cmd

import (
	"errors"

	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/abdul-hamid-achik/conserve/packages/solver"
)

// Exit codes for conserve CLI
const (
	// ExitSuccess indicates every run passed
	ExitSuccess = 0

	// ExitVerificationFailure indicates a failed equivalence, snapshot or threshold check
	ExitVerificationFailure = 1

	// ExitNumericalError indicates an unstable run or a worker panic
	ExitNumericalError = 2

	// ExitConfigError indicates invalid configuration or problem parameters
	ExitConfigError = 3

	// ExitUsageError indicates invalid CLI usage
	ExitUsageError = 64
)

// errUsage marks command line mistakes.
var errUsage = errors.New("usage error")

// exitError carries an explicit exit code. Silent errors were already
// reported by the command.
type exitError struct {
	code   int
	err    error
	silent bool
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// withExitCode attaches code to err.
func withExitCode(code int, err error) error {
	return &exitError{code: code, err: err}
}

// verificationFailed reports a failed check that the command already printed.
func verificationFailed(err error) error {
	return &exitError{code: ExitVerificationFailure, err: err, silent: true}
}

// exitCode maps an error returned by a command to the process exit code.
func exitCode(err error) int {
	var ee *exitError
	var wp *runner.WorkerPanicError

	switch {
	case err == nil:
		return ExitSuccess
	case errors.As(err, &ee):
		return ee.code
	case errors.Is(err, errUsage):
		return ExitUsageError
	case errors.Is(err, solver.ErrNumericalInstability), errors.As(err, &wp):
		return ExitNumericalError
	case errors.Is(err, config.ErrInvalidConfig), errors.Is(err, solver.ErrInitialization):
		return ExitConfigError
	default:
		return ExitVerificationFailure
	}
}

// isSilent reports whether err was already shown to the user.
func isSilent(err error) bool {
	var ee *exitError
	return errors.As(err, &ee) && ee.silent
}
