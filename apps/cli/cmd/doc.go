// Package cmd implements the conserve CLI commands using Cobra.
//
// Available commands:
//   - run: Integrate one problem with the serial or parallel runner
//   - bench: Time the serial runner against worker counts and check equivalence
//   - sweep: Run a matrix of equations, initial waves and schemes
//   - diff: Compare two bench reports
//   - history: Show bench runs stored in a database
//   - validate: Check a config file and its profiles
//   - list: Show the available equations, schemes, initial waves and boundaries
//   - init: Write an example conserve.yaml
//   - version: Show conserve version information
//
// Settings come from the config file, CONSERVE_* environment variables
// and flags, in increasing order of precedence.
//
// NewExampleCommand builds the standalone conservation example binaries.
package cmd
