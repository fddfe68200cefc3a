// Package solver implements finite-difference schemes for one-dimensional
// scalar conservation laws u_t + f(u)_x = 0.
//
// It provides:
//   - Grid and State, the discretized domain and solution
//   - Equation implementations (linear advection, inviscid Burgers)
//   - Scheme implementations (upwind, Lax-Wendroff, Lax-Friedrichs, Beam-Warming)
//   - Boundary handling through ghost cells (periodic, outflow, fixed)
//   - Problem, whose Step and StepRange methods advance a state by one time step
//
// Every scheme is written in conservative form, so the update of a cell only
// depends on the previous state and on interface fluxes computed from it.
// StepRange can therefore be called concurrently on disjoint cell ranges and
// produces the same numbers as a single call over the whole grid.
package solver
