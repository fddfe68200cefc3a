// Package runner advances a solver.Problem through time.
//
// Two runners share the same per-step update:
//   - Serial: one goroutine updates the whole grid each step
//   - Parallel: a fixed pool of goroutines, each owning a contiguous range
//     of cells, synchronized by a barrier at the end of every step
//
// Both runners double-buffer the state: a step reads the previous buffer
// and writes the next one, so a worker never sees a partially updated
// neighbour. Serial and parallel runs of the same problem produce
// identical states.
package runner
