package config

import (
	"github.com/abdul-hamid-achik/conserve/packages/bench"
	"github.com/abdul-hamid-achik/conserve/packages/experiment"
	"github.com/abdul-hamid-achik/conserve/packages/snapshot"
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Domain: DomainConfig{
			Lo:       experiment.DefaultLo,
			Hi:       experiment.DefaultHi,
			DX:       experiment.DefaultDX,
			CFL:      experiment.DefaultCFL,
			Time:     experiment.DefaultTime,
			Speed:    1,
			Boundary: "periodic",
		},
		Run: RunConfig{
			Mode:     "serial",
			Equation: "burgers",
			Initial:  "sine",
			Scheme:   "lax-wendroff",
		},
		Bench: BenchConfig{
			Workers:   []int{1, 2, 4, 8},
			Repeat:    3,
			Warmup:    1,
			Tolerance: bench.DefaultTolerance,
		},
		Sweep: SweepConfig{
			Equations: append([]string(nil), experiment.DefaultEquations...),
			Initials:  append([]string(nil), experiment.DefaultInitials...),
			Schemes:   append([]string(nil), experiment.DefaultSchemes...),
		},
		Output: OutputConfig{
			Format: "console",
		},
		Snapshots: SnapshotConfig{
			Dir:       ".",
			Tolerance: snapshot.DefaultTolerance,
		},
		Log: LogConfig{
			Level: "warn",
		},
	}
}
