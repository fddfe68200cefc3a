package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
domain:
  lo: -1
  hi: 1
  dx: 0.02
  cfl: 0.5
  time: 1
  boundary: fixed:0,1
run:
  mode: parallel
  workers: 4
  equation: advection
  initial: square
  scheme: upwind
  checkCFL: false
bench:
  workers: [2, 4]
  repeat: 5
  tolerance: 1e-12
  thresholds: speedup>=1.2,p99<5ms
sweep:
  schemes: [upwind, lax-friedrichs]
  bail: true
  outputDir: ${CONSERVE_TEST_OUT:-outputs}
history: sqlite://runs.db
profiles:
  fine:
    domain:
      dx: 0.005
    bench:
      repeat: 10
  quick:
    domain:
      steps: 10
    run:
      mode: serial
`

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, -3.0, cfg.Domain.Lo)
	assert.Equal(t, 3.0, cfg.Domain.Hi)
	assert.Equal(t, 0.01, cfg.Domain.DX)
	assert.Equal(t, 0.6, cfg.Domain.CFL)
	assert.Equal(t, "periodic", cfg.Domain.Boundary)
	assert.Equal(t, "serial", cfg.Run.Mode)
	assert.True(t, cfg.GetCheckCFL())
	assert.False(t, cfg.GetBail())
	assert.False(t, cfg.GetNoColor())
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Len(t, cfg.SweepSpecs(), 16)
	assert.NoError(t, cfg.Validate())
}

func TestParse(t *testing.T) {
	t.Setenv("CONSERVE_TEST_OUT", "frames")

	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, -1.0, cfg.Domain.Lo)
	assert.Equal(t, 0.02, cfg.Domain.DX)
	assert.Equal(t, 1.0, cfg.Domain.Speed, "unset keys keep defaults")
	assert.Equal(t, "parallel", cfg.Run.Mode)
	assert.Equal(t, 4, cfg.Run.Workers)
	assert.False(t, cfg.GetCheckCFL())
	assert.Equal(t, []int{2, 4}, cfg.Bench.Workers)
	assert.Equal(t, 5, cfg.Bench.Repeat)
	assert.Equal(t, 1, cfg.Bench.Warmup)
	assert.Equal(t, 1e-12, cfg.Bench.Tolerance)
	assert.True(t, cfg.GetBail())
	assert.Equal(t, "frames", cfg.Sweep.OutputDir)
	assert.Equal(t, []string{"advection", "burgers"}, cfg.Sweep.Equations)
	assert.Equal(t, "sqlite://runs.db", cfg.History)
	assert.Equal(t, []string{"fine", "quick"}, cfg.ProfileNames())
	require.NoError(t, cfg.Validate())

	d, err := cfg.ExperimentDomain()
	require.NoError(t, err)
	assert.Equal(t, solver.Boundary{Kind: solver.Fixed, Left: 0, Right: 1}, d.Boundary)
	assert.Equal(t, 100, d.StepCount())

	bc := cfg.BenchConfig()
	assert.Equal(t, 1.2, bc.Thresholds.MinSpeedup)
	assert.Equal(t, 5, bc.Repeat)

	assert.Equal(t, "advection-square-upwind", cfg.RunSpec().Name())
	specs := cfg.SweepSpecs()
	require.Len(t, specs, 8)
	assert.Equal(t, "advection-sine-upwind", specs[0].Name())
	assert.Equal(t, "burgers-square-lax-friedrichs", specs[7].Name())
}

func TestParse_ExpandDefault(t *testing.T) {
	cfg, err := Parse([]byte("sweep:\n  outputDir: ${CONSERVE_TEST_UNSET_DIR:-outputs}\n"))
	require.NoError(t, err)
	assert.Equal(t, "outputs", cfg.Sweep.OutputDir)
}

func TestParse_JSON(t *testing.T) {
	cfg, err := Parse([]byte(`{"run": {"scheme": "beam-warming"}, "bench": {"workers": [8]}}`))
	require.NoError(t, err)
	assert.Equal(t, "beam-warming", cfg.Run.Scheme)
	assert.Equal(t, []int{8}, cfg.Bench.Workers)
}

func TestParse_Empty(t *testing.T) {
	cfg, err := Parse([]byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown section", "plots: {}"},
		{"unknown key", "domain:\n  width: 3"},
		{"negative dx", "domain:\n  dx: -0.1"},
		{"bad mode", "run:\n  mode: gpu"},
		{"zero repeat", "bench:\n  repeat: 0"},
		{"worker type", "bench:\n  workers: [two]"},
		{"bad format", "output:\n  format: html"},
		{"bad log level", "log:\n  level: loud"},
		{"profile with unknown key", "profiles:\n  p:\n    plots: 1"},
		{"invalid yaml", "domain: [unclosed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestApplyProfile(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	require.NoError(t, cfg.ApplyProfile("fine"))
	assert.Equal(t, 0.005, cfg.Domain.DX)
	assert.Equal(t, -1.0, cfg.Domain.Lo, "keys outside the profile are kept")
	assert.Equal(t, 10, cfg.Bench.Repeat)
	assert.Equal(t, "parallel", cfg.Run.Mode)

	require.NoError(t, cfg.ApplyProfile("quick"))
	assert.Equal(t, "serial", cfg.Run.Mode)
	assert.Equal(t, 10, cfg.Domain.Steps)
	assert.Equal(t, 0.005, cfg.Domain.DX)

	assert.NoError(t, cfg.ApplyProfile(""))
	assert.ErrorIs(t, cfg.ApplyProfile("missing"), ErrInvalidConfig)
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Domain.Boundary = "reflective"
	cfg.Run.Scheme = "weno"
	cfg.Bench.Repeat = 0
	cfg.Bench.Thresholds = "rps>5"
	cfg.Sweep.Initials = []string{"sine", "triangle"}

	err := cfg.Validate()
	require.Error(t, err)

	msg := err.Error()
	assert.Contains(t, msg, "domain:")
	assert.Contains(t, msg, "run.scheme:")
	assert.Contains(t, msg, "bench: repeat")
	assert.Contains(t, msg, "bench.thresholds:")
	assert.Contains(t, msg, "sweep.initials:")
	assert.ErrorIs(t, err, solver.ErrInitialization)
}

func TestFindAndLoadConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Empty(t, FindConfigFile(dir))

	path := filepath.Join(dir, ".conserve.yml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  scheme: upwind\n"), 0644))

	cfg, err = FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "upwind", cfg.Run.Scheme)
	assert.Equal(t, path, cfg.Path)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "conserve.yaml"), []byte("run:\n  scheme: beam-warming\n"), 0644))
	cfg, err = FindAndLoadConfig(dir)
	require.NoError(t, err)
	assert.Equal(t, "beam-warming", cfg.Run.Scheme, "conserve.yaml has precedence")
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("run:\n  mode: gpu\n"), 0644))
	_, err = LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), path)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Run.CheckCFL = BoolPtr(false)
	cfg.History = "sqlite://history.db"

	path := filepath.Join(t.TempDir(), "conserve.yaml")
	require.NoError(t, cfg.SaveConfig(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	loaded.Path = ""
	assert.Equal(t, cfg, loaded)
}
