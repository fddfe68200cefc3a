package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/abdul-hamid-achik/conserve/packages/core/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var timeLinePattern = regexp.MustCompile(`\d+\.\d{3}s user \d+\.\d{3}s system +\d+% cpu \d+\.\d{3}s total`)

// resetCommands restores every flag to its default and forgets that it was
// set, so that one Execute does not leak into the next.
func resetCommands(t *testing.T) {
	t.Helper()
	reset := func(f *pflag.Flag) {
		require.NoError(t, f.Value.Set(f.DefValue), f.Name)
		f.Changed = false
	}
	var walk func(c *cobra.Command)
	walk = func(c *cobra.Command) {
		c.Flags().VisitAll(reset)
		c.PersistentFlags().VisitAll(reset)
		for _, sub := range c.Commands() {
			walk(sub)
		}
	}
	walk(rootCmd)

	cfg = config.DefaultConfig()
	log = zap.NewNop()
}

// execute runs the root command with args in the current directory and
// returns everything written to stdout and stderr.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetCommands(t)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	err := rootCmd.Execute()
	return out.String(), err
}

func TestRun_ExitCodes(t *testing.T) {
	tests := []struct {
		name     string
		args     []string
		env      map[string]string
		wantCode int
		contains []string
	}{
		{
			name:     "serial",
			args:     []string{"run", "--steps", "50", "--no-color"},
			wantCode: ExitSuccess,
			contains: []string{"✓ burgers-sine-lax-wendroff (serial,", "50 steps)"},
		},
		{
			name:     "parallel",
			args:     []string{"run", "--mode", "parallel", "--workers", "4", "--steps", "50", "--no-color"},
			wantCode: ExitSuccess,
			contains: []string{"(parallel/4, 600 cells, 50 steps)", "Runs: 1 passed, 1 total"},
		},
		{
			name:     "cfl violation",
			args:     []string{"run", "--cfl", "2", "--steps", "10", "--no-color"},
			wantCode: ExitNumericalError,
		},
		{
			name:     "negative dx",
			args:     []string{"run", "--dx", "-1", "--no-color"},
			wantCode: ExitConfigError,
		},
		{
			name:     "unknown scheme",
			args:     []string{"run", "--scheme", "leapfrog", "--steps", "10", "--no-color"},
			wantCode: ExitConfigError,
		},
		{
			name:     "bad flag value",
			args:     []string{"run", "--steps", "many"},
			wantCode: ExitUsageError,
		},
		{
			name:     "workers list in env",
			args:     []string{"run", "--steps", "10", "--no-color"},
			env:      map[string]string{"CONSERVE_WORKERS": "1,2,4"},
			wantCode: ExitUsageError,
		},
		{
			name:     "workers from env",
			args:     []string{"run", "--mode", "parallel", "--steps", "10", "--no-color"},
			env:      map[string]string{"CONSERVE_WORKERS": "3"},
			wantCode: ExitSuccess,
			contains: []string{"(parallel/3,"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Chdir(t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			out, err := execute(t, tt.args...)
			assert.Equal(t, tt.wantCode, exitCode(err), "error: %v\noutput:\n%s", err, out)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			if tt.wantCode == ExitSuccess {
				assert.Regexp(t, timeLinePattern, out)
			}
		})
	}
}

func TestRun_FlagsDoNotLeak(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "run", "--dx", "-1", "--no-color")
	require.Equal(t, ExitConfigError, exitCode(err))

	out, err := execute(t, "run", "--steps", "10", "--no-color")
	require.NoError(t, err, out)
	assert.Contains(t, out, "600 cells")
}

func TestRun_JSONAndStateFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	out, err := execute(t, "run", "--steps", "20", "--output", "json", "--state-file", "final.csv")
	require.NoError(t, err, out)

	var doc struct {
		Runs []struct {
			Name       string   `json:"name"`
			Passed     bool     `json:"passed"`
			CPUPercent *float64 `json:"cpuPercent"`
		} `json:"runs"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc), out)
	require.Len(t, doc.Runs, 1)
	assert.True(t, doc.Runs[0].Passed)
	assert.NotNil(t, doc.Runs[0].CPUPercent)

	data, err := os.ReadFile(filepath.Join(dir, "final.csv"))
	require.NoError(t, err)
	assert.Equal(t, 601, bytes.Count(data, []byte("\n")), "header and one row per cell")
}

func TestRun_Snapshot(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "run", "--steps", "20", "--snapshot", "burgers", "--update-snapshots", "--no-color")
	require.NoError(t, err, out)

	out, err = execute(t, "run", "--steps", "20", "--snapshot", "burgers", "--no-color")
	require.NoError(t, err, out)

	out, err = execute(t, "run", "--steps", "21", "--snapshot", "burgers", "--no-color")
	assert.Equal(t, ExitVerificationFailure, exitCode(err), out)
	assert.True(t, isSilent(err))
}

func TestSweep(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "sweep",
		"--equations", "advection", "--initials", "sine", "--schemes", "upwind,lax-wendroff",
		"--steps", "20", "--output-dir", "frames", "--no-color")
	require.NoError(t, err, out)

	assert.Contains(t, out, "advection-sine-upwind")
	assert.Contains(t, out, "advection-sine-lax-wendroff")
	assert.Contains(t, out, "Runs: 2 passed, 2 total")
	assert.Regexp(t, `Sweep: `+timeLinePattern.String(), out)
	assert.Equal(t, 1, strings.Count(out, "% cpu"), "cpu time only for the whole sweep")
	assert.FileExists(t, filepath.Join("frames", "advection-sine-upwind.csv"))
}

func TestSweep_Failure(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "sweep", "--equations", "burgers", "--initials", "sine", "--schemes", "upwind",
		"--cfl", "2", "--steps", "10", "--no-color")
	assert.Equal(t, ExitNumericalError, exitCode(err), out)
	assert.Contains(t, out, "Runs: 1 failed, 1 total")
}

func TestBenchAndHistory(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	db := "sqlite://" + filepath.Join(dir, "bench.db")

	out, err := execute(t, "bench", "--workers", "1,2", "--repeat", "1", "--warmup", "0",
		"--steps", "20", "--no-progress", "--no-color", "--history", db)
	require.NoError(t, err, out)

	saved := regexp.MustCompile(`Saved as run ([0-9a-f-]{36})`).FindStringSubmatch(out)
	require.Len(t, saved, 2, out)
	id := saved[1]

	out, err = execute(t, "history", "--history", db, "--no-color")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Bench runs")
	assert.Contains(t, out, id[:8])

	out, err = execute(t, "history", id[:8], "--history", db, "--no-color")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Run:        "+id)
	assert.Contains(t, out, "Equivalent: yes")

	_, err = execute(t, "history", "ffffffff", "--history", db)
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestBench_JSON(t *testing.T) {
	t.Chdir(t.TempDir())

	var stdout, stderr bytes.Buffer
	resetCommands(t)
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{"bench", "--workers", "2", "--repeat", "1", "--warmup", "0",
		"--steps", "10", "--no-progress", "--no-color", "--json"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute(), stderr.String())

	var report struct {
		Equivalent bool `json:"equivalent"`
		Cases      []struct {
			Name string `json:"name"`
		} `json:"cases"`
	}
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &report), stdout.String())
	assert.True(t, report.Equivalent)
	assert.Len(t, report.Cases, 2)
}

func TestBench_InvalidThreshold(t *testing.T) {
	t.Chdir(t.TempDir())

	_, err := execute(t, "bench", "--threshold", "speedup<2", "--steps", "10")
	assert.Equal(t, ExitUsageError, exitCode(err))
}

func TestInitAndValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	out, err := execute(t, "init")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Created: ")
	assert.FileExists(t, config.ConfigFilenames[0])

	out, err = execute(t, "validate", "conserve.yaml")
	require.NoError(t, err, out)
	assert.Contains(t, out, "Valid: conserve.yaml\n")
	assert.Contains(t, out, "Valid: conserve.yaml (profile fine)")
	assert.Contains(t, out, "Valid: conserve.yaml (profile quick)")

	_, err = execute(t, "init")
	assert.Equal(t, ExitUsageError, exitCode(err))

	out, err = execute(t, "init", "--force")
	require.NoError(t, err, out)

	out, err = execute(t, "run", "--profile", "quick", "--no-color")
	require.NoError(t, err, out)
	assert.Contains(t, out, "120 cells")
}

func TestValidate_Invalid(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile("conserve.yaml", []byte("domain:\n  dx: -1\nrun:\n  scheme: leapfrog\n"), 0644))

	out, err := execute(t, "validate")
	assert.Equal(t, ExitConfigError, exitCode(err), out)
	assert.Contains(t, out, "Error in conserve.yaml")

	_, err = execute(t, "run")
	assert.Equal(t, ExitConfigError, exitCode(err))
}
