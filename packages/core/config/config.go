package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/abdul-hamid-achik/conserve/packages/bench"
	"github.com/abdul-hamid-achik/conserve/packages/core/env"
	"github.com/abdul-hamid-achik/conserve/packages/core/runner"
	"github.com/abdul-hamid-achik/conserve/packages/experiment"
	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for configuration files that fail validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the conserve configuration
type Config struct {
	Domain    DomainConfig   `yaml:"domain"`
	Run       RunConfig      `yaml:"run"`
	Bench     BenchConfig    `yaml:"bench"`
	Sweep     SweepConfig    `yaml:"sweep"`
	Output    OutputConfig   `yaml:"output"`
	Metrics   MetricsConfig  `yaml:"metrics,omitempty"`
	Snapshots SnapshotConfig `yaml:"snapshots"`
	Log       LogConfig      `yaml:"log"`
	History   string         `yaml:"history,omitempty"` // sqlite://path

	Profiles map[string]yaml.Node `yaml:"profiles,omitempty"`

	// Path is the file the configuration was loaded from, if any
	Path string `yaml:"-"`
}

// DomainConfig describes the grid and time extent
type DomainConfig struct {
	Lo       float64 `yaml:"lo"`
	Hi       float64 `yaml:"hi"`
	DX       float64 `yaml:"dx"`
	CFL      float64 `yaml:"cfl"`
	Time     float64 `yaml:"time"`
	Steps    int     `yaml:"steps,omitempty"` // overrides time
	Speed    float64 `yaml:"speed"`           // advection velocity
	Boundary string  `yaml:"boundary"`
}

// RunConfig describes a single integration
type RunConfig struct {
	Mode     string `yaml:"mode"`
	Workers  int    `yaml:"workers,omitempty"` // 0 means GOMAXPROCS
	Equation string `yaml:"equation"`
	Initial  string `yaml:"initial"`
	Scheme   string `yaml:"scheme"`
	CheckCFL *bool  `yaml:"checkCFL,omitempty"`
}

// BenchConfig describes a bench
type BenchConfig struct {
	Workers    []int   `yaml:"workers"`
	Repeat     int     `yaml:"repeat"`
	Warmup     int     `yaml:"warmup"`
	Tolerance  float64 `yaml:"tolerance"`
	Thresholds string  `yaml:"thresholds,omitempty"`
}

// SweepConfig describes an experiment matrix
type SweepConfig struct {
	Equations   []string `yaml:"equations"`
	Initials    []string `yaml:"initials"`
	Schemes     []string `yaml:"schemes"`
	Concurrency int      `yaml:"concurrency,omitempty"`
	Bail        *bool    `yaml:"bail,omitempty"`
	OutputDir   string   `yaml:"outputDir,omitempty"`
	FrameEvery  int      `yaml:"frameEvery,omitempty"`
}

// OutputConfig selects the result formatter
type OutputConfig struct {
	Format  string `yaml:"format"`
	File    string `yaml:"file,omitempty"`
	NoColor *bool  `yaml:"noColor,omitempty"`
	Verbose *bool  `yaml:"verbose,omitempty"`
}

// MetricsConfig selects the bench metrics exporter
type MetricsConfig struct {
	Format string `yaml:"format,omitempty"` // json or prometheus
	File   string `yaml:"file,omitempty"`
	Port   int    `yaml:"port,omitempty"`
}

// SnapshotConfig locates golden states
type SnapshotConfig struct {
	Dir       string  `yaml:"dir"`
	Tolerance float64 `yaml:"tolerance"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// BoolPtr returns a pointer to b
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetCheckCFL returns the CFL check setting, defaulting to true
func (c *Config) GetCheckCFL() bool {
	return getBool(c.Run.CheckCFL, true)
}

// GetBail returns the sweep bail setting, defaulting to false
func (c *Config) GetBail() bool {
	return getBool(c.Sweep.Bail, false)
}

// GetNoColor returns the no color setting, defaulting to false
func (c *Config) GetNoColor() bool {
	return getBool(c.Output.NoColor, false)
}

// GetVerbose returns the verbose setting, defaulting to false
func (c *Config) GetVerbose() bool {
	return getBool(c.Output.Verbose, false)
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	"conserve.yaml",
	".conserve.yaml",
	".conserve.yml",
	"conserve.json",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	if path := FindConfigFile(dir); path != "" {
		return loadConfigFromFile(path)
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

// FindConfigFile returns the first config file present in dir, or "".
func FindConfigFile(dir string) string {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
	}
	return ""
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	config.Path = path

	return config, nil
}

// Parse expands environment references in data, validates it against the
// schema and decodes it over the defaults.
func Parse(data []byte) (*Config, error) {
	data = []byte(env.Expand(string(data)))

	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if len(bytes.TrimSpace(data)) == 0 {
		return config, nil
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return config, nil
}

// ProfileNames returns the profile names in sorted order
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ApplyProfile overlays the named profile on the configuration. Only the
// keys present in the profile change.
func (c *Config) ApplyProfile(name string) error {
	if name == "" {
		return nil
	}

	node, ok := c.Profiles[name]
	if !ok {
		return fmt.Errorf("%w: unknown profile %q", ErrInvalidConfig, name)
	}
	if err := node.Decode(c); err != nil {
		return fmt.Errorf("%w: profile %q: %v", ErrInvalidConfig, name, err)
	}

	return nil
}

// Validate checks the semantic validity of the configuration. All problems
// are reported together.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.ExperimentDomain(); err != nil {
		errs = append(errs, fmt.Errorf("domain: %w", err))
	}

	if _, err := runner.ParseMode(c.Run.Mode); err != nil {
		errs = append(errs, fmt.Errorf("run.mode: %w", err))
	}
	if c.Run.Workers < 0 {
		errs = append(errs, fmt.Errorf("run.workers: must not be negative"))
	}
	if _, err := solver.NewEquation(c.Run.Equation, c.Domain.Speed); err != nil {
		errs = append(errs, fmt.Errorf("run.equation: %w", err))
	}
	if _, err := solver.NewInitial(c.Run.Initial); err != nil {
		errs = append(errs, fmt.Errorf("run.initial: %w", err))
	}
	if _, err := solver.NewScheme(c.Run.Scheme); err != nil {
		errs = append(errs, fmt.Errorf("run.scheme: %w", err))
	}

	if err := c.BenchConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("bench: %w", err))
	}
	if _, err := bench.ParseThresholds(c.Bench.Thresholds); err != nil {
		errs = append(errs, fmt.Errorf("bench.thresholds: %w", err))
	}

	for _, name := range c.Sweep.Equations {
		if _, err := solver.NewEquation(name, c.Domain.Speed); err != nil {
			errs = append(errs, fmt.Errorf("sweep.equations: %w", err))
		}
	}
	for _, name := range c.Sweep.Initials {
		if _, err := solver.NewInitial(name); err != nil {
			errs = append(errs, fmt.Errorf("sweep.initials: %w", err))
		}
	}
	for _, name := range c.Sweep.Schemes {
		if _, err := solver.NewScheme(name); err != nil {
			errs = append(errs, fmt.Errorf("sweep.schemes: %w", err))
		}
	}

	if c.Snapshots.Tolerance < 0 {
		errs = append(errs, fmt.Errorf("snapshots.tolerance: must not be negative"))
	}

	return errors.Join(errs...)
}

// ExperimentDomain converts the domain section.
func (c *Config) ExperimentDomain() (experiment.Domain, error) {
	bc, err := solver.ParseBoundary(c.Domain.Boundary)
	if err != nil {
		return experiment.Domain{}, err
	}

	d := experiment.Domain{
		Lo:       c.Domain.Lo,
		Hi:       c.Domain.Hi,
		DX:       c.Domain.DX,
		CFL:      c.Domain.CFL,
		Time:     c.Domain.Time,
		Steps:    c.Domain.Steps,
		Speed:    c.Domain.Speed,
		Boundary: bc,
	}
	if err := d.Validate(); err != nil {
		return experiment.Domain{}, err
	}
	return d, nil
}

// BenchConfig converts the bench section.
func (c *Config) BenchConfig() *bench.Config {
	th, _ := bench.ParseThresholds(c.Bench.Thresholds)
	return &bench.Config{
		Workers:    append([]int(nil), c.Bench.Workers...),
		Repeat:     c.Bench.Repeat,
		Warmup:     c.Bench.Warmup,
		Tolerance:  c.Bench.Tolerance,
		Thresholds: th,
	}
}

// RunSpec returns the experiment named by the run section.
func (c *Config) RunSpec() experiment.Spec {
	return experiment.Spec{
		Equation: c.Run.Equation,
		Initial:  c.Run.Initial,
		Scheme:   c.Run.Scheme,
	}
}

// SweepSpecs returns the experiment matrix of the sweep section.
func (c *Config) SweepSpecs() []experiment.Spec {
	return experiment.Matrix(c.Sweep.Equations, c.Sweep.Initials, c.Sweep.Schemes)
}

// SaveConfig saves the configuration to a file as YAML
func (c *Config) SaveConfig(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
