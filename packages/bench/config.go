// Package bench measures serial and parallel runs of the same problem. It
// records wall and CPU time per run and step latencies in an HDR histogram.
// It checks every parallel result against the serial baseline and evaluates
// pass/fail thresholds.
package bench

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is the largest deviation from the serial baseline that
// still counts as equivalent.
const DefaultTolerance = 1e-9

// Config holds all configuration for a bench
type Config struct {
	Workers    []int      // parallel worker counts, serial baseline is always run
	Repeat     int        // measured runs per case
	Warmup     int        // unmeasured runs per case
	Tolerance  float64    // max abs deviation from the serial baseline
	Thresholds Thresholds // pass/fail thresholds
}

// Thresholds defines pass/fail criteria for a bench
type Thresholds struct {
	MinSpeedup   float64       // best parallel speedup must reach this
	MaxWall      time.Duration // mean wall time of every case
	MaxCPU       time.Duration // mean user+system time of every case
	P50          time.Duration // step latency percentiles of every case
	P95          time.Duration
	P99          time.Duration
	MaxDeviation float64 // largest deviation from the serial baseline
	MaxDrift     float64 // largest relative mass drift
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Workers:   []int{1, 2, 4, 8},
		Repeat:    3,
		Warmup:    1,
		Tolerance: DefaultTolerance,
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.Repeat < 1 {
		return fmt.Errorf("repeat must be at least 1")
	}

	if c.Warmup < 0 {
		return fmt.Errorf("warmup cannot be negative")
	}

	if c.Tolerance < 0 || math.IsNaN(c.Tolerance) {
		return fmt.Errorf("tolerance must be a non-negative number")
	}

	for _, w := range c.Workers {
		if w < 1 {
			return fmt.Errorf("worker counts must be at least 1, got %d", w)
		}
	}

	return nil
}

// ParseWorkers parses a worker list like "1,2,4,8". The result is sorted and
// free of duplicates.
func ParseWorkers(s string) ([]int, error) {
	seen := make(map[int]bool)
	var workers []int

	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		n, err := strconv.Atoi(part)
		if err != nil || n < 1 {
			return nil, fmt.Errorf("invalid worker count: %s", part)
		}
		if !seen[n] {
			seen[n] = true
			workers = append(workers, n)
		}
	}

	sort.Ints(workers)
	return workers, nil
}

var thresholdPattern = regexp.MustCompile(`^(\w+)\s*([<>]=?)\s*(.+)$`)

// ParseThresholds parses a threshold string like "speedup>=1.5,p99<5ms"
func ParseThresholds(s string) (Thresholds, error) {
	var t Thresholds

	if s == "" {
		return t, nil
	}

	parts := strings.Split(s, ",")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		if err := parseThresholdPart(part, &t); err != nil {
			return t, err
		}
	}

	return t, nil
}

func parseThresholdPart(part string, t *Thresholds) error {
	matches := thresholdPattern.FindStringSubmatch(part)
	if len(matches) != 4 {
		return fmt.Errorf("invalid threshold format: %s", part)
	}

	metric := strings.ToLower(matches[1])
	op := matches[2]
	valueStr := strings.TrimSpace(matches[3])
	upper := op == "<" || op == "<="

	switch metric {
	case "speedup":
		f, err := strconv.ParseFloat(valueStr, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid speedup: %s", valueStr)
		}
		if upper {
			return fmt.Errorf("speedup threshold must use > or >=")
		}
		t.MinSpeedup = f

	case "wall", "cpu", "p50", "p95", "p99":
		d, err := time.ParseDuration(valueStr)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration for %s: %s", metric, valueStr)
		}
		if !upper {
			return fmt.Errorf("%s threshold must use < or <=", metric)
		}
		switch metric {
		case "wall":
			t.MaxWall = d
		case "cpu":
			t.MaxCPU = d
		case "p50":
			t.P50 = d
		case "p95":
			t.P95 = d
		case "p99":
			t.P99 = d
		}

	case "deviation", "drift":
		f, err := strconv.ParseFloat(valueStr, 64)
		if err != nil || f <= 0 {
			return fmt.Errorf("invalid %s: %s", metric, valueStr)
		}
		if !upper {
			return fmt.Errorf("%s threshold must use < or <=", metric)
		}
		if metric == "deviation" {
			t.MaxDeviation = f
		} else {
			t.MaxDrift = f
		}

	default:
		return fmt.Errorf("unknown threshold metric: %s", metric)
	}

	return nil
}

// HasThresholds returns true if any thresholds are configured
func (t *Thresholds) HasThresholds() bool {
	return t.MinSpeedup > 0 || t.MaxWall > 0 || t.MaxCPU > 0 ||
		t.P50 > 0 || t.P95 > 0 || t.P99 > 0 ||
		t.MaxDeviation > 0 || t.MaxDrift > 0
}

// ThresholdResult holds the result of evaluating a threshold
type ThresholdResult struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected"`
	Actual   string `json:"actual"`
}
