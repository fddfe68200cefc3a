package bench

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Step latencies are recorded in nanoseconds, from 1ns to 60s.
const (
	minStepNanos = 1
	maxStepNanos = 60_000_000_000
)

// Sample is one measured run.
type Sample struct {
	Wall time.Duration
	CPU  CPUTime
}

// Metrics collects the measurements of one case
type Metrics struct {
	mu sync.Mutex

	// Step latency histogram
	histogram *hdrhistogram.Histogram

	samples []Sample
}

// NewMetrics creates a new Metrics collector
func NewMetrics() *Metrics {
	return &Metrics{
		histogram: hdrhistogram.New(minStepNanos, maxStepNanos, 3),
	}
}

// RecordStep records the wall time of one step
func (m *Metrics) RecordStep(d time.Duration) {
	ns := d.Nanoseconds()
	if ns < minStepNanos {
		ns = minStepNanos
	}
	if ns > maxStepNanos {
		ns = maxStepNanos
	}

	m.mu.Lock()
	_ = m.histogram.RecordValue(ns)
	m.mu.Unlock()
}

// RecordRun records a measured run
func (m *Metrics) RecordRun(s Sample) {
	m.mu.Lock()
	m.samples = append(m.samples, s)
	m.mu.Unlock()
}

// Histogram returns a copy of the step latency histogram
func (m *Metrics) Histogram() *hdrhistogram.Histogram {
	m.mu.Lock()
	defer m.mu.Unlock()
	return hdrhistogram.Import(m.histogram.Export())
}

// CaseSummary holds the measurements of one case
type CaseSummary struct {
	Name    string
	Mode    string
	Workers int
	Runs    int

	// Per run means
	Wall    time.Duration
	MinWall time.Duration
	User    time.Duration
	System  time.Duration

	// (user+system)/wall
	CPUPercent float64

	// Step latencies
	Steps    int64
	StepP50  time.Duration
	StepP95  time.Duration
	StepP99  time.Duration
	StepMax  time.Duration
	StepMean time.Duration

	// Compared with the serial baseline
	Deviation  float64
	MassDrift  float64
	Speedup    float64
	Efficiency float64
	Equivalent bool
}

// CPU returns the mean user+system time per run
func (s *CaseSummary) CPU() time.Duration {
	return s.User + s.System
}

// Summarize returns the summary of the recorded measurements. Fields that
// depend on the baseline are left for the caller.
func (m *Metrics) Summarize(c Case) *CaseSummary {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &CaseSummary{
		Name:     c.Name(),
		Mode:     string(c.Mode),
		Workers:  c.Workers,
		Runs:     len(m.samples),
		Steps:    m.histogram.TotalCount(),
		StepP50:  time.Duration(m.histogram.ValueAtQuantile(50)),
		StepP95:  time.Duration(m.histogram.ValueAtQuantile(95)),
		StepP99:  time.Duration(m.histogram.ValueAtQuantile(99)),
		StepMax:  time.Duration(m.histogram.Max()),
		StepMean: time.Duration(m.histogram.Mean()),
	}

	if len(m.samples) == 0 {
		return s
	}

	var wall time.Duration
	var cpu CPUTime
	s.MinWall = m.samples[0].Wall
	for _, sample := range m.samples {
		wall += sample.Wall
		cpu = cpu.Add(sample.CPU)
		if sample.Wall < s.MinWall {
			s.MinWall = sample.Wall
		}
	}

	n := time.Duration(len(m.samples))
	s.Wall = wall / n
	s.User = cpu.User / n
	s.System = cpu.System / n
	if s.Wall > 0 {
		s.CPUPercent = float64(s.User+s.System) / float64(s.Wall) * 100
	}

	return s
}

// EvaluateThresholds evaluates the thresholds against the case summaries.
// Every threshold is checked against the worst case.
func EvaluateThresholds(t Thresholds, cases []*CaseSummary) []ThresholdResult {
	var results []ThresholdResult
	if len(cases) == 0 {
		return results
	}

	if t.MinSpeedup > 0 {
		best := 0.0
		for _, c := range cases {
			if c.Mode != "serial" && c.Speedup > best {
				best = c.Speedup
			}
		}
		results = append(results, ThresholdResult{
			Name:     "speedup",
			Passed:   best >= t.MinSpeedup,
			Expected: ">= " + formatFloat(t.MinSpeedup),
			Actual:   formatFloat(best),
		})
	}

	durations := []struct {
		name  string
		limit time.Duration
		value func(*CaseSummary) time.Duration
	}{
		{"wall", t.MaxWall, func(c *CaseSummary) time.Duration { return c.Wall }},
		{"cpu", t.MaxCPU, (*CaseSummary).CPU},
		{"p50", t.P50, func(c *CaseSummary) time.Duration { return c.StepP50 }},
		{"p95", t.P95, func(c *CaseSummary) time.Duration { return c.StepP95 }},
		{"p99", t.P99, func(c *CaseSummary) time.Duration { return c.StepP99 }},
	}
	for _, d := range durations {
		if d.limit <= 0 {
			continue
		}
		worst := cases[0]
		for _, c := range cases[1:] {
			if d.value(c) > d.value(worst) {
				worst = c
			}
		}
		results = append(results, ThresholdResult{
			Name:     d.name,
			Passed:   d.value(worst) <= d.limit,
			Expected: "<= " + d.limit.String(),
			Actual:   d.value(worst).String() + " (" + worst.Name + ")",
		})
	}

	if t.MaxDeviation > 0 {
		worst := 0.0
		for _, c := range cases {
			worst = max(worst, c.Deviation)
		}
		results = append(results, ThresholdResult{
			Name:     "deviation",
			Passed:   worst <= t.MaxDeviation,
			Expected: "<= " + formatSci(t.MaxDeviation),
			Actual:   formatSci(worst),
		})
	}

	if t.MaxDrift > 0 {
		worst := 0.0
		for _, c := range cases {
			worst = max(worst, abs(c.MassDrift))
		}
		results = append(results, ThresholdResult{
			Name:     "drift",
			Passed:   worst <= t.MaxDrift,
			Expected: "<= " + formatSci(t.MaxDrift),
			Actual:   formatSci(worst),
		})
	}

	return results
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}

func formatFloat(f float64) string {
	if f == float64(int(f)) {
		return strconv.Itoa(int(f))
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

func formatSci(f float64) string {
	return strconv.FormatFloat(f, 'g', 3, 64)
}
