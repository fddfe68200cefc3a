// Package metrics exports bench measurements as JSON documents or
// Prometheus metrics.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/abdul-hamid-achik/conserve/packages/bench"
)

// BenchMetrics is everything an exporter receives for one bench invocation.
type BenchMetrics struct {
	RunID   string
	Version string
	Time    time.Time
	Report  *bench.Report

	// Steps holds the step latency histogram of each case, by case name
	Steps map[string]*hdrhistogram.Histogram
}

// Bucket is one non-empty bar of a step latency histogram.
type Bucket struct {
	From  float64 `json:"from"`
	To    float64 `json:"to"`
	Count int64   `json:"count"`
}

// Buckets returns the non-empty bars of h in seconds.
func Buckets(h *hdrhistogram.Histogram) []Bucket {
	if h == nil {
		return nil
	}
	var out []Bucket
	for _, bar := range h.Distribution() {
		if bar.Count == 0 {
			continue
		}
		out = append(out, Bucket{
			From:  nanosToSeconds(bar.From),
			To:    nanosToSeconds(bar.To),
			Count: bar.Count,
		})
	}
	return out
}

func nanosToSeconds(ns int64) float64 {
	return time.Duration(ns).Seconds()
}

// Exporter is the interface for metrics exporters
type Exporter interface {
	// Export exports metrics to the target destination
	Export(metrics *BenchMetrics) error

	// Close closes the exporter and flushes any buffered data
	Close() error
}

// Collector gathers per-case histograms while a bench runs and hands the
// finished result to its exporters.
type Collector struct {
	mu        sync.Mutex
	steps     map[string]*hdrhistogram.Histogram
	exporters []Exporter
}

// NewCollector creates a new metrics collector
func NewCollector(exporters ...Exporter) *Collector {
	return &Collector{
		steps:     make(map[string]*hdrhistogram.Histogram),
		exporters: exporters,
	}
}

// RecordCase records the step histogram of a finished case. It has the
// signature of a bench case hook.
func (c *Collector) RecordCase(s *bench.CaseSummary, m *bench.Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps[s.Name] = m.Histogram()
}

// Metrics assembles the export payload of a finished bench.
func (c *Collector) Metrics(result *bench.Result, runID, version string) *BenchMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()

	steps := make(map[string]*hdrhistogram.Histogram, len(c.steps))
	for name, h := range c.steps {
		steps[name] = h
	}

	return &BenchMetrics{
		RunID:   runID,
		Version: version,
		Time:    result.StartedAt,
		Report:  result.Report(),
		Steps:   steps,
	}
}

// Flush exports a finished bench to every exporter
func (c *Collector) Flush(result *bench.Result, runID, version string) error {
	m := c.Metrics(result, runID, version)

	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Export(m); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all exporters
func (c *Collector) Close() error {
	var errs []error
	for _, exp := range c.exporters {
		if err := exp.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
