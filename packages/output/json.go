package output

import (
	"encoding/json"
	"io"
	"os"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
)

// JSONOutput represents the complete JSON output structure
type JSONOutput struct {
	Version  string      `json:"version,omitempty"`
	Summary  JSONSummary `json:"summary"`
	Runs     []JSONRun   `json:"runs"`
	Duration float64     `json:"duration"`
	Time     string      `json:"time"`
}

// JSONSummary represents the run summary
type JSONSummary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// JSONRun represents a single integration. Durations are in seconds.
type JSONRun struct {
	Name       string             `json:"name"`
	Problem    string             `json:"problem,omitempty"`
	Mode       string             `json:"mode"`
	Workers    int                `json:"workers"`
	Cells      int                `json:"cells"`
	Steps      int                `json:"steps"`
	Passed     bool               `json:"passed"`
	Skipped    bool               `json:"skipped,omitempty"`
	Duration   float64            `json:"duration"`
	User       *float64           `json:"user,omitempty"`
	System     *float64           `json:"system,omitempty"`
	CPUPercent *float64           `json:"cpuPercent,omitempty"`
	Before     solver.Diagnostics `json:"before"`
	After      solver.Diagnostics `json:"after"`
	MassDrift  float64            `json:"massDrift"`
	Exact      *JSONExact         `json:"exact,omitempty"`
	Snapshot   *JSONSnapshot      `json:"snapshot,omitempty"`
	Frames     string             `json:"frames,omitempty"`
	Error      string             `json:"error,omitempty"`
}

// JSONExact represents the distance to the exact solution
type JSONExact struct {
	L1   float64 `json:"l1"`
	LInf float64 `json:"linf"`
}

// JSONSnapshot represents a snapshot comparison
type JSONSnapshot struct {
	Name    string  `json:"name"`
	Passed  bool    `json:"passed"`
	Created bool    `json:"created,omitempty"`
	Updated bool    `json:"updated,omitempty"`
	MaxDiff float64 `json:"maxDiff"`
	Message string  `json:"message,omitempty"`
}

// JSONFormatter formats run results as JSON
type JSONFormatter struct {
	writer  io.Writer
	version string
	runs    []JSONRun
}

type JSONOption func(*JSONFormatter)

func NewJSONFormatter(opts ...JSONOption) *JSONFormatter {
	f := &JSONFormatter{
		writer: os.Stdout,
		runs:   make([]JSONRun, 0),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JSONWithWriter(w io.Writer) JSONOption {
	return func(f *JSONFormatter) {
		f.writer = w
	}
}

// NewJSONRun converts a report.
func NewJSONRun(r *RunReport) JSONRun {
	run := JSONRun{
		Name:      r.Name,
		Problem:   r.Problem,
		Mode:      r.Mode,
		Workers:   r.Workers,
		Cells:     r.Cells,
		Steps:     r.Steps,
		Passed:    r.Passed(),
		Skipped:   r.Skipped,
		Duration:  r.Duration.Seconds(),
		Before:    r.Before,
		After:     r.After,
		MassDrift: r.MassDrift,
		Frames:    r.Frames,
	}

	if r.CPUMeasured {
		user, system, pct := r.User.Seconds(), r.System.Seconds(), r.CPUPercent()
		run.User, run.System, run.CPUPercent = &user, &system, &pct
	}

	if r.Exact != nil {
		run.Exact = &JSONExact{L1: r.Exact.L1, LInf: r.Exact.LInf}
	}

	if r.Snapshot != nil {
		run.Snapshot = &JSONSnapshot{
			Name:    r.Snapshot.Name,
			Passed:  r.Snapshot.Passed,
			Created: r.Snapshot.Created,
			Updated: r.Snapshot.Updated,
			MaxDiff: r.Snapshot.MaxDiff,
			Message: r.Snapshot.Message,
		}
	}

	if r.Err != nil {
		run.Error = r.Err.Error()
	}

	return run
}

func (f *JSONFormatter) FormatRun(r *RunReport) {
	f.runs = append(f.runs, NewJSONRun(r))
}

func (f *JSONFormatter) FormatError(err error) {
	// Errors are included in individual runs
}

func (f *JSONFormatter) FormatHeader(version string) {
	f.version = version
}

// Flush writes the accumulated JSON output
func (f *JSONFormatter) Flush(totalDuration time.Duration) error {
	var passed, failed, skipped int
	for _, r := range f.runs {
		if r.Skipped {
			skipped++
		} else if r.Passed {
			passed++
		} else {
			failed++
		}
	}

	output := JSONOutput{
		Version: f.version,
		Summary: JSONSummary{
			Total:   len(f.runs),
			Passed:  passed,
			Failed:  failed,
			Skipped: skipped,
		},
		Runs:     f.runs,
		Duration: totalDuration.Seconds(),
		Time:     time.Now().Format(time.RFC3339),
	}

	encoder := json.NewEncoder(f.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}
