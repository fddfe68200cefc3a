package bench

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/fatih/color"
	"golang.org/x/time/rate"
)

// progressInterval is the minimum time between two progress updates.
const progressInterval = 100 * time.Millisecond

// Reporter handles output for benches
type Reporter struct {
	writer     io.Writer
	noColor    bool
	noProgress bool
	verbose    bool
	limiter    *rate.Limiter

	// Colors
	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

// ReporterOption configures the reporter
type ReporterOption func(*Reporter)

// WithWriter sets the output writer
func WithWriter(w io.Writer) ReporterOption {
	return func(r *Reporter) {
		r.writer = w
	}
}

// WithNoColor disables colored output
func WithNoColor(noColor bool) ReporterOption {
	return func(r *Reporter) {
		r.noColor = noColor
	}
}

// WithNoProgress disables the progress line
func WithNoProgress(noProgress bool) ReporterOption {
	return func(r *Reporter) {
		r.noProgress = noProgress
	}
}

// WithVerbose enables verbose output
func WithVerbose(verbose bool) ReporterOption {
	return func(r *Reporter) {
		r.verbose = verbose
	}
}

// NewReporter creates a new reporter
func NewReporter(opts ...ReporterOption) *Reporter {
	r := &Reporter{
		writer:  os.Stdout,
		limiter: rate.NewLimiter(rate.Every(progressInterval), 1),
	}

	for _, opt := range opts {
		opt(r)
	}

	// Initialize colors
	color.NoColor = r.noColor
	r.green = color.New(color.FgGreen)
	r.red = color.New(color.FgRed)
	r.yellow = color.New(color.FgYellow)
	r.cyan = color.New(color.FgCyan)
	r.bold = color.New(color.Bold)
	r.dim = color.New(color.Faint)

	return r
}

// Header prints the bench header
func (r *Reporter) Header(version string, p *solver.Problem, steps int, plan *Plan) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintf(r.writer, "conserve bench %s\n", version)
	fmt.Fprintln(r.writer)

	r.cyan.Fprintf(r.writer, "Problem: %s\n", p)

	names := make([]string, len(plan.Cases))
	for i, c := range plan.Cases {
		names[i] = c.Name()
	}

	details := []string{
		fmt.Sprintf("Steps: %d", steps),
		fmt.Sprintf("Cases: %s", strings.Join(names, ", ")),
		fmt.Sprintf("Runs: %d warmup + %d measured", plan.Warmup, plan.Repeat),
	}
	fmt.Fprintf(r.writer, "%s\n", strings.Join(details, " | "))
	fmt.Fprintln(r.writer)
}

// Progress prints a progress line, at most once per progressInterval
func (r *Reporter) Progress(c Case, run, total int) {
	if r.noProgress || !r.limiter.Allow() {
		return
	}

	progress := float64(run) / float64(total)
	barWidth := 30
	filled := int(progress * float64(barWidth))
	bar := strings.Repeat("━", filled) + strings.Repeat("─", barWidth-filled)

	fmt.Fprint(r.writer, "\r\033[K")
	fmt.Fprintf(r.writer, "%-12s %s %d/%d", c.Name(), bar, run, total)
}

// ClearProgress clears the progress line
func (r *Reporter) ClearProgress() {
	if r.noProgress {
		return
	}
	fmt.Fprint(r.writer, "\r\033[K")
}

// Case prints a time(1) style line for a finished case
func (r *Reporter) Case(s *CaseSummary) {
	r.ClearProgress()

	r.bold.Fprintf(r.writer, "%-12s ", s.Name)
	fmt.Fprintf(r.writer, "%s user %s system %3.0f%% cpu %s total",
		formatSeconds(s.User), formatSeconds(s.System), s.CPUPercent, formatSeconds(s.Wall))

	if s.Mode != "serial" {
		fmt.Fprint(r.writer, "  ")
		r.cyan.Fprintf(r.writer, "x%.2f", s.Speedup)
		if s.Equivalent {
			r.green.Fprint(r.writer, "  ✓")
		} else {
			r.red.Fprintf(r.writer, "  ✗ deviation %s", formatSci(s.Deviation))
		}
	}
	fmt.Fprintln(r.writer)

	if r.verbose {
		r.dim.Fprintf(r.writer, "             step p50: %s | p95: %s | p99: %s | max: %s\n",
			formatLatency(s.StepP50), formatLatency(s.StepP95), formatLatency(s.StepP99), formatLatency(s.StepMax))
	}
}

// Summary prints the final summary
func (r *Reporter) Summary(result *Result) {
	fmt.Fprintln(r.writer)
	r.bold.Fprintln(r.writer, "BENCH SUMMARY")
	fmt.Fprintln(r.writer, strings.Repeat("─", 78))

	fmt.Fprintf(r.writer, "%-12s %8s %8s %8s %6s %8s %8s %10s\n",
		"case", "wall", "user", "system", "cpu%", "speedup", "eff", "deviation")
	for _, c := range result.Cases {
		line := fmt.Sprintf("%-12s %8s %8s %8s %6.0f %8.2f %8.2f %10s",
			c.Name, formatSeconds(c.Wall), formatSeconds(c.User), formatSeconds(c.System),
			c.CPUPercent, c.Speedup, c.Efficiency, formatSci(c.Deviation))
		if c.Equivalent {
			fmt.Fprintln(r.writer, line)
		} else {
			r.red.Fprintln(r.writer, line)
		}
	}

	fmt.Fprintln(r.writer)
	fmt.Fprintf(r.writer, "Mass drift: %s\n", formatSci(result.MaxMassDrift()))
	fmt.Fprintf(r.writer, "Scaling:    ")
	if result.Scaling {
		r.green.Fprintln(r.writer, "wall time non-increasing with workers")
	} else {
		r.yellow.Fprintln(r.writer, "wall time increases with workers")
	}

	if len(result.Thresholds) > 0 {
		fmt.Fprintln(r.writer)
		r.bold.Fprintln(r.writer, "THRESHOLDS")
		for _, tr := range result.Thresholds {
			if tr.Passed {
				r.green.Fprintf(r.writer, "  ✓ ")
			} else {
				r.red.Fprintf(r.writer, "  ✗ ")
			}
			fmt.Fprintf(r.writer, "%s %s    (actual: %s)\n", tr.Name, tr.Expected, tr.Actual)
		}
	}

	fmt.Fprintln(r.writer)
	switch {
	case !result.Equivalent:
		r.red.Fprintln(r.writer, "Parallel results differ from the serial baseline!")
	case !result.Passed:
		r.red.Fprintln(r.writer, "Some thresholds failed!")
	default:
		r.green.Fprintln(r.writer, "All cases passed!")
	}
	fmt.Fprintln(r.writer)
}

// JSONSummary outputs the result as JSON
func (r *Reporter) JSONSummary(result *Result) error {
	encoder := json.NewEncoder(r.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result.Report())
}

// Error prints an error message
func (r *Reporter) Error(format string, args ...interface{}) {
	r.red.Fprintf(r.writer, "Error: "+format+"\n", args...)
}

// Info prints an info message
func (r *Reporter) Info(format string, args ...interface{}) {
	fmt.Fprintf(r.writer, format+"\n", args...)
}

// formatSeconds formats a duration like time(1) does
func formatSeconds(d time.Duration) string {
	if d < 10*time.Second {
		return fmt.Sprintf("%.3fs", d.Seconds())
	}
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// formatLatency formats latency for display
func formatLatency(d time.Duration) string {
	if d < time.Microsecond {
		return fmt.Sprintf("%dns", d.Nanoseconds())
	}
	if d < time.Millisecond {
		return fmt.Sprintf("%dμs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
