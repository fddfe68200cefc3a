package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
)

type ConsoleFormatter struct {
	writer  io.Writer
	verbose bool
	noColor bool
	reports []*RunReport
}

type ConsoleOption func(*ConsoleFormatter)

func NewConsoleFormatter(opts ...ConsoleOption) *ConsoleFormatter {
	f := &ConsoleFormatter{
		writer: os.Stdout,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.noColor {
		color.NoColor = true
	}
	return f
}

func WithWriter(w io.Writer) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.writer = w
	}
}

func WithVerbose(v bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.verbose = v
	}
}

func WithNoColor(nc bool) ConsoleOption {
	return func(f *ConsoleFormatter) {
		f.noColor = nc
	}
}

// FormatRun prints one line per run in the style of time(1), followed by
// diagnostics when verbose or when the run failed.
func (f *ConsoleFormatter) FormatRun(r *RunReport) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	faint := color.New(color.Faint).SprintFunc()

	f.reports = append(f.reports, r)

	if r.Skipped {
		fmt.Fprintf(f.writer, "  %s %s", yellow("-"), r.Name)
		if r.Err != nil {
			fmt.Fprintf(f.writer, " (%v)", r.Err)
		}
		fmt.Fprintf(f.writer, "\n")
		return
	}

	if r.Err != nil {
		fmt.Fprintf(f.writer, "  %s %s %s\n", red("x"), r.Name, red(fmt.Sprintf("(%v)", r.Err)))
		return
	}

	symbol := green("✓")
	if !r.Passed() {
		symbol = red("✗")
	}

	fmt.Fprintf(f.writer, "  %s %s %s %s\n", symbol, r.Name,
		faint(fmt.Sprintf("(%s, %d cells, %d steps)", modeLabel(r.Mode, r.Workers), r.Cells, r.Steps)),
		cyan(r.TimeSummary()))

	if r.Snapshot != nil && (f.verbose || !r.Snapshot.Passed || r.Snapshot.Created || r.Snapshot.Updated) {
		msg := r.Snapshot.Message
		if msg == "" {
			msg = "matches"
		}
		mark := green("→")
		if !r.Snapshot.Passed {
			mark = red("→")
		}
		fmt.Fprintf(f.writer, "    %s snapshot %s: %s\n", mark, r.Snapshot.Name, msg)
	}

	if !f.verbose {
		return
	}

	fmt.Fprintf(f.writer, "    Mass:  %s -> %s (drift %s)\n", formatSci(r.Before.Mass), formatSci(r.After.Mass), formatSci(r.MassDrift))
	fmt.Fprintf(f.writer, "    Range: [%s, %s] -> [%s, %s]\n", formatSci(r.Before.Min), formatSci(r.Before.Max), formatSci(r.After.Min), formatSci(r.After.Max))
	fmt.Fprintf(f.writer, "    TV:    %s -> %s\n", formatSci(r.Before.TotalVariation), formatSci(r.After.TotalVariation))
	if r.Exact != nil {
		fmt.Fprintf(f.writer, "    Exact: L1 %s, max %s\n", formatSci(r.Exact.L1), formatSci(r.Exact.LInf))
	}
	if r.Frames != "" {
		fmt.Fprintf(f.writer, "    Frames: %s\n", r.Frames)
	}
}

func (f *ConsoleFormatter) FormatError(err error) {
	red := color.New(color.FgRed).SprintFunc()
	fmt.Fprintf(f.writer, "%s %v\n", red("Error:"), err)
}

func (f *ConsoleFormatter) FormatHeader(version string) {
	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintf(f.writer, "%s %s\n\n", bold("conserve"), version)
}

// Flush prints the run tally.
func (f *ConsoleFormatter) Flush(totalDuration time.Duration) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	passed, failed, skipped := Tally(f.reports)

	fmt.Fprintf(f.writer, "\n")
	fmt.Fprintf(f.writer, "Runs: ")
	if passed > 0 {
		fmt.Fprintf(f.writer, "%s, ", green(fmt.Sprintf("%d passed", passed)))
	}
	if failed > 0 {
		fmt.Fprintf(f.writer, "%s, ", red(fmt.Sprintf("%d failed", failed)))
	}
	if skipped > 0 {
		fmt.Fprintf(f.writer, "%s, ", yellow(fmt.Sprintf("%d skipped", skipped)))
	}
	fmt.Fprintf(f.writer, "%d total\n", len(f.reports))
	fmt.Fprintf(f.writer, "Time: %.3fs\n", totalDuration.Seconds())
	return nil
}

// TimeLine renders durations like the summary line of time(1).
func TimeLine(user, system, wall time.Duration) string {
	pct := 0.0
	if wall > 0 {
		pct = float64(user+system) / float64(wall) * 100
	}
	return fmt.Sprintf("%.3fs user %.3fs system %3.0f%% cpu %.3fs total",
		user.Seconds(), system.Seconds(), pct, wall.Seconds())
}

func modeLabel(mode string, workers int) string {
	if mode == "parallel" {
		return mode + "/" + strconv.Itoa(workers)
	}
	return mode
}

func formatSci(f float64) string {
	return strconv.FormatFloat(f, 'g', 4, 64)
}
