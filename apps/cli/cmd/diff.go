package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

var (
	diffOutputFlag    string
	diffThresholdFlag string
)

// noiseBand is the wall time change, in percent, reported as unchanged.
const noiseBand = 10.0

var diffCmd = &cobra.Command{
	Use:   "diff <bench1.json> <bench2.json>",
	Short: "Compare two bench results",
	Long: `Compare two bench results and show how the wall time of every case changed.

Both files may be written by 'conserve bench --json' or by the JSON metrics
exporter ('conserve bench --metrics json --metrics-file ...').

Examples:
  conserve diff before.json after.json
  conserve diff before.json after.json --output json
  conserve diff before.json after.json --threshold 10%`,
	Args:        cobra.ExactArgs(2),
	Annotations: map[string]string{skipConfig: "true"},
	RunE:        diffCommand,
}

func init() {
	diffCmd.Flags().StringVarP(&diffOutputFlag, "output", "o", "console", "Output format: console, json")
	diffCmd.Flags().StringVar(&diffThresholdFlag, "threshold", "", "Fail if any case is slower by this percentage (e.g., 10%)")
}

// benchFile is the part of a bench result the diff needs.
type benchFile struct {
	Problem    string
	Steps      int64
	Equivalent bool
	Cases      map[string]benchCase
}

type benchCase struct {
	Name       string
	Wall       float64 // seconds
	Speedup    float64
	Equivalent bool
}

// DiffResult holds the comparison result
type DiffResult struct {
	File1       string           `json:"file1"`
	File2       string           `json:"file2"`
	Warnings    []string         `json:"warnings,omitempty"`
	Summary     DiffSummary      `json:"summary"`
	Comparisons []CaseComparison `json:"comparisons"`
}

// CaseComparison compares one case of both files
type CaseComparison struct {
	Case         string  `json:"case"`
	StatusChange string  `json:"statusChange"` // improved, regressed, unchanged, new, removed
	Wall1        float64 `json:"wall1,omitempty"`
	Wall2        float64 `json:"wall2,omitempty"`
	WallChange   float64 `json:"wallChange,omitempty"` // percent
	Speedup1     float64 `json:"speedup1,omitempty"`
	Speedup2     float64 `json:"speedup2,omitempty"`
	Equivalent   bool    `json:"equivalent"`
	InFile1      bool    `json:"-"`
	InFile2      bool    `json:"-"`
}

// DiffSummary provides overall statistics
type DiffSummary struct {
	TotalCases       int     `json:"totalCases"`
	Improved         int     `json:"improved"`
	Regressed        int     `json:"regressed"`
	Unchanged        int     `json:"unchanged"`
	NewCases         int     `json:"newCases"`
	RemovedCases     int     `json:"removedCases"`
	LostEquivalence  bool    `json:"lostEquivalence"`
	ThresholdPercent float64 `json:"thresholdPercent,omitempty"`
	ThresholdPassed  bool    `json:"thresholdPassed"`
}

func diffCommand(cmd *cobra.Command, args []string) error {
	file1, file2 := args[0], args[1]

	results1, err := loadBenchFile(file1)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", file1, err)
	}
	results2, err := loadBenchFile(file2)
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", file2, err)
	}

	var threshold float64
	if diffThresholdFlag != "" {
		threshold, err = parseThreshold(diffThresholdFlag)
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}

	diff := compareBenches(file1, file2, results1, results2, threshold)

	w := cmd.OutOrStdout()
	switch strings.ToLower(diffOutputFlag) {
	case "json":
		err = outputDiffJSON(w, diff)
	case "console":
		err = outputDiffConsole(w, diff)
	default:
		return fmt.Errorf("%w: unknown output format %q (available: console, json)", errUsage, diffOutputFlag)
	}
	if err != nil {
		return err
	}

	if !diff.Summary.ThresholdPassed || diff.Summary.LostEquivalence {
		return verificationFailed(errors.New("bench regressed"))
	}
	return nil
}

// loadBenchFile reads a bench report, either bare or as the summary of a
// metrics export.
func loadBenchFile(path string) (*benchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}

	root := gjson.ParseBytes(data)
	if summary := root.Get("summary"); summary.IsObject() && summary.Get("cases").Exists() {
		root = summary
	}
	cases := root.Get("cases")
	if !cases.IsArray() {
		return nil, fmt.Errorf("no bench cases found")
	}

	b := &benchFile{
		Problem:    root.Get("problem").String(),
		Steps:      root.Get("steps").Int(),
		Equivalent: root.Get("equivalent").Bool(),
		Cases:      make(map[string]benchCase),
	}
	cases.ForEach(func(_, c gjson.Result) bool {
		name := c.Get("name").String()
		b.Cases[name] = benchCase{
			Name:       name,
			Wall:       c.Get("wall").Float(),
			Speedup:    c.Get("speedup").Float(),
			Equivalent: c.Get("equivalent").Bool(),
		}
		return true
	})

	return b, nil
}

func parseThreshold(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid threshold %q: %w", s, err)
	}
	return v, nil
}

func compareBenches(file1, file2 string, results1, results2 *benchFile, threshold float64) *DiffResult {
	diff := &DiffResult{
		File1: file1,
		File2: file2,
		Summary: DiffSummary{
			ThresholdPercent: threshold,
			ThresholdPassed:  true,
			LostEquivalence:  results1.Equivalent && !results2.Equivalent,
		},
	}

	if results1.Problem != results2.Problem {
		diff.Warnings = append(diff.Warnings, fmt.Sprintf("problems differ: %q vs %q", results1.Problem, results2.Problem))
	}
	if results1.Steps != results2.Steps {
		diff.Warnings = append(diff.Warnings, fmt.Sprintf("step counts differ: %d vs %d", results1.Steps, results2.Steps))
	}

	names := make(map[string]bool)
	for name := range results1.Cases {
		names[name] = true
	}
	for name := range results2.Cases {
		names[name] = true
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)

	for _, name := range sorted {
		c1, in1 := results1.Cases[name]
		c2, in2 := results2.Cases[name]

		comp := CaseComparison{Case: name, InFile1: in1, InFile2: in2}
		if in1 {
			comp.Wall1 = c1.Wall
			comp.Speedup1 = c1.Speedup
		}
		if in2 {
			comp.Wall2 = c2.Wall
			comp.Speedup2 = c2.Speedup
			comp.Equivalent = c2.Equivalent
		}

		switch {
		case in1 && in2:
			if comp.Wall1 > 0 {
				comp.WallChange = (comp.Wall2 - comp.Wall1) / comp.Wall1 * 100
			}

			switch {
			case c1.Equivalent && !c2.Equivalent:
				comp.StatusChange = "regressed"
				diff.Summary.Regressed++
			case comp.WallChange < -noiseBand:
				comp.StatusChange = "improved"
				diff.Summary.Improved++
			case comp.WallChange > noiseBand:
				comp.StatusChange = "regressed"
				diff.Summary.Regressed++
			default:
				comp.StatusChange = "unchanged"
				diff.Summary.Unchanged++
			}

			if threshold > 0 && comp.WallChange > threshold {
				diff.Summary.ThresholdPassed = false
			}
		case in1:
			comp.StatusChange = "removed"
			diff.Summary.RemovedCases++
		default:
			comp.StatusChange = "new"
			diff.Summary.NewCases++
		}

		diff.Comparisons = append(diff.Comparisons, comp)
		diff.Summary.TotalCases++
	}

	return diff
}

func outputDiffConsole(w io.Writer, diff *DiffResult) error {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	bold := color.New(color.Bold).SprintFunc()

	fmt.Fprintf(w, "\n%s\n", bold("Bench Comparison"))
	fmt.Fprintf(w, "  %s: %s\n", cyan("File 1"), diff.File1)
	fmt.Fprintf(w, "  %s: %s\n\n", cyan("File 2"), diff.File2)

	for _, warning := range diff.Warnings {
		fmt.Fprintf(w, "  %s %s\n", yellow("!"), warning)
	}
	if len(diff.Warnings) > 0 {
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "%s\n", bold("Summary"))
	fmt.Fprintf(w, "  Total Cases:    %d\n", diff.Summary.TotalCases)
	if diff.Summary.Improved > 0 {
		fmt.Fprintf(w, "  Improved:       %s\n", green(diff.Summary.Improved))
	}
	if diff.Summary.Regressed > 0 {
		fmt.Fprintf(w, "  Regressed:      %s\n", red(diff.Summary.Regressed))
	}
	if diff.Summary.Unchanged > 0 {
		fmt.Fprintf(w, "  Unchanged:      %d\n", diff.Summary.Unchanged)
	}
	if diff.Summary.NewCases > 0 {
		fmt.Fprintf(w, "  New Cases:      %s\n", cyan(diff.Summary.NewCases))
	}
	if diff.Summary.RemovedCases > 0 {
		fmt.Fprintf(w, "  Removed Cases:  %s\n", yellow(diff.Summary.RemovedCases))
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%s\n", bold("Cases"))
	for _, comp := range diff.Comparisons {
		var statusSymbol string
		var statusColor func(a ...interface{}) string

		switch comp.StatusChange {
		case "improved":
			statusSymbol = "↑"
			statusColor = green
		case "regressed":
			statusSymbol = "↓"
			statusColor = red
		case "new":
			statusSymbol = "+"
			statusColor = cyan
		case "removed":
			statusSymbol = "-"
			statusColor = yellow
		default:
			statusSymbol = "="
			statusColor = func(a ...interface{}) string { return fmt.Sprint(a...) }
		}

		switch {
		case comp.InFile1 && comp.InFile2:
			changeStr := ""
			if comp.WallChange > 0 {
				changeStr = fmt.Sprintf("+%.1f%%", comp.WallChange)
			} else if comp.WallChange < 0 {
				changeStr = fmt.Sprintf("%.1f%%", comp.WallChange)
			}
			fmt.Fprintf(w, "  %s %-12s %.3fs → %.3fs %s",
				statusColor(statusSymbol), comp.Case, comp.Wall1, comp.Wall2, statusColor(changeStr))
			if !comp.Equivalent {
				fmt.Fprintf(w, " %s", red("(not equivalent)"))
			}
			fmt.Fprintln(w)
		case comp.InFile1:
			fmt.Fprintf(w, "  %s %-12s (removed)\n", statusColor(statusSymbol), comp.Case)
		default:
			fmt.Fprintf(w, "  %s %-12s (new, %.3fs)\n", statusColor(statusSymbol), comp.Case, comp.Wall2)
		}
	}
	fmt.Fprintln(w)

	if diff.Summary.LostEquivalence {
		fmt.Fprintf(w, "%s Parallel results no longer match the serial baseline\n", red("✗"))
	}
	if diff.Summary.ThresholdPercent > 0 {
		if diff.Summary.ThresholdPassed {
			fmt.Fprintf(w, "%s Threshold check passed (max regression: %.1f%%)\n", green("✓"), diff.Summary.ThresholdPercent)
		} else {
			fmt.Fprintf(w, "%s Threshold check failed (some cases exceeded %.1f%% regression)\n", red("✗"), diff.Summary.ThresholdPercent)
		}
	}

	return nil
}

func outputDiffJSON(w io.Writer, diff *DiffResult) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(diff)
}
