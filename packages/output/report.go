package output

import (
	"fmt"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
)

// RunReport describes one finished integration.
type RunReport struct {
	Name     string
	Problem  string
	Mode     string
	Workers  int
	Cells    int
	Steps    int
	Duration time.Duration

	// Process CPU time, only set when CPUMeasured
	User        time.Duration
	System      time.Duration
	CPUMeasured bool

	Before    solver.Diagnostics
	After     solver.Diagnostics
	MassDrift float64

	// Distance to the exact solution, nil when none is known
	Exact *ExactError

	Snapshot *SnapshotStatus

	// Frames is the path of the frame file, if any
	Frames string

	Skipped bool
	Err     error
}

// ExactError holds the L1 and max norm distance to the exact solution.
type ExactError struct {
	L1   float64
	LInf float64
}

// SnapshotStatus is the result of comparing the final state to a snapshot.
type SnapshotStatus struct {
	Name    string
	Created bool
	Updated bool
	Passed  bool
	MaxDiff float64
	Message string
}

// Passed reports whether the run finished and matched its snapshot.
func (r *RunReport) Passed() bool {
	if r.Err != nil || r.Skipped {
		return false
	}
	return r.Snapshot == nil || r.Snapshot.Passed
}

// CPUPercent returns (user+system)/wall in percent.
func (r *RunReport) CPUPercent() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.User+r.System) / float64(r.Duration) * 100
}

// TimeSummary renders the run time like time(1), or only the wall time
// when CPU time was not measured.
func (r *RunReport) TimeSummary() string {
	if !r.CPUMeasured {
		return fmt.Sprintf("%.3fs total", r.Duration.Seconds())
	}
	return TimeLine(r.User, r.System, r.Duration)
}

// Tally counts passed, failed and skipped reports.
func Tally(reports []*RunReport) (passed, failed, skipped int) {
	for _, r := range reports {
		switch {
		case r.Skipped:
			skipped++
		case r.Passed():
			passed++
		default:
			failed++
		}
	}
	return passed, failed, skipped
}
