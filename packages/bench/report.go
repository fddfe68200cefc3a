package bench

import "time"

// Report is the JSON form of a Result.
type Report struct {
	Problem    string            `json:"problem"`
	Steps      int               `json:"steps"`
	Tolerance  float64           `json:"tolerance"`
	StartedAt  time.Time         `json:"startedAt"`
	Duration   float64           `json:"durationSeconds"`
	Equivalent bool              `json:"equivalent"`
	Scaling    bool              `json:"scaling"`
	Passed     bool              `json:"passed"`
	Cases      []CaseReport      `json:"cases"`
	Thresholds []ThresholdResult `json:"thresholds,omitempty"`
}

// CaseReport is the JSON form of a CaseSummary. Times are in seconds.
type CaseReport struct {
	Name       string     `json:"name"`
	Mode       string     `json:"mode"`
	Workers    int        `json:"workers"`
	Runs       int        `json:"runs"`
	Wall       float64    `json:"wall"`
	MinWall    float64    `json:"minWall"`
	User       float64    `json:"user"`
	System     float64    `json:"system"`
	CPUPercent float64    `json:"cpuPercent"`
	Speedup    float64    `json:"speedup"`
	Efficiency float64    `json:"efficiency"`
	Deviation  float64    `json:"deviation"`
	MassDrift  float64    `json:"massDrift"`
	Equivalent bool       `json:"equivalent"`
	Step       StepReport `json:"step"`
}

// StepReport holds step latency statistics in seconds.
type StepReport struct {
	Count int64   `json:"count"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
	Max   float64 `json:"max"`
	Mean  float64 `json:"mean"`
}

// Report converts r for JSON output.
func (r *Result) Report() *Report {
	rep := &Report{
		Problem:    r.Problem,
		Steps:      r.Steps,
		Tolerance:  r.Tolerance,
		StartedAt:  r.StartedAt,
		Duration:   r.Duration.Seconds(),
		Equivalent: r.Equivalent,
		Scaling:    r.Scaling,
		Passed:     r.Passed,
		Thresholds: r.Thresholds,
		Cases:      make([]CaseReport, len(r.Cases)),
	}

	for i, c := range r.Cases {
		rep.Cases[i] = CaseReport{
			Name:       c.Name,
			Mode:       c.Mode,
			Workers:    c.Workers,
			Runs:       c.Runs,
			Wall:       c.Wall.Seconds(),
			MinWall:    c.MinWall.Seconds(),
			User:       c.User.Seconds(),
			System:     c.System.Seconds(),
			CPUPercent: c.CPUPercent,
			Speedup:    c.Speedup,
			Efficiency: c.Efficiency,
			Deviation:  c.Deviation,
			MassDrift:  c.MassDrift,
			Equivalent: c.Equivalent,
			Step: StepReport{
				Count: c.Steps,
				P50:   c.StepP50.Seconds(),
				P95:   c.StepP95.Seconds(),
				P99:   c.StepP99.Seconds(),
				Max:   c.StepMax.Seconds(),
				Mean:  c.StepMean.Seconds(),
			},
		}
	}

	return rep
}
