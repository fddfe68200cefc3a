// Package history stores bench runs in SQLite so results can be compared
// over time.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/bench"
	"github.com/google/uuid"
	"go.uber.org/zap"

	// SQLite driver
	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned by Get for unknown run ids.
var ErrNotFound = errors.New("bench run not found")

// timeLayout is fixed width so that stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const schema = `
CREATE TABLE IF NOT EXISTS bench_runs (
	id          TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	version     TEXT NOT NULL DEFAULT '',
	problem     TEXT NOT NULL,
	steps       INTEGER NOT NULL,
	tolerance   REAL NOT NULL,
	duration    REAL NOT NULL,
	equivalent  INTEGER NOT NULL,
	scaling     INTEGER NOT NULL,
	passed      INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS bench_cases (
	run_id      TEXT NOT NULL REFERENCES bench_runs(id) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	name        TEXT NOT NULL,
	mode        TEXT NOT NULL,
	workers     INTEGER NOT NULL,
	runs        INTEGER NOT NULL,
	wall        REAL NOT NULL,
	user_cpu    REAL NOT NULL,
	system_cpu  REAL NOT NULL,
	speedup     REAL NOT NULL,
	efficiency  REAL NOT NULL,
	deviation   REAL NOT NULL,
	mass_drift  REAL NOT NULL,
	step_p50    REAL NOT NULL,
	step_p99    REAL NOT NULL,
	equivalent  INTEGER NOT NULL,
	PRIMARY KEY (run_id, position)
);
CREATE INDEX IF NOT EXISTS bench_runs_started_at ON bench_runs(started_at);
`

// Run is one stored bench invocation. Times are in seconds.
type Run struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"startedAt"`
	Version    string    `json:"version"`
	Problem    string    `json:"problem"`
	Steps      int       `json:"steps"`
	Tolerance  float64   `json:"tolerance"`
	Duration   float64   `json:"duration"`
	Equivalent bool      `json:"equivalent"`
	Scaling    bool      `json:"scaling"`
	Passed     bool      `json:"passed"`
	Cases      []Case    `json:"cases"`
}

// Case is one stored bench case.
type Case struct {
	Name       string  `json:"name"`
	Mode       string  `json:"mode"`
	Workers    int     `json:"workers"`
	Runs       int     `json:"runs"`
	Wall       float64 `json:"wall"`
	User       float64 `json:"user"`
	System     float64 `json:"system"`
	Speedup    float64 `json:"speedup"`
	Efficiency float64 `json:"efficiency"`
	Deviation  float64 `json:"deviation"`
	MassDrift  float64 `json:"massDrift"`
	StepP50    float64 `json:"stepP50"`
	StepP99    float64 `json:"stepP99"`
	Equivalent bool    `json:"equivalent"`
}

// NewRun converts a bench result, assigning it a fresh id.
func NewRun(result *bench.Result, version string) *Run {
	run := &Run{
		ID:         uuid.NewString(),
		StartedAt:  result.StartedAt,
		Version:    version,
		Problem:    result.Problem,
		Steps:      result.Steps,
		Tolerance:  result.Tolerance,
		Duration:   result.Duration.Seconds(),
		Equivalent: result.Equivalent,
		Scaling:    result.Scaling,
		Passed:     result.Passed,
		Cases:      make([]Case, len(result.Cases)),
	}
	for i, c := range result.Cases {
		run.Cases[i] = Case{
			Name:       c.Name,
			Mode:       c.Mode,
			Workers:    c.Workers,
			Runs:       c.Runs,
			Wall:       c.Wall.Seconds(),
			User:       c.User.Seconds(),
			System:     c.System.Seconds(),
			Speedup:    c.Speedup,
			Efficiency: c.Efficiency,
			Deviation:  c.Deviation,
			MassDrift:  c.MassDrift,
			StepP50:    c.StepP50.Seconds(),
			StepP99:    c.StepP99.Seconds(),
			Equivalent: c.Equivalent,
		}
	}
	return run
}

// BestSpeedup returns the largest speedup of the run's cases.
func (r *Run) BestSpeedup() float64 {
	best := 0.0
	for _, c := range r.Cases {
		best = max(best, c.Speedup)
	}
	return best
}

// Store is a bench history database
type Store struct {
	db         *sql.DB
	logger     *zap.Logger
	dataSource string
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Open opens or creates the history database named by a connection string
// and applies the schema.
func Open(ctx context.Context, connectionString string, opts ...Option) (*Store, error) {
	dsn, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Verify connection
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	s := &Store{db: db, logger: zap.NewNop(), dataSource: dsn}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores a run and its cases in one transaction.
func (s *Store) Save(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if _, err := uuid.Parse(run.ID); err != nil {
		return fmt.Errorf("invalid run id %q: %w", run.ID, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `INSERT INTO bench_runs
		(id, started_at, version, problem, steps, tolerance, duration, equivalent, scaling, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UTC().Format(timeLayout), run.Version, run.Problem, run.Steps,
		run.Tolerance, run.Duration, run.Equivalent, run.Scaling, run.Passed)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for i, c := range run.Cases {
		_, err = tx.ExecContext(ctx, `INSERT INTO bench_cases
			(run_id, position, name, mode, workers, runs, wall, user_cpu, system_cpu, speedup,
			 efficiency, deviation, mass_drift, step_p50, step_p99, equivalent)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, i, c.Name, c.Mode, c.Workers, c.Runs, c.Wall, c.User, c.System, c.Speedup,
			c.Efficiency, c.Deviation, c.MassDrift, c.StepP50, c.StepP99, c.Equivalent)
		if err != nil {
			return fmt.Errorf("failed to insert case %s: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run: %w", err)
	}

	s.logger.Debug("bench run saved", zap.String("id", run.ID), zap.Int("cases", len(run.Cases)))
	return nil
}

const runColumns = `id, started_at, version, problem, steps, tolerance, duration, equivalent, scaling, passed`

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var run Run
	var started string
	if err := row.Scan(&run.ID, &started, &run.Version, &run.Problem, &run.Steps, &run.Tolerance,
		&run.Duration, &run.Equivalent, &run.Scaling, &run.Passed); err != nil {
		return nil, err
	}
	t, err := time.Parse(timeLayout, started)
	if err != nil {
		return nil, fmt.Errorf("invalid start time %q: %w", started, err)
	}
	run.StartedAt = t
	return &run, nil
}

// List returns the most recent runs first, with their cases. A limit of
// zero or less returns every run.
func (s *Store) List(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM bench_runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	for _, run := range runs {
		if run.Cases, err = s.cases(ctx, run.ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Get returns one run by id. A unique id prefix is accepted.
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrNotFound
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM bench_runs WHERE id = ? OR id LIKE ? ESCAPE '\' LIMIT 2`,
		id, escapeLike(id)+"%")
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var matches []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		matches = append(matches, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	rows.Close()

	var run *Run
	switch {
	case len(matches) == 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	case len(matches) == 1:
		run = matches[0]
	default:
		for _, m := range matches {
			if m.ID == id {
				run = m
			}
		}
		if run == nil {
			return nil, fmt.Errorf("ambiguous run id prefix %q", id)
		}
	}

	if run.Cases, err = s.cases(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

func (s *Store) cases(ctx context.Context, runID string) ([]Case, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, mode, workers, runs, wall, user_cpu, system_cpu,
		speedup, efficiency, deviation, mass_drift, step_p50, step_p99, equivalent
		FROM bench_cases WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	cases := make([]Case, 0)
	for rows.Next() {
		var c Case
		if err := rows.Scan(&c.Name, &c.Mode, &c.Workers, &c.Runs, &c.Wall, &c.User, &c.System,
			&c.Speedup, &c.Efficiency, &c.Deviation, &c.MassDrift, &c.StepP50, &c.StepP99, &c.Equivalent); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return cases, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// parseConnectionString turns a connection string into a SQLite DSN.
// Supported formats:
// - sqlite://path/to/history.db
// - sqlite:./history.db
// - a plain file path
func parseConnectionString(connStr string) (string, error) {
	connStr = strings.TrimSpace(connStr)

	switch {
	case connStr == "":
		return "", fmt.Errorf("empty connection string")
	case strings.HasPrefix(connStr, "sqlite://"):
		connStr = strings.TrimPrefix(connStr, "sqlite://")
	case strings.HasPrefix(connStr, "sqlite:"):
		connStr = strings.TrimPrefix(connStr, "sqlite:")
	case strings.Contains(connStr, "://"):
		scheme, _, _ := strings.Cut(connStr, "://")
		return "", fmt.Errorf("unsupported database scheme: %s", scheme)
	}

	if connStr == "" {
		return "", fmt.Errorf("missing database path")
	}
	if connStr == ":memory:" {
		return "file::memory:?cache=shared&_foreign_keys=on", nil
	}
	sep := "?"
	if strings.Contains(connStr, "?") {
		sep = "&"
	}
	return connStr + sep + "_foreign_keys=on", nil
}
