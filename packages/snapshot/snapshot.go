// Package snapshot stores golden final states and compares runs against them.
package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/abdul-hamid-achik/conserve/packages/output"
	"github.com/abdul-hamid-achik/conserve/packages/solver"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const (
	// SnapshotDir is the directory name for storing snapshots
	SnapshotDir = "__snapshots__"
	// SnapshotExt is the file extension for snapshot files
	SnapshotExt = ".snap.json"
	// DefaultTolerance is the largest accepted per-cell difference
	DefaultTolerance = 1e-12
	// Version of the snapshot file layout
	Version = 1
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Snapshot is the stored form of a final state.
type Snapshot struct {
	Version     int                `json:"version"`
	Name        string             `json:"name"`
	Cells       int                `json:"cells"`
	Lo          float64            `json:"lo"`
	DX          float64            `json:"dx"`
	Diagnostics solver.Diagnostics `json:"diagnostics"`
	Values      []float64          `json:"values"`
}

// layout is the part of a snapshot that must match exactly.
type layout struct {
	Cells int
	Lo    float64
	DX    float64
}

func (s *Snapshot) layout() layout {
	return layout{Cells: s.Cells, Lo: s.Lo, DX: s.DX}
}

// New builds a snapshot of state on grid.
func New(name string, grid *solver.Grid, state solver.State) *Snapshot {
	return &Snapshot{
		Version:     Version,
		Name:        name,
		Cells:       grid.Len(),
		Lo:          grid.Lo,
		DX:          grid.DX,
		Diagnostics: solver.Measure(state, grid.DX),
		Values:      append([]float64(nil), state...),
	}
}

// Manager handles snapshot storage and comparison.
type Manager struct {
	baseDir    string
	updateMode bool

	mu    sync.Mutex
	cache map[string]*Snapshot
}

// NewManager creates a new snapshot manager rooted at baseDir.
func NewManager(baseDir string, updateMode bool) *Manager {
	return &Manager{
		baseDir:    baseDir,
		updateMode: updateMode,
		cache:      make(map[string]*Snapshot),
	}
}

// UpdateMode reports whether missing or mismatched snapshots are written.
func (m *Manager) UpdateMode() bool {
	return m.updateMode
}

// Result represents the result of a snapshot comparison.
type Result struct {
	Name       string
	Passed     bool
	Message    string
	MaxDiff    float64
	IsNew      bool
	WasUpdated bool
}

// Status converts the result for run reports.
func (r *Result) Status() *output.SnapshotStatus {
	return &output.SnapshotStatus{
		Name:    r.Name,
		Created: r.IsNew,
		Updated: r.WasUpdated,
		Passed:  r.Passed,
		MaxDiff: r.MaxDiff,
		Message: r.Message,
	}
}

// Path returns the file a named snapshot is stored in.
func (m *Manager) Path(name string) string {
	return filepath.Join(m.baseDir, SnapshotDir, name+SnapshotExt)
}

// Compare compares a final state against the named snapshot. Every value
// must be within tol of the stored one. In update mode a missing or
// mismatched snapshot is written and the comparison passes.
func (m *Manager) Compare(name string, grid *solver.Grid, state solver.State, tol float64) *Result {
	result := &Result{Name: name}

	if !namePattern.MatchString(name) {
		result.Message = fmt.Sprintf("invalid snapshot name %q", name)
		return result
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	actual := New(name, grid, state)

	expected, err := m.load(name)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Message = fmt.Sprintf("failed to load snapshot: %v", err)
			return result
		}

		if !m.updateMode {
			result.Message = "snapshot does not exist (run with --update-snapshots to create)"
			return result
		}
		if err := m.save(actual); err != nil {
			result.Message = fmt.Sprintf("failed to save snapshot: %v", err)
			return result
		}
		result.Passed = true
		result.IsNew = true
		result.Message = "new snapshot created"
		return result
	}

	mismatch := ""
	if diff := cmp.Diff(expected.layout(), actual.layout(), cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		mismatch = fmt.Sprintf("grid mismatch (-want +got):\n%s", diff)
	} else {
		result.MaxDiff = solver.MaxAbsDiff(expected.Values, actual.Values)
		if !(result.MaxDiff <= tol) {
			mismatch = fmt.Sprintf("snapshot mismatch: max difference %g exceeds tolerance %g", result.MaxDiff, tol)
		}
	}

	if mismatch == "" {
		result.Passed = true
		return result
	}

	if m.updateMode {
		if err := m.save(actual); err != nil {
			result.Message = fmt.Sprintf("failed to update snapshot: %v", err)
			return result
		}
		result.Passed = true
		result.WasUpdated = true
		result.Message = "snapshot updated"
		return result
	}

	result.Message = mismatch
	return result
}

// Load reads a named snapshot.
func (m *Manager) Load(name string) (*Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(name)
}

func (m *Manager) load(name string) (*Snapshot, error) {
	if cached, ok := m.cache[name]; ok {
		return cached, nil
	}

	data, err := os.ReadFile(m.Path(name))
	if err != nil {
		return nil, err
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%s: %w", m.Path(name), err)
	}
	if snap.Version != Version {
		return nil, fmt.Errorf("%s: unsupported snapshot version %d", m.Path(name), snap.Version)
	}
	if len(snap.Values) != snap.Cells {
		return nil, fmt.Errorf("%s: %d values for %d cells", m.Path(name), len(snap.Values), snap.Cells)
	}

	m.cache[name] = &snap
	return &snap, nil
}

func (m *Manager) save(snap *Snapshot) error {
	path := m.Path(snap.Name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}

	m.cache[snap.Name] = snap

	return os.WriteFile(path, data, 0644)
}
