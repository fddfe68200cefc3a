package output

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/abdul-hamid-achik/conserve/packages/solver"
)

func formatCell(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteStateCSV writes one "x,u" row per cell.
func WriteStateCSV(w io.Writer, grid *solver.Grid, state solver.State) error {
	if err := grid.Check(state); err != nil {
		return err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"x", "u"}); err != nil {
		return err
	}
	for i, u := range state {
		if err := cw.Write([]string{formatCell(grid.X[i]), formatCell(u)}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// FrameWriter writes snapshots of a run as "step,x,u" rows.
type FrameWriter struct {
	cw     *csv.Writer
	grid   *solver.Grid
	frames int
}

// NewFrameWriter creates a FrameWriter and writes the header row.
func NewFrameWriter(w io.Writer, grid *solver.Grid) (*FrameWriter, error) {
	fw := &FrameWriter{cw: csv.NewWriter(w), grid: grid}
	if err := fw.cw.Write([]string{"step", "x", "u"}); err != nil {
		return nil, err
	}
	return fw, nil
}

// WriteFrame appends the state after step.
func (fw *FrameWriter) WriteFrame(step int, state solver.State) error {
	if len(state) != fw.grid.Len() {
		return fmt.Errorf("%w: frame has %d cells, grid has %d", solver.ErrShapeMismatch, len(state), fw.grid.Len())
	}

	s := strconv.Itoa(step)
	for i, u := range state {
		if err := fw.cw.Write([]string{s, formatCell(fw.grid.X[i]), formatCell(u)}); err != nil {
			return err
		}
	}
	fw.frames++
	return nil
}

// Frames returns the number of frames written.
func (fw *FrameWriter) Frames() int {
	return fw.frames
}

// Flush flushes buffered rows.
func (fw *FrameWriter) Flush() error {
	fw.cw.Flush()
	return fw.cw.Error()
}
