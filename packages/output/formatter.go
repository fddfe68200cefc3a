package output

import (
	"fmt"
	"io"
	"time"
)

// Formatter interface for all output formatters
type Formatter interface {
	FormatHeader(version string)
	FormatRun(report *RunReport)
	FormatError(err error)
}

// Flushable interface for formatters that need to flush output
type Flushable interface {
	Flush(totalDuration time.Duration) error
}

// Formats lists the accepted formatter names.
var Formats = []string{"console", "json", "junit"}

// New returns the formatter for a format name writing to w.
func New(format string, w io.Writer, verbose, noColor bool) (Formatter, error) {
	switch format {
	case "", "console":
		return NewConsoleFormatter(WithWriter(w), WithVerbose(verbose), WithNoColor(noColor)), nil
	case "json":
		return NewJSONFormatter(JSONWithWriter(w)), nil
	case "junit":
		return NewJUnitFormatter(JUnitWithWriter(w)), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (available: console, json, junit)", format)
	}
}
