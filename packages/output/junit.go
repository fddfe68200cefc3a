package output

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"time"
)

// JUnitTestSuites is the root element
type JUnitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Name       string           `xml:"name,attr,omitempty"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Errors     int              `xml:"errors,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	Timestamp  string           `xml:"timestamp,attr,omitempty"`
	TestSuites []JUnitTestSuite `xml:"testsuite"`
}

// JUnitTestSuite groups the runs of one execution mode
type JUnitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	TestCases []JUnitTestCase `xml:"testcase"`
}

// JUnitTestCase is one integration
type JUnitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *JUnitFailure `xml:"failure,omitempty"`
	Error     *JUnitError   `xml:"error,omitempty"`
	Skipped   *JUnitSkipped `xml:"skipped,omitempty"`
	SystemOut string        `xml:"system-out,omitempty"`
}

// JUnitFailure is a snapshot mismatch
type JUnitFailure struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitError is a failed integration
type JUnitError struct {
	Message string `xml:"message,attr,omitempty"`
	Type    string `xml:"type,attr,omitempty"`
	Content string `xml:",chardata"`
}

// JUnitSkipped is an integration that never started
type JUnitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// JUnitFormatter formats run results as JUnit XML, one suite per mode
type JUnitFormatter struct {
	writer io.Writer
	suites []*JUnitTestSuite
	index  map[string]*JUnitTestSuite
}

type JUnitOption func(*JUnitFormatter)

func NewJUnitFormatter(opts ...JUnitOption) *JUnitFormatter {
	f := &JUnitFormatter{
		writer: os.Stdout,
		index:  make(map[string]*JUnitTestSuite),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func JUnitWithWriter(w io.Writer) JUnitOption {
	return func(f *JUnitFormatter) {
		f.writer = w
	}
}

func (f *JUnitFormatter) suite(r *RunReport) *JUnitTestSuite {
	name := "conserve." + modeLabel(r.Mode, r.Workers)
	if s, ok := f.index[name]; ok {
		return s
	}
	s := &JUnitTestSuite{Name: name}
	f.index[name] = s
	f.suites = append(f.suites, s)
	return s
}

func (f *JUnitFormatter) FormatRun(r *RunReport) {
	suite := f.suite(r)

	tc := JUnitTestCase{
		Name:      r.Name,
		ClassName: suite.Name,
		Time:      r.Duration.Seconds(),
	}

	switch {
	case r.Skipped:
		suite.Skipped++
		msg := "not started"
		if r.Err != nil {
			msg = r.Err.Error()
		}
		tc.Skipped = &JUnitSkipped{Message: msg}
	case r.Err != nil:
		suite.Errors++
		tc.Error = &JUnitError{
			Message: r.Err.Error(),
			Type:    "NumericalError",
		}
	case r.Snapshot != nil && !r.Snapshot.Passed:
		suite.Failures++
		tc.Failure = &JUnitFailure{
			Message: "Snapshot mismatch",
			Type:    "SnapshotError",
			Content: r.Snapshot.Message,
		}
	default:
		tc.SystemOut = fmt.Sprintf("%s\nmass drift %g\n", r.TimeSummary(), r.MassDrift)
	}

	suite.Tests++
	suite.Time += r.Duration.Seconds()
	suite.TestCases = append(suite.TestCases, tc)
}

func (f *JUnitFormatter) FormatError(err error) {
	// Errors are included in individual test cases
}

func (f *JUnitFormatter) FormatHeader(version string) {
	// No header needed for JUnit XML
}

// Flush writes the accumulated JUnit XML output
func (f *JUnitFormatter) Flush(totalDuration time.Duration) error {
	suites := JUnitTestSuites{
		Name:       "conserve",
		Time:       totalDuration.Seconds(),
		Timestamp:  time.Now().Format(time.RFC3339),
		TestSuites: make([]JUnitTestSuite, 0, len(f.suites)),
	}
	for _, s := range f.suites {
		suites.Tests += s.Tests
		suites.Failures += s.Failures
		suites.Errors += s.Errors
		suites.Skipped += s.Skipped
		suites.TestSuites = append(suites.TestSuites, *s)
	}

	fmt.Fprintf(f.writer, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n")
	encoder := xml.NewEncoder(f.writer)
	encoder.Indent("", "  ")
	return encoder.Encode(suites)
}
