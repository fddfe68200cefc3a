package metrics

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/bench"
)

// JSONExporter exports metrics to JSON format
type JSONExporter struct {
	writer   io.Writer
	filePath string
	pretty   bool
}

// JSONOption is a functional option for JSONExporter
type JSONOption func(*JSONExporter)

// WithJSONWriter sets the output writer for JSON metrics
func WithJSONWriter(w io.Writer) JSONOption {
	return func(j *JSONExporter) {
		j.writer = w
	}
}

// WithJSONFile sets the output file for JSON metrics
func WithJSONFile(path string) JSONOption {
	return func(j *JSONExporter) {
		j.filePath = path
	}
}

// WithJSONPretty enables pretty-printed JSON output
func WithJSONPretty(pretty bool) JSONOption {
	return func(j *JSONExporter) {
		j.pretty = pretty
	}
}

// NewJSONExporter creates a new JSON metrics exporter
func NewJSONExporter(opts ...JSONOption) *JSONExporter {
	j := &JSONExporter{
		pretty: true,
	}

	for _, opt := range opts {
		opt(j)
	}

	return j
}

// JSONMetricsOutput is the complete JSON output structure
type JSONMetricsOutput struct {
	Metadata JSONMetadata        `json:"metadata"`
	Summary  *bench.Report       `json:"summary"`
	Steps    map[string][]Bucket `json:"stepBuckets"`
}

// JSONMetadata contains metadata about the metrics collection
type JSONMetadata struct {
	RunID       string   `json:"runId,omitempty"`
	GeneratedAt string   `json:"generatedAt"`
	Version     string   `json:"version,omitempty"`
	Cases       []string `json:"cases"`
}

// Export exports bench metrics to JSON
func (j *JSONExporter) Export(metrics *BenchMetrics) error {
	output := JSONMetricsOutput{
		Metadata: JSONMetadata{
			RunID:       metrics.RunID,
			GeneratedAt: time.Now().Format(time.RFC3339),
			Version:     metrics.Version,
			Cases:       make([]string, 0, len(metrics.Steps)),
		},
		Summary: metrics.Report,
		Steps:   make(map[string][]Bucket, len(metrics.Steps)),
	}
	for name, h := range metrics.Steps {
		output.Metadata.Cases = append(output.Metadata.Cases, name)
		output.Steps[name] = Buckets(h)
	}
	sort.Strings(output.Metadata.Cases)

	var data []byte
	var err error

	if j.pretty {
		data, err = json.MarshalIndent(output, "", "  ")
	} else {
		data, err = json.Marshal(output)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	// Write to file if path is specified
	if j.filePath != "" {
		if err := os.WriteFile(j.filePath, data, 0644); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}

	// Write to writer if specified
	if j.writer != nil {
		if _, err := j.writer.Write(data); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
		if _, err := j.writer.Write([]byte("\n")); err != nil {
			return fmt.Errorf("failed to write newline: %w", err)
		}
	}

	return nil
}

// Close closes the JSON exporter
func (j *JSONExporter) Close() error {
	return nil
}
