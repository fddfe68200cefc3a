package metrics

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/abdul-hamid-achik/conserve/packages/bench"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult(t *testing.T, c *Collector) *bench.Result {
	t.Helper()

	cases := []*bench.CaseSummary{
		{Name: "serial", Mode: "serial", Workers: 1, Runs: 3, Wall: 2 * time.Second, User: 2 * time.Second, Speedup: 1, Efficiency: 1, Equivalent: true},
		{Name: "parallel-4", Mode: "parallel", Workers: 4, Runs: 3, Wall: time.Second, User: 3 * time.Second, System: 100 * time.Millisecond, Speedup: 2, Efficiency: 0.5, Equivalent: true, MassDrift: 1e-15},
	}

	for i, s := range cases {
		m := bench.NewMetrics()
		for k := 0; k < 10; k++ {
			m.RecordStep(time.Duration(i+1) * time.Millisecond)
		}
		c.RecordCase(s, m)
	}

	return &bench.Result{
		Problem:    "burgers/lax-wendroff",
		Steps:      10,
		Tolerance:  bench.DefaultTolerance,
		Cases:      cases,
		Equivalent: true,
		Passed:     true,
		StartedAt:  time.Unix(1_700_000_000, 0),
		Duration:   10 * time.Second,
	}
}

func TestBuckets(t *testing.T) {
	m := bench.NewMetrics()
	for i := 0; i < 5; i++ {
		m.RecordStep(time.Millisecond)
	}
	m.RecordStep(time.Second)

	buckets := Buckets(m.Histogram())
	require.Len(t, buckets, 2)
	assert.Equal(t, int64(5), buckets[0].Count)
	assert.InDelta(t, 0.001, buckets[0].From, 0.00001)
	assert.InDelta(t, 1, buckets[1].To, 0.01)

	assert.Nil(t, Buckets(nil))
}

func TestCollector_Metrics(t *testing.T) {
	c := NewCollector()
	result := sampleResult(t, c)

	m := c.Metrics(result, "run-1", "v1")
	assert.Equal(t, "run-1", m.RunID)
	assert.Equal(t, "v1", m.Version)
	assert.Equal(t, result.StartedAt, m.Time)
	require.Len(t, m.Report.Cases, 2)
	assert.Contains(t, m.Steps, "serial")
	assert.Contains(t, m.Steps, "parallel-4")
	assert.Equal(t, int64(10), m.Steps["parallel-4"].TotalCount())
}

func TestJSONExporter(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "metrics.json")
	exp := NewJSONExporter(WithJSONWriter(&buf), WithJSONFile(path))

	c := NewCollector(exp)
	result := sampleResult(t, c)
	require.NoError(t, c.Flush(result, "run-1", "v1"))
	require.NoError(t, c.Close())

	var out JSONMetricsOutput
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	assert.Equal(t, "run-1", out.Metadata.RunID)
	assert.Equal(t, []string{"parallel-4", "serial"}, out.Metadata.Cases)
	require.NotNil(t, out.Summary)
	assert.Equal(t, 2.0, out.Summary.Cases[1].Speedup)
	require.Len(t, out.Steps["serial"], 1)
	assert.Equal(t, int64(10), out.Steps["serial"][0].Count)

	fileData, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, buf.String(), string(fileData))
}

func TestPrometheusExporter_Writer(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewPrometheusExporter(WithPrometheusWriter(&buf))
	require.NoError(t, err)

	c := NewCollector(exp)
	require.NoError(t, c.Flush(sampleResult(t, c), "run-1", "v1"))

	out := buf.String()
	assert.Contains(t, out, "# TYPE conserve_bench_wall_seconds gauge")
	assert.Contains(t, out, `conserve_bench_wall_seconds{mode="parallel",workers="4"} 1`)
	assert.Contains(t, out, `conserve_bench_wall_seconds{mode="serial",workers="1"} 2`)
	assert.Contains(t, out, `conserve_bench_speedup{mode="parallel",workers="4"} 2`)
	assert.Contains(t, out, `conserve_bench_cpu_system_seconds{mode="parallel",workers="4"} 0.1`)
	assert.Contains(t, out, `conserve_bench_equivalent{mode="serial",workers="1"} 1`)
	assert.Contains(t, out, `conserve_bench_step_duration_seconds_count{mode="serial",workers="1"} 10`)
	assert.Contains(t, out, "conserve_bench_passed 1")
	assert.Contains(t, out, "conserve_bench_last_run_timestamp_seconds 1.7e+09")
	require.NoError(t, c.Close())
}

func TestPrometheusExporter_ResetsBetweenExports(t *testing.T) {
	var buf bytes.Buffer
	exp, err := NewPrometheusExporter(WithPrometheusWriter(&buf))
	require.NoError(t, err)

	c := NewCollector(exp)
	result := sampleResult(t, c)
	require.NoError(t, c.Flush(result, "run-1", "v1"))

	result.Cases = result.Cases[:1]
	buf.Reset()
	require.NoError(t, exp.Export(c.Metrics(result, "run-2", "v1")))

	assert.NotContains(t, buf.String(), `workers="4"`)
}

func TestPrometheusExporter_Textfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conserve.prom")
	exp, err := NewPrometheusExporter(WithPrometheusFile(path))
	require.NoError(t, err)

	c := NewCollector(exp)
	require.NoError(t, c.Flush(sampleResult(t, c), "run-1", "v1"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "conserve_bench_efficiency")
}

func TestPrometheusExporter_Handler(t *testing.T) {
	exp, err := NewPrometheusExporter()
	require.NoError(t, err)

	c := NewCollector(exp)
	require.NoError(t, c.Flush(sampleResult(t, c), "run-1", "v1"))

	srv := httptest.NewServer(exp.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "conserve_bench_mass_drift")
	assert.Empty(t, exp.Addr())
}

func TestPrometheusExporter_HTTP(t *testing.T) {
	exp, err := NewPrometheusExporter(WithPrometheusAddr("127.0.0.1:0"))
	require.NoError(t, err)
	defer exp.Close()

	require.NotEmpty(t, exp.Addr())

	resp, err := http.Get("http://" + exp.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
