package metrics

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

const (
	namespace = "conserve"
	subsystem = "bench"
)

var caseLabels = []string{"mode", "workers"}

// PrometheusExporter exposes bench metrics through its own registry. The
// registry is written to a writer or textfile on Export, or served on
// /metrics.
type PrometheusExporter struct {
	mu       sync.Mutex
	registry *prometheus.Registry

	wall       *prometheus.GaugeVec
	user       *prometheus.GaugeVec
	system     *prometheus.GaugeVec
	speedup    *prometheus.GaugeVec
	efficiency *prometheus.GaugeVec
	deviation  *prometheus.GaugeVec
	massDrift  *prometheus.GaugeVec
	equivalent *prometheus.GaugeVec
	steps      *prometheus.HistogramVec
	passed     prometheus.Gauge
	timestamp  prometheus.Gauge

	writer   io.Writer
	filePath string
	addr     string
	listener net.Listener
	server   *http.Server
}

// PrometheusOption is a functional option for PrometheusExporter
type PrometheusOption func(*PrometheusExporter)

// WithPrometheusWriter sets the output writer for Prometheus metrics
func WithPrometheusWriter(w io.Writer) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.writer = w
	}
}

// WithPrometheusFile writes the metrics to a node exporter textfile
func WithPrometheusFile(path string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.filePath = path
	}
}

// WithPrometheusHTTP enables HTTP endpoint serving on the given port
func WithPrometheusHTTP(port int) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.addr = fmt.Sprintf(":%d", port)
	}
}

// WithPrometheusAddr enables HTTP endpoint serving on a host:port address
func WithPrometheusAddr(addr string) PrometheusOption {
	return func(p *PrometheusExporter) {
		p.addr = addr
	}
}

func newCaseGauge(name, help string) *prometheus.GaugeVec {
	return prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, caseLabels)
}

// NewPrometheusExporter creates a new Prometheus metrics exporter and starts
// its HTTP server when one is configured.
func NewPrometheusExporter(opts ...PrometheusOption) (*PrometheusExporter, error) {
	p := &PrometheusExporter{
		registry:   prometheus.NewRegistry(),
		wall:       newCaseGauge("wall_seconds", "Mean wall time of a run."),
		user:       newCaseGauge("cpu_user_seconds", "Mean user CPU time of a run."),
		system:     newCaseGauge("cpu_system_seconds", "Mean system CPU time of a run."),
		speedup:    newCaseGauge("speedup", "Serial wall time divided by the wall time of the case."),
		efficiency: newCaseGauge("efficiency", "Speedup divided by the number of workers."),
		deviation:  newCaseGauge("deviation", "Largest absolute difference from the serial result."),
		massDrift:  newCaseGauge("mass_drift", "Relative change of mass over the run."),
		equivalent: newCaseGauge("equivalent", "1 when the case matched the serial result within tolerance."),
		steps: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "step_duration_seconds",
			Help:      "Bucketed histogram of the wall time of one time step.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 2.0, 24),
		}, caseLabels),
		passed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "passed",
			Help:      "1 when the last bench was equivalent and met its thresholds.",
		}),
		timestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "last_run_timestamp_seconds",
			Help:      "Start time of the last bench.",
		}),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.registry.MustRegister(p.wall, p.user, p.system, p.speedup, p.efficiency,
		p.deviation, p.massDrift, p.equivalent, p.steps, p.passed, p.timestamp)

	if p.addr != "" {
		if err := p.serve(); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *PrometheusExporter) serve() error {
	ln, err := net.Listen("tcp", p.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", p.Handler())

	p.listener = ln
	p.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Printf("Prometheus HTTP server error: %v\n", err)
		}
	}()
	return nil
}

// Addr returns the address the HTTP server listens on, or "".
func (p *PrometheusExporter) Addr() string {
	if p.listener == nil {
		return ""
	}
	return p.listener.Addr().String()
}

// Handler serves the exporter's registry.
func (p *PrometheusExporter) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

// Registry returns the exporter's registry.
func (p *PrometheusExporter) Registry() *prometheus.Registry {
	return p.registry
}

// Export replaces the case metrics with those of a finished bench.
func (p *PrometheusExporter) Export(metrics *BenchMetrics) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, vec := range []*prometheus.GaugeVec{p.wall, p.user, p.system, p.speedup, p.efficiency, p.deviation, p.massDrift, p.equivalent} {
		vec.Reset()
	}
	p.steps.Reset()

	rep := metrics.Report
	for _, c := range rep.Cases {
		labels := prometheus.Labels{"mode": c.Mode, "workers": strconv.Itoa(c.Workers)}
		p.wall.With(labels).Set(c.Wall)
		p.user.With(labels).Set(c.User)
		p.system.With(labels).Set(c.System)
		p.speedup.With(labels).Set(c.Speedup)
		p.efficiency.With(labels).Set(c.Efficiency)
		p.deviation.With(labels).Set(c.Deviation)
		p.massDrift.With(labels).Set(c.MassDrift)
		p.equivalent.With(labels).Set(boolGauge(c.Equivalent))

		observer := p.steps.With(labels)
		for _, b := range Buckets(metrics.Steps[c.Name]) {
			mid := (b.From + b.To) / 2
			for i := int64(0); i < b.Count; i++ {
				observer.Observe(mid)
			}
		}
	}
	p.passed.Set(boolGauge(rep.Passed))
	p.timestamp.Set(float64(metrics.Time.Unix()))

	if p.filePath != "" {
		if err := prometheus.WriteToTextfile(p.filePath, p.registry); err != nil {
			return fmt.Errorf("failed to write metrics file: %w", err)
		}
	}

	if p.writer != nil {
		if err := p.writeText(p.writer); err != nil {
			return fmt.Errorf("failed to write metrics: %w", err)
		}
	}

	return nil
}

func (p *PrometheusExporter) writeText(w io.Writer) error {
	families, err := p.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Close shuts down the HTTP server, if any
func (p *PrometheusExporter) Close() error {
	if p.server != nil {
		return p.server.Close()
	}
	return nil
}
