// Package metrics defines the Prometheus instruments exported by long
// running steamset jobs.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/poiesic/steamset/monitor"
)

const namespace = "steamset"

// Metrics holds every instrument.
type Metrics struct {
	registry *prometheus.Registry

	ImportedRows     *prometheus.CounterVec
	ImportBatches    *prometheus.CounterVec
	ImportRetries    prometheus.Counter
	DimensionsAdded  *prometheus.CounterVec
	EmbeddedRows     *prometheus.CounterVec
	EmbedPages       *prometheus.CounterVec
	EmbedOOMSplits   *prometheus.CounterVec
	EmbedPageSeconds *prometheus.HistogramVec
	EmbedCursor      *prometheus.GaugeVec
	MaterializedRows prometheus.Counter
	Discrepancies    *prometheus.GaugeVec
	RuleViolations   *prometheus.GaugeVec
	CPUPercent       prometheus.Gauge
	RAMPercent       prometheus.Gauge
	GPUUtilPercent   prometheus.Gauge
	GPUMemPercent    prometheus.Gauge
	GPUTempCelsius   prometheus.Gauge
}

// New registers the instruments on a fresh registry that also carries the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ImportedRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "rows_total",
			Help: "Rows inserted by the importer, by table.",
		}, []string{"table"}),
		ImportBatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "batches_total",
			Help: "Import batches by outcome.",
		}, []string{"outcome"}),
		ImportRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "retries_total",
			Help: "Unit-of-work retries after transient failures.",
		}),
		DimensionsAdded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "import", Name: "dimensions_added_total",
			Help: "New dimension rows, by kind.",
		}, []string{"kind"}),
		EmbeddedRows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "embed", Name: "rows_total",
			Help: "Rows that received a vector, by target.",
		}, []string{"target"}),
		EmbedPages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "embed", Name: "pages_total",
			Help: "Pages processed, by target and outcome.",
		}, []string{"target", "outcome"}),
		EmbedOOMSplits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "embed", Name: "oom_splits_total",
			Help: "Sub-batches halved after the backend ran out of memory.",
		}, []string{"target"}),
		EmbedPageSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "embed", Name: "page_duration_seconds",
			Help:    "Wall time per page, from fetch to commit.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"target"}),
		EmbedCursor: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "embed", Name: "cursor",
			Help: "Last committed keyset cursor, by target.",
		}, []string{"target"}),
		MaterializedRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "materialize", Name: "rows_total",
			Help: "Applications whose materialized columns were written.",
		}),
		Discrepancies: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "materialize", Name: "discrepancies",
			Help: "Mismatches found by the latest validation, by column.",
		}, []string{"column"}),
		RuleViolations: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "materialize", Name: "rule_violations",
			Help: "Invariant violations found by the latest validation, by rule.",
		}, []string{"rule"}),
		CPUPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "monitor", Name: "cpu_percent",
			Help: "Host CPU utilization.",
		}),
		RAMPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "monitor", Name: "ram_percent",
			Help: "Host memory utilization.",
		}),
		GPUUtilPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "monitor", Name: "gpu_util_percent",
			Help: "GPU utilization.",
		}),
		GPUMemPercent: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "monitor", Name: "gpu_mem_percent",
			Help: "GPU memory utilization.",
		}),
		GPUTempCelsius: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "monitor", Name: "gpu_temp_celsius",
			Help: "GPU temperature.",
		}),
	}
}

// RecordSnapshot copies a monitor sample into the utilization gauges.
// GPU gauges are left untouched when the sample has no GPU readings.
func (m *Metrics) RecordSnapshot(s monitor.Snapshot) {
	m.CPUPercent.Set(s.CPUPercent)
	m.RAMPercent.Set(s.RAMPercent)
	if s.GPUUtilPercent != nil {
		m.GPUUtilPercent.Set(*s.GPUUtilPercent)
	}
	if s.GPUMemPercent != nil {
		m.GPUMemPercent.Set(*s.GPUMemPercent)
	}
	if s.GPUTempC != nil {
		m.GPUTempCelsius.Set(*s.GPUTempC)
	}
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// Handler returns the /metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	slog.Info("serving metrics", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
