package embed

import (
	"time"

	"github.com/poiesic/steamset/metrics"
)

// PageStats describes one committed page.
type PageStats struct {
	FirstID  int64
	LastID   int64
	Rows     int
	Splits   int
	Duration time.Duration
}

// Observer provides hooks to observe the generator.
// Hooks run on the generator goroutine and must not block.
type Observer interface {
	StateChanged(target string, state State)
	SubBatchSplit(target string, size int)
	PageCommitted(target string, stats PageStats, cursor int64)
	Finished(target string, result *Result)
}

// noopObserver is a no-op implementation of Observer
type noopObserver struct{}

var _ Observer = noopObserver{}

func (noopObserver) StateChanged(string, State)             {}
func (noopObserver) SubBatchSplit(string, int)              {}
func (noopObserver) PageCommitted(string, PageStats, int64) {}
func (noopObserver) Finished(string, *Result)               {}

// MetricsObserver records generator activity in Prometheus instruments.
type MetricsObserver struct {
	m *metrics.Metrics
}

var _ Observer = (*MetricsObserver)(nil)

// NewMetricsObserver creates an observer backed by m.
func NewMetricsObserver(m *metrics.Metrics) *MetricsObserver {
	return &MetricsObserver{m: m}
}

func (o *MetricsObserver) StateChanged(string, State) {}

func (o *MetricsObserver) SubBatchSplit(target string, _ int) {
	o.m.EmbedOOMSplits.WithLabelValues(target).Inc()
}

func (o *MetricsObserver) PageCommitted(target string, stats PageStats, cursor int64) {
	o.m.EmbeddedRows.WithLabelValues(target).Add(float64(stats.Rows))
	o.m.EmbedPages.WithLabelValues(target, "committed").Inc()
	o.m.EmbedPageSeconds.WithLabelValues(target).Observe(stats.Duration.Seconds())
	o.m.EmbedCursor.WithLabelValues(target).Set(float64(cursor))
}

func (o *MetricsObserver) Finished(target string, result *Result) {
	if result.State == StateFailed {
		o.m.EmbedPages.WithLabelValues(target, "failed").Inc()
	}
}
