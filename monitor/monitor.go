// Package monitor samples host and accelerator utilization in the
// background while long embedding jobs run.
//
// The monitor is advisory. The embedding loop reads the latest snapshot with
// a staleness bound and never waits on a sample.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// DefaultInterval is the sampling period used when none is configured.
const DefaultInterval = 30 * time.Second

// Snapshot is one utilization sample. GPU fields are nil when no GPU could
// be queried.
type Snapshot struct {
	CPUPercent     float64
	RAMPercent     float64
	GPUUtilPercent *float64
	GPUMemPercent  *float64
	GPUTempC       *float64
	SampledAt      time.Time
}

// HasGPU reports whether the snapshot carries accelerator readings.
func (s Snapshot) HasGPU() bool {
	return s.GPUUtilPercent != nil
}

// String renders the snapshot as a single line, e.g.
// "CPU: 12.0% | RAM: 40.5% | GPU: 98% | Mem: 71.2% | Temp: 66°C".
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CPU: %.1f%% | RAM: %.1f%%", s.CPUPercent, s.RAMPercent)
	if s.HasGPU() {
		fmt.Fprintf(&b, " | GPU: %.0f%%", *s.GPUUtilPercent)
		if s.GPUMemPercent != nil {
			fmt.Fprintf(&b, " | Mem: %.1f%%", *s.GPUMemPercent)
		}
		if s.GPUTempC != nil {
			fmt.Fprintf(&b, " | Temp: %.0f°C", *s.GPUTempC)
		}
	}
	return b.String()
}

// Sampler takes one utilization reading.
type Sampler interface {
	Sample(ctx context.Context) (Snapshot, error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context) (Snapshot, error)

// Sample calls f.
func (f SamplerFunc) Sample(ctx context.Context) (Snapshot, error) { return f(ctx) }

// Monitor runs a Sampler on a ticker and publishes the latest snapshot.
type Monitor struct {
	sampler  Sampler
	interval time.Duration
	onSample func(Snapshot)
	logger   *slog.Logger

	mu     sync.RWMutex
	latest Snapshot
	have   bool

	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// Option customizes a Monitor.
type Option func(*Monitor)

// WithInterval sets the sampling period.
func WithInterval(interval time.Duration) Option {
	return func(m *Monitor) {
		if interval > 0 {
			m.interval = interval
		}
	}
}

// WithOnSample registers a callback invoked from the monitor goroutine after
// every successful sample. It must not block.
func WithOnSample(fn func(Snapshot)) Option {
	return func(m *Monitor) { m.onSample = fn }
}

// New creates a stopped monitor.
func New(sampler Sampler, opts ...Option) *Monitor {
	m := &Monitor{
		sampler:  sampler,
		interval: DefaultInterval,
		logger:   slog.Default().With("component", "monitor"),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the sampling goroutine. It takes one sample immediately.
// Calling Start more than once has no effect.
func (m *Monitor) Start() {
	m.startOnce.Do(func() {
		m.wg.Add(1)
		go m.run()
	})
}

// Stop signals the goroutine and waits for it to exit. It is safe to call
// Stop more than once, and before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
	m.wg.Wait()
}

// Latest returns the most recent snapshot. ok is false when no sample exists
// yet or the newest sample is older than maxAge.
func (m *Monitor) Latest(maxAge time.Duration) (Snapshot, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.have {
		return Snapshot{}, false
	}
	if maxAge > 0 && time.Since(m.latest.SampledAt) > maxAge {
		return m.latest, false
	}
	return m.latest, true
}

// StaleAfter is the staleness bound callers should pass to Latest: two
// sampling periods.
func (m *Monitor) StaleAfter() time.Duration {
	return 2 * m.interval
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	m.sampleOnce(ctx)
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.sampleOnce(ctx)
		}
	}
}

func (m *Monitor) sampleOnce(ctx context.Context) {
	snap, err := m.sampler.Sample(ctx)
	if err != nil {
		if ctx.Err() == nil {
			m.logger.Warn("sampling failed", "error", err)
		}
		return
	}
	if snap.SampledAt.IsZero() {
		snap.SampledAt = time.Now()
	}

	m.mu.Lock()
	m.latest = snap
	m.have = true
	m.mu.Unlock()

	m.logger.Info("stats", "sample", snap.String())
	if m.onSample != nil {
		m.onSample(snap)
	}
}
