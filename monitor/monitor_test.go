package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_LatestBeforeFirstSample(t *testing.T) {
	m := New(SamplerFunc(func(context.Context) (Snapshot, error) {
		return Snapshot{}, nil
	}))
	_, ok := m.Latest(time.Minute)
	assert.False(t, ok)
	m.Stop()
}

func TestMonitor_PublishesSamples(t *testing.T) {
	var calls atomic.Int32
	seen := make(chan Snapshot, 16)
	m := New(SamplerFunc(func(context.Context) (Snapshot, error) {
		n := calls.Add(1)
		return Snapshot{CPUPercent: float64(n), RAMPercent: 50}, nil
	}), WithInterval(5*time.Millisecond), WithOnSample(func(s Snapshot) {
		select {
		case seen <- s:
		default:
		}
	}))
	m.Start()
	defer m.Stop()

	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("no sample published")
	}

	snap, ok := m.Latest(time.Minute)
	require.True(t, ok)
	assert.Positive(t, snap.CPUPercent)
	assert.False(t, snap.SampledAt.IsZero())
}

func TestMonitor_StaleSample(t *testing.T) {
	m := New(SamplerFunc(func(context.Context) (Snapshot, error) {
		return Snapshot{SampledAt: time.Now().Add(-time.Hour)}, nil
	}), WithInterval(time.Hour))
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return m.have
	}, 2*time.Second, 5*time.Millisecond)

	_, ok := m.Latest(time.Minute)
	assert.False(t, ok)
	_, ok = m.Latest(0)
	assert.True(t, ok)
	assert.Equal(t, 2*time.Hour, m.StaleAfter())
}

func TestMonitor_StopIsCooperativeAndIdempotent(t *testing.T) {
	var calls atomic.Int32
	m := New(SamplerFunc(func(context.Context) (Snapshot, error) {
		calls.Add(1)
		return Snapshot{}, errors.New("no stats")
	}), WithInterval(time.Millisecond))
	m.Start()
	m.Start()

	require.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, time.Millisecond)
	m.Stop()
	after := calls.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, after, calls.Load(), "no samples after Stop returns")
	m.Stop()

	_, ok := m.Latest(0)
	assert.False(t, ok, "failed samples are never published")
}

func TestSystemSampler_DisablesGPUAfterFailure(t *testing.T) {
	var gpuCalls int
	s := NewSystemSamplerWithGPU(func(context.Context) (float64, float64, float64, error) {
		gpuCalls++
		return 0, 0, 0, errors.New("no device")
	})

	snap, err := s.Sample(context.Background())
	require.NoError(t, err)
	assert.False(t, snap.HasGPU())
	_, err = s.Sample(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, gpuCalls)
}

func TestSystemSampler_WithGPU(t *testing.T) {
	s := NewSystemSamplerWithGPU(func(context.Context) (float64, float64, float64, error) {
		return 97, 71.5, 66, nil
	})
	snap, err := s.Sample(context.Background())
	require.NoError(t, err)
	require.True(t, snap.HasGPU())
	assert.Equal(t, 97.0, *snap.GPUUtilPercent)
	assert.Contains(t, snap.String(), "GPU: 97% | Mem: 71.5% | Temp: 66°C")
}

func TestParseNvidiaSMI(t *testing.T) {
	util, memPct, temp, err := ParseNvidiaSMI("88, 6144, 8192, 71\n")
	require.NoError(t, err)
	assert.Equal(t, 88.0, util)
	assert.Equal(t, 75.0, memPct)
	assert.Equal(t, 71.0, temp)

	_, _, _, err = ParseNvidiaSMI("garbage")
	assert.Error(t, err)
	_, _, _, err = ParseNvidiaSMI("a, b, c, d")
	assert.Error(t, err)
}

func TestSnapshotString_HostOnly(t *testing.T) {
	s := Snapshot{CPUPercent: 12, RAMPercent: 40.5}
	assert.Equal(t, "CPU: 12.0% | RAM: 40.5%", s.String())
}
