package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

// SystemSampler reads CPU and memory utilization through gopsutil and GPU
// utilization through nvidia-smi. After the first failed GPU query it stops
// trying and reports host figures only.
type SystemSampler struct {
	gpu    GPUQuery
	logger *slog.Logger

	mu          sync.Mutex
	gpuDisabled bool
}

// GPUQuery returns the utilization percent, memory percent and temperature
// of the first accelerator.
type GPUQuery func(ctx context.Context) (util, memPct, tempC float64, err error)

// NewSystemSampler returns a sampler that queries nvidia-smi for GPU figures.
func NewSystemSampler() *SystemSampler {
	return NewSystemSamplerWithGPU(NvidiaSMI)
}

// NewSystemSamplerWithGPU returns a sampler with a custom GPU query.
// A nil query disables GPU sampling.
func NewSystemSamplerWithGPU(gpu GPUQuery) *SystemSampler {
	return &SystemSampler{
		gpu:         gpu,
		gpuDisabled: gpu == nil,
		logger:      slog.Default().With("component", "monitor"),
	}
}

// Sample implements Sampler.
func (s *SystemSampler) Sample(ctx context.Context) (Snapshot, error) {
	cpuPct, err := cpu.PercentWithContext(ctx, 0, false)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read cpu: %w", err)
	}
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("read memory: %w", err)
	}

	snap := Snapshot{RAMPercent: vm.UsedPercent, SampledAt: time.Now()}
	if len(cpuPct) > 0 {
		snap.CPUPercent = cpuPct[0]
	}

	if s.gpuEnabled() {
		util, memPct, temp, err := s.gpu(ctx)
		if err != nil {
			s.disableGPU(err)
		} else {
			snap.GPUUtilPercent = &util
			snap.GPUMemPercent = &memPct
			snap.GPUTempC = &temp
		}
	}
	return snap, nil
}

func (s *SystemSampler) gpuEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.gpuDisabled
}

func (s *SystemSampler) disableGPU(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.gpuDisabled {
		s.gpuDisabled = true
		s.logger.Warn("GPU stats will not be monitored", "error", err)
	}
}

// NvidiaSMI queries the first GPU with nvidia-smi.
func NvidiaSMI(ctx context.Context) (util, memPct, tempC float64, err error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	out, err := exec.CommandContext(ctx, "nvidia-smi",
		"--query-gpu=utilization.gpu,memory.used,memory.total,temperature.gpu",
		"--format=csv,noheader,nounits").Output()
	if err != nil {
		return 0, 0, 0, fmt.Errorf("nvidia-smi: %w", err)
	}
	return ParseNvidiaSMI(string(out))
}

// ParseNvidiaSMI parses the first line of
// "utilization.gpu, memory.used, memory.total, temperature.gpu" CSV output.
func ParseNvidiaSMI(out string) (util, memPct, tempC float64, err error) {
	line, _, _ := strings.Cut(strings.TrimSpace(out), "\n")
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return 0, 0, 0, fmt.Errorf("nvidia-smi: unexpected output %q", line)
	}
	values := make([]float64, 4)
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("nvidia-smi: field %d: %w", i, err)
		}
		values[i] = v
	}
	if values[2] > 0 {
		memPct = 100 * values[1] / values[2]
	}
	return values[0], float64(int(memPct*100+0.5)) / 100, values[3], nil
}
