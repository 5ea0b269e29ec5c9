package resources

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"

	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/common/metrics"
	"manhwa-recommender/internal/models"
)

// Fallback values reported when counters cannot be read.
const (
	FallbackCPU           = 70
	FallbackMemory        = 70
	FallbackProcessMemory = 70
)

var ErrNoCPUDelta = errors.New("cpu counters did not advance")

// Sampler produces resource snapshots.
type Sampler interface {
	Sample(ctx context.Context) models.ResourceSnapshot
}

type Config struct {
	SampleInterval time.Duration

	// Heavy-load thresholds.
	HeavyCPU           int
	HeavyMemory        int
	HeavyProcessMemory int
}

func DefaultConfig() *Config {
	return &Config{
		SampleInterval:     100 * time.Millisecond,
		HeavyCPU:           70,
		HeavyMemory:        80,
		HeavyProcessMemory: 75,
	}
}

// Monitor reads OS CPU/memory counters through gopsutil and process heap
// counters through the runtime.
type Monitor struct {
	config *Config
	logger logger.Logger
	now    func() time.Time

	cpuTimes      func(ctx context.Context) ([]cpu.TimesStat, error)
	virtualMemory func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	heapStats     func() (inUse, reserved uint64)
}

func NewMonitor(config *Config, log logger.Logger) *Monitor {
	if config == nil {
		config = DefaultConfig()
	}
	return &Monitor{
		config: config,
		logger: log.WithFields(map[string]interface{}{"component": "resource-monitor"}),
		now:    time.Now,
		cpuTimes: func(ctx context.Context) ([]cpu.TimesStat, error) {
			return cpu.TimesWithContext(ctx, true)
		},
		virtualMemory: mem.VirtualMemoryWithContext,
		heapStats: func() (uint64, uint64) {
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			return ms.HeapInuse, ms.HeapSys
		},
	}
}

// Sample never fails: any counter error yields the fallback snapshot.
func (m *Monitor) Sample(ctx context.Context) models.ResourceSnapshot {
	snap, err := m.sample(ctx)
	if err != nil {
		m.logger.Warn("resource sampling failed, using fallback", map[string]interface{}{
			"error": err,
		})
		snap = models.ResourceSnapshot{
			CPU:           FallbackCPU,
			Memory:        FallbackMemory,
			ProcessMemory: FallbackProcessMemory,
			Timestamp:     m.now(),
		}
	}

	metrics.SystemResourceUsage.WithLabelValues("cpu").Set(float64(snap.CPU))
	metrics.SystemResourceUsage.WithLabelValues("memory").Set(float64(snap.Memory))
	metrics.SystemResourceUsage.WithLabelValues("process_memory").Set(float64(snap.ProcessMemory))
	return snap
}

func (m *Monitor) sample(ctx context.Context) (models.ResourceSnapshot, error) {
	cpuPct, err := m.cpuUsage(ctx)
	if err != nil {
		return models.ResourceSnapshot{}, fmt.Errorf("cpu: %w", err)
	}

	vm, err := m.virtualMemory(ctx)
	if err != nil {
		return models.ResourceSnapshot{}, fmt.Errorf("memory: %w", err)
	}
	if vm == nil || vm.Total == 0 {
		return models.ResourceSnapshot{}, errors.New("memory: total is zero")
	}
	free := vm.Available
	if free == 0 {
		free = vm.Free
	}
	memPct := percent(float64(vm.Total-free), float64(vm.Total))

	inUse, reserved := m.heapStats()
	if reserved == 0 {
		return models.ResourceSnapshot{}, errors.New("process memory: heap size is zero")
	}
	procPct := percent(float64(inUse), float64(reserved))

	return models.ResourceSnapshot{
		CPU:           cpuPct,
		Memory:        memPct,
		ProcessMemory: procPct,
		Timestamp:     m.now(),
	}, nil
}

// cpuUsage compares two per-core snapshots taken SampleInterval apart.
func (m *Monitor) cpuUsage(ctx context.Context) (int, error) {
	start, err := m.cpuTimes(ctx)
	if err != nil {
		return 0, err
	}

	select {
	case <-time.After(m.config.SampleInterval):
	case <-ctx.Done():
		return 0, ctx.Err()
	}

	end, err := m.cpuTimes(ctx)
	if err != nil {
		return 0, err
	}
	if len(start) == 0 || len(start) != len(end) {
		return 0, fmt.Errorf("core count changed between samples (%d vs %d)", len(start), len(end))
	}

	var idleDelta, totalDelta float64
	for i := range start {
		idleDelta += end[i].Idle - start[i].Idle
		totalDelta += busyTotal(end[i]) - busyTotal(start[i])
	}
	if totalDelta <= 0 {
		return 0, ErrNoCPUDelta
	}

	return clampPercent(int(math.Floor(100 - idleDelta/totalDelta*100))), nil
}

func busyTotal(t cpu.TimesStat) float64 {
	return t.User + t.Nice + t.System + t.Idle + t.Irq
}

func percent(part, whole float64) int {
	return clampPercent(int(math.Floor(part / whole * 100)))
}

func clampPercent(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// IsUnderHeavyLoad reports whether any counter is above its heavy-load
// threshold.
func (m *Monitor) IsUnderHeavyLoad(ctx context.Context) bool {
	return m.IsHeavy(m.Sample(ctx))
}

func (m *Monitor) IsHeavy(snap models.ResourceSnapshot) bool {
	return snap.CPU > m.config.HeavyCPU ||
		snap.Memory > m.config.HeavyMemory ||
		snap.ProcessMemory > m.config.HeavyProcessMemory
}

// EstimateUsage projects the current snapshot onto a hosted free-tier
// budget and suggests a tier for it.
func (m *Monitor) EstimateUsage(ctx context.Context) models.UsageEstimate {
	return EstimateFrom(m.Sample(ctx))
}

func EstimateFrom(snap models.ResourceSnapshot) models.UsageEstimate {
	recommended := models.TierEnhanced
	switch {
	case snap.CPU > 75:
		recommended = models.TierLightweight
	case snap.CPU > 50:
		recommended = models.TierStandard
	}

	return models.UsageEstimate{
		CPU:                  snap.CPU,
		Memory:               snap.Memory,
		EstimatedCreditsUsed: float64(snap.CPU+snap.Memory) / 200 * 5,
		IsApproachingLimit:   snap.CPU > 60 || snap.Memory > 70,
		RecommendedTier:      recommended,
	}
}
