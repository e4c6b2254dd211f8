package health

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/mem"
)

// MemoryCheckerConfig configures the memory health checker.
type MemoryCheckerConfig struct {
	// WarningThreshold is the fraction of memory in use that triggers
	// Degraded. Must be in (0, 1). Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the fraction of memory in use that triggers
	// Unhealthy. Must be in (0, 1). Default: 0.95
	CriticalThreshold float64

	// MaxAlloc caps the process heap in bytes. When zero, the host's
	// used/total ratio is checked instead.
	MaxAlloc uint64
}

// MemoryChecker checks memory pressure. An in-process cache that grows
// without bound shows up here first.
type MemoryChecker struct {
	config  MemoryCheckerConfig
	virtual func() (*mem.VirtualMemoryStat, error)
}

// NewMemoryChecker creates a new memory health checker.
func NewMemoryChecker(config MemoryCheckerConfig) *MemoryChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = min(config.WarningThreshold+0.1, 0.99)
	}
	return &MemoryChecker{config: config, virtual: mem.VirtualMemory}
}

func (m *MemoryChecker) Name() string { return "memory" }

func (m *MemoryChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	details := map[string]any{
		"alloc_bytes": stats.Alloc,
		"heap_alloc":  stats.HeapAlloc,
		"num_gc":      stats.NumGC,
		"goroutines":  runtime.NumGoroutine(),
	}

	var ratio float64
	if m.config.MaxAlloc > 0 {
		ratio = float64(stats.Alloc) / float64(m.config.MaxAlloc)
		details["max_alloc"] = m.config.MaxAlloc
	} else {
		vm, err := m.virtual()
		if err != nil || vm.Total == 0 {
			return Healthy("host memory stats unavailable").WithDetails(details)
		}
		ratio = float64(vm.Used) / float64(vm.Total)
		details["host_total"] = vm.Total
		details["host_used"] = vm.Used
	}
	details["usage_percent"] = ratio * 100

	switch {
	case ratio >= m.config.CriticalThreshold:
		return Unhealthy(fmt.Sprintf("memory usage critical: %.1f%%", ratio*100), ErrCheckFailed).WithDetails(details)
	case ratio >= m.config.WarningThreshold:
		return Degraded(fmt.Sprintf("memory usage high: %.1f%%", ratio*100), nil).WithDetails(details)
	default:
		return Healthy(fmt.Sprintf("memory usage normal: %.1f%%", ratio*100)).WithDetails(details)
	}
}
