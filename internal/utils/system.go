package utils

import (
	"context"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// SystemStats is a point-in-time view of host and process resources.
type SystemStats struct {
	MemoryTotal       uint64  `json:"memory_total"`
	MemoryUsed        uint64  `json:"memory_used"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
	CPUPercent        float64 `json:"cpu_percent"`
	ProcessRSS        uint64  `json:"process_rss"`
	Goroutines        int     `json:"goroutines"`
}

// GetSystemMemoryUsage returns total and used host memory in bytes and the used percentage.
func GetSystemMemoryUsage(ctx context.Context) (total, used uint64, percent float64, err error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, 0, err
	}
	return vm.Total, vm.Used, vm.UsedPercent, nil
}

// GetSystemCPUUsage samples overall CPU usage over interval. A zero interval
// compares against the previous call.
func GetSystemCPUUsage(ctx context.Context, interval time.Duration) (float64, error) {
	percents, err := cpu.PercentWithContext(ctx, interval, false)
	if err != nil {
		return 0, err
	}
	if len(percents) == 0 {
		return 0, nil
	}
	return percents[0], nil
}

// GetProcessRSS returns the resident set size of the current process.
func GetProcessRSS(ctx context.Context) (uint64, error) {
	p, err := process.NewProcessWithContext(ctx, int32(os.Getpid()))
	if err != nil {
		return 0, err
	}
	info, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return info.RSS, nil
}

// CollectSystemStats gathers what it can; individual probe failures leave zero values.
func CollectSystemStats(ctx context.Context) SystemStats {
	stats := SystemStats{Goroutines: runtime.NumGoroutine()}
	if total, used, pct, err := GetSystemMemoryUsage(ctx); err == nil {
		stats.MemoryTotal, stats.MemoryUsed, stats.MemoryUsedPercent = total, used, pct
	}
	if pct, err := GetSystemCPUUsage(ctx, 0); err == nil {
		stats.CPUPercent = pct
	}
	if rss, err := GetProcessRSS(ctx); err == nil {
		stats.ProcessRSS = rss
	}
	return stats
}
