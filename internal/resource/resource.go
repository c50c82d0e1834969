// Package resource samples process and host resource usage for the outcome
// snapshot attached to every finished run.
package resource

import (
	"os"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/process"

	"github.com/SpaceWJK/epic7-monitor/internal/monitor"
)

// Snapshot samples memory, disk, and CPU at the moment of the call. Sampling
// is best-effort: a probe that fails leaves its field zero rather than
// failing the run that asked for it.
func Snapshot() monitor.ResourceSnapshot {
	var snap monitor.ResourceSnapshot

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mem, err := proc.MemoryInfo(); err == nil && mem != nil {
			snap.MemoryRSSBytes = mem.RSS
		}
		if pct, err := proc.MemoryPercent(); err == nil {
			snap.MemoryPercent = float64(pct)
		}
	}

	if usage, err := disk.Usage("/"); err == nil && usage != nil {
		snap.DiskUsedPercent = usage.UsedPercent
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		snap.CPUPercent = percents[0]
	}

	return snap
}
