// Package monitor logs a periodic one-line snapshot of host health: system
// CPU, memory pressure, and free space on the paths the pipeline writes to.
// A box that fills its scratch disk mid-encode fails in confusing ways; the
// snapshot puts the trend in the log long before that happens.
package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/backmassage/davpress/internal/display"
)

// Logger is the logging surface the monitor needs. *logging.Logger
// satisfies it.
type Logger interface {
	Info(format string, args ...interface{})
}

// Monitor samples host health on a fixed interval.
type Monitor struct {
	Interval time.Duration
	Paths    []string // mount points worth watching (scratch, destination)
	Log      Logger

	// snap overrides the real sampler in tests.
	snap func(ctx context.Context) string
}

// Run blocks, logging one snapshot per interval until ctx ends. A
// non-positive interval disables the monitor and returns immediately.
func (m *Monitor) Run(ctx context.Context) {
	if m.Interval <= 0 {
		return
	}
	t := time.NewTicker(m.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			m.Emit(ctx)
		}
	}
}

// Emit logs a single snapshot immediately. Sampling failures drop the
// affected figure rather than the whole line.
func (m *Monitor) Emit(ctx context.Context) {
	snap := m.snap
	if snap == nil {
		snap = m.snapshot
	}
	m.Log.Info("%s", snap(ctx))
}

func (m *Monitor) snapshot(ctx context.Context) string {
	var cpuPct, memPct float64
	if pcts, err := cpu.PercentWithContext(ctx, time.Second, false); err == nil && len(pcts) > 0 {
		cpuPct = pcts[0]
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		memPct = vm.UsedPercent
	}

	line := fmt.Sprintf("system: CPU %.0f%%, memory %.0f%%", cpuPct, memPct)
	for _, p := range m.Paths {
		if du, err := disk.UsageWithContext(ctx, p); err == nil {
			line += fmt.Sprintf(", %s free on %s", display.FormatBytes(int64(du.Free)), p)
		}
	}
	return line
}
