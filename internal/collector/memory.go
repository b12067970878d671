// RAM usage collector: gathers physical memory and swap usage.
// Uses gopsutil for cross-platform memory metrics.
package collector

import (
	"context"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aegis-monitor/aegis/internal/models"
)

// MemoryCollector collects RAM and swap usage metrics.
type MemoryCollector struct{}

// NewMemoryCollector creates a new memory collector.
func NewMemoryCollector() *MemoryCollector {
	return &MemoryCollector{}
}

// Name returns the collector identifier.
func (c *MemoryCollector) Name() string { return NameMemory }

// Collect gathers memory usage. The used percentage is derived from used and
// total rather than taken from the OS. Swap is reported as zero when the
// host does not expose it.
func (c *MemoryCollector) Collect(ctx context.Context) (interface{}, error) {
	v, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	info := NewMemoryInfo(v.Total, v.Used, v.Free, v.Available)

	if s, err := mem.SwapMemoryWithContext(ctx); err == nil {
		info.SwapTotal = s.Total
		info.SwapUsed = s.Used
		info.SwapFree = s.Free
	}
	return info, nil
}

// IsAvailable returns true; memory metrics are available on all platforms.
func (c *MemoryCollector) IsAvailable() bool { return true }

// NewMemoryInfo builds a MemoryInfo with the derived used percentage.
func NewMemoryInfo(total, used, free, available uint64) models.MemoryInfo {
	return models.MemoryInfo{
		Total:          total,
		Used:           used,
		Free:           free,
		Available:      available,
		UsedPercentage: models.Percent(used, total),
	}
}
