// Top N processes collector: gathers the processes holding the most memory.
// Uses gopsutil for cross-platform process listing.
package collector

import (
	"context"
	"sort"

	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/aegis-monitor/aegis/internal/models"
)

// ProcessCollector collects the top N processes by resident memory.
type ProcessCollector struct {
	topN int
}

// NewProcessCollector creates a new process collector that returns the top N
// processes sorted by resident memory descending.
func NewProcessCollector(topN int) *ProcessCollector {
	return &ProcessCollector{topN: topN}
}

// Name returns the collector identifier.
func (c *ProcessCollector) Name() string { return NameProcesses }

// Collect gathers the top N processes as []models.ProcessMemoryInfo.
// Individual process errors are silently skipped to avoid failing the
// entire collection due to a single inaccessible process.
func (c *ProcessCollector) Collect(ctx context.Context) (interface{}, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return nil, err
	}
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	infos := make([]models.ProcessMemoryInfo, 0, len(procs))
	for _, p := range procs {
		mi, err := p.MemoryInfoWithContext(ctx)
		if err != nil || mi == nil {
			continue
		}
		name, _ := p.NameWithContext(ctx)
		infos = append(infos, models.ProcessMemoryInfo{
			PID:           p.Pid,
			Name:          name,
			Mem:           mi.RSS,
			MemPercentage: models.Percent(mi.RSS, vm.Total),
		})
	}

	return topByMemory(infos, c.topN), nil
}

// IsAvailable reports whether a positive process count was configured.
func (c *ProcessCollector) IsAvailable() bool { return c.topN > 0 }

// topByMemory sorts by resident memory descending (PID ascending on ties)
// and truncates to n entries.
func topByMemory(infos []models.ProcessMemoryInfo, n int) []models.ProcessMemoryInfo {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].Mem != infos[j].Mem {
			return infos[i].Mem > infos[j].Mem
		}
		return infos[i].PID < infos[j].PID
	})
	if len(infos) > n {
		infos = infos[:n]
	}
	return infos
}
