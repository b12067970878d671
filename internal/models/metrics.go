// Package models defines the telemetry records that flow from the collector
// through the bridge to the display. Field names are serialized in the
// camelCase form the dashboard frontends expect.
package models

import (
	"math"
	"time"
)

// Snapshot is a single point-in-time collection of system metrics.
// A Snapshot is never mutated after it has been assembled; consumers that
// need to modify one must work on a Clone.
type Snapshot struct {
	Memory       MemoryInfo          `json:"memory"`
	CPU          CPUInfo             `json:"cpu"`
	CPUCores     []CPUCoreInfo       `json:"cpuCores,omitempty"`
	GPU          []GPUInfo           `json:"gpu,omitempty"`
	Disk         *DiskInfo           `json:"disk,omitempty"`
	Network      *NetworkInfo        `json:"network,omitempty"`
	TopProcesses []ProcessMemoryInfo `json:"topProcesses,omitempty"`
	Timestamp    int64               `json:"timestamp"` // unix milliseconds
}

// MemoryInfo describes RAM and swap usage in bytes.
type MemoryInfo struct {
	Total          uint64  `json:"total"`
	Used           uint64  `json:"used"`
	Free           uint64  `json:"free"`
	UsedPercentage float64 `json:"usedPercentage"`
	Available      uint64  `json:"available"`
	SwapTotal      uint64  `json:"swapTotal"`
	SwapUsed       uint64  `json:"swapUsed"`
	SwapFree       uint64  `json:"swapFree"`
}

// CPUInfo describes aggregate processor load. Nil pointers mean the value
// could not be obtained on this host.
type CPUInfo struct {
	CurrentLoad float64  `json:"currentLoad"`
	Cores       int      `json:"cores"`
	Threads     int      `json:"threads"`
	Model       *string  `json:"model,omitempty"`
	Speed       *float64 `json:"speed,omitempty"` // GHz
	Temperature *float64 `json:"temperature,omitempty"`
}

// CPUCoreInfo is the load of one logical core.
type CPUCoreInfo struct {
	Core int     `json:"core"`
	Load float64 `json:"load"`
}

// GPUInfo describes one graphics adapter.
type GPUInfo struct {
	Model             string   `json:"model"`
	Vendor            string   `json:"vendor"`
	MemoryTotal       uint64   `json:"memoryTotal"`
	MemoryUsed        uint64   `json:"memoryUsed"`
	MemoryFree        uint64   `json:"memoryFree"`
	UtilizationGPU    float64  `json:"utilizationGpu"`
	UtilizationMemory float64  `json:"utilizationMemory"`
	TemperatureGPU    *float64 `json:"temperatureGpu,omitempty"`
}

// DiskInfo represents the primary volume: the first one the host enumerates.
type DiskInfo struct {
	Size           uint64  `json:"size"`
	Used           uint64  `json:"used"`
	Available      uint64  `json:"available"`
	UsedPercentage float64 `json:"usedPercentage"`
	FS             string  `json:"fs"`
	Mount          string  `json:"mount"`
}

// NetworkInfo represents the primary network interface.
type NetworkInfo struct {
	Interface     string   `json:"interface"`
	TxSec         float64  `json:"txSec"`
	RxSec         float64  `json:"rxSec"`
	TotalSent     uint64   `json:"totalSent"`
	TotalReceived uint64   `json:"totalReceived"`
	Speed         *float64 `json:"speed,omitempty"` // Mbit/s
	IP4           string   `json:"ip4,omitempty"`
	IP6           string   `json:"ip6,omitempty"`
	MAC           string   `json:"mac,omitempty"`
	OperState     string   `json:"operstate"`
}

// ProcessMemoryInfo is one entry of the top-processes list.
type ProcessMemoryInfo struct {
	PID           int32   `json:"pid"`
	Name          string  `json:"name"`
	Mem           uint64  `json:"mem"` // resident bytes
	MemPercentage float64 `json:"memPercentage"`
}

// HistoricalData is one chart point kept by the display.
type HistoricalData struct {
	Timestamp  int64    `json:"timestamp"`
	CPULoad    float64  `json:"cpuLoad"`
	MemoryUsed float64  `json:"memoryUsed"` // percentage
	GPULoad    *float64 `json:"gpuLoad,omitempty"`
}

// ZeroSnapshot returns the fallback snapshot used when a gather fails:
// every core numeric field is zero and optional sections are absent.
func ZeroSnapshot(ts time.Time) Snapshot {
	return Snapshot{Timestamp: ts.UnixMilli()}
}

// Percent returns part/total*100 clamped to [0,100]. A zero total yields 0.
func Percent(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return ClampPercent(float64(part) / float64(total) * 100)
}

// ClampPercent bounds p to [0,100]. NaN becomes 0.
func ClampPercent(p float64) float64 {
	switch {
	case math.IsNaN(p):
		return 0
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// Point derives a chart point from the snapshot.
func (s Snapshot) Point() HistoricalData {
	p := HistoricalData{
		Timestamp:  s.Timestamp,
		CPULoad:    s.CPU.CurrentLoad,
		MemoryUsed: s.Memory.UsedPercentage,
	}
	if len(s.GPU) > 0 {
		load := s.GPU[0].UtilizationGPU
		p.GPULoad = &load
	}
	return p
}
