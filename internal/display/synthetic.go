package display

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/aegis-monitor/aegis/internal/models"
)

// Generator produces a snapshot when no collector is reachable.
type Generator interface {
	Generate(now time.Time) (models.Snapshot, error)
}

const (
	gib = 1024 * 1024 * 1024
	mib = 1024 * 1024

	syntheticMemTotal  = 16 * gib
	syntheticDiskTotal = 1024 * gib
	syntheticGPUMem    = 8 * gib
	syntheticCores     = 8
)

var syntheticProcesses = []struct {
	pid  int32
	name string
	mem  uint64
}{
	{1001, "chrome", 2000 * mib},
	{1002, "code", 1500 * mib},
	{1003, "node", 800 * mib},
	{1004, "dockerd", 600 * mib},
	{1005, "terminal", 400 * mib},
}

// Synthetic generates randomized but plausible snapshots for demo and
// disconnected use.
type Synthetic struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewSynthetic creates a generator. A nil source is seeded randomly.
func NewSynthetic(src rand.Source) *Synthetic {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Synthetic{rng: rand.New(src)}
}

// between returns a value in [lo, hi).
func (g *Synthetic) between(lo, hi float64) float64 {
	return lo + g.rng.Float64()*(hi-lo)
}

// Generate never fails.
func (g *Synthetic) Generate(now time.Time) (models.Snapshot, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	model := "Synthetic CPU"
	speed := g.between(3.2, 4.0)
	cpuTemp := g.between(45, 60)
	gpuTemp := g.between(50, 70)
	linkSpeed := 1000.0

	memUsed := uint64(g.between(0.4, 0.7) * syntheticMemTotal)
	gpuUsed := uint64(g.between(0.5, 0.75) * syntheticGPUMem)
	diskUsed := uint64(syntheticDiskTotal / 2)

	cores := make([]models.CPUCoreInfo, syntheticCores)
	for i := range cores {
		cores[i] = models.CPUCoreInfo{Core: i, Load: g.between(20, 80)}
	}

	procs := make([]models.ProcessMemoryInfo, len(syntheticProcesses))
	for i, p := range syntheticProcesses {
		procs[i] = models.ProcessMemoryInfo{
			PID:           p.pid,
			Name:          p.name,
			Mem:           p.mem,
			MemPercentage: models.Percent(p.mem, syntheticMemTotal),
		}
	}

	return models.Snapshot{
		Memory: models.MemoryInfo{
			Total:          syntheticMemTotal,
			Used:           memUsed,
			Free:           syntheticMemTotal - memUsed,
			Available:      syntheticMemTotal - memUsed,
			UsedPercentage: models.Percent(memUsed, syntheticMemTotal),
		},
		CPU: models.CPUInfo{
			CurrentLoad: g.between(30, 70),
			Cores:       syntheticCores,
			Threads:     2 * syntheticCores,
			Model:       &model,
			Speed:       &speed,
			Temperature: &cpuTemp,
		},
		CPUCores: cores,
		GPU: []models.GPUInfo{{
			Model:             "Synthetic GPU",
			Vendor:            "Synthetic",
			MemoryTotal:       syntheticGPUMem,
			MemoryUsed:        gpuUsed,
			MemoryFree:        syntheticGPUMem - gpuUsed,
			UtilizationGPU:    g.between(30, 70),
			UtilizationMemory: g.between(40, 70),
			TemperatureGPU:    &gpuTemp,
		}},
		Disk: &models.DiskInfo{
			Size:           syntheticDiskTotal,
			Used:           diskUsed,
			Available:      syntheticDiskTotal - diskUsed,
			UsedPercentage: models.Percent(diskUsed, syntheticDiskTotal),
			FS:             "ext4",
			Mount:          "/",
		},
		Network: &models.NetworkInfo{
			Interface:     "eth0",
			TxSec:         g.between(0, 5*mib),
			RxSec:         g.between(0, 10*mib),
			TotalSent:     uint64(2.5*gib + g.between(0, mib)),
			TotalReceived: uint64(8.3*gib + g.between(0, mib)),
			Speed:         &linkSpeed,
			IP4:           "192.168.1.100",
			IP6:           "fe80::1",
			MAC:           "aa:bb:cc:dd:ee:ff",
			OperState:     "up",
		},
		TopProcesses: procs,
		Timestamp:    now.UnixMilli(),
	}, nil
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(now time.Time) (models.Snapshot, error)

// Generate calls f.
func (f GeneratorFunc) Generate(now time.Time) (models.Snapshot, error) { return f(now) }
