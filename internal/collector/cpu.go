// CPU load collector: gathers aggregate load, core counts and model info.
// Uses gopsutil for cross-platform CPU metrics.
package collector

import (
	"context"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"

	"github.com/aegis-monitor/aegis/internal/models"
)

// firstSampleWindow is how long the first load reading measures over.
const firstSampleWindow = 250 * time.Millisecond

type percentFunc func(ctx context.Context, interval time.Duration, percpu bool) ([]float64, error)

// loadReader reports CPU load since its previous call. gopsutil keeps the
// zero-interval baseline per process, so the first call resets it and waits
// for window before reading.
type loadReader struct {
	percent percentFunc
	percpu  bool
	window  time.Duration

	mu     sync.Mutex
	primed bool
}

func newLoadReader(percpu bool) *loadReader {
	return &loadReader{percent: cpu.PercentWithContext, percpu: percpu, window: firstSampleWindow}
}

func (r *loadReader) read(ctx context.Context) ([]float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.primed {
		if _, err := r.percent(ctx, 0, r.percpu); err != nil {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.window):
		}
		r.primed = true
	}
	return r.percent(ctx, 0, r.percpu)
}

// CPUCollector collects aggregate CPU metrics.
type CPUCollector struct {
	load  *loadReader
	once  sync.Once
	model *string
	speed *float64
}

// NewCPUCollector creates a new CPU collector.
func NewCPUCollector() *CPUCollector {
	return &CPUCollector{load: newLoadReader(false)}
}

// Name returns the collector identifier.
func (c *CPUCollector) Name() string { return NameCPU }

// Collect gathers the aggregate load since the previous call together with
// the core and thread counts. Only the first call blocks, for
// firstSampleWindow.
func (c *CPUCollector) Collect(ctx context.Context) (interface{}, error) {
	overall, err := c.load.read(ctx)
	if err != nil {
		return nil, err
	}

	threads, err := cpu.CountsWithContext(ctx, true)
	if err != nil || threads <= 0 {
		threads = runtime.NumCPU()
	}
	cores, err := cpu.CountsWithContext(ctx, false)
	if err != nil || cores <= 0 {
		cores = threads
	}

	// Model and clock speed rarely change; read them once.
	c.once.Do(func() { c.model, c.speed = readCPUModel(ctx) })

	info := models.CPUInfo{
		Cores:   cores,
		Threads: threads,
		Model:   c.model,
		Speed:   c.speed,
	}
	if len(overall) > 0 {
		info.CurrentLoad = models.ClampPercent(overall[0])
	}
	return info, nil
}

// IsAvailable returns true; CPU metrics are available on all platforms.
func (c *CPUCollector) IsAvailable() bool { return true }

func readCPUModel(ctx context.Context) (*string, *float64) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil || len(infos) == 0 {
		return nil, nil
	}
	var model *string
	if name := strings.TrimSpace(infos[0].ModelName); name != "" {
		model = &name
	}
	var speed *float64
	if infos[0].Mhz > 0 {
		ghz := infos[0].Mhz / 1000
		speed = &ghz
	}
	return model, speed
}

// CPUCoresCollector collects per-core load.
type CPUCoresCollector struct {
	load *loadReader
}

// NewCPUCoresCollector creates a new per-core collector.
func NewCPUCoresCollector() *CPUCoresCollector {
	return &CPUCoresCollector{load: newLoadReader(true)}
}

// Name returns the collector identifier.
func (c *CPUCoresCollector) Name() string { return NameCPUCores }

// Collect returns one entry per logical core. Core indices follow the order
// gopsutil reports, which is stable for the lifetime of the host.
func (c *CPUCoresCollector) Collect(ctx context.Context) (interface{}, error) {
	loads, err := c.load.read(ctx)
	if err != nil {
		return nil, err
	}
	cores := make([]models.CPUCoreInfo, len(loads))
	for i, l := range loads {
		cores[i] = models.CPUCoreInfo{Core: i, Load: models.ClampPercent(l)}
	}
	return cores, nil
}

// IsAvailable returns true; per-core metrics are available on all platforms.
func (c *CPUCoresCollector) IsAvailable() bool { return true }
