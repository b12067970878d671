package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/aegis-monitor/aegis/internal/models"
	"github.com/aegis-monitor/aegis/internal/platform"
)

// DefaultTimeout bounds a single gather across all collectors.
const DefaultTimeout = 5 * time.Second

// Sampler turns one concurrent registry gather into a Snapshot.
// Snapshot never fails: a failed required collector yields the zeroed
// fallback snapshot and an error log entry.
type Sampler struct {
	registry *Registry
	clock    clock.PassiveClock
	timeout  time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	lastTS int64
}

// SamplerOption configures a Sampler.
type SamplerOption func(*Sampler)

// WithClock sets the clock used for timestamps.
func WithClock(c clock.PassiveClock) SamplerOption {
	return func(s *Sampler) { s.clock = c }
}

// WithTimeout sets the per-gather timeout.
func WithTimeout(d time.Duration) SamplerOption {
	return func(s *Sampler) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewSampler creates a Sampler over the given registry.
func NewSampler(registry *Registry, logger *zap.Logger, opts ...SamplerOption) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Sampler{
		registry: registry,
		clock:    clock.RealClock{},
		timeout:  DefaultTimeout,
		logger:   logger.Named("sampler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot gathers all registered collectors concurrently and assembles the
// result. Optional metrics that could not be read are left out.
func (s *Sampler) Snapshot(ctx context.Context) models.Snapshot {
	gatherCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	results, err := s.registry.CollectAll(gatherCtx)
	if err != nil {
		s.logger.Error("Failed to gather system metrics, using fallback snapshot", zap.Error(err))
		return models.ZeroSnapshot(s.stamp())
	}

	snapshot := assembleSnapshot(results)
	snapshot.Timestamp = s.stamp().UnixMilli()
	return snapshot
}

// stamp returns the capture time, advanced by a millisecond when needed so
// timestamps strictly increase across calls.
func (s *Sampler) stamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	ms := now.UnixMilli()
	if ms <= s.lastTS {
		ms = s.lastTS + 1
		now = time.UnixMilli(ms)
	}
	s.lastTS = ms
	return now
}

// assembleSnapshot maps collector results into a unified Snapshot.
func assembleSnapshot(results map[string]interface{}) models.Snapshot {
	var snapshot models.Snapshot

	// Memory
	if data, ok := results[NameMemory]; ok {
		if mem, ok := data.(models.MemoryInfo); ok {
			snapshot.Memory = mem
		}
	}

	// CPU
	if data, ok := results[NameCPU]; ok {
		if cpu, ok := data.(models.CPUInfo); ok {
			snapshot.CPU = cpu
		}
	}
	if data, ok := results[NameTemperature]; ok {
		if temp, ok := data.(float64); ok {
			snapshot.CPU.Temperature = &temp
		}
	}
	if data, ok := results[NameCPUCores]; ok {
		if cores, ok := data.([]models.CPUCoreInfo); ok && len(cores) > 0 {
			snapshot.CPUCores = cores
		}
	}

	// GPU
	if data, ok := results[NameGPU]; ok {
		if gpus, ok := data.([]models.GPUInfo); ok && len(gpus) > 0 {
			snapshot.GPU = gpus
		}
	}

	// Disk
	if data, ok := results[NameDisk]; ok {
		if d, ok := data.(*models.DiskInfo); ok && d != nil {
			snapshot.Disk = d
		}
	}

	// Network
	if data, ok := results[NameNetwork]; ok {
		if n, ok := data.(*models.NetworkInfo); ok && n != nil {
			snapshot.Network = n
		}
	}

	// Processes
	if data, ok := results[NameProcesses]; ok {
		if procs, ok := data.([]models.ProcessMemoryInfo); ok && len(procs) > 0 {
			snapshot.TopProcesses = procs
		}
	}

	return snapshot
}

// Options selects the collectors registered by NewDefaultRegistry.
type Options struct {
	TopProcesses int
	Temperature  bool
	GPU          bool
	Platform     platform.Platform
	Clock        clock.PassiveClock
}

// NewDefaultRegistry registers the gopsutil collectors. Memory, CPU load and
// the primary disk are required; everything else is optional.
func NewDefaultRegistry(opts Options, logger *zap.Logger) *Registry {
	registry := NewRegistry(logger)
	registry.RegisterRequired(NewMemoryCollector())
	registry.RegisterRequired(NewCPUCollector())
	registry.RegisterRequired(NewDiskCollector(logger))

	registry.Register(NewCPUCoresCollector())
	registry.Register(NewNetworkCollector(opts.Clock))
	registry.Register(NewProcessCollector(opts.TopProcesses))
	if opts.Temperature {
		registry.Register(NewTemperatureCollector(nil, logger))
	}
	if opts.GPU {
		registry.Register(NewGPUCollector(opts.Platform))
	}
	return registry
}
