package collector

import (
	"context"

	"github.com/aegis-monitor/aegis/internal/platform"
)

// GPUCollector lists graphics adapters through the platform layer.
type GPUCollector struct {
	platform platform.Platform
}

// NewGPUCollector creates a GPU collector. A nil platform makes the
// collector unavailable.
func NewGPUCollector(p platform.Platform) *GPUCollector {
	return &GPUCollector{platform: p}
}

// Name returns the collector identifier.
func (c *GPUCollector) Name() string { return NameGPU }

// Collect returns []models.GPUInfo.
func (c *GPUCollector) Collect(ctx context.Context) (interface{}, error) {
	return c.platform.GPUs(ctx)
}

// IsAvailable reports whether a platform backend was supplied.
func (c *GPUCollector) IsAvailable() bool { return c.platform != nil }
