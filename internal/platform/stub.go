//go:build darwin

// Stub Platform implementation for macOS, where nvidia-smi is not shipped.
package platform

import (
	"context"

	"github.com/aegis-monitor/aegis/internal/models"
)

// StubPlatform is a no-op Platform.
type StubPlatform struct{}

// New creates a stub platform instance.
func New() Platform {
	return &StubPlatform{}
}

// Name returns the platform identifier.
func (p *StubPlatform) Name() string { return "stub" }

// GPUs returns no adapters.
func (p *StubPlatform) GPUs(context.Context) ([]models.GPUInfo, error) {
	return nil, nil
}
