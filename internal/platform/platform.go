// Package platform provides an OS abstraction layer for hardware queries
// that gopsutil does not cover, currently the graphics adapters.
package platform

import (
	"context"

	"github.com/aegis-monitor/aegis/internal/models"
)

// Platform provides OS-specific functionality beyond what gopsutil offers.
type Platform interface {
	// GPUs lists the graphics adapters with their current utilization and,
	// where the driver reports it, temperature.
	// Returns an empty slice if no supported adapter is present.
	GPUs(ctx context.Context) ([]models.GPUInfo, error)

	// Name returns the platform name (nvidia-smi, stub).
	Name() string
}
