//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On macOS and Linux the collector runs as a foreground process (or under
// systemd/launchd); the Windows service wrapper is not needed.
package service

import (
	"context"

	"go.uber.org/zap"
)

// CollectorService is a no-op service wrapper for non-Windows platforms.
type CollectorService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context)
}

// New creates a stub service wrapper for non-Windows platforms.
func New(logger *zap.Logger, startFn func(ctx context.Context)) *CollectorService {
	return &CollectorService{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the collector directly.
func (s *CollectorService) Run() error {
	s.startFn(context.Background())
	return nil
}
