//go:build !linux

package collector

// linkSpeed is not available outside Linux.
func linkSpeed(string) *float64 { return nil }
