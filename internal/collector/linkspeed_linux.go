//go:build linux

package collector

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// linkSpeed reads the negotiated speed in Mbit/s from sysfs. Virtual and
// wireless interfaces report -1 or nothing; those return nil.
func linkSpeed(iface string) *float64 {
	data, err := os.ReadFile(filepath.Join("/sys/class/net", iface, "speed"))
	if err != nil {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil || v <= 0 {
		return nil
	}
	return &v
}
