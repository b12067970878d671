// CPU temperature collector: gathers thermal sensor readings.
// Uses gopsutil host sensors and reports the hottest matching CPU sensor
// to represent the worst-case thermal state. Many virtualized hosts expose
// no sensors at all; the collector then reports ErrNoSensor and the
// snapshot simply omits the temperature.
package collector

import (
	"context"
	"errors"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
	"go.uber.org/zap"
)

// ErrNoSensor is returned when no plausible CPU temperature reading exists.
var ErrNoSensor = errors.New("no cpu temperature sensor")

// Sensor name substrings used to identify CPU temperature sensors across platforms.
// Linux:  coretemp_core_0_input, k10temp_tctl_input, acpitz_temp1_input, zenpower_tctl_input
// macOS:  TC0P (CPU proximity), TC0D (CPU die), TCXC (CPU core)
// Windows: CPU Package, CPU Core #0, etc.
var cpuSensorKeys = []string{
	"cpu", "core", "package",
	"tctl", "tdie", "k10temp", "coretemp",
	"tc0p", "tc0d", "tcxc",
	"acpitz", "zenpower",
}

// minValidTemp is the minimum temperature (°C) considered valid.
const minValidTemp = 0.0

// maxValidTemp is the maximum temperature (°C) considered valid.
// Readings above this are likely sensor errors.
const maxValidTemp = 150.0

// SensorReader returns raw sensor readings keyed by sensor name.
type SensorReader func(ctx context.Context) ([]host.TemperatureStat, error)

// TemperatureCollector collects the CPU temperature.
type TemperatureCollector struct {
	read   SensorReader
	logger *zap.Logger
}

// NewTemperatureCollector creates a new temperature collector.
// A nil reader uses gopsutil's host sensors.
func NewTemperatureCollector(read SensorReader, logger *zap.Logger) *TemperatureCollector {
	if read == nil {
		read = host.SensorsTemperaturesWithContext
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TemperatureCollector{read: read, logger: logger}
}

// Name returns the collector identifier.
func (c *TemperatureCollector) Name() string { return NameTemperature }

// Collect returns the hottest CPU sensor reading in °C as a float64.
// Partial sensor errors are tolerated as long as one valid reading exists.
func (c *TemperatureCollector) Collect(ctx context.Context) (interface{}, error) {
	temps, err := c.read(ctx)
	if err != nil && len(temps) == 0 {
		return nil, err
	}

	var hottest float64
	found := false
	for _, t := range temps {
		if !isValidTemperature(t.Temperature) {
			continue
		}
		if !matchesSensor(strings.ToLower(t.SensorKey), cpuSensorKeys) {
			continue
		}
		if !found || t.Temperature > hottest {
			hottest = t.Temperature
			found = true
		}
	}

	if !found {
		return nil, ErrNoSensor
	}
	c.logger.Debug("CPU temperature collected", zap.Float64("temp_c", hottest))
	return hottest, nil
}

// IsAvailable returns true. Sensor failures are soft and only drop the field.
func (c *TemperatureCollector) IsAvailable() bool { return true }

// matchesSensor checks if the sensor name contains any of the given key substrings.
func matchesSensor(name string, keys []string) bool {
	for _, key := range keys {
		if strings.Contains(name, key) {
			return true
		}
	}
	return false
}

// isValidTemperature returns true if the temperature is within a plausible range.
func isValidTemperature(temp float64) bool {
	return temp > minValidTemp && temp <= maxValidTemp
}
