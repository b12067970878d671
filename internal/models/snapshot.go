package models

import (
	"fmt"
	"math"

	"go.uber.org/multierr"
)

// Clone returns a deep copy of the snapshot. Subscribers each receive their
// own clone so that no subscriber can observe another one's mutations.
func (s Snapshot) Clone() Snapshot {
	c := s
	c.CPU.Model = clonePtr(s.CPU.Model)
	c.CPU.Speed = clonePtr(s.CPU.Speed)
	c.CPU.Temperature = clonePtr(s.CPU.Temperature)

	if s.CPUCores != nil {
		c.CPUCores = make([]CPUCoreInfo, len(s.CPUCores))
		copy(c.CPUCores, s.CPUCores)
	}
	if s.GPU != nil {
		c.GPU = make([]GPUInfo, len(s.GPU))
		for i, g := range s.GPU {
			g.TemperatureGPU = clonePtr(g.TemperatureGPU)
			c.GPU[i] = g
		}
	}
	if s.Disk != nil {
		d := *s.Disk
		c.Disk = &d
	}
	if s.Network != nil {
		n := *s.Network
		n.Speed = clonePtr(s.Network.Speed)
		c.Network = &n
	}
	if s.TopProcesses != nil {
		c.TopProcesses = make([]ProcessMemoryInfo, len(s.TopProcesses))
		copy(c.TopProcesses, s.TopProcesses)
	}
	return c
}

// Validate reports every field that falls outside its documented range.
// A nil error means the snapshot honours all range invariants.
func (s Snapshot) Validate() error {
	var err error
	checkPct := func(name string, v float64) {
		if v < 0 || v > 100 || math.IsNaN(v) {
			err = multierr.Append(err, fmt.Errorf("%s out of range: %v", name, v))
		}
	}

	checkPct("memory.usedPercentage", s.Memory.UsedPercentage)
	if s.Memory.Used > s.Memory.Total {
		err = multierr.Append(err, fmt.Errorf("memory.used %d exceeds total %d", s.Memory.Used, s.Memory.Total))
	}
	checkPct("cpu.currentLoad", s.CPU.CurrentLoad)
	if s.CPU.Cores < 0 || s.CPU.Threads < 0 {
		err = multierr.Append(err, fmt.Errorf("negative cpu counts: cores=%d threads=%d", s.CPU.Cores, s.CPU.Threads))
	}
	if s.CPU.Speed != nil && *s.CPU.Speed < 0 {
		err = multierr.Append(err, fmt.Errorf("cpu.speed negative: %v", *s.CPU.Speed))
	}
	for _, c := range s.CPUCores {
		checkPct(fmt.Sprintf("cpuCores[%d].load", c.Core), c.Load)
	}
	for i, g := range s.GPU {
		checkPct(fmt.Sprintf("gpu[%d].utilizationGpu", i), g.UtilizationGPU)
		checkPct(fmt.Sprintf("gpu[%d].utilizationMemory", i), g.UtilizationMemory)
	}
	if s.Disk != nil {
		checkPct("disk.usedPercentage", s.Disk.UsedPercentage)
	}
	if s.Network != nil {
		if s.Network.TxSec < 0 || s.Network.RxSec < 0 {
			err = multierr.Append(err, fmt.Errorf("negative network rate: tx=%v rx=%v", s.Network.TxSec, s.Network.RxSec))
		}
	}
	for _, p := range s.TopProcesses {
		checkPct(fmt.Sprintf("topProcesses[%d].memPercentage", p.PID), p.MemPercentage)
	}
	if s.Timestamp <= 0 {
		err = multierr.Append(err, fmt.Errorf("timestamp not set"))
	}
	return err
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
