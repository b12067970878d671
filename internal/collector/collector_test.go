package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/aegis-monitor/aegis/internal/models"
)

// fakeCollector returns a fixed result or error.
type fakeCollector struct {
	name      string
	data      interface{}
	err       error
	panics    bool
	available bool
	delay     time.Duration
}

func (f *fakeCollector) Name() string { return f.name }

func (f *fakeCollector) Collect(ctx context.Context) (interface{}, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.panics {
		panic("sensor driver crashed")
	}
	return f.data, f.err
}

func (f *fakeCollector) IsAvailable() bool { return f.available }

func okCollector(name string, data interface{}) *fakeCollector {
	return &fakeCollector{name: name, data: data, available: true}
}

func failingCollector(name string) *fakeCollector {
	return &fakeCollector{name: name, err: errors.New(name + " source failed"), available: true}
}

func healthyRegistry() *Registry {
	r := NewRegistry(nil)
	r.RegisterRequired(okCollector(NameMemory, NewMemoryInfo(17179869184, 8589934592, 8589934592, 8589934592)))
	r.RegisterRequired(okCollector(NameCPU, models.CPUInfo{CurrentLoad: 25, Cores: 4, Threads: 8}))
	r.RegisterRequired(okCollector(NameDisk, primaryDisk("/", "ext4", 1000, 250, 750)))
	return r
}

func TestRegistry_SkipsUnavailable(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeCollector{name: "missing", available: false})
	r.Register(okCollector("present", 1))

	require.Len(t, r.entries, 1)
	assert.Equal(t, "present", r.entries[0].collector.Name())

	results, err := r.CollectAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"present": 1}, results)
}

func TestRegistry_OptionalFailureIsDropped(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterRequired(okCollector("a", 1))
	r.Register(failingCollector("b"))

	results, err := r.CollectAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, results["a"])
	assert.NotContains(t, results, "b")
}

func TestRegistry_RequiredFailuresAreCombined(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterRequired(failingCollector("memory"))
	r.RegisterRequired(failingCollector("disk"))
	r.Register(okCollector("extra", true))

	results, err := r.CollectAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory source failed")
	assert.Contains(t, err.Error(), "disk source failed")
	assert.Equal(t, true, results["extra"])
}

func TestRegistry_PanicBecomesError(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterRequired(&fakeCollector{name: "memory", panics: true, available: true})

	_, err := r.CollectAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sensor driver crashed")
}

func TestRegistry_RunsConcurrently(t *testing.T) {
	r := NewRegistry(nil)
	for _, name := range []string{"a", "b", "c"} {
		r.RegisterRequired(&fakeCollector{name: name, data: name, available: true, delay: 100 * time.Millisecond})
	}

	start := time.Now()
	results, err := r.CollectAll(context.Background())
	require.NoError(t, err)
	assert.Len(t, results, 3)
	assert.Less(t, time.Since(start), 250*time.Millisecond)
}

func TestSampler_UsedPercentageScenario(t *testing.T) {
	s := NewSampler(healthyRegistry(), nil)

	snap := s.Snapshot(context.Background())
	assert.InDelta(t, 50.0, snap.Memory.UsedPercentage, 1e-9)
	assert.Equal(t, 25.0, snap.CPU.CurrentLoad)
	require.NotNil(t, snap.Disk)
	assert.Equal(t, "/", snap.Disk.Mount)
	assert.InDelta(t, 25.0, snap.Disk.UsedPercentage, 1e-9)
	assert.NoError(t, snap.Validate())
}

func TestSampler_RequiredFailureYieldsZeroSnapshot(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))

	r := NewRegistry(nil)
	r.RegisterRequired(okCollector(NameMemory, NewMemoryInfo(100, 50, 50, 50)))
	r.RegisterRequired(failingCollector(NameCPU))
	r.Register(okCollector(NameCPUCores, []models.CPUCoreInfo{{Core: 0, Load: 10}}))

	snap := NewSampler(r, nil, WithClock(fc)).Snapshot(context.Background())

	assert.Zero(t, snap.Memory)
	assert.Zero(t, snap.CPU)
	assert.Nil(t, snap.CPUCores)
	assert.Nil(t, snap.Disk)
	assert.Equal(t, fc.Now().UnixMilli(), snap.Timestamp)
}

func TestSampler_SoftTemperatureFailureOmitsField(t *testing.T) {
	r := healthyRegistry()
	r.Register(failingCollector(NameTemperature))

	snap := NewSampler(r, nil).Snapshot(context.Background())
	assert.Nil(t, snap.CPU.Temperature)
	assert.Equal(t, 25.0, snap.CPU.CurrentLoad, "the rest of the snapshot is kept")
}

func TestSampler_OptionalSectionsAssembled(t *testing.T) {
	temp := 61.5
	r := healthyRegistry()
	r.Register(okCollector(NameTemperature, 48.0))
	r.Register(okCollector(NameCPUCores, []models.CPUCoreInfo{{Core: 0, Load: 10}, {Core: 1, Load: 20}}))
	r.Register(okCollector(NameGPU, []models.GPUInfo{{Model: "RTX", TemperatureGPU: &temp}}))
	r.Register(okCollector(NameNetwork, &models.NetworkInfo{Interface: "eth0", OperState: "up"}))
	r.Register(okCollector(NameProcesses, []models.ProcessMemoryInfo{{PID: 1, Name: "init", Mem: 10}}))

	snap := NewSampler(r, nil).Snapshot(context.Background())
	require.NotNil(t, snap.CPU.Temperature)
	assert.Equal(t, 48.0, *snap.CPU.Temperature)
	assert.Len(t, snap.CPUCores, 2)
	assert.Len(t, snap.GPU, 1)
	require.NotNil(t, snap.Network)
	assert.Equal(t, "eth0", snap.Network.Interface)
	assert.Len(t, snap.TopProcesses, 1)
}

func TestSampler_NoDiskLeavesFieldAbsent(t *testing.T) {
	r := NewRegistry(nil)
	r.RegisterRequired(okCollector(NameMemory, NewMemoryInfo(100, 50, 50, 50)))
	r.RegisterRequired(okCollector(NameCPU, models.CPUInfo{}))
	r.RegisterRequired(okCollector(NameDisk, (*models.DiskInfo)(nil)))

	snap := NewSampler(r, nil).Snapshot(context.Background())
	assert.Nil(t, snap.Disk)
	assert.Equal(t, uint64(100), snap.Memory.Total)
}

func TestSampler_TimestampsStrictlyIncrease(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.UnixMilli(5000))
	s := NewSampler(healthyRegistry(), nil, WithClock(fc))

	first := s.Snapshot(context.Background())
	second := s.Snapshot(context.Background())
	assert.Greater(t, second.Timestamp, first.Timestamp)

	fc.Step(time.Second)
	third := s.Snapshot(context.Background())
	assert.Equal(t, int64(6000), third.Timestamp)
}

func TestLoadReader_FirstReadWaitsForBaseline(t *testing.T) {
	var intervals []time.Duration
	calls := 0
	r := &loadReader{
		percpu: true,
		window: 20 * time.Millisecond,
		percent: func(_ context.Context, interval time.Duration, percpu bool) ([]float64, error) {
			assert.True(t, percpu)
			intervals = append(intervals, interval)
			calls++
			return []float64{float64(calls)}, nil
		},
	}

	began := time.Now()
	got, err := r.read(context.Background())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(began), 20*time.Millisecond)
	assert.Equal(t, []float64{2}, got, "first reading is discarded")

	got, err = r.read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, got)
	assert.Equal(t, []time.Duration{0, 0, 0}, intervals)
}

func TestLoadReader_BaselineFailureRetries(t *testing.T) {
	fail := true
	r := &loadReader{
		window: time.Millisecond,
		percent: func(context.Context, time.Duration, bool) ([]float64, error) {
			if fail {
				return nil, errors.New("stat unavailable")
			}
			return []float64{40}, nil
		},
	}

	_, err := r.read(context.Background())
	require.Error(t, err)
	assert.False(t, r.primed)

	fail = false
	got, err := r.read(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []float64{40}, got)
	assert.True(t, r.primed)
}

func TestLoadReader_CancelledDuringWindow(t *testing.T) {
	r := &loadReader{
		window: time.Hour,
		percent: func(context.Context, time.Duration, bool) ([]float64, error) {
			return []float64{1}, nil
		},
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := r.read(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewMemoryInfo_ZeroTotal(t *testing.T) {
	info := NewMemoryInfo(0, 0, 0, 0)
	assert.Equal(t, 0.0, info.UsedPercentage)
}

func TestTemperatureCollector(t *testing.T) {
	tests := []struct {
		name    string
		temps   []host.TemperatureStat
		err     error
		want    float64
		wantErr bool
	}{
		{
			name: "hottest cpu sensor wins",
			temps: []host.TemperatureStat{
				{SensorKey: "coretemp_core_0_input", Temperature: 51},
				{SensorKey: "coretemp_core_1_input", Temperature: 57},
				{SensorKey: "nvme_composite_input", Temperature: 70},
			},
			want: 57,
		},
		{
			name:    "no matching sensor",
			temps:   []host.TemperatureStat{{SensorKey: "nvme_composite_input", Temperature: 40}},
			wantErr: true,
		},
		{
			name:    "implausible readings ignored",
			temps:   []host.TemperatureStat{{SensorKey: "k10temp_tctl_input", Temperature: 255}},
			wantErr: true,
		},
		{
			name:    "sensor query fails",
			err:     errors.New("not implemented yet"),
			wantErr: true,
		},
		{
			name:  "partial warnings tolerated",
			temps: []host.TemperatureStat{{SensorKey: "k10temp_tctl_input", Temperature: 45}},
			err:   errors.New("some sensors unreadable"),
			want:  45,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewTemperatureCollector(func(context.Context) ([]host.TemperatureStat, error) {
				return tt.temps, tt.err
			}, nil)

			got, err := c.Collect(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTopByMemory(t *testing.T) {
	infos := []models.ProcessMemoryInfo{
		{PID: 3, Mem: 100},
		{PID: 1, Mem: 300},
		{PID: 2, Mem: 300},
		{PID: 4, Mem: 50},
	}
	top := topByMemory(infos, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []int32{1, 2, 3}, []int32{top[0].PID, top[1].PID, top[2].PID})
}

func TestPrimaryInterface(t *testing.T) {
	ifaces := net.InterfaceStatList{
		{Name: "lo", Flags: []string{"up", "loopback"}},
		{Name: "docker0", Flags: []string{"broadcast"}},
		{Name: "eth0", Flags: []string{"up", "broadcast"}, HardwareAddr: "aa:bb:cc:dd:ee:ff"},
	}
	counters := []net.IOCountersStat{
		{Name: "lo", BytesSent: 1},
		{Name: "docker0", BytesSent: 2},
		{Name: "eth0", BytesSent: 3},
	}

	iface, counter, ok := primaryInterface(ifaces, counters)
	require.True(t, ok)
	assert.Equal(t, "eth0", iface.Name)
	assert.Equal(t, uint64(3), counter.BytesSent)

	// No interface is up: first non-loopback one with counters.
	iface, _, ok = primaryInterface(ifaces[:2], counters)
	require.True(t, ok)
	assert.Equal(t, "docker0", iface.Name)

	_, _, ok = primaryInterface(ifaces[:1], counters)
	assert.False(t, ok)
}

func TestSplitAddrs(t *testing.T) {
	ip4, ip6 := splitAddrs(net.InterfaceAddrList{
		{Addr: "fe80::1/64"},
		{Addr: "192.168.1.100/24"},
		{Addr: "10.0.0.1/8"},
	})
	assert.Equal(t, "192.168.1.100", ip4)
	assert.Equal(t, "fe80::1", ip6)
}

func TestNetworkCollector_Rates(t *testing.T) {
	fc := clocktesting.NewFakeClock(time.Unix(0, 0))
	c := NewNetworkCollector(fc)

	rx, tx := c.rates("eth0", 1000, 500)
	assert.Zero(t, rx, "first sample is the baseline")
	assert.Zero(t, tx)

	fc.Step(2 * time.Second)
	rx, tx = c.rates("eth0", 5000, 1500)
	assert.Equal(t, 2000.0, rx)
	assert.Equal(t, 500.0, tx)

	fc.Step(time.Second)
	rx, _ = c.rates("eth0", 10, 1500)
	assert.Zero(t, rx, "counter reset")

	fc.Step(time.Second)
	rx, _ = c.rates("wlan0", 99999, 0)
	assert.Zero(t, rx, "interface change resets the baseline")
}

func TestDefaultRegistry_LiveSnapshot(t *testing.T) {
	r := NewDefaultRegistry(Options{TopProcesses: 5, Temperature: true}, nil)
	snap := NewSampler(r, nil).Snapshot(context.Background())

	assert.NoError(t, snap.Validate())
	assert.LessOrEqual(t, len(snap.TopProcesses), 5)
}
