// Network I/O collector: reports the primary interface with transfer rates.
// Uses gopsutil for cross-platform network metrics.
package collector

import (
	"context"
	"fmt"
	stdnet "net"
	"strings"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/net"
	"k8s.io/utils/clock"

	"github.com/aegis-monitor/aegis/internal/models"
)

// NetworkCollector collects counters for the primary interface and derives
// bytes-per-second rates from the delta to the previous collection.
type NetworkCollector struct {
	clock clock.PassiveClock

	mu          sync.Mutex
	iface       string
	lastRx      uint64
	lastTx      uint64
	lastAt      time.Time
	initialized bool
}

// NewNetworkCollector creates a new network collector. A nil clock uses
// the wall clock.
func NewNetworkCollector(clk clock.PassiveClock) *NetworkCollector {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &NetworkCollector{clock: clk}
}

// Name returns the collector identifier.
func (c *NetworkCollector) Name() string { return NameNetwork }

// Collect returns a *models.NetworkInfo for the primary interface.
// The first collection (or the first after the primary interface changes)
// reports zero rates while establishing a baseline.
func (c *NetworkCollector) Collect(ctx context.Context) (interface{}, error) {
	ifaces, err := net.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	counters, err := net.IOCountersWithContext(ctx, true)
	if err != nil {
		return nil, err
	}

	iface, counter, ok := primaryInterface(ifaces, counters)
	if !ok {
		return nil, fmt.Errorf("no network interface with counters")
	}

	info := &models.NetworkInfo{
		Interface:     iface.Name,
		TotalSent:     counter.BytesSent,
		TotalReceived: counter.BytesRecv,
		MAC:           iface.HardwareAddr,
		OperState:     operState(iface.Flags),
		Speed:         linkSpeed(iface.Name),
	}
	info.IP4, info.IP6 = splitAddrs(iface.Addrs)
	info.RxSec, info.TxSec = c.rates(iface.Name, counter.BytesRecv, counter.BytesSent)

	return info, nil
}

// IsAvailable returns true; network metrics are available on all platforms.
func (c *NetworkCollector) IsAvailable() bool { return true }

func (c *NetworkCollector) rates(name string, rx, tx uint64) (float64, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	var rxSec, txSec float64
	if c.initialized && c.iface == name {
		elapsed := now.Sub(c.lastAt).Seconds()
		if elapsed > 0 {
			rxSec = counterRate(c.lastRx, rx, elapsed)
			txSec = counterRate(c.lastTx, tx, elapsed)
		}
	}

	c.iface = name
	c.lastRx = rx
	c.lastTx = tx
	c.lastAt = now
	c.initialized = true
	return rxSec, txSec
}

// counterRate returns the per-second delta; a counter reset yields 0.
func counterRate(prev, cur uint64, seconds float64) float64 {
	if cur < prev {
		return 0
	}
	return float64(cur-prev) / seconds
}

// primaryInterface picks the first enumerated non-loopback interface that is
// up and has counters, falling back to the first non-loopback one with
// counters.
func primaryInterface(ifaces net.InterfaceStatList, counters []net.IOCountersStat) (net.InterfaceStat, net.IOCountersStat, bool) {
	byName := make(map[string]net.IOCountersStat, len(counters))
	for _, ct := range counters {
		byName[ct.Name] = ct
	}

	var fallback *net.InterfaceStat
	for i := range ifaces {
		iface := ifaces[i]
		if hasFlag(iface.Flags, "loopback") {
			continue
		}
		if _, ok := byName[iface.Name]; !ok {
			continue
		}
		if hasFlag(iface.Flags, "up") {
			return iface, byName[iface.Name], true
		}
		if fallback == nil {
			fallback = &ifaces[i]
		}
	}
	if fallback != nil {
		return *fallback, byName[fallback.Name], true
	}
	return net.InterfaceStat{}, net.IOCountersStat{}, false
}

func hasFlag(flags []string, flag string) bool {
	for _, f := range flags {
		if strings.EqualFold(f, flag) {
			return true
		}
	}
	return false
}

func operState(flags []string) string {
	if hasFlag(flags, "up") {
		return "up"
	}
	return "down"
}

// splitAddrs returns the first IPv4 and first IPv6 address without prefix length.
func splitAddrs(addrs net.InterfaceAddrList) (ip4, ip6 string) {
	for _, a := range addrs {
		host := a.Addr
		if i := strings.IndexByte(host, '/'); i >= 0 {
			host = host[:i]
		}
		ip := stdnet.ParseIP(host)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			if ip4 == "" {
				ip4 = host
			}
		} else if ip6 == "" {
			ip6 = host
		}
	}
	return ip4, ip6
}
