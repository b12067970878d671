// Package bridge exposes the collector to display surfaces through a narrow
// capability: a one-shot snapshot request and a push subscription. The
// bridge keeps no telemetry state of its own; it forwards requests to the
// scheduler and fans scheduler ticks out to its listeners.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/models"
	"github.com/aegis-monitor/aegis/internal/scheduler"
	"github.com/aegis-monitor/aegis/internal/util/safego"
)

// ErrClosed is returned by GetInfo after Close.
var ErrClosed = errors.New("bridge closed")

// ListenerID identifies a push listener. Zero is never a valid ID.
type ListenerID uint64

// Listener receives a full replacement snapshot on every update.
type Listener func(models.Snapshot)

// API is the capability handed to display surfaces. A nil API means no
// collector is reachable.
type API interface {
	GetInfo(ctx context.Context) (models.Snapshot, error)
	OnUpdate(cb Listener) ListenerID
	RemoveListener(id ListenerID)
	RemoveAllListeners()
}

// Monitor is the polling loop the bridge drives. *scheduler.Scheduler
// implements it.
type Monitor interface {
	Snapshot(ctx context.Context) models.Snapshot
	Start(cb scheduler.Callback, interval time.Duration) scheduler.SubscriptionID
	Stop(ids ...scheduler.SubscriptionID)
}

// StartPolicy decides when the update channel is opened.
type StartPolicy string

const (
	// StartOnSubscribe opens the channel with the first listener and closes
	// it with the last.
	StartOnSubscribe StartPolicy = "on_subscribe"
	// StartExplicit opens and closes the channel only on
	// StartMonitoring / StopMonitoring.
	StartExplicit StartPolicy = "explicit"
)

// ParseStartPolicy parses a policy name. The empty string selects
// StartOnSubscribe.
func ParseStartPolicy(s string) (StartPolicy, error) {
	switch StartPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", StartOnSubscribe:
		return StartOnSubscribe, nil
	case StartExplicit:
		return StartExplicit, nil
	}
	return "", fmt.Errorf("unknown start policy %q (want %q or %q)", s, StartOnSubscribe, StartExplicit)
}

type listener struct {
	id ListenerID
	cb Listener
}

// Bridge implements API on top of a Monitor.
type Bridge struct {
	monitor  Monitor
	policy   StartPolicy
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	listeners []listener
	nextID    ListenerID
	channel   *scheduler.SubscriptionID
	closed    bool
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithPolicy sets the start policy.
func WithPolicy(p StartPolicy) Option {
	return func(b *Bridge) { b.policy = p }
}

// WithInterval sets the cadence used when the channel is opened by a
// subscription rather than by StartMonitoring.
func WithInterval(d time.Duration) Option {
	return func(b *Bridge) { b.interval = d }
}

// New creates a Bridge over monitor.
func New(monitor Monitor, logger *zap.Logger, opts ...Option) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		monitor:  monitor,
		policy:   StartOnSubscribe,
		interval: scheduler.DefaultInterval,
		logger:   logger.Named("bridge"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// GetInfo returns a freshly gathered snapshot.
func (b *Bridge) GetInfo(ctx context.Context) (models.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return models.Snapshot{}, err
	}
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return models.Snapshot{}, ErrClosed
	}
	return b.monitor.Snapshot(ctx), nil
}

// OnUpdate registers cb for push updates. It returns zero after Close.
func (b *Bridge) OnUpdate(cb Listener) ListenerID {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.logger.Warn("Listener registered on closed bridge, ignoring")
		return 0
	}
	b.nextID++
	id := b.nextID
	b.listeners = append(b.listeners, listener{id: id, cb: cb})

	if b.policy == StartOnSubscribe {
		b.openLocked(b.interval)
	}
	return id
}

// RemoveListener removes only the listener registered under id.
func (b *Bridge) RemoveListener(id ListenerID) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, l := range b.listeners {
		if l.id == id {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			break
		}
	}
	if b.policy == StartOnSubscribe && len(b.listeners) == 0 {
		b.closeLocked()
	}
}

// RemoveAllListeners drops every listener.
func (b *Bridge) RemoveAllListeners() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.listeners = nil
	if b.policy == StartOnSubscribe {
		b.closeLocked()
	}
}

// StartMonitoring opens the update channel at the given interval. It is a
// no-op when the channel is already open.
func (b *Bridge) StartMonitoring(interval time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	if interval <= 0 {
		interval = b.interval
	}
	b.openLocked(interval)
	return nil
}

// StopMonitoring closes the update channel. Listeners stay registered.
func (b *Bridge) StopMonitoring() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closeLocked()
}

// Close removes all listeners and closes the channel. Subsequent calls are
// no-ops.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.listeners = nil
	b.closeLocked()
	return nil
}

// Listeners returns the number of registered listeners.
func (b *Bridge) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.listeners)
}

// Monitoring reports whether the update channel is open.
func (b *Bridge) Monitoring() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channel != nil
}

func (b *Bridge) openLocked(interval time.Duration) {
	if b.channel != nil {
		return
	}
	id := b.monitor.Start(b.fanOut, interval)
	b.channel = &id
	b.logger.Debug("Update channel opened", zap.Duration("interval", interval))
}

func (b *Bridge) closeLocked() {
	if b.channel == nil {
		return
	}
	b.monitor.Stop(*b.channel)
	b.channel = nil
	b.logger.Debug("Update channel closed")
}

// fanOut delivers a tick to every listener in registration order. Listeners
// run outside the lock so they may unsubscribe themselves.
func (b *Bridge) fanOut(snapshot models.Snapshot) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	listeners := make([]listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		snap := snapshot.Clone()
		if err := safego.Call(func() { l.cb(snap) }); err != nil {
			b.logger.Error("Listener panicked",
				zap.Uint64("listener", uint64(l.id)),
				zap.Error(err))
		}
	}
}

var _ API = (*Bridge)(nil)
