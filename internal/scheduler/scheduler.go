// Package scheduler implements the tick-based polling loop shared by all
// telemetry subscribers. One loop runs per Scheduler regardless of how many
// subscribers are registered; each tick gathers a single snapshot and hands
// it to every subscriber in registration order.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/aegis-monitor/aegis/internal/models"
	"github.com/aegis-monitor/aegis/internal/util/safego"
)

// DefaultInterval is used when Start is called with a non-positive interval.
const DefaultInterval = time.Second

// Source produces snapshots. It must not fail: gather errors are expected to
// be folded into a zeroed snapshot by the implementation.
type Source interface {
	Snapshot(ctx context.Context) models.Snapshot
}

// Callback receives one snapshot per tick. Each subscriber gets its own copy.
type Callback func(models.Snapshot)

// SubscriptionID identifies a registered callback.
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	cb Callback
}

// loop is the handle of a running polling loop.
type loop struct {
	ticker   clock.Ticker
	cancel   context.CancelFunc
	interval time.Duration
}

// Scheduler owns the subscriber set and the polling loop.
type Scheduler struct {
	source Source
	clock  clock.WithTicker
	logger *zap.Logger

	mu     sync.Mutex
	subs   []subscription
	nextID SubscriptionID
	loop   *loop
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c clock.WithTicker) Option {
	return func(s *Scheduler) { s.clock = c }
}

// New creates an idle Scheduler over source.
func New(source Source, logger *zap.Logger, opts ...Option) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		source: source,
		clock:  clock.RealClock{},
		logger: logger.Named("scheduler"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot performs a one-shot gather. It is independent of the loop and
// keeps working after Destroy.
func (s *Scheduler) Snapshot(ctx context.Context) models.Snapshot {
	return s.gather(ctx)
}

// Start registers cb and starts the polling loop if it is not running yet.
// The interval only applies when this call starts the loop; a running loop
// keeps the cadence of whoever started it.
func (s *Scheduler) Start(cb Callback, interval time.Duration) SubscriptionID {
	if interval <= 0 {
		interval = DefaultInterval
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs = append(s.subs, subscription{id: id, cb: cb})

	if s.loop == nil {
		ctx, cancel := context.WithCancel(context.Background())
		l := &loop{
			ticker:   s.clock.NewTicker(interval),
			cancel:   cancel,
			interval: interval,
		}
		s.loop = l
		go s.run(ctx, l)
		s.logger.Info("Polling loop started", zap.Duration("interval", interval))
	}
	return id
}

// Stop removes the given subscriptions, or every subscription when called
// without arguments. The loop is stopped as soon as no subscriber is left.
// Stopping an idle Scheduler is a no-op.
func (s *Scheduler) Stop(ids ...SubscriptionID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(ids) == 0 {
		s.subs = nil
	} else {
		kept := s.subs[:0]
		for _, sub := range s.subs {
			if !containsID(ids, sub.id) {
				kept = append(kept, sub)
			}
		}
		// Release references held past the new length.
		for i := len(kept); i < len(s.subs); i++ {
			s.subs[i] = subscription{}
		}
		s.subs = kept
	}

	if len(s.subs) == 0 {
		s.stopLoopLocked()
	}
}

// Destroy cancels the loop and clears all subscribers. It is idempotent.
func (s *Scheduler) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = nil
	s.stopLoopLocked()
}

// Running reports whether the polling loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loop != nil
}

// Subscribers returns the number of registered callbacks.
func (s *Scheduler) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Interval returns the cadence of the running loop, or zero when idle.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop == nil {
		return 0
	}
	return s.loop.interval
}

func (s *Scheduler) stopLoopLocked() {
	if s.loop == nil {
		return
	}
	s.loop.ticker.Stop()
	s.loop.cancel()
	s.loop = nil
	s.logger.Info("Polling loop stopped")
}

// run is the loop goroutine. The ticker channel holds at most one pending
// tick, so ticks that fire during a slow gather are dropped instead of
// queued.
func (s *Scheduler) run(ctx context.Context, l *loop) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.ticker.C():
			s.tick(l)
		}
	}
}

func (s *Scheduler) tick(l *loop) {
	snapshot := s.gather(context.Background())

	// Read the subscriber set after the gather so that subscribers removed
	// while it was in flight receive nothing.
	s.mu.Lock()
	if s.loop != l {
		s.mu.Unlock()
		return
	}
	subs := make([]subscription, len(s.subs))
	copy(subs, s.subs)
	s.mu.Unlock()

	for _, sub := range subs {
		snap := snapshot.Clone()
		if err := safego.Call(func() { sub.cb(snap) }); err != nil {
			s.logger.Error("Subscriber callback panicked",
				zap.Uint64("subscription", uint64(sub.id)),
				zap.Error(err))
		}
	}
}

// gather calls the source and turns a panic into the zeroed snapshot.
func (s *Scheduler) gather(ctx context.Context) models.Snapshot {
	var snapshot models.Snapshot
	if err := safego.Call(func() { snapshot = s.source.Snapshot(ctx) }); err != nil {
		s.logger.Error("Snapshot source panicked, using fallback snapshot", zap.Error(err))
		return models.ZeroSnapshot(s.clock.Now())
	}
	return snapshot
}

func containsID(ids []SubscriptionID, id SubscriptionID) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}
