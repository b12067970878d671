// Package display implements the subscription hook used by rendering
// surfaces. A Hook owns the held snapshot and its loading/error state.
//
// The hook starts in PhaseLoading. With a reachable collector it moves to
// PhaseLive and refreshes either by polling GetInfo or through a push
// subscription. Without one, or after the first failed call, it moves to
// PhaseSynthetic for good and keeps producing generated snapshots at the
// same cadence. Neither state returns to PhaseLoading.
package display

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/utils/clock"

	"github.com/aegis-monitor/aegis/internal/bridge"
	"github.com/aegis-monitor/aegis/internal/history"
	"github.com/aegis-monitor/aegis/internal/models"
	"github.com/aegis-monitor/aegis/internal/util/safego"
)

// DefaultInterval is the refresh cadence.
const DefaultInterval = time.Second

// Phase is the hook's position in its state machine.
type Phase int

const (
	PhaseLoading Phase = iota
	PhaseLive
	PhaseSynthetic
	// PhaseFailed means no value could be produced at all.
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseLoading:
		return "loading"
	case PhaseLive:
		return "live"
	case PhaseSynthetic:
		return "synthetic"
	case PhaseFailed:
		return "failed"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Mode selects how a live hook refreshes.
type Mode string

const (
	// ModePoll calls GetInfo every interval.
	ModePoll Mode = "poll"
	// ModePush subscribes with OnUpdate after the initial GetInfo.
	ModePush Mode = "push"
)

// ParseMode parses a mode name. The empty string selects ModePoll.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModePoll:
		return ModePoll, nil
	case ModePush:
		return ModePush, nil
	}
	return "", fmt.Errorf("unknown display mode %q (want %q or %q)", s, ModePoll, ModePush)
}

// View is what a rendering surface sees.
type View struct {
	Snapshot  *models.Snapshot
	IsLoading bool
	Error     string
	Phase     Phase
}

// Hook drives one rendering surface.
type Hook struct {
	api      bridge.API
	gen      Generator
	clock    clock.WithTicker
	interval time.Duration
	mode     Mode
	logger   *zap.Logger
	history  *history.Ring[models.HistoricalData]

	mu        sync.Mutex
	view      View
	lastLive  time.Time
	mounted   bool
	alive     bool
	cancel    context.CancelFunc
	listener  bridge.ListenerID
	observers []observer
	nextObs   int
}

type observer struct {
	id int
	fn func(View)
}

// Option configures a Hook.
type Option func(*Hook)

// WithClock replaces the wall clock.
func WithClock(c clock.WithTicker) Option {
	return func(h *Hook) { h.clock = c }
}

// WithInterval sets the refresh cadence.
func WithInterval(d time.Duration) Option {
	return func(h *Hook) {
		if d > 0 {
			h.interval = d
		}
	}
}

// WithMode selects polling or push refreshes.
func WithMode(m Mode) Option {
	return func(h *Hook) { h.mode = m }
}

// WithGenerator replaces the synthetic generator.
func WithGenerator(g Generator) Option {
	return func(h *Hook) { h.gen = g }
}

// WithHistorySize sets how many chart points are kept.
func WithHistorySize(n int) Option {
	return func(h *Hook) { h.history = history.New[models.HistoricalData](n) }
}

// New creates a hook. A nil api means no collector is reachable.
func New(api bridge.API, logger *zap.Logger, opts ...Option) *Hook {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Hook{
		api:       api,
		clock:     clock.RealClock{},
		interval:  DefaultInterval,
		mode:      ModePoll,
		logger:    logger.Named("display"),
		view:      View{IsLoading: true, Phase: PhaseLoading},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.gen == nil {
		h.gen = NewSynthetic(nil)
	}
	if h.history == nil {
		h.history = history.New[models.HistoricalData](history.DefaultSize)
	}
	return h
}

// Mount starts refreshing. A hook mounts at most once; later calls are
// ignored.
func (h *Hook) Mount() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.mounted {
		return
	}
	h.mounted = true
	h.alive = true

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	ticker := h.clock.NewTicker(h.interval)
	safego.Go(func() { h.run(ctx, ticker) })
}

// Unmount stops refreshing. State updates racing with teardown are
// discarded. It is safe to call more than once.
func (h *Hook) Unmount() {
	h.mu.Lock()
	h.alive = false
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
	id := h.listener
	h.listener = 0
	h.mu.Unlock()

	if id != 0 {
		h.api.RemoveListener(id)
	}
}

// View returns the current state.
func (h *Hook) View() View {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.viewLocked()
}

// History returns the chart points, oldest first.
func (h *Hook) History() []models.HistoricalData {
	return h.history.Items()
}

// OnChange registers fn to run after every state change. Observers run in
// registration order. The returned function removes fn.
func (h *Hook) OnChange(fn func(View)) (remove func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextObs++
	id := h.nextObs
	h.observers = append(h.observers, observer{id: id, fn: fn})
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, o := range h.observers {
			if o.id == id {
				h.observers = append(h.observers[:i:i], h.observers[i+1:]...)
				return
			}
		}
	}
}

func (h *Hook) viewLocked() View {
	v := h.view
	if v.Snapshot != nil {
		s := v.Snapshot.Clone()
		v.Snapshot = &s
	}
	return v
}

func (h *Hook) run(ctx context.Context, ticker clock.Ticker) {
	defer ticker.Stop()

	h.refresh(ctx)
	if h.mode == ModePush && h.phase() == PhaseLive {
		h.subscribe()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if h.mode == ModePush && h.phase() == PhaseLive && !h.pushStale() {
				continue
			}
			h.refresh(ctx)
		}
	}
}

// pushStale reports whether no live snapshot arrived for two intervals.
// A stale push subscription falls back to GetInfo, whose failure degrades
// the hook like any other failed call.
func (h *Hook) pushStale() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.clock.Since(h.lastLive) >= 2*h.interval
}

func (h *Hook) phase() Phase {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.view.Phase
}

// refresh replaces the held snapshot once.
func (h *Hook) refresh(ctx context.Context) {
	phase := h.phase()
	if h.api != nil && (phase == PhaseLoading || phase == PhaseLive) {
		snap, err := h.api.GetInfo(ctx)
		if err == nil {
			h.apply(&snap, PhaseLive, "")
			return
		}
		if ctx.Err() != nil {
			return
		}
		h.logger.Info("Collector call failed, switching to synthetic data", zap.Error(err))
		h.degrade()
	} else if h.api == nil && phase == PhaseLoading {
		h.logger.Info("No collector available, using synthetic data")
	}
	h.synthesize()
}

func (h *Hook) synthesize() {
	snap, err := h.gen.Generate(h.clock.Now())
	if err != nil {
		h.logger.Error("Synthetic generator failed", zap.Error(err))
		h.apply(nil, PhaseFailed, err.Error())
		return
	}
	h.apply(&snap, PhaseSynthetic, "")
}

// degrade drops the push subscription before the permanent switch to
// synthetic data.
func (h *Hook) degrade() {
	h.mu.Lock()
	id := h.listener
	h.listener = 0
	h.mu.Unlock()
	if id != 0 {
		h.api.RemoveListener(id)
	}
}

func (h *Hook) subscribe() {
	id := h.api.OnUpdate(func(s models.Snapshot) {
		h.apply(&s, PhaseLive, "")
	})

	h.mu.Lock()
	if !h.alive {
		h.mu.Unlock()
		h.api.RemoveListener(id)
		return
	}
	h.listener = id
	h.mu.Unlock()
}

// apply installs a new state and notifies observers. A nil snapshot keeps
// the previous one.
func (h *Hook) apply(snap *models.Snapshot, phase Phase, errMsg string) {
	h.mu.Lock()
	if !h.alive {
		h.mu.Unlock()
		return
	}
	// Synthetic is terminal for live data; late pushes are dropped.
	if phase == PhaseLive && (h.view.Phase == PhaseSynthetic || h.view.Phase == PhaseFailed) {
		h.mu.Unlock()
		return
	}

	if snap != nil {
		h.view.Snapshot = snap
		h.history.Push(snap.Point())
		if phase == PhaseLive {
			h.lastLive = h.clock.Now()
		}
	}
	h.view.Phase = phase
	h.view.IsLoading = false
	h.view.Error = errMsg

	v := h.viewLocked()
	observers := make([]func(View), len(h.observers))
	for i, o := range h.observers {
		observers[i] = o.fn
	}
	h.mu.Unlock()

	for _, fn := range observers {
		if err := safego.Call(func() { fn(v) }); err != nil {
			h.logger.Error("View observer panicked", zap.Error(err))
		}
	}
}
