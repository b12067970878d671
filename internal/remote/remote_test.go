package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/aegis-monitor/aegis/internal/bridge"
	"github.com/aegis-monitor/aegis/internal/display"
	"github.com/aegis-monitor/aegis/internal/models"
	"github.com/aegis-monitor/aegis/internal/scheduler"
	"github.com/aegis-monitor/aegis/internal/server"
)

type tickSource struct {
	n atomic.Int64
}

func (s *tickSource) Snapshot(context.Context) models.Snapshot {
	n := s.n.Add(1)
	return models.Snapshot{
		CPU:       models.CPUInfo{CurrentLoad: float64(n)},
		Memory:    models.MemoryInfo{Total: 200, Used: 50, UsedPercentage: 25},
		Timestamp: 1_000 + n,
	}
}

// collectorStack runs scheduler, bridge and HTTP server against a fake clock.
func collectorStack(t *testing.T) (*httptest.Server, *bridge.Bridge, *clocktesting.FakeClock) {
	t.Helper()
	fc := clocktesting.NewFakeClock(time.Date(2026, 10, 19, 0, 0, 0, 0, time.UTC))
	sched := scheduler.New(&tickSource{}, nil, scheduler.WithClock(fc))
	b := bridge.New(sched, nil)
	ts := httptest.NewServer(server.New(b, server.Options{GinMode: "test", Version: "test"}, nil).Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = b.Close()
		sched.Destroy()
	})
	return ts, b, fc
}

func (c *Client) listenerCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

func TestProbe_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	c, err := Probe(context.Background(), url, nil, WithRetries(2), WithBaseDelay(time.Millisecond))
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestProbe_InvalidURL(t *testing.T) {
	c, err := Probe(context.Background(), "not a url", nil, WithRetries(0))
	assert.Nil(t, c)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestProbe_RetriesUntilHealthy(t *testing.T) {
	var calls atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","version":"x","streams":0}`))
	}))
	defer ts.Close()

	c, err := Probe(context.Background(), ts.URL+"/", nil, WithRetries(3), WithBaseDelay(time.Millisecond))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, ts.URL, c.baseURL)
}

func TestProbe_ContextCancelled(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Probe(ctx, ts.URL, nil, WithRetries(5), WithBaseDelay(time.Hour))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestClient_GetInfo(t *testing.T) {
	ts, _, _ := collectorStack(t)

	c, err := Probe(context.Background(), ts.URL, nil, WithRetries(0))
	require.NoError(t, err)
	defer c.Close()

	snap, err := c.GetInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 25.0, snap.Memory.UsedPercentage)
	assert.NotZero(t, snap.Timestamp)
}

func TestClient_GetInfoAfterBridgeClosed(t *testing.T) {
	ts, b, _ := collectorStack(t)
	c, err := Probe(context.Background(), ts.URL, nil, WithRetries(0))
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, err = c.GetInfo(context.Background())
	var se *statusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusServiceUnavailable, se.statusCode)
	assert.Contains(t, se.message, "closed")
}

func TestClient_SharedStream(t *testing.T) {
	ts, b, fc := collectorStack(t)
	c, err := Probe(context.Background(), ts.URL, nil, WithRetries(0))
	require.NoError(t, err)
	defer c.Close()

	var mu sync.Mutex
	got := map[string][]int64{}
	record := func(name string) bridge.Listener {
		return func(s models.Snapshot) {
			mu.Lock()
			defer mu.Unlock()
			got[name] = append(got[name], s.Timestamp)
		}
	}
	countOf := func(name string) int {
		mu.Lock()
		defer mu.Unlock()
		return len(got[name])
	}

	a := c.OnUpdate(record("a"))
	c.OnUpdate(record("b"))

	// The primed snapshot arrives as soon as the stream opens.
	require.Eventually(t, func() bool { return countOf("a") >= 1 && countOf("b") >= 1 },
		2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return b.Listeners() == 1 },
		time.Second, 10*time.Millisecond, "one websocket serves both listeners")

	fc.Step(time.Second)
	require.Eventually(t, func() bool { return countOf("a") >= 2 && countOf("b") >= 2 },
		2*time.Second, 10*time.Millisecond)

	c.RemoveListener(a)
	c.RemoveAllListeners()
	assert.Eventually(t, func() bool { return b.Listeners() == 0 }, 2*time.Second, 10*time.Millisecond,
		"stream closes with the last listener")
}

func TestPushDisplayFallsBackWhenCollectorDies(t *testing.T) {
	ts, b, _ := collectorStack(t)
	c, err := Probe(context.Background(), ts.URL, nil, WithRetries(0))
	require.NoError(t, err)
	defer c.Close()

	dc := clocktesting.NewFakeClock(time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC))
	h := display.New(c, nil, display.WithClock(dc), display.WithMode(display.ModePush),
		display.WithInterval(20*time.Millisecond))
	h.Mount()
	defer h.Unmount()

	require.Eventually(t, func() bool { return b.Listeners() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, display.PhaseLive, h.View().Phase)

	require.NoError(t, b.Close())
	ts.Close()

	dc.Step(40 * time.Millisecond)
	require.Eventually(t, func() bool { return h.View().Phase == display.PhaseSynthetic },
		2*time.Second, 10*time.Millisecond)
	assert.Empty(t, h.View().Error)
	assert.Eventually(t, func() bool { return c.listenerCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestStreamURL(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{"http://localhost:8787", "ws://localhost:8787/api/system/stream", false},
		{"https://mon.example.com", "wss://mon.example.com/api/system/stream", false},
		{"ftp://host", "", true},
	}
	for _, tt := range tests {
		got, err := streamURL(tt.base)
		if tt.wantErr {
			assert.Error(t, err)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, backoff(100*time.Millisecond, 1))
	assert.Equal(t, 400*time.Millisecond, backoff(100*time.Millisecond, 3))
	assert.Equal(t, maxRetryDelay, backoff(time.Second, 20))
}
