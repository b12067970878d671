package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-monitor/aegis/internal/bridge"
	"github.com/aegis-monitor/aegis/internal/models"
)

// fakeAPI is an in-memory bridge.API driven by the test.
type fakeAPI struct {
	mu        sync.Mutex
	snap      models.Snapshot
	err       error
	listeners map[bridge.ListenerID]bridge.Listener
	next      bridge.ListenerID
}

func newFakeAPI(snap models.Snapshot) *fakeAPI {
	return &fakeAPI{snap: snap, listeners: make(map[bridge.ListenerID]bridge.Listener)}
}

func (f *fakeAPI) GetInfo(context.Context) (models.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap, f.err
}

func (f *fakeAPI) OnUpdate(cb bridge.Listener) bridge.ListenerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	f.listeners[f.next] = cb
	return f.next
}

func (f *fakeAPI) RemoveListener(id bridge.ListenerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.listeners, id)
}

func (f *fakeAPI) RemoveAllListeners() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = make(map[bridge.ListenerID]bridge.Listener)
}

func (f *fakeAPI) push(s models.Snapshot) {
	f.mu.Lock()
	cbs := make([]bridge.Listener, 0, len(f.listeners))
	for _, cb := range f.listeners {
		cbs = append(cbs, cb)
	}
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(s)
	}
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func sample(ts int64, load float64) models.Snapshot {
	return models.Snapshot{
		Memory:    models.MemoryInfo{Total: 16, Used: 8, UsedPercentage: 50},
		CPU:       models.CPUInfo{CurrentLoad: load, Cores: 4, Threads: 8},
		Timestamp: ts,
	}
}

func newTestServer(t *testing.T, api bridge.API) *httptest.Server {
	t.Helper()
	srv := New(api, Options{Version: "test", GinMode: "test"}, nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(sample(1, 0)))

	resp, err := http.Get(ts.URL + HealthPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, "test", body.Version)
}

func TestInfo(t *testing.T) {
	ts := newTestServer(t, newFakeAPI(sample(42, 12.5)))

	resp, err := http.Get(ts.URL + InfoPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	var snap models.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(42), snap.Timestamp)
	assert.Equal(t, 12.5, snap.CPU.CurrentLoad)
	assert.Equal(t, 50.0, snap.Memory.UsedPercentage)
}

func TestInfoUnavailable(t *testing.T) {
	api := newFakeAPI(models.Snapshot{})
	api.err = errors.New("bridge closed")
	ts := newTestServer(t, api)

	resp, err := http.Get(ts.URL + InfoPath)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "bridge closed", body.Error)
}

func TestStreamWebsocket(t *testing.T) {
	api := newFakeAPI(sample(1, 10))
	ts := newTestServer(t, api)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + StreamPath
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	var first models.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, int64(1), first.Timestamp, "primed with a fresh snapshot")

	require.Eventually(t, func() bool { return api.count() == 1 }, time.Second, 5*time.Millisecond)
	api.push(sample(2, 20))

	var second models.Snapshot
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, int64(2), second.Timestamp)
	assert.Equal(t, 20.0, second.CPU.CurrentLoad)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return api.count() == 0 }, 2*time.Second, 10*time.Millisecond,
		"listener must be removed when the client goes away")
}

func TestEventsSSE(t *testing.T) {
	api := newFakeAPI(sample(7, 30))
	ts := newTestServer(t, api)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+EventsPath, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	reader := bufio.NewReader(resp.Body)

	first := readEvent(t, reader)
	assert.Equal(t, int64(7), first.Timestamp)

	require.Eventually(t, func() bool { return api.count() == 1 }, time.Second, 5*time.Millisecond)
	api.push(sample(8, 31))
	second := readEvent(t, reader)
	assert.Equal(t, int64(8), second.Timestamp)

	cancel()
	assert.Eventually(t, func() bool { return api.count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func readEvent(t *testing.T, r *bufio.Reader) models.Snapshot {
	t.Helper()
	var event string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			require.Equal(t, "update", event)
			var snap models.Snapshot
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &snap))
			return snap
		}
	}
}

func TestMailboxKeepsLatest(t *testing.T) {
	mb := newMailbox()
	mb.put(sample(1, 0))
	mb.put(sample(2, 0))
	mb.put(sample(3, 0))

	got := <-mb.ch
	assert.Equal(t, int64(3), got.Timestamp)
	select {
	case extra := <-mb.ch:
		t.Fatalf("unexpected extra snapshot %d", extra.Timestamp)
	default:
	}
}
