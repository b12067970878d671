// Package remote implements bridge.API against a collector running in
// another process. Probe checks the collector's health endpoint with
// exponential backoff and only returns a client when it answers, so a
// failed probe means the capability is absent.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/bridge"
	"github.com/aegis-monitor/aegis/internal/models"
	"github.com/aegis-monitor/aegis/internal/server"
	"github.com/aegis-monitor/aegis/internal/util/safego"
)

const (
	// defaultRetries is the number of probe retries after the first attempt.
	defaultRetries = 3

	// baseRetryDelay is the base delay for exponential backoff between retries.
	baseRetryDelay = 250 * time.Millisecond

	// maxRetryDelay caps the stream reconnect delay.
	maxRetryDelay = 10 * time.Second

	// requestTimeout is the HTTP request timeout for each attempt.
	requestTimeout = 5 * time.Second
)

// ErrUnavailable is returned by Probe when no collector answers.
var ErrUnavailable = errors.New("collector unavailable")

// statusError reports a non-2xx response.
type statusError struct {
	statusCode int
	message    string
}

func (e *statusError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("collector returned %d: %s", e.statusCode, e.message)
	}
	return fmt.Sprintf("collector returned %d", e.statusCode)
}

// Client talks to a remote collector. All listeners share one websocket,
// opened with the first listener and closed with the last.
type Client struct {
	baseURL   string
	http      *http.Client
	dialer    *websocket.Dialer
	retries   int
	baseDelay time.Duration
	logger    *zap.Logger

	mu        sync.Mutex
	listeners []listener
	nextID    bridge.ListenerID
	cancel    context.CancelFunc
}

type listener struct {
	id bridge.ListenerID
	cb bridge.Listener
}

// Option configures a Client.
type Option func(*Client)

// WithRetries sets how many times the probe is retried.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

// WithBaseDelay sets the first backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.baseDelay = d
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Probe returns a Client once baseURL answers its health check. It retries
// with exponential backoff and gives up with ErrUnavailable.
func Probe(ctx context.Context, baseURL string, logger *zap.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		http:      &http.Client{Timeout: requestTimeout},
		dialer:    websocket.DefaultDialer,
		retries:   defaultRetries,
		baseDelay: baseRetryDelay,
		logger:    logger.Named("remote"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, err := url.ParseRequestURI(c.baseURL); err != nil {
		return nil, fmt.Errorf("%w: invalid collector url %q: %v", ErrUnavailable, baseURL, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			delay := backoff(c.baseDelay, attempt)
			c.logger.Debug("Retrying collector probe",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay))
			if err := sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
			}
		}

		lastErr = c.health(ctx)
		if lastErr == nil {
			c.logger.Info("Collector reachable", zap.String("url", c.baseURL))
			return c, nil
		}
		c.logger.Debug("Collector probe failed",
			zap.Int("attempt", attempt),
			zap.Error(lastErr))
	}

	c.logger.Info("No collector reachable", zap.String("url", c.baseURL), zap.Error(lastErr))
	return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, c.baseURL, lastErr)
}

// GetInfo fetches a snapshot over HTTP.
func (c *Client) GetInfo(ctx context.Context) (models.Snapshot, error) {
	var snap models.Snapshot
	if err := c.getJSON(ctx, server.InfoPath, &snap); err != nil {
		return models.Snapshot{}, err
	}
	return snap, nil
}

// OnUpdate registers cb and opens the shared stream if needed.
func (c *Client) OnUpdate(cb bridge.Listener) bridge.ListenerID {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextID++
	id := c.nextID
	c.listeners = append(c.listeners, listener{id: id, cb: cb})

	if c.cancel == nil {
		ctx, cancel := context.WithCancel(context.Background())
		c.cancel = cancel
		safego.Go(func() { c.runStream(ctx) })
	}
	return id
}

// RemoveListener removes the listener registered under id and closes the
// stream when it was the last one.
func (c *Client) RemoveListener(id bridge.ListenerID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, l := range c.listeners {
		if l.id == id {
			c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
			break
		}
	}
	if len(c.listeners) == 0 {
		c.closeStreamLocked()
	}
}

// RemoveAllListeners drops every listener and closes the stream.
func (c *Client) RemoveAllListeners() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.listeners = nil
	c.closeStreamLocked()
}

// Close releases the stream and idle HTTP connections.
func (c *Client) Close() error {
	c.RemoveAllListeners()
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) closeStreamLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Client) health(ctx context.Context) error {
	var body server.HealthResponse
	if err := c.getJSON(ctx, server.HealthPath, &body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("collector reports status %q", body.Status)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var body server.ErrorResponse
		_ = json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&body)
		return &statusError{statusCode: resp.StatusCode, message: body.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// runStream keeps the websocket open until ctx is cancelled, reconnecting
// with capped exponential backoff.
func (c *Client) runStream(ctx context.Context) {
	wsURL, err := streamURL(c.baseURL)
	if err != nil {
		c.logger.Error("Invalid stream url", zap.Error(err))
		return
	}

	attempt := 0
	for {
		if attempt > 0 {
			if err := sleep(ctx, backoff(c.baseDelay, attempt)); err != nil {
				return
			}
		}

		conn, _, err := c.dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			c.logger.Warn("Stream connect failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		attempt = 0
		c.logger.Debug("Stream connected", zap.String("url", wsURL))

		stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
		for {
			var snap models.Snapshot
			if err := conn.ReadJSON(&snap); err != nil {
				if ctx.Err() == nil {
					c.logger.Warn("Stream interrupted", zap.Error(err))
				}
				break
			}
			c.fanOut(snap)
		}
		stop()
		_ = conn.Close()

		if ctx.Err() != nil {
			return
		}
		attempt++
	}
}

func (c *Client) fanOut(snap models.Snapshot) {
	c.mu.Lock()
	listeners := make([]listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	for _, l := range listeners {
		s := snap.Clone()
		if err := safego.Call(func() { l.cb(s) }); err != nil {
			c.logger.Error("Listener panicked", zap.Error(err))
		}
	}
}

func streamURL(base string) (string, error) {
	u, err := url.Parse(base + server.StreamPath)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// backoff returns base * 2^(attempt-1), capped at maxRetryDelay.
func backoff(base time.Duration, attempt int) time.Duration {
	delay := time.Duration(math.Pow(2, float64(attempt-1))) * base
	if delay > maxRetryDelay || delay <= 0 {
		return maxRetryDelay
	}
	return delay
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

var _ bridge.API = (*Client)(nil)
