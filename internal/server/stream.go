package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/models"
	"github.com/aegis-monitor/aegis/internal/util/safego"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 8192,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var sseHeaders = map[string]string{
	"Content-Type":      "text/event-stream",
	"Cache-Control":     "no-cache",
	"Connection":        "keep-alive",
	"X-Accel-Buffering": "no",
}

// subscribe registers a mailbox with the bridge and primes it with a fresh
// snapshot so the client does not wait a full interval for its first value.
func (s *Server) subscribe(ctx context.Context) (*mailbox, func()) {
	mb := newMailbox()
	id := s.api.OnUpdate(mb.put)
	if snap, err := s.api.GetInfo(ctx); err == nil {
		mb.put(snap)
	}
	s.streams.Add(1)
	return mb, func() {
		s.api.RemoveListener(id)
		s.streams.Add(-1)
	}
}

// stream serves snapshots over a websocket.
func (s *Server) stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	connID := uuid.NewString()
	logger := s.logger.With(zap.String("conn", connID), zap.String("remote", c.Request.RemoteAddr))
	logger.Info("Stream client connected")
	defer logger.Info("Stream client disconnected")

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	mb, unsubscribe := s.subscribe(ctx)
	defer unsubscribe()

	// Reader: the client sends nothing useful, but reading is how a close
	// frame or a dropped connection is noticed.
	safego.Go(func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case snap := <-mb.ch:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(snap); err != nil {
				logger.Debug("Stream write failed", zap.Error(err))
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.Debug("Stream ping failed", zap.Error(err))
				return
			}
		}
	}
}

// events serves snapshots as server-sent events.
func (s *Server) events(c *gin.Context) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "streaming unsupported"})
		return
	}
	for key, value := range sseHeaders {
		c.Writer.Header().Set(key, value)
	}
	c.Status(http.StatusOK)
	flusher.Flush()

	ctx := c.Request.Context()
	logger := s.logger.With(zap.String("conn", uuid.NewString()), zap.String("remote", c.Request.RemoteAddr))
	logger.Info("Event client connected")
	defer logger.Info("Event client disconnected")

	mb, unsubscribe := s.subscribe(ctx)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case snap := <-mb.ch:
			if err := writeEvent(c.Writer, "update", snap); err != nil {
				logger.Debug("Event write failed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, event string, snap models.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	return err
}
