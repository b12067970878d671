// Package server exposes a bridge.API over HTTP so display surfaces can run
// in a separate process from the collector.
//
//	GET /api/health         liveness probe
//	GET /api/system/info    one-shot snapshot
//	GET /api/system/stream  websocket, one JSON snapshot per message
//	GET /api/system/events  server-sent events, "event: update"
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/bridge"
)

// Route paths shared with the remote client.
const (
	HealthPath = "/api/health"
	InfoPath   = "/api/system/info"
	StreamPath = "/api/system/stream"
	EventsPath = "/api/system/events"
)

const shutdownTimeout = 5 * time.Second

// HealthResponse is the body of the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Streams int64  `json:"streams"`
}

// ErrorResponse is the body returned for failed requests.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Options configures the HTTP server.
type Options struct {
	Listen  string
	GinMode string
	Version string
}

// Server serves telemetry from a bridge.API.
type Server struct {
	api     bridge.API
	opts    Options
	logger  *zap.Logger
	engine  *gin.Engine
	streams atomic.Int64
}

// New builds the router. The server does not listen until Run is called.
func New(api bridge.API, opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.GinMode == "" {
		opts.GinMode = gin.ReleaseMode
	}
	gin.SetMode(opts.GinMode)

	s := &Server{
		api:    api,
		opts:   opts,
		logger: logger.Named("server"),
	}

	r := gin.New()
	r.Use(gin.Recovery(), s.logMiddleware())

	r.GET(HealthPath, s.health)
	system := r.Group("/api/system")
	{
		system.GET("/info", s.info)
		system.GET("/stream", s.stream)
		system.GET("/events", s.events)
	}

	s.engine = r
	return s
}

// Handler returns the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Collector API listening", zap.String("addr", s.opts.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down collector API")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: s.opts.Version,
		Streams: s.streams.Load(),
	})
}

func (s *Server) info(c *gin.Context) {
	snap, err := s.api.GetInfo(c.Request.Context())
	if err != nil {
		s.logger.Warn("Snapshot request failed", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) logMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("Request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
