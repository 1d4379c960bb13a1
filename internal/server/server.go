// Package server is the telemetry backend: an SSE emitter, a WebSocket push
// feed, and the command, status and video endpoints of a mock vehicle.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"droneops-gcs/internal/telemetry"

	"github.com/gin-gonic/gin"
)

// CounterMode selects how sample indexes are scoped across stream requests.
type CounterMode string

const (
	// CounterShared advances one counter for every connection, so concurrent
	// streams see interleaved indexes.
	CounterShared CounterMode = "shared"
	// CounterPerConnection starts every stream at index 1.
	CounterPerConnection CounterMode = "per_connection"
)

// DefaultInterval is the emitter and feed tick.
const DefaultInterval = 500 * time.Millisecond

// Options configures a Server.
type Options struct {
	Generator *telemetry.Generator
	Interval  time.Duration
	Counter   CounterMode
	APIKey    string
	Logger    *slog.Logger
	// Debug enables gin debug mode and per-request logging at info level.
	Debug bool
}

// Server serves the backend routes.
type Server struct {
	engine   *gin.Engine
	log      *slog.Logger
	gen      *telemetry.Generator
	interval time.Duration
	mode     CounterMode
	apiKey   string

	shared  telemetry.Counter
	streams atomic.Int64
	hub     *hub
	Vehicle *Vehicle

	mu     sync.RWMutex
	latest *telemetry.Sample
	camera string

	startOnce sync.Once
}

// New builds the engine and routes. Call Start (or Run) before serving so the
// WebSocket hub and feed are running.
func New(opts Options) *Server {
	if opts.Generator == nil {
		opts.Generator = telemetry.NewGenerator()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Counter == "" {
		opts.Counter = CounterShared
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		engine:   gin.New(),
		log:      opts.Logger.With("component", "server"),
		gen:      opts.Generator,
		interval: opts.Interval,
		mode:     opts.Counter,
		apiKey:   opts.APIKey,
		Vehicle:  NewVehicle(),
		camera:   CameraFront,
	}
	s.hub = newHub(s.log)

	s.engine.Use(gin.Recovery(), s.requestLogger(opts.Debug), cors())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.engine.GET("/health", s.getHealth)
	s.engine.GET("/api/drone/telemetry", s.streamTelemetry)
	s.engine.GET("/ws", s.handleWebSocket)

	v1 := s.engine.Group("/api/v1")
	v1.GET("/status", s.getStatus)
	v1.POST("/command/:action", s.postCommand)
	v1.GET("/video/status", s.getVideoStatus)
	v1.POST("/video/camera/:name", s.postCamera)
}

// Handler exposes the gin engine.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start launches the WebSocket hub and the vehicle feed. They stop when ctx
// is cancelled. Repeated calls are no-ops.
func (s *Server) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		go s.hub.run(ctx)
		go s.feed(ctx)
	})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
// Open streams observe the cancellation through their request contexts.
func (s *Server) Run(ctx context.Context, addr string) error {
	s.Start(ctx)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", "addr", addr, "counter", s.mode, "interval", s.interval)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.log.Info("server stopped")
	return nil
}

// feed produces the vehicle timeline used by /ws and /api/v1/status.
func (s *Server) feed(ctx context.Context) {
	var counter telemetry.Counter
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !s.Vehicle.Connected() {
				continue
			}
			sample := s.gen.Generate(counter.Next(), true)
			payload, err := sample.Encode()
			if err != nil {
				s.log.Error("encode feed sample", "err", err)
				continue
			}
			s.mu.Lock()
			s.latest = &sample
			s.mu.Unlock()
			s.hub.publish(payload)
		}
	}
}

// nextIndex returns the index source for one stream request.
func (s *Server) nextIndex() func() uint64 {
	if s.mode == CounterPerConnection {
		var c telemetry.Counter
		return c.Next
	}
	return s.shared.Next
}

func (s *Server) requestLogger(debug bool) gin.HandlerFunc {
	level := slog.LevelDebug
	if debug {
		level = slog.LevelInfo
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Log(c.Request.Context(), level, "request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start))
	}
}

func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://localhost:") || strings.HasPrefix(origin, "http://127.0.0.1:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Cache-Control")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
