package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kbukum/mediascribe/logger"
	"github.com/kbukum/mediascribe/observability"
	"github.com/kbukum/mediascribe/server/endpoint"
	"github.com/kbukum/mediascribe/server/middleware"
)

// Server is the HTTP server backed by gin and served through h2c.
type Server struct {
	httpServer *http.Server
	engine     *gin.Engine
	config     Config
	log        *logger.Logger
	metrics    *observability.Metrics

	mu   sync.Mutex
	addr string
}

// New creates a new Server. No middleware is applied yet.
func New(cfg Config, log *logger.Logger) *Server {
	if zerolog.GlobalLevel() <= zerolog.DebugLevel {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	engine.HandleMethodNotAllowed = true

	h2s := &http2.Server{
		MaxConcurrentStreams: 250,
		IdleTimeout:          duration(cfg.IdleTimeout),
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           h2c.NewHandler(engine, h2s),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       duration(cfg.ReadTimeout),
			WriteTimeout:      duration(cfg.WriteTimeout),
			IdleTimeout:       duration(cfg.IdleTimeout),
		},
		engine: engine,
		config: cfg,
		log:    log.WithComponent("server"),
		addr:   addr,
	}
}

// Engine returns the gin engine for route registration.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// Handler returns the root handler, suitable for httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start binds the port and begins serving. It returns once the listener is
// bound; serving continues in a goroutine.
func (s *Server) Start(_ context.Context) error {
	listener, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("server failed to bind %s: %w", s.httpServer.Addr, err)
	}
	s.mu.Lock()
	s.addr = listener.Addr().String()
	s.mu.Unlock()

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.log.Error("Server error", logger.Fields(logger.FieldError, err.Error()))
		}
	}()

	s.log.Info("HTTP server started", logger.Fields("addr", s.Addr()))
	return nil
}

// Stop gracefully shuts down the server, bounded by ctx and 10 seconds.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Shutting down HTTP server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.log.Error("Server shutdown error", logger.Fields(logger.FieldError, err.Error()))
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// SetMetrics sets the instruments used by the telemetry middleware. Call it
// before ApplyMiddleware.
func (s *Server) SetMetrics(m *observability.Metrics) {
	s.metrics = m
}

// ApplyMiddleware installs the standard middleware stack: recovery, request
// id, telemetry, CORS, body size limit, request logging, then rate limiting
// and auth when configured.
func (s *Server) ApplyMiddleware() {
	s.engine.Use(middleware.Recovery(s.log))
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Telemetry(s.metrics))
	s.engine.Use(middleware.CORS(&s.config.CORS))
	s.engine.Use(middleware.BodySizeLimit(s.config.MaxBodySize))
	s.engine.Use(middleware.RequestLogger(s.log))
	if s.config.RateLimit.Enabled {
		s.engine.Use(middleware.RateLimit(s.config.RateLimit))
	}
	if s.config.Auth.Enabled() {
		s.engine.Use(middleware.Auth(s.config.Auth))
	}
}

// RegisterHealthEndpoints registers /health, /health/live, /health/ready and /info.
func (s *Server) RegisterHealthEndpoints(serviceName, version string, checker endpoint.HealthChecker) {
	s.engine.GET("/health", endpoint.Health(serviceName, checker))
	s.engine.GET("/health/live", endpoint.Liveness(serviceName))
	s.engine.GET("/health/ready", endpoint.Readiness(serviceName, checker))
	s.engine.GET("/info", endpoint.Info(serviceName, version))
}
