// Package server wires the public gin router and the admin listener:
// the deep-link entry endpoint, the session creation API, the named
// proxied prefixes, and the catch-all proxied fallback.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/vyrodovalexey/bookproxy/internal/config"
	"github.com/vyrodovalexey/bookproxy/internal/health"
	"github.com/vyrodovalexey/bookproxy/internal/middleware"
	"github.com/vyrodovalexey/bookproxy/internal/observability"
	"github.com/vyrodovalexey/bookproxy/internal/proxy"
	"github.com/vyrodovalexey/bookproxy/internal/session"
)

// ginModeOnce ensures gin.SetMode is only called once.
var ginModeOnce sync.Once

// Server is the public HTTP server of the booking proxy.
type Server struct {
	engine      *gin.Engine
	httpServer  *http.Server
	adminServer *http.Server

	cfg      *config.Config
	sessions *session.Manager
	proxy    *proxy.Engine
	logger   observability.Logger
	metrics  *observability.Metrics
	limiter  *middleware.RateLimiter

	mu      sync.Mutex
	running bool
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger observability.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics sets the server metrics.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// New creates the public server over the session manager and proxy
// engine.
func New(cfg *config.Config, sessions *session.Manager, engine *proxy.Engine, opts ...Option) *Server {
	ginModeOnce.Do(func() {
		gin.SetMode(gin.ReleaseMode)
	})

	s := &Server{
		engine:   gin.New(),
		cfg:      cfg,
		sessions: sessions,
		proxy:    engine,
		logger:   observability.NopLogger(),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.engine.Use(
		middleware.Recovery(s.logger),
		middleware.RequestID(),
		middleware.Logging(s.logger, s.metrics),
	)

	s.registerRoutes()

	return s
}

// registerRoutes registers the entry endpoint, the creation API, and
// the proxied prefixes in that order; the catch-all is gin's NoRoute
// fallback and can never shadow them.
func (s *Server) registerRoutes() {
	rateLimit, limiter := middleware.RateLimitFromConfig(s.cfg.RateLimit, s.logger)
	s.limiter = limiter

	s.engine.GET("/book/:id", rateLimit, s.handleBook)
	s.engine.POST("/api/sessions", rateLimit, s.handleCreateSession)

	for _, prefix := range s.cfg.Proxy.ProxiedPrefixes {
		group := s.engine.Group(prefix)
		group.Any("", s.gate(gateNamed))
		group.Any("/*path", s.gate(gateNamed))
	}

	s.engine.NoRoute(s.gate(gateCatchAll))
}

// Handler exposes the gin engine, for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start starts the public listener and, when enabled, the admin
// listener. It blocks until the public listener stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Address, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout.Duration(),
		WriteTimeout: s.cfg.Server.WriteTimeout.Duration(),
		IdleTimeout:  s.cfg.Server.IdleTimeout.Duration(),
	}
	s.running = true
	s.mu.Unlock()

	if s.cfg.Admin.Enabled {
		s.startAdmin()
	}

	s.logger.Info("starting http server", observability.String("address", addr))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// startAdmin starts the admin listener with the liveness, readiness,
// and metrics endpoints.
func (s *Server) startAdmin() {
	h := health.NewHandler(s.logger)
	h.AddCheck("session_store", func(ctx context.Context) error {
		_, err := s.sessions.Get(ctx, "readiness-probe")
		if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
			return err
		}
		return nil
	})

	mux := http.NewServeMux()
	mux.Handle("/healthz", h.Liveness())
	mux.Handle("/readyz", h.Readiness())
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Address, s.cfg.Admin.Port)
	s.adminServer = &http.Server{Addr: addr, Handler: mux}

	go func() {
		s.logger.Info("starting admin server", observability.String("address", addr))
		if err := s.adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("admin server failed", observability.Error(err))
		}
	}()
}

// Stop gracefully shuts down both listeners.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if s.limiter != nil {
		s.limiter.Stop()
	}
	if s.adminServer != nil {
		_ = s.adminServer.Shutdown(ctx)
	}
	return s.httpServer.Shutdown(ctx)
}
