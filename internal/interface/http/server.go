// Package http implements the REST API of the badge service on gin.
package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/command"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/application/query"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/domain/shared"
	"github.com/Posologia-Edu/pbl-virtual-sub001/internal/infrastructure/observability"
	"github.com/Posologia-Edu/pbl-virtual-sub001/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains HTTP server configuration.
type Config struct {
	// Host - address to bind (default: "0.0.0.0").
	Host string

	// Port - port to listen on (default: 8080).
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// MaxHeaderBytes - maximum size of request headers.
	MaxHeaderBytes int

	// AllowedOrigins - allowed origins for CORS, "*" allows any.
	// Empty disables CORS handling.
	AllowedOrigins []string

	// AdminKeyHeader - header carrying the administrator API key.
	AdminKeyHeader string

	// ServiceName - name reported on server spans.
	ServiceName string

	// Version - reported by /health.
	Version string
}

// DefaultConfig returns default server configuration.
func DefaultConfig() Config {
	return Config{
		Host:           "0.0.0.0",
		Port:           8080,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
		AllowedOrigins: []string{"*"},
		AdminKeyHeader: "X-Admin-Key",
		ServiceName:    "pbl-badges",
	}
}

// Address returns the server address string.
func (c Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// TokenVerifier resolves a bearer token to the calling user.
type TokenVerifier interface {
	Verify(token string) (shared.UserID, error)
}

// KeyVerifier checks administrator API keys.
type KeyVerifier interface {
	Enabled() bool
	Verify(key string) bool
}

// Dependencies contains all dependencies required by HTTP handlers.
type Dependencies struct {
	// Command Handlers (write side)
	ComputeBadges    *command.ComputeBadgesHandler
	UpsertDefinition *command.UpsertDefinitionHandler

	// Query Handlers (read side)
	GetUserBadges   *query.GetUserBadgesHandler
	ListDefinitions *query.ListDefinitionsHandler

	// Caller identity
	Tokens   TokenVerifier
	AdminKey KeyVerifier

	// ComputeLimiter throttles compute per caller. Nil disables limiting.
	ComputeLimiter Limiter

	// Metrics may be nil, in which case /metrics is not served.
	Metrics *observability.Metrics

	HealthChecker HealthChecker
	Logger        *logger.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER
// ══════════════════════════════════════════════════════════════════════════════

// Server represents the HTTP server.
type Server struct {
	config     Config
	deps       Dependencies
	engine     *gin.Engine
	httpServer *http.Server
	logger     *logger.Logger

	// Server state
	mu        sync.RWMutex
	running   bool
	startedAt time.Time
}

// NewServer creates a new HTTP server with the given configuration and dependencies.
// The gin mode is left to the caller.
func NewServer(config Config, deps Dependencies) *Server {
	if config.AdminKeyHeader == "" {
		config.AdminKeyHeader = "X-Admin-Key"
	}
	if deps.HealthChecker == nil {
		deps.HealthChecker = NewCompositeHealthChecker(config.Version)
	}

	s := &Server{
		config: config,
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger,
	}

	if s.logger == nil {
		s.logger = logger.Nop()
	}
	s.logger = s.logger.With(logger.Component("http"))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:           config.Address(),
		Handler:        s.engine,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		IdleTimeout:    config.IdleTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTING
// ══════════════════════════════════════════════════════════════════════════════

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	r := s.engine

	// Order matters: logging and metrics must observe the status written
	// by the recovery handler.
	r.Use(
		s.requestIDMiddleware(),
		s.loggingMiddleware(),
		s.metricsMiddleware(),
		s.recoveryMiddleware(),
		otelgin.Middleware(s.config.ServiceName),
	)
	if h := s.corsMiddleware(); h != nil {
		r.Use(h)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	// ─────────────────────────────────────────────────────────────────────────
	// Health & Status Endpoints
	// ─────────────────────────────────────────────────────────────────────────
	r.GET("/health", s.handleHealth)
	r.GET("/ready", s.handleReady)
	r.GET("/live", s.handleLive)
	if s.deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Administrators
	// ─────────────────────────────────────────────────────────────────────────
	if s.deps.AdminKey != nil && s.deps.AdminKey.Enabled() {
		admin := r.Group("/api/v1/admin", s.adminMiddleware())
		admin.PUT("/badges/definitions/:slug", s.handleUpsertDefinition)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// API v1 - Authenticated Callers
	// ─────────────────────────────────────────────────────────────────────────
	v1 := r.Group("/api/v1", s.authMiddleware())
	v1.POST("/badges/compute", s.rateLimitMiddleware(), s.handleComputeBadges)
	v1.GET("/badges", s.handleGetUserBadges)
	v1.GET("/badges/definitions", s.handleListDefinitions)
}

// corsMiddleware returns nil when no origin is configured.
func (s *Server) corsMiddleware() gin.HandlerFunc {
	origins := s.config.AllowedOrigins
	if len(origins) == 0 {
		return nil
	}

	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", s.config.AdminKeyHeader},
		ExposeHeaders: []string{"X-Request-ID", "Retry-After", "X-RateLimit-Limit", "X-RateLimit-Remaining"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cors.New(cfg)
		}
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cors.New(cfg)
}

// ══════════════════════════════════════════════════════════════════════════════
// SERVER LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("starting HTTP server", logger.String("address", s.config.Address()))

	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// StartAsync starts the server in a goroutine.
func (s *Server) StartAsync() <-chan error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil {
			errCh <- err
		}
		close(errCh)
	}()
	return errCh
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Address returns the server address.
func (s *Server) Address() string {
	return s.config.Address()
}
