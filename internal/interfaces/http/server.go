// Package http provides the HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to definition
// store and workflow engine calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/garyjia/approvalflow/internal/application/definition"
	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/application/workflow"
	"github.com/garyjia/approvalflow/internal/infrastructure/export"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Pinger reports whether the backing store is reachable
type Pinger interface {
	PingContext(ctx context.Context) error
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Deps are the application components the routes call into
type Deps struct {
	Store     definition.Store
	Engine    workflow.WorkflowEngine
	Directory port.ActorDirectory
	Ledger    *export.LedgerWriter
	Gatherer  prometheus.Gatherer
	DB        Pinger
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	deps       Deps
	logger     Logger
}

// NewServer creates a new HTTP server over the given components
func NewServer(config ServerConfig, deps Deps, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config: config,
		router: gin.New(),
		deps:   deps,
		logger: logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"user_id", c.GetHeader(UserHeader),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.deps, s.logger)

	s.router.GET("/health", h.HealthCheck)
	if s.deps.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	api := s.router.Group("/api/v1")
	api.Use(h.identify)
	{
		// Definitions
		api.POST("/workflows", h.CreateWorkflow)
		api.GET("/workflows", h.ListWorkflows)
		api.GET("/workflows/:id", h.GetWorkflow)
		api.POST("/workflows/:id/deactivate", h.DeactivateWorkflow)
		api.POST("/workflows/:id/versions", h.CreateVersion)
		api.GET("/workflows/:id/versions", h.ListVersions)
		api.GET("/workflows/:id/current-version", h.CurrentVersion)
		api.GET("/versions/:id", h.GetVersion)
		api.POST("/versions/:id/activate", h.ActivateVersion)

		// Instances
		api.POST("/instances", h.InitializeInstance)
		api.GET("/instances/:id", h.GetInstance)
		api.POST("/instances/:id/submit", h.SubmitInstance)
		api.POST("/instances/:id/resubmit", h.ResubmitInstance)
		api.POST("/instances/:id/actions", h.ProcessAction)
		api.GET("/instances/:id/actions", h.ListActions)
		api.GET("/instances/:id/progress", h.ListProgress)
		api.GET("/instances/:id/available-actions", h.AvailableActions)
		api.POST("/instances/:id/cancel", h.CancelInstance)
		api.GET("/instances/:id/export", h.ExportInstance)

		// Inbox
		api.GET("/pending", h.Pending)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:         s.Address(),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", s.httpServer.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
