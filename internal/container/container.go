package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/definition"
	"github.com/garyjia/approvalflow/internal/application/dispatcher"
	"github.com/garyjia/approvalflow/internal/application/notification"
	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/application/workflow"
	"github.com/garyjia/approvalflow/internal/infrastructure/directory"
	"github.com/garyjia/approvalflow/internal/infrastructure/export"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approvalflow/internal/infrastructure/worker"
	httpserver "github.com/garyjia/approvalflow/internal/interfaces/http"
	"github.com/garyjia/approvalflow/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components are initialized in dependency order and torn down in reverse.
type Container struct {
	config *Config
	logger *zap.Logger

	// Infrastructure - Data
	database     *database.DB
	db           *sqlite.DB
	repositories *RepositoryBundle

	// Infrastructure - Identity and metrics
	directory *directory.Static
	metrics   *MetricsBundle

	// Application
	dispatcher dispatcher.Dispatcher
	notifier   *notification.Notifier
	store      definition.Store
	workflow   workflow.WorkflowEngine

	// Interfaces and background workers
	server  *httpserver.Server
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ctx    context.Context
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Workflow     port.WorkflowRepository
	Version      port.VersionRepository
	Instance     port.InstanceRepository
	Action       port.ActionRepository
	Progress     port.StepProgressRepository
	Notification port.NotificationRepository
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components.
// Components are initialized in dependency order:
// 1. Database and repositories
// 2. Directory and metrics
// 3. Event dispatcher and notifier
// 4. Definition store and workflow engine
// 5. HTTP server (built, not listening)
// 6. Background workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.logger.Info("Starting container initialization")

	// Step 1: Initialize database and repositories
	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	// Step 2: Initialize directory and metrics
	c.directory = ProvideDirectory(c.config.Directory)
	c.metrics = ProvideMetrics()
	c.logger.Info("Directory and metrics initialized", zap.Int("users", len(c.config.Directory)))

	// Step 3: Initialize dispatcher and notifier
	if err := c.initNotifications(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize notifications: %w", err)
	}
	c.logger.Info("Dispatcher and notifier initialized")

	// Step 4: Initialize definition store and workflow engine
	if err := c.initWorkflow(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize workflow engine: %w", err)
	}
	c.logger.Info("Workflow engine initialized")

	// Step 5: Build HTTP server
	c.initServer()
	c.logger.Info("HTTP server configured", zap.String("address", c.server.Address()))

	// Step 6: Start background workers
	c.workers = ProvideWorkers(&c.config.Retry, c.repositories, c.notifier, c.logger)
	if err := c.workers.StartAll(c.ctx); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to start workers: %w", err)
	}
	c.logger.Info("Workers started", zap.Int("count", c.workers.Count()))

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	// Cancel context to signal all goroutines
	if c.cancel != nil {
		c.cancel()
	}

	// Stop workers before anything they write to (reverse of step 6)
	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	// Step 1: Stop HTTP server (reverse of step 5)
	if c.server != nil {
		if err := c.server.Stop(); err != nil {
			c.logger.Error("Failed to stop HTTP server", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop server: %w", err))
		}
	}

	// Step 2: Engine and store hold no resources (reverse of step 4)

	// Step 3: Close dispatcher, draining in-flight notifications (reverse of step 3)
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
	}

	// Step 4: Directory and metrics need no cleanup (reverse of step 2)

	// Step 5: Close database (reverse of step 1)
	if c.database != nil {
		if err := c.database.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health() *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	check := func(name string, ok bool, message string) {
		status.Components[name] = ComponentHealth{Healthy: ok, Message: message}
		if !ok {
			status.Overall = false
		}
	}

	if c.database == nil {
		check("database", false, "not initialized")
	} else if err := c.database.Ping(); err != nil {
		check("database", false, fmt.Sprintf("ping failed: %v", err))
	} else {
		check("database", true, "")
	}

	if c.dispatcher == nil {
		check("dispatcher", false, "not initialized")
	} else {
		check("dispatcher", true, "")
	}

	if c.workflow == nil {
		check("workflow", false, "not initialized")
	} else {
		check("workflow", true, "")
	}

	if c.workers == nil || !c.workers.IsRunning() {
		check("workers", false, "not running")
	} else {
		check("workers", true, fmt.Sprintf("%d registered", c.workers.Count()))
	}

	return status
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase() error {
	bundle, err := ProvideDatabase(&c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.database = bundle.DB
	c.db = bundle.TransactionMgr

	repos, err := ProvideRepositories(c.database, c.logger)
	if err != nil {
		c.closeDatabase()
		return err
	}

	c.repositories = repos
	return nil
}

// initNotifications creates the dispatcher and subscribes the notifier.
func (c *Container) initNotifications() error {
	disp, err := ProvideDispatcher(&c.config.Engine, c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	channels, err := ProvideChannels(c.config.Channels, &c.config.Lark, c.repositories, c.logger)
	if err != nil {
		return err
	}

	deps := &NotifierDeps{
		Directory:    c.directory,
		Channels:     channels,
		DisplayNames: c.config.Engine.ModelDisplayNames,
		Metrics:      c.metrics.Collector,
		Dispatcher:   c.dispatcher,
		Logger:       c.logger,
	}
	if c.config.Retry.Enabled {
		deps.Failures = c.repositories.Notification
	}

	n, err := ProvideNotifier(deps)
	if err != nil {
		return err
	}
	c.notifier = n

	return nil
}

// initWorkflow creates the definition store and workflow engine.
func (c *Container) initWorkflow() error {
	store, engine, err := ProvideWorkflow(&WorkflowDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Directory:  c.directory,
		Metrics:    c.metrics.Collector,
		Engine:     &c.config.Engine,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}

	c.store = store
	c.workflow = engine
	return nil
}

// initServer builds the HTTP adapter over the application components.
func (c *Container) initServer() {
	c.server = httpserver.NewServer(
		httpserver.ServerConfig{
			Host:            c.config.Server.Host,
			Port:            c.config.Server.Port,
			ReadTimeout:     c.config.Server.ReadTimeout,
			WriteTimeout:    c.config.Server.WriteTimeout,
			ShutdownTimeout: c.config.Server.ShutdownTimeout,
		},
		httpserver.Deps{
			Store:     c.store,
			Engine:    c.workflow,
			Directory: c.directory,
			Ledger:    export.NewLedgerWriter(c.logger.Named("export")),
			Gatherer:  c.metrics.Registry,
			DB:        c.database.DB,
		},
		&zapLoggerAdapter{logger: c.logger.Named("http")},
	)
}

func (c *Container) closeDatabase() {
	if c.database != nil {
		_ = c.database.Close()
		c.database = nil
	}
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Directory returns the actor directory.
func (c *Container) Directory() port.ActorDirectory {
	return c.directory
}

// Registry returns the Prometheus registry served on /metrics.
func (c *Container) Registry() prometheus.Gatherer {
	return c.metrics.Registry
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// DefinitionStore returns the workflow definition store.
func (c *Container) DefinitionStore() definition.Store {
	return c.store
}

// WorkflowEngine returns the workflow engine.
func (c *Container) WorkflowEngine() workflow.WorkflowEngine {
	return c.workflow
}

// Server returns the HTTP server adapter.
func (c *Container) Server() *httpserver.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key/value Logger interfaces of
// the dispatcher, notifier and HTTP packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
