// Package container provides dependency injection and lifecycle management
// for the approval workflow service.
package container

import (
	"fmt"
	"io/fs"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/definition"
	"github.com/garyjia/approvalflow/internal/application/dispatcher"
	"github.com/garyjia/approvalflow/internal/application/notification"
	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/application/workflow"
	"github.com/garyjia/approvalflow/internal/domain/condition"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/directory"
	infraLark "github.com/garyjia/approvalflow/internal/infrastructure/external/lark"
	"github.com/garyjia/approvalflow/internal/infrastructure/metrics"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/approvalflow/internal/infrastructure/worker"
	"github.com/garyjia/approvalflow/migrations"
	"github.com/garyjia/approvalflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// MetricsBundle holds the registry served on /metrics and the engine collector.
type MetricsBundle struct {
	Registry  *prometheus.Registry
	Collector *metrics.Collector
}

// ProvideDatabase opens the database, applies pending migrations and
// wraps the connection in a transaction manager.
func ProvideDatabase(cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	var schema fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		schema = os.DirFS(cfg.MigrationsDir)
	}
	if err := database.NewMigrator(db, logger).RunMigrations(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Workflow:     repository.NewWorkflowRepository(db.DB, logger),
		Version:      repository.NewVersionRepository(db.DB, logger),
		Instance:     repository.NewInstanceRepository(db.DB, logger),
		Action:       repository.NewActionRepository(db.DB, logger),
		Progress:     repository.NewStepProgressRepository(db.DB, logger),
		Notification: repository.NewNotificationRepository(db.DB, logger),
	}, nil
}

// ProvideDirectory builds the static actor directory from configured users.
func ProvideDirectory(users []directory.UserEntry) *directory.Static {
	return directory.NewStatic(users)
}

// ProvideMetrics creates a private registry with runtime collectors and
// the engine's counters.
func ProvideMetrics() *MetricsBundle {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &MetricsBundle{
		Registry:  reg,
		Collector: metrics.NewCollector(reg),
	}
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(cfg *EngineConfig, logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts := []dispatcher.Option{dispatcher.WithLogger(&zapLoggerAdapter{logger: logger})}
	if cfg != nil && cfg.HandlerTimeout > 0 {
		opts = append(opts, dispatcher.WithHandlerTimeout(cfg.HandlerTimeout))
	}
	return dispatcher.NewDispatcher(opts...), nil
}

// ProvideChannels builds the configured notification channels in order.
func ProvideChannels(names []string, larkCfg *LarkConfig, repos *RepositoryBundle, logger *zap.Logger) ([]notification.Channel, error) {
	if repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	channels := make([]notification.Channel, 0, len(names))
	for _, name := range names {
		switch name {
		case entity.ChannelLog:
			channels = append(channels, notification.NewLogChannel(&zapLoggerAdapter{logger: logger.Named("notification")}))
		case entity.ChannelDatabase:
			channels = append(channels, notification.NewDatabaseChannel(repos.Notification))
		case entity.ChannelLark:
			if larkCfg == nil || !larkCfg.Enabled {
				return nil, fmt.Errorf("channel %q requires lark to be enabled", name)
			}
			sdk := infraLark.NewSDKClient(infraLark.Config{
				AppID:      larkCfg.AppID,
				AppSecret:  larkCfg.AppSecret,
				BaseURL:    larkCfg.BaseURL,
				APITimeout: larkCfg.APITimeout,
			}, logger)
			channels = append(channels, infraLark.NewChannel(infraLark.NewMessenger(sdk, logger), logger))
		default:
			return nil, fmt.Errorf("unknown notification channel %q", name)
		}
	}
	return channels, nil
}

// NotifierDeps holds dependencies for the notifier.
type NotifierDeps struct {
	Directory    port.ActorDirectory
	Channels     []notification.Channel
	DisplayNames map[string]string
	Metrics      port.Metrics
	Dispatcher   dispatcher.Dispatcher
	Logger       *zap.Logger

	// Failures, when set, queues failed deliveries for the retry worker
	Failures port.NotificationRepository
}

// ProvideNotifier creates the notifier and subscribes it to every event type.
func ProvideNotifier(deps *NotifierDeps) (*notification.Notifier, error) {
	if deps == nil || deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}

	n := notification.NewNotifier(
		deps.Directory,
		notification.NewFormatter(entity.ModelDisplayNames(deps.DisplayNames)),
		deps.Metrics,
		&zapLoggerAdapter{logger: deps.Logger},
		deps.Channels...,
	)
	if deps.Failures != nil {
		n.RecordFailuresIn(deps.Failures)
	}
	n.Register(deps.Dispatcher)
	return n, nil
}

// ProvideWorkers registers the background workers enabled by configuration.
// The manager is returned even when it has nothing to run.
func ProvideWorkers(cfg *RetryConfig, repos *RepositoryBundle, notifier *notification.Notifier, logger *zap.Logger) *worker.Manager {
	manager := worker.NewManager(logger.Named("worker"))
	if cfg != nil && cfg.Enabled && notifier != nil {
		manager.Register(worker.NewRetryWorker(worker.RetryConfig{
			PollInterval: cfg.Interval,
			BatchSize:    cfg.BatchSize,
			MaxAttempts:  cfg.MaxAttempts,
		}, repos.Notification, notifier, logger.Named("retry")))
	}
	return manager
}

// WorkflowDeps holds dependencies for the definition store and engine.
type WorkflowDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Directory  port.ActorDirectory
	Metrics    port.Metrics
	Engine     *EngineConfig
	Logger     *zap.Logger
}

// ProvideWorkflow creates the definition store and workflow engine over a
// shared condition evaluator.
func ProvideWorkflow(deps *WorkflowDeps) (definition.Store, workflow.WorkflowEngine, error) {
	if deps == nil || deps.Repos == nil {
		return nil, nil, fmt.Errorf("repositories are required")
	}
	if deps.TxManager == nil {
		return nil, nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Logger == nil {
		return nil, nil, fmt.Errorf("logger is required")
	}

	engineCfg := deps.Engine
	if engineCfg == nil {
		engineCfg = &EngineConfig{}
	}
	evaluator := condition.NewEvaluator()

	store := definition.NewStore(
		deps.Repos.Workflow,
		deps.Repos.Version,
		deps.TxManager,
		evaluator,
		deps.Logger.Named("definition"),
		definition.WithModelTypes(engineCfg.ModelTypes...),
	)

	engine := workflow.NewEngine(
		workflow.Repositories{
			Workflows: deps.Repos.Workflow,
			Versions:  deps.Repos.Version,
			Instances: deps.Repos.Instance,
			Actions:   deps.Repos.Action,
			Progress:  deps.Repos.Progress,
		},
		deps.TxManager,
		deps.Logger.Named("engine"),
		workflow.WithEvaluator(evaluator),
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithDirectory(deps.Directory),
		workflow.WithMetrics(deps.Metrics),
		workflow.WithAutoSkip(engineCfg.AutoSkipSelfApproval),
	)

	return store, engine, nil
}
