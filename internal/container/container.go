// Package container wires the application together: database, repositories,
// dispatcher, services and workers, initialized in dependency order and
// torn down in reverse.
package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bangunpro/rab-approval/internal/application/dispatcher"
	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/application/service"
	"github.com/bangunpro/rab-approval/internal/config"
	"github.com/bangunpro/rab-approval/internal/infrastructure/external/webhook"
	"github.com/bangunpro/rab-approval/internal/infrastructure/persistence/repository"
	"github.com/bangunpro/rab-approval/internal/infrastructure/worker"
	"github.com/bangunpro/rab-approval/pkg/database"
	"go.uber.org/zap"
)

// Container manages all application dependencies and lifecycle
type Container struct {
	config *config.Config
	logger *zap.Logger

	db           *database.DB
	txManager    port.TransactionManager
	repositories *RepositoryBundle

	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	workers *worker.Manager

	mu     sync.Mutex
	cancel context.CancelFunc
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access
type RepositoryBundle struct {
	Workflow     port.WorkflowRepository
	Instance     port.InstanceRepository
	Step         port.StepRepository
	Notification port.NotificationRepository
	Budget       port.BudgetRepository
	User         port.UserRepository
}

// ServiceBundle groups all application services
type ServiceBundle struct {
	Approval     service.ApprovalService
	Workflow     service.WorkflowService
	Query        service.QueryService
	Notification service.NotificationService
	Report       service.ReportService
	Budget       service.BudgetService
	User         service.UserService
}

// New creates a new container; call Start to initialize components
func New(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components in dependency order:
// database and repositories, dispatcher, services, then workers.
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	var workerCtx context.Context
	workerCtx, c.cancel = context.WithCancel(ctx)

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	c.initDispatcher()
	c.initServices()
	c.logger.Info("Application services initialized")

	if err := c.initWorkers(workerCtx); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}
	c.logger.Info("Workers initialized and started")

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close gracefully shuts down all components in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")

	var errs []error

	if c.cancel != nil {
		c.cancel()
	}

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			c.logger.Error("Failed to stop workers", zap.Error(err))
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

func (c *Container) initDatabase() error {
	db, err := database.New(database.Config{
		Path:            c.config.Database.Path,
		MaxOpenConns:    c.config.Database.MaxOpenConns,
		MaxIdleConns:    c.config.Database.MaxIdleConns,
		ConnMaxLifetime: c.config.Database.ConnMaxLifetime,
	}, c.logger)
	if err != nil {
		return err
	}
	c.db = db

	migrator := database.NewMigrator(db, c.logger)
	if err := migrator.RunMigrations(c.config.Database.MigrationsDir); err != nil {
		return fmt.Errorf("migrations failed: %w", err)
	}

	c.txManager = repository.NewTxManager(db.DB, c.logger)
	c.repositories = &RepositoryBundle{
		Workflow:     repository.NewWorkflowRepository(db.DB, c.logger),
		Instance:     repository.NewInstanceRepository(db.DB, c.logger),
		Step:         repository.NewStepRepository(db.DB, c.logger),
		Notification: repository.NewNotificationRepository(db.DB, c.logger),
		Budget:       repository.NewBudgetRepository(db.DB, c.logger),
		User:         repository.NewUserRepository(db.DB, c.logger),
	}

	return nil
}

func (c *Container) initDispatcher() {
	c.dispatcher = dispatcher.New(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: c.logger.Named("dispatcher")}),
	)
}

func (c *Container) initServices() {
	serviceLogger := &zapLoggerAdapter{logger: c.logger}

	c.services = &ServiceBundle{
		Approval: service.NewApprovalService(
			c.repositories.Workflow,
			c.repositories.Instance,
			c.repositories.Step,
			c.repositories.Budget,
			c.repositories.User,
			c.txManager,
			c.dispatcher,
			serviceLogger,
		),
		Workflow: service.NewWorkflowService(
			c.repositories.Workflow,
			c.txManager,
			serviceLogger,
		),
		Query: service.NewQueryService(
			c.repositories.Step,
			c.repositories.Instance,
			c.repositories.User,
			serviceLogger,
		),
		Notification: service.NewNotificationService(
			c.repositories.Notification,
			c.repositories.User,
			serviceLogger,
		),
		Report: service.NewReportService(
			c.repositories.Instance,
			c.repositories.Step,
			serviceLogger,
		),
		Budget: service.NewBudgetService(c.repositories.Budget, serviceLogger),
		User:   service.NewUserService(c.repositories.User, serviceLogger),
	}

	// Wire notification fan-out onto the dispatcher
	c.services.Notification.Register(c.dispatcher)
}

func (c *Container) initWorkers(ctx context.Context) error {
	c.workers = worker.NewManager(c.logger)

	if c.config.Notification.WebhookURL != "" {
		messenger := webhook.NewMessenger(webhook.Config{
			URL:     c.config.Notification.WebhookURL,
			Timeout: c.config.Notification.RequestTimeout,
		}, c.logger)

		c.workers.Register(worker.NewDeliveryWorker(
			worker.DeliveryWorkerConfig{
				PollInterval: c.config.Notification.DeliveryPoll,
				BatchSize:    c.config.Notification.DeliveryBatch,
				SendTimeout:  c.config.Notification.RequestTimeout,
			},
			c.repositories.Notification,
			c.repositories.User,
			messenger,
			c.logger,
		))
	} else {
		c.logger.Warn("No webhook URL configured, notification delivery disabled")
	}

	c.workers.Register(worker.NewEscalationWorker(
		worker.EscalationWorkerConfig{
			PollInterval: c.config.Escalation.PollInterval,
			BatchSize:    100,
			RetentionAge: c.config.Escalation.RetentionAge,
		},
		c.repositories.Step,
		c.repositories.Notification,
		c.dispatcher,
		c.logger,
	))

	return c.workers.StartAll(ctx)
}

// Services returns the application service bundle
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Repositories returns the repository bundle
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// Logger returns the base logger
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// ServiceLogger returns a logger satisfying the application Logger interfaces
func (c *Container) ServiceLogger() service.Logger {
	return &zapLoggerAdapter{logger: c.logger}
}

type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields
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
