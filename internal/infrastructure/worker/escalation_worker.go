package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bangunpro/rab-approval/internal/application/dispatcher"
	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/event"
	"go.uber.org/zap"
)

// EscalationWorkerConfig holds configuration for the escalation worker
type EscalationWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int

	// RetentionAge bounds how long notification rows are kept; zero
	// disables the purge
	RetentionAge time.Duration
}

// DefaultEscalationWorkerConfig returns default configuration
func DefaultEscalationWorkerConfig() EscalationWorkerConfig {
	return EscalationWorkerConfig{
		PollInterval: 10 * time.Minute,
		BatchSize:    100,
		RetentionAge: 90 * 24 * time.Hour,
	}
}

// EscalationWorker watches for pending steps past their due date. Each
// overdue step is stamped exactly once and a step_escalated event is
// dispatched so administrators get notified. The same loop doubles as the
// retention job for old notification rows.
type EscalationWorker struct {
	config EscalationWorkerConfig

	stepRepo         port.StepRepository
	notificationRepo port.NotificationRepository
	dispatcher       dispatcher.Dispatcher
	logger           *zap.Logger

	mu             sync.RWMutex
	ctx            context.Context
	cancel         context.CancelFunc
	isRunning      bool
	escalatedCount int
}

// NewEscalationWorker creates a new escalation worker
func NewEscalationWorker(
	config EscalationWorkerConfig,
	stepRepo port.StepRepository,
	notificationRepo port.NotificationRepository,
	d dispatcher.Dispatcher,
	logger *zap.Logger,
) *EscalationWorker {
	return &EscalationWorker{
		config:           config,
		stepRepo:         stepRepo,
		notificationRepo: notificationRepo,
		dispatcher:       d,
		logger:           logger,
	}
}

// Start begins the worker polling loop
func (w *EscalationWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("escalation worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("EscalationWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Duration("retention_age", w.config.RetentionAge))

	go w.pollLoop()

	return nil
}

// Stop gracefully terminates the worker
func (w *EscalationWorker) Stop() error {
	w.mu.Lock()
	if !w.isRunning {
		w.mu.Unlock()
		return nil
	}

	w.isRunning = false
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}

	w.logger.Info("EscalationWorker stopped", zap.Int("escalated_count", w.escalatedCount))
	return nil
}

// Name returns the worker name for identification
func (w *EscalationWorker) Name() string {
	return "EscalationWorker"
}

func (w *EscalationWorker) pollLoop() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Escalation poll loop context cancelled")
			return

		case <-ticker.C:
			if err := w.escalateOverdue(); err != nil {
				w.logger.Error("Failed to escalate overdue steps", zap.Error(err))
			}
			if err := w.purgeOldNotifications(); err != nil {
				w.logger.Error("Failed to purge old notifications", zap.Error(err))
			}
		}
	}
}

func (w *EscalationWorker) escalateOverdue() error {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now()
	overdue, err := w.stepRepo.ListOverdue(ctx, now, w.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list overdue steps: %w", err)
	}

	for _, step := range overdue {
		if err := w.stepRepo.MarkEscalated(ctx, step.ID, now); err != nil {
			w.logger.Error("Failed to mark step escalated",
				zap.String("step_id", step.ID),
				zap.Error(err))
			continue
		}

		w.dispatcher.DispatchAsync(ctx, event.New(event.TypeStepEscalated, step.InstanceID, step.ID, map[string]interface{}{
			"step_number":   step.StepNumber,
			"step_name":     step.Name,
			"required_role": step.RequiredRole,
		}))

		w.logger.Warn("Step escalated",
			zap.String("step_id", step.ID),
			zap.String("instance_id", step.InstanceID),
			zap.Int("step_number", step.StepNumber),
			zap.Timep("due_date", step.DueDate))

		w.mu.Lock()
		w.escalatedCount++
		w.mu.Unlock()
	}

	return nil
}

func (w *EscalationWorker) purgeOldNotifications() error {
	if w.config.RetentionAge <= 0 {
		return nil
	}

	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	cutoff := time.Now().Add(-w.config.RetentionAge)
	purged, err := w.notificationRepo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to purge notifications: %w", err)
	}
	if purged > 0 {
		w.logger.Info("Purged old notifications",
			zap.Int64("count", purged),
			zap.Time("cutoff", cutoff))
	}
	return nil
}
