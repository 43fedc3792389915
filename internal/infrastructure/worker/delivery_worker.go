package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"go.uber.org/zap"
)

// DeliveryWorkerConfig holds configuration for the delivery worker
type DeliveryWorkerConfig struct {
	PollInterval time.Duration
	BatchSize    int
	SendTimeout  time.Duration
}

// DefaultDeliveryWorkerConfig returns default configuration
func DefaultDeliveryWorkerConfig() DeliveryWorkerConfig {
	return DeliveryWorkerConfig{
		PollInterval: 30 * time.Second,
		BatchSize:    50,
		SendTimeout:  10 * time.Second,
	}
}

// DeliveryWorker drains the notification outbox: it polls for pending
// rows, pushes each through the messenger and marks the row sent or
// failed. A failed row stays failed; there is no automatic retry for it.
type DeliveryWorker struct {
	config DeliveryWorkerConfig

	notificationRepo port.NotificationRepository
	userRepo         port.UserRepository
	messenger        port.Messenger
	logger           *zap.Logger

	mu        sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	isRunning bool
	sentCount int
	failCount int
}

// NewDeliveryWorker creates a new delivery worker
func NewDeliveryWorker(
	config DeliveryWorkerConfig,
	notificationRepo port.NotificationRepository,
	userRepo port.UserRepository,
	messenger port.Messenger,
	logger *zap.Logger,
) *DeliveryWorker {
	return &DeliveryWorker{
		config:           config,
		notificationRepo: notificationRepo,
		userRepo:         userRepo,
		messenger:        messenger,
		logger:           logger,
	}
}

// Start begins the worker polling loop
func (w *DeliveryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.isRunning {
		w.mu.Unlock()
		return fmt.Errorf("delivery worker already running")
	}

	w.ctx, w.cancel = context.WithCancel(ctx)
	w.isRunning = true
	w.mu.Unlock()

	w.logger.Info("DeliveryWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize))

	go w.pollLoop()

	return nil
}

// Stop gracefully terminates the worker
func (w *DeliveryWorker) Stop() error {
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

	w.logger.Info("DeliveryWorker stopped",
		zap.Int("sent_count", w.sentCount),
		zap.Int("fail_count", w.failCount))

	return nil
}

// Name returns the worker name for identification
func (w *DeliveryWorker) Name() string {
	return "DeliveryWorker"
}

func (w *DeliveryWorker) pollLoop() {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			w.logger.Debug("Delivery poll loop context cancelled")
			return

		case <-ticker.C:
			if err := w.deliverPending(); err != nil {
				w.logger.Error("Failed to deliver pending notifications", zap.Error(err))
			}
		}
	}
}

func (w *DeliveryWorker) deliverPending() error {
	ctx := w.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	pending, err := w.notificationRepo.ListPending(ctx, w.config.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to list pending notifications: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	w.logger.Debug("Delivering notifications", zap.Int("count", len(pending)))

	for _, n := range pending {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		recipient, err := w.userRepo.GetByID(ctx, n.RecipientID)
		if err != nil {
			w.logger.Error("Failed to resolve recipient",
				zap.String("notification_id", n.ID),
				zap.String("recipient_id", n.RecipientID),
				zap.Error(err))
			continue
		}
		if recipient == nil {
			w.markFailed(ctx, n.ID, "recipient not found")
			continue
		}

		sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
		err = w.messenger.Send(sendCtx, n, recipient)
		cancel()

		if err != nil {
			w.logger.Warn("Notification delivery failed",
				zap.String("notification_id", n.ID),
				zap.String("recipient_id", n.RecipientID),
				zap.Error(err))
			w.markFailed(ctx, n.ID, err.Error())
			continue
		}

		if err := w.notificationRepo.MarkSent(ctx, n.ID, time.Now()); err != nil {
			w.logger.Error("Failed to mark notification sent",
				zap.String("notification_id", n.ID),
				zap.Error(err))
			continue
		}

		w.mu.Lock()
		w.sentCount++
		w.mu.Unlock()
	}

	return nil
}

func (w *DeliveryWorker) markFailed(ctx context.Context, id, reason string) {
	if err := w.notificationRepo.MarkFailed(ctx, id, reason); err != nil {
		w.logger.Error("Failed to mark notification failed",
			zap.String("notification_id", id),
			zap.Error(err))
		return
	}
	w.mu.Lock()
	w.failCount++
	w.mu.Unlock()
}
