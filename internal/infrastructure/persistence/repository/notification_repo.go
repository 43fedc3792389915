package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bangunpro/rab-approval/internal/application/port"
	"github.com/bangunpro/rab-approval/internal/domain/entity"
	"go.uber.org/zap"
)

// NotificationRepository implements port.NotificationRepository
type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db *sql.DB, logger *zap.Logger) port.NotificationRepository {
	return &NotificationRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new outbox row
func (r *NotificationRepository) Create(ctx context.Context, n *entity.ApprovalNotification) error {
	query := `
		INSERT INTO approval_notifications (
			id, instance_id, step_id, recipient_id, type, subject, message, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query,
		n.ID,
		n.InstanceID,
		n.StepID,
		n.RecipientID,
		n.Type,
		n.Subject,
		n.Message,
		n.Status,
	)
	if err != nil {
		r.logger.Error("Failed to create notification", zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	return nil
}

const notificationColumns = `
	id, instance_id, step_id, recipient_id, type, subject, message,
	status, error_message, sent_at, read_at, created_at
`

func scanNotification(row interface{ Scan(...interface{}) error }) (*entity.ApprovalNotification, error) {
	var n entity.ApprovalNotification
	var stepID, errorMessage sql.NullString
	var sentAt, readAt sql.NullTime

	err := row.Scan(
		&n.ID,
		&n.InstanceID,
		&stepID,
		&n.RecipientID,
		&n.Type,
		&n.Subject,
		&n.Message,
		&n.Status,
		&errorMessage,
		&sentAt,
		&readAt,
		&n.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	n.StepID = stepID.String
	n.ErrorMessage = errorMessage.String
	if sentAt.Valid {
		n.SentAt = &sentAt.Time
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}

	return &n, nil
}

// GetByID retrieves a notification by ID
func (r *NotificationRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalNotification, error) {
	query := `SELECT ` + notificationColumns + ` FROM approval_notifications WHERE id = ?`

	n, err := scanNotification(getExecutor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get notification", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get notification: %w", err)
	}

	return n, nil
}

// ListByRecipient retrieves a recipient's notifications, newest first
func (r *NotificationRepository) ListByRecipient(ctx context.Context, recipientID string, limit, offset int) ([]*entity.ApprovalNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM approval_notifications
		WHERE recipient_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, recipientID, limit, offset)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.String("recipient_id", recipientID), zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

// ListPending retrieves undelivered rows for the delivery worker, oldest first
func (r *NotificationRepository) ListPending(ctx context.Context, limit int) ([]*entity.ApprovalNotification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM approval_notifications
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT ?
	`

	rows, err := getExecutor(ctx, r.db).QueryContext(ctx, query, limit)
	if err != nil {
		r.logger.Error("Failed to list pending notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list pending notifications: %w", err)
	}
	defer rows.Close()

	return collectNotifications(rows)
}

func collectNotifications(rows *sql.Rows) ([]*entity.ApprovalNotification, error) {
	var notifications []*entity.ApprovalNotification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// MarkSent records successful delivery
func (r *NotificationRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE approval_notifications SET status = 'sent', sent_at = ?, error_message = NULL WHERE id = ?`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, at, id)
	if err != nil {
		r.logger.Error("Failed to mark notification sent", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification sent: %w", err)
	}

	return nil
}

// MarkFailed records a delivery failure with its error message
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string, errorMsg string) error {
	query := `UPDATE approval_notifications SET status = 'failed', error_message = ? WHERE id = ?`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, errorMsg, id)
	if err != nil {
		r.logger.Error("Failed to mark notification failed", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification failed: %w", err)
	}

	return nil
}

// MarkRead stamps the read time
func (r *NotificationRepository) MarkRead(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE approval_notifications SET status = 'read', read_at = ? WHERE id = ?`

	_, err := getExecutor(ctx, r.db).ExecContext(ctx, query, at, id)
	if err != nil {
		r.logger.Error("Failed to mark notification read", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to mark notification read: %w", err)
	}

	return nil
}

// DeleteOlderThan purges rows created before the cutoff, returning the count removed
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM approval_notifications WHERE created_at < ?`

	result, err := getExecutor(ctx, r.db).ExecContext(ctx, query, cutoff)
	if err != nil {
		r.logger.Error("Failed to purge notifications", zap.Error(err))
		return 0, fmt.Errorf("failed to purge notifications: %w", err)
	}

	return result.RowsAffected()
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
