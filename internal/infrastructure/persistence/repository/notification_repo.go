package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/infrastructure/persistence/sqlite"
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

// Create stores a notification record
func (r *NotificationRepository) Create(ctx context.Context, n *entity.Notification) error {
	query := `
		INSERT INTO notifications (
			instance_id, event_type, channel, recipient, subject, body,
			status, error_message, attempts, sent_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if n.CreatedAt.IsZero() {
		n.CreatedAt = now()
	}

	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query,
		n.InstanceID,
		n.EventType,
		n.Channel,
		n.Recipient,
		n.Subject,
		n.Body,
		n.Status,
		n.ErrorMessage,
		n.Attempts,
		nullTime(n.SentAt),
		n.CreatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create notification",
			zap.Int64("instance_id", n.InstanceID),
			zap.String("recipient", n.Recipient),
			zap.Error(err))
		return fmt.Errorf("failed to create notification: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	n.ID = id
	return nil
}

const notificationColumns = `id, instance_id, event_type, channel, recipient, subject, body,
			status, error_message, attempts, sent_at, created_at`

// ListByInstance returns the notifications stored for an instance
func (r *NotificationRepository) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE instance_id = ?
		ORDER BY id
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query, instanceID)
	if err != nil {
		r.logger.Error("Failed to list notifications", zap.Int64("instance_id", instanceID), zap.Error(err))
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// ListFailed returns failed deliveries that still have attempts left
func (r *NotificationRepository) ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE status = ? AND attempts < ?
		ORDER BY id
		LIMIT ?
	`

	rows, err := sqlite.ExecutorFrom(ctx, r.db).QueryContext(ctx, query,
		entity.NotificationStatusFailed, maxAttempts, limit)
	if err != nil {
		r.logger.Error("Failed to list failed notifications", zap.Error(err))
		return nil, fmt.Errorf("failed to list failed notifications: %w", err)
	}
	defer rows.Close()

	return scanNotifications(rows)
}

// MarkSent records a successful redelivery
func (r *NotificationRepository) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	query := `
		UPDATE notifications
		SET status = ?, error_message = '', attempts = attempts + 1, sent_at = ?
		WHERE id = ?
	`

	return r.update(ctx, id, query, entity.NotificationStatusSent, sentAt, id)
}

// MarkFailed records another failed attempt
func (r *NotificationRepository) MarkFailed(ctx context.Context, id int64, errMsg string, abandon bool) error {
	status := entity.NotificationStatusFailed
	if abandon {
		status = entity.NotificationStatusAbandoned
	}

	query := `
		UPDATE notifications
		SET status = ?, error_message = ?, attempts = attempts + 1
		WHERE id = ?
	`

	return r.update(ctx, id, query, status, errMsg, id)
}

func (r *NotificationRepository) update(ctx context.Context, id int64, query string, args ...interface{}) error {
	result, err := sqlite.ExecutorFrom(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update notification", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update notification: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("notification %d not found", id)
	}
	return nil
}

func scanNotifications(rows *sql.Rows) ([]*entity.Notification, error) {
	var out []*entity.Notification
	for rows.Next() {
		var n entity.Notification
		var sentAt sql.NullTime

		if err := rows.Scan(
			&n.ID,
			&n.InstanceID,
			&n.EventType,
			&n.Channel,
			&n.Recipient,
			&n.Subject,
			&n.Body,
			&n.Status,
			&n.ErrorMessage,
			&n.Attempts,
			&sentAt,
			&n.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.SentAt = timePtr(sentAt)
		out = append(out, &n)
	}

	return out, rows.Err()
}

// Verify interface compliance
var _ port.NotificationRepository = (*NotificationRepository)(nil)
