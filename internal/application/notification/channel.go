package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/domain/event"
)

// Message is one rendered notification for one recipient
type Message struct {
	EventType  event.Type
	InstanceID int64
	Recipient  entity.Contact
	Subject    string
	Body       string
}

// Channel delivers messages over one medium
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// LogChannel writes messages to the application log
type LogChannel struct {
	logger Logger
}

// NewLogChannel creates a channel that only logs
func NewLogChannel(logger Logger) *LogChannel {
	return &LogChannel{logger: logger}
}

func (c *LogChannel) Name() string { return entity.ChannelLog }

func (c *LogChannel) Send(ctx context.Context, msg Message) error {
	c.logger.Info("Notification",
		"event_type", msg.EventType,
		"instance_id", msg.InstanceID,
		"recipient", msg.Recipient.UserID,
		"subject", msg.Subject,
	)
	return nil
}

// DatabaseChannel stores messages as in-app notifications
type DatabaseChannel struct {
	repo  port.NotificationRepository
	clock func() time.Time
}

// NewDatabaseChannel creates a channel backed by the notifications table
func NewDatabaseChannel(repo port.NotificationRepository) *DatabaseChannel {
	return &DatabaseChannel{repo: repo, clock: time.Now}
}

func (c *DatabaseChannel) Name() string { return entity.ChannelDatabase }

func (c *DatabaseChannel) Send(ctx context.Context, msg Message) error {
	sentAt := c.clock().UTC()
	n := &entity.Notification{
		InstanceID: msg.InstanceID,
		EventType:  msg.EventType.String(),
		Channel:    entity.ChannelDatabase,
		Recipient:  msg.Recipient.UserID,
		Subject:    msg.Subject,
		Body:       msg.Body,
		Status:     entity.NotificationStatusSent,
		SentAt:     &sentAt,
	}
	if err := c.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("store notification: %w", err)
	}
	return nil
}

var (
	_ Channel = (*LogChannel)(nil)
	_ Channel = (*DatabaseChannel)(nil)
)
