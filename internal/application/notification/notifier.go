// Package notification turns engine events into messages for the
// submitter or the approvers of the step an instance is waiting on.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approvalflow/internal/application/dispatcher"
	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/domain/event"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// Notifier fans engine events out to every configured channel.
// Delivery failures are logged and counted, never returned to the dispatcher.
type Notifier struct {
	directory port.ActorDirectory
	channels  []Channel
	formatter *Formatter
	metrics   port.Metrics
	logger    Logger

	// failures, when set, keeps failed deliveries for the retry worker
	failures port.NotificationRepository
	clock    func() time.Time
}

// NewNotifier creates a notifier
func NewNotifier(directory port.ActorDirectory, formatter *Formatter, metrics port.Metrics, logger Logger, channels ...Channel) *Notifier {
	if metrics == nil {
		metrics = port.NoopMetrics{}
	}
	return &Notifier{
		directory: directory,
		channels:  channels,
		formatter: formatter,
		metrics:   metrics,
		logger:    logger,
		clock:     time.Now,
	}
}

// RecordFailuresIn stores failed deliveries in repo so they can be retried.
// Failures of the database channel itself are only logged.
func (n *Notifier) RecordFailuresIn(repo port.NotificationRepository) {
	n.failures = repo
}

// Register subscribes the notifier to every lifecycle event
func (n *Notifier) Register(d dispatcher.Dispatcher) {
	for _, t := range event.AllTypes() {
		d.Register(dispatcher.HandlerInfo{
			Name:        "notifier." + t.String(),
			EventType:   t,
			Handler:     n.Handle,
			Description: "Deliver " + t.String() + " notifications",
		})
	}
}

// Handle delivers evt to its recipients over every channel
func (n *Notifier) Handle(ctx context.Context, evt *event.Event) error {
	recipients, err := n.recipients(ctx, evt)
	if err != nil {
		n.logger.Error("Failed to resolve notification recipients",
			"event_type", evt.Type,
			"instance_id", evt.InstanceID,
			"error", err,
		)
		return nil
	}
	if len(recipients) == 0 {
		n.logger.Info("No notification recipients", "event_type", evt.Type, "instance_id", evt.InstanceID)
		return nil
	}

	subject, body := n.formatter.Format(evt)

	for _, userID := range recipients {
		msg := Message{
			EventType:  evt.Type,
			InstanceID: evt.InstanceID,
			Recipient:  n.contact(ctx, userID),
			Subject:    subject,
			Body:       body,
		}

		for _, ch := range n.channels {
			err := ch.Send(ctx, msg)
			n.metrics.ObserveNotification(ch.Name(), err == nil)
			if err != nil {
				n.logger.Error("Notification delivery failed",
					"channel", ch.Name(),
					"event_type", evt.Type,
					"instance_id", evt.InstanceID,
					"recipient", userID,
					"error", err,
				)
				n.recordFailure(ctx, ch.Name(), msg, err)
			}
		}
	}

	return nil
}

// Redeliver sends a stored failed delivery again over the channel it failed
// on. The recipient's contact is looked up afresh.
func (n *Notifier) Redeliver(ctx context.Context, stored *entity.Notification) error {
	ch := n.channel(stored.Channel)
	if ch == nil {
		return fmt.Errorf("channel %q is not configured", stored.Channel)
	}

	err := ch.Send(ctx, Message{
		EventType:  event.Type(stored.EventType),
		InstanceID: stored.InstanceID,
		Recipient:  n.contact(ctx, stored.Recipient),
		Subject:    stored.Subject,
		Body:       stored.Body,
	})
	n.metrics.ObserveNotification(ch.Name(), err == nil)
	return err
}

func (n *Notifier) channel(name string) Channel {
	for _, ch := range n.channels {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

func (n *Notifier) recordFailure(ctx context.Context, channel string, msg Message, cause error) {
	if n.failures == nil || channel == entity.ChannelDatabase {
		return
	}

	err := n.failures.Create(ctx, &entity.Notification{
		InstanceID:   msg.InstanceID,
		EventType:    msg.EventType.String(),
		Channel:      channel,
		Recipient:    msg.Recipient.UserID,
		Subject:      msg.Subject,
		Body:         msg.Body,
		Status:       entity.NotificationStatusFailed,
		ErrorMessage: cause.Error(),
		Attempts:     1,
		CreatedAt:    n.clock().UTC(),
	})
	if err != nil {
		n.logger.Error("Failed to record notification failure",
			"channel", channel,
			"instance_id", msg.InstanceID,
			"error", err,
		)
	}
}

// recipients returns the approvers of the pending step for submit and
// advance events, and the submitter for every other event
func (n *Notifier) recipients(ctx context.Context, evt *event.Event) ([]string, error) {
	switch evt.Type {
	case event.TypeSubmitted, event.TypeStepAdvanced:
		approverType := entity.ApproverType(evt.GetPayloadString(event.KeyApproverType))
		identifiers := evt.GetPayloadStrings(event.KeyApproverIdentifiers)
		if len(identifiers) == 0 {
			return nil, nil
		}
		if n.directory == nil {
			if approverType == entity.ApproverTypeUser {
				return unique(identifiers), nil
			}
			return nil, nil
		}
		members, err := n.directory.Members(ctx, approverType, identifiers)
		if err != nil {
			return nil, fmt.Errorf("resolve %s approvers: %w", approverType, err)
		}
		return unique(members), nil
	default:
		submitter := evt.GetPayloadString(event.KeySubmittedBy)
		if submitter == "" {
			return nil, nil
		}
		return []string{submitter}, nil
	}
}

func (n *Notifier) contact(ctx context.Context, userID string) entity.Contact {
	if n.directory == nil {
		return entity.Contact{UserID: userID}
	}
	c, err := n.directory.Contact(ctx, userID)
	if err != nil || c == nil {
		return entity.Contact{UserID: userID}
	}
	return *c
}

func unique(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
