package lark

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/notification"
	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// Channel delivers notifications as Lark text messages.
// Recipients without a Lark open_id are skipped.
type Channel struct {
	sender port.MessageSender
	logger *zap.Logger
}

// NewChannel creates a Lark notification channel
func NewChannel(sender port.MessageSender, logger *zap.Logger) *Channel {
	return &Channel{sender: sender, logger: logger}
}

func (c *Channel) Name() string { return entity.ChannelLark }

func (c *Channel) Send(ctx context.Context, msg notification.Message) error {
	openID := msg.Recipient.LarkOpenID
	if openID == "" {
		c.logger.Debug("Recipient has no Lark open_id, skipping",
			zap.String("recipient", msg.Recipient.UserID),
			zap.Int64("instance_id", msg.InstanceID))
		return nil
	}

	content := msg.Subject
	if msg.Body != "" {
		content += "\n\n" + msg.Body
	}
	return c.sender.SendMessage(ctx, openID, content)
}

var _ notification.Channel = (*Channel)(nil)
