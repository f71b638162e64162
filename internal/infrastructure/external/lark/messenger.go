package lark

import (
	"context"
	"encoding/json"
	"fmt"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/port"
)

const (
	receiveIDTypeOpenID = "open_id"
	msgTypeText         = "text"
)

// messageCreator is the part of the IM message API the messenger uses
type messageCreator interface {
	Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error)
}

// Messenger implements port.MessageSender over the Lark IM API
type Messenger struct {
	messages messageCreator
	logger   *zap.Logger
}

// NewMessenger creates a new Lark message sender
func NewMessenger(sdk *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{
		messages: sdk.GetClient().Im.Message,
		logger:   logger,
	}
}

// SendMessage sends a text message to a user by open_id
func (m *Messenger) SendMessage(ctx context.Context, openID string, content string) error {
	if openID == "" {
		return fmt.Errorf("openID cannot be empty")
	}
	if content == "" {
		return fmt.Errorf("content cannot be empty")
	}

	text, err := json.Marshal(map[string]string{"text": content})
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(receiveIDTypeOpenID).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(openID).
			MsgType(msgTypeText).
			Content(string(text)).
			Build()).
		Build()

	resp, err := m.messages.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message",
			zap.String("receive_id", openID),
			zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}

	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", openID),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}

	messageID := ""
	if resp.Data != nil && resp.Data.MessageId != nil {
		messageID = *resp.Data.MessageId
	}

	m.logger.Info("Message sent successfully",
		zap.String("message_id", messageID),
		zap.String("receive_id", openID))
	return nil
}

// Verify interface compliance
var _ port.MessageSender = (*Messenger)(nil)
