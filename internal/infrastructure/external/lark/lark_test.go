package lark

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	larkcore "github.com/larksuite/oapi-sdk-go/v3/core"
	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/notification"
	"github.com/garyjia/approvalflow/internal/domain/entity"
)

type mockMessageCreator struct {
	reqs []*larkim.CreateMessageReq
	resp *larkim.CreateMessageResp
	err  error
}

func (m *mockMessageCreator) Create(ctx context.Context, req *larkim.CreateMessageReq, options ...larkcore.RequestOptionFunc) (*larkim.CreateMessageResp, error) {
	m.reqs = append(m.reqs, req)
	return m.resp, m.err
}

func okResponse() *larkim.CreateMessageResp {
	id := "om_123"
	return &larkim.CreateMessageResp{Data: &larkim.CreateMessageRespData{MessageId: &id}}
}

func TestMessenger_SendMessage(t *testing.T) {
	creator := &mockMessageCreator{resp: okResponse()}
	m := &Messenger{messages: creator, logger: zap.NewNop()}

	require.NoError(t, m.SendMessage(context.Background(), "ou_1", "Payment \"PR-7\"\nwas approved"))
	require.Len(t, creator.reqs, 1)

	body := creator.reqs[0].Body
	require.NotNil(t, body)
	assert.Equal(t, "ou_1", *body.ReceiveId)
	assert.Equal(t, "text", *body.MsgType)

	var content map[string]string
	require.NoError(t, json.Unmarshal([]byte(*body.Content), &content))
	assert.Equal(t, "Payment \"PR-7\"\nwas approved", content["text"])
}

func TestMessenger_Failures(t *testing.T) {
	m := &Messenger{messages: &mockMessageCreator{resp: okResponse()}, logger: zap.NewNop()}
	assert.Error(t, m.SendMessage(context.Background(), "", "hello"))
	assert.Error(t, m.SendMessage(context.Background(), "ou_1", ""))

	m.messages = &mockMessageCreator{err: errors.New("timeout")}
	assert.Error(t, m.SendMessage(context.Background(), "ou_1", "hello"))

	m.messages = &mockMessageCreator{resp: &larkim.CreateMessageResp{CodeError: larkcore.CodeError{Code: 230002, Msg: "bot not in chat"}}}
	err := m.SendMessage(context.Background(), "ou_1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "230002")
}

type mockSender struct {
	openIDs  []string
	contents []string
}

func (m *mockSender) SendMessage(ctx context.Context, openID string, content string) error {
	m.openIDs = append(m.openIDs, openID)
	m.contents = append(m.contents, content)
	return nil
}

func TestChannel_Send(t *testing.T) {
	sender := &mockSender{}
	ch := NewChannel(sender, zap.NewNop())
	assert.Equal(t, entity.ChannelLark, ch.Name())

	msg := notification.Message{
		InstanceID: 3,
		Recipient:  entity.Contact{UserID: "fin-1", LarkOpenID: "ou_fin1"},
		Subject:    "Settlement \"S-9\" is awaiting your approval",
		Body:       "Step: Finance",
	}
	require.NoError(t, ch.Send(context.Background(), msg))
	assert.Equal(t, []string{"ou_fin1"}, sender.openIDs)
	assert.Equal(t, "Settlement \"S-9\" is awaiting your approval\n\nStep: Finance", sender.contents[0])

	msg.Recipient = entity.Contact{UserID: "no-lark"}
	require.NoError(t, ch.Send(context.Background(), msg))
	assert.Len(t, sender.openIDs, 1, "recipients without an open_id are skipped")
}
