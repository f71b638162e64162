package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approvalflow/internal/application/dispatcher"
	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/domain/event"
)

type mockLogger struct {
	mu     sync.Mutex
	errors []string
}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{}) {}

func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, msg)
}

type mockChannel struct {
	name string
	err  error
	sent []Message
}

func (m *mockChannel) Name() string { return m.name }

func (m *mockChannel) Send(ctx context.Context, msg Message) error {
	m.sent = append(m.sent, msg)
	return m.err
}

type mockDirectory struct {
	members  map[string][]string
	contacts map[string]entity.Contact
	err      error
}

func (m *mockDirectory) Lookup(ctx context.Context, userID string) (*entity.Actor, error) {
	return nil, nil
}

func (m *mockDirectory) Members(ctx context.Context, approverType entity.ApproverType, identifiers []string) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []string
	for _, id := range identifiers {
		out = append(out, m.members[string(approverType)+":"+id]...)
	}
	return out, nil
}

func (m *mockDirectory) Contact(ctx context.Context, userID string) (*entity.Contact, error) {
	c, ok := m.contacts[userID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

type mockMetrics struct {
	delivered map[string]int
	failed    map[string]int
}

func (m *mockMetrics) ObserveTransition(from, to string)              {}
func (m *mockMetrics) ObserveAction(actionType string, accepted bool) {}
func (m *mockMetrics) ObserveNotification(channel string, delivered bool) {
	if delivered {
		m.delivered[channel]++
	} else {
		m.failed[channel]++
	}
}

type mockNotificationRepo struct {
	stored []*entity.Notification
	err    error
}

func (m *mockNotificationRepo) Create(ctx context.Context, n *entity.Notification) error {
	if m.err != nil {
		return m.err
	}
	n.ID = int64(len(m.stored) + 1)
	m.stored = append(m.stored, n)
	return nil
}

func (m *mockNotificationRepo) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.Notification, error) {
	return m.stored, nil
}

func (m *mockNotificationRepo) ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	return nil, nil
}

func (m *mockNotificationRepo) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	return nil
}

func (m *mockNotificationRepo) MarkFailed(ctx context.Context, id int64, errMsg string, abandon bool) error {
	return nil
}

func stepEvent(t event.Type, approverType entity.ApproverType, identifiers ...string) *event.Event {
	return event.NewEvent(t, 42, map[string]interface{}{
		event.KeyStatus:              entity.StatusPendingApproval,
		event.KeyApprovableKind:      "payment_request",
		event.KeyApprovableID:        "PR-7",
		event.KeyDisplayName:         "Seed purchase",
		event.KeySubmittedBy:         "alice",
		event.KeyStepName:            "Finance",
		event.KeyApproverType:        string(approverType),
		event.KeyApproverIdentifiers: identifiers,
	})
}

func terminalEvent(t event.Type, status string) *event.Event {
	return event.NewEvent(t, 42, map[string]interface{}{
		event.KeyStatus:         status,
		event.KeyApprovableKind: "payment_request",
		event.KeyDisplayName:    "Seed purchase",
		event.KeySubmittedBy:    "alice",
	})
}

func newTestNotifier(dir port.ActorDirectory, channels ...Channel) (*Notifier, *mockMetrics, *mockLogger) {
	metrics := &mockMetrics{delivered: map[string]int{}, failed: map[string]int{}}
	logger := &mockLogger{}
	formatter := NewFormatter(entity.ModelDisplayNames{"payment_request": "Payment Request"})
	return NewNotifier(dir, formatter, metrics, logger, channels...), metrics, logger
}

func TestNotifier_ApproversOnSubmit(t *testing.T) {
	dir := &mockDirectory{
		members: map[string][]string{
			"ROLE:finance_manager": {"fin-1", "fin-2"},
			"ROLE:cfo":             {"fin-2", "cfo-1"},
		},
		contacts: map[string]entity.Contact{"fin-1": {UserID: "fin-1", Name: "Fin One", LarkOpenID: "ou_1"}},
	}
	ch := &mockChannel{name: "test"}
	n, metrics, _ := newTestNotifier(dir, ch)

	require.NoError(t, n.Handle(context.Background(), stepEvent(event.TypeSubmitted, entity.ApproverTypeRole, "finance_manager", "cfo")))

	require.Len(t, ch.sent, 3)
	assert.Equal(t, "fin-1", ch.sent[0].Recipient.UserID)
	assert.Equal(t, "ou_1", ch.sent[0].Recipient.LarkOpenID)
	assert.Equal(t, "fin-2", ch.sent[1].Recipient.UserID)
	assert.Equal(t, "cfo-1", ch.sent[2].Recipient.UserID)
	assert.Equal(t, `Payment Request "Seed purchase" is awaiting your approval`, ch.sent[0].Subject)
	assert.Contains(t, ch.sent[0].Body, "Step: Finance")
	assert.Equal(t, 3, metrics.delivered["test"])
}

func TestNotifier_SubmitterOnOutcome(t *testing.T) {
	ch := &mockChannel{name: "test"}
	n, _, _ := newTestNotifier(nil, ch)

	evt := terminalEvent(event.TypeRejected, entity.StatusRejected).WithPayload(event.KeyReason, "missing invoice")
	require.NoError(t, n.Handle(context.Background(), evt))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, "alice", ch.sent[0].Recipient.UserID)
	assert.Equal(t, `Payment Request "Seed purchase" was rejected`, ch.sent[0].Subject)
	assert.Contains(t, ch.sent[0].Body, "Reason: missing invoice")
	assert.Contains(t, ch.sent[0].Body, "Status: Rejected")
}

func TestNotifier_NoDirectoryFallsBackToUserIdentifiers(t *testing.T) {
	ch := &mockChannel{name: "test"}
	n, _, _ := newTestNotifier(nil, ch)

	require.NoError(t, n.Handle(context.Background(), stepEvent(event.TypeStepAdvanced, entity.ApproverTypeUser, "u1", "u1", "u2")))
	assert.Len(t, ch.sent, 2)

	ch.sent = nil
	require.NoError(t, n.Handle(context.Background(), stepEvent(event.TypeStepAdvanced, entity.ApproverTypeRole, "finance")))
	assert.Empty(t, ch.sent, "roles cannot be expanded without a directory")
}

func TestNotifier_FailuresNeverPropagate(t *testing.T) {
	broken := &mockChannel{name: "broken", err: errors.New("smtp down")}
	ok := &mockChannel{name: "ok"}
	n, metrics, logger := newTestNotifier(nil, broken, ok)

	err := n.Handle(context.Background(), terminalEvent(event.TypeApproved, entity.StatusApproved))
	assert.NoError(t, err)
	assert.Len(t, ok.sent, 1, "a failing channel does not stop the others")
	assert.Equal(t, 1, metrics.failed["broken"])
	assert.Equal(t, 1, metrics.delivered["ok"])
	assert.Len(t, logger.errors, 1)

	dir := &mockDirectory{err: errors.New("directory offline")}
	n, _, logger = newTestNotifier(dir, ok)
	assert.NoError(t, n.Handle(context.Background(), stepEvent(event.TypeSubmitted, entity.ApproverTypeRole, "finance")))
	assert.Len(t, logger.errors, 1)
}

func TestNotifier_RecordsFailuresForRetry(t *testing.T) {
	lark := &mockChannel{name: entity.ChannelLark, err: errors.New("rate limited")}
	store := &mockChannel{name: entity.ChannelDatabase, err: errors.New("disk full")}
	n, _, logger := newTestNotifier(nil, lark, store)

	repo := &mockNotificationRepo{}
	n.RecordFailuresIn(repo)

	require.NoError(t, n.Handle(context.Background(), terminalEvent(event.TypeRejected, entity.StatusRejected)))
	require.Len(t, repo.stored, 1, "database channel failures are not queued")

	failed := repo.stored[0]
	assert.Equal(t, entity.ChannelLark, failed.Channel)
	assert.Equal(t, "alice", failed.Recipient)
	assert.Equal(t, entity.NotificationStatusFailed, failed.Status)
	assert.Equal(t, "rate limited", failed.ErrorMessage)
	assert.Equal(t, 1, failed.Attempts)
	assert.Equal(t, event.TypeRejected.String(), failed.EventType)
	assert.Len(t, logger.errors, 2)
}

func TestNotifier_Redeliver(t *testing.T) {
	lark := &mockChannel{name: entity.ChannelLark}
	dir := &mockDirectory{contacts: map[string]entity.Contact{
		"alice": {UserID: "alice", Name: "Alice", LarkOpenID: "ou_alice"},
	}}
	n, metrics, _ := newTestNotifier(dir, lark)

	stored := &entity.Notification{
		ID: 5, InstanceID: 42, EventType: event.TypeApproved.String(), Channel: entity.ChannelLark,
		Recipient: "alice", Subject: "approved", Body: "Status: Approved",
	}
	require.NoError(t, n.Redeliver(context.Background(), stored))
	require.Len(t, lark.sent, 1)
	assert.Equal(t, "ou_alice", lark.sent[0].Recipient.LarkOpenID)
	assert.Equal(t, event.TypeApproved, lark.sent[0].EventType)
	assert.Equal(t, 1, metrics.delivered[entity.ChannelLark])

	lark.err = errors.New("still down")
	assert.Error(t, n.Redeliver(context.Background(), stored))
	assert.Equal(t, 1, metrics.failed[entity.ChannelLark])

	stored.Channel = "email"
	assert.Error(t, n.Redeliver(context.Background(), stored), "unknown channel")
}

func TestNotifier_RegisterSubscribesEveryType(t *testing.T) {
	d := dispatcher.NewDispatcher()
	defer d.Close()

	ch := &mockChannel{name: "test"}
	n, _, _ := newTestNotifier(nil, ch)
	n.Register(d)

	for _, typ := range event.AllTypes() {
		handlers := d.ListHandlers(typ)
		require.Len(t, handlers, 1, typ)
		assert.Equal(t, "notifier."+typ.String(), handlers[0].Name)
	}

	require.NoError(t, d.Dispatch(context.Background(), terminalEvent(event.TypeCancelled, entity.StatusCancelled)))
	require.Len(t, ch.sent, 1)
	assert.Equal(t, `Payment Request "Seed purchase" was cancelled`, ch.sent[0].Subject)
}

func TestDatabaseChannel(t *testing.T) {
	repo := &mockNotificationRepo{}
	ch := NewDatabaseChannel(repo)

	err := ch.Send(context.Background(), Message{
		EventType:  event.TypeApproved,
		InstanceID: 9,
		Recipient:  entity.Contact{UserID: "alice"},
		Subject:    "approved",
		Body:       "Status: Approved",
	})
	require.NoError(t, err)
	require.Len(t, repo.stored, 1)

	stored := repo.stored[0]
	assert.Equal(t, entity.ChannelDatabase, stored.Channel)
	assert.Equal(t, "alice", stored.Recipient)
	assert.Equal(t, entity.NotificationStatusSent, stored.Status)
	assert.NotNil(t, stored.SentAt)

	repo.err = errors.New("disk full")
	assert.Error(t, ch.Send(context.Background(), Message{Recipient: entity.Contact{UserID: "bob"}}))
}

func TestFormatter(t *testing.T) {
	f := NewFormatter(nil)

	evt := terminalEvent(event.TypeChangesRequested, entity.StatusChangesRequested).
		WithPayload(event.KeyFeedback, "attach the receipt").
		WithPayload(event.KeyActorID, "fin-1")
	subject, body := f.Format(evt)
	assert.Equal(t, `payment_request "Seed purchase" needs changes`, subject)
	assert.Equal(t, "Feedback: attach the receipt\nStatus: Changes Requested\nBy: fin-1", body)

	resubmitted := stepEvent(event.TypeSubmitted, entity.ApproverTypeUser, "u1").WithPayload(event.KeyResubmitted, true)
	subject, _ = f.Format(resubmitted)
	assert.Equal(t, `payment_request "Seed purchase" was resubmitted for approval`, subject)
}
