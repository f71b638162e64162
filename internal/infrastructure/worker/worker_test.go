package worker

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/domain/entity"
)

type memoryNotifications struct {
	mu      sync.Mutex
	rows    map[int64]*entity.Notification
	listErr error
}

func newMemoryNotifications(rows ...*entity.Notification) *memoryNotifications {
	m := &memoryNotifications{rows: make(map[int64]*entity.Notification)}
	for _, r := range rows {
		m.rows[r.ID] = r
	}
	return m
}

func (m *memoryNotifications) Create(ctx context.Context, n *entity.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.ID = int64(len(m.rows) + 1)
	m.rows[n.ID] = n
	return nil
}

func (m *memoryNotifications) ListByInstance(ctx context.Context, instanceID int64) ([]*entity.Notification, error) {
	return nil, nil
}

func (m *memoryNotifications) ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	var out []*entity.Notification
	for _, n := range m.rows {
		if n.Status == entity.NotificationStatusFailed && n.Attempts < maxAttempts {
			cp := *n
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryNotifications) MarkSent(ctx context.Context, id int64, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.rows[id]
	n.Status = entity.NotificationStatusSent
	n.Attempts++
	n.SentAt = &sentAt
	return nil
}

func (m *memoryNotifications) MarkFailed(ctx context.Context, id int64, errMsg string, abandon bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := m.rows[id]
	n.Attempts++
	n.ErrorMessage = errMsg
	if abandon {
		n.Status = entity.NotificationStatusAbandoned
	}
	return nil
}

func (m *memoryNotifications) get(id int64) entity.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.rows[id]
}

type stubSender struct {
	calls atomic.Int32
	fail  map[int64]error
}

func (s *stubSender) Redeliver(ctx context.Context, n *entity.Notification) error {
	s.calls.Add(1)
	return s.fail[n.ID]
}

func failedRow(id int64, attempts int) *entity.Notification {
	return &entity.Notification{
		ID: id, InstanceID: 1, EventType: "instance.submitted", Channel: entity.ChannelLark,
		Recipient: "fiona", Subject: "Pending", Status: entity.NotificationStatusFailed, Attempts: attempts,
	}
}

func TestRetryWorker_RunOnce(t *testing.T) {
	repo := newMemoryNotifications(failedRow(1, 1), failedRow(2, 1), failedRow(3, 4), failedRow(4, 5))
	sender := &stubSender{fail: map[int64]error{
		2: errors.New("rate limited"),
		3: errors.New("user not found"),
	}}
	w := NewRetryWorker(RetryConfig{MaxAttempts: 5}, repo, sender, zap.NewNop())

	require.NoError(t, w.RunOnce(context.Background()))
	assert.EqualValues(t, 3, sender.calls.Load(), "rows at the attempt limit are skipped")

	delivered := repo.get(1)
	assert.Equal(t, entity.NotificationStatusSent, delivered.Status)
	assert.NotNil(t, delivered.SentAt)

	retried := repo.get(2)
	assert.Equal(t, entity.NotificationStatusFailed, retried.Status)
	assert.Equal(t, 2, retried.Attempts)
	assert.Equal(t, "rate limited", retried.ErrorMessage)

	abandoned := repo.get(3)
	assert.Equal(t, entity.NotificationStatusAbandoned, abandoned.Status)
	assert.Equal(t, 5, abandoned.Attempts)

	stats := w.Stats()
	assert.Equal(t, 1, stats.Redelivered)
	assert.Equal(t, 1, stats.Failed)
	assert.Equal(t, 1, stats.Abandoned)
	assert.False(t, stats.LastRun.IsZero())
}

func TestRetryWorker_BatchSize(t *testing.T) {
	repo := newMemoryNotifications(failedRow(1, 1), failedRow(2, 1), failedRow(3, 1))
	sender := &stubSender{}
	w := NewRetryWorker(RetryConfig{BatchSize: 2}, repo, sender, zap.NewNop())

	require.NoError(t, w.RunOnce(context.Background()))
	assert.EqualValues(t, 2, sender.calls.Load())
	assert.Equal(t, entity.NotificationStatusFailed, repo.get(3).Status)
}

func TestRetryWorker_ListError(t *testing.T) {
	repo := newMemoryNotifications()
	repo.listErr = errors.New("database is locked")
	w := NewRetryWorker(RetryConfig{}, repo, &stubSender{}, zap.NewNop())

	assert.Error(t, w.RunOnce(context.Background()))
	assert.Equal(t, "database is locked", w.Stats().LastError)
}

func TestRetryWorker_Defaults(t *testing.T) {
	w := NewRetryWorker(RetryConfig{}, newMemoryNotifications(), &stubSender{}, zap.NewNop())
	assert.Equal(t, DefaultRetryConfig(), w.config)
	assert.Equal(t, "NotificationRetryWorker", w.Name())
}

func TestRetryWorker_PollLoop(t *testing.T) {
	repo := newMemoryNotifications(failedRow(1, 1))
	sender := &stubSender{}
	w := NewRetryWorker(RetryConfig{PollInterval: 5 * time.Millisecond}, repo, sender, zap.NewNop())

	require.NoError(t, w.Start(context.Background()))
	assert.Error(t, w.Start(context.Background()), "second start is refused")

	require.Eventually(t, func() bool {
		return repo.get(1).Status == entity.NotificationStatusSent
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop(), "stopping twice is a no-op")
}

type recordingWorker struct {
	name     string
	startErr error
	started  atomic.Bool
	stopped  atomic.Bool
}

func (r *recordingWorker) Start(ctx context.Context) error {
	if r.startErr != nil {
		return r.startErr
	}
	r.started.Store(true)
	return nil
}

func (r *recordingWorker) Stop() error {
	r.stopped.Store(true)
	return nil
}

func (r *recordingWorker) Name() string { return r.name }

func TestManager_Lifecycle(t *testing.T) {
	m := NewManager(zap.NewNop())
	good := &recordingWorker{name: "good"}
	bad := &recordingWorker{name: "bad", startErr: errors.New("no config")}
	m.Register(bad)
	m.Register(good)
	assert.Equal(t, 2, m.Count())
	assert.False(t, m.IsRunning())

	require.NoError(t, m.StartAll(context.Background()))
	assert.True(t, m.IsRunning())
	assert.True(t, good.started.Load(), "a failing worker does not block the others")
	assert.Error(t, m.StartAll(context.Background()))

	require.NoError(t, m.StopAll())
	assert.False(t, m.IsRunning())
	assert.True(t, good.stopped.Load())
	require.NoError(t, m.StopAll())
}
