package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approvalflow/internal/application/port"
	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// RetryConfig holds configuration for the notification retry worker
type RetryConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxAttempts  int
	SendTimeout  time.Duration
}

// DefaultRetryConfig returns default configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		PollInterval: time.Minute,
		BatchSize:    20,
		MaxAttempts:  5,
		SendTimeout:  30 * time.Second,
	}
}

// Redeliverer sends a stored notification again
type Redeliverer interface {
	Redeliver(ctx context.Context, n *entity.Notification) error
}

// RetryStats is a snapshot of the retry worker's counters
type RetryStats struct {
	Redelivered int       `json:"redelivered"`
	Failed      int       `json:"failed"`
	Abandoned   int       `json:"abandoned"`
	LastRun     time.Time `json:"last_run"`
	LastError   string    `json:"last_error,omitempty"`
}

// RetryWorker redelivers notifications whose first delivery failed. A row
// that reaches MaxAttempts is marked ABANDONED and left alone.
type RetryWorker struct {
	config RetryConfig
	repo   port.NotificationRepository
	sender Redeliverer
	logger *zap.Logger
	clock  func() time.Time

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	stats   RetryStats
}

// NewRetryWorker creates a retry worker. Zero config fields take defaults.
func NewRetryWorker(config RetryConfig, repo port.NotificationRepository, sender Redeliverer, logger *zap.Logger) *RetryWorker {
	defaults := DefaultRetryConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaults.MaxAttempts
	}
	if config.SendTimeout <= 0 {
		config.SendTimeout = defaults.SendTimeout
	}

	return &RetryWorker{
		config: config,
		repo:   repo,
		sender: sender,
		logger: logger,
		clock:  time.Now,
	}
}

// Start begins the polling loop
func (w *RetryWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("notification retry worker already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.running = true

	w.logger.Info("NotificationRetryWorker started",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
		zap.Int("max_attempts", w.config.MaxAttempts))

	go w.pollLoop(loopCtx, w.done)
	return nil
}

// Stop cancels the loop and waits for the current batch to finish
func (w *RetryWorker) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done

	stats := w.Stats()
	w.logger.Info("NotificationRetryWorker stopped",
		zap.Int("redelivered", stats.Redelivered),
		zap.Int("abandoned", stats.Abandoned))
	return nil
}

// Name returns the worker name for identification
func (w *RetryWorker) Name() string {
	return "NotificationRetryWorker"
}

// Stats returns a copy of the worker's counters
func (w *RetryWorker) Stats() RetryStats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

func (w *RetryWorker) pollLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RunOnce(ctx); err != nil {
				w.logger.Error("Notification retry pass failed", zap.Error(err))
			}
		}
	}
}

// RunOnce processes one batch of failed deliveries
func (w *RetryWorker) RunOnce(ctx context.Context) error {
	pending, err := w.repo.ListFailed(ctx, w.config.MaxAttempts, w.config.BatchSize)
	if err != nil {
		w.record(func(s *RetryStats) { s.LastError = err.Error() })
		return fmt.Errorf("failed to list failed notifications: %w", err)
	}

	for _, n := range pending {
		if ctx.Err() != nil {
			break
		}
		w.retry(ctx, n)
	}

	w.record(func(s *RetryStats) {
		s.LastRun = w.clock()
		s.LastError = ""
	})
	return nil
}

func (w *RetryWorker) retry(ctx context.Context, n *entity.Notification) {
	sendCtx, cancel := context.WithTimeout(ctx, w.config.SendTimeout)
	sendErr := w.sender.Redeliver(sendCtx, n)
	cancel()

	if sendErr == nil {
		if err := w.repo.MarkSent(ctx, n.ID, w.clock().UTC()); err != nil {
			w.logger.Error("Failed to mark notification sent", zap.Int64("notification_id", n.ID), zap.Error(err))
			return
		}
		w.logger.Info("Notification redelivered",
			zap.Int64("notification_id", n.ID),
			zap.String("channel", n.Channel),
			zap.String("recipient", n.Recipient))
		w.record(func(s *RetryStats) { s.Redelivered++ })
		return
	}

	abandon := n.Attempts+1 >= w.config.MaxAttempts
	if err := w.repo.MarkFailed(ctx, n.ID, sendErr.Error(), abandon); err != nil {
		w.logger.Error("Failed to mark notification failed", zap.Int64("notification_id", n.ID), zap.Error(err))
		return
	}

	if abandon {
		w.logger.Warn("Notification abandoned",
			zap.Int64("notification_id", n.ID),
			zap.String("channel", n.Channel),
			zap.String("recipient", n.Recipient),
			zap.Int("attempts", n.Attempts+1),
			zap.Error(sendErr))
		w.record(func(s *RetryStats) { s.Abandoned++ })
		return
	}

	w.logger.Warn("Notification redelivery failed",
		zap.Int64("notification_id", n.ID),
		zap.Int("attempts", n.Attempts+1),
		zap.Error(sendErr))
	w.record(func(s *RetryStats) { s.Failed++ })
}

func (w *RetryWorker) record(fn func(*RetryStats)) {
	w.mu.Lock()
	fn(&w.stats)
	w.mu.Unlock()
}

// Verify interface compliance
var _ Worker = (*RetryWorker)(nil)
