package port

import (
	"context"

	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// ActorDirectory resolves user identities outside the engine
type ActorDirectory interface {
	// Lookup returns the actor snapshot for userID, or (nil, nil) if unknown
	Lookup(ctx context.Context, userID string) (*entity.Actor, error)
	// Members returns the user IDs matching an approver set
	Members(ctx context.Context, approverType entity.ApproverType, identifiers []string) ([]string, error)
	// Contact returns delivery details for userID, or (nil, nil) if unknown
	Contact(ctx context.Context, userID string) (*entity.Contact, error)
}

// MessageSender defines IM message sending operations
type MessageSender interface {
	SendMessage(ctx context.Context, openID string, content string) error
}

// Metrics records engine and notification counters
type Metrics interface {
	ObserveTransition(from, to string)
	ObserveAction(actionType string, accepted bool)
	ObserveNotification(channel string, delivered bool)
}

// NoopMetrics discards all observations
type NoopMetrics struct{}

func (NoopMetrics) ObserveTransition(string, string) {}
func (NoopMetrics) ObserveAction(string, bool)       {}
func (NoopMetrics) ObserveNotification(string, bool) {}
