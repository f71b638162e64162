package port

import (
	"context"
	"time"

	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// Get methods return (nil, nil) when the row does not exist.

// WorkflowRepository defines persistence operations for Workflow
type WorkflowRepository interface {
	Create(ctx context.Context, wf *entity.Workflow) error
	GetByID(ctx context.Context, id int64) (*entity.Workflow, error)
	List(ctx context.Context) ([]*entity.Workflow, error)
	SetCurrentVersion(ctx context.Context, workflowID int64, versionID *int64) error
	SetActive(ctx context.Context, workflowID int64, active bool) error
}

// VersionRepository defines persistence operations for WorkflowVersion and its steps
type VersionRepository interface {
	// Create inserts the version and all of its steps, assigning IDs in place
	Create(ctx context.Context, version *entity.WorkflowVersion) error
	GetByID(ctx context.Context, id int64) (*entity.WorkflowVersion, error)
	ListByWorkflow(ctx context.Context, workflowID int64) ([]*entity.WorkflowVersion, error)
	NextVersionNumber(ctx context.Context, workflowID int64) (int, error)
	MarkActivated(ctx context.Context, id int64, t time.Time) error
}

// InstanceRepository defines persistence operations for ApprovalInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.ApprovalInstance) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalInstance, error)
	// Update writes the instance if its LockVersion still matches the stored
	// row and increments it; otherwise it returns entity.ErrConcurrentModification.
	Update(ctx context.Context, instance *entity.ApprovalInstance) error
	ListByStatus(ctx context.Context, status string, limit, offset int) ([]*entity.ApprovalInstance, error)
	ListByApprovable(ctx context.Context, ref entity.ApprovableRef) ([]*entity.ApprovalInstance, error)
}

// ActionRepository defines append-only persistence for ApprovalAction
type ActionRepository interface {
	Create(ctx context.Context, action *entity.ApprovalAction) error
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.ApprovalAction, error)
	CountDistinctApprovers(ctx context.Context, instanceID, stepID int64, cycle int) (int, error)
	HasApproved(ctx context.Context, instanceID, stepID int64, cycle int, actorID string) (bool, error)
}

// StepProgressRepository defines persistence operations for StepProgress
type StepProgressRepository interface {
	Create(ctx context.Context, progress *entity.StepProgress) error
	// Resolve closes the open row for (instance, step, cycle) with outcome
	Resolve(ctx context.Context, instanceID, stepID int64, cycle int, outcome entity.ProgressOutcome, t time.Time) error
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.StepProgress, error)
}

// NotificationRepository defines persistence operations for Notification
type NotificationRepository interface {
	Create(ctx context.Context, n *entity.Notification) error
	ListByInstance(ctx context.Context, instanceID int64) ([]*entity.Notification, error)
	// ListFailed returns FAILED deliveries with fewer than maxAttempts attempts, oldest first
	ListFailed(ctx context.Context, maxAttempts, limit int) ([]*entity.Notification, error)
	MarkSent(ctx context.Context, id int64, sentAt time.Time) error
	// MarkFailed counts another attempt; abandon moves the row out of the retry queue
	MarkFailed(ctx context.Context, id int64, errMsg string, abandon bool) error
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
