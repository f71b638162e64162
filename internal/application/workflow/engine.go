package workflow

import (
	"context"

	"github.com/garyjia/approvalflow/internal/domain/entity"
)

// ActionRequest is one approver decision on an instance's current step
type ActionRequest struct {
	InstanceID int64
	StepID     int64
	Type       entity.ActionType
	Actor      entity.Actor
	Comments   string
	Metadata   map[string]interface{}
}

// WorkflowEngine drives approval instances through their workflow version.
//
// Operations that return a bool report "not allowed right now" (wrong
// status, wrong step, ineligible actor) as false with a nil error; errors
// are reserved for bad input, missing records and storage failures.
type WorkflowEngine interface {
	// InitializeWorkflow creates a Draft instance bound to the workflow's current version
	InitializeWorkflow(ctx context.Context, subject entity.Approvable, workflowID int64, submitterID string) (*entity.ApprovalInstance, error)

	// SubmitForApproval moves a Draft instance to its first step needing a human
	SubmitForApproval(ctx context.Context, instanceID int64, submitter entity.Actor) (bool, error)

	// Resubmit reopens the retained step of a ChangesRequested instance.
	// A non-nil subject replaces the stored entity snapshot.
	Resubmit(ctx context.Context, instanceID int64, subject entity.Approvable, submitter entity.Actor) (bool, error)

	// ProcessAction records an approver decision and applies its effect
	ProcessAction(ctx context.Context, req ActionRequest) (bool, error)

	// CancelApproval cancels any non-terminal instance
	CancelApproval(ctx context.Context, instanceID int64, actor entity.Actor) (bool, error)

	GetInstance(ctx context.Context, instanceID int64) (*entity.ApprovalInstance, error)
	ListActions(ctx context.Context, instanceID int64) ([]*entity.ApprovalAction, error)
	ListProgress(ctx context.Context, instanceID int64) ([]*entity.StepProgress, error)

	// PendingFor lists PendingApproval instances whose current step the actor may act on
	PendingFor(ctx context.Context, actor entity.Actor, limit int) ([]*entity.ApprovalInstance, error)

	// AvailableActions lists the action types the actor may take on the instance now
	AvailableActions(ctx context.Context, instanceID int64, actor entity.Actor) ([]entity.ActionType, error)
}
