package entity

import "time"

// ActionType is a decision an approver records on a step
type ActionType string

const (
	ActionApprove        ActionType = "APPROVE"
	ActionReject         ActionType = "REJECT"
	ActionRequestChanges ActionType = "REQUEST_CHANGES"
)

// IsValid reports whether the action type is known
func (t ActionType) IsValid() bool {
	switch t {
	case ActionApprove, ActionReject, ActionRequestChanges:
		return true
	}
	return false
}

// AllActionTypes lists the action types in display order
func AllActionTypes() []ActionType {
	return []ActionType{ActionApprove, ActionReject, ActionRequestChanges}
}

// ApprovalAction is an append-only audit row for a human decision
type ApprovalAction struct {
	ID         int64                  `json:"id"`
	InstanceID int64                  `json:"instance_id"`
	StepID     int64                  `json:"step_id"`
	Cycle      int                    `json:"cycle"`
	ActorID    string                 `json:"actor_id"`
	ActionType ActionType             `json:"action_type"`
	Comments   string                 `json:"comments,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// ProgressOutcome records what happened to a step in one cycle
type ProgressOutcome string

const (
	ProgressPending          ProgressOutcome = "PENDING"
	ProgressCompleted        ProgressOutcome = "COMPLETED"
	ProgressSkipped          ProgressOutcome = "SKIPPED"
	ProgressAutoApproved     ProgressOutcome = "AUTO_APPROVED"
	ProgressExecuted         ProgressOutcome = "EXECUTED"
	ProgressRejected         ProgressOutcome = "REJECTED"
	ProgressChangesRequested ProgressOutcome = "CHANGES_REQUESTED"
	ProgressCancelled        ProgressOutcome = "CANCELLED"
)

// StepProgress is the engine's own log of step entry and resolution.
// Auto-skips and action step runs appear here, never as ApprovalAction rows.
// Every row, pass-through or pending, carries the cycle of its own step entry.
type StepProgress struct {
	ID         int64           `json:"id"`
	InstanceID int64           `json:"instance_id"`
	StepID     int64           `json:"step_id"`
	Cycle      int             `json:"cycle"`
	Outcome    ProgressOutcome `json:"outcome"`
	EnteredAt  time.Time       `json:"entered_at"`
	ResolvedAt *time.Time      `json:"resolved_at,omitempty"`
}
