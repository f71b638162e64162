package entity

import (
	"fmt"
	"time"
)

// ApprovableRef identifies the business entity an instance approves
type ApprovableRef struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (r ApprovableRef) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

// Approvable is implemented by anything that can be put through a workflow.
// The engine never loads entities itself; callers hand one in and its
// fields are snapshotted on the instance for step conditions.
type Approvable interface {
	ApprovableRef() ApprovableRef
	ApprovalFields() map[string]interface{}
	DisplayName() string
}

// Subject is a plain Approvable used by adapters that only carry data
type Subject struct {
	Ref    ApprovableRef          `json:"ref"`
	Name   string                 `json:"name"`
	Fields map[string]interface{} `json:"fields"`
}

func (s *Subject) ApprovableRef() ApprovableRef { return s.Ref }

func (s *Subject) ApprovalFields() map[string]interface{} { return s.Fields }

func (s *Subject) DisplayName() string { return s.Name }

// ApprovalInstance is one run of a frozen workflow version for one entity
type ApprovalInstance struct {
	ID                int64                  `json:"id"`
	WorkflowID        int64                  `json:"workflow_id"`
	WorkflowVersionID int64                  `json:"workflow_version_id"`
	Status            string                 `json:"status"`
	Approvable        ApprovableRef          `json:"approvable"`
	DisplayName       string                 `json:"display_name"`
	EntitySnapshot    map[string]interface{} `json:"entity_snapshot,omitempty"`
	SubmittedBy       string                 `json:"submitted_by"`
	CurrentStepID     *int64                 `json:"current_step_id,omitempty"`
	Cycle             int                    `json:"cycle"`
	LockVersion       int                    `json:"lock_version"`
	SubmittedAt       *time.Time             `json:"submitted_at,omitempty"`
	CompletedAt       *time.Time             `json:"completed_at,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

// IsAtStep reports whether stepID is the instance's current step
func (i *ApprovalInstance) IsAtStep(stepID int64) bool {
	return i.CurrentStepID != nil && *i.CurrentStepID == stepID
}
