package entity

import (
	"sort"
	"time"
)

// StepType controls how many approvals complete a step
type StepType string

const (
	StepTypeSequential StepType = "SEQUENTIAL"
	StepTypeParallel   StepType = "PARALLEL"
)

// IsValid reports whether the step type is known
func (t StepType) IsValid() bool {
	return t == StepTypeSequential || t == StepTypeParallel
}

// StepPurpose distinguishes steps that wait for people from steps that run inline
type StepPurpose string

const (
	StepPurposeApproval StepPurpose = "APPROVAL"
	StepPurposeAction   StepPurpose = "ACTION"
)

// IsValid reports whether the purpose is known
func (p StepPurpose) IsValid() bool {
	return p == StepPurposeApproval || p == StepPurposeAction
}

// ApproverType selects how approver identifiers are matched against an actor
type ApproverType string

const (
	ApproverTypeUser       ApproverType = "USER"
	ApproverTypeRole       ApproverType = "ROLE"
	ApproverTypePermission ApproverType = "PERMISSION"
)

// IsValid reports whether the approver type is known
func (t ApproverType) IsValid() bool {
	switch t {
	case ApproverTypeUser, ApproverTypeRole, ApproverTypePermission:
		return true
	}
	return false
}

// Workflow is a named approval process for one model type.
// Versions are append-only; CurrentVersionID points at the active one.
type Workflow struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description"`
	ModelType        string    `json:"model_type"`
	IsActive         bool      `json:"is_active"`
	CurrentVersionID *int64    `json:"current_version_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// WorkflowVersion is an immutable snapshot of a workflow's step list
type WorkflowVersion struct {
	ID            int64                  `json:"id"`
	WorkflowID    int64                  `json:"workflow_id"`
	VersionNumber int                    `json:"version_number"`
	Configuration map[string]interface{} `json:"configuration,omitempty"`
	Steps         []*Step                `json:"steps"`
	ActivatedAt   *time.Time             `json:"activated_at,omitempty"`
	CreatedAt     time.Time              `json:"created_at"`
}

// OrderedSteps returns the steps sorted by step order, keeping insertion
// order (Position) for equal orders.
func (v *WorkflowVersion) OrderedSteps() []*Step {
	steps := make([]*Step, len(v.Steps))
	copy(steps, v.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].StepOrder != steps[j].StepOrder {
			return steps[i].StepOrder < steps[j].StepOrder
		}
		return steps[i].Position < steps[j].Position
	})
	return steps
}

// StepByID returns the step with the given ID, or nil
func (v *WorkflowVersion) StepByID(id int64) *Step {
	for _, s := range v.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Step is one stage of a workflow version
type Step struct {
	ID                     int64             `json:"id"`
	VersionID              int64             `json:"version_id"`
	Position               int               `json:"position"`
	Name                   string            `json:"name"`
	Description            string            `json:"description,omitempty"`
	StepOrder              int               `json:"step_order"`
	StepType               StepType          `json:"step_type"`
	Purpose                StepPurpose       `json:"purpose"`
	RequiredApprovalsCount int               `json:"required_approvals_count"`
	ApproverType           ApproverType      `json:"approver_type"`
	ApproverIdentifiers    []string          `json:"approver_identifiers"`
	ConditionalRules       *ConditionalRules `json:"conditional_rules,omitempty"`
}

// RequiredApprovals is the number of distinct approvers that complete the step
func (s *Step) RequiredApprovals() int {
	if s.StepType != StepTypeParallel || s.RequiredApprovalsCount < 1 {
		return 1
	}
	return s.RequiredApprovalsCount
}

// Rule match modes
const (
	MatchAll = "all"
	MatchAny = "any"
)

// ConditionalRules is a predicate over the approvable entity's fields.
// Rules are combined according to Match; Expression, when set, is ANDed
// with the combined rules.
type ConditionalRules struct {
	Match      string `json:"match,omitempty"`
	Rules      []Rule `json:"rules,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// Rule compares one entity field against a literal value
type Rule struct {
	Field    string      `json:"field"`
	Operator string      `json:"operator"`
	Value    interface{} `json:"value"`
}

// IsEmpty reports whether the rules impose no condition
func (c *ConditionalRules) IsEmpty() bool {
	return c == nil || (len(c.Rules) == 0 && c.Expression == "")
}
