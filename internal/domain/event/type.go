package event

// Type identifies the type of domain event
type Type string

const (
	TypeSubmitted        Type = "instance.submitted"
	TypeStepAdvanced     Type = "instance.step_advanced"
	TypeApproved         Type = "instance.approved"
	TypeRejected         Type = "instance.rejected"
	TypeChangesRequested Type = "instance.changes_requested"
	TypeCancelled        Type = "instance.cancelled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeSubmitted,
		TypeStepAdvanced,
		TypeApproved,
		TypeRejected,
		TypeChangesRequested,
		TypeCancelled:
		return true
	default:
		return false
	}
}

// AllTypes lists every lifecycle event type
func AllTypes() []Type {
	return []Type{TypeSubmitted, TypeStepAdvanced, TypeApproved, TypeRejected, TypeChangesRequested, TypeCancelled}
}

// Payload keys shared by the engine and notification handlers
const (
	KeyStatus              = "status"
	KeyWorkflowID          = "workflow_id"
	KeyVersionID           = "workflow_version_id"
	KeyApprovableKind      = "approvable_kind"
	KeyApprovableID        = "approvable_id"
	KeyDisplayName         = "display_name"
	KeySubmittedBy         = "submitted_by"
	KeyActorID             = "actor_id"
	KeyStepID              = "step_id"
	KeyStepName            = "step_name"
	KeyApproverType        = "approver_type"
	KeyApproverIdentifiers = "approver_identifiers"
	KeyReason              = "reason"
	KeyFeedback            = "feedback"
	KeyResubmitted         = "resubmitted"
	KeyCycle               = "cycle"
)
