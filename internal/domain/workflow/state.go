package workflow

// State represents an approval instance state
type State string

const (
	StateDraft            State = "DRAFT"
	StatePendingApproval  State = "PENDING_APPROVAL"
	StateChangesRequested State = "CHANGES_REQUESTED"
	StateApproved         State = "APPROVED"
	StateRejected         State = "REJECTED"
	StateCancelled        State = "CANCELLED"
)

var validStates = map[State]bool{
	StateDraft:            true,
	StatePendingApproval:  true,
	StateChangesRequested: true,
	StateApproved:         true,
	StateRejected:         true,
	StateCancelled:        true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
}

// IsTerminal returns true if the state is a terminal state (no further transitions allowed)
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid workflow state
func (s State) IsValid() bool {
	return validStates[s]
}
