package workflow

import (
	domainwf "github.com/garyjia/approvalflow/internal/domain/workflow"
)

// BuildApprovalStateMachine creates a state machine for one approval
// instance positioned at initialState
func BuildApprovalStateMachine(initialState domainwf.State) domainwf.StateMachine {
	return domainwf.ConfigureEdges(domainwf.NewBuilder(), domainwf.ApprovalEdges()).Build(initialState)
}

// machineFor builds a machine from a stored status string
func machineFor(status string) (domainwf.StateMachine, error) {
	state := domainwf.State(status)
	if !state.IsValid() {
		return nil, domainwf.ErrInvalidState
	}
	return BuildApprovalStateMachine(state), nil
}
