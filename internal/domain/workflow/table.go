package workflow

// Edge is one allowed transition of the approval lifecycle
type Edge struct {
	From    State
	Trigger Trigger
	To      State
}

// approvalEdges is the complete approval lifecycle. Anything not listed here
// is rejected by the machine.
var approvalEdges = []Edge{
	{StateDraft, TriggerSubmit, StatePendingApproval},
	{StateDraft, TriggerComplete, StateApproved},
	{StateDraft, TriggerCancel, StateCancelled},
	{StatePendingApproval, TriggerComplete, StateApproved},
	{StatePendingApproval, TriggerReject, StateRejected},
	{StatePendingApproval, TriggerRequestChanges, StateChangesRequested},
	{StatePendingApproval, TriggerCancel, StateCancelled},
	{StateChangesRequested, TriggerResubmit, StatePendingApproval},
	{StateChangesRequested, TriggerCancel, StateCancelled},
}

// ApprovalEdges returns a copy of the approval lifecycle table
func ApprovalEdges() []Edge {
	return append([]Edge(nil), approvalEdges...)
}

// ConfigureEdges registers every edge on the builder
func ConfigureEdges(b StateMachineBuilder, edges []Edge) StateMachineBuilder {
	for _, e := range edges {
		b.Configure(e.From).Permit(e.Trigger, e.To)
	}
	return b
}
