package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

const (
	// TriggerSubmit sends a draft to its first approval step
	TriggerSubmit Trigger = "SUBMIT"
	// TriggerComplete finishes the instance once no approval step remains
	TriggerComplete       Trigger = "COMPLETE"
	TriggerReject         Trigger = "REJECT"
	TriggerRequestChanges Trigger = "REQUEST_CHANGES"
	TriggerResubmit       Trigger = "RESUBMIT"
	TriggerCancel         Trigger = "CANCEL"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
