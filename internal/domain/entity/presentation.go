package entity

// Presentation is how a status or action type is shown to people
type Presentation struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var statusPresentation = map[string]Presentation{
	StatusDraft:            {Label: "Draft", Color: "gray"},
	StatusPendingApproval:  {Label: "Pending Approval", Color: "orange"},
	StatusChangesRequested: {Label: "Changes Requested", Color: "yellow"},
	StatusApproved:         {Label: "Approved", Color: "green"},
	StatusRejected:         {Label: "Rejected", Color: "red"},
	StatusCancelled:        {Label: "Cancelled", Color: "gray"},
}

var actionPresentation = map[ActionType]Presentation{
	ActionApprove:        {Label: "Approve", Color: "green"},
	ActionReject:         {Label: "Reject", Color: "red"},
	ActionRequestChanges: {Label: "Request Changes", Color: "yellow"},
}

// StatusPresentation returns the label and color for an instance status.
// Unknown statuses fall back to the raw value.
func StatusPresentation(status string) Presentation {
	if p, ok := statusPresentation[status]; ok {
		return p
	}
	return Presentation{Label: status, Color: "gray"}
}

// ActionPresentation returns the label and color for an action type
func ActionPresentation(t ActionType) Presentation {
	if p, ok := actionPresentation[t]; ok {
		return p
	}
	return Presentation{Label: string(t), Color: "gray"}
}

// ModelDisplayNames maps model types to human readable names
type ModelDisplayNames map[string]string

// Lookup returns the display name for a model type, or the type itself
func (m ModelDisplayNames) Lookup(modelType string) string {
	if name, ok := m[modelType]; ok && name != "" {
		return name
	}
	return modelType
}
