package notification

import (
	"fmt"
	"strings"

	"github.com/garyjia/approvalflow/internal/domain/entity"
	"github.com/garyjia/approvalflow/internal/domain/event"
)

// Formatter renders event payloads into subject and body text
type Formatter struct {
	models entity.ModelDisplayNames
}

// NewFormatter creates a formatter using display names for model types
func NewFormatter(models entity.ModelDisplayNames) *Formatter {
	return &Formatter{models: models}
}

// Format returns the subject and body for evt
func (f *Formatter) Format(evt *event.Event) (string, string) {
	kind := f.models.Lookup(evt.GetPayloadString(event.KeyApprovableKind))
	name := evt.GetPayloadString(event.KeyDisplayName)
	if name == "" {
		name = evt.GetPayloadString(event.KeyApprovableID)
	}
	title := fmt.Sprintf("%s %q", kind, name)

	var subject string
	var lines []string

	switch evt.Type {
	case event.TypeSubmitted:
		if evt.GetPayloadBool(event.KeyResubmitted) {
			subject = title + " was resubmitted for approval"
		} else {
			subject = title + " is awaiting your approval"
		}
		lines = append(lines, "Step: "+evt.GetPayloadString(event.KeyStepName))
	case event.TypeStepAdvanced:
		subject = title + " is awaiting your approval"
		lines = append(lines, "Step: "+evt.GetPayloadString(event.KeyStepName))
	case event.TypeApproved:
		subject = title + " was approved"
	case event.TypeRejected:
		subject = title + " was rejected"
		if reason := evt.GetPayloadString(event.KeyReason); reason != "" {
			lines = append(lines, "Reason: "+reason)
		}
	case event.TypeChangesRequested:
		subject = title + " needs changes"
		if feedback := evt.GetPayloadString(event.KeyFeedback); feedback != "" {
			lines = append(lines, "Feedback: "+feedback)
		}
	case event.TypeCancelled:
		subject = title + " was cancelled"
	default:
		subject = title + " changed"
	}

	status := entity.StatusPresentation(evt.GetPayloadString(event.KeyStatus))
	lines = append(lines, "Status: "+status.Label)
	if actor := evt.GetPayloadString(event.KeyActorID); actor != "" {
		lines = append(lines, "By: "+actor)
	}

	return subject, strings.Join(lines, "\n")
}
