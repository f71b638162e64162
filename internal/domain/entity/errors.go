package entity

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a referenced workflow, version or instance does not exist
	ErrNotFound = errors.New("not found")

	// ErrNoActiveVersion is returned when a workflow has no current version
	ErrNoActiveVersion = errors.New("workflow has no active version")

	// ErrWorkflowInactive is returned when a deactivated workflow is used for a new instance
	ErrWorkflowInactive = errors.New("workflow is inactive")

	// ErrConcurrentModification is returned when an instance changed under a writer
	ErrConcurrentModification = errors.New("instance was modified concurrently")
)

// ValidationError reports bad input for a single field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError with a formatted message
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// IsValidationError reports whether err wraps a *ValidationError
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
