package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when no edge exists for the trigger
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrTerminalState is returned for any trigger fired from a terminal state
	ErrTerminalState = errors.New("instance is in a terminal state")

	// ErrInvalidState is returned for a stored status outside the lifecycle
	ErrInvalidState = errors.New("invalid state")
)
