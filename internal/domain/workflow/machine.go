package workflow

import "context"

// StateMachine tracks one instance's state against a fixed edge table
type StateMachine interface {
	State() State
	CanFire(trigger Trigger) bool

	// Fire moves to the edge's target state. It fails with ErrTerminalState
	// from a terminal state and ErrInvalidTransition for a missing edge; the
	// state is unchanged on error.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers is sorted and empty for terminal states
	PermittedTriggers() []Trigger
}
