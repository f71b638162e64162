package workflow

import (
	"context"
	"fmt"
	"sort"
)

// StateMachineBuilder collects edges and builds machines that share them
type StateMachineBuilder interface {
	Configure(state State) StateConfiguration
	Build(initialState State) StateMachine
}

// StateConfiguration adds the outgoing edges of one state
type StateConfiguration interface {
	// Permit lets trigger move the machine to toState. A trigger has at most
	// one target per state; registering a second, different one panics.
	Permit(trigger Trigger, toState State) StateConfiguration
}

// edgeTable maps (from, trigger) to the target state
type edgeTable map[State]map[Trigger]State

type stateMachineBuilder struct {
	edges edgeTable
}

type stateConfig struct {
	from  State
	edges map[Trigger]State
}

type stateMachine struct {
	current State
	edges   edgeTable
}

// NewBuilder creates an empty builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{edges: make(edgeTable)}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	if state.IsTerminal() {
		panic(fmt.Sprintf("terminal state %s cannot have outgoing edges", state))
	}

	out, ok := b.edges[state]
	if !ok {
		out = make(map[Trigger]State)
		b.edges[state] = out
	}
	return &stateConfig{from: state, edges: out}
}

// Build returns a machine positioned at initialState. Edges added to the
// builder afterwards do not affect it.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	frozen := make(edgeTable, len(b.edges))
	for from, out := range b.edges {
		copied := make(map[Trigger]State, len(out))
		for trigger, to := range out {
			copied[trigger] = to
		}
		frozen[from] = copied
	}

	return &stateMachine{current: initialState, edges: frozen}
}

func (c *stateConfig) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	if existing, ok := c.edges[trigger]; ok && existing != toState {
		panic(fmt.Sprintf("trigger %s from %s already leads to %s", trigger, c.from, existing))
	}

	c.edges[trigger] = toState
	return c
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, ok := m.edges[m.current][trigger]
	return ok
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	if m.current.IsTerminal() {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrTerminalState, trigger, m.current)
	}

	to, ok := m.edges[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	m.current = to
	return nil
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	out := m.edges[m.current]
	triggers := make([]Trigger, 0, len(out))
	for trigger := range out {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })
	return triggers
}
