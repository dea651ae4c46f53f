// Copyright (C) 2025 Forkbomb B.V.
// License: AGPL-3.0-only

package bluepyll

import (
	"fmt"
	"slices"
)

// State is a lifecycle state shared by the emulator and per-app state
// machines. The two machines use structurally identical tables but are
// semantically distinct and never cross-referenced.
type State string

const (
	StateClosed  State = "closed"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// Transitions maps a state to the set of states reachable in one step.
// Tables are fixed at construction and shared read-only across machines.
type Transitions map[State][]State

var emulatorTransitions = Transitions{
	StateClosed:  {StateLoading},
	StateLoading: {StateClosed, StateReady},
	StateReady:   {StateClosed, StateLoading},
}

var appTransitions = Transitions{
	StateClosed:  {StateLoading},
	StateLoading: {StateClosed, StateReady},
	StateReady:   {StateClosed, StateLoading},
}

// EmulatorTransitions returns the shared adjacency table for the
// emulator lifecycle. Callers must not mutate it.
func EmulatorTransitions() Transitions { return emulatorTransitions }

// AppTransitions returns the shared adjacency table for an app
// lifecycle. Callers must not mutate it.
func AppTransitions() Transitions { return appTransitions }

// Handler is a side-effecting enter/exit hook. Errors are not
// swallowed; they propagate to the transition caller.
type Handler func() error

type handlerSet struct {
	onEnter Handler
	onExit  Handler
}

// StateMachine is a caller-driven finite-state container with guarded
// transitions and optional enter/exit hooks. All transitions are
// synchronous; there is no background polling. It is not safe for
// concurrent use: the owning controller serializes all calls.
type StateMachine struct {
	current     State
	transitions Transitions
	handlers    map[State]*handlerSet
}

// NewStateMachine creates a machine at the given initial state using the
// shared transition table.
func NewStateMachine(initial State, transitions Transitions) *StateMachine {
	return &StateMachine{
		current:     initial,
		transitions: transitions,
		handlers:    make(map[State]*handlerSet),
	}
}

// Current returns the machine's current state.
func (m *StateMachine) Current() State { return m.current }

// Transitions returns the shared transition table.
func (m *StateMachine) Transitions() Transitions { return m.transitions }

// RegisterHandler merges enter/exit hooks into any existing
// registration for the state; nil arguments leave the previously
// registered hook in place.
func (m *StateMachine) RegisterHandler(state State, onEnter, onExit Handler) {
	set, ok := m.handlers[state]
	if !ok {
		set = &handlerSet{}
		m.handlers[state] = set
	}
	if onEnter != nil {
		set.onEnter = onEnter
	}
	if onExit != nil {
		set.onExit = onExit
	}
}

// TransitionTo moves the machine to target if the transition table
// allows it, returning the previous state. An illegal pair yields a
// StateError and leaves the machine untouched.
//
// The exit hook of the current state runs first; if it errors the state
// is unchanged. The state is then updated before the enter hook runs,
// so an enter hook that errors leaves the machine already transitioned.
func (m *StateMachine) TransitionTo(target State) (State, error) {
	if !slices.Contains(m.transitions[m.current], target) {
		return m.current, &StateError{From: m.current, To: target}
	}
	return m.force(target)
}

// Force moves the machine to target without consulting the transition
// table, returning the previous state. Hook errors still propagate.
func (m *StateMachine) Force(target State) (State, error) {
	return m.force(target)
}

func (m *StateMachine) force(target State) (State, error) {
	previous := m.current
	if set, ok := m.handlers[previous]; ok && set.onExit != nil {
		if err := set.onExit(); err != nil {
			return previous, err
		}
	}
	m.current = target
	if set, ok := m.handlers[target]; ok && set.onEnter != nil {
		if err := set.onEnter(); err != nil {
			// State has already moved; see TransitionTo doc.
			return previous, err
		}
	}
	return previous, nil
}

func (m *StateMachine) String() string {
	return fmt.Sprintf("StateMachine(current_state=%s)", m.current)
}
