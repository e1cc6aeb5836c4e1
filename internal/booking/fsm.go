// Package booking implements the booking proposal: date selection with
// reactive conflict checks, a single-flight submission and its outcomes.
package booking

import "fmt"

// State is the stage of one booking attempt.
type State string

const (
	StateEmpty            State = "empty"
	StatePartialSelection State = "partial_selection"
	StateRangeSelected    State = "range_selected"
	StateSubmitting       State = "submitting"
	StateConfirmed        State = "confirmed"
	StateRejected         State = "rejected"
)

// FSM holds the allowed proposal transitions.
type FSM struct {
	transitions map[State][]State
}

// NewFSM creates the proposal state machine.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[State][]State{
			StateEmpty:            {StateEmpty, StatePartialSelection},
			StatePartialSelection: {StateEmpty, StatePartialSelection, StateRangeSelected},
			StateRangeSelected:    {StateEmpty, StatePartialSelection, StateRangeSelected, StateSubmitting},
			StateSubmitting:       {StateConfirmed, StateRejected},
			StateRejected:         {StatePartialSelection, StateRangeSelected},
			StateConfirmed:        {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to State) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// Next validates a transition and returns the target state.
func (f *FSM) Next(from, to State) (State, error) {
	if !f.CanTransition(from, to) {
		return from, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return to, nil
}

var defaultFSM = NewFSM()
