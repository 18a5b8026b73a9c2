package consentgate

import (
	"errors"
	"fmt"
)

type State int

const (
	StateUnknown State = iota
	StatePrompting
	StateGranted
	StateDeclined
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StatePrompting:
		return "prompting"
	case StateGranted:
		return "granted"
	case StateDeclined:
		return "declined"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

var ErrInvalidTransition = errors.New("consentgate: invalid transition")

// transitions lists every allowed move. Leaving unknown straight to a
// decision happens when one is already on record or migrated; leaving a
// decision for prompting is an explicit re-prompt.
var transitions = map[State][]State{
	StateUnknown:   {StatePrompting, StateGranted, StateDeclined},
	StatePrompting: {StateGranted, StateDeclined},
	StateGranted:   {StatePrompting},
	StateDeclined:  {StatePrompting},
}

// CanTransition reports whether from → to is allowed.
func CanTransition(from, to State) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Machine holds the gate's current state and rejects moves outside the
// allowed set.
type Machine struct {
	state State
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Transition(to State) error {
	if !CanTransition(m.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, m.state, to)
	}
	m.state = to
	return nil
}
