package boot

import "fmt"

// State is a boot sequencer state. States only move forward.
type State string

const (
	StateStart                  State = "start"
	StateUsrPopulated           State = "usr-populated"
	StateStoreLockedDown        State = "store-locked-down"
	StateBootedPointerPublished State = "booted-pointer-published"
	StateActivated              State = "activated"
	StateHandedOff              State = "handed-off"
)

// transitions maps each state to its only successor. HandedOff is terminal.
var transitions = map[State]State{
	StateStart:                  StateUsrPopulated,
	StateUsrPopulated:           StateStoreLockedDown,
	StateStoreLockedDown:        StateBootedPointerPublished,
	StateBootedPointerPublished: StateActivated,
	StateActivated:              StateHandedOff,
}

// ValidateTransition checks that to directly follows from.
func ValidateTransition(from, to State) error {
	next, ok := transitions[from]
	if !ok {
		return fmt.Errorf("%w: %s is terminal or unknown", ErrInvalidTransition, from)
	}
	if next != to {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

func IsTerminal(s State) bool {
	return s == StateHandedOff
}
