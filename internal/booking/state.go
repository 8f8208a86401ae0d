// Package booking reconciles fetched bookings and closed days into a per-slot
// view of the visible month.
package booking

import "fmt"

// State is the single display state of one (date, hour) slot.
type State int

const (
	Available State = iota
	Closed
	Past
	MineBooked
	OtherBooked
)

var stateNames = map[State]string{
	Available:   "available",
	Closed:      "closed",
	Past:        "past",
	MineBooked:  "mine",
	OtherBooked: "other",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Action is what the current user may do with a slot.
type Action string

const (
	ActionNone   Action = "none"
	ActionBook   Action = "book"
	ActionCancel Action = "cancel"
)

func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionBook, ActionCancel:
		return Action(s), nil
	default:
		return ActionNone, fmt.Errorf("unknown action %q", s)
	}
}
