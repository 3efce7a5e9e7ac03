package policy

import "fmt"

// Action is the tag carried by a rule. Numeric values match the device ABI
// (0 allow, 1 deny, 2 log, 3 quarantine, 4 self_destruct).
type Action uint8

const (
	ActionAllow        Action = 0 // record and keep scanning
	ActionDeny         Action = 1 // terminate with Deny
	ActionLog          Action = 2 // record and keep scanning
	ActionQuarantine   Action = 3 // terminate with Quarantine and request isolation
	ActionSelfDestruct Action = 4 // terminate with Erase and request erase-and-halt
)

var actionNames = [...]string{
	ActionAllow:        "allow",
	ActionDeny:         "deny",
	ActionLog:          "log",
	ActionQuarantine:   "quarantine",
	ActionSelfDestruct: "self_destruct",
}

// ActionNames lists the wire names of every action.
func ActionNames() []string {
	return append([]string(nil), actionNames[:]...)
}

// String returns the wire name.
func (a Action) String() string {
	if int(a) < len(actionNames) {
		return actionNames[a]
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// Valid reports whether a is one of the defined actions.
func (a Action) Valid() bool {
	return int(a) < len(actionNames)
}

// Terminal reports whether the action stops the enforcement scan.
func (a Action) Terminal() bool {
	return a == ActionDeny || a == ActionQuarantine || a == ActionSelfDestruct
}

// ParseAction maps a wire name to an Action.
func ParseAction(s string) (Action, bool) {
	for i, name := range actionNames {
		if name == s {
			return Action(i), true
		}
	}
	return 0, false
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) {
	if !a.Valid() {
		return nil, fmt.Errorf("invalid action %d", uint8(a))
	}
	return []byte(a.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	v, ok := ParseAction(string(text))
	if !ok {
		return fmt.Errorf("unknown action %q", text)
	}
	*a = v
	return nil
}
