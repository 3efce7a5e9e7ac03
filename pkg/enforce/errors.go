package enforce

import (
	"errors"
	"fmt"
)

// Identifiers recorded in the decision log for engine faults.
const (
	FaultPolicyID = "ENGINE"
	FaultRuleID   = "FAULT"
)

// FaultKind classifies an internal engine failure. Every fault resolves to
// Deny.
type FaultKind string

const (
	FaultLogCorruption     FaultKind = "log_corruption"
	FaultInconsistentState FaultKind = "inconsistent_state"
	FaultTimeout           FaultKind = "timeout"
)

var (
	ErrNilState          = errors.New("system state is nil")
	ErrUnknownCheckpoint = errors.New("unknown checkpoint")
	ErrUncompiledRule    = errors.New("rule has no compiled condition")
	ErrDeadline          = errors.New("enforcement did not finish in time")
)

// FaultError describes an engine fault.
type FaultError struct {
	Kind     FaultKind
	PolicyID string
	RuleID   string
	Cause    error
}

// Error returns the error message.
func (e *FaultError) Error() string {
	where := ""
	if e.PolicyID != "" {
		where = fmt.Sprintf(" at %s/%s", e.PolicyID, e.RuleID)
	}
	if e.Cause != nil {
		return fmt.Sprintf("engine fault %s%s: %v", e.Kind, where, e.Cause)
	}
	return fmt.Sprintf("engine fault %s%s", e.Kind, where)
}

// Unwrap returns the underlying cause.
func (e *FaultError) Unwrap() error {
	return e.Cause
}
