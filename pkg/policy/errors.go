package policy

import (
	"errors"
	"fmt"
)

// Reason classifies an admission rejection.
type Reason string

const (
	ReasonCapacityExceeded    Reason = "capacity_exceeded"
	ReasonDuplicateIdentifier Reason = "duplicate_identifier"
	ReasonOversizePolicy      Reason = "oversize_policy"
	ReasonInvalidSignature    Reason = "invalid_signature"
	ReasonMalformedSchema     Reason = "malformed_schema"
	ReasonUnknownPolicy       Reason = "unknown_policy"
	ReasonStaleVersion        Reason = "stale_version"
	ReasonBuiltinPolicy       Reason = "builtin_policy"
	ReasonReplayedRequest     Reason = "replayed_request"
)

// Sentinel errors matched by AdmissionError through errors.Is.
var (
	ErrCapacityExceeded    = errors.New("policy capacity exceeded")
	ErrDuplicateIdentifier = errors.New("duplicate policy identifier")
	ErrOversizePolicy      = errors.New("policy exceeds size ceiling")
	ErrInvalidSignature    = errors.New("invalid policy signature")
	ErrMalformedSchema     = errors.New("malformed policy")
	ErrUnknownPolicy       = errors.New("policy not active")
	ErrStaleVersion        = errors.New("policy version not newer than active version")
	ErrBuiltinPolicy       = errors.New("built-in policy cannot be changed")
	ErrReplayedRequest     = errors.New("request nonce already used")
)

var reasonErrors = map[Reason]error{
	ReasonCapacityExceeded:    ErrCapacityExceeded,
	ReasonDuplicateIdentifier: ErrDuplicateIdentifier,
	ReasonOversizePolicy:      ErrOversizePolicy,
	ReasonInvalidSignature:    ErrInvalidSignature,
	ReasonMalformedSchema:     ErrMalformedSchema,
	ReasonUnknownPolicy:       ErrUnknownPolicy,
	ReasonStaleVersion:        ErrStaleVersion,
	ReasonBuiltinPolicy:       ErrBuiltinPolicy,
	ReasonReplayedRequest:     ErrReplayedRequest,
}

// AdmissionError reports why a policy update or removal was rejected. A
// rejected request leaves the active policy set unchanged.
type AdmissionError struct {
	Reason   Reason
	PolicyID string
	Cause    error
}

// NewAdmissionError builds an AdmissionError.
func NewAdmissionError(reason Reason, policyID string, cause error) *AdmissionError {
	return &AdmissionError{Reason: reason, PolicyID: policyID, Cause: cause}
}

// Error returns the error message.
func (e *AdmissionError) Error() string {
	id := e.PolicyID
	if id == "" {
		id = "<unidentified>"
	}
	if e.Cause != nil {
		return fmt.Sprintf("policy %s rejected: %s: %v", id, e.Reason, e.Cause)
	}
	return fmt.Sprintf("policy %s rejected: %s", id, e.Reason)
}

// Unwrap returns the underlying cause.
func (e *AdmissionError) Unwrap() error {
	return e.Cause
}

// Is matches the sentinel error for the rejection reason.
func (e *AdmissionError) Is(target error) bool {
	return reasonErrors[e.Reason] == target
}

// ReasonOf extracts the rejection reason from err, or "" if err is not an
// AdmissionError.
func ReasonOf(err error) Reason {
	var ae *AdmissionError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// PolicyIDOf extracts the policy identifier from err, or "" if err is not an
// AdmissionError.
func PolicyIDOf(err error) string {
	var ae *AdmissionError
	if errors.As(err, &ae) {
		return ae.PolicyID
	}
	return ""
}
