package condition

import (
	"errors"
	"fmt"

	"nanogov/governor/pkg/policy/diag"
)

var (
	// ErrSyntax indicates malformed condition text.
	ErrSyntax = errors.New("syntax error")

	// ErrExpressionTooComplex indicates the expression exceeds the length,
	// nesting depth or comparison bounds.
	ErrExpressionTooComplex = errors.New("expression too complex")

	// ErrUnknownField indicates an identifier that names no state field.
	// Only returned when compiling in strict mode.
	ErrUnknownField = errors.New("unknown field")

	// ErrTypeMismatch indicates a literal or operator that cannot apply to the field.
	ErrTypeMismatch = errors.New("type mismatch")
)

// CompileError describes why a condition was rejected.
type CompileError struct {
	Expr       string
	Offset     int
	Message    string
	Suggestion string
	Err        error
}

// Error returns the error message.
func (e *CompileError) Error() string {
	return fmt.Sprintf("condition %q: offset %d: %s: %s", e.Expr, e.Offset, e.Err, e.Message)
}

// Unwrap returns the error class.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// Diagnostic converts the error into a located diagnostic.
func (e *CompileError) Diagnostic(loc diag.Location) *diag.Error {
	kind := diag.KindSyntax
	switch {
	case errors.Is(e.Err, ErrExpressionTooComplex):
		kind = diag.KindLimit
	case errors.Is(e.Err, ErrUnknownField), errors.Is(e.Err, ErrTypeMismatch):
		kind = diag.KindSemantic
	}
	loc.Offset = e.Offset
	return &diag.Error{
		Kind:       kind,
		Message:    e.Err.Error() + ": " + e.Message,
		Location:   loc,
		Snippet:    diag.Caret(e.Expr, e.Offset),
		Suggestion: e.Suggestion,
		Cause:      e,
	}
}

// AnomalyKind classifies a non-fatal evaluation problem.
type AnomalyKind uint8

const (
	AnomalyNone AnomalyKind = iota
	AnomalyUnknownField
	AnomalyExpressionTooComplex
	AnomalyTypeMismatch
)

// String returns the anomaly name used in logs and metrics.
func (k AnomalyKind) String() string {
	switch k {
	case AnomalyNone:
		return "none"
	case AnomalyUnknownField:
		return "unknown_field"
	case AnomalyExpressionTooComplex:
		return "expression_too_complex"
	case AnomalyTypeMismatch:
		return "type_mismatch"
	default:
		return "unknown"
	}
}

// Anomaly is reported by Eval when a comparison could not be evaluated. The
// comparison is treated as false and evaluation continues.
type Anomaly struct {
	Kind  AnomalyKind
	Field string
}

// IsZero reports whether no anomaly occurred.
func (a Anomaly) IsZero() bool {
	return a.Kind == AnomalyNone
}

// String formats the anomaly for logs.
func (a Anomaly) String() string {
	if a.Field == "" {
		return a.Kind.String()
	}
	return a.Kind.String() + "(" + a.Field + ")"
}
