package diag

import (
	"fmt"
	"strings"
)

// Kind categorizes a diagnostic.
type Kind string

const (
	KindSyntax    Kind = "syntax"    // malformed JSON or condition text
	KindSchema    Kind = "schema"    // wire schema violation
	KindSemantic  Kind = "semantic"  // duplicate rule id, unknown field, bad literal
	KindLimit     Kind = "limit"     // size, rule count or expression bounds
	KindSignature Kind = "signature" // signature record invalid or unverifiable
	KindIO        Kind = "io"        // file access
)

// Location points into a policy document.
type Location struct {
	File    string // source file, if any
	Pointer string // JSON pointer, e.g. /rules/1/condition
	Offset  int    // byte offset inside the string value, -1 when unknown
}

// String renders file#pointer@offset.
func (l Location) String() string {
	var sb strings.Builder
	if l.File != "" {
		sb.WriteString(l.File)
	}
	if l.Pointer != "" {
		sb.WriteString("#")
		sb.WriteString(l.Pointer)
	}
	if l.Offset >= 0 && l.Pointer != "" {
		sb.WriteString(fmt.Sprintf("@%d", l.Offset))
	}
	if sb.Len() == 0 {
		return "<unknown>"
	}
	return sb.String()
}

// Error is a single diagnostic with location and optional suggestion.
type Error struct {
	Kind       Kind
	Message    string
	Location   Location
	Snippet    string // offending text with a caret line
	Suggestion string
	Cause      error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s\n", e.Kind, e.Message))
	sb.WriteString(fmt.Sprintf("  --> %s\n", e.Location))
	if e.Snippet != "" {
		sb.WriteString(e.Snippet)
	}
	if e.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  = suggestion: %s\n", e.Suggestion))
	}
	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// List accumulates diagnostics so a single pass reports every problem.
type List struct {
	Errors []*Error
}

// NewList creates an empty list.
func NewList() *List {
	return &List{Errors: make([]*Error, 0)}
}

// Add appends a diagnostic.
func (l *List) Add(err *Error) {
	l.Errors = append(l.Errors, err)
}

// Addf appends a diagnostic built from a format string.
func (l *List) Addf(kind Kind, loc Location, format string, args ...any) {
	l.Add(&Error{Kind: kind, Message: fmt.Sprintf(format, args...), Location: loc})
}

// HasErrors reports whether any diagnostic was recorded.
func (l *List) HasErrors() bool {
	return len(l.Errors) > 0
}

// Count returns the number of diagnostics.
func (l *List) Count() int {
	return len(l.Errors)
}

// HasKind reports whether a diagnostic of the given kind was recorded.
func (l *List) HasKind(kind Kind) bool {
	for _, err := range l.Errors {
		if err.Kind == kind {
			return true
		}
	}
	return false
}

// ByKind returns the diagnostics of the given kind.
func (l *List) ByKind(kind Kind) []*Error {
	var result []*Error
	for _, err := range l.Errors {
		if err.Kind == kind {
			result = append(result, err)
		}
	}
	return result
}

// Error implements the error interface.
func (l *List) Error() string {
	if !l.HasErrors() {
		return ""
	}
	if len(l.Errors) == 1 {
		return l.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("found %d error(s):\n\n", l.Count()))
	for i, err := range l.Errors {
		sb.WriteString(fmt.Sprintf("error %d:\n", i+1))
		sb.WriteString(err.Error())
		sb.WriteString("\n")
	}
	return sb.String()
}

// Unwrap exposes the individual diagnostics to errors.Is and errors.As.
func (l *List) Unwrap() []error {
	errs := make([]error, len(l.Errors))
	for i, err := range l.Errors {
		errs[i] = err
	}
	return errs
}

// ToError returns nil for an empty list and the list otherwise.
func (l *List) ToError() error {
	if !l.HasErrors() {
		return nil
	}
	return l
}

// Caret renders text with a marker under the byte at offset.
func Caret(text string, offset int) string {
	if offset < 0 || offset > len(text) {
		return ""
	}
	return fmt.Sprintf("  | %s\n  | %s^\n", text, strings.Repeat(" ", offset))
}
