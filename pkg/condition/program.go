package condition

import (
	"nanogov/governor/pkg/state"
)

const (
	// MaxLength is the longest accepted condition in bytes.
	MaxLength = 256

	// MaxDepth is the deepest accepted parenthesis nesting.
	MaxDepth = 2

	// MaxComparisons bounds the comparisons in one condition.
	MaxComparisons = 16

	// MaxInstructions bounds the compiled program length.
	MaxInstructions = 2*MaxComparisons - 1
)

// Operator is a comparison operator.
type Operator uint8

const (
	OpEqual Operator = iota + 1
	OpNotEqual
	OpGreater
	OpLess
	OpGreaterEqual
	OpLessEqual
)

var operatorText = [...]string{
	OpEqual:        "==",
	OpNotEqual:     "!=",
	OpGreater:      ">",
	OpLess:         "<",
	OpGreaterEqual: ">=",
	OpLessEqual:    "<=",
}

// String returns the operator symbol.
func (o Operator) String() string {
	if o > 0 && int(o) < len(operatorText) {
		return operatorText[o]
	}
	return "?"
}

// Ordered reports whether the operator needs an ordering (>, <, >=, <=).
func (o Operator) Ordered() bool {
	return o >= OpGreater
}

func parseOperator(s string) (Operator, bool) {
	for i := OpEqual; int(i) < len(operatorText); i++ {
		if operatorText[i] == s {
			return i, true
		}
	}
	return 0, false
}

type opcode uint8

const (
	opPush opcode = iota // push comparison result arg
	opAnd
	opOr
)

type instruction struct {
	op  opcode
	arg uint8
}

type literalKind uint8

const (
	literalNumber literalKind = iota
	literalString
)

// comparison is one `field op literal` term.
type comparison struct {
	name    string // identifier as written
	field   state.Field
	key     string // context key for state.FieldContext
	op      Operator
	kind    literalKind
	number  uint64
	text    string
	unknown bool
}

// Program is a compiled condition: a fixed-size postfix sequence over at most
// MaxComparisons comparisons. A Program is immutable and safe for concurrent use.
type Program struct {
	source string
	code   [MaxInstructions]instruction
	ncode  uint8
	cmps   [MaxComparisons]comparison
	ncmp   uint8
}

// String returns the source text the program was compiled from.
func (p *Program) String() string {
	if p == nil {
		return ""
	}
	return p.source
}

// Comparisons returns the number of comparisons in the program.
func (p *Program) Comparisons() int {
	return int(p.ncmp)
}

// Fields returns the canonical names of the fields referenced, in order of
// first appearance. Context fields are reported as context.<key>.
func (p *Program) Fields() []string {
	seen := make(map[string]bool, p.ncmp)
	out := make([]string, 0, p.ncmp)
	for i := 0; i < int(p.ncmp); i++ {
		name := p.cmps[i].canonicalName()
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}
	return out
}

// UnknownFields returns identifiers that did not resolve to a state field.
// Comparisons on them always evaluate false.
func (p *Program) UnknownFields() []string {
	var out []string
	for i := 0; i < int(p.ncmp); i++ {
		if p.cmps[i].unknown {
			out = append(out, p.cmps[i].name)
		}
	}
	return out
}

func (c *comparison) canonicalName() string {
	switch {
	case c.unknown:
		return c.name
	case c.field == state.FieldContext:
		return state.ContextPrefix + c.key
	default:
		return c.field.String()
	}
}
