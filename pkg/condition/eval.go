package condition

import (
	"nanogov/governor/pkg/state"
)

// Eval evaluates the program against a snapshot. Every comparison is
// evaluated regardless of earlier results and the program length is bounded,
// so the work done does not depend on the state values. Eval does not
// allocate.
//
// A comparison that cannot be evaluated (unknown field, context key missing
// from the snapshot, non-numeric context value under a numeric comparison) is
// false and the first such problem is returned as the anomaly.
func (p *Program) Eval(st *state.SystemState) (bool, Anomaly) {
	if p == nil || p.ncode == 0 || st == nil {
		return false, Anomaly{Kind: AnomalyExpressionTooComplex}
	}

	var results [MaxComparisons]bool
	var anomaly Anomaly
	for i := 0; i < int(p.ncmp); i++ {
		ok, a := p.cmps[i].eval(st)
		results[i] = ok
		if anomaly.Kind == AnomalyNone {
			anomaly = a
		}
	}

	var stack [MaxComparisons]bool
	sp := 0
	for i := 0; i < int(p.ncode); i++ {
		in := p.code[i]
		switch in.op {
		case opPush:
			stack[sp] = results[in.arg]
			sp++
		case opAnd:
			sp--
			stack[sp-1] = stack[sp-1] && stack[sp]
		case opOr:
			sp--
			stack[sp-1] = stack[sp-1] || stack[sp]
		}
	}
	if sp != 1 {
		return false, Anomaly{Kind: AnomalyExpressionTooComplex}
	}
	return stack[0], anomaly
}

func (c *comparison) eval(st *state.SystemState) (bool, Anomaly) {
	if c.unknown {
		return false, Anomaly{Kind: AnomalyUnknownField, Field: c.name}
	}

	if c.field != state.FieldContext {
		v, ok := st.Number(c.field)
		if !ok {
			return false, Anomaly{Kind: AnomalyUnknownField, Field: c.name}
		}
		return compareNumber(c.op, v, c.number), Anomaly{}
	}

	v, ok := st.Context.Get(c.key)
	if !ok {
		return false, Anomaly{Kind: AnomalyUnknownField, Field: c.name}
	}
	if c.kind == literalString {
		if c.op == OpEqual {
			return v == c.text, Anomaly{}
		}
		return v != c.text, Anomaly{}
	}
	n, ok := parseUint(v)
	if !ok {
		return false, Anomaly{Kind: AnomalyTypeMismatch, Field: c.name}
	}
	return compareNumber(c.op, n, c.number), Anomaly{}
}

func compareNumber(op Operator, a, b uint64) bool {
	switch op {
	case OpEqual:
		return a == b
	case OpNotEqual:
		return a != b
	case OpGreater:
		return a > b
	case OpLess:
		return a < b
	case OpGreaterEqual:
		return a >= b
	case OpLessEqual:
		return a <= b
	default:
		return false
	}
}

// Evaluate compiles and evaluates expr in one step. It is intended for
// tooling; the enforcement path evaluates programs compiled at admission.
func Evaluate(expr string, st *state.SystemState) (bool, Anomaly, error) {
	p, err := Compile(expr)
	if err != nil {
		return false, Anomaly{}, err
	}
	ok, a := p.Eval(st)
	return ok, a, nil
}
