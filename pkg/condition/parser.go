package condition

import (
	"fmt"

	"nanogov/governor/pkg/policy/diag"
	"nanogov/governor/pkg/state"
)

// Option configures Compile.
type Option func(*parser)

// Strict rejects identifiers that do not name a state field instead of
// compiling them into always-false comparisons.
func Strict() Option {
	return func(p *parser) {
		p.strict = true
	}
}

type parser struct {
	lex    lexer
	tok    token
	depth  int
	strict bool
	prog   *Program
}

// Compile parses expr into a bounded Program. The grammar is
//
//	expr    = and { "||" and } .
//	and     = primary { "&&" primary } .
//	primary = compare | "(" expr ")" .
//	compare = ident op literal .
//
// with parenthesis nesting limited to MaxDepth and at most MaxComparisons
// comparisons. Errors are *CompileError values.
func Compile(expr string, opts ...Option) (*Program, error) {
	if len(expr) > MaxLength {
		return nil, &CompileError{
			Expr:    expr,
			Offset:  MaxLength,
			Message: fmt.Sprintf("length %d exceeds %d bytes", len(expr), MaxLength),
			Err:     ErrExpressionTooComplex,
		}
	}

	p := &parser{
		lex:  lexer{src: expr},
		prog: &Program{source: expr},
	}
	for _, opt := range opts {
		opt(p)
	}

	if err := p.advance(); err != nil {
		return nil, err
	}
	if p.tok.kind == tokEOF {
		return nil, p.errorf(ErrSyntax, p.tok.pos, "empty condition", "")
	}
	if err := p.parseOr(); err != nil {
		return nil, err
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf(ErrSyntax, p.tok.pos, fmt.Sprintf("unexpected %s", p.tok.kind), "combine comparisons with '&&' or '||'")
	}
	return p.prog, nil
}

// MustCompile is like Compile but panics on error. Used for built-in policies.
func MustCompile(expr string) *Program {
	p, err := Compile(expr, Strict())
	if err != nil {
		panic(err)
	}
	return p
}

func (p *parser) errorf(class error, pos int, msg, suggestion string) *CompileError {
	return &CompileError{Expr: p.lex.src, Offset: pos, Message: msg, Suggestion: suggestion, Err: class}
}

func (p *parser) advance() error {
	tok, err := p.lex.next()
	if err != nil {
		return err
	}
	p.tok = tok
	return nil
}

func (p *parser) emit(op opcode, arg uint8) {
	p.prog.code[p.prog.ncode] = instruction{op: op, arg: arg}
	p.prog.ncode++
}

func (p *parser) parseOr() error {
	if err := p.parseAnd(); err != nil {
		return err
	}
	for p.tok.kind == tokOr {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parseAnd(); err != nil {
			return err
		}
		p.emit(opOr, 0)
	}
	return nil
}

func (p *parser) parseAnd() error {
	if err := p.parsePrimary(); err != nil {
		return err
	}
	for p.tok.kind == tokAnd {
		if err := p.advance(); err != nil {
			return err
		}
		if err := p.parsePrimary(); err != nil {
			return err
		}
		p.emit(opAnd, 0)
	}
	return nil
}

func (p *parser) parsePrimary() error {
	if p.tok.kind != tokLParen {
		return p.parseCompare()
	}

	open := p.tok.pos
	p.depth++
	if p.depth > MaxDepth {
		return p.errorf(ErrExpressionTooComplex, open, fmt.Sprintf("nesting deeper than %d", MaxDepth), "flatten the expression")
	}
	if err := p.advance(); err != nil {
		return err
	}
	if err := p.parseOr(); err != nil {
		return err
	}
	if p.tok.kind != tokRParen {
		return p.errorf(ErrSyntax, p.tok.pos, fmt.Sprintf("expected ')' to close '(' at offset %d, found %s", open, p.tok.kind), "")
	}
	p.depth--
	return p.advance()
}

func (p *parser) parseCompare() error {
	if p.tok.kind != tokIdent {
		return p.errorf(ErrSyntax, p.tok.pos, fmt.Sprintf("expected field name, found %s", p.tok.kind), "")
	}
	if int(p.prog.ncmp) == MaxComparisons {
		return p.errorf(ErrExpressionTooComplex, p.tok.pos, fmt.Sprintf("more than %d comparisons", MaxComparisons), "split the rule")
	}

	ident := p.tok
	cmp := comparison{name: ident.text}
	field, key, ok := state.Lookup(ident.text)
	if !ok {
		if p.strict {
			return p.errorf(ErrUnknownField, ident.pos, fmt.Sprintf("%q is not a state field", ident.text), diag.SuggestName(ident.text, state.Names()))
		}
		cmp.unknown = true
	}
	cmp.field, cmp.key = field, key

	if err := p.advance(); err != nil {
		return err
	}
	if p.tok.kind != tokOp {
		return p.errorf(ErrSyntax, p.tok.pos, fmt.Sprintf("expected comparison operator after %q, found %s", ident.text, p.tok.kind), "use one of == != > < >= <=")
	}
	op, _ := parseOperator(p.tok.text)
	cmp.op = op
	opPos := p.tok.pos

	if err := p.advance(); err != nil {
		return err
	}
	lit := p.tok
	switch lit.kind {
	case tokNumber:
		n, ok := parseUint(lit.text)
		if !ok {
			return p.errorf(ErrSyntax, lit.pos, fmt.Sprintf("invalid number %q", lit.text), "use a decimal or 0x-prefixed unsigned integer")
		}
		cmp.kind, cmp.number = literalNumber, n
	case tokString:
		if len(lit.text) > state.MaxContextValueLen {
			return p.errorf(ErrExpressionTooComplex, lit.pos, "string literal too long", "")
		}
		cmp.kind, cmp.text = literalString, lit.text
	default:
		return p.errorf(ErrSyntax, lit.pos, fmt.Sprintf("expected literal, found %s", lit.kind), "")
	}

	if err := p.typeCheck(&cmp, opPos, lit.pos); err != nil {
		return err
	}

	p.prog.cmps[p.prog.ncmp] = cmp
	p.emit(opPush, p.prog.ncmp)
	p.prog.ncmp++
	return p.advance()
}

func (p *parser) typeCheck(cmp *comparison, opPos, litPos int) error {
	if cmp.unknown {
		return nil
	}

	switch cmp.field.Kind() {
	case state.KindNumber:
		if cmp.kind != literalNumber {
			return p.errorf(ErrTypeMismatch, litPos, fmt.Sprintf("%s is numeric, got string literal", cmp.field), "")
		}
	case state.KindEnum:
		if cmp.op.Ordered() {
			return p.errorf(ErrTypeMismatch, opPos, fmt.Sprintf("%s supports only == and !=", cmp.field), "")
		}
		if cmp.kind == literalString {
			n, ok := cmp.field.EnumValue(cmp.text)
			if !ok {
				return p.errorf(ErrTypeMismatch, litPos, fmt.Sprintf("unknown %s value %q", cmp.field, cmp.text), "valid values: none, kyber512, dilithium2, other")
			}
			cmp.kind, cmp.number = literalNumber, n
		}
	case state.KindString:
		if cmp.kind == literalString && cmp.op.Ordered() {
			return p.errorf(ErrTypeMismatch, opPos, "string literals support only == and !=", "")
		}
	}
	return nil
}

// parseUint accepts decimal or 0x-prefixed hexadecimal without allocating.
func parseUint(s string) (uint64, bool) {
	if s == "" {
		return 0, false
	}
	base := uint64(10)
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base, s = 16, s[2:]
	}

	var n uint64
	for i := 0; i < len(s); i++ {
		var d uint64
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			d = uint64(c - '0')
		case base == 16 && c >= 'a' && c <= 'f':
			d = uint64(c-'a') + 10
		case base == 16 && c >= 'A' && c <= 'F':
			d = uint64(c-'A') + 10
		default:
			return 0, false
		}
		if n > (^uint64(0)-d)/base {
			return 0, false
		}
		n = n*base + d
	}
	return n, true
}
