package condition

type tokenKind uint8

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNumber
	tokString
	tokOp
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of expression"
	case tokIdent:
		return "field name"
	case tokNumber:
		return "number"
	case tokString:
		return "string"
	case tokOp:
		return "comparison operator"
	case tokAnd:
		return "'&&'"
	case tokOr:
		return "'||'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	default:
		return "token"
	}
}

type token struct {
	kind tokenKind
	text string // identifier, operator, or unquoted string literal
	pos  int
}

type lexer struct {
	src string
	pos int
}

func isLetter(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func (l *lexer) errorf(pos int, msg, suggestion string) *CompileError {
	return &CompileError{Expr: l.src, Offset: pos, Message: msg, Suggestion: suggestion, Err: ErrSyntax}
}

func (l *lexer) next() (token, *CompileError) {
	for l.pos < len(l.src) && isSpace(l.src[l.pos]) {
		l.pos++
	}
	if l.pos >= len(l.src) {
		return token{kind: tokEOF, pos: l.pos}, nil
	}

	start := l.pos
	c := l.src[l.pos]
	peek := byte(0)
	if l.pos+1 < len(l.src) {
		peek = l.src[l.pos+1]
	}

	switch {
	case isLetter(c):
		l.pos++
		for l.pos < len(l.src) && (isLetter(l.src[l.pos]) || isDigit(l.src[l.pos]) || l.src[l.pos] == '.') {
			l.pos++
		}
		return token{kind: tokIdent, text: l.src[start:l.pos], pos: start}, nil

	case isDigit(c):
		l.pos++
		for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || isLetter(l.src[l.pos])) {
			l.pos++
		}
		return token{kind: tokNumber, text: l.src[start:l.pos], pos: start}, nil

	case c == '\'' || c == '"':
		l.pos++
		for l.pos < len(l.src) && l.src[l.pos] != c {
			l.pos++
		}
		if l.pos >= len(l.src) {
			return token{}, l.errorf(start, "unterminated string literal", "close the literal with a matching quote")
		}
		l.pos++
		return token{kind: tokString, text: l.src[start+1 : l.pos-1], pos: start}, nil

	case c == '&':
		if peek != '&' {
			return token{}, l.errorf(start, "unexpected '&'", "use '&&' to combine comparisons")
		}
		l.pos += 2
		return token{kind: tokAnd, text: "&&", pos: start}, nil

	case c == '|':
		if peek != '|' {
			return token{}, l.errorf(start, "unexpected '|'", "use '||' to combine comparisons")
		}
		l.pos += 2
		return token{kind: tokOr, text: "||", pos: start}, nil

	case c == '(':
		l.pos++
		return token{kind: tokLParen, text: "(", pos: start}, nil

	case c == ')':
		l.pos++
		return token{kind: tokRParen, text: ")", pos: start}, nil

	case c == '=' || c == '!':
		if peek != '=' {
			return token{}, l.errorf(start, "unexpected '"+string(c)+"'", "use '==' or '!='")
		}
		l.pos += 2
		return token{kind: tokOp, text: l.src[start:l.pos], pos: start}, nil

	case c == '<' || c == '>':
		l.pos++
		if peek == '=' {
			l.pos++
		}
		return token{kind: tokOp, text: l.src[start:l.pos], pos: start}, nil

	case c == '-':
		return token{}, l.errorf(start, "negative literals are not supported", "state fields are unsigned")
	}

	return token{}, l.errorf(start, "unexpected character '"+string(c)+"'", "")
}
