package lexer

import (
	"strconv"
	"strings"

	"github.com/kartiknair/cmicro/pkg/ast"
	"github.com/kartiknair/cmicro/pkg/diag"
	"github.com/kartiknair/cmicro/pkg/token"
)

type Lexer struct {
	source  string
	current int
	line    int
	column  int

	Diagnostics diag.Sink
}

func New(source string, sink diag.Sink) *Lexer {
	if sink == nil {
		sink = diag.Discard
	}
	return &Lexer{
		source:      source,
		line:        1,
		column:      1,
		Diagnostics: sink,
	}
}

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

// peek returns the byte distance bytes ahead, or 0 past the end.
func (l *Lexer) peek(distance int) byte {
	if l.current+distance >= len(l.source) {
		return 0
	}
	return l.source[l.current+distance]
}

func (l *Lexer) advance() byte {
	if l.isAtEnd() {
		return 0
	}

	c := l.source[l.current]
	l.current++

	if c == '\n' {
		l.line++
		l.column = 1
	} else {
		l.column++
	}

	return c
}

func (l *Lexer) pos() token.Pos {
	return token.Pos{Offset: l.current, Line: l.line, Column: l.column}
}

func (l *Lexer) makeToken(typ token.TokenType, start token.Pos) token.Token {
	return token.Token{
		Type:   typ,
		Lexeme: l.source[start.Offset:l.current],
		Pos:    start,
	}
}

// lexError reports a fatal diagnostic at start and returns an ERROR token
// covering everything consumed since.
func (l *Lexer) lexError(start token.Pos, message string) token.Token {
	l.Diagnostics.Report(&diag.Diagnostic{
		Source:   l.source,
		Message:  message,
		Line:     start.Line,
		Column:   start.Column,
		Severity: diag.Fatal,
	})
	return l.makeToken(token.ERROR, start)
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_'
}

func isAlphaNumeric(c byte) bool {
	return isAlpha(c) || isDigit(c)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\v' || c == '\f'
}

func isOctal(c byte) bool {
	return c >= '0' && c <= '7'
}

func hexValue(c byte) (byte, bool) {
	switch {
	case isDigit(c):
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

// skipWhitespace consumes whitespace and comments. An unterminated block
// comment is reported and returned as an ERROR token starting at the `/*`.
func (l *Lexer) skipWhitespace() (token.Token, bool) {
	for {
		c := l.peek(0)

		switch {
		case isSpace(c):
			l.advance()
		case c == '/' && l.peek(1) == '/':
			// a comment goes until the end of the line.
			for !l.isAtEnd() && l.peek(0) != '\n' {
				l.advance()
			}
		case c == '/' && l.peek(1) == '*':
			start := l.pos()
			l.advance()
			l.advance()
			for !l.isAtEnd() && !(l.peek(0) == '*' && l.peek(1) == '/') {
				l.advance()
			}
			if l.isAtEnd() {
				return l.lexError(start, "unterminated block comment"), false
			}
			l.advance()
			l.advance()
		default:
			return token.Token{}, true
		}
	}
}

// lexEscape decodes the escape sequence after a backslash. Unknown escapes
// stand for the escaped character itself.
func (l *Lexer) lexEscape() byte {
	c := l.advance()

	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	case 'a':
		return '\a'
	case 'b':
		return '\b'
	case 'f':
		return '\f'
	case 'v':
		return '\v'
	case '\'', '"', '\\', '?':
		return c
	case 'x':
		// Any number of hex digits, truncated to a byte.
		var value byte
		for {
			d, ok := hexValue(l.peek(0))
			if !ok {
				break
			}
			l.advance()
			value = value<<4 | d
		}
		return value
	}

	if isOctal(c) {
		value := c - '0'
		for i := 0; i < 2 && isOctal(l.peek(0)); i++ {
			value = value<<3 | (l.advance() - '0')
		}
		return value
	}

	return c
}

func (l *Lexer) lexNumber(start token.Pos) token.Token {
	hasDot := false

	for isDigit(l.peek(0)) || l.peek(0) == '.' {
		if l.peek(0) == '.' {
			if hasDot {
				break
			}
			hasDot = true
		}
		l.advance()
	}

	if hasDot {
		tok := l.makeToken(token.FLOAT, start)
		// "1." is accepted, ParseFloat wants a digit after the point.
		value, err := strconv.ParseFloat(strings.TrimSuffix(tok.Lexeme, "."), 64)
		if err != nil {
			return l.lexError(start, "invalid floating literal")
		}
		tok.Value.Float = value
		return tok
	}

	tok := l.makeToken(token.INT, start)
	value, err := strconv.ParseInt(tok.Lexeme, 10, 64)
	if err != nil {
		return l.lexError(start, "integer literal out of range")
	}
	tok.Value.Int = value
	return tok
}

func (l *Lexer) lexIdent(start token.Pos) token.Token {
	for isAlphaNumeric(l.peek(0)) {
		l.advance()
	}

	tok := l.makeToken(token.LookupIdent(l.source[start.Offset:l.current]), start)
	if tok.Type == token.BOOL && tok.Lexeme == "true" {
		tok.Value.Int = 1
	}
	return tok
}

func (l *Lexer) lexChar(start token.Pos) token.Token {
	l.advance() // skip the opening '

	var value byte
	if l.peek(0) == '\\' {
		l.advance()
		value = l.lexEscape()
	} else {
		value = l.advance()
	}

	if l.peek(0) != '\'' {
		return l.lexError(start, "unterminated char literal")
	}
	l.advance()

	tok := l.makeToken(token.CHAR, start)
	tok.Value.Char = value
	return tok
}

func (l *Lexer) lexString(start token.Pos) token.Token {
	l.advance() // skip the opening "

	var value strings.Builder
	for !l.isAtEnd() && l.peek(0) != '"' {
		if l.peek(0) == '\\' {
			l.advance()
			value.WriteByte(l.lexEscape())
		} else {
			value.WriteByte(l.advance())
		}
	}

	if l.isAtEnd() {
		return l.lexError(start, "unterminated string literal")
	}
	l.advance()

	tok := l.makeToken(token.STRING, start)
	tok.Value.Str = value.String()
	return tok
}

// Next scans and returns the next token. Lexical errors are reported to the
// Diagnostics sink and come back as ERROR tokens so the caller decides
// whether to go on. Once the input is exhausted every call returns EOF.
func (l *Lexer) Next() token.Token {
	if errTok, ok := l.skipWhitespace(); !ok {
		return errTok
	}

	start := l.pos()
	if l.isAtEnd() {
		return l.makeToken(token.EOF, start)
	}

	c := l.peek(0)
	switch {
	case isDigit(c):
		return l.lexNumber(start)
	case isAlpha(c):
		return l.lexIdent(start)
	case c == '\'':
		return l.lexChar(start)
	case c == '"':
		return l.lexString(start)
	}

	if op, ok := token.LookupOperator(l.source[l.current:]); ok {
		for range op.Text {
			l.advance()
		}
		return l.makeToken(op.Type, start)
	}

	l.advance()
	return l.lexError(start, "unexpected character")
}

// Lex tokenizes the module's source into m.Tokens, which always ends in an
// EOF token on success. Lexing stops at the first ERROR token and the
// diagnostic behind it is returned.
func Lex(m *ast.Module, sink diag.Sink) error {
	collector := &diag.Collector{}
	if sink == nil {
		sink = diag.Discard
	}

	l := New(m.Source, diag.Tee(collector, sink))
	tokens := []token.Token{}

	for {
		tok := l.Next()
		tokens = append(tokens, tok)

		if tok.Type == token.ERROR {
			m.Tokens = tokens
			return collector.Err()
		}
		if tok.Type == token.EOF {
			break
		}
	}

	m.Tokens = tokens
	return nil
}
