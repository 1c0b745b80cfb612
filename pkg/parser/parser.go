package parser

import (
	"strings"

	"github.com/kartiknair/cmicro/pkg/ast"
	"github.com/kartiknair/cmicro/pkg/diag"
	"github.com/kartiknair/cmicro/pkg/token"
)

type Parser struct {
	current int

	Module *ast.Module

	sink diag.Sink
	// err is the first syntax error. Once it is set every parse method
	// returns immediately without consuming tokens.
	err *diag.Diagnostic
}

func New(m *ast.Module, sink diag.Sink) *Parser {
	if sink == nil {
		sink = diag.Discard
	}
	return &Parser{Module: m, sink: sink}
}

// Err returns the latched syntax error, or nil.
func (p *Parser) Err() error {
	if p.err == nil {
		return nil
	}
	return p.err
}

func (p *Parser) failed() bool {
	return p.err != nil
}

func (p *Parser) parseError(tok token.Token, message string) {
	if p.err != nil {
		return
	}

	p.err = &diag.Diagnostic{
		Source:   p.Module.Source,
		Message:  message,
		Line:     tok.Pos.Line,
		Column:   tok.Pos.Column,
		Severity: diag.Fatal,
	}
	p.sink.Report(p.err)
}

// peek never runs past the final token, which is EOF for any lexed module.
func (p *Parser) peek(distance int) token.Token {
	i := p.current + distance
	if i >= len(p.Module.Tokens) {
		i = len(p.Module.Tokens) - 1
	}
	if i < 0 {
		i = 0
	}
	return p.Module.Tokens[i]
}

func (p *Parser) advance() token.Token {
	t := p.peek(0)
	if t.Type != token.EOF {
		p.current++
	}
	return t
}

func (p *Parser) expect(typ token.TokenType, message string) token.Token {
	if p.failed() {
		return token.Token{}
	}

	if p.peek(0).Type != typ {
		p.parseError(p.peek(0), message)
		return token.Token{}
	}

	return p.advance()
}

func (p *Parser) expectType(message string) token.Token {
	if p.failed() {
		return token.Token{}
	}

	if !p.peek(0).IsTypeName() {
		p.parseError(p.peek(0), message)
		return token.Token{}
	}

	return p.advance()
}

func (p *Parser) parseStatement() ast.Statement {
	if p.failed() {
		return nil
	}

	t := p.peek(0)

	switch {
	case t.Type == token.LEFT_BRACE:
		return p.parseBlock("expected '}' to close block")
	case t.IsKeyword("return"):
		return p.parseReturn()
	case t.IsKeyword("import"):
		return p.parseImport()
	case t.IsKeyword("if"):
		return p.parseIf()
	case t.IsTypeName():
		if p.peek(1).Type != token.IDENTIFIER {
			p.advance()
			p.parseError(p.peek(0), "expected identifier after type")
			return nil
		}
		if p.peek(2).Type == token.LEFT_PAREN {
			return p.parseFuncDef()
		}
		return p.parseDefinition()
	case t.Type == token.IDENTIFIER:
		switch p.peek(1).Type {
		case token.LEFT_PAREN:
			call := p.parseCall()
			p.expect(token.SEMICOLON, "expected ';' after function call")
			if p.failed() {
				return nil
			}
			return call
		case token.EQUAL:
			return p.parseAssignment()
		}
		p.advance()
		p.parseError(p.peek(0), "expected '=' or '(' after identifier")
		return nil
	}

	p.parseError(t, "unknown statement")
	return nil
}

func (p *Parser) parseReturn() ast.Statement {
	ret := &ast.Return{Token: p.advance()}

	if p.peek(0).Type == token.SEMICOLON {
		p.advance()
		return ret
	}

	ret.Value = p.parseExpression(0)
	p.expect(token.SEMICOLON, "expected ';' after return statement")
	if p.failed() {
		return nil
	}
	return ret
}

// parseImport reads a dotted module name. The name is scanned ahead of the
// cursor so nothing has to be given back when the run of `IDENT . IDENT`
// ends.
func (p *Parser) parseImport() ast.Statement {
	keyword := p.advance()

	if p.peek(0).Type != token.IDENTIFIER {
		p.parseError(p.peek(0), "expected module name after import statement")
		return nil
	}

	parts := []string{p.peek(0).Lexeme}
	length := 1
	for p.peek(length).Type == token.DOT {
		if p.peek(length+1).Type != token.IDENTIFIER {
			p.current += length + 1
			p.parseError(p.peek(0), "expected identifier in module name")
			return nil
		}
		parts = append(parts, p.peek(length+1).Lexeme)
		length += 2
	}
	p.current += length

	p.expect(token.SEMICOLON, "expected ';' after import statement")
	if p.failed() {
		return nil
	}

	return &ast.Import{
		Module: strings.Join(parts, "."),
		Token:  keyword,
	}
}

func (p *Parser) parseDefinition() ast.Statement {
	typ := p.advance()
	name := p.advance()

	def := &ast.Assign{
		Name:  name.Lexeme,
		Type:  typ.Lexeme,
		Token: name,
	}

	if p.peek(0).Type == token.EQUAL {
		p.advance()
		def.Value = p.parseExpression(0)
	} else if p.peek(0).Type != token.SEMICOLON {
		p.parseError(p.peek(0), "expected '=' or '(' after identifier")
		return nil
	}

	p.expect(token.SEMICOLON, "expected ';' after definition")
	if p.failed() {
		return nil
	}
	return def
}

func (p *Parser) parseAssignment() ast.Statement {
	name := p.advance()
	p.advance() // skip the `=`

	value := p.parseExpression(0)
	p.expect(token.SEMICOLON, "expected ';' after assignment")
	if p.failed() {
		return nil
	}

	return &ast.Assign{
		Name:  name.Lexeme,
		Value: value,
		Token: name,
	}
}

func (p *Parser) parseBlock(unclosed string) *ast.Block {
	brace := p.expect(token.LEFT_BRACE, "expected '{'")
	if p.failed() {
		return nil
	}

	statements := []ast.Statement{}
	for p.peek(0).Type != token.RIGHT_BRACE {
		if p.peek(0).Type == token.EOF {
			p.parseError(p.peek(0), unclosed)
			return nil
		}
		stmt := p.parseStatement()
		if p.failed() {
			return nil
		}
		statements = append(statements, stmt)
	}
	p.advance() // skip the `}`

	return &ast.Block{
		Statements: statements,
		LeftBrace:  brace,
	}
}

func (p *Parser) parseFuncDef() ast.Statement {
	returnType := p.expectType("expected return type for function definition")
	name := p.expect(token.IDENTIFIER, "expected function name")
	params := p.parseParamList()
	if p.failed() {
		return nil
	}

	fn := &ast.FuncDef{
		Name:       name.Lexeme,
		ReturnType: returnType.Lexeme,
		Params:     params,
		Token:      name,
	}

	if p.peek(0).Type == token.SEMICOLON {
		p.advance()
		fn.IsDeclaration = true
		return fn
	}

	if p.peek(0).Type != token.LEFT_BRACE {
		p.parseError(p.peek(0), "expected '{' for function body")
		return nil
	}
	fn.Body = p.parseBlock("expected '}' to close function body")
	if p.failed() {
		return nil
	}
	return fn
}

func (p *Parser) parseParamList() []ast.Param {
	p.expect(token.LEFT_PAREN, "expected '(' for parameter list")
	if p.failed() {
		return nil
	}

	params := []ast.Param{}
	if p.peek(0).Type == token.RIGHT_PAREN {
		p.advance()
		return params
	}

	for {
		if p.peek(0).Type == token.ELLIPSIS {
			params = append(params, ast.Param{Variadic: true, Token: p.advance()})
			if p.peek(0).Type != token.RIGHT_PAREN {
				p.parseError(p.peek(0), "variadic parameter must be the last in the list")
				return nil
			}
			break
		}

		typ := p.expectType("expected type in parameter list")
		name := p.expect(token.IDENTIFIER, "expected identifier in parameter list")
		if p.failed() {
			return nil
		}
		params = append(params, ast.Param{
			Name:  name.Lexeme,
			Type:  typ.Lexeme,
			Token: name,
		})

		if p.peek(0).Type != token.COMMA {
			break
		}
		p.advance() // skip the comma
	}

	p.expect(token.RIGHT_PAREN, "expected ',' or ')' in parameter list")
	if p.failed() {
		return nil
	}
	return params
}

func (p *Parser) parseCall() *ast.FuncCall {
	name := p.expect(token.IDENTIFIER, "expected identifier for function call")
	p.expect(token.LEFT_PAREN, "expected '(' for function call")
	if p.failed() {
		return nil
	}

	args := []ast.Expression{}
	if p.peek(0).Type != token.RIGHT_PAREN {
		for {
			arg := p.parseExpression(0)
			if p.failed() {
				return nil
			}
			args = append(args, arg)

			if p.peek(0).Type != token.COMMA {
				break
			}
			p.advance()
		}
	}

	p.expect(token.RIGHT_PAREN, "expected ',' or ')' in argument list")
	if p.failed() {
		return nil
	}

	return &ast.FuncCall{
		Name:  name.Lexeme,
		Args:  args,
		Token: name,
	}
}

// parseIf parses a conditional. The else slot holds another conditional for
// `else if` and a final block for `else`, so chains nest to the right.
func (p *Parser) parseIf() ast.Statement {
	keyword := p.peek(0)
	cond, then, els := p.parseConditional()
	if p.failed() {
		return nil
	}
	return &ast.If{Condition: cond, Then: then, Else: els, Token: keyword}
}

func (p *Parser) parseConditional() (ast.Expression, *ast.Block, ast.Statement) {
	p.advance() // skip the `if`
	p.expect(token.LEFT_PAREN, "expected '(' after 'if'")
	cond := p.parseExpression(0)
	p.expect(token.RIGHT_PAREN, "expected ')' after condition")
	if p.failed() {
		return nil, nil, nil
	}

	if p.peek(0).Type != token.LEFT_BRACE {
		p.parseError(p.peek(0), "expected '{' for if body")
		return nil, nil, nil
	}
	then := p.parseBlock("expected '}' to close if body")
	if p.failed() {
		return nil, nil, nil
	}

	if !p.peek(0).IsKeyword("else") {
		return cond, then, nil
	}
	elseTok := p.advance()

	switch {
	case p.peek(0).IsKeyword("if"):
		keyword := p.peek(0)
		c, t, e := p.parseConditional()
		if p.failed() {
			return nil, nil, nil
		}
		return cond, then, &ast.ElseIf{Condition: c, Then: t, Else: e, Token: keyword}
	case p.peek(0).Type == token.LEFT_BRACE:
		block := p.parseBlock("expected '}' to close else body")
		if p.failed() {
			return nil, nil, nil
		}
		return cond, then, &ast.Else{Block: block, Token: elseTok}
	}

	p.parseError(p.peek(0), "expected 'if' or '{' after 'else'")
	return nil, nil, nil
}

var precedences = map[token.TokenType]int{
	token.STAR:    3,
	token.SLASH:   3,
	token.PERCENT: 3,

	token.PLUS:  2,
	token.MINUS: 2,

	token.EQUAL_EQUAL:   1,
	token.BANG_EQUAL:    1,
	token.LESSER:        1,
	token.GREATER:       1,
	token.LESSER_EQUAL:  1,
	token.GREATER_EQUAL: 1,

	token.EQUAL: 0,
}

// precedence returns -1 for anything that is not a binary operator.
func precedence(typ token.TokenType) int {
	if !typ.IsBinaryOperator() {
		return -1
	}
	return precedences[typ]
}

// parseExpression climbs precedences: the right operand of an operator is
// parsed with a minimum one above the operator's own, which makes every
// level left associative.
func (p *Parser) parseExpression(minPrecedence int) ast.Expression {
	lhs := p.parseFactor()
	if p.failed() {
		return nil
	}

	for {
		op := p.peek(0)
		prec := precedence(op.Type)
		if prec < 0 || prec < minPrecedence {
			break
		}

		p.advance()
		rhs := p.parseExpression(prec + 1)
		if p.failed() {
			return nil
		}
		lhs = &ast.BinOp{Op: op.Type, Left: lhs, Right: rhs, Token: op}
	}

	return lhs
}

func (p *Parser) parseFactor() ast.Expression {
	if p.failed() {
		return nil
	}

	t := p.peek(0)

	switch t.Type {
	case token.INT:
		p.advance()
		return &ast.Number{Kind: token.INT, Int: t.Value.Int, Token: t}
	case token.FLOAT:
		p.advance()
		return &ast.Number{Kind: token.FLOAT, Float: t.Value.Float, Token: t}
	case token.CHAR:
		p.advance()
		return &ast.Number{Kind: token.INT, Int: int64(t.Value.Char), Token: t}
	case token.BOOL:
		p.advance()
		return &ast.Number{Kind: token.INT, Int: t.Value.Int, Token: t}
	case token.STRING:
		p.advance()
		return &ast.String{Value: t.Value.Str, Token: t}
	case token.IDENTIFIER:
		if p.peek(1).Type == token.LEFT_PAREN {
			call := p.parseCall()
			if p.failed() {
				return nil
			}
			return call
		}
		p.advance()
		return &ast.Ident{Name: t.Lexeme, Token: t}
	case token.LEFT_PAREN:
		p.advance()
		expr := p.parseExpression(0)
		p.expect(token.RIGHT_PAREN, "expected ')'")
		if p.failed() {
			return nil
		}
		return expr
	}

	p.parseError(t, "expected number, string, identifier, or '('")
	return nil
}

// Parse builds m.Program from m.Tokens. Only the first syntax error is
// reported; when there is one m.Program stays nil and the error is returned.
func Parse(m *ast.Module, sink diag.Sink) error {
	m.Program = nil
	if len(m.Tokens) == 0 {
		m.Tokens = []token.Token{{Type: token.EOF, Pos: token.Pos{Line: 1, Column: 1}}}
	}

	p := New(m, sink)
	program := &ast.Program{Decls: []ast.Statement{}}

	for p.peek(0).Type != token.EOF {
		start := p.peek(0)
		stmt := p.parseStatement()
		if p.failed() {
			return p.Err()
		}

		switch stmt.(type) {
		case *ast.FuncDef, *ast.Import:
			program.Decls = append(program.Decls, stmt)
		default:
			p.parseError(start, "only function definitions and imports are allowed at top level")
			return p.Err()
		}
	}

	m.Program = program
	return nil
}
