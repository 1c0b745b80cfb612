package ast

import (
	"github.com/kartiknair/cmicro/pkg/token"
)

// Module is a single compilation unit as it moves through the pipeline. The
// lexer fills Tokens, the parser fills Program.
type Module struct {
	Path    string
	Source  string
	Tokens  []token.Token
	Program *Program
}

type Node interface {
	Pos() token.Pos
}

type Statement interface {
	Node
	isStatement()
}

type Expression interface {
	Node
	isExpression()
}

// Program is the root of the tree. Decls holds only *FuncDef and *Import.
type Program struct {
	Decls []Statement
}

type Param struct {
	Name     string
	Type     string
	Variadic bool

	Token token.Token
}

// FuncDef is both a function definition and, with IsDeclaration set and a
// nil Body, a forward declaration.
type FuncDef struct {
	Name          string
	ReturnType    string
	Params        []Param
	Body          *Block
	IsDeclaration bool

	Token token.Token
}

// IsVariadic reports whether the parameter list ends in `...`.
func (f *FuncDef) IsVariadic() bool {
	return len(f.Params) > 0 && f.Params[len(f.Params)-1].Variadic
}

// FixedParams returns the parameters before any variadic marker.
func (f *FuncDef) FixedParams() []Param {
	if f.IsVariadic() {
		return f.Params[:len(f.Params)-1]
	}
	return f.Params
}

type Import struct {
	Module string

	Token token.Token
}

type Block struct {
	Statements []Statement

	LeftBrace token.Token
}

type Return struct {
	Value Expression

	Token token.Token
}

// If heads a conditional chain. Else is nil, an *ElseIf or an *Else.
type If struct {
	Condition Expression
	Then      *Block
	Else      Statement

	Token token.Token
}

type ElseIf struct {
	Condition Expression
	Then      *Block
	Else      Statement

	Token token.Token
}

type Else struct {
	Block *Block

	Token token.Token
}

// Assign is a definition when Type is set and a plain assignment otherwise.
// Value may be nil for a definition without an initializer.
type Assign struct {
	Name  string
	Type  string
	Value Expression

	Token token.Token
}

func (a *Assign) IsDefinition() bool {
	return a.Type != ""
}

type FuncCall struct {
	Name string
	Args []Expression

	Token token.Token
}

type BinOp struct {
	Op    token.TokenType
	Left  Expression
	Right Expression

	Token token.Token
}

// Number is an integer literal (Kind == token.INT) or a floating literal
// (Kind == token.FLOAT).
type Number struct {
	Kind  token.TokenType
	Int   int64
	Float float64

	Token token.Token
}

func (n *Number) IsFloat() bool {
	return n.Kind == token.FLOAT
}

// String holds the decoded bytes of a string literal.
type String struct {
	Value string

	Token token.Token
}

type Ident struct {
	Name string

	Token token.Token
}

func (*FuncDef) isStatement()  {}
func (*Import) isStatement()   {}
func (*Block) isStatement()    {}
func (*Return) isStatement()   {}
func (*If) isStatement()       {}
func (*ElseIf) isStatement()   {}
func (*Else) isStatement()     {}
func (*Assign) isStatement()   {}
func (*FuncCall) isStatement() {}

func (*Assign) isExpression()   {}
func (*FuncCall) isExpression() {}
func (*BinOp) isExpression()    {}
func (*Number) isExpression()   {}
func (*String) isExpression()   {}
func (*Ident) isExpression()    {}

func (p *Program) Pos() token.Pos {
	if len(p.Decls) == 0 {
		return token.Pos{Line: 1, Column: 1}
	}
	return p.Decls[0].Pos()
}

func (f *FuncDef) Pos() token.Pos  { return f.Token.Pos }
func (i *Import) Pos() token.Pos   { return i.Token.Pos }
func (b *Block) Pos() token.Pos    { return b.LeftBrace.Pos }
func (r *Return) Pos() token.Pos   { return r.Token.Pos }
func (i *If) Pos() token.Pos       { return i.Token.Pos }
func (e *ElseIf) Pos() token.Pos   { return e.Token.Pos }
func (e *Else) Pos() token.Pos     { return e.Token.Pos }
func (a *Assign) Pos() token.Pos   { return a.Token.Pos }
func (c *FuncCall) Pos() token.Pos { return c.Token.Pos }
func (b *BinOp) Pos() token.Pos    { return b.Token.Pos }
func (n *Number) Pos() token.Pos   { return n.Token.Pos }
func (s *String) Pos() token.Pos   { return s.Token.Pos }
func (i *Ident) Pos() token.Pos    { return i.Token.Pos }
