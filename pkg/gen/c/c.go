package cgen

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kartiknair/cmicro/pkg/analyzer"
	"github.com/kartiknair/cmicro/pkg/ast"
	"github.com/kartiknair/cmicro/pkg/diag"
	"github.com/kartiknair/cmicro/pkg/token"
)

type bailout struct {
	d *diag.Diagnostic
}

type generator struct {
	m    *ast.Module
	info *analyzer.Info
	sink diag.Sink

	retType string
}

func (g *generator) genError(n ast.Node, message string) {
	d := &diag.Diagnostic{
		Source:   g.m.Source,
		Message:  message,
		Severity: diag.Fatal,
	}
	if n != nil {
		d.Line, d.Column = n.Pos().Line, n.Pos().Column
	}
	g.sink.Report(d)
	panic(bailout{d})
}

func (g *generator) genType(n ast.Node, name string) string {
	switch name {
	case "int", "char", "float", "double", "void":
		return name
	case "uint":
		return "unsigned int"
	case "bool":
		return "int"
	case "string":
		return "const char*"
	}

	g.genError(n, fmt.Sprintf("unknown type '%s'", name))
	return ""
}

// genString quotes s as a C string literal. Anything outside printable ASCII
// is written as an octal escape so embedded NULs survive.
func genString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c == '?':
			// keeps "??=" and friends from turning into trigraphs.
			b.WriteString(`\?`)
		case c >= ' ' && c <= '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "\\%03o", c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func genFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func (g *generator) genPrototype(f *ast.FuncDef) string {
	params := []string{}
	for _, p := range f.Params {
		if p.Variadic {
			params = append(params, "...")
		} else {
			params = append(params, g.genType(f, p.Type)+" "+p.Name)
		}
	}

	switch {
	case len(params) == 0:
		params = []string{"void"}
	case len(params) == 1 && f.IsVariadic():
		// C wants a named parameter before `...`; an unprototyped
		// declaration accepts any arguments instead.
		params = nil
	}

	return fmt.Sprintf("%s %s(%s)", g.genType(f, f.ReturnType), f.Name, strings.Join(params, ", "))
}

func (g *generator) genExpression(e ast.Expression) string {
	switch e := e.(type) {
	case *ast.Number:
		if e.IsFloat() {
			return genFloat(e.Float)
		}
		return strconv.FormatInt(e.Int, 10)
	case *ast.String:
		return genString(e.Value)
	case *ast.Ident:
		return e.Name
	case *ast.BinOp:
		if e.Op == token.EQUAL {
			g.genError(e, "unimplemented operator '='")
		}
		return fmt.Sprintf("(%s %s %s)", g.genExpression(e.Left), e.Token.Lexeme, g.genExpression(e.Right))
	case *ast.FuncCall:
		args := []string{}
		for _, a := range e.Args {
			args = append(args, g.genExpression(a))
		}
		return fmt.Sprintf("%s(%s)", e.Name, strings.Join(args, ", "))
	case *ast.Assign:
		return g.genAssign(e)
	}

	g.genError(e, "unimplemented expression")
	return ""
}

func (g *generator) genAssign(a *ast.Assign) string {
	if !a.IsDefinition() {
		return fmt.Sprintf("%s = %s", a.Name, g.genExpression(a.Value))
	}

	typ := g.genType(a, a.Type)
	if typ == "void" {
		g.genError(a, fmt.Sprintf("variable '%s' declared void", a.Name))
	}
	value := "0"
	if a.Value != nil {
		value = g.genExpression(a.Value)
	}
	return fmt.Sprintf("%s %s = %s", typ, a.Name, value)
}

func indent(depth int) string {
	return strings.Repeat("\t", depth)
}

func (g *generator) genBlock(b *ast.Block, depth int) string {
	var out strings.Builder
	out.WriteString("{\n")
	for _, s := range b.Statements {
		out.WriteString(g.genStatement(s, depth+1))
	}
	out.WriteString(indent(depth) + "}")
	return out.String()
}

func (g *generator) genConditional(cond ast.Expression, then *ast.Block, els ast.Statement, depth int) string {
	s := fmt.Sprintf("if (%s) %s", g.genExpression(cond), g.genBlock(then, depth))

	switch e := els.(type) {
	case *ast.ElseIf:
		s += " else " + g.genConditional(e.Condition, e.Then, e.Else, depth)
	case *ast.Else:
		s += " else " + g.genBlock(e.Block, depth)
	}
	return s
}

func (g *generator) genStatement(s ast.Statement, depth int) string {
	switch s := s.(type) {
	case *ast.Return:
		switch {
		case s.Value == nil:
			return indent(depth) + "return;\n"
		case g.retType == "void":
			return indent(depth) + g.genExpression(s.Value) + ";\n" + indent(depth) + "return;\n"
		}
		return indent(depth) + "return " + g.genExpression(s.Value) + ";\n"
	case *ast.FuncCall:
		return indent(depth) + g.genExpression(s) + ";\n"
	case *ast.Assign:
		return indent(depth) + g.genAssign(s) + ";\n"
	case *ast.If:
		return indent(depth) + g.genConditional(s.Condition, s.Then, s.Else, depth) + "\n"
	case *ast.Block:
		return indent(depth) + g.genBlock(s, depth) + "\n"
	case *ast.Import:
		return ""
	}

	g.genError(s, "unimplemented statement")
	return ""
}

// undeclaredCalls lists every call to a function the program never
// declares, in source order.
func (g *generator) undeclaredCalls(p *ast.Program) []*ast.FuncCall {
	calls := []*ast.FuncCall{}

	ast.Walk(p, func(n ast.Node) bool {
		if c, ok := n.(*ast.FuncCall); ok {
			if _, ok := g.info.Function(c.Name); !ok {
				calls = append(calls, c)
			}
		}
		return true
	})

	return calls
}

func (g *generator) genProgram(p *ast.Program) string {
	var out strings.Builder

	declared := map[string]bool{}
	for _, c := range g.undeclaredCalls(p) {
		g.sink.Report(&diag.Diagnostic{
			Source:   g.m.Source,
			Message:  fmt.Sprintf("function '%s' not found, declaring it without a prototype", c.Name),
			Line:     c.Pos().Line,
			Column:   c.Pos().Column,
			Severity: diag.Warning,
		})
		if !declared[c.Name] {
			declared[c.Name] = true
			fmt.Fprintf(&out, "long %s();\n", c.Name)
		}
	}

	for _, decl := range p.Decls {
		if f, ok := decl.(*ast.FuncDef); ok && !declared[f.Name] {
			declared[f.Name] = true
			out.WriteString(g.genPrototype(g.info.Functions[f.Name]) + ";\n")
		}
	}

	for _, decl := range p.Decls {
		f, ok := decl.(*ast.FuncDef)
		if !ok || f.IsDeclaration {
			continue
		}

		g.retType = g.genType(f, f.ReturnType)
		fmt.Fprintf(&out, "\n%s %s\n", g.genPrototype(f), g.genBlock(f.Body, 0))
	}

	return out.String()
}

// Gen translates a parsed module to a C translation unit. Prototypes for
// every function come first so definitions may appear in any order.
func Gen(m *ast.Module, sink diag.Sink) (out string, err error) {
	if sink == nil {
		sink = diag.Discard
	}
	if m.Program == nil {
		return "", fmt.Errorf("module %s has not been parsed", m.Path)
	}

	g := &generator{
		m:    m,
		info: analyzer.Analyze(m.Program),
		sink: sink,
	}

	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			out, err = "", b.d
		}
	}()

	return g.genProgram(m.Program), nil
}
