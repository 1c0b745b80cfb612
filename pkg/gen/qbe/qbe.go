package qbegen

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/kartiknair/cmicro/pkg/analyzer"
	"github.com/kartiknair/cmicro/pkg/ast"
	"github.com/kartiknair/cmicro/pkg/diag"
	"github.com/kartiknair/cmicro/pkg/token"
)

// Width is the machine class of a value in QBE.
type Width byte

const (
	Void   Width = 0
	Word   Width = 'w'
	Long   Width = 'l'
	Double Width = 'd'
)

func (w Width) String() string {
	if w == Void {
		return "void"
	}
	return string(w)
}

// WidthOf maps a surface type name to its width class.
func WidthOf(typ string) (Width, bool) {
	switch typ {
	case "int", "uint", "char", "bool":
		return Word, true
	case "float", "double":
		return Double, true
	case "string":
		return Long, true
	case "void":
		return Void, true
	}
	return Void, false
}

const entryPoint = "main"

type value struct {
	operand string
	width   Width
	// imm is set for literal constants, which can be rewritten instead of
	// converted with an instruction.
	imm bool
}

type symbol struct {
	operand string
	width   Width
	param   bool
}

// bailout carries a fatal diagnostic up to Gen.
type bailout struct {
	d *diag.Diagnostic
}

type generator struct {
	module *ast.Module
	info   *analyzer.Info
	sink   diag.Sink

	out   strings.Builder
	scope *analyzer.SymbolTable[symbol]

	temps  int
	labels int

	// terminated is set after ret or jmp; the next instruction opens a new
	// block.
	terminated bool
	fnWidth    Width
}

func (g *generator) genError(n ast.Node, message string) {
	d := &diag.Diagnostic{
		Source:   g.module.Source,
		Message:  message,
		Severity: diag.Fatal,
	}
	if n != nil {
		d.Line, d.Column = n.Pos().Line, n.Pos().Column
	}
	g.sink.Report(d)
	panic(bailout{d})
}

func (g *generator) warn(n ast.Node, message string) {
	g.sink.Report(&diag.Diagnostic{
		Source:   g.module.Source,
		Message:  message,
		Line:     n.Pos().Line,
		Column:   n.Pos().Column,
		Severity: diag.Warning,
	})
}

func (g *generator) newTemp() string {
	t := fmt.Sprintf("%%t%d", g.temps)
	g.temps++
	return t
}

func (g *generator) newLabel() string {
	l := fmt.Sprintf("@l%d", g.labels)
	g.labels++
	return l
}

func (g *generator) label(l string) {
	g.out.WriteString(l + "\n")
	g.terminated = false
}

func (g *generator) emit(format string, args ...interface{}) {
	if g.terminated {
		g.label(g.newLabel())
	}
	g.out.WriteString("\t" + fmt.Sprintf(format, args...) + "\n")
}

func (g *generator) terminate(format string, args ...interface{}) {
	g.emit(format, args...)
	g.terminated = true
}

func (g *generator) widthOf(n ast.Node, typ string) Width {
	w, ok := WidthOf(typ)
	if !ok {
		g.genError(n, fmt.Sprintf("unknown type '%s'", typ))
	}
	return w
}

func (g *generator) pushScope() {
	g.scope = analyzer.NewSymbolTableFromEnclosing(g.scope)
}

func (g *generator) popScope() {
	g.scope = g.scope.Enclosing()
}

var tempName = regexp.MustCompile(`^t[0-9]+$`)

// paramOperand names an incoming argument. Names that look like generated
// temporaries get a ".p" suffix; identifiers cannot contain a dot.
func paramOperand(name string) string {
	if tempName.MatchString(name) {
		return "%" + name + ".p"
	}
	return "%" + name
}

func intImmediate(v int64) value {
	if v < math.MinInt32 || v > math.MaxInt32 {
		return value{operand: strconv.FormatInt(v, 10), width: Long, imm: true}
	}
	return value{operand: strconv.FormatInt(v, 10), width: Word, imm: true}
}

func floatImmediate(f float64) value {
	return value{operand: "d_" + strconv.FormatFloat(f, 'g', -1, 64), width: Double, imm: true}
}

// convert returns v as a value of width to, emitting a conversion when v is
// not a constant.
func (g *generator) convert(v value, to Width) value {
	if v.width == to || to == Void || v.width == Void {
		return v
	}

	if v.imm {
		if to == Double {
			return value{operand: "d_" + v.operand, width: Double, imm: true}
		}
		if v.width == Double {
			f, _ := strconv.ParseFloat(strings.TrimPrefix(v.operand, "d_"), 64)
			return value{operand: strconv.FormatInt(int64(f), 10), width: to, imm: true}
		}
		return value{operand: v.operand, width: to, imm: true}
	}

	var op string
	switch {
	case v.width == Word && to == Long:
		op = "extsw"
	case v.width == Long && to == Word:
		// the low word of a long is a valid word operand.
		return value{operand: v.operand, width: Word}
	case v.width == Word && to == Double:
		op = "swtof"
	case v.width == Long && to == Double:
		op = "sltof"
	case v.width == Double:
		op = "dtosi"
	}

	t := g.newTemp()
	g.emit("%s =%s %s %s", t, to, op, v.operand)
	return value{operand: t, width: to}
}

// wider picks the class both operands of a comparison are brought to.
func wider(a, b Width) Width {
	switch {
	case a == Double || b == Double:
		return Double
	case a == Long || b == Long:
		return Long
	}
	return Word
}

func zero(w Width) string {
	if w == Double {
		return "d_0"
	}
	return "0"
}

// use generates an expression whose value is needed.
func (g *generator) use(e ast.Expression) value {
	v := g.genExpression(e)
	if v.width == Void {
		g.genError(e, "void value used in expression")
	}
	return v
}

func (g *generator) genExpression(e ast.Expression) value {
	switch e := e.(type) {
	case *ast.Number:
		if e.IsFloat() {
			return floatImmediate(e.Float)
		}
		return intImmediate(e.Int)
	case *ast.String:
		name, ok := g.info.Strings.Lookup(e.Value)
		if !ok {
			g.genError(e, "string not collected")
		}
		return value{operand: "$" + name, width: Long}
	case *ast.Ident:
		sym, err := g.scope.Get(e.Name)
		if err != nil {
			g.genError(e, fmt.Sprintf("undefined variable '%s'", e.Name))
		}
		if sym.param {
			return value{operand: sym.operand, width: sym.width}
		}
		t := g.newTemp()
		g.emit("%s =%s load%s %s", t, sym.width, sym.width, sym.operand)
		return value{operand: t, width: sym.width}
	case *ast.BinOp:
		return g.genBinOp(e)
	case *ast.FuncCall:
		return g.genCall(e)
	case *ast.Assign:
		return g.genAssign(e)
	}

	g.genError(e, "unimplemented expression")
	return value{}
}

var arithmetic = map[token.TokenType]string{
	token.PLUS:    "add",
	token.MINUS:   "sub",
	token.STAR:    "mul",
	token.SLASH:   "div",
	token.PERCENT: "rem",
}

// comparisons holds the integer and floating mnemonic stems.
var comparisons = map[token.TokenType][2]string{
	token.EQUAL_EQUAL:   {"ceq", "ceq"},
	token.BANG_EQUAL:    {"cne", "cne"},
	token.LESSER:        {"cslt", "clt"},
	token.LESSER_EQUAL:  {"csle", "cle"},
	token.GREATER:       {"csgt", "cgt"},
	token.GREATER_EQUAL: {"csge", "cge"},
}

func (g *generator) genBinOp(b *ast.BinOp) value {
	op, isArith := arithmetic[b.Op]
	isCmp := b.Op.IsComparativeOperator()
	if !isArith && !isCmp {
		g.genError(b, fmt.Sprintf("unimplemented operator '%s'", b.Token.Lexeme))
	}

	left := g.use(b.Left)
	right := g.use(b.Right)

	if isCmp {
		// operands meet in the wider class; the result is always a word.
		w := wider(left.width, right.width)
		left, right = g.convert(left, w), g.convert(right, w)

		stem := comparisons[b.Op][0]
		if w == Double {
			stem = comparisons[b.Op][1]
		}
		t := g.newTemp()
		g.emit("%s =w %s%s %s, %s", t, stem, w, left.operand, right.operand)
		return value{operand: t, width: Word}
	}

	right = g.convert(right, left.width)
	t := g.newTemp()

	if b.Op == token.PERCENT && left.width == Double {
		g.genError(b, "remainder of a floating value")
	}
	g.emit("%s =%s %s %s, %s", t, left.width, op, left.operand, right.operand)
	return value{operand: t, width: left.width}
}

func (g *generator) genCall(c *ast.FuncCall) value {
	var params []ast.Param
	variadic := false
	ret := Long

	if f, ok := g.info.Function(c.Name); ok {
		params = f.FixedParams()
		variadic = f.IsVariadic()
		ret = g.widthOf(f, f.ReturnType)
	} else {
		g.warn(c, fmt.Sprintf("function '%s' not found, assuming it returns a long", c.Name))
	}

	args := []string{}
	for i, a := range c.Args {
		if variadic && i == len(params) {
			args = append(args, "...")
		}

		v := g.use(a)
		if i < len(params) {
			v = g.convert(v, g.widthOf(a, params[i].Type))
		}
		args = append(args, fmt.Sprintf("%s %s", v.width, v.operand))
	}
	if variadic && len(c.Args) <= len(params) {
		args = append(args, "...")
	}

	if ret == Void {
		g.emit("call $%s(%s)", c.Name, strings.Join(args, ", "))
		return value{width: Void}
	}

	t := g.newTemp()
	g.emit("%s =%s call $%s(%s)", t, ret, c.Name, strings.Join(args, ", "))
	return value{operand: t, width: ret}
}

func (g *generator) genAssign(a *ast.Assign) value {
	if a.IsDefinition() {
		w := g.widthOf(a, a.Type)
		if w == Void {
			g.genError(a, fmt.Sprintf("variable '%s' declared void", a.Name))
		}

		v := value{operand: zero(w), width: w, imm: true}
		if a.Value != nil {
			v = g.convert(g.use(a.Value), w)
		}

		size := 8
		if w == Word {
			size = 4
		}
		slot := g.newTemp()
		g.emit("%s =l alloc%d %d", slot, size, size)
		g.emit("store%s %s, %s", w, v.operand, slot)
		g.scope.Shadow(a.Name, symbol{operand: slot, width: w})
		return v
	}

	sym, err := g.scope.Get(a.Name)
	if err != nil {
		g.genError(a, fmt.Sprintf("undefined variable '%s'", a.Name))
	}

	v := g.convert(g.use(a.Value), sym.width)
	if sym.param {
		g.emit("%s =%s copy %s", sym.operand, sym.width, v.operand)
	} else {
		g.emit("store%s %s, %s", sym.width, v.operand, sym.operand)
	}
	return v
}

// genCondition yields a word that is non-zero when e holds.
func (g *generator) genCondition(e ast.Expression) string {
	v := g.use(e)
	if v.width == Double {
		t := g.newTemp()
		g.emit("%s =w cned %s, d_0", t, v.operand)
		return t
	}
	return v.operand
}

// genConditional emits one link of an if chain. Every branch of the chain
// jumps to cont, which only the outermost call allocates and places.
func (g *generator) genConditional(cond ast.Expression, then *ast.Block, els ast.Statement, cont string) {
	outermost := cont == ""
	if outermost {
		cont = g.newLabel()
	}

	c := g.genCondition(cond)
	thenLabel, nextLabel := g.newLabel(), g.newLabel()
	g.terminate("jnz %s, %s, %s", c, thenLabel, nextLabel)

	g.label(thenLabel)
	g.genBlock(then)
	g.terminate("jmp %s", cont)

	g.label(nextLabel)
	switch e := els.(type) {
	case *ast.ElseIf:
		g.genConditional(e.Condition, e.Then, e.Else, cont)
	case *ast.Else:
		g.genBlock(e.Block)
		g.terminate("jmp %s", cont)
	}

	if outermost {
		g.label(cont)
	}
}

func (g *generator) genBlock(b *ast.Block) {
	g.pushScope()
	for _, s := range b.Statements {
		g.genStatement(s)
	}
	g.popScope()
}

func (g *generator) genStatement(s ast.Statement) {
	switch s := s.(type) {
	case *ast.Return:
		if s.Value == nil {
			g.terminate("ret")
			return
		}
		if g.fnWidth == Void {
			g.genExpression(s.Value)
			g.terminate("ret")
			return
		}
		v := g.convert(g.use(s.Value), g.fnWidth)
		g.terminate("ret %s", v.operand)
	case *ast.FuncCall:
		g.genCall(s)
	case *ast.Assign:
		g.genAssign(s)
	case *ast.If:
		g.genConditional(s.Condition, s.Then, s.Else, "")
	case *ast.Block:
		g.genBlock(s)
	case *ast.Import:
		// imports have no effect on the generated code.
	default:
		g.genError(s, "unimplemented statement")
	}
}

func (g *generator) genFuncDef(f *ast.FuncDef) {
	g.fnWidth = g.widthOf(f, f.ReturnType)
	g.terminated = false

	params := []string{}
	g.pushScope()
	for _, p := range f.Params {
		if p.Variadic {
			params = append(params, "...")
			continue
		}
		w := g.widthOf(f, p.Type)
		if w == Void {
			g.genError(f, fmt.Sprintf("parameter '%s' declared void", p.Name))
		}
		operand := paramOperand(p.Name)
		params = append(params, fmt.Sprintf("%s %s", w, operand))
		g.scope.Shadow(p.Name, symbol{operand: operand, width: w, param: true})
	}

	if f.Name == entryPoint {
		g.out.WriteString("export ")
	}
	g.out.WriteString("function ")
	if g.fnWidth != Void {
		g.out.WriteString(g.fnWidth.String() + " ")
	}
	fmt.Fprintf(&g.out, "$%s(%s) {\n", f.Name, strings.Join(params, ", "))
	g.label("@start")

	g.genBlock(f.Body)
	g.popScope()

	if !g.terminated {
		if g.fnWidth == Void {
			g.terminate("ret")
		} else {
			g.terminate("ret %s", zero(g.fnWidth))
		}
	}
	g.out.WriteString("}\n")
}

func (g *generator) genData() {
	for _, s := range g.info.Strings.Entries() {
		fmt.Fprintf(&g.out, "data $%s = { ", s.Name)
		for i := 0; i < len(s.Value); i++ {
			fmt.Fprintf(&g.out, "b %d, ", s.Value[i])
		}
		g.out.WriteString("b 0 }\n")
	}
}

func (g *generator) genProgram(p *ast.Program) {
	g.genData()

	first := g.info.Strings.Len() == 0
	for _, decl := range p.Decls {
		f, ok := decl.(*ast.FuncDef)
		if !ok || f.IsDeclaration {
			continue
		}
		if !first {
			g.out.WriteString("\n")
		}
		first = false
		g.genFuncDef(f)
	}
}

// Gen emits the QBE IR for a parsed module. Every call starts from fresh
// counters and tables, so the output only depends on the program. Fatal
// problems are reported to sink and returned; warnings are only reported.
func Gen(m *ast.Module, sink diag.Sink) (ir string, err error) {
	if sink == nil {
		sink = diag.Discard
	}
	if m.Program == nil {
		return "", fmt.Errorf("module %s has not been parsed", m.Path)
	}

	g := &generator{
		module: m,
		info:   analyzer.Analyze(m.Program),
		sink:   sink,
		scope:  analyzer.NewSymbolTable[symbol](),
	}

	defer func() {
		if r := recover(); r != nil {
			b, ok := r.(bailout)
			if !ok {
				panic(r)
			}
			ir, err = "", b.d
		}
	}()

	g.genProgram(m.Program)
	return g.out.String(), nil
}
