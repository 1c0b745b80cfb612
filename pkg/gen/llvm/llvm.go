package llvmgen

import (
	"fmt"
	"math"

	"github.com/kartiknair/cmicro/pkg/analyzer"
	"github.com/kartiknair/cmicro/pkg/ast"
	"github.com/kartiknair/cmicro/pkg/diag"
	"github.com/kartiknair/cmicro/pkg/token"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/types"
	"github.com/llir/llvm/ir/value"
)

type local struct {
	ptr value.Value
	typ types.Type
}

type bailout struct {
	d *diag.Diagnostic
}

type generator struct {
	m    *ast.Module
	info *analyzer.Info
	sink diag.Sink

	module  *ir.Module
	fn      *ir.Func
	block   *ir.Block
	retType types.Type

	funcs      map[string]*ir.Func
	undeclared map[string]bool
	strings    map[string]*ir.Global
	scope      *analyzer.SymbolTable[local]
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

func (g *generator) genType(n ast.Node, name string) types.Type {
	switch name {
	case "int", "uint", "char", "bool":
		return types.I32
	case "float", "double":
		return types.Double
	case "string":
		return types.I8Ptr
	case "void":
		return types.Void
	}

	g.genError(n, fmt.Sprintf("unknown type '%s'", name))
	return nil
}

func zeroValue(t types.Type) value.Value {
	switch t := t.(type) {
	case *types.IntType:
		return constant.NewInt(t, 0)
	case *types.FloatType:
		return constant.NewFloat(t, 0)
	case *types.PointerType:
		return constant.NewNull(t)
	}
	return nil
}

func (g *generator) newBlock() *ir.Block {
	b := ir.NewBlock("")
	b.Parent = g.fn
	return b
}

// enter appends b to the current function and makes it the insertion point.
func (g *generator) enter(b *ir.Block) {
	g.fn.Blocks = append(g.fn.Blocks, b)
	g.block = b
}

func (g *generator) branch(target *ir.Block) {
	if g.block.Term == nil {
		g.block.NewBr(target)
	}
}

func (g *generator) convert(v value.Value, to types.Type) value.Value {
	from := v.Type()
	if from.Equal(to) || types.IsVoid(to) {
		return v
	}

	switch {
	case types.IsInt(from) && types.IsFloat(to):
		return g.block.NewSIToFP(v, to)
	case types.IsFloat(from) && types.IsInt(to):
		return g.block.NewFPToSI(v, to)
	case types.IsInt(from) && types.IsInt(to):
		if from.(*types.IntType).BitSize < to.(*types.IntType).BitSize {
			return g.block.NewSExt(v, to)
		}
		return g.block.NewTrunc(v, to)
	case types.IsPointer(from) && types.IsInt(to):
		return g.block.NewPtrToInt(v, to)
	case types.IsInt(from) && types.IsPointer(to):
		return g.block.NewIntToPtr(v, to)
	}
	return v
}

func (g *generator) use(e ast.Expression) value.Value {
	v := g.genExpression(e)
	if types.IsVoid(v.Type()) {
		g.genError(e, "void value used in expression")
	}
	return v
}

func (g *generator) genExpression(e ast.Expression) value.Value {
	switch e := e.(type) {
	case *ast.Number:
		if e.IsFloat() {
			return constant.NewFloat(types.Double, e.Float)
		}
		if e.Int < math.MinInt32 || e.Int > math.MaxInt32 {
			return constant.NewInt(types.I64, e.Int)
		}
		return constant.NewInt(types.I32, e.Int)
	case *ast.String:
		name, ok := g.info.Strings.Lookup(e.Value)
		if !ok {
			g.genError(e, "string not collected")
		}
		def := g.strings[name]
		return constant.NewGetElementPtr(
			types.NewArray(uint64(len(e.Value)+1), types.I8),
			def,
			constant.NewInt(types.I32, 0),
			constant.NewInt(types.I32, 0),
		)
	case *ast.Ident:
		l, err := g.scope.Get(e.Name)
		if err != nil {
			g.genError(e, fmt.Sprintf("undefined variable '%s'", e.Name))
		}
		return g.block.NewLoad(l.typ, l.ptr)
	case *ast.BinOp:
		return g.genBinOp(e)
	case *ast.FuncCall:
		return g.genCall(e)
	case *ast.Assign:
		return g.genAssign(e)
	}

	g.genError(e, "unimplemented expression")
	return nil
}

var intPredicates = map[token.TokenType]enum.IPred{
	token.EQUAL_EQUAL:   enum.IPredEQ,
	token.BANG_EQUAL:    enum.IPredNE,
	token.LESSER:        enum.IPredSLT,
	token.LESSER_EQUAL:  enum.IPredSLE,
	token.GREATER:       enum.IPredSGT,
	token.GREATER_EQUAL: enum.IPredSGE,
}

var floatPredicates = map[token.TokenType]enum.FPred{
	token.EQUAL_EQUAL:   enum.FPredOEQ,
	token.BANG_EQUAL:    enum.FPredONE,
	token.LESSER:        enum.FPredOLT,
	token.LESSER_EQUAL:  enum.FPredOLE,
	token.GREATER:       enum.FPredOGT,
	token.GREATER_EQUAL: enum.FPredOGE,
}

// unify brings both operands of a comparison to a common type: double when
// either side is floating, otherwise the wider integer.
func (g *generator) unify(lhs, rhs value.Value) (value.Value, value.Value) {
	lt, rt := lhs.Type(), rhs.Type()
	switch {
	case types.IsFloat(lt) && !types.IsFloat(rt):
		return lhs, g.convert(rhs, lt)
	case types.IsFloat(rt) && !types.IsFloat(lt):
		return g.convert(lhs, rt), rhs
	case types.IsInt(lt) && types.IsInt(rt) && lt.(*types.IntType).BitSize < rt.(*types.IntType).BitSize:
		return g.convert(lhs, rt), rhs
	}
	return lhs, g.convert(rhs, lt)
}

func (g *generator) genBinOp(b *ast.BinOp) value.Value {
	isCmp := b.Op.IsComparativeOperator()
	switch b.Op {
	case token.PLUS, token.MINUS, token.STAR, token.SLASH, token.PERCENT:
	default:
		if !isCmp {
			g.genError(b, fmt.Sprintf("unimplemented operator '%s'", b.Token.Lexeme))
		}
	}

	lhs := g.use(b.Left)
	rhs := g.use(b.Right)

	if isCmp {
		lhs, rhs = g.unify(lhs, rhs)

		var cmp value.Value
		if types.IsFloat(lhs.Type()) {
			cmp = g.block.NewFCmp(floatPredicates[b.Op], lhs, rhs)
		} else {
			cmp = g.block.NewICmp(intPredicates[b.Op], lhs, rhs)
		}
		return g.block.NewZExt(cmp, types.I32)
	}

	rhs = g.convert(rhs, lhs.Type())
	isFloat := types.IsFloat(lhs.Type())

	if !isFloat && !types.IsInt(lhs.Type()) {
		g.genError(b, fmt.Sprintf("invalid operand for '%s'", b.Token.Lexeme))
	}

	switch b.Op {
	case token.PLUS:
		if isFloat {
			return g.block.NewFAdd(lhs, rhs)
		}
		return g.block.NewAdd(lhs, rhs)
	case token.MINUS:
		if isFloat {
			return g.block.NewFSub(lhs, rhs)
		}
		return g.block.NewSub(lhs, rhs)
	case token.STAR:
		if isFloat {
			return g.block.NewFMul(lhs, rhs)
		}
		return g.block.NewMul(lhs, rhs)
	case token.SLASH:
		if isFloat {
			return g.block.NewFDiv(lhs, rhs)
		}
		return g.block.NewSDiv(lhs, rhs)
	}

	if isFloat {
		g.genError(b, "remainder of a floating value")
	}
	return g.block.NewSRem(lhs, rhs)
}

// callee resolves a function, declaring unknown ones as variadic externals
// returning i64 so calls to libc and friends still link. Every call to an
// unknown function is reported.
func (g *generator) callee(c *ast.FuncCall) *ir.Func {
	f, ok := g.funcs[c.Name]
	if ok && !g.undeclared[c.Name] {
		return f
	}

	g.sink.Report(&diag.Diagnostic{
		Source:   g.m.Source,
		Message:  fmt.Sprintf("function '%s' not found, declaring it as variadic", c.Name),
		Line:     c.Pos().Line,
		Column:   c.Pos().Column,
		Severity: diag.Warning,
	})
	if ok {
		return f
	}

	f = g.module.NewFunc(c.Name, types.I64)
	f.Sig.Variadic = true
	g.funcs[c.Name] = f
	g.undeclared[c.Name] = true
	return f
}

func (g *generator) genCall(c *ast.FuncCall) value.Value {
	f := g.callee(c)

	args := []value.Value{}
	for i, a := range c.Args {
		v := g.use(a)
		if i < len(f.Params) {
			v = g.convert(v, f.Params[i].Typ)
		}
		args = append(args, v)
	}

	return g.block.NewCall(f, args...)
}

func (g *generator) genAssign(a *ast.Assign) value.Value {
	if a.IsDefinition() {
		typ := g.genType(a, a.Type)
		if types.IsVoid(typ) {
			g.genError(a, fmt.Sprintf("variable '%s' declared void", a.Name))
		}

		v := zeroValue(typ)
		if a.Value != nil {
			v = g.convert(g.use(a.Value), typ)
		}

		variable := g.block.NewAlloca(typ)
		g.block.NewStore(v, variable)
		g.scope.Shadow(a.Name, local{ptr: variable, typ: typ})
		return v
	}

	l, err := g.scope.Get(a.Name)
	if err != nil {
		g.genError(a, fmt.Sprintf("undefined variable '%s'", a.Name))
	}

	v := g.convert(g.use(a.Value), l.typ)
	g.block.NewStore(v, l.ptr)
	return v
}

func (g *generator) genCondition(e ast.Expression) value.Value {
	v := g.use(e)

	switch t := v.Type().(type) {
	case *types.FloatType:
		return g.block.NewFCmp(enum.FPredONE, v, constant.NewFloat(t, 0))
	case *types.PointerType:
		return g.block.NewICmp(enum.IPredNE, v, constant.NewNull(t))
	case *types.IntType:
		return g.block.NewICmp(enum.IPredNE, v, constant.NewInt(t, 0))
	}

	g.genError(e, "invalid condition")
	return nil
}

// genConditional lowers an if chain. All branches meet in one continuation
// block owned by the outermost call.
func (g *generator) genConditional(cond ast.Expression, then *ast.Block, els ast.Statement, cont *ir.Block) {
	outermost := cont == nil
	if outermost {
		cont = g.newBlock()
	}

	c := g.genCondition(cond)
	thenBlock, nextBlock := g.newBlock(), g.newBlock()
	g.block.NewCondBr(c, thenBlock, nextBlock)

	g.enter(thenBlock)
	g.genBlock(then)
	g.branch(cont)

	g.enter(nextBlock)
	switch e := els.(type) {
	case *ast.ElseIf:
		g.genConditional(e.Condition, e.Then, e.Else, cont)
	case *ast.Else:
		g.genBlock(e.Block)
		g.branch(cont)
	}

	if outermost {
		g.branch(cont)
		g.enter(cont)
	}
}

func (g *generator) genBlock(b *ast.Block) {
	g.scope = analyzer.NewSymbolTableFromEnclosing(g.scope)
	for _, s := range b.Statements {
		if g.block.Term != nil {
			// unreachable code after a return still needs a block.
			g.enter(g.newBlock())
		}
		g.genStatement(s)
	}
	g.scope = g.scope.Enclosing()
}

func (g *generator) genStatement(s ast.Statement) {
	switch s := s.(type) {
	case *ast.Return:
		if s.Value == nil || types.IsVoid(g.retType) {
			if s.Value != nil {
				g.genExpression(s.Value)
			}
			if types.IsVoid(g.retType) {
				g.block.NewRet(nil)
			} else {
				g.block.NewRet(zeroValue(g.retType))
			}
			return
		}
		g.block.NewRet(g.convert(g.use(s.Value), g.retType))
	case *ast.FuncCall:
		g.genCall(s)
	case *ast.Assign:
		g.genAssign(s)
	case *ast.If:
		g.genConditional(s.Condition, s.Then, s.Else, nil)
	case *ast.Block:
		g.genBlock(s)
	case *ast.Import:
	default:
		g.genError(s, "unimplemented statement")
	}
}

func (g *generator) genFuncDecl(f *ast.FuncDef) *ir.Func {
	params := []*ir.Param{}
	for _, p := range f.FixedParams() {
		typ := g.genType(f, p.Type)
		if types.IsVoid(typ) {
			g.genError(f, fmt.Sprintf("parameter '%s' declared void", p.Name))
		}
		params = append(params, ir.NewParam(p.Name, typ))
	}

	fun := g.module.NewFunc(f.Name, g.genType(f, f.ReturnType), params...)
	fun.Sig.Variadic = f.IsVariadic()
	return fun
}

func (g *generator) genFuncDef(f *ast.FuncDef) {
	g.fn = g.funcs[f.Name]
	g.retType = g.fn.Sig.RetType
	g.enter(g.newBlock())

	g.scope = analyzer.NewSymbolTableFromEnclosing(g.scope)
	for i, p := range f.FixedParams() {
		param := g.fn.Params[i]
		variable := g.block.NewAlloca(param.Typ)
		g.block.NewStore(param, variable)
		g.scope.Shadow(p.Name, local{ptr: variable, typ: param.Typ})
	}

	g.genBlock(f.Body)
	g.scope = g.scope.Enclosing()

	if g.block.Term == nil {
		if types.IsVoid(g.retType) {
			g.block.NewRet(nil)
		} else {
			g.block.NewRet(zeroValue(g.retType))
		}
	}
}

// Gen emits LLVM IR for a parsed module. Declarations become `declare`s,
// every other function gets a body; only main is visible outside the
// module.
func Gen(m *ast.Module, sink diag.Sink) (out string, err error) {
	if sink == nil {
		sink = diag.Discard
	}
	if m.Program == nil {
		return "", fmt.Errorf("module %s has not been parsed", m.Path)
	}

	g := &generator{
		m:          m,
		info:       analyzer.Analyze(m.Program),
		sink:       sink,
		module:     newModule(m.Path),
		funcs:      make(map[string]*ir.Func),
		undeclared: make(map[string]bool),
		strings:    make(map[string]*ir.Global),
		scope:      analyzer.NewSymbolTable[local](),
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

	g.genProgram(m.Program)
	return g.module.String(), nil
}

func (g *generator) genProgram(p *ast.Program) {
	for _, s := range g.info.Strings.Entries() {
		def := g.module.NewGlobalDef(s.Name, constant.NewCharArrayFromString(s.Value+"\x00"))
		def.Linkage = enum.LinkagePrivate
		def.Immutable = true
		g.strings[s.Name] = def
	}

	for _, decl := range p.Decls {
		f, ok := decl.(*ast.FuncDef)
		if !ok || g.funcs[f.Name] != nil {
			continue
		}
		// the registry holds the definition when there is one.
		f = g.info.Functions[f.Name]
		fun := g.genFuncDecl(f)
		if !f.IsDeclaration && f.Name != "main" {
			fun.Linkage = enum.LinkageInternal
		}
		g.funcs[f.Name] = fun
	}

	for _, decl := range p.Decls {
		if f, ok := decl.(*ast.FuncDef); ok && !f.IsDeclaration {
			g.genFuncDef(f)
		}
	}
}

func newModule(path string) *ir.Module {
	module := ir.NewModule()
	module.SourceFilename = path
	return module
}
