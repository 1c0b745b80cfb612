package analyzer

import (
	"errors"
	"fmt"

	"github.com/kartiknair/cmicro/pkg/ast"
)

var ErrUndefined = errors.New("undefined variable")

// SymbolTable is one scope. The chain of enclosing tables is the scope stack:
// pushing creates a table from the current one, popping returns to its
// enclosing table and nothing declared in the popped table is reachable.
type SymbolTable[T any] struct {
	values    map[string]T
	enclosing *SymbolTable[T]
}

func NewSymbolTable[T any]() *SymbolTable[T] {
	return &SymbolTable[T]{
		values:    make(map[string]T),
		enclosing: nil,
	}
}

func NewSymbolTableFromEnclosing[T any](enclosing *SymbolTable[T]) *SymbolTable[T] {
	return &SymbolTable[T]{
		values:    make(map[string]T),
		enclosing: enclosing,
	}
}

// Get looks name up from the innermost scope outwards.
func (s *SymbolTable[T]) Get(name string) (T, error) {
	if value, ok := s.values[name]; ok {
		return value, nil
	} else if s.enclosing == nil {
		var zero T
		return zero, fmt.Errorf("%w: %s", ErrUndefined, name)
	}

	return s.enclosing.Get(name)
}

// Shadow binds name in this scope, hiding any binding further out.
func (s *SymbolTable[T]) Shadow(name string, value T) {
	s.values[name] = value
}

func (s *SymbolTable[T]) Enclosing() *SymbolTable[T] {
	return s.enclosing
}

// StringTable maps distinct literal byte sequences to global names in the
// order they were first seen. Names start with a dot, which no identifier
// can, so they never collide with a function.
type StringTable struct {
	names   map[string]string
	entries []StringEntry
}

type StringEntry struct {
	Name  string
	Value string
}

func NewStringTable() *StringTable {
	return &StringTable{names: make(map[string]string)}
}

// Add returns the name for value, assigning the next one if it is new.
func (t *StringTable) Add(value string) string {
	if name, ok := t.names[value]; ok {
		return name
	}

	name := fmt.Sprintf(".str%d", len(t.entries))
	t.names[value] = name
	t.entries = append(t.entries, StringEntry{Name: name, Value: value})
	return name
}

func (t *StringTable) Lookup(value string) (string, bool) {
	name, ok := t.names[value]
	return name, ok
}

func (t *StringTable) Entries() []StringEntry {
	return t.entries
}

func (t *StringTable) Len() int {
	return len(t.entries)
}

// Info is what every backend needs to know before emitting the first
// function: all callable functions and all string constants.
type Info struct {
	Functions map[string]*ast.FuncDef
	Strings   *StringTable
}

// Function looks up a registered function.
func (i *Info) Function(name string) (*ast.FuncDef, bool) {
	f, ok := i.Functions[name]
	return f, ok
}

// Analyze registers every top-level function and collects the string
// literals of the whole program in one walk. A definition wins over a
// forward declaration of the same name regardless of their order.
func Analyze(p *ast.Program) *Info {
	info := &Info{
		Functions: make(map[string]*ast.FuncDef),
		Strings:   NewStringTable(),
	}

	if p == nil {
		return info
	}

	for _, decl := range p.Decls {
		f, ok := decl.(*ast.FuncDef)
		if !ok {
			continue
		}
		if prev, ok := info.Functions[f.Name]; ok && !prev.IsDeclaration && f.IsDeclaration {
			continue
		}
		info.Functions[f.Name] = f
	}

	ast.Walk(p, func(n ast.Node) bool {
		if s, ok := n.(*ast.String); ok {
			info.Strings.Add(s.Value)
		}
		return true
	})

	return info
}
