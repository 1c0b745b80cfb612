package gen

import (
	"fmt"
	"strings"

	"github.com/kartiknair/cmicro/pkg/ast"
	"github.com/kartiknair/cmicro/pkg/diag"
	cgen "github.com/kartiknair/cmicro/pkg/gen/c"
	llvmgen "github.com/kartiknair/cmicro/pkg/gen/llvm"
	qbegen "github.com/kartiknair/cmicro/pkg/gen/qbe"
)

type Backend int

const (
	QBEBackend Backend = iota
	LLVMBackend
	CBackend
)

var backendNames = [...]string{
	QBEBackend:  "qbe",
	LLVMBackend: "llvm",
	CBackend:    "c",
}

func (b Backend) String() string {
	if b < 0 || int(b) >= len(backendNames) {
		return "unknown"
	}
	return backendNames[b]
}

// Extension is the file extension of the backend's output.
func (b Backend) Extension() string {
	switch b {
	case LLVMBackend:
		return ".ll"
	case CBackend:
		return ".c"
	}
	return ".qbe"
}

func ParseBackend(name string) (Backend, error) {
	for i, n := range backendNames {
		if strings.EqualFold(name, n) {
			return Backend(i), nil
		}
	}
	return 0, fmt.Errorf("unknown backend %q (expected one of: %s)", name, strings.Join(backendNames[:], ", "))
}

func QBE(m *ast.Module, sink diag.Sink) (string, error) {
	return qbegen.Gen(m, sink)
}

func LLVM(m *ast.Module, sink diag.Sink) (string, error) {
	return llvmgen.Gen(m, sink)
}

func C(m *ast.Module, sink diag.Sink) (string, error) {
	return cgen.Gen(m, sink)
}

// Generate runs the selected backend over a parsed module.
func Generate(b Backend, m *ast.Module, sink diag.Sink) (string, error) {
	switch b {
	case QBEBackend:
		return QBE(m, sink)
	case LLVMBackend:
		return LLVM(m, sink)
	case CBackend:
		return C(m, sink)
	}
	return "", fmt.Errorf("unknown backend %d", int(b))
}
