package llvmgen

import (
	"strings"
	"testing"

	"github.com/kartiknair/cmicro/pkg/ast"
	"github.com/kartiknair/cmicro/pkg/diag"
	"github.com/kartiknair/cmicro/pkg/lexer"
	"github.com/kartiknair/cmicro/pkg/parser"
)

func gen(t *testing.T, src string) (string, *diag.Collector, error) {
	t.Helper()

	m := &ast.Module{Path: "test.cm", Source: src}
	if err := lexer.Lex(m, nil); err != nil {
		t.Fatalf("unexpected lex error: %s", err)
	}
	if err := parser.Parse(m, nil); err != nil {
		t.Fatalf("unexpected parse error: %s", err)
	}

	c := &diag.Collector{}
	out, err := Gen(m, c)
	return out, c, err
}

func mustGen(t *testing.T, src string) string {
	t.Helper()

	out, _, err := gen(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	return out
}

func assertContains(t *testing.T, out string, needles ...string) {
	t.Helper()

	for _, n := range needles {
		if !strings.Contains(out, n) {
			t.Errorf("expected %q in:\n%s", n, out)
		}
	}
}

func TestGenMain(t *testing.T) {
	out := mustGen(t, "int main(){ return 69; }")
	assertContains(t, out,
		`source_filename = "test.cm"`,
		"define i32 @main()",
		"ret i32 69",
	)
}

func TestGenCall(t *testing.T) {
	out := mustGen(t, "int add(int a, int b){ return a + b; } int main(){ return add(3,4); }")
	assertContains(t, out,
		"define internal i32 @add(i32 %a, i32 %b)",
		"alloca i32",
		"store i32 %a,",
		"add i32",
		"call i32 @add(i32 3, i32 4)",
	)
	if strings.Contains(out, "define internal i32 @main") {
		t.Errorf("main must keep external linkage:\n%s", out)
	}
}

func TestGenStrings(t *testing.T) {
	out := mustGen(t, `
int printf(string fmt, ...);
int main() {
	printf("hi");
	printf("hi");
	return 0;
}`)
	assertContains(t, out,
		"@.str0 = private constant [3 x i8]",
		"declare i32 @printf(",
		"...)",
		"[3 x i8]* @.str0, i32 0, i32 0",
	)
	if n := strings.Count(out, "c\"hi\\00\""); n != 1 {
		t.Errorf("expected one global for \"hi\", got %d", n)
	}
}

func TestGenStringNamesDoNotClashWithFunctions(t *testing.T) {
	out := mustGen(t, `
int puts(string s);
int str0() { return 1; }
int main() { puts("hi"); return str0(); }`)
	assertContains(t, out,
		"@.str0 = private constant [3 x i8]",
		"define internal i32 @str0()",
		"call i32 @str0()",
	)
	if strings.Contains(out, "@str0 = ") {
		t.Errorf("a string constant took the function's name:\n%s", out)
	}
}

func TestGenConditionalChain(t *testing.T) {
	out := mustGen(t, "int main(){ if (1) { return 1; } else if (0) { return 2; } else { return 3; } }")
	if n := strings.Count(out, "br i1"); n != 2 {
		t.Errorf("expected two conditional branches, got %d:\n%s", n, out)
	}
	assertContains(t, out, "icmp ne i32 1, 0", "ret i32 1", "ret i32 2", "ret i32 3")
}

func TestGenArithmeticAndConversions(t *testing.T) {
	out := mustGen(t, `
double half(double x) { return x / 2; }
int cmp(double a, double b) { return a < b; }
int rem(int a) { int r = a % 3; r = r * 2 - 1; return r; }
`)
	assertContains(t, out,
		"sitofp i32",
		"fdiv double",
		"fcmp olt double",
		"zext i1",
		"srem i32",
		"mul i32",
		"sub i32",
	)
}

func TestGenMixedComparisons(t *testing.T) {
	out := mustGen(t, `
int f(int x) { return x < 1.5; }
int g(int x) { return 2.5 > x; }
`)
	assertContains(t, out,
		"sitofp i32",
		"fcmp olt double",
		"fcmp ogt double 2.5,",
	)
	if strings.Contains(out, "fptosi") || strings.Contains(out, "icmp slt") {
		t.Errorf("a double operand must not be truncated:\n%s", out)
	}
}

func TestGenUnknownFunctionWarnsPerCall(t *testing.T) {
	out, c, err := gen(t, "int main(){ return foo(1) + foo(2); }")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.Warnings() != 2 {
		t.Errorf("expected a warning per call, got %d", c.Warnings())
	}
	if n := strings.Count(out, "declare i64 @foo(...)"); n != 1 {
		t.Errorf("expected one declaration, got %d:\n%s", n, out)
	}
}

func TestGenUnknownFunction(t *testing.T) {
	out, c, err := gen(t, "int main(){ return foo(1); }")
	if err != nil {
		t.Fatalf("unknown functions must not be fatal: %s", err)
	}
	if c.Warnings() != 1 {
		t.Errorf("expected one warning, got %d", c.Warnings())
	}
	assertContains(t, out, "declare i64 @foo(...)", "@foo(i32 1)", "trunc i64")
}

func TestGenVoid(t *testing.T) {
	out := mustGen(t, "void f() { } void g() { return; } int main(){ f(); g(); return 0; }")
	assertContains(t, out, "define internal void @f()", "ret void", "call void @f()")
}

func TestGenErrors(t *testing.T) {
	tests := []struct {
		src     string
		message string
	}{
		{"int main(){ return x; }", "undefined variable 'x'"},
		{"int main(){ int y = 0; return y = 1; }", "unimplemented operator '='"},
		{"int main(){ int f() { return 1; } return 0; }", "unimplemented statement"},
		{"void f() { } int main(){ return f(); }", "void value used in expression"},
	}

	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			out, c, err := gen(t, tt.src)
			if err == nil {
				t.Fatalf("expected error, got:\n%s", out)
			}
			if c.Fatals() != 1 || c.Diagnostics[0].Message != tt.message {
				t.Errorf("expected %q, got %v", tt.message, c.Diagnostics)
			}
		})
	}
}
