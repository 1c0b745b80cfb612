package cgen

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

func TestGenProgram(t *testing.T) {
	src := `
int printf(string fmt, ...);
int main() {
	int x = add(1, 2);
	if (x == 3) { printf("ok\n"); } else if (x > 3) { return 1; } else { x = 0; }
	return x;
}
int add(int a, int b) { return a + b * 2; }
`
	want := `int printf(const char* fmt, ...);
int main(void);
int add(int a, int b);

int main(void) {
	int x = add(1, 2);
	if ((x == 3)) {
		printf("ok\012");
	} else if ((x > 3)) {
		return 1;
	} else {
		x = 0;
	}
	return x;
}

int add(int a, int b) {
	return (a + (b * 2));
}
`

	out, _, err := gen(t, src)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if out != want {
		t.Errorf("expected:\n%s\ngot:\n%s", want, out)
	}
}

func TestGenString(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hi", `"hi"`},
		{"a\"b\\c", `"a\"b\\c"`},
		{"\x00\t\xff", `"\000\011\377"`},
		{"??=", `"\?\?="`},
	}

	for _, tt := range tests {
		if got := genString(tt.in); got != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.in, tt.want, got)
		}
	}
}

func TestGenTypesAndLiterals(t *testing.T) {
	out, _, err := gen(t, `
void trace(...);
double f(uint u, bool b, char c, string s, float x) {
	double d;
	d = 2;
	trace();
	return 1.5 + 3.0;
}`)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	for _, want := range []string{
		"void trace();",
		"double f(unsigned int u, int b, char c, const char* s, float x)",
		"double d = 0;",
		"d = 2;",
		"return (1.5 + 3.0);",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestGenUndeclaredCallee(t *testing.T) {
	out, c, err := gen(t, "int main(){ puts(\"x\"); puts(\"y\"); return 0; }")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if c.Warnings() != 2 {
		t.Errorf("expected a warning per call, got %d", c.Warnings())
	}
	if !strings.HasPrefix(out, "long puts();\n") || strings.Count(out, "long puts();") != 1 {
		t.Errorf("expected one unprototyped declaration first:\n%s", out)
	}
}

func TestGenVoidReturn(t *testing.T) {
	out, _, err := gen(t, "void g() { } void f() { return g(); }")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if !strings.Contains(out, "\tg();\n\treturn;\n") {
		t.Errorf("expected the value to be evaluated before returning:\n%s", out)
	}
}

func TestGenErrors(t *testing.T) {
	tests := []struct {
		src     string
		message string
	}{
		{"int main(){ int y = 0; return y = 1; }", "unimplemented operator '='"},
		{"int main(){ int f() { return 1; } return 0; }", "unimplemented statement"},
		{"int main(){ void v; return 0; }", "variable 'v' declared void"},
	}

	for _, tt := range tests {
		out, c, err := gen(t, tt.src)
		if err == nil {
			t.Errorf("%s: expected error, got:\n%s", tt.message, out)
			continue
		}
		if c.Fatals() != 1 || c.Diagnostics[0].Message != tt.message {
			t.Errorf("expected %q, got %v", tt.message, c.Diagnostics)
		}
	}
}
