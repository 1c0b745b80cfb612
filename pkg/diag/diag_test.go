package diag

import (
	"bytes"
	"strings"
	"testing"
)

func TestSourceLine(t *testing.T) {
	src := "int main() {\r\n\treturn 1;\n}"

	tests := []struct {
		line int
		want string
	}{
		{1, "int main() {"},
		{2, "\treturn 1;"},
		{3, "}"},
		{4, ""},
		{0, ""},
	}

	for _, tt := range tests {
		if got := SourceLine(src, tt.line); got != tt.want {
			t.Errorf("line %d: expected %q, got %q", tt.line, tt.want, got)
		}
	}

	if got := SourceLine("", 1); got != "" {
		t.Errorf("expected empty line for empty source, got %q", got)
	}
}

func TestSourceLineLongerThanAnyBuffer(t *testing.T) {
	long := strings.Repeat("x", 4096)
	if got := SourceLine("a\n"+long+"\nb", 2); got != long {
		t.Errorf("long line was truncated to %d bytes", len(got))
	}
}

func TestPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf}

	p.Report(&Diagnostic{
		Source:   "int main() {\n\treturn @;\n}",
		Message:  "unexpected character",
		Line:     2,
		Column:   9,
		Severity: Fatal,
	})

	want := "Error: unexpected character at line 2, column 9\n\treturn @;\n\t       ^\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestPrinterWithoutSource(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf, Color: true}

	p.Report(&Diagnostic{Message: "function not found", Severity: Warning})

	want := colorYellow + "Warning" + colorReset + ": function not found\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestCollector(t *testing.T) {
	c := &Collector{}
	if c.Err() != nil {
		t.Fatalf("empty collector must not report an error")
	}

	first := &Diagnostic{Message: "first", Line: 1, Column: 2, Severity: Fatal}
	Tee(c, Discard).Report(&Diagnostic{Message: "note", Severity: Warning})
	c.Report(first)
	c.Report(&Diagnostic{Message: "second", Severity: Fatal})

	if c.Fatals() != 2 || c.Warnings() != 1 {
		t.Errorf("expected 2 fatals and 1 warning, got %d and %d", c.Fatals(), c.Warnings())
	}
	if c.Err() != first {
		t.Errorf("expected first fatal diagnostic, got %v", c.Err())
	}
	if first.Error() != "1:2: first" {
		t.Errorf("unexpected error text %q", first.Error())
	}
}

func TestContext(t *testing.T) {
	src := "int a;\nint b = @;\nint c;"
	got := Context(src, 2, 9)
	want := "\n   1 | int a;\n   2 | int b = @;\n     |         ^\n   3 | int c;"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}

	if Context(src, 9, 1) != "" {
		t.Errorf("expected no context for a line past the end")
	}
}

func TestPrinterWithContext(t *testing.T) {
	var buf bytes.Buffer
	p := &Printer{W: &buf, Context: true}

	p.Report(&Diagnostic{
		Source:   "int a;\nint b = @;\nint c;",
		Message:  "unexpected character",
		Line:     2,
		Column:   9,
		Severity: Fatal,
	})

	want := "Error: unexpected character at line 2, column 9\n" +
		"   1 | int a;\n   2 | int b = @;\n     |         ^\n   3 | int c;\n"
	if buf.String() != want {
		t.Errorf("expected %q, got %q", want, buf.String())
	}
}

func TestSeverityString(t *testing.T) {
	if Fatal.String() != "Error" || Warning.String() != "Warning" || Info.String() != "Info" || Severity(9).String() != "Unknown" {
		t.Errorf("unexpected severity labels")
	}
}
