// Package diag holds the diagnostic records produced by every compiler phase
// and the sinks that receive them.
package diag

import (
	"fmt"
	"io"
	"strings"
)

type Severity int

const (
	Fatal Severity = iota
	Warning
	Info
)

func (s Severity) String() string {
	switch s {
	case Fatal:
		return "Error"
	case Warning:
		return "Warning"
	case Info:
		return "Info"
	}
	return "Unknown"
}

// Diagnostic is a single message about the source. Line and Column are
// 1-based; zero means the position is unknown. Source is the complete text
// of the compilation unit, or empty when there is none to show.
type Diagnostic struct {
	Source   string
	Message  string
	Line     int
	Column   int
	Severity Severity
}

func (d *Diagnostic) Error() string {
	if d.Line == 0 {
		return d.Message
	}
	return fmt.Sprintf("%d:%d: %s", d.Line, d.Column, d.Message)
}

type Sink interface {
	Report(d *Diagnostic)
}

type SinkFunc func(d *Diagnostic)

func (f SinkFunc) Report(d *Diagnostic) { f(d) }

// Discard drops every diagnostic.
var Discard Sink = SinkFunc(func(*Diagnostic) {})

// Collector records every diagnostic it receives, in order.
type Collector struct {
	Diagnostics []*Diagnostic
}

func (c *Collector) Report(d *Diagnostic) {
	c.Diagnostics = append(c.Diagnostics, d)
}

func (c *Collector) count(s Severity) int {
	n := 0
	for _, d := range c.Diagnostics {
		if d.Severity == s {
			n++
		}
	}
	return n
}

func (c *Collector) Fatals() int   { return c.count(Fatal) }
func (c *Collector) Warnings() int { return c.count(Warning) }

// Err returns the first fatal diagnostic, or nil.
func (c *Collector) Err() error {
	for _, d := range c.Diagnostics {
		if d.Severity == Fatal {
			return d
		}
	}
	return nil
}

// Tee forwards each diagnostic to every sink in order.
func Tee(sinks ...Sink) Sink {
	return SinkFunc(func(d *Diagnostic) {
		for _, s := range sinks {
			s.Report(d)
		}
	})
}

const (
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorBlue   = "\x1b[34m"
	colorReset  = "\x1b[0m"
)

// Printer renders diagnostics for a terminal: a labelled message, the
// offending source line and a caret under the column. With Context set the
// neighbouring lines are shown too, with a line number gutter.
type Printer struct {
	W       io.Writer
	Color   bool
	Context bool
}

func (p *Printer) Report(d *Diagnostic) {
	color, reset := "", ""
	if p.Color {
		reset = colorReset
		switch d.Severity {
		case Fatal:
			color = colorRed
		case Warning:
			color = colorYellow
		default:
			color = colorBlue
		}
	}

	fmt.Fprintf(p.W, "%s%s%s: %s", color, d.Severity, reset, d.Message)

	line := SourceLine(d.Source, d.Line)
	if line == "" {
		fmt.Fprintln(p.W)
		return
	}

	if p.Context {
		fmt.Fprintf(p.W, " at line %d, column %d%s\n", d.Line, d.Column, Context(d.Source, d.Line, d.Column))
		return
	}

	fmt.Fprintf(p.W, " at line %d, column %d\n%s\n%s%s^%s\n",
		d.Line, d.Column, line, caretOffset(line, d.Column), color, reset)
}

// SourceLine returns the text of the 1-based line, without its newline.
func SourceLine(source string, line int) string {
	if source == "" || line < 1 {
		return ""
	}

	for current := 1; current < line; current++ {
		i := strings.IndexByte(source, '\n')
		if i < 0 {
			return ""
		}
		source = source[i+1:]
	}

	if i := strings.IndexByte(source, '\n'); i >= 0 {
		source = source[:i]
	}
	return strings.TrimSuffix(source, "\r")
}

// caretOffset keeps tabs from the source line so the caret lines up with
// the column however the terminal expands them.
func caretOffset(line string, column int) string {
	var b strings.Builder
	for i := 0; i < column-1; i++ {
		if i < len(line) && line[i] == '\t' {
			b.WriteByte('\t')
		} else {
			b.WriteByte(' ')
		}
	}
	return b.String()
}

// Context renders the lines around a position with a gutter of line numbers
// and a caret under the column.
func Context(source string, line, column int) string {
	source = strings.ReplaceAll(source, "\r\n", "\n")
	sourceLines := strings.Split(source, "\n")

	if line < 1 || line > len(sourceLines) {
		return ""
	}

	var b strings.Builder
	if line > 1 {
		fmt.Fprintf(&b, "\n%4d | %s", line-1, sourceLines[line-2])
	}
	fmt.Fprintf(&b, "\n%4d | %s", line, sourceLines[line-1])
	fmt.Fprintf(&b, "\n     | %s^", caretOffset(sourceLines[line-1], column))
	if line < len(sourceLines) && sourceLines[line] != "" {
		fmt.Fprintf(&b, "\n%4d | %s", line+1, sourceLines[line])
	}
	return b.String()
}
