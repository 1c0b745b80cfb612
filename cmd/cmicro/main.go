package main

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alecthomas/repr"
	"github.com/kartiknair/cmicro/pkg/ast"
	"github.com/kartiknair/cmicro/pkg/diag"
	"github.com/kartiknair/cmicro/pkg/gen"
	"github.com/kartiknair/cmicro/pkg/lexer"
	"github.com/kartiknair/cmicro/pkg/parser"
	"github.com/kartiknair/cmicro/pkg/token"
	"github.com/kartiknair/cmicro/pkg/toolchain"
	"github.com/urfave/cli/v2"
)

// errFailed means the diagnostics explaining the failure were already
// printed.
var errFailed = errors.New("compilation failed")

type driver struct {
	sink    diag.Sink
	tc      *toolchain.Toolchain
	logger  *log.Logger
	verbose bool
}

func newDriver(c *cli.Context) *driver {
	logger := log.New(c.App.ErrWriter, "", 0)
	verbose := c.Bool("verbose")

	tc := toolchain.New()
	tc.QBE = c.String("qbe")
	tc.CC = c.String("cc")
	tc.KeepTemps = c.Bool("keep-temps")
	tc.Verbose = verbose
	tc.Stdout = c.App.Writer
	tc.Stderr = c.App.ErrWriter
	tc.Logger = logger

	return &driver{
		sink: &diag.Printer{
			W:       c.App.ErrWriter,
			Color:   !c.Bool("no-color"),
			Context: c.Bool("context"),
		},
		tc:      tc,
		logger:  logger,
		verbose: verbose,
	}
}

func (d *driver) logf(format string, args ...interface{}) {
	if d.verbose {
		d.logger.Printf(format, args...)
	}
}

func (d *driver) lexFile(filename string) (*ast.Module, error) {
	code, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed while attempting to read source file: %w", err)
	}

	m := &ast.Module{Path: filename, Source: string(code)}
	if err := lexer.Lex(m, d.sink); err != nil {
		return m, errFailed
	}
	return m, nil
}

func (d *driver) parseFile(filename string) (*ast.Module, error) {
	start := time.Now()

	m, err := d.lexFile(filename)
	if err != nil {
		return nil, err
	}
	if err := parser.Parse(m, d.sink); err != nil {
		return nil, errFailed
	}

	d.logf("time: %dus for lexing and parsing", time.Since(start).Microseconds())
	return m, nil
}

func (d *driver) genIRFromFile(filename string, backend gen.Backend) (string, error) {
	m, err := d.parseFile(filename)
	if err != nil {
		return "", err
	}

	start := time.Now()
	ir, err := gen.Generate(backend, m, d.sink)
	if err != nil {
		return "", errFailed
	}

	d.logf("time: %dus to generate %s IR", time.Since(start).Microseconds(), backend)
	return ir, nil
}

func (d *driver) build(filename string, backend gen.Backend, output string) error {
	ir, err := d.genIRFromFile(filename, backend)
	if err != nil {
		return err
	}
	return d.tc.Build(ir, backend, output)
}

func (d *driver) run(filename string, backend gen.Backend, args []string) (int, error) {
	tmpDir, err := os.MkdirTemp("", "cmicro-tmp--*")
	if err != nil {
		return 0, fmt.Errorf("failed while creating temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	exePath := filepath.Join(tmpDir, "cmicro-exe.out")
	if err := d.build(filename, backend, exePath); err != nil {
		return 0, err
	}
	return d.tc.Run(exePath, args...)
}

func formatToken(tok token.Token) string {
	s := fmt.Sprintf("[%d:%d] %s %s", tok.Pos.Line, tok.Pos.Column, tok.Type, tok.Lexeme)
	if !tok.Type.IsLiteral() {
		return s
	}

	switch tok.Type {
	case token.INT, token.BOOL:
		s += fmt.Sprintf(" (%d)", tok.Value.Int)
	case token.FLOAT:
		s += fmt.Sprintf(" (%g)", tok.Value.Float)
	case token.CHAR:
		s += fmt.Sprintf(" (%d)", tok.Value.Char)
	case token.STRING:
		s += fmt.Sprintf(" (%q)", tok.Value.Str)
	}
	return s
}

func sourceFile(c *cli.Context) (string, error) {
	filename := c.Args().First()
	if filename == "" {
		return "", errors.New("source file not provided")
	}
	return filename, nil
}

func singleSourceFile(c *cli.Context) (string, error) {
	if c.Args().Len() > 1 {
		return "", fmt.Errorf(`too many arguments provided

If you've provided flags make sure they go before the arguments.
    Wrong: $ cmicro %[1]s file.cm -o foo
    Right: $ cmicro %[1]s -o foo file.cm`, c.Command.Name)
	}
	return sourceFile(c)
}

func emitFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "emit",
		Aliases: []string{"e"},
		Value:   "qbe",
		Usage:   "Backend to generate code with (qbe, llvm or c).",
	}
}

func newApp(stdout, stderr io.Writer) *cli.App {
	return &cli.App{
		Name:      "cmicro",
		Usage:     "A micro compiler for a small C-like language.",
		Writer:    stdout,
		ErrWriter: stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "cc",
				Value:   "clang",
				Usage:   "C compiler used to assemble and link.",
				EnvVars: []string{"CMICRO_CC"},
			},
			&cli.StringFlag{
				Name:    "qbe",
				Value:   "qbe",
				Usage:   "QBE executable.",
				EnvVars: []string{"CMICRO_QBE"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Print tool invocations and timings.",
			},
			&cli.BoolFlag{
				Name:  "context",
				Usage: "Show the lines around each diagnostic.",
			},
			&cli.BoolFlag{
				Name:    "no-color",
				Usage:   "Disable colored diagnostics.",
				EnvVars: []string{"NO_COLOR"},
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "build",
				Usage: "Builds the provided source file to an executable.",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Value:   "a.out",
						Usage:   "Name of the executable.",
					},
					&cli.BoolFlag{
						Name:  "keep-temps",
						Usage: "Keep the generated IR and assembly next to the executable.",
					},
					emitFlag(),
				},
				Action: func(c *cli.Context) error {
					filename, err := singleSourceFile(c)
					if err != nil {
						return err
					}
					backend, err := gen.ParseBackend(c.String("emit"))
					if err != nil {
						return err
					}
					return newDriver(c).build(filename, backend, c.String("output"))
				},
			},
			{
				Name:      "run",
				Usage:     "Builds and immediately runs the provided source file.",
				ArgsUsage: "file [args...]",
				Flags:     []cli.Flag{emitFlag()},
				Action: func(c *cli.Context) error {
					filename, err := sourceFile(c)
					if err != nil {
						return err
					}
					backend, err := gen.ParseBackend(c.String("emit"))
					if err != nil {
						return err
					}

					code, err := newDriver(c).run(filename, backend, c.Args().Tail())
					if err != nil {
						return err
					}
					if code != 0 {
						return cli.Exit("", code)
					}
					return nil
				},
			},
			{
				Name:  "ir",
				Usage: "Prints the IR generated for the provided source file.",
				Flags: []cli.Flag{emitFlag()},
				Action: func(c *cli.Context) error {
					filename, err := singleSourceFile(c)
					if err != nil {
						return err
					}
					backend, err := gen.ParseBackend(c.String("emit"))
					if err != nil {
						return err
					}

					ir, err := newDriver(c).genIRFromFile(filename, backend)
					if err != nil {
						return err
					}
					_, err = io.WriteString(c.App.Writer, ir)
					return err
				},
			},
			{
				Name:  "tokens",
				Usage: "Prints the tokens of the provided source file.",
				Action: func(c *cli.Context) error {
					filename, err := singleSourceFile(c)
					if err != nil {
						return err
					}

					m, err := newDriver(c).lexFile(filename)
					if m == nil {
						return err
					}

					lines := []string{}
					for _, tok := range m.Tokens {
						if tok.Type != token.ERROR {
							lines = append(lines, formatToken(tok))
						}
					}
					fmt.Fprintln(c.App.Writer, strings.Join(lines, "\n"))
					return err
				},
			},
			{
				Name:  "ast",
				Usage: "Dumps the syntax tree of the provided source file.",
				Action: func(c *cli.Context) error {
					filename, err := singleSourceFile(c)
					if err != nil {
						return err
					}

					m, err := newDriver(c).parseFile(filename)
					if err != nil {
						return err
					}
					fmt.Fprintln(c.App.Writer, repr.String(m.Program, repr.Indent("  ")))
					return nil
				},
			},
		},
	}
}

func main() {
	err := newApp(os.Stdout, os.Stderr).Run(os.Args)
	if errors.Is(err, errFailed) {
		os.Exit(1)
	}
	if err != nil {
		log.Fatal(err)
	}
}
