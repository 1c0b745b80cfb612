// Package toolchain turns generated IR into an executable by driving the
// external assembler and C compiler.
package toolchain

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"time"

	"github.com/kartiknair/cmicro/pkg/gen"
)

type Toolchain struct {
	QBE string
	CC  string

	KeepTemps bool
	Verbose   bool

	Stdout io.Writer
	Stderr io.Writer
	Logger *log.Logger
}

func New() *Toolchain {
	return &Toolchain{
		QBE:    "qbe",
		CC:     "clang",
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Logger: log.New(os.Stderr, "", 0),
	}
}

func (t *Toolchain) logf(format string, args ...interface{}) {
	if t.Verbose && t.Logger != nil {
		t.Logger.Printf(format, args...)
	}
}

func (t *Toolchain) exec(step string, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.Stdout = t.Stdout
	cmd.Stderr = t.Stderr

	t.logf("%s", cmd)
	start := time.Now()

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", step, err)
	}

	t.logf("time: %dms to %s", time.Since(start).Milliseconds(), step)
	return nil
}

func (t *Toolchain) cleanup(paths ...string) {
	if t.KeepTemps {
		return
	}
	for _, p := range paths {
		os.Remove(p)
	}
}

// Build writes ir next to output and compiles it into the executable at
// output. The intermediate files are removed unless KeepTemps is set.
func (t *Toolchain) Build(ir string, backend gen.Backend, output string) error {
	src := output + backend.Extension()
	if err := os.WriteFile(src, []byte(ir), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", src, err)
	}

	switch backend {
	case gen.QBEBackend:
		asm := output + ".s"
		defer t.cleanup(src, asm)

		if err := t.exec("assemble QBE IR", t.QBE, "-o", asm, src); err != nil {
			return err
		}
		return t.exec("compile and link", t.CC, "-o", output, asm)
	case gen.LLVMBackend:
		defer t.cleanup(src)
		return t.exec("compile and link", t.CC, "-x", "ir", "-o", output, src)
	case gen.CBackend:
		defer t.cleanup(src)
		return t.exec("compile and link", t.CC, "-x", "c", "-o", output, src)
	}

	t.cleanup(src)
	return fmt.Errorf("unknown backend %s", backend)
}

// Run executes a built program with the toolchain's output streams and
// returns its exit code. A non-zero exit is not an error.
func (t *Toolchain) Run(path string, args ...string) (int, error) {
	cmd := exec.Command(path, args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = t.Stdout
	cmd.Stderr = t.Stderr

	err := cmd.Run()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, fmt.Errorf("running %s: %w", path, err)
	}
	return 0, nil
}
