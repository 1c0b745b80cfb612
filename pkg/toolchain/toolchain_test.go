package toolchain

import (
	"bytes"
	"errors"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kartiknair/cmicro/pkg/gen"
)

func lookPath(t *testing.T, name string) string {
	t.Helper()

	p, err := exec.LookPath(name)
	if err != nil {
		t.Skipf("%s not available: %s", name, err)
	}
	return p
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestNew(t *testing.T) {
	tc := New()
	if tc.QBE != "qbe" || tc.CC != "clang" || tc.KeepTemps || tc.Verbose {
		t.Errorf("unexpected defaults %+v", tc)
	}
	if tc.Stdout != os.Stdout || tc.Stderr != os.Stderr || tc.Logger == nil {
		t.Errorf("expected the process streams and a logger")
	}
}

func TestBuildRemovesTemps(t *testing.T) {
	ok := lookPath(t, "true")
	out := filepath.Join(t.TempDir(), "prog")

	tc := &Toolchain{QBE: ok, CC: ok}
	for _, b := range []gen.Backend{gen.QBEBackend, gen.LLVMBackend, gen.CBackend} {
		if err := tc.Build("ir", b, out); err != nil {
			t.Fatalf("%s: unexpected error: %s", b, err)
		}
		if exists(out+b.Extension()) || exists(out+".s") {
			t.Errorf("%s: temporary files were left behind", b)
		}
	}
}

func TestBuildKeepTemps(t *testing.T) {
	ok := lookPath(t, "true")
	out := filepath.Join(t.TempDir(), "prog")

	var logs bytes.Buffer
	tc := &Toolchain{QBE: ok, CC: ok, KeepTemps: true, Verbose: true, Logger: log.New(&logs, "", 0)}
	if err := tc.Build("function w $main() {}", gen.QBEBackend, out); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	b, err := os.ReadFile(out + ".qbe")
	if err != nil {
		t.Fatalf("expected the IR to be kept: %s", err)
	}
	if string(b) != "function w $main() {}" {
		t.Errorf("unexpected IR contents %q", b)
	}
	if !strings.Contains(logs.String(), "time:") {
		t.Errorf("expected timings in verbose mode, got %q", logs.String())
	}
}

func TestBuildFailure(t *testing.T) {
	ok := lookPath(t, "true")
	fail := lookPath(t, "false")
	out := filepath.Join(t.TempDir(), "prog")

	tc := &Toolchain{QBE: fail, CC: ok}
	err := tc.Build("ir", gen.QBEBackend, out)
	if err == nil || !strings.HasPrefix(err.Error(), "assemble QBE IR") {
		t.Fatalf("expected the assembler step to fail, got %v", err)
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		t.Errorf("expected the exit error to be wrapped, got %T", errors.Unwrap(err))
	}

	tc = &Toolchain{QBE: ok, CC: fail}
	err = tc.Build("ir", gen.CBackend, out)
	if err == nil || !strings.HasPrefix(err.Error(), "compile and link") {
		t.Fatalf("expected the compile step to fail, got %v", err)
	}
	if exists(out + ".c") {
		t.Errorf("temporary files were left behind after a failure")
	}
}

func TestBuildUnknownBackend(t *testing.T) {
	out := filepath.Join(t.TempDir(), "prog")
	if err := (&Toolchain{}).Build("ir", gen.Backend(42), out); err == nil {
		t.Fatalf("expected an error")
	}
	if exists(out + ".qbe") {
		t.Errorf("temporary files were left behind")
	}
}

func TestRun(t *testing.T) {
	tc := &Toolchain{}

	code, err := tc.Run(lookPath(t, "true"))
	if err != nil || code != 0 {
		t.Errorf("expected exit code 0, got %d (%v)", code, err)
	}

	code, err = tc.Run(lookPath(t, "false"))
	if err != nil || code != 1 {
		t.Errorf("expected exit code 1, got %d (%v)", code, err)
	}

	if _, err := tc.Run(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Errorf("expected an error for a missing executable")
	}
}
