package main

import (
	"bytes"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/tinyrange/msajit/internal/ir"
)

func testOptions(t *testing.T, kernel string) (options, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	return options{
		kernel: kernel,
		unroll: -1,
		seed:   1,
		maxN:   40,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		stdout: &out,
	}, &out
}

func TestRunWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	o, out := testOptions(t, filepath.Join("..", "..", "kernels", "add_const.yaml"))
	o.out = filepath.Join(dir, "k.bin")
	o.elf = filepath.Join(dir, "k.elf")
	o.listing = true
	o.width = 20
	if err := run(o); err != nil {
		t.Fatalf("run: %v", err)
	}

	code, err := os.ReadFile(o.out)
	if err != nil || len(code) == 0 || len(code)%4 != 0 {
		t.Fatalf("code file: %d bytes, %v", len(code), err)
	}
	image, err := os.ReadFile(o.elf)
	if err != nil || !bytes.HasPrefix(image, []byte("\x7fELF")) {
		t.Fatalf("ELF file: %v", err)
	}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if len([]rune(line)) > 20 {
			t.Fatalf("listing line %q wider than 20 columns", line)
		}
	}
}

// TestKernelsVerify compiles every bundled kernel and checks it against the
// interpreter in the simulator.
func TestKernelsVerify(t *testing.T) {
	paths, err := filepath.Glob(filepath.Join("..", "..", "kernels", "*.yaml"))
	if err != nil || len(paths) == 0 {
		t.Fatalf("no kernels found: %v", err)
	}
	for _, path := range paths {
		t.Run(filepath.Base(path), func(t *testing.T) {
			o, _ := testOptions(t, path)
			o.verify = 5
			for _, u := range []int{0, 2} {
				o.unroll = u
				if err := run(o); err != nil {
					t.Fatalf("unroll %d: %v", u, err)
				}
			}
		})
	}
}

func TestRunErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("name: bad\nvars: {d2: 1, s2: 1}\ncode: copyb d2, s2\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{bad, filepath.Join(dir, "missing.yaml")} {
		o, _ := testOptions(t, path)
		if err := run(o); err == nil {
			t.Fatalf("%s: expected an error", path)
		}
	}
}

func TestPrintCapabilities(t *testing.T) {
	o, out := testOptions(t, "")
	o.caps = true
	if err := run(o); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(out.String(), "backend mipsle") {
		t.Fatalf("output=%q", out.String())
	}
}

func TestRandomExecutorKeepsAlignment(t *testing.T) {
	k, err := ir.LoadKernelFile(filepath.Join("..", "..", "kernels", "pixel_pairs.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	p, err := k.Program()
	if err != nil {
		t.Fatal(err)
	}
	r := rand.New(rand.NewPCG(1, 2))
	for range 200 {
		ex, err := randomExecutor(r, p, 40)
		if err != nil {
			t.Fatalf("randomExecutor: %v", err)
		}
		for _, v := range []int{ir.D1, ir.S1} {
			if ex.Arrays[v]%ir.ArrayAlignment != 0 || ex.Params[v]%ir.ArrayAlignment != 0 {
				t.Fatalf("%s at %#x stride %d, want word aligned", ir.VarName(v), ex.Arrays[v], ex.Params[v])
			}
		}
	}
}
