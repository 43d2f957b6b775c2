package ir

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tinyrange/msajit/internal/asm"
	"github.com/tinyrange/msajit/internal/hv"
)

type fakeBackend struct {
	executable bool
	compiled   int
}

func (f *fakeBackend) Compile(p *Program) (asm.Program, error) {
	f.compiled++
	return asm.NewProgram([]byte{0, 0, 0, 0}, nil), nil
}

func (f *fakeBackend) Executable() bool { return f.executable }

var fakeArchSeq atomic.Int32

func fakeArch() hv.CpuArchitecture {
	return hv.CpuArchitecture(fmt.Sprintf("fake%d", fakeArchSeq.Add(1)))
}

func mustPanic(t *testing.T, want string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if r == nil {
			t.Fatalf("expected panic containing %q", want)
		}
		if !strings.Contains(fmt.Sprint(r), want) {
			t.Fatalf("panic %v, want %q", r, want)
		}
	}()
	fn()
}

func TestRegisterBackend(t *testing.T) {
	arch := fakeArch()
	backend := &fakeBackend{executable: true}
	RegisterBackend(arch, backend)

	got, err := LookupBackend(arch)
	if err != nil || got != backend {
		t.Fatalf("LookupBackend=%v, %v", got, err)
	}
	found := false
	for _, a := range Architectures() {
		found = found || a == arch
	}
	if !found {
		t.Fatalf("Architectures() missing %s", arch)
	}

	p := mustProgram(t, map[int]int{D1: 1, S1: 1}, nil, "copyb d1, s1")
	prog, err := CompileForArch(arch, p)
	if err != nil || prog.Len() != 4 || backend.compiled != 1 {
		t.Fatalf("CompileForArch len=%d err=%v", prog.Len(), err)
	}
	if _, err := CompileForArch(arch, nil); err == nil {
		t.Fatalf("nil program accepted")
	}

	mustPanic(t, "already registered", func() { RegisterBackend(arch, backend) })
	mustPanic(t, "invalid architecture", func() { RegisterBackend(hv.ArchitectureInvalid, backend) })
	mustPanic(t, "non-nil", func() { RegisterBackend(fakeArch(), nil) })
}

func TestLookupExecutableBackend(t *testing.T) {
	arch := fakeArch()
	RegisterBackend(arch, &fakeBackend{executable: false})
	if _, err := LookupExecutableBackend(arch); err == nil {
		t.Fatalf("non-executable backend selected")
	}
	if _, err := LookupBackend(fakeArch()); err == nil {
		t.Fatalf("unregistered architecture found")
	}
	if _, err := LookupBackend(hv.ArchitectureInvalid); err == nil {
		t.Fatalf("invalid architecture found")
	}
}
