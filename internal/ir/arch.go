package ir

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tinyrange/msajit/internal/asm"
	"github.com/tinyrange/msajit/internal/hv"
)

// Backend compiles programs for one target architecture.
type Backend interface {
	Compile(p *Program) (asm.Program, error)

	// Executable reports whether code produced by this backend can run on
	// the host. A dispatcher must not select a backend that returns false.
	Executable() bool
}

var (
	backendsMu sync.RWMutex
	backends   = make(map[hv.CpuArchitecture]Backend)
)

// RegisterBackend wires an architecture-specific backend into the shared IR
// helpers. It panics when attempting to register the same architecture more
// than once so mistakes are caught during init.
func RegisterBackend(arch hv.CpuArchitecture, backend Backend) {
	if arch == hv.ArchitectureInvalid {
		panic("ir: cannot register backend for invalid architecture")
	}
	if backend == nil {
		panic("ir: backend must be non-nil")
	}

	backendsMu.Lock()
	defer backendsMu.Unlock()

	if _, exists := backends[arch]; exists {
		panic(fmt.Sprintf("ir: backend for %s already registered", arch))
	}
	backends[arch] = backend
}

func LookupBackend(arch hv.CpuArchitecture) (Backend, error) {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	if backend, ok := backends[arch]; ok {
		return backend, nil
	}
	if arch == hv.ArchitectureInvalid {
		return nil, fmt.Errorf("ir: architecture must be specified")
	}
	return nil, fmt.Errorf("ir: no backend registered for %q", arch)
}

// Architectures lists every architecture with a registered backend.
func Architectures() []hv.CpuArchitecture {
	backendsMu.RLock()
	defer backendsMu.RUnlock()

	out := make([]hv.CpuArchitecture, 0, len(backends))
	for arch := range backends {
		out = append(out, arch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CompileForArch lowers the requested Program using the backend registered
// for arch.
func CompileForArch(arch hv.CpuArchitecture, prog *Program) (asm.Program, error) {
	if prog == nil {
		return asm.Program{}, fmt.Errorf("ir: program must be non-nil")
	}
	backend, err := LookupBackend(arch)
	if err != nil {
		return asm.Program{}, err
	}
	return backend.Compile(prog)
}

// LookupExecutableBackend returns the backend for arch only when its code
// can run on this host.
func LookupExecutableBackend(arch hv.CpuArchitecture) (Backend, error) {
	backend, err := LookupBackend(arch)
	if err != nil {
		return nil, err
	}
	if !backend.Executable() {
		return nil, fmt.Errorf("ir: backend for %q cannot execute on this host", arch)
	}
	return backend, nil
}
