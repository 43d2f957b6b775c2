package msa

import (
	"bufio"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// NoMSAEnv names the environment variable that hides MSA from Capabilities.
// Any value that does not parse as false counts as set.
const NoMSAEnv = "MSAJIT_NO_MSA"

// Capability describes what the host can do with code from this backend.
type Capability struct {
	// HasMSA is set when the host CPU implements the MIPS SIMD Architecture.
	HasMSA bool

	// Executable is set when compiled kernels can be called directly,
	// which needs a 32-bit little-endian MIPS host with MSA.
	Executable bool
}

// Capabilities queries the host.
func Capabilities() Capability {
	has := !noMSAEnvSet() && hostHasMSA()
	return Capability{
		HasMSA:     has,
		Executable: has && runtime.GOARCH == "mipsle",
	}
}

func noMSAEnvSet() bool {
	val := os.Getenv(NoMSAEnv)
	if val == "" {
		return false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		return b
	}
	return true
}

// parseCPUInfoMSA reports whether a /proc/cpuinfo listing names msa among
// the implemented ASEs.
func parseCPUInfoMSA(r io.Reader) bool {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		key, val, ok := strings.Cut(sc.Text(), ":")
		if !ok || strings.TrimSpace(key) != "ASEs implemented" {
			continue
		}
		for _, ase := range strings.Fields(val) {
			if ase == "msa" {
				return true
			}
		}
	}
	return false
}
