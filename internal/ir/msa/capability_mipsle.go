//go:build linux && mipsle

package msa

import "os"

func hostHasMSA() bool {
	f, err := os.Open("/proc/cpuinfo")
	if err != nil {
		return false
	}
	defer f.Close()
	return parseCPUInfoMSA(f)
}
