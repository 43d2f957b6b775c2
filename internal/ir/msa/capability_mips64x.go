//go:build mips64 || mips64le

package msa

import "golang.org/x/sys/cpu"

func hostHasMSA() bool { return cpu.MIPS64X.HasMSA }
