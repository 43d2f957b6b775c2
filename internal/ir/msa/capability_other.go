//go:build !(mips64 || mips64le) && !(linux && mipsle)

package msa

func hostHasMSA() bool { return false }
