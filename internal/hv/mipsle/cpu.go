// Package mipsle implements a MIPS32 little-endian interpreter with the MSA
// vector extension. It runs the code the JIT produces on any host.
package mipsle

import (
	"encoding/binary"
	"fmt"
)

// Exception causes, numbered as in the Cause register ExcCode field.
const (
	CauseAddrErrLoad  = 4
	CauseAddrErrStore = 5
	CauseBusErrData   = 7
	CauseReservedInsn = 10
)

// CPU is the architectural state of one core.
type CPU struct {
	R [32]uint32
	W [32][16]byte

	// PC is the address of the next instruction to execute. NPC follows
	// it and is where a taken branch writes its target, which gives the
	// delay slot its semantics.
	PC  uint32
	NPC uint32

	Bus *Bus
}

func NewCPU(bus *Bus) *CPU {
	return &CPU{Bus: bus}
}

// SetPC starts execution at pc.
func (cpu *CPU) SetPC(pc uint32) {
	cpu.PC = pc
	cpu.NPC = pc + 4
}

// ReadReg reads a general purpose register ($0 always returns 0).
func (cpu *CPU) ReadReg(reg uint32) uint32 {
	if reg == 0 {
		return 0
	}
	return cpu.R[reg]
}

// WriteReg writes a general purpose register (writes to $0 are ignored).
func (cpu *CPU) WriteReg(reg uint32, val uint32) {
	if reg != 0 {
		cpu.R[reg] = val
	}
}

var cpuEndian = binary.LittleEndian

// ExceptionError is raised for a condition real hardware would trap on.
type ExceptionError struct {
	Cause int
	PC    uint32
	Value uint32
}

func (e ExceptionError) Error() string {
	return fmt.Sprintf("exception: cause=%d pc=%#x value=%#x", e.Cause, e.PC, e.Value)
}
