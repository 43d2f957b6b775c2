package hv

import (
	"context"
	"errors"
)

var (
	ErrVMHalted = errors.New("virtual machine halted")
)

type CpuArchitecture string

const (
	ArchitectureInvalid  CpuArchitecture = "invalid"
	ArchitectureMIPS32LE CpuArchitecture = "mipsle"
)

type RegisterValue interface {
	isRegisterValue()
}

type Register32 uint32

func (r Register32) isRegisterValue() {}

// Register128 holds a vector register in memory order.
type Register128 [16]byte

func (r Register128) isRegisterValue() {}

type Register uint64

const (
	RegisterInvalid Register = iota

	// MIPS general purpose registers $0..$31 follow in order.
	RegisterMIPSR0

	RegisterMIPSPC = RegisterMIPSR0 + 32

	// MSA vector registers $w0..$w31 follow in order.
	RegisterMIPSW0 = RegisterMIPSPC + 1
)

// RegisterMIPSGPR returns the register id of general purpose register n.
func RegisterMIPSGPR(n int) Register { return RegisterMIPSR0 + Register(n) }

// RegisterMIPSVec returns the register id of vector register n.
func RegisterMIPSVec(n int) Register { return RegisterMIPSW0 + Register(n) }

type VirtualCPU interface {
	ID() int

	SetRegisters(regs map[Register]RegisterValue) error
	GetRegisters(regs map[Register]RegisterValue) error

	Run(ctx context.Context) error
}
