package mipsle

import (
	"context"
	"errors"
	"fmt"

	"github.com/tinyrange/msajit/internal/hv"
)

var (
	// ErrHalt is returned when execution reaches the halt address. It
	// matches hv.ErrVMHalted.
	ErrHalt = fmt.Errorf("mipsle: %w", hv.ErrVMHalted)

	ErrStepLimit = errors.New("machine step limit reached")
)

// Default layout used by Call.
const (
	DefaultRAMBase uint32 = 0x0040_0000
	DefaultRAMSize uint32 = 4 << 20

	// HaltAddress is placed in $ra by Call. Returning to it stops the machine.
	HaltAddress uint32 = 0xffff_fff0
)

const (
	regA0 = 4
	regSP = 29
	regRA = 31
)

// Machine is a single MIPS32 little-endian core attached to RAM.
type Machine struct {
	CPU *CPU
	Bus *Bus

	// MaxSteps bounds the number of instructions Run will execute; zero
	// means no limit.
	MaxSteps uint64

	// YieldAfter is the number of instructions between context checks.
	YieldAfter int64

	steps uint64
}

var _ hv.VirtualCPU = (*Machine)(nil)

func NewMachine(ramBase, ramSize uint32) *Machine {
	bus := NewBus(ramBase, ramSize)
	return &Machine{
		CPU: NewCPU(bus),
		Bus: bus,
	}
}

func (m *Machine) ID() int { return 0 }

// Steps returns the number of instructions executed so far.
func (m *Machine) Steps() uint64 { return m.steps }

func (m *Machine) SetPC(pc uint32) { m.CPU.SetPC(pc) }

func (m *Machine) LoadBytes(addr uint32, data []byte) error {
	return m.Bus.LoadBytes(addr, data)
}

// Step executes a single instruction.
func (m *Machine) Step() error {
	pc := m.CPU.PC
	if pc == HaltAddress {
		return ErrHalt
	}
	if pc%4 != 0 {
		return ExceptionError{Cause: CauseAddrErrLoad, PC: pc, Value: pc}
	}
	insn, err := m.Bus.Read32(pc)
	if err != nil {
		return ExceptionError{Cause: CauseBusErrData, PC: pc, Value: pc}
	}
	m.CPU.PC = m.CPU.NPC
	m.CPU.NPC += 4
	m.steps++
	return m.CPU.Execute(pc, insn)
}

// Run runs the machine until it halts, faults or the context is cancelled.
// Reaching the halt address returns ErrHalt.
func (m *Machine) Run(ctx context.Context) error {
	yieldAfter := m.YieldAfter
	if yieldAfter <= 0 {
		yieldAfter = 100000
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		for i := int64(0); i < yieldAfter; i++ {
			if m.MaxSteps != 0 && m.steps >= m.MaxSteps {
				return fmt.Errorf("%w after %d instructions (pc=%#x)", ErrStepLimit, m.steps, m.CPU.PC)
			}
			err := m.Step()
			if err != nil {
				if errors.Is(err, ErrHalt) {
					return ErrHalt
				}
				return fmt.Errorf("step error at PC=0x%x: %w", m.CPU.PC, err)
			}
		}
	}
}

// Call invokes the function at entry with arg in $a0 and a stack whose top
// is sp, returning once the function returns through $ra.
func (m *Machine) Call(ctx context.Context, entry, arg, sp uint32) error {
	m.CPU.WriteReg(regA0, arg)
	m.CPU.WriteReg(regSP, sp)
	m.CPU.WriteReg(regRA, HaltAddress)
	m.CPU.SetPC(entry)
	err := m.Run(ctx)
	if errors.Is(err, ErrHalt) {
		return nil
	}
	return err
}

func (m *Machine) SetRegisters(regs map[hv.Register]hv.RegisterValue) error {
	for reg, val := range regs {
		switch {
		case reg == hv.RegisterMIPSPC:
			v, ok := val.(hv.Register32)
			if !ok {
				return fmt.Errorf("mipsle: pc wants Register32, got %T", val)
			}
			m.CPU.SetPC(uint32(v))
		case reg >= hv.RegisterMIPSR0 && reg < hv.RegisterMIPSR0+32:
			v, ok := val.(hv.Register32)
			if !ok {
				return fmt.Errorf("mipsle: general register wants Register32, got %T", val)
			}
			m.CPU.WriteReg(uint32(reg-hv.RegisterMIPSR0), uint32(v))
		case reg >= hv.RegisterMIPSW0 && reg < hv.RegisterMIPSW0+32:
			v, ok := val.(hv.Register128)
			if !ok {
				return fmt.Errorf("mipsle: vector register wants Register128, got %T", val)
			}
			m.CPU.W[reg-hv.RegisterMIPSW0] = v
		default:
			return fmt.Errorf("mipsle: unsupported register %d", reg)
		}
	}
	return nil
}

func (m *Machine) GetRegisters(regs map[hv.Register]hv.RegisterValue) error {
	for reg := range regs {
		switch {
		case reg == hv.RegisterMIPSPC:
			regs[reg] = hv.Register32(m.CPU.PC)
		case reg >= hv.RegisterMIPSR0 && reg < hv.RegisterMIPSR0+32:
			regs[reg] = hv.Register32(m.CPU.ReadReg(uint32(reg - hv.RegisterMIPSR0)))
		case reg >= hv.RegisterMIPSW0 && reg < hv.RegisterMIPSW0+32:
			regs[reg] = hv.Register128(m.CPU.W[reg-hv.RegisterMIPSW0])
		default:
			return fmt.Errorf("mipsle: unsupported register %d", reg)
		}
	}
	return nil
}
