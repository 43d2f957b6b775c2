package mips

import (
	"errors"
	"fmt"

	"github.com/tinyrange/msajit/internal/asm"
)

var (
	ErrBadRegister     = errors.New("mips asm: bad register")
	ErrOutOfRange      = errors.New("mips asm: value out of range")
	ErrUnresolvedLabel = errors.New("mips asm: unresolved label")
	ErrFixupsResolved  = errors.New("mips asm: fixups already resolved")
)

// Reg is a register in the unified namespace: general purpose registers
// occupy [GPBase, GPBase+32) and MSA vector registers [VecBase, VecBase+32).
// Zero is never a valid register so an unassigned field is detectable.
type Reg int

const (
	GPBase  Reg = 32
	VecBase Reg = 64

	NumGP  = 32
	NumVec = 32
)

const (
	ZERO Reg = GPBase + iota
	AT
	V0
	V1
	A0
	A1
	A2
	A3
	T0
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	S0
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	T8
	T9
	K0
	K1
	GP
	SP
	FP
	RA
)

const (
	W0 Reg = VecBase + iota
	W1
	W2
	W3
	W4
	W5
	W6
	W7
	W8
	W9
	W10
	W11
	W12
	W13
	W14
	W15
	W16
	W17
	W18
	W19
	W20
	W21
	W22
	W23
	W24
	W25
	W26
	W27
	W28
	W29
	W30
	W31
)

var gpNames = [NumGP]string{
	"zero", "at", "v0", "v1", "a0", "a1", "a2", "a3",
	"t0", "t1", "t2", "t3", "t4", "t5", "t6", "t7",
	"s0", "s1", "s2", "s3", "s4", "s5", "s6", "s7",
	"t8", "t9", "k0", "k1", "gp", "sp", "fp", "ra",
}

func (r Reg) IsGP() bool  { return r >= GPBase && r < GPBase+NumGP }
func (r Reg) IsVec() bool { return r >= VecBase && r < VecBase+NumVec }

func (r Reg) String() string {
	switch {
	case r.IsGP():
		return "$" + gpNames[r-GPBase]
	case r.IsVec():
		return fmt.Sprintf("$w%d", int(r-VecBase))
	default:
		return fmt.Sprintf("reg(%d)", int(r))
	}
}

// gpField returns the 5-bit encoding of a general purpose register.
func gpField(r Reg) (uint32, error) {
	if !r.IsGP() {
		return 0, fmt.Errorf("%w: %s is not a general purpose register", ErrBadRegister, r)
	}
	return uint32(r - GPBase), nil
}

// vecField returns the 5-bit encoding of an MSA vector register.
func vecField(r Reg) (uint32, error) {
	if !r.IsVec() {
		return 0, fmt.Errorf("%w: %s is not a vector register", ErrBadRegister, r)
	}
	return uint32(r - VecBase), nil
}

// DataFormat is the MSA element size tag.
type DataFormat uint8

const (
	DFByte DataFormat = iota
	DFHalf
	DFWord
	DFDouble
)

// DataFormatForSize maps an element size in bytes to its format tag.
func DataFormatForSize(size int) (DataFormat, error) {
	switch size {
	case 1:
		return DFByte, nil
	case 2:
		return DFHalf, nil
	case 4:
		return DFWord, nil
	case 8:
		return DFDouble, nil
	}
	return 0, fmt.Errorf("%w: element size %d", ErrOutOfRange, size)
}

func (df DataFormat) Size() int { return 1 << df }

func (df DataFormat) Suffix() string {
	return [...]string{"b", "h", "w", "d"}[df&3]
}

type fragmentFunc func(ctx asm.Context) error

func (f fragmentFunc) Emit(ctx asm.Context) error {
	return f(ctx)
}

func requireContext(ctx asm.Context) (*Context, error) {
	c, ok := ctx.(*Context)
	if !ok {
		return nil, fmt.Errorf("mips asm: unexpected context %T", ctx)
	}
	return c, nil
}
