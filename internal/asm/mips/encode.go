package mips

import (
	"fmt"
)

// Major opcodes and function codes used by the emitter.
const (
	opSpecial = 0x00
	opRegImm  = 0x01
	opBeq     = 0x04
	opBne     = 0x05
	opBlez    = 0x06
	opBgtz    = 0x07
	opAddiu   = 0x09
	opSlti    = 0x0a
	opSltiu   = 0x0b
	opAndi    = 0x0c
	opOri     = 0x0d
	opXori    = 0x0e
	opLui     = 0x0f
	opMSA     = 0x1e
	opLb      = 0x20
	opLh      = 0x21
	opLwl     = 0x22
	opLw      = 0x23
	opLbu     = 0x24
	opLhu     = 0x25
	opLwr     = 0x26
	opSb      = 0x28
	opSh      = 0x29
	opSwl     = 0x2a
	opSw      = 0x2b
	opSwr     = 0x2e

	functSll  = 0x00
	functSrl  = 0x02
	functSra  = 0x03
	functJr   = 0x08
	functAddu = 0x21
	functSubu = 0x23
	functAnd  = 0x24
	functOr   = 0x25
	functXor  = 0x26
	functSltu = 0x2b

	regImmBltz = 0x00
	regImmBgez = 0x01
)

// MSA minor opcodes (bits 5..0).
const (
	minorI8    = 0x00
	minorI8Shf = 0x02
	minorI10   = 0x07
	minor3RAdd = 0x0e
	minor3RCmp = 0x0f
	minor3RAdS = 0x10
	minor3RSbS = 0x11
	minor3RMul = 0x12
	minorELM   = 0x19
	minor3RF   = 0x1b
	minorVEC   = 0x1e
	minor2R    = 0x1e
	minorMI10  = 0x08 // bits 5..2 = 0b1000 for LD, 0b1001 for ST
)

// IType holds the fields of an immediate format instruction.
type IType struct {
	Op  uint32
	Rs  Reg
	Rt  Reg
	Imm uint16
}

// RType holds the fields of a SPECIAL register format instruction.
type RType struct {
	Rs    Reg
	Rt    Reg
	Rd    Reg
	Shamt uint32
	Funct uint32
}

func EncodeIType(f IType) (uint32, error) {
	if f.Op > 0x3f {
		return 0, fmt.Errorf("%w: opcode %#x", ErrOutOfRange, f.Op)
	}
	rs, err := gpField(f.Rs)
	if err != nil {
		return 0, err
	}
	rt, err := gpField(f.Rt)
	if err != nil {
		return 0, err
	}
	return f.Op<<26 | rs<<21 | rt<<16 | uint32(f.Imm), nil
}

func EncodeRType(f RType) (uint32, error) {
	if f.Shamt > 31 {
		return 0, fmt.Errorf("%w: shift amount %d", ErrOutOfRange, f.Shamt)
	}
	if f.Funct > 0x3f {
		return 0, fmt.Errorf("%w: function %#x", ErrOutOfRange, f.Funct)
	}
	rs, err := gpField(f.Rs)
	if err != nil {
		return 0, err
	}
	rt, err := gpField(f.Rt)
	if err != nil {
		return 0, err
	}
	rd, err := gpField(f.Rd)
	if err != nil {
		return 0, err
	}
	return opSpecial<<26 | rs<<21 | rt<<16 | rd<<11 | f.Shamt<<6 | f.Funct, nil
}

func simm16(v int) (uint16, error) {
	if v < -0x8000 || v > 0x7fff {
		return 0, fmt.Errorf("%w: %d does not fit a signed 16-bit immediate", ErrOutOfRange, v)
	}
	return uint16(int16(v)), nil
}

func uimm16(v int) (uint16, error) {
	if v < 0 || v > 0xffff {
		return 0, fmt.Errorf("%w: %d does not fit an unsigned 16-bit immediate", ErrOutOfRange, v)
	}
	return uint16(v), nil
}

// branchOffset converts a byte distance between a branch at pos and its
// target into the 16-bit word offset, relative to the delay slot.
func branchOffset(pos, target int) (uint16, error) {
	rel := target - (pos + 4)
	if rel%4 != 0 {
		return 0, fmt.Errorf("%w: branch distance %d not word aligned", ErrOutOfRange, rel)
	}
	words := rel >> 2
	if words < -0x8000 || words > 0x7fff {
		return 0, fmt.Errorf("%w: branch distance %d words", ErrOutOfRange, words)
	}
	return uint16(int16(words)), nil
}

// I10 is the MSA ten bit immediate format (LDI).
type I10 struct {
	Op    uint32
	DF    DataFormat
	S10   int
	Wd    Reg
	Minor uint32
}

// MI10 is the MSA vector load/store format. S10 counts elements of DF.
type MI10 struct {
	S10   int
	Rs    Reg
	Wd    Reg
	Minor uint32
	DF    DataFormat
}

// TwoR is the MSA two register format. Src is a general purpose register
// when SrcGP is set (FILL) and a vector register otherwise.
type TwoR struct {
	Op    uint32
	DF    DataFormat
	Src   Reg
	SrcGP bool
	Wd    Reg
}

// ThreeR is the MSA three register integer format.
type ThreeR struct {
	Op    uint32
	DF    DataFormat
	Wt    Reg
	Ws    Reg
	Wd    Reg
	Minor uint32
}

// ELM is the MSA element format. Exactly one side may live in the general
// purpose bank: Dst for COPY_S/COPY_U, Src for INSERT.
type ELM struct {
	Op    uint32
	DF    DataFormat
	Lane  int
	Src   Reg
	SrcGP bool
	Dst   Reg
	DstGP bool
}

// I8 is the MSA eight bit immediate format.
type I8 struct {
	Op    uint32
	Imm   uint8
	Ws    Reg
	Wd    Reg
	Minor uint32
}

// ThreeRF is the MSA three register floating point format.
type ThreeRF struct {
	Op     uint32
	Double bool
	Wt     Reg
	Ws     Reg
	Wd     Reg
	Minor  uint32
}

// VEC is the MSA whole-vector bitwise format.
type VEC struct {
	Op uint32
	Wt Reg
	Ws Reg
	Wd Reg
}

func checkField(name string, v, bits uint32) error {
	if v >= 1<<bits {
		return fmt.Errorf("%w: %s %#x exceeds %d bits", ErrOutOfRange, name, v, bits)
	}
	return nil
}

func checkS10(v int) error {
	if v < -512 || v > 511 {
		return fmt.Errorf("%w: %d does not fit a signed 10-bit field", ErrOutOfRange, v)
	}
	return nil
}

func EncodeI10(f I10) (uint32, error) {
	if err := checkField("operation", f.Op, 3); err != nil {
		return 0, err
	}
	if err := checkField("minor opcode", f.Minor, 6); err != nil {
		return 0, err
	}
	if err := checkS10(f.S10); err != nil {
		return 0, err
	}
	wd, err := vecField(f.Wd)
	if err != nil {
		return 0, err
	}
	imm := uint32(f.S10) & 0x3ff
	return opMSA<<26 | f.Op<<23 | uint32(f.DF&3)<<21 | imm<<11 | wd<<6 | f.Minor, nil
}

func EncodeMI10(f MI10) (uint32, error) {
	if err := checkField("minor opcode", f.Minor, 4); err != nil {
		return 0, err
	}
	if err := checkS10(f.S10); err != nil {
		return 0, err
	}
	rs, err := gpField(f.Rs)
	if err != nil {
		return 0, err
	}
	wd, err := vecField(f.Wd)
	if err != nil {
		return 0, err
	}
	imm := uint32(f.S10) & 0x3ff
	return opMSA<<26 | imm<<16 | rs<<11 | wd<<6 | f.Minor<<2 | uint32(f.DF&3), nil
}

func Encode2R(f TwoR) (uint32, error) {
	if err := checkField("operation", f.Op, 8); err != nil {
		return 0, err
	}
	var (
		src uint32
		err error
	)
	if f.SrcGP {
		src, err = gpField(f.Src)
	} else {
		src, err = vecField(f.Src)
	}
	if err != nil {
		return 0, err
	}
	wd, err := vecField(f.Wd)
	if err != nil {
		return 0, err
	}
	return opMSA<<26 | f.Op<<18 | uint32(f.DF&3)<<16 | src<<11 | wd<<6 | minor2R, nil
}

func Encode3R(f ThreeR) (uint32, error) {
	if err := checkField("operation", f.Op, 3); err != nil {
		return 0, err
	}
	if err := checkField("minor opcode", f.Minor, 6); err != nil {
		return 0, err
	}
	wt, err := vecField(f.Wt)
	if err != nil {
		return 0, err
	}
	ws, err := vecField(f.Ws)
	if err != nil {
		return 0, err
	}
	wd, err := vecField(f.Wd)
	if err != nil {
		return 0, err
	}
	return opMSA<<26 | f.Op<<23 | uint32(f.DF&3)<<21 | wt<<16 | ws<<11 | wd<<6 | f.Minor, nil
}

// elmIndex packs the data format and lane into the six bit df/n field.
func elmIndex(df DataFormat, lane int) (uint32, error) {
	lanes := 16 / df.Size()
	if lane < 0 || lane >= lanes {
		return 0, fmt.Errorf("%w: lane %d for .%s", ErrOutOfRange, lane, df.Suffix())
	}
	n := uint32(lane)
	switch df {
	case DFByte:
		return n, nil
	case DFHalf:
		return 0b100<<3 | n, nil
	case DFWord:
		return 0b1100<<2 | n, nil
	default:
		return 0b11100<<1 | n, nil
	}
}

func EncodeELM(f ELM) (uint32, error) {
	if err := checkField("operation", f.Op, 4); err != nil {
		return 0, err
	}
	dfn, err := elmIndex(f.DF, f.Lane)
	if err != nil {
		return 0, err
	}
	var src, dst uint32
	if f.SrcGP {
		src, err = gpField(f.Src)
	} else {
		src, err = vecField(f.Src)
	}
	if err != nil {
		return 0, err
	}
	if f.DstGP {
		dst, err = gpField(f.Dst)
	} else {
		dst, err = vecField(f.Dst)
	}
	if err != nil {
		return 0, err
	}
	return opMSA<<26 | f.Op<<22 | dfn<<16 | src<<11 | dst<<6 | minorELM, nil
}

// encodeMoveV encodes MOVE.V, the ELM form with the reserved df/n value.
func encodeMoveV(wd, ws Reg) (uint32, error) {
	s, err := vecField(ws)
	if err != nil {
		return 0, err
	}
	d, err := vecField(wd)
	if err != nil {
		return 0, err
	}
	return opMSA<<26 | 0b0010111110<<16 | s<<11 | d<<6 | minorELM, nil
}

func EncodeI8(f I8) (uint32, error) {
	if err := checkField("operation", f.Op, 2); err != nil {
		return 0, err
	}
	if err := checkField("minor opcode", f.Minor, 6); err != nil {
		return 0, err
	}
	ws, err := vecField(f.Ws)
	if err != nil {
		return 0, err
	}
	wd, err := vecField(f.Wd)
	if err != nil {
		return 0, err
	}
	return opMSA<<26 | f.Op<<24 | uint32(f.Imm)<<16 | ws<<11 | wd<<6 | f.Minor, nil
}

func Encode3RF(f ThreeRF) (uint32, error) {
	if err := checkField("operation", f.Op, 4); err != nil {
		return 0, err
	}
	if err := checkField("minor opcode", f.Minor, 6); err != nil {
		return 0, err
	}
	wt, err := vecField(f.Wt)
	if err != nil {
		return 0, err
	}
	ws, err := vecField(f.Ws)
	if err != nil {
		return 0, err
	}
	wd, err := vecField(f.Wd)
	if err != nil {
		return 0, err
	}
	var df uint32
	if f.Double {
		df = 1
	}
	return opMSA<<26 | f.Op<<22 | df<<21 | wt<<16 | ws<<11 | wd<<6 | f.Minor, nil
}

func EncodeVEC(f VEC) (uint32, error) {
	if err := checkField("operation", f.Op, 5); err != nil {
		return 0, err
	}
	wt, err := vecField(f.Wt)
	if err != nil {
		return 0, err
	}
	ws, err := vecField(f.Ws)
	if err != nil {
		return 0, err
	}
	wd, err := vecField(f.Wd)
	if err != nil {
		return 0, err
	}
	return opMSA<<26 | f.Op<<21 | wt<<16 | ws<<11 | wd<<6 | minorVEC, nil
}
