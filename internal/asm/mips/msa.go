package mips

import (
	"fmt"

	"github.com/tinyrange/msajit/internal/asm"
)

// ThreeROp names an MSA three register integer operation as its
// (operation, minor opcode) pair.
type ThreeROp struct {
	Name  string
	op    uint32
	minor uint32
}

var (
	OpAddv  = ThreeROp{"addv", 0, minor3RAdd}
	OpSubv  = ThreeROp{"subv", 1, minor3RAdd}
	OpMaxS  = ThreeROp{"max_s", 2, minor3RAdd}
	OpMaxU  = ThreeROp{"max_u", 3, minor3RAdd}
	OpMinS  = ThreeROp{"min_s", 4, minor3RAdd}
	OpMinU  = ThreeROp{"min_u", 5, minor3RAdd}
	OpCeq   = ThreeROp{"ceq", 0, minor3RCmp}
	OpCltS  = ThreeROp{"clt_s", 2, minor3RCmp}
	OpCltU  = ThreeROp{"clt_u", 3, minor3RCmp}
	OpAddsS = ThreeROp{"adds_s", 2, minor3RAdS}
	OpAddsU = ThreeROp{"adds_u", 3, minor3RAdS}
	OpAverS = ThreeROp{"aver_s", 6, minor3RAdS}
	OpAverU = ThreeROp{"aver_u", 7, minor3RAdS}
	OpSubsS = ThreeROp{"subs_s", 0, minor3RSbS}
	OpSubsU = ThreeROp{"subs_u", 1, minor3RSbS}
	OpMulv  = ThreeROp{"mulv", 0, minor3RMul}
)

// ThreeRInsn emits wd = op(ws, wt) on elements of df.
func ThreeRInsn(op ThreeROp, df DataFormat, wd, ws, wt Reg) asm.Fragment {
	word, err := Encode3R(ThreeR{Op: op.op, DF: df, Wt: wt, Ws: ws, Wd: wd, Minor: op.minor})
	return emitWord(word, err, fmt.Sprintf("%s.%s %s, %s, %s", op.Name, df.Suffix(), wd, ws, wt))
}

func Addv(df DataFormat, wd, ws, wt Reg) asm.Fragment  { return ThreeRInsn(OpAddv, df, wd, ws, wt) }
func Subv(df DataFormat, wd, ws, wt Reg) asm.Fragment  { return ThreeRInsn(OpSubv, df, wd, ws, wt) }
func AddsS(df DataFormat, wd, ws, wt Reg) asm.Fragment { return ThreeRInsn(OpAddsS, df, wd, ws, wt) }
func AddsU(df DataFormat, wd, ws, wt Reg) asm.Fragment { return ThreeRInsn(OpAddsU, df, wd, ws, wt) }
func SubsS(df DataFormat, wd, ws, wt Reg) asm.Fragment { return ThreeRInsn(OpSubsS, df, wd, ws, wt) }
func SubsU(df DataFormat, wd, ws, wt Reg) asm.Fragment { return ThreeRInsn(OpSubsU, df, wd, ws, wt) }

// FloatOp names an MSA three register floating point operation.
type FloatOp struct {
	Name string
	op   uint32
}

var (
	OpFadd = FloatOp{"fadd", 0}
	OpFsub = FloatOp{"fsub", 1}
	OpFmul = FloatOp{"fmul", 2}
	OpFdiv = FloatOp{"fdiv", 3}
)

func ThreeRFInsn(op FloatOp, double bool, wd, ws, wt Reg) asm.Fragment {
	word, err := Encode3RF(ThreeRF{Op: op.op, Double: double, Wt: wt, Ws: ws, Wd: wd, Minor: minor3RF})
	suffix := "w"
	if double {
		suffix = "d"
	}
	return emitWord(word, err, fmt.Sprintf("%s.%s %s, %s, %s", op.Name, suffix, wd, ws, wt))
}

// VecOp names an MSA whole-register bitwise operation.
type VecOp struct {
	Name string
	op   uint32
}

var (
	OpAndV = VecOp{"and.v", 0}
	OpOrV  = VecOp{"or.v", 1}
	OpNorV = VecOp{"nor.v", 2}
	OpXorV = VecOp{"xor.v", 3}
)

func VecInsn(op VecOp, wd, ws, wt Reg) asm.Fragment {
	word, err := EncodeVEC(VEC{Op: op.op, Wt: wt, Ws: ws, Wd: wd})
	return emitWord(word, err, fmt.Sprintf("%s %s, %s, %s", op.Name, wd, ws, wt))
}

func AndV(wd, ws, wt Reg) asm.Fragment { return VecInsn(OpAndV, wd, ws, wt) }

// MoveV copies a whole vector register.
func MoveV(wd, ws Reg) asm.Fragment {
	word, err := encodeMoveV(wd, ws)
	return emitWord(word, err, fmt.Sprintf("move.v %s, %s", wd, ws))
}

// Ldi broadcasts a signed 10-bit immediate into every element of wd.
func Ldi(df DataFormat, wd Reg, imm int) asm.Fragment {
	word, err := EncodeI10(I10{Op: 6, DF: df, S10: imm, Wd: wd, Minor: minorI10})
	return emitWord(word, err, fmt.Sprintf("ldi.%s %s, %d", df.Suffix(), wd, imm))
}

// Fill broadcasts the low element of general purpose register rs.
func Fill(df DataFormat, wd, rs Reg) asm.Fragment {
	word, err := Encode2R(TwoR{Op: 0xc0, DF: df, Src: rs, SrcGP: true, Wd: wd})
	return emitWord(word, err, fmt.Sprintf("fill.%s %s, %s", df.Suffix(), wd, rs))
}

func vecMem(minor uint32, name string, df DataFormat, wd, base Reg, offset int) asm.Fragment {
	size := df.Size()
	if offset%size != 0 {
		return failed(fmt.Errorf("%s.%s: %w: offset %d not a multiple of %d",
			name, df.Suffix(), ErrOutOfRange, offset, size))
	}
	word, err := EncodeMI10(MI10{S10: offset / size, Rs: base, Wd: wd, Minor: minor, DF: df})
	return emitWord(word, err, fmt.Sprintf("%s.%s %s, %d(%s)", name, df.Suffix(), wd, offset, base))
}

// Ld loads 16 bytes from offset(base). The byte offset must be a multiple of
// the element size and offset/size must fit the signed 10-bit field.
func Ld(df DataFormat, wd, base Reg, offset int) asm.Fragment {
	return vecMem(minorMI10, "ld", df, wd, base, offset)
}

// St stores 16 bytes to offset(base).
func St(df DataFormat, wd, base Reg, offset int) asm.Fragment {
	return vecMem(minorMI10|1, "st", df, wd, base, offset)
}

// CopyS moves lane n of ws, sign extended, into general purpose register rd.
func CopyS(df DataFormat, rd, ws Reg, lane int) asm.Fragment {
	word, err := EncodeELM(ELM{Op: 2, DF: df, Lane: lane, Src: ws, Dst: rd, DstGP: true})
	return emitWord(word, err, fmt.Sprintf("copy_s.%s %s, %s[%d]", df.Suffix(), rd, ws, lane))
}

// CopyU moves lane n of ws, zero extended, into general purpose register rd.
func CopyU(df DataFormat, rd, ws Reg, lane int) asm.Fragment {
	word, err := EncodeELM(ELM{Op: 3, DF: df, Lane: lane, Src: ws, Dst: rd, DstGP: true})
	return emitWord(word, err, fmt.Sprintf("copy_u.%s %s, %s[%d]", df.Suffix(), rd, ws, lane))
}

// Insert writes general purpose register rs into lane n of wd.
func Insert(df DataFormat, wd Reg, lane int, rs Reg) asm.Fragment {
	word, err := EncodeELM(ELM{Op: 4, DF: df, Lane: lane, Src: rs, SrcGP: true, Dst: wd})
	return emitWord(word, err, fmt.Sprintf("insert.%s %s[%d], %s", df.Suffix(), wd, lane, rs))
}

// Shf shuffles the elements inside each group of four by the 8-bit pattern.
func Shf(df DataFormat, wd, ws Reg, pattern uint8) asm.Fragment {
	if df == DFDouble {
		return failed(fmt.Errorf("shf: %w: no doubleword form", ErrOutOfRange))
	}
	word, err := EncodeI8(I8{Op: uint32(df), Imm: pattern, Ws: ws, Wd: wd, Minor: minorI8Shf})
	return emitWord(word, err, fmt.Sprintf("shf.%s %s, %s, 0x%x", df.Suffix(), wd, ws, pattern))
}

// ByteImmOp names an I8 bytewise logical immediate operation.
type ByteImmOp struct {
	Name string
	op   uint32
}

var (
	OpAndiB = ByteImmOp{"andi.b", 0}
	OpOriB  = ByteImmOp{"ori.b", 1}
	OpNoriB = ByteImmOp{"nori.b", 2}
	OpXoriB = ByteImmOp{"xori.b", 3}
)

func ByteImm(op ByteImmOp, wd, ws Reg, imm uint8) asm.Fragment {
	word, err := EncodeI8(I8{Op: op.op, Imm: imm, Ws: ws, Wd: wd, Minor: minorI8})
	return emitWord(word, err, fmt.Sprintf("%s %s, %s, 0x%x", op.Name, wd, ws, imm))
}

func XoriB(wd, ws Reg, imm uint8) asm.Fragment { return ByteImm(OpXoriB, wd, ws, imm) }
