package mips

import (
	"fmt"

	"github.com/tinyrange/msajit/internal/asm"
)

func emitWord(word uint32, err error, text string) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		if err != nil {
			return fmt.Errorf("%s: %w", text, err)
		}
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		c.emit32(word, text)
		return nil
	})
}

func iType(op uint32, rs, rt Reg, imm uint16, text string) asm.Fragment {
	word, err := EncodeIType(IType{Op: op, Rs: rs, Rt: rt, Imm: imm})
	return emitWord(word, err, text)
}

func rType(funct uint32, rd, rs, rt Reg, shamt uint32, text string) asm.Fragment {
	word, err := EncodeRType(RType{Rs: rs, Rt: rt, Rd: rd, Shamt: shamt, Funct: funct})
	return emitWord(word, err, text)
}

func failed(err error) asm.Fragment {
	return fragmentFunc(func(asm.Context) error { return err })
}

func Nop() asm.Fragment {
	return emitWord(0, nil, "nop")
}

func Addu(rd, rs, rt Reg) asm.Fragment {
	return rType(functAddu, rd, rs, rt, 0, fmt.Sprintf("addu %s, %s, %s", rd, rs, rt))
}

func Subu(rd, rs, rt Reg) asm.Fragment {
	return rType(functSubu, rd, rs, rt, 0, fmt.Sprintf("subu %s, %s, %s", rd, rs, rt))
}

func And(rd, rs, rt Reg) asm.Fragment {
	return rType(functAnd, rd, rs, rt, 0, fmt.Sprintf("and %s, %s, %s", rd, rs, rt))
}

func Or(rd, rs, rt Reg) asm.Fragment {
	return rType(functOr, rd, rs, rt, 0, fmt.Sprintf("or %s, %s, %s", rd, rs, rt))
}

func Xor(rd, rs, rt Reg) asm.Fragment {
	return rType(functXor, rd, rs, rt, 0, fmt.Sprintf("xor %s, %s, %s", rd, rs, rt))
}

// Move copies rs into rd (addu rd, rs, $zero).
func Move(rd, rs Reg) asm.Fragment {
	return rType(functAddu, rd, rs, ZERO, 0, fmt.Sprintf("move %s, %s", rd, rs))
}

func Sll(rd, rt Reg, shamt int) asm.Fragment {
	return rType(functSll, rd, ZERO, rt, uint32(shamt), fmt.Sprintf("sll %s, %s, %d", rd, rt, shamt))
}

func Srl(rd, rt Reg, shamt int) asm.Fragment {
	return rType(functSrl, rd, ZERO, rt, uint32(shamt), fmt.Sprintf("srl %s, %s, %d", rd, rt, shamt))
}

func Sra(rd, rt Reg, shamt int) asm.Fragment {
	return rType(functSra, rd, ZERO, rt, uint32(shamt), fmt.Sprintf("sra %s, %s, %d", rd, rt, shamt))
}

func Jr(rs Reg) asm.Fragment {
	return rType(functJr, ZERO, rs, ZERO, 0, fmt.Sprintf("jr %s", rs))
}

func Addiu(rt, rs Reg, imm int) asm.Fragment {
	v, err := simm16(imm)
	if err != nil {
		return failed(fmt.Errorf("addiu: %w", err))
	}
	return iType(opAddiu, rs, rt, v, fmt.Sprintf("addiu %s, %s, %d", rt, rs, imm))
}

func Sltiu(rt, rs Reg, imm int) asm.Fragment {
	v, err := simm16(imm)
	if err != nil {
		return failed(fmt.Errorf("sltiu: %w", err))
	}
	return iType(opSltiu, rs, rt, v, fmt.Sprintf("sltiu %s, %s, %d", rt, rs, imm))
}

func Slti(rt, rs Reg, imm int) asm.Fragment {
	v, err := simm16(imm)
	if err != nil {
		return failed(fmt.Errorf("slti: %w", err))
	}
	return iType(opSlti, rs, rt, v, fmt.Sprintf("slti %s, %s, %d", rt, rs, imm))
}

func Andi(rt, rs Reg, imm int) asm.Fragment {
	v, err := uimm16(imm)
	if err != nil {
		return failed(fmt.Errorf("andi: %w", err))
	}
	return iType(opAndi, rs, rt, v, fmt.Sprintf("andi %s, %s, 0x%x", rt, rs, imm))
}

func Ori(rt, rs Reg, imm int) asm.Fragment {
	v, err := uimm16(imm)
	if err != nil {
		return failed(fmt.Errorf("ori: %w", err))
	}
	return iType(opOri, rs, rt, v, fmt.Sprintf("ori %s, %s, 0x%x", rt, rs, imm))
}

func Xori(rt, rs Reg, imm int) asm.Fragment {
	v, err := uimm16(imm)
	if err != nil {
		return failed(fmt.Errorf("xori: %w", err))
	}
	return iType(opXori, rs, rt, v, fmt.Sprintf("xori %s, %s, 0x%x", rt, rs, imm))
}

func Lui(rt Reg, imm int) asm.Fragment {
	v, err := uimm16(imm)
	if err != nil {
		return failed(fmt.Errorf("lui: %w", err))
	}
	return iType(opLui, ZERO, rt, v, fmt.Sprintf("lui %s, 0x%x", rt, imm))
}

// LoadImm32 materializes a 32-bit constant with the shortest sequence.
func LoadImm32(rt Reg, value uint32) asm.Fragment {
	switch {
	case int32(value) >= -0x8000 && int32(value) <= 0x7fff:
		return Addiu(rt, ZERO, int(int32(value)))
	case value <= 0xffff:
		return Ori(rt, ZERO, int(value))
	case value&0xffff == 0:
		return Lui(rt, int(value>>16))
	}
	return asm.Group{
		Lui(rt, int(value>>16)),
		Ori(rt, rt, int(value&0xffff)),
	}
}

func memOp(op uint32, name string, rt, base Reg, offset int) asm.Fragment {
	v, err := simm16(offset)
	if err != nil {
		return failed(fmt.Errorf("%s: %w", name, err))
	}
	return iType(op, base, rt, v, fmt.Sprintf("%s %s, %d(%s)", name, rt, offset, base))
}

func Lb(rt, base Reg, offset int) asm.Fragment  { return memOp(opLb, "lb", rt, base, offset) }
func Lbu(rt, base Reg, offset int) asm.Fragment { return memOp(opLbu, "lbu", rt, base, offset) }
func Lh(rt, base Reg, offset int) asm.Fragment  { return memOp(opLh, "lh", rt, base, offset) }
func Lhu(rt, base Reg, offset int) asm.Fragment { return memOp(opLhu, "lhu", rt, base, offset) }
func Lw(rt, base Reg, offset int) asm.Fragment  { return memOp(opLw, "lw", rt, base, offset) }
func Lwl(rt, base Reg, offset int) asm.Fragment { return memOp(opLwl, "lwl", rt, base, offset) }
func Lwr(rt, base Reg, offset int) asm.Fragment { return memOp(opLwr, "lwr", rt, base, offset) }
func Sb(rt, base Reg, offset int) asm.Fragment  { return memOp(opSb, "sb", rt, base, offset) }
func Sh(rt, base Reg, offset int) asm.Fragment  { return memOp(opSh, "sh", rt, base, offset) }
func Sw(rt, base Reg, offset int) asm.Fragment  { return memOp(opSw, "sw", rt, base, offset) }
func Swl(rt, base Reg, offset int) asm.Fragment { return memOp(opSwl, "swl", rt, base, offset) }
func Swr(rt, base Reg, offset int) asm.Fragment { return memOp(opSwr, "swr", rt, base, offset) }

// LoadUnaligned32 loads a word from any byte address (little-endian lwr/lwl).
func LoadUnaligned32(rt, base Reg, offset int) asm.Fragment {
	return asm.Group{
		Lwr(rt, base, offset),
		Lwl(rt, base, offset+3),
	}
}

// StoreUnaligned32 stores a word to any byte address.
func StoreUnaligned32(rt, base Reg, offset int) asm.Fragment {
	return asm.Group{
		Swr(rt, base, offset),
		Swl(rt, base, offset+3),
	}
}

// Condition selects the comparison performed by a conditional branch.
type Condition uint8

const (
	CondEQ Condition = iota
	CondNE
	CondLEZ
	CondGTZ
	CondLTZ
	CondGEZ
)

func (c Condition) String() string {
	return [...]string{"beq", "bne", "blez", "bgtz", "bltz", "bgez"}[c]
}

// Branch emits a conditional branch to label followed by a nop in the delay
// slot. rb is ignored for the compare-with-zero conditions.
func Branch(cond Condition, ra, rb Reg, label asm.Label) asm.Fragment {
	return fragmentFunc(func(ctx asm.Context) error {
		c, err := requireContext(ctx)
		if err != nil {
			return err
		}
		var (
			word uint32
			text string
		)
		switch cond {
		case CondEQ, CondNE:
			op := uint32(opBeq)
			if cond == CondNE {
				op = opBne
			}
			word, err = EncodeIType(IType{Op: op, Rs: ra, Rt: rb})
			text = fmt.Sprintf("%s %s, %s, %s", cond, ra, rb, labelName(label))
		case CondLEZ, CondGTZ:
			op := uint32(opBlez)
			if cond == CondGTZ {
				op = opBgtz
			}
			word, err = EncodeIType(IType{Op: op, Rs: ra, Rt: ZERO})
			text = fmt.Sprintf("%s %s, %s", cond, ra, labelName(label))
		case CondLTZ, CondGEZ:
			rt := Reg(regImmBltz) + GPBase
			if cond == CondGEZ {
				rt = Reg(regImmBgez) + GPBase
			}
			word, err = EncodeIType(IType{Op: opRegImm, Rs: ra, Rt: rt})
			text = fmt.Sprintf("%s %s, %s", cond, ra, labelName(label))
		default:
			return fmt.Errorf("mips asm: unknown branch condition %d", cond)
		}
		if err != nil {
			return err
		}
		if err := c.emitBranch(word, label, text); err != nil {
			return err
		}
		c.emit32(0, "nop")
		return nil
	})
}

func Beq(ra, rb Reg, label asm.Label) asm.Fragment { return Branch(CondEQ, ra, rb, label) }
func Bne(ra, rb Reg, label asm.Label) asm.Fragment { return Branch(CondNE, ra, rb, label) }
func Beqz(ra Reg, label asm.Label) asm.Fragment    { return Branch(CondEQ, ra, ZERO, label) }
func Bnez(ra Reg, label asm.Label) asm.Fragment    { return Branch(CondNE, ra, ZERO, label) }
func Blez(ra Reg, label asm.Label) asm.Fragment    { return Branch(CondLEZ, ra, ZERO, label) }
func Bgtz(ra Reg, label asm.Label) asm.Fragment    { return Branch(CondGTZ, ra, ZERO, label) }
func Bltz(ra Reg, label asm.Label) asm.Fragment    { return Branch(CondLTZ, ra, ZERO, label) }
func Bgez(ra Reg, label asm.Label) asm.Fragment    { return Branch(CondGEZ, ra, ZERO, label) }

// B is an unconditional branch (beq $zero, $zero).
func B(label asm.Label) asm.Fragment { return Branch(CondEQ, ZERO, ZERO, label) }
