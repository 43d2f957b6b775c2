package mipsle

// Major opcodes
const (
	OpSpecial = 0x00
	OpRegImm  = 0x01
	OpBeq     = 0x04
	OpBne     = 0x05
	OpBlez    = 0x06
	OpBgtz    = 0x07
	OpAddiu   = 0x09
	OpSlti    = 0x0a
	OpSltiu   = 0x0b
	OpAndi    = 0x0c
	OpOri     = 0x0d
	OpXori    = 0x0e
	OpLui     = 0x0f
	OpMSA     = 0x1e
	OpLb      = 0x20
	OpLh      = 0x21
	OpLwl     = 0x22
	OpLw      = 0x23
	OpLbu     = 0x24
	OpLhu     = 0x25
	OpLwr     = 0x26
	OpSb      = 0x28
	OpSh      = 0x29
	OpSwl     = 0x2a
	OpSw      = 0x2b
	OpSwr     = 0x2e
)

// SPECIAL function codes
const (
	FunctSll  = 0x00
	FunctSrl  = 0x02
	FunctSra  = 0x03
	FunctJr   = 0x08
	FunctAddu = 0x21
	FunctSubu = 0x23
	FunctAnd  = 0x24
	FunctOr   = 0x25
	FunctXor  = 0x26
	FunctNor  = 0x27
	FunctSlt  = 0x2a
	FunctSltu = 0x2b
)

// Instruction field extraction
func opcode(insn uint32) uint32 { return insn >> 26 }
func rs(insn uint32) uint32     { return (insn >> 21) & 0x1f }
func rt(insn uint32) uint32     { return (insn >> 16) & 0x1f }
func rd(insn uint32) uint32     { return (insn >> 11) & 0x1f }
func sa(insn uint32) uint32     { return (insn >> 6) & 0x1f }
func funct(insn uint32) uint32  { return insn & 0x3f }
func imm16(insn uint32) uint32  { return insn & 0xffff }

func simm16(insn uint32) uint32 {
	return uint32(int32(int16(insn)))
}

// Execute runs one instruction fetched from pc. PC and NPC have already
// been advanced past it.
func (cpu *CPU) Execute(pc, insn uint32) error {
	switch opcode(insn) {
	case OpSpecial:
		return cpu.execSpecial(pc, insn)
	case OpRegImm:
		return cpu.execRegImm(pc, insn)
	case OpBeq, OpBne, OpBlez, OpBgtz:
		return cpu.execBranch(pc, insn)
	case OpAddiu:
		cpu.WriteReg(rt(insn), cpu.ReadReg(rs(insn))+simm16(insn))
	case OpSlti:
		cpu.WriteReg(rt(insn), boolWord(int32(cpu.ReadReg(rs(insn))) < int32(simm16(insn))))
	case OpSltiu:
		cpu.WriteReg(rt(insn), boolWord(cpu.ReadReg(rs(insn)) < simm16(insn)))
	case OpAndi:
		cpu.WriteReg(rt(insn), cpu.ReadReg(rs(insn))&imm16(insn))
	case OpOri:
		cpu.WriteReg(rt(insn), cpu.ReadReg(rs(insn))|imm16(insn))
	case OpXori:
		cpu.WriteReg(rt(insn), cpu.ReadReg(rs(insn))^imm16(insn))
	case OpLui:
		cpu.WriteReg(rt(insn), imm16(insn)<<16)
	case OpLb, OpLh, OpLw, OpLbu, OpLhu:
		return cpu.execLoad(pc, insn)
	case OpLwl, OpLwr:
		return cpu.execLoadPartial(pc, insn)
	case OpSb, OpSh, OpSw:
		return cpu.execStore(pc, insn)
	case OpSwl, OpSwr:
		return cpu.execStorePartial(pc, insn)
	case OpMSA:
		return cpu.execMSA(pc, insn)
	default:
		return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
	}
	return nil
}

func boolWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (cpu *CPU) execSpecial(pc, insn uint32) error {
	a, b := cpu.ReadReg(rs(insn)), cpu.ReadReg(rt(insn))
	var result uint32
	switch funct(insn) {
	case FunctSll:
		result = b << sa(insn)
	case FunctSrl:
		result = b >> sa(insn)
	case FunctSra:
		result = uint32(int32(b) >> sa(insn))
	case FunctJr:
		cpu.NPC = a
		return nil
	case FunctAddu:
		result = a + b
	case FunctSubu:
		result = a - b
	case FunctAnd:
		result = a & b
	case FunctOr:
		result = a | b
	case FunctXor:
		result = a ^ b
	case FunctNor:
		result = ^(a | b)
	case FunctSlt:
		result = boolWord(int32(a) < int32(b))
	case FunctSltu:
		result = boolWord(a < b)
	default:
		return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
	}
	cpu.WriteReg(rd(insn), result)
	return nil
}

func branchTarget(pc, insn uint32) uint32 {
	return pc + 4 + simm16(insn)<<2
}

func (cpu *CPU) execBranch(pc, insn uint32) error {
	a, b := int32(cpu.ReadReg(rs(insn))), int32(cpu.ReadReg(rt(insn)))
	var taken bool
	switch opcode(insn) {
	case OpBeq:
		taken = a == b
	case OpBne:
		taken = a != b
	case OpBlez:
		taken = a <= 0
	case OpBgtz:
		taken = a > 0
	}
	if taken {
		cpu.NPC = branchTarget(pc, insn)
	}
	return nil
}

func (cpu *CPU) execRegImm(pc, insn uint32) error {
	a := int32(cpu.ReadReg(rs(insn)))
	var taken bool
	switch rt(insn) {
	case 0: // bltz
		taken = a < 0
	case 1: // bgez
		taken = a >= 0
	default:
		return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
	}
	if taken {
		cpu.NPC = branchTarget(pc, insn)
	}
	return nil
}

func accessSize(op uint32) int {
	switch op {
	case OpLb, OpLbu, OpSb:
		return 1
	case OpLh, OpLhu, OpSh:
		return 2
	}
	return 4
}

func (cpu *CPU) effectiveAddress(insn uint32) uint32 {
	return cpu.ReadReg(rs(insn)) + simm16(insn)
}

func (cpu *CPU) execLoad(pc, insn uint32) error {
	addr := cpu.effectiveAddress(insn)
	size := accessSize(opcode(insn))
	if addr%uint32(size) != 0 {
		return ExceptionError{Cause: CauseAddrErrLoad, PC: pc, Value: addr}
	}
	v, err := cpu.Bus.Read(addr, size)
	if err != nil {
		return ExceptionError{Cause: CauseBusErrData, PC: pc, Value: addr}
	}
	val := uint32(v)
	switch opcode(insn) {
	case OpLb:
		val = uint32(int32(int8(val)))
	case OpLh:
		val = uint32(int32(int16(val)))
	}
	cpu.WriteReg(rt(insn), val)
	return nil
}

func (cpu *CPU) execStore(pc, insn uint32) error {
	addr := cpu.effectiveAddress(insn)
	size := accessSize(opcode(insn))
	if addr%uint32(size) != 0 {
		return ExceptionError{Cause: CauseAddrErrStore, PC: pc, Value: addr}
	}
	if err := cpu.Bus.Write(addr, size, uint64(cpu.ReadReg(rt(insn)))); err != nil {
		return ExceptionError{Cause: CauseBusErrData, PC: pc, Value: addr}
	}
	return nil
}

// execLoadPartial implements the little-endian lwl/lwr pair. lwl fills the
// high-order bytes of rt from the bytes at or below addr in its word, lwr
// fills the low-order bytes from the bytes at or above addr.
func (cpu *CPU) execLoadPartial(pc, insn uint32) error {
	addr := cpu.effectiveAddress(insn)
	word, b := addr&^3, addr&3
	val := cpu.ReadReg(rt(insn))
	setByte := func(i uint32, x uint8) {
		val = val&^(0xff<<(8*i)) | uint32(x)<<(8*i)
	}

	var lo, hi uint32
	if opcode(insn) == OpLwl {
		lo, hi = 0, b
	} else {
		lo, hi = b, 3
	}
	for j := lo; j <= hi; j++ {
		x, err := cpu.Bus.Read8(word + j)
		if err != nil {
			return ExceptionError{Cause: CauseBusErrData, PC: pc, Value: word + j}
		}
		if opcode(insn) == OpLwl {
			setByte(3-b+j, x)
		} else {
			setByte(j-b, x)
		}
	}
	cpu.WriteReg(rt(insn), val)
	return nil
}

func (cpu *CPU) execStorePartial(pc, insn uint32) error {
	addr := cpu.effectiveAddress(insn)
	word, b := addr&^3, addr&3
	val := cpu.ReadReg(rt(insn))

	var lo, hi uint32
	if opcode(insn) == OpSwl {
		lo, hi = 0, b
	} else {
		lo, hi = b, 3
	}
	for j := lo; j <= hi; j++ {
		var src uint32
		if opcode(insn) == OpSwl {
			src = 3 - b + j
		} else {
			src = j - b
		}
		if err := cpu.Bus.Write8(word+j, uint8(val>>(8*src))); err != nil {
			return ExceptionError{Cause: CauseBusErrData, PC: pc, Value: word + j}
		}
	}
	return nil
}
