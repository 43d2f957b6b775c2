package msa

import (
	"fmt"

	"github.com/tinyrange/msajit/internal/asm/mips"
	"github.com/tinyrange/msajit/internal/ir"
)

// Range of a constant loadoff offset, in elements. The offset ends up in the
// signed 10-bit field of ld.df.
const (
	minLoadOffset = -512
	maxLoadOffset = 511
)

func dataFormat(p RuleParam) (mips.DataFormat, error) {
	df, err := mips.DataFormatForSize(p.Width)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrProgram, err)
	}
	return df, nil
}

// loadOffset returns the byte offset of a loadoff instruction. The offset
// counts elements of the array, which with x2 or x4 span several lanes.
func loadOffset(c *Compiler, p RuleParam, in ir.Instruction) (int, error) {
	if p.Flags&FlagOffsetLoad == 0 {
		return 0, nil
	}
	vr := c.Var(in.Src[1])
	if vr.Role != ir.RoleConst {
		return 0, fmt.Errorf("%w: %s with a parameter offset", ErrUnimplemented, in.Opcode)
	}
	off := ir.SignExtend(uint64(vr.Value), 4)
	if off < minLoadOffset || off > maxLoadOffset {
		return 0, fmt.Errorf("%w: %s offset %d outside %d..%d", ErrProgram, in.Opcode, off, minLoadOffset, maxLoadOffset)
	}
	return int(off) * c.Var(in.Src[0]).Size, nil
}

// fitsVectorOffset reports whether a byte offset can be encoded directly in
// an ld.df or st.df of the given element width.
func fitsVectorOffset(byteOff, width int) bool {
	n := byteOff / width
	return n >= minLoadOffset && n <= maxLoadOffset
}

func emitLoad(c *Compiler, p RuleParam, in ir.Instruction) error {
	df, err := dataFormat(p)
	if err != nil {
		return err
	}
	wd, err := c.VectorReg(in.Dest[0])
	if err != nil {
		return err
	}
	ptr, err := c.PointerReg(in.Src[0])
	if err != nil {
		return err
	}
	off, err := loadOffset(c, p, in)
	if err != nil {
		return err
	}
	if c.InTail() {
		c.tailLoad(wd, ptr, off, c.wordAligned(in.Src[0], off))
		return nil
	}
	// An offset near the field limit can leave it once the unrolled copy's
	// offset is added.
	total := c.Offset() + off
	if fitsVectorOffset(total, p.Width) {
		c.Emit(mips.Ld(df, wd, ptr, total))
		return nil
	}
	c.Emit(
		mips.Addiu(regScratch, ptr, total),
		mips.Ld(df, wd, regScratch, 0),
	)
	return nil
}

func emitStore(c *Compiler, p RuleParam, in ir.Instruction) error {
	df, err := dataFormat(p)
	if err != nil {
		return err
	}
	ptr, err := c.PointerReg(in.Dest[0])
	if err != nil {
		return err
	}
	ws, err := c.VectorReg(in.Src[0])
	if err != nil {
		return err
	}
	if c.InTail() {
		c.tailStore(ws, ptr, c.wordAligned(in.Dest[0], 0))
		return nil
	}
	c.Emit(mips.St(df, ws, ptr, c.Offset()))
	return nil
}

// emitLoadParam broadcasts a constant or parameter into every lane.
func emitLoadParam(c *Compiler, p RuleParam, in ir.Instruction) error {
	df, err := dataFormat(p)
	if err != nil {
		return err
	}
	wd, err := c.VectorReg(in.Dest[0])
	if err != nil {
		return err
	}
	v := in.Src[0]
	vr := c.Var(v)

	switch vr.Role {
	case ir.RoleConst:
		value := ir.Truncate(uint64(vr.Value), p.Width)
		if s := ir.SignExtend(value, p.Width); s >= -512 && s <= 511 {
			c.Emit(mips.Ldi(df, wd, int(s)))
			return nil
		}
		c.Emit(mips.LoadImm32(regScratch, uint32(value)))
		if p.Width < 8 {
			c.Emit(mips.Fill(df, wd, regScratch))
			return nil
		}
		c.Emit(
			mips.Fill(mips.DFWord, wd, regScratch),
			mips.LoadImm32(regScratch, uint32(value>>32)),
		)
		insertHigh(c, wd, regScratch)
		return nil
	case ir.RoleParam:
		c.Emit(mips.Lw(regScratch, regExecutor, ir.ParamSlotOffset(v)))
		if p.Width < 8 {
			c.Emit(mips.Fill(df, wd, regScratch))
			return nil
		}
		c.Emit(mips.Fill(mips.DFWord, wd, regScratch))
		hi := mips.ZERO
		if vr.Size == 8 {
			c.Emit(mips.Lw(regScratch, regExecutor, ir.ParamSlotOffset(v+ir.ParamHighOffset)))
			hi = regScratch
		}
		insertHigh(c, wd, hi)
		return nil
	}
	return fmt.Errorf("%w: %s broadcasts %s", ErrProgram, in.Opcode, ir.VarName(v))
}

// insertHigh writes rs into the upper word of both doubleword lanes. There
// is no fill.d on a 32-bit core.
func insertHigh(c *Compiler, wd, rs mips.Reg) {
	c.Emit(
		mips.Insert(mips.DFWord, wd, 1, rs),
		mips.Insert(mips.DFWord, wd, 3, rs),
	)
}

// binaryRegs resolves the destination and both sources of a two operand
// instruction, applying FlagSwapOperands.
func binaryRegs(c *Compiler, p RuleParam, in ir.Instruction) (wd, ws, wt mips.Reg, err error) {
	if len(in.Src) != 2 {
		return 0, 0, 0, fmt.Errorf("%w: %s wants two sources", ErrProgram, in.Opcode)
	}
	if wd, err = c.VectorReg(in.Dest[0]); err != nil {
		return
	}
	if ws, err = c.VectorReg(in.Src[0]); err != nil {
		return
	}
	if wt, err = c.VectorReg(in.Src[1]); err != nil {
		return
	}
	if p.Flags&FlagSwapOperands != 0 {
		ws, wt = wt, ws
	}
	return
}

// emitThreeR emits the integer op picked for p.Kind from ops.
func emitThreeR(c *Compiler, p RuleParam, in ir.Instruction, ops map[Semantics]mips.ThreeROp) error {
	op, ok := ops[p.Kind]
	if !ok {
		return fmt.Errorf("%w: %s with %s semantics", ErrUnimplemented, in.Opcode, p.Kind)
	}
	df, err := dataFormat(p)
	if err != nil {
		return err
	}
	wd, ws, wt, err := binaryRegs(c, p, in)
	if err != nil {
		return err
	}
	c.Emit(mips.ThreeRInsn(op, df, wd, ws, wt))
	return nil
}

func emitFloat(c *Compiler, p RuleParam, in ir.Instruction, op mips.FloatOp) error {
	if p.Width != 4 && p.Width != 8 {
		return fmt.Errorf("%w: %s on %d byte floats", ErrUnimplemented, in.Opcode, p.Width)
	}
	wd, ws, wt, err := binaryRegs(c, p, in)
	if err != nil {
		return err
	}
	c.Emit(mips.ThreeRFInsn(op, p.Width == 8, wd, ws, wt))
	return nil
}

var (
	addOps = map[Semantics]mips.ThreeROp{Wrapping: mips.OpAddv, Signed: mips.OpAddsS, Unsigned: mips.OpAddsU}
	subOps = map[Semantics]mips.ThreeROp{Wrapping: mips.OpSubv, Signed: mips.OpSubsS, Unsigned: mips.OpSubsU}
	mulOps = map[Semantics]mips.ThreeROp{Wrapping: mips.OpMulv}
	maxOps = map[Semantics]mips.ThreeROp{Signed: mips.OpMaxS, Unsigned: mips.OpMaxU}
	minOps = map[Semantics]mips.ThreeROp{Signed: mips.OpMinS, Unsigned: mips.OpMinU}
	avgOps = map[Semantics]mips.ThreeROp{Signed: mips.OpAverS, Unsigned: mips.OpAverU}
	ceqOps = map[Semantics]mips.ThreeROp{Bitwise: mips.OpCeq, Wrapping: mips.OpCeq}
	cltOps = map[Semantics]mips.ThreeROp{Signed: mips.OpCltS, Unsigned: mips.OpCltU}
)

func emitAdd(c *Compiler, p RuleParam, in ir.Instruction) error {
	if p.Kind == Floating {
		return emitFloat(c, p, in, mips.OpFadd)
	}
	return emitThreeR(c, p, in, addOps)
}

func emitSub(c *Compiler, p RuleParam, in ir.Instruction) error {
	if p.Kind == Floating {
		return emitFloat(c, p, in, mips.OpFsub)
	}
	return emitThreeR(c, p, in, subOps)
}

func emitMul(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitThreeR(c, p, in, mulOps)
}

func emitMax(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitThreeR(c, p, in, maxOps)
}

func emitMin(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitThreeR(c, p, in, minOps)
}

func emitAvg(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitThreeR(c, p, in, avgOps)
}

func emitCmpEq(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitThreeR(c, p, in, ceqOps)
}

// emitCmpLess emits clt. Greater-than rules set FlagSwapOperands.
func emitCmpLess(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitThreeR(c, p, in, cltOps)
}

func emitBitwise(c *Compiler, p RuleParam, in ir.Instruction, op mips.VecOp) error {
	wd, ws, wt, err := binaryRegs(c, p, in)
	if err != nil {
		return err
	}
	if p.Flags&FlagInvertSecond != 0 {
		c.Emit(mips.XoriB(vecScratch, wt, 0xff))
		wt = vecScratch
	}
	c.Emit(mips.VecInsn(op, wd, ws, wt))
	return nil
}

func emitAnd(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitBitwise(c, p, in, mips.OpAndV)
}

func emitOr(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitBitwise(c, p, in, mips.OpOrV)
}

func emitXor(c *Compiler, p RuleParam, in ir.Instruction) error {
	return emitBitwise(c, p, in, mips.OpXorV)
}

func emitCopy(c *Compiler, p RuleParam, in ir.Instruction) error {
	wd, err := c.VectorReg(in.Dest[0])
	if err != nil {
		return err
	}
	ws, err := c.VectorReg(in.Src[0])
	if err != nil {
		return err
	}
	if wd != ws {
		c.Emit(mips.MoveV(wd, ws))
	}
	return nil
}
