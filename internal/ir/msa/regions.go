package msa

import (
	"github.com/tinyrange/msajit/internal/asm"
	"github.com/tinyrange/msajit/internal/asm/mips"
	"github.com/tinyrange/msajit/internal/ir"
)

// Fixed labels of the loop skeleton. Labels handed out by newLabel start at
// firstLocalLabel.
const (
	labelRegion0 asm.Label = iota + 1
	labelRegion1
	labelRegion1Loop
	labelRegion2
	labelRegion2Loop
	labelRegion2LoopEnd
	labelOuterLoop
	labelEnd

	firstLocalLabel asm.Label = 16
)

// blockBytes is the width of one vector.
const blockBytes = 16

// emitLoop writes the three-region loop around the body.
//
// REGION0 handles the n*size%16 bytes that do not fill a whole vector,
// moving them through the stack staging buffer. REGION1 runs the body
// 1<<UnrollShift times per iteration over whole vectors and REGION2 finishes
// the vectors left over by the unrolled loop. A 2D kernel repeats all three
// once per row.
func (c *Compiler) emitLoop() error {
	u := c.opts.UnrollShift

	if c.prog.TwoD {
		c.Emit(
			mips.Lw(regRows, regExecutor, ir.ParamSlotOffset(ir.RowCountSlot)),
			mips.Blez(regRows, labelEnd),
			asm.MarkLabel(labelOuterLoop),
		)
	}

	c.Emit(
		mips.Lw(regTailBytes, regExecutor, ir.ExecNOffset),
		mips.Blez(regTailBytes, labelEnd),
		mips.Sll(regTailBytes, regTailBytes, c.shift),
		mips.Srl(regBlocks, regTailBytes, 4),
	)
	if u > 0 {
		c.Emit(
			mips.Andi(regLeftover, regBlocks, 1<<u-1),
			mips.Srl(regBlocks, regBlocks, u),
		)
	}
	c.Emit(
		mips.Andi(regTailBytes, regTailBytes, blockBytes-1),
		mips.Beqz(regTailBytes, labelRegion1),
	)

	c.Emit(asm.MarkLabel(labelRegion0))
	c.tail = true
	err := c.emitSteps(c.body)
	c.tail = false
	if err != nil {
		return err
	}
	c.advanceByTail()

	c.Emit(
		asm.MarkLabel(labelRegion1),
		mips.Beqz(regBlocks, labelRegion2),
		asm.MarkLabel(labelRegion1Loop),
	)
	for k := 0; k < 1<<u; k++ {
		c.offset = blockBytes * k
		if err := c.emitSteps(c.body); err != nil {
			return err
		}
	}
	c.offset = 0
	c.advanceBy(blockBytes << u)
	c.Emit(
		mips.Addiu(regBlocks, regBlocks, -1),
		mips.Bnez(regBlocks, labelRegion1Loop),
		asm.MarkLabel(labelRegion2),
	)

	if u > 0 {
		c.Emit(
			mips.Beqz(regLeftover, labelRegion2LoopEnd),
			asm.MarkLabel(labelRegion2Loop),
		)
		if err := c.emitSteps(c.body); err != nil {
			return err
		}
		c.advanceBy(blockBytes)
		c.Emit(
			mips.Addiu(regLeftover, regLeftover, -1),
			mips.Bnez(regLeftover, labelRegion2Loop),
		)
	}
	c.Emit(asm.MarkLabel(labelRegion2LoopEnd))

	if c.prog.TwoD {
		c.nextRow()
	}
	c.Emit(asm.MarkLabel(labelEnd))
	return nil
}

// advanceBy moves every walked pointer past bytes bytes of elements.
func (c *Compiler) advanceBy(bytes int) {
	for _, v := range c.walked() {
		c.Emit(mips.Addiu(c.pointer[v], c.pointer[v], bytes))
	}
}

// advanceByTail moves every walked pointer past the bytes REGION0 handled.
func (c *Compiler) advanceByTail() {
	for _, v := range c.walked() {
		c.Emit(mips.Addu(c.pointer[v], c.pointer[v], regTailBytes))
	}
}

// nextRow moves every walked pointer from the end of the row just finished
// to the start of the next one and loops while rows remain. Array v's row
// stride in bytes is params[v].
func (c *Compiler) nextRow() {
	c.Emit(
		mips.Lw(regTailBytes, regExecutor, ir.ExecNOffset),
		mips.Sll(regTailBytes, regTailBytes, c.shift),
	)
	for _, v := range c.walked() {
		c.Emit(
			mips.Lw(regScratch, regExecutor, ir.ParamSlotOffset(v)),
			mips.Subu(regScratch, regScratch, regTailBytes),
			mips.Addu(c.pointer[v], c.pointer[v], regScratch),
		)
	}
	c.Emit(
		mips.Addiu(regRows, regRows, -1),
		mips.Bnez(regRows, labelOuterLoop),
	)
}

// wordAligned reports whether REGION0 may move the bytes of array v at
// byteOff with plain lw and sw. REGION0 starts every row, so the pointer
// still sits on the array's own alignment there.
func (c *Compiler) wordAligned(v, byteOff int) bool {
	return c.prog.Vars[v].Aligned && byteOff%ir.ArrayAlignment == 0
}

// tailLoad fills wd from the REGION0 bytes at ptr+byteOff. The bytes are
// copied into the staging buffer a chunk at a time, largest chunk first,
// and the buffer is then loaded as one vector. Lanes past the tail hold
// stale data that is never stored.
func (c *Compiler) tailLoad(wd, ptr mips.Reg, byteOff int, aligned bool) {
	c.Emit(mips.Move(regRemaining, regTailBytes))
	if byteOff == 0 {
		c.Emit(mips.Move(regMemWalk, ptr))
	} else {
		c.Emit(mips.Addiu(regMemWalk, ptr, byteOff))
	}
	c.Emit(mips.Addiu(regTmpWalk, mips.SP, frameTail))

	for _, k := range []int{8, 4} {
		skip := c.newLabel()
		c.Emit(
			mips.Sltiu(regScratch, regRemaining, k),
			mips.Bnez(regScratch, skip),
		)
		for w := 0; w < k; w += 4 {
			if aligned {
				c.Emit(mips.Lw(regScratch, regMemWalk, w))
			} else {
				c.Emit(mips.LoadUnaligned32(regScratch, regMemWalk, w))
			}
			c.Emit(mips.Sw(regScratch, regTmpWalk, w))
		}
		c.Emit(
			mips.Addiu(regMemWalk, regMemWalk, k),
			mips.Addiu(regTmpWalk, regTmpWalk, k),
			mips.Addiu(regRemaining, regRemaining, -k),
			asm.MarkLabel(skip),
		)
	}

	skip := c.newLabel()
	c.Emit(
		mips.Sltiu(regScratch, regRemaining, 2),
		mips.Bnez(regScratch, skip),
		mips.Lbu(regScratch, regMemWalk, 0),
		mips.Sb(regScratch, regTmpWalk, 0),
		mips.Lbu(regScratch, regMemWalk, 1),
		mips.Sb(regScratch, regTmpWalk, 1),
		mips.Addiu(regMemWalk, regMemWalk, 2),
		mips.Addiu(regTmpWalk, regTmpWalk, 2),
		mips.Addiu(regRemaining, regRemaining, -2),
		asm.MarkLabel(skip),
	)

	done := c.newLabel()
	c.Emit(
		mips.Beqz(regRemaining, done),
		mips.Lbu(regScratch, regMemWalk, 0),
		mips.Sb(regScratch, regTmpWalk, 0),
		asm.MarkLabel(done),
		mips.Ld(mips.DFByte, wd, mips.SP, frameTail),
	)
}

// tailStore writes the REGION0 bytes of ws to ptr. The vector is copied to
// the scratch register and shifted down with shf after every chunk, so the
// next chunk always sits in the low lanes.
func (c *Compiler) tailStore(ws, ptr mips.Reg, aligned bool) {
	store32 := mips.StoreUnaligned32
	if aligned {
		store32 = mips.Sw
	}
	c.Emit(
		mips.MoveV(vecScratch, ws),
		mips.Move(regRemaining, regTailBytes),
		mips.Move(regMemWalk, ptr),
	)

	skip := c.newLabel()
	c.Emit(
		mips.Sltiu(regScratch, regRemaining, 8),
		mips.Bnez(regScratch, skip),
		mips.CopyS(mips.DFWord, regScratch, vecScratch, 0),
		store32(regScratch, regMemWalk, 0),
		mips.CopyS(mips.DFWord, regScratch, vecScratch, 1),
		store32(regScratch, regMemWalk, 4),
		mips.Shf(mips.DFWord, vecScratch, vecScratch, 0x4e),
		mips.Addiu(regMemWalk, regMemWalk, 8),
		mips.Addiu(regRemaining, regRemaining, -8),
		asm.MarkLabel(skip),
	)

	skip = c.newLabel()
	c.Emit(
		mips.Sltiu(regScratch, regRemaining, 4),
		mips.Bnez(regScratch, skip),
		mips.CopyS(mips.DFWord, regScratch, vecScratch, 0),
		store32(regScratch, regMemWalk, 0),
		mips.Shf(mips.DFHalf, vecScratch, vecScratch, 0x4e),
		mips.Addiu(regMemWalk, regMemWalk, 4),
		mips.Addiu(regRemaining, regRemaining, -4),
		asm.MarkLabel(skip),
	)

	skip = c.newLabel()
	c.Emit(
		mips.Sltiu(regScratch, regRemaining, 2),
		mips.Bnez(regScratch, skip),
		mips.CopyU(mips.DFHalf, regScratch, vecScratch, 0),
		mips.Sb(regScratch, regMemWalk, 0),
		mips.Srl(regScratch, regScratch, 8),
		mips.Sb(regScratch, regMemWalk, 1),
		mips.Shf(mips.DFByte, vecScratch, vecScratch, 0x4e),
		mips.Addiu(regMemWalk, regMemWalk, 2),
		mips.Addiu(regRemaining, regRemaining, -2),
		asm.MarkLabel(skip),
	)

	done := c.newLabel()
	c.Emit(
		mips.Beqz(regRemaining, done),
		mips.CopyU(mips.DFByte, regScratch, vecScratch, 0),
		mips.Sb(regScratch, regMemWalk, 0),
		asm.MarkLabel(done),
	)
}

// hoistLoads moves every load as early as its dependencies allow so the
// memory latency overlaps the arithmetic before it. Loads keep their order
// relative to each other and never cross a store.
func hoistLoads(steps []step) []step {
	out := append([]step(nil), steps...)
	for i := range out {
		if !out[i].load {
			continue
		}
		for j := i; j > 0 && canSwap(out[j-1], out[j]); j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// canSwap reports whether load may move above prev.
func canSwap(prev, load step) bool {
	if prev.store || prev.load {
		return false
	}
	dest := load.in.Dest[0]
	for _, v := range load.in.Src {
		if prev.in.Dest[0] == v {
			return false
		}
	}
	if prev.in.Dest[0] == dest {
		return false
	}
	for _, v := range prev.in.Src {
		if v == dest {
			return false
		}
	}
	return true
}
