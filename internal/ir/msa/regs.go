package msa

import (
	"fmt"
	"slices"

	"github.com/tinyrange/msajit/internal/asm/mips"
)

// Registers with a fixed role in every kernel. None of them is ever handed
// out by the allocator.
const (
	regExecutor = mips.A0

	regLeftover  = mips.T0 // REGION2 vector count
	regBlocks    = mips.T1 // REGION1 iteration count
	regTailBytes = mips.T2 // bytes handled by REGION0
	regScratch   = mips.T3
	regRows      = mips.T4 // 2D row counter
	regRemaining = mips.T5 // REGION0 bytes left to move
	regMemWalk   = mips.T6
	regTmpWalk   = mips.T7

	vecScratch = mips.W15
)

// Array pointers are assigned from this list in order.
var pointerOrder = []mips.Reg{
	mips.A1, mips.A2, mips.A3, mips.V0, mips.V1, mips.T8, mips.T9,
	mips.S0, mips.S1, mips.S2, mips.S3, mips.S4, mips.S5, mips.S6, mips.S7,
}

// Temporaries are assigned vector registers from this list in order.
var vectorOrder = func() []mips.Reg {
	var regs []mips.Reg
	for r := mips.W0; r <= mips.W30; r++ {
		if r != vecScratch {
			regs = append(regs, r)
		}
	}
	return regs
}()

// PointerRegisters returns the general purpose registers available for
// array pointers, in allocation order.
func PointerRegisters() []mips.Reg { return slices.Clone(pointerOrder) }

// VectorRegisters returns the vector registers available for values, in
// allocation order.
func VectorRegisters() []mips.Reg { return slices.Clone(vectorOrder) }

// CalleeSaved reports whether a kernel must preserve r for its caller.
func CalleeSaved(r mips.Reg) bool {
	return (r >= mips.S0 && r <= mips.S7) || r == mips.FP || (r >= mips.W20 && r <= mips.W30)
}

// Reserved reports whether r has a fixed role and is never allocated.
func Reserved(r mips.Reg) bool {
	switch r {
	case mips.ZERO, mips.AT, mips.K0, mips.K1, mips.GP, mips.SP, mips.FP, mips.RA,
		regExecutor, regLeftover, regBlocks, regTailBytes, regScratch,
		regRows, regRemaining, regMemWalk, regTmpWalk, vecScratch, mips.W31:
		return true
	}
	return false
}

type regState struct {
	valid      bool
	calleeSave bool
	allocated  bool
	used       bool
}

// registerFile tracks allocation state for every register of both banks.
type registerFile struct {
	regs [mips.VecBase + mips.NumVec]regState
}

func newRegisterFile() *registerFile {
	rf := &registerFile{}
	for _, r := range pointerOrder {
		rf.regs[r].valid = true
	}
	for _, r := range vectorOrder {
		rf.regs[r].valid = true
	}
	for r := range rf.regs {
		rf.regs[r].calleeSave = CalleeSaved(mips.Reg(r))
	}
	return rf
}

// alloc hands out the first free register of order.
func (rf *registerFile) alloc(order []mips.Reg, what string) (mips.Reg, error) {
	for _, r := range order {
		st := &rf.regs[r]
		if st.valid && !st.allocated {
			st.allocated = true
			st.used = true
			return r, nil
		}
	}
	return 0, fmt.Errorf("%w: out of %s registers", ErrProgram, what)
}

// used lists every allocated register in ascending order.
func (rf *registerFile) used() []mips.Reg {
	var out []mips.Reg
	for r, st := range rf.regs {
		if st.used {
			out = append(out, mips.Reg(r))
		}
	}
	return out
}

// saved lists the used callee-saved registers of one bank in ascending order.
func (rf *registerFile) saved(vector bool) []mips.Reg {
	var out []mips.Reg
	for _, r := range rf.used() {
		if rf.regs[r].calleeSave && r.IsVec() == vector {
			out = append(out, r)
		}
	}
	return out
}

// Frame layout, in bytes from the adjusted stack pointer.
const (
	frameFP      = 0
	frameArg     = 4
	frameTail    = 16 // REGION0 staging buffer, 16 bytes
	frameSaves   = 32
	stackAlign   = 16
	vectorBytes  = 16
	gpSaveBytes  = 4
	frameMaxSize = 0x7ff0
)

type frameLayout struct {
	size      int
	gpSaves   []mips.Reg
	vecSaves  []mips.Reg
	vecOffset int
}

func newFrameLayout(gp, vec []mips.Reg) (frameLayout, error) {
	vecOffset := alignUp(frameSaves+gpSaveBytes*len(gp), stackAlign)
	size := alignUp(vecOffset+vectorBytes*len(vec), stackAlign)
	if size > frameMaxSize {
		return frameLayout{}, fmt.Errorf("%w: frame of %d bytes", ErrProgram, size)
	}
	return frameLayout{size: size, gpSaves: gp, vecSaves: vec, vecOffset: vecOffset}, nil
}

func (f frameLayout) gpOffset(i int) int { return frameSaves + gpSaveBytes*i }
func (f frameLayout) vecSlot(i int) int  { return f.vecOffset + vectorBytes*i }

func alignUp(v, align int) int { return (v + align - 1) &^ (align - 1) }
