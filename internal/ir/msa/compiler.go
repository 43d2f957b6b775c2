// Package msa compiles ir programs to MIPS32 little-endian code using the
// MIPS SIMD Architecture. A compiled kernel is a function taking a pointer
// to an ir.Executor record in $a0.
package msa

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/tinyrange/msajit/internal/asm"
	"github.com/tinyrange/msajit/internal/asm/mips"
	"github.com/tinyrange/msajit/internal/ir"
)

// MaxUnrollShift bounds Options.UnrollShift.
const MaxUnrollShift = 2

type Options struct {
	// CleanCompile pads the code with nops to a 16 byte boundary.
	CleanCompile bool

	// UnrollShift emits the bulk loop body 1<<UnrollShift times per
	// iteration.
	UnrollShift int

	// Listing records a disassembly line for every emitted word.
	Listing bool

	Logger *slog.Logger
}

// Code is a compiled kernel.
type Code struct {
	Program   asm.Program
	FrameSize int

	// Registers lists every register the allocator handed out.
	Registers []mips.Reg
	// Saved lists the callee-saved registers stored by the prologue.
	Saved []mips.Reg
}

func (c *Code) Bytes() []byte     { return c.Program.Bytes() }
func (c *Code) Listing() []string { return c.Program.Listing() }

// step is one instruction of the kernel body together with its rule.
type step struct {
	in    ir.Instruction
	rule  Rule
	load  bool
	store bool
}

// Compiler holds the state of one kernel compile. Rules receive it to look
// up registers and append code.
type Compiler struct {
	prog *ir.Program
	opts Options
	log  *slog.Logger

	size  int // element size shared by every array
	shift int

	invariants []step
	body       []step

	// walk marks the arrays a load or store touches. Only they get a
	// pointer that advances through the loop.
	walk [ir.VarCount]bool

	regs    *registerFile
	pointer [ir.VarCount]mips.Reg
	vector  [ir.VarCount]mips.Reg
	frame   frameLayout

	frags     asm.Group
	nextLabel asm.Label

	tail   bool
	offset int
}

// Compile translates p using the rules in reg. The input program is not
// modified. A failed compile returns no code.
func Compile(p *ir.Program, reg *Registry, opts Options) (*Code, error) {
	if p == nil {
		return nil, fmt.Errorf("%w: nil program", ErrProgram)
	}
	if reg == nil {
		return nil, fmt.Errorf("msa: registry must be non-nil")
	}
	c, err := newCompiler(p, reg, opts)
	if err != nil {
		return nil, err
	}
	return c.compile()
}

func programError(err error) error {
	if errors.Is(err, ErrProgram) || errors.Is(err, ErrUnimplemented) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrProgram, err)
}

func newCompiler(p *ir.Program, reg *Registry, opts Options) (*Compiler, error) {
	if opts.UnrollShift < 0 || opts.UnrollShift > MaxUnrollShift {
		return nil, fmt.Errorf("%w: unroll shift %d outside 0..%d", ErrProgram, opts.UnrollShift, MaxUnrollShift)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if err := p.Validate(); err != nil {
		return nil, programError(err)
	}
	for v := ir.A1; v < ir.A1+ir.NumAcc; v++ {
		if p.Vars[v].Declared() {
			return nil, fmt.Errorf("%w: accumulator %s", ErrUnimplemented, ir.VarName(v))
		}
	}

	low, err := ir.Lower(p)
	if err != nil {
		return nil, programError(err)
	}
	c := &Compiler{
		prog:      low,
		opts:      opts,
		log:       opts.Logger,
		regs:      newRegisterFile(),
		nextLabel: firstLocalLabel,
	}
	if err := c.checkArrays(); err != nil {
		return nil, err
	}
	if err := c.matchRules(reg); err != nil {
		return nil, err
	}
	if err := c.allocate(); err != nil {
		return nil, err
	}
	return c, nil
}

// checkArrays picks the element size every array shares.
func (c *Compiler) checkArrays() error {
	align := ir.D1
	if !c.prog.Vars[align].Declared() {
		align = ir.S1
	}
	if !c.prog.Vars[align].Declared() {
		return fmt.Errorf("%w: %q has neither d1 nor s1 to align on", ErrProgram, c.prog.Name)
	}
	c.size = c.prog.Vars[align].Size
	for _, v := range c.prog.Arrays() {
		if sz := c.prog.Vars[v].Size; sz != c.size {
			return fmt.Errorf("%w: %s has element size %d, %s has %d",
				ErrProgram, ir.VarName(v), sz, ir.VarName(align), c.size)
		}
	}
	switch c.size {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: element size %d", ErrProgram, c.size)
	}
	for 1<<c.shift < c.size {
		c.shift++
	}
	return nil
}

func (c *Compiler) matchRules(reg *Registry) error {
	var body []step
	for _, in := range c.prog.Code {
		rule, ok := reg.Lookup(in.Opcode)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnimplemented, in.Opcode)
		}
		op, _ := ir.LookupOpcode(in.Opcode)
		st := step{
			in:    in,
			rule:  rule,
			load:  op.IsLoad(),
			store: op.Kind == ir.KindStore,
		}
		switch {
		case st.load:
			c.walk[in.Src[0]] = true
		case st.store:
			c.walk[in.Dest[0]] = true
		}
		if in.Invariant() {
			c.invariants = append(c.invariants, st)
		} else {
			body = append(body, st)
		}
	}
	c.body = hoistLoads(body)
	return nil
}

// walked returns the arrays whose pointers the loop advances.
func (c *Compiler) walked() []int {
	var out []int
	for _, v := range c.prog.Arrays() {
		if c.walk[v] {
			out = append(out, v)
		}
	}
	return out
}

func (c *Compiler) allocate() error {
	for _, v := range c.walked() {
		r, err := c.regs.alloc(pointerOrder, "pointer")
		if err != nil {
			return err
		}
		c.pointer[v] = r
	}
	for v := ir.T1; v < ir.T1+ir.NumTemp; v++ {
		if !c.prog.Vars[v].Declared() {
			continue
		}
		r, err := c.regs.alloc(vectorOrder, "vector")
		if err != nil {
			return err
		}
		c.vector[v] = r
	}

	var err error
	c.frame, err = newFrameLayout(c.regs.saved(false), c.regs.saved(true))
	return err
}

// Emit appends code to the kernel.
func (c *Compiler) Emit(frags ...asm.Fragment) {
	c.frags = append(c.frags, frags...)
}

// VectorReg returns the vector register holding variable v.
func (c *Compiler) VectorReg(v int) (mips.Reg, error) {
	if v < 0 || v >= ir.VarCount || c.vector[v] == 0 {
		return 0, fmt.Errorf("%w: %s has no vector register", ErrProgram, ir.VarName(v))
	}
	return c.vector[v], nil
}

// PointerReg returns the register walking array v.
func (c *Compiler) PointerReg(v int) (mips.Reg, error) {
	if v < 0 || v >= ir.VarCount || c.pointer[v] == 0 {
		return 0, fmt.Errorf("%w: %s is not an array", ErrProgram, ir.VarName(v))
	}
	return c.pointer[v], nil
}

// Var returns the declaration of variable v.
func (c *Compiler) Var(v int) ir.Variable { return c.prog.Vars[v] }

// InTail reports whether code is being emitted for the partial block in
// REGION0, where memory must be touched a few bytes at a time.
func (c *Compiler) InTail() bool { return c.tail }

// Offset is the byte offset of the unrolled copy being emitted.
func (c *Compiler) Offset() int { return c.offset }

func (c *Compiler) newLabel() asm.Label {
	l := c.nextLabel
	c.nextLabel++
	return l
}

func (c *Compiler) emitSteps(steps []step) error {
	for _, st := range steps {
		if err := st.rule.Emit(c, st.rule.Param, st.in); err != nil {
			return fmt.Errorf("%s: %w", st.in, err)
		}
	}
	return nil
}

func (c *Compiler) compile() (*Code, error) {
	c.prologue()
	for _, v := range c.walked() {
		c.Emit(mips.Lw(c.pointer[v], regExecutor, ir.ArraySlotOffset(v)))
	}
	if err := c.emitSteps(c.invariants); err != nil {
		return nil, programError(err)
	}
	if err := c.emitLoop(); err != nil {
		return nil, programError(err)
	}
	c.epilogue()

	ctx := mips.NewContext(c.opts.Listing)
	if err := c.frags.Emit(ctx); err != nil {
		return nil, programError(err)
	}
	if c.opts.CleanCompile {
		ctx.AlignTo(16)
	}
	if err := ctx.ResolveFixups(); err != nil {
		return nil, programError(err)
	}
	prog, err := ctx.Program()
	if err != nil {
		return nil, programError(err)
	}

	saved := append(append([]mips.Reg(nil), c.frame.gpSaves...), c.frame.vecSaves...)
	c.log.Debug("msa: compiled kernel",
		"name", c.prog.Name,
		"bytes", prog.Len(),
		"frame", c.frame.size,
		"saved", len(saved),
		"unroll", c.opts.UnrollShift)
	return &Code{
		Program:   prog,
		FrameSize: c.frame.size,
		Registers: c.regs.used(),
		Saved:     saved,
	}, nil
}

func (c *Compiler) prologue() {
	f := c.frame
	c.Emit(
		mips.Addiu(mips.SP, mips.SP, -f.size),
		mips.Sw(mips.FP, mips.SP, frameFP),
		mips.Move(mips.FP, mips.SP),
		mips.Sw(regExecutor, mips.SP, frameArg),
	)
	for i, r := range f.gpSaves {
		c.Emit(mips.Sw(r, mips.SP, f.gpOffset(i)))
	}
	for i, r := range f.vecSaves {
		c.Emit(mips.St(mips.DFDouble, r, mips.SP, f.vecSlot(i)))
	}
}

// epilogue restores in the reverse of the prologue's order.
func (c *Compiler) epilogue() {
	f := c.frame
	for i := len(f.vecSaves) - 1; i >= 0; i-- {
		c.Emit(mips.Ld(mips.DFDouble, f.vecSaves[i], mips.SP, f.vecSlot(i)))
	}
	for i := len(f.gpSaves) - 1; i >= 0; i-- {
		c.Emit(mips.Lw(f.gpSaves[i], mips.SP, f.gpOffset(i)))
	}
	c.Emit(
		mips.Lw(mips.FP, mips.SP, frameFP),
		mips.Addiu(mips.SP, mips.SP, f.size),
		mips.Jr(mips.RA),
		mips.Nop(),
	)
}
