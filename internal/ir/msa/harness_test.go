package msa

import (
	"context"
	"testing"
	"time"

	"github.com/tinyrange/msajit/internal/hv/mipsle"
	"github.com/tinyrange/msajit/internal/ir"
)

const (
	codeAddr = mipsle.DefaultRAMBase
	execAddr = mipsle.DefaultRAMBase + 0x1_0000
	dataAddr = mipsle.DefaultRAMBase + 0x2_0000
	dataSize = 0x8_0000
	stackTop = mipsle.DefaultRAMBase + mipsle.DefaultRAMSize - 64

	regSP = 29
	regFP = 30
)

// mustProgram declares the variables in decls (consts for those in consts)
// and parses code.
func mustProgram(t testing.TB, decls map[int]int, consts map[int]int64, code string) *ir.Program {
	t.Helper()
	p := ir.NewProgram(t.Name())
	for v := 0; v < ir.VarCount; v++ {
		size, ok := decls[v]
		if !ok {
			continue
		}
		var err error
		if value, isConst := consts[v]; isConst {
			err = p.DeclareConst(v, size, value)
		} else {
			err = p.Declare(v, size)
		}
		if err != nil {
			t.Fatalf("declare %s: %v", ir.VarName(v), err)
		}
	}
	if err := p.ParseCode(code); err != nil {
		t.Fatalf("ParseCode: %v", err)
	}
	return p
}

// kernel is a compiled program loaded into a simulated machine.
type kernel struct {
	t    testing.TB
	prog *ir.Program
	code *Code
	m    *mipsle.Machine
}

func compileKernel(t testing.TB, p *ir.Program, opts Options) *kernel {
	t.Helper()
	code, err := Compile(p, NewRegistry(), opts)
	if err != nil {
		t.Fatalf("Compile: %v\n%s", err, p)
	}
	m := mipsle.NewMachine(mipsle.DefaultRAMBase, mipsle.DefaultRAMSize)
	if err := m.LoadBytes(codeAddr, code.Bytes()); err != nil {
		t.Fatalf("LoadBytes: %v", err)
	}
	return &kernel{t: t, prog: p, code: code, m: m}
}

// calleeSentinel is the value each preserved register holds across a call.
func calleeSentinel(r int) uint32 { return 0x5a5a_0000 | uint32(r) }

// exec runs the compiled kernel on data and returns the data region
// afterwards. The stack pointer and every callee-saved register must come
// back unchanged.
func (k *kernel) exec(ex *ir.Executor, data []byte) []byte {
	k.t.Helper()
	m := k.m
	ex.Program = codeAddr
	if err := m.LoadBytes(execAddr, ex.Marshal()); err != nil {
		k.t.Fatalf("load executor: %v", err)
	}
	if err := m.LoadBytes(dataAddr, data); err != nil {
		k.t.Fatalf("load data: %v", err)
	}
	for r := 16; r <= 23; r++ {
		m.CPU.WriteReg(uint32(r), calleeSentinel(r))
	}
	m.CPU.WriteReg(regFP, calleeSentinel(regFP))
	for w := 20; w <= 30; w++ {
		for i := range m.CPU.W[w] {
			m.CPU.W[w][i] = byte(w + i)
		}
	}

	m.MaxSteps = m.Steps() + 50_000_000
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := m.Call(ctx, codeAddr, execAddr, stackTop); err != nil {
		k.t.Fatalf("Call: %v\n%s", err, k.prog)
	}

	if sp := m.CPU.ReadReg(regSP); sp != stackTop {
		k.t.Fatalf("sp=%#x after return, want %#x", sp, stackTop)
	}
	for _, r := range append([]int{regFP}, 16, 17, 18, 19, 20, 21, 22, 23) {
		if got := m.CPU.ReadReg(uint32(r)); got != calleeSentinel(r) {
			k.t.Fatalf("$%d=%#x after return, want %#x", r, got, calleeSentinel(r))
		}
	}
	for w := 20; w <= 30; w++ {
		for i, b := range m.CPU.W[w] {
			if b != byte(w+i) {
				k.t.Fatalf("$w%d byte %d clobbered", w, i)
			}
		}
	}

	out, err := m.Bus.Slice(dataAddr, uint32(len(data)))
	if err != nil {
		k.t.Fatalf("read data: %v", err)
	}
	return append([]byte(nil), out...)
}

// check runs the kernel and the scalar interpreter on the same inputs and
// fails at the first byte where they disagree.
func (k *kernel) check(ex *ir.Executor, data []byte) []byte {
	k.t.Helper()
	ref := &ir.FlatMemory{Base: dataAddr, Data: append([]byte(nil), data...)}
	refEx := *ex
	if err := ir.Emulate(k.prog, &refEx, ref); err != nil {
		k.t.Fatalf("Emulate: %v", err)
	}
	got := k.exec(ex, data)
	for i := range got {
		if got[i] != ref.Data[i] {
			k.t.Fatalf("byte %#x: got %#02x, want %#02x (n=%d)\n%s",
				i, got[i], ref.Data[i], ex.N, k.prog)
		}
	}
	return got
}
