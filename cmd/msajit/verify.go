package main

import (
	"bytes"
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/tinyrange/msajit/internal/hv/mipsle"
	"github.com/tinyrange/msajit/internal/ir"
	"github.com/tinyrange/msajit/internal/ir/msa"
)

// Simulator memory map for -verify. Every array gets its own slot with a
// guard band on both sides so loadoff can reach past either end.
const (
	codeAddr  = mipsle.DefaultRAMBase
	execAddr  = mipsle.DefaultRAMBase + 0x1_0000
	dataAddr  = mipsle.DefaultRAMBase + 0x2_0000
	slotBytes = 0x2_0000
	guard     = 0x1000
	stackTop  = mipsle.DefaultRAMBase + mipsle.DefaultRAMSize - 64
	maxRows   = 4
	stepLimit = 100_000_000
)

// verify runs the compiled kernel in the simulator on random inputs and
// compares every byte of memory with the scalar interpreter.
func verify(o options, p *ir.Program, code *msa.Code) error {
	arrays := p.Arrays()
	dataBytes := len(arrays) * slotBytes
	if dataAddr+uint32(dataBytes) > stackTop-0x1_0000 {
		return fmt.Errorf("verify: %d arrays do not fit the simulator", len(arrays))
	}

	m := mipsle.NewMachine(mipsle.DefaultRAMBase, mipsle.DefaultRAMSize)
	if err := m.LoadBytes(codeAddr, code.Bytes()); err != nil {
		return err
	}

	r := rand.New(rand.NewPCG(o.seed, uint64(o.verify)))
	bar := progressbar.Default(int64(o.verify), "verifying")
	defer bar.Close()

	data := make([]byte, dataBytes)
	for run := 0; run < o.verify; run++ {
		for i := range data {
			data[i] = byte(r.Uint32())
		}
		ex, err := randomExecutor(r, p, o.maxN)
		if err != nil {
			return err
		}

		ref := &ir.FlatMemory{Base: dataAddr, Data: bytes.Clone(data)}
		refEx := *ex
		if err := ir.Emulate(p, &refEx, ref); err != nil {
			return fmt.Errorf("run %d: reference: %w", run, err)
		}

		if err := m.LoadBytes(execAddr, ex.Marshal()); err != nil {
			return err
		}
		if err := m.LoadBytes(dataAddr, data); err != nil {
			return err
		}
		m.MaxSteps = m.Steps() + stepLimit
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		err = m.Call(ctx, codeAddr, execAddr, stackTop)
		cancel()
		if err != nil {
			return fmt.Errorf("run %d (n=%d): %w", run, ex.N, err)
		}

		got, err := m.Bus.Slice(dataAddr, uint32(dataBytes))
		if err != nil {
			return err
		}
		if i := firstDiff(got, ref.Data); i >= 0 {
			slot := i / slotBytes
			return fmt.Errorf("run %d (n=%d): %s byte %#x is %#02x, want %#02x",
				run, ex.N, ir.VarName(arrays[slot]), i%slotBytes-guard, got[i], ref.Data[i])
		}
		bar.Add(1)
	}
	return nil
}

// randomExecutor places each array at a random misalignment inside its slot,
// keeping aligned arrays and their row strides on word boundaries.
func randomExecutor(r *rand.Rand, p *ir.Program, maxN int) (*ir.Executor, error) {
	ex := &ir.Executor{Program: codeAddr, N: int32(r.IntN(maxN + 1))}
	arrays := p.Arrays()
	strides := make(map[int]int32)
	for i, v := range arrays {
		vr := p.Vars[v]
		skew := uint32(r.IntN(16))
		size := int32(vr.Size)
		stride := ex.N*size + size*int32(r.IntN(8))
		if vr.Aligned {
			skew &^= ir.ArrayAlignment - 1
			stride = (stride + ir.ArrayAlignment - 1) &^ (ir.ArrayAlignment - 1)
		}
		ex.Arrays[v] = dataAddr + uint32(i*slotBytes+guard) + skew
		strides[v] = stride
	}
	if p.TwoD {
		ex.SetRows(int32(r.IntN(maxRows+1)), strides)
	}
	for v := ir.P1; v < ir.P1+ir.NumParam; v++ {
		if vr := p.Vars[v]; vr.Declared() {
			if err := ex.SetParam(v, int64(r.Uint64()), vr.Size); err != nil {
				return nil, err
			}
		}
	}
	return ex, nil
}

func firstDiff(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			return i
		}
	}
	return -1
}
