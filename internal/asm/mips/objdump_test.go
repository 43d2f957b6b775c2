package mips

import (
	"testing"

	"github.com/tinyrange/msajit/internal/asm"
	"github.com/tinyrange/msajit/internal/asm/testutil"
)

func TestKitchenSinkDisassemblyMIPS(t *testing.T) {
	frag, expect := buildMIPSKitchenSink()

	prog, err := EmitProgram(frag)
	if err != nil {
		t.Fatalf("EmitProgram failed: %v", err)
	}

	lines := testutil.DisassembleWithTool(t, "llvm-objdump", prog.Bytes(), testutil.MachineMIPS,
		"-d", "--no-show-raw-insn", "--mattr=+msa")
	testutil.VerifyExpectations(t, lines, expect)
}

type mipsSinkBuilder struct {
	fragments    []asm.Fragment
	expectations []testutil.Expectation
}

func (b *mipsSinkBuilder) add(name, mnemonic string, frag asm.Fragment, contains ...string) {
	b.fragments = append(b.fragments, frag)
	b.expectations = append(b.expectations, testutil.Expectation{
		Name:     name,
		Mnemonic: mnemonic,
		Contains: contains,
	})
}

func buildMIPSKitchenSink() (asm.Fragment, []testutil.Expectation) {
	var b mipsSinkBuilder

	b.add("addiu", "addiu", Addiu(SP, SP, -48), "-48")
	b.add("sw", "sw", Sw(S0, SP, 16), "16(")
	b.add("lw", "lw", Lw(T2, A0, 4), "4(")
	b.add("sll", "sll", Sll(T2, T2, 2), "2")
	b.add("andi", "andi", Andi(T2, T2, 15), "15")
	b.add("lwr", "lwr", Lwr(T3, T6, 0), "0(")
	b.add("lwl", "lwl", Lwl(T3, T6, 3), "3(")
	b.add("ldi", "ldi.b", Ldi(DFByte, W1, 5), "$w1", "5")
	b.add("fill", "fill.w", Fill(DFWord, W0, T3), "$w0")
	b.add("ld", "ld.b", Ld(DFByte, W2, A1, 16), "$w2", "16(")
	b.add("st", "st.w", St(DFWord, W2, SP, 32), "$w2", "32(")
	b.add("addv", "addv.b", Addv(DFByte, W2, W0, W1), "$w2", "$w0", "$w1")
	b.add("adds_s", "adds_s.h", AddsS(DFHalf, W3, W1, W2), "$w3")
	b.add("adds_u", "adds_u.w", AddsU(DFWord, W3, W1, W2), "$w3")
	b.add("subs_u", "subs_u.d", SubsU(DFDouble, W3, W1, W2), "$w3")
	b.add("and_v", "and.v", AndV(W4, W5, W6), "$w4", "$w5", "$w6")
	b.add("xori_b", "xori.b", XoriB(W15, W6, 0xff), "$w15", "255")
	b.add("copy_s", "copy_s.w", CopyS(DFWord, T3, W15, 1), "$w15[1]")
	b.add("copy_u", "copy_u.h", CopyU(DFHalf, T3, W15, 0), "$w15[0]")
	b.add("insert", "insert.w", Insert(DFWord, W3, 3, T3), "$w3[3]")
	b.add("shf", "shf.w", Shf(DFWord, W15, W15, 0x4e), "$w15", "78")
	b.add("fadd", "fadd.w", ThreeRFInsn(OpFadd, false, W0, W1, W2), "$w0")
	b.add("move_v", "move.v", MoveV(W1, W2), "$w1", "$w2")
	b.add("jr", "jr", Jr(RA))

	return asm.Group(b.fragments), b.expectations
}
