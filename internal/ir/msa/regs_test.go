package msa

import (
	"errors"
	"slices"
	"testing"

	"github.com/tinyrange/msajit/internal/asm/mips"
)

func TestRegisterContract(t *testing.T) {
	for _, r := range PointerRegisters() {
		if !r.IsGP() || Reserved(r) {
			t.Fatalf("pointer register %s is reserved", r)
		}
	}
	vecs := VectorRegisters()
	if len(vecs) != 30 || slices.Contains(vecs, vecScratch) || slices.Contains(vecs, mips.W31) {
		t.Fatalf("vector registers=%v", vecs)
	}
	for _, r := range vecs {
		if !r.IsVec() || Reserved(r) {
			t.Fatalf("vector register %s is reserved", r)
		}
	}
	for _, r := range []mips.Reg{mips.A0, mips.SP, mips.RA, mips.T3, mips.W15} {
		if !Reserved(r) {
			t.Fatalf("%s not reserved", r)
		}
	}

	saved := map[mips.Reg]bool{mips.S0: true, mips.S7: true, mips.FP: true, mips.W20: true, mips.W30: true,
		mips.T9: false, mips.A1: false, mips.W19: false, mips.W31: false}
	for r, want := range saved {
		if CalleeSaved(r) != want {
			t.Fatalf("CalleeSaved(%s)=%v, want %v", r, !want, want)
		}
	}

	// The returned slices are copies.
	PointerRegisters()[0] = mips.ZERO
	if PointerRegisters()[0] != mips.A1 {
		t.Fatalf("PointerRegisters shares its backing array")
	}
}

func TestRegisterFileAlloc(t *testing.T) {
	rf := newRegisterFile()
	for i, want := range pointerOrder {
		r, err := rf.alloc(pointerOrder, "pointer")
		if err != nil || r != want {
			t.Fatalf("alloc %d = %s, %v, want %s", i, r, err, want)
		}
	}
	if _, err := rf.alloc(pointerOrder, "pointer"); !errors.Is(err, ErrProgram) {
		t.Fatalf("exhausted alloc: err=%v", err)
	}
	if v, err := rf.alloc(vectorOrder, "vector"); err != nil || v != mips.W0 {
		t.Fatalf("vector alloc = %s, %v", v, err)
	}

	gp := rf.saved(false)
	want := []mips.Reg{mips.S0, mips.S1, mips.S2, mips.S3, mips.S4, mips.S5, mips.S6, mips.S7}
	if !slices.Equal(gp, want) {
		t.Fatalf("saved(false)=%v, want %v", gp, want)
	}
	if vec := rf.saved(true); len(vec) != 0 {
		t.Fatalf("saved(true)=%v", vec)
	}
	if n := len(rf.used()); n != len(pointerOrder)+1 {
		t.Fatalf("used %d registers", n)
	}
}

func TestFrameLayout(t *testing.T) {
	tests := []struct {
		gp, vec  int
		size, vo int
	}{
		{0, 0, 32, 32},
		{1, 0, 48, 48},
		{4, 0, 48, 48},
		{5, 0, 64, 64},
		{1, 2, 80, 48},
		{8, 11, 64 + 176, 64},
	}
	for _, tt := range tests {
		f, err := newFrameLayout(make([]mips.Reg, tt.gp), make([]mips.Reg, tt.vec))
		if err != nil {
			t.Fatalf("gp=%d vec=%d: %v", tt.gp, tt.vec, err)
		}
		if f.size != tt.size || f.vecOffset != tt.vo {
			t.Fatalf("gp=%d vec=%d: size=%d vecOffset=%d, want %d %d", tt.gp, tt.vec, f.size, f.vecOffset, tt.size, tt.vo)
		}
		if tt.gp > 0 && f.gpOffset(tt.gp-1)+4 > f.vecOffset {
			t.Fatalf("general saves overlap vector saves")
		}
		if tt.vec > 0 && f.vecSlot(tt.vec-1)+16 > f.size {
			t.Fatalf("vector saves overflow the frame")
		}
	}
	if _, err := newFrameLayout(nil, make([]mips.Reg, 4096)); !errors.Is(err, ErrProgram) {
		t.Fatalf("oversized frame: err=%v", err)
	}
}
