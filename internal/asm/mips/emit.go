package mips

import (
	"fmt"

	"github.com/tinyrange/msajit/internal/asm"
)

// EmitProgram lowers a fragment into MIPS32 little-endian machine code and
// resolves every branch.
func EmitProgram(fragment asm.Fragment) (asm.Program, error) {
	return emitProgram(fragment, false)
}

// EmitProgramWithListing is EmitProgram with a disassembly listing attached.
func EmitProgramWithListing(fragment asm.Fragment) (asm.Program, error) {
	return emitProgram(fragment, true)
}

func emitProgram(fragment asm.Fragment, listing bool) (asm.Program, error) {
	if fragment == nil {
		return asm.Program{}, fmt.Errorf("mips asm: fragment is nil")
	}

	ctx := NewContext(listing)
	if err := fragment.Emit(ctx); err != nil {
		return asm.Program{}, err
	}
	if err := ctx.ResolveFixups(); err != nil {
		return asm.Program{}, err
	}
	return ctx.Program()
}

// EmitBytes is a convenience helper returning the raw instruction stream for a fragment.
func EmitBytes(fragment asm.Fragment) ([]byte, error) {
	prog, err := EmitProgram(fragment)
	if err != nil {
		return nil, err
	}
	return prog.Bytes(), nil
}
