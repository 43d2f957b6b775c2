package msa

import (
	"github.com/tinyrange/msajit/internal/asm"
	"github.com/tinyrange/msajit/internal/hv"
	"github.com/tinyrange/msajit/internal/ir"
)

type backend struct {
	rules *Registry
}

func init() {
	ir.RegisterBackend(hv.ArchitectureMIPS32LE, backend{rules: NewRegistry()})
}

// Compile implements ir.Backend with default options.
func (b backend) Compile(p *ir.Program) (asm.Program, error) {
	code, err := Compile(p, b.rules, Options{})
	if err != nil {
		return asm.Program{}, err
	}
	return code.Program, nil
}

func (b backend) Executable() bool { return Capabilities().Executable }
