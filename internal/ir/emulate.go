package ir

import (
	"encoding/binary"
	"fmt"
)

// FlatMemory is a contiguous little-endian address space starting at Base.
type FlatMemory struct {
	Base uint32
	Data []byte
}

func (m *FlatMemory) slice(addr uint32, size int) ([]byte, error) {
	off := int64(addr) - int64(m.Base)
	if off < 0 || off+int64(size) > int64(len(m.Data)) {
		return nil, fmt.Errorf("ir: access of %d bytes at %#x outside memory", size, addr)
	}
	return m.Data[off : off+int64(size)], nil
}

func (m *FlatMemory) Load(addr uint32, size int) (uint64, error) {
	b, err := m.slice(addr, size)
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (m *FlatMemory) Store(addr uint32, size int, value uint64) error {
	b, err := m.slice(addr, size)
	if err != nil {
		return err
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], value)
	copy(b, buf[:size])
	return nil
}

// Emulate runs the program one element at a time. It is the scalar
// reference the generated code is checked against. Arrays are addressed
// through ex and mem exactly as the compiled kernel addresses them.
func Emulate(p *Program, ex *Executor, mem *FlatMemory) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := checkAligned(p, ex); err != nil {
		return err
	}
	ops := make([]Opcode, len(p.Code))
	for i, in := range p.Code {
		ops[i], _ = LookupOpcode(in.Opcode)
	}

	rows := int32(1)
	if p.TwoD {
		rows = int32(ex.Params[RowCountSlot])
	}
	n := int(ex.N)

	var vals [VarCount]uint64
	for row := int32(0); row < rows; row++ {
		for i := 0; i < n; i++ {
			e := emuState{p: p, ex: ex, mem: mem, row: row, i: i, vals: &vals}
			for k, in := range p.Code {
				if err := e.step(ops[k], in); err != nil {
					return fmt.Errorf("ir: %s (row %d, element %d): %w", in, row, i, err)
				}
			}
		}
	}
	return nil
}

// checkAligned rejects an executor that breaks the promise of an aligned
// array. Generated code relies on it and faults otherwise.
func checkAligned(p *Program, ex *Executor) error {
	for _, v := range p.Arrays() {
		if !p.Vars[v].Aligned {
			continue
		}
		if ex.Arrays[v]%ArrayAlignment != 0 {
			return fmt.Errorf("%w: aligned %s at %#x", ErrInvalidProgram, VarName(v), ex.Arrays[v])
		}
		if p.TwoD && ex.Params[v]%ArrayAlignment != 0 {
			return fmt.Errorf("%w: aligned %s has row stride %d", ErrInvalidProgram, VarName(v), int32(ex.Params[v]))
		}
	}
	return nil
}

type emuState struct {
	p    *Program
	ex   *Executor
	mem  *FlatMemory
	row  int32
	i    int
	vals *[VarCount]uint64
}

func (e *emuState) address(v, index int) uint32 {
	base := e.ex.Arrays[v]
	if e.p.TwoD {
		base += uint32(int32(e.ex.Params[v]) * e.row)
	}
	return base + uint32(index*e.p.Vars[v].Size)
}

// scalar returns the value of a constant or parameter.
func (e *emuState) scalar(v int) uint64 {
	vr := e.p.Vars[v]
	if vr.Role == RoleConst {
		return uint64(vr.Value)
	}
	return e.ex.Param(v, vr.Size)
}

// read returns operand v of an instruction working on size-byte lanes,
// lanes to an element. Constants and parameters fill every lane.
func (e *emuState) read(v, size, lanes int) (uint64, error) {
	vr := e.p.Vars[v]
	switch vr.Role {
	case RoleSource:
		return e.mem.Load(e.address(v, e.i), vr.Size)
	case RoleConst, RoleParam:
		return Replicate(e.scalar(v), size, lanes), nil
	default:
		return e.vals[v], nil
	}
}

func (e *emuState) write(v int, value uint64) error {
	vr := e.p.Vars[v]
	value = Truncate(value, vr.Size)
	if vr.Role == RoleDest {
		return e.mem.Store(e.address(v, e.i), vr.Size, value)
	}
	e.vals[v] = value
	return nil
}

func (e *emuState) step(op Opcode, in Instruction) error {
	dst := in.Dest[0]
	lanes := in.Lanes()
	switch op.Kind {
	case KindLoad, KindStore, KindLoadParam:
		v, err := e.read(in.Src[0], op.Size, lanes)
		if err != nil {
			return err
		}
		return e.write(dst, v)
	case KindLoadOff:
		off := int(SignExtend(e.scalar(in.Src[1]), 4))
		src := in.Src[0]
		v, err := e.mem.Load(e.address(src, e.i+off), e.p.Vars[src].Size)
		if err != nil {
			return err
		}
		return e.write(dst, v)
	}

	a, err := e.read(in.Src[0], op.Size, lanes)
	if err != nil {
		return err
	}
	var b uint64
	if op.Srcs > 1 {
		if b, err = e.read(in.Src[1], op.Size, lanes); err != nil {
			return err
		}
	}
	return e.write(dst, op.EvalLanes(a, b, lanes))
}
