package ir

import (
	"encoding/binary"
	"fmt"
)

// Executor record layout. Every slot is 4 bytes, little-endian.
const (
	ExecProgramOffset  = 0
	ExecNOffset        = 4
	ExecCounter1Offset = 8
	ExecCounter2Offset = 12
	ExecCounter3Offset = 16
	ExecArraysOffset   = 20
	ExecParamsOffset   = ExecArraysOffset + 4*VarCount
	ExecAccumsOffset   = ExecParamsOffset + 4*VarCount
	ExecutorSize       = ExecAccumsOffset + 4*NumAcc
)

// ParamHighOffset is added to a parameter index to find the slot holding the
// upper 32 bits of an 8-byte parameter.
const ParamHighOffset = 8

func ArraySlotOffset(v int) int { return ExecArraysOffset + 4*v }
func ParamSlotOffset(v int) int { return ExecParamsOffset + 4*v }

// RowCountSlot is the params slot holding the row count of a 2D kernel.
const RowCountSlot = A1

// Executor mirrors the record passed to a compiled kernel in $a0. Array
// entries are addresses in the target's address space.
type Executor struct {
	Program  uint32
	N        int32
	Counters [3]int32
	Arrays   [VarCount]uint32
	Params   [VarCount]uint32
	Accums   [NumAcc]uint32
}

// SetParam stores a parameter value. Eight-byte values are split across the
// parameter slot and its high-word slot.
func (e *Executor) SetParam(v int, value int64, size int) error {
	if RoleOf(v) != RoleParam {
		return fmt.Errorf("%w: %s is not a parameter", ErrInvalidProgram, VarName(v))
	}
	e.Params[v] = uint32(value)
	if size == 8 {
		e.Params[v+ParamHighOffset] = uint32(uint64(value) >> 32)
	}
	return nil
}

// Param reads back a parameter as the interpreter and the generated code see it.
func (e *Executor) Param(v int, size int) uint64 {
	lo := uint64(e.Params[v])
	if size == 8 {
		return lo | uint64(e.Params[v+ParamHighOffset])<<32
	}
	return lo
}

// SetRows configures a 2D run: rows rows, each array v advancing by
// strides[v] bytes from one row to the next.
func (e *Executor) SetRows(rows int32, strides map[int]int32) {
	e.Params[RowCountSlot] = uint32(rows)
	for v, stride := range strides {
		e.Params[v] = uint32(stride)
	}
}

func (e *Executor) Marshal() []byte {
	buf := make([]byte, ExecutorSize)
	le := binary.LittleEndian
	le.PutUint32(buf[ExecProgramOffset:], e.Program)
	le.PutUint32(buf[ExecNOffset:], uint32(e.N))
	le.PutUint32(buf[ExecCounter1Offset:], uint32(e.Counters[0]))
	le.PutUint32(buf[ExecCounter2Offset:], uint32(e.Counters[1]))
	le.PutUint32(buf[ExecCounter3Offset:], uint32(e.Counters[2]))
	for i, v := range e.Arrays {
		le.PutUint32(buf[ArraySlotOffset(i):], v)
	}
	for i, v := range e.Params {
		le.PutUint32(buf[ParamSlotOffset(i):], v)
	}
	for i, v := range e.Accums {
		le.PutUint32(buf[ExecAccumsOffset+4*i:], v)
	}
	return buf
}

func UnmarshalExecutor(buf []byte) (*Executor, error) {
	if len(buf) < ExecutorSize {
		return nil, fmt.Errorf("ir: executor record is %d bytes, want %d", len(buf), ExecutorSize)
	}
	le := binary.LittleEndian
	e := &Executor{
		Program: le.Uint32(buf[ExecProgramOffset:]),
		N:       int32(le.Uint32(buf[ExecNOffset:])),
	}
	e.Counters[0] = int32(le.Uint32(buf[ExecCounter1Offset:]))
	e.Counters[1] = int32(le.Uint32(buf[ExecCounter2Offset:]))
	e.Counters[2] = int32(le.Uint32(buf[ExecCounter3Offset:]))
	for i := range e.Arrays {
		e.Arrays[i] = le.Uint32(buf[ArraySlotOffset(i):])
	}
	for i := range e.Params {
		e.Params[i] = le.Uint32(buf[ParamSlotOffset(i):])
	}
	for i := range e.Accums {
		e.Accums[i] = le.Uint32(buf[ExecAccumsOffset+4*i:])
	}
	return e, nil
}
