package mipsle

import (
	"math"
)

// MSA minor opcodes (bits 5..0)
const (
	minorI8     = 0x00
	minorI8Shf  = 0x02
	minorI10    = 0x07
	minor3RAdd  = 0x0e
	minor3RCmp  = 0x0f
	minor3RAdS  = 0x10
	minor3RSbS  = 0x11
	minor3RMul  = 0x12
	minorELM    = 0x19
	minor3RF    = 0x1b
	minorVEC2R  = 0x1e
	minorLoadV  = 0x20
	minorStoreV = 0x24
)

func msaDF(insn uint32) int   { return int((insn >> 21) & 3) }
func msaWt(insn uint32) uint32 { return (insn >> 16) & 0x1f }
func msaWs(insn uint32) uint32 { return (insn >> 11) & 0x1f }
func msaWd(insn uint32) uint32 { return (insn >> 6) & 0x1f }

// vec is a view of one vector register split into elements of size bytes.
type vec struct {
	b    *[16]byte
	size int
}

func (v vec) lanes() int { return 16 / v.size }

func (v vec) get(i int) uint64 {
	var x uint64
	for k := v.size - 1; k >= 0; k-- {
		x = x<<8 | uint64(v.b[i*v.size+k])
	}
	return x
}

func (v vec) set(i int, x uint64) {
	for k := 0; k < v.size; k++ {
		v.b[i*v.size+k] = byte(x >> (8 * k))
	}
}

func sext(x uint64, size int) int64 {
	shift := 64 - 8*size
	return int64(x<<shift) >> shift
}

// s10 sign extends the low ten bits of x.
func s10(x uint32) int64 {
	return int64(int32(x<<22) >> 22)
}

func trunc(x uint64, size int) uint64 {
	if size >= 8 {
		return x
	}
	return x & (1<<(8*size) - 1)
}

func (cpu *CPU) execMSA(pc, insn uint32) error {
	minor := insn & 0x3f
	switch {
	case minor == minorI8 || minor == minorI8Shf:
		return cpu.msaI8(pc, insn)
	case minor == minorI10 && (insn>>23)&7 == 6:
		return cpu.msaLdi(insn)
	case minor >= minor3RAdd && minor <= minor3RMul:
		return cpu.msa3R(pc, insn)
	case minor == minorELM:
		return cpu.msaELM(pc, insn)
	case minor == minor3RF:
		return cpu.msa3RF(pc, insn)
	case minor == minorVEC2R:
		return cpu.msaVEC2R(pc, insn)
	case minor&0x3c == minorLoadV || minor&0x3c == minorStoreV:
		return cpu.msaMem(pc, insn)
	}
	return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
}

func (cpu *CPU) msaLdi(insn uint32) error {
	size := 1 << msaDF(insn)
	imm := uint64(s10(insn >> 11))
	d := vec{&cpu.W[msaWd(insn)], size}
	for i := 0; i < d.lanes(); i++ {
		d.set(i, imm)
	}
	return nil
}

func (cpu *CPU) msaMem(pc, insn uint32) error {
	size := 1 << (insn & 3)
	off := s10(insn>>16) * int64(size)
	addr := cpu.ReadReg(msaWs(insn)) + uint32(off)
	buf, err := cpu.Bus.Slice(addr, 16)
	if err != nil {
		return ExceptionError{Cause: CauseBusErrData, PC: pc, Value: addr}
	}
	w := &cpu.W[msaWd(insn)]
	if insn&0x3c == minorLoadV {
		copy(w[:], buf)
	} else {
		copy(buf, w[:])
	}
	return nil
}

func (cpu *CPU) msa3R(pc, insn uint32) error {
	size := 1 << msaDF(insn)
	op := (insn >> 23) & 7
	s := vec{&cpu.W[msaWs(insn)], size}
	t := vec{&cpu.W[msaWt(insn)], size}
	var out [16]byte
	d := vec{&out, size}

	for i := 0; i < d.lanes(); i++ {
		a, b := s.get(i), t.get(i)
		sa, sb := sext(a, size), sext(b, size)
		var r uint64
		switch insn&0x3f<<4 | op {
		case minor3RAdd<<4 | 0:
			r = a + b
		case minor3RAdd<<4 | 1:
			r = a - b
		case minor3RAdd<<4 | 2:
			r = uint64(max(sa, sb))
		case minor3RAdd<<4 | 3:
			r = max(a, b)
		case minor3RAdd<<4 | 4:
			r = uint64(min(sa, sb))
		case minor3RAdd<<4 | 5:
			r = min(a, b)
		case minor3RCmp<<4 | 0:
			r = allOnes(a == b)
		case minor3RCmp<<4 | 2:
			r = allOnes(sa < sb)
		case minor3RCmp<<4 | 3:
			r = allOnes(a < b)
		case minor3RAdS<<4 | 2:
			r = addsS(sa, sb, size)
		case minor3RAdS<<4 | 3:
			r = addsU(a, b, size)
		case minor3RAdS<<4 | 6:
			r = uint64(averS(sa, sb))
		case minor3RAdS<<4 | 7:
			r = averU(a, b)
		case minor3RSbS<<4 | 0:
			r = subsS(sa, sb, size)
		case minor3RSbS<<4 | 1:
			if a > b {
				r = a - b
			}
		case minor3RMul<<4 | 0:
			r = a * b
		default:
			return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
		}
		d.set(i, trunc(r, size))
	}
	cpu.W[msaWd(insn)] = out
	return nil
}

func allOnes(b bool) uint64 {
	if b {
		return math.MaxUint64
	}
	return 0
}

func signedLimits(size int) (int64, int64) {
	if size == 8 {
		return math.MinInt64, math.MaxInt64
	}
	hi := int64(1)<<(8*size-1) - 1
	return -hi - 1, hi
}

func addsS(a, b int64, size int) uint64 {
	lo, hi := signedLimits(size)
	r := a + b
	switch {
	case size == 8 && a > 0 && b > 0 && r < 0:
		r = hi
	case size == 8 && a < 0 && b < 0 && r >= 0:
		r = lo
	case size < 8:
		r = min(max(r, lo), hi)
	}
	return uint64(r)
}

func subsS(a, b int64, size int) uint64 {
	lo, hi := signedLimits(size)
	r := a - b
	switch {
	case size == 8 && a >= 0 && b < 0 && r < 0:
		r = hi
	case size == 8 && a < 0 && b > 0 && r >= 0:
		r = lo
	case size < 8:
		r = min(max(r, lo), hi)
	}
	return uint64(r)
}

func addsU(a, b uint64, size int) uint64 {
	limit := trunc(math.MaxUint64, size)
	r := a + b
	if r < a || r > limit {
		return limit
	}
	return r
}

// averS and averU round half up; the sum is formed without overflow.
func averS(a, b int64) int64 {
	return (a >> 1) + (b >> 1) + ((a | b) & 1)
}

func averU(a, b uint64) uint64 {
	return (a >> 1) + (b >> 1) + ((a | b) & 1)
}

func (cpu *CPU) msa3RF(pc, insn uint32) error {
	double := (insn>>21)&1 == 1
	op := (insn >> 22) & 0xf
	if op > 3 {
		return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
	}
	s, t, d := cpu.W[msaWs(insn)], cpu.W[msaWt(insn)], &cpu.W[msaWd(insn)]
	if double {
		sv, tv, dv := vec{&s, 8}, vec{&t, 8}, vec{d, 8}
		for i := 0; i < 2; i++ {
			x, y := math.Float64frombits(sv.get(i)), math.Float64frombits(tv.get(i))
			dv.set(i, math.Float64bits(float64Op(op, x, y)))
		}
		return nil
	}
	sv, tv, dv := vec{&s, 4}, vec{&t, 4}, vec{d, 4}
	for i := 0; i < 4; i++ {
		x, y := math.Float32frombits(uint32(sv.get(i))), math.Float32frombits(uint32(tv.get(i)))
		dv.set(i, uint64(math.Float32bits(float32Op(op, x, y))))
	}
	return nil
}

func float32Op(op uint32, x, y float32) float32 {
	switch op {
	case 0:
		return x + y
	case 1:
		return x - y
	case 2:
		return x * y
	}
	return x / y
}

func float64Op(op uint32, x, y float64) float64 {
	switch op {
	case 0:
		return x + y
	case 1:
		return x - y
	case 2:
		return x * y
	}
	return x / y
}

// msaVEC2R handles the whole-register logic ops and FILL, which share a
// minor opcode.
func (cpu *CPU) msaVEC2R(pc, insn uint32) error {
	if op5 := (insn >> 21) & 0x1f; op5 < 4 {
		s, t := cpu.W[msaWs(insn)], cpu.W[msaWt(insn)]
		d := &cpu.W[msaWd(insn)]
		for i := range d {
			switch op5 {
			case 0:
				d[i] = s[i] & t[i]
			case 1:
				d[i] = s[i] | t[i]
			case 2:
				d[i] = ^(s[i] | t[i])
			case 3:
				d[i] = s[i] ^ t[i]
			}
		}
		return nil
	}
	if (insn>>18)&0xff == 0xc0 {
		size := 1 << ((insn >> 16) & 3)
		if size == 8 {
			// fill.d does not exist on 32-bit cores.
			return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
		}
		val := uint64(cpu.ReadReg(msaWs(insn)))
		d := vec{&cpu.W[msaWd(insn)], size}
		for i := 0; i < d.lanes(); i++ {
			d.set(i, val)
		}
		return nil
	}
	return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
}

// decodeDFN splits the combined data format and lane field of ELM forms.
func decodeDFN(dfn uint32) (size, lane int, ok bool) {
	switch {
	case dfn&0x30 == 0x00:
		return 1, int(dfn & 0xf), true
	case dfn&0x38 == 0x20:
		return 2, int(dfn & 0x7), true
	case dfn&0x3c == 0x30:
		return 4, int(dfn & 0x3), true
	case dfn&0x3e == 0x38:
		return 8, int(dfn & 0x1), true
	}
	return 0, 0, false
}

func (cpu *CPU) msaELM(pc, insn uint32) error {
	op := (insn >> 22) & 0xf
	dfn := (insn >> 16) & 0x3f
	src, dst := msaWs(insn), msaWd(insn)

	if op == 2 && dfn == 0x3e {
		cpu.W[dst] = cpu.W[src]
		return nil
	}
	size, lane, ok := decodeDFN(dfn)
	// Doubleword element moves need 64-bit general registers.
	if !ok || size == 8 {
		return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
	}
	switch op {
	case 2: // copy_s
		v := vec{&cpu.W[src], size}
		cpu.WriteReg(dst, uint32(sext(v.get(lane), size)))
	case 3: // copy_u
		if size == 4 {
			return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
		}
		v := vec{&cpu.W[src], size}
		cpu.WriteReg(dst, uint32(v.get(lane)))
	case 4: // insert
		v := vec{&cpu.W[dst], size}
		v.set(lane, uint64(cpu.ReadReg(src)))
	default:
		return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
	}
	return nil
}

func (cpu *CPU) msaI8(pc, insn uint32) error {
	imm := byte(insn >> 16)
	op := (insn >> 24) & 3
	s := cpu.W[msaWs(insn)]
	d := &cpu.W[msaWd(insn)]

	if insn&0x3f == minorI8Shf {
		if op == 3 {
			return ExceptionError{Cause: CauseReservedInsn, PC: pc, Value: insn}
		}
		size := 1 << op
		sv, dv := vec{&s, size}, vec{d, size}
		for i := 0; i < dv.lanes(); i++ {
			k := int(imm>>(2*(i&3))) & 3
			dv.set(i, sv.get(i&^3+k))
		}
		return nil
	}
	for i := range d {
		switch op {
		case 0:
			d[i] = s[i] & imm
		case 1:
			d[i] = s[i] | imm
		case 2:
			d[i] = ^(s[i] | imm)
		case 3:
			d[i] = s[i] ^ imm
		}
	}
	return nil
}
