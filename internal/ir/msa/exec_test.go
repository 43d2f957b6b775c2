package msa

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/tinyrange/msajit/internal/hv/mipsle"
	"github.com/tinyrange/msajit/internal/ir"
)

// Array placement inside the data region.
const (
	src1Off = 0x0_0000
	src2Off = 0x2_0000
	dst1Off = 0x4_0000
	dst2Off = 0x6_0000
)

func binaryKernel(t testing.TB, op string, size int, opts Options) *kernel {
	t.Helper()
	p := mustProgram(t, map[int]int{ir.D1: size, ir.S1: size, ir.S2: size}, nil,
		fmt.Sprintf("%s d1, s1, s2", op))
	return compileKernel(t, p, opts)
}

func newExecutor(n int32) *ir.Executor {
	ex := &ir.Executor{N: n}
	ex.Arrays[ir.S1] = dataAddr + src1Off
	ex.Arrays[ir.S2] = dataAddr + src2Off
	ex.Arrays[ir.D1] = dataAddr + dst1Off
	ex.Arrays[ir.D2] = dataAddr + dst2Off
	return ex
}

func fillRandom(r *rand.Rand, b []byte) {
	for i := range b {
		b[i] = byte(r.Uint32())
	}
}

var byteOps = []string{
	"addb", "subb", "addssb", "addusb", "subssb", "subusb",
	"andb", "andnb", "orb", "xorb", "cmpeqb", "cmpgtsb", "copyb",
	"mullb", "maxsb", "maxub", "minsb", "minub", "avgsb", "avgub",
}

// TestByteOpsExhaustive feeds every pair of byte operands through each
// byte-wide operation.
func TestByteOpsExhaustive(t *testing.T) {
	const n = 1 << 16
	data := make([]byte, dataSize)
	for i := 0; i < n; i++ {
		data[src1Off+i] = byte(i)
		data[src2Off+i] = byte(i >> 8)
	}
	for _, op := range byteOps {
		t.Run(op, func(t *testing.T) {
			code := fmt.Sprintf("%s d1, s1, s2", op)
			if op == "copyb" {
				code = "copyb d1, s1"
			}
			p := mustProgram(t, map[int]int{ir.D1: 1, ir.S1: 1, ir.S2: 1}, nil, code)
			k := compileKernel(t, p, Options{})
			k.check(newExecutor(n), data)
		})
	}
}

func halfBoundaries() []uint16 {
	return []uint16{0, 1, 2, 0x7f, 0xff, 0x100, 0x7ffe, 0x7fff, 0x8000, 0x8001, 0xfffe, 0xffff}
}

// TestHalfSaturation runs every 16-bit left operand against a set of right
// operands broadcast from a parameter.
func TestHalfSaturation(t *testing.T) {
	const n = 1 << 16
	data := make([]byte, dataSize)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[src1Off+2*i:], uint16(i))
	}

	rights := halfBoundaries()
	if !testing.Short() {
		r := rand.New(rand.NewPCG(1, 2))
		for range 8 {
			rights = append(rights, uint16(r.Uint32()))
		}
	}

	for _, op := range []string{"addssw", "addusw", "subssw", "subusw", "addw", "subw"} {
		t.Run(op, func(t *testing.T) {
			p := mustProgram(t, map[int]int{ir.D1: 2, ir.S1: 2, ir.P1: 2}, nil,
				fmt.Sprintf("%s d1, s1, p1", op))
			k := compileKernel(t, p, Options{UnrollShift: 1})
			for _, b := range rights {
				ex := newExecutor(n)
				if err := ex.SetParam(ir.P1, int64(b), 2); err != nil {
					t.Fatal(err)
				}
				k.check(ex, data)
			}
		})
	}
}

// TestHalfSaturationAllPairs sweeps every pair of 16-bit operands through
// the saturating halfword operations. Row r of a call pairs each i with
// (i+r0+r) mod 65536, so 65536 rows cover all pairs.
func TestHalfSaturationAllPairs(t *testing.T) {
	if testing.Short() {
		t.Skip("2^32 operand pairs")
	}
	const (
		ramSize     = 8 << 20
		rowBytes    = 1 << 17
		rowsPerCall = 4
		shards      = 8

		s1Addr  = codeAddr + 0x2_0000
		s2Addr  = codeAddr + 0x4_0000
		dstAddr = codeAddr + 0x8_0000
		top     = codeAddr + ramSize - 64
	)
	p := mustProgram(t, map[int]int{ir.D1: 2, ir.D2: 2, ir.D3: 2, ir.D4: 2, ir.S1: 2, ir.S2: 2}, nil,
		"addssw d1, s1, s2\naddusw d2, s1, s2\nsubssw d3, s1, s2\nsubusw d4, s1, s2")
	p.TwoD = true
	code, err := Compile(p, NewRegistry(), Options{UnrollShift: 2})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}

	left := make([]byte, rowBytes)
	right := make([]byte, 2*rowBytes)
	for i := 0; i < 1<<16; i++ {
		binary.LittleEndian.PutUint16(left[2*i:], uint16(i))
		binary.LittleEndian.PutUint16(right[2*i:], uint16(i))
		binary.LittleEndian.PutUint16(right[rowBytes+2*i:], uint16(i))
	}
	refs := []func(a, b uint64, size int) uint64{ir.AddSatSigned, ir.AddSatUnsigned, ir.SubSatSigned, ir.SubSatUnsigned}

	for shard := 0; shard < shards; shard++ {
		t.Run(fmt.Sprintf("shard%d", shard), func(t *testing.T) {
			t.Parallel()
			m := mipsle.NewMachine(codeAddr, ramSize)
			for _, seg := range []struct {
				addr uint32
				data []byte
			}{{codeAddr, code.Bytes()}, {s1Addr, left}, {s2Addr, right}} {
				if err := m.LoadBytes(seg.addr, seg.data); err != nil {
					t.Fatalf("LoadBytes: %v", err)
				}
			}

			const span = (1 << 16) / shards
			for r0 := shard * span; r0 < (shard+1)*span; r0 += rowsPerCall {
				ex := &ir.Executor{Program: codeAddr, N: 1 << 16}
				ex.Arrays[ir.S1] = s1Addr
				ex.Arrays[ir.S2] = s2Addr + uint32(2*r0)
				strides := map[int]int32{ir.S1: 0, ir.S2: 2}
				for k := 0; k < 4; k++ {
					ex.Arrays[ir.D1+k] = dstAddr + uint32(k*rowsPerCall*rowBytes)
					strides[ir.D1+k] = rowBytes
				}
				ex.SetRows(rowsPerCall, strides)
				if err := m.LoadBytes(execAddr, ex.Marshal()); err != nil {
					t.Fatalf("load executor: %v", err)
				}
				m.MaxSteps = m.Steps() + 10_000_000
				if err := m.Call(context.Background(), codeAddr, execAddr, top); err != nil {
					t.Fatalf("rows %d: Call: %v", r0, err)
				}
				out, err := m.Bus.Slice(dstAddr, 4*rowsPerCall*rowBytes)
				if err != nil {
					t.Fatalf("read results: %v", err)
				}
				for k, ref := range refs {
					for r := 0; r < rowsPerCall; r++ {
						row := out[(k*rowsPerCall+r)*rowBytes:]
						for a := 0; a < 1<<16; a++ {
							b := (a + r0 + r) & 0xffff
							got := binary.LittleEndian.Uint16(row[2*a:])
							if want := uint16(ref(uint64(a), uint64(b), 2)); got != want {
								t.Fatalf("%s(%#04x, %#04x)=%#04x, want %#04x", p.Code[k].Opcode, a, b, got, want)
							}
						}
					}
				}
			}
		})
	}
}

func TestWrappingAddHalf(t *testing.T) {
	p := mustProgram(t, map[int]int{ir.D1: 2, ir.S1: 2, ir.C1: 2}, map[int]int64{ir.C1: 10}, "addw d1, s1, c1")
	k := compileKernel(t, p, Options{})
	const n = 19
	data := make([]byte, dataSize)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[src1Off+2*i:], 32760)
	}
	got := k.check(newExecutor(n), data)
	for i := 0; i < n; i++ {
		if v := int16(binary.LittleEndian.Uint16(got[dst1Off+2*i:])); v != -32766 {
			t.Fatalf("d1[%d]=%d, want -32766", i, v)
		}
	}
}

func TestAddConstScenario(t *testing.T) {
	p := mustProgram(t, map[int]int{ir.D1: 1, ir.S1: 1, ir.C1: 1}, map[int]int64{ir.C1: 5}, "addb d1, s1, c1")
	k := compileKernel(t, p, Options{})
	const n = 201
	data := make([]byte, dataSize)
	for i := 0; i < n; i++ {
		data[src1Off+i] = byte(i * -100)
	}
	got := k.check(newExecutor(n), data)
	for i := 0; i < n; i++ {
		if want := byte(i*-100) + 5; got[dst1Off+i] != want {
			t.Fatalf("d1[%d]=%d, want %d", i, got[dst1Off+i], want)
		}
	}
	if got[dst1Off+n] != 0 {
		t.Fatalf("d1[%d] written past the end", n)
	}
}

// TestLengths covers every REGION0, REGION1 and REGION2 combination for
// each element size and unroll factor.
func TestLengths(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 4))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	ops := map[int]string{1: "addssb", 2: "subusw", 4: "addl", 8: "addq"}
	for _, size := range []int{1, 2, 4, 8} {
		for u := 0; u <= MaxUnrollShift; u++ {
			t.Run(fmt.Sprintf("%s/unroll%d", ops[size], u), func(t *testing.T) {
				k := binaryKernel(t, ops[size], size, Options{UnrollShift: u})
				for _, n := range []int32{-5, 0, 1, 2, 3, 7, 15, 16, 17, 31, 32, 33, 63, 64, 65, 100, 1000} {
					k.check(newExecutor(n), data)
				}
			})
		}
	}
}

func TestUnalignedArrays(t *testing.T) {
	r := rand.New(rand.NewPCG(5, 6))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	for _, size := range []int{1, 4} {
		k := binaryKernel(t, addOpcode(size), size, Options{UnrollShift: 1})
		for off := uint32(0); off < 16; off++ {
			for _, n := range []int32{5, 37} {
				ex := newExecutor(n)
				ex.Arrays[ir.S1] += off
				ex.Arrays[ir.S2] += 15 - off
				ex.Arrays[ir.D1] += off * 3 % 16
				k.check(ex, data)
			}
		}
	}
}

func addOpcode(size int) string { return ir.SizedName("add", size) }

// TestWideRandom samples the 32 and 64-bit operations with random operands
// and a prefix of boundary pairs.
func TestWideRandom(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 8))
	const n = 997
	boundaries := []uint64{0, 1, math.MaxInt32, 1 << 31, math.MaxUint32, math.MaxInt64, 1 << 63, math.MaxUint64}

	for _, size := range []int{4, 8} {
		data := make([]byte, dataSize)
		fillRandom(r, data[:dst1Off])
		i := 0
		for _, a := range boundaries {
			for _, b := range boundaries {
				putElem(data[src1Off+i*size:], size, a)
				putElem(data[src2Off+i*size:], size, b)
				i++
			}
		}
		names := []string{"add", "sub", "addss", "addus", "subss", "subus", "and", "andn", "or", "xor", "cmpeq", "cmpgts"}
		if size == 4 {
			names = append(names, "mull", "maxs", "maxu", "mins", "minu", "avgs", "avgu")
		}
		for _, name := range names {
			op := ir.SizedName(name, size)
			t.Run(op, func(t *testing.T) {
				binaryKernel(t, op, size, Options{UnrollShift: 2}).check(newExecutor(n), data)
			})
		}
	}
}

func putElem(b []byte, size int, v uint64) {
	if size == 8 {
		binary.LittleEndian.PutUint64(b, v)
		return
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func TestFloatOps(t *testing.T) {
	r := rand.New(rand.NewPCG(9, 10))
	const n = 333
	data := make([]byte, dataSize)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint32(data[src1Off+4*i:], math.Float32bits(r.Float32()*200-100))
		binary.LittleEndian.PutUint32(data[src2Off+4*i:], math.Float32bits(r.Float32()*200-100))
	}
	for _, op := range []string{"addf", "subf"} {
		binaryKernel(t, op, 4, Options{}).check(newExecutor(n), data)
	}

	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint64(data[src1Off+8*i:], math.Float64bits(r.NormFloat64()*1e6))
		binary.LittleEndian.PutUint64(data[src2Off+8*i:], math.Float64bits(r.NormFloat64()))
	}
	for _, op := range []string{"addd", "subd"} {
		binaryKernel(t, op, 8, Options{UnrollShift: 1}).check(newExecutor(n), data)
	}
}

// TestBroadcasts checks constants and parameters of every width, including
// values too wide for ldi and 8-byte parameters split over two slots.
func TestBroadcasts(t *testing.T) {
	r := rand.New(rand.NewPCG(11, 12))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	for _, size := range []int{1, 2, 4, 8} {
		for _, c := range []int64{0, -1, 5, -512, 511, 512, -513, 0x1234, -0x12345678, 0x1122334455667788} {
			t.Run(fmt.Sprintf("%s/const%d", addOpcode(size), c), func(t *testing.T) {
				p := mustProgram(t, map[int]int{ir.D1: size, ir.S1: size, ir.C1: 8},
					map[int]int64{ir.C1: c}, addOpcode(size)+" d1, s1, c1")
				compileKernel(t, p, Options{}).check(newExecutor(77), data)
			})
		}
		for _, psize := range []int{4, 8} {
			t.Run(fmt.Sprintf("%s/param%d", addOpcode(size), psize), func(t *testing.T) {
				p := mustProgram(t, map[int]int{ir.D1: size, ir.S1: size, ir.P2: psize}, nil, addOpcode(size)+" d1, s1, p2")
				k := compileKernel(t, p, Options{})
				ex := newExecutor(77)
				if err := ex.SetParam(ir.P2, -0x0123456789abcdef, psize); err != nil {
					t.Fatal(err)
				}
				k.check(ex, data)
			})
		}
	}
}

func TestLoadOffset(t *testing.T) {
	r := rand.New(rand.NewPCG(13, 14))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	for _, size := range []int{1, 2, 4, 8} {
		for _, off := range []int64{-3, 0, 1, 17} {
			t.Run(fmt.Sprintf("size%d/off%d", size, off), func(t *testing.T) {
				p := mustProgram(t, map[int]int{ir.D1: size, ir.S1: size, ir.C1: 4},
					map[int]int64{ir.C1: off}, ir.SizedName("loadoff", size)+" d1, s1, c1")
				k := compileKernel(t, p, Options{UnrollShift: 1})
				for _, n := range []int32{1, 9, 50} {
					ex := newExecutor(n)
					ex.Arrays[ir.S1] += 64
					k.check(ex, data)
				}
			})
		}
	}
}

// TestAndnKeepsSources reuses the inverted operand after andn.
func TestAndnKeepsSources(t *testing.T) {
	r := rand.New(rand.NewPCG(15, 16))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	p := mustProgram(t, map[int]int{ir.D1: 1, ir.D2: 1, ir.S1: 1, ir.S2: 1}, nil,
		"andnb d1, s1, s2\nxorb d2, s2, s1")
	got := compileKernel(t, p, Options{}).check(newExecutor(45), data)
	for i := 0; i < 45; i++ {
		a, b := data[src1Off+i], data[src2Off+i]
		if got[dst1Off+i] != a&^b || got[dst2Off+i] != a^b {
			t.Fatalf("element %d: andn=%#x xor=%#x", i, got[dst1Off+i], got[dst2Off+i])
		}
	}
}

func TestTemporaryChain(t *testing.T) {
	r := rand.New(rand.NewPCG(17, 18))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	p := mustProgram(t, map[int]int{ir.D1: 2, ir.S1: 2, ir.S2: 2, ir.T1: 2, ir.T2: 2, ir.C1: 2},
		map[int]int64{ir.C1: 3},
		"mullw t1, s1, c1\nmaxsw t2, t1, s2\nsubssw t1, t2, s1\ncmpgtsw t2, t1, s2\nandw d1, t2, t1")
	k := compileKernel(t, p, Options{UnrollShift: 2})
	for _, n := range []int32{3, 8, 129} {
		k.check(newExecutor(n), data)
	}
}

func TestManyArraysPreserveCalleeSaved(t *testing.T) {
	r := rand.New(rand.NewPCG(19, 20))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	decls := map[int]int{}
	for v := ir.D1; v < ir.D1+ir.NumDest; v++ {
		decls[v] = 1
	}
	for v := ir.S1; v < ir.S1+ir.NumSrc; v++ {
		decls[v] = 1
	}
	p := mustProgram(t, decls, nil, "addb d1, s1, s2\nsubb d2, s3, s4\nxorb d3, s5, s6\nmaxub d4, s7, s8")
	k := compileKernel(t, p, Options{UnrollShift: 1})
	if len(k.code.Saved) != 5 || k.code.FrameSize != 64 {
		t.Fatalf("saved=%v frame=%d, want 5 registers in 64 bytes", k.code.Saved, k.code.FrameSize)
	}

	ex := &ir.Executor{N: 70}
	for i, v := range p.Arrays() {
		ex.Arrays[v] = dataAddr + uint32(i)*0x1000
	}
	k.check(ex, data)
}

func TestTwoD(t *testing.T) {
	r := rand.New(rand.NewPCG(21, 22))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	for _, u := range []int{0, 2} {
		t.Run(fmt.Sprintf("unroll%d", u), func(t *testing.T) {
			p := mustProgram(t, map[int]int{ir.D1: 2, ir.S1: 2, ir.S2: 2}, nil, "addssw d1, s1, s2")
			p.TwoD = true
			k := compileKernel(t, p, Options{UnrollShift: u})
			for _, rows := range []int32{0, 1, 5} {
				for _, n := range []int32{0, 3, 21, 40} {
					ex := newExecutor(n)
					ex.SetRows(rows, map[int]int32{ir.S1: 128, ir.S2: 96, ir.D1: 100})
					k.check(ex, data)
				}
			}
		})
	}
}

// TestLaneFlags runs x2 and x4 instructions, which pack two or four
// opcode-width lanes into every array element.
func TestLaneFlags(t *testing.T) {
	r := rand.New(rand.NewPCG(23, 24))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	tests := []struct {
		name string
		size int
		code string
	}{
		{"x2 addusb", 2, "x2 addusb d1, s1, s2"},
		{"x4 addb", 4, "x4 addb d1, s1, s2"},
		{"x2 subssw", 4, "x2 subssw d1, s1, s2"},
		{"x2 addb const", 2, "x2 addb d1, s1, c1"},
		{"x4 maxsb param", 4, "x4 maxsb d1, s1, p1"},
		{"x2 loadoffb", 2, "x2 loadoffb d1, s1, c2"},
		{"x2 addl", 8, "x2 addl d1, s1, s2"},
	}
	for _, tt := range tests {
		for u := 0; u <= MaxUnrollShift; u++ {
			t.Run(fmt.Sprintf("%s/unroll%d", tt.name, u), func(t *testing.T) {
				p := mustProgram(t,
					map[int]int{ir.D1: tt.size, ir.S1: tt.size, ir.S2: tt.size, ir.C1: 1, ir.C2: 4, ir.P1: 4},
					map[int]int64{ir.C1: 0x81, ir.C2: -1}, tt.code)
				k := compileKernel(t, p, Options{UnrollShift: u})
				for _, n := range []int32{1, 7, 8, 9, 40, 333} {
					ex := newExecutor(n)
					ex.Arrays[ir.S1] += 64
					if err := ex.SetParam(ir.P1, 0x7f, 4); err != nil {
						t.Fatal(err)
					}
					k.check(ex, data)
				}
			})
		}
	}
}

func TestLaneFlagsPerLaneResult(t *testing.T) {
	p := mustProgram(t, map[int]int{ir.D1: 2, ir.S1: 2, ir.S2: 2}, nil, "x2 addusb d1, s1, s2")
	k := compileKernel(t, p, Options{})
	const n = 21
	data := make([]byte, dataSize)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(data[src1Off+2*i:], 0x10f0)
		binary.LittleEndian.PutUint16(data[src2Off+2*i:], 0x1020)
	}
	got := k.check(newExecutor(n), data)
	for i := 0; i < n; i++ {
		// A 16-bit saturating add would give 0x2110.
		if v := binary.LittleEndian.Uint16(got[dst1Off+2*i:]); v != 0x20ff {
			t.Fatalf("d1[%d]=%#x, want 0x20ff", i, v)
		}
	}
}

// alignedProgram declares d1, s1 and s2 as aligned byte arrays and c1 as
// off.
func alignedProgram(t testing.TB, off int64, code string) *ir.Program {
	t.Helper()
	p := mustProgram(t, map[int]int{ir.D1: 1, ir.S1: 1, ir.S2: 1, ir.T1: 1, ir.C1: 4}, map[int]int64{ir.C1: off}, code)
	for _, v := range []int{ir.D1, ir.S1, ir.S2} {
		if err := p.SetAligned(v); err != nil {
			t.Fatal(err)
		}
	}
	return p
}

func TestAlignedArraysUseWordAccess(t *testing.T) {
	listing := func(p *ir.Program) string {
		code, err := Compile(p, NewRegistry(), Options{Listing: true})
		if err != nil {
			t.Fatalf("Compile: %v", err)
		}
		return strings.Join(code.Listing(), "\n")
	}

	plain := listing(mustProgram(t, map[int]int{ir.D1: 1, ir.S1: 1, ir.S2: 1}, nil, "addb d1, s1, s2"))
	for _, want := range []string{"lwl", "lwr", "swl", "swr"} {
		if !strings.Contains(plain, want) {
			t.Fatalf("unaligned listing missing %q:\n%s", want, plain)
		}
	}

	aligned := listing(alignedProgram(t, 0, "addb d1, s1, s2"))
	for _, bad := range []string{"lwl", "lwr", "swl", "swr"} {
		if strings.Contains(aligned, bad) {
			t.Fatalf("aligned listing has %q:\n%s", bad, aligned)
		}
	}
	for _, want := range []string{"lw $t3, 0($t6)", "sw $t3, 0($t6)"} {
		if !strings.Contains(aligned, want) {
			t.Fatalf("aligned listing missing %q:\n%s", want, aligned)
		}
	}

	const offCode = "loadoffb t1, s1, c1\naddb d1, t1, s2"
	if text := listing(alignedProgram(t, 4, offCode)); strings.Contains(text, "lwl") {
		t.Fatalf("offset 4 listing has lwl:\n%s", text)
	}
	// An offset that breaks word alignment keeps the unaligned sequence.
	if text := listing(alignedProgram(t, 3, offCode)); !strings.Contains(text, "lwl") {
		t.Fatalf("offset 3 listing missing lwl:\n%s", text)
	}
}

func TestAlignedArrays(t *testing.T) {
	r := rand.New(rand.NewPCG(25, 26))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	tests := []struct {
		off  int64
		code string
	}{
		{0, "addb d1, s1, s2"},
		{4, "loadoffb t1, s1, c1\nsubusb d1, t1, s2"},
		{3, "loadoffb t1, s1, c1\nsubusb d1, t1, s2"},
	}
	for _, tt := range tests {
		for _, twoD := range []bool{false, true} {
			t.Run(fmt.Sprintf("off%d/2d=%v", tt.off, twoD), func(t *testing.T) {
				p := alignedProgram(t, tt.off, tt.code)
				p.TwoD = twoD
				k := compileKernel(t, p, Options{UnrollShift: 1})
				for _, n := range []int32{1, 3, 4, 5, 12, 15, 16, 29, 77} {
					ex := newExecutor(n)
					ex.SetRows(3, map[int]int32{ir.D1: 100, ir.S1: 132, ir.S2: 96})
					k.check(ex, data)
				}
			})
		}
	}
}

// TestUnusedArray declares an array the code never touches. It gets no
// pointer and its executor slot is never read.
func TestUnusedArray(t *testing.T) {
	r := rand.New(rand.NewPCG(27, 28))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	used := binaryKernel(t, "addb", 1, Options{})
	p := mustProgram(t, map[int]int{ir.D1: 1, ir.D2: 1, ir.S1: 1, ir.S2: 1, ir.S3: 1}, nil, "addb d1, s1, s2")
	k := compileKernel(t, p, Options{})
	if !slices.Equal(k.code.Registers, used.code.Registers) {
		t.Fatalf("Registers=%v, want %v", k.code.Registers, used.code.Registers)
	}
	if !bytes.Equal(k.code.Bytes(), used.code.Bytes()) {
		t.Fatalf("unused arrays changed the code")
	}

	for _, twoD := range []bool{false, true} {
		p.TwoD = twoD
		k := compileKernel(t, p, Options{})
		ex := newExecutor(37)
		ex.Arrays[ir.S3] = 1
		ex.SetRows(2, map[int]int32{ir.D1: 64, ir.S1: 64, ir.S2: 64, ir.S3: 3})
		got := k.check(ex, data)
		for i := range got[dst2Off:] {
			if got[dst2Off+i] != 0 {
				t.Fatalf("d2 byte %d written", i)
			}
		}
	}
}

// TestLoadOffsetUnrolled uses offsets at the ends of the loadoff range,
// where the unrolled copies need more than the ld.df offset field holds.
func TestLoadOffsetUnrolled(t *testing.T) {
	r := rand.New(rand.NewPCG(29, 30))
	data := make([]byte, dataSize)
	fillRandom(r, data[:dst1Off])

	for _, size := range []int{1, 2, 8} {
		for _, off := range []int64{-512, 500, 511} {
			for u := 0; u <= MaxUnrollShift; u++ {
				t.Run(fmt.Sprintf("size%d/off%d/unroll%d", size, off, u), func(t *testing.T) {
					p := mustProgram(t, map[int]int{ir.D1: size, ir.S1: size, ir.C1: 4},
						map[int]int64{ir.C1: off}, ir.SizedName("loadoff", size)+" d1, s1, c1")
					k := compileKernel(t, p, Options{UnrollShift: u})
					for _, n := range []int32{5, 64, 200} {
						ex := newExecutor(n)
						ex.Arrays[ir.S1] += 0x1000 * uint32(size)
						k.check(ex, data)
					}
				})
			}
		}
	}
}
