package ir

import (
	"math"
	"math/bits"
	"sort"
)

// OpKind classifies how an opcode touches memory.
type OpKind uint8

const (
	KindArith OpKind = iota
	KindLoad
	KindLoadOff
	KindLoadParam
	KindStore
)

// Opcode describes one IR operation. Eval computes a single element; it is
// nil for the memory kinds, which the interpreter handles itself.
type Opcode struct {
	Name string
	Size int
	Srcs int
	Kind OpKind
	Eval func(a, b uint64) uint64
}

// IsLoad reports whether the opcode reads an array.
func (op Opcode) IsLoad() bool {
	return op.Kind == KindLoad || op.Kind == KindLoadOff
}

var widthSuffix = map[int]string{1: "b", 2: "w", 4: "l", 8: "q"}

// SizedName appends the width suffix for size to prefix ("add", 2 -> "addw").
func SizedName(prefix string, size int) string {
	return prefix + widthSuffix[size]
}

var opcodes = buildOpcodes()

func LookupOpcode(name string) (Opcode, bool) {
	op, ok := opcodes[name]
	return op, ok
}

// Opcodes returns every known opcode name in sorted order.
func Opcodes() []string {
	names := make([]string, 0, len(opcodes))
	for name := range opcodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func buildOpcodes() map[string]Opcode {
	ops := make(map[string]Opcode)
	add := func(op Opcode) { ops[op.Name] = op }

	binary := func(prefix string, sizes []int, eval func(size int) func(a, b uint64) uint64) {
		for _, size := range sizes {
			add(Opcode{Name: prefix + widthSuffix[size], Size: size, Srcs: 2, Kind: KindArith, Eval: eval(size)})
		}
	}
	all := []int{1, 2, 4, 8}
	narrow := []int{1, 2, 4}

	for _, size := range all {
		sfx := widthSuffix[size]
		add(Opcode{Name: "load" + sfx, Size: size, Srcs: 1, Kind: KindLoad})
		add(Opcode{Name: "loadoff" + sfx, Size: size, Srcs: 2, Kind: KindLoadOff})
		add(Opcode{Name: "loadp" + sfx, Size: size, Srcs: 1, Kind: KindLoadParam})
		add(Opcode{Name: "store" + sfx, Size: size, Srcs: 1, Kind: KindStore})
		add(Opcode{Name: "copy" + sfx, Size: size, Srcs: 1, Kind: KindArith,
			Eval: func(a, _ uint64) uint64 { return a }})
	}

	binary("add", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return Truncate(a+b, size) }
	})
	binary("sub", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return Truncate(a-b, size) }
	})
	binary("addss", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return AddSatSigned(a, b, size) }
	})
	binary("addus", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return AddSatUnsigned(a, b, size) }
	})
	binary("subss", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return SubSatSigned(a, b, size) }
	})
	binary("subus", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return SubSatUnsigned(a, b, size) }
	})
	binary("and", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return a & b }
	})
	binary("andn", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return Truncate(a&^b, size) }
	})
	binary("or", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return a | b }
	})
	binary("xor", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return a ^ b }
	})
	binary("cmpeq", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return mask(a == b, size) }
	})
	binary("cmpgts", all, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return mask(SignExtend(a, size) > SignExtend(b, size), size) }
	})

	binary("mull", narrow, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return Truncate(a*b, size) }
	})
	binary("maxs", narrow, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 {
			if SignExtend(a, size) >= SignExtend(b, size) {
				return a
			}
			return b
		}
	})
	binary("maxu", narrow, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return max(a, b) }
	})
	binary("mins", narrow, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 {
			if SignExtend(a, size) <= SignExtend(b, size) {
				return a
			}
			return b
		}
	})
	binary("minu", narrow, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return min(a, b) }
	})
	binary("avgs", narrow, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 {
			return Truncate(uint64((SignExtend(a, size)+SignExtend(b, size)+1)>>1), size)
		}
	})
	binary("avgu", narrow, func(size int) func(a, b uint64) uint64 {
		return func(a, b uint64) uint64 { return (a + b + 1) >> 1 }
	})

	add(Opcode{Name: "addf", Size: 4, Srcs: 2, Eval: float32Op(func(x, y float32) float32 { return x + y })})
	add(Opcode{Name: "subf", Size: 4, Srcs: 2, Eval: float32Op(func(x, y float32) float32 { return x - y })})
	add(Opcode{Name: "addd", Size: 8, Srcs: 2, Eval: float64Op(func(x, y float64) float64 { return x + y })})
	add(Opcode{Name: "subd", Size: 8, Srcs: 2, Eval: float64Op(func(x, y float64) float64 { return x - y })})

	return ops
}

func float32Op(f func(x, y float32) float32) func(a, b uint64) uint64 {
	return func(a, b uint64) uint64 {
		return uint64(math.Float32bits(f(math.Float32frombits(uint32(a)), math.Float32frombits(uint32(b)))))
	}
}

func float64Op(f func(x, y float64) float64) func(a, b uint64) uint64 {
	return func(a, b uint64) uint64 {
		return math.Float64bits(f(math.Float64frombits(a), math.Float64frombits(b)))
	}
}

func mask(cond bool, size int) uint64 {
	if cond {
		return Truncate(^uint64(0), size)
	}
	return 0
}

// Truncate keeps the low size bytes of v.
func Truncate(v uint64, size int) uint64 {
	if size >= 8 {
		return v
	}
	return v & (1<<(8*size) - 1)
}

// SignExtend interprets the low size bytes of v as a signed integer.
func SignExtend(v uint64, size int) int64 {
	shift := 64 - 8*size
	return int64(v<<shift) >> shift
}

func signedRange(size int) (lo, hi int64) {
	if size >= 8 {
		return math.MinInt64, math.MaxInt64
	}
	hi = 1<<(8*size-1) - 1
	return -hi - 1, hi
}

// AddSatSigned adds two signed size-byte values, clamping to the range of
// the type instead of wrapping.
func AddSatSigned(a, b uint64, size int) uint64 {
	x, y := SignExtend(a, size), SignExtend(b, size)
	lo, hi := signedRange(size)
	if size >= 8 {
		s := x + y
		switch {
		case x > 0 && y > 0 && s < 0:
			s = hi
		case x < 0 && y < 0 && s >= 0:
			s = lo
		}
		return uint64(s)
	}
	return Truncate(uint64(min(max(x+y, lo), hi)), size)
}

func SubSatSigned(a, b uint64, size int) uint64 {
	x, y := SignExtend(a, size), SignExtend(b, size)
	lo, hi := signedRange(size)
	if size >= 8 {
		s := x - y
		switch {
		case x >= 0 && y < 0 && s < 0:
			s = hi
		case x < 0 && y > 0 && s >= 0:
			s = lo
		}
		return uint64(s)
	}
	return Truncate(uint64(min(max(x-y, lo), hi)), size)
}

func AddSatUnsigned(a, b uint64, size int) uint64 {
	a, b = Truncate(a, size), Truncate(b, size)
	limit := Truncate(^uint64(0), size)
	s, carry := bits.Add64(a, b, 0)
	if carry != 0 || s > limit {
		return limit
	}
	return s
}

func SubSatUnsigned(a, b uint64, size int) uint64 {
	a, b = Truncate(a, size), Truncate(b, size)
	if a < b {
		return 0
	}
	return a - b
}

// Replicate copies the low size bytes of v into n adjacent lanes.
func Replicate(v uint64, size, n int) uint64 {
	v = Truncate(v, size)
	out := v
	for i := 1; i < n; i++ {
		out |= v << (8 * size * i)
	}
	return out
}

// EvalLanes applies op to each of the n lanes packed into a and b.
func (op Opcode) EvalLanes(a, b uint64, n int) uint64 {
	if n <= 1 {
		return op.Eval(a, b)
	}
	bitsPerLane := 8 * op.Size
	var out uint64
	for i := 0; i < n; i++ {
		shift := bitsPerLane * i
		x := Truncate(a>>shift, op.Size)
		y := Truncate(b>>shift, op.Size)
		out |= Truncate(op.Eval(x, y), op.Size) << shift
	}
	return out
}
