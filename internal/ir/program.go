package ir

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidProgram = errors.New("ir: invalid program")

// VarCount is the size of the variable table. Indices are fixed per role so
// they line up with the executor slots.
const VarCount = 64

const (
	D1 = iota
	D2
	D3
	D4
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	A1
	A2
	A3
	A4
	C1
	C2
	C3
	C4
	C5
	C6
	C7
	C8
	P1
	P2
	P3
	P4
	P5
	P6
	P7
	P8
	T1
	T2
	T3
	T4
	T5
	T6
	T7
	T8
	T9
	T10
	T11
	T12
	T13
	T14
	T15
	T16
)

const (
	NumDest  = 4
	NumSrc   = 8
	NumAcc   = 4
	NumConst = 8
	NumParam = 8
	NumTemp  = 16
)

type Role uint8

const (
	RoleNone Role = iota
	RoleDest
	RoleSource
	RoleAccumulator
	RoleConst
	RoleParam
	RoleTemp
)

func (r Role) String() string {
	switch r {
	case RoleDest:
		return "dest"
	case RoleSource:
		return "source"
	case RoleAccumulator:
		return "accumulator"
	case RoleConst:
		return "const"
	case RoleParam:
		return "param"
	case RoleTemp:
		return "temp"
	default:
		return "none"
	}
}

// IsArray reports whether variables of this role live in memory and are
// walked by a pointer.
func (r Role) IsArray() bool {
	return r == RoleDest || r == RoleSource
}

var roleRanges = []struct {
	role   Role
	prefix string
	base   int
	count  int
}{
	{RoleDest, "d", D1, NumDest},
	{RoleSource, "s", S1, NumSrc},
	{RoleAccumulator, "a", A1, NumAcc},
	{RoleConst, "c", C1, NumConst},
	{RoleParam, "p", P1, NumParam},
	{RoleTemp, "t", T1, NumTemp},
}

// RoleOf returns the role implied by a variable index.
func RoleOf(v int) Role {
	for _, rr := range roleRanges {
		if v >= rr.base && v < rr.base+rr.count {
			return rr.role
		}
	}
	return RoleNone
}

// VarName returns the canonical name of a variable slot ("s1", "t12").
func VarName(v int) string {
	for _, rr := range roleRanges {
		if v >= rr.base && v < rr.base+rr.count {
			return rr.prefix + strconv.Itoa(v-rr.base+1)
		}
	}
	return fmt.Sprintf("var%d", v)
}

// ParseVarName is the inverse of VarName.
func ParseVarName(name string) (int, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, rr := range roleRanges {
		if !strings.HasPrefix(name, rr.prefix) {
			continue
		}
		n, err := strconv.Atoi(name[len(rr.prefix):])
		if err != nil || n < 1 || n > rr.count {
			break
		}
		return rr.base + n - 1, nil
	}
	return 0, fmt.Errorf("%w: unknown variable %q", ErrInvalidProgram, name)
}

// ArrayAlignment is the byte alignment an aligned array promises for its
// base address and, in a 2D kernel, its row stride.
const ArrayAlignment = 4

type Variable struct {
	Name  string
	Role  Role
	Size  int
	Value int64

	// Aligned promises that the array starts on an ArrayAlignment boundary.
	Aligned bool
}

func (v Variable) Declared() bool { return v.Role != RoleNone }

type InsnFlags uint8

const (
	FlagInvariant InsnFlags = 1 << iota
	FlagX2
	FlagX4
)

const (
	MaxDest = 2
	MaxSrc  = 4
)

type Instruction struct {
	Opcode string
	Flags  InsnFlags
	Dest   []int
	Src    []int
}

func (in Instruction) Invariant() bool { return in.Flags&FlagInvariant != 0 }

// Lanes is the number of opcode-width lanes packed into each element of the
// instruction's operands: 2 with x2, 4 with x4 and 1 otherwise.
func (in Instruction) Lanes() int {
	switch {
	case in.Flags&FlagX4 != 0:
		return 4
	case in.Flags&FlagX2 != 0:
		return 2
	}
	return 1
}

func (in Instruction) String() string {
	var sb strings.Builder
	if in.Flags&FlagX2 != 0 {
		sb.WriteString("x2 ")
	}
	if in.Flags&FlagX4 != 0 {
		sb.WriteString("x4 ")
	}
	sb.WriteString(in.Opcode)
	for i, v := range append(append([]int(nil), in.Dest...), in.Src...) {
		if i == 0 {
			sb.WriteByte(' ')
		} else {
			sb.WriteString(", ")
		}
		sb.WriteString(VarName(v))
	}
	return sb.String()
}

// Program is one kernel: a variable table and an ordered instruction list.
type Program struct {
	Name string
	Vars [VarCount]Variable
	Code []Instruction

	// TwoD wraps the kernel in a per-row loop. The row count is read from
	// params[A1] and the row stride of each array from params[var].
	TwoD bool
}

func NewProgram(name string) *Program {
	return &Program{Name: name}
}

// Declare adds an array, accumulator, parameter or temporary of the given
// element size. The role follows from the index.
func (p *Program) Declare(v, size int) error {
	if v < 0 || v >= VarCount {
		return fmt.Errorf("%w: variable index %d", ErrInvalidProgram, v)
	}
	role := RoleOf(v)
	switch role {
	case RoleNone:
		return fmt.Errorf("%w: variable index %d has no role", ErrInvalidProgram, v)
	case RoleConst:
		return fmt.Errorf("%w: %s must be declared with DeclareConst", ErrInvalidProgram, VarName(v))
	}
	if !validSize(size) {
		return fmt.Errorf("%w: %s has size %d", ErrInvalidProgram, VarName(v), size)
	}
	if p.Vars[v].Declared() {
		return fmt.Errorf("%w: %s declared twice", ErrInvalidProgram, VarName(v))
	}
	p.Vars[v] = Variable{Name: VarName(v), Role: role, Size: size}
	return nil
}

// SetAligned marks array v as starting on an ArrayAlignment boundary.
func (p *Program) SetAligned(v int) error {
	if v < 0 || v >= VarCount || !p.Vars[v].Role.IsArray() {
		return fmt.Errorf("%w: only a declared array can be aligned, not %s", ErrInvalidProgram, VarName(v))
	}
	p.Vars[v].Aligned = true
	return nil
}

func (p *Program) DeclareConst(v, size int, value int64) error {
	if RoleOf(v) != RoleConst {
		return fmt.Errorf("%w: %s is not a constant slot", ErrInvalidProgram, VarName(v))
	}
	if !validSize(size) {
		return fmt.Errorf("%w: %s has size %d", ErrInvalidProgram, VarName(v), size)
	}
	if p.Vars[v].Declared() {
		return fmt.Errorf("%w: %s declared twice", ErrInvalidProgram, VarName(v))
	}
	p.Vars[v] = Variable{Name: VarName(v), Role: RoleConst, Size: size, Value: value}
	return nil
}

// Append adds one instruction. The first operand is the destination, the
// rest are sources.
func (p *Program) Append(opcode string, operands ...int) error {
	if len(operands) == 0 {
		return fmt.Errorf("%w: %s has no operands", ErrInvalidProgram, opcode)
	}
	return p.AppendInsn(Instruction{
		Opcode: opcode,
		Dest:   operands[:1],
		Src:    operands[1:],
	})
}

func (p *Program) AppendInsn(in Instruction) error {
	if err := p.checkInsn(in); err != nil {
		return err
	}
	in.Dest = append([]int(nil), in.Dest...)
	in.Src = append([]int(nil), in.Src...)
	p.Code = append(p.Code, in)
	return nil
}

func (p *Program) checkInsn(in Instruction) error {
	op, ok := LookupOpcode(in.Opcode)
	if !ok {
		return fmt.Errorf("%w: unknown opcode %q", ErrInvalidProgram, in.Opcode)
	}
	if len(in.Dest) != 1 || len(in.Dest) > MaxDest {
		return fmt.Errorf("%w: %s wants one destination", ErrInvalidProgram, in.Opcode)
	}
	if len(in.Src) != op.Srcs || len(in.Src) > MaxSrc {
		return fmt.Errorf("%w: %s wants %d sources, got %d", ErrInvalidProgram, in.Opcode, op.Srcs, len(in.Src))
	}
	if in.Flags&FlagX2 != 0 && in.Flags&FlagX4 != 0 {
		return fmt.Errorf("%w: %s has both x2 and x4", ErrInvalidProgram, in.Opcode)
	}
	width := op.Size * in.Lanes()
	if !validSize(width) {
		return fmt.Errorf("%w: x%d %s needs %d byte elements", ErrInvalidProgram, in.Lanes(), in.Opcode, width)
	}
	for _, v := range append(append([]int(nil), in.Dest...), in.Src...) {
		if v < 0 || v >= VarCount || !p.Vars[v].Declared() {
			return fmt.Errorf("%w: %s uses undeclared %s", ErrInvalidProgram, in.Opcode, VarName(v))
		}
		if p.Vars[v].Role == RoleAccumulator {
			return fmt.Errorf("%w: %s does not accept accumulator %s", ErrInvalidProgram, in.Opcode, VarName(v))
		}
	}

	dest := p.Vars[in.Dest[0]]
	switch dest.Role {
	case RoleSource, RoleConst, RoleParam:
		return fmt.Errorf("%w: %s writes read-only %s", ErrInvalidProgram, in.Opcode, dest.Name)
	}
	if dest.Size != width {
		return fmt.Errorf("%w: %s writes %s of size %d, want %d", ErrInvalidProgram, in.Opcode, dest.Name, dest.Size, width)
	}

	for i, v := range in.Src {
		src := p.Vars[v]
		if src.Role == RoleDest {
			return fmt.Errorf("%w: %s reads destination %s", ErrInvalidProgram, in.Opcode, src.Name)
		}
		if op.Kind == KindLoadOff && i == 1 {
			if src.Role != RoleConst && src.Role != RoleParam {
				return fmt.Errorf("%w: %s offset %s must be a constant or parameter", ErrInvalidProgram, in.Opcode, src.Name)
			}
			continue
		}
		// Constants and parameters are broadcast, so their declared width
		// need not match.
		if src.Role == RoleConst || src.Role == RoleParam {
			continue
		}
		if src.Size != width {
			return fmt.Errorf("%w: %s reads %s of size %d, want %d", ErrInvalidProgram, in.Opcode, src.Name, src.Size, width)
		}
	}

	switch op.Kind {
	case KindLoad, KindLoadOff:
		if p.Vars[in.Src[0]].Role != RoleSource {
			return fmt.Errorf("%w: %s must read a source array", ErrInvalidProgram, in.Opcode)
		}
	case KindLoadParam:
		if r := p.Vars[in.Src[0]].Role; r != RoleConst && r != RoleParam {
			return fmt.Errorf("%w: %s must read a constant or parameter", ErrInvalidProgram, in.Opcode)
		}
	case KindStore:
		if dest.Role != RoleDest {
			return fmt.Errorf("%w: %s must write a destination array", ErrInvalidProgram, in.Opcode)
		}
	}
	return nil
}

// Validate checks that every instruction is well formed and that every
// temporary is written before it is read.
func (p *Program) Validate() error {
	if len(p.Code) == 0 {
		return fmt.Errorf("%w: %q has no instructions", ErrInvalidProgram, p.Name)
	}
	written := make(map[int]bool)
	for _, in := range p.Code {
		if err := p.checkInsn(in); err != nil {
			return err
		}
		for _, v := range in.Src {
			if p.Vars[v].Role == RoleTemp && !written[v] {
				return fmt.Errorf("%w: %s read before written", ErrInvalidProgram, VarName(v))
			}
		}
		written[in.Dest[0]] = true
	}
	return nil
}

// Arrays lists the declared source and destination variables in index order.
func (p *Program) Arrays() []int {
	var out []int
	for v := range p.Vars {
		if p.Vars[v].Role.IsArray() {
			out = append(out, v)
		}
	}
	return out
}

func (p *Program) Clone() *Program {
	cp := *p
	cp.Code = make([]Instruction, len(p.Code))
	for i, in := range p.Code {
		in.Dest = append([]int(nil), in.Dest...)
		in.Src = append([]int(nil), in.Src...)
		cp.Code[i] = in
	}
	return &cp
}

func (p *Program) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "program %s\n", p.Name)
	for v, vr := range p.Vars {
		if !vr.Declared() {
			continue
		}
		fmt.Fprintf(&sb, "  .%s %s size=%d", vr.Role, VarName(v), vr.Size)
		if vr.Role == RoleConst {
			fmt.Fprintf(&sb, " value=%d", vr.Value)
		}
		if vr.Aligned {
			sb.WriteString(" aligned")
		}
		sb.WriteByte('\n')
	}
	for _, in := range p.Code {
		sb.WriteString("  ")
		if in.Invariant() {
			sb.WriteString("[inv] ")
		}
		sb.WriteString(in.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func validSize(size int) bool {
	switch size {
	case 1, 2, 4, 8:
		return true
	}
	return false
}
