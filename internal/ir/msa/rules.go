package msa

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tinyrange/msajit/internal/ir"
)

var (
	// ErrProgram reports a kernel that cannot be expressed on this target:
	// missing alignment variable, bad sizes, values out of range or too many
	// live registers.
	ErrProgram = errors.New("msa: program error")

	// ErrUnimplemented reports an operation the rule table has no code for.
	ErrUnimplemented = errors.New("msa: unimplemented operation for target")

	ErrMalformedRule = errors.New("msa: malformed rule")
)

// Semantics says how a rule treats its elements. Signed and Unsigned select
// saturating arithmetic for add and sub and the signed or unsigned
// comparison for everything else.
type Semantics uint8

const (
	Wrapping Semantics = iota
	Signed
	Unsigned
	Floating
	Bitwise
)

func (s Semantics) String() string {
	switch s {
	case Wrapping:
		return "wrapping"
	case Signed:
		return "signed"
	case Unsigned:
		return "unsigned"
	case Floating:
		return "float"
	case Bitwise:
		return "bitwise"
	}
	return fmt.Sprintf("Semantics(%d)", uint8(s))
}

// RuleFlags modify how an emission routine reads its operands.
type RuleFlags uint8

const (
	// FlagInvertSecond computes op(a, ^b).
	FlagInvertSecond RuleFlags = 1 << iota
	// FlagSwapOperands computes op(b, a).
	FlagSwapOperands
	// FlagOffsetLoad reads the element a constant number of slots away.
	FlagOffsetLoad
)

// RuleParam is the per-rule data handed to an emission routine.
type RuleParam struct {
	Width int
	Kind  Semantics
	Flags RuleFlags
}

// EmitFunc appends the machine code for one instruction.
type EmitFunc func(c *Compiler, p RuleParam, in ir.Instruction) error

type Rule struct {
	Name  string
	Emit  EmitFunc
	Param RuleParam
}

// Registry maps opcode names to rules. Populate it before the first
// compile; lookups are safe from any number of goroutines once
// registration has stopped.
type Registry struct {
	rules map[string]Rule
}

// Register installs a rule, replacing any earlier rule with the same name.
func (r *Registry) Register(name string, emit EmitFunc, param RuleParam) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty name", ErrMalformedRule)
	case emit == nil:
		return fmt.Errorf("%w: %s has no emission routine", ErrMalformedRule, name)
	}
	switch param.Width {
	case 1, 2, 4, 8:
	default:
		return fmt.Errorf("%w: %s has width %d", ErrMalformedRule, name, param.Width)
	}
	if r.rules == nil {
		r.rules = make(map[string]Rule)
	}
	r.rules[name] = Rule{Name: name, Emit: emit, Param: param}
	return nil
}

func (r *Registry) Lookup(name string) (Rule, bool) {
	rule, ok := r.rules[name]
	return rule, ok
}

// Names lists the registered opcodes in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.rules))
	for name := range r.rules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) mustRegister(name string, emit EmitFunc, param RuleParam) {
	if err := r.Register(name, emit, param); err != nil {
		panic(err)
	}
}

// NewRegistry returns a registry holding every rule this backend
// implements.
func NewRegistry() *Registry {
	r := &Registry{}
	for _, w := range []int{1, 2, 4, 8} {
		r.mustRegister(ir.SizedName("load", w), emitLoad, RuleParam{Width: w})
		r.mustRegister(ir.SizedName("loadoff", w), emitLoad, RuleParam{Width: w, Flags: FlagOffsetLoad})
		r.mustRegister(ir.SizedName("loadp", w), emitLoadParam, RuleParam{Width: w})
		r.mustRegister(ir.SizedName("store", w), emitStore, RuleParam{Width: w})
		r.mustRegister(ir.SizedName("copy", w), emitCopy, RuleParam{Width: w, Kind: Bitwise})

		r.mustRegister(ir.SizedName("add", w), emitAdd, RuleParam{Width: w, Kind: Wrapping})
		r.mustRegister(ir.SizedName("addss", w), emitAdd, RuleParam{Width: w, Kind: Signed})
		r.mustRegister(ir.SizedName("addus", w), emitAdd, RuleParam{Width: w, Kind: Unsigned})
		r.mustRegister(ir.SizedName("sub", w), emitSub, RuleParam{Width: w, Kind: Wrapping})
		r.mustRegister(ir.SizedName("subss", w), emitSub, RuleParam{Width: w, Kind: Signed})
		r.mustRegister(ir.SizedName("subus", w), emitSub, RuleParam{Width: w, Kind: Unsigned})

		r.mustRegister(ir.SizedName("and", w), emitAnd, RuleParam{Width: w, Kind: Bitwise})
		r.mustRegister(ir.SizedName("andn", w), emitAnd, RuleParam{Width: w, Kind: Bitwise, Flags: FlagInvertSecond})
		r.mustRegister(ir.SizedName("or", w), emitOr, RuleParam{Width: w, Kind: Bitwise})
		r.mustRegister(ir.SizedName("xor", w), emitXor, RuleParam{Width: w, Kind: Bitwise})

		r.mustRegister(ir.SizedName("cmpeq", w), emitCmpEq, RuleParam{Width: w, Kind: Bitwise})
		r.mustRegister(ir.SizedName("cmpgts", w), emitCmpLess, RuleParam{Width: w, Kind: Signed, Flags: FlagSwapOperands})
	}
	for _, w := range []int{1, 2, 4} {
		r.mustRegister(ir.SizedName("mull", w), emitMul, RuleParam{Width: w, Kind: Wrapping})
		r.mustRegister(ir.SizedName("maxs", w), emitMax, RuleParam{Width: w, Kind: Signed})
		r.mustRegister(ir.SizedName("maxu", w), emitMax, RuleParam{Width: w, Kind: Unsigned})
		r.mustRegister(ir.SizedName("mins", w), emitMin, RuleParam{Width: w, Kind: Signed})
		r.mustRegister(ir.SizedName("minu", w), emitMin, RuleParam{Width: w, Kind: Unsigned})
		r.mustRegister(ir.SizedName("avgs", w), emitAvg, RuleParam{Width: w, Kind: Signed})
		r.mustRegister(ir.SizedName("avgu", w), emitAvg, RuleParam{Width: w, Kind: Unsigned})
	}
	r.mustRegister("addf", emitAdd, RuleParam{Width: 4, Kind: Floating})
	r.mustRegister("subf", emitSub, RuleParam{Width: 4, Kind: Floating})
	r.mustRegister("addd", emitAdd, RuleParam{Width: 8, Kind: Floating})
	r.mustRegister("subd", emitSub, RuleParam{Width: 8, Kind: Floating})
	return r
}
