package ir

import "fmt"

// Lower rewrites p so that arrays are only touched by load and store
// opcodes, constants and parameters only by loadp, and every other opcode
// works on temporaries. Broadcasts of constants and parameters are marked
// invariant. The input program is not modified.
func Lower(p *Program) (*Program, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	out := p.Clone()
	out.Code = nil
	l := &lowering{
		in:        p,
		out:       out,
		loaded:    make(map[int]int),
		broadcast: make(map[scalarKey]int),
	}
	for _, in := range p.Code {
		if err := l.lower(in); err != nil {
			return nil, err
		}
	}
	l.markInvariants()
	return out, nil
}

type scalarKey struct {
	v     int
	size  int
	lanes int
}

type lowering struct {
	in        *Program
	out       *Program
	loaded    map[int]int
	broadcast map[scalarKey]int
}

func (l *lowering) newTemp(size int) (int, error) {
	for v := T1; v < T1+NumTemp; v++ {
		if !l.out.Vars[v].Declared() {
			if err := l.out.Declare(v, size); err != nil {
				return 0, err
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: %q needs more than %d temporaries", ErrInvalidProgram, l.in.Name, NumTemp)
}

func (l *lowering) emit(op string, flags InsnFlags, dest int, src ...int) {
	l.out.Code = append(l.out.Code, Instruction{
		Opcode: op,
		Flags:  flags,
		Dest:   []int{dest},
		Src:    src,
	})
}

// laneFlags maps a lane count back to its instruction flag.
func laneFlags(lanes int) InsnFlags {
	switch lanes {
	case 2:
		return FlagX2
	case 4:
		return FlagX4
	}
	return 0
}

// operand returns a temporary holding v for an instruction on size-byte
// lanes, lanes to an element. Sources are loaded whole; constants and
// parameters are broadcast into every lane.
func (l *lowering) operand(v, size, lanes int) (int, error) {
	width := size * lanes
	switch l.in.Vars[v].Role {
	case RoleSource:
		if t, ok := l.loaded[v]; ok {
			return t, nil
		}
		t, err := l.newTemp(width)
		if err != nil {
			return 0, err
		}
		l.emit(SizedName("load", width), 0, t, v)
		l.loaded[v] = t
		return t, nil
	case RoleConst, RoleParam:
		key := scalarKey{v, size, lanes}
		if t, ok := l.broadcast[key]; ok {
			return t, nil
		}
		t, err := l.newTemp(width)
		if err != nil {
			return 0, err
		}
		l.emit(SizedName("loadp", size), laneFlags(lanes), t, v)
		l.broadcast[key] = t
		return t, nil
	}
	return v, nil
}

func (l *lowering) lower(in Instruction) error {
	op, _ := LookupOpcode(in.Opcode)
	dest := in.Dest[0]
	lanes := in.Lanes()
	width := op.Size * lanes

	switch op.Kind {
	case KindLoad, KindLoadOff, KindLoadParam:
		if l.in.Vars[dest].Role != RoleDest {
			l.out.Code = append(l.out.Code, in)
			return nil
		}
		t, err := l.newTemp(width)
		if err != nil {
			return err
		}
		l.emit(in.Opcode, in.Flags, t, in.Src...)
		l.emit(SizedName("store", width), 0, dest, t)
		return nil
	case KindStore:
		src, err := l.operand(in.Src[0], op.Size, lanes)
		if err != nil {
			return err
		}
		l.emit(in.Opcode, in.Flags, dest, src)
		return nil
	}

	srcs := make([]int, len(in.Src))
	for i, v := range in.Src {
		t, err := l.operand(v, op.Size, lanes)
		if err != nil {
			return err
		}
		srcs[i] = t
	}
	if l.in.Vars[dest].Role != RoleDest {
		l.emit(in.Opcode, in.Flags, dest, srcs...)
		return nil
	}
	t, err := l.newTemp(width)
	if err != nil {
		return err
	}
	l.emit(in.Opcode, in.Flags, t, srcs...)
	l.emit(SizedName("store", width), 0, dest, t)
	return nil
}

// markInvariants flags loadp instructions whose temporary is written nowhere
// else, so they can be computed once before the loop.
func (l *lowering) markInvariants() {
	writes := make(map[int]int)
	for _, in := range l.out.Code {
		writes[in.Dest[0]]++
	}
	for i, in := range l.out.Code {
		op, _ := LookupOpcode(in.Opcode)
		if op.Kind == KindLoadParam && writes[in.Dest[0]] == 1 {
			l.out.Code[i].Flags |= FlagInvariant
		}
	}
}
