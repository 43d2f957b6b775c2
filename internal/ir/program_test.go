package ir

import (
	"errors"
	"strings"
	"testing"
)

func TestVarNameRoundTrip(t *testing.T) {
	for v := 0; v < VarCount; v++ {
		if RoleOf(v) == RoleNone {
			continue
		}
		name := VarName(v)
		got, err := ParseVarName(name)
		if err != nil {
			t.Fatalf("ParseVarName(%q): %v", name, err)
		}
		if got != v {
			t.Fatalf("ParseVarName(%q)=%d, want %d", name, got, v)
		}
	}

	for _, bad := range []string{"", "x1", "d0", "d5", "s9", "t17", "c", "p1x"} {
		if _, err := ParseVarName(bad); err == nil {
			t.Fatalf("ParseVarName(%q) succeeded", bad)
		}
	}
}

func TestRoleOf(t *testing.T) {
	tests := []struct {
		v    int
		want Role
	}{
		{D1, RoleDest},
		{D1 + 3, RoleDest},
		{S1, RoleSource},
		{S1 + 7, RoleSource},
		{A1, RoleAccumulator},
		{C1 + 7, RoleConst},
		{P1, RoleParam},
		{T1 + 15, RoleTemp},
		{T1 + 16, RoleNone},
	}
	for _, tt := range tests {
		if got := RoleOf(tt.v); got != tt.want {
			t.Fatalf("RoleOf(%d)=%s, want %s", tt.v, got, tt.want)
		}
	}
}

func newTestProgram(t *testing.T) *Program {
	t.Helper()
	p := NewProgram("test")
	for _, decl := range []struct{ v, size int }{
		{D1, 1}, {D1 + 1, 1}, {D1 + 2, 2},
		{S1, 1}, {S1 + 1, 1}, {S1 + 2, 2},
		{A1, 4}, {P1, 4}, {T1, 1},
	} {
		if err := p.Declare(decl.v, decl.size); err != nil {
			t.Fatalf("Declare(%s): %v", VarName(decl.v), err)
		}
	}
	if err := p.DeclareConst(C1, 1, 5); err != nil {
		t.Fatalf("DeclareConst: %v", err)
	}
	return p
}

func TestDeclareRejects(t *testing.T) {
	p := newTestProgram(t)
	tests := []struct {
		name string
		err  error
	}{
		{"twice", p.Declare(D1, 1)},
		{"bad size", p.Declare(D1+3, 3)},
		{"const through Declare", p.Declare(C1+1, 1)},
		{"out of table", p.Declare(VarCount, 1)},
		{"no role", p.Declare(T1+NumTemp, 1)},
		{"const slot", p.DeclareConst(S1+3, 1, 0)},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, ErrInvalidProgram) {
			t.Fatalf("%s: err=%v, want ErrInvalidProgram", tt.name, tt.err)
		}
	}
}

func TestSetAligned(t *testing.T) {
	p := newTestProgram(t)
	if err := p.SetAligned(S1 + 2); err != nil {
		t.Fatalf("SetAligned(s3): %v", err)
	}
	if !p.Vars[S1+2].Aligned || p.Vars[S1].Aligned {
		t.Fatalf("Aligned=%v/%v, want true/false", p.Vars[S1+2].Aligned, p.Vars[S1].Aligned)
	}
	if !strings.Contains(p.String(), ".source s3 size=2 aligned") {
		t.Fatalf("String() does not mark s3 aligned:\n%s", p)
	}
	for _, v := range []int{T1, P1, C1, S1 + 4, -1} {
		if err := p.SetAligned(v); !errors.Is(err, ErrInvalidProgram) {
			t.Fatalf("SetAligned(%d): err=%v, want ErrInvalidProgram", v, err)
		}
	}
}

func TestAppendRejects(t *testing.T) {
	tests := []struct {
		name     string
		opcode   string
		operands []int
	}{
		{"unknown opcode", "frob", []int{D1, S1, S1 + 1}},
		{"no operands", "addb", nil},
		{"too few sources", "addb", []int{D1, S1}},
		{"writes source", "addb", []int{S1, S1 + 1, S1}},
		{"writes const", "copyb", []int{C1, S1}},
		{"dest size", "addb", []int{D1 + 2, S1, S1 + 1}},
		{"source size", "addb", []int{D1, S1, S1 + 2}},
		{"reads dest", "addb", []int{D1, D1 + 1, S1}},
		{"undeclared", "addb", []int{D1, S1, S1 + 5}},
		{"accumulator", "addl", []int{A1, P1, P1}},
		{"loadoff from source", "loadoffb", []int{D1, S1, S1 + 1}},
		{"load from temp", "loadb", []int{D1, T1}},
		{"loadp from source", "loadpb", []int{T1, S1}},
		{"store to temp", "storeb", []int{T1, S1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newTestProgram(t)
			err := p.Append(tt.opcode, tt.operands...)
			if !errors.Is(err, ErrInvalidProgram) {
				t.Fatalf("err=%v, want ErrInvalidProgram", err)
			}
			if len(p.Code) != 0 {
				t.Fatalf("rejected instruction was appended")
			}
		})
	}
}

func TestAppendBothWidthFlags(t *testing.T) {
	p := newTestProgram(t)
	err := p.AppendInsn(Instruction{Opcode: "addb", Flags: FlagX2 | FlagX4, Dest: []int{D1}, Src: []int{S1, S1 + 1}})
	if !errors.Is(err, ErrInvalidProgram) {
		t.Fatalf("err=%v, want ErrInvalidProgram", err)
	}
}

func TestAppendLaneWidths(t *testing.T) {
	p := newTestProgram(t)
	if err := p.Declare(D1+3, 4); err != nil {
		t.Fatal(err)
	}
	if err := p.Declare(S1+3, 4); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name  string
		in    Instruction
		valid bool
	}{
		{"x2 on two byte arrays", Instruction{Opcode: "addb", Flags: FlagX2, Dest: []int{D1 + 2}, Src: []int{S1 + 2, S1 + 2}}, true},
		{"x4 on four byte arrays", Instruction{Opcode: "addb", Flags: FlagX4, Dest: []int{D1 + 3}, Src: []int{S1 + 3, C1}}, true},
		{"x2 loadoff", Instruction{Opcode: "loadoffw", Flags: FlagX2, Dest: []int{D1 + 3}, Src: []int{S1 + 3, C1}}, true},
		{"x2 on one byte arrays", Instruction{Opcode: "addb", Flags: FlagX2, Dest: []int{D1}, Src: []int{S1, S1 + 1}}, false},
		{"x4 on two byte arrays", Instruction{Opcode: "addb", Flags: FlagX4, Dest: []int{D1 + 2}, Src: []int{S1 + 2, S1 + 2}}, false},
		{"x4 addl is sixteen bytes", Instruction{Opcode: "addl", Flags: FlagX4, Dest: []int{D1 + 3}, Src: []int{S1 + 3, S1 + 3}}, false},
	}
	for _, tt := range tests {
		err := p.AppendInsn(tt.in)
		if tt.valid && err != nil {
			t.Fatalf("%s: %v", tt.name, err)
		}
		if !tt.valid && !errors.Is(err, ErrInvalidProgram) {
			t.Fatalf("%s: err=%v, want ErrInvalidProgram", tt.name, err)
		}
	}
}

func TestInstructionLanes(t *testing.T) {
	tests := []struct {
		flags InsnFlags
		want  int
	}{
		{0, 1},
		{FlagInvariant, 1},
		{FlagX2, 2},
		{FlagX4, 4},
	}
	for _, tt := range tests {
		if got := (Instruction{Flags: tt.flags}).Lanes(); got != tt.want {
			t.Fatalf("Lanes(%d)=%d, want %d", tt.flags, got, tt.want)
		}
	}
}

func TestAppendAcceptsBroadcastOperands(t *testing.T) {
	p := newTestProgram(t)
	// c1 is one byte and p1 four; both broadcast to the op width.
	if err := p.Append("addw", D1+2, S1+2, C1); err != nil {
		t.Fatalf("addw with constant: %v", err)
	}
	if err := p.Append("loadoffb", D1, S1, P1); err != nil {
		t.Fatalf("loadoffb with parameter: %v", err)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	p := newTestProgram(t)
	if err := p.Validate(); !errors.Is(err, ErrInvalidProgram) {
		t.Fatalf("empty program: err=%v", err)
	}

	if err := p.Append("addb", D1, T1, S1); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := p.Validate(); err == nil || !strings.Contains(err.Error(), "t1 read before written") {
		t.Fatalf("temp read before write: err=%v", err)
	}

	p = newTestProgram(t)
	for _, ops := range [][]int{{T1, S1, C1}, {D1, T1, S1 + 1}} {
		if err := p.Append("addb", ops...); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestCloneIsDeep(t *testing.T) {
	p := newTestProgram(t)
	if err := p.Append("addb", D1, S1, S1+1); err != nil {
		t.Fatal(err)
	}
	cp := p.Clone()
	cp.Code[0].Src[0] = S1 + 1
	cp.Vars[D1].Size = 4
	if p.Code[0].Src[0] != S1 || p.Vars[D1].Size != 1 {
		t.Fatalf("Clone shares state with the original")
	}
}

func TestProgramString(t *testing.T) {
	p := newTestProgram(t)
	if err := p.AppendInsn(Instruction{Opcode: "addb", Flags: FlagX2, Dest: []int{D1 + 2}, Src: []int{S1 + 2, C1}}); err != nil {
		t.Fatal(err)
	}
	text := p.String()
	for _, want := range []string{"program test", ".const c1 size=1 value=5", "x2 addb d3, s3, c1"} {
		if !strings.Contains(text, want) {
			t.Fatalf("String() missing %q:\n%s", want, text)
		}
	}
}

func TestArrays(t *testing.T) {
	p := newTestProgram(t)
	got := p.Arrays()
	want := []int{D1, D1 + 1, D1 + 2, S1, S1 + 1, S1 + 2}
	if len(got) != len(want) {
		t.Fatalf("Arrays()=%v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Arrays()=%v, want %v", got, want)
		}
	}
}
