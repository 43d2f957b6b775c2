package asm

import (
	"fmt"
	"strings"
)

type Context interface {
	EmitBytes(data []byte)

	GetLabel(label Label) (int, bool)
	SetLabel(label Label) error
}

type Fragment interface {
	Emit(ctx Context) error
}

type Group []Fragment

var (
	_ Fragment = Group{}
)

func (g Group) Emit(ctx Context) error {
	for _, frag := range g {
		if err := frag.Emit(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Label identifies a code position. Ids are small integers below
// LabelCapacity so contexts can keep them in fixed tables.
type Label int

const LabelCapacity = 256

func (l Label) Valid() bool {
	return l >= 0 && l < LabelCapacity
}

type labelDef struct {
	label Label
}

func MarkLabel(label Label) Fragment {
	return &labelDef{label: label}
}

func (l *labelDef) Emit(ctx Context) error {
	if !l.label.Valid() {
		return fmt.Errorf("label %d outside [0, %d)", l.label, LabelCapacity)
	}
	if _, exists := ctx.GetLabel(l.label); exists {
		return fmt.Errorf("label %d already defined", l.label)
	}
	return ctx.SetLabel(l.label)
}

type Program struct {
	code    []byte
	listing []string
}

func (p Program) Bytes() []byte {
	return append([]byte(nil), p.code...)
}

func (p Program) Len() int {
	return len(p.code)
}

// Listing returns one line per emitted word when the program was assembled
// with listing enabled.
func (p Program) Listing() []string {
	return append([]string(nil), p.listing...)
}

func (p Program) ListingText() string {
	var sb strings.Builder
	for _, line := range p.listing {
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func (p Program) Clone() Program {
	return Program{
		code:    append([]byte(nil), p.code...),
		listing: append([]string(nil), p.listing...),
	}
}

func NewProgram(code []byte, listing []string) Program {
	return Program{
		code:    append([]byte(nil), code...),
		listing: append([]string(nil), listing...),
	}
}
