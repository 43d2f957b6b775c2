package mips

import (
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/msajit/internal/asm"
)

// labelState is either pendingLabel or boundLabel.
type labelState interface {
	isLabelState()
}

// pendingLabel has been branched to but not yet placed.
type pendingLabel struct {
	refs int
}

// boundLabel has a fixed code offset.
type boundLabel struct {
	pos int
}

func (pendingLabel) isLabelState() {}
func (boundLabel) isLabelState()   {}

type fixup struct {
	pos   int
	label asm.Label
}

type listingEntry struct {
	pos   int
	label bool
	text  string
}

// Context accumulates MIPS machine code. It implements asm.Context.
type Context struct {
	text     []byte
	labels   map[asm.Label]labelState
	fixups   []fixup
	resolved bool

	listing     bool
	listEntries []listingEntry
}

var _ asm.Context = (*Context)(nil)

// NewContext returns an empty context. When listing is set every emitted
// word is recorded with a disassembly line.
func NewContext(listing bool) *Context {
	return &Context{
		labels:  make(map[asm.Label]labelState),
		listing: listing,
	}
}

func (c *Context) EmitBytes(data []byte) {
	c.text = append(c.text, data...)
}

// Len is the current cursor position in bytes.
func (c *Context) Len() int { return len(c.text) }

func (c *Context) emit32(word uint32, text string) int {
	pos := len(c.text)
	c.text = binary.LittleEndian.AppendUint32(c.text, word)
	if c.listing {
		c.listEntries = append(c.listEntries, listingEntry{pos: pos, text: text})
	}
	return pos
}

func (c *Context) SetLabel(label asm.Label) error {
	if c.resolved {
		return ErrFixupsResolved
	}
	if st, ok := c.labels[label]; ok {
		if _, bound := st.(boundLabel); bound {
			return fmt.Errorf("mips asm: label %d already bound", label)
		}
	}
	c.labels[label] = boundLabel{pos: len(c.text)}
	if c.listing {
		c.listEntries = append(c.listEntries, listingEntry{
			pos:   len(c.text),
			label: true,
			text:  labelName(label),
		})
	}
	return nil
}

func (c *Context) GetLabel(label asm.Label) (int, bool) {
	if st, ok := c.labels[label].(boundLabel); ok {
		return st.pos, true
	}
	return 0, false
}

// PendingFixups reports how many branches still wait for their label.
func (c *Context) PendingFixups() int {
	return len(c.fixups)
}

// emitBranch writes a branch whose 16-bit offset field targets label. A
// bound label is encoded immediately, anything else records a fixup.
func (c *Context) emitBranch(word uint32, label asm.Label, text string) error {
	if c.resolved {
		return ErrFixupsResolved
	}
	if !label.Valid() {
		return fmt.Errorf("%w: label %d", ErrOutOfRange, label)
	}
	pos := len(c.text)
	if target, ok := c.GetLabel(label); ok {
		off, err := branchOffset(pos, target)
		if err != nil {
			return err
		}
		c.emit32(word|uint32(off), text)
		return nil
	}
	st, _ := c.labels[label].(pendingLabel)
	st.refs++
	c.labels[label] = st
	c.emit32(word, text)
	c.fixups = append(c.fixups, fixup{pos: pos, label: label})
	return nil
}

// ResolveFixups patches every forward branch. It may run only once.
func (c *Context) ResolveFixups() error {
	if c.resolved {
		return ErrFixupsResolved
	}
	for _, fx := range c.fixups {
		target, ok := c.GetLabel(fx.label)
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnresolvedLabel, labelName(fx.label))
		}
		off, err := branchOffset(fx.pos, target)
		if err != nil {
			return err
		}
		word := binary.LittleEndian.Uint32(c.text[fx.pos:])
		word = word&^0xffff | uint32(off)
		binary.LittleEndian.PutUint32(c.text[fx.pos:], word)
	}
	c.fixups = nil
	c.resolved = true
	return nil
}

// AlignTo pads the code with nops up to the boundary.
func (c *Context) AlignTo(boundary int) {
	for boundary > 0 && len(c.text)%boundary != 0 {
		c.emit32(0, "nop")
	}
}

// Program returns the finished code. Fixups must have been resolved.
func (c *Context) Program() (asm.Program, error) {
	if !c.resolved {
		return asm.Program{}, fmt.Errorf("mips asm: program requested before fixups were resolved")
	}
	return asm.NewProgram(c.text, c.renderListing()), nil
}

func (c *Context) renderListing() []string {
	if !c.listing {
		return nil
	}
	lines := make([]string, 0, len(c.listEntries))
	for _, e := range c.listEntries {
		if e.label {
			lines = append(lines, e.text+":")
			continue
		}
		word := binary.LittleEndian.Uint32(c.text[e.pos:])
		lines = append(lines, fmt.Sprintf("%6x:  %08x    %s", e.pos, word, e.text))
	}
	return lines
}

func labelName(l asm.Label) string {
	return fmt.Sprintf("L%d", int(l))
}
