package ir

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Kernel is the on-disk description of a program.
//
//	name: add_const
//	vars:
//	  d1: 1
//	  s1: 1
//	  c1: {size: 1, value: 5}
//	code: |
//	  addb d1, s1, c1
type Kernel struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description"`
	TwoD        bool               `yaml:"two_d"`
	Vars        map[string]VarSpec `yaml:"vars"`
	Code        string             `yaml:"code"`
	Options     KernelOptions      `yaml:"options"`
}

// KernelOptions carries code generation hints stored alongside a kernel.
type KernelOptions struct {
	Unroll int  `yaml:"unroll"`
	Clean  bool `yaml:"clean"`
}

// VarSpec declares one variable. A bare integer is shorthand for the size.
type VarSpec struct {
	Size    int   `yaml:"size"`
	Value   int64 `yaml:"value"`
	Aligned bool  `yaml:"aligned"`
}

// UnmarshalYAML implements yaml.Unmarshaler for VarSpec.
func (v *VarSpec) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&v.Size)
	}
	type plain VarSpec
	return value.Decode((*plain)(v))
}

// LoadKernelFile reads and parses a kernel description from a YAML file.
func LoadKernelFile(path string) (*Kernel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading kernel file: %w", err)
	}
	k, err := ParseKernel(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return k, nil
}

func ParseKernel(data []byte) (*Kernel, error) {
	var k Kernel
	if err := yaml.Unmarshal(data, &k); err != nil {
		return nil, fmt.Errorf("parsing kernel: %w", err)
	}
	if k.Name == "" {
		return nil, fmt.Errorf("%w: kernel has no name", ErrInvalidProgram)
	}
	return &k, nil
}

// Program builds and validates the IR program the kernel describes.
func (k *Kernel) Program() (*Program, error) {
	p := NewProgram(k.Name)
	p.TwoD = k.TwoD

	names := make([]string, 0, len(k.Vars))
	for name := range k.Vars {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		spec := k.Vars[name]
		v, err := ParseVarName(name)
		if err != nil {
			return nil, err
		}
		if RoleOf(v) == RoleConst {
			err = p.DeclareConst(v, spec.Size, spec.Value)
		} else {
			err = p.Declare(v, spec.Size)
		}
		if err != nil {
			return nil, err
		}
		if spec.Aligned {
			if err := p.SetAligned(v); err != nil {
				return nil, err
			}
		}
	}

	if err := p.ParseCode(k.Code); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParseCode appends one instruction per non-empty line of text. A '#'
// starts a comment.
func (p *Program) ParseCode(text string) error {
	for lineNo, line := range strings.Split(text, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		in, err := ParseInstruction(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo+1, err)
		}
		if err := p.AppendInsn(in); err != nil {
			return fmt.Errorf("line %d: %w", lineNo+1, err)
		}
	}
	return nil
}

var flagPrefixes = map[string]InsnFlags{"x2": FlagX2, "x4": FlagX4}

// ParseInstruction parses "[x2|x4] opcode dest, src[, src...]".
func ParseInstruction(line string) (Instruction, error) {
	var in Instruction
	fields := strings.Fields(line)
	for len(fields) > 0 {
		flag, ok := flagPrefixes[strings.ToLower(fields[0])]
		if !ok {
			break
		}
		in.Flags |= flag
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return in, fmt.Errorf("%w: missing opcode in %q", ErrInvalidProgram, line)
	}
	in.Opcode = strings.ToLower(fields[0])

	rest := strings.Join(fields[1:], " ")
	if strings.TrimSpace(rest) == "" {
		return in, fmt.Errorf("%w: %s has no operands", ErrInvalidProgram, in.Opcode)
	}
	for i, name := range strings.Split(rest, ",") {
		v, err := ParseVarName(name)
		if err != nil {
			return in, err
		}
		if i == 0 {
			in.Dest = append(in.Dest, v)
		} else {
			in.Src = append(in.Src, v)
		}
	}
	return in, nil
}
