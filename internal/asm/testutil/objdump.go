package testutil

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"testing"
)

const (
	// MachineMIPS is the ELF e_machine value for MIPS.
	MachineMIPS = 8
)

// DisasmLine represents a single instruction line emitted by objdump.
type DisasmLine struct {
	Text       string
	Normalized string
	Mnemonic   string
}

// Contains reports whether the normalized instruction text contains the provided substring.
func (l DisasmLine) Contains(substr string) bool {
	return strings.Contains(l.Normalized, substr)
}

// DisassembleWithObjdump wraps the provided code bytes into a minimal ELF for
// the supplied machine type and runs GNU objdump -d --no-show-raw-insn.
func DisassembleWithObjdump(t *testing.T, code []byte, machine uint16, extraArgs ...string) []DisasmLine {
	t.Helper()
	args := []string{"-d", "--no-show-raw-insn"}
	args = append(args, extraArgs...)
	return DisassembleWithTool(t, "objdump", code, machine, args...)
}

// DisassembleWithTool wraps the provided code bytes into a minimal ELF for the
// supplied machine type and invokes the requested disassembler.
func DisassembleWithTool(t *testing.T, tool string, code []byte, machine uint16, args ...string) []DisasmLine {
	t.Helper()

	toolPath, err := exec.LookPath(tool)
	if err != nil {
		t.Skipf("%s not found: %v", tool, err)
	}

	elf := buildMinimalELF(code, machine)

	tmp, err := os.CreateTemp("", "msajit-objdump-*.o")
	if err != nil {
		t.Fatalf("create temp file: %v", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(elf); err != nil {
		t.Fatalf("write temp ELF: %v", err)
	}
	if err := tmp.Close(); err != nil {
		t.Fatalf("close temp ELF: %v", err)
	}

	cmdArgs := append([]string{}, args...)
	cmdArgs = append(cmdArgs, tmp.Name())
	cmd := exec.Command(toolPath, cmdArgs...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("%s failed: %v\n\n%s", tool, err, output)
	}

	lines, err := parseObjdumpOutput(string(output))
	if err != nil {
		t.Fatalf("parse objdump output: %v", err)
	}
	if len(lines) == 0 {
		t.Fatalf("objdump produced no instructions:\n%s", output)
	}
	if len(lines) < 5 {
		t.Logf("objdump output:\n%s", output)
	}
	return lines
}

// buildMinimalELF produces a little-endian ELF32 object with a single .text
// section holding code.
func buildMinimalELF(code []byte, machine uint16) []byte {
	const (
		elfHeaderSize = 52
		sectionCount  = 3 // null, .text, .shstrtab
		secHeaderSize = 40
		textAlign     = 16
		mipsFlags     = 0x70001001 // o32, mips32r2, noreorder
	)

	textOffset := align(elfHeaderSize, textAlign)
	textPadded := align(textOffset+len(code), textAlign) - textOffset
	shstr := []byte("\x00.text\x00.shstrtab\x00")
	shstrOffset := textOffset + textPadded
	sectionOffset := align(shstrOffset+len(shstr), 4)
	totalSize := sectionOffset + sectionCount*secHeaderSize

	buf := make([]byte, totalSize)
	copy(buf[textOffset:], code)
	copy(buf[shstrOffset:], shstr)

	copy(buf, []byte{0x7f, 'E', 'L', 'F', 1, 1, 1})

	le := binary.LittleEndian
	le.PutUint16(buf[16:], 1) // ET_REL
	le.PutUint16(buf[18:], machine)
	le.PutUint32(buf[20:], 1)
	le.PutUint32(buf[32:], uint32(sectionOffset))
	if machine == MachineMIPS {
		le.PutUint32(buf[36:], mipsFlags)
	}
	le.PutUint16(buf[40:], elfHeaderSize)
	le.PutUint16(buf[46:], secHeaderSize)
	le.PutUint16(buf[48:], sectionCount)
	le.PutUint16(buf[50:], 2) // e_shstrndx

	shdr := buf[sectionOffset:]

	text := shdr[secHeaderSize : 2*secHeaderSize]
	le.PutUint32(text[0:], 1) // name offset of ".text"
	le.PutUint32(text[4:], 1) // SHT_PROGBITS
	le.PutUint32(text[8:], 0x6)
	le.PutUint32(text[16:], uint32(textOffset))
	le.PutUint32(text[20:], uint32(len(code)))
	le.PutUint32(text[32:], textAlign)

	strtab := shdr[2*secHeaderSize : 3*secHeaderSize]
	le.PutUint32(strtab[0:], uint32(len(".text")+2))
	le.PutUint32(strtab[4:], 3) // SHT_STRTAB
	le.PutUint32(strtab[16:], uint32(shstrOffset))
	le.PutUint32(strtab[20:], uint32(len(shstr)))
	le.PutUint32(strtab[32:], 1)

	return buf
}

func parseObjdumpOutput(out string) ([]DisasmLine, error) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	var lines []DisasmLine
	for scanner.Scan() {
		line := scanner.Text()
		colon := strings.IndexRune(line, ':')
		if colon == -1 {
			continue
		}
		text := strings.TrimSpace(line[colon+1:])
		if text == "" || strings.HasPrefix(text, "<") {
			continue
		}
		if strings.HasPrefix(text, ".") || strings.HasPrefix(text, "file format") {
			continue
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}
		normalized := strings.Join(fields, " ")
		lines = append(lines, DisasmLine{
			Text:       text,
			Normalized: normalized,
			Mnemonic:   strings.ToLower(fields[0]),
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}
	return lines, nil
}

func align(value int, boundary int) int {
	if boundary <= 0 {
		return value
	}
	rem := value % boundary
	if rem == 0 {
		return value
	}
	return value + boundary - rem
}
