package mips

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/tinyrange/msajit/internal/asm"
)

const (
	elfHeaderSize        = 52
	elfProgramHeaderSize = 32

	// EF_MIPS_NOREORDER | EF_MIPS_ABI_O32 | EF_MIPS_ARCH_32R2
	elfFlagsO32 = 0x00000001 | 0x00001000 | 0x70000000
)

var defaultStandaloneELFConfig = StandaloneELFConfig{
	BaseAddress:      0x400000,
	SegmentOffset:    0x1000,
	SegmentAlignment: 0x1000,
	SegmentFlags:     elf.PF_R | elf.PF_X,
}

// StandaloneELFConfig places a code image in a single PT_LOAD segment.
type StandaloneELFConfig struct {
	BaseAddress      uint32
	SegmentOffset    uint32
	SegmentAlignment uint32
	SegmentFlags     elf.ProgFlag
}

func DefaultStandaloneELFConfig() StandaloneELFConfig {
	return defaultStandaloneELFConfig
}

// StandaloneELF wraps the program in an ELF32 little-endian MIPS image whose
// entry point is the first instruction.
func StandaloneELF(prog asm.Program) ([]byte, error) {
	return StandaloneELFWithConfig(prog, DefaultStandaloneELFConfig())
}

func StandaloneELFWithConfig(prog asm.Program, cfg StandaloneELFConfig) ([]byte, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	code := prog.Bytes()
	prefix := make([]byte, cfg.SegmentOffset)
	fillELFHeader(prefix[:elfHeaderSize], cfg)
	fillProgramHeader(prefix[elfHeaderSize:elfHeaderSize+elfProgramHeaderSize], cfg, uint32(len(code)))

	return append(prefix, code...), nil
}

func (cfg StandaloneELFConfig) withDefaults() StandaloneELFConfig {
	def := DefaultStandaloneELFConfig()
	if cfg.BaseAddress == 0 {
		cfg.BaseAddress = def.BaseAddress
	}
	if cfg.SegmentOffset == 0 {
		cfg.SegmentOffset = def.SegmentOffset
	}
	if cfg.SegmentAlignment == 0 {
		cfg.SegmentAlignment = def.SegmentAlignment
	}
	if cfg.SegmentFlags == 0 {
		cfg.SegmentFlags = def.SegmentFlags
	}
	return cfg
}

func (cfg StandaloneELFConfig) validate() error {
	if cfg.SegmentOffset < elfHeaderSize+elfProgramHeaderSize {
		return fmt.Errorf("segment offset %#x too small for ELF headers (%#x)",
			cfg.SegmentOffset, elfHeaderSize+elfProgramHeaderSize)
	}
	if cfg.SegmentAlignment&(cfg.SegmentAlignment-1) != 0 {
		return fmt.Errorf("segment alignment %#x is not a power of two", cfg.SegmentAlignment)
	}
	if cfg.SegmentOffset%cfg.SegmentAlignment != 0 {
		return fmt.Errorf("segment offset %#x must be aligned to %#x", cfg.SegmentOffset, cfg.SegmentAlignment)
	}
	if cfg.BaseAddress%cfg.SegmentAlignment != 0 {
		return fmt.Errorf("base address %#x must be aligned to %#x", cfg.BaseAddress, cfg.SegmentAlignment)
	}
	return nil
}

func fillELFHeader(buf []byte, cfg StandaloneELFConfig) {
	copy(buf, []byte{0x7f, 'E', 'L', 'F'})
	buf[4] = byte(elf.ELFCLASS32)
	buf[5] = byte(elf.ELFDATA2LSB)
	buf[6] = byte(elf.EV_CURRENT)

	le := binary.LittleEndian
	le.PutUint16(buf[16:], uint16(elf.ET_EXEC))
	le.PutUint16(buf[18:], uint16(elf.EM_MIPS))
	le.PutUint32(buf[20:], uint32(elf.EV_CURRENT))
	le.PutUint32(buf[24:], cfg.BaseAddress)
	// Program headers follow the file header; there are no sections.
	le.PutUint32(buf[28:], elfHeaderSize)
	le.PutUint32(buf[32:], 0)
	le.PutUint32(buf[36:], elfFlagsO32)
	le.PutUint16(buf[40:], elfHeaderSize)
	le.PutUint16(buf[42:], elfProgramHeaderSize)
	le.PutUint16(buf[44:], 1)
}

func fillProgramHeader(buf []byte, cfg StandaloneELFConfig, size uint32) {
	le := binary.LittleEndian
	le.PutUint32(buf[0:], uint32(elf.PT_LOAD))
	le.PutUint32(buf[4:], cfg.SegmentOffset)
	le.PutUint32(buf[8:], cfg.BaseAddress)
	le.PutUint32(buf[12:], cfg.BaseAddress)
	le.PutUint32(buf[16:], size)
	le.PutUint32(buf[20:], size)
	le.PutUint32(buf[24:], uint32(cfg.SegmentFlags))
	le.PutUint32(buf[28:], cfg.SegmentAlignment)
}
