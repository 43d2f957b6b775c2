package mipsle

import (
	"fmt"
)

// MemoryRegion represents a contiguous region of RAM
type MemoryRegion struct {
	Data []byte
}

func NewMemoryRegion(size uint32) *MemoryRegion {
	return &MemoryRegion{
		Data: make([]byte, size),
	}
}

func (m *MemoryRegion) Read(offset uint32, size int) (uint64, error) {
	if uint64(offset)+uint64(size) > uint64(len(m.Data)) {
		return 0, fmt.Errorf("memory read out of bounds: offset=0x%x size=%d len=%d", offset, size, len(m.Data))
	}

	switch size {
	case 1:
		return uint64(m.Data[offset]), nil
	case 2:
		return uint64(cpuEndian.Uint16(m.Data[offset:])), nil
	case 4:
		return uint64(cpuEndian.Uint32(m.Data[offset:])), nil
	case 8:
		return cpuEndian.Uint64(m.Data[offset:]), nil
	default:
		return 0, fmt.Errorf("invalid read size: %d", size)
	}
}

func (m *MemoryRegion) Write(offset uint32, size int, value uint64) error {
	if uint64(offset)+uint64(size) > uint64(len(m.Data)) {
		return fmt.Errorf("memory write out of bounds: offset=0x%x size=%d len=%d", offset, size, len(m.Data))
	}

	switch size {
	case 1:
		m.Data[offset] = byte(value)
	case 2:
		cpuEndian.PutUint16(m.Data[offset:], uint16(value))
	case 4:
		cpuEndian.PutUint32(m.Data[offset:], uint32(value))
	case 8:
		cpuEndian.PutUint64(m.Data[offset:], value)
	default:
		return fmt.Errorf("invalid write size: %d", size)
	}
	return nil
}

func (m *MemoryRegion) Size() uint32 {
	return uint32(len(m.Data))
}

// Bus maps a single RAM region at RAMBase.
type Bus struct {
	RAM     *MemoryRegion
	RAMBase uint32
}

func NewBus(base, size uint32) *Bus {
	return &Bus{
		RAM:     NewMemoryRegion(size),
		RAMBase: base,
	}
}

func (bus *Bus) offset(addr uint32, size int) (uint32, error) {
	if addr < bus.RAMBase || uint64(addr-bus.RAMBase)+uint64(size) > uint64(bus.RAM.Size()) {
		return 0, fmt.Errorf("no memory at address 0x%x", addr)
	}
	return addr - bus.RAMBase, nil
}

func (bus *Bus) Read(addr uint32, size int) (uint64, error) {
	off, err := bus.offset(addr, size)
	if err != nil {
		return 0, err
	}
	return bus.RAM.Read(off, size)
}

func (bus *Bus) Write(addr uint32, size int, value uint64) error {
	off, err := bus.offset(addr, size)
	if err != nil {
		return err
	}
	return bus.RAM.Write(off, size, value)
}

func (bus *Bus) Read8(addr uint32) (uint8, error) {
	val, err := bus.Read(addr, 1)
	return uint8(val), err
}

func (bus *Bus) Read32(addr uint32) (uint32, error) {
	val, err := bus.Read(addr, 4)
	return uint32(val), err
}

func (bus *Bus) Write8(addr uint32, value uint8) error {
	return bus.Write(addr, 1, uint64(value))
}

func (bus *Bus) Write32(addr uint32, value uint32) error {
	return bus.Write(addr, 4, uint64(value))
}

// Slice returns the backing bytes for [addr, addr+length).
func (bus *Bus) Slice(addr, length uint32) ([]byte, error) {
	off, err := bus.offset(addr, int(length))
	if err != nil {
		return nil, err
	}
	return bus.RAM.Data[off : off+length], nil
}

// LoadBytes copies data into memory at addr.
func (bus *Bus) LoadBytes(addr uint32, data []byte) error {
	dst, err := bus.Slice(addr, uint32(len(data)))
	if err != nil {
		return err
	}
	copy(dst, data)
	return nil
}
