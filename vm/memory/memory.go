// Package memory implements PunkVM's flat, byte-addressable memory: a
// single contiguous array with little-endian 1/2/4/8-byte accessors.
// The original Rust source layered a direct-mapped cache in front of
// this store (pvm/memorys.rs); that hierarchy is explicitly out of
// scope for the core (spec.md §1/§6) and is not reproduced here.
package memory

import (
	"encoding/binary"
	"fmt"
)

// Error reports an out-of-bounds memory access.
type Error struct {
	Addr  uint64
	Width int
	Size  int
}

func (e *Error) Error() string {
	return fmt.Sprintf("memory: out of bounds access at 0x%X width %d (size %d)", e.Addr, e.Width, e.Size)
}

// Memory is a flat byte-addressable store of fixed size.
type Memory struct {
	data []byte
}

// New allocates a zero-initialized memory of the given size in bytes.
func New(size int) *Memory {
	return &Memory{data: make([]byte, size)}
}

// Size returns the total addressable byte count.
func (m *Memory) Size() int {
	return len(m.data)
}

// Reset zeroes the backing store without reallocating it.
func (m *Memory) Reset() {
	for i := range m.data {
		m.data[i] = 0
	}
}

// Bytes returns a copy of the entire backing store, for snapshotting.
func (m *Memory) Bytes() []byte {
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out
}

// Restore overwrites the entire backing store from a prior Bytes
// snapshot; data must match Size() exactly.
func (m *Memory) Restore(data []byte) error {
	if len(data) != len(m.data) {
		return fmt.Errorf("memory: restore size mismatch: got %d, want %d", len(data), len(m.data))
	}
	copy(m.data, data)
	return nil
}

// LoadImage copies a program/data image into memory starting at addr.
func (m *Memory) LoadImage(addr uint64, image []byte) error {
	if addr+uint64(len(image)) > uint64(len(m.data)) {
		return &Error{Addr: addr, Width: len(image), Size: len(m.data)}
	}
	copy(m.data[addr:], image)
	return nil
}

func (m *Memory) bounds(addr uint64, width int) error {
	if addr+uint64(width) > uint64(len(m.data)) {
		return &Error{Addr: addr, Width: width, Size: len(m.data)}
	}
	return nil
}

// ReadByte reads one byte at addr.
func (m *Memory) ReadByte(addr uint64) (uint8, error) {
	if err := m.bounds(addr, 1); err != nil {
		return 0, err
	}
	return m.data[addr], nil
}

// WriteByte writes one byte at addr.
func (m *Memory) WriteByte(addr uint64, v uint8) error {
	if err := m.bounds(addr, 1); err != nil {
		return err
	}
	m.data[addr] = v
	return nil
}

// ReadWord reads a little-endian 16-bit value at addr.
func (m *Memory) ReadWord(addr uint64) (uint16, error) {
	if err := m.bounds(addr, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(m.data[addr:]), nil
}

// WriteWord writes a little-endian 16-bit value at addr.
func (m *Memory) WriteWord(addr uint64, v uint16) error {
	if err := m.bounds(addr, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(m.data[addr:], v)
	return nil
}

// ReadDword reads a little-endian 32-bit value at addr.
func (m *Memory) ReadDword(addr uint64) (uint32, error) {
	if err := m.bounds(addr, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(m.data[addr:]), nil
}

// WriteDword writes a little-endian 32-bit value at addr.
func (m *Memory) WriteDword(addr uint64, v uint32) error {
	if err := m.bounds(addr, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(m.data[addr:], v)
	return nil
}

// ReadQword reads a little-endian 64-bit value at addr.
func (m *Memory) ReadQword(addr uint64) (uint64, error) {
	if err := m.bounds(addr, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(m.data[addr:]), nil
}

// WriteQword writes a little-endian 64-bit value at addr.
func (m *Memory) WriteQword(addr uint64, v uint64) error {
	if err := m.bounds(addr, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(m.data[addr:], v)
	return nil
}

// ReadBytes reads n consecutive bytes starting at addr into a new
// slice, in ascending address order. Used for bulk vector-register
// load (16 bytes for a v128, 32 bytes for a v256).
func (m *Memory) ReadBytes(addr uint64, n int) ([]byte, error) {
	if err := m.bounds(addr, n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, m.data[addr:addr+uint64(n)])
	return out, nil
}

// WriteBytes writes raw bytes starting at addr, in ascending address
// order. Used for bulk vector-register store.
func (m *Memory) WriteBytes(addr uint64, b []byte) error {
	if err := m.bounds(addr, len(b)); err != nil {
		return err
	}
	copy(m.data[addr:], b)
	return nil
}
