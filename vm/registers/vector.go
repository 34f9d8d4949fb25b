package registers

import (
	"fmt"

	"github.com/punkvm/punkvm/alu"
)

// VectorCount is the number of addressable vector registers in each of
// the 128-bit and 256-bit banks.
const VectorCount = 16

// VectorError reports an access to a vector register index outside
// [0, VectorCount).
type VectorError struct {
	Index int
}

func (e *VectorError) Error() string {
	return fmt.Sprintf("registers: invalid vector index %d", e.Index)
}

// VectorFile is the architectural SIMD register file: 16 128-bit
// registers and 16 256-bit registers, stored separately since
// alu.VectorALU (unlike alu.FPU) carries no register storage of its own
// and only performs lane-wise computation on the values it is handed.
type VectorFile struct {
	v [VectorCount]alu.V128
	y [VectorCount]alu.V256
}

// ReadV128 returns the current value of 128-bit register idx.
func (f *VectorFile) ReadV128(idx int) (alu.V128, error) {
	if idx < 0 || idx >= VectorCount {
		return alu.V128{}, &VectorError{Index: idx}
	}
	return f.v[idx], nil
}

// WriteV128 sets 128-bit register idx to value.
func (f *VectorFile) WriteV128(idx int, value alu.V128) error {
	if idx < 0 || idx >= VectorCount {
		return &VectorError{Index: idx}
	}
	f.v[idx] = value
	return nil
}

// ReadV256 returns the current value of 256-bit register idx.
func (f *VectorFile) ReadV256(idx int) (alu.V256, error) {
	if idx < 0 || idx >= VectorCount {
		return alu.V256{}, &VectorError{Index: idx}
	}
	return f.y[idx], nil
}

// WriteV256 sets 256-bit register idx to value.
func (f *VectorFile) WriteV256(idx int, value alu.V256) error {
	if idx < 0 || idx >= VectorCount {
		return &VectorError{Index: idx}
	}
	f.y[idx] = value
	return nil
}

// Reset zeroes every vector register.
func (f *VectorFile) Reset() {
	f.v = [VectorCount]alu.V128{}
	f.y = [VectorCount]alu.V256{}
}

// VectorSnapshot is the exported, gob-encodable form of a VectorFile's
// contents, used by vm.Snapshot.
type VectorSnapshot struct {
	V128 [VectorCount]alu.V128
	V256 [VectorCount]alu.V256
}

// Snapshot returns a copy of every vector register's value.
func (f *VectorFile) Snapshot() VectorSnapshot {
	return VectorSnapshot{V128: f.v, V256: f.y}
}

// Restore overwrites the vector register file from a prior Snapshot.
func (f *VectorFile) Restore(s VectorSnapshot) {
	f.v = s.V128
	f.y = s.V256
}
