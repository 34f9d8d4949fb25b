// Package pipeline implements PunkVM's five-stage in-order data path:
// Fetch, Decode, Execute, Memory, Writeback, the inter-stage latches
// that connect them, and the hazard-detection and forwarding units
// that keep the stages correct under data and control dependencies.
// Grounded structurally on original_source/src/pipeline/{fetch,decode,
// execute,memory,writeback,hazard,forward,mod}.rs, reimplemented with
// the two deliberate deviations spec.md mandates: Execute-stage flush
// resolves control hazards (rather than a stall-on-any-in-flight-
// branch), and Call/Ret/Pop perform a genuine architectural stack
// push/pop instead of the original's commented-out logic.
package pipeline

import (
	"github.com/punkvm/punkvm/alu"
	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/predictor"
)

// FetchDecodeLatch is the Fetch→Decode inter-stage register.
type FetchDecodeLatch struct {
	Instruction bytecode.Instruction
	PC          uint64
}

// DecodeExecuteLatch is the Decode→Execute inter-stage register.
type DecodeExecuteLatch struct {
	Instruction bytecode.Instruction
	PC          uint64

	RS1, RS2, RD   int // register index, or -1 if not present
	RS1Value       uint64
	RS2Value       uint64
	Immediate      uint64
	HasImmediate   bool
	BranchAddr     uint64
	HasBranchAddr  bool
	MemAddr        uint64
	HasMemAddr     bool
	BranchPrediction predictor.Prediction
	StackOp        StackOp

	// FPDst/FPSrc2 address the FPU's 32-entry register file; -1 means
	// not present. FPU ops are accumulate-style like the integer ALU
	// (dst doubles as src1), grounded on the same
	// original_source/src/pipeline/decode.rs extraction convention.
	FPDst, FPSrc2 int
	FPConvertNarrow bool // FpuConvert's lone mode tag byte

	// VecDst/VecSrc2 address the vector register file (0..15); -1 means
	// not present. VecConstBytes carries the raw trailing bytes a
	// Simd*Const or Simd*Shuffle instruction appends after its two
	// formatted register args, since the 2-slot arg-nibble format has no
	// room for a register pair plus an element-type tag or a 16/32-byte
	// mask (see DESIGN.md's FPU/SIMD wire-encoding note).
	VecDst, VecSrc2 int
	VecElemType     alu.ElementType
	VecWidth        int // 128 or 256
	VecConstBytes   []byte
}

// StackOp tags which architectural-stack action, if any, the Execute
// stage performs for this instruction.
type StackOp int

const (
	StackOpNone StackOp = iota
	StackOpPush
	StackOpPop
)

// ExecuteMemoryLatch is the Execute→Memory inter-stage register.
type ExecuteMemoryLatch struct {
	Instruction bytecode.Instruction
	PC          uint64

	ALUResult  uint64
	RD         int // -1 if no destination register
	StoreValue uint64
	HasStore   bool
	MemAddr    uint64
	HasMemAddr bool

	BranchTarget            uint64
	BranchTaken              bool
	BranchPredictionCorrect  bool
	RASPredictionCorrect     bool
	HasRASCheck              bool
	StackOp                  StackOp
	Halted                   bool
}

// MemoryWritebackLatch is the Memory→Writeback inter-stage register.
type MemoryWritebackLatch struct {
	Instruction bytecode.Instruction
	Result      uint64
	RD          int // -1 if no destination register
	Halted      bool
}

// A nil *FetchDecodeLatch/*DecodeExecuteLatch/*ExecuteMemoryLatch/
// *MemoryWritebackLatch represents an empty (flushed or bubbled) slot;
// the stages and the hazard/forwarding units treat a nil latch as "no
// in-flight instruction" rather than modeling a separate Empty flag.
