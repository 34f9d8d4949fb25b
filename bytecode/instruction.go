package bytecode

import "encoding/binary"

// sizeExtendedSentinel marks the compact size byte as "read two more
// bytes for the real size" instead of being the size itself.
const sizeExtendedSentinel = 0xFF

// Instruction is the decoded form of one bytecode instruction: an
// opcode, the argument-type format, and the raw argument bytes (ready
// for ArgValue extraction by Decode stage).
type Instruction struct {
	Opcode Opcode
	Format Format
	Args   []byte
}

// NewInstruction builds an Instruction from its parts. Args normally
// holds format.ArgsSize() bytes; any extra trailing bytes are kept and
// round-trip through Encode/Decode unchanged.
func NewInstruction(op Opcode, format Format, args []byte) Instruction {
	return Instruction{Opcode: op, Format: format, Args: args}
}

// TotalSize returns the on-wire byte length of the instruction,
// including opcode, format, size field, and argument bytes.
func (i Instruction) TotalSize() int {
	argsLen := len(i.Args)
	compact := 3 + argsLen // opcode + format + 1-byte size field
	if compact <= sizeExtendedSentinel-1 {
		return compact
	}
	return 5 + argsLen // opcode + format + 0xFF sentinel + 2-byte size field
}

// Encode serializes the instruction to its wire format.
func (i Instruction) Encode() []byte {
	total := i.TotalSize()
	buf := make([]byte, 0, total)
	buf = append(buf, uint8(i.Opcode), i.Format.Encode())

	argsLen := len(i.Args)
	compact := 3 + argsLen
	if compact <= sizeExtendedSentinel-1 {
		buf = append(buf, uint8(compact))
	} else {
		buf = append(buf, sizeExtendedSentinel)
		var szBytes [2]byte
		binary.LittleEndian.PutUint16(szBytes[:], uint16(total))
		buf = append(buf, szBytes[:]...)
	}
	buf = append(buf, i.Args...)
	return buf
}

// Decode parses an Instruction from the front of data, returning the
// instruction and the number of bytes consumed.
func Decode(data []byte) (Instruction, int, error) {
	if len(data) < 3 {
		return Instruction{}, 0, &DecodeError{Kind: InsufficientData}
	}

	op := Opcode(data[0])
	format := DecodeFormat(data[1])

	var total int
	var headerLen int
	if data[2] == sizeExtendedSentinel {
		if len(data) < 5 {
			return Instruction{}, 0, &DecodeError{Kind: InsufficientData}
		}
		total = int(binary.LittleEndian.Uint16(data[3:5]))
		headerLen = 5
	} else {
		total = int(data[2])
		headerLen = 3
	}

	if total < headerLen || len(data) < total {
		return Instruction{}, 0, &DecodeError{Kind: InsufficientData}
	}

	args := make([]byte, total-headerLen)
	copy(args, data[headerLen:total])

	return Instruction{Opcode: op, Format: format, Args: args}, total, nil
}

// ArgValueKind tags which variant an ArgValue holds.
type ArgValueKind int

const (
	ArgValNone ArgValueKind = iota
	ArgValRegister
	ArgValImmediate
	ArgValRelativeAddr
	ArgValAbsoluteAddr
	ArgValRegisterOffset
)

// ArgValue is a decoded operand: exactly one of its fields is
// meaningful, selected by Kind.
type ArgValue struct {
	Kind     ArgValueKind
	Register uint8
	Imm      uint64
	Rel      int32
	Abs      uint32
	OffsetOf uint8 // base register, for ArgValRegisterOffset
	Offset   int8
}

// Arg1Value extracts the first operand's value from the instruction's
// raw argument bytes per its format.
func (i Instruction) Arg1Value() (ArgValue, error) {
	return i.argValueAt(0, i.Format.Arg1, i.Format.Arg2 == ArgRegister && i.Format.Arg1 == ArgRegister)
}

// Arg2Value extracts the second operand's value.
func (i Instruction) Arg2Value() (ArgValue, error) {
	if i.Format.Arg1 == ArgRegister && i.Format.Arg2 == ArgRegister {
		// Packed: rs1 in low nibble, rs2 in high nibble of byte 0.
		if len(i.Args) < 1 {
			return ArgValue{}, &DecodeError{Kind: InvalidArgumentOffset}
		}
		return ArgValue{Kind: ArgValRegister, Register: i.Args[0] >> 4}, nil
	}
	offset := i.Format.Arg1.Size()
	return i.argValueAt(offset, i.Format.Arg2, false)
}

func (i Instruction) argValueAt(offset int, t ArgType, packedPair bool) (ArgValue, error) {
	if t == ArgNone {
		return ArgValue{Kind: ArgValNone}, nil
	}
	need := t.Size()
	if packedPair {
		need = 1
	}
	if offset+need > len(i.Args) {
		return ArgValue{}, &DecodeError{Kind: InvalidArgumentOffset}
	}
	b := i.Args[offset:]

	switch t {
	case ArgRegister:
		if packedPair {
			return ArgValue{Kind: ArgValRegister, Register: b[0] & 0x0F}, nil
		}
		return ArgValue{Kind: ArgValRegister, Register: b[0]}, nil
	case ArgRegisterExt:
		return ArgValue{Kind: ArgValRegister, Register: b[0]}, nil
	case ArgImmediate8:
		return ArgValue{Kind: ArgValImmediate, Imm: uint64(b[0])}, nil
	case ArgImmediate16:
		return ArgValue{Kind: ArgValImmediate, Imm: uint64(binary.LittleEndian.Uint16(b))}, nil
	case ArgImmediate32:
		return ArgValue{Kind: ArgValImmediate, Imm: uint64(binary.LittleEndian.Uint32(b))}, nil
	case ArgImmediate64:
		return ArgValue{Kind: ArgValImmediate, Imm: binary.LittleEndian.Uint64(b)}, nil
	case ArgRelativeAddr:
		return ArgValue{Kind: ArgValRelativeAddr, Rel: int32(binary.LittleEndian.Uint32(b))}, nil
	case ArgAbsoluteAddr:
		return ArgValue{Kind: ArgValAbsoluteAddr, Abs: binary.LittleEndian.Uint32(b)}, nil
	case ArgRegisterOffset:
		return ArgValue{Kind: ArgValRegisterOffset, OffsetOf: b[0], Offset: int8(b[1])}, nil
	default:
		return ArgValue{}, &DecodeError{Kind: InvalidArgumentType}
	}
}

// Factory helpers mirroring common instruction shapes.

func NewNoArgs(op Opcode) Instruction {
	return NewInstruction(op, FormatNone(), nil)
}

func NewSingleReg(op Opcode, r uint8) Instruction {
	return NewInstruction(op, FormatSingleReg(), []byte{r})
}

func NewRegReg(op Opcode, rs1, rs2 uint8) Instruction {
	return NewInstruction(op, FormatRegReg(), []byte{(rs2 << 4) | (rs1 & 0x0F)})
}

func NewRegImm8(op Opcode, r, imm uint8) Instruction {
	return NewInstruction(op, FormatRegImm8(), []byte{r, imm})
}

func NewRegImm16(op Opcode, r uint8, imm uint16) Instruction {
	args := make([]byte, 3)
	args[0] = r
	binary.LittleEndian.PutUint16(args[1:], imm)
	return NewInstruction(op, FormatRegImm16(), args)
}

func NewRegImm64(op Opcode, r uint8, imm uint64) Instruction {
	args := make([]byte, 9)
	args[0] = r
	binary.LittleEndian.PutUint64(args[1:], imm)
	return NewInstruction(op, FormatRegImm64(), args)
}

func NewBranchRelative(op Opcode, rel int32) Instruction {
	args := make([]byte, 4)
	binary.LittleEndian.PutUint32(args, uint32(rel))
	return NewInstruction(op, FormatAddrOnly(), args)
}

func NewLoadRegOffset(op Opcode, dst, base uint8, offset int8) Instruction {
	return NewInstruction(op, FormatRegOffset(), []byte{dst, base, uint8(offset)})
}

// FPU shapes. Register operands use ArgRegisterExt so the full
// 32-entry file is addressable.

func NewFpuImm64(op Opcode, r uint8, bits uint64) Instruction {
	args := make([]byte, 9)
	args[0] = r
	binary.LittleEndian.PutUint64(args[1:], bits)
	return NewInstruction(op, Format{ArgRegisterExt, ArgImmediate64}, args)
}

func NewFpuReg(op Opcode, r uint8) Instruction {
	return NewInstruction(op, Format{ArgRegisterExt, ArgNone}, []byte{r})
}

func NewFpuRegReg(op Opcode, dst, src uint8) Instruction {
	return NewInstruction(op, Format{ArgRegisterExt, ArgRegisterExt}, []byte{dst, src})
}

func NewFpuMem(op Opcode, r, base uint8, offset int8) Instruction {
	return NewInstruction(op, Format{ArgRegisterExt, ArgRegisterOffset}, []byte{r, base, uint8(offset)})
}

// SIMD shapes. Bytes past the formatted operands carry the element
// tag, constant payload, or shuffle mask; the wire size field (not the
// format byte) sizes the argument buffer, so they round-trip through
// Encode/Decode untouched.

func NewSimdConst(op Opcode, dst uint8, payload []byte) Instruction {
	args := append([]byte{dst}, payload...)
	return NewInstruction(op, Format{ArgRegisterExt, ArgNone}, args)
}

func NewSimdRegReg(op Opcode, dst, src, elem uint8) Instruction {
	return NewInstruction(op, Format{ArgRegisterExt, ArgRegisterExt}, []byte{dst, src, elem})
}

func NewSimdReg(op Opcode, dst, elem uint8) Instruction {
	return NewInstruction(op, Format{ArgRegisterExt, ArgNone}, []byte{dst, elem})
}

func NewSimdShuffle(op Opcode, dst uint8, mask []byte) Instruction {
	return NewSimdConst(op, dst, mask)
}

func NewSimdMem(op Opcode, v, base uint8, offset int8) Instruction {
	return NewInstruction(op, Format{ArgRegisterExt, ArgRegisterOffset}, []byte{v, base, uint8(offset)})
}
