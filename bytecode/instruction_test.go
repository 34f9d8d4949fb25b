package bytecode

import (
	"bytes"
	"testing"
)

func TestFormatEncodeDecode(t *testing.T) {
	cases := []struct {
		name string
		f    Format
	}{
		{"none", FormatNone()},
		{"reg-reg", FormatRegReg()},
		{"reg-imm8", FormatRegImm8()},
		{"reg-imm16", FormatRegImm16()},
		{"reg-offset", FormatRegOffset()},
		{"addr-only", FormatAddrOnly()},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got := DecodeFormat(c.f.Encode())
			if got != c.f {
				t.Errorf("round-trip mismatch: got %+v, want %+v", got, c.f)
			}
		})
	}
}

func TestInstructionRoundTrip(t *testing.T) {
	cases := []Instruction{
		NewNoArgs(Nop),
		NewNoArgs(Halt),
		NewRegReg(Add, 1, 2),
		NewRegImm8(Load, 0, 42),
		NewRegImm16(Load, 3, 0x1234),
		NewRegImm64(Load, 5, 0x1122334455667788),
		NewBranchRelative(Jmp, 8),
		NewBranchRelative(Jmp, -16),
		NewLoadRegOffset(Load, 2, 1, -4),
		NewFpuImm64(FpuLoad, 0, 0x4030000000000000),
		NewFpuReg(FpuSqrt, 31),
		NewFpuRegReg(FpuAdd, 1, 2),
		NewFpuMem(FpuStore, 3, 0, 0x40),
		NewSimdConst(Simd128Const, 0, make([]byte, 16)),
		NewSimdConst(Simd256Const, 15, make([]byte, 32)),
		NewSimdRegReg(Simd128Add, 2, 3, 1),
		NewSimdReg(Simd128Not, 4, 1),
		NewSimdShuffle(Simd128Shuffle, 5, make([]byte, 16)),
		NewSimdMem(Simd128Load, 6, 7, 0x60),
	}

	for _, instr := range cases {
		encoded := instr.Encode()
		decoded, n, err := Decode(encoded)
		if err != nil {
			t.Fatalf("decode(%v) failed: %v", instr, err)
		}
		if n != len(encoded) {
			t.Errorf("decode consumed %d bytes, want %d", n, len(encoded))
		}
		if decoded.Opcode != instr.Opcode {
			t.Errorf("opcode mismatch: got %v, want %v", decoded.Opcode, instr.Opcode)
		}
		if decoded.Format != instr.Format {
			t.Errorf("format mismatch: got %+v, want %+v", decoded.Format, instr.Format)
		}
		if !bytes.Equal(decoded.Args, instr.Args) {
			t.Errorf("args mismatch: got %v, want %v", decoded.Args, instr.Args)
		}
		if decoded.TotalSize() != len(encoded) {
			t.Errorf("TotalSize() = %d, want %d", decoded.TotalSize(), len(encoded))
		}
	}
}

func TestInstructionExtendedSize(t *testing.T) {
	// Force an extended (2-byte) size field by using an oversized args slice.
	args := make([]byte, 300)
	instr := NewInstruction(Load, FormatRegImm64(), args)
	encoded := instr.Encode()

	if encoded[2] != sizeExtendedSentinel {
		t.Fatalf("expected extended sentinel at byte 2, got 0x%02X", encoded[2])
	}

	decoded, n, err := Decode(encoded)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if n != len(encoded) {
		t.Errorf("consumed %d bytes, want %d", n, len(encoded))
	}
	if len(decoded.Args) != len(args) {
		t.Errorf("args length = %d, want %d", len(decoded.Args), len(args))
	}
}

func TestDecodeInsufficientData(t *testing.T) {
	cases := [][]byte{
		nil,
		{0x01},
		{0x01, 0x02},
		{0x01, 0x02, 0xFF}, // extended sentinel but no size bytes
		{0x01, 0x02, 10},   // claims 10 bytes total but only 3 present
	}
	for _, data := range cases {
		if _, _, err := Decode(data); err == nil {
			t.Errorf("Decode(%v) succeeded, want InsufficientData error", data)
		}
	}
}

func TestArgValueExtraction(t *testing.T) {
	instr := NewRegReg(Add, 3, 7)
	a1, err := instr.Arg1Value()
	if err != nil {
		t.Fatalf("Arg1Value: %v", err)
	}
	if a1.Kind != ArgValRegister || a1.Register != 3 {
		t.Errorf("Arg1Value = %+v, want register 3", a1)
	}
	a2, err := instr.Arg2Value()
	if err != nil {
		t.Fatalf("Arg2Value: %v", err)
	}
	if a2.Kind != ArgValRegister || a2.Register != 7 {
		t.Errorf("Arg2Value = %+v, want register 7", a2)
	}

	imm := NewRegImm16(Load, 2, 0xBEEF)
	a2, err = imm.Arg2Value()
	if err != nil {
		t.Fatalf("Arg2Value: %v", err)
	}
	if a2.Kind != ArgValImmediate || a2.Imm != 0xBEEF {
		t.Errorf("Arg2Value = %+v, want immediate 0xBEEF", a2)
	}
}

func TestCategoryOf(t *testing.T) {
	cases := []struct {
		op   Opcode
		want Category
	}{
		{Add, CategoryArithmetic},
		{And, CategoryLogic},
		{Jmp, CategoryControl},
		{Load, CategoryMemory},
		{Halt, CategorySpecial},
		{FpuAdd, CategoryFPU},
		{Simd128Add, CategorySimd128},
		{Simd256Add, CategorySimd256},
		{Extended, CategoryExtended},
	}
	for _, c := range cases {
		if got := CategoryOf(c.op); got != c.want {
			t.Errorf("CategoryOf(%v) = %v, want %v", c.op, got, c.want)
		}
	}
}

func TestIsBranchLoadStore(t *testing.T) {
	if !IsBranch(Jmp) || !IsBranch(Call) || !IsBranch(Ret) || !IsBranch(JmpIfEqual) {
		t.Error("expected Jmp/Call/Ret/JmpIfEqual to be branches")
	}
	if IsBranch(Cmp) || IsBranch(Test) || IsBranch(Add) {
		t.Error("Cmp/Test/Add must not be classified as branches")
	}
	if !IsLoad(Load) || !IsLoad(Pop) || IsLoad(Store) {
		t.Error("IsLoad classification wrong")
	}
	if !IsStore(Store) || !IsStore(Push) || IsStore(Load) {
		t.Error("IsStore classification wrong")
	}
}
