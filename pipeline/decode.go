package pipeline

import (
	"fmt"

	"github.com/punkvm/punkvm/alu"
	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/predictor"
	"github.com/punkvm/punkvm/vm/registers"
)

// NoReg marks a RS1/RS2/RD/FPDst/FPSrc2/VecDst/VecSrc2 slot as absent.
const NoReg = -1

// DecodeError reports that Decode could not extract valid operands from
// an otherwise structurally-decoded instruction.
type DecodeError struct {
	PC     uint64
	Opcode bytecode.Opcode
	Msg    string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("pipeline: decode: pc 0x%X opcode %s: %s", e.PC, e.Opcode, e.Msg)
}

// DecodeStage extracts operand registers, immediates, and branch/memory
// addresses from a fetched instruction, grounded on
// original_source/src/pipeline/decode.rs's extract_registers/
// extract_immediate/calculate_branch_address/calculate_memory_address.
// Two-register arithmetic/logic instructions are accumulate-style
// (rd == rs1): the wire format only carries two operand slots, so "R2 =
// R0 + R1" is encoded, and decoded, as "R0 += R1" (see DESIGN.md).
type DecodeStage struct{}

// Process decodes fd into a Decode→Execute latch, reading current
// operand values from regs and consulting pred for a branch prediction.
func (DecodeStage) Process(fd *FetchDecodeLatch, regs *registers.File, pred predictor.Predictor) (*DecodeExecuteLatch, error) {
	if fd == nil {
		return nil, nil
	}
	inst := fd.Instruction
	out := &DecodeExecuteLatch{
		Instruction: inst,
		PC:          fd.PC,
		RS1:         NoReg,
		RS2:         NoReg,
		RD:          NoReg,
		FPDst:       NoReg,
		FPSrc2:      NoReg,
		VecDst:      NoReg,
		VecSrc2:     NoReg,
	}

	switch bytecode.CategoryOf(inst.Opcode) {
	case bytecode.CategoryArithmetic, bytecode.CategoryLogic:
		if err := decodeAluLike(inst, out); err != nil {
			return nil, &DecodeError{PC: fd.PC, Opcode: inst.Opcode, Msg: err.Error()}
		}
	case bytecode.CategoryControl:
		if err := decodeControl(inst, fd.PC, out); err != nil {
			return nil, &DecodeError{PC: fd.PC, Opcode: inst.Opcode, Msg: err.Error()}
		}
	case bytecode.CategoryMemory:
		if err := decodeMemory(inst, out, regs); err != nil {
			return nil, &DecodeError{PC: fd.PC, Opcode: inst.Opcode, Msg: err.Error()}
		}
	case bytecode.CategoryFPU:
		if err := decodeFpu(inst, out, regs); err != nil {
			return nil, &DecodeError{PC: fd.PC, Opcode: inst.Opcode, Msg: err.Error()}
		}
	case bytecode.CategorySimd128:
		if err := decodeSimd(inst, out, 128, regs); err != nil {
			return nil, &DecodeError{PC: fd.PC, Opcode: inst.Opcode, Msg: err.Error()}
		}
	case bytecode.CategorySimd256:
		if err := decodeSimd(inst, out, 256, regs); err != nil {
			return nil, &DecodeError{PC: fd.PC, Opcode: inst.Opcode, Msg: err.Error()}
		}
	case bytecode.CategorySpecial, bytecode.CategoryExtended:
		// Nop-equivalent operand shape: Syscall/Break/Halt and Extended
		// all decode with no registers, immediate, or address.
	default:
		return nil, &DecodeError{PC: fd.PC, Opcode: inst.Opcode, Msg: "unknown category"}
	}

	if err := readOperandRegisters(out, regs); err != nil {
		return nil, &DecodeError{PC: fd.PC, Opcode: inst.Opcode, Msg: err.Error()}
	}

	if bytecode.IsBranch(inst.Opcode) {
		if pred != nil {
			out.BranchPrediction = pred.Predict(fd.PC)
		} else {
			out.BranchPrediction = predictor.NotTaken
		}
	}

	return out, nil
}

// readOperandRegisters fills RS1Value/RS2Value from the architectural
// register file. Execute's forwarding unit may later overwrite these
// with a bypassed in-flight value.
func readOperandRegisters(out *DecodeExecuteLatch, regs *registers.File) error {
	if out.RS1 != NoReg {
		v, err := regs.Read(out.RS1)
		if err != nil {
			return err
		}
		out.RS1Value = v
	}
	if out.RS2 != NoReg {
		v, err := regs.Read(out.RS2)
		if err != nil {
			return err
		}
		out.RS2Value = v
	}
	return nil
}

// decodeAluLike handles the two-register-or-register-immediate
// arithmetic/logic opcodes (Add..Ror) and the single-register opcodes
// (Inc, Dec, Neg, Not).
func decodeAluLike(inst bytecode.Instruction, out *DecodeExecuteLatch) error {
	if inst.Opcode == bytecode.Nop {
		return nil
	}

	a1, err := inst.Arg1Value()
	if err != nil {
		return err
	}
	if a1.Kind != bytecode.ArgValRegister {
		return fmt.Errorf("expected register arg1")
	}
	reg := int(a1.Register)
	out.RS1 = reg
	out.RD = reg

	switch inst.Format.Arg2 {
	case bytecode.ArgNone:
		return nil
	}

	a2, err := inst.Arg2Value()
	if err != nil {
		return err
	}
	switch a2.Kind {
	case bytecode.ArgValRegister:
		out.RS2 = int(a2.Register)
	case bytecode.ArgValImmediate:
		out.Immediate = a2.Imm
		out.HasImmediate = true
	case bytecode.ArgValNone:
	default:
		return fmt.Errorf("unexpected arg2 kind for %s", inst.Opcode)
	}
	return nil
}

// decodeControl handles Jmp/JmpIf*/Call/Ret/Cmp/Test.
func decodeControl(inst bytecode.Instruction, pc uint64, out *DecodeExecuteLatch) error {
	switch inst.Opcode {
	case bytecode.Ret:
		out.StackOp = StackOpPop
		return nil
	case bytecode.Cmp, bytecode.Test:
		a1, err := inst.Arg1Value()
		if err != nil {
			return err
		}
		if a1.Kind != bytecode.ArgValRegister {
			return fmt.Errorf("expected register arg1")
		}
		out.RS1 = int(a1.Register)

		a2, err := inst.Arg2Value()
		if err != nil {
			return err
		}
		switch a2.Kind {
		case bytecode.ArgValRegister:
			out.RS2 = int(a2.Register)
		case bytecode.ArgValImmediate:
			out.Immediate = a2.Imm
			out.HasImmediate = true
		}
		return nil
	}

	// Jmp and every JmpIf* variant, plus Call: a single relative or
	// absolute address operand. The relative form is PC-relative to the
	// instruction *following* this one (spec.md §4.9).
	a1, err := inst.Arg1Value()
	if err != nil {
		return err
	}
	next := pc + uint64(inst.TotalSize())
	switch a1.Kind {
	case bytecode.ArgValRelativeAddr:
		out.BranchAddr = uint64(int64(next) + int64(a1.Rel))
		out.HasBranchAddr = true
	case bytecode.ArgValAbsoluteAddr:
		out.BranchAddr = uint64(a1.Abs)
		out.HasBranchAddr = true
	default:
		return fmt.Errorf("expected address arg1 for %s", inst.Opcode)
	}

	if inst.Opcode == bytecode.Call {
		out.StackOp = StackOpPush
	}
	return nil
}

// resolveAddress reads the base register's current value and adds the
// signed offset, matching original_source/src/pipeline/decode.rs's
// calculate_memory_address: the address is resolved once at Decode time
// from the un-forwarded register file, exactly like the original.
func resolveAddress(regs *registers.File, base uint8, offset int8) (uint64, error) {
	v, err := regs.Read(int(base))
	if err != nil {
		return 0, err
	}
	return uint64(int64(v) + int64(offset)), nil
}

// decodeMemory handles Load/Store family, Push, Pop.
func decodeMemory(inst bytecode.Instruction, out *DecodeExecuteLatch, regs *registers.File) error {
	switch inst.Opcode {
	case bytecode.Push:
		a1, err := inst.Arg1Value()
		if err != nil {
			return err
		}
		if a1.Kind != bytecode.ArgValRegister {
			return fmt.Errorf("expected register arg1")
		}
		out.RS1 = int(a1.Register)
		out.StackOp = StackOpPush
		return nil
	case bytecode.Pop:
		a1, err := inst.Arg1Value()
		if err != nil {
			return err
		}
		if a1.Kind != bytecode.ArgValRegister {
			return fmt.Errorf("expected register arg1")
		}
		out.RD = int(a1.Register)
		out.StackOp = StackOpPop
		return nil
	}

	a1, err := inst.Arg1Value()
	if err != nil {
		return err
	}
	if a1.Kind != bytecode.ArgValRegister {
		return fmt.Errorf("expected register arg1")
	}
	reg := int(a1.Register)
	if bytecode.IsLoad(inst.Opcode) {
		out.RD = reg
	} else {
		out.RS1 = reg
	}

	a2, err := inst.Arg2Value()
	if err != nil {
		return err
	}
	switch a2.Kind {
	case bytecode.ArgValAbsoluteAddr:
		out.MemAddr = uint64(a2.Abs)
		out.HasMemAddr = true
	case bytecode.ArgValRegisterOffset:
		addr, err := resolveAddress(regs, a2.OffsetOf, a2.Offset)
		if err != nil {
			return err
		}
		out.MemAddr = addr
		out.HasMemAddr = true
	case bytecode.ArgValRegister:
		// Plain register: its value is the address (indirect form).
		v, err := regs.Read(int(a2.Register))
		if err != nil {
			return err
		}
		out.MemAddr = v
		out.HasMemAddr = true
	default:
		return fmt.Errorf("unexpected address operand for %s", inst.Opcode)
	}
	return nil
}

// decodeFpu handles the FPU opcode range. Every op but FpuLoad is
// accumulate-style: FPDst doubles as the first source operand. Register
// operands use ArgRegisterExt (full 8-bit index into the 32-entry FPU
// file), so they decode through the ordinary Arg1Value/Arg2Value path.
func decodeFpu(inst bytecode.Instruction, out *DecodeExecuteLatch, regs *registers.File) error {
	a1, err := inst.Arg1Value()
	if err != nil {
		return err
	}
	if a1.Kind != bytecode.ArgValRegister {
		return fmt.Errorf("expected register arg1 for %s", inst.Opcode)
	}
	if a1.Register >= 32 {
		return fmt.Errorf("fpu register index %d out of range", a1.Register)
	}
	out.FPDst = int(a1.Register)

	switch inst.Opcode {
	case bytecode.FpuLoad:
		a2, err := inst.Arg2Value()
		if err != nil {
			return err
		}
		if a2.Kind != bytecode.ArgValImmediate {
			return fmt.Errorf("expected immediate arg2 for fload")
		}
		out.Immediate = a2.Imm
		out.HasImmediate = true
		return nil
	case bytecode.FpuStore:
		a2, err := inst.Arg2Value()
		if err != nil {
			return err
		}
		switch a2.Kind {
		case bytecode.ArgValRegisterOffset:
			addr, err := resolveAddress(regs, a2.OffsetOf, a2.Offset)
			if err != nil {
				return err
			}
			out.MemAddr = addr
			out.HasMemAddr = true
		case bytecode.ArgValAbsoluteAddr:
			out.MemAddr = uint64(a2.Abs)
			out.HasMemAddr = true
		default:
			return fmt.Errorf("unexpected address operand for fstore")
		}
		return nil
	case bytecode.FpuSqrt, bytecode.FpuAbs, bytecode.FpuNeg, bytecode.FpuRound,
		bytecode.FpuFloor, bytecode.FpuTrunc:
		// Unary: FPDst doubles as the operand unless a second register
		// names a distinct source.
		if inst.Format.Arg2 == bytecode.ArgNone {
			return nil
		}
		a2, err := inst.Arg2Value()
		if err != nil {
			return err
		}
		if a2.Kind != bytecode.ArgValRegister {
			return fmt.Errorf("expected register arg2 for %s", inst.Opcode)
		}
		if a2.Register >= 32 {
			return fmt.Errorf("fpu register index %d out of range", a2.Register)
		}
		out.FPSrc2 = int(a2.Register)
		return nil
	case bytecode.FpuConvert:
		if len(inst.Args) > 1 {
			out.FPConvertNarrow = inst.Args[1] != 0
		}
		return nil
	}

	// FpuAdd/Sub/Mul/Div/Min/Max/Cmp: binary, second operand register.
	a2, err := inst.Arg2Value()
	if err != nil {
		return err
	}
	if a2.Kind != bytecode.ArgValRegister {
		return fmt.Errorf("expected register arg2 for %s", inst.Opcode)
	}
	if a2.Register >= 32 {
		return fmt.Errorf("fpu register index %d out of range", a2.Register)
	}
	out.FPSrc2 = int(a2.Register)
	return nil
}

// decodeSimd handles the Simd128/Simd256 opcode ranges. Register
// operands (vector register indices 0..15) use ArgRegisterExt the same
// way FPU operands do. Where an operation needs a third field the
// 2-slot format cannot carry — an element-type tag, or a 16/32-byte
// constant/shuffle mask — those bytes are appended to Args past the
// formatted portion and read directly (see DESIGN.md).
func decodeSimd(inst bytecode.Instruction, out *DecodeExecuteLatch, width int, regs *registers.File) error {
	out.VecWidth = width
	maskLen := 16
	if width == 256 {
		maskLen = 32
	}

	a1, err := inst.Arg1Value()
	if err != nil {
		return err
	}
	if a1.Kind != bytecode.ArgValRegister {
		return fmt.Errorf("expected register arg1 for %s", inst.Opcode)
	}
	if int(a1.Register) >= registers.VectorCount {
		return fmt.Errorf("vector register index %d out of range", a1.Register)
	}
	out.VecDst = int(a1.Register)
	trailing := inst.Args[1:]

	switch inst.Opcode {
	case bytecode.Simd128Load, bytecode.Simd256Load, bytecode.Simd128Store, bytecode.Simd256Store:
		a2, err := inst.Arg2Value()
		if err != nil {
			return err
		}
		if a2.Kind != bytecode.ArgValRegisterOffset {
			return fmt.Errorf("expected register-offset address for %s", inst.Opcode)
		}
		addr, err := resolveAddress(regs, a2.OffsetOf, a2.Offset)
		if err != nil {
			return err
		}
		out.MemAddr = addr
		out.HasMemAddr = true
		return nil
	}

	if inst.Format.Arg2 != bytecode.ArgNone {
		a2, err := inst.Arg2Value()
		if err != nil {
			return err
		}
		if a2.Kind != bytecode.ArgValRegister {
			return fmt.Errorf("expected register arg2 for %s", inst.Opcode)
		}
		if int(a2.Register) >= registers.VectorCount {
			return fmt.Errorf("vector register index %d out of range", a2.Register)
		}
		out.VecSrc2 = int(a2.Register)
		trailing = inst.Args[2:]
	}

	switch inst.Opcode {
	case bytecode.Simd128Const, bytecode.Simd256Const, bytecode.Simd128ConstF32, bytecode.Simd256ConstF32,
		bytecode.ConstI16x8, bytecode.ConstI64x2, bytecode.ConstF64x2,
		bytecode.ConstI16x16, bytecode.ConstI64x4, bytecode.ConstF64x4:
		if len(trailing) < maskLen {
			return fmt.Errorf("truncated constant bytes for %s", inst.Opcode)
		}
		out.VecConstBytes = append([]byte(nil), trailing[:maskLen]...)
		out.VecElemType = simdConstElemType(inst.Opcode)
		return nil
	case bytecode.Simd128Shuffle, bytecode.Simd256Shuffle:
		if len(trailing) < maskLen {
			return fmt.Errorf("truncated shuffle mask for %s", inst.Opcode)
		}
		out.VecConstBytes = append([]byte(nil), trailing[:maskLen]...)
		return nil
	default:
		if len(trailing) < 1 {
			return fmt.Errorf("missing element-type tag for %s", inst.Opcode)
		}
		out.VecElemType = alu.ElementType(trailing[0])
		return nil
	}
}

func simdConstElemType(op bytecode.Opcode) alu.ElementType {
	switch op {
	case bytecode.Simd128ConstF32, bytecode.Simd256ConstF32:
		return alu.F32x4
	case bytecode.ConstI16x8:
		return alu.I16x8
	case bytecode.ConstI64x2:
		return alu.I64x2
	case bytecode.ConstF64x2:
		return alu.F64x2
	case bytecode.ConstI16x16:
		return alu.I16x16
	case bytecode.ConstI64x4:
		return alu.I64x4
	case bytecode.ConstF64x4:
		return alu.F64x4
	default:
		return alu.I32x4
	}
}
