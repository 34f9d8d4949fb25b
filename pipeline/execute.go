package pipeline

import (
	"errors"
	"math"

	"github.com/punkvm/punkvm/alu"
	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/predictor"
	"github.com/punkvm/punkvm/vm/memory"
	"github.com/punkvm/punkvm/vm/registers"
)

// ExecuteStage performs the ALU/FPU/vector computation and resolves
// control flow, grounded on original_source/src/pipeline/execute.rs's
// process_direct. Two deliberate departures from that source: Call,
// Ret, and the stack-touching Push/Pop perform a genuine bounds-checked
// push/pop against the architectural stack pointer and memory (the
// original left this commented out, operating on a stand-in counter
// instead); and SIMD Load/Store and FpuStore resolve their memory
// access here rather than threading it through the Memory stage latch,
// since spec.md's hazard/forwarding model only covers general-purpose
// loads and stores (see DESIGN.md).
type ExecuteStage struct {
	StackBase uint64
	StackSize uint64
}

// NewExecuteStage constructs an ExecuteStage bound to the architectural
// stack's address range.
func NewExecuteStage(stackBase, stackSize uint64) *ExecuteStage {
	return &ExecuteStage{StackBase: stackBase, StackSize: stackSize}
}

// Process executes de, given the shared execution units and
// architectural state.
func (e *ExecuteStage) Process(
	de *DecodeExecuteLatch,
	a *alu.ALU,
	fpu *alu.FPU,
	vec *alu.VectorALU,
	vregs *registers.VectorFile,
	regs *registers.File,
	mem *memory.Memory,
	pred predictor.Predictor,
	ras *predictor.RAS,
	btb *predictor.BTB,
) (*ExecuteMemoryLatch, error) {
	if de == nil {
		return nil, nil
	}

	out := &ExecuteMemoryLatch{
		Instruction: de.Instruction,
		PC:          de.PC,
		RD:          de.RD,
		MemAddr:     de.MemAddr,
		HasMemAddr:  de.HasMemAddr,
		StackOp:     de.StackOp,
	}

	rs1 := de.RS1Value
	rs2 := de.RS2Value
	if de.HasImmediate {
		rs2 = de.Immediate
	}

	switch bytecode.CategoryOf(de.Instruction.Opcode) {
	case bytecode.CategoryArithmetic, bytecode.CategoryLogic:
		if err := e.executeAluLike(de, a, rs1, rs2, out); err != nil {
			return nil, err
		}

	case bytecode.CategoryControl:
		if err := e.executeControl(de, a, rs1, rs2, regs, mem, pred, ras, btb, out); err != nil {
			return nil, err
		}

	case bytecode.CategoryMemory:
		if err := e.executeMemory(de, rs1, regs, mem, out); err != nil {
			return nil, err
		}

	case bytecode.CategorySpecial:
		switch de.Instruction.Opcode {
		case bytecode.Halt:
			out.Halted = true
		case bytecode.Break:
			// No-op: a debugger trap point, not modeled further.
		case bytecode.Syscall:
			return nil, &ExecutionError{Kind: UnsupportedOpcode, PC: de.PC, Msg: "syscall"}
		}

	case bytecode.CategoryFPU:
		if err := e.executeFpu(de, fpu, mem, out); err != nil {
			return nil, err
		}

	case bytecode.CategorySimd128:
		if err := e.executeSimd(de, vec, vregs, mem, regs, 128, out); err != nil {
			return nil, err
		}

	case bytecode.CategorySimd256:
		if err := e.executeSimd(de, vec, vregs, mem, regs, 256, out); err != nil {
			return nil, err
		}

	default:
		return nil, &ExecutionError{Kind: UnsupportedOpcode, PC: de.PC, Msg: de.Instruction.Opcode.String()}
	}

	if bytecode.IsBranch(de.Instruction.Opcode) {
		out.BranchPredictionCorrect = (de.BranchPrediction == predictor.Taken) == out.BranchTaken
	}

	return out, nil
}

var aluLikeOps = map[bytecode.Opcode]alu.Op{
	bytecode.Add: alu.OpAdd, bytecode.Sub: alu.OpSub, bytecode.Mul: alu.OpMul,
	bytecode.Div: alu.OpDiv, bytecode.Mod: alu.OpMod,
	bytecode.Inc: alu.OpInc, bytecode.Dec: alu.OpDec, bytecode.Neg: alu.OpNeg,
	bytecode.And: alu.OpAnd, bytecode.Or: alu.OpOr, bytecode.Xor: alu.OpXor, bytecode.Not: alu.OpNot,
	bytecode.Shl: alu.OpShl, bytecode.Shr: alu.OpShr, bytecode.Sar: alu.OpSar,
	bytecode.Rol: alu.OpRol, bytecode.Ror: alu.OpRor,
}

func (e *ExecuteStage) executeAluLike(de *DecodeExecuteLatch, a *alu.ALU, rs1, rs2 uint64, out *ExecuteMemoryLatch) error {
	if de.Instruction.Opcode == bytecode.Nop {
		return nil
	}
	op, ok := aluLikeOps[de.Instruction.Opcode]
	if !ok {
		return &ExecutionError{Kind: UnsupportedOpcode, PC: de.PC, Msg: de.Instruction.Opcode.String()}
	}
	result, err := a.Execute(op, rs1, rs2)
	if err != nil {
		return aluError(err, de.PC)
	}
	out.ALUResult = result
	return nil
}

// aluError maps an ALU-level fault onto the pipeline's error taxonomy,
// attaching the faulting PC.
func aluError(err error, pc uint64) error {
	var arith *alu.ArithmeticError
	if errors.As(err, &arith) {
		return &ExecutionError{Kind: DivisionByZero, PC: pc, Msg: arith.Msg}
	}
	return err
}

var branchConditions = map[bytecode.Opcode]alu.BranchCondition{
	bytecode.JmpIf: alu.CondEqual, bytecode.JmpIfNot: alu.CondNotEqual,
	bytecode.JmpIfEqual: alu.CondEqual, bytecode.JmpIfNotEqual: alu.CondNotEqual,
	bytecode.JmpIfGreater: alu.CondGreater, bytecode.JmpIfGreaterEqual: alu.CondGreaterEqual,
	bytecode.JmpIfLess: alu.CondLess, bytecode.JmpIfLessEqual: alu.CondLessEqual,
	bytecode.JmpIfAbove: alu.CondAbove, bytecode.JmpIfAboveEqual: alu.CondAboveEqual,
	bytecode.JmpIfBelow: alu.CondBelow, bytecode.JmpIfBelowEqual: alu.CondBelowEqual,
	bytecode.JmpIfZero: alu.CondEqual, bytecode.JmpIfNotZero: alu.CondNotEqual,
	bytecode.JmpIfOverflow: alu.CondOverflow, bytecode.JmpIfNotOverflow: alu.CondNotOverflow,
	bytecode.JmpIfPositive: alu.CondPositive, bytecode.JmpIfNegative: alu.CondNegative,
}

func (e *ExecuteStage) executeControl(
	de *DecodeExecuteLatch,
	a *alu.ALU,
	rs1, rs2 uint64,
	regs *registers.File,
	mem *memory.Memory,
	pred predictor.Predictor,
	ras *predictor.RAS,
	btb *predictor.BTB,
	out *ExecuteMemoryLatch,
) error {
	defer func() {
		if btb != nil && bytecode.IsBranch(de.Instruction.Opcode) {
			btb.Update(de.PC, out.BranchTarget, out.BranchTaken)
		}
	}()
	switch de.Instruction.Opcode {
	case bytecode.Cmp:
		if _, err := a.Execute(alu.OpCmp, rs1, rs2); err != nil {
			return aluError(err, de.PC)
		}
		return nil
	case bytecode.Test:
		if _, err := a.Execute(alu.OpTest, rs1, rs2); err != nil {
			return aluError(err, de.PC)
		}
		return nil

	case bytecode.Jmp:
		out.BranchTaken = true
		out.BranchTarget = de.BranchAddr
		e.updatePredictor(de, pred, true)

	case bytecode.Call:
		out.BranchTaken = true
		out.BranchTarget = de.BranchAddr
		returnAddr := de.PC + uint64(de.Instruction.TotalSize())
		if err := pushStack(regs, mem, e.StackBase, returnAddr); err != nil {
			return &ExecutionError{Kind: StackOverflow, PC: de.PC, Msg: err.Error()}
		}
		if ras != nil {
			ras.Push(returnAddr)
		}
		e.updatePredictor(de, pred, true)

	case bytecode.Ret:
		returnAddr, err := popStack(regs, mem, e.StackBase, e.StackSize)
		if err != nil {
			return &ExecutionError{Kind: StackUnderflow, PC: de.PC, Msg: err.Error()}
		}
		out.BranchTaken = true
		out.BranchTarget = returnAddr
		out.HasRASCheck = true
		if ras != nil {
			if predicted, ok := ras.Pop(); ok {
				out.RASPredictionCorrect = predicted == returnAddr
			}
		}
		e.updatePredictor(de, pred, true)

	default:
		cond, ok := branchConditions[de.Instruction.Opcode]
		if !ok {
			return &ExecutionError{Kind: UnsupportedOpcode, PC: de.PC, Msg: de.Instruction.Opcode.String()}
		}
		taken := alu.CheckCondition(cond, a.Flags)
		out.BranchTaken = taken
		if taken {
			out.BranchTarget = de.BranchAddr
		}
		e.updatePredictor(de, pred, taken)
	}
	return nil
}

func (e *ExecuteStage) updatePredictor(de *DecodeExecuteLatch, pred predictor.Predictor, taken bool) {
	if pred == nil {
		return
	}
	pred.Update(de.PC, taken, de.BranchPrediction)
}

func (e *ExecuteStage) executeMemory(de *DecodeExecuteLatch, rs1 uint64, regs *registers.File, mem *memory.Memory, out *ExecuteMemoryLatch) error {
	switch de.Instruction.Opcode {
	case bytecode.Load, bytecode.LoadB, bytecode.LoadW, bytecode.LoadD:
		// Finalized by the Memory stage once mem_addr is available.
		return nil
	case bytecode.Store, bytecode.StoreB, bytecode.StoreW, bytecode.StoreD:
		out.StoreValue = rs1
		out.HasStore = true
		return nil
	case bytecode.Push:
		if err := pushStack(regs, mem, e.StackBase, rs1); err != nil {
			return &ExecutionError{Kind: StackOverflow, PC: de.PC, Msg: err.Error()}
		}
		return nil
	case bytecode.Pop:
		v, err := popStack(regs, mem, e.StackBase, e.StackSize)
		if err != nil {
			return &ExecutionError{Kind: StackUnderflow, PC: de.PC, Msg: err.Error()}
		}
		out.ALUResult = v
		return nil
	}
	return &ExecutionError{Kind: UnsupportedOpcode, PC: de.PC, Msg: de.Instruction.Opcode.String()}
}

// pushStack implements the bounds-checked architectural stack push
// grounded on original_source/src/pvm/stacks.rs's push_stack: SP must
// be at least stackBase+8 before the push, so the new SP never drops
// below stackBase.
func pushStack(regs *registers.File, mem *memory.Memory, stackBase uint64, value uint64) error {
	sp, err := regs.Read(registers.SP)
	if err != nil {
		return err
	}
	if sp < stackBase+8 {
		return &ExecutionError{Kind: StackOverflow, Msg: "sp below stack base"}
	}
	newSP := sp - 8
	if err := mem.WriteQword(newSP, value); err != nil {
		return err
	}
	return regs.Write(registers.SP, newSP)
}

// popStack implements the bounds-checked architectural stack pop
// grounded on original_source/src/pvm/stacks.rs's pop_stack: SP must
// be below stackBase+stackSize before the pop, so the new SP never
// rises above the stack top.
func popStack(regs *registers.File, mem *memory.Memory, stackBase, stackSize uint64) (uint64, error) {
	sp, err := regs.Read(registers.SP)
	if err != nil {
		return 0, err
	}
	if sp >= stackBase+stackSize {
		return 0, &ExecutionError{Kind: StackUnderflow, Msg: "sp at or above stack top"}
	}
	value, err := mem.ReadQword(sp)
	if err != nil {
		return 0, err
	}
	if err := regs.Write(registers.SP, sp+8); err != nil {
		return 0, err
	}
	return value, nil
}

var fpuOps = map[bytecode.Opcode]alu.FpuOp{
	bytecode.FpuAdd: alu.FpuOpAdd, bytecode.FpuSub: alu.FpuOpSub, bytecode.FpuMul: alu.FpuOpMul,
	bytecode.FpuDiv: alu.FpuOpDiv, bytecode.FpuSqrt: alu.FpuOpSqrt, bytecode.FpuMin: alu.FpuOpMin,
	bytecode.FpuMax: alu.FpuOpMax, bytecode.FpuCmp: alu.FpuOpCmp, bytecode.FpuAbs: alu.FpuOpAbs,
	bytecode.FpuNeg: alu.FpuOpNeg, bytecode.FpuRound: alu.FpuOpRound, bytecode.FpuFloor: alu.FpuOpFloor,
	bytecode.FpuTrunc: alu.FpuOpTrunc, bytecode.FpuConvert: alu.FpuOpConvert,
}

func (e *ExecuteStage) executeFpu(de *DecodeExecuteLatch, fpu *alu.FPU, mem *memory.Memory, out *ExecuteMemoryLatch) error {
	switch de.Instruction.Opcode {
	case bytecode.FpuLoad:
		fpu.Regs[de.FPDst] = math.Float64frombits(de.Immediate)
		return nil
	case bytecode.FpuStore:
		if !de.HasMemAddr {
			return &ExecutionError{Kind: UnsupportedOpcode, PC: de.PC, Msg: "fstore without address"}
		}
		bits := math.Float64bits(fpu.Regs[de.FPDst])
		out.MemAddr = de.MemAddr
		out.HasMemAddr = true
		if err := mem.WriteQword(de.MemAddr, bits); err != nil {
			return err
		}
		return nil
	}

	op, ok := fpuOps[de.Instruction.Opcode]
	if !ok {
		return &ExecutionError{Kind: UnsupportedOpcode, PC: de.PC, Msg: de.Instruction.Opcode.String()}
	}
	src1 := fpu.Regs[de.FPDst]
	var src2 float64
	if de.FPSrc2 != NoReg {
		src2 = fpu.Regs[de.FPSrc2]
	}
	// Unary ops with an explicit second register read their operand from
	// it instead of the accumulate-style dst ("fsqrt F1, F0" computes
	// sqrt(F0) into F1).
	switch de.Instruction.Opcode {
	case bytecode.FpuSqrt, bytecode.FpuAbs, bytecode.FpuNeg,
		bytecode.FpuRound, bytecode.FpuFloor, bytecode.FpuTrunc:
		if de.FPSrc2 != NoReg {
			src1 = src2
		}
	}
	prec := alu.PrecisionDouble
	if de.Instruction.Opcode == bytecode.FpuConvert && de.FPConvertNarrow {
		prec = alu.PrecisionSingle
	}
	result := fpu.Execute(op, src1, src2, prec)
	fpu.Regs[de.FPDst] = result
	return nil
}

var vectorOps = map[bytecode.Opcode]alu.VectorOp{
	bytecode.Simd128Add: alu.VecAdd, bytecode.Simd128Sub: alu.VecSub, bytecode.Simd128Mul: alu.VecMul,
	bytecode.Simd128Div: alu.VecDiv, bytecode.Simd128And: alu.VecAnd, bytecode.Simd128Or: alu.VecOr,
	bytecode.Simd128Xor: alu.VecXor, bytecode.Simd128Not: alu.VecNot, bytecode.Simd128Min: alu.VecMin,
	bytecode.Simd128Max: alu.VecMax, bytecode.Simd128Sqrt: alu.VecSqrt, bytecode.Simd128Cmp: alu.VecCmp,
	bytecode.Simd256Add: alu.VecAdd, bytecode.Simd256Sub: alu.VecSub, bytecode.Simd256Mul: alu.VecMul,
	bytecode.Simd256Div: alu.VecDiv, bytecode.Simd256And: alu.VecAnd, bytecode.Simd256Or: alu.VecOr,
	bytecode.Simd256Xor: alu.VecXor, bytecode.Simd256Not: alu.VecNot, bytecode.Simd256Min: alu.VecMin,
	bytecode.Simd256Max: alu.VecMax, bytecode.Simd256Sqrt: alu.VecSqrt, bytecode.Simd256Cmp: alu.VecCmp,
}

func (e *ExecuteStage) executeSimd(
	de *DecodeExecuteLatch,
	vec *alu.VectorALU,
	vregs *registers.VectorFile,
	mem *memory.Memory,
	regs *registers.File,
	width int,
	out *ExecuteMemoryLatch,
) error {
	switch de.Instruction.Opcode {
	case bytecode.Simd128Load, bytecode.Simd256Load:
		n := width / 8
		raw, err := mem.ReadBytes(de.MemAddr, n)
		if err != nil {
			return err
		}
		out.MemAddr = de.MemAddr
		out.HasMemAddr = true
		return writeVectorRaw(vregs, de.VecDst, width, raw)
	case bytecode.Simd128Store, bytecode.Simd256Store:
		raw, err := readVectorRaw(vregs, de.VecDst, width)
		if err != nil {
			return err
		}
		out.MemAddr = de.MemAddr
		out.HasMemAddr = true
		return mem.WriteBytes(de.MemAddr, raw)
	case bytecode.Simd128Const, bytecode.Simd256Const, bytecode.Simd128ConstF32, bytecode.Simd256ConstF32,
		bytecode.ConstI16x8, bytecode.ConstI64x2, bytecode.ConstF64x2,
		bytecode.ConstI16x16, bytecode.ConstI64x4, bytecode.ConstF64x4:
		return writeVectorRaw(vregs, de.VecDst, width, de.VecConstBytes)
	case bytecode.Simd128Shuffle:
		src, err := vregs.ReadV128(de.VecDst)
		if err != nil {
			return err
		}
		var mask alu.V128
		copy(mask[:], de.VecConstBytes)
		return vregs.WriteV128(de.VecDst, alu.Shuffle128(src, mask))
	case bytecode.Simd256Shuffle:
		src, err := vregs.ReadV256(de.VecDst)
		if err != nil {
			return err
		}
		var mask alu.V256
		copy(mask[:], de.VecConstBytes)
		return vregs.WriteV256(de.VecDst, alu.Shuffle256(src, mask))
	}

	op, ok := vectorOps[de.Instruction.Opcode]
	if !ok {
		return &ExecutionError{Kind: UnsupportedOpcode, PC: de.PC, Msg: de.Instruction.Opcode.String()}
	}
	if width == 128 {
		src1, err := vregs.ReadV128(de.VecDst)
		if err != nil {
			return err
		}
		var src2 alu.V128
		if de.VecSrc2 != NoReg {
			src2, err = vregs.ReadV128(de.VecSrc2)
			if err != nil {
				return err
			}
		}
		result, err := vec.ExecuteV128(op, src1, src2, de.VecElemType)
		if err != nil {
			return err
		}
		return vregs.WriteV128(de.VecDst, result)
	}
	src1, err := vregs.ReadV256(de.VecDst)
	if err != nil {
		return err
	}
	var src2 alu.V256
	if de.VecSrc2 != NoReg {
		src2, err = vregs.ReadV256(de.VecSrc2)
		if err != nil {
			return err
		}
	}
	result, err := vec.ExecuteV256(op, src1, src2, de.VecElemType)
	if err != nil {
		return err
	}
	return vregs.WriteV256(de.VecDst, result)
}

func writeVectorRaw(vregs *registers.VectorFile, idx, width int, raw []byte) error {
	if width == 128 {
		var v alu.V128
		copy(v[:], raw)
		return vregs.WriteV128(idx, v)
	}
	var v alu.V256
	copy(v[:], raw)
	return vregs.WriteV256(idx, v)
}

func readVectorRaw(vregs *registers.VectorFile, idx, width int) ([]byte, error) {
	if width == 128 {
		v, err := vregs.ReadV128(idx)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), v[:]...), nil
	}
	v, err := vregs.ReadV256(idx)
	if err != nil {
		return nil, err
	}
	return append([]byte(nil), v[:]...), nil
}
