package pipeline

import (
	"testing"

	"github.com/punkvm/punkvm/bytecode"
)

func TestForwardFromExecuteMemory(t *testing.T) {
	var f ForwardingUnit

	de := &DecodeExecuteLatch{RS1: 1, RS2: -1, RS1Value: 0xDEAD}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Add}, RD: 1, ALUResult: 7}

	f.Forward(de, em, nil)

	if de.RS1Value != 7 {
		t.Errorf("RS1Value = %d, want 7 forwarded from EX/MEM", de.RS1Value)
	}
	if f.ForwardsCount() != 1 {
		t.Errorf("ForwardsCount = %d, want 1", f.ForwardsCount())
	}
}

func TestForwardFromMemoryWriteback(t *testing.T) {
	var f ForwardingUnit

	de := &DecodeExecuteLatch{RS1: -1, RS2: 4, RS2Value: 0xDEAD}
	mw := &MemoryWritebackLatch{RD: 4, Result: 99}

	f.Forward(de, nil, mw)

	if de.RS2Value != 99 {
		t.Errorf("RS2Value = %d, want 99 forwarded from MEM/WB", de.RS2Value)
	}
}

func TestForwardExecuteMemoryTakesPriorityOverMemoryWriteback(t *testing.T) {
	var f ForwardingUnit

	de := &DecodeExecuteLatch{RS1: 2, RS2: -1}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Add}, RD: 2, ALUResult: 111}
	mw := &MemoryWritebackLatch{RD: 2, Result: 222}

	f.Forward(de, em, mw)

	if de.RS1Value != 111 {
		t.Errorf("RS1Value = %d, want the newer EX/MEM value (111), not the stale MEM/WB one", de.RS1Value)
	}
}

func TestForwardSkipsLoadInExecuteMemory(t *testing.T) {
	var f ForwardingUnit

	de := &DecodeExecuteLatch{RS1: 3, RS2: -1, RS1Value: 42}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Load}, RD: 3, ALUResult: 0}

	f.Forward(de, em, nil)

	if de.RS1Value != 42 {
		t.Errorf("a pending load must never forward here; HazardUnit should have stalled instead, got RS1Value=%d", de.RS1Value)
	}
	if f.ForwardsCount() != 0 {
		t.Errorf("ForwardsCount = %d, want 0", f.ForwardsCount())
	}
}

func TestForwardNoMatchLeavesValueUntouched(t *testing.T) {
	var f ForwardingUnit

	de := &DecodeExecuteLatch{RS1: 1, RS2: -1, RS1Value: 55}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Add}, RD: 9, ALUResult: 7}

	f.Forward(de, em, nil)

	if de.RS1Value != 55 {
		t.Errorf("RS1Value = %d, want unchanged 55 since no RD matched", de.RS1Value)
	}
}

func TestForwardReset(t *testing.T) {
	var f ForwardingUnit
	de := &DecodeExecuteLatch{RS1: 1, RS2: -1}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Add}, RD: 1, ALUResult: 7}
	f.Forward(de, em, nil)

	f.Reset()

	if f.ForwardsCount() != 0 {
		t.Errorf("Reset should zero the forward counter, got %d", f.ForwardsCount())
	}
}
