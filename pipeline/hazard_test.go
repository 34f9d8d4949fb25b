package pipeline

import (
	"testing"

	"github.com/punkvm/punkvm/bytecode"
)

func TestHazardUnitLoadUseStall(t *testing.T) {
	var h HazardUnit

	de := &DecodeExecuteLatch{RS1: 2, RS2: -1, RD: 3}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Load}, RD: 2}

	if !h.Stall(de, em, nil) {
		t.Fatalf("expected load-use hazard to stall when RS1 depends on a pending load")
	}
	if h.LoadUseStalls() != 1 {
		t.Errorf("LoadUseStalls = %d, want 1", h.LoadUseStalls())
	}
	if h.HazardsDetected() != 1 {
		t.Errorf("HazardsDetected = %d, want 1", h.HazardsDetected())
	}
}

func TestHazardUnitNoStallWhenLoadDestUnused(t *testing.T) {
	var h HazardUnit

	de := &DecodeExecuteLatch{RS1: 5, RS2: -1, RD: 3}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Load}, RD: 2}

	if h.Stall(de, em, nil) {
		t.Errorf("should not stall: decode's operands don't depend on the pending load's destination")
	}
}

func TestHazardUnitNoStallOnNonLoad(t *testing.T) {
	var h HazardUnit

	de := &DecodeExecuteLatch{RS1: 2, RS2: -1, RD: 3}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Add}, RD: 2}

	if h.Stall(de, em, nil) {
		t.Errorf("an ordinary ALU op in flight should be resolved by forwarding, not a stall")
	}
}

func TestHazardUnitStructuralStall(t *testing.T) {
	var h HazardUnit

	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Store}}
	mw := &MemoryWritebackLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Load}}

	if !h.Stall(nil, em, mw) {
		t.Fatalf("expected a structural hazard when two memory ops contend for the port")
	}
	if h.StructuralStalls() != 1 {
		t.Errorf("StructuralStalls = %d, want 1", h.StructuralStalls())
	}
}

func TestHazardUnitNilLatchesNeverStall(t *testing.T) {
	var h HazardUnit
	if h.Stall(nil, nil, nil) {
		t.Errorf("all-empty latches must never stall")
	}
	if h.HazardsDetected() != 0 {
		t.Errorf("HazardsDetected = %d, want 0", h.HazardsDetected())
	}
}

func TestHazardUnitReset(t *testing.T) {
	var h HazardUnit
	de := &DecodeExecuteLatch{RS1: 2, RS2: -1, RD: 3}
	em := &ExecuteMemoryLatch{Instruction: bytecode.Instruction{Opcode: bytecode.Load}, RD: 2}
	h.Stall(de, em, nil)

	h.Reset()

	if h.HazardsDetected() != 0 || h.LoadUseStalls() != 0 || h.StructuralStalls() != 0 {
		t.Errorf("Reset should zero all counters, got hazards=%d loadUse=%d structural=%d",
			h.HazardsDetected(), h.LoadUseStalls(), h.StructuralStalls())
	}
}
