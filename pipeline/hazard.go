package pipeline

import "github.com/punkvm/punkvm/bytecode"

// HazardUnit detects, per cycle, the RAW/load-use data hazard and the
// structural memory-port conflict between the current latches.
// Control hazards are not stalled here: spec.md's redesign resolves a
// wrong-path fetch by an Execute-stage flush rather than a stall (see
// DESIGN.md), so detect_control_hazards from
// original_source/src/pipeline/hazard.rs has no counterpart in Stall.
type HazardUnit struct {
	hazardsDetected uint64
	loadUseStalls   uint64
	structuralStalls uint64
}

// Stall reports whether the current cycle must freeze Fetch and Decode
// because of a data or structural hazard between the in-flight
// latches. Forwarding unit resolves ordinary RAW hazards; this unit
// only flags the cases forwarding cannot: load-use, and a structural
// conflict for the memory port.
func (h *HazardUnit) Stall(de *DecodeExecuteLatch, em *ExecuteMemoryLatch, mw *MemoryWritebackLatch) bool {
	if h.loadUse(de, em) {
		h.hazardsDetected++
		h.loadUseStalls++
		return true
	}
	if h.structural(em, mw) {
		h.hazardsDetected++
		h.structuralStalls++
		return true
	}
	return false
}

// loadUse reports a load-use hazard: the instruction in Execute→Memory
// is a Load whose destination register feeds an operand of the
// instruction currently in Decode→Execute. Forwarding cannot resolve
// this because the loaded value is not available until the Memory
// stage completes.
func (h *HazardUnit) loadUse(de *DecodeExecuteLatch, em *ExecuteMemoryLatch) bool {
	if de == nil || em == nil {
		return false
	}
	if !bytecode.IsLoad(em.Instruction.Opcode) {
		return false
	}
	if em.RD < 0 {
		return false
	}
	return de.RS1 == em.RD || de.RS2 == em.RD
}

// structural reports a structural hazard: two memory operations
// simultaneously occupy Execute→Memory and Memory→Writeback, both
// wanting the single memory port.
func (h *HazardUnit) structural(em *ExecuteMemoryLatch, mw *MemoryWritebackLatch) bool {
	if em == nil || mw == nil {
		return false
	}
	return bytecode.IsMemory(em.Instruction.Opcode) && bytecode.IsMemory(mw.Instruction.Opcode)
}

// HazardsDetected returns the total number of stall-causing hazards
// observed since the last Reset.
func (h *HazardUnit) HazardsDetected() uint64 { return h.hazardsDetected }

// LoadUseStalls returns the load-use-hazard subset of HazardsDetected.
func (h *HazardUnit) LoadUseStalls() uint64 { return h.loadUseStalls }

// StructuralStalls returns the structural-hazard subset of
// HazardsDetected.
func (h *HazardUnit) StructuralStalls() uint64 { return h.structuralStalls }

// Reset clears the hazard counters.
func (h *HazardUnit) Reset() {
	h.hazardsDetected = 0
	h.loadUseStalls = 0
	h.structuralStalls = 0
}
