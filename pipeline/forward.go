package pipeline

import "github.com/punkvm/punkvm/bytecode"

// ForwardingUnit bypasses results from the Execute→Memory and
// Memory→Writeback latches into a Decode→Execute latch's operand
// values, in priority order, grounded on
// original_source/src/pipeline/forward.rs. Load-use hazards are
// deliberately NOT forwarded here: HazardUnit stalls that case one
// cycle instead (spec.md §4.7).
type ForwardingUnit struct {
	forwardsCount uint64
}

// Forward populates de.RS1Value/RS2Value with, in priority order: (1)
// em's ALUResult if its RD matches, unless em is itself a Load (a
// load-use hazard, which the caller must have already stalled for);
// (2) mw's Result if its RD matches; (3) the value already read from
// the architectural register file (left untouched if neither matches).
func (f *ForwardingUnit) Forward(de *DecodeExecuteLatch, em *ExecuteMemoryLatch, mw *MemoryWritebackLatch) {
	if de == nil {
		return
	}
	if de.RS1 < 0 && de.RS2 < 0 {
		return
	}

	if em != nil && em.RD >= 0 && !bytecode.IsLoad(em.Instruction.Opcode) {
		if de.RS1 == em.RD {
			de.RS1Value = em.ALUResult
			f.forwardsCount++
		}
		if de.RS2 == em.RD {
			de.RS2Value = em.ALUResult
			f.forwardsCount++
		}
	}

	if mw != nil && mw.RD >= 0 {
		if de.RS1 == mw.RD && !(em != nil && em.RD == de.RS1 && !bytecode.IsLoad(em.Instruction.Opcode)) {
			de.RS1Value = mw.Result
			f.forwardsCount++
		}
		if de.RS2 == mw.RD && !(em != nil && em.RD == de.RS2 && !bytecode.IsLoad(em.Instruction.Opcode)) {
			de.RS2Value = mw.Result
			f.forwardsCount++
		}
	}
}

// ForwardsCount returns the number of operand values bypassed since
// the last Reset.
func (f *ForwardingUnit) ForwardsCount() uint64 { return f.forwardsCount }

// Reset clears the forwarding counter.
func (f *ForwardingUnit) Reset() { f.forwardsCount = 0 }
