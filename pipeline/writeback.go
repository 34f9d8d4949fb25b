package pipeline

import "github.com/punkvm/punkvm/vm/registers"

// WritebackStage commits a completed instruction's result to the
// architectural register file, grounded on
// original_source/src/pipeline/writeback.rs. Carries no state of its
// own.
type WritebackStage struct{}

// Process writes mw.Result into register mw.RD, if any.
func (WritebackStage) Process(mw *MemoryWritebackLatch, regs *registers.File) error {
	if mw == nil {
		return nil
	}
	if mw.RD == NoReg {
		return nil
	}
	return regs.Write(mw.RD, mw.Result)
}
