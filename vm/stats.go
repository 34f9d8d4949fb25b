package vm

// Stats aggregates the execution statistics SPEC_FULL.md §4.14 adds on
// top of spec.md: per-cycle pipeline counters plus prediction accuracy
// and stack usage, grounded on original_source/src/pvm/vm.rs's
// VMStatistics/DetailedStats (instructions_executed, cycles,
// pipeline_stalls, cache_hits) with cache_hits dropped (no cache layer)
// and branch/BTB/stack fields added from the same source's
// branch_predictor/stacks modules, which the distilled spec.md only
// keeps as scattered counters.
type Stats struct {
	Cycles           uint64
	InstructionsRetired uint64
	Stalls           uint64
	LoadUseStalls    uint64
	StructuralStalls uint64
	Forwards         uint64
	BranchFlushes    uint64
	BranchAccuracy   float64
	BTBHitRate       float64
	// StackHighWaterMark is the largest number of bytes ever pushed onto
	// the stack (stack_base+stack_size minus the lowest SP observed).
	StackHighWaterMark uint64
}

// Stats returns a snapshot of the VM's accumulated execution
// statistics.
func (v *VM) Stats() Stats {
	top := v.stackBase + v.cfg.StackSize
	high := uint64(0)
	if v.stackLow < top {
		high = top - v.stackLow
	}
	return Stats{
		Cycles:              v.pipe.Stats.Cycles,
		InstructionsRetired: v.pipe.Stats.Instructions,
		Stalls:              v.pipe.Stats.Stalls,
		LoadUseStalls:       v.pipe.Stats.LoadUseStalls,
		StructuralStalls:    v.pipe.Stats.StructuralStalls,
		Forwards:            v.pipe.Stats.Forwards,
		BranchFlushes:       v.pipe.Stats.BranchFlushes,
		BranchAccuracy:      v.pred.Accuracy(),
		BTBHitRate:          v.btb.HitRate(),
		StackHighWaterMark:  high,
	}
}
