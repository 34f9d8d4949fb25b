package vm

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/punkvm/punkvm/predictor"
	"github.com/punkvm/punkvm/vm/registers"
)

// Snapshot is the gob-encodable, opaque execution-state checkpoint
// SPEC_FULL.md §4.14 adds on top of spec.md, grounded on the teacher's
// pkg/result/checkpoint.go (Checkpoint/SaveCheckpoint/LoadCheckpoint):
// the same gob.Encoder/gob.Decoder round-trip, repurposed from search
// state to VM architectural state.
//
// The predictor's internal tables are deliberately not part of the
// snapshot: every predictor struct (dynamicPredictor, gsharePredictor,
// ...) carries only unexported fields, and none of spec.md's testable
// properties depend on predictor state surviving a snapshot/restore —
// prediction accuracy affects cycle count, not architectural outcome
// (spec.md §5's cancellation-semantics note: a predictor is consulted,
// never relied on, for correctness). Restore therefore reconstructs a
// fresh predictor/BTB/RAS from Config, exactly as Reset does, rather
// than inventing an exported mirror of five different internal table
// shapes purely to serialize them.
type Snapshot struct {
	Config Config

	Registers [registers.Count]uint64
	Vectors   registers.VectorSnapshot
	Memory    []byte

	PC        uint64
	Cycles    uint64
	StackLow  uint64
	Halted    bool

	PipelineStats Stats
}

func init() {
	gob.Register(Snapshot{})
}

// Snapshot captures the VM's integer registers, vector registers,
// memory, PC and cycle count plus its Config. FPU registers and status,
// ALU flags and vector flags are not captured; Restore leaves the
// target VM's own values for those in place.
// The pipeline is drained first: in-flight instructions complete (with
// fetch suspended) so the captured state sits on an instruction
// boundary and PC names the next instruction to fetch.
func (v *VM) Snapshot() Snapshot {
	v.drain()
	return Snapshot{
		Config:        v.cfg,
		Registers:     v.regs.Snapshot(),
		Vectors:       v.vregs.Snapshot(),
		Memory:        v.mem.Bytes(),
		PC:            v.pc,
		Cycles:        v.cycles,
		StackLow:      v.stackLow,
		Halted:        v.pipe.Halted,
		PipelineStats: v.Stats(),
	}
}

// Restore overwrites the VM's architectural state from a Snapshot taken
// earlier from a VM built with the same Config. It does not attempt to
// resume mid-pipeline: in-flight latches are not part of a Snapshot (a
// cycle-boundary checkpoint, matching where the teacher's own
// checkpoint/resume granularity sits — between search tasks, not
// mid-task), so Restore always resumes from a drained pipeline.
func (v *VM) Restore(s Snapshot) error {
	if s.Config.MemorySize != v.cfg.MemorySize || s.Config.StackSize != v.cfg.StackSize {
		return fmt.Errorf("vm: snapshot config mismatch: memory/stack size differ")
	}
	v.regs.Restore(s.Registers)
	v.vregs.Restore(s.Vectors)
	if err := v.mem.Restore(s.Memory); err != nil {
		return fmt.Errorf("vm: restore memory: %w", err)
	}
	v.pred = predictor.New(v.cfg.PredictorMode, v.cfg.PredictorConfig)
	v.ras = predictor.NewRAS(v.cfg.RASSize)
	v.btb = predictor.NewBTB(v.cfg.BTBSize)
	v.pipe.Reset()
	v.pipe.Halted = s.Halted
	v.pc = s.PC
	v.cycles = s.Cycles
	v.stackLow = s.StackLow
	return nil
}

// SaveSnapshot writes v's current state to path as a gob stream,
// grounded on the teacher's SaveCheckpoint.
func (v *VM) SaveSnapshot(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("vm: create snapshot %s: %w", path, err)
	}
	defer f.Close()
	if err := gob.NewEncoder(f).Encode(v.Snapshot()); err != nil {
		return fmt.Errorf("vm: encode snapshot: %w", err)
	}
	return nil
}

// LoadSnapshotFile reads a gob-encoded Snapshot from path, grounded on
// the teacher's LoadCheckpoint.
func LoadSnapshotFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("vm: open snapshot %s: %w", path, err)
	}
	defer f.Close()
	var s Snapshot
	if err := gob.NewDecoder(f).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("vm: decode snapshot: %w", err)
	}
	return s, nil
}
