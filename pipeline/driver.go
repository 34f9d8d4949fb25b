package pipeline

import (
	"github.com/punkvm/punkvm/alu"
	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/predictor"
	"github.com/punkvm/punkvm/vm/memory"
	"github.com/punkvm/punkvm/vm/registers"
)

// Stats aggregates the pipeline's cycle-level counters.
type Stats struct {
	Cycles            uint64
	Instructions      uint64
	Stalls            uint64
	Hazards           uint64
	LoadUseStalls     uint64
	StructuralStalls  uint64
	Forwards          uint64
	BranchFlushes     uint64
}

// Pipeline wires the five stages together with the inter-stage latches
// and the hazard/forwarding units, grounded structurally on
// original_source/src/pipeline/mod.rs's Pipeline/cycle. Stages execute
// in reverse (Writeback, Memory, Execute, Decode, Fetch) each cycle so
// a stage never reads a latch another stage has already overwritten
// this cycle, without needing a second buffer per latch.
//
// Unlike mod.rs's commented history, a detected hazard here genuinely
// freezes Fetch and Decode and bubbles Execute's input for one cycle
// (see hazard.go); control hazards are not stalled at all, resolved
// instead by the Execute-stage flush spec.md mandates.
type Pipeline struct {
	fetchStage     *FetchStage
	decodeStage    DecodeStage
	executeStage   *ExecuteStage
	memoryStage    MemoryStage
	writebackStage WritebackStage
	hazard         HazardUnit
	forward        ForwardingUnit

	fd *FetchDecodeLatch
	de *DecodeExecuteLatch
	em *ExecuteMemoryLatch
	mw *MemoryWritebackLatch

	Halted bool
	Stats  Stats
}

// NewPipeline constructs a Pipeline with the given prefetch window size
// and stack address range (forwarded to ExecuteStage for Push/Pop/Call/
// Ret bounds checking).
func NewPipeline(prefetchCapacity int, stackBase, stackSize uint64) *Pipeline {
	return &Pipeline{
		fetchStage:   NewFetchStage(prefetchCapacity),
		executeStage: NewExecuteStage(stackBase, stackSize),
	}
}

// Reset returns the pipeline to its empty, cycle-zero state.
func (p *Pipeline) Reset() {
	p.fd, p.de, p.em, p.mw = nil, nil, nil, nil
	p.Halted = false
	p.Stats = Stats{}
	p.fetchStage.Clear()
	p.hazard.Reset()
	p.forward.Reset()
}

// CycleUnits bundles the shared architectural state a cycle touches;
// kept as one parameter object since Cycle's stages otherwise take a
// long, easy-to-misorder argument list.
type CycleUnits struct {
	Registers *registers.File
	Vectors   *registers.VectorFile
	Memory    *memory.Memory
	ALU       *alu.ALU
	FPU       *alu.FPU
	Vector    *alu.VectorALU
	Predictor predictor.Predictor
	RAS       *predictor.RAS
	BTB       *predictor.BTB
	Program   *Program
}

// Cycle advances the pipeline by one clock, fetching from pc. It
// returns the PC to fetch from on the following cycle.
func (p *Pipeline) Cycle(pc uint64, u CycleUnits) (uint64, error) {
	return p.cycle(pc, u, true)
}

// DrainCycle advances the pipeline one clock with fetch suspended,
// completing in-flight instructions without admitting new ones. Used
// to land on an instruction boundary before a snapshot.
func (p *Pipeline) DrainCycle(pc uint64, u CycleUnits) (uint64, error) {
	return p.cycle(pc, u, false)
}

func (p *Pipeline) cycle(pc uint64, u CycleUnits, fetch bool) (nextPC uint64, err error) {
	p.Stats.Cycles++
	nextPC = pc

	stalled := p.hazard.Stall(p.de, p.em, p.mw)
	if stalled {
		p.Stats.Stalls++
	}
	p.Stats.Hazards = p.hazard.HazardsDetected()
	p.Stats.LoadUseStalls = p.hazard.LoadUseStalls()
	p.Stats.StructuralStalls = p.hazard.StructuralStalls()

	oldEM, oldMW := p.em, p.mw

	if err := p.writebackStage.Process(oldMW, u.Registers); err != nil {
		return pc, err
	}
	if oldMW != nil {
		p.Stats.Instructions++
	}

	newMW, err := p.memoryStage.Process(oldEM, u.Memory)
	if err != nil {
		return pc, err
	}
	p.mw = newMW

	branchFlush := false
	if stalled {
		p.em = nil // bubble: Execute does not re-issue the stalled instruction
	} else {
		if p.de != nil {
			p.forward.Forward(p.de, oldEM, oldMW)
			p.Stats.Forwards = p.forward.ForwardsCount()
		}
		newEM, err := p.executeStage.Process(p.de, u.ALU, u.FPU, u.Vector, u.Vectors, u.Registers, u.Memory, u.Predictor, u.RAS, u.BTB)
		if err != nil {
			return pc, err
		}
		p.em = newEM
		if newEM != nil {
			if newEM.Halted {
				// Anything younger than the Halt is wrong-path; drop it
				// and let the older stages drain.
				p.Halted = true
				p.fd, p.de = nil, nil
				p.fetchStage.Clear()
			}
			if newEM.BranchTaken {
				nextPC = newEM.BranchTarget
				branchFlush = true
				p.fd, p.de = nil, nil
				p.fetchStage.Clear()
				p.Stats.BranchFlushes++
			}
		}
	}

	if !stalled {
		newDE, err := p.decodeStage.Process(p.fd, u.Registers, u.Predictor)
		if err != nil {
			return pc, err
		}
		p.de = newDE

		// On a flush the cycle ends with both upstream latches empty; the
		// redirected fetch begins next cycle from the branch target. pc
		// still points at the wrong path here, so fetching would refill
		// Fetch→Decode with an instruction the flush just discarded.
		if fetch && !p.Halted && !branchFlush {
			instr, ok := p.fetchStage.Process(pc, u.Program)
			if ok {
				p.fd = &FetchDecodeLatch{Instruction: instr, PC: pc}
				nextPC = pc + uint64(instr.TotalSize())
			} else {
				// pc has run past the program image. With a branch still in
				// flight this is an ordinary wrong-path overrun: leave a
				// fetch bubble and wait for the redirect. With nothing in
				// flight, the PC is genuinely bad.
				p.fd = nil
				if p.de == nil && p.em == nil && p.mw == nil {
					return pc, &FetchError{PC: pc}
				}
			}
		}
	}

	return nextPC, nil
}

// Drained reports whether every latch is empty, i.e. no instruction
// remains in flight after a halt.
func (p *Pipeline) Drained() bool {
	return p.fd == nil && p.de == nil && p.em == nil && p.mw == nil
}

// InFlight reports the opcodes currently occupying each stage, for
// tracing/debugging; ok[i] is false for an empty stage, whose opcode is
// then the zero value (which is also bytecode.Nop).
func (p *Pipeline) InFlight() (fetch, decode, execute, writeback bytecode.Opcode, ok [4]bool) {
	if p.fd != nil {
		fetch, ok[0] = p.fd.Instruction.Opcode, true
	}
	if p.de != nil {
		decode, ok[1] = p.de.Instruction.Opcode, true
	}
	if p.em != nil {
		execute, ok[2] = p.em.Instruction.Opcode, true
	}
	if p.mw != nil {
		writeback, ok[3] = p.mw.Instruction.Opcode, true
	}
	return
}
