// Package vm ties the bytecode, memory, ALU/FPU/VectorALU, predictor,
// and pipeline packages into a runnable machine: load an image, step or
// run it to completion, and inspect the resulting architectural state.
// Grounded on original_source/src/pvm/vm.rs's PunkVM (Config/new/reset/
// load_program/run/read_register/get_statistics), reimplemented around
// the Go pipeline package instead of the original's per-instruction
// execute dispatch.
package vm

import (
	"fmt"

	"github.com/punkvm/punkvm/alu"
	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/pipeline"
	"github.com/punkvm/punkvm/predictor"
	"github.com/punkvm/punkvm/vm/memory"
	"github.com/punkvm/punkvm/vm/registers"
)

// Config parameterizes a VM instance, grounded on original_source's
// VMConfig{memory_size, stack_size, cache_size, register_count,
// optimization_level} with cache_size/register_count/optimization_level
// dropped (no cache hierarchy per spec.md §1; register_count is fixed
// at registers.Count; there is no optimizing compiler here).
type Config struct {
	MemorySize       uint64
	StackSize        uint64
	PrefetchCapacity int
	PredictorMode    predictor.Mode
	PredictorConfig  predictor.Config
	BTBSize          int
	RASSize          int
	MaxCycles        uint64 // 0 disables the cycle-count guard
}

// DefaultConfig returns a Config sized for ordinary test programs: 1MiB
// of memory, a 64KiB stack at its top, an 8-entry prefetch window, the
// GShare predictor, and a 10-million-cycle safety cap (spec.md §7's
// "caller-configurable maximum cycle count").
func DefaultConfig() Config {
	return Config{
		MemorySize:       1 << 20,
		StackSize:        64 << 10,
		PrefetchCapacity: pipeline.DefaultPrefetchCapacity,
		PredictorMode:    predictor.ModeGShare,
		PredictorConfig:  predictor.DefaultConfig(),
		BTBSize:          1024,
		RASSize:          64,
		MaxCycles:        10_000_000,
	}
}

// ConfigError reports an invalid Config, grounded on vm.rs's
// "Taille mémoire invalide"/"Nombre de registres invalide" checks.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string { return fmt.Sprintf("vm: invalid config: %s", e.Msg) }

// VM is one PunkVM instance: its architectural state plus the pipeline
// driving it.
type VM struct {
	cfg Config

	regs  *registers.File
	vregs *registers.VectorFile
	mem   *memory.Memory
	alu   *alu.ALU
	fpu   *alu.FPU
	vec   *alu.VectorALU
	pred  predictor.Predictor
	ras   *predictor.RAS
	btb   *predictor.BTB

	pipe    *pipeline.Pipeline
	program *pipeline.Program

	pc        uint64
	cycles    uint64
	stackBase uint64
	stackLow  uint64 // lowest SP observed; tracks the stack high-water mark
}

// stackBase is placed at the top of memory minus the stack region,
// matching spec.md §3: "Stack region is [stack_base, stack_base +
// stack_size)".
func stackBaseFor(cfg Config) uint64 {
	if cfg.MemorySize < cfg.StackSize {
		return 0
	}
	return cfg.MemorySize - cfg.StackSize
}

// New constructs a VM from cfg, validating it the way vm.rs's
// PunkVM::new does.
func New(cfg Config) (*VM, error) {
	if cfg.MemorySize == 0 {
		return nil, &ConfigError{Msg: "memory size must be nonzero"}
	}
	if cfg.StackSize == 0 || cfg.StackSize > cfg.MemorySize {
		return nil, &ConfigError{Msg: "stack size must be nonzero and fit within memory"}
	}

	v := &VM{
		cfg:       cfg,
		regs:      &registers.File{},
		vregs:     &registers.VectorFile{},
		mem:       memory.New(int(cfg.MemorySize)),
		alu:       &alu.ALU{},
		fpu:       &alu.FPU{},
		vec:       &alu.VectorALU{},
		pred:      predictor.New(cfg.PredictorMode, cfg.PredictorConfig),
		ras:       predictor.NewRAS(cfg.RASSize),
		btb:       predictor.NewBTB(cfg.BTBSize),
		stackBase: stackBaseFor(cfg),
	}
	v.pipe = pipeline.NewPipeline(cfg.PrefetchCapacity, v.stackBase, cfg.StackSize)
	v.initStack()
	return v, nil
}

// initStack sets SP to stack_base+stack_size, matching stacks.rs's
// init_stack.
func (v *VM) initStack() {
	sp := v.stackBase + v.cfg.StackSize
	_ = v.regs.Write(registers.SP, sp)
	v.stackLow = sp
}

// Reset returns the VM to its post-construction state: zeroed
// registers/memory/vector files, fresh predictor tables, SP reset to
// the top of the stack, PC and cycle count at zero. Grounded on
// vm.rs's reset.
func (v *VM) Reset() {
	v.regs.Reset()
	v.vregs.Reset()
	v.mem.Reset()
	*v.alu = alu.ALU{}
	*v.fpu = alu.FPU{}
	*v.vec = alu.VectorALU{}
	v.pred = predictor.New(v.cfg.PredictorMode, v.cfg.PredictorConfig)
	v.ras = predictor.NewRAS(v.cfg.RASSize)
	v.btb = predictor.NewBTB(v.cfg.BTBSize)
	v.pipe.Reset()
	v.pc = 0
	v.cycles = 0
	v.initStack()
}

// decodeImage parses a flat byte image into a pipeline.Program of
// (pc, instruction) pairs contiguous from 0, per spec.md §6.4.
func decodeImage(image []byte) (*pipeline.Program, error) {
	var entries []pipeline.ProgramEntry
	var pc uint64
	for int(pc) < len(image) {
		inst, n, err := bytecode.Decode(image[pc:])
		if err != nil {
			return nil, fmt.Errorf("vm: decode program at pc 0x%X: %w", pc, err)
		}
		entries = append(entries, pipeline.ProgramEntry{PC: pc, Instruction: inst})
		pc += uint64(n)
	}
	return pipeline.NewProgram(entries), nil
}

// LoadProgram decodes image into the VM's instruction stream and resets
// every other piece of architectural state, matching vm.rs's
// load_program (which resets before installing the new instructions).
func (v *VM) LoadProgram(image []byte) error {
	program, err := decodeImage(image)
	if err != nil {
		return err
	}
	v.Reset()
	v.program = program
	return nil
}

// cycleUnits bundles the VM's owned subsystems for one Pipeline.Cycle
// call.
func (v *VM) cycleUnits() pipeline.CycleUnits {
	return pipeline.CycleUnits{
		Registers: v.regs,
		Vectors:   v.vregs,
		Memory:    v.mem,
		ALU:       v.alu,
		FPU:       v.fpu,
		Vector:    v.vec,
		Predictor: v.pred,
		RAS:       v.ras,
		BTB:       v.btb,
		Program:   v.program,
	}
}

// Step advances the VM by one clock cycle. done is reported only once
// the Halt has resolved and every older in-flight instruction has
// drained through Memory and Writeback, so a caller that stops on done
// observes the final architectural state.
func (v *VM) Step() (done bool, err error) {
	if v.program == nil {
		return false, fmt.Errorf("vm: no program loaded")
	}
	nextPC, err := v.pipe.Cycle(v.pc, v.cycleUnits())
	if err != nil {
		return v.pipe.Halted, err
	}
	v.pc = nextPC
	v.cycles++
	if sp, err := v.regs.Read(registers.SP); err == nil && sp < v.stackLow {
		v.stackLow = sp
	}
	if v.cfg.MaxCycles > 0 && v.cycles > v.cfg.MaxCycles {
		return true, &pipeline.ExecutionError{Kind: pipeline.CycleLimitExceeded, PC: v.pc}
	}
	return v.pipe.Halted && v.pipe.Drained(), nil
}

// drainBound caps the post-halt / pre-snapshot drain loop; the
// pipeline holds at most four in-flight instructions, each of which
// can stall at most once.
const drainBound = 16

// drain completes in-flight instructions without fetching new ones,
// so the VM lands on an instruction boundary. A stage error stops the
// drain with latches in their pre-cycle state, per the no-partial-
// commit propagation policy.
func (v *VM) drain() {
	for i := 0; i < drainBound && !v.pipe.Drained(); i++ {
		nextPC, err := v.pipe.DrainCycle(v.pc, v.cycleUnits())
		if err != nil {
			return
		}
		v.pc = nextPC
		v.cycles++
	}
}

// Run steps the VM until Halt is resolved or an error occurs, matching
// vm.rs's run loop (break on should_halt, propagate any stage error).
func (v *VM) Run() error {
	for {
		halted, err := v.Step()
		if err != nil {
			return err
		}
		if halted {
			return nil
		}
	}
}

// RunCycles steps the VM at most n times, stopping early on Halt or
// error. Grounded on the CLI's `step --cycles` subcommand (§6.5).
func (v *VM) RunCycles(n uint64) error {
	for i := uint64(0); i < n; i++ {
		halted, err := v.Step()
		if err != nil {
			return err
		}
		if halted {
			return nil
		}
	}
	return nil
}

// ReadRegister returns the current value of general-purpose or special
// register idx (0..15 general-purpose, registers.SP/BP/RA for the
// named ones).
func (v *VM) ReadRegister(idx int) (uint64, error) {
	return v.regs.Read(idx)
}

// Registers exposes the integer register file directly, for callers
// (e.g. the CLI) that want a full dump rather than one register at a
// time.
func (v *VM) Registers() *registers.File { return v.regs }

// VectorRegisters exposes the vector register file directly.
func (v *VM) VectorRegisters() *registers.VectorFile { return v.vregs }

// FPU exposes the floating-point unit's register file and status word.
func (v *VM) FPU() *alu.FPU { return v.fpu }

// Memory exposes the flat memory store.
func (v *VM) Memory() *memory.Memory { return v.mem }

// PC returns the current program counter.
func (v *VM) PC() uint64 { return v.pc }

// Halted reports whether the pipeline has resolved a Halt instruction.
func (v *VM) Halted() bool { return v.pipe.Halted }

// InFlight exposes the pipeline's per-stage occupancy, for the CLI's
// `step --trace` subcommand.
func (v *VM) InFlight() (fetch, decode, execute, writeback bytecode.Opcode, ok [4]bool) {
	return v.pipe.InFlight()
}
