// Command punkvm is the CLI front-end around the PunkVM core: load a
// bytecode image, run or single-step it, disassemble it, batch-run a
// directory of images, or snapshot mid-execution state to disk.
// Grounded on cmd/z80opt/main.go's cobra root-command-plus-subcommands
// shape (RunE returning wrapped errors, flags registered with
// cmd.Flags().*Var before AddCommand) — the disassembler and batch
// runner are, like the teacher's own CLI-only tooling, collaborators
// around the core rather than part of it (spec.md §1/§6).
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/vm"
	"github.com/punkvm/punkvm/vm/batch"
	"github.com/punkvm/punkvm/vm/registers"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "punkvm",
		Short: "PunkVM — a cycle-accurate pipelined virtual machine",
	}

	rootCmd.AddCommand(
		newRunCmd(),
		newStepCmd(),
		newDisasmCmd(),
		newBenchCmd(),
		newSnapshotCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func readImage(path string) ([]byte, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read program %s: %w", path, err)
	}
	return image, nil
}

func newMachine(memSize, stackSize uint64, maxCycles uint64) (*vm.VM, error) {
	cfg := vm.DefaultConfig()
	if memSize > 0 {
		cfg.MemorySize = memSize
	}
	if stackSize > 0 {
		cfg.StackSize = stackSize
	}
	cfg.MaxCycles = maxCycles
	machine, err := vm.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("construct vm: %w", err)
	}
	return machine, nil
}

func printRegisters(machine *vm.VM) {
	regs := machine.Registers()
	for i := 0; i < 16; i++ {
		v, _ := regs.Read(i)
		fmt.Printf("  R%-2d = 0x%016X\n", i, v)
	}
	sp, _ := regs.Read(registers.SP)
	bp, _ := regs.Read(registers.BP)
	ra, _ := regs.Read(registers.RA)
	fmt.Printf("  SP  = 0x%016X\n  BP  = 0x%016X\n  RA  = 0x%016X\n", sp, bp, ra)
}

func printStats(s vm.Stats) {
	fmt.Printf("cycles=%d retired=%d stalls=%d (load-use=%d structural=%d) forwards=%d flushes=%d branch-accuracy=%.2f%% btb-hit-rate=%.2f%% stack-high-water=%d\n",
		s.Cycles, s.InstructionsRetired, s.Stalls, s.LoadUseStalls, s.StructuralStalls,
		s.Forwards, s.BranchFlushes, s.BranchAccuracy*100, s.BTBHitRate*100, s.StackHighWaterMark)
}

func newRunCmd() *cobra.Command {
	var memSize, stackSize, maxCycles uint64
	cmd := &cobra.Command{
		Use:   "run <program.bin>",
		Short: "Load a binary image and run it to Halt or error",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := readImage(args[0])
			if err != nil {
				return err
			}
			machine, err := newMachine(memSize, stackSize, maxCycles)
			if err != nil {
				return err
			}
			if err := machine.LoadProgram(image); err != nil {
				return fmt.Errorf("load program: %w", err)
			}
			runErr := machine.Run()
			printRegisters(machine)
			printStats(machine.Stats())
			if runErr != nil {
				return fmt.Errorf("run: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().Uint64Var(&memSize, "mem", 0, "memory size in bytes (0 = default)")
	cmd.Flags().Uint64Var(&stackSize, "stack", 0, "stack size in bytes (0 = default)")
	cmd.Flags().Uint64Var(&maxCycles, "max-cycles", 10_000_000, "cycle-count safety cap")
	return cmd
}

func newStepCmd() *cobra.Command {
	var cycles uint64
	var trace bool
	cmd := &cobra.Command{
		Use:   "step <program.bin>",
		Short: "Run a fixed number of cycles (or until halt), optionally tracing stages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := readImage(args[0])
			if err != nil {
				return err
			}
			machine, err := newMachine(0, 0, 0)
			if err != nil {
				return err
			}
			if err := machine.LoadProgram(image); err != nil {
				return fmt.Errorf("load program: %w", err)
			}
			for i := uint64(0); i < cycles; i++ {
				halted, err := machine.Step()
				if trace {
					fetch, decode, execute, writeback, ok := machine.InFlight()
					fmt.Printf("cycle %d: pc=0x%X IF=%s DE=%s EX=%s WB=%s\n",
						i, machine.PC(),
						stageLabel(fetch, ok[0]), stageLabel(decode, ok[1]),
						stageLabel(execute, ok[2]), stageLabel(writeback, ok[3]))
				}
				if err != nil {
					return fmt.Errorf("step %d: %w", i, err)
				}
				if halted {
					break
				}
			}
			printRegisters(machine)
			printStats(machine.Stats())
			return nil
		},
	}
	cmd.Flags().Uint64Var(&cycles, "cycles", 100, "maximum cycles to run")
	cmd.Flags().BoolVar(&trace, "trace", false, "print per-cycle pipeline-latch occupancy")
	return cmd
}

func stageLabel(op bytecode.Opcode, ok bool) string {
	if !ok {
		return "-"
	}
	return op.String()
}

func newDisasmCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "disasm <program.bin>",
		Short: "Decode and print a bytecode image's instruction stream",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			image, err := readImage(args[0])
			if err != nil {
				return err
			}
			lines, err := disassembleImage(image)
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(lines)
			}
			for _, l := range lines {
				fmt.Printf("0x%06X: %s\n", l.PC, l.Text)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the disassembly as a JSON array")
	return cmd
}

// disasmLine is one decoded instruction, exported for --json output.
type disasmLine struct {
	PC   uint64 `json:"pc"`
	Text string `json:"text"`
}

func disassembleImage(image []byte) ([]disasmLine, error) {
	var lines []disasmLine
	var pc uint64
	for int(pc) < len(image) {
		instr, n, err := bytecode.Decode(image[pc:])
		if err != nil {
			return nil, fmt.Errorf("disasm: decode at pc 0x%X: %w", pc, err)
		}
		lines = append(lines, disasmLine{PC: pc, Text: disassembleOne(instr)})
		pc += uint64(n)
	}
	return lines, nil
}

// disassembleOne renders one instruction as "mnemonic arg1, arg2",
// grounded on the teacher's inst.Disassemble mnemonic-substitution
// style but simpler: PunkVM's mnemonics carry no "n"/"nn" placeholder,
// so operands are appended rather than substituted in.
func disassembleOne(instr bytecode.Instruction) string {
	mnemonic := instr.Opcode.String()
	parts := []string{}
	if a1, err := instr.Arg1Value(); err == nil {
		if s := formatArg(a1); s != "" {
			parts = append(parts, s)
		}
	}
	if a2, err := instr.Arg2Value(); err == nil {
		if s := formatArg(a2); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return mnemonic
	}
	out := mnemonic + " " + parts[0]
	for _, p := range parts[1:] {
		out += ", " + p
	}
	return out
}

func formatArg(a bytecode.ArgValue) string {
	switch a.Kind {
	case bytecode.ArgValNone:
		return ""
	case bytecode.ArgValRegister:
		return fmt.Sprintf("R%d", a.Register)
	case bytecode.ArgValImmediate:
		return fmt.Sprintf("0x%X", a.Imm)
	case bytecode.ArgValRelativeAddr:
		return fmt.Sprintf("%+d", a.Rel)
	case bytecode.ArgValAbsoluteAddr:
		return fmt.Sprintf("[0x%X]", a.Abs)
	case bytecode.ArgValRegisterOffset:
		return fmt.Sprintf("[R%d%+d]", a.OffsetOf, a.Offset)
	default:
		return ""
	}
}

func newBenchCmd() *cobra.Command {
	var workers int
	var verbose bool
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "bench <dir>",
		Short: "Batch-run every program image in a directory through the worker pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := os.ReadDir(args[0])
			if err != nil {
				return fmt.Errorf("read dir %s: %w", args[0], err)
			}
			var tasks []batch.Task
			for _, e := range entries {
				if e.IsDir() {
					continue
				}
				path := filepath.Join(args[0], e.Name())
				image, err := readImage(path)
				if err != nil {
					return err
				}
				tasks = append(tasks, batch.Task{Name: e.Name(), Image: image})
			}
			pool := batch.NewPool(workers)
			outcomes := pool.Run(tasks, verbose)
			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(outcomes)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 0, "number of workers (0 = NumCPU)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print each task's pass/fail line")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit the batch report as a JSON array")
	return cmd
}

func newSnapshotCmd() *cobra.Command {
	var at uint64
	var out string
	cmd := &cobra.Command{
		Use:   "snapshot <program.bin>",
		Short: "Run to a given cycle count and write a VM snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if out == "" {
				return fmt.Errorf("--out is required")
			}
			image, err := readImage(args[0])
			if err != nil {
				return err
			}
			machine, err := newMachine(0, 0, 0)
			if err != nil {
				return err
			}
			if err := machine.LoadProgram(image); err != nil {
				return fmt.Errorf("load program: %w", err)
			}
			if err := machine.RunCycles(at); err != nil {
				return fmt.Errorf("run to cycle %d: %w", at, err)
			}
			if err := machine.SaveSnapshot(out); err != nil {
				return fmt.Errorf("save snapshot: %w", err)
			}
			fmt.Printf("snapshot written to %s at cycle %d\n", out, machine.Stats().Cycles)
			return nil
		},
	}
	cmd.Flags().Uint64Var(&at, "at", 100, "cycle count to run to before snapshotting")
	cmd.Flags().StringVar(&out, "out", "", "output snapshot file path (required)")
	return cmd
}
