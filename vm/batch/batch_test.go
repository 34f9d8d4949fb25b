package batch

import (
	"testing"

	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/vm"
)

func encode(instrs ...bytecode.Instruction) []byte {
	var out []byte
	for _, i := range instrs {
		out = append(out, i.Encode()...)
	}
	return out
}

func TestPoolRunMixedOutcomes(t *testing.T) {
	passing := encode(
		bytecode.NewRegImm64(bytecode.Add, 0, 5),
		bytecode.NewNoArgs(bytecode.Halt),
	)
	failing := encode(
		bytecode.NewRegImm64(bytecode.Div, 0, 0),
		bytecode.NewNoArgs(bytecode.Halt),
	)

	pool := NewPool(2)
	outcomes := pool.Run([]Task{
		{Name: "passing", Image: passing},
		{Name: "failing", Image: failing},
	}, false)

	if len(outcomes) != 2 {
		t.Fatalf("want 2 outcomes, got %d", len(outcomes))
	}
	byName := map[string]Outcome{}
	for _, o := range outcomes {
		byName[o.Name] = o
	}
	if !byName["passing"].Passed {
		t.Errorf("passing task should have Passed=true, err=%v", byName["passing"].Err)
	}
	if byName["failing"].Passed {
		t.Errorf("failing task (div by zero) should have Passed=false")
	}
	if byName["failing"].Err == nil {
		t.Errorf("failing task should carry a non-nil Err")
	}

	comp, passed, failed := pool.Progress()
	if comp != 2 || passed != 1 || failed != 1 {
		t.Errorf("progress = (%d,%d,%d), want (2,1,1)", comp, passed, failed)
	}
}

func TestPoolRunUsesTaskConfig(t *testing.T) {
	cfg := vm.DefaultConfig()
	cfg.MaxCycles = 1
	jmp := bytecode.NewBranchRelative(bytecode.Jmp, 0)
	jmp = bytecode.NewBranchRelative(bytecode.Jmp, -int32(jmp.TotalSize()))
	loop := encode(jmp)

	pool := NewPool(1)
	outcomes := pool.Run([]Task{{Name: "spins", Image: loop, Cfg: cfg}}, false)

	if outcomes[0].Passed {
		t.Errorf("a program exceeding MaxCycles must not be reported as passed")
	}
}
