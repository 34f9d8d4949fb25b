package pipeline

import (
	"testing"

	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/vm/memory"
)

func TestMemoryStageLoadWidths(t *testing.T) {
	mem := memory.New(1 << 12)
	if err := mem.WriteQword(0x100, 0x1122334455667788); err != nil {
		t.Fatalf("WriteQword: %v", err)
	}

	cases := []struct {
		name string
		op   bytecode.Opcode
		want uint64
	}{
		{"qword", bytecode.Load, 0x1122334455667788},
		{"byte", bytecode.LoadB, 0x88},
		{"word", bytecode.LoadW, 0x7788},
		{"dword", bytecode.LoadD, 0x55667788},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			em := &ExecuteMemoryLatch{
				Instruction: bytecode.NewNoArgs(c.op),
				RD:          4,
				MemAddr:     0x100,
				HasMemAddr:  true,
			}
			mw, err := MemoryStage{}.Process(em, mem)
			if err != nil {
				t.Fatalf("Process: %v", err)
			}
			if mw.Result != c.want {
				t.Errorf("Result = 0x%X, want 0x%X", mw.Result, c.want)
			}
			if mw.RD != 4 {
				t.Errorf("RD = %d, want 4 carried through to writeback", mw.RD)
			}
		})
	}
}

func TestMemoryStageStoreWidths(t *testing.T) {
	mem := memory.New(1 << 12)
	em := &ExecuteMemoryLatch{
		Instruction: bytecode.NewNoArgs(bytecode.StoreW),
		RD:          -1,
		MemAddr:     0x80,
		HasMemAddr:  true,
		StoreValue:  0xAABBCCDD,
		HasStore:    true,
	}
	if _, err := (MemoryStage{}).Process(em, mem); err != nil {
		t.Fatalf("Process: %v", err)
	}
	got, err := mem.ReadWord(0x80)
	if err != nil {
		t.Fatalf("ReadWord: %v", err)
	}
	if got != 0xCCDD {
		t.Errorf("stored word = 0x%X, want the low 16 bits 0xCCDD", got)
	}
	if next, _ := mem.ReadWord(0x82); next != 0 {
		t.Errorf("bytes past the store width must stay untouched, got 0x%X", next)
	}
}

func TestMemoryStageOutOfBoundsLoadFails(t *testing.T) {
	mem := memory.New(64)
	em := &ExecuteMemoryLatch{
		Instruction: bytecode.NewNoArgs(bytecode.Load),
		RD:          0,
		MemAddr:     60, // qword read would cross the 64-byte boundary
		HasMemAddr:  true,
	}
	if _, err := (MemoryStage{}).Process(em, mem); err == nil {
		t.Fatalf("expected an out-of-bounds load to fail")
	}
}

func TestMemoryStagePassesALUResultForNonMemoryOps(t *testing.T) {
	mem := memory.New(64)
	em := &ExecuteMemoryLatch{
		Instruction: bytecode.NewNoArgs(bytecode.Add),
		RD:          2,
		ALUResult:   77,
	}
	mw, err := MemoryStage{}.Process(em, mem)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if mw.Result != 77 {
		t.Errorf("Result = %d, want the ALU result passed through unchanged", mw.Result)
	}
}

func TestMemoryStageBubblePassesThrough(t *testing.T) {
	mw, err := MemoryStage{}.Process(nil, memory.New(64))
	if err != nil || mw != nil {
		t.Errorf("a bubble must produce a bubble, got mw=%v err=%v", mw, err)
	}
}
