package pipeline

import (
	"fmt"

	"github.com/punkvm/punkvm/bytecode"
)

// FetchError reports that Fetch was asked to read a PC the program
// image has no instruction at.
type FetchError struct {
	PC uint64
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("pipeline: fetch: no instruction at pc 0x%X", e.PC)
}

// FetchStage implements the PC-addressed prefetch buffer described in
// spec.md §4.8: a window of upcoming (pc, instruction) pairs that
// amortizes repeated program-array lookups. The buffer carries no
// architectural state and is cleared on any PC discontinuity.
type FetchStage struct {
	capacity int
	start    int // program index of the buffer's first entry
	length   int // number of valid entries in the window
}

// DefaultPrefetchCapacity is the prefetch window size used when a VM
// does not override it.
const DefaultPrefetchCapacity = 8

// NewFetchStage constructs a FetchStage with the given prefetch window
// size.
func NewFetchStage(capacity int) *FetchStage {
	if capacity <= 0 {
		capacity = DefaultPrefetchCapacity
	}
	return &FetchStage{capacity: capacity, start: -1}
}

// Clear empties the prefetch buffer. Called on any branch flush or
// halt, per spec.md §3's lifecycle note.
func (f *FetchStage) Clear() {
	f.start = -1
	f.length = 0
}

func (f *FetchStage) contains(idx int) bool {
	return f.start >= 0 && idx >= f.start && idx < f.start+f.length
}

// Process returns the instruction at pc, refilling the prefetch window
// from program starting at pc when the window is empty or does not
// cover pc. ok is false when the program has no instruction at pc; the
// driver decides whether that is a wrong-path overrun (harmless, an
// in-flight branch will redirect) or a genuinely bad PC.
func (f *FetchStage) Process(pc uint64, program *Program) (instr bytecode.Instruction, ok bool) {
	idx, found := program.IndexOf(pc)
	if !found {
		return bytecode.Instruction{}, false
	}
	if !f.contains(idx) {
		f.start = idx
		remaining := program.Len() - idx
		if remaining > f.capacity {
			remaining = f.capacity
		}
		f.length = remaining
	}
	entry, _ := program.EntryAt(idx)
	return entry.Instruction, true
}
