package pipeline

import "github.com/punkvm/punkvm/bytecode"

// ProgramEntry is one decoded instruction at its PC, as loaded by the
// VM from a program image (spec.md §6.4: "a sequence of (pc,
// instruction) pairs contiguous in PC starting at 0").
type ProgramEntry struct {
	PC          uint64
	Instruction bytecode.Instruction
}

// Program is the ordered, PC-indexed instruction stream Fetch reads
// from.
type Program struct {
	entries []ProgramEntry
	byPC    map[uint64]int
}

// NewProgram indexes entries by PC for O(1) lookup. entries must be in
// ascending PC order.
func NewProgram(entries []ProgramEntry) *Program {
	byPC := make(map[uint64]int, len(entries))
	for i, e := range entries {
		byPC[e.PC] = i
	}
	return &Program{entries: entries, byPC: byPC}
}

// At returns the instruction at pc, if any.
func (p *Program) At(pc uint64) (bytecode.Instruction, bool) {
	i, ok := p.byPC[pc]
	if !ok {
		return bytecode.Instruction{}, false
	}
	return p.entries[i].Instruction, true
}

// IndexOf returns the program-order index of pc, if any.
func (p *Program) IndexOf(pc uint64) (int, bool) {
	i, ok := p.byPC[pc]
	return i, ok
}

// EntryAt returns the i-th (pc, instruction) pair.
func (p *Program) EntryAt(i int) (ProgramEntry, bool) {
	if i < 0 || i >= len(p.entries) {
		return ProgramEntry{}, false
	}
	return p.entries[i], true
}

// Len returns the number of instructions in the program.
func (p *Program) Len() int { return len(p.entries) }
