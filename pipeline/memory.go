package pipeline

import (
	"github.com/punkvm/punkvm/bytecode"
	"github.com/punkvm/punkvm/vm/memory"
)

// MemoryStage performs the general-purpose Load/Store family's actual
// byte access, grounded on original_source/src/pipeline/memory.rs.
// Push/Pop/Call/Ret and the FPU/SIMD memory opcodes are resolved
// earlier, in Execute (see ExecuteStage's doc comment); this stage is
// left with only the four Load and four Store widths.
type MemoryStage struct{}

// Process reads or writes memory for em, producing the Memory→
// Writeback latch.
func (MemoryStage) Process(em *ExecuteMemoryLatch, mem *memory.Memory) (*MemoryWritebackLatch, error) {
	if em == nil {
		return nil, nil
	}

	result := em.ALUResult

	switch em.Instruction.Opcode {
	case bytecode.Load:
		if em.HasMemAddr {
			v, err := mem.ReadQword(em.MemAddr)
			if err != nil {
				return nil, err
			}
			result = v
		}
	case bytecode.LoadB:
		if em.HasMemAddr {
			v, err := mem.ReadByte(em.MemAddr)
			if err != nil {
				return nil, err
			}
			result = uint64(v)
		}
	case bytecode.LoadW:
		if em.HasMemAddr {
			v, err := mem.ReadWord(em.MemAddr)
			if err != nil {
				return nil, err
			}
			result = uint64(v)
		}
	case bytecode.LoadD:
		if em.HasMemAddr {
			v, err := mem.ReadDword(em.MemAddr)
			if err != nil {
				return nil, err
			}
			result = uint64(v)
		}
	case bytecode.Store:
		if em.HasMemAddr && em.HasStore {
			if err := mem.WriteQword(em.MemAddr, em.StoreValue); err != nil {
				return nil, err
			}
		}
	case bytecode.StoreB:
		if em.HasMemAddr && em.HasStore {
			if err := mem.WriteByte(em.MemAddr, uint8(em.StoreValue)); err != nil {
				return nil, err
			}
		}
	case bytecode.StoreW:
		if em.HasMemAddr && em.HasStore {
			if err := mem.WriteWord(em.MemAddr, uint16(em.StoreValue)); err != nil {
				return nil, err
			}
		}
	case bytecode.StoreD:
		if em.HasMemAddr && em.HasStore {
			if err := mem.WriteDword(em.MemAddr, uint32(em.StoreValue)); err != nil {
				return nil, err
			}
		}
	}

	return &MemoryWritebackLatch{
		Instruction: em.Instruction,
		Result:      result,
		RD:          em.RD,
		Halted:      em.Halted,
	}, nil
}
