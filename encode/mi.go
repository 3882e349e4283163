package encode

import (
	"fmt"

	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/stream"
)

// baseEncoder implements the MI_* and PIPE_CONTROL commands, whose layouts are shared by every family
type baseEncoder struct {
	hwInfo hw.HardwareInfo
	flags  config.Flags
}

func (e *baseEncoder) Family() hw.Family {
	return e.hwInfo.Family
}

func (e *baseEncoder) HardwareInfo() *hw.HardwareInfo {
	return &e.hwInfo
}

func (e *baseEncoder) Flags() config.Flags {
	return e.flags
}

func (e *baseEncoder) LoadRegisterImm(s *stream.LinearStream, register uint32, value uint32, remap bool) {
	s.Append(&commands.MiLoadRegisterImm{
		RegisterOffset:  register,
		DataDword:       value,
		MmioRemapEnable: remap,
	})
}

func (e *baseEncoder) SizeLoadRegisterImm() int {
	return (&commands.MiLoadRegisterImm{}).Size()
}

func (e *baseEncoder) LoadRegisterReg(s *stream.LinearStream, source uint32, destination uint32) {
	s.Append(&commands.MiLoadRegisterReg{
		SourceRegisterAddress:      source,
		DestinationRegisterAddress: destination,
		MmioRemapEnableSource:      true,
		MmioRemapEnableDestination: true,
	})
}

func (e *baseEncoder) SizeLoadRegisterReg() int {
	return (&commands.MiLoadRegisterReg{}).Size()
}

func (e *baseEncoder) LoadRegisterMem(s *stream.LinearStream, register uint32, address uint64) {
	s.Append(&commands.MiLoadRegisterMem{
		RegisterAddress: register,
		MemoryAddress:   address,
		MmioRemapEnable: true,
	})
}

func (e *baseEncoder) SizeLoadRegisterMem() int {
	return (&commands.MiLoadRegisterMem{}).Size()
}

func (e *baseEncoder) StoreRegisterMem(s *stream.LinearStream, register uint32, address uint64) {
	s.Append(&commands.MiStoreRegisterMem{
		RegisterAddress: register,
		MemoryAddress:   address,
		MmioRemapEnable: true,
	})
}

func (e *baseEncoder) SizeStoreRegisterMem() int {
	return (&commands.MiStoreRegisterMem{}).Size()
}

func (e *baseEncoder) StoreDataImm(s *stream.LinearStream, address uint64, data uint64, storeQword bool, partitionOffset bool) {
	s.Append(&commands.MiStoreDataImm{
		Address:                         address,
		DataDword0:                      uint32(data),
		DataDword1:                      uint32(data >> 32),
		StoreQword:                      storeQword,
		WorkloadPartitionIDOffsetEnable: partitionOffset,
	})
}

func (e *baseEncoder) SizeStoreDataImm() int {
	return (&commands.MiStoreDataImm{}).Size()
}

func (e *baseEncoder) Atomic(s *stream.LinearStream, address uint64, opcode commands.AtomicOpcode, dataSize commands.AtomicDataSize, returnData bool, csStall bool) {
	s.Append(&commands.MiAtomic{
		Address:           address,
		Opcode:            opcode,
		DataSize:          dataSize,
		ReturnDataControl: returnData,
		CSStall:           csStall,
	})
}

func (e *baseEncoder) SizeAtomic() int {
	return (&commands.MiAtomic{}).Size()
}

func (e *baseEncoder) SemaphoreWait(s *stream.LinearStream, address uint64, value uint32, compare commands.CompareOperation) {
	s.Append(&commands.MiSemaphoreWait{
		Address:          address,
		SemaphoreData:    value,
		CompareOperation: compare,
		PollingMode:      true,
	})
}

func (e *baseEncoder) SizeSemaphoreWait() int {
	return (&commands.MiSemaphoreWait{}).Size()
}

// MathReadModifyWrite applies opcode to the MMIO register and operand through the CS ALU:
// register -> R0, operand -> R1, R0 = R0 op R1, R0 -> register
func (e *baseEncoder) MathReadModifyWrite(s *stream.LinearStream, register uint32, opcode commands.AluOpcode, operand uint32) {
	e.LoadRegisterReg(s, register, commands.CSGprR0)
	e.LoadRegisterImm(s, commands.CSGprR1, operand, true)
	s.Append(&commands.MiMath{
		Instructions: []commands.MiMathAluInst{
			{Opcode: commands.AluOpcodeLoad, Operand1: commands.AluRegisterSrcA, Operand2: commands.AluRegisterR0},
			{Opcode: commands.AluOpcodeLoad, Operand1: commands.AluRegisterSrcB, Operand2: commands.AluRegisterR1},
			{Opcode: opcode},
			{Opcode: commands.AluOpcodeStore, Operand1: commands.AluRegisterR0, Operand2: commands.AluRegisterAccu},
		},
	})
	e.LoadRegisterReg(s, commands.CSGprR0, register)
}

func (e *baseEncoder) SizeMathReadModifyWrite() int {
	return 2*e.SizeLoadRegisterReg() + e.SizeLoadRegisterImm() + SizeMiMath(commands.NumAluInstForReadModifyWrite)
}

// SizeMiMath is the size of an MI_MATH carrying aluCount instructions
func SizeMiMath(aluCount int) int {
	return (1 + aluCount) * commands.DwordSize
}

func (e *baseEncoder) BatchBufferStart(s *stream.LinearStream, address uint64, secondLevel bool) {
	s.Append(&commands.MiBatchBufferStart{
		StartAddress:      address,
		SecondLevelBatch:  secondLevel,
		AddressSpacePPGTT: true,
	})
}

func (e *baseEncoder) SizeBatchBufferStart() int {
	return (&commands.MiBatchBufferStart{}).Size()
}

func (e *baseEncoder) BatchBufferEnd(s *stream.LinearStream) {
	s.Append(&commands.MiBatchBufferEnd{})
}

func (e *baseEncoder) SizeBatchBufferEnd() int {
	return (&commands.MiBatchBufferEnd{}).Size()
}

// Noop fills size bytes with MI_NOOP. size must be a whole number of dwords.
func (e *baseEncoder) Noop(s *stream.LinearStream, size int) {
	if size%commands.DwordSize != 0 {
		panic(fmt.Sprintf("noop padding of %d bytes is not dword aligned", size))
	}

	space := s.GetSpace(size)
	for i := range space {
		space[i] = 0
	}
}
