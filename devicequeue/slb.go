package devicequeue

import (
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/encode"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/memutils"
)

const (
	// ArbitrationRegister is written by the LRI workaround around each scheduler slot
	ArbitrationRegister uint32 = 0x2248
	// ArbitrationEnable is the value AddLriCmd writes when arbitration is requested
	ArbitrationEnable   uint32 = 0x100

	// TimestampRegister is stored into the parent event when profiling is enabled
	TimestampRegister uint32 = 0x2358
	// LsqcRegister holds the LSC cross-op performance disable bit toggled for kernels using image fences
	LsqcRegister      uint32 = 0xB118
	lsqcRoPerfDisable uint32 = 0x08000000

	vfeUrbEntryAllocationSize uint32 = 0x782
)

// MinimumSlbSize is the size of a scheduler slot before any workaround commands
func MinimumSlbSize(encoder encode.Encoder) int {
	return (&commands.MediaStateFlush{}).Size() +
		(&commands.MediaInterfaceDescriptorLoad{}).Size() +
		encoder.SizePipeControl() +
		(&commands.GpgpuWalker{}).Size() +
		(&commands.MediaStateFlush{}).Size() +
		encoder.SizePipeControl() +
		encoder.HardwareInfo().CSPrefetchSize
}

// WaCommandsSize is the size the enabled workarounds add to each scheduler slot
func WaCommandsSize(encoder encode.Encoder) int {
	wa := &encoder.HardwareInfo().Workarounds

	size := 0
	if wa.WaArbCheckInDeviceEnqueue {
		size += 2 * (&commands.MiArbCheck{}).Size()
	}
	if wa.WaMiAtomicInDeviceEnqueue {
		size += encoder.SizeAtomic()
	}
	if wa.WaLriInDeviceEnqueue {
		size += 2 * encoder.SizeLoadRegisterImm()
	}
	if wa.WaPipeControlInDeviceEnqueue {
		size += 2 * encoder.SizePipeControl()
	}
	return size
}

// SlotSize is the size of one scheduler slot
func SlotSize(encoder encode.Encoder) int {
	return MinimumSlbSize(encoder) + WaCommandsSize(encoder)
}

func ProfilingEndCmdsSize(encoder encode.Encoder) int {
	return encoder.SizePipeControl() + encoder.SizeStoreRegisterMem() + encoder.SizeLoadRegisterImm()
}

func MediaStateClearCmdsSize(encoder encode.Encoder) int {
	return 2*encoder.SizePipeControl() + encoder.SizePipeControl() + (&commands.MediaVfeState{}).Size()
}

// ExecutionModelCleanupSectionSize bounds the bytes AddExecutionModelCleanupSection appends after its
// page-aligned start
func ExecutionModelCleanupSectionSize(encoder encode.Encoder) int {
	size := encoder.SizePipeControl() + encoder.SizeMathReadModifyWrite() + encoder.SizePipeControl()
	size += ProfilingEndCmdsSize(encoder)
	size += MediaStateClearCmdsSize(encoder)
	size += 4 * encoder.SizePipeControl()
	size += encoder.SizeBatchBufferEnd()
	return size
}

// SlbBufferSize is the allocation size of the second-level batch: every slot, the jump back to the
// first slot, the cleanup section on its own page and four pages of prefetch padding
func SlbBufferSize(encoder encode.Encoder) int {
	size := NumberOfDeviceEnqueues*SlotSize(encoder) + encoder.SizeBatchBufferStart()
	size = memutils.AlignToPage(size)
	size += ExecutionModelCleanupSectionSize(encoder)
	size += 4 * memutils.PageSize
	return size
}

func (q *DeviceQueue) MinimumSlbSize() int              { return MinimumSlbSize(q.encoder) }
func (q *DeviceQueue) WaCommandsSize() int              { return WaCommandsSize(q.encoder) }
func (q *DeviceQueue) SlbBufferSize() int               { return SlbBufferSize(q.encoder) }
func (q *DeviceQueue) CSPrefetchSize() int              { return q.device.hwInfo.CSPrefetchSize }
func (q *DeviceQueue) workarounds() *hw.WorkaroundTable { return &q.device.hwInfo.Workarounds }

// BuildSlbDummyCommands rebuilds the scheduler slots. When the scheduler has recorded where it placed
// the jump to the cleanup section, only the slot it overwrote is rebuilt. An offset of exactly one slot
// or at the end of the slots rebuilds nothing. The jump back to the start of the batch always follows
// the last slot.
func (q *DeviceQueue) BuildSlbDummyCommands() {
	slotSize := SlotSize(q.encoder)
	slotsEnd := NumberOfDeviceEnqueues * slotSize

	endOffset := int(q.ControlBlock().Controls.SLBENDoffsetInBytes)
	q.slbCS.Reset()

	slots := NumberOfDeviceEnqueues
	if endOffset >= 0 {
		slots = 1
		if endOffset == slotSize || endOffset >= slotsEnd {
			slots = 0
		}
		q.slbCS.Seek(memutils.AlignDown(endOffset, slotSize))
	}

	for i := 0; i < slots; i++ {
		q.buildSlot()
	}

	q.slbCS.Seek(slotsEnd)
	q.encoder.BatchBufferStart(q.slbCS, q.slbBuffer.GpuAddress(), false)
}

func (q *DeviceQueue) buildSlot() {
	s := q.slbCS
	wa := q.workarounds()

	s.Append(&commands.MediaStateFlush{})
	if wa.WaArbCheckInDeviceEnqueue {
		s.Append(&commands.MiArbCheck{})
	}
	if wa.WaMiAtomicInDeviceEnqueue {
		q.encoder.Atomic(s, q.queueBuffer.GpuAddress()+uint64(dummyAtomicOffset),
			commands.AtomicOpcode4BIncrement, commands.AtomicDataSizeDword, true, true)
	}

	s.Append(&commands.MediaInterfaceDescriptorLoad{
		InterfaceDescriptorTotalLength:      InterfaceDescriptorEntries * commands.InterfaceDescriptorDataSize,
		InterfaceDescriptorDataStartAddress: ColorCalcStateSize,
	})
	if wa.WaLriInDeviceEnqueue {
		q.AddLriCmd(true)
	}

	// Profiling queues stall before the walker. Other queues keep the same space as noops.
	if q.profilingEnabled {
		q.encoder.PipeControl(s, encode.PipeControlArgs{})
		if wa.WaPipeControlInDeviceEnqueue {
			q.encoder.PipeControl(s, encode.PipeControlArgs{})
		}
	} else {
		q.encoder.Noop(s, q.encoder.SizePipeControl())
		if wa.WaPipeControlInDeviceEnqueue {
			q.encoder.Noop(s, q.encoder.SizePipeControl())
		}
	}

	s.Append(&commands.GpgpuWalker{
		SimdSize:                commands.SimdSize16,
		ThreadGroupIDXDimension: 1,
		ThreadGroupIDYDimension: 1,
		ThreadGroupIDZDimension: 1,
		RightExecutionMask:      0xffffffff,
		BottomExecutionMask:     0xffffffff,
	})

	s.Append(&commands.MediaStateFlush{})
	if wa.WaArbCheckInDeviceEnqueue {
		s.Append(&commands.MiArbCheck{})
	}

	q.encoder.PipeControl(s, encode.PipeControlArgs{})
	if wa.WaPipeControlInDeviceEnqueue {
		q.encoder.PipeControl(s, encode.PipeControlArgs{})
	}
	if wa.WaLriInDeviceEnqueue {
		q.AddLriCmd(false)
	}

	q.encoder.Noop(s, q.CSPrefetchSize())
}

// AddLriCmd writes the arbitration register, enabling arbitration when arbCheck is set
func (q *DeviceQueue) AddLriCmd(arbCheck bool) {
	value := uint32(0)
	if arbCheck {
		value = ArbitrationEnable
	}
	q.encoder.LoadRegisterImm(q.slbCS, ArbitrationRegister, value, false)
}

func (q *DeviceQueue) addPipeControlCmdWa() {
	if q.workarounds().WaPipeControlInDeviceEnqueue {
		q.encoder.PipeControl(q.slbCS, encode.PipeControlArgs{})
	}
}

// AddMediaStateClearCmds clears media pipeline state left by the scheduler and restores the VFE state
// parent kernels expect
func (q *DeviceQueue) AddMediaStateClearCmds() {
	s := q.slbCS
	hwInfo := &q.device.hwInfo

	q.addPipeControlCmdWa()
	q.encoder.PipeControl(s, encode.PipeControlArgs{GenericMediaStateClear: true})

	if hwInfo.Workarounds.WaSendMIFLUSHBeforeVFE {
		q.encoder.PipeControl(s, encode.PipeControlArgs{})
	}
	s.Append(&commands.MediaVfeState{
		MaximumNumberOfThreads: hwInfo.EUCount*threadsPerEU - 1,
		NumberOfUrbEntries:     1,
		UrbEntryAllocationSize: vfeUrbEntryAllocationSize,
	})
}

// AddProfilingEndCmds stores the completion timestamp of the parent kernel to timestampAddress
func (q *DeviceQueue) AddProfilingEndCmds(timestampAddress uint64) {
	q.UpdateControlBlock(func(block *IGILCommandQueue) {
		block.Controls.EventTimestampAddress = timestampAddress
	})

	q.encoder.PipeControl(q.slbCS, encode.PipeControlArgs{})
	q.encoder.StoreRegisterMem(q.slbCS, TimestampRegister, timestampAddress)
	q.AddLriCmd(false)
}

// ParentKernel is the parent kernel whose child enqueues the cleanup section completes
type ParentKernel interface {
	UsesFencesForReadWriteImages() bool
}

// AddExecutionModelCleanupSection appends the section the scheduler jumps to after the last child
// kernel. It releases the critical section, writes taskCount to tagAddress and clears media state.
// hwTimestampAddress is the parent's timestamp node when profiling, zero otherwise.
func (q *DeviceQueue) AddExecutionModelCleanupSection(parent ParentKernel, hwTimestampAddress uint64, tagAddress uint64, taskCount uint32) {
	s := q.slbCS
	slotsEnd := NumberOfDeviceEnqueues*SlotSize(q.encoder) + q.encoder.SizeBatchBufferStart()
	if s.Used() < slotsEnd {
		s.Seek(slotsEnd)
	}

	cleanupOffset := memutils.AlignToPage(s.Used())
	q.encoder.Noop(s, cleanupOffset-s.Used())

	if q.encoder.Family() == hw.FamilyGen9 && parent != nil && parent.UsesFencesForReadWriteImages() {
		q.encoder.PipeControl(s, encode.PipeControlArgs{})
		q.encoder.MathReadModifyWrite(s, LsqcRegister, commands.AluOpcodeAnd, ^lsqcRoPerfDisable)
		q.encoder.PipeControl(s, encode.PipeControlArgs{})
	}

	if hwTimestampAddress != 0 {
		q.AddProfilingEndCmds(hwTimestampAddress + ContextCompleteTSOffset)
	}

	q.encoder.PipeControlWithPostSync(s, commands.PostSyncOperationWriteImmediateData,
		q.queueBuffer.GpuAddress()+uint64(criticalSectionOffset), uint64(CriticalSectionFree), encode.PipeControlArgs{})
	q.encoder.PipeControlWithPostSync(s, commands.PostSyncOperationWriteImmediateData,
		tagAddress, uint64(taskCount), encode.PipeControlArgs{})

	q.AddMediaStateClearCmds()
	q.encoder.BatchBufferEnd(s)

	q.UpdateControlBlock(func(block *IGILCommandQueue) {
		block.Controls.CleanupSectionAddress = q.slbBuffer.GpuAddress() + uint64(cleanupOffset)
		block.Controls.CleanupSectionSize = uint32(s.Used() - cleanupOffset)
	})
}
