package encode

import (
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/memutils"
	"github.com/vkngwrapper/gfxcore/stream"
)

// ComputeModeRequest describes the compute pipeline state required by the next dispatch and whether it
// differs from what the stream last programmed
type ComputeModeRequest struct {
	CoherencyRequired bool
	CoherencyChanged  bool
	LargeGrfMode      bool
	LargeGrfChanged   bool
}

func (r ComputeModeRequest) changed() bool {
	return r.CoherencyChanged || r.LargeGrfChanged
}

func (r ComputeModeRequest) command() *commands.StateComputeMode {
	cmd := &commands.StateComputeMode{
		LargeGrfMode: r.LargeGrfMode,
		MaskBits:     commands.StateComputeModeMaskForceNonCoherent | commands.StateComputeModeMaskLargeGrfMode,
	}
	if !r.CoherencyRequired {
		cmd.ForceNonCoherent = 2
	}
	return cmd
}

// DispatchHeaps are the state heaps a dispatch writes into besides the command stream
type DispatchHeaps struct {
	// DynamicState receives the interface descriptor on families without an inline descriptor
	DynamicState *stream.IndirectHeap
	// IndirectObject receives the cross-thread data
	IndirectObject *stream.IndirectHeap
}

// DispatchArgs describes one kernel dispatch
type DispatchArgs struct {
	GroupCount [3]uint32
	GroupStart [3]uint32
	LocalSize  [3]uint32
	SimdSize   commands.SimdSize

	KernelStartOffset uint64
	CrossThreadData   []byte
	SlmTotalSize      uint32
	BarrierCount      uint32

	// EventAddress receives a post-sync write when the dispatch completes. Zero disables it.
	EventAddress uint64
	// EventTimestamp writes a timestamp instead of ImmediateData
	EventTimestamp bool
	ImmediateData  uint64
	// L3FlushAfterPostSync flushes the data port once the dispatch completes
	L3FlushAfterPostSync bool
}

func (a *DispatchArgs) threadsPerGroup() uint32 {
	simd := uint32(8) << a.SimdSize
	total := a.LocalSize[0] * a.LocalSize[1] * a.LocalSize[2]
	if total == 0 {
		return 1
	}
	return (total + simd - 1) / simd
}

func (a *DispatchArgs) postSyncOperation() commands.PostSyncOperation {
	if a.EventAddress == 0 {
		return commands.PostSyncOperationNoWrite
	}
	if a.EventTimestamp {
		return commands.PostSyncOperationWriteTimestamp
	}
	return commands.PostSyncOperationWriteImmediateData
}

// SlmSizeEncoding converts a shared local memory size in bytes to the descriptor's power-of-two
// encoding, where 1 is 1KB and 7 is 64KB
func SlmSizeEncoding(slmTotalSize uint32) uint32 {
	if slmTotalSize == 0 {
		return 0
	}

	encoding := uint32(1)
	for size := uint32(1024); size < slmTotalSize && encoding < 7; size <<= 1 {
		encoding++
	}
	return encoding
}

func (e *baseEncoder) interfaceDescriptor(args *DispatchArgs) commands.InterfaceDescriptorData {
	return commands.InterfaceDescriptorData{
		KernelStartPointer:                args.KernelStartOffset,
		NumberOfThreadsInGpgpuThreadGroup: args.threadsPerGroup(),
		SharedLocalMemorySize:             SlmSizeEncoding(args.SlmTotalSize),
		CrossThreadConstantDataReadLength: uint32(memutils.AlignUp(len(args.CrossThreadData), 32) / 32),
	}
}

func writeIndirectData(heap *stream.IndirectHeap, data []byte) uint32 {
	if heap == nil {
		return 0
	}

	heap.Align(memutils.CacheLineSize)
	offset := heap.Used()
	size := memutils.AlignUp(len(data), 32)
	space := heap.GetSpace(size)
	copy(space, data)
	for i := len(data); i < size; i++ {
		space[i] = 0
	}
	return uint32(offset)
}

// mediaEncoder dispatches through the media pipeline: the descriptor is loaded from the dynamic state
// heap and the grid is launched by GPGPU_WALKER
type mediaEncoder struct {
	baseEncoder
	stateComputeMode bool
}

func (e *mediaEncoder) ComputeMode(s *stream.LinearStream, request ComputeModeRequest) {
	if !e.stateComputeMode || !request.CoherencyChanged {
		return
	}
	request.LargeGrfMode = false
	s.Append(request.command())
}

func (e *mediaEncoder) SizeComputeMode(request ComputeModeRequest) int {
	if !e.stateComputeMode || !request.CoherencyChanged {
		return 0
	}
	return (&commands.StateComputeMode{}).Size()
}

func (e *mediaEncoder) ProgramBarrierEnable(idd *commands.InterfaceDescriptorData, barrierCount uint32) {
	idd.BarrierEnable = barrierCount > 0
}

func (e *mediaEncoder) PreferredSlmAllocationSize(slmTotalSize uint32) uint32 {
	return 0
}

func (e *mediaEncoder) DispatchKernel(s *stream.LinearStream, heaps DispatchHeaps, args *DispatchArgs) {
	idd := e.interfaceDescriptor(args)
	e.ProgramBarrierEnable(&idd, args.BarrierCount)

	var iddOffset uint32
	if heaps.DynamicState != nil {
		heaps.DynamicState.Align(memutils.CacheLineSize)
		iddOffset = uint32(heaps.DynamicState.Used())
		idd.Encode(heaps.DynamicState.GetSpace(commands.InterfaceDescriptorDataSize))
	}
	indirectOffset := writeIndirectData(heaps.IndirectObject, args.CrossThreadData)

	s.Append(&commands.MediaStateFlush{})
	s.Append(&commands.MediaInterfaceDescriptorLoad{
		InterfaceDescriptorTotalLength:      commands.InterfaceDescriptorDataSize,
		InterfaceDescriptorDataStartAddress: iddOffset,
	})

	simd := uint32(8) << args.SimdSize
	lanes := args.LocalSize[0] * args.LocalSize[1] * args.LocalSize[2]
	executionMask := uint32(0xffffffff)
	if remainder := lanes % simd; remainder != 0 {
		executionMask = (1 << remainder) - 1
	}

	s.Append(&commands.GpgpuWalker{
		IndirectDataLength:           uint32(memutils.AlignUp(len(args.CrossThreadData), 32)),
		IndirectDataStartAddress:     indirectOffset,
		SimdSize:                     args.SimdSize,
		ThreadWidthCounterMaximum:    idd.NumberOfThreadsInGpgpuThreadGroup - 1,
		ThreadGroupIDStartingX:       args.GroupStart[0],
		ThreadGroupIDXDimension:      args.GroupStart[0] + args.GroupCount[0],
		ThreadGroupIDStartingY:       args.GroupStart[1],
		ThreadGroupIDYDimension:      args.GroupStart[1] + args.GroupCount[1],
		ThreadGroupIDStartingResumeZ: args.GroupStart[2],
		ThreadGroupIDZDimension:      args.GroupStart[2] + args.GroupCount[2],
		RightExecutionMask:           executionMask,
		BottomExecutionMask:          0xffffffff,
	})
	s.Append(&commands.MediaStateFlush{})

	if args.EventAddress != 0 {
		e.PipeControlWithPostSync(s, args.postSyncOperation(), args.EventAddress, args.ImmediateData, PipeControlArgs{
			DcFlushEnable: args.L3FlushAfterPostSync,
		})
	}
}

func (e *mediaEncoder) SizeDispatchKernel(args *DispatchArgs) int {
	size := 2*(&commands.MediaStateFlush{}).Size() +
		(&commands.MediaInterfaceDescriptorLoad{}).Size() +
		(&commands.GpgpuWalker{}).Size()
	if args.EventAddress != 0 {
		size += e.SizePipeControlWithPostSync()
	}
	return size
}

// Preferred SLM allocation size per dual subslice, as encoded in the inline descriptor
const (
	PreferredSlmSize0K uint32 = iota
	PreferredSlmSize16K
	PreferredSlmSize32K
	PreferredSlmSize64K
	PreferredSlmSize96K
	PreferredSlmSize128K
)

// MocsIndexCachelineMisaligned is the MOCS table index used for buffers that may not be cacheline aligned
const MocsIndexCachelineMisaligned uint32 = 2

// computeEncoder dispatches through COMPUTE_WALKER with the descriptor and post-sync inline
type computeEncoder struct {
	baseEncoder
	xeHPGAndLater          bool
	computeModePipeControl bool
}

func (e *computeEncoder) ComputeMode(s *stream.LinearStream, request ComputeModeRequest) {
	if !request.changed() {
		return
	}
	if e.computeModePipeControl {
		e.PipeControl(s, PipeControlArgs{HdcPipelineFlush: true})
	}
	s.Append(request.command())
}

func (e *computeEncoder) SizeComputeMode(request ComputeModeRequest) int {
	if !request.changed() {
		return 0
	}
	size := (&commands.StateComputeMode{}).Size()
	if e.computeModePipeControl {
		size += e.SizePipeControl()
	}
	return size
}

func (e *computeEncoder) ProgramBarrierEnable(idd *commands.InterfaceDescriptorData, barrierCount uint32) {
	if e.xeHPGAndLater {
		idd.NumberOfBarriers = barrierCount
		return
	}
	idd.BarrierEnable = barrierCount > 0
}

// PreferredSlmAllocationSize picks the smallest preferred SLM size that fits slmTotalSize.
// DG2 A0 parts always use 128K; a non-negative OverridePreferredSlmAllocationSizePerDss wins over both.
func (e *computeEncoder) PreferredSlmAllocationSize(slmTotalSize uint32) uint32 {
	if e.flags.OverridePreferredSlmAllocationSizePerDss >= 0 {
		return uint32(e.flags.OverridePreferredSlmAllocationSizePerDss)
	}
	if !e.xeHPGAndLater {
		return PreferredSlmSize0K
	}
	if e.hwInfo.Product == hw.ProductDG2 && e.hwInfo.IsA0() {
		return PreferredSlmSize128K
	}

	switch {
	case slmTotalSize == 0:
		return PreferredSlmSize0K
	case slmTotalSize <= 16*1024:
		return PreferredSlmSize16K
	case slmTotalSize <= 32*1024:
		return PreferredSlmSize32K
	case slmTotalSize <= 64*1024:
		return PreferredSlmSize64K
	case slmTotalSize <= 96*1024:
		return PreferredSlmSize96K
	}
	return PreferredSlmSize128K
}

// Walker builds the COMPUTE_WALKER for a dispatch without appending it, so partitioning can adjust it
func (e *computeEncoder) Walker(heaps DispatchHeaps, args *DispatchArgs) *commands.ComputeWalker {
	idd := e.interfaceDescriptor(args)
	e.ProgramBarrierEnable(&idd, args.BarrierCount)
	idd.PreferredSlmAllocationSize = e.PreferredSlmAllocationSize(args.SlmTotalSize)

	walker := &commands.ComputeWalker{
		IndirectDataLength:       uint32(memutils.AlignUp(len(args.CrossThreadData), 32)),
		IndirectDataStartAddress: writeIndirectData(heaps.IndirectObject, args.CrossThreadData),
		SimdSize:                 args.SimdSize,
		ExecutionMask:            0xffffffff,
		LocalXMaximum:            maxIndex(args.LocalSize[0]),
		LocalYMaximum:            maxIndex(args.LocalSize[1]),
		LocalZMaximum:            maxIndex(args.LocalSize[2]),
		ThreadGroupIDStartingX:   args.GroupStart[0],
		ThreadGroupIDStartingY:   args.GroupStart[1],
		ThreadGroupIDStartingZ:   args.GroupStart[2],
		ThreadGroupIDXDimension:  args.GroupStart[0] + args.GroupCount[0],
		ThreadGroupIDYDimension:  args.GroupStart[1] + args.GroupCount[1],
		ThreadGroupIDZDimension:  args.GroupStart[2] + args.GroupCount[2],
		InterfaceDescriptor:      idd,
	}

	if args.EventAddress != 0 {
		walker.PostSync = commands.PostSyncData{
			Operation:             args.postSyncOperation(),
			DestinationAddress:    args.EventAddress,
			ImmediateData:         args.ImmediateData,
			DataportPipelineFlush: args.L3FlushAfterPostSync,
		}
		if e.xeHPGAndLater {
			walker.PostSync.DataportSubsliceCacheFlush = true
		}
		if e.hwInfo.Product == hw.ProductDG2 {
			walker.PostSync.Mocs = MocsIndexCachelineMisaligned << 1
		}
	}

	return walker
}

func (e *computeEncoder) DispatchKernel(s *stream.LinearStream, heaps DispatchHeaps, args *DispatchArgs) {
	s.Append(e.Walker(heaps, args))
}

func (e *computeEncoder) SizeDispatchKernel(args *DispatchArgs) int {
	return (&commands.ComputeWalker{}).Size()
}

func maxIndex(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	return size - 1
}

// WalkerBuilder is implemented by encoders whose walker can be built ahead of dispatch
type WalkerBuilder interface {
	Walker(heaps DispatchHeaps, args *DispatchArgs) *commands.ComputeWalker
}
