package devicequeue

import (
	"encoding/binary"

	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/encode"
	"github.com/vkngwrapper/gfxcore/memory"
	"github.com/vkngwrapper/gfxcore/memutils"
	"github.com/vkngwrapper/gfxcore/stream"
)

type ArgKind uint32

const (
	ArgKindValue ArgKind = iota
	ArgKindPointer
	ArgKindDeviceQueue
)

var argKindMapping = map[ArgKind]string{
	ArgKindValue:       "Value",
	ArgKindPointer:     "Pointer",
	ArgKindDeviceQueue: "DeviceQueue",
}

func (k ArgKind) String() string {
	return argKindMapping[k]
}

// ArgDescriptor locates a kernel argument in the cross-thread data
type ArgDescriptor struct {
	Kind              ArgKind
	CrossThreadOffset uint32
	// PointerSize is 4 or 8 for pointer and device queue arguments
	PointerSize uint32
}

// BlockKernel is a child kernel a parent may enqueue on the device
type BlockKernel struct {
	Name string
	Isa  *memory.GraphicsAllocation

	SimdSize  commands.SimdSize
	LocalSize [3]uint32

	SlmTotalSize        uint32
	BarrierCount        uint32
	CrossThreadDataSize uint32

	// SurfaceStateHeap holds the block's surface states followed by its binding table
	SurfaceStateHeap           []byte
	BindingTableOffset         uint32
	NumberOfBindingTableStates uint32
}

func (b *BlockKernel) threadsPerGroup() uint32 {
	simd := uint32(8) << b.SimdSize
	total := b.LocalSize[0] * b.LocalSize[1] * b.LocalSize[2]
	if total == 0 {
		return 1
	}
	return (total + simd - 1) / simd
}

// Kernel is the host-side state of a kernel relevant to device enqueue
type Kernel struct {
	Name            string
	Args            []ArgDescriptor
	CrossThreadData []byte

	DynamicStateHeapSize uint32
	SurfaceStateHeapSize uint32
	UsesImageFences      bool

	Blocks []BlockKernel
}

func (k *Kernel) IsParentKernel() bool {
	return len(k.Blocks) > 0
}

func (k *Kernel) UsesFencesForReadWriteImages() bool {
	return k.UsesImageFences
}

// SetArgDevQueue patches the GPU address of a device queue's buffer into argument index. value must be
// a live *DeviceQueue and size the size of a queue handle. Cross-thread data is untouched on failure.
func (k *Kernel) SetArgDevQueue(index uint32, size int, value any) Status {
	if int(index) >= len(k.Args) {
		return StatusInvalidArgIndex
	}
	arg := &k.Args[index]
	if arg.Kind != ArgKindDeviceQueue {
		return StatusInvalidArgValue
	}

	if value == nil {
		return StatusInvalidArgValue
	}
	if size != 8 {
		return StatusInvalidArgSize
	}

	queue, ok := value.(*DeviceQueue)
	if !ok {
		return StatusInvalidDeviceQueue
	}
	if queue == nil {
		return StatusInvalidArgValue
	}
	if queue.magic != liveQueueMagic {
		return StatusInvalidDeviceQueue
	}

	pointerSize := 4
	if arg.PointerSize == 8 {
		pointerSize = 8
	}
	offset := int(arg.CrossThreadOffset)
	if offset+pointerSize > len(k.CrossThreadData) {
		return StatusInvalidArgValue
	}

	address := queue.queueBuffer.GpuAddressToPatch()
	if pointerSize == 8 {
		binary.LittleEndian.PutUint64(k.CrossThreadData[offset:], address)
	} else {
		binary.LittleEndian.PutUint32(k.CrossThreadData[offset:], uint32(address))
	}
	return StatusSuccess
}

// SshSizeForExecutionModel is the surface state space needed by a parent kernel and every block it can enqueue
func SshSizeForExecutionModel(parent *Kernel) int {
	size := memutils.AlignUp(int(parent.SurfaceStateHeapSize), memutils.CacheLineSize)
	for i := range parent.Blocks {
		size += memutils.AlignUp(len(parent.Blocks[i].SurfaceStateHeap), memutils.CacheLineSize)
	}
	return size
}

// SetupIndirectState records the parent's dynamic state layout in the control block, copies every block's
// surface state into ssh and writes the block descriptors into the first descriptor table after the
// parent's parentCount entries. dsh itself is not advanced.
func (q *DeviceQueue) SetupIndirectState(ssh *stream.IndirectHeap, dsh *stream.IndirectHeap, parent *Kernel, parentCount uint32, isCcsUsed bool) {
	dynamicHeapStart := uint32(DshOffset + memutils.AlignUp(int(parent.DynamicStateHeapSize), memutils.CacheLineSize))
	dshSize := uint32(q.dshBuffer.Size())

	q.UpdateControlBlock(func(block *IGILCommandQueue) {
		controls := &block.Controls
		controls.IDTstart = IDTStart
		controls.DynamicHeapStart = dynamicHeapStart
		controls.CurrentDSHoffset = dynamicHeapStart
		controls.DynamicHeapSizeInBytes = dshSize
		controls.ParentDSHOffset = DshOffset
		controls.StartBlockID = parentCount
	})

	descriptors := dsh.Buffer()[ColorCalcStateSize:]
	for i := range parent.Blocks {
		block := &parent.Blocks[i]

		ssh.Align(memutils.CacheLineSize)
		sshOffset := uint32(ssh.Used())
		copy(ssh.GetSpace(len(block.SurfaceStateHeap)), block.SurfaceStateHeap)

		idd := q.blockDescriptor(block, sshOffset, isCcsUsed)
		slot := (int(parentCount) + i) * commands.InterfaceDescriptorDataSize
		idd.Encode(descriptors[slot : slot+commands.InterfaceDescriptorDataSize])
	}
}

func (q *DeviceQueue) blockDescriptor(block *BlockKernel, sshOffset uint32, isCcsUsed bool) commands.InterfaceDescriptorData {
	var kernelStart uint64
	if block.Isa != nil {
		kernelStart = block.Isa.GpuAddressToPatch()
		if isCcsUsed {
			kernelStart = block.Isa.GpuAddress()
		}
	}

	idd := commands.InterfaceDescriptorData{
		KernelStartPointer:                kernelStart,
		BindingTablePointer:               sshOffset + block.BindingTableOffset,
		BindingTableEntryCount:            min(block.NumberOfBindingTableStates, 31),
		NumberOfThreadsInGpgpuThreadGroup: block.threadsPerGroup(),
		SharedLocalMemorySize:             encode.SlmSizeEncoding(block.SlmTotalSize),
		CrossThreadConstantDataReadLength: uint32(memutils.AlignUp(int(block.CrossThreadDataSize), 32) / 32),
	}
	q.encoder.ProgramBarrierEnable(&idd, block.BarrierCount)
	return idd
}
