package memory

// AllocationType tags what a GraphicsAllocation is used for. Placement, caching and residency
// decisions are made on the type rather than on the caller.
type AllocationType uint32

const (
	AllocationTypeUnknown AllocationType = iota
	AllocationTypeBuffer
	AllocationTypeBufferHostMemory
	AllocationTypeCommandBuffer
	AllocationTypeDeviceQueueBuffer
	AllocationTypeImage
	AllocationTypeIndirectObjectHeap
	AllocationTypeInstructionHeap
	AllocationTypeInternalHeap
	AllocationTypeKernelIsa
	AllocationTypeLinearStream
	AllocationTypeProfilingTagBuffer
	AllocationTypeScratchSurface
	AllocationTypeSurfaceStateHeap
	AllocationTypeTagBuffer
	AllocationTypeTimestampPacketTagBuffer
	AllocationTypeWorkPartitionSurface
)

var allocationTypeMapping = map[AllocationType]string{
	AllocationTypeUnknown:                  "UNKNOWN",
	AllocationTypeBuffer:                   "BUFFER",
	AllocationTypeBufferHostMemory:         "BUFFER_HOST_MEMORY",
	AllocationTypeCommandBuffer:            "COMMAND_BUFFER",
	AllocationTypeDeviceQueueBuffer:        "DEVICE_QUEUE_BUFFER",
	AllocationTypeImage:                    "IMAGE",
	AllocationTypeIndirectObjectHeap:       "INDIRECT_OBJECT_HEAP",
	AllocationTypeInstructionHeap:          "INSTRUCTION_HEAP",
	AllocationTypeInternalHeap:             "INTERNAL_HEAP",
	AllocationTypeKernelIsa:                "KERNEL_ISA",
	AllocationTypeLinearStream:             "LINEAR_STREAM",
	AllocationTypeProfilingTagBuffer:       "PROFILING_TAG_BUFFER",
	AllocationTypeScratchSurface:           "SCRATCH_SURFACE",
	AllocationTypeSurfaceStateHeap:         "SURFACE_STATE_HEAP",
	AllocationTypeTagBuffer:                "TAG_BUFFER",
	AllocationTypeTimestampPacketTagBuffer: "TIMESTAMP_PACKET_TAG_BUFFER",
	AllocationTypeWorkPartitionSurface:     "WORK_PARTITION_SURFACE",
}

func (t AllocationType) String() string {
	return allocationTypeMapping[t]
}

// RequiresCpuAccess reports whether allocations of this type are always written by the host
func (t AllocationType) RequiresCpuAccess() bool {
	switch t {
	case AllocationTypeCommandBuffer,
		AllocationTypeDeviceQueueBuffer,
		AllocationTypeIndirectObjectHeap,
		AllocationTypeInternalHeap,
		AllocationTypeLinearStream,
		AllocationTypeProfilingTagBuffer,
		AllocationTypeSurfaceStateHeap,
		AllocationTypeTagBuffer,
		AllocationTypeTimestampPacketTagBuffer,
		AllocationTypeWorkPartitionSurface,
		AllocationTypeBufferHostMemory:
		return true
	}
	return false
}

// MemoryBank identifies the physical memory an allocation was placed in
type MemoryBank uint32

const (
	MemoryBankSystem MemoryBank = iota
	MemoryBankLocal
)

var memoryBankMapping = map[MemoryBank]string{
	MemoryBankSystem: "System",
	MemoryBankLocal:  "Local",
}

func (b MemoryBank) String() string {
	return memoryBankMapping[b]
}
