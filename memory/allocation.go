package memory

import (
	"fmt"

	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gfxcore/hw"
)

// MaxOsContexts bounds the number of OS contexts an allocation tracks residency for
const MaxOsContexts = 16

// TrimListUnusedPosition marks an allocation that is not in an OS context's trim candidate list
const TrimListUnusedPosition = -1

// ResidencyData is the per-OS-context residency state of one allocation. The residency controller for
// the context is the only writer of TrimCandidateListPosition.
type ResidencyData struct {
	Resident       bool
	LastFenceValue uint64
	// TrimCandidateListPosition is the index of this allocation in the context's trim candidate list
	TrimCandidateListPosition int
}

// GraphicsAllocation is one GPU-addressable memory region
type GraphicsAllocation struct {
	handle          uint32
	allocationType  AllocationType
	rootDeviceIndex uint32
	flags           AllocationFlags
	subDevices      hw.DeviceBitfield
	memoryBank      MemoryBank
	name            string

	cpu        []byte
	gpuAddress uint64
	gpuBase    uint64
	size       int

	heapAllocated bool

	residency [MaxOsContexts]ResidencyData
	taskCount [MaxOsContexts]uint32
}

// NewGraphicsAllocation wraps existing memory as an allocation. It is used for memory whose lifetime is
// managed outside of a MemoryManager, such as buffers in tests or imported host memory.
func NewGraphicsAllocation(allocationType AllocationType, cpu []byte, gpuAddress uint64) *GraphicsAllocation {
	alloc := &GraphicsAllocation{}
	alloc.init(0, allocationType, cpu, gpuAddress, len(cpu))
	return alloc
}

func (a *GraphicsAllocation) init(handle uint32, allocationType AllocationType, cpu []byte, gpuAddress uint64, size int) {
	a.handle = handle
	a.allocationType = allocationType
	a.cpu = cpu
	a.gpuAddress = gpuAddress
	a.size = size
	for i := range a.residency {
		a.residency[i] = ResidencyData{TrimCandidateListPosition: TrimListUnusedPosition}
	}
}

// reset clears a freed allocation before it is pooled, leaving it outside every trim candidate list
func (a *GraphicsAllocation) reset() {
	*a = GraphicsAllocation{}
	for i := range a.residency {
		a.residency[i].TrimCandidateListPosition = TrimListUnusedPosition
	}
}

func (a *GraphicsAllocation) Handle() uint32                { return a.handle }
func (a *GraphicsAllocation) Type() AllocationType          { return a.allocationType }
func (a *GraphicsAllocation) RootDeviceIndex() uint32       { return a.rootDeviceIndex }
func (a *GraphicsAllocation) Flags() AllocationFlags        { return a.flags }
func (a *GraphicsAllocation) SubDevices() hw.DeviceBitfield { return a.subDevices }
func (a *GraphicsAllocation) MemoryBank() MemoryBank        { return a.memoryBank }
func (a *GraphicsAllocation) Name() string                  { return a.name }
func (a *GraphicsAllocation) Size() int                     { return a.size }

// Cpu returns the host view of the allocation, or nil for device-only memory
func (a *GraphicsAllocation) Cpu() []byte {
	return a.cpu
}

func (a *GraphicsAllocation) GpuAddress() uint64 {
	return a.gpuAddress
}

// GpuBaseAddress is the base of the heap the allocation was placed in. Heap-relative addresses are
// GpuAddress minus this value.
func (a *GraphicsAllocation) GpuBaseAddress() uint64 {
	return a.gpuBase
}

// GpuAddressToPatch is the address written into commands and state referencing the allocation
func (a *GraphicsAllocation) GpuAddressToPatch() uint64 {
	return a.gpuAddress - a.gpuBase
}

func (a *GraphicsAllocation) IsMultiOsContextCapable() bool {
	return a.flags&AllocationFlagMultiOsContextCapable != 0
}

// ResidencyData returns the residency state for an OS context. The returned pointer stays valid for
// the lifetime of the allocation.
func (a *GraphicsAllocation) ResidencyData(osContextID uint32) *ResidencyData {
	if osContextID >= MaxOsContexts {
		panic(fmt.Sprintf("os context id %d exceeds the maximum of %d", osContextID, MaxOsContexts))
	}
	return &a.residency[osContextID]
}

// IsResident reports whether any OS context currently holds the allocation resident
func (a *GraphicsAllocation) IsResident() bool {
	for i := range a.residency {
		if a.residency[i].Resident {
			return true
		}
	}
	return false
}

func (a *GraphicsAllocation) TaskCount(osContextID uint32) uint32 {
	return a.taskCount[osContextID]
}

func (a *GraphicsAllocation) UpdateTaskCount(taskCount uint32, osContextID uint32) {
	a.taskCount[osContextID] = taskCount
}

func (a *GraphicsAllocation) printParameters(json *jwriter.ObjectState) {
	json.Name("Handle").Int(int(a.handle))
	json.Name("Type").String(a.allocationType.String())
	json.Name("Size").Int(a.size)
	json.Name("GpuAddress").String(fmt.Sprintf("%#x", a.gpuAddress))
	json.Name("MemoryBank").String(a.memoryBank.String())

	if a.flags != 0 {
		json.Name("Flags").String(a.flags.String())
	}

	if a.name != "" {
		json.Name("Name").String(a.name)
	}
}
