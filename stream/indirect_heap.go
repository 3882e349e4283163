package stream

import (
	"github.com/vkngwrapper/gfxcore/memory"
	"github.com/vkngwrapper/gfxcore/memutils"
)

type HeapType uint32

const (
	HeapTypeDynamicState HeapType = iota
	HeapTypeIndirectObject
	HeapTypeSurfaceState
)

var heapTypeMapping = map[HeapType]string{
	HeapTypeDynamicState:   "DynamicState",
	HeapTypeIndirectObject: "IndirectObject",
	HeapTypeSurfaceState:   "SurfaceState",
}

func (t HeapType) String() string {
	return heapTypeMapping[t]
}

// IndirectHeap is a LinearStream holding state rather than commands. State entries are addressed by
// their offset from the heap base.
type IndirectHeap struct {
	LinearStream
	heapType HeapType
}

func NewIndirectHeap(heapType HeapType, buffer []byte, gpuBase uint64) *IndirectHeap {
	return &IndirectHeap{LinearStream: LinearStream{buffer: buffer, gpuBase: gpuBase}, heapType: heapType}
}

func NewIndirectHeapFromAllocation(heapType HeapType, allocation *memory.GraphicsAllocation) *IndirectHeap {
	return &IndirectHeap{LinearStream: *FromAllocation(allocation), heapType: heapType}
}

func (h *IndirectHeap) Type() HeapType {
	return h.heapType
}

// Align advances the cursor to the next multiple of alignment
func (h *IndirectHeap) Align(alignment int) {
	aligned := memutils.AlignUp(h.used, alignment)
	if aligned > h.used {
		h.GetSpace(aligned - h.used)
	}
}

// HeapGpuStartOffset is the offset of the heap from the base of the allocation it lives in
func (h *IndirectHeap) HeapGpuStartOffset() uint64 {
	if h.allocation == nil {
		return 0
	}
	return h.gpuBase - h.allocation.GpuBaseAddress()
}
