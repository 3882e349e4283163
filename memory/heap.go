package memory

import (
	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gfxcore/memutils"
	"golang.org/x/exp/slices"
)

type heapChunk struct {
	address uint64
	size    uint64
}

// virtualHeap hands out GPU virtual address ranges from [base, base+size). Ranges are bump allocated
// until freed; freed ranges are coalesced and reused first-fit.
type virtualHeap struct {
	base uint64
	size uint64
	top  uint64
	used uint64
	free []heapChunk
}

func (h *virtualHeap) init(base, size uint64) {
	h.base = base
	h.size = size
	h.top = base
	h.used = 0
	h.free = h.free[:0]
}

func (h *virtualHeap) allocate(size, alignment uint64) (uint64, error) {
	if alignment == 0 {
		alignment = memutils.PageSize
	}
	memutils.DebugCheckPow2(alignment, "alignment")

	for i, chunk := range h.free {
		start := memutils.AlignUp(chunk.address, alignment)
		if start+size > chunk.address+chunk.size {
			continue
		}

		var replacement []heapChunk
		if start > chunk.address {
			replacement = append(replacement, heapChunk{address: chunk.address, size: start - chunk.address})
		}
		end := start + size
		if end < chunk.address+chunk.size {
			replacement = append(replacement, heapChunk{address: end, size: chunk.address + chunk.size - end})
		}
		h.free = slices.Replace(h.free, i, i+1, replacement...)
		h.used += size
		return start, nil
	}

	start := memutils.AlignUp(h.top, alignment)
	if start+size > h.base+h.size {
		return 0, errors.Wrapf(memutils.OutOfSpaceError, "gpu virtual heap cannot fit %d bytes", size)
	}
	if start > h.top {
		h.insertFree(heapChunk{address: h.top, size: start - h.top})
	}
	h.top = start + size
	h.used += size
	return start, nil
}

func (h *virtualHeap) release(address, size uint64) {
	h.used -= size
	h.insertFree(heapChunk{address: address, size: size})

	last := len(h.free) - 1
	if last >= 0 && h.free[last].address+h.free[last].size == h.top {
		h.top = h.free[last].address
		h.free = h.free[:last]
	}
}

func (h *virtualHeap) insertFree(chunk heapChunk) {
	index, _ := slices.BinarySearchFunc(h.free, chunk.address, func(c heapChunk, address uint64) int {
		switch {
		case c.address < address:
			return -1
		case c.address > address:
			return 1
		}
		return 0
	})
	h.free = slices.Insert(h.free, index, chunk)

	if index+1 < len(h.free) && h.free[index].address+h.free[index].size == h.free[index+1].address {
		h.free[index].size += h.free[index+1].size
		h.free = slices.Delete(h.free, index+1, index+2)
	}
	if index > 0 && h.free[index-1].address+h.free[index-1].size == h.free[index].address {
		h.free[index-1].size += h.free[index].size
		h.free = slices.Delete(h.free, index, index+1)
	}
}

func (h *virtualHeap) Validate() error {
	var freeBytes uint64
	for i, chunk := range h.free {
		if chunk.size == 0 {
			return errors.Newf("free chunk %d at %#x is empty", i, chunk.address)
		}
		if i > 0 && h.free[i-1].address+h.free[i-1].size >= chunk.address {
			return errors.Newf("free chunk %d at %#x overlaps or touches its predecessor", i, chunk.address)
		}
		freeBytes += chunk.size
	}

	if h.top-h.base != h.used+freeBytes {
		return errors.Newf("heap accounting mismatch: %d bytes below top, %d used, %d free", h.top-h.base, h.used, freeBytes)
	}
	return nil
}
