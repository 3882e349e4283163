package stream

import (
	"fmt"

	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/memory"
)

// LinearStream is a bump-allocated window over GPU-visible memory that commands are serialized into.
// Running out of space is a sizing bug in the caller and panics before any byte is written.
type LinearStream struct {
	buffer     []byte
	used       int
	gpuBase    uint64
	allocation *memory.GraphicsAllocation
}

// New creates a stream over buffer whose first byte is visible to the GPU at gpuBase
func New(buffer []byte, gpuBase uint64) *LinearStream {
	return &LinearStream{buffer: buffer, gpuBase: gpuBase}
}

// FromAllocation creates a stream over the CPU view of an allocation
func FromAllocation(allocation *memory.GraphicsAllocation) *LinearStream {
	if allocation.Cpu() == nil {
		panic(fmt.Sprintf("attempting to create a stream over allocation %d which has no cpu view", allocation.Handle()))
	}
	return &LinearStream{buffer: allocation.Cpu(), gpuBase: allocation.GpuAddress(), allocation: allocation}
}

func (s *LinearStream) Allocation() *memory.GraphicsAllocation {
	return s.allocation
}

// Buffer returns the full backing memory, including bytes past Used
func (s *LinearStream) Buffer() []byte {
	return s.buffer
}

// Bytes returns the written portion of the stream
func (s *LinearStream) Bytes() []byte {
	return s.buffer[:s.used]
}

func (s *LinearStream) Used() int {
	return s.used
}

func (s *LinearStream) MaxAvailableSpace() int {
	return len(s.buffer)
}

func (s *LinearStream) AvailableSpace() int {
	return len(s.buffer) - s.used
}

func (s *LinearStream) GpuBase() uint64 {
	return s.gpuBase
}

// CurrentGpuAddress is the GPU address the next command will be written at
func (s *LinearStream) CurrentGpuAddress() uint64 {
	return s.gpuBase + uint64(s.used)
}

// GetSpace reserves size bytes at the cursor and returns them for the caller to fill
func (s *LinearStream) GetSpace(size int) []byte {
	if size < 0 || size > s.AvailableSpace() {
		panic(fmt.Sprintf("linear stream overflow: requested %d bytes with %d of %d available", size, s.AvailableSpace(), len(s.buffer)))
	}

	space := s.buffer[s.used : s.used+size : s.used+size]
	s.used += size
	return space
}

// Append serializes cmd at the cursor and returns the offset it was written at
func (s *LinearStream) Append(cmd commands.Command) int {
	offset := s.used
	cmd.Encode(s.GetSpace(cmd.Size()))
	return offset
}

// Reserve returns a Patch for a command that will be written later, leaving zeroed bytes in place.
// Zero dwords decode as MI_NOOP, so an unfilled reservation is harmless to the command streamer.
func (s *LinearStream) Reserve(size int) Patch {
	offset := s.used
	space := s.GetSpace(size)
	for i := range space {
		space[i] = 0
	}
	return Patch{stream: s, offset: offset, size: size}
}

// Seek moves the cursor to offset. It is used to rewrite a previously built region in place.
func (s *LinearStream) Seek(offset int) {
	if offset < 0 || offset > len(s.buffer) {
		panic(fmt.Sprintf("linear stream seek to %d outside of %d bytes", offset, len(s.buffer)))
	}
	s.used = offset
}

// Replace points the stream at new memory and resets the cursor
func (s *LinearStream) Replace(buffer []byte, gpuBase uint64) {
	s.buffer = buffer
	s.gpuBase = gpuBase
	s.allocation = nil
	s.used = 0
}

func (s *LinearStream) Reset() {
	s.used = 0
}

// Patch is a reserved region of a stream that can be overwritten with a command of the same size
type Patch struct {
	stream *LinearStream
	offset int
	size   int
}

func (p Patch) Offset() int {
	return p.offset
}

func (p Patch) GpuAddress() uint64 {
	return p.stream.gpuBase + uint64(p.offset)
}

// Write encodes cmd into the reserved region
func (p Patch) Write(cmd commands.Command) {
	if cmd.Size() != p.size {
		panic(fmt.Sprintf("patching %s of %d bytes into a %d byte reservation", cmd.Kind(), cmd.Size(), p.size))
	}
	cmd.Encode(p.stream.buffer[p.offset : p.offset+p.size])
}
