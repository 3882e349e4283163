package devicequeue

import (
	"bytes"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
)

const (
	// QueueMagicNumber identifies an initialized queue control block to the scheduler kernel
	QueueMagicNumber uint32 = 0x654321
	// QueueHeadInit is the head offset of an empty queue
	QueueHeadInit uint32 = 0
)

// Values of IGILCommandQueueControls.CriticalSection
const (
	CriticalSectionFree  uint32 = 0
	CriticalSectionTaken uint32 = 1
)

// IGILCommandQueueControls is the scheduler state shared by the host and the scheduler kernel.
// All fields are little endian and packed in declaration order.
type IGILCommandQueueControls struct {
	StackSize              uint32
	StackTop               uint32
	PreviousHead           uint32
	PreviousStackTop       uint32
	PreviousStorageTop     uint32
	QstorageSize           uint32
	QstorageTop            uint32
	TotalNumberOfQueues    uint32
	PreviousNumberOfQueues uint32
	SecondLevelBatchOffset uint32
	IDTAfterFirstPhase     uint32
	CurrentIDToffset       uint32
	IDTstart               uint32

	IsProfilingEnabled              uint32
	IsSimulation                    uint32
	LastScheduleEventNumber         uint32
	CurrentScheduleEventNumber      uint32
	EnqueueMarkerScheduled          uint32
	ErrorCode                       uint32
	DummyAtomicOperationPlaceholder uint32
	DebugNextBlockID                uint32
	DebugNextBlockGWS               uint32

	// SLBENDoffsetInBytes is where the scheduler placed the jump to the cleanup section, or -1
	SLBENDoffsetInBytes         int32
	CriticalSection             uint32
	SchedulerEarlyReturn        uint32
	SchedulerEarlyReturnCounter uint32

	StartBlockID           uint32
	DynamicHeapStart       uint32
	DynamicHeapSizeInBytes uint32
	CurrentDSHoffset       uint32
	ParentDSHOffset        uint32

	CleanupSectionSize    uint32
	CleanupSectionAddress uint64
	EventTimestampAddress uint64
}

// IGILCommandQueue is the control block at the start of the queue buffer. Queue entries follow it.
type IGILCommandQueue struct {
	Head     uint32
	Size     uint32
	Magic    uint32
	Reserved uint32
	Controls IGILCommandQueueControls
}

// IGILCommandQueueSize is the encoded size of IGILCommandQueue
const IGILCommandQueueSize = 160

// Byte offsets of control block fields the GPU addresses directly. The struct has no padding, so Go's
// layout is the encoded layout.
const (
	dummyAtomicOffset = unsafe.Offsetof(IGILCommandQueue{}.Controls) +
		unsafe.Offsetof(IGILCommandQueueControls{}.DummyAtomicOperationPlaceholder)
	criticalSectionOffset = unsafe.Offsetof(IGILCommandQueue{}.Controls) +
		unsafe.Offsetof(IGILCommandQueueControls{}.CriticalSection)
)

func (q *IGILCommandQueue) Encode(dst []byte) {
	var buf bytes.Buffer
	buf.Grow(IGILCommandQueueSize)
	err := binary.Write(&buf, binary.LittleEndian, q)
	if err != nil {
		panic(errors.Wrap(err, "failed to encode queue control block"))
	}
	copy(dst, buf.Bytes())
}

func (q *IGILCommandQueue) Decode(src []byte) error {
	if len(src) < IGILCommandQueueSize {
		return errors.Newf("queue control block needs %d bytes, got %d", IGILCommandQueueSize, len(src))
	}
	return binary.Read(bytes.NewReader(src[:IGILCommandQueueSize]), binary.LittleEndian, q)
}

// IGILEventPool is the header of the event pool buffer. Device events follow it.
type IGILEventPool struct {
	TimestampResolution float32
	Head                uint32
	Size                uint32
}

const (
	IGILEventPoolSize   = 12
	IGILDeviceEventSize = 16
)

func (p *IGILEventPool) Encode(dst []byte) {
	binary.LittleEndian.PutUint32(dst[0:], math.Float32bits(p.TimestampResolution))
	binary.LittleEndian.PutUint32(dst[4:], p.Head)
	binary.LittleEndian.PutUint32(dst[8:], p.Size)
}

func (p *IGILEventPool) Decode(src []byte) error {
	if len(src) < IGILEventPoolSize {
		return errors.Newf("event pool header needs %d bytes, got %d", IGILEventPoolSize, len(src))
	}
	return binary.Read(bytes.NewReader(src[:IGILEventPoolSize]), binary.LittleEndian, p)
}

// HwTimeStamps is the layout of a profiling timestamp node
type HwTimeStamps struct {
	GlobalStartTS     uint64
	ContextStartTS    uint64
	GlobalEndTS       uint64
	ContextEndTS      uint64
	GlobalCompleteTS  uint64
	ContextCompleteTS uint64
}

// ContextCompleteTSOffset is where the cleanup section writes the completion timestamp of a parent kernel
const ContextCompleteTSOffset = uint64(unsafe.Offsetof(HwTimeStamps{}.ContextCompleteTS))
