package devicequeue

import (
	"context"
	"encoding/binary"
	"sync/atomic"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/vkngwrapper/gfxcore/commands"
	"github.com/vkngwrapper/gfxcore/encode"
	"github.com/vkngwrapper/gfxcore/memory"
	"github.com/vkngwrapper/gfxcore/memutils"
	"github.com/vkngwrapper/gfxcore/stream"
	"golang.org/x/exp/slog"
)

const (
	// NumberOfDeviceEnqueues is the number of scheduler slots in the second-level batch
	NumberOfDeviceEnqueues     = 128
	// InterfaceDescriptorEntries is the number of descriptors in one interface descriptor table
	InterfaceDescriptorEntries = 64
	NumberOfIDTables           = 2
	// ColorCalcStateSize is the space reserved at the start of the dynamic state heap before the first table
	ColorCalcStateSize         = 64
	// DshOffset is where parent kernel dynamic state starts in the queue's dynamic state heap
	DshOffset                  = commands.InterfaceDescriptorDataSize*InterfaceDescriptorEntries*NumberOfIDTables + ColorCalcStateSize
	// DshSize is the size of the queue's dynamic state heap
	DshSize                    = 1 << 20

	// SchedulerIDIndex is the descriptor the scheduler kernel itself is loaded into
	SchedulerIDIndex = InterfaceDescriptorEntries - 1
	// IDTStart is the byte offset of the scheduler descriptor
	IDTStart         = ColorCalcStateSize + commands.InterfaceDescriptorDataSize*SchedulerIDIndex

	stackEntriesPerEnqueue = 3
	threadsPerEU           = 7
)

const liveQueueMagic uint32 = 0xd0e0c0de

// DeviceQueue is a queue that kernels running on the GPU enqueue child kernels into. The host builds
// the scheduler's second-level batch and control block; the scheduler kernel consumes them.
type DeviceQueue struct {
	magic   uint32
	id      uuid.UUID
	context *Context
	device  *Device
	encoder encode.Encoder
	logger  *slog.Logger

	properties       Properties
	profilingEnabled bool

	queueBuffer        *memory.GraphicsAllocation
	eventPoolBuffer    *memory.GraphicsAllocation
	slbBuffer          *memory.GraphicsAllocation
	stackBuffer        *memory.GraphicsAllocation
	queueStorageBuffer *memory.GraphicsAllocation
	dshBuffer          *memory.GraphicsAllocation

	slbCS *stream.LinearStream
	dsh   *stream.IndirectHeap
}

// Create validates props and creates a device queue in ctx. On success the queue is registered with
// the context and the first queue of a context becomes its default queue.
func Create(ctx *Context, device *Device, props Properties) (*DeviceQueue, Status) {
	if ctx == nil {
		return nil, StatusInvalidContext
	}
	if device == nil {
		return nil, StatusInvalidDevice
	}
	if !device.hwInfo.Features.SupportsDeviceEnqueue {
		return nil, StatusInvalidOperation
	}

	status := props.validate(&device.caps)
	if status != StatusSuccess {
		return nil, status
	}
	if props.QueueSize == 0 {
		props.QueueSize = device.caps.QueueOnDevicePreferredSize
	}

	queue := &DeviceQueue{
		id:               uuid.New(),
		context:          ctx,
		device:           device,
		encoder:          device.encoder,
		logger:           device.logger,
		properties:       props,
		profilingEnabled: props.Flags&QueueProfiling != 0,
	}

	err := queue.allocateResources()
	if err != nil {
		queue.logger.LogAttrs(context.Background(), slog.LevelError, "failed to allocate device queue resources",
			slog.String("queue", queue.id.String()),
			slog.Any("error", err),
		)
		queue.freeResources()
		return nil, StatusOutOfResources
	}

	status = ctx.register(queue)
	if status != StatusSuccess {
		queue.freeResources()
		return nil, status
	}

	queue.magic = liveQueueMagic
	queue.initControlBlock()
	queue.Reset()

	return queue, StatusSuccess
}

func (q *DeviceQueue) allocate(size int, name string) (*memory.GraphicsAllocation, error) {
	properties := memory.NewAllocationProperties(0, size, memory.AllocationTypeDeviceQueueBuffer, 0)
	properties.Name = name
	return q.device.memoryManager.Allocate(properties)
}

func (q *DeviceQueue) allocateResources() error {
	var err error
	caps := &q.device.caps

	q.queueBuffer, err = q.allocate(int(q.properties.QueueSize), "queue")
	if err != nil {
		return err
	}

	eventPoolSize := memutils.AlignToPage(IGILEventPoolSize + int(caps.MaxOnDeviceEvents)*IGILDeviceEventSize)
	q.eventPoolBuffer, err = q.allocate(eventPoolSize, "event pool")
	if err != nil {
		return err
	}

	q.slbBuffer, err = q.allocate(q.SlbBufferSize(), "second level batch")
	if err != nil {
		return err
	}
	q.slbCS = stream.FromAllocation(q.slbBuffer)

	q.stackBuffer, err = q.allocate(memutils.AlignToPage(NumberOfDeviceEnqueues*stackEntriesPerEnqueue*commands.DwordSize), "stack")
	if err != nil {
		return err
	}

	q.queueStorageBuffer, err = q.allocate(int(q.properties.QueueSize)*2, "queue storage")
	if err != nil {
		return err
	}

	q.dshBuffer, err = q.allocate(DshSize, "dynamic state heap")
	if err != nil {
		return err
	}
	q.dsh = stream.NewIndirectHeapFromAllocation(stream.HeapTypeDynamicState, q.dshBuffer)

	return nil
}

func (q *DeviceQueue) freeResources() error {
	var err error
	for _, alloc := range []**memory.GraphicsAllocation{
		&q.queueBuffer, &q.eventPoolBuffer, &q.slbBuffer, &q.stackBuffer, &q.queueStorageBuffer, &q.dshBuffer,
	} {
		if *alloc == nil {
			continue
		}
		freeErr := q.device.memoryManager.Free(*alloc)
		if freeErr != nil && err == nil {
			err = freeErr
		}
		*alloc = nil
	}
	return err
}

// Destroy unregisters the queue from its context and frees its buffers. The queue must not be used afterward.
func (q *DeviceQueue) Destroy() error {
	if q.magic != liveQueueMagic {
		return errors.New("attempted to destroy a device queue that is not live")
	}

	q.context.unregister(q)
	q.magic = 0
	return errors.Wrap(q.freeResources(), "failed to free device queue buffers")
}

func (q *DeviceQueue) ID() uuid.UUID               { return q.id }
func (q *DeviceQueue) Context() *Context           { return q.context }
func (q *DeviceQueue) Device() *Device             { return q.device }
func (q *DeviceQueue) Properties() Properties      { return q.properties }
func (q *DeviceQueue) IsProfilingEnabled() bool    { return q.profilingEnabled }
func (q *DeviceQueue) SlbCS() *stream.LinearStream { return q.slbCS }
func (q *DeviceQueue) DSH() *stream.IndirectHeap   { return q.dsh }

func (q *DeviceQueue) QueueBuffer() *memory.GraphicsAllocation        { return q.queueBuffer }
func (q *DeviceQueue) EventPoolBuffer() *memory.GraphicsAllocation    { return q.eventPoolBuffer }
func (q *DeviceQueue) SlbBuffer() *memory.GraphicsAllocation          { return q.slbBuffer }
func (q *DeviceQueue) StackBuffer() *memory.GraphicsAllocation        { return q.stackBuffer }
func (q *DeviceQueue) QueueStorageBuffer() *memory.GraphicsAllocation { return q.queueStorageBuffer }
func (q *DeviceQueue) DshBuffer() *memory.GraphicsAllocation          { return q.dshBuffer }

// ControlBlock decodes the queue control block as it currently sits in the queue buffer
func (q *DeviceQueue) ControlBlock() IGILCommandQueue {
	var block IGILCommandQueue
	err := block.Decode(q.queueBuffer.Cpu())
	if err != nil {
		panic(errors.Wrap(err, "queue buffer is smaller than its control block"))
	}
	return block
}

// UpdateControlBlock applies modify to the control block and writes it back to the queue buffer
func (q *DeviceQueue) UpdateControlBlock(modify func(block *IGILCommandQueue)) {
	block := q.ControlBlock()
	modify(&block)
	block.Encode(q.queueBuffer.Cpu())
}

func (q *DeviceQueue) initControlBlock() {
	q.UpdateControlBlock(func(block *IGILCommandQueue) {
		block.Controls.SLBENDoffsetInBytes = -1
	})
}

// Reset returns the queue to the state the scheduler expects before the first parent kernel: a fresh
// control block and event pool, the slots the scheduler used rebuilt, and an empty dynamic state heap.
func (q *DeviceQueue) Reset() {
	caps := &q.device.caps

	eventPool := q.eventPoolBuffer.Cpu()
	clear(eventPool)
	pool := IGILEventPool{
		TimestampResolution: float32(caps.ProfilingTimerResolution),
		Size:                caps.MaxOnDeviceEvents,
	}
	pool.Encode(eventPool)

	stackWords := uint32(q.stackBuffer.Size() / commands.DwordSize)
	stackSize := stackWords - 1
	storageSize := uint32(q.queueStorageBuffer.Size())

	var profiling uint32
	if q.profilingEnabled {
		profiling = 1
	}

	q.UpdateControlBlock(func(block *IGILCommandQueue) {
		controls := &block.Controls
		controls.StackSize = stackSize
		controls.StackTop = stackSize
		controls.PreviousStackTop = stackSize
		controls.PreviousHead = QueueHeadInit
		controls.IDTAfterFirstPhase = 1
		controls.CurrentIDToffset = 1
		controls.PreviousStorageTop = storageSize
		controls.QstorageSize = storageSize
		controls.QstorageTop = storageSize
		controls.DebugNextBlockID = 0xFFFFFFFF
		controls.DebugNextBlockGWS = 0
		controls.IsProfilingEnabled = profiling
		controls.IsSimulation = 0
		controls.LastScheduleEventNumber = 0
		controls.CurrentScheduleEventNumber = 0
		controls.PreviousNumberOfQueues = 0
		controls.TotalNumberOfQueues = 0
		controls.EnqueueMarkerScheduled = 0
		controls.SecondLevelBatchOffset = 0
		controls.EventTimestampAddress = 0
		controls.ErrorCode = 0
		controls.DummyAtomicOperationPlaceholder = 0
		controls.SchedulerEarlyReturn = uint32(q.device.flags.SchedulerSimulationReturnInstance)
		controls.SchedulerEarlyReturnCounter = 0

		block.Head = QueueHeadInit
		block.Size = uint32(q.queueBuffer.Size() - IGILCommandQueueSize)
		block.Magic = QueueMagicNumber
	})

	stack := q.stackBuffer.Cpu()
	clear(stack)
	binary.LittleEndian.PutUint32(stack[stackSize*commands.DwordSize:], 1)

	q.BuildSlbDummyCommands()

	q.UpdateControlBlock(func(block *IGILCommandQueue) {
		block.Controls.SLBENDoffsetInBytes = -1
		block.Controls.CriticalSection = CriticalSectionFree
	})
	q.resetDSH()

	if q.device.flags.PrintDeviceQueueResets {
		q.logger.LogAttrs(context.Background(), slog.LevelInfo, "reset device queue",
			slog.String("queue", q.id.String()),
			slog.Int("slbUsed", q.slbCS.Used()),
			slog.Bool("profiling", q.profilingEnabled),
		)
	}
}

func (q *DeviceQueue) resetDSH() {
	q.dsh.Reset()
	q.dsh.GetSpace(ColorCalcStateSize)
}

func (q *DeviceQueue) criticalSection() *uint32 {
	return (*uint32)(unsafe.Pointer(&q.queueBuffer.Cpu()[criticalSectionOffset]))
}

// AcquireEMCriticalSection takes the execution model critical section shared with the scheduler. It
// reports whether the section was free. With null hardware nothing will ever release it, so it is
// left untouched.
func (q *DeviceQueue) AcquireEMCriticalSection() bool {
	if q.device.flags.EnableNullHardware {
		return false
	}
	return atomic.CompareAndSwapUint32(q.criticalSection(), CriticalSectionFree, CriticalSectionTaken)
}

func (q *DeviceQueue) IsEMCriticalSectionFree() bool {
	return atomic.LoadUint32(q.criticalSection()) == CriticalSectionFree
}

// QueueInfo selects the value returned by GetCommandQueueInfo
type QueueInfo uint32

const (
	QueueInfoContext       QueueInfo = 0x1090
	QueueInfoDevice        QueueInfo = 0x1091
	QueueInfoProperties    QueueInfo = 0x1093
	QueueInfoSize          QueueInfo = 0x1094
	QueueInfoDeviceDefault QueueInfo = 0x1095
)

// GetCommandQueueInfo writes the value selected by param through out, which must be a pointer of the
// matching type: **Context, **Device, *QueueFlags, *uint32 or **DeviceQueue. out is left untouched
// when the status is not StatusSuccess.
func (q *DeviceQueue) GetCommandQueueInfo(param QueueInfo, out any) Status {
	var ok bool

	switch param {
	case QueueInfoContext:
		var dst **Context
		if dst, ok = out.(**Context); ok {
			*dst = q.context
		}
	case QueueInfoDevice:
		var dst **Device
		if dst, ok = out.(**Device); ok {
			*dst = q.device
		}
	case QueueInfoProperties:
		var dst *QueueFlags
		if dst, ok = out.(*QueueFlags); ok {
			*dst = q.properties.Flags
		}
	case QueueInfoSize:
		var dst *uint32
		if dst, ok = out.(*uint32); ok {
			*dst = q.properties.QueueSize
		}
	case QueueInfoDeviceDefault:
		var dst **DeviceQueue
		if dst, ok = out.(**DeviceQueue); ok {
			*dst = q.context.DefaultDeviceQueue()
		}
	}

	if !ok {
		return StatusInvalidValue
	}
	return StatusSuccess
}
