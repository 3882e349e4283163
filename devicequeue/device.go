package devicequeue

import (
	"sync"

	"github.com/dolthub/swiss"
	"github.com/google/uuid"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/encode"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/memory"
	"golang.org/x/exp/slog"
)

// DeviceCaps are the device-enqueue limits reported for a device
type DeviceCaps struct {
	QueueOnDevicePreferredSize uint32
	QueueOnDeviceMaxSize       uint32
	MaxOnDeviceQueues          uint32
	MaxOnDeviceEvents          uint32
	ProfilingTimerResolution   float64
}

func DefaultDeviceCaps(hwInfo *hw.HardwareInfo) DeviceCaps {
	return DeviceCaps{
		QueueOnDevicePreferredSize: 128 * 1024,
		QueueOnDeviceMaxSize:       8 * 1024 * 1024,
		MaxOnDeviceQueues:          1,
		MaxOnDeviceEvents:          1024,
		ProfilingTimerResolution:   hwInfo.ProfilingTimerResolution,
	}
}

// Device is the hardware a device queue is created on and the services used to build it
type Device struct {
	hwInfo        hw.HardwareInfo
	caps          DeviceCaps
	flags         config.Flags
	encoder       encode.Encoder
	memoryManager *memory.MemoryManager
	logger        *slog.Logger
}

func NewDevice(hwInfo hw.HardwareInfo, flags config.Flags, memoryManager *memory.MemoryManager, logger *slog.Logger) (*Device, error) {
	encoder, err := encode.New(hwInfo, flags)
	if err != nil {
		return nil, err
	}

	return &Device{
		hwInfo:        hwInfo,
		caps:          DefaultDeviceCaps(&hwInfo),
		flags:         flags,
		encoder:       encoder,
		memoryManager: memoryManager,
		logger:        config.DiscardLogger(logger),
	}, nil
}

func (d *Device) HardwareInfo() *hw.HardwareInfo       { return &d.hwInfo }
func (d *Device) Caps() DeviceCaps                     { return d.caps }
func (d *Device) Flags() config.Flags                  { return d.flags }
func (d *Device) Encoder() encode.Encoder              { return d.encoder }
func (d *Device) MemoryManager() *memory.MemoryManager { return d.memoryManager }

// Context groups the device queues created on a device
type Context struct {
	id     uuid.UUID
	device *Device

	lock         sync.Mutex
	queues       *swiss.Map[uuid.UUID, *DeviceQueue]
	defaultQueue *DeviceQueue
}

func NewContext(device *Device) *Context {
	return &Context{
		id:     uuid.New(),
		device: device,
		queues: swiss.NewMap[uuid.UUID, *DeviceQueue](1),
	}
}

func (c *Context) ID() uuid.UUID   { return c.id }
func (c *Context) Device() *Device { return c.device }

// DefaultDeviceQueue returns the queue kernels enqueue into when they do not name one
func (c *Context) DefaultDeviceQueue() *DeviceQueue {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.defaultQueue
}

// Lookup finds a live device queue created in this context
func (c *Context) Lookup(id uuid.UUID) (*DeviceQueue, bool) {
	c.lock.Lock()
	defer c.lock.Unlock()

	return c.queues.Get(id)
}

func (c *Context) register(queue *DeviceQueue) Status {
	c.lock.Lock()
	defer c.lock.Unlock()

	if uint32(c.queues.Count()) >= c.device.caps.MaxOnDeviceQueues {
		return StatusOutOfResources
	}

	c.queues.Put(queue.id, queue)
	if c.defaultQueue == nil {
		c.defaultQueue = queue
	}
	return StatusSuccess
}

func (c *Context) unregister(queue *DeviceQueue) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.queues.Delete(queue.id)
	if c.defaultQueue == queue {
		c.defaultQueue = nil
	}
}

// QueueFlags are the properties a device queue is created with
type QueueFlags uint64

const (
	QueueOutOfOrderExecMode QueueFlags = 1 << iota
	QueueProfiling
	QueueOnDevice
	QueueOnDeviceDefault
)

const supportedQueueFlags = QueueOutOfOrderExecMode | QueueProfiling | QueueOnDevice | QueueOnDeviceDefault

var queueFlagsMapping = map[QueueFlags]string{
	QueueOutOfOrderExecMode: "OutOfOrderExecMode",
	QueueProfiling:          "Profiling",
	QueueOnDevice:           "OnDevice",
	QueueOnDeviceDefault:    "OnDeviceDefault",
}

func (f QueueFlags) String() string {
	var out string
	for bit := QueueOutOfOrderExecMode; bit <= QueueOnDeviceDefault; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += queueFlagsMapping[bit]
	}
	return out
}

// Properties describes a requested device queue. A zero QueueSize selects the preferred size.
type Properties struct {
	Flags     QueueFlags
	QueueSize uint32
}

func (p *Properties) validate(caps *DeviceCaps) Status {
	if p.Flags&^supportedQueueFlags != 0 {
		return StatusInvalidValue
	}
	if p.Flags&QueueOnDevice == 0 || p.Flags&QueueOutOfOrderExecMode == 0 {
		return StatusInvalidQueueProperties
	}
	if p.QueueSize > caps.QueueOnDeviceMaxSize {
		return StatusInvalidQueueProperties
	}
	return StatusSuccess
}
