package devicequeue_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/devicequeue"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/memory"
)

func TestCreateValidation(t *testing.T) {
	device := newDevice(t, hw.ProductSKL, config.Default(), nil)
	ctx := devicequeue.NewContext(device)

	testCases := []struct {
		name   string
		ctx    *devicequeue.Context
		device *devicequeue.Device
		props  devicequeue.Properties
		status devicequeue.Status
	}{
		{name: "NilContext", device: device, props: devicequeue.Properties{Flags: minimumFlags}, status: devicequeue.StatusInvalidContext},
		{name: "NilDevice", ctx: ctx, props: devicequeue.Properties{Flags: minimumFlags}, status: devicequeue.StatusInvalidDevice},
		{name: "UnknownFlags", ctx: ctx, device: device, props: devicequeue.Properties{Flags: minimumFlags | 1<<10}, status: devicequeue.StatusInvalidValue},
		{name: "HostQueue", ctx: ctx, device: device, props: devicequeue.Properties{Flags: devicequeue.QueueOutOfOrderExecMode}, status: devicequeue.StatusInvalidQueueProperties},
		{name: "InOrder", ctx: ctx, device: device, props: devicequeue.Properties{Flags: devicequeue.QueueOnDevice}, status: devicequeue.StatusInvalidQueueProperties},
		{
			name:   "Oversized",
			ctx:    ctx,
			device: device,
			props:  devicequeue.Properties{Flags: minimumFlags, QueueSize: device.Caps().QueueOnDeviceMaxSize + 1},
			status: devicequeue.StatusInvalidQueueProperties,
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			queue, status := devicequeue.Create(testCase.ctx, testCase.device, testCase.props)
			require.Equal(t, testCase.status, status)
			require.Nil(t, queue)
		})
	}

	require.Nil(t, ctx.DefaultDeviceQueue())
	require.Zero(t, device.MemoryManager().AllocationCount())
}

func TestCreateOnUnsupportedDevice(t *testing.T) {
	device := newDevice(t, hw.ProductTGLLP, config.Default(), nil)

	queue, status := devicequeue.Create(devicequeue.NewContext(device), device, devicequeue.Properties{Flags: minimumFlags})
	require.Equal(t, devicequeue.StatusInvalidOperation, status)
	require.Nil(t, queue)
}

func TestCreateUsesPreferredSize(t *testing.T) {
	device := newDevice(t, hw.ProductSKL, config.Default(), nil)
	queue := newQueue(t, device, minimumFlags)

	require.Equal(t, device.Caps().QueueOnDevicePreferredSize, queue.Properties().QueueSize)
	require.Equal(t, int(device.Caps().QueueOnDevicePreferredSize), queue.QueueBuffer().Size())
	require.Equal(t, 2*queue.QueueBuffer().Size(), queue.QueueStorageBuffer().Size())
	require.Equal(t, devicequeue.DshSize, queue.DshBuffer().Size())
	require.Equal(t, memory.AllocationTypeDeviceQueueBuffer, queue.SlbBuffer().Type())
}

func TestCreateOutOfMemory(t *testing.T) {
	hwInfo, _ := hw.DefaultHardwareInfo(hw.ProductSKL)
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{
		Flags:              config.Default(),
		SystemMemoryBudget: 64 * 1024,
	})
	device, err := devicequeue.NewDevice(hwInfo, config.Default(), manager, nil)
	require.NoError(t, err)

	ctx := devicequeue.NewContext(device)
	queue, status := devicequeue.Create(ctx, device, devicequeue.Properties{Flags: minimumFlags})
	require.Equal(t, devicequeue.StatusOutOfResources, status)
	require.Nil(t, queue)
	require.Zero(t, manager.AllocationCount())
	require.Nil(t, ctx.DefaultDeviceQueue())
}

func TestContextQueueLimit(t *testing.T) {
	device := newDevice(t, hw.ProductSKL, config.Default(), nil)
	ctx := devicequeue.NewContext(device)

	first, status := devicequeue.Create(ctx, device, devicequeue.Properties{Flags: allFlags})
	require.Equal(t, devicequeue.StatusSuccess, status)
	require.Same(t, first, ctx.DefaultDeviceQueue())

	found, ok := ctx.Lookup(first.ID())
	require.True(t, ok)
	require.Same(t, first, found)

	allocations := device.MemoryManager().AllocationCount()
	second, status := devicequeue.Create(ctx, device, devicequeue.Properties{Flags: minimumFlags})
	require.Equal(t, devicequeue.StatusOutOfResources, status)
	require.Nil(t, second)
	require.Equal(t, allocations, device.MemoryManager().AllocationCount())

	require.NoError(t, first.Destroy())
	require.Nil(t, ctx.DefaultDeviceQueue())
	_, ok = ctx.Lookup(first.ID())
	require.False(t, ok)
	require.Zero(t, device.MemoryManager().AllocationCount())
	require.Error(t, first.Destroy())

	second, status = devicequeue.Create(ctx, device, devicequeue.Properties{Flags: minimumFlags})
	require.Equal(t, devicequeue.StatusSuccess, status)
	require.Same(t, second, ctx.DefaultDeviceQueue())
	require.NoError(t, second.Destroy())
}

func TestQueueFlagsString(t *testing.T) {
	require.Equal(t, "OutOfOrderExecMode|OnDevice", minimumFlags.String())
	require.Equal(t, "OutOfOrderExecMode|Profiling|OnDevice|OnDeviceDefault", allFlags.String())
	require.Equal(t, "", devicequeue.QueueFlags(0).String())
}

func TestGetCommandQueueInfo(t *testing.T) {
	device := newDevice(t, hw.ProductSKL, config.Default(), nil)
	queue := newQueue(t, device, allFlags)

	var ctx *devicequeue.Context
	require.Equal(t, devicequeue.StatusSuccess, queue.GetCommandQueueInfo(devicequeue.QueueInfoContext, &ctx))
	require.Same(t, queue.Context(), ctx)

	var dev *devicequeue.Device
	require.Equal(t, devicequeue.StatusSuccess, queue.GetCommandQueueInfo(devicequeue.QueueInfoDevice, &dev))
	require.Same(t, device, dev)

	var flags devicequeue.QueueFlags
	require.Equal(t, devicequeue.StatusSuccess, queue.GetCommandQueueInfo(devicequeue.QueueInfoProperties, &flags))
	require.Equal(t, allFlags, flags)

	var size uint32
	require.Equal(t, devicequeue.StatusSuccess, queue.GetCommandQueueInfo(devicequeue.QueueInfoSize, &size))
	require.Equal(t, device.Caps().QueueOnDevicePreferredSize, size)

	var defaultQueue *devicequeue.DeviceQueue
	require.Equal(t, devicequeue.StatusSuccess, queue.GetCommandQueueInfo(devicequeue.QueueInfoDeviceDefault, &defaultQueue))
	require.Same(t, queue, defaultQueue)
}

func TestGetCommandQueueInfoInvalid(t *testing.T) {
	queue := newQueue(t, newDevice(t, hw.ProductSKL, config.Default(), nil), minimumFlags)

	out := uint32(0xdeadbeef)
	require.Equal(t, devicequeue.StatusInvalidValue, queue.GetCommandQueueInfo(0, &out))
	require.Equal(t, uint32(0xdeadbeef), out)

	require.Equal(t, devicequeue.StatusInvalidValue, queue.GetCommandQueueInfo(devicequeue.QueueInfoContext, &out))
	require.Equal(t, uint32(0xdeadbeef), out)

	require.Equal(t, devicequeue.StatusInvalidValue, queue.GetCommandQueueInfo(devicequeue.QueueInfoSize, nil))
}

func newKernelWithQueueArg(pointerSize uint32) *devicequeue.Kernel {
	return &devicequeue.Kernel{
		Name: "parent",
		Args: []devicequeue.ArgDescriptor{
			{Kind: devicequeue.ArgKindValue, CrossThreadOffset: 0},
			{Kind: devicequeue.ArgKindDeviceQueue, CrossThreadOffset: 4, PointerSize: pointerSize},
		},
		CrossThreadData: bytes.Repeat([]byte{0x7e}, 16),
	}
}

func TestSetArgDevQueue(t *testing.T) {
	queue := newQueue(t, newDevice(t, hw.ProductSKL, config.Default(), nil), minimumFlags)
	address := queue.QueueBuffer().GpuAddressToPatch()

	kernel := newKernelWithQueueArg(4)
	require.Equal(t, devicequeue.StatusSuccess, kernel.SetArgDevQueue(1, 8, queue))

	expected := bytes.Repeat([]byte{0x7e}, 16)
	expected[4] = byte(address)
	expected[5] = byte(address >> 8)
	expected[6] = byte(address >> 16)
	expected[7] = byte(address >> 24)
	require.Equal(t, expected, kernel.CrossThreadData)

	kernel = newKernelWithQueueArg(8)
	require.Equal(t, devicequeue.StatusSuccess, kernel.SetArgDevQueue(1, 8, queue))
	for i := 0; i < 8; i++ {
		expected[4+i] = byte(address >> (8 * i))
	}
	require.Equal(t, expected[:12], kernel.CrossThreadData[:12])
}

func TestSetArgDevQueueErrors(t *testing.T) {
	device := newDevice(t, hw.ProductSKL, config.Default(), nil)
	queue := newQueue(t, device, minimumFlags)

	destroyed, status := devicequeue.Create(devicequeue.NewContext(device), device, devicequeue.Properties{Flags: minimumFlags})
	require.Equal(t, devicequeue.StatusSuccess, status)
	require.NoError(t, destroyed.Destroy())

	var nilQueue *devicequeue.DeviceQueue
	notAQueue := devicequeue.NewContext(device)

	testCases := []struct {
		name   string
		index  uint32
		size   int
		value  any
		status devicequeue.Status
	}{
		{name: "IndexOutOfRange", index: 2, size: 8, value: queue, status: devicequeue.StatusInvalidArgIndex},
		{name: "NotAQueueArgument", index: 0, size: 8, value: queue, status: devicequeue.StatusInvalidArgValue},
		{name: "NilValue", index: 1, size: 8, value: nil, status: devicequeue.StatusInvalidArgValue},
		{name: "WrongSize", index: 1, size: 7, value: queue, status: devicequeue.StatusInvalidArgSize},
		{name: "NotAQueue", index: 1, size: 8, value: notAQueue, status: devicequeue.StatusInvalidDeviceQueue},
		{name: "FakeQueue", index: 1, size: 8, value: &devicequeue.DeviceQueue{}, status: devicequeue.StatusInvalidDeviceQueue},
		{name: "TypedNil", index: 1, size: 8, value: nilQueue, status: devicequeue.StatusInvalidArgValue},
		{name: "Destroyed", index: 1, size: 8, value: destroyed, status: devicequeue.StatusInvalidDeviceQueue},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			kernel := newKernelWithQueueArg(4)
			require.Equal(t, testCase.status, kernel.SetArgDevQueue(testCase.index, testCase.size, testCase.value))
			require.Equal(t, bytes.Repeat([]byte{0x7e}, 16), kernel.CrossThreadData)
		})
	}
}

func TestSetArgDevQueueOutsideCrossThreadData(t *testing.T) {
	queue := newQueue(t, newDevice(t, hw.ProductSKL, config.Default(), nil), minimumFlags)

	testCases := []struct {
		name        string
		pointerSize uint32
		offset      uint32
	}{
		{name: "Pointer32", pointerSize: 4, offset: 13},
		{name: "Pointer64", pointerSize: 8, offset: 9},
		{name: "PastEnd", pointerSize: 8, offset: 64},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			kernel := newKernelWithQueueArg(testCase.pointerSize)
			kernel.Args[1].CrossThreadOffset = testCase.offset
			require.Equal(t, devicequeue.StatusInvalidArgValue, kernel.SetArgDevQueue(1, 8, queue))
			require.Equal(t, bytes.Repeat([]byte{0x7e}, 16), kernel.CrossThreadData)
		})
	}

	kernel := newKernelWithQueueArg(8)
	kernel.Args[1].CrossThreadOffset = 8
	require.Equal(t, devicequeue.StatusSuccess, kernel.SetArgDevQueue(1, 8, queue))
}

func TestStatusString(t *testing.T) {
	require.Equal(t, "InvalidDeviceQueue", devicequeue.StatusInvalidDeviceQueue.String())
	require.Equal(t, "Success", devicequeue.StatusSuccess.String())
}
