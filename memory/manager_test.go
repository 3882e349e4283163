package memory_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/memory"
	"github.com/vkngwrapper/gfxcore/memutils"
)

func TestAllocationPropertiesDefaults(t *testing.T) {
	props := memory.NewAllocationProperties(0, 100, memory.AllocationTypeCommandBuffer, hw.NewDeviceBitfield(1))
	require.Equal(t, memory.AllocationFlagAllocateMemory|
		memory.AllocationFlagFlushL3RequiredForRead|
		memory.AllocationFlagFlushL3RequiredForWrite, props.Flags)
	require.Equal(t, "AllocateMemory|FlushL3RequiredForRead|FlushL3RequiredForWrite", props.Flags.String())

	props = props.WithMultiOsContext(true)
	require.NotZero(t, props.Flags&memory.AllocationFlagMultiOsContextCapable)
}

func TestAllocateIsPageAligned(t *testing.T) {
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{})

	alloc, err := manager.Allocate(memory.NewAllocationProperties(0, 100, memory.AllocationTypeLinearStream, 1))
	require.NoError(t, err)
	require.Equal(t, memutils.PageSize, alloc.Size())
	require.Len(t, alloc.Cpu(), memutils.PageSize)
	require.True(t, memutils.IsAligned(alloc.GpuAddress(), memutils.PageSize))
	require.Equal(t, memory.MemoryBankSystem, alloc.MemoryBank())
	require.Equal(t, memory.TrimListUnusedPosition, alloc.ResidencyData(0).TrimCandidateListPosition)

	found, ok := manager.Lookup(alloc.Handle())
	require.True(t, ok)
	require.Same(t, alloc, found)

	require.NoError(t, manager.Free(alloc))
	require.Equal(t, 0, manager.AllocationCount())
	require.NoError(t, manager.Destroy())
}

func TestAllocateRejectsBadRequests(t *testing.T) {
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{})

	_, err := manager.Allocate(memory.NewAllocationProperties(0, 0, memory.AllocationTypeBuffer, 1))
	require.Error(t, err)

	props := memory.NewAllocationProperties(0, 4096, memory.AllocationTypeBuffer, 1)
	props.Alignment = 3000
	_, err = manager.Allocate(props)
	require.ErrorIs(t, err, memutils.PowerOfTwoError)
}

func TestAllocateReusesFreedAddresses(t *testing.T) {
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{SynchronizedAccess: true})

	first, err := manager.Allocate(memory.NewAllocationProperties(0, 8192, memory.AllocationTypeBuffer, 1))
	require.NoError(t, err)
	second, err := manager.Allocate(memory.NewAllocationProperties(0, 4096, memory.AllocationTypeBuffer, 1))
	require.NoError(t, err)
	require.Equal(t, first.GpuAddress()+8192, second.GpuAddress())

	firstAddress := first.GpuAddress()
	require.NoError(t, manager.Free(first))

	third, err := manager.Allocate(memory.NewAllocationProperties(0, 4096, memory.AllocationTypeBuffer, 1))
	require.NoError(t, err)
	require.Equal(t, firstAddress, third.GpuAddress())

	require.NoError(t, manager.Free(second))
	require.NoError(t, manager.Free(third))
}

func TestFreeForeignAllocation(t *testing.T) {
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{})
	foreign := memory.NewGraphicsAllocation(memory.AllocationTypeBuffer, make([]byte, 64), 0x1000)
	require.Error(t, manager.Free(foreign))
	require.NoError(t, manager.Free(nil))
}

func TestBudget(t *testing.T) {
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{
		LocalMemory:       true,
		LocalMemoryBudget: 3 * memutils.PageSize,
	})

	local, err := manager.Allocate(memory.NewAllocationProperties(0, 2*memutils.PageSize, memory.AllocationTypeBuffer, 1))
	require.NoError(t, err)
	require.Equal(t, memory.MemoryBankLocal, local.MemoryBank())

	_, err = manager.Allocate(memory.NewAllocationProperties(0, 2*memutils.PageSize, memory.AllocationTypeBuffer, 1))
	require.ErrorIs(t, err, memutils.OutOfSpaceError)

	host, err := manager.Allocate(memory.NewAllocationProperties(0, 2*memutils.PageSize, memory.AllocationTypeBufferHostMemory, 1))
	require.NoError(t, err)
	require.Equal(t, memory.MemoryBankSystem, host.MemoryBank())

	count, bytes := manager.Usage(memory.MemoryBankLocal)
	require.Equal(t, 1, count)
	require.Equal(t, 2*memutils.PageSize, bytes)

	require.NoError(t, manager.Free(local))
	require.NoError(t, manager.Free(host))
	count, bytes = manager.Usage(memory.MemoryBankLocal)
	require.Equal(t, 0, count)
	require.Equal(t, 0, bytes)
}

func TestDestroyReportsLeaks(t *testing.T) {
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{})
	_, err := manager.Allocate(memory.NewAllocationProperties(0, 1, memory.AllocationTypeTagBuffer, 1))
	require.NoError(t, err)
	require.Error(t, manager.Destroy())
}

func TestBuildStatsString(t *testing.T) {
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{})
	props := memory.NewAllocationProperties(0, 100, memory.AllocationTypeKernelIsa, 1)
	props.Name = "kernel"
	alloc, err := manager.Allocate(props)
	require.NoError(t, err)
	alloc.ResidencyData(2).Resident = true

	var stats struct {
		Total struct {
			AllocationCount int
			AllocationBytes int
			ResidentCount   int
		}
		MemoryBanks map[string]struct {
			AllocationCount int
		}
		Allocations []struct {
			Type string
			Size int
			Name string
		}
	}
	require.NoError(t, json.Unmarshal([]byte(manager.BuildStatsString(true)), &stats))
	require.Equal(t, 1, stats.Total.AllocationCount)
	require.Equal(t, memutils.PageSize, stats.Total.AllocationBytes)
	require.Equal(t, 1, stats.Total.ResidentCount)
	require.Equal(t, 1, stats.MemoryBanks["System"].AllocationCount)
	require.Len(t, stats.Allocations, 1)
	require.Equal(t, "KERNEL_ISA", stats.Allocations[0].Type)
	require.Equal(t, "kernel", stats.Allocations[0].Name)
}

type recordingTracker struct {
	osContextID uint32
	released    []uint32
}

func (r *recordingTracker) OsContextID() uint32 {
	return r.osContextID
}

func (r *recordingTracker) ReleaseAllocation(alloc *memory.GraphicsAllocation) {
	r.released = append(r.released, alloc.Handle())
}

func TestFreeReleasesFromResidencyTrackers(t *testing.T) {
	manager := memory.NewMemoryManager(nil, memory.CreateOptions{})
	first := &recordingTracker{osContextID: 0}
	second := &recordingTracker{osContextID: 1}
	replacement := &recordingTracker{osContextID: 1}
	manager.RegisterResidencyTracker(first)
	manager.RegisterResidencyTracker(second)
	manager.RegisterResidencyTracker(replacement)

	alloc, err := manager.Allocate(memory.NewAllocationProperties(0, 4096, memory.AllocationTypeBuffer, 1))
	require.NoError(t, err)
	handle := alloc.Handle()
	alloc.ResidencyData(1).TrimCandidateListPosition = 4

	require.NoError(t, manager.Free(alloc))
	require.Equal(t, []uint32{handle}, first.released)
	require.Empty(t, second.released)
	require.Equal(t, []uint32{handle}, replacement.released)
	for osContextID := uint32(0); osContextID < memory.MaxOsContexts; osContextID++ {
		require.Equal(t, memory.TrimListUnusedPosition, alloc.ResidencyData(osContextID).TrimCandidateListPosition)
	}

	manager.UnregisterResidencyTracker(first)
	alloc, err = manager.Allocate(memory.NewAllocationProperties(0, 4096, memory.AllocationTypeBuffer, 1))
	require.NoError(t, err)
	require.NoError(t, manager.Free(alloc))
	require.Len(t, first.released, 1)
	require.Len(t, replacement.released, 2)
}
