package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dolthub/swiss"
	"github.com/launchdarkly/go-jsonstream/v3/jwriter"
	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/internal/utils"
	"github.com/vkngwrapper/gfxcore/memutils"
	"golang.org/x/exp/slog"
)

const (
	DefaultGpuHeapBase uint64 = 0x1_0000
	DefaultGpuHeapSize uint64 = 1 << 40
)

type CreateOptions struct {
	// LocalMemory places device-side allocation types in local memory
	LocalMemory bool
	// SynchronizedAccess guards the manager with a mutex. Leave it unset when a single goroutine
	// owns the manager.
	SynchronizedAccess bool

	GpuHeapBase uint64
	GpuHeapSize uint64

	// SystemMemoryBudget and LocalMemoryBudget cap live bytes per bank. Zero means unlimited.
	SystemMemoryBudget uint64
	LocalMemoryBudget  uint64

	Flags config.Flags
}

// MemoryManager owns every GraphicsAllocation it creates: it backs them with page-aligned host
// memory, places them in a GPU virtual address heap, and tracks per-bank usage.
type MemoryManager struct {
	logger      *slog.Logger
	flags       config.Flags
	localMemory bool

	mutex       utils.OptionalRWMutex
	allocations *swiss.Map[uint32, *GraphicsAllocation]
	nextHandle  uint32
	heap        virtualHeap
	budget      budget

	allocationPool sync.Pool

	residencyTrackers []ResidencyTracker
}

// ResidencyTracker holds per-OS-context residency state for allocations. Every registered tracker
// releases an allocation before the manager frees it.
type ResidencyTracker interface {
	OsContextID() uint32
	ReleaseAllocation(alloc *GraphicsAllocation)
}

func NewMemoryManager(logger *slog.Logger, options CreateOptions) *MemoryManager {
	if options.GpuHeapSize == 0 {
		options.GpuHeapBase = DefaultGpuHeapBase
		options.GpuHeapSize = DefaultGpuHeapSize
	}

	manager := &MemoryManager{
		logger:      config.DiscardLogger(logger),
		flags:       options.Flags,
		localMemory: options.LocalMemory,
		mutex:       utils.OptionalRWMutex{UseMutex: options.SynchronizedAccess},
		allocations: swiss.NewMap[uint32, *GraphicsAllocation](42),
		nextHandle:  1,
		allocationPool: sync.Pool{
			New: func() any {
				return &GraphicsAllocation{}
			},
		},
	}
	manager.heap.init(options.GpuHeapBase, options.GpuHeapSize)
	manager.budget.limit[MemoryBankSystem] = options.SystemMemoryBudget
	manager.budget.limit[MemoryBankLocal] = options.LocalMemoryBudget

	return manager
}

// RegisterResidencyTracker adds tracker to the set released on Free. A tracker already registered for
// the same OS context is replaced.
func (m *MemoryManager) RegisterResidencyTracker(tracker ResidencyTracker) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, registered := range m.residencyTrackers {
		if registered.OsContextID() == tracker.OsContextID() {
			m.residencyTrackers[i] = tracker
			return
		}
	}
	m.residencyTrackers = append(m.residencyTrackers, tracker)
}

func (m *MemoryManager) UnregisterResidencyTracker(tracker ResidencyTracker) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	for i, registered := range m.residencyTrackers {
		if registered == tracker {
			m.residencyTrackers = append(m.residencyTrackers[:i], m.residencyTrackers[i+1:]...)
			return
		}
	}
}

func (m *MemoryManager) selectMemoryBank(properties *AllocationProperties) MemoryBank {
	if !m.localMemory || properties.Flags&AllocationFlagUSMHostAllocation != 0 {
		return MemoryBankSystem
	}

	if properties.Type == AllocationTypeBufferHostMemory {
		return MemoryBankSystem
	}

	return MemoryBankLocal
}

// Allocate creates an allocation with a page-aligned size. The CPU view is only backed when
// AllocationFlagAllocateMemory is set or the allocation type is always written by the host.
func (m *MemoryManager) Allocate(properties AllocationProperties) (*GraphicsAllocation, error) {
	if properties.Size <= 0 {
		return nil, errors.Newf("attempted to allocate %s with invalid size %d", properties.Type, properties.Size)
	}

	alignment := properties.Alignment
	if alignment == 0 {
		alignment = memutils.PageSize
	}
	err := memutils.CheckPow2(alignment, "alignment")
	if err != nil {
		return nil, err
	}
	alignment = memutils.AlignUp(alignment, memutils.PageSize)

	size := memutils.AlignUp(properties.Size, alignment)
	bank := m.selectMemoryBank(&properties)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	err = m.budget.AddAllocationWithBudget(bank, size)
	if err != nil {
		return nil, err
	}

	var gpuAddress uint64
	if properties.GpuAddress != 0 {
		gpuAddress = properties.GpuAddress
	} else {
		gpuAddress, err = m.heap.allocate(uint64(size), uint64(alignment))
		if err != nil {
			m.budget.RemoveAllocation(bank, size)
			return nil, err
		}
	}

	var cpu []byte
	if properties.Flags&AllocationFlagAllocateMemory != 0 || properties.Type.RequiresCpuAccess() {
		cpu = make([]byte, size)
	}

	alloc := m.allocationPool.Get().(*GraphicsAllocation)
	alloc.init(m.nextHandle, properties.Type, cpu, gpuAddress, size)
	alloc.rootDeviceIndex = properties.RootDeviceIndex
	alloc.flags = properties.Flags
	alloc.subDevices = properties.SubDevices
	alloc.memoryBank = bank
	alloc.name = properties.Name
	alloc.heapAllocated = properties.GpuAddress == 0
	m.nextHandle++

	m.allocations.Put(alloc.handle, alloc)
	memutils.DebugValidate(&m.heap)

	if m.flags.PrintBOCreateDestroyResult {
		m.logger.LogAttrs(context.Background(), slog.LevelInfo, "created allocation",
			slog.Int("handle", int(alloc.handle)),
			slog.String("type", alloc.allocationType.String()),
			slog.Int("size", size),
			slog.String("gpuAddress", fmt.Sprintf("%#x", gpuAddress)),
			slog.String("bank", bank.String()),
		)
	}

	return alloc, nil
}

// Free releases an allocation created by this manager. The allocation must not be used afterward.
func (m *MemoryManager) Free(alloc *GraphicsAllocation) error {
	if alloc == nil {
		return nil
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	registered, ok := m.allocations.Get(alloc.handle)
	if !ok || registered != alloc {
		return errors.Newf("attempted to free allocation %d which is not owned by this memory manager", alloc.handle)
	}

	for _, tracker := range m.residencyTrackers {
		tracker.ReleaseAllocation(alloc)
	}

	m.allocations.Delete(alloc.handle)
	m.budget.RemoveAllocation(alloc.memoryBank, alloc.size)
	if alloc.heapAllocated {
		m.heap.release(alloc.gpuAddress, uint64(alloc.size))
	}
	memutils.DebugValidate(&m.heap)

	if m.flags.PrintBOCreateDestroyResult {
		m.logger.LogAttrs(context.Background(), slog.LevelInfo, "freed allocation",
			slog.Int("handle", int(alloc.handle)),
			slog.String("type", alloc.allocationType.String()),
		)
	}

	alloc.reset()
	m.allocationPool.Put(alloc)
	return nil
}

// Lookup finds a live allocation by handle
func (m *MemoryManager) Lookup(handle uint32) (*GraphicsAllocation, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.allocations.Get(handle)
}

func (m *MemoryManager) AllocationCount() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.allocations.Count()
}

// Usage returns the live allocation count and bytes in a memory bank
func (m *MemoryManager) Usage(bank MemoryBank) (count int, bytes int) {
	return m.budget.Usage(bank)
}

func (m *MemoryManager) CalculateStatistics(stats *memutils.DetailedStatistics) {
	stats.Clear()

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	m.allocations.Iter(func(handle uint32, alloc *GraphicsAllocation) bool {
		stats.AddAllocation(alloc.size)
		if alloc.IsResident() {
			stats.AddResident(alloc.size)
		}
		return false
	})
}

// BuildStatsString returns a json document describing the manager's usage, and every live
// allocation when detailed is set
func (m *MemoryManager) BuildStatsString(detailed bool) string {
	var stats memutils.DetailedStatistics
	m.CalculateStatistics(&stats)

	writer := jwriter.NewWriter()
	root := writer.Object()

	totalObj := root.Name("Total").Object()
	stats.PrintJson(&totalObj)
	totalObj.End()

	banksObj := root.Name("MemoryBanks").Object()
	for _, bank := range []MemoryBank{MemoryBankSystem, MemoryBankLocal} {
		count, bytes := m.budget.Usage(bank)
		bankObj := banksObj.Name(bank.String()).Object()
		bankObj.Name("AllocationCount").Int(count)
		bankObj.Name("AllocationBytes").Int(bytes)
		bankObj.End()
	}
	banksObj.End()

	if detailed {
		m.mutex.RLock()
		allocationsArray := root.Name("Allocations").Array()
		m.allocations.Iter(func(handle uint32, alloc *GraphicsAllocation) bool {
			obj := allocationsArray.Object()
			alloc.printParameters(&obj)
			obj.End()
			return false
		})
		allocationsArray.End()
		m.mutex.RUnlock()
	}

	root.End()
	return string(writer.Bytes())
}

// Destroy logs every allocation that was never freed and fails if there were any
func (m *MemoryManager) Destroy() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.allocations.Count() == 0 {
		return nil
	}

	m.allocations.Iter(func(handle uint32, alloc *GraphicsAllocation) bool {
		m.logger.LogAttrs(context.Background(), slog.LevelError, "[UNRELEASED MEMORY] unfreed allocation",
			slog.Int("handle", int(handle)),
			slog.String("type", alloc.allocationType.String()),
			slog.Int("size", alloc.size),
			slog.String("name", alloc.name),
		)
		return false
	})

	return errors.Newf("%d allocations were not freed before the destruction of the memory manager", m.allocations.Count())
}
