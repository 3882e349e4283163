package memory

import "github.com/vkngwrapper/gfxcore/hw"

// AllocationFlags are the per-request options carried by AllocationProperties
type AllocationFlags uint32

const (
	AllocationFlagAllocateMemory AllocationFlags = 1 << iota
	AllocationFlagFlushL3RequiredForRead
	AllocationFlagFlushL3RequiredForWrite
	AllocationFlagForcePin
	AllocationFlagUncacheable
	AllocationFlagMultiOsContextCapable
	AllocationFlagReadOnlyMultiStorage
	AllocationFlagShareable
	AllocationFlagResource48Bit
	AllocationFlagUSMHostAllocation
	AllocationFlagUSMDeviceAllocation
	AllocationFlagUse32BitExtraPool
)

var allocationFlagsMapping = map[AllocationFlags]string{
	AllocationFlagAllocateMemory:          "AllocateMemory",
	AllocationFlagFlushL3RequiredForRead:  "FlushL3RequiredForRead",
	AllocationFlagFlushL3RequiredForWrite: "FlushL3RequiredForWrite",
	AllocationFlagForcePin:                "ForcePin",
	AllocationFlagUncacheable:             "Uncacheable",
	AllocationFlagMultiOsContextCapable:   "MultiOsContextCapable",
	AllocationFlagReadOnlyMultiStorage:    "ReadOnlyMultiStorage",
	AllocationFlagShareable:               "Shareable",
	AllocationFlagResource48Bit:           "Resource48Bit",
	AllocationFlagUSMHostAllocation:       "USMHostAllocation",
	AllocationFlagUSMDeviceAllocation:     "USMDeviceAllocation",
	AllocationFlagUse32BitExtraPool:       "Use32BitExtraPool",
}

func (f AllocationFlags) String() string {
	var out string
	for bit := AllocationFlags(1); bit != 0 && bit <= f; bit <<= 1 {
		if f&bit == 0 {
			continue
		}
		if out != "" {
			out += "|"
		}
		out += allocationFlagsMapping[bit]
	}
	return out
}

// AllocationProperties describes a requested allocation
type AllocationProperties struct {
	RootDeviceIndex uint32
	Size            int
	Alignment       int
	Type            AllocationType
	Flags           AllocationFlags
	SubDevices      hw.DeviceBitfield
	// GpuAddress requests a fixed GPU virtual address. Zero lets the manager choose.
	GpuAddress           uint64
	MultiStorageResource bool
	Name                 string
}

// NewAllocationProperties fills in the defaults every request starts from: memory is allocated and
// L3 is flushed around reads and writes.
func NewAllocationProperties(rootDeviceIndex uint32, size int, allocationType AllocationType, subDevices hw.DeviceBitfield) AllocationProperties {
	return AllocationProperties{
		RootDeviceIndex: rootDeviceIndex,
		Size:            size,
		Type:            allocationType,
		SubDevices:      subDevices,
		Flags: AllocationFlagAllocateMemory |
			AllocationFlagFlushL3RequiredForRead |
			AllocationFlagFlushL3RequiredForWrite,
	}
}

// WithMultiOsContext marks the allocation as usable from every OS context of the root device
func (p AllocationProperties) WithMultiOsContext(capable bool) AllocationProperties {
	if capable {
		p.Flags |= AllocationFlagMultiOsContextCapable
	} else {
		p.Flags &^= AllocationFlagMultiOsContextCapable
	}
	return p
}
