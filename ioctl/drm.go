package ioctl

import (
	"fmt"
	"unsafe"

	"github.com/vkngwrapper/gfxcore/hw"
)

//go:generate mockgen -source drm.go -destination ./mocks/drm.go

// Drm is an opened i915 render node. Ioctl returns 0 on success and a negative errno otherwise.
type Drm interface {
	Ioctl(request Request, arg unsafe.Pointer) int
	// PrelimVersion is the version of the prelim uAPI the kernel exposes, or "" for an upstream kernel
	PrelimVersion() string
	Product() hw.Product
}

// Request is an encoded DRM ioctl number
type Request uint64

const (
	iocReadWrite   Request = 3 << 30
	drmIoctlBase   Request = 'd' << 8
	drmCommandBase Request = 0x40
)

const (
	RequestGetParam            = iocReadWrite | Request(unsafe.Sizeof(GetParam{}))<<16 | drmIoctlBase | (drmCommandBase + 0x06)
	RequestGemContextCreateExt = iocReadWrite | Request(unsafe.Sizeof(ContextCreateExt{}))<<16 | drmIoctlBase | (drmCommandBase + 0x2d)
	RequestQuery               = iocReadWrite | Request(unsafe.Sizeof(Query{}))<<16 | drmIoctlBase | (drmCommandBase + 0x39)
	RequestGemCreateExt        = iocReadWrite | Request(unsafe.Sizeof(GemCreateExt{}))<<16 | drmIoctlBase | (drmCommandBase + 0x3c)

	RequestPrelimGemClosReserve   = iocReadWrite | Request(unsafe.Sizeof(PrelimClosReserve{}))<<16 | drmIoctlBase | (drmCommandBase + 0x57)
	RequestPrelimGemClosFree      = iocReadWrite | Request(unsafe.Sizeof(PrelimClosFree{}))<<16 | drmIoctlBase | (drmCommandBase + 0x58)
	RequestPrelimGemCacheReserve  = iocReadWrite | Request(unsafe.Sizeof(PrelimCacheReserve{}))<<16 | drmIoctlBase | (drmCommandBase + 0x59)
	RequestPrelimGemWaitUserFence = iocReadWrite | Request(unsafe.Sizeof(PrelimWaitUserFence{}))<<16 | drmIoctlBase | (drmCommandBase + 0x5a)
	RequestPrelimGemVmAdvise      = iocReadWrite | Request(unsafe.Sizeof(PrelimVmAdvise{}))<<16 | drmIoctlBase | (drmCommandBase + 0x5c)
)

var requestMapping = map[Request]string{
	RequestGetParam:               "DRM_IOCTL_I915_GETPARAM",
	RequestGemContextCreateExt:    "DRM_IOCTL_I915_GEM_CONTEXT_CREATE_EXT",
	RequestQuery:                  "DRM_IOCTL_I915_QUERY",
	RequestGemCreateExt:           "DRM_IOCTL_I915_GEM_CREATE_EXT",
	RequestPrelimGemClosReserve:   "PRELIM_DRM_IOCTL_I915_GEM_CLOS_RESERVE",
	RequestPrelimGemClosFree:      "PRELIM_DRM_IOCTL_I915_GEM_CLOS_FREE",
	RequestPrelimGemCacheReserve:  "PRELIM_DRM_IOCTL_I915_GEM_CACHE_RESERVE",
	RequestPrelimGemWaitUserFence: "PRELIM_DRM_IOCTL_I915_GEM_WAIT_USER_FENCE",
	RequestPrelimGemVmAdvise:      "PRELIM_DRM_IOCTL_I915_GEM_VM_ADVISE",
}

func (r Request) String() string {
	name, ok := requestMapping[r]
	if !ok {
		return fmt.Sprintf("0x%x", uint64(r))
	}
	return name
}

// Query identifiers shared by every kernel
const (
	QueryEngineInfo    uint64 = 2
	QueryMemoryRegions uint64 = 4
	QueryHwConfigTable uint64 = 5
)

// Query identifiers and flags of the prelim uAPI
const (
	prelimQuery               uint64 = 1 << 16
	PrelimQueryDistanceInfoID uint64 = prelimQuery | 5
	PrelimQueryHwConfigTable  uint64 = prelimQuery | 6
	PrelimQueryMemoryRegions  uint64 = prelimQuery | 4
	PrelimQueryEngineInfo     uint64 = prelimQuery | 13
)

const (
	paramChipsetID int32 = 4

	gemCreateExtMemoryRegions uint32 = 0

	prelimUserExt              uint32 = 1 << 16
	prelimGemCreateExtSetparam uint32 = prelimUserExt | 1
	prelimObjectParam          uint64 = 1 << 48
	prelimParamMemoryRegions   uint64 = (1 << 16) | 0x1
	prelimContextCreateLongRun uint32 = 1 << 31
	prelimVmAdvise             uint32 = 1 << 16
)

// Advise attributes of the prelim VM advise ioctl
const (
	PrelimVmAdviseAtomicNone        = prelimVmAdvise | 1
	PrelimVmAdviseAtomicSystem      = prelimVmAdvise | 2
	PrelimVmAdviseAtomicDevice      = prelimVmAdvise | 3
	PrelimVmAdvisePreferredLocation = prelimVmAdvise | 4
)

// User fence wait operations, masks and flags of the prelim uAPI
const (
	PrelimUfenceWaitGte  uint16 = 3
	PrelimUfenceWaitSoft uint16 = 1 << 15

	PrelimUfenceWaitU8  uint64 = 0xff
	PrelimUfenceWaitU16 uint64 = 0xffff
	PrelimUfenceWaitU32 uint64 = 0xffffffff
	PrelimUfenceWaitU64 uint64 = 0xffffffffffffffff
)
