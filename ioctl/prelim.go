package ioctl

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/vkngwrapper/gfxcore/config"
	"golang.org/x/exp/slog"
)

// PrelimVersion20 is the prelim uAPI version Prelim20 speaks
const PrelimVersion20 = "2.0"

// Prelim20 speaks version 2.0 of the prelim uAPI carried by backport kernels
type Prelim20 struct {
	helperBase
}

var _ Helper = &Prelim20{}

func NewPrelim20(flags config.Flags, logger *slog.Logger) *Prelim20 {
	return &Prelim20{helperBase: newHelperBase(flags, logger)}
}

func (h *Prelim20) Name() string { return "prelim20" }

func (h *Prelim20) CreateGemExt(drm Drm, regions []MemoryClassInstance, allocSize uint64) (uint32, int) {
	setparam := PrelimGemCreateExtSetparam{
		Base: UserExtension{Name: prelimGemCreateExtSetparam},
		Param: PrelimGemObjectParam{
			Param: prelimObjectParam | prelimParamMemoryRegions,
			Size:  uint32(len(regions)),
			Data:  SliceAddress(regions),
		},
	}
	create := GemCreateExt{
		Size:       allocSize,
		Extensions: AddressOf(&setparam),
	}

	attrs := []slog.Attr{
		slog.Uint64("size", allocSize),
		slog.String("param", fmt.Sprintf("%#x", setparam.Param.Param)),
	}
	for _, region := range regions {
		attrs = append(attrs,
			slog.Int("memoryClass", int(region.MemoryClass)),
			slog.Int("memoryInstance", int(region.MemoryInstance)),
		)
	}
	h.logCreate(context.Background(), attrs...)

	ret := drm.Ioctl(RequestGemCreateExt, unsafe.Pointer(&create))
	runtime.KeepAlive(regions)
	runtime.KeepAlive(&setparam)

	h.logCreateResult(context.Background(), ret, create.Handle, allocSize)
	return create.Handle, ret
}

func (h *Prelim20) TranslateToMemoryRegions(regionInfo []byte) []MemoryRegion {
	return h.translateMemoryRegions(regionInfo)
}

func (h *Prelim20) ClosAlloc(drm Drm) CacheRegion {
	var clos PrelimClosReserve
	ret := drm.Ioctl(RequestPrelimGemClosReserve, unsafe.Pointer(&clos))
	if ret != 0 {
		return CacheRegionNone
	}
	return CacheRegion(clos.ClosIndex)
}

func (h *Prelim20) ClosAllocWays(drm Drm, closIndex CacheRegion, cacheLevel uint16, numWays uint16) uint16 {
	if h.flags.ForceCacheRegionWays != 0 {
		numWays = h.flags.ForceCacheRegionWays
	}

	reserve := PrelimCacheReserve{
		ClosIndex:  uint16(closIndex),
		CacheLevel: cacheLevel,
		NumWays:    numWays,
	}
	ret := drm.Ioctl(RequestPrelimGemCacheReserve, unsafe.Pointer(&reserve))
	if ret != 0 {
		return 0
	}
	return reserve.NumWays
}

func (h *Prelim20) ClosFree(drm Drm, closIndex CacheRegion) CacheRegion {
	clos := PrelimClosFree{ClosIndex: uint16(closIndex)}
	ret := drm.Ioctl(RequestPrelimGemClosFree, unsafe.Pointer(&clos))
	if ret != 0 {
		return CacheRegionNone
	}
	return closIndex
}

func userFenceMask(dataWidth uint32) uint64 {
	switch dataWidth {
	case 3:
		return PrelimUfenceWaitU64
	case 2:
		return PrelimUfenceWaitU32
	case 1:
		return PrelimUfenceWaitU16
	default:
		return PrelimUfenceWaitU8
	}
}

func (h *Prelim20) WaitUserFence(drm Drm, ctxID uint32, address uint64, value uint64, dataWidth uint32, timeout int64, flags uint16) int {
	wait := PrelimWaitUserFence{
		Addr:    address,
		CtxID:   ctxID,
		Op:      PrelimUfenceWaitGte,
		Flags:   flags,
		Value:   value,
		Mask:    userFenceMask(dataWidth),
		Timeout: timeout,
	}
	// Without a context the wait cannot be tied to an engine interrupt
	if ctxID == 0 {
		wait.Flags |= PrelimUfenceWaitSoft
	}
	return drm.Ioctl(RequestPrelimGemWaitUserFence, unsafe.Pointer(&wait))
}

func (h *Prelim20) HwConfigIoctlVal() uint64 { return PrelimQueryHwConfigTable }

func (h *Prelim20) AtomicAdvise(isNonAtomic bool) uint32 {
	if isNonAtomic {
		return PrelimVmAdviseAtomicNone
	}
	return PrelimVmAdviseAtomicSystem
}

func (h *Prelim20) PreferredLocationAdvise() uint32 { return PrelimVmAdvisePreferredLocation }

func (h *Prelim20) SetVmBoAdvise(drm Drm, handle uint32, attribute uint32, region *MemoryClassInstance) bool {
	advise := PrelimVmAdvise{
		Handle:    handle,
		Attribute: attribute,
	}
	if region != nil {
		advise.Region = *region
	}
	return drm.Ioctl(RequestPrelimGemVmAdvise, unsafe.Pointer(&advise)) == 0
}

func (h *Prelim20) DirectSubmissionFlag() uint32 { return prelimContextCreateLongRun }

func (h *Prelim20) MemRegionsIoctlVal() uint64 { return PrelimQueryMemoryRegions }

func (h *Prelim20) EngineInfoIoctlVal() uint64 { return PrelimQueryEngineInfo }

func (h *Prelim20) TranslateToEngineCaps(data []byte) []EngineCapabilities {
	return h.translateEngineCaps(data)
}

func (h *Prelim20) QueryDistances(drm Drm, queryItems []QueryItem, distances []DistanceInfo) int {
	infos := make([]PrelimQueryDistanceInfo, len(distances))
	for i := range distances {
		infos[i] = PrelimQueryDistanceInfo{
			Engine: distances[i].Engine,
			Region: distances[i].Region,
		}
		queryItems[i] = QueryItem{
			QueryID: PrelimQueryDistanceInfoID,
			Length:  int32(unsafe.Sizeof(PrelimQueryDistanceInfo{})),
			DataPtr: AddressOf(&infos[i]),
		}
	}

	query := Query{
		NumItems: uint32(len(queryItems)),
		ItemsPtr: SliceAddress(queryItems),
	}
	ret := drm.Ioctl(RequestQuery, unsafe.Pointer(&query))
	runtime.KeepAlive(infos)
	runtime.KeepAlive(queryItems)

	for i := range distances {
		distances[i].Distance = infos[i].Distance
		if queryItems[i].Length < 0 {
			distances[i].Distance = -1
		}
	}
	return ret
}

func (h *Prelim20) ComputeEngineClass() uint16 { return EngineClassCompute }
