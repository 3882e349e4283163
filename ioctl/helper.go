package ioctl

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/vkngwrapper/gfxcore/config"
	"golang.org/x/exp/slog"
)

// CacheRegion is a class of service index for partitioned last-level cache
type CacheRegion uint16

const (
	CacheRegionDefault CacheRegion = 0
	CacheRegion1       CacheRegion = 1
	CacheRegion2       CacheRegion = 2
	CacheRegionCount   CacheRegion = 3
	CacheRegionNone    CacheRegion = 0xffff
)

var cacheRegionMapping = map[CacheRegion]string{
	CacheRegionDefault: "Default",
	CacheRegion1:       "Region1",
	CacheRegion2:       "Region2",
	CacheRegionNone:    "None",
}

func (r CacheRegion) String() string {
	return cacheRegionMapping[r]
}

// Helper translates logical driver operations into the ioctls of one kernel uAPI revision. Failures
// are reported as sentinel values or return codes and never panic.
type Helper interface {
	Name() string

	// CreateGemExt creates a buffer object placed in any of regions and returns its handle with the
	// ioctl return code
	CreateGemExt(drm Drm, regions []MemoryClassInstance, allocSize uint64) (handle uint32, ret int)
	TranslateToMemoryRegions(regionInfo []byte) []MemoryRegion

	ClosAlloc(drm Drm) CacheRegion
	ClosAllocWays(drm Drm, closIndex CacheRegion, cacheLevel uint16, numWays uint16) uint16
	ClosFree(drm Drm, closIndex CacheRegion) CacheRegion

	// WaitUserFence waits for the value at address to reach value. dataWidth selects 8, 16, 32 or
	// 64 bit comparison from 0 to 3. A timeout of -1 waits forever.
	WaitUserFence(drm Drm, ctxID uint32, address uint64, value uint64, dataWidth uint32, timeout int64, flags uint16) int

	HwConfigIoctlVal() uint64
	AtomicAdvise(isNonAtomic bool) uint32
	PreferredLocationAdvise() uint32
	SetVmBoAdvise(drm Drm, handle uint32, attribute uint32, region *MemoryClassInstance) bool
	DirectSubmissionFlag() uint32

	MemRegionsIoctlVal() uint64
	EngineInfoIoctlVal() uint64
	TranslateToEngineCaps(data []byte) []EngineCapabilities

	// QueryDistances fills the Distance of every entry in distances. queryItems must have the same
	// length and receives the per-entry answer status.
	QueryDistances(drm Drm, queryItems []QueryItem, distances []DistanceInfo) int
	ComputeEngineClass() uint16
}

type helperBase struct {
	flags  config.Flags
	logger *slog.Logger
}

func newHelperBase(flags config.Flags, logger *slog.Logger) helperBase {
	return helperBase{flags: flags, logger: config.DiscardLogger(logger)}
}

func (h *helperBase) logCreate(ctx context.Context, attrs ...slog.Attr) {
	if h.flags.PrintBOCreateDestroyResult {
		h.logger.LogAttrs(ctx, slog.LevelInfo, "Performing GEM_CREATE_EXT", attrs...)
	}
}

func (h *helperBase) logCreateResult(ctx context.Context, ret int, handle uint32, size uint64) {
	if h.flags.PrintBOCreateDestroyResult {
		h.logger.LogAttrs(ctx, slog.LevelInfo, "GEM_CREATE_EXT has returned",
			slog.Int("ret", ret),
			slog.String("bo", fmt.Sprintf("BO-%d", handle)),
			slog.Uint64("size", size),
		)
	}
}

func (h *helperBase) translateMemoryRegions(regionInfo []byte) []MemoryRegion {
	regions, err := decodeMemoryRegions(regionInfo)
	if err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelWarn, "malformed memory region query", slog.Any("error", err))
		return nil
	}
	return regions
}

func (h *helperBase) translateEngineCaps(data []byte) []EngineCapabilities {
	engines, err := decodeEngineInfo(data)
	if err != nil {
		h.logger.LogAttrs(context.Background(), slog.LevelWarn, "malformed engine info query", slog.Any("error", err))
		return nil
	}
	return engines
}

// Upstream speaks the uAPI of mainline kernels. Cache partitioning, user fences and VM advise are not
// available there.
type Upstream struct {
	helperBase
}

var _ Helper = &Upstream{}

func NewUpstream(flags config.Flags, logger *slog.Logger) *Upstream {
	return &Upstream{helperBase: newHelperBase(flags, logger)}
}

func (h *Upstream) Name() string { return "upstream" }

func (h *Upstream) CreateGemExt(drm Drm, regions []MemoryClassInstance, allocSize uint64) (uint32, int) {
	regionsExt := GemCreateExtMemoryRegions{
		Base:       UserExtension{Name: gemCreateExtMemoryRegions},
		NumRegions: uint32(len(regions)),
		Regions:    SliceAddress(regions),
	}
	create := GemCreateExt{
		Size:       allocSize,
		Extensions: AddressOf(&regionsExt),
	}

	attrs := []slog.Attr{slog.Uint64("size", allocSize)}
	for _, region := range regions {
		attrs = append(attrs,
			slog.Int("memoryClass", int(region.MemoryClass)),
			slog.Int("memoryInstance", int(region.MemoryInstance)),
		)
	}
	h.logCreate(context.Background(), attrs...)

	ret := drm.Ioctl(RequestGemCreateExt, unsafe.Pointer(&create))
	runtime.KeepAlive(regions)
	runtime.KeepAlive(&regionsExt)

	h.logCreateResult(context.Background(), ret, create.Handle, allocSize)
	return create.Handle, ret
}

func (h *Upstream) TranslateToMemoryRegions(regionInfo []byte) []MemoryRegion {
	return h.translateMemoryRegions(regionInfo)
}

func (h *Upstream) ClosAlloc(drm Drm) CacheRegion {
	return CacheRegionNone
}

func (h *Upstream) ClosAllocWays(drm Drm, closIndex CacheRegion, cacheLevel uint16, numWays uint16) uint16 {
	return 0
}

func (h *Upstream) ClosFree(drm Drm, closIndex CacheRegion) CacheRegion {
	return CacheRegionNone
}

func (h *Upstream) WaitUserFence(drm Drm, ctxID uint32, address uint64, value uint64, dataWidth uint32, timeout int64, flags uint16) int {
	return 0
}

func (h *Upstream) HwConfigIoctlVal() uint64 { return QueryHwConfigTable }

func (h *Upstream) AtomicAdvise(isNonAtomic bool) uint32 { return 0 }

func (h *Upstream) PreferredLocationAdvise() uint32 { return 0 }

func (h *Upstream) SetVmBoAdvise(drm Drm, handle uint32, attribute uint32, region *MemoryClassInstance) bool {
	return true
}

func (h *Upstream) DirectSubmissionFlag() uint32 { return 0 }

func (h *Upstream) MemRegionsIoctlVal() uint64 { return QueryMemoryRegions }

func (h *Upstream) EngineInfoIoctlVal() uint64 { return QueryEngineInfo }

func (h *Upstream) TranslateToEngineCaps(data []byte) []EngineCapabilities {
	return h.translateEngineCaps(data)
}

// DistanceTable holds the distances reported between a region and an engine when no kernel query
// backs them
type DistanceTable struct {
	SameTile  int32
	OtherTile int32
}

var DefaultDistances = DistanceTable{SameTile: 0, OtherTile: 100}

// QueryDistances has no kernel query to back it upstream: an engine is local to the region with
// the same instance.
func (h *Upstream) QueryDistances(drm Drm, queryItems []QueryItem, distances []DistanceInfo) int {
	for i := range distances {
		if distances[i].Region.MemoryInstance == distances[i].Engine.EngineInstance {
			distances[i].Distance = DefaultDistances.SameTile
		} else {
			distances[i].Distance = DefaultDistances.OtherTile
		}
	}
	return 0
}

func (h *Upstream) ComputeEngineClass() uint16 { return EngineClassCompute }
