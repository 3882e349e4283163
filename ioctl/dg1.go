package ioctl

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/gfxcore/config"
	"golang.org/x/exp/slog"
)

const (
	legacyGemCreateExtSetparam uint32 = 1
	legacyObjectParam          uint64 = 1 << 32
	legacyParamMemoryRegions   uint64 = 0x1
)

// legacyMemoryRegionInfo is the region entry of the early local memory uAPI some DG1 kernels ship
type legacyMemoryRegionInfo struct {
	Region          MemoryClassInstance
	Rsvd0           uint32
	ProbedSize      uint64
	UnallocatedSize uint64
}

// DG1 is the upstream helper with fallbacks for the local memory uAPI that DG1 kernels shipped before it
// was merged
type DG1 struct {
	*Upstream
}

var _ Helper = &DG1{}

func NewDG1(flags config.Flags, logger *slog.Logger) Helper {
	return &DG1{Upstream: NewUpstream(flags, logger)}
}

func (h *DG1) Name() string { return "dg1" }

func (h *DG1) CreateGemExt(drm Drm, regions []MemoryClassInstance, allocSize uint64) (uint32, int) {
	handle, ret := h.Upstream.CreateGemExt(drm, regions, allocSize)
	if ret == 0 {
		return handle, ret
	}

	setparam := PrelimGemCreateExtSetparam{
		Base: UserExtension{Name: legacyGemCreateExtSetparam},
		Param: PrelimGemObjectParam{
			Param: legacyObjectParam | legacyParamMemoryRegions,
			Size:  uint32(len(regions)),
			Data:  SliceAddress(regions),
		},
	}
	create := GemCreateExt{
		Size:       allocSize,
		Extensions: AddressOf(&setparam),
	}

	h.logCreate(context.Background(),
		slog.Uint64("size", allocSize),
		slog.String("param", fmt.Sprintf("%#x", setparam.Param.Param)),
	)

	ret = drm.Ioctl(RequestGemCreateExt, unsafe.Pointer(&create))
	runtime.KeepAlive(regions)
	runtime.KeepAlive(&setparam)

	h.logCreateResult(context.Background(), ret, create.Handle, allocSize)
	return create.Handle, ret
}

// TranslateToMemoryRegions accepts both region layouts, telling them apart by the entry size
func (h *DG1) TranslateToMemoryRegions(regionInfo []byte) []MemoryRegion {
	headerSize := int(unsafe.Sizeof(queryHeader{}))
	legacySize := int(unsafe.Sizeof(legacyMemoryRegionInfo{}))

	if len(regionInfo) >= headerSize {
		count := int(binary.LittleEndian.Uint32(regionInfo))
		if count > 0 && len(regionInfo)-headerSize == count*legacySize {
			regions, err := decodeLegacyMemoryRegions(regionInfo)
			if err == nil {
				return regions
			}
		}
	}

	return h.Upstream.TranslateToMemoryRegions(regionInfo)
}

func decodeLegacyMemoryRegions(data []byte) ([]MemoryRegion, error) {
	infos, err := decodeBlob[legacyMemoryRegionInfo](data)
	if err != nil {
		return nil, errors.Wrap(err, "legacy memory region layout")
	}

	regions := make([]MemoryRegion, len(infos))
	for i, info := range infos {
		regions[i] = MemoryRegion{
			Region:          info.Region,
			ProbedSize:      info.ProbedSize,
			UnallocatedSize: info.UnallocatedSize,
		}
	}
	return regions, nil
}

// LegacyMemoryRegionsBlob encodes regions in the early DG1 layout
func LegacyMemoryRegionsBlob(regions []MemoryRegion) []byte {
	infos := make([]legacyMemoryRegionInfo, len(regions))
	for i, region := range regions {
		infos[i] = legacyMemoryRegionInfo{
			Region:          region.Region,
			ProbedSize:      region.ProbedSize,
			UnallocatedSize: region.UnallocatedSize,
		}
	}
	return encodeBlob(infos)
}
