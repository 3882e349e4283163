package ioctl

import (
	"context"
	"unsafe"

	"github.com/vkngwrapper/gfxcore/config"
	"github.com/vkngwrapper/gfxcore/hw"
	"golang.org/x/exp/slog"
)

// errInvalid is EINVAL as reported in QueryItem.Length
const errInvalid int32 = 22

// Device is an opened render node bound to the helper for its kernel. It is itself a Drm, so helpers
// called through it have their ioctls traced when PrintIoctlEntries is set.
type Device struct {
	drm    Drm
	helper Helper
	flags  config.Flags
	logger *slog.Logger

	memoryInfo *MemoryInfo
	engineInfo *EngineInfo
	tileCount  uint32
	tileMask   hw.DeviceBitfield
}

var _ Drm = &Device{}

func NewDevice(drm Drm, registry *Registry, flags config.Flags, logger *slog.Logger) *Device {
	return &Device{
		drm:       drm,
		helper:    registry.Get(drm),
		flags:     flags,
		logger:    config.DiscardLogger(logger),
		tileCount: 1,
		tileMask:  hw.NewDeviceBitfield(1),
	}
}

func (d *Device) Helper() Helper              { return d.helper }
func (d *Device) PrelimVersion() string       { return d.drm.PrelimVersion() }
func (d *Device) Product() hw.Product         { return d.drm.Product() }
func (d *Device) MemoryInfo() *MemoryInfo     { return d.memoryInfo }
func (d *Device) EngineInfo() *EngineInfo     { return d.engineInfo }
func (d *Device) TileCount() uint32           { return d.tileCount }
func (d *Device) TileMask() hw.DeviceBitfield { return d.tileMask }

func (d *Device) Ioctl(request Request, arg unsafe.Pointer) int {
	ret := d.drm.Ioctl(request, arg)
	if d.flags.PrintIoctlEntries {
		d.logger.LogAttrs(context.Background(), slog.LevelInfo, "IOCTL",
			slog.String("request", request.String()),
			slog.Int("ret", ret),
		)
	}
	return ret
}

// GetParam reads a single driver parameter
func (d *Device) GetParam(param int32) (uint64, int) {
	getParam := GetParam{Param: param}
	ret := d.Ioctl(RequestGetParam, unsafe.Pointer(&getParam))
	return getParam.Value, ret
}

// Query runs a two-pass kernel query: the first ioctl sizes the answer, the second fills it
func (d *Device) Query(queryID uint64) ([]byte, int) {
	item := QueryItem{QueryID: queryID}
	query := Query{NumItems: 1, ItemsPtr: AddressOf(&item)}

	ret := d.Ioctl(RequestQuery, unsafe.Pointer(&query))
	if ret != 0 || item.Length <= 0 {
		return nil, ret
	}

	data := make([]byte, item.Length)
	item.DataPtr = SliceAddress(data)
	ret = d.Ioctl(RequestQuery, unsafe.Pointer(&query))
	if ret != 0 || item.Length <= 0 {
		return nil, ret
	}
	return data[:item.Length], 0
}

// CreateGemExt creates a buffer object through the device's helper
func (d *Device) CreateGemExt(regions []MemoryClassInstance, allocSize uint64) (uint32, int) {
	return d.helper.CreateGemExt(d, regions, allocSize)
}

// QueryMemoryInfo loads the memory regions of the device. It reports false when the kernel does not
// answer the region query.
func (d *Device) QueryMemoryInfo() bool {
	data, _ := d.Query(d.helper.MemRegionsIoctlVal())
	if data == nil {
		return false
	}

	regions := d.helper.TranslateToMemoryRegions(data)
	if regions == nil {
		return false
	}
	d.memoryInfo = NewMemoryInfo(regions)
	return true
}

// QueryEngineInfo loads the engines of the device and, when local memory regions are known, places
// them on tiles. Video engines are only considered with sysman.
func (d *Device) QueryEngineInfo(sysman bool) bool {
	data, _ := d.Query(d.helper.EngineInfoIoctlVal())
	if data == nil {
		return false
	}
	engines := d.helper.TranslateToEngineCaps(data)
	computeClass := d.helper.ComputeEngineClass()

	if d.memoryInfo == nil {
		d.engineInfo = NewEngineInfo(engines, computeClass)
		return true
	}

	var distances []DistanceInfo
	var tileCount uint32
	for _, region := range d.memoryInfo.Regions() {
		if region.Region.MemoryClass != MemoryClassDevice {
			continue
		}
		tileCount++

		for _, engine := range engines {
			switch engine.Engine.EngineClass {
			case EngineClassRender, EngineClassCopy:
			case EngineClassVideo, EngineClassVideoEnhance:
				if !sysman {
					continue
				}
			default:
				if engine.Engine.EngineClass != computeClass {
					continue
				}
			}
			distances = append(distances, DistanceInfo{Region: region.Region, Engine: engine.Engine})
		}
	}

	if tileCount == 0 {
		d.engineInfo = NewEngineInfo(engines, computeClass)
		return true
	}

	queryItems := make([]QueryItem, len(distances))
	ret := d.helper.QueryDistances(d, queryItems, distances)
	if ret != 0 {
		d.engineInfo = nil
		return false
	}

	unsupported := true
	for _, item := range queryItems {
		if item.Length != -errInvalid {
			unsupported = false
			break
		}
	}
	if unsupported {
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, "distance query unsupported, treating device as single tile")
		d.engineInfo = NewEngineInfo(engines, computeClass)
		return true
	}

	err := d.memoryInfo.AssignRegionsFromDistances(distances)
	if err != nil {
		d.logger.LogAttrs(context.Background(), slog.LevelWarn, "inconsistent distance table", slog.Any("error", err))
		d.engineInfo = nil
		return false
	}

	d.tileCount = tileCount
	d.tileMask = hw.NewDeviceBitfield(tileCount)
	d.engineInfo = NewMultiTileEngineInfo(engines, tileCount, distances, queryItems, computeClass)
	return true
}

// AppendContextFlags adds the direct submission flag of the helper as DirectSubmissionDrmContext
// dictates: -1 follows isDirectSubmission, 0 never sets it and 1 always does
func (d *Device) AppendContextFlags(ctx *ContextCreateExt, isDirectSubmission bool) {
	if config.Resolve(d.flags.DirectSubmissionDrmContext, isDirectSubmission) {
		ctx.Flags |= d.helper.DirectSubmissionFlag()
	}
}

// CreateContext creates a GEM context and returns its id with the ioctl return code
func (d *Device) CreateContext(isDirectSubmission bool) (uint32, int) {
	var ctx ContextCreateExt
	d.AppendContextFlags(&ctx, isDirectSubmission)
	ret := d.Ioctl(RequestGemContextCreateExt, unsafe.Pointer(&ctx))
	return ctx.CtxID, ret
}
