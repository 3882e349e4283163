package ioctl_test

import (
	"testing"
	"unsafe"

	"github.com/vkngwrapper/gfxcore/hw"
	"github.com/vkngwrapper/gfxcore/ioctl"
	mock_ioctl "github.com/vkngwrapper/gfxcore/ioctl/mocks"
	"go.uber.org/mock/gomock"
)

// fakeKernel answers ioctls the way an i915 kernel with three tiles does
type fakeKernel struct {
	regions []ioctl.MemoryRegion
	engines []ioctl.EngineCapabilities

	deviceID uint64

	queryRet       int
	distanceRet    int
	distanceLength int32
	createRet      int
	createFailures int
	closRet        int
	cacheRet       int
	cacheWays      uint16
	closFreeRet    int
	vmAdviseRet    int

	calls map[ioctl.Request]int

	createExtension ioctl.UserExtension
	createParam     ioctl.PrelimGemObjectParam
	createRegions   ioctl.GemCreateExtMemoryRegions
	cacheReserve    ioctl.PrelimCacheReserve
	waitUserFence   ioctl.PrelimWaitUserFence
	vmAdvise        ioctl.PrelimVmAdvise
	contextFlags    uint32
}

func newFakeKernel() *fakeKernel {
	kernel := &fakeKernel{
		regions: []ioctl.MemoryRegion{
			{Region: ioctl.MemoryClassInstance{MemoryClass: ioctl.MemoryClassSystem}, ProbedSize: 64 << 30},
		},
		deviceID: 0x0bd5,
		calls:    map[ioctl.Request]int{},
	}

	for tile := uint16(0); tile < 3; tile++ {
		kernel.regions = append(kernel.regions, ioctl.MemoryRegion{
			Region:     ioctl.MemoryClassInstance{MemoryClass: ioctl.MemoryClassDevice, MemoryInstance: tile},
			ProbedSize: uint64(tile+1) << 30,
		})
		for _, engineClass := range []uint16{
			ioctl.EngineClassRender,
			ioctl.EngineClassCopy,
			ioctl.EngineClassVideo,
			ioctl.EngineClassVideoEnhance,
			ioctl.EngineClassCompute,
		} {
			kernel.engines = append(kernel.engines, ioctl.EngineCapabilities{
				Engine: ioctl.EngineClassInstance{EngineClass: engineClass, EngineInstance: tile},
			})
		}
	}
	return kernel
}

func (k *fakeKernel) total() int {
	count := 0
	for _, calls := range k.calls {
		count += calls
	}
	return count
}

func answerBlob(item *ioctl.QueryItem, blob []byte) {
	if item.Length == 0 {
		item.Length = int32(len(blob))
		return
	}
	copy(item.Data(), blob)
	item.Length = int32(len(blob))
}

func (k *fakeKernel) query(query *ioctl.Query) int {
	items := query.Items()
	for i := range items {
		item := &items[i]
		switch item.QueryID {
		case ioctl.QueryMemoryRegions, ioctl.PrelimQueryMemoryRegions:
			answerBlob(item, ioctl.MemoryRegionsBlob(k.regions))
		case ioctl.QueryEngineInfo, ioctl.PrelimQueryEngineInfo:
			answerBlob(item, ioctl.EngineInfoBlob(k.engines))
		case ioctl.PrelimQueryDistanceInfoID:
			distance := ioctl.UserPointer[ioctl.PrelimQueryDistanceInfo](item.DataPtr)
			distance.Distance = ioctl.DefaultDistances.OtherTile
			if distance.Engine.EngineInstance == distance.Region.MemoryInstance {
				distance.Distance = ioctl.DefaultDistances.SameTile
			}
			if k.distanceLength != 0 {
				item.Length = k.distanceLength
			}
		}
	}

	if len(items) > 0 && items[0].QueryID == ioctl.PrelimQueryDistanceInfoID {
		return k.distanceRet
	}
	return k.queryRet
}

func (k *fakeKernel) ioctl(request ioctl.Request, arg unsafe.Pointer) int {
	k.calls[request]++

	switch request {
	case ioctl.RequestGetParam:
		(*ioctl.GetParam)(arg).Value = k.deviceID
	case ioctl.RequestQuery:
		return k.query((*ioctl.Query)(arg))
	case ioctl.RequestGemCreateExt:
		create := (*ioctl.GemCreateExt)(arg)
		k.createExtension = *ioctl.UserPointer[ioctl.UserExtension](create.Extensions)
		if k.createExtension.Name == 0 {
			k.createRegions = *ioctl.UserPointer[ioctl.GemCreateExtMemoryRegions](create.Extensions)
		} else {
			k.createParam = ioctl.UserPointer[ioctl.PrelimGemCreateExtSetparam](create.Extensions).Param
		}
		if k.createFailures > 0 {
			k.createFailures--
			return -22
		}
		create.Handle = 1
		return k.createRet
	case ioctl.RequestGemContextCreateExt:
		ctx := (*ioctl.ContextCreateExt)(arg)
		k.contextFlags = ctx.Flags
		ctx.CtxID = 7
	case ioctl.RequestPrelimGemClosReserve:
		(*ioctl.PrelimClosReserve)(arg).ClosIndex = 1
		return k.closRet
	case ioctl.RequestPrelimGemCacheReserve:
		reserve := (*ioctl.PrelimCacheReserve)(arg)
		k.cacheReserve = *reserve
		if k.cacheWays != 0 {
			reserve.NumWays = k.cacheWays
		}
		return k.cacheRet
	case ioctl.RequestPrelimGemClosFree:
		return k.closFreeRet
	case ioctl.RequestPrelimGemWaitUserFence:
		k.waitUserFence = *(*ioctl.PrelimWaitUserFence)(arg)
	case ioctl.RequestPrelimGemVmAdvise:
		k.vmAdvise = *(*ioctl.PrelimVmAdvise)(arg)
		return k.vmAdviseRet
	}
	return 0
}

func newMockDrm(t *testing.T, kernel *fakeKernel, product hw.Product, prelimVersion string) *mock_ioctl.MockDrm {
	ctrl := gomock.NewController(t)
	drm := mock_ioctl.NewMockDrm(ctrl)
	drm.EXPECT().Product().Return(product).AnyTimes()
	drm.EXPECT().PrelimVersion().Return(prelimVersion).AnyTimes()
	drm.EXPECT().Ioctl(gomock.Any(), gomock.Any()).DoAndReturn(kernel.ioctl).AnyTimes()
	return drm
}
